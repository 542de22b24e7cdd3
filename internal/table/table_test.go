package table

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTable(t *testing.T) *Table {
	t.Helper()
	tbl, err := New("flights",
		NewColumn("carrier", KindText, []Value{Text("UA"), Text("AA"), NullOf(KindText)}),
		NewColumn("distance", KindInt, []Value{Int(1400), Int(1089), Int(719)}),
		NewColumn("air_time", KindFloat, []Value{Float(227), NullOf(KindFloat), Float(160.5)}),
	)
	require.NoError(t, err)
	return tbl
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in      string
		want    Kind
		wantErr bool
	}{
		{"string", KindText, false},
		{"STR", KindText, false},
		{"object", KindText, false},
		{"int", KindInt, false},
		{" int64 ", KindInt, false},
		{"float", KindFloat, false},
		{"double", KindFloat, false},
		{"datetime", KindDatetime, false},
		{"datetime64[ns]", KindDatetime, false},
		{"bool", KindBool, false},
		{"decimal(10,2)", KindText, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseKind(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownKind)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValueString(t *testing.T) {
	ts := time.Date(2013, 1, 1, 5, 17, 0, 0, time.UTC)

	assert.Equal(t, "", NullOf(KindInt).String())
	assert.Equal(t, "42", Int(42).String())
	assert.Equal(t, "0.5", Float(0.5).String())
	assert.Equal(t, "2013-01-01T05:17:00Z", Time(ts).String())
	assert.Equal(t, "true", Bool(true).String())
	assert.Equal(t, "JFK", Text("JFK").String())
}

func TestValueEqual(t *testing.T) {
	sp := time.FixedZone("BRT", -3*3600)
	a := time.Date(2013, 1, 1, 2, 0, 0, 0, sp)
	b := time.Date(2013, 1, 1, 5, 0, 0, 0, time.UTC)

	assert.True(t, Time(a).Equal(Time(b)))
	assert.True(t, Float(math.NaN()).Equal(Float(math.NaN())))
	assert.True(t, NullOf(KindText).Equal(NullOf(KindText)))
	assert.False(t, NullOf(KindText).Equal(NullOf(KindInt)))
	assert.False(t, Int(1).Equal(Float(1)))
	assert.False(t, Text("a").Equal(NullOf(KindText)))
}

func TestNew_RowCountMismatch(t *testing.T) {
	_, err := New("bad",
		NewColumn("a", KindInt, []Value{Int(1), Int(2)}),
		NewColumn("b", KindInt, []Value{Int(1)}),
	)
	assert.ErrorIs(t, err, ErrRowCount)
}

func TestTable_AddAndSetColumn(t *testing.T) {
	tbl := sampleTable(t)

	err := tbl.AddColumn(NewColumn("carrier", KindText, make([]Value, 3)))
	assert.ErrorIs(t, err, ErrDuplicateColumn)

	replacement := NewColumn("distance", KindFloat, []Value{Float(1), Float(2), Float(3)})
	require.NoError(t, tbl.SetColumn(replacement))
	assert.Equal(t, []string{"carrier", "distance", "air_time"}, tbl.Names())

	col, err := tbl.Column("distance")
	require.NoError(t, err)
	assert.Equal(t, KindFloat, col.Kind)

	require.NoError(t, tbl.SetColumn(NewColumn("origin", KindText, []Value{Text("EWR"), Text("LGA"), Text("JFK")})))
	assert.Equal(t, 4, tbl.NumCols())

	err = tbl.SetColumn(NewColumn("short", KindText, []Value{Text("x")}))
	assert.ErrorIs(t, err, ErrRowCount)
}

func TestTable_RenameAndDrop(t *testing.T) {
	tbl := sampleTable(t)

	require.NoError(t, tbl.RenameColumn("carrier", "companhia"))
	assert.True(t, tbl.Has("companhia"))
	assert.False(t, tbl.Has("carrier"))
	assert.ErrorIs(t, tbl.RenameColumn("distance", "air_time"), ErrDuplicateColumn)
	assert.ErrorIs(t, tbl.RenameColumn("missing", "x"), ErrColumnNotFound)

	require.NoError(t, tbl.DropColumn("distance"))
	assert.Equal(t, []string{"companhia", "air_time"}, tbl.Names())
	_, err := tbl.Column("air_time")
	require.NoError(t, err)
	assert.ErrorIs(t, tbl.DropColumn("distance"), ErrColumnNotFound)
}

func TestTable_SelectCopies(t *testing.T) {
	tbl := sampleTable(t)

	sel, err := tbl.Select("air_time", "carrier")
	require.NoError(t, err)
	assert.Equal(t, []string{"air_time", "carrier"}, sel.Names())
	assert.Equal(t, 3, sel.NumRows())

	col, _ := sel.Column("carrier")
	col.Values[0] = Text("changed")
	orig, _ := tbl.Column("carrier")
	assert.Equal(t, "UA", orig.Values[0].Str)

	_, err = tbl.Select("nope")
	assert.ErrorIs(t, err, ErrColumnNotFound)
}

func TestTable_FilterRows(t *testing.T) {
	tbl := sampleTable(t)
	carrier, _ := tbl.Column("carrier")

	out := tbl.FilterRows(func(i int) bool { return !carrier.Values[i].Null })
	assert.Equal(t, 2, out.NumRows())
	assert.Equal(t, []Value{Text("AA"), Int(1089), NullOf(KindFloat)}, out.Row(1))
}

func TestEqual(t *testing.T) {
	a := sampleTable(t)
	b := a.Clone()
	assert.True(t, Equal(a, b))

	col, _ := b.Column("distance")
	col.Values[2] = Int(720)
	assert.False(t, Equal(a, b))

	c := a.Clone()
	require.NoError(t, c.RenameColumn("carrier", "x"))
	assert.False(t, Equal(a, c))
}

func TestMarshalJSON(t *testing.T) {
	tbl := sampleTable(t)
	col, _ := tbl.Column("air_time")
	col.Values[0] = Float(math.NaN())

	data, err := json.Marshal(tbl)
	require.NoError(t, err)

	var decoded struct {
		Name    string
		Columns []struct{ Name, Type string }
		Rows    [][]any
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "flights", decoded.Name)
	assert.Equal(t, "int", decoded.Columns[1].Type)
	assert.Len(t, decoded.Rows, 3)
	assert.Nil(t, decoded.Rows[0][2])
	assert.Nil(t, decoded.Rows[2][0])
	assert.Equal(t, "AA", decoded.Rows[1][0])
}
