package table

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadCSV(t *testing.T) {
	input := "year,month,day,dep_time,carrier\n" +
		"2013,1,1,517.0,UA\n" +
		"2013,1,1,NA, AA \n" +
		",,,,\n" +
		"2013,1,2,,null\n"

	tbl, err := ReadCSV(strings.NewReader(input), CSVOptions{Name: "nyflights"})
	require.NoError(t, err)

	assert.Equal(t, "nyflights", tbl.Name)
	assert.Equal(t, []string{"year", "month", "day", "dep_time", "carrier"}, tbl.Names())
	assert.Equal(t, 3, tbl.NumRows(), "blank rows are skipped")

	dep, err := tbl.Column("dep_time")
	require.NoError(t, err)
	assert.Equal(t, Text("517.0"), dep.Values[0])
	assert.True(t, dep.Values[1].Null)
	assert.True(t, dep.Values[2].Null)

	carrier, _ := tbl.Column("carrier")
	assert.Equal(t, "AA", carrier.Values[1].Str)
	assert.True(t, carrier.Values[2].Null)
}

func TestReadCSV_BOMAndHeaderCleanup(t *testing.T) {
	input := append([]byte{0xEF, 0xBB, 0xBF}, []byte("=\"origin\",\"dest\"\nEWR,IAH\n")...)

	tbl, err := ReadCSV(bytes.NewReader(input), CSVOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"origin", "dest"}, tbl.Names())
}

func TestReadCSV_Latin1(t *testing.T) {
	// "São Paulo" with ã encoded as 0xE3
	input := []byte("cidade\nS\xe3o Paulo\n")

	tbl, err := ReadCSV(bytes.NewReader(input), CSVOptions{Encoding: "latin1"})
	require.NoError(t, err)
	col, _ := tbl.Column("cidade")
	assert.Equal(t, "São Paulo", col.Values[0].Str)
}

func TestReadCSV_InvalidUTF8IsReplaced(t *testing.T) {
	input := []byte("cidade\nS\xe3o\n")

	tbl, err := ReadCSV(bytes.NewReader(input), CSVOptions{})
	require.NoError(t, err)
	col, _ := tbl.Column("cidade")
	assert.Equal(t, "S�o", col.Values[0].Str)
}

func TestReadCSV_Errors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		opts    CSVOptions
		wantErr string
	}{
		{"empty", "", CSVOptions{}, "empty csv"},
		{"duplicate header", "a,b,a\n1,2,3\n", CSVOptions{}, "duplicate column"},
		{"ragged row", "a,b\n1,2\n3\n", CSVOptions{}, "line 3"},
		{"bad encoding", "a\n1\n", CSVOptions{Encoding: "ebcdic"}, "unsupported encoding"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(tt.input), tt.opts)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestWriteCSV(t *testing.T) {
	tbl, err := New("t",
		NewColumn("origin", KindText, []Value{Text("EWR"), NullOf(KindText)}),
		NewColumn("distance", KindInt, []Value{Int(1400), Int(1416)}),
	)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, tbl))
	assert.Equal(t, "origin,distance\nEWR,1400\n,1416\n", buf.String())

	back, err := ReadCSV(&buf, CSVOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, back.NumRows())
}
