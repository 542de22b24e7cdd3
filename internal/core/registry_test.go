package core

import (
	"math"
	"testing"
	"time"

	"github.com/JonMunkholm/dbpipeline/internal/table"
)

func TestLookupType(t *testing.T) {
	tests := []struct {
		name     string
		wantOK   bool
		wantKind table.Kind
		wantName string
	}{
		{"string", true, table.KindText, "string"},
		{"STR", true, table.KindText, "string"},
		{"object", true, table.KindText, "string"},
		{"int64", true, table.KindInt, "int"},
		{"float", true, table.KindFloat, "float"},
		{"datetime64[ns]", true, table.KindDatetime, "datetime"},
		{"date", true, table.KindDatetime, "date"},
		{"boolean", true, table.KindBool, "bool"},
		{"blob", false, table.KindText, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def, ok := LookupType(tt.name)
			if ok != tt.wantOK {
				t.Fatalf("LookupType(%q) ok = %v, want %v", tt.name, ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if def.Kind != tt.wantKind {
				t.Errorf("LookupType(%q).Kind = %v, want %v", tt.name, def.Kind, tt.wantKind)
			}
			if def.Name != tt.wantName {
				t.Errorf("LookupType(%q).Name = %q, want %q", tt.name, def.Name, tt.wantName)
			}
		})
	}
}

func TestRegisterType_Duplicate(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("RegisterType() with duplicate name should panic")
		}
	}()
	RegisterType(TypeDefinition{Name: "String", Kind: table.KindText, Cast: castText})
}

func TestTypes_Sorted(t *testing.T) {
	types := Types()
	if len(types) < 6 {
		t.Fatalf("Types() returned %d definitions, want at least 6", len(types))
	}
	for i := 1; i < len(types); i++ {
		if types[i-1].Name > types[i].Name {
			t.Errorf("Types() not sorted: %q before %q", types[i-1].Name, types[i].Name)
		}
	}
}

func TestCastValue(t *testing.T) {
	mustType := func(name string) TypeDefinition {
		def, ok := LookupType(name)
		if !ok {
			t.Fatalf("type %q not registered", name)
		}
		return def
	}
	ts := time.Date(2013, 1, 1, 5, 17, 0, 0, time.UTC)

	tests := []struct {
		name   string
		in     table.Value
		target string
		want   table.Value
		wantOK bool
	}{
		{"null stays null", table.NullOf(table.KindText), "int", table.NullOf(table.KindInt), true},
		{"text to int", table.Text("517.0"), "int", table.Int(517), true},
		{"float to int truncates", table.Float(3.9), "int", table.Int(3), true},
		{"NaN to int fails", table.Float(math.NaN()), "int", table.Value{}, false},
		{"float above int64 fails", table.Float(1e19), "int", table.Value{}, false},
		{"float 2^63 fails", table.Float(math.Exp2(63)), "int", table.Value{}, false},
		{"float -2^63 to int", table.Float(-math.Exp2(63)), "int", table.Int(math.MinInt64), true},
		{"bool to int", table.Bool(true), "int", table.Int(1), true},
		{"text to float", table.Text("1,400.5"), "float", table.Float(1400.5), true},
		{"int to float", table.Int(2), "float", table.Float(2), true},
		{"bad text to float", table.Text("abc"), "float", table.Value{}, false},
		{"int to text", table.Int(1400), "string", table.Text("1400"), true},
		{"float to text", table.Float(2.5), "string", table.Text("2.5"), true},
		{"text to datetime", table.Text("2013-01-01 05:17"), "datetime", table.Time(ts), true},
		{"text to date truncates", table.Text("2013-01-01 05:17"), "date", table.Time(time.Date(2013, 1, 1, 0, 0, 0, 0, time.UTC)), true},
		{"int to datetime fails", table.Int(5), "datetime", table.Value{}, false},
		{"text to bool", table.Text("sim"), "bool", table.Bool(true), true},
		{"int 2 to bool fails", table.Int(2), "bool", table.Value{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := CastValue(tt.in, mustType(tt.target))
			if ok != tt.wantOK {
				t.Fatalf("CastValue(%v, %s) ok = %v, want %v", tt.in, tt.target, ok, tt.wantOK)
			}
			if ok && !got.Equal(tt.want) {
				t.Errorf("CastValue(%v, %s) = %v, want %v", tt.in, tt.target, got, tt.want)
			}
		})
	}
}
