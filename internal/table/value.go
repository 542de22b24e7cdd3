package table

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrUnknownKind is returned when a type name does not map to a Kind.
var ErrUnknownKind = errors.New("unknown column type")

// Kind is the data type carried by a column.
type Kind int

const (
	KindText Kind = iota
	KindInt
	KindFloat
	KindDatetime
	KindBool
)

// String returns the canonical type name, as used in metadata sheets.
func (k Kind) String() string {
	switch k {
	case KindText:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindDatetime:
		return "datetime"
	case KindBool:
		return "bool"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind maps a metadata type name to a Kind.
// Matching is case-insensitive and accepts the usual pandas spellings.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "string", "str", "text", "object":
		return KindText, nil
	case "int", "int64", "int32", "integer":
		return KindInt, nil
	case "float", "float64", "float32", "double", "numeric":
		return KindFloat, nil
	case "datetime", "datetime64", "datetime64[ns]", "date", "timestamp":
		return KindDatetime, nil
	case "bool", "boolean":
		return KindBool, nil
	default:
		return KindText, fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// Value is a single nullable cell. Only the field matching Kind is meaningful.
type Value struct {
	Kind  Kind
	Null  bool
	Str   string
	Int   int64
	Float float64
	Time  time.Time
	Bool  bool
}

func Text(s string) Value { return Value{Kind: KindText, Str: s} }
func Int(i int64) Value { return Value{Kind: KindInt, Int: i} }
func Float(f float64) Value { return Value{Kind: KindFloat, Float: f} }
func Bool(b bool) Value { return Value{Kind: KindBool, Bool: b} }
func NullOf(k Kind) Value { return Value{Kind: k, Null: true} }
func Time(t time.Time) Value { return Value{Kind: KindDatetime, Time: t.UTC()} }

// String renders the canonical text form. Null renders as "".
func (v Value) String() string {
	if v.Null {
		return ""
	}
	switch v.Kind {
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindFloat:
		return strconv.FormatFloat(v.Float, 'f', -1, 64)
	case KindDatetime:
		return v.Time.UTC().Format(time.RFC3339)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	default:
		return v.Str
	}
}

// Any returns the native Go value, or nil when the cell is null.
func (v Value) Any() any {
	if v.Null {
		return nil
	}
	switch v.Kind {
	case KindInt:
		return v.Int
	case KindFloat:
		return v.Float
	case KindDatetime:
		return v.Time
	case KindBool:
		return v.Bool
	default:
		return v.Str
	}
}

// Equal reports whether two cells hold the same kind and value.
// Two NaN floats are equal; times are compared as instants.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind || v.Null != o.Null {
		return false
	}
	if v.Null {
		return true
	}
	switch v.Kind {
	case KindInt:
		return v.Int == o.Int
	case KindFloat:
		if math.IsNaN(v.Float) && math.IsNaN(o.Float) {
			return true
		}
		return v.Float == o.Float
	case KindDatetime:
		return v.Time.Equal(o.Time)
	case KindBool:
		return v.Bool == o.Bool
	default:
		return v.Str == o.Str
	}
}
