package core

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/JonMunkholm/dbpipeline/internal/table"
)

// CastFunc converts a single non-null cell. ok=false means the value cannot
// be represented in the target type.
type CastFunc func(v table.Value) (out table.Value, ok bool)

// TypeDefinition binds a metadata type name to a column kind and its cast.
type TypeDefinition struct {
	Name string
	Kind table.Kind
	Cast CastFunc
}

var (
	registry   = make(map[string]TypeDefinition)
	registryMu sync.RWMutex
)

func init() {
	RegisterType(TypeDefinition{Name: "string", Kind: table.KindText, Cast: castText})
	RegisterType(TypeDefinition{Name: "int", Kind: table.KindInt, Cast: castInt})
	RegisterType(TypeDefinition{Name: "float", Kind: table.KindFloat, Cast: castFloat})
	RegisterType(TypeDefinition{Name: "datetime", Kind: table.KindDatetime, Cast: castDatetime})
	RegisterType(TypeDefinition{Name: "bool", Kind: table.KindBool, Cast: castBool})

	// date truncates timestamps to midnight UTC
	RegisterType(TypeDefinition{Name: "date", Kind: table.KindDatetime, Cast: func(v table.Value) (table.Value, bool) {
		out, ok := castDatetime(v)
		if !ok {
			return out, false
		}
		y, m, d := out.Time.Date()
		return table.Time(time.Date(y, m, d, 0, 0, 0, 0, time.UTC)), true
	}})
}

// RegisterType adds a type definition to the registry.
// Panics if a type with the same name is already registered.
func RegisterType(def TypeDefinition) {
	registryMu.Lock()
	defer registryMu.Unlock()

	key := strings.ToLower(def.Name)
	if _, exists := registry[key]; exists {
		panic(fmt.Sprintf("type already registered: %s", def.Name))
	}
	registry[key] = def
}

// LookupType resolves a metadata type name. Registered names win; otherwise
// the usual aliases ("str", "int64", "datetime64[ns]", ...) map to the
// built-in definition for their kind.
func LookupType(name string) (TypeDefinition, bool) {
	key := strings.ToLower(strings.TrimSpace(name))

	registryMu.RLock()
	def, ok := registry[key]
	registryMu.RUnlock()
	if ok {
		return def, true
	}

	kind, err := table.ParseKind(key)
	if err != nil {
		return TypeDefinition{}, false
	}

	registryMu.RLock()
	defer registryMu.RUnlock()
	def, ok = registry[kind.String()]
	return def, ok
}

// Types returns all registered type definitions sorted by name.
func Types() []TypeDefinition {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]TypeDefinition, 0, len(registry))
	for _, def := range registry {
		result = append(result, def)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result
}

// CastValue converts v with def. Nulls stay null in the target kind.
func CastValue(v table.Value, def TypeDefinition) (table.Value, bool) {
	if v.Null {
		return table.NullOf(def.Kind), true
	}
	return def.Cast(v)
}

func castText(v table.Value) (table.Value, bool) {
	return table.Text(v.String()), true
}

func castInt(v table.Value) (table.Value, bool) {
	switch v.Kind {
	case table.KindInt:
		return v, true
	case table.KindFloat:
		i, ok := floatToInt(v.Float)
		return table.Int(i), ok
	case table.KindBool:
		if v.Bool {
			return table.Int(1), true
		}
		return table.Int(0), true
	case table.KindText:
		i, ok := ToInt(v.Str)
		return table.Int(i), ok
	default:
		return table.Value{}, false
	}
}

func castFloat(v table.Value) (table.Value, bool) {
	switch v.Kind {
	case table.KindFloat:
		return v, true
	case table.KindInt:
		return table.Float(float64(v.Int)), true
	case table.KindBool:
		if v.Bool {
			return table.Float(1), true
		}
		return table.Float(0), true
	case table.KindText:
		f, ok := ToFloat(v.Str)
		return table.Float(f), ok
	default:
		return table.Value{}, false
	}
}

func castDatetime(v table.Value) (table.Value, bool) {
	switch v.Kind {
	case table.KindDatetime:
		return v, true
	case table.KindText:
		t, ok := ToDatetime(v.Str)
		return table.Time(t), ok
	default:
		return table.Value{}, false
	}
}

func castBool(v table.Value) (table.Value, bool) {
	switch v.Kind {
	case table.KindBool:
		return v, true
	case table.KindInt:
		switch v.Int {
		case 0:
			return table.Bool(false), true
		case 1:
			return table.Bool(true), true
		}
		return table.Value{}, false
	case table.KindText:
		b, ok := ToBool(v.Str)
		return table.Bool(b), ok
	default:
		return table.Value{}, false
	}
}
