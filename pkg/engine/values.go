package engine

import (
	"fmt"
	"sort"
)

// Kind identifies the shape of a Value.
type Kind uint8

const (
	// KindNull is the null/absent value.
	KindNull Kind = iota

	// KindBool is a boolean scalar.
	KindBool

	// KindInt is a 64-bit integer scalar.
	KindInt

	// KindFloat is a 64-bit floating-point scalar.
	KindFloat

	// KindString is a string scalar.
	KindString

	// KindList is an ordered sequence of values.
	KindList

	// KindMap is a mapping from string keys to values.
	KindMap
)

// String returns the kind name for error messages.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return "unknown"
	}
}

// Value is a tagged union over the shapes an argument specification can
// take: a scalar (null, bool, int, float, string), an ordered sequence of
// values, or a mapping from string keys to values. Recursive resolution
// pattern-matches on Kind instead of type-inspecting interface{} trees.
type Value struct {
	kind     Kind
	boolVal  bool
	intVal   int64
	floatVal float64
	strVal   string
	listVal  []Value
	mapVal   map[string]Value
}

// Null returns the null value.
func Null() Value {
	return Value{kind: KindNull}
}

// Bool returns a boolean scalar value.
func Bool(b bool) Value {
	return Value{kind: KindBool, boolVal: b}
}

// Int returns an integer scalar value.
func Int(i int64) Value {
	return Value{kind: KindInt, intVal: i}
}

// Float returns a floating-point scalar value.
func Float(f float64) Value {
	return Value{kind: KindFloat, floatVal: f}
}

// String returns a string scalar value.
func String(s string) Value {
	return Value{kind: KindString, strVal: s}
}

// List returns a sequence value over the given elements.
func List(elems ...Value) Value {
	return Value{kind: KindList, listVal: elems}
}

// Map returns a mapping value over the given entries.
func Map(entries map[string]Value) Value {
	if entries == nil {
		entries = make(map[string]Value)
	}
	return Value{kind: KindMap, mapVal: entries}
}

// FromInterface converts a decoded interface{} tree (as produced by YAML or
// JSON unmarshalling) into a Value. Integer widths normalize to int64 and
// float32 to float64; map keys must be strings.
func FromInterface(v interface{}) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(val), nil
	case int:
		return Int(int64(val)), nil
	case int32:
		return Int(int64(val)), nil
	case int64:
		return Int(val), nil
	case uint:
		return Int(int64(val)), nil
	case uint64:
		return Int(int64(val)), nil
	case float32:
		return Float(float64(val)), nil
	case float64:
		return Float(val), nil
	case string:
		return String(val), nil
	case []interface{}:
		elems := make([]Value, len(val))
		for i, item := range val {
			elem, err := FromInterface(item)
			if err != nil {
				return Null(), err
			}
			elems[i] = elem
		}
		return List(elems...), nil
	case map[string]interface{}:
		entries := make(map[string]Value, len(val))
		for k, item := range val {
			entry, err := FromInterface(item)
			if err != nil {
				return Null(), err
			}
			entries[k] = entry
		}
		return Map(entries), nil
	case map[interface{}]interface{}:
		entries := make(map[string]Value, len(val))
		for k, item := range val {
			key, ok := k.(string)
			if !ok {
				return Null(), fmt.Errorf("map key must be a string, got %T", k)
			}
			entry, err := FromInterface(item)
			if err != nil {
				return Null(), err
			}
			entries[key] = entry
		}
		return Map(entries), nil
	default:
		return Null(), fmt.Errorf("unsupported value type: %T", v)
	}
}

// MustFromInterface converts like FromInterface and panics on unsupported
// types. Intended for literals in tests and built-in plugin tables.
func MustFromInterface(v interface{}) Value {
	val, err := FromInterface(v)
	if err != nil {
		panic(err)
	}
	return val
}

// Interface converts the value back into a plain interface{} tree.
func (v Value) Interface() interface{} {
	switch v.kind {
	case KindNull:
		return nil
	case KindBool:
		return v.boolVal
	case KindInt:
		return v.intVal
	case KindFloat:
		return v.floatVal
	case KindString:
		return v.strVal
	case KindList:
		out := make([]interface{}, len(v.listVal))
		for i, elem := range v.listVal {
			out[i] = elem.Interface()
		}
		return out
	case KindMap:
		out := make(map[string]interface{}, len(v.mapVal))
		for k, elem := range v.mapVal {
			out[k] = elem.Interface()
		}
		return out
	default:
		return nil
	}
}

// Kind returns the shape of the value.
func (v Value) Kind() Kind {
	return v.kind
}

// IsNull reports whether the value is null.
func (v Value) IsNull() bool {
	return v.kind == KindNull
}

// BoolVal returns the boolean scalar. Valid only for KindBool.
func (v Value) BoolVal() bool {
	return v.boolVal
}

// IntVal returns the integer scalar. Valid only for KindInt.
func (v Value) IntVal() int64 {
	return v.intVal
}

// FloatVal returns the floating-point scalar. Valid only for KindFloat.
func (v Value) FloatVal() float64 {
	return v.floatVal
}

// StringVal returns the string scalar. Valid only for KindString.
func (v Value) StringVal() string {
	return v.strVal
}

// ListVal returns the sequence elements. Valid only for KindList.
func (v Value) ListVal() []Value {
	return v.listVal
}

// MapVal returns the mapping entries. Valid only for KindMap.
func (v Value) MapVal() map[string]Value {
	return v.mapVal
}

// MapKeys returns the mapping keys in sorted order, keeping iteration
// deterministic wherever entry order could leak into behavior.
func (v Value) MapKeys() []string {
	keys := make([]string, 0, len(v.mapVal))
	for k := range v.mapVal {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Equal reports deep equality between two values.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.boolVal == other.boolVal
	case KindInt:
		return v.intVal == other.intVal
	case KindFloat:
		return v.floatVal == other.floatVal
	case KindString:
		return v.strVal == other.strVal
	case KindList:
		if len(v.listVal) != len(other.listVal) {
			return false
		}
		for i := range v.listVal {
			if !v.listVal[i].Equal(other.listVal[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.mapVal) != len(other.mapVal) {
			return false
		}
		for k, elem := range v.mapVal {
			otherElem, ok := other.mapVal[k]
			if !ok || !elem.Equal(otherElem) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// GoString renders the value for debug output and error messages.
func (v Value) GoString() string {
	return fmt.Sprintf("%v", v.Interface())
}
