package bytecode

import (
	"fmt"
	"strconv"

	"github.com/ferrite-lang/ferrite/pkg/ast"
)

// ValueKind tags the variant held by a Value.
type ValueKind int

const (
	KindInt ValueKind = iota
	KindFloat
	KindBool
	KindString
)

// String returns the source-level name of the kind.
func (k ValueKind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	default:
		return fmt.Sprintf("ValueKind(%d)", int(k))
	}
}

// KindForType maps a static type to the value kind it is represented by at
// runtime. TypeVoid and TypeInvalid have no runtime representation.
func KindForType(t ast.Type) (ValueKind, bool) {
	switch t {
	case ast.TypeInt:
		return KindInt, true
	case ast.TypeFloat:
		return KindFloat, true
	case ast.TypeBool:
		return KindBool, true
	case ast.TypeString:
		return KindString, true
	default:
		return 0, false
	}
}

// Value is a runtime value: exactly one of int, float, bool or string.
// The zero Value is the int 0.
type Value struct {
	kind ValueKind
	i    int64
	f    float64
	b    bool
	s    string
}

// IntValue wraps an int64.
func IntValue(v int64) Value { return Value{kind: KindInt, i: v} }

// FloatValue wraps a float64.
func FloatValue(v float64) Value { return Value{kind: KindFloat, f: v} }

// BoolValue wraps a bool.
func BoolValue(v bool) Value { return Value{kind: KindBool, b: v} }

// StringValue wraps a string.
func StringValue(v string) Value { return Value{kind: KindString, s: v} }

// Kind returns the variant tag.
func (v Value) Kind() ValueKind { return v.kind }

// Int returns the held int64; ok is false if the value is not an int.
func (v Value) Int() (int64, bool) { return v.i, v.kind == KindInt }

// Float returns the held float64; ok is false if the value is not a float.
func (v Value) Float() (float64, bool) { return v.f, v.kind == KindFloat }

// Bool returns the held bool; ok is false if the value is not a bool.
func (v Value) Bool() (bool, bool) { return v.b, v.kind == KindBool }

// Str returns the held string; ok is false if the value is not a string.
func (v Value) Str() (string, bool) { return v.s, v.kind == KindString }

// Equal reports deep equality: same kind, same payload.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindInt:
		return v.i == other.i
	case KindFloat:
		return v.f == other.f
	case KindBool:
		return v.b == other.b
	case KindString:
		return v.s == other.s
	default:
		return false
	}
}

// String renders the value the way the REPL and disassembler print it.
func (v Value) String() string {
	switch v.kind {
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindString:
		return strconv.Quote(v.s)
	default:
		return fmt.Sprintf("<invalid value kind %d>", int(v.kind))
	}
}
