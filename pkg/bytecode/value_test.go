package bytecode

import (
	"testing"

	"github.com/ferrite-lang/ferrite/pkg/ast"
)

func TestValueKinds(t *testing.T) {
	tests := []struct {
		v    Value
		kind ValueKind
		str  string
	}{
		{IntValue(42), KindInt, "42"},
		{IntValue(-7), KindInt, "-7"},
		{FloatValue(2.5), KindFloat, "2.5"},
		{BoolValue(true), KindBool, "true"},
		{BoolValue(false), KindBool, "false"},
		{StringValue("hi"), KindString, `"hi"`},
	}
	for _, tt := range tests {
		if tt.v.Kind() != tt.kind {
			t.Errorf("%s: kind = %s, want %s", tt.str, tt.v.Kind(), tt.kind)
		}
		if tt.v.String() != tt.str {
			t.Errorf("String() = %q, want %q", tt.v.String(), tt.str)
		}
	}
}

func TestValueAccessors(t *testing.T) {
	if v, ok := IntValue(5).Int(); !ok || v != 5 {
		t.Errorf("Int() = %d, %v", v, ok)
	}
	if _, ok := IntValue(5).Float(); ok {
		t.Error("Float() on an int should not be ok")
	}
	if _, ok := BoolValue(true).Str(); ok {
		t.Error("Str() on a bool should not be ok")
	}
	if v, ok := StringValue("x").Str(); !ok || v != "x" {
		t.Errorf("Str() = %q, %v", v, ok)
	}
}

func TestValueEqual(t *testing.T) {
	if !IntValue(1).Equal(IntValue(1)) {
		t.Error("1 != 1")
	}
	if IntValue(1).Equal(FloatValue(1)) {
		t.Error("int 1 should not equal float 1")
	}
	if StringValue("a").Equal(StringValue("b")) {
		t.Error(`"a" should not equal "b"`)
	}
}

func TestZeroValueIsIntZero(t *testing.T) {
	var v Value
	if !v.Equal(IntValue(0)) {
		t.Errorf("zero Value = %s, want 0", v)
	}
}

func TestKindForType(t *testing.T) {
	tests := []struct {
		typ  ast.Type
		kind ValueKind
		ok   bool
	}{
		{ast.TypeInt, KindInt, true},
		{ast.TypeFloat, KindFloat, true},
		{ast.TypeBool, KindBool, true},
		{ast.TypeString, KindString, true},
		{ast.TypeVoid, 0, false},
		{ast.TypeInvalid, 0, false},
	}
	for _, tt := range tests {
		kind, ok := KindForType(tt.typ)
		if ok != tt.ok {
			t.Errorf("KindForType(%s) ok = %v, want %v", tt.typ, ok, tt.ok)
			continue
		}
		if ok && kind != tt.kind {
			t.Errorf("KindForType(%s) = %s, want %s", tt.typ, kind, tt.kind)
		}
	}
}
