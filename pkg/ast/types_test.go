package ast

import "testing"

func TestTypeString(t *testing.T) {
	tests := []struct {
		typ  Type
		want string
	}{
		{TypeVoid, "void"},
		{TypeInt, "int"},
		{TypeFloat, "float"},
		{TypeBool, "bool"},
		{TypeString, "string"},
		{TypeInvalid, "Type(0)"},
		{Type(99), "Type(99)"},
	}
	for _, tt := range tests {
		if got := tt.typ.String(); got != tt.want {
			t.Errorf("Type(%d).String() = %q, want %q", int(tt.typ), got, tt.want)
		}
	}
}

func TestTypeFromName(t *testing.T) {
	for _, name := range []string{"void", "int", "float", "bool", "string"} {
		typ := TypeFromName(name)
		if typ == TypeInvalid {
			t.Errorf("TypeFromName(%q) = TypeInvalid", name)
		}
		if typ.String() != name {
			t.Errorf("TypeFromName(%q).String() = %q", name, typ.String())
		}
	}
	if TypeFromName("int64") != TypeInvalid {
		t.Error("TypeFromName should reject unknown names")
	}
}

func TestBinOpPredicates(t *testing.T) {
	tests := []struct {
		op                              BinOp
		arithmetic, comparison, logical bool
	}{
		{OpAdd, true, false, false},
		{OpMod, true, false, false},
		{OpEq, false, true, false},
		{OpGe, false, true, false},
		{OpAnd, false, false, true},
		{OpOr, false, false, true},
	}
	for _, tt := range tests {
		if got := tt.op.IsArithmetic(); got != tt.arithmetic {
			t.Errorf("%s.IsArithmetic() = %v", tt.op, got)
		}
		if got := tt.op.IsComparison(); got != tt.comparison {
			t.Errorf("%s.IsComparison() = %v", tt.op, got)
		}
		if got := tt.op.IsLogical(); got != tt.logical {
			t.Errorf("%s.IsLogical() = %v", tt.op, got)
		}
	}
}

func TestOpStrings(t *testing.T) {
	if OpLe.String() != "<=" || OpNe.String() != "!=" {
		t.Error("comparison operator rendering wrong")
	}
	if OpNeg.String() != "-" || OpNot.String() != "!" {
		t.Error("unary operator rendering wrong")
	}
	if BinOp(42).String() != "BinOp(42)" {
		t.Error("unknown BinOp rendering wrong")
	}
}

func TestSignature(t *testing.T) {
	tests := []struct {
		fn   *FunctionDecl
		want string
	}{
		{
			&FunctionDecl{Name: "add", Params: []Param{{"a", TypeInt}, {"b", TypeInt}}, Return: TypeInt},
			"add(int, int): int",
		},
		{
			&FunctionDecl{Name: "main", Return: TypeVoid},
			"main(): void",
		},
		{
			&FunctionDecl{Name: "greet", Params: []Param{{"name", TypeString}}, Return: TypeString},
			"greet(string): string",
		},
	}
	for _, tt := range tests {
		if got := tt.fn.Signature(); got != tt.want {
			t.Errorf("Signature() = %q, want %q", got, tt.want)
		}
	}
}

func TestPositionString(t *testing.T) {
	if got := (Position{Line: 3, Col: 14}).String(); got != "3:14" {
		t.Errorf("Position.String() = %q, want \"3:14\"", got)
	}
}

func TestLiteralTypes(t *testing.T) {
	tests := []struct {
		expr Expr
		want Type
	}{
		{&IntLit{Value: 1}, TypeInt},
		{&FloatLit{Value: 1.5}, TypeFloat},
		{&BoolLit{Value: true}, TypeBool},
		{&StringLit{Value: "x"}, TypeString},
	}
	for _, tt := range tests {
		if got := tt.expr.Type(); got != tt.want {
			t.Errorf("%T.Type() = %s, want %s", tt.expr, got, tt.want)
		}
	}

	// Unannotated nodes report TypeInvalid until the semantic pass runs.
	if (&VarRef{Name: "x"}).Type() != TypeInvalid {
		t.Error("unannotated VarRef should have TypeInvalid")
	}
	if (&BinaryExpr{Op: OpAdd}).Type() != TypeInvalid {
		t.Error("unannotated BinaryExpr should have TypeInvalid")
	}
}
