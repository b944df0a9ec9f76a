package compiler

import (
	"math"
	"strings"
	"testing"

	"github.com/ferrite-lang/ferrite/pkg/ast"
)

func parseOne(t *testing.T, src string) *ast.FunctionDecl {
	t.Helper()
	f, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(f.Functions) != 1 {
		t.Fatalf("parsed %d functions, want 1", len(f.Functions))
	}
	return f.Functions[0]
}

func TestParseFunctionDecl(t *testing.T) {
	fn := parseOne(t, `
		fn add(a: int, b: int): int {
			var c: int = a + b;
			return c;
		}
	`)

	if fn.Name != "add" {
		t.Errorf("name = %q, want add", fn.Name)
	}
	if len(fn.Params) != 2 || fn.Params[0].Name != "a" || fn.Params[0].Type != ast.TypeInt {
		t.Errorf("params = %+v", fn.Params)
	}
	if fn.Return != ast.TypeInt {
		t.Errorf("return type = %s, want int", fn.Return)
	}
	if len(fn.Body) != 2 {
		t.Fatalf("body has %d statements, want 2", len(fn.Body))
	}
	if fn.Signature() != "add(int, int): int" {
		t.Errorf("signature = %q", fn.Signature())
	}
}

func TestParseVoidReturnTypeOmitted(t *testing.T) {
	fn := parseOne(t, `fn main() { }`)
	if fn.Return != ast.TypeVoid {
		t.Errorf("return type = %s, want void", fn.Return)
	}
}

func TestParsePrecedence(t *testing.T) {
	fn := parseOne(t, `fn main(): int { return 2 + 3 * 4; }`)

	retStmt := fn.Body[0].(*ast.ReturnStmt)
	add, ok := retStmt.Value.(*ast.BinaryExpr)
	if !ok || add.Op != ast.OpAdd {
		t.Fatalf("root = %+v, want +", retStmt.Value)
	}
	if lit, ok := add.Left.(*ast.IntLit); !ok || lit.Value != 2 {
		t.Errorf("left of + should be 2, got %+v", add.Left)
	}
	mul, ok := add.Right.(*ast.BinaryExpr)
	if !ok || mul.Op != ast.OpMul {
		t.Fatalf("right of + should be *, got %+v", add.Right)
	}
}

func TestParseParensOverridePrecedence(t *testing.T) {
	fn := parseOne(t, `fn main(): int { return (2 + 3) * 4; }`)
	root := fn.Body[0].(*ast.ReturnStmt).Value.(*ast.BinaryExpr)
	if root.Op != ast.OpMul {
		t.Errorf("root op = %s, want *", root.Op)
	}
}

func TestParseLeftAssociative(t *testing.T) {
	fn := parseOne(t, `fn main(): int { return 10 - 3 - 2; }`)
	root := fn.Body[0].(*ast.ReturnStmt).Value.(*ast.BinaryExpr)
	if root.Op != ast.OpSub {
		t.Fatalf("root op = %s", root.Op)
	}
	if _, ok := root.Left.(*ast.BinaryExpr); !ok {
		t.Error("subtraction should associate left")
	}
}

func TestParseLogicalPrecedence(t *testing.T) {
	// a || b && c parses as a || (b && c)
	fn := parseOne(t, `fn main(a: bool, b: bool, c: bool): bool { return a || b && c; }`)
	root := fn.Body[0].(*ast.ReturnStmt).Value.(*ast.BinaryExpr)
	if root.Op != ast.OpOr {
		t.Fatalf("root op = %s, want ||", root.Op)
	}
	if right, ok := root.Right.(*ast.BinaryExpr); !ok || right.Op != ast.OpAnd {
		t.Error("&& should bind tighter than ||")
	}
}

func TestParseNegativeLiteralFolded(t *testing.T) {
	fn := parseOne(t, `fn main(): int { return -5; }`)
	lit, ok := fn.Body[0].(*ast.ReturnStmt).Value.(*ast.IntLit)
	if !ok || lit.Value != -5 {
		t.Errorf("expected folded -5, got %+v", fn.Body[0].(*ast.ReturnStmt).Value)
	}
}

func TestParseMostNegativeIntLiteral(t *testing.T) {
	// The magnitude of the most negative int64 overflows on its own; the
	// sign has to be parsed with the digits.
	fn := parseOne(t, `fn main(): int { return -9223372036854775808; }`)
	lit, ok := fn.Body[0].(*ast.ReturnStmt).Value.(*ast.IntLit)
	if !ok || lit.Value != math.MinInt64 {
		t.Errorf("expected folded MinInt64, got %+v", fn.Body[0].(*ast.ReturnStmt).Value)
	}
}

func TestParseIfElseChain(t *testing.T) {
	fn := parseOne(t, `
		fn sign(x: int): int {
			if (x > 0) {
				return 1;
			} else if (x < 0) {
				return -1;
			} else {
				return 0;
			}
		}
	`)

	ifStmt := fn.Body[0].(*ast.IfStmt)
	if ifStmt.Else == nil {
		t.Fatal("else branch missing")
	}
	nested, ok := ifStmt.Else[0].(*ast.IfStmt)
	if !ok {
		t.Fatal("else if should nest an IfStmt")
	}
	if nested.Else == nil {
		t.Error("nested else missing")
	}
}

func TestParseWhileAndAssign(t *testing.T) {
	fn := parseOne(t, `
		fn count(n: int): int {
			var i: int = 0;
			while (i < n) {
				i = i + 1;
			}
			return i;
		}
	`)
	loop, ok := fn.Body[1].(*ast.WhileStmt)
	if !ok {
		t.Fatalf("statement 1 = %T, want while", fn.Body[1])
	}
	if _, ok := loop.Body[0].(*ast.AssignStmt); !ok {
		t.Errorf("loop body = %T, want assignment", loop.Body[0])
	}
}

func TestParseCallExpr(t *testing.T) {
	fn := parseOne(t, `fn main(): int { return add(3, 4 * 2); }`)
	callExpr, ok := fn.Body[0].(*ast.ReturnStmt).Value.(*ast.CallExpr)
	if !ok {
		t.Fatal("expected a call")
	}
	if callExpr.Callee != "add" || len(callExpr.Args) != 2 {
		t.Errorf("call = %+v", callExpr)
	}
}

func TestParseVoidReturnStatement(t *testing.T) {
	fn := parseOne(t, `fn main() { return; }`)
	retStmt := fn.Body[0].(*ast.ReturnStmt)
	if retStmt.Value != nil {
		t.Error("bare return should have nil value")
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"missing semicolon", `fn main() { var x: int = 1 }`, "expected ;"},
		{"unknown type", `fn main() { var x: quux = 1; }`, "unknown type quux"},
		{"void variable", `fn main() { var x: void = 1; }`, "cannot be void"},
		{"unclosed block", `fn main() { var x: int = 1;`, "unclosed block"},
		{"missing paren", `fn main( { }`, "expected IDENT"},
		{"stray top level", `var x: int = 1;`, "expected fn"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.src)
			if err == nil {
				t.Fatal("expected a parse error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestParseErrorPosition(t *testing.T) {
	_, err := Parse("fn main() {\n  var x: int = ;\n}")
	if err == nil {
		t.Fatal("expected a parse error")
	}
	perr, ok := err.(*ParseError)
	if !ok {
		t.Fatalf("error type = %T, want *ParseError", err)
	}
	if perr.Pos.Line != 2 {
		t.Errorf("error line = %d, want 2", perr.Pos.Line)
	}
}
