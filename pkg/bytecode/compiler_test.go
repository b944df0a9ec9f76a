package bytecode

import (
	"reflect"
	"strings"
	"testing"

	"github.com/ferrite-lang/ferrite/pkg/ast"
)

// AST builder helpers shared by the compiler and VM tests.

func intLit(v int64) *ast.IntLit        { return &ast.IntLit{Value: v} }
func floatLit(v float64) *ast.FloatLit  { return &ast.FloatLit{Value: v} }
func boolLit(v bool) *ast.BoolLit       { return &ast.BoolLit{Value: v} }
func stringLit(v string) *ast.StringLit { return &ast.StringLit{Value: v} }
func varRef(name string) *ast.VarRef    { return &ast.VarRef{Name: name} }

func binary(op ast.BinOp, l, r ast.Expr) *ast.BinaryExpr {
	return &ast.BinaryExpr{Op: op, Left: l, Right: r}
}

func call(callee string, args ...ast.Expr) *ast.CallExpr {
	return &ast.CallExpr{Callee: callee, Args: args}
}

func varDecl(name string, typ ast.Type, init ast.Expr) *ast.VarDecl {
	return &ast.VarDecl{Name: name, DeclType: typ, Init: init}
}

func ret(v ast.Expr) *ast.ReturnStmt { return &ast.ReturnStmt{Value: v} }

func fnDecl(name string, params []ast.Param, retType ast.Type, body ...ast.Stmt) *ast.FunctionDecl {
	return &ast.FunctionDecl{Name: name, Params: params, Return: retType, Body: body}
}

func file(fns ...*ast.FunctionDecl) *ast.File {
	return &ast.File{Functions: fns}
}

func mustCompile(t *testing.T, f *ast.File) *Program {
	t.Helper()
	program, errs := CompileFile(f)
	if len(errs) > 0 {
		t.Fatalf("CompileFile failed: %v", errs[0])
	}
	if err := program.Validate(); err != nil {
		t.Fatalf("compiled program failed validation: %v", err)
	}
	return program
}

func TestCompileVarDeclArithmetic(t *testing.T) {
	// var x: int = 2 + 3 * 4; return x;
	f := file(fnDecl("main", nil, ast.TypeInt,
		varDecl("x", ast.TypeInt,
			binary(ast.OpAdd, intLit(2), binary(ast.OpMul, intLit(3), intLit(4)))),
		ret(varRef("x")),
	))

	program := mustCompile(t, f)
	fn := program.Lookup("main")
	if fn == nil {
		t.Fatal("main not compiled")
	}
	if fn.NumRegisters == 0 {
		t.Error("expected a nonzero register window")
	}
	last := fn.Code[len(fn.Code)-1]
	if last.Op != OpReturn {
		t.Errorf("expected RETURN last, got %s", last.Op)
	}
}

func TestCompileDeterministic(t *testing.T) {
	build := func() *ast.File {
		return file(
			fnDecl("add", []ast.Param{{Name: "a", Type: ast.TypeInt}, {Name: "b", Type: ast.TypeInt}},
				ast.TypeInt,
				ret(binary(ast.OpAdd, varRef("a"), varRef("b"))),
			),
			fnDecl("main", nil, ast.TypeInt,
				varDecl("x", ast.TypeInt, call("add", intLit(3), intLit(4))),
				varDecl("y", ast.TypeInt, call("add", varRef("x"), intLit(100000))),
				ret(varRef("y")),
			),
		)
	}

	first := mustCompile(t, build())
	second := mustCompile(t, build())
	if !reflect.DeepEqual(first, second) {
		t.Error("compiling the same file twice produced different programs")
	}

	firstBytes, err := MarshalProgram(first)
	if err != nil {
		t.Fatalf("MarshalProgram: %v", err)
	}
	secondBytes, err := MarshalProgram(second)
	if err != nil {
		t.Fatalf("MarshalProgram: %v", err)
	}
	if string(firstBytes) != string(secondBytes) {
		t.Error("serialized programs differ between identical compilations")
	}
}

func TestCompileConstantDedup(t *testing.T) {
	// The same literal appearing twice lands in the pool once, at its
	// first-seen index.
	f := file(fnDecl("main", nil, ast.TypeString,
		varDecl("a", ast.TypeString, stringLit("hello")),
		varDecl("b", ast.TypeString, stringLit("world")),
		varDecl("c", ast.TypeString, stringLit("hello")),
		ret(varRef("a")),
	))

	fn := mustCompile(t, f).Lookup("main")
	if len(fn.Constants) != 2 {
		t.Fatalf("expected 2 constants, got %d: %v", len(fn.Constants), fn.Constants)
	}
	if s, _ := fn.Constants[0].Str(); s != "hello" {
		t.Errorf("constant 0 = %s, want \"hello\"", fn.Constants[0])
	}
	if s, _ := fn.Constants[1].Str(); s != "world" {
		t.Errorf("constant 1 = %s, want \"world\"", fn.Constants[1])
	}
}

func TestCompileLargeIntUsesConstantPool(t *testing.T) {
	f := file(fnDecl("main", nil, ast.TypeInt,
		ret(intLit(1 << 20)),
	))
	fn := mustCompile(t, f).Lookup("main")
	if fn.Code[0].Op != OpLoadConst {
		t.Errorf("expected LOAD_CONST for large literal, got %s", fn.Code[0].Op)
	}
	if len(fn.Constants) != 1 || !fn.Constants[0].Equal(IntValue(1<<20)) {
		t.Errorf("expected constant pool [1048576], got %v", fn.Constants)
	}
}

func TestCompileSmallIntUsesImmediate(t *testing.T) {
	f := file(fnDecl("main", nil, ast.TypeInt,
		ret(intLit(42)),
	))
	fn := mustCompile(t, f).Lookup("main")
	if fn.Code[0].Op != OpLoadInt {
		t.Errorf("expected LOAD_INT for small literal, got %s", fn.Code[0].Op)
	}
	if len(fn.Constants) != 0 {
		t.Errorf("expected empty constant pool, got %v", fn.Constants)
	}
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name string
		fn   *ast.FunctionDecl
		want string
	}{
		{
			"undeclared variable",
			fnDecl("main", nil, ast.TypeInt, ret(varRef("nope"))),
			"undeclared variable nope",
		},
		{
			"undeclared function",
			fnDecl("main", nil, ast.TypeInt, ret(call("nope"))),
			"undeclared function nope",
		},
		{
			"declared type mismatch",
			fnDecl("main", nil, ast.TypeInt,
				varDecl("x", ast.TypeInt, boolLit(true)),
				ret(varRef("x"))),
			"cannot initialize int x with bool value",
		},
		{
			"return type mismatch",
			fnDecl("main", nil, ast.TypeInt, ret(boolLit(true))),
			"cannot return bool value",
		},
		{
			"operand type mismatch",
			fnDecl("main", nil, ast.TypeInt,
				ret(binary(ast.OpAdd, intLit(1), floatLit(2.0)))),
			"mismatched operand types int and float",
		},
		{
			"modulo on floats",
			fnDecl("main", nil, ast.TypeFloat,
				ret(binary(ast.OpMod, floatLit(1.0), floatLit(2.0)))),
			"operator % not defined for float",
		},
		{
			"missing return",
			fnDecl("main", nil, ast.TypeInt,
				varDecl("x", ast.TypeInt, intLit(1))),
			"missing return",
		},
		{
			"condition not bool",
			fnDecl("main", nil, ast.TypeInt,
				&ast.IfStmt{Cond: intLit(1), Then: []ast.Stmt{ret(intLit(1))}},
				ret(intLit(0))),
			"if condition is int",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, errs := CompileFile(file(tt.fn))
			if len(errs) == 0 {
				t.Fatal("expected a compile error")
			}
			if !strings.Contains(errs[0].Message, tt.want) {
				t.Errorf("error %q does not mention %q", errs[0].Message, tt.want)
			}
		})
	}
}

func TestCompileArityMismatch(t *testing.T) {
	f := file(
		fnDecl("add", []ast.Param{{Name: "a", Type: ast.TypeInt}, {Name: "b", Type: ast.TypeInt}},
			ast.TypeInt,
			ret(binary(ast.OpAdd, varRef("a"), varRef("b"))),
		),
		fnDecl("main", nil, ast.TypeInt,
			ret(call("add", intLit(3))),
		),
	)
	_, errs := CompileFile(f)
	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %d", len(errs))
	}
	if !strings.Contains(errs[0].Message, "takes 2 arguments, got 1") {
		t.Errorf("unexpected error: %v", errs[0])
	}
}

func TestCompileFailureDoesNotBlockOthers(t *testing.T) {
	f := file(
		fnDecl("bad", nil, ast.TypeInt, ret(varRef("nope"))),
		fnDecl("good", nil, ast.TypeInt, ret(intLit(1))),
	)
	program, errs := CompileFile(f)
	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %d", len(errs))
	}
	if errs[0].Function != "bad" {
		t.Errorf("error attributed to %q, want bad", errs[0].Function)
	}
	if program.Lookup("bad") != nil {
		t.Error("failing function should produce no Function")
	}
	if program.Lookup("good") == nil {
		t.Error("good should still compile")
	}
}

func TestCompileRedeclaredFunction(t *testing.T) {
	f := file(
		fnDecl("twice", nil, ast.TypeInt, ret(intLit(1))),
		fnDecl("twice", nil, ast.TypeInt, ret(intLit(2))),
	)
	program, errs := CompileFile(f)
	if len(errs) != 1 || !strings.Contains(errs[0].Message, "redeclared") {
		t.Fatalf("expected a redeclaration error, got %v", errs)
	}
	fn := program.Lookup("twice")
	if fn == nil {
		t.Fatal("first declaration should survive")
	}
	if fn.Code[0].B != 1 {
		t.Error("first declaration's body should win")
	}
}

func TestCompileBranchPatching(t *testing.T) {
	// if (flag) { return 1; } else { return 2; }
	f := file(fnDecl("pick", []ast.Param{{Name: "flag", Type: ast.TypeBool}}, ast.TypeInt,
		&ast.IfStmt{
			Cond: varRef("flag"),
			Then: []ast.Stmt{ret(intLit(1))},
			Else: []ast.Stmt{ret(intLit(2))},
		},
	))

	fn := mustCompile(t, f).Lookup("pick")
	var sawBranch bool
	for pc, ins := range fn.Code {
		if ins.Op == OpBranchFalse {
			sawBranch = true
			if int(ins.B) <= pc || int(ins.B) >= len(fn.Code) {
				t.Errorf("branch target %d not patched forward within code of length %d",
					ins.B, len(fn.Code))
			}
		}
	}
	if !sawBranch {
		t.Error("expected a BRANCH_FALSE in the compiled if")
	}
}

func TestCompileRegisterBound(t *testing.T) {
	// Validation enforces that every register operand stays inside the
	// declared window; a deep expression exercises allocator reuse.
	deep := ast.Expr(intLit(1))
	for i := 2; i <= 20; i++ {
		deep = binary(ast.OpAdd, deep, intLit(int64(i)))
	}
	f := file(fnDecl("main", nil, ast.TypeInt, ret(deep)))

	fn := mustCompile(t, f).Lookup("main")
	// Left-leaning addition needs only a handful of live registers at once.
	if fn.NumRegisters > 4 {
		t.Errorf("register window %d, expected allocator reuse to keep it small", fn.NumRegisters)
	}
}

func TestCompileZeroArgCallInWindow(t *testing.T) {
	// A zero-argument call compiled after temps have been freed must keep
	// every CALL operand inside the register window, and the serialized
	// image must load back: validation reruns on load, so an out-of-window
	// operand would make the cache reject the compiler's own output.
	f := file(
		fnDecl("seven", nil, ast.TypeInt, ret(intLit(7))),
		fnDecl("main", nil, ast.TypeInt,
			varDecl("x", ast.TypeInt, intLit(1)),
			&ast.AssignStmt{Name: "x", Value: intLit(2)},
			ret(call("seven")),
		),
	)

	program := mustCompile(t, f)
	fn := program.Lookup("main")
	for pc, ins := range fn.Code {
		if ins.Op != OpCall {
			continue
		}
		if ins.C != 0 {
			t.Errorf("pc %d: zero-argument CALL has C=%d, want 0", pc, ins.C)
		}
		if int(ins.C) >= fn.NumRegisters {
			t.Errorf("pc %d: CALL operand %d outside window [0, %d)", pc, ins.C, fn.NumRegisters)
		}
	}

	image, err := MarshalProgram(program)
	if err != nil {
		t.Fatalf("MarshalProgram: %v", err)
	}
	loaded, err := UnmarshalProgram(image)
	if err != nil {
		t.Fatalf("UnmarshalProgram rejects the compiler's own output: %v", err)
	}
	if got := runEntry(t, loaded, "main", nil); !got.Equal(IntValue(7)) {
		t.Errorf("main() = %s, want 7", got)
	}
}

func TestCompileScopeReclaimsRegisters(t *testing.T) {
	// A variable declared inside a block releases its register at the end
	// of the block, so a later declaration reuses it.
	f := file(fnDecl("main", nil, ast.TypeInt,
		&ast.IfStmt{Cond: boolLit(true), Then: []ast.Stmt{
			varDecl("a", ast.TypeInt, intLit(1)),
		}},
		varDecl("b", ast.TypeInt, intLit(2)),
		ret(varRef("b")),
	))

	fn := mustCompile(t, f).Lookup("main")
	if fn.NumRegisters != 2 {
		t.Errorf("register window %d, want 2: block-scoped a should free its register for b",
			fn.NumRegisters)
	}
}

func TestCompileReturnOfVoidCall(t *testing.T) {
	// return f(); where f is void forwards no value.
	f := file(
		fnDecl("noop", nil, ast.TypeVoid),
		fnDecl("main", nil, ast.TypeVoid, ret(call("noop"))),
	)

	program := mustCompile(t, f)
	fn := program.Lookup("main")
	last := fn.Code[len(fn.Code)-1]
	if last.Op != OpReturnVoid {
		t.Errorf("expected RETURN_VOID last, got %s", last.Op)
	}
	runEntry(t, program, "main", nil)
}

func TestCompileParamsPinned(t *testing.T) {
	f := file(fnDecl("add",
		[]ast.Param{{Name: "a", Type: ast.TypeInt}, {Name: "b", Type: ast.TypeInt}},
		ast.TypeInt,
		varDecl("c", ast.TypeInt, binary(ast.OpAdd, varRef("a"), varRef("b"))),
		ret(varRef("c")),
	))
	fn := mustCompile(t, f).Lookup("add")
	for _, ins := range fn.Code {
		if ins.Op == OpMove && ins.A <= 1 {
			t.Errorf("instruction writes parameter register r%d", ins.A)
		}
	}
}
