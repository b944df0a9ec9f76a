package compiler

import (
	"fmt"

	"github.com/ferrite-lang/ferrite/pkg/ast"
)

// SemanticError is a type or scope error found while analyzing the AST.
type SemanticError struct {
	Pos     ast.Position
	Message string
}

func (e *SemanticError) Error() string {
	return fmt.Sprintf("%s: %s", e.Pos, e.Message)
}

// Analyze type-checks the file and annotates the tree: every VarRef,
// BinaryExpr, UnaryExpr and CallExpr gets its static type filled in. All
// errors are collected rather than stopping at the first, so a source file
// reports every problem in one pass.
func Analyze(file *ast.File) []*SemanticError {
	a := &analyzer{sigs: make(map[string]*ast.FunctionDecl)}

	for _, fn := range file.Functions {
		if _, dup := a.sigs[fn.Name]; dup {
			a.errorf(fn.Pos(), "function %s redeclared", fn.Name)
			continue
		}
		a.sigs[fn.Name] = fn
	}

	for _, fn := range file.Functions {
		if a.sigs[fn.Name] != fn {
			continue // redeclaration, skip the duplicate body
		}
		a.checkFunction(fn)
	}
	return a.errs
}

type analyzer struct {
	sigs   map[string]*ast.FunctionDecl
	fn     *ast.FunctionDecl
	scopes []map[string]ast.Type
	errs   []*SemanticError
}

func (a *analyzer) errorf(pos ast.Position, format string, args ...any) {
	a.errs = append(a.errs, &SemanticError{Pos: pos, Message: fmt.Sprintf(format, args...)})
}

func (a *analyzer) pushScope() { a.scopes = append(a.scopes, make(map[string]ast.Type)) }
func (a *analyzer) popScope()  { a.scopes = a.scopes[:len(a.scopes)-1] }

func (a *analyzer) lookup(name string) (ast.Type, bool) {
	for i := len(a.scopes) - 1; i >= 0; i-- {
		if t, ok := a.scopes[i][name]; ok {
			return t, true
		}
	}
	return ast.TypeInvalid, false
}

func (a *analyzer) declare(pos ast.Position, name string, typ ast.Type) {
	top := a.scopes[len(a.scopes)-1]
	if _, exists := top[name]; exists {
		a.errorf(pos, "variable %s redeclared in this scope", name)
		return
	}
	top[name] = typ
}

func (a *analyzer) checkFunction(fn *ast.FunctionDecl) {
	a.fn = fn
	a.scopes = nil
	a.pushScope()
	for _, p := range fn.Params {
		a.declare(fn.Pos(), p.Name, p.Type)
	}
	a.checkBlock(fn.Body)
	a.popScope()

	if fn.Return != ast.TypeVoid && !blockReturns(fn.Body) {
		a.errorf(fn.Pos(), "missing return in function %s returning %s", fn.Name, fn.Return)
	}
}

// blockReturns reports whether every path through the block definitely
// returns.
func blockReturns(body []ast.Stmt) bool {
	if len(body) == 0 {
		return false
	}
	switch last := body[len(body)-1].(type) {
	case *ast.ReturnStmt:
		return true
	case *ast.IfStmt:
		return last.Else != nil && blockReturns(last.Then) && blockReturns(last.Else)
	default:
		return false
	}
}

func (a *analyzer) checkBlock(body []ast.Stmt) {
	a.pushScope()
	for _, stmt := range body {
		a.checkStmt(stmt)
	}
	a.popScope()
}

func (a *analyzer) checkStmt(stmt ast.Stmt) {
	switch s := stmt.(type) {
	case *ast.VarDecl:
		typ := a.checkExpr(s.Init)
		if typ != ast.TypeInvalid && typ != s.DeclType {
			a.errorf(s.Pos(), "cannot initialize %s %s with %s value", s.DeclType, s.Name, typ)
		}
		a.declare(s.Pos(), s.Name, s.DeclType)

	case *ast.AssignStmt:
		declared, ok := a.lookup(s.Name)
		if !ok {
			a.errorf(s.Pos(), "undeclared variable %s", s.Name)
			declared = ast.TypeInvalid
		}
		typ := a.checkExpr(s.Value)
		if ok && typ != ast.TypeInvalid && typ != declared {
			a.errorf(s.Pos(), "cannot assign %s value to %s %s", typ, declared, s.Name)
		}

	case *ast.IfStmt:
		a.checkCond(s.Cond, "if")
		a.checkBlock(s.Then)
		if s.Else != nil {
			a.checkBlock(s.Else)
		}

	case *ast.WhileStmt:
		a.checkCond(s.Cond, "while")
		a.checkBlock(s.Body)

	case *ast.ReturnStmt:
		if s.Value == nil {
			if a.fn.Return != ast.TypeVoid {
				a.errorf(s.Pos(), "missing return value, function returns %s", a.fn.Return)
			}
			return
		}
		typ := a.checkExpr(s.Value)
		if typ != ast.TypeInvalid && typ != a.fn.Return {
			a.errorf(s.Pos(), "cannot return %s value, function returns %s", typ, a.fn.Return)
		}

	case *ast.ExprStmt:
		a.checkExpr(s.X)
	}
}

func (a *analyzer) checkCond(cond ast.Expr, what string) {
	typ := a.checkExpr(cond)
	if typ != ast.TypeInvalid && typ != ast.TypeBool {
		a.errorf(cond.Pos(), "%s condition is %s, want bool", what, typ)
	}
}

// checkExpr returns the expression's type, annotating the node on the way
// out. TypeInvalid means an error was already reported underneath.
func (a *analyzer) checkExpr(e ast.Expr) ast.Type {
	switch x := e.(type) {
	case *ast.IntLit, *ast.FloatLit, *ast.BoolLit, *ast.StringLit:
		return e.Type()

	case *ast.VarRef:
		typ, ok := a.lookup(x.Name)
		if !ok {
			a.errorf(x.Pos(), "undeclared variable %s", x.Name)
			return ast.TypeInvalid
		}
		x.VarType = typ
		return typ

	case *ast.BinaryExpr:
		return a.checkBinary(x)

	case *ast.UnaryExpr:
		return a.checkUnary(x)

	case *ast.CallExpr:
		return a.checkCall(x)

	default:
		a.errorf(e.Pos(), "unsupported expression %T", e)
		return ast.TypeInvalid
	}
}

func (a *analyzer) checkBinary(x *ast.BinaryExpr) ast.Type {
	lt := a.checkExpr(x.Left)
	rt := a.checkExpr(x.Right)
	if lt == ast.TypeInvalid || rt == ast.TypeInvalid {
		return ast.TypeInvalid
	}
	if lt != rt {
		a.errorf(x.Pos(), "operator %s has mismatched operand types %s and %s", x.Op, lt, rt)
		return ast.TypeInvalid
	}

	switch {
	case x.Op.IsArithmetic():
		valid := lt == ast.TypeInt || lt == ast.TypeFloat ||
			(x.Op == ast.OpAdd && lt == ast.TypeString)
		if x.Op == ast.OpMod && lt != ast.TypeInt {
			valid = false
		}
		if !valid {
			a.errorf(x.Pos(), "operator %s not defined for %s", x.Op, lt)
			return ast.TypeInvalid
		}
		x.ResultType = lt

	case x.Op.IsComparison():
		ordered := lt == ast.TypeInt || lt == ast.TypeFloat
		equality := x.Op == ast.OpEq || x.Op == ast.OpNe
		if !ordered && !equality {
			a.errorf(x.Pos(), "operator %s not defined for %s", x.Op, lt)
			return ast.TypeInvalid
		}
		x.ResultType = ast.TypeBool

	case x.Op.IsLogical():
		if lt != ast.TypeBool {
			a.errorf(x.Pos(), "operator %s not defined for %s", x.Op, lt)
			return ast.TypeInvalid
		}
		x.ResultType = ast.TypeBool
	}
	return x.ResultType
}

func (a *analyzer) checkUnary(x *ast.UnaryExpr) ast.Type {
	typ := a.checkExpr(x.Operand)
	if typ == ast.TypeInvalid {
		return ast.TypeInvalid
	}
	switch x.Op {
	case ast.OpNeg:
		if typ != ast.TypeInt && typ != ast.TypeFloat {
			a.errorf(x.Pos(), "operator - not defined for %s", typ)
			return ast.TypeInvalid
		}
	case ast.OpNot:
		if typ != ast.TypeBool {
			a.errorf(x.Pos(), "operator ! not defined for %s", typ)
			return ast.TypeInvalid
		}
	}
	x.ResultType = typ
	return typ
}

func (a *analyzer) checkCall(x *ast.CallExpr) ast.Type {
	fn, ok := a.sigs[x.Callee]
	if !ok {
		a.errorf(x.Pos(), "call to undeclared function %s", x.Callee)
		return ast.TypeInvalid
	}
	if len(x.Args) != len(fn.Params) {
		a.errorf(x.Pos(), "%s takes %d arguments, got %d", x.Callee, len(fn.Params), len(x.Args))
		return ast.TypeInvalid
	}
	for i, arg := range x.Args {
		typ := a.checkExpr(arg)
		if typ != ast.TypeInvalid && typ != fn.Params[i].Type {
			a.errorf(arg.Pos(), "argument %d of %s is %s, want %s",
				i+1, x.Callee, typ, fn.Params[i].Type)
		}
	}
	x.ResultType = fn.Return
	return fn.Return
}
