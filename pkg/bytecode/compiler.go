package bytecode

import (
	"fmt"

	"github.com/ferrite-lang/ferrite/pkg/ast"
)

// CompileError is a compilation failure with the source position it
// originates from and the function being compiled.
type CompileError struct {
	Pos      ast.Position
	Function string
	Message  string
}

func (e *CompileError) Error() string {
	if e.Function == "" {
		return fmt.Sprintf("%s: %s", e.Pos, e.Message)
	}
	return fmt.Sprintf("%s: in %s: %s", e.Pos, e.Function, e.Message)
}

// signature is the callable surface of a function visible to call sites.
type signature struct {
	params []ast.Type
	ret    ast.Type
}

// CompileFile compiles every function in the file. A function that fails to
// compile contributes an error and no Function; the remaining functions
// still compile. The returned program is valid whenever errs is empty.
//
// Output is deterministic: compiling the same file twice yields identical
// programs. Nothing here depends on map iteration order.
func CompileFile(file *ast.File) (*Program, []*CompileError) {
	var errs []*CompileError

	sigs := make(map[string]signature, len(file.Functions))
	for _, decl := range file.Functions {
		if _, dup := sigs[decl.Name]; dup {
			errs = append(errs, &CompileError{
				Pos:      decl.Pos(),
				Function: decl.Name,
				Message:  fmt.Sprintf("function %s redeclared", decl.Name),
			})
			continue
		}
		params := make([]ast.Type, len(decl.Params))
		for i, p := range decl.Params {
			params[i] = p.Type
		}
		sigs[decl.Name] = signature{params: params, ret: decl.Return}
	}

	program := NewProgram()
	for _, decl := range file.Functions {
		if existing := program.Lookup(decl.Name); existing != nil {
			continue // redeclaration, reported above
		}
		fn, err := compileFunction(decl, sigs)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		program.Functions[decl.Name] = fn
	}
	return program, errs
}

// funcCompiler holds the state for compiling a single function body.
type funcCompiler struct {
	decl      *ast.FunctionDecl
	sigs      map[string]signature
	regs      *registerAllocator
	code      []Instruction
	constants []Value
	constIdx  map[Value]uint16 // first-seen dedup
	scopes    []map[string]localVar
}

// localVar is a declared variable bound to a fixed register for its scope.
type localVar struct {
	reg uint16
	typ ast.Type
}

func compileFunction(decl *ast.FunctionDecl, sigs map[string]signature) (*Function, *CompileError) {
	fc := &funcCompiler{
		decl:     decl,
		sigs:     sigs,
		regs:     newRegisterAllocator(len(decl.Params)),
		constIdx: make(map[Value]uint16),
	}

	// Parameters occupy registers 0..arity-1 for the whole function.
	fc.pushScope()
	for i, p := range decl.Params {
		if _, exists := fc.lookupVar(p.Name); exists {
			return nil, fc.errf(decl.Pos(), "duplicate parameter %s", p.Name)
		}
		fc.scopes[0][p.Name] = localVar{reg: uint16(i), typ: p.Type}
	}

	// Body declarations live in their own scope and may shadow parameters.
	fc.pushScope()
	for _, stmt := range decl.Body {
		if err := fc.compileStmt(stmt); err != nil {
			return nil, err
		}
	}

	if !blockReturns(decl.Body) {
		if decl.Return != ast.TypeVoid {
			return nil, fc.errf(decl.Pos(), "missing return in function %s returning %s",
				decl.Name, decl.Return)
		}
		fc.emit(OpReturnVoid, 0, 0, 0)
	}

	var params []ast.Type
	if len(decl.Params) > 0 {
		params = make([]ast.Type, len(decl.Params))
		for i, p := range decl.Params {
			params[i] = p.Type
		}
	}
	return &Function{
		Name:         decl.Name,
		Params:       params,
		Return:       decl.Return,
		NumRegisters: fc.regs.MaxUsed(),
		Code:         fc.code,
		Constants:    fc.constants,
	}, nil
}

// blockReturns reports whether every path through the block ends in a
// return. Only definite returns count: a lone if without else never does.
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

// --- emission helpers ---

func (fc *funcCompiler) emit(op Opcode, a, b, c uint16) int {
	fc.code = append(fc.code, Instruction{Op: op, A: a, B: b, C: c})
	return len(fc.code) - 1
}

// patchTarget back-fills the jump target of a placeholder branch. Which slot
// holds the target follows from the opcode's operand table.
func (fc *funcCompiler) patchTarget(pc, target int) {
	ins := &fc.code[pc]
	switch ins.Op {
	case OpJump:
		ins.A = uint16(target)
	case OpBranchFalse:
		ins.B = uint16(target)
	default:
		panic(fmt.Sprintf("patchTarget on non-jump %s at pc %d", ins.Op, pc))
	}
}

func (fc *funcCompiler) addConstant(v Value) uint16 {
	if idx, ok := fc.constIdx[v]; ok {
		return idx
	}
	idx := uint16(len(fc.constants))
	fc.constants = append(fc.constants, v)
	fc.constIdx[v] = idx
	return idx
}

func (fc *funcCompiler) errf(pos ast.Position, format string, args ...any) *CompileError {
	return &CompileError{Pos: pos, Function: fc.decl.Name, Message: fmt.Sprintf(format, args...)}
}

// --- scopes ---

func (fc *funcCompiler) pushScope() {
	fc.scopes = append(fc.scopes, make(map[string]localVar))
}

// popScope drops the innermost scope and returns its variables' registers
// to the free list. The free list is a sorted set, so iterating the scope
// map here cannot perturb the emitted code.
func (fc *funcCompiler) popScope() {
	top := fc.scopes[len(fc.scopes)-1]
	for _, v := range top {
		fc.regs.Free(v.reg)
	}
	fc.scopes = fc.scopes[:len(fc.scopes)-1]
}

func (fc *funcCompiler) lookupVar(name string) (localVar, bool) {
	for i := len(fc.scopes) - 1; i >= 0; i-- {
		if v, ok := fc.scopes[i][name]; ok {
			return v, true
		}
	}
	return localVar{}, false
}

func (fc *funcCompiler) declareVar(name string, v localVar) bool {
	top := fc.scopes[len(fc.scopes)-1]
	if _, exists := top[name]; exists {
		return false
	}
	top[name] = v
	return true
}

// --- statements ---

func (fc *funcCompiler) compileStmt(stmt ast.Stmt) *CompileError {
	switch s := stmt.(type) {
	case *ast.VarDecl:
		return fc.compileVarDecl(s)
	case *ast.AssignStmt:
		return fc.compileAssign(s)
	case *ast.IfStmt:
		return fc.compileIf(s)
	case *ast.WhileStmt:
		return fc.compileWhile(s)
	case *ast.ReturnStmt:
		return fc.compileReturn(s)
	case *ast.ExprStmt:
		reg, typ, err := fc.compileExpr(s.X)
		if err != nil {
			return err
		}
		if typ != ast.TypeVoid {
			fc.regs.Free(reg)
		}
		return nil
	default:
		return fc.errf(stmt.Pos(), "unsupported statement %T", stmt)
	}
}

func (fc *funcCompiler) compileVarDecl(s *ast.VarDecl) *CompileError {
	tmp, typ, err := fc.compileExpr(s.Init)
	if err != nil {
		return err
	}
	if typ != s.DeclType {
		return fc.errf(s.Pos(), "cannot initialize %s %s with %s value", s.DeclType, s.Name, typ)
	}
	// The variable gets its own fixed register for the rest of its scope;
	// the initializer temp is freed immediately.
	dst := fc.regs.Alloc()
	fc.emit(OpMove, dst, tmp, 0)
	fc.regs.Free(tmp)
	if !fc.declareVar(s.Name, localVar{reg: dst, typ: s.DeclType}) {
		return fc.errf(s.Pos(), "variable %s redeclared in this scope", s.Name)
	}
	return nil
}

func (fc *funcCompiler) compileAssign(s *ast.AssignStmt) *CompileError {
	v, ok := fc.lookupVar(s.Name)
	if !ok {
		return fc.errf(s.Pos(), "undeclared variable %s", s.Name)
	}
	tmp, typ, err := fc.compileExpr(s.Value)
	if err != nil {
		return err
	}
	if typ != v.typ {
		return fc.errf(s.Pos(), "cannot assign %s value to %s %s", typ, v.typ, s.Name)
	}
	fc.emit(OpMove, v.reg, tmp, 0)
	fc.regs.Free(tmp)
	return nil
}

func (fc *funcCompiler) compileIf(s *ast.IfStmt) *CompileError {
	cond, typ, err := fc.compileExpr(s.Cond)
	if err != nil {
		return err
	}
	if typ != ast.TypeBool {
		return fc.errf(s.Cond.Pos(), "if condition is %s, want bool", typ)
	}
	branchPC := fc.emit(OpBranchFalse, cond, 0, 0)
	fc.regs.Free(cond)

	fc.pushScope()
	for _, st := range s.Then {
		if err := fc.compileStmt(st); err != nil {
			return err
		}
	}
	fc.popScope()

	if s.Else == nil {
		fc.patchTarget(branchPC, len(fc.code))
		return nil
	}

	jumpPC := fc.emit(OpJump, 0, 0, 0)
	fc.patchTarget(branchPC, len(fc.code))

	fc.pushScope()
	for _, st := range s.Else {
		if err := fc.compileStmt(st); err != nil {
			return err
		}
	}
	fc.popScope()
	fc.patchTarget(jumpPC, len(fc.code))
	return nil
}

func (fc *funcCompiler) compileWhile(s *ast.WhileStmt) *CompileError {
	loopStart := len(fc.code)
	cond, typ, err := fc.compileExpr(s.Cond)
	if err != nil {
		return err
	}
	if typ != ast.TypeBool {
		return fc.errf(s.Cond.Pos(), "while condition is %s, want bool", typ)
	}
	branchPC := fc.emit(OpBranchFalse, cond, 0, 0)
	fc.regs.Free(cond)

	fc.pushScope()
	for _, st := range s.Body {
		if err := fc.compileStmt(st); err != nil {
			return err
		}
	}
	fc.popScope()

	fc.emit(OpJump, uint16(loopStart), 0, 0)
	fc.patchTarget(branchPC, len(fc.code))
	return nil
}

func (fc *funcCompiler) compileReturn(s *ast.ReturnStmt) *CompileError {
	if s.Value == nil {
		if fc.decl.Return != ast.TypeVoid {
			return fc.errf(s.Pos(), "missing return value, function returns %s", fc.decl.Return)
		}
		fc.emit(OpReturnVoid, 0, 0, 0)
		return nil
	}
	reg, typ, err := fc.compileExpr(s.Value)
	if err != nil {
		return err
	}
	if typ != fc.decl.Return {
		return fc.errf(s.Pos(), "cannot return %s value, function returns %s", typ, fc.decl.Return)
	}
	// Returning a void call forwards no value.
	if typ == ast.TypeVoid {
		fc.emit(OpReturnVoid, 0, 0, 0)
		return nil
	}
	fc.emit(OpReturn, reg, 0, 0)
	fc.regs.Free(reg)
	return nil
}

// --- expressions ---

// compileExpr emits code evaluating e into a register owned by the caller.
// The caller frees the register when the value is dead. Expressions of type
// void (calls to void functions) yield no usable register.
func (fc *funcCompiler) compileExpr(e ast.Expr) (uint16, ast.Type, *CompileError) {
	switch x := e.(type) {
	case *ast.IntLit:
		dst := fc.regs.Alloc()
		if x.Value >= 0 && x.Value <= 0xFFFF {
			fc.emit(OpLoadInt, dst, uint16(x.Value), 0)
		} else {
			fc.emit(OpLoadConst, dst, fc.addConstant(IntValue(x.Value)), 0)
		}
		return dst, ast.TypeInt, nil

	case *ast.FloatLit:
		dst := fc.regs.Alloc()
		fc.emit(OpLoadConst, dst, fc.addConstant(FloatValue(x.Value)), 0)
		return dst, ast.TypeFloat, nil

	case *ast.BoolLit:
		dst := fc.regs.Alloc()
		if x.Value {
			fc.emit(OpLoadTrue, dst, 0, 0)
		} else {
			fc.emit(OpLoadFalse, dst, 0, 0)
		}
		return dst, ast.TypeBool, nil

	case *ast.StringLit:
		dst := fc.regs.Alloc()
		fc.emit(OpLoadConst, dst, fc.addConstant(StringValue(x.Value)), 0)
		return dst, ast.TypeString, nil

	case *ast.VarRef:
		v, ok := fc.lookupVar(x.Name)
		if !ok {
			return 0, ast.TypeInvalid, fc.errf(x.Pos(), "undeclared variable %s", x.Name)
		}
		// Copy into a temp so the caller can free its result without
		// touching the variable's pinned register.
		dst := fc.regs.Alloc()
		fc.emit(OpMove, dst, v.reg, 0)
		return dst, v.typ, nil

	case *ast.BinaryExpr:
		return fc.compileBinary(x)

	case *ast.UnaryExpr:
		return fc.compileUnary(x)

	case *ast.CallExpr:
		return fc.compileCall(x)

	default:
		return 0, ast.TypeInvalid, fc.errf(e.Pos(), "unsupported expression %T", e)
	}
}

// binaryOpcodes maps (operator, operand type) to the typed opcode.
var binaryOpcodes = map[ast.BinOp]map[ast.Type]Opcode{
	ast.OpAdd: {ast.TypeInt: OpAddInt, ast.TypeFloat: OpAddFloat, ast.TypeString: OpConcat},
	ast.OpSub: {ast.TypeInt: OpSubInt, ast.TypeFloat: OpSubFloat},
	ast.OpMul: {ast.TypeInt: OpMulInt, ast.TypeFloat: OpMulFloat},
	ast.OpDiv: {ast.TypeInt: OpDivInt, ast.TypeFloat: OpDivFloat},
	ast.OpMod: {ast.TypeInt: OpModInt},
	ast.OpEq:  {ast.TypeInt: OpEqInt, ast.TypeFloat: OpEqFloat, ast.TypeBool: OpEqBool, ast.TypeString: OpEqStr},
	ast.OpNe:  {ast.TypeInt: OpNeInt, ast.TypeFloat: OpNeFloat, ast.TypeBool: OpNeBool, ast.TypeString: OpNeStr},
	ast.OpLt:  {ast.TypeInt: OpLtInt, ast.TypeFloat: OpLtFloat},
	ast.OpLe:  {ast.TypeInt: OpLeInt, ast.TypeFloat: OpLeFloat},
	ast.OpGt:  {ast.TypeInt: OpGtInt, ast.TypeFloat: OpGtFloat},
	ast.OpGe:  {ast.TypeInt: OpGeInt, ast.TypeFloat: OpGeFloat},
	ast.OpAnd: {ast.TypeBool: OpAnd},
	ast.OpOr:  {ast.TypeBool: OpOr},
}

func (fc *funcCompiler) compileBinary(x *ast.BinaryExpr) (uint16, ast.Type, *CompileError) {
	left, lt, err := fc.compileExpr(x.Left)
	if err != nil {
		return 0, ast.TypeInvalid, err
	}
	right, rt, err := fc.compileExpr(x.Right)
	if err != nil {
		return 0, ast.TypeInvalid, err
	}
	if lt != rt {
		return 0, ast.TypeInvalid, fc.errf(x.Pos(), "operator %s has mismatched operand types %s and %s",
			x.Op, lt, rt)
	}
	op, ok := binaryOpcodes[x.Op][lt]
	if !ok {
		return 0, ast.TypeInvalid, fc.errf(x.Pos(), "operator %s not defined for %s", x.Op, lt)
	}

	// Freeing operands before allocating the destination reuses the lowest
	// operand register. The VM reads both sources before writing, so
	// dst == src is fine.
	fc.regs.Free(left)
	fc.regs.Free(right)
	dst := fc.regs.Alloc()
	fc.emit(op, dst, left, right)

	result := lt
	if x.Op.IsComparison() {
		result = ast.TypeBool
	}
	return dst, result, nil
}

func (fc *funcCompiler) compileUnary(x *ast.UnaryExpr) (uint16, ast.Type, *CompileError) {
	operand, typ, err := fc.compileExpr(x.Operand)
	if err != nil {
		return 0, ast.TypeInvalid, err
	}
	var op Opcode
	switch x.Op {
	case ast.OpNeg:
		switch typ {
		case ast.TypeInt:
			op = OpNegInt
		case ast.TypeFloat:
			op = OpNegFloat
		default:
			return 0, ast.TypeInvalid, fc.errf(x.Pos(), "operator - not defined for %s", typ)
		}
	case ast.OpNot:
		if typ != ast.TypeBool {
			return 0, ast.TypeInvalid, fc.errf(x.Pos(), "operator ! not defined for %s", typ)
		}
		op = OpNot
	default:
		return 0, ast.TypeInvalid, fc.errf(x.Pos(), "unsupported unary operator %s", x.Op)
	}
	fc.regs.Free(operand)
	dst := fc.regs.Alloc()
	fc.emit(op, dst, operand, 0)
	return dst, typ, nil
}

func (fc *funcCompiler) compileCall(x *ast.CallExpr) (uint16, ast.Type, *CompileError) {
	sig, ok := fc.sigs[x.Callee]
	if !ok {
		return 0, ast.TypeInvalid, fc.errf(x.Pos(), "call to undeclared function %s", x.Callee)
	}
	if len(x.Args) != len(sig.params) {
		return 0, ast.TypeInvalid, fc.errf(x.Pos(), "%s takes %d arguments, got %d",
			x.Callee, len(sig.params), len(x.Args))
	}

	// Arguments must land in consecutive registers; the block comes from
	// fresh registers above everything currently live. A call with no
	// arguments has no block: C stays 0, which is always in the window.
	var base uint16
	if len(x.Args) > 0 {
		base = fc.regs.AllocBlock(len(x.Args))
	}
	for i, arg := range x.Args {
		tmp, typ, err := fc.compileExpr(arg)
		if err != nil {
			return 0, ast.TypeInvalid, err
		}
		if typ != sig.params[i] {
			return 0, ast.TypeInvalid, fc.errf(arg.Pos(), "argument %d of %s is %s, want %s",
				i+1, x.Callee, typ, sig.params[i])
		}
		fc.emit(OpMove, base+uint16(i), tmp, 0)
		fc.regs.Free(tmp)
	}

	dst := fc.regs.Alloc()
	fc.emit(OpCall, dst, fc.addConstant(StringValue(x.Callee)), base)
	fc.regs.FreeBlock(base, len(x.Args))

	if sig.ret == ast.TypeVoid {
		fc.regs.Free(dst)
		return dst, ast.TypeVoid, nil
	}
	return dst, sig.ret, nil
}
