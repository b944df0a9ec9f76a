// Package ast defines the typed syntax tree produced by the ferrite parser.
package ast

import (
	"fmt"
	"strings"
)

// Type identifies one of ferrite's primitive types.
type Type int

const (
	TypeInvalid Type = iota
	TypeVoid
	TypeInt
	TypeFloat
	TypeBool
	TypeString
)

// String returns the source-level name of the type.
func (t Type) String() string {
	switch t {
	case TypeVoid:
		return "void"
	case TypeInt:
		return "int"
	case TypeFloat:
		return "float"
	case TypeBool:
		return "bool"
	case TypeString:
		return "string"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// TypeFromName maps a source-level type name to a Type.
// Returns TypeInvalid for unknown names.
func TypeFromName(name string) Type {
	switch name {
	case "void":
		return TypeVoid
	case "int":
		return TypeInt
	case "float":
		return TypeFloat
	case "bool":
		return TypeBool
	case "string":
		return TypeString
	default:
		return TypeInvalid
	}
}

// Position is a location in the source file (1-based).
type Position struct {
	Line int
	Col  int
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Col)
}

// Node is implemented by every syntax tree node.
type Node interface {
	Pos() Position
}

// Expr is implemented by all expression nodes. Type reports the
// statically-determined type of the expression; it is TypeInvalid until the
// semantic pass has annotated the tree.
type Expr interface {
	Node
	Type() Type
	exprNode()
}

// Stmt is implemented by all statement nodes.
type Stmt interface {
	Node
	stmtNode()
}

// BinOp identifies a binary operator.
type BinOp int

const (
	OpInvalid BinOp = iota
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpAnd
	OpOr
)

var binOpNames = map[BinOp]string{
	OpAdd: "+", OpSub: "-", OpMul: "*", OpDiv: "/", OpMod: "%",
	OpEq: "==", OpNe: "!=", OpLt: "<", OpLe: "<=", OpGt: ">", OpGe: ">=",
	OpAnd: "&&", OpOr: "||",
}

func (op BinOp) String() string {
	if s, ok := binOpNames[op]; ok {
		return s
	}
	return fmt.Sprintf("BinOp(%d)", int(op))
}

// IsComparison reports whether the operator yields a bool from two
// same-typed operands.
func (op BinOp) IsComparison() bool {
	return op >= OpEq && op <= OpGe
}

// IsLogical reports whether the operator takes and yields bool.
func (op BinOp) IsLogical() bool {
	return op == OpAnd || op == OpOr
}

// IsArithmetic reports whether the operator is numeric arithmetic.
func (op BinOp) IsArithmetic() bool {
	return op >= OpAdd && op <= OpMod
}

// UnOp identifies a unary operator.
type UnOp int

const (
	OpNeg UnOp = iota + 1 // numeric negation
	OpNot                 // boolean not
)

func (op UnOp) String() string {
	switch op {
	case OpNeg:
		return "-"
	case OpNot:
		return "!"
	default:
		return fmt.Sprintf("UnOp(%d)", int(op))
	}
}

// --- Expressions ---

// IntLit is an integer literal.
type IntLit struct {
	Value    int64
	Position Position
}

// FloatLit is a floating-point literal.
type FloatLit struct {
	Value    float64
	Position Position
}

// BoolLit is a true/false literal.
type BoolLit struct {
	Value    bool
	Position Position
}

// StringLit is a quoted string literal.
type StringLit struct {
	Value    string
	Position Position
}

// VarRef references a declared variable or parameter.
type VarRef struct {
	Name     string
	VarType  Type // set by the semantic pass
	Position Position
}

// BinaryExpr applies a binary operator to two operands.
type BinaryExpr struct {
	Op         BinOp
	Left       Expr
	Right      Expr
	ResultType Type // set by the semantic pass
	Position   Position
}

// UnaryExpr applies a unary operator to one operand.
type UnaryExpr struct {
	Op         UnOp
	Operand    Expr
	ResultType Type // set by the semantic pass
	Position   Position
}

// CallExpr calls a declared function by name.
type CallExpr struct {
	Callee     string
	Args       []Expr
	ResultType Type // set by the semantic pass
	Position   Position
}

func (e *IntLit) Pos() Position     { return e.Position }
func (e *FloatLit) Pos() Position   { return e.Position }
func (e *BoolLit) Pos() Position    { return e.Position }
func (e *StringLit) Pos() Position  { return e.Position }
func (e *VarRef) Pos() Position     { return e.Position }
func (e *BinaryExpr) Pos() Position { return e.Position }
func (e *UnaryExpr) Pos() Position  { return e.Position }
func (e *CallExpr) Pos() Position   { return e.Position }

func (e *IntLit) Type() Type     { return TypeInt }
func (e *FloatLit) Type() Type   { return TypeFloat }
func (e *BoolLit) Type() Type    { return TypeBool }
func (e *StringLit) Type() Type  { return TypeString }
func (e *VarRef) Type() Type     { return e.VarType }
func (e *BinaryExpr) Type() Type { return e.ResultType }
func (e *UnaryExpr) Type() Type  { return e.ResultType }
func (e *CallExpr) Type() Type   { return e.ResultType }

func (*IntLit) exprNode()     {}
func (*FloatLit) exprNode()   {}
func (*BoolLit) exprNode()    {}
func (*StringLit) exprNode()  {}
func (*VarRef) exprNode()     {}
func (*BinaryExpr) exprNode() {}
func (*UnaryExpr) exprNode()  {}
func (*CallExpr) exprNode()   {}

// --- Statements ---

// VarDecl declares a variable with an explicit type and initializer.
type VarDecl struct {
	Name     string
	DeclType Type
	Init     Expr
	Position Position
}

// AssignStmt assigns a new value to a declared variable.
type AssignStmt struct {
	Name     string
	Value    Expr
	Position Position
}

// IfStmt is a conditional with an optional else block.
type IfStmt struct {
	Cond     Expr
	Then     []Stmt
	Else     []Stmt // nil when no else block
	Position Position
}

// WhileStmt is a condition-at-head loop.
type WhileStmt struct {
	Cond     Expr
	Body     []Stmt
	Position Position
}

// ReturnStmt exits the enclosing function. Value is nil for a void return.
type ReturnStmt struct {
	Value    Expr
	Position Position
}

// ExprStmt evaluates an expression for its effect and discards the result.
type ExprStmt struct {
	X        Expr
	Position Position
}

func (s *VarDecl) Pos() Position    { return s.Position }
func (s *AssignStmt) Pos() Position { return s.Position }
func (s *IfStmt) Pos() Position     { return s.Position }
func (s *WhileStmt) Pos() Position  { return s.Position }
func (s *ReturnStmt) Pos() Position { return s.Position }
func (s *ExprStmt) Pos() Position   { return s.Position }

func (*VarDecl) stmtNode()    {}
func (*AssignStmt) stmtNode() {}
func (*IfStmt) stmtNode()     {}
func (*WhileStmt) stmtNode()  {}
func (*ReturnStmt) stmtNode() {}
func (*ExprStmt) stmtNode()   {}

// --- Declarations ---

// Param is one function parameter.
type Param struct {
	Name string
	Type Type
}

// FunctionDecl is a top-level function definition.
type FunctionDecl struct {
	Name     string
	Params   []Param
	Return   Type
	Body     []Stmt
	Position Position
}

func (f *FunctionDecl) Pos() Position { return f.Position }

// Signature renders the declared signature, e.g. "add(int, int): int".
func (f *FunctionDecl) Signature() string {
	var sb strings.Builder
	sb.WriteString(f.Name)
	sb.WriteString("(")
	for i, p := range f.Params {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(p.Type.String())
	}
	sb.WriteString("): ")
	sb.WriteString(f.Return.String())
	return sb.String()
}

// File is one parsed source file.
type File struct {
	Functions []*FunctionDecl
}
