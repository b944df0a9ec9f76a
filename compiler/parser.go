package compiler

import (
	"fmt"
	"strconv"

	"github.com/ferrite-lang/ferrite/pkg/ast"
)

// ParseError is a syntax error with the position it was detected at.
type ParseError struct {
	Pos     ast.Position
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Pos, e.Message)
}

// Parser builds the typed AST from a token stream. Types are declared in the
// source (on var and fn) and recorded on the tree; agreement between the
// declarations and the expressions using them is checked by the semantic
// pass.
type Parser struct {
	lexer *Lexer
	cur   Token
	peek  Token
}

// NewParser creates a parser over the source text.
func NewParser(input string) *Parser {
	p := &Parser{lexer: NewLexer(input)}
	p.advance()
	p.advance()
	return p
}

// Parse parses a whole source file: a sequence of function declarations.
func Parse(input string) (*ast.File, error) {
	return NewParser(input).ParseFile()
}

func (p *Parser) advance() {
	p.cur = p.peek
	p.peek = p.lexer.NextToken()
}

func (p *Parser) pos() ast.Position {
	return ast.Position{Line: p.cur.Line, Col: p.cur.Col}
}

func (p *Parser) errf(format string, args ...any) *ParseError {
	return &ParseError{Pos: p.pos(), Message: fmt.Sprintf(format, args...)}
}

func (p *Parser) expect(typ TokenType) (Token, *ParseError) {
	if p.cur.Type != typ {
		return Token{}, p.errf("expected %s, found %s", typ, p.cur)
	}
	tok := p.cur
	p.advance()
	return tok, nil
}

// ParseFile parses zero or more function declarations up to EOF.
func (p *Parser) ParseFile() (*ast.File, error) {
	f := &ast.File{}
	for p.cur.Type != TokenEOF {
		if p.cur.Type == TokenError {
			return nil, p.errf("%s", p.cur.Literal)
		}
		fn, err := p.parseFunction()
		if err != nil {
			return nil, err
		}
		f.Functions = append(f.Functions, fn)
	}
	return f, nil
}

// parseFunction parses
//
//	fn name(param: type, ...): type { body }
//
// An omitted return type means void.
func (p *Parser) parseFunction() (*ast.FunctionDecl, *ParseError) {
	pos := p.pos()
	if _, err := p.expect(TokenFn); err != nil {
		return nil, err
	}
	name, err := p.expect(TokenIdent)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenLParen); err != nil {
		return nil, err
	}

	var params []ast.Param
	for p.cur.Type != TokenRParen {
		if len(params) > 0 {
			if _, err := p.expect(TokenComma); err != nil {
				return nil, err
			}
		}
		pname, err := p.expect(TokenIdent)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenColon); err != nil {
			return nil, err
		}
		ptype, perr := p.parseType()
		if perr != nil {
			return nil, perr
		}
		if ptype == ast.TypeVoid {
			return nil, p.errf("parameter %s cannot be void", pname.Literal)
		}
		params = append(params, ast.Param{Name: pname.Literal, Type: ptype})
	}
	p.advance() // consume )

	retType := ast.TypeVoid
	if p.cur.Type == TokenColon {
		p.advance()
		retType, err = p.parseType()
		if err != nil {
			return nil, err
		}
	}

	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ast.FunctionDecl{
		Name:     name.Literal,
		Params:   params,
		Return:   retType,
		Body:     body,
		Position: pos,
	}, nil
}

func (p *Parser) parseType() (ast.Type, *ParseError) {
	tok, err := p.expect(TokenIdent)
	if err != nil {
		return ast.TypeInvalid, err
	}
	typ := ast.TypeFromName(tok.Literal)
	if typ == ast.TypeInvalid {
		return ast.TypeInvalid, &ParseError{
			Pos:     ast.Position{Line: tok.Line, Col: tok.Col},
			Message: fmt.Sprintf("unknown type %s", tok.Literal),
		}
	}
	return typ, nil
}

// parseBlock parses { stmt* }.
func (p *Parser) parseBlock() ([]ast.Stmt, *ParseError) {
	if _, err := p.expect(TokenLBrace); err != nil {
		return nil, err
	}
	var stmts []ast.Stmt
	for p.cur.Type != TokenRBrace {
		if p.cur.Type == TokenEOF {
			return nil, p.errf("unexpected EOF, unclosed block")
		}
		stmt, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)
	}
	p.advance() // consume }
	return stmts, nil
}

func (p *Parser) parseStmt() (ast.Stmt, *ParseError) {
	switch p.cur.Type {
	case TokenVar:
		return p.parseVarDecl()
	case TokenIf:
		return p.parseIf()
	case TokenWhile:
		return p.parseWhile()
	case TokenReturn:
		return p.parseReturn()
	case TokenIdent:
		if p.peek.Type == TokenAssign {
			return p.parseAssign()
		}
		return p.parseExprStmt()
	default:
		return p.parseExprStmt()
	}
}

// parseVarDecl parses: var name: type = expr;
func (p *Parser) parseVarDecl() (ast.Stmt, *ParseError) {
	pos := p.pos()
	p.advance() // consume var
	name, err := p.expect(TokenIdent)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenColon); err != nil {
		return nil, err
	}
	typ, err := p.parseType()
	if err != nil {
		return nil, err
	}
	if typ == ast.TypeVoid {
		return nil, p.errf("variable %s cannot be void", name.Literal)
	}
	if _, err := p.expect(TokenAssign); err != nil {
		return nil, err
	}
	init, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenSemicolon); err != nil {
		return nil, err
	}
	return &ast.VarDecl{Name: name.Literal, DeclType: typ, Init: init, Position: pos}, nil
}

func (p *Parser) parseAssign() (ast.Stmt, *ParseError) {
	pos := p.pos()
	name := p.cur.Literal
	p.advance() // consume ident
	p.advance() // consume =
	value, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenSemicolon); err != nil {
		return nil, err
	}
	return &ast.AssignStmt{Name: name, Value: value, Position: pos}, nil
}

// parseIf parses: if (cond) { ... } [else { ... } | else if ...]
func (p *Parser) parseIf() (ast.Stmt, *ParseError) {
	pos := p.pos()
	p.advance() // consume if
	if _, err := p.expect(TokenLParen); err != nil {
		return nil, err
	}
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenRParen); err != nil {
		return nil, err
	}
	thenBlock, err := p.parseBlock()
	if err != nil {
		return nil, err
	}

	var elseBlock []ast.Stmt
	if p.cur.Type == TokenElse {
		p.advance()
		if p.cur.Type == TokenIf {
			// else if chains nest as a single-statement else block.
			nested, err := p.parseIf()
			if err != nil {
				return nil, err
			}
			elseBlock = []ast.Stmt{nested}
		} else {
			elseBlock, err = p.parseBlock()
			if err != nil {
				return nil, err
			}
			if elseBlock == nil {
				elseBlock = []ast.Stmt{}
			}
		}
	}
	return &ast.IfStmt{Cond: cond, Then: thenBlock, Else: elseBlock, Position: pos}, nil
}

func (p *Parser) parseWhile() (ast.Stmt, *ParseError) {
	pos := p.pos()
	p.advance() // consume while
	if _, err := p.expect(TokenLParen); err != nil {
		return nil, err
	}
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenRParen); err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ast.WhileStmt{Cond: cond, Body: body, Position: pos}, nil
}

func (p *Parser) parseReturn() (ast.Stmt, *ParseError) {
	pos := p.pos()
	p.advance() // consume return
	if p.cur.Type == TokenSemicolon {
		p.advance()
		return &ast.ReturnStmt{Position: pos}, nil
	}
	value, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenSemicolon); err != nil {
		return nil, err
	}
	return &ast.ReturnStmt{Value: value, Position: pos}, nil
}

func (p *Parser) parseExprStmt() (ast.Stmt, *ParseError) {
	pos := p.pos()
	x, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenSemicolon); err != nil {
		return nil, err
	}
	return &ast.ExprStmt{X: x, Position: pos}, nil
}

// Binary operator precedence, higher binds tighter.
var binaryPrecedence = map[TokenType]int{
	TokenOrOr:    1,
	TokenAndAnd:  2,
	TokenEq:      3,
	TokenNe:      3,
	TokenLt:      4,
	TokenLe:      4,
	TokenGt:      4,
	TokenGe:      4,
	TokenPlus:    5,
	TokenMinus:   5,
	TokenStar:    6,
	TokenSlash:   6,
	TokenPercent: 6,
}

var binaryOps = map[TokenType]ast.BinOp{
	TokenOrOr:    ast.OpOr,
	TokenAndAnd:  ast.OpAnd,
	TokenEq:      ast.OpEq,
	TokenNe:      ast.OpNe,
	TokenLt:      ast.OpLt,
	TokenLe:      ast.OpLe,
	TokenGt:      ast.OpGt,
	TokenGe:      ast.OpGe,
	TokenPlus:    ast.OpAdd,
	TokenMinus:   ast.OpSub,
	TokenStar:    ast.OpMul,
	TokenSlash:   ast.OpDiv,
	TokenPercent: ast.OpMod,
}

// ParseExpr parses a single expression (used by the REPL).
func (p *Parser) ParseExpr() (ast.Expr, error) {
	expr, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return expr, nil
}

func (p *Parser) parseExpr() (ast.Expr, *ParseError) {
	return p.parseBinary(1)
}

// parseBinary is the precedence climber: it parses a unary expression and
// folds in binary operators at or above minPrec, left-associatively.
func (p *Parser) parseBinary(minPrec int) (ast.Expr, *ParseError) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		prec, ok := binaryPrecedence[p.cur.Type]
		if !ok || prec < minPrec {
			return left, nil
		}
		pos := p.pos()
		op := binaryOps[p.cur.Type]
		p.advance()
		right, err := p.parseBinary(prec + 1)
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryExpr{Op: op, Left: left, Right: right, Position: pos}
	}
}

func (p *Parser) parseUnary() (ast.Expr, *ParseError) {
	switch p.cur.Type {
	case TokenMinus:
		pos := p.pos()
		p.advance()
		// A negated integer literal is parsed with its sign: the magnitude of
		// the most negative int64 overflows ParseInt on its own.
		if p.cur.Type == TokenInt {
			v, err := strconv.ParseInt("-"+p.cur.Literal, 10, 64)
			if err != nil {
				return nil, p.errf("invalid integer literal -%s", p.cur.Literal)
			}
			p.advance()
			return &ast.IntLit{Value: v, Position: pos}, nil
		}
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		// Fold negation into the literal so -5 is one constant.
		switch lit := operand.(type) {
		case *ast.IntLit:
			lit.Value = -lit.Value
			return lit, nil
		case *ast.FloatLit:
			lit.Value = -lit.Value
			return lit, nil
		}
		return &ast.UnaryExpr{Op: ast.OpNeg, Operand: operand, Position: pos}, nil
	case TokenBang:
		pos := p.pos()
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &ast.UnaryExpr{Op: ast.OpNot, Operand: operand, Position: pos}, nil
	default:
		return p.parsePrimary()
	}
}

func (p *Parser) parsePrimary() (ast.Expr, *ParseError) {
	pos := p.pos()
	switch p.cur.Type {
	case TokenInt:
		v, err := strconv.ParseInt(p.cur.Literal, 10, 64)
		if err != nil {
			return nil, p.errf("invalid integer literal %s", p.cur.Literal)
		}
		p.advance()
		return &ast.IntLit{Value: v, Position: pos}, nil

	case TokenFloat:
		v, err := strconv.ParseFloat(p.cur.Literal, 64)
		if err != nil {
			return nil, p.errf("invalid float literal %s", p.cur.Literal)
		}
		p.advance()
		return &ast.FloatLit{Value: v, Position: pos}, nil

	case TokenString:
		v := p.cur.Literal
		p.advance()
		return &ast.StringLit{Value: v, Position: pos}, nil

	case TokenTrue, TokenFalse:
		v := p.cur.Type == TokenTrue
		p.advance()
		return &ast.BoolLit{Value: v, Position: pos}, nil

	case TokenIdent:
		name := p.cur.Literal
		p.advance()
		if p.cur.Type == TokenLParen {
			return p.parseCall(name, pos)
		}
		return &ast.VarRef{Name: name, Position: pos}, nil

	case TokenLParen:
		p.advance()
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenRParen); err != nil {
			return nil, err
		}
		return expr, nil

	case TokenError:
		return nil, p.errf("%s", p.cur.Literal)

	default:
		return nil, p.errf("unexpected %s in expression", p.cur)
	}
}

func (p *Parser) parseCall(callee string, pos ast.Position) (ast.Expr, *ParseError) {
	p.advance() // consume (
	var args []ast.Expr
	for p.cur.Type != TokenRParen {
		if len(args) > 0 {
			if _, err := p.expect(TokenComma); err != nil {
				return nil, err
			}
		}
		arg, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
	}
	p.advance() // consume )
	return &ast.CallExpr{Callee: callee, Args: args, Position: pos}, nil
}
