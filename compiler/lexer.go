package compiler

import (
	"unicode"
	"unicode/utf8"
)

// Lexer tokenizes ferrite source code.
type Lexer struct {
	input   string
	pos     int  // current position in input
	readPos int  // reading position (after current char)
	ch      rune // current character
	line    int  // current line (1-based)
	col     int  // current column (1-based)
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	l := &Lexer{input: input, line: 1, col: 0}
	l.readChar()
	return l
}

// readChar reads the next character.
func (l *Lexer) readChar() {
	if l.readPos >= len(l.input) {
		l.ch = 0 // EOF
		l.pos = l.readPos
		l.col++
		return
	}
	r, size := utf8.DecodeRuneInString(l.input[l.readPos:])
	if l.ch == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	l.ch = r
	l.pos = l.readPos
	l.readPos += size
}

// peekChar returns the next character without consuming it.
func (l *Lexer) peekChar() rune {
	if l.readPos >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.readPos:])
	return r
}

func (l *Lexer) skipWhitespaceAndComments() {
	for {
		for unicode.IsSpace(l.ch) {
			l.readChar()
		}
		// Line comments run to end of line.
		if l.ch == '/' && l.peekChar() == '/' {
			for l.ch != '\n' && l.ch != 0 {
				l.readChar()
			}
			continue
		}
		return
	}
}

func (l *Lexer) token(typ TokenType, literal string, line, col int) Token {
	return Token{Type: typ, Literal: literal, Line: line, Col: col}
}

// NextToken returns the next token.
func (l *Lexer) NextToken() Token {
	l.skipWhitespaceAndComments()

	line, col := l.line, l.col

	switch {
	case l.ch == 0:
		return l.token(TokenEOF, "", line, col)

	case l.ch == '(':
		l.readChar()
		return l.token(TokenLParen, "(", line, col)
	case l.ch == ')':
		l.readChar()
		return l.token(TokenRParen, ")", line, col)
	case l.ch == '{':
		l.readChar()
		return l.token(TokenLBrace, "{", line, col)
	case l.ch == '}':
		l.readChar()
		return l.token(TokenRBrace, "}", line, col)
	case l.ch == ',':
		l.readChar()
		return l.token(TokenComma, ",", line, col)
	case l.ch == ':':
		l.readChar()
		return l.token(TokenColon, ":", line, col)
	case l.ch == ';':
		l.readChar()
		return l.token(TokenSemicolon, ";", line, col)

	case l.ch == '+':
		l.readChar()
		return l.token(TokenPlus, "+", line, col)
	case l.ch == '-':
		l.readChar()
		return l.token(TokenMinus, "-", line, col)
	case l.ch == '*':
		l.readChar()
		return l.token(TokenStar, "*", line, col)
	case l.ch == '/':
		l.readChar()
		return l.token(TokenSlash, "/", line, col)
	case l.ch == '%':
		l.readChar()
		return l.token(TokenPercent, "%", line, col)

	case l.ch == '=':
		l.readChar()
		if l.ch == '=' {
			l.readChar()
			return l.token(TokenEq, "==", line, col)
		}
		return l.token(TokenAssign, "=", line, col)

	case l.ch == '!':
		l.readChar()
		if l.ch == '=' {
			l.readChar()
			return l.token(TokenNe, "!=", line, col)
		}
		return l.token(TokenBang, "!", line, col)

	case l.ch == '<':
		l.readChar()
		if l.ch == '=' {
			l.readChar()
			return l.token(TokenLe, "<=", line, col)
		}
		return l.token(TokenLt, "<", line, col)

	case l.ch == '>':
		l.readChar()
		if l.ch == '=' {
			l.readChar()
			return l.token(TokenGe, ">=", line, col)
		}
		return l.token(TokenGt, ">", line, col)

	case l.ch == '&':
		l.readChar()
		if l.ch == '&' {
			l.readChar()
			return l.token(TokenAndAnd, "&&", line, col)
		}
		return l.token(TokenError, "unexpected '&'", line, col)

	case l.ch == '|':
		l.readChar()
		if l.ch == '|' {
			l.readChar()
			return l.token(TokenOrOr, "||", line, col)
		}
		return l.token(TokenError, "unexpected '|'", line, col)

	case l.ch == '"':
		return l.readString(line, col)

	case unicode.IsDigit(l.ch):
		return l.readNumber(line, col)

	case isIdentStart(l.ch):
		return l.readIdentifier(line, col)

	default:
		ch := l.ch
		l.readChar()
		return l.token(TokenError, "unexpected character "+string(ch), line, col)
	}
}

// readString reads a double-quoted string literal. Supported escapes are
// \n, \t, \\ and \".
func (l *Lexer) readString(line, col int) Token {
	l.readChar() // consume opening quote
	var out []rune
	for l.ch != '"' {
		if l.ch == 0 || l.ch == '\n' {
			return l.token(TokenError, "unterminated string", line, col)
		}
		if l.ch == '\\' {
			l.readChar()
			switch l.ch {
			case 'n':
				out = append(out, '\n')
			case 't':
				out = append(out, '\t')
			case '\\':
				out = append(out, '\\')
			case '"':
				out = append(out, '"')
			default:
				return l.token(TokenError, "invalid escape \\"+string(l.ch), line, col)
			}
			l.readChar()
			continue
		}
		out = append(out, l.ch)
		l.readChar()
	}
	l.readChar() // consume closing quote
	return l.token(TokenString, string(out), line, col)
}

// readNumber reads an integer or float literal. A '.' followed by a digit
// makes it a float.
func (l *Lexer) readNumber(line, col int) Token {
	start := l.pos
	for unicode.IsDigit(l.ch) {
		l.readChar()
	}
	typ := TokenInt
	if l.ch == '.' && unicode.IsDigit(l.peekChar()) {
		typ = TokenFloat
		l.readChar()
		for unicode.IsDigit(l.ch) {
			l.readChar()
		}
	}
	return l.token(typ, l.input[start:l.pos], line, col)
}

func (l *Lexer) readIdentifier(line, col int) Token {
	start := l.pos
	for isIdentPart(l.ch) {
		l.readChar()
	}
	literal := l.input[start:l.pos]
	if typ, ok := keywords[literal]; ok {
		return l.token(typ, literal, line, col)
	}
	return l.token(TokenIdent, literal, line, col)
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
