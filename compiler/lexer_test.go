package compiler

import "testing"

func lexAll(input string) []Token {
	l := NewLexer(input)
	var tokens []Token
	for {
		tok := l.NextToken()
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF || tok.Type == TokenError {
			return tokens
		}
	}
}

func TestLexOperators(t *testing.T) {
	input := `+ - * / % = == != < <= > >= && || !`
	want := []TokenType{
		TokenPlus, TokenMinus, TokenStar, TokenSlash, TokenPercent,
		TokenAssign, TokenEq, TokenNe, TokenLt, TokenLe, TokenGt, TokenGe,
		TokenAndAnd, TokenOrOr, TokenBang, TokenEOF,
	}
	tokens := lexAll(input)
	if len(tokens) != len(want) {
		t.Fatalf("got %d tokens, want %d: %v", len(tokens), len(want), tokens)
	}
	for i, typ := range want {
		if tokens[i].Type != typ {
			t.Errorf("token %d = %s, want %s", i, tokens[i].Type, typ)
		}
	}
}

func TestLexKeywordsAndIdents(t *testing.T) {
	tokens := lexAll(`fn var if else while return true false foo _bar x9`)
	want := []TokenType{
		TokenFn, TokenVar, TokenIf, TokenElse, TokenWhile, TokenReturn,
		TokenTrue, TokenFalse, TokenIdent, TokenIdent, TokenIdent, TokenEOF,
	}
	for i, typ := range want {
		if tokens[i].Type != typ {
			t.Errorf("token %d = %s, want %s", i, tokens[i].Type, typ)
		}
	}
	if tokens[8].Literal != "foo" || tokens[9].Literal != "_bar" || tokens[10].Literal != "x9" {
		t.Errorf("identifier literals wrong: %v", tokens[8:11])
	}
}

func TestLexNumbers(t *testing.T) {
	tests := []struct {
		input   string
		typ     TokenType
		literal string
	}{
		{"42", TokenInt, "42"},
		{"0", TokenInt, "0"},
		{"3.14", TokenFloat, "3.14"},
		{"10.0", TokenFloat, "10.0"},
	}
	for _, tt := range tests {
		tok := NewLexer(tt.input).NextToken()
		if tok.Type != tt.typ || tok.Literal != tt.literal {
			t.Errorf("lex %q = %s, want %s(%q)", tt.input, tok, tt.typ, tt.literal)
		}
	}
}

func TestLexMethodCallDotIsError(t *testing.T) {
	// '.' only appears inside float literals.
	tokens := lexAll(`a.b`)
	if tokens[1].Type != TokenError {
		t.Errorf("expected an error token for '.', got %v", tokens)
	}
}

func TestLexStrings(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{`"hello"`, "hello"},
		{`""`, ""},
		{`"a\nb"`, "a\nb"},
		{`"tab\there"`, "tab\there"},
		{`"quote\"inside"`, `quote"inside`},
	}
	for _, tt := range tests {
		tok := NewLexer(tt.input).NextToken()
		if tok.Type != TokenString {
			t.Errorf("lex %s = %s, want STRING", tt.input, tok)
			continue
		}
		if tok.Literal != tt.want {
			t.Errorf("lex %s literal = %q, want %q", tt.input, tok.Literal, tt.want)
		}
	}
}

func TestLexUnterminatedString(t *testing.T) {
	tok := NewLexer(`"oops`).NextToken()
	if tok.Type != TokenError {
		t.Errorf("expected ERROR for unterminated string, got %s", tok)
	}
}

func TestLexComments(t *testing.T) {
	tokens := lexAll("// heading\nvar x // trailing\n// closing\n")
	want := []TokenType{TokenVar, TokenIdent, TokenEOF}
	if len(tokens) != len(want) {
		t.Fatalf("got %d tokens, want %d: %v", len(tokens), len(want), tokens)
	}
	for i, typ := range want {
		if tokens[i].Type != typ {
			t.Errorf("token %d = %s, want %s", i, tokens[i].Type, typ)
		}
	}
}

func TestLexPositions(t *testing.T) {
	tokens := lexAll("var x\n  = 1;")
	checks := []struct {
		idx  int
		line int
		col  int
	}{
		{0, 1, 1}, // var
		{1, 1, 5}, // x
		{2, 2, 3}, // =
		{3, 2, 5}, // 1
	}
	for _, c := range checks {
		tok := tokens[c.idx]
		if tok.Line != c.line || tok.Col != c.col {
			t.Errorf("%s at %d:%d, want %d:%d", tok, tok.Line, tok.Col, c.line, c.col)
		}
	}
}
