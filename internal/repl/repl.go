// Package repl implements the interactive ferrite session.
package repl

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ferrite-lang/ferrite/compiler"
	"github.com/ferrite-lang/ferrite/pkg/ast"
	"github.com/ferrite-lang/ferrite/pkg/bytecode"
)

// exprEntry is the synthetic function wrapping an evaluated expression.
const exprEntry = "__expr"

// REPL reads function declarations and expressions, compiles them against
// the session's accumulated declarations, and prints results. Declarations
// persist for the session; redefining a function replaces it.
type REPL struct {
	in      io.Reader
	out     io.Writer
	vmOpts  []bytecode.Option
	decls   []*ast.FunctionDecl
	history []string
}

// New creates a session reading from in and writing to out.
func New(in io.Reader, out io.Writer, vmOpts ...bytecode.Option) *REPL {
	return &REPL{in: in, out: out, vmOpts: vmOpts}
}

// Run processes input lines until EOF or .quit.
func (r *REPL) Run(ctx context.Context) error {
	fmt.Fprintln(r.out, "ferrite repl (.help for commands)")
	scanner := bufio.NewScanner(r.in)
	for {
		fmt.Fprint(r.out, ">> ")
		if !scanner.Scan() {
			fmt.Fprintln(r.out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, ".") {
			if r.command(line) {
				return nil
			}
			continue
		}
		r.history = append(r.history, line)
		r.eval(ctx, line)
	}
}

// command handles a dot command; returns true on .quit.
func (r *REPL) command(line string) bool {
	switch line {
	case ".quit":
		return true
	case ".help":
		fmt.Fprintln(r.out, "Commands:")
		fmt.Fprintln(r.out, "  .quit     exit the session")
		fmt.Fprintln(r.out, "  .help     show this help")
		fmt.Fprintln(r.out, "  .history  show entered input")
		fmt.Fprintln(r.out, "  .program  disassemble the session's functions")
		fmt.Fprintln(r.out, "  .reset    forget all declarations and history")
	case ".history":
		for i, entry := range r.history {
			fmt.Fprintf(r.out, "%4d  %s\n", i+1, entry)
		}
	case ".program":
		if len(r.decls) == 0 {
			fmt.Fprintln(r.out, "no functions declared")
			return false
		}
		program, errs := bytecode.CompileFile(&ast.File{Functions: r.decls})
		if len(errs) > 0 {
			fmt.Fprintf(r.out, "error: %v\n", errs[0])
			return false
		}
		fmt.Fprint(r.out, program.Disassemble())
	case ".reset":
		r.decls = nil
		r.history = nil
		fmt.Fprintln(r.out, "session reset")
	default:
		fmt.Fprintf(r.out, "unknown command %s (.help for commands)\n", line)
	}
	return false
}

// eval handles one input line: a function declaration or an expression.
func (r *REPL) eval(ctx context.Context, line string) {
	if strings.HasPrefix(line, "fn ") || line == "fn" {
		r.evalDecl(line)
		return
	}
	r.evalExpr(ctx, line)
}

func (r *REPL) evalDecl(line string) {
	f, err := compiler.Parse(line)
	if err != nil {
		fmt.Fprintf(r.out, "error: %v\n", err)
		return
	}
	if len(f.Functions) == 0 {
		fmt.Fprintln(r.out, "error: expected a function declaration")
		return
	}

	candidate := r.withReplaced(f.Functions)
	if errs := compiler.Analyze(&ast.File{Functions: candidate}); len(errs) > 0 {
		fmt.Fprintf(r.out, "error: %v\n", errs[0])
		return
	}
	if _, errs := bytecode.CompileFile(&ast.File{Functions: candidate}); len(errs) > 0 {
		fmt.Fprintf(r.out, "error: %v\n", errs[0])
		return
	}

	r.decls = candidate
	for _, fn := range f.Functions {
		fmt.Fprintf(r.out, "defined %s\n", fn.Signature())
	}
}

// withReplaced returns the session declarations with the new functions
// appended, replacing any existing declaration of the same name.
func (r *REPL) withReplaced(fns []*ast.FunctionDecl) []*ast.FunctionDecl {
	replaced := map[string]bool{}
	for _, fn := range fns {
		replaced[fn.Name] = true
	}
	var out []*ast.FunctionDecl
	for _, d := range r.decls {
		if !replaced[d.Name] {
			out = append(out, d)
		}
	}
	return append(out, fns...)
}

func (r *REPL) evalExpr(ctx context.Context, line string) {
	p := compiler.NewParser(line)
	expr, err := p.ParseExpr()
	if err != nil {
		fmt.Fprintf(r.out, "error: %v\n", err)
		return
	}

	// Type the expression by analyzing it inside a void wrapper, then wrap
	// it in a function returning that type.
	probe := &ast.FunctionDecl{
		Name:   exprEntry,
		Return: ast.TypeVoid,
		Body:   []ast.Stmt{&ast.ExprStmt{X: expr}},
	}
	candidate := append(r.withReplaced(nil), probe)
	if errs := compiler.Analyze(&ast.File{Functions: candidate}); len(errs) > 0 {
		fmt.Fprintf(r.out, "error: %v\n", errs[0])
		return
	}

	exprType := expr.Type()
	wrapper := &ast.FunctionDecl{Name: exprEntry, Return: exprType}
	if exprType == ast.TypeVoid {
		wrapper.Body = []ast.Stmt{&ast.ExprStmt{X: expr}}
	} else {
		wrapper.Body = []ast.Stmt{&ast.ReturnStmt{Value: expr}}
	}

	candidate[len(candidate)-1] = wrapper
	program, errs := bytecode.CompileFile(&ast.File{Functions: candidate})
	if len(errs) > 0 {
		fmt.Fprintf(r.out, "error: %v\n", errs[0])
		return
	}

	result, err := bytecode.NewVM(program, r.vmOpts...).Run(ctx, exprEntry, nil)
	if err != nil {
		fmt.Fprintf(r.out, "error: %v\n", err)
		return
	}
	if exprType != ast.TypeVoid {
		fmt.Fprintf(r.out, "%s : %s\n", result, exprType)
	}
}
