// Ferrite CLI - compiles and runs ferrite programs.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/ferrite-lang/ferrite/compiler"
	"github.com/ferrite-lang/ferrite/internal/repl"
	"github.com/ferrite-lang/ferrite/manifest"
	"github.com/ferrite-lang/ferrite/pkg/ast"
	"github.com/ferrite-lang/ferrite/pkg/bytecode"
	"github.com/ferrite-lang/ferrite/store"

	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("ferrite")

func main() {
	interactive := flag.Bool("i", false, "Start interactive REPL")
	disassemble := flag.Bool("d", false, "Disassemble instead of running")
	output := flag.String("o", "", "Compile to a .feb bytecode file instead of running")
	entry := flag.String("e", "", "Entry function (default from ferrite.toml, else 'main')")
	trace := flag.Bool("trace", false, "Print each executed instruction")
	noCache := flag.Bool("no-cache", false, "Skip the compiled-program cache")
	verbose := flag.Int("v", 0, "Log verbosity (0-2)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: ferrite [options] [file.fe|file.feb] [args...]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  ferrite -i                  # Start REPL\n")
		fmt.Fprintf(os.Stderr, "  ferrite prog.fe             # Compile and run 'main'\n")
		fmt.Fprintf(os.Stderr, "  ferrite -e fib prog.fe 30   # Run 'fib' with the argument 30\n")
		fmt.Fprintf(os.Stderr, "  ferrite -o prog.feb prog.fe # Compile to bytecode\n")
		fmt.Fprintf(os.Stderr, "  ferrite prog.feb            # Run compiled bytecode\n")
	}
	flag.Parse()

	commonlog.Configure(*verbose, nil)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	m, err := manifest.FindAndLoad(".")
	if err != nil {
		fatal("%v", err)
	}

	if *interactive {
		if err := repl.New(os.Stdin, os.Stdout, m.VMOptions()...).Run(ctx); err != nil {
			fatal("repl: %v", err)
		}
		return
	}

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	path := flag.Arg(0)
	program := loadProgram(path, m, *noCache)

	if *disassemble {
		fmt.Print(program.Disassemble())
		return
	}

	if *output != "" {
		image, err := bytecode.MarshalProgram(program)
		if err != nil {
			fatal("%v", err)
		}
		if err := os.WriteFile(*output, image, 0o644); err != nil {
			fatal("%v", err)
		}
		log.Infof("wrote %s (%d bytes)", *output, len(image))
		return
	}

	entryName := *entry
	if entryName == "" {
		entryName = m.Project.Entry
	}
	entryFn := program.Lookup(entryName)
	if entryFn == nil {
		fatal("no function named %q in %s", entryName, path)
	}
	args, err := entryArgs(entryFn, flag.Args()[1:])
	if err != nil {
		fatal("%v", err)
	}

	opts := m.VMOptions()
	if *trace {
		opts = append(opts, bytecode.WithTrace(os.Stderr))
	}

	result, err := bytecode.NewVM(program, opts...).Run(ctx, entryName, args)
	if err != nil {
		var trap *bytecode.Trap
		if errors.As(err, &trap) {
			fmt.Fprintf(os.Stderr, "%v\n", trap)
			for _, fr := range trap.Frames {
				fmt.Fprintf(os.Stderr, "  at %s [%d]\n", fr.Function, fr.PC)
			}
			os.Exit(1)
		}
		fatal("%v", err)
	}

	if entryFn.Return != ast.TypeVoid {
		fmt.Println(result)
	}
	// An int result doubles as the exit code.
	if v, ok := result.Int(); ok && v > 0 && v < 126 {
		os.Exit(int(v))
	}
}

// loadProgram reads a .fe source (through the cache unless disabled) or a
// precompiled .feb image.
func loadProgram(path string, m *manifest.Manifest, noCache bool) *bytecode.Program {
	data, err := os.ReadFile(path)
	if err != nil {
		fatal("%v", err)
	}

	if strings.HasSuffix(path, ".feb") {
		program, err := bytecode.UnmarshalProgram(data)
		if err != nil {
			fatal("%s: %v", path, err)
		}
		return program
	}

	source := string(data)
	var cache *store.Cache
	if m.Cache.Enabled && !noCache {
		if cache, err = store.Open(m.CachePath()); err != nil {
			log.Warningf("cache unavailable: %v", err)
			cache = nil
		} else {
			defer cache.Close()
			if program, err := cache.Get(source); err == nil {
				log.Debugf("cache hit for %s", path)
				return program
			}
		}
	}

	program := compileSource(path, source)
	if cache != nil {
		if err := cache.Put(source, program); err != nil {
			log.Warningf("cannot cache %s: %v", path, err)
		}
	}
	return program
}

func compileSource(path, source string) *bytecode.Program {
	f, err := compiler.Parse(source)
	if err != nil {
		fatal("%s:%v", path, err)
	}
	if errs := compiler.Analyze(f); len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintf(os.Stderr, "%s:%v\n", path, e)
		}
		os.Exit(1)
	}
	program, cerrs := bytecode.CompileFile(f)
	if len(cerrs) > 0 {
		for _, e := range cerrs {
			fmt.Fprintf(os.Stderr, "%s:%v\n", path, e)
		}
		os.Exit(1)
	}
	return program
}

// entryArgs converts command-line strings to the entry function's declared
// parameter types.
func entryArgs(fn *bytecode.Function, raw []string) ([]bytecode.Value, error) {
	if len(raw) != fn.Arity() {
		return nil, fmt.Errorf("%s takes %d arguments, got %d", fn.Name, fn.Arity(), len(raw))
	}
	args := make([]bytecode.Value, len(raw))
	for i, s := range raw {
		switch fn.Params[i] {
		case ast.TypeInt:
			v, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("argument %d: %q is not an int", i+1, s)
			}
			args[i] = bytecode.IntValue(v)
		case ast.TypeFloat:
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("argument %d: %q is not a float", i+1, s)
			}
			args[i] = bytecode.FloatValue(v)
		case ast.TypeBool:
			v, err := strconv.ParseBool(s)
			if err != nil {
				return nil, fmt.Errorf("argument %d: %q is not a bool", i+1, s)
			}
			args[i] = bytecode.BoolValue(v)
		case ast.TypeString:
			args[i] = bytecode.StringValue(s)
		default:
			return nil, fmt.Errorf("argument %d: unsupported parameter type %s", i+1, fn.Params[i])
		}
	}
	return args, nil
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "ferrite: "+format+"\n", args...)
	os.Exit(1)
}
