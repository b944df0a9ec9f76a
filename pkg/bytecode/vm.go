package bytecode

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/ferrite-lang/ferrite/pkg/ast"
)

// TrapKind classifies a runtime trap.
type TrapKind int

const (
	TrapUnknownFunction TrapKind = iota
	TrapStackOverflow
	TrapTypeMismatch
	TrapDivisionByZero
	TrapArityOrTypeMismatch
)

func (k TrapKind) String() string {
	switch k {
	case TrapUnknownFunction:
		return "UnknownFunction"
	case TrapStackOverflow:
		return "StackOverflow"
	case TrapTypeMismatch:
		return "TypeMismatch"
	case TrapDivisionByZero:
		return "DivisionByZero"
	case TrapArityOrTypeMismatch:
		return "ArityOrTypeMismatch"
	default:
		return fmt.Sprintf("TrapKind(%d)", int(k))
	}
}

// TrapFrame is one entry of a trap's call-stack snapshot.
type TrapFrame struct {
	Function string
	PC       int
}

// Trap is a runtime failure. It carries the call stack at the moment of the
// trap, innermost frame first.
type Trap struct {
	Kind    TrapKind
	Message string
	Frames  []TrapFrame
}

func (t *Trap) Error() string {
	if len(t.Frames) == 0 {
		return fmt.Sprintf("trap %s: %s", t.Kind, t.Message)
	}
	top := t.Frames[0]
	return fmt.Sprintf("trap %s: %s (in %s at pc %d)", t.Kind, t.Message, top.Function, top.PC)
}

// ErrStepBudget is returned when a configured step budget runs out before
// the program finishes.
var ErrStepBudget = errors.New("step budget exceeded")

// DefaultMaxDepth is the call-frame limit used when none is configured.
const DefaultMaxDepth = 1024

// frame is one activation record: a function, its register window, and the
// resume point. Frames live on an explicit stack; the interpreter never
// recurses on the host stack, so guest recursion depth is bounded only by
// maxDepth.
type frame struct {
	fn     *Function
	regs   []Value
	pc     int
	retReg uint16 // caller register receiving the return value
}

// VM executes a compiled Program. A VM holds no state between runs except
// its configuration; Run may be called repeatedly and concurrently-compiled
// Programs are never mutated.
type VM struct {
	program    *Program
	maxDepth   int
	stepBudget int64 // 0 means unlimited
	traceOut   io.Writer
}

// Option configures a VM.
type Option func(*VM)

// WithMaxDepth caps the call-frame stack. Values below 1 fall back to the
// default.
func WithMaxDepth(n int) Option {
	return func(vm *VM) {
		if n >= 1 {
			vm.maxDepth = n
		}
	}
}

// WithStepBudget caps the total number of instructions one Run may execute.
// Zero means unlimited.
func WithStepBudget(n int64) Option {
	return func(vm *VM) { vm.stepBudget = n }
}

// WithTrace writes one line per executed instruction to w.
func WithTrace(w io.Writer) Option {
	return func(vm *VM) { vm.traceOut = w }
}

// NewVM returns a VM for the program.
func NewVM(program *Program, opts ...Option) *VM {
	vm := &VM{program: program, maxDepth: DefaultMaxDepth}
	for _, opt := range opts {
		opt(vm)
	}
	return vm
}

// Run executes the named entry function with the given arguments.
//
// The entry function's existence, arity and argument types are validated
// before any instruction executes. On a runtime trap the returned error is a
// *Trap; on cancellation it wraps ctx.Err(). A void entry function yields
// the zero Value.
func (vm *VM) Run(ctx context.Context, entry string, args []Value) (Value, error) {
	entryFn := vm.program.Lookup(entry)
	if entryFn == nil {
		return Value{}, &Trap{
			Kind:    TrapUnknownFunction,
			Message: fmt.Sprintf("no function named %q", entry),
		}
	}
	if len(args) != entryFn.Arity() {
		return Value{}, &Trap{
			Kind: TrapArityOrTypeMismatch,
			Message: fmt.Sprintf("%s takes %d arguments, got %d",
				entry, entryFn.Arity(), len(args)),
		}
	}
	for i, arg := range args {
		want, ok := KindForType(entryFn.Params[i])
		if !ok || arg.Kind() != want {
			return Value{}, &Trap{
				Kind: TrapArityOrTypeMismatch,
				Message: fmt.Sprintf("argument %d of %s is %s, want %s",
					i+1, entry, arg.Kind(), entryFn.Params[i]),
			}
		}
	}

	run := &execution{vm: vm, program: vm.program}
	run.push(entryFn, args, 0)
	return run.loop(ctx)
}

// execution is the state of one Run call.
type execution struct {
	vm      *VM
	program *Program
	frames  []frame
	steps   int64
}

func (ex *execution) push(fn *Function, args []Value, retReg uint16) {
	regs := make([]Value, fn.NumRegisters)
	copy(regs, args)
	ex.frames = append(ex.frames, frame{fn: fn, regs: regs, retReg: retReg})
}

// snapshot captures the call stack, innermost frame first.
func (ex *execution) snapshot() []TrapFrame {
	frames := make([]TrapFrame, 0, len(ex.frames))
	for i := len(ex.frames) - 1; i >= 0; i-- {
		f := &ex.frames[i]
		frames = append(frames, TrapFrame{Function: f.fn.Name, PC: f.pc})
	}
	return frames
}

func (ex *execution) trap(kind TrapKind, format string, args ...any) *Trap {
	return &Trap{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Frames:  ex.snapshot(),
	}
}

// typed register reads. Compiled programs never fail these; they guard
// against corrupted or hand-built bytecode.

func (ex *execution) regInt(f *frame, idx uint16) (int64, *Trap) {
	v, ok := f.regs[idx].Int()
	if !ok {
		return 0, ex.trap(TrapTypeMismatch, "register r%d holds %s, want int", idx, f.regs[idx].Kind())
	}
	return v, nil
}

func (ex *execution) regFloat(f *frame, idx uint16) (float64, *Trap) {
	v, ok := f.regs[idx].Float()
	if !ok {
		return 0, ex.trap(TrapTypeMismatch, "register r%d holds %s, want float", idx, f.regs[idx].Kind())
	}
	return v, nil
}

func (ex *execution) regBool(f *frame, idx uint16) (bool, *Trap) {
	v, ok := f.regs[idx].Bool()
	if !ok {
		return false, ex.trap(TrapTypeMismatch, "register r%d holds %s, want bool", idx, f.regs[idx].Kind())
	}
	return v, nil
}

func (ex *execution) regStr(f *frame, idx uint16) (string, *Trap) {
	v, ok := f.regs[idx].Str()
	if !ok {
		return "", ex.trap(TrapTypeMismatch, "register r%d holds %s, want string", idx, f.regs[idx].Kind())
	}
	return v, nil
}

// loop is the fetch-decode-execute loop. It runs until the outermost frame
// returns, a trap fires, the context is cancelled, or the step budget runs
// out.
func (ex *execution) loop(ctx context.Context) (Value, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Value{}, fmt.Errorf("execution cancelled: %w", err)
		}
		if ex.vm.stepBudget > 0 {
			ex.steps++
			if ex.steps > ex.vm.stepBudget {
				return Value{}, ErrStepBudget
			}
		}

		f := &ex.frames[len(ex.frames)-1]
		if f.pc >= len(f.fn.Code) {
			// The compiler guarantees every path returns; only corrupted
			// bytecode reaches here.
			if f.fn.Return == ast.TypeVoid {
				done, result := ex.ret(Value{}, false)
				if done {
					return result, nil
				}
				continue
			}
			return Value{}, ex.trap(TrapTypeMismatch,
				"%s ended without returning a value", f.fn.Name)
		}

		ins := f.fn.Code[f.pc]
		if ex.vm.traceOut != nil {
			fmt.Fprintf(ex.vm.traceOut, "%s[%d] %s\n",
				f.fn.Name, f.pc, FormatInstruction(f.fn, ins))
		}
		f.pc++

		done, result, err := ex.step(f, ins)
		if err != nil {
			return Value{}, err
		}
		if done {
			return result, nil
		}
	}
}

// step executes one instruction. done is true when the outermost frame has
// returned and result is the program's value.
func (ex *execution) step(f *frame, ins Instruction) (done bool, result Value, err error) {
	switch ins.Op {
	case OpNop:

	case OpLoadConst:
		if int(ins.B) >= len(f.fn.Constants) {
			return false, Value{}, ex.trap(TrapTypeMismatch,
				"constant index %d out of range", ins.B)
		}
		f.regs[ins.A] = f.fn.Constants[ins.B]

	case OpLoadInt:
		f.regs[ins.A] = IntValue(int64(ins.B))

	case OpLoadTrue:
		f.regs[ins.A] = BoolValue(true)

	case OpLoadFalse:
		f.regs[ins.A] = BoolValue(false)

	case OpMove:
		f.regs[ins.A] = f.regs[ins.B]

	case OpAddInt, OpSubInt, OpMulInt, OpDivInt, OpModInt:
		b, trap := ex.regInt(f, ins.B)
		if trap != nil {
			return false, Value{}, trap
		}
		c, trap := ex.regInt(f, ins.C)
		if trap != nil {
			return false, Value{}, trap
		}
		var v int64
		switch ins.Op {
		case OpAddInt:
			v = b + c
		case OpSubInt:
			v = b - c
		case OpMulInt:
			v = b * c
		case OpDivInt:
			if c == 0 {
				return false, Value{}, ex.trap(TrapDivisionByZero, "integer division by zero")
			}
			v = b / c
		case OpModInt:
			if c == 0 {
				return false, Value{}, ex.trap(TrapDivisionByZero, "integer modulo by zero")
			}
			v = b % c
		}
		f.regs[ins.A] = IntValue(v)

	case OpNegInt:
		b, trap := ex.regInt(f, ins.B)
		if trap != nil {
			return false, Value{}, trap
		}
		f.regs[ins.A] = IntValue(-b)

	case OpAddFloat, OpSubFloat, OpMulFloat, OpDivFloat:
		b, trap := ex.regFloat(f, ins.B)
		if trap != nil {
			return false, Value{}, trap
		}
		c, trap := ex.regFloat(f, ins.C)
		if trap != nil {
			return false, Value{}, trap
		}
		var v float64
		switch ins.Op {
		case OpAddFloat:
			v = b + c
		case OpSubFloat:
			v = b - c
		case OpMulFloat:
			v = b * c
		case OpDivFloat:
			// Traps rather than producing Inf or NaN.
			if c == 0 {
				return false, Value{}, ex.trap(TrapDivisionByZero, "float division by zero")
			}
			v = b / c
		}
		f.regs[ins.A] = FloatValue(v)

	case OpNegFloat:
		b, trap := ex.regFloat(f, ins.B)
		if trap != nil {
			return false, Value{}, trap
		}
		f.regs[ins.A] = FloatValue(-b)

	case OpConcat:
		b, trap := ex.regStr(f, ins.B)
		if trap != nil {
			return false, Value{}, trap
		}
		c, trap := ex.regStr(f, ins.C)
		if trap != nil {
			return false, Value{}, trap
		}
		f.regs[ins.A] = StringValue(b + c)

	case OpEqInt, OpNeInt, OpLtInt, OpLeInt, OpGtInt, OpGeInt:
		b, trap := ex.regInt(f, ins.B)
		if trap != nil {
			return false, Value{}, trap
		}
		c, trap := ex.regInt(f, ins.C)
		if trap != nil {
			return false, Value{}, trap
		}
		var v bool
		switch ins.Op {
		case OpEqInt:
			v = b == c
		case OpNeInt:
			v = b != c
		case OpLtInt:
			v = b < c
		case OpLeInt:
			v = b <= c
		case OpGtInt:
			v = b > c
		case OpGeInt:
			v = b >= c
		}
		f.regs[ins.A] = BoolValue(v)

	case OpEqFloat, OpNeFloat, OpLtFloat, OpLeFloat, OpGtFloat, OpGeFloat:
		b, trap := ex.regFloat(f, ins.B)
		if trap != nil {
			return false, Value{}, trap
		}
		c, trap := ex.regFloat(f, ins.C)
		if trap != nil {
			return false, Value{}, trap
		}
		var v bool
		switch ins.Op {
		case OpEqFloat:
			v = b == c
		case OpNeFloat:
			v = b != c
		case OpLtFloat:
			v = b < c
		case OpLeFloat:
			v = b <= c
		case OpGtFloat:
			v = b > c
		case OpGeFloat:
			v = b >= c
		}
		f.regs[ins.A] = BoolValue(v)

	case OpEqBool, OpNeBool:
		b, trap := ex.regBool(f, ins.B)
		if trap != nil {
			return false, Value{}, trap
		}
		c, trap := ex.regBool(f, ins.C)
		if trap != nil {
			return false, Value{}, trap
		}
		if ins.Op == OpEqBool {
			f.regs[ins.A] = BoolValue(b == c)
		} else {
			f.regs[ins.A] = BoolValue(b != c)
		}

	case OpEqStr, OpNeStr:
		b, trap := ex.regStr(f, ins.B)
		if trap != nil {
			return false, Value{}, trap
		}
		c, trap := ex.regStr(f, ins.C)
		if trap != nil {
			return false, Value{}, trap
		}
		if ins.Op == OpEqStr {
			f.regs[ins.A] = BoolValue(b == c)
		} else {
			f.regs[ins.A] = BoolValue(b != c)
		}

	case OpNot:
		b, trap := ex.regBool(f, ins.B)
		if trap != nil {
			return false, Value{}, trap
		}
		f.regs[ins.A] = BoolValue(!b)

	case OpAnd, OpOr:
		b, trap := ex.regBool(f, ins.B)
		if trap != nil {
			return false, Value{}, trap
		}
		c, trap := ex.regBool(f, ins.C)
		if trap != nil {
			return false, Value{}, trap
		}
		if ins.Op == OpAnd {
			f.regs[ins.A] = BoolValue(b && c)
		} else {
			f.regs[ins.A] = BoolValue(b || c)
		}

	case OpJump:
		f.pc = int(ins.A)

	case OpBranchFalse:
		cond, trap := ex.regBool(f, ins.A)
		if trap != nil {
			return false, Value{}, trap
		}
		if !cond {
			f.pc = int(ins.B)
		}

	case OpCall:
		if trap := ex.call(f, ins); trap != nil {
			return false, Value{}, trap
		}

	case OpReturn:
		done, result := ex.ret(f.regs[ins.A], true)
		return done, result, nil

	case OpReturnVoid:
		done, result := ex.ret(Value{}, false)
		return done, result, nil

	default:
		return false, Value{}, ex.trap(TrapTypeMismatch, "unknown opcode 0x%02X", byte(ins.Op))
	}
	return false, Value{}, nil
}

func (ex *execution) call(f *frame, ins Instruction) *Trap {
	if int(ins.B) >= len(f.fn.Constants) {
		return ex.trap(TrapTypeMismatch, "call callee constant %d out of range", ins.B)
	}
	name, ok := f.fn.Constants[ins.B].Str()
	if !ok {
		return ex.trap(TrapTypeMismatch, "call callee constant is not a string")
	}
	callee := ex.program.Lookup(name)
	if callee == nil {
		return ex.trap(TrapUnknownFunction, "call to unknown function %q", name)
	}

	// The depth check happens before the new frame is pushed, so the trap's
	// snapshot shows the stack that overflowed.
	if len(ex.frames) >= ex.vm.maxDepth {
		return ex.trap(TrapStackOverflow, "call depth limit %d exceeded calling %s",
			ex.vm.maxDepth, name)
	}

	arity := callee.Arity()
	args := make([]Value, arity)
	for i := 0; i < arity; i++ {
		arg := f.regs[int(ins.C)+i]
		want, known := KindForType(callee.Params[i])
		if !known || arg.Kind() != want {
			return ex.trap(TrapTypeMismatch, "argument %d of %s is %s, want %s",
				i+1, name, arg.Kind(), callee.Params[i])
		}
		args[i] = arg
	}
	ex.push(callee, args, ins.A)
	return nil
}

// ret pops the current frame. When frames remain, the value lands in the
// caller's return register; when the popped frame was the outermost one,
// done is true and result is the program's value.
func (ex *execution) ret(v Value, hasValue bool) (done bool, result Value) {
	popped := ex.frames[len(ex.frames)-1]
	ex.frames = ex.frames[:len(ex.frames)-1]
	if len(ex.frames) == 0 {
		return true, v
	}
	if hasValue {
		caller := &ex.frames[len(ex.frames)-1]
		caller.regs[popped.retReg] = v
	}
	return false, Value{}
}
