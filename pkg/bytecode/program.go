package bytecode

import (
	"fmt"
	"sort"

	"github.com/ferrite-lang/ferrite/pkg/ast"
)

// Instruction is one fixed-size bytecode instruction. The meaning of the
// A, B and C slots depends on the opcode; see the OpcodeInfo table.
type Instruction struct {
	Op Opcode
	A  uint16
	B  uint16
	C  uint16
}

// Function is one compiled function. It is immutable after compilation:
// the VM only ever reads it, so a Program can be shared across runs and
// goroutines.
type Function struct {
	Name         string
	Params       []ast.Type // parameter types, bound to registers 0..len-1
	Return       ast.Type
	NumRegisters int // register window size, the allocator's high watermark
	Code         []Instruction
	Constants    []Value
}

// Arity returns the number of declared parameters.
func (f *Function) Arity() int { return len(f.Params) }

// Program is a set of compiled functions addressable by name.
type Program struct {
	Functions map[string]*Function
}

// NewProgram returns an empty program.
func NewProgram() *Program {
	return &Program{Functions: make(map[string]*Function)}
}

// Lookup returns the named function, or nil if it is not present.
func (p *Program) Lookup(name string) *Function {
	return p.Functions[name]
}

// FunctionNames returns the function names in sorted order.
func (p *Program) FunctionNames() []string {
	names := make([]string, 0, len(p.Functions))
	for name := range p.Functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks the structural invariants every compiled function must
// satisfy: jump targets within the code, register operands within the
// register window, constant indexes within the pool, and call targets
// present in the program. The compiler never produces a program that fails
// validation; Validate guards programs loaded from disk.
func (p *Program) Validate() error {
	for _, name := range p.FunctionNames() {
		fn := p.Functions[name]
		if err := p.validateFunction(fn); err != nil {
			return fmt.Errorf("function %s: %w", name, err)
		}
	}
	return nil
}

func (p *Program) validateFunction(fn *Function) error {
	if fn.Arity() > fn.NumRegisters {
		return fmt.Errorf("arity %d exceeds register count %d", fn.Arity(), fn.NumRegisters)
	}
	for pc, ins := range fn.Code {
		info, known := opcodeInfoTable[ins.Op]
		if !known {
			return fmt.Errorf("pc %d: unknown opcode 0x%02X", pc, byte(ins.Op))
		}
		slots := [3]uint16{ins.A, ins.B, ins.C}
		for i, kind := range info.Operands {
			v := slots[i]
			switch kind {
			case OperandReg:
				if int(v) >= fn.NumRegisters {
					return fmt.Errorf("pc %d: %s register operand %d out of window [0, %d)",
						pc, ins.Op, v, fn.NumRegisters)
				}
			case OperandConst:
				if int(v) >= len(fn.Constants) {
					return fmt.Errorf("pc %d: %s constant index %d out of pool [0, %d)",
						pc, ins.Op, v, len(fn.Constants))
				}
			case OperandTarget:
				if int(v) >= len(fn.Code) {
					return fmt.Errorf("pc %d: %s jump target %d out of code [0, %d)",
						pc, ins.Op, v, len(fn.Code))
				}
			}
		}
		if ins.Op == OpCall {
			callee, ok := fn.Constants[ins.B].Str()
			if !ok {
				return fmt.Errorf("pc %d: CALL callee constant %d is not a string", pc, ins.B)
			}
			target := p.Lookup(callee)
			if target == nil {
				return fmt.Errorf("pc %d: CALL targets unknown function %q", pc, callee)
			}
			argEnd := int(ins.C) + target.Arity()
			if argEnd > fn.NumRegisters {
				return fmt.Errorf("pc %d: CALL argument block [%d, %d) out of window [0, %d)",
					pc, ins.C, argEnd, fn.NumRegisters)
			}
		}
	}
	return nil
}
