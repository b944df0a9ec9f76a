package bytecode

import (
	"fmt"
	"strings"
)

// Disassemble returns a human-readable listing of every function in the
// program, in sorted name order.
func (p *Program) Disassemble() string {
	var sb strings.Builder
	for i, name := range p.FunctionNames() {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(p.Functions[name].Disassemble())
	}
	return sb.String()
}

// Disassemble returns a human-readable listing of one function.
func (fn *Function) Disassemble() string {
	var sb strings.Builder

	// Header
	sb.WriteString(fmt.Sprintf("; === %s ===\n", fn.Name))
	sb.WriteString("; Params: ")
	if len(fn.Params) == 0 {
		sb.WriteString("none")
	} else {
		for i, p := range fn.Params {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(fmt.Sprintf("r%d %s", i, p))
		}
	}
	sb.WriteString(fmt.Sprintf("\n; Returns: %s\n", fn.Return))
	sb.WriteString(fmt.Sprintf("; Registers: %d\n", fn.NumRegisters))

	if len(fn.Constants) > 0 {
		sb.WriteString("; Constants:\n")
		for i, v := range fn.Constants {
			display := v.String()
			if len(display) > 40 {
				display = display[:37] + "..."
			}
			sb.WriteString(fmt.Sprintf(";   [%3d] %s\n", i, display))
		}
	}

	sb.WriteString("; Code:\n")
	for pc, ins := range fn.Code {
		sb.WriteString(fmt.Sprintf("%04d  %s\n", pc, FormatInstruction(fn, ins)))
	}
	return sb.String()
}

// FormatInstruction renders one instruction with its operands decoded
// against the function's constant pool.
func FormatInstruction(fn *Function, ins Instruction) string {
	switch ins.Op {
	case OpNop, OpReturnVoid:
		return ins.Op.String()

	case OpLoadConst:
		return fmt.Sprintf("%s r%d, %d ; %s", ins.Op, ins.A, ins.B, constDisplay(fn, ins.B))

	case OpLoadInt:
		return fmt.Sprintf("%s r%d, %d", ins.Op, ins.A, ins.B)

	case OpLoadTrue, OpLoadFalse, OpReturn:
		return fmt.Sprintf("%s r%d", ins.Op, ins.A)

	case OpJump:
		return fmt.Sprintf("%s -> %04d", ins.Op, ins.A)

	case OpBranchFalse:
		return fmt.Sprintf("%s r%d -> %04d", ins.Op, ins.A, ins.B)

	case OpCall:
		return fmt.Sprintf("%s r%d, %d (%s) args=r%d", ins.Op, ins.A, ins.B,
			constDisplay(fn, ins.B), ins.C)

	default:
		// Register-only shapes follow from the operand table.
		info := GetOpcodeInfo(ins.Op)
		slots := [3]uint16{ins.A, ins.B, ins.C}
		parts := make([]string, 0, len(info.Operands))
		for i := range info.Operands {
			parts = append(parts, fmt.Sprintf("r%d", slots[i]))
		}
		if len(parts) == 0 {
			return ins.Op.String()
		}
		return fmt.Sprintf("%s %s", ins.Op, strings.Join(parts, ", "))
	}
}

func constDisplay(fn *Function, idx uint16) string {
	if int(idx) >= len(fn.Constants) {
		return "<out of range>"
	}
	display := fn.Constants[idx].String()
	if len(display) > 20 {
		display = display[:17] + "..."
	}
	return display
}
