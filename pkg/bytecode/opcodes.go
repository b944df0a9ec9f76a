package bytecode

import "fmt"

// Opcode identifies a bytecode instruction.
// Opcodes are organized into ranges by category for easy identification.
// Every instruction has the same shape: an opcode plus three uint16 operand
// slots (A, B, C); unused slots are zero. Registers, constant-pool indexes,
// immediates and jump targets all fit a slot, so decode is O(1).
type Opcode byte

const (
	// ========================================================================
	// Data movement (0x00-0x0F)
	// ========================================================================

	OpNop        Opcode = 0x00 // No operation
	OpLoadConst  Opcode = 0x01 // regs[A] = constants[B]
	OpLoadInt    Opcode = 0x02 // regs[A] = int(B)  (small non-negative immediate)
	OpLoadTrue   Opcode = 0x03 // regs[A] = true
	OpLoadFalse  Opcode = 0x04 // regs[A] = false
	OpMove       Opcode = 0x05 // regs[A] = regs[B]

	// ========================================================================
	// Integer arithmetic (0x10-0x1F)
	// ========================================================================

	OpAddInt Opcode = 0x10 // regs[A] = regs[B] + regs[C]
	OpSubInt Opcode = 0x11 // regs[A] = regs[B] - regs[C]
	OpMulInt Opcode = 0x12 // regs[A] = regs[B] * regs[C]
	OpDivInt Opcode = 0x13 // regs[A] = regs[B] / regs[C], traps on zero divisor
	OpModInt Opcode = 0x14 // regs[A] = regs[B] % regs[C], traps on zero divisor
	OpNegInt Opcode = 0x15 // regs[A] = -regs[B]

	// ========================================================================
	// Float arithmetic (0x20-0x2F)
	// ========================================================================

	OpAddFloat Opcode = 0x20
	OpSubFloat Opcode = 0x21
	OpMulFloat Opcode = 0x22
	OpDivFloat Opcode = 0x23 // traps on zero divisor rather than producing Inf
	OpNegFloat Opcode = 0x24

	// ========================================================================
	// String operations (0x28-0x2F)
	// ========================================================================

	OpConcat Opcode = 0x28 // regs[A] = regs[B] + regs[C] (string concatenation)

	// ========================================================================
	// Integer comparison (0x30-0x3F) - result is always a bool
	// ========================================================================

	OpEqInt Opcode = 0x30
	OpNeInt Opcode = 0x31
	OpLtInt Opcode = 0x32
	OpLeInt Opcode = 0x33
	OpGtInt Opcode = 0x34
	OpGeInt Opcode = 0x35

	// ========================================================================
	// Float comparison (0x38-0x3F)
	// ========================================================================

	OpEqFloat Opcode = 0x38
	OpNeFloat Opcode = 0x39
	OpLtFloat Opcode = 0x3A
	OpLeFloat Opcode = 0x3B
	OpGtFloat Opcode = 0x3C
	OpGeFloat Opcode = 0x3D

	// ========================================================================
	// Bool/string equality (0x40-0x4F)
	// ========================================================================

	OpEqBool Opcode = 0x40
	OpNeBool Opcode = 0x41
	OpEqStr  Opcode = 0x42
	OpNeStr  Opcode = 0x43

	// ========================================================================
	// Logical operations (0x48-0x4F)
	// ========================================================================

	OpNot Opcode = 0x48 // regs[A] = !regs[B]
	OpAnd Opcode = 0x49 // regs[A] = regs[B] && regs[C] (operands already evaluated)
	OpOr  Opcode = 0x4A // regs[A] = regs[B] || regs[C]

	// ========================================================================
	// Control flow (0x50-0x5F) - targets are absolute instruction indexes
	// ========================================================================

	OpJump        Opcode = 0x50 // pc = A
	OpBranchFalse Opcode = 0x51 // if !regs[A] { pc = B }

	// ========================================================================
	// Calls (0x60-0x6F)
	// ========================================================================

	// OpCall calls the function named by constants[B] (a string constant).
	// Arguments occupy the consecutive registers regs[C..C+arity), and the
	// result lands in regs[A] of the calling frame.
	OpCall Opcode = 0x60

	// ========================================================================
	// Return (0xF0-0xFF)
	// ========================================================================

	OpReturn     Opcode = 0xF0 // return regs[A] to the caller
	OpReturnVoid Opcode = 0xF1 // return with no value
)

// OperandKind describes how one operand slot of an instruction is used.
type OperandKind int

const (
	OperandNone   OperandKind = iota
	OperandReg                // register index
	OperandConst              // constant pool index
	OperandImm                // immediate value
	OperandTarget             // absolute instruction index
)

// OpcodeInfo provides metadata about each opcode for disassembly and
// validation.
type OpcodeInfo struct {
	Name     string        // Human-readable name
	Operands []OperandKind // Meaning of the A, B, C slots in order
}

// opcodeInfoTable maps opcodes to their metadata.
var opcodeInfoTable = map[Opcode]OpcodeInfo{
	OpNop:       {"NOP", nil},
	OpLoadConst: {"LOAD_CONST", []OperandKind{OperandReg, OperandConst}},
	OpLoadInt:   {"LOAD_INT", []OperandKind{OperandReg, OperandImm}},
	OpLoadTrue:  {"LOAD_TRUE", []OperandKind{OperandReg}},
	OpLoadFalse: {"LOAD_FALSE", []OperandKind{OperandReg}},
	OpMove:      {"MOVE", []OperandKind{OperandReg, OperandReg}},

	OpAddInt: {"ADD_INT", []OperandKind{OperandReg, OperandReg, OperandReg}},
	OpSubInt: {"SUB_INT", []OperandKind{OperandReg, OperandReg, OperandReg}},
	OpMulInt: {"MUL_INT", []OperandKind{OperandReg, OperandReg, OperandReg}},
	OpDivInt: {"DIV_INT", []OperandKind{OperandReg, OperandReg, OperandReg}},
	OpModInt: {"MOD_INT", []OperandKind{OperandReg, OperandReg, OperandReg}},
	OpNegInt: {"NEG_INT", []OperandKind{OperandReg, OperandReg}},

	OpAddFloat: {"ADD_FLOAT", []OperandKind{OperandReg, OperandReg, OperandReg}},
	OpSubFloat: {"SUB_FLOAT", []OperandKind{OperandReg, OperandReg, OperandReg}},
	OpMulFloat: {"MUL_FLOAT", []OperandKind{OperandReg, OperandReg, OperandReg}},
	OpDivFloat: {"DIV_FLOAT", []OperandKind{OperandReg, OperandReg, OperandReg}},
	OpNegFloat: {"NEG_FLOAT", []OperandKind{OperandReg, OperandReg}},

	OpConcat: {"CONCAT", []OperandKind{OperandReg, OperandReg, OperandReg}},

	OpEqInt: {"EQ_INT", []OperandKind{OperandReg, OperandReg, OperandReg}},
	OpNeInt: {"NE_INT", []OperandKind{OperandReg, OperandReg, OperandReg}},
	OpLtInt: {"LT_INT", []OperandKind{OperandReg, OperandReg, OperandReg}},
	OpLeInt: {"LE_INT", []OperandKind{OperandReg, OperandReg, OperandReg}},
	OpGtInt: {"GT_INT", []OperandKind{OperandReg, OperandReg, OperandReg}},
	OpGeInt: {"GE_INT", []OperandKind{OperandReg, OperandReg, OperandReg}},

	OpEqFloat: {"EQ_FLOAT", []OperandKind{OperandReg, OperandReg, OperandReg}},
	OpNeFloat: {"NE_FLOAT", []OperandKind{OperandReg, OperandReg, OperandReg}},
	OpLtFloat: {"LT_FLOAT", []OperandKind{OperandReg, OperandReg, OperandReg}},
	OpLeFloat: {"LE_FLOAT", []OperandKind{OperandReg, OperandReg, OperandReg}},
	OpGtFloat: {"GT_FLOAT", []OperandKind{OperandReg, OperandReg, OperandReg}},
	OpGeFloat: {"GE_FLOAT", []OperandKind{OperandReg, OperandReg, OperandReg}},

	OpEqBool: {"EQ_BOOL", []OperandKind{OperandReg, OperandReg, OperandReg}},
	OpNeBool: {"NE_BOOL", []OperandKind{OperandReg, OperandReg, OperandReg}},
	OpEqStr:  {"EQ_STR", []OperandKind{OperandReg, OperandReg, OperandReg}},
	OpNeStr:  {"NE_STR", []OperandKind{OperandReg, OperandReg, OperandReg}},

	OpNot: {"NOT", []OperandKind{OperandReg, OperandReg}},
	OpAnd: {"AND", []OperandKind{OperandReg, OperandReg, OperandReg}},
	OpOr:  {"OR", []OperandKind{OperandReg, OperandReg, OperandReg}},

	OpJump:        {"JUMP", []OperandKind{OperandTarget}},
	OpBranchFalse: {"BRANCH_FALSE", []OperandKind{OperandReg, OperandTarget}},

	OpCall: {"CALL", []OperandKind{OperandReg, OperandConst, OperandReg}},

	OpReturn:     {"RETURN", []OperandKind{OperandReg}},
	OpReturnVoid: {"RETURN_VOID", nil},
}

// GetOpcodeInfo returns metadata for an opcode.
// Returns a zero OpcodeInfo with name "UNKNOWN" if the opcode is not recognized.
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if info, ok := opcodeInfoTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN(0x%02X)", byte(op))}
}

// String returns the human-readable name of an opcode.
func (op Opcode) String() string {
	return GetOpcodeInfo(op).Name
}

// IsJump returns true if this opcode transfers control to an explicit target.
func (op Opcode) IsJump() bool {
	return op == OpJump || op == OpBranchFalse
}

// IsReturn returns true if this opcode exits the current frame.
func (op Opcode) IsReturn() bool {
	return op == OpReturn || op == OpReturnVoid
}

// IsComparison returns true if this opcode writes a bool comparison result.
func (op Opcode) IsComparison() bool {
	return (op >= OpEqInt && op <= OpGeInt) ||
		(op >= OpEqFloat && op <= OpGeFloat) ||
		(op >= OpEqBool && op <= OpNeStr)
}

// AllOpcodes returns a slice of all defined opcodes.
// Useful for testing that all opcodes have metadata.
func AllOpcodes() []Opcode {
	opcodes := make([]Opcode, 0, len(opcodeInfoTable))
	for op := range opcodeInfoTable {
		opcodes = append(opcodes, op)
	}
	return opcodes
}

// OpcodeCount returns the number of defined opcodes.
func OpcodeCount() int {
	return len(opcodeInfoTable)
}
