// Package bytecode compiles the ferrite AST to register-based bytecode and
// executes it.
//
// A compiled Function owns a window of virtual registers sized by the
// compiler's high watermark; parameters occupy the first registers of the
// window. Instructions are fixed-size (an opcode plus three uint16 operand
// slots) and typed: the compiler selects int, float, bool or string variants
// from the statically known operand types, so the interpreter never infers
// types at runtime.
//
// The VM keeps an explicit call-frame stack and never recurses on the host
// stack. Runtime failures surface as *Trap values carrying a call-stack
// snapshot; execution honors context cancellation between instructions.
//
// Programs serialize to a deterministic CBOR image (MarshalProgram /
// UnmarshalProgram) that round-trips everything needed to run without the
// source.
package bytecode
