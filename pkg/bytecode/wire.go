package bytecode

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ferrite-lang/ferrite/pkg/ast"
	"github.com/fxamacker/cbor/v2"
)

// Serialized programs start with a magic string and a format version byte,
// followed by the canonical CBOR encoding of the program body. Canonical
// mode keeps the encoding deterministic, so identical programs serialize to
// identical bytes.
const (
	wireMagic   = "FEBC"
	wireVersion = 1
)

// ErrBadMagic is returned when the data does not start with the program
// magic.
var ErrBadMagic = errors.New("not a ferrite bytecode image")

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("bytecode: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// wire representation. Value has unexported fields, so constants cross the
// wire as tagged wireValue records; everything else maps directly.

type wireProgram struct {
	Functions []wireFunction `cbor:"functions"`
}

type wireFunction struct {
	Name         string        `cbor:"name"`
	Params       []int         `cbor:"params"`
	Return       int           `cbor:"return"`
	NumRegisters int           `cbor:"registers"`
	Code         []wireInstr   `cbor:"code"`
	Constants    []wireValue   `cbor:"constants"`
}

type wireInstr struct {
	Op byte   `cbor:"op"`
	A  uint16 `cbor:"a"`
	B  uint16 `cbor:"b"`
	C  uint16 `cbor:"c"`
}

type wireValue struct {
	Kind int     `cbor:"kind"`
	Int  int64   `cbor:"int,omitempty"`
	Flt  float64 `cbor:"flt,omitempty"`
	Bool bool    `cbor:"bool,omitempty"`
	Str  string  `cbor:"str,omitempty"`
}

// MarshalProgram serializes a program to its on-disk form. Functions are
// written in sorted name order, so the output is deterministic.
func MarshalProgram(p *Program) ([]byte, error) {
	wp := wireProgram{Functions: make([]wireFunction, 0, len(p.Functions))}
	for _, name := range p.FunctionNames() {
		fn := p.Functions[name]
		wf := wireFunction{
			Name:         fn.Name,
			Params:       make([]int, len(fn.Params)),
			Return:       int(fn.Return),
			NumRegisters: fn.NumRegisters,
			Code:         make([]wireInstr, len(fn.Code)),
			Constants:    make([]wireValue, len(fn.Constants)),
		}
		for i, t := range fn.Params {
			wf.Params[i] = int(t)
		}
		for i, ins := range fn.Code {
			wf.Code[i] = wireInstr{Op: byte(ins.Op), A: ins.A, B: ins.B, C: ins.C}
		}
		for i, v := range fn.Constants {
			wf.Constants[i] = toWireValue(v)
		}
		wp.Functions = append(wp.Functions, wf)
	}

	body, err := cborEncMode.Marshal(&wp)
	if err != nil {
		return nil, fmt.Errorf("bytecode: marshal program: %w", err)
	}
	out := make([]byte, 0, len(wireMagic)+1+len(body))
	out = append(out, wireMagic...)
	out = append(out, wireVersion)
	out = append(out, body...)
	return out, nil
}

// UnmarshalProgram deserializes and validates a program image produced by
// MarshalProgram.
func UnmarshalProgram(data []byte) (*Program, error) {
	if !bytes.HasPrefix(data, []byte(wireMagic)) {
		return nil, ErrBadMagic
	}
	rest := data[len(wireMagic):]
	if len(rest) == 0 {
		return nil, fmt.Errorf("bytecode: truncated program image")
	}
	if rest[0] != wireVersion {
		return nil, fmt.Errorf("bytecode: unsupported program version %d (want %d)",
			rest[0], wireVersion)
	}

	var wp wireProgram
	if err := cbor.Unmarshal(rest[1:], &wp); err != nil {
		return nil, fmt.Errorf("bytecode: unmarshal program: %w", err)
	}

	p := NewProgram()
	for _, wf := range wp.Functions {
		if _, dup := p.Functions[wf.Name]; dup {
			return nil, fmt.Errorf("bytecode: duplicate function %q in image", wf.Name)
		}
		fn := &Function{
			Name:         wf.Name,
			Return:       ast.Type(wf.Return),
			NumRegisters: wf.NumRegisters,
		}
		// Empty slices stay nil so a round trip reproduces the compiler's
		// output exactly.
		if len(wf.Params) > 0 {
			fn.Params = make([]ast.Type, len(wf.Params))
			for i, t := range wf.Params {
				fn.Params[i] = ast.Type(t)
			}
		}
		if len(wf.Code) > 0 {
			fn.Code = make([]Instruction, len(wf.Code))
			for i, ins := range wf.Code {
				fn.Code[i] = Instruction{Op: Opcode(ins.Op), A: ins.A, B: ins.B, C: ins.C}
			}
		}
		if len(wf.Constants) > 0 {
			fn.Constants = make([]Value, len(wf.Constants))
			for i, wv := range wf.Constants {
				v, err := fromWireValue(wv)
				if err != nil {
					return nil, fmt.Errorf("bytecode: function %q constant %d: %w", wf.Name, i, err)
				}
				fn.Constants[i] = v
			}
		}
		p.Functions[wf.Name] = fn
	}

	// Images come from outside the compiler, so the structural invariants
	// are re-checked before anything runs.
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("bytecode: invalid program image: %w", err)
	}
	return p, nil
}

func toWireValue(v Value) wireValue {
	switch v.Kind() {
	case KindInt:
		i, _ := v.Int()
		return wireValue{Kind: int(KindInt), Int: i}
	case KindFloat:
		f, _ := v.Float()
		return wireValue{Kind: int(KindFloat), Flt: f}
	case KindBool:
		b, _ := v.Bool()
		return wireValue{Kind: int(KindBool), Bool: b}
	default:
		s, _ := v.Str()
		return wireValue{Kind: int(KindString), Str: s}
	}
}

func fromWireValue(wv wireValue) (Value, error) {
	switch ValueKind(wv.Kind) {
	case KindInt:
		return IntValue(wv.Int), nil
	case KindFloat:
		return FloatValue(wv.Flt), nil
	case KindBool:
		return BoolValue(wv.Bool), nil
	case KindString:
		return StringValue(wv.Str), nil
	default:
		return Value{}, fmt.Errorf("unknown value kind %d", wv.Kind)
	}
}
