// Package disasm defines a common decoded-instruction representation and the
// decoder/encoder boundaries consumed by the analysis engine.
package disasm

// ControlFlowKind classifies how an instruction transfers control. The
// classification happens once at decode time so later pipeline stages never
// re-test mnemonic strings.
type ControlFlowKind int

const (
	FlowNone     ControlFlowKind = iota
	FlowJump                     // unconditional jump
	FlowCondJump                 // conditional jump
	FlowCall
	FlowReturn
)

func (k ControlFlowKind) String() string {
	switch k {
	case FlowJump:
		return "jump"
	case FlowCondJump:
		return "cond-jump"
	case FlowCall:
		return "call"
	case FlowReturn:
		return "return"
	}
	return "none"
}

// Terminates reports whether the instruction ends a basic block.
func (k ControlFlowKind) Terminates() bool { return k != FlowNone }

// Decoded is one decoded instruction. Target is the resolved absolute address
// of an immediate/relative branch or call operand; MemTarget is the resolved
// absolute address of an IP-relative memory operand. Register-indirect
// operands leave both unset.
type Decoded struct {
	Mnemonic string
	Text     string // full disassembly line, Intel syntax
	Len      int
	Flow     ControlFlowKind

	Target    uint64
	HasTarget bool

	MemTarget    uint64
	HasMemTarget bool
	MemWrite     bool // MemTarget is the destination operand
}

// Decoder turns raw bytes at a virtual address into one instruction.
// Implementations wrap an external decoding library; the engine treats them
// as black boxes.
type Decoder interface {
	Decode(code []byte, addr uint64, bitness int) (Decoded, error)
}

// Encoder assembles instruction text into raw bytes. Only the patch
// application path uses it; the engine never encodes internally.
type Encoder interface {
	Encode(text string, addr uint64, bitness int) ([]byte, error)
}
