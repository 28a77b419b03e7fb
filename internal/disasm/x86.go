package disasm

import (
	"fmt"
	"strings"

	"golang.org/x/arch/x86/x86asm"
)

// X86 decodes 32- and 64-bit x86 instructions via golang.org/x/arch. The
// zero value is ready to use.
type X86 struct{}

// condJumps holds every conditional control-transfer opcode, including the
// counter-test family (LOOP, JCXZ) which falls through when not taken.
var condJumps = map[x86asm.Op]bool{
	x86asm.JA: true, x86asm.JAE: true, x86asm.JB: true, x86asm.JBE: true,
	x86asm.JE: true, x86asm.JNE: true, x86asm.JG: true, x86asm.JGE: true,
	x86asm.JL: true, x86asm.JLE: true, x86asm.JO: true, x86asm.JNO: true,
	x86asm.JS: true, x86asm.JNS: true, x86asm.JP: true, x86asm.JNP: true,
	x86asm.JCXZ: true, x86asm.JECXZ: true, x86asm.JRCXZ: true,
	x86asm.LOOP: true, x86asm.LOOPE: true, x86asm.LOOPNE: true,
}

func classify(op x86asm.Op) ControlFlowKind {
	switch op {
	case x86asm.JMP, x86asm.LJMP:
		return FlowJump
	case x86asm.CALL, x86asm.LCALL:
		return FlowCall
	case x86asm.RET, x86asm.LRET, x86asm.IRET, x86asm.IRETD, x86asm.IRETQ:
		return FlowReturn
	}
	if condJumps[op] {
		return FlowCondJump
	}
	return FlowNone
}

// Decode implements Decoder for bitness 32 and 64.
func (X86) Decode(code []byte, addr uint64, bitness int) (Decoded, error) {
	if bitness != 32 && bitness != 64 {
		return Decoded{}, fmt.Errorf("unsupported bitness %d", bitness)
	}
	inst, err := x86asm.Decode(code, bitness)
	if err != nil {
		return Decoded{}, fmt.Errorf("decode at %#x: %w", addr, err)
	}

	d := Decoded{
		Mnemonic: strings.ToLower(inst.Op.String()),
		Text:     x86asm.IntelSyntax(inst, addr, nil),
		Len:      inst.Len,
		Flow:     classify(inst.Op),
	}

	next := addr + uint64(inst.Len)
	for i, arg := range inst.Args {
		if arg == nil {
			break
		}
		switch a := arg.(type) {
		case x86asm.Rel:
			if d.Flow == FlowJump || d.Flow == FlowCondJump || d.Flow == FlowCall {
				d.Target = next + uint64(int64(a))
				d.HasTarget = true
			}
		case x86asm.Imm:
			// Direct absolute jumps/calls are rare outside far pointers,
			// but some encoders emit them; treat the immediate as a target.
			if (d.Flow == FlowJump || d.Flow == FlowCall) && !d.HasTarget {
				d.Target = uint64(a)
				d.HasTarget = true
			}
		case x86asm.Mem:
			if a.Base == x86asm.RIP {
				d.MemTarget = next + uint64(a.Disp)
				d.HasMemTarget = true
				d.MemWrite = i == 0
			}
		}
	}
	return d, nil
}
