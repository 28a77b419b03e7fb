package disasm

import "testing"

func decode(t *testing.T, code []byte, addr uint64, bitness int) Decoded {
	t.Helper()
	d, err := X86{}.Decode(code, addr, bitness)
	if err != nil {
		t.Fatalf("Decode(% x): %v", code, err)
	}
	return d
}

func TestDecodeFlowKinds(t *testing.T) {
	tests := []struct {
		name string
		code []byte
		flow ControlFlowKind
	}{
		{"nop", []byte{0x90}, FlowNone},
		{"mov", []byte{0x48, 0x89, 0xE5}, FlowNone},
		{"jmp", []byte{0xEB, 0x00}, FlowJump},
		{"jne", []byte{0x75, 0x00}, FlowCondJump},
		{"loop", []byte{0xE2, 0x00}, FlowCondJump},
		{"jrcxz", []byte{0xE3, 0x00}, FlowCondJump},
		{"call", []byte{0xE8, 0x00, 0x00, 0x00, 0x00}, FlowCall},
		{"ret", []byte{0xC3}, FlowReturn},
		{"jmp-indirect", []byte{0xFF, 0xE0}, FlowJump},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := decode(t, tt.code, 0x1000, 64)
			if d.Flow != tt.flow {
				t.Errorf("flow = %v, want %v", d.Flow, tt.flow)
			}
			if d.Mnemonic != tt.name && tt.name != "jmp-indirect" {
				t.Errorf("mnemonic = %q", d.Mnemonic)
			}
		})
	}
}

func TestDecodeRelativeTargets(t *testing.T) {
	// jne +5 at 0x1000: target = 0x1002 + 5.
	d := decode(t, []byte{0x75, 0x05}, 0x1000, 64)
	if !d.HasTarget || d.Target != 0x1007 {
		t.Errorf("jne target = %#x (has %v)", d.Target, d.HasTarget)
	}

	// Backward jmp rel8 -2 loops onto itself.
	d = decode(t, []byte{0xEB, 0xFE}, 0x2000, 64)
	if !d.HasTarget || d.Target != 0x2000 {
		t.Errorf("jmp target = %#x", d.Target)
	}

	// call rel32.
	d = decode(t, []byte{0xE8, 0x10, 0x00, 0x00, 0x00}, 0x1000, 64)
	if !d.HasTarget || d.Target != 0x1015 {
		t.Errorf("call target = %#x", d.Target)
	}
	if d.Len != 5 {
		t.Errorf("call len = %d", d.Len)
	}
}

func TestDecodeIndirectHasNoTarget(t *testing.T) {
	for _, code := range [][]byte{
		{0xFF, 0xE0}, // jmp rax
		{0xFF, 0xD0}, // call rax
	} {
		d := decode(t, code, 0x1000, 64)
		if d.HasTarget {
			t.Errorf("% x: unexpected target %#x", code, d.Target)
		}
	}
}

func TestDecodeRIPRelative(t *testing.T) {
	// mov rax, [rip+0x10]: a read of next+0x10.
	d := decode(t, []byte{0x48, 0x8B, 0x05, 0x10, 0x00, 0x00, 0x00}, 0x1000, 64)
	if !d.HasMemTarget || d.MemTarget != 0x1017 {
		t.Errorf("mem target = %#x (has %v)", d.MemTarget, d.HasMemTarget)
	}
	if d.MemWrite {
		t.Error("load classified as write")
	}

	// mov [rip+0x10], rax: destination operand, so a write.
	d = decode(t, []byte{0x48, 0x89, 0x05, 0x10, 0x00, 0x00, 0x00}, 0x1000, 64)
	if !d.HasMemTarget || !d.MemWrite {
		t.Errorf("store: has %v write %v", d.HasMemTarget, d.MemWrite)
	}

	// Plain register-base memory operands carry no resolvable address.
	d = decode(t, []byte{0x48, 0x8B, 0x00}, 0x1000, 64) // mov rax, [rax]
	if d.HasMemTarget {
		t.Errorf("register-indirect mem target = %#x", d.MemTarget)
	}
}

func TestDecode32Bit(t *testing.T) {
	// push ebp; decoded in 32-bit mode.
	d := decode(t, []byte{0x55}, 0x8048000, 32)
	if d.Mnemonic != "push" || d.Len != 1 {
		t.Errorf("decoded %q len %d", d.Mnemonic, d.Len)
	}

	// jne rel8 in 32-bit mode still resolves relative targets.
	d = decode(t, []byte{0x75, 0x02}, 0x8048000, 32)
	if !d.HasTarget || d.Target != 0x8048004 {
		t.Errorf("target = %#x", d.Target)
	}
}

func TestDecodeErrors(t *testing.T) {
	if _, err := (X86{}).Decode([]byte{0x90}, 0, 16); err == nil {
		t.Error("bitness 16 accepted")
	}
	// A lone prefix byte is not a complete instruction.
	if _, err := (X86{}).Decode([]byte{0x66}, 0x1000, 64); err == nil {
		t.Error("truncated instruction decoded")
	}
}

func TestControlFlowTerminates(t *testing.T) {
	for _, tt := range []struct {
		flow ControlFlowKind
		want bool
	}{
		{FlowNone, false},
		{FlowCall, true},
		{FlowCondJump, true},
		{FlowJump, true},
		{FlowReturn, true},
	} {
		if got := tt.flow.Terminates(); got != tt.want {
			t.Errorf("%v.Terminates() = %v", tt.flow, got)
		}
	}
}
