package engine

import (
	"context"
	"testing"
)

func TestBuildXRefsCallAndJump(t *testing.T) {
	// 0x1000: call 0x100a
	// 0x1005: jne 0x1009
	// 0x1007: jmp 0x1000
	// 0x1009: ret
	code := []byte{
		0xE8, 0x05, 0x00, 0x00, 0x00,
		0x75, 0x02,
		0xEB, 0xF7,
		0xC3,
	}
	ix, _ := newIndex64(t, code, 0x1000)
	xr, err := BuildXRefs(context.Background(), ix)
	if err != nil {
		t.Fatal(err)
	}
	if xr.Count != 3 {
		t.Fatalf("count = %d, want 3", xr.Count)
	}

	out := xr.Outgoing[0x1000]
	if len(out) != 1 || out[0].Kind != RefCall || out[0].To != 0x100A {
		t.Errorf("call xref = %+v", out)
	}
	out = xr.Outgoing[0x1005]
	if len(out) != 1 || out[0].Kind != RefJump || out[0].To != 0x1009 {
		t.Errorf("jne xref = %+v", out)
	}
	// The backward jmp lands on the function head.
	in := xr.Incoming[0x1000]
	if len(in) != 1 || in[0].From != 0x1007 || in[0].Kind != RefJump {
		t.Errorf("incoming at 0x1000 = %+v", in)
	}
}

func TestBuildXRefsSymmetry(t *testing.T) {
	ix, _ := twoFuncImage(t)
	xr, err := BuildXRefs(context.Background(), ix)
	if err != nil {
		t.Fatal(err)
	}
	// Every outgoing edge must appear in the target's incoming list with
	// identical fields.
	n := 0
	for _, refs := range xr.Outgoing {
		for _, r := range refs {
			n++
			found := false
			for _, rin := range xr.Incoming[r.To] {
				if rin == r {
					found = true
				}
			}
			if !found {
				t.Errorf("outgoing %+v has no incoming twin", r)
			}
		}
	}
	if n != xr.Count {
		t.Errorf("count = %d, edges = %d", xr.Count, n)
	}
}

func TestBuildXRefsRIPRelative(t *testing.T) {
	// 0x1000: mov rax, [rip+0x10]   read of 0x1017
	// 0x1007: mov [rip+0x20], rax   write of 0x102e
	// 0x100e: ret
	code := []byte{
		0x48, 0x8B, 0x05, 0x10, 0x00, 0x00, 0x00,
		0x48, 0x89, 0x05, 0x20, 0x00, 0x00, 0x00,
		0xC3,
	}
	ix, _ := newIndex64(t, code, 0x1000)
	xr, err := BuildXRefs(context.Background(), ix)
	if err != nil {
		t.Fatal(err)
	}
	rd := xr.Outgoing[0x1000]
	if len(rd) != 1 || rd[0].Kind != RefRead || rd[0].To != 0x1017 {
		t.Errorf("read xref = %+v", rd)
	}
	wr := xr.Outgoing[0x1007]
	if len(wr) != 1 || wr[0].Kind != RefWrite || wr[0].To != 0x102E {
		t.Errorf("write xref = %+v", wr)
	}
}

func TestBuildXRefsSkipsIndirect(t *testing.T) {
	// call rax and mov rbx, [rax] carry no resolvable address.
	code := []byte{0xFF, 0xD0, 0x48, 0x8B, 0x18, 0xC3}
	ix, _ := newIndex64(t, code, 0x1000)
	xr, err := BuildXRefs(context.Background(), ix)
	if err != nil {
		t.Fatal(err)
	}
	if xr.Count != 0 {
		t.Fatalf("count = %d, want 0: %+v", xr.Count, xr.Outgoing)
	}
}

func TestBuildXRefsCancel(t *testing.T) {
	ix, _ := twoFuncImage(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := BuildXRefs(ctx, ix); err == nil {
		t.Fatal("cancelled run returned no error")
	}
}
