package engine

import (
	"testing"
)

// checkSymmetric asserts succ/pred edges are each other's transpose.
func checkSymmetric(t *testing.T, g *CFG) {
	t.Helper()
	for _, b := range g.Blocks {
		for _, s := range b.Succs {
			sb, ok := g.Blocks[s]
			if !ok {
				t.Fatalf("block %#x has successor %#x not in graph", b.Start, s)
			}
			found := false
			for _, p := range sb.Preds {
				if p == b.Start {
					found = true
				}
			}
			if !found {
				t.Errorf("edge %#x -> %#x missing reverse predecessor", b.Start, s)
			}
		}
		for _, p := range b.Preds {
			pb, ok := g.Blocks[p]
			if !ok {
				t.Fatalf("block %#x has predecessor %#x not in graph", b.Start, p)
			}
			found := false
			for _, s := range pb.Succs {
				if s == b.Start {
					found = true
				}
			}
			if !found {
				t.Errorf("pred edge %#x <- %#x missing forward successor", b.Start, p)
			}
		}
	}
}

// checkPartition asserts every instruction in [entry, limit) lands in
// exactly one block.
func checkPartition(t *testing.T, g *CFG, ix *Index, entry, limit uint64) {
	t.Helper()
	owners := make(map[uint64]int)
	for _, b := range g.Blocks {
		for i := b.First; i < b.Last; i++ {
			owners[ix.Instructions()[i].Addr]++
		}
	}
	for _, in := range ix.Instructions() {
		if in.Addr < entry || in.Addr >= limit {
			continue
		}
		if owners[in.Addr] != 1 {
			t.Errorf("instruction %#x owned by %d blocks", in.Addr, owners[in.Addr])
		}
	}
}

func TestBuildCFGSingleBlock(t *testing.T) {
	// push rbp; mov rbp, rsp; ret - one block ending at the ret, no
	// successors.
	ix, _ := newIndex64(t, []byte{0x55, 0x48, 0x89, 0xE5, 0xC3}, 0x1000)
	g := BuildCFG(ix, 0x1000, 0x1005)

	if len(g.Blocks) != 1 {
		t.Fatalf("blocks = %d, want 1", len(g.Blocks))
	}
	b := g.Blocks[0x1000]
	if b == nil {
		t.Fatal("no block at entry")
	}
	if !b.IsEntry {
		t.Error("entry block not flagged")
	}
	if b.First != 0 || b.Last != 3 {
		t.Errorf("instruction span = [%d, %d), want [0, 3)", b.First, b.Last)
	}
	if len(b.Succs) != 0 {
		t.Errorf("succs = %v, want none", b.Succs)
	}
	checkSymmetric(t, g)
	checkPartition(t, g, ix, 0x1000, 0x1005)
}

func TestBuildCFGConditional(t *testing.T) {
	// 0x1000: jne 0x1005
	// 0x1002: xor eax, eax
	// 0x1004: ret
	// 0x1005: ret            <- branch target
	code := []byte{0x75, 0x03, 0x31, 0xC0, 0xC3, 0xC3}
	ix, _ := newIndex64(t, code, 0x1000)
	g := BuildCFG(ix, 0x1000, 0x1006)

	// Leaders: entry, fallthrough 0x1002, target 0x1005.
	if len(g.Blocks) != 3 {
		t.Fatalf("blocks = %d, want 3", len(g.Blocks))
	}
	b := g.Blocks[0x1000]
	if len(b.Succs) != 2 {
		t.Fatalf("entry succs = %v, want target and fallthrough", b.Succs)
	}
	hasSucc := func(a uint64) bool {
		for _, s := range b.Succs {
			if s == a {
				return true
			}
		}
		return false
	}
	if !hasSucc(0x1005) || !hasSucc(0x1002) {
		t.Errorf("entry succs = %v", b.Succs)
	}
	if got := g.Blocks[0x1005].Preds; len(got) != 1 || got[0] != 0x1000 {
		t.Errorf("target preds = %v", got)
	}
	checkSymmetric(t, g)
	checkPartition(t, g, ix, 0x1000, 0x1006)
}

func TestBuildCFGUnconditionalJump(t *testing.T) {
	// 0x1000: jmp 0x1004
	// 0x1002: xor eax, eax   <- unreachable straight-line code
	// 0x1004: ret
	code := []byte{0xEB, 0x02, 0x31, 0xC0, 0xC3}
	ix, _ := newIndex64(t, code, 0x1000)
	g := BuildCFG(ix, 0x1000, 0x1005)

	b := g.Blocks[0x1000]
	if len(b.Succs) != 1 || b.Succs[0] != 0x1004 {
		t.Errorf("jmp succs = %v, want [0x1004]", b.Succs)
	}
	// The fallthrough block after the jmp has no incoming edge from it.
	if mid := g.Blocks[0x1002]; mid != nil {
		for _, p := range mid.Preds {
			if p == 0x1000 {
				t.Error("unconditional jump produced a fallthrough edge")
			}
		}
	}
	checkSymmetric(t, g)
}

func TestBuildCFGIndirectJumpNoEdge(t *testing.T) {
	// jmp rax has no resolvable target: the block simply has no outgoing
	// edge for that path.
	code := []byte{0xFF, 0xE0, 0xC3}
	ix, _ := newIndex64(t, code, 0x1000)
	g := BuildCFG(ix, 0x1000, 0x1003)

	b := g.Blocks[0x1000]
	if len(b.Succs) != 0 {
		t.Errorf("indirect jmp succs = %v, want none", b.Succs)
	}
	checkSymmetric(t, g)
}

func TestBuildCFGCallSplitsBlock(t *testing.T) {
	// 0x1000: call 0x1008 (outside the range) ; 0x1005: nop ; 0x1006: ret
	code := []byte{0xE8, 0x03, 0x00, 0x00, 0x00, 0x90, 0xC3}
	ix, _ := newIndex64(t, code, 0x1000)
	g := BuildCFG(ix, 0x1000, 0x1007)

	if len(g.Blocks) != 2 {
		t.Fatalf("blocks = %d, want 2 (call ends its block)", len(g.Blocks))
	}
	b := g.Blocks[0x1000]
	// The call target lies outside the graph, so only the fallthrough
	// edge is recorded.
	if len(b.Succs) != 1 || b.Succs[0] != 0x1005 {
		t.Errorf("call succs = %v, want [0x1005]", b.Succs)
	}
	checkSymmetric(t, g)
}
