package engine

import (
	"sort"

	"github.com/wrharper/ZizzysReverseEngineering-sub000/internal/disasm"
)

// BasicBlock is a maximal straight-line instruction run with one entry and
// one exit. Edges are stored as block start addresses, never pointers;
// lookups go through the owning CFG's map.
type BasicBlock struct {
	Start uint64 // address of the first instruction
	End   uint64 // address one past the last instruction
	First int    // index of the first instruction in the Index
	Last  int    // index one past the last instruction

	Succs []uint64
	Preds []uint64

	Func    uint64 // owning function entry, 0 if none
	IsEntry bool
}

// CFG maps block start addresses to blocks. Built fresh per analysis run or
// per function.
type CFG struct {
	Blocks  map[uint64]*BasicBlock
	Entries []uint64
}

// SortedStarts returns the block start addresses in ascending order.
func (g *CFG) SortedStarts() []uint64 {
	out := make([]uint64, 0, len(g.Blocks))
	for a := range g.Blocks {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// BuildCFG partitions the instructions of [entry, limit) into basic blocks
// and links successor/predecessor edges.
//
// Leaders are the entry, every resolved jump/call target inside the range,
// and the instruction following any terminator. A block ends after an
// unconditional jump, conditional jump, call, or return. Conditional jumps
// and calls get target and fallthrough successors, unconditional jumps get
// the target only, returns get none. Indirect targets simply produce no edge
// for that path, and edges leaving the range are dropped so that the
// successor/predecessor relation stays symmetric within the graph.
func BuildCFG(ix *Index, entry, limit uint64) *CFG {
	g := &CFG{Blocks: make(map[uint64]*BasicBlock)}

	first, ok := ix.byAddr[entry]
	if !ok {
		return g
	}
	insts := ix.Instructions()
	last := first
	for last < len(insts) && insts[last].Addr < limit {
		last++
	}
	if first == last {
		return g
	}

	inRange := func(a uint64) bool { return a >= entry && a < limit }

	// Pass 1: leaders.
	leaders := map[int]bool{first: true}
	for i := first; i < last; i++ {
		in := &insts[i]
		if !in.Flow.Terminates() {
			continue
		}
		if i+1 < last {
			leaders[i+1] = true
		}
		if in.HasTarget && inRange(in.Target) {
			if j, ok := ix.byAddr[in.Target]; ok {
				leaders[j] = true
			}
		}
	}
	starts := make([]int, 0, len(leaders))
	for i := range leaders {
		starts = append(starts, i)
	}
	sort.Ints(starts)

	// Pass 2: partition into blocks.
	for k, s := range starts {
		e := last
		if k+1 < len(starts) {
			e = starts[k+1]
		}
		b := &BasicBlock{
			Start:   insts[s].Addr,
			End:     insts[e-1].End(),
			First:   s,
			Last:    e,
			IsEntry: s == first,
		}
		g.Blocks[b.Start] = b
	}
	g.Entries = append(g.Entries, entry)

	// Pass 3: successor edges from each block's final instruction.
	for _, b := range g.Blocks {
		tail := &insts[b.Last-1]
		fall := func() {
			if b.Last < last {
				if nb, ok := g.Blocks[insts[b.Last].Addr]; ok {
					b.Succs = append(b.Succs, nb.Start)
				}
			}
		}
		addTarget := func() {
			if tail.HasTarget && inRange(tail.Target) {
				if _, ok := g.Blocks[tail.Target]; ok {
					b.Succs = append(b.Succs, tail.Target)
				}
			}
		}
		switch tail.Flow {
		case disasm.FlowJump:
			addTarget()
		case disasm.FlowCondJump, disasm.FlowCall:
			addTarget()
			fall()
		case disasm.FlowReturn:
			// no successors
		default:
			// Straight-line flow into the next leader.
			fall()
		}
	}

	// Pass 4: predecessors are the transpose of successors.
	for _, b := range g.Blocks {
		for _, s := range b.Succs {
			g.Blocks[s].Preds = append(g.Blocks[s].Preds, b.Start)
		}
	}
	for _, b := range g.Blocks {
		sort.Slice(b.Preds, func(i, j int) bool { return b.Preds[i] < b.Preds[j] })
	}
	return g
}
