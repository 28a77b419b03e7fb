package engine

import (
	"context"
	"sort"
	"strings"

	"github.com/wrharper/ZizzysReverseEngineering-sub000/internal/disasm"
)

// FunctionSource tags how a function was discovered. Lower values are higher
// precedence: when two heuristics find the same address the surviving
// Function keeps the lowest tag.
type FunctionSource int

const (
	SourceEntryPoint FunctionSource = iota
	SourceExport
	SourcePrologue
	SourceCallTarget
)

func (s FunctionSource) String() string {
	switch s {
	case SourceEntryPoint:
		return "entry-point"
	case SourceExport:
		return "export"
	case SourcePrologue:
		return "prologue"
	case SourceCallTarget:
		return "call-target"
	}
	return "?"
}

// Function is a discovered function. Functions are discovered, never
// declared; coinciding discoveries merge into one entry holding the union of
// evidence.
type Function struct {
	Addr     uint64
	Name     string
	Source   FunctionSource   // highest-precedence evidence
	Evidence []FunctionSource // all sources that found this address

	Blocks int
	Insts  int
	CFG    *CFG

	IsEntry  bool
	IsExport bool
}

// FunctionTable is the address-keyed set of discovered functions.
type FunctionTable struct {
	byAddr map[uint64]*Function
	addrs  []uint64 // ascending
}

// At returns the function starting exactly at addr.
func (t *FunctionTable) At(addr uint64) (*Function, bool) {
	f, ok := t.byAddr[addr]
	return f, ok
}

// Containing returns the function whose [entry, next entry) span covers
// addr.
func (t *FunctionTable) Containing(addr uint64) (*Function, bool) {
	i := sort.Search(len(t.addrs), func(i int) bool { return t.addrs[i] > addr }) - 1
	if i < 0 {
		return nil, false
	}
	return t.byAddr[t.addrs[i]], true
}

// All returns the functions in ascending address order.
func (t *FunctionTable) All() []*Function {
	out := make([]*Function, len(t.addrs))
	for i, a := range t.addrs {
		out[i] = t.byAddr[a]
	}
	return out
}

// Len returns the number of functions.
func (t *FunctionTable) Len() int { return len(t.addrs) }

// ProloguePattern is a named instruction-predicate sequence describing a
// canonical stack-frame setup. The pattern list is data, not algorithm:
// callers may replace or extend it for unusual calling conventions.
type ProloguePattern struct {
	Name string
	Seq  []InstPredicate
}

func opIs(mnemonic string) InstPredicate {
	return func(in *Instruction) bool { return in.Mnemonic == mnemonic }
}

func textHas(frag string) InstPredicate {
	return func(in *Instruction) bool { return strings.Contains(in.Text, frag) }
}

func both(a, b InstPredicate) InstPredicate {
	return func(in *Instruction) bool { return a(in) && b(in) }
}

// DefaultProloguePatterns returns the built-in frame-setup patterns for the
// given bitness: push frame pointer then move stack pointer into it, with an
// optional immediate stack adjustment recognized as its own variant.
func DefaultProloguePatterns(bitness int) []ProloguePattern {
	fp, sp := "rbp", "rsp"
	if bitness == 32 {
		fp, sp = "ebp", "esp"
	}
	pushFP := both(opIs("push"), textHas(fp))
	movFPSP := both(opIs("mov"), textHas(fp+", "+sp))
	subSP := both(opIs("sub"), textHas(sp+", "))
	return []ProloguePattern{
		{Name: "frame-setup-adjust", Seq: []InstPredicate{pushFP, movFPSP, subSP}},
		{Name: "frame-setup", Seq: []InstPredicate{pushFP, movFPSP}},
	}
}

// FindFunctions runs the four discovery passes in precedence order: the
// image entry point, export table addresses, prologue pattern matches, and
// resolved call targets. Results are unioned by address, then each function
// gets a CFG bounded by the next discovered entry (or the end of the decoded
// region). The pass leaves the index untouched so a cancelled run discards
// everything; ctx is checked between per-function CFG builds.
func FindFunctions(ctx context.Context, ix *Index, entry uint64, exports []ExportEntry, patterns []ProloguePattern) (*FunctionTable, error) {
	t := &FunctionTable{byAddr: make(map[uint64]*Function)}

	add := func(addr uint64, src FunctionSource) *Function {
		if _, ok := ix.Lookup(addr); !ok {
			return nil
		}
		f, ok := t.byAddr[addr]
		if !ok {
			f = &Function{Addr: addr, Source: src}
			t.byAddr[addr] = f
			t.addrs = append(t.addrs, addr)
		}
		if src < f.Source {
			f.Source = src
		}
		for _, e := range f.Evidence {
			if e == src {
				return f
			}
		}
		f.Evidence = append(f.Evidence, src)
		return f
	}

	if f := add(entry, SourceEntryPoint); f != nil {
		f.IsEntry = true
	}
	for _, ex := range exports {
		if f := add(ex.Addr, SourceExport); f != nil {
			f.IsExport = true
			if f.Name == "" {
				f.Name = ex.Name
			}
		}
	}
	for _, p := range patterns {
		for _, m := range MatchInstructions(ix, p.Seq, p.Name) {
			add(m.Addr, SourcePrologue)
		}
	}
	insts := ix.Instructions()
	for i := range insts {
		in := &insts[i]
		if in.Flow == disasm.FlowCall && in.HasTarget {
			add(in.Target, SourceCallTarget)
		}
	}

	sort.Slice(t.addrs, func(i, j int) bool { return t.addrs[i] < t.addrs[j] })

	// Per-function CFG, bounded by the next discovered entry.
	end := ix.base + ix.size
	for i, addr := range t.addrs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		limit := end
		if i+1 < len(t.addrs) {
			limit = t.addrs[i+1]
		}
		f := t.byAddr[addr]
		f.CFG = BuildCFG(ix, addr, limit)
		f.Blocks = len(f.CFG.Blocks)
		f.Insts = 0
		for _, b := range f.CFG.Blocks {
			f.Insts += b.Last - b.First
			b.Func = addr
		}
	}
	return t, nil
}
