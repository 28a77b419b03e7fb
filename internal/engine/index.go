package engine

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/wrharper/ZizzysReverseEngineering-sub000/internal/disasm"
)

// Instruction is one entry of the instruction index. The index owns it;
// later pipeline stages fill in the analysis annotations (owning function,
// owning block, outgoing references, resolved symbol) in place.
type Instruction struct {
	Addr    uint64
	Off     uint64 // file offset of the first byte
	Len     int
	Bytes   []byte
	Section string

	Mnemonic string
	Text     string
	Flow     disasm.ControlFlowKind

	Target    uint64 // branch/call target, valid if HasTarget
	HasTarget bool

	MemTarget    uint64 // IP-relative data target, valid if HasMemTarget
	HasMemTarget bool
	MemWrite     bool

	Func    uint64 // owning function entry address, 0 = unassigned
	Block   uint64 // owning basic block start address, 0 = unassigned
	Refs    []CrossReference
	Symbol  string // resolved symbol name at Addr
	Note    string // user annotation
	Patched bool
}

// End returns the address one past the last byte of the instruction.
func (in *Instruction) End() uint64 { return in.Addr + uint64(in.Len) }

// invalidMnemonic marks bytes the decoder could not interpret. The
// placeholder is one byte long so the index stays contiguous and re-decode
// can continue past it.
const invalidMnemonic = "(bad)"

// RedecodeResult describes what a redecode pass replaced.
type RedecodeResult struct {
	From     uint64 // address of the first re-decoded instruction
	Replaced int    // instructions removed from the old index
	Decoded  int    // instructions inserted
	RanToEnd bool   // stability never reached, re-decoded to end of section
}

// Index is the ordered sequence of decoded instructions for one code region,
// with two-way address/offset lookup. Instructions are strictly ascending by
// address with no gaps or overlaps.
type Index struct {
	dec     disasm.Decoder
	bitness int

	base    uint64 // virtual address of the first byte
	off0    uint64 // file offset of the first byte
	size    uint64
	section string

	insts  []Instruction
	byAddr map[uint64]int
	byOff  map[uint64]int
}

// NewIndex creates an empty index that decodes with dec in the given
// bitness mode (32 or 64).
func NewIndex(dec disasm.Decoder, bitness int) *Index {
	return &Index{dec: dec, bitness: bitness}
}

// Bitness returns the decode mode.
func (ix *Index) Bitness() int { return ix.bitness }

// Base returns the virtual address of the first decoded byte.
func (ix *Index) Base() uint64 { return ix.base }

// Instructions returns the live instruction slice, ascending by address.
func (ix *Index) Instructions() []Instruction { return ix.insts }

// decodeOne decodes a single instruction, substituting the one-byte invalid
// placeholder when the decoder fails.
func (ix *Index) decodeOne(code []byte, addr, off uint64) Instruction {
	d, err := ix.dec.Decode(code, addr, ix.bitness)
	if err != nil || d.Len <= 0 || d.Len > len(code) {
		return Instruction{
			Addr:     addr,
			Off:      off,
			Len:      1,
			Bytes:    []byte{code[0]},
			Section:  ix.section,
			Mnemonic: invalidMnemonic,
			Text:     fmt.Sprintf("db 0x%02x", code[0]),
		}
	}
	raw := make([]byte, d.Len)
	copy(raw, code[:d.Len])
	return Instruction{
		Addr:         addr,
		Off:          off,
		Len:          d.Len,
		Bytes:        raw,
		Section:      ix.section,
		Mnemonic:     d.Mnemonic,
		Text:         d.Text,
		Flow:         d.Flow,
		Target:       d.Target,
		HasTarget:    d.HasTarget,
		MemTarget:    d.MemTarget,
		HasMemTarget: d.HasMemTarget,
		MemWrite:     d.MemWrite,
	}
}

// DecodeAll performs a full linear decode of code, which starts at virtual
// address base and file offset off0. Any previous contents are discarded.
func (ix *Index) DecodeAll(code []byte, base, off0 uint64, section string) {
	ix.base = base
	ix.off0 = off0
	ix.size = uint64(len(code))
	ix.section = section
	ix.insts = ix.insts[:0]

	pos := uint64(0)
	for pos < uint64(len(code)) {
		in := ix.decodeOne(code[pos:], base+pos, off0+pos)
		ix.insts = append(ix.insts, in)
		pos += uint64(in.Len)
	}
	ix.rebuildMaps()
}

func (ix *Index) rebuildMaps() {
	ix.byAddr = make(map[uint64]int, len(ix.insts))
	ix.byOff = make(map[uint64]int, len(ix.insts))
	for i := range ix.insts {
		ix.byAddr[ix.insts[i].Addr] = i
		ix.byOff[ix.insts[i].Off] = i
	}
}

// Lookup returns the instruction starting exactly at addr.
func (ix *Index) Lookup(addr uint64) (*Instruction, bool) {
	i, ok := ix.byAddr[addr]
	if !ok {
		return nil, false
	}
	return &ix.insts[i], true
}

// LookupOff returns the instruction starting exactly at file offset off.
func (ix *Index) LookupOff(off uint64) (*Instruction, bool) {
	i, ok := ix.byOff[off]
	if !ok {
		return nil, false
	}
	return &ix.insts[i], true
}

// Containing returns the instruction whose byte span covers addr.
func (ix *Index) Containing(addr uint64) (*Instruction, bool) {
	i := sort.Search(len(ix.insts), func(i int) bool {
		return ix.insts[i].Addr > addr
	}) - 1
	if i < 0 {
		return nil, false
	}
	in := &ix.insts[i]
	if addr >= in.End() {
		return nil, false
	}
	return in, true
}

// boundaryAtOrBefore returns the index of the instruction whose file offset
// is the nearest boundary at or before off.
func (ix *Index) boundaryAtOrBefore(off uint64) int {
	return sort.Search(len(ix.insts), func(i int) bool {
		return ix.insts[i].Off > off
	}) - 1
}

// Redecode re-decodes forward from the nearest instruction boundary at or
// before startOff, reading current bytes from store. Replacement stops as
// soon as a newly decoded instruction starts on an existing boundary with
// unchanged bytes; if that stability is never reached the pass runs to the
// end of the section and reports RanToEnd so the caller can recommend a full
// re-analysis.
func (ix *Index) Redecode(store *ByteStore, startOff uint64) (RedecodeResult, error) {
	if len(ix.insts) == 0 {
		return RedecodeResult{}, fmt.Errorf("redecode: empty index")
	}
	if startOff < ix.off0 || startOff >= ix.off0+ix.size {
		return RedecodeResult{}, fmt.Errorf("%w: offset %#x outside decoded region [%#x, %#x)",
			ErrOutOfRange, startOff, ix.off0, ix.off0+ix.size)
	}

	first := ix.boundaryAtOrBefore(startOff)
	if first < 0 {
		first = 0
	}

	code := store.Bytes()
	res := RedecodeResult{From: ix.insts[first].Addr}

	var fresh []Instruction
	pos := ix.insts[first].Off - ix.off0
	end := ix.size
	stopAt := len(ix.insts) // old index of the stable boundary, exclusive splice end
	stable := false

	for pos < end {
		addr := ix.base + pos
		off := ix.off0 + pos
		if j, ok := ix.byOff[off]; ok && j >= first && len(fresh) > 0 {
			old := &ix.insts[j]
			cur := code[off : off+uint64(old.Len)]
			if bytes.Equal(cur, old.Bytes) {
				stopAt = j
				stable = true
				break
			}
		}
		in := ix.decodeOne(code[off:ix.off0+ix.size], addr, off)
		in.Patched = store.Modified(off, uint64(in.Len))
		fresh = append(fresh, in)
		pos += uint64(in.Len)
	}
	if !stable {
		res.RanToEnd = true
	}

	res.Replaced = stopAt - first
	res.Decoded = len(fresh)

	out := make([]Instruction, 0, first+len(fresh)+len(ix.insts)-stopAt)
	out = append(out, ix.insts[:first]...)
	out = append(out, fresh...)
	out = append(out, ix.insts[stopAt:]...)
	ix.insts = out
	ix.rebuildMaps()
	return res, nil
}
