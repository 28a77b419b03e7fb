package engine

import (
	"context"
	"fmt"

	"github.com/wrharper/ZizzysReverseEngineering-sub000/internal/disasm"
)

// RefKind distinguishes the flavors of cross-reference.
type RefKind int

const (
	RefCall  RefKind = iota // code -> code, call
	RefJump                 // code -> code, jump
	RefRead                 // code -> data, IP-relative read
	RefWrite                // code -> data, IP-relative write
)

func (k RefKind) String() string {
	switch k {
	case RefCall:
		return "call"
	case RefJump:
		return "jump"
	case RefRead:
		return "read"
	case RefWrite:
		return "write"
	}
	return "?"
}

// CrossReference records that the instruction at From refers to To. Immutable
// once created.
type CrossReference struct {
	From uint64
	To   uint64
	Kind RefKind
	Desc string
}

// XRefTable holds both directions of the cross-reference relation for O(1)
// lookup: Outgoing answers "what does X reference", Incoming answers "what
// references X".
type XRefTable struct {
	Outgoing map[uint64][]CrossReference
	Incoming map[uint64][]CrossReference
	Count    int
}

// NewXRefTable returns an empty table.
func NewXRefTable() *XRefTable {
	return &XRefTable{
		Outgoing: make(map[uint64][]CrossReference),
		Incoming: make(map[uint64][]CrossReference),
	}
}

func (t *XRefTable) add(r CrossReference) {
	t.Outgoing[r.From] = append(t.Outgoing[r.From], r)
	t.Incoming[r.To] = append(t.Incoming[r.To], r)
	t.Count++
}

// BuildXRefs runs a single forward pass over the index, emitting a code
// reference for every call/jump with a resolved target and a data reference
// for every IP-relative memory operand. Register-indirect operands are
// skipped entirely. The pass does not touch the index, so cancellation
// discards a partial table without corrupting anything.
func BuildXRefs(ctx context.Context, ix *Index) (*XRefTable, error) {
	t := NewXRefTable()
	insts := ix.Instructions()
	for i := range insts {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		in := &insts[i]
		if in.HasTarget {
			kind := RefJump
			if in.Flow == disasm.FlowCall {
				kind = RefCall
			}
			r := CrossReference{
				From: in.Addr,
				To:   in.Target,
				Kind: kind,
				Desc: fmt.Sprintf("%s %s 0x%x", in.Mnemonic, kind, in.Target),
			}
			t.add(r)
		}
		if in.HasMemTarget {
			kind := RefRead
			if in.MemWrite {
				kind = RefWrite
			}
			r := CrossReference{
				From: in.Addr,
				To:   in.MemTarget,
				Kind: kind,
				Desc: fmt.Sprintf("%s %ss 0x%x", in.Mnemonic, kind, in.MemTarget),
			}
			t.add(r)
		}
	}
	return t, nil
}
