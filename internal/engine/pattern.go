package engine

import (
	"fmt"
	"strconv"
	"strings"
)

// ErrPatternSyntax is returned for malformed byte patterns, before any
// scanning begins.
var ErrPatternSyntax = fmt.Errorf("malformed byte pattern")

// BytePattern is a fixed-length byte matcher. Each token matches exactly one
// byte; the wildcard token "??" matches any byte. No regex semantics, no
// backtracking.
type BytePattern struct {
	raw  string
	toks []int16 // 0..255 literal, -1 wildcard
}

// ParseBytePattern parses a whitespace-separated pattern such as
// "55 8B ?? C3".
func ParseBytePattern(s string) (*BytePattern, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: empty pattern", ErrPatternSyntax)
	}
	toks := make([]int16, len(fields))
	for i, f := range fields {
		if f == "??" || f == "?" {
			toks[i] = -1
			continue
		}
		v, err := strconv.ParseUint(f, 16, 8)
		if err != nil {
			return nil, fmt.Errorf("%w: token %q", ErrPatternSyntax, f)
		}
		toks[i] = int16(v)
	}
	return &BytePattern{raw: s, toks: toks}, nil
}

// Len returns the pattern length in bytes.
func (p *BytePattern) Len() int { return len(p.toks) }

func (p *BytePattern) String() string { return p.raw }

// matchAt tests the pattern against data starting at i.
func (p *BytePattern) matchAt(data []byte, i int) bool {
	if i+len(p.toks) > len(data) {
		return false
	}
	for k, t := range p.toks {
		if t >= 0 && data[i+k] != byte(t) {
			return false
		}
	}
	return true
}

// Match is one pattern hit. Addr is the virtual address of the first matched
// byte, Off the file offset, Bytes the matched span.
type Match struct {
	Addr  uint64
	Off   uint64
	Bytes []byte
	Desc  string
}

// Scan walks the byte store and returns every non-overlapping match in
// address order. base is the virtual address of offset zero.
func (p *BytePattern) Scan(store *ByteStore, base uint64) []Match {
	data := store.Bytes()
	var out []Match
	for i := 0; i+len(p.toks) <= len(data); {
		if !p.matchAt(data, i) {
			i++
			continue
		}
		span := make([]byte, len(p.toks))
		copy(span, data[i:i+len(p.toks)])
		out = append(out, Match{
			Addr:  base + uint64(i),
			Off:   uint64(i),
			Bytes: span,
			Desc:  fmt.Sprintf("pattern %q", p.raw),
		})
		i += len(p.toks)
	}
	return out
}

// InstPredicate tests one decoded instruction.
type InstPredicate func(*Instruction) bool

// MatchInstructions scans the index for runs of consecutive instructions
// satisfying seq in order and returns the non-overlapping matches in address
// order. desc is attached to each match.
func MatchInstructions(ix *Index, seq []InstPredicate, desc string) []Match {
	if len(seq) == 0 {
		return nil
	}
	insts := ix.Instructions()
	var out []Match
	for i := 0; i+len(seq) <= len(insts); {
		ok := true
		for k, pred := range seq {
			if !pred(&insts[i+k]) {
				ok = false
				break
			}
		}
		if !ok {
			i++
			continue
		}
		var span []byte
		for k := 0; k < len(seq); k++ {
			span = append(span, insts[i+k].Bytes...)
		}
		out = append(out, Match{
			Addr:  insts[i].Addr,
			Off:   insts[i].Off,
			Bytes: span,
			Desc:  desc,
		})
		i += len(seq)
	}
	return out
}
