package engine

import (
	"fmt"
)

// Range is a half-open [Start, End) span of file offsets.
type Range struct {
	Start uint64
	End   uint64
}

// Len returns the number of offsets covered by the range.
func (r Range) Len() uint64 { return r.End - r.Start }

// Contains reports whether off falls inside the range.
func (r Range) Contains(off uint64) bool { return off >= r.Start && off < r.End }

// ErrOutOfRange is returned when an offset or length falls outside the
// loaded image. Writes are never partially applied and reads never clamped.
var ErrOutOfRange = fmt.Errorf("offset out of range")

// ByteStore holds the mutable copy of the binary alongside the pristine
// original, tracking which offsets have been modified. Subscribers get
// notified with the affected range after every successful write or revert.
type ByteStore struct {
	orig     []byte
	data     []byte
	modified []bool
	subs     []func(Range)
}

// NewByteStore copies b into a fresh store. The caller's slice is not
// retained.
func NewByteStore(b []byte) *ByteStore {
	s := &ByteStore{
		orig:     make([]byte, len(b)),
		data:     make([]byte, len(b)),
		modified: make([]bool, len(b)),
	}
	copy(s.orig, b)
	copy(s.data, b)
	return s
}

// Len returns the image size in bytes.
func (s *ByteStore) Len() uint64 { return uint64(len(s.data)) }

// Subscribe registers fn to be called with the affected range after every
// write or revert.
func (s *ByteStore) Subscribe(fn func(Range)) {
	s.subs = append(s.subs, fn)
}

func (s *ByteStore) notify(r Range) {
	for _, fn := range s.subs {
		fn(r)
	}
}

func (s *ByteStore) check(off, n uint64) error {
	if off > uint64(len(s.data)) || n > uint64(len(s.data))-off {
		return fmt.Errorf("%w: offset %#x length %d, image size %d", ErrOutOfRange, off, n, len(s.data))
	}
	return nil
}

// Read returns a copy of n bytes starting at off.
func (s *ByteStore) Read(off, n uint64) ([]byte, error) {
	if err := s.check(off, n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, s.data[off:off+n])
	return out, nil
}

// Bytes returns the live backing slice. Callers must not mutate it; it is
// exposed for decode passes that would otherwise copy the whole image.
func (s *ByteStore) Bytes() []byte { return s.data }

// Write replaces len(b) bytes at off and returns the affected range. An
// offset counts as modified while its byte differs from the original, so a
// write that restores original values clears the mark. The write is validated
// up front and never partially applied.
func (s *ByteStore) Write(off uint64, b []byte) (Range, error) {
	if err := s.check(off, uint64(len(b))); err != nil {
		return Range{}, err
	}
	copy(s.data[off:], b)
	for i := range b {
		o := off + uint64(i)
		s.modified[o] = s.data[o] != s.orig[o]
	}
	r := Range{Start: off, End: off + uint64(len(b))}
	s.notify(r)
	return r, nil
}

// Revert restores the original bytes over r and clears the modified marks.
func (s *ByteStore) Revert(r Range) error {
	if err := s.check(r.Start, r.Len()); err != nil {
		return err
	}
	copy(s.data[r.Start:r.End], s.orig[r.Start:r.End])
	for i := r.Start; i < r.End; i++ {
		s.modified[i] = false
	}
	s.notify(r)
	return nil
}

// Modified reports whether any offset in [off, off+n) has been written.
func (s *ByteStore) Modified(off, n uint64) bool {
	if off >= uint64(len(s.modified)) {
		return false
	}
	end := off + n
	if end > uint64(len(s.modified)) {
		end = uint64(len(s.modified))
	}
	for i := off; i < end; i++ {
		if s.modified[i] {
			return true
		}
	}
	return false
}

// ModifiedRanges yields the coalesced runs of modified offsets in ascending
// order.
func (s *ByteStore) ModifiedRanges() []Range {
	var out []Range
	var cur *Range
	for i, m := range s.modified {
		off := uint64(i)
		switch {
		case m && cur == nil:
			out = append(out, Range{Start: off, End: off + 1})
			cur = &out[len(out)-1]
		case m:
			cur.End = off + 1
		default:
			cur = nil
		}
	}
	return out
}
