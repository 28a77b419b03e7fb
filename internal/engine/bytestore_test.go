package engine

import (
	"bytes"
	"errors"
	"testing"
)

func TestByteStoreWriteRead(t *testing.T) {
	s := NewByteStore([]byte{0x55, 0x48, 0x89, 0xE5, 0xC3})

	r, err := s.Write(1, []byte{0x90, 0x90})
	if err != nil {
		t.Fatal(err)
	}
	if r.Start != 1 || r.End != 3 {
		t.Errorf("range = [%#x, %#x), want [0x1, 0x3)", r.Start, r.End)
	}

	got, err := s.Read(0, 5)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte{0x55, 0x90, 0x90, 0xE5, 0xC3}) {
		t.Errorf("bytes = % x", got)
	}
}

func TestByteStoreOutOfRange(t *testing.T) {
	s := NewByteStore(make([]byte, 4))

	if _, err := s.Write(3, []byte{1, 2}); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("write: err = %v, want ErrOutOfRange", err)
	}
	// The failed write must not be partially applied.
	got, _ := s.Read(3, 1)
	if got[0] != 0 {
		t.Errorf("byte 3 = %#x after failed write", got[0])
	}
	if _, err := s.Read(5, 1); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("read: err = %v, want ErrOutOfRange", err)
	}
}

func TestByteStoreModifiedRanges(t *testing.T) {
	s := NewByteStore(make([]byte, 10))
	mustWrite := func(off uint64, b []byte) {
		t.Helper()
		if _, err := s.Write(off, b); err != nil {
			t.Fatal(err)
		}
	}
	mustWrite(1, []byte{1})
	mustWrite(2, []byte{2, 3})
	mustWrite(7, []byte{4})

	got := s.ModifiedRanges()
	want := []Range{{1, 4}, {7, 8}}
	if len(got) != len(want) {
		t.Fatalf("ranges = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("range %d = %v, want %v", i, got[i], want[i])
		}
	}

	if !s.Modified(2, 1) || s.Modified(5, 2) {
		t.Error("Modified() disagrees with ModifiedRanges()")
	}
}

func TestByteStoreRevert(t *testing.T) {
	s := NewByteStore([]byte{0xAA, 0xBB, 0xCC})
	if _, err := s.Write(0, []byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	if err := s.Revert(Range{0, 2}); err != nil {
		t.Fatal(err)
	}

	got, _ := s.Read(0, 3)
	if !bytes.Equal(got, []byte{0xAA, 0xBB, 3}) {
		t.Errorf("bytes = % x", got)
	}
	ranges := s.ModifiedRanges()
	if len(ranges) != 1 || ranges[0] != (Range{2, 3}) {
		t.Errorf("ranges = %v, want [{2 3}]", ranges)
	}
}

func TestByteStoreWriteBackOriginal(t *testing.T) {
	s := NewByteStore([]byte{0xAA, 0xBB})
	if _, err := s.Write(0, []byte{1, 2}); err != nil {
		t.Fatal(err)
	}
	// Writing the original values back clears the modification marks.
	if _, err := s.Write(0, []byte{0xAA, 0xBB}); err != nil {
		t.Fatal(err)
	}
	if s.Modified(0, 2) {
		t.Error("restored bytes still marked modified")
	}
}

func TestByteStoreNotify(t *testing.T) {
	s := NewByteStore(make([]byte, 8))
	var seen []Range
	s.Subscribe(func(r Range) { seen = append(seen, r) })

	if _, err := s.Write(2, []byte{9}); err != nil {
		t.Fatal(err)
	}
	if err := s.Revert(Range{2, 3}); err != nil {
		t.Fatal(err)
	}
	if len(seen) != 2 || seen[0] != (Range{2, 3}) || seen[1] != (Range{2, 3}) {
		t.Errorf("notifications = %v", seen)
	}
}
