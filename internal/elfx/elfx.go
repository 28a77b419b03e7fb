// Package elfx opens ELF binaries and extracts what the analysis engine
// needs: the raw image, the executable section, bitness, entry point and the
// raw import/export tables.
package elfx

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/wrharper/ZizzysReverseEngineering-sub000/internal/engine"
)

type Image struct {
	Path    string
	File    *elf.File
	All     []byte
	Bitness int
	Entry   uint64
	Loads   []Seg
	Text    Section
	Imports []engine.ImportEntry
	Exports []engine.ExportEntry
}

type Seg struct {
	Vaddr, Off, Filesz uint64
	Flags              elf.ProgFlag
}

type Section struct {
	Name          string
	VA, Off, Size uint64
}

// Open reads and parses an ELF file. Only 32- and 64-bit x86 machines are
// accepted; the decoder has no mode for anything else.
func Open(path string) (*Image, error) {
	all, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	f, err := elf.NewFile(bytes.NewReader(all))
	if err != nil {
		return nil, fmt.Errorf("parse elf: %w", err)
	}

	im := &Image{Path: path, File: f, All: all, Entry: f.Entry}
	switch f.Machine {
	case elf.EM_X86_64:
		im.Bitness = 64
	case elf.EM_386:
		im.Bitness = 32
	default:
		return nil, fmt.Errorf("unsupported machine %v", f.Machine)
	}

	for _, p := range f.Progs {
		if p.Type != elf.PT_LOAD {
			continue
		}
		im.Loads = append(im.Loads, Seg{
			Vaddr:  p.Vaddr,
			Off:    p.Off,
			Filesz: p.Filesz,
			Flags:  p.Flags,
		})
	}

	if s := f.Section(".text"); s != nil {
		im.Text = Section{s.Name, s.Addr, s.Offset, s.Size}
	} else {
		// Stripped section headers: fall back to the executable segment.
		for _, l := range im.Loads {
			if l.Flags&elf.PF_X != 0 && l.Filesz > 0 {
				im.Text = Section{"LOAD(exec)", l.Vaddr, l.Off, l.Filesz}
				break
			}
		}
	}
	if im.Text.Size == 0 {
		return nil, fmt.Errorf("no executable section in %s", path)
	}

	im.loadDynamicSymbols()
	return im, nil
}

// NewRaw wraps a flat binary blob with caller-supplied addressing. Used for
// shellcode and extracted code regions that carry no container format.
func NewRaw(data []byte, base uint64, bitness int, entry uint64) *Image {
	return &Image{
		Path:    "(raw)",
		All:     data,
		Bitness: bitness,
		Entry:   entry,
		Text:    Section{"raw", base, 0, uint64(len(data))},
	}
}

// VA2Off translates a virtual address into a file offset using PT_LOAD
// segments. It returns false if the VA is unmapped.
func (im *Image) VA2Off(va uint64) (uint64, bool) {
	for _, l := range im.Loads {
		if va >= l.Vaddr && va < l.Vaddr+l.Filesz {
			return l.Off + (va - l.Vaddr), true
		}
	}
	if va >= im.Text.VA && va < im.Text.VA+im.Text.Size {
		return im.Text.Off + (va - im.Text.VA), true
	}
	return 0, false
}

// Info packages the image for the engine.
func (im *Image) Info() engine.ImageInfo {
	return engine.ImageInfo{
		Bytes:   im.All,
		Bitness: im.Bitness,
		Entry:   im.Entry,
		Code: engine.SectionInfo{
			Name: im.Text.Name,
			Addr: im.Text.VA,
			Off:  im.Text.Off,
			Size: im.Text.Size,
		},
		Imports: im.Imports,
		Exports: im.Exports,
	}
}

// loadDynamicSymbols splits the dynamic symbol table into exports (defined
// functions/objects) and imports. Import addresses resolve to PLT stubs via
// the .rela.plt ordering; unresolvable imports are dropped since the engine
// keys symbols by address.
func (im *Image) loadDynamicSymbols() {
	syms, err := im.File.DynamicSymbols()
	if err != nil {
		return
	}

	for _, sym := range syms {
		if sym.Section == elf.SHN_UNDEF || sym.Value == 0 {
			continue
		}
		switch elf.ST_TYPE(sym.Info) {
		case elf.STT_FUNC, elf.STT_OBJECT:
		default:
			continue
		}
		switch elf.ST_BIND(sym.Info) {
		case elf.STB_GLOBAL, elf.STB_WEAK:
			im.Exports = append(im.Exports, engine.ExportEntry{Addr: sym.Value, Name: sym.Name})
		}
	}

	im.resolvePLTImports(syms)
}

// resolvePLTImports maps undefined dynamic symbols to their PLT stub
// addresses. The classic layout puts stub i at plt+16*(i+1), matching the
// i-th .rela.plt (or .rel.plt) entry.
func (im *Image) resolvePLTImports(syms []elf.Symbol) {
	plt := im.File.Section(".plt")
	if plt == nil {
		return
	}

	symIdx := func(info uint64) uint32 {
		if im.Bitness == 64 {
			return uint32(info >> 32)
		}
		return uint32(info >> 8)
	}

	var entries []uint32 // relocation symbol indexes, in PLT order
	if s := im.File.Section(".rela.plt"); s != nil {
		data, err := s.Data()
		if err != nil {
			return
		}
		sz := 24
		if im.Bitness == 32 {
			sz = 12
		}
		for off := 0; off+sz <= len(data); off += sz {
			var info uint64
			if im.Bitness == 64 {
				info = binary.LittleEndian.Uint64(data[off+8:])
			} else {
				info = uint64(binary.LittleEndian.Uint32(data[off+4:]))
			}
			entries = append(entries, symIdx(info))
		}
	} else if s := im.File.Section(".rel.plt"); s != nil {
		data, err := s.Data()
		if err != nil {
			return
		}
		sz := 16
		if im.Bitness == 32 {
			sz = 8
		}
		for off := 0; off+sz <= len(data); off += sz {
			var info uint64
			if im.Bitness == 64 {
				info = binary.LittleEndian.Uint64(data[off+8:])
			} else {
				info = uint64(binary.LittleEndian.Uint32(data[off+4:]))
			}
			entries = append(entries, symIdx(info))
		}
	} else {
		return
	}

	for i, idx := range entries {
		// Relocation symbol indexes are 1-based.
		if idx == 0 || int(idx) > len(syms) {
			continue
		}
		sym := syms[idx-1]
		if sym.Section != elf.SHN_UNDEF {
			continue
		}
		im.Imports = append(im.Imports, engine.ImportEntry{
			Addr:   plt.Addr + 16*uint64(i+1),
			Name:   sym.Name,
			Module: sym.Library,
		})
	}
}
