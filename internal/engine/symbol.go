package engine

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ianlancetaylor/demangle"
)

// SymbolKind classifies a symbol table entry.
type SymbolKind int

const (
	SymFunction SymbolKind = iota
	SymData
	SymImport
	SymExport
	SymString
	SymUser
)

func (k SymbolKind) String() string {
	switch k {
	case SymFunction:
		return "function"
	case SymData:
		return "data"
	case SymImport:
		return "import"
	case SymExport:
		return "export"
	case SymString:
		return "string"
	case SymUser:
		return "user"
	}
	return "?"
}

// Symbol is one address-keyed name. Raw holds the undecorated name as the
// image supplied it; Name is the demangled display form.
type Symbol struct {
	Addr    uint64
	Name    string
	Raw     string
	Kind    SymbolKind
	Section string
	Size    uint64
	Module  string // source library, imports only
}

// rank orders resolution precedence: user annotation beats export beats
// import beats discovered function beats the synthesized default.
func (k SymbolKind) rank() int {
	switch k {
	case SymUser:
		return 5
	case SymExport:
		return 4
	case SymImport:
		return 3
	case SymFunction:
		return 2
	}
	return 1
}

var demangleCache sync.Map // mangled -> demangled

// Demangle returns the human-readable form of a decorated symbol name,
// caching results since listings resolve the same names repeatedly.
func Demangle(mangled string) string {
	if !strings.HasPrefix(mangled, "_Z") {
		return mangled
	}
	if v, ok := demangleCache.Load(mangled); ok {
		return v.(string)
	}
	out := demangle.Filter(mangled, demangle.NoClones)
	demangleCache.Store(mangled, out)
	return out
}

// SymbolTable maps addresses to symbols, one symbol per address. Duplicate
// names across addresses are permitted.
type SymbolTable struct {
	byAddr map[uint64]Symbol
	byName map[string][]uint64
}

// NewSymbolTable returns an empty table.
func NewSymbolTable() *SymbolTable {
	return &SymbolTable{
		byAddr: make(map[uint64]Symbol),
		byName: make(map[string][]uint64),
	}
}

// put inserts sym unless the existing entry outranks it. Replacing an entry
// also replaces its name index mapping, so exact-name lookup never reports
// an address whose symbol has been renamed.
func (t *SymbolTable) put(sym Symbol) {
	if old, ok := t.byAddr[sym.Addr]; ok {
		if old.Kind.rank() >= sym.Kind.rank() {
			return
		}
		t.dropName(old.Name, old.Addr)
	}
	t.byAddr[sym.Addr] = sym
	for _, a := range t.byName[sym.Name] {
		if a == sym.Addr {
			return
		}
	}
	t.byName[sym.Name] = append(t.byName[sym.Name], sym.Addr)
}

// dropName removes addr from the name index, deleting the key once empty.
func (t *SymbolTable) dropName(name string, addr uint64) {
	addrs := t.byName[name]
	for i, a := range addrs {
		if a == addr {
			addrs = append(addrs[:i], addrs[i+1:]...)
			break
		}
	}
	if len(addrs) == 0 {
		delete(t.byName, name)
		return
	}
	t.byName[name] = addrs
}

// At returns the symbol at addr.
func (t *SymbolTable) At(addr uint64) (Symbol, bool) {
	s, ok := t.byAddr[addr]
	return s, ok
}

// Name returns the resolved display name at addr, or "" if none.
func (t *SymbolTable) Name(addr uint64) string {
	return t.byAddr[addr].Name
}

// AddrsOf returns every address carrying the exact name, ascending.
func (t *SymbolTable) AddrsOf(name string) []uint64 {
	addrs := append([]uint64(nil), t.byName[name]...)
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
	return addrs
}

// All returns the symbols in ascending address order.
func (t *SymbolTable) All() []Symbol {
	out := make([]Symbol, 0, len(t.byAddr))
	for _, s := range t.byAddr {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Addr < out[j].Addr })
	return out
}

// Len returns the number of symbols.
func (t *SymbolTable) Len() int { return len(t.byAddr) }

// BuildSymbols merges discovered functions, the import and export tables and
// user annotations into one table. Precedence on collision is
// user > export > import > discovered function; unnamed functions get a
// synthesized sub_<addr> default.
func BuildSymbols(funcs *FunctionTable, imports []ImportEntry, exports []ExportEntry, notes map[uint64]string) *SymbolTable {
	t := NewSymbolTable()

	for _, f := range funcs.All() {
		name := f.Name
		if name == "" {
			name = fmt.Sprintf("sub_%x", f.Addr)
		}
		t.put(Symbol{
			Addr: f.Addr,
			Name: Demangle(name),
			Raw:  name,
			Kind: SymFunction,
		})
	}
	for _, im := range imports {
		t.put(Symbol{
			Addr:   im.Addr,
			Name:   Demangle(im.Name),
			Raw:    im.Name,
			Kind:   SymImport,
			Module: im.Module,
		})
	}
	for _, ex := range exports {
		t.put(Symbol{
			Addr: ex.Addr,
			Name: Demangle(ex.Name),
			Raw:  ex.Name,
			Kind: SymExport,
		})
	}
	for addr, name := range notes {
		t.put(Symbol{Addr: addr, Name: name, Raw: name, Kind: SymUser})
	}
	return t
}
