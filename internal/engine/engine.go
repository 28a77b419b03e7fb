// Package engine reconstructs program structure (basic blocks, control-flow
// graphs, functions, cross-references, symbols) from a decoded instruction
// stream and keeps it consistent while the underlying bytes are patched.
//
// One Engine exists per loaded image and all mutation on it must be
// serialized by the caller; read queries may run concurrently with each
// other but not with a mutation. The engine performs no I/O.
package engine

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/wrharper/ZizzysReverseEngineering-sub000/internal/disasm"
)

// SectionInfo describes one section of the loaded image.
type SectionInfo struct {
	Name string
	Addr uint64
	Off  uint64
	Size uint64
}

// ImportEntry is one raw import table row as the image loader supplied it.
type ImportEntry struct {
	Addr   uint64
	Name   string
	Module string
}

// ExportEntry is one raw export table row.
type ExportEntry struct {
	Addr uint64
	Name string
}

// ImageInfo is everything the image loader collaborator hands the engine:
// the initial bytes, the executable section to analyze, addressing mode and
// the raw import/export tables.
type ImageInfo struct {
	Bytes   []byte
	Bitness int // 32 or 64
	Entry   uint64
	Code    SectionInfo
	Imports []ImportEntry
	Exports []ExportEntry
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger attaches a structured logger used by long analysis passes.
func WithLogger(l *log.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithProloguePatterns overrides the built-in prologue pattern list.
func WithProloguePatterns(p []ProloguePattern) Option {
	return func(e *Engine) { e.patterns = p }
}

// WithHistoryCap overrides the undo history capacity.
func WithHistoryCap(n int) Option {
	return func(e *Engine) { e.hist = NewUndoHistory(n) }
}

// Engine is the explicit handle holding one image's byte store, instruction
// index and derived structures. There is no process-wide current image;
// every stage receives the handle.
type Engine struct {
	img   ImageInfo
	store *ByteStore
	index *Index

	funcs *FunctionTable
	xrefs *XRefTable
	syms  *SymbolTable
	notes map[uint64]string

	hist     *UndoHistory
	patterns []ProloguePattern
	log      *log.Logger
}

// New builds an engine over img, performing the initial full decode of the
// executable section with dec.
func New(img ImageInfo, dec disasm.Decoder, opts ...Option) (*Engine, error) {
	if img.Bitness != 32 && img.Bitness != 64 {
		return nil, fmt.Errorf("unsupported bitness %d", img.Bitness)
	}
	if img.Code.Off+img.Code.Size > uint64(len(img.Bytes)) {
		return nil, fmt.Errorf("%w: code section [%#x, %#x) exceeds image size %d",
			ErrOutOfRange, img.Code.Off, img.Code.Off+img.Code.Size, len(img.Bytes))
	}
	e := &Engine{
		img:   img,
		store: NewByteStore(img.Bytes),
		index: NewIndex(dec, img.Bitness),
		notes: make(map[uint64]string),
		hist:  NewUndoHistory(DefaultHistoryCap),
		log:   log.Default(),
	}
	e.patterns = DefaultProloguePatterns(img.Bitness)
	for _, o := range opts {
		o(e)
	}
	code := e.store.Bytes()[img.Code.Off : img.Code.Off+img.Code.Size]
	e.index.DecodeAll(code, img.Code.Addr, img.Code.Off, img.Code.Name)
	return e, nil
}

// Store returns the byte store.
func (e *Engine) Store() *ByteStore { return e.store }

// Index returns the instruction index.
func (e *Engine) Index() *Index { return e.index }

// Functions returns the function table from the last completed analysis.
func (e *Engine) Functions() *FunctionTable { return e.funcs }

// Symbols returns the symbol table from the last completed analysis.
func (e *Engine) Symbols() *SymbolTable { return e.syms }

// XRefs returns the cross-reference table from the last completed analysis.
func (e *Engine) XRefs() *XRefTable { return e.xrefs }

// History returns the patch history.
func (e *Engine) History() *UndoHistory { return e.hist }

// AnalysisReport summarizes one completed analysis run.
type AnalysisReport struct {
	Entry        uint64         `json:"entry" jsonschema:"title=Entry Point,description=Virtual address of the image entry point"`
	Instructions int            `json:"instructions" jsonschema:"title=Instructions,description=Decoded instruction count"`
	Functions    int            `json:"functions" jsonschema:"title=Functions,description=Discovered function count"`
	Blocks       int            `json:"blocks" jsonschema:"title=Basic Blocks,description=Total basic block count"`
	XRefs        int            `json:"xrefs" jsonschema:"title=Cross References,description=Recorded cross-reference count"`
	Symbols      int            `json:"symbols" jsonschema:"title=Symbols,description=Resolved symbol count"`
	BySource     map[string]int `json:"bySource" jsonschema:"title=Discovery Sources,description=Function count per discovery heuristic"`
}

// Analyze rebuilds functions, cross-references and symbols from the current
// instruction index. The pass is cancellable through ctx; on cancellation
// the previously published structures remain untouched, since the new ones
// are only swapped in after every pass has finished.
func (e *Engine) Analyze(ctx context.Context) (*AnalysisReport, error) {
	funcs, err := FindFunctions(ctx, e.index, e.img.Entry, e.img.Exports, e.patterns)
	if err != nil {
		return nil, fmt.Errorf("function discovery: %w", err)
	}
	xrefs, err := BuildXRefs(ctx, e.index)
	if err != nil {
		return nil, fmt.Errorf("cross-reference scan: %w", err)
	}
	syms := BuildSymbols(funcs, e.img.Imports, e.img.Exports, e.notes)

	// Commit: swap the snapshot, then refresh per-instruction annotations.
	e.funcs, e.xrefs, e.syms = funcs, xrefs, syms
	e.annotate()

	rep := &AnalysisReport{
		Entry:        e.img.Entry,
		Instructions: len(e.index.Instructions()),
		Functions:    funcs.Len(),
		XRefs:        xrefs.Count,
		Symbols:      syms.Len(),
		BySource:     make(map[string]int),
	}
	for _, f := range funcs.All() {
		rep.Blocks += f.Blocks
		rep.BySource[f.Source.String()]++
	}
	e.log.Debug("analysis complete",
		"functions", rep.Functions, "blocks", rep.Blocks, "xrefs", rep.XRefs)
	return rep, nil
}

// annotate writes ownership, reference, symbol and patch marks onto the
// instructions. Runs only after a successful analysis.
func (e *Engine) annotate() {
	insts := e.index.Instructions()
	for i := range insts {
		in := &insts[i]
		in.Func, in.Block, in.Refs = 0, 0, nil
		in.Symbol = e.syms.Name(in.Addr)
		in.Note = e.notes[in.Addr]
		in.Patched = e.store.Modified(in.Off, uint64(in.Len))
		if refs, ok := e.xrefs.Outgoing[in.Addr]; ok {
			in.Refs = refs
		}
	}
	for _, f := range e.funcs.All() {
		for _, b := range f.CFG.Blocks {
			for i := b.First; i < b.Last && i < len(insts); i++ {
				insts[i].Func = f.Addr
				insts[i].Block = b.Start
			}
		}
	}
}

// PatchResult describes an applied patch and the re-decode it triggered.
type PatchResult struct {
	Written  Range
	Redecode RedecodeResult
}

// FullReanalysisRecommended reports that the bounded re-decode never reached
// stability and ran to the end of the section, so derived structures past
// the edit may be stale.
func (r *PatchResult) FullReanalysisRecommended() bool {
	return r.Redecode.RanToEnd
}

// redecodeAfterWrite re-decodes the index window affected by a write to
// [off, off+n). Writes entirely outside the decoded code region (data bytes)
// need no re-decode and yield a zero result; writes straddling the region
// start re-decode from the region's first boundary.
func (e *Engine) redecodeAfterWrite(off, n uint64) (RedecodeResult, error) {
	lo := e.index.off0
	hi := e.index.off0 + e.index.size
	if e.index.size == 0 || off+n <= lo || off >= hi {
		return RedecodeResult{}, nil
	}
	start := off
	if start < lo {
		start = lo
	}
	return e.index.Redecode(e.store, start)
}

// ApplyPatch writes b at file offset off, re-decodes the affected window and
// records an undo entry. Encoding assembly text to bytes happens in the
// caller before this point. The write is rejected whole if out of range, and
// a failed re-decode reverts the write so no partial state survives an
// error return.
func (e *Engine) ApplyPatch(off uint64, b []byte, desc string) (*PatchResult, error) {
	old, err := e.store.Read(off, uint64(len(b)))
	if err != nil {
		return nil, err
	}
	written, err := e.store.Write(off, b)
	if err != nil {
		return nil, err
	}
	res, err := e.redecodeAfterWrite(off, uint64(len(b)))
	if err != nil {
		_, _ = e.store.Write(off, old)
		return nil, err
	}
	e.hist.Push(PatchCommand{Off: off, Old: old, New: append([]byte(nil), b...), Desc: desc})
	e.log.Debug("patch applied", "offset", fmt.Sprintf("%#x", off),
		"bytes", len(b), "replaced", res.Replaced, "ranToEnd", res.RanToEnd)
	return &PatchResult{Written: written, Redecode: res}, nil
}

// Undo reverts the most recent patch. Returns false if the history is empty.
// Failures restore both the bytes and the history stacks.
func (e *Engine) Undo() (*PatchResult, bool, error) {
	c, ok := e.hist.Undo()
	if !ok {
		return nil, false, nil
	}
	written, err := e.store.Write(c.Off, c.Old)
	if err != nil {
		e.hist.Redo()
		return nil, true, err
	}
	res, err := e.redecodeAfterWrite(c.Off, uint64(len(c.Old)))
	if err != nil {
		_, _ = e.store.Write(c.Off, c.New)
		e.hist.Redo()
		return nil, true, err
	}
	return &PatchResult{Written: written, Redecode: res}, true, nil
}

// Redo re-applies the most recently undone patch. Failures restore both the
// bytes and the history stacks.
func (e *Engine) Redo() (*PatchResult, bool, error) {
	c, ok := e.hist.Redo()
	if !ok {
		return nil, false, nil
	}
	written, err := e.store.Write(c.Off, c.New)
	if err != nil {
		e.hist.Undo()
		return nil, true, err
	}
	res, err := e.redecodeAfterWrite(c.Off, uint64(len(c.New)))
	if err != nil {
		_, _ = e.store.Write(c.Off, c.Old)
		e.hist.Undo()
		return nil, true, err
	}
	return &PatchResult{Written: written, Redecode: res}, true, nil
}

// Annotate records a user name for addr. It takes effect on the next
// Analyze, where it outranks every other symbol source.
func (e *Engine) Annotate(addr uint64, name string) {
	e.notes[addr] = name
}

// InstructionAt returns the instruction whose span covers addr.
func (e *Engine) InstructionAt(addr uint64) (*Instruction, bool) {
	return e.index.Containing(addr)
}

// FunctionAt returns the function whose span covers addr.
func (e *Engine) FunctionAt(addr uint64) (*Function, bool) {
	if e.funcs == nil {
		return nil, false
	}
	return e.funcs.Containing(addr)
}

// SymbolName resolves addr to a display name, or "" if unknown.
func (e *Engine) SymbolName(addr uint64) string {
	if e.syms == nil {
		return ""
	}
	return e.syms.Name(addr)
}

// RefsFrom returns the outgoing cross-references of the instruction at addr.
func (e *Engine) RefsFrom(addr uint64) []CrossReference {
	if e.xrefs == nil {
		return nil
	}
	return e.xrefs.Outgoing[addr]
}

// RefsTo returns the cross-references targeting addr.
func (e *Engine) RefsTo(addr uint64) []CrossReference {
	if e.xrefs == nil {
		return nil
	}
	return e.xrefs.Incoming[addr]
}

// SearchBytes parses pattern and scans the whole byte store, returning the
// matches with virtual addresses relative to the code section mapping.
func (e *Engine) SearchBytes(pattern string) ([]Match, error) {
	p, err := ParseBytePattern(pattern)
	if err != nil {
		return nil, err
	}
	base := e.img.Code.Addr - e.img.Code.Off
	return p.Scan(e.store, base), nil
}
