package engine

// PatchCommand records one user-originated byte edit with enough information
// to undo and redo it. Purely internal re-decodes never create commands.
type PatchCommand struct {
	Off  uint64
	Old  []byte
	New  []byte
	Desc string
}

// DefaultHistoryCap bounds the undo history.
const DefaultHistoryCap = 100

// UndoHistory is a bounded LIFO undo stack with a matching redo stack. A new
// command clears the redo side; exceeding capacity prunes the oldest entry.
type UndoHistory struct {
	cap  int
	undo []PatchCommand
	redo []PatchCommand
}

// NewUndoHistory creates a history bounded at capacity (DefaultHistoryCap if
// capacity <= 0).
func NewUndoHistory(capacity int) *UndoHistory {
	if capacity <= 0 {
		capacity = DefaultHistoryCap
	}
	return &UndoHistory{cap: capacity}
}

// Push records a freshly applied command.
func (h *UndoHistory) Push(c PatchCommand) {
	h.undo = append(h.undo, c)
	if len(h.undo) > h.cap {
		h.undo = h.undo[1:]
	}
	h.redo = h.redo[:0]
}

// Undo pops the most recent command, moving it to the redo stack.
func (h *UndoHistory) Undo() (PatchCommand, bool) {
	if len(h.undo) == 0 {
		return PatchCommand{}, false
	}
	c := h.undo[len(h.undo)-1]
	h.undo = h.undo[:len(h.undo)-1]
	h.redo = append(h.redo, c)
	return c, true
}

// Redo pops the most recently undone command, moving it back to the undo
// stack.
func (h *UndoHistory) Redo() (PatchCommand, bool) {
	if len(h.redo) == 0 {
		return PatchCommand{}, false
	}
	c := h.redo[len(h.redo)-1]
	h.redo = h.redo[:len(h.redo)-1]
	h.undo = append(h.undo, c)
	return c, true
}

// Depth returns the number of undoable commands.
func (h *UndoHistory) Depth() int { return len(h.undo) }

// RedoDepth returns the number of redoable commands.
func (h *UndoHistory) RedoDepth() int { return len(h.redo) }
