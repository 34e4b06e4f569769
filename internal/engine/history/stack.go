package history

import (
	"errors"
	"sync"
	"time"
)

// Common errors for history operations.
var (
	ErrNothingToUndo = errors.New("nothing to undo")
	ErrNothingToRedo = errors.New("nothing to redo")
)

// History manages the undo/redo stacks of committed transactions.
// Records enter in commit order, so a chained child always sits above
// its parent on the undo stack and is reverted first.
type History struct {
	mu sync.Mutex

	undoStack []*Record
	redoStack []*Record
	bySeq     map[uint64]*Record

	nextSeq    uint64
	maxEntries int
}

// New creates a history keeping at most maxEntries undoable
// transactions.
func New(maxEntries int) *History {
	if maxEntries <= 0 {
		maxEntries = 1000 // Default
	}
	return &History{
		bySeq:      make(map[uint64]*Record),
		maxEntries: maxEntries,
	}
}

// NextSeq allocates the next transaction sequence number.
func (h *History) NextSeq() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextSeq++
	return h.nextSeq
}

// SkipTo advances sequence allocation past seq. Used when resuming on
// top of a persisted journal so new transactions never collide with
// recorded ones. Moving backwards is a no-op.
func (h *History) SkipTo(seq uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if seq > h.nextSeq {
		h.nextSeq = seq
	}
}

// Push adds a committed record to the undo stack and clears the redo
// stack.
func (h *History) Push(rec *Record) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pushLocked(rec)
}

func (h *History) pushLocked(rec *Record) {
	h.undoStack = append(h.undoStack, rec)
	h.bySeq[rec.Seq] = rec

	// Clear redo stack; those futures are no longer reachable.
	for _, dead := range h.redoStack {
		delete(h.bySeq, dead.Seq)
	}
	h.redoStack = nil

	// Enforce max entries
	if len(h.undoStack) > h.maxEntries {
		excess := len(h.undoStack) - h.maxEntries
		for _, old := range h.undoStack[:excess] {
			delete(h.bySeq, old.Seq)
		}
		h.undoStack = h.undoStack[excess:]
	}
}

// Link records that child was chained from parent.
func (h *History) Link(parent, child *Record) {
	parent.addChild(child.Seq)
}

// Lookup finds a record by sequence number. Records fall out of reach
// once trimmed from the undo stack or dropped from a cleared redo
// stack.
func (h *History) Lookup(seq uint64) (*Record, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	rec, ok := h.bySeq[seq]
	return rec, ok
}

// Undo pops the newest applied record and runs revert on it. The lock
// is released during revert so store work does not block history
// readers. On failure the record is restored to the undo stack; on
// success it moves to the redo stack and is returned.
func (h *History) Undo(revert func(*Record) error) (*Record, error) {
	h.mu.Lock()
	if len(h.undoStack) == 0 {
		h.mu.Unlock()
		return nil, ErrNothingToUndo
	}
	rec := h.undoStack[len(h.undoStack)-1]
	h.undoStack = h.undoStack[:len(h.undoStack)-1]
	h.mu.Unlock()

	if err := revert(rec); err != nil {
		// Restore entry on failure
		h.mu.Lock()
		h.undoStack = append(h.undoStack, rec)
		h.mu.Unlock()
		return nil, err
	}

	rec.setStatus(StatusUndone)
	h.mu.Lock()
	h.redoStack = append(h.redoStack, rec)
	h.mu.Unlock()
	return rec, nil
}

// Redo pops the newest undone record and runs reapply on it. On
// failure the record returns to the redo stack; on success it moves
// back to the undo stack and is returned.
func (h *History) Redo(reapply func(*Record) error) (*Record, error) {
	h.mu.Lock()
	if len(h.redoStack) == 0 {
		h.mu.Unlock()
		return nil, ErrNothingToRedo
	}
	rec := h.redoStack[len(h.redoStack)-1]
	h.redoStack = h.redoStack[:len(h.redoStack)-1]
	h.mu.Unlock()

	if err := reapply(rec); err != nil {
		// Restore entry on failure
		h.mu.Lock()
		h.redoStack = append(h.redoStack, rec)
		h.mu.Unlock()
		return nil, err
	}

	rec.setStatus(StatusRedone)
	h.mu.Lock()
	h.undoStack = append(h.undoStack, rec)
	h.mu.Unlock()
	return rec, nil
}

// CanUndo returns true if undo is available.
func (h *History) CanUndo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.undoStack) > 0
}

// CanRedo returns true if redo is available.
func (h *History) CanRedo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.redoStack) > 0
}

// UndoCount returns the number of undoable transactions.
func (h *History) UndoCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.undoStack)
}

// RedoCount returns the number of redoable transactions.
func (h *History) RedoCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.redoStack)
}

// Checkpoint marks a history position. Rolling back to a checkpoint
// undoes every transaction committed after it.
type Checkpoint uint64

// Checkpoint returns a marker for the top of the undo stack.
func (h *History) Checkpoint() Checkpoint {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.undoStack) == 0 {
		return 0
	}
	return Checkpoint(h.undoStack[len(h.undoStack)-1].Seq)
}

// AboveCheckpoint reports whether the top of the undo stack committed
// after the checkpoint was taken.
func (h *History) AboveCheckpoint(cp Checkpoint) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.undoStack) == 0 {
		return false
	}
	return h.undoStack[len(h.undoStack)-1].Seq > uint64(cp)
}

// Clear removes all undo/redo history.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.undoStack = nil
	h.redoStack = nil
	h.bySeq = make(map[uint64]*Record)
}

// OperationInfo describes one stack entry for display.
type OperationInfo struct {
	Seq        uint64
	Label      string
	Status     Status
	When       time.Time
	Directives int
}

func info(rec *Record) OperationInfo {
	return OperationInfo{
		Seq:        rec.Seq,
		Label:      rec.Label,
		Status:     rec.Status(),
		When:       rec.When,
		Directives: len(rec.Outcomes()),
	}
}

// UndoInfo returns info about available undo operations, oldest first.
func (h *History) UndoInfo() []OperationInfo {
	h.mu.Lock()
	defer h.mu.Unlock()
	result := make([]OperationInfo, len(h.undoStack))
	for i, rec := range h.undoStack {
		result[i] = info(rec)
	}
	return result
}

// RedoInfo returns info about available redo operations.
func (h *History) RedoInfo() []OperationInfo {
	h.mu.Lock()
	defer h.mu.Unlock()
	result := make([]OperationInfo, len(h.redoStack))
	for i, rec := range h.redoStack {
		result[i] = info(rec)
	}
	return result
}

// PeekUndo returns info about the next undo operation without removing it.
func (h *History) PeekUndo() (OperationInfo, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.undoStack) == 0 {
		return OperationInfo{}, false
	}
	return info(h.undoStack[len(h.undoStack)-1]), true
}

// PeekRedo returns info about the next redo operation without removing it.
func (h *History) PeekRedo() (OperationInfo, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.redoStack) == 0 {
		return OperationInfo{}, false
	}
	return info(h.redoStack[len(h.redoStack)-1]), true
}

// SetMaxEntries changes the maximum number of undoable transactions.
// If the current stack is larger, oldest entries are removed.
func (h *History) SetMaxEntries(max int) {
	if max <= 0 {
		max = 1000
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.maxEntries = max
	if len(h.undoStack) > max {
		excess := len(h.undoStack) - max
		for _, old := range h.undoStack[:excess] {
			delete(h.bySeq, old.Seq)
		}
		h.undoStack = h.undoStack[excess:]
	}
}

// MaxEntries returns the maximum number of undoable transactions.
func (h *History) MaxEntries() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.maxEntries
}
