package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/paulmach/orb"

	"github.com/dshills/geostorm/internal/engine/descriptor"
	"github.com/dshills/geostorm/internal/engine/feature"
	"github.com/dshills/geostorm/internal/engine/history"
	"github.com/dshills/geostorm/internal/engine/kernel"
	"github.com/dshills/geostorm/internal/engine/store"
	"github.com/dshills/geostorm/internal/logx"
)

// Re-export commonly used types for convenience.
type (
	// ID identifies a feature within its collection.
	ID = feature.ID

	// Feature is a stored feature: geometry plus attributes.
	Feature = feature.Feature

	// Attributes is a feature's attribute map.
	Attributes = feature.Attributes

	// Value is a typed attribute value.
	Value = feature.Value

	// Snapshot is an immutable full image of a feature.
	Snapshot = feature.Snapshot

	// SelectionSet groups feature identifiers by collection.
	SelectionSet = feature.SelectionSet

	// Builder assembles directives into an operation descriptor.
	Builder = descriptor.Builder

	// Descriptor is an immutable bundle of directives.
	Descriptor = descriptor.Descriptor

	// Handle stands for the identifier of a feature an operation will create.
	Handle = descriptor.Handle

	// Ref names an existing feature by identifier or handle.
	Ref = descriptor.Ref

	// Scope is the target set of a transform directive.
	Scope = descriptor.Scope

	// TransformOp parameterizes a geometric transform.
	TransformOp = descriptor.TransformOp

	// Affine is a 2D affine transform matrix.
	Affine = kernel.Affine

	// Record is one committed edit transaction.
	Record = history.Record

	// Checkpoint marks a history position for bulk rollback.
	Checkpoint = history.Checkpoint

	// OperationInfo describes one undo/redo stack entry.
	OperationInfo = history.OperationInfo
)

// Journal persists committed transactions. Committed runs inside the
// commit critical section; returning an error vetoes the commit and
// the store mutations are rolled back, so a journaled transaction is
// always an applied one. Undone and Redone are advisory markers:
// failures there are logged, not propagated.
type Journal interface {
	Committed(rec *history.Record) error
	Undone(seq uint64) error
	Redone(seq uint64) error
}

// Engine executes edit operations against a feature store as atomic,
// undoable transactions.
//
// All mutation flows through one internal goroutine, the mutation
// loop, so operations commit one at a time in arrival order. Submit
// and SubmitAsync hand work to the loop from any goroutine; Execute is
// the on-loop entry point and fails with ErrWrongContext anywhere
// else. Reads take collection read locks and need no routing.
type Engine struct {
	store   *store.Store
	kern    kernel.Kernel
	history *history.History
	journal Journal
	log     logx.Logger

	tasks  chan *task
	quit   chan struct{}
	wg     sync.WaitGroup
	closed atomic.Bool

	hookMu     sync.Mutex
	hooks      map[int]Hook
	nextHookID int

	applied  atomic.Uint64
	rejected atomic.Uint64
	undone   atomic.Uint64
	redone   atomic.Uint64

	maxUndoEntries int
	queueDepth     int
	seqBase        uint64
}

// New creates an engine over the given store and starts its mutation
// loop. Call Close to stop it.
func New(st *store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:          st,
		hooks:          make(map[int]Hook),
		maxUndoEntries: DefaultMaxUndoEntries,
		queueDepth:     DefaultQueueDepth,
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.kern == nil {
		e.kern = kernel.NewPlanar()
	}
	if e.log == nil {
		e.log = defaultLogger()
	}

	e.history = history.New(e.maxUndoEntries)
	e.history.SkipTo(e.seqBase)
	e.tasks = make(chan *task, e.queueDepth)
	e.quit = make(chan struct{})

	e.wg.Add(1)
	go e.run()
	return e
}

// Close stops the mutation loop. Tasks already accepted finish; queued
// tasks that were never accepted fail with ErrEngineClosed. Close is
// idempotent in effect but only the first call returns nil.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return ErrEngineClosed
	}
	close(e.quit)
	e.wg.Wait()
	return nil
}

// Store returns the underlying feature store, for loading data and
// direct read access.
func (e *Engine) Store() *store.Store { return e.store }

// ============================================================================
// Operation Construction
// ============================================================================

// NewOperation returns a builder for a fresh operation. Collection
// names are validated against the engine's store as directives are
// added.
func (e *Engine) NewOperation() *descriptor.Builder {
	return descriptor.NewBuilder(e.store)
}

// ChainFrom returns a builder whose operation commits as a
// continuation of rec. Directives may reference features rec created
// through the handles rec resolved. The parent must still be known to
// history and must have committed.
func (e *Engine) ChainFrom(rec *history.Record) (*descriptor.Builder, error) {
	if rec == nil || !rec.Succeeded() {
		return nil, ErrNoParentTransaction
	}
	if _, ok := e.history.Lookup(rec.Seq); !ok {
		return nil, ErrNoParentTransaction
	}
	return descriptor.NewChainedBuilder(e.store, rec.Seq, rec.Handles()), nil
}

// ============================================================================
// Submission
// ============================================================================

// Execute runs an operation immediately. It must be called on the
// engine's mutation context, i.e. from inside a RunTask callback or a
// hook; anywhere else it fails with ErrWrongContext. Off-loop callers
// use Submit.
func (e *Engine) Execute(ctx context.Context, d *descriptor.Descriptor) (*history.Record, error) {
	if !e.onMutationContext(ctx) {
		return nil, ErrWrongContext
	}
	return e.execute(d)
}

// Submit queues an operation for the mutation loop and blocks until it
// resolves. Called on the mutation context it runs inline, so chained
// submissions inside RunTask do not deadlock. Cancelling ctx abandons
// the wait; if the loop had already accepted the operation it still
// runs to completion.
func (e *Engine) Submit(ctx context.Context, d *descriptor.Descriptor) (*history.Record, error) {
	if e.onMutationContext(ctx) {
		return e.execute(d)
	}
	tk, err := e.SubmitAsync(ctx, d)
	if err != nil {
		return nil, err
	}
	return tk.Await(ctx)
}

// SubmitAsync queues an operation and returns a ticket that resolves
// when it commits or is rejected. ctx only covers the enqueue; once
// accepted the operation is beyond cancellation.
func (e *Engine) SubmitAsync(ctx context.Context, d *descriptor.Descriptor) (*Ticket, error) {
	tk := newTicket()
	if e.onMutationContext(ctx) {
		// Queueing from inside the loop would deadlock on a full
		// queue; run inline and return the ticket resolved.
		tk.resolve(e.execute(d))
		return tk, nil
	}
	t := &task{
		ctx:  ctx,
		run:  func(context.Context) { tk.resolve(e.execute(d)) },
		fail: func(err error) { tk.resolve(nil, err) },
	}
	if err := e.enqueue(t); err != nil {
		return nil, err
	}
	return tk, nil
}

// execute commits one operation. It only runs on the mutation loop.
func (e *Engine) execute(d *descriptor.Descriptor) (*history.Record, error) {
	if d == nil || d.Len() == 0 {
		return nil, ErrEmptyOperation
	}

	var parent *history.Record
	if d.ParentSeq() != 0 {
		p, ok := e.history.Lookup(d.ParentSeq())
		if !ok || !p.Succeeded() {
			return nil, fmt.Errorf("%w: seq %d", ErrNoParentTransaction, d.ParentSeq())
		}
		parent = p
	}

	rec := history.NewRecord(e.history.NextSeq(), d.ParentSeq(), d.Label())

	p, err := e.validate(d)
	if err != nil {
		rec.MarkRejected()
		e.rejected.Add(1)
		e.log.Debug("operation rejected", "seq", rec.Seq, "label", rec.Label, "err", err)
		return nil, err
	}
	rec.MarkValidated()

	handles := make(map[descriptor.Handle]feature.ID)
	outcomes := make([]history.Outcome, 0, d.Len())
	err = e.store.Write(p.collections, func(tx *store.WriteTx) error {
		if err := e.recheck(tx, p); err != nil {
			return err
		}
		for i, dir := range d.Directives() {
			o, aerr := e.applyDirective(tx, d, handles, i, dir)
			outcomes = append(outcomes, o)
			if aerr != nil {
				e.rollback(tx, outcomes)
				return aerr
			}
		}
		rec.MarkApplied(outcomes, handles)
		if e.journal != nil {
			if jerr := e.journal.Committed(rec); jerr != nil {
				e.rollback(tx, outcomes)
				return fmt.Errorf("journal append: %w", jerr)
			}
		}
		return nil
	})
	if err != nil {
		rec.MarkRejected()
		e.rejected.Add(1)
		e.log.Warn("operation failed", "seq", rec.Seq, "label", rec.Label, "err", err)
		return nil, err
	}

	e.history.Push(rec)
	if parent != nil {
		e.history.Link(parent, rec)
	}
	e.applied.Add(1)
	e.log.Debug("operation applied",
		"seq", rec.Seq, "label", rec.Label, "directives", d.Len())
	e.fireHooks(EventApplied, rec)
	return rec, nil
}

// ============================================================================
// Undo/Redo Operations
// ============================================================================

// Undo reverts the most recent transaction and returns its record. If
// the store no longer holds exactly the state the transaction left
// behind, the undo fails with ConcurrentModificationError and nothing
// changes.
func (e *Engine) Undo(ctx context.Context) (*history.Record, error) {
	recc := make(chan *history.Record, 1)
	err := e.RunTask(ctx, func(context.Context) error {
		rec, err := e.undo()
		recc <- rec
		return err
	})
	if err != nil {
		return nil, err
	}
	return <-recc, nil
}

// Redo re-applies the most recently undone transaction. Recorded
// identifiers are pinned: recreated features come back under the
// identifiers the original apply assigned.
func (e *Engine) Redo(ctx context.Context) (*history.Record, error) {
	recc := make(chan *history.Record, 1)
	err := e.RunTask(ctx, func(context.Context) error {
		rec, err := e.redo()
		recc <- rec
		return err
	})
	if err != nil {
		return nil, err
	}
	return <-recc, nil
}

// RollBackTo undoes every transaction committed after the checkpoint
// was taken and returns how many were reverted. On error the count
// covers the undos that did complete.
func (e *Engine) RollBackTo(ctx context.Context, cp history.Checkpoint) (int, error) {
	nc := make(chan int, 1)
	err := e.RunTask(ctx, func(context.Context) error {
		n := 0
		var uerr error
		for e.history.AboveCheckpoint(cp) {
			if _, uerr = e.undo(); uerr != nil {
				break
			}
			n++
		}
		nc <- n
		return uerr
	})
	select {
	case n := <-nc:
		return n, err
	default:
		return 0, err
	}
}

// undo runs on the mutation loop.
func (e *Engine) undo() (*history.Record, error) {
	rec, err := e.history.Undo(e.revert)
	if err != nil {
		return nil, err
	}
	e.undone.Add(1)
	if e.journal != nil {
		if jerr := e.journal.Undone(rec.Seq); jerr != nil {
			e.log.Warn("journal undo mark failed", "seq", rec.Seq, "err", jerr)
		}
	}
	e.log.Debug("operation undone", "seq", rec.Seq, "label", rec.Label)
	e.fireHooks(EventUndone, rec)
	return rec, nil
}

// redo runs on the mutation loop.
func (e *Engine) redo() (*history.Record, error) {
	rec, err := e.history.Redo(e.reapply)
	if err != nil {
		return nil, err
	}
	e.redone.Add(1)
	if e.journal != nil {
		if jerr := e.journal.Redone(rec.Seq); jerr != nil {
			e.log.Warn("journal redo mark failed", "seq", rec.Seq, "err", jerr)
		}
	}
	e.log.Debug("operation redone", "seq", rec.Seq, "label", rec.Label)
	e.fireHooks(EventRedone, rec)
	return rec, nil
}

// revert restores the state a record replaced, newest directive first.
// The store must still hold exactly the state the record left behind.
func (e *Engine) revert(rec *history.Record) error {
	return e.store.Write(rec.Collections(), func(tx *store.WriteTx) error {
		if err := checkUndoState(tx, rec); err != nil {
			return err
		}
		outs := rec.Outcomes()
		for i := len(outs) - 1; i >= 0; i-- {
			if err := revertOutcome(tx, outs[i]); err != nil {
				for j := i + 1; j < len(outs); j++ {
					if rerr := reapplyOutcome(tx, outs[j]); rerr != nil {
						e.log.Error("undo recovery failed",
							"seq", rec.Seq, "directive", outs[j].Directive, "err", rerr)
					}
				}
				return err
			}
		}
		return nil
	})
}

// reapply replays a record's effects in directive order. The store
// must match the state the record originally applied against.
func (e *Engine) reapply(rec *history.Record) error {
	return e.store.Write(rec.Collections(), func(tx *store.WriteTx) error {
		if err := checkRedoState(tx, rec); err != nil {
			return err
		}
		outs := rec.Outcomes()
		for i := range outs {
			if err := reapplyOutcome(tx, outs[i]); err != nil {
				for j := i - 1; j >= 0; j-- {
					if rerr := revertOutcome(tx, outs[j]); rerr != nil {
						e.log.Error("redo recovery failed",
							"seq", rec.Seq, "directive", outs[j].Directive, "err", rerr)
					}
				}
				return err
			}
		}
		return nil
	})
}

// ============================================================================
// History Inspection
// ============================================================================

// CanUndo returns true if undo is available.
func (e *Engine) CanUndo() bool { return e.history.CanUndo() }

// CanRedo returns true if redo is available.
func (e *Engine) CanRedo() bool { return e.history.CanRedo() }

// UndoCount returns the number of undoable transactions.
func (e *Engine) UndoCount() int { return e.history.UndoCount() }

// RedoCount returns the number of redoable transactions.
func (e *Engine) RedoCount() int { return e.history.RedoCount() }

// UndoInfo returns info about available undo operations, oldest first.
func (e *Engine) UndoInfo() []history.OperationInfo { return e.history.UndoInfo() }

// RedoInfo returns info about available redo operations.
func (e *Engine) RedoInfo() []history.OperationInfo { return e.history.RedoInfo() }

// PeekUndo returns info about the next undo operation without running it.
func (e *Engine) PeekUndo() (history.OperationInfo, bool) { return e.history.PeekUndo() }

// PeekRedo returns info about the next redo operation without running it.
func (e *Engine) PeekRedo() (history.OperationInfo, bool) { return e.history.PeekRedo() }

// Checkpoint marks the current history position for RollBackTo.
func (e *Engine) Checkpoint() history.Checkpoint { return e.history.Checkpoint() }

// Lookup finds a transaction record by sequence number.
func (e *Engine) Lookup(seq uint64) (*history.Record, bool) { return e.history.Lookup(seq) }

// ClearHistory removes all undo/redo history. Store state is untouched.
func (e *Engine) ClearHistory() { e.history.Clear() }

// ============================================================================
// Read Operations
// ============================================================================

// Get returns a copy of one feature.
func (e *Engine) Get(collection string, id feature.ID) (*feature.Feature, error) {
	c, err := e.store.Collection(collection)
	if err != nil {
		return nil, err
	}
	return c.Get(id)
}

// Collections returns the sorted collection names of the store.
func (e *Engine) Collections() []string { return e.store.Collections() }

// Select runs a predicate over one collection.
func (e *Engine) Select(collection string, pred store.Predicate) (feature.SelectionSet, error) {
	return e.store.Select(collection, pred)
}

// SelectInBound gathers features intersecting b across the named
// collections, or all collections when none are named.
func (e *Engine) SelectInBound(b orb.Bound, collections ...string) (feature.SelectionSet, error) {
	return e.store.SelectInBound(b, collections...)
}

// Nearest returns up to k features of one collection ordered by
// centroid distance from p.
func (e *Engine) Nearest(collection string, p orb.Point, k int) (feature.SelectionSet, error) {
	c, err := e.store.Collection(collection)
	if err != nil {
		return nil, err
	}
	sel := feature.NewSelection()
	sel.Add(collection, c.Nearest(p, k)...)
	return sel, nil
}

// ============================================================================
// Stats
// ============================================================================

// Stats is a point-in-time snapshot of engine counters.
type Stats struct {
	Applied   uint64
	Rejected  uint64
	Undone    uint64
	Redone    uint64
	UndoDepth int
	RedoDepth int
	QueueLen  int
}

// Stats returns current engine counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Applied:   e.applied.Load(),
		Rejected:  e.rejected.Load(),
		Undone:    e.undone.Load(),
		Redone:    e.redone.Load(),
		UndoDepth: e.history.UndoCount(),
		RedoDepth: e.history.RedoCount(),
		QueueLen:  len(e.tasks),
	}
}
