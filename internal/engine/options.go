package engine

import (
	"log/slog"

	"github.com/dshills/geostorm/internal/engine/kernel"
	"github.com/dshills/geostorm/internal/logx"
)

// Default configuration values.
const (
	DefaultMaxUndoEntries = 1000
	DefaultQueueDepth     = 64
)

// Option configures an Engine during creation.
type Option func(*Engine)

// WithKernel sets the geometry kernel the engine delegates geometric
// transforms to.
func WithKernel(k kernel.Kernel) Option {
	return func(e *Engine) {
		if k != nil {
			e.kern = k
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(log logx.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// WithJournal attaches a transaction journal. Appending to the journal
// is part of the commit: an append failure rolls the operation back.
func WithJournal(j Journal) Option {
	return func(e *Engine) {
		e.journal = j
	}
}

// WithSeqBase starts sequence numbering after base. An engine resuming
// on top of a persisted journal passes the journal's last sequence so
// new transactions never reuse a recorded number.
func WithSeqBase(base uint64) Option {
	return func(e *Engine) {
		e.seqBase = base
	}
}

// WithMaxUndoEntries sets the maximum number of undoable transactions.
func WithMaxUndoEntries(max int) Option {
	return func(e *Engine) {
		if max > 0 {
			e.maxUndoEntries = max
		}
	}
}

// WithQueueDepth sets the capacity of the mutation task queue.
func WithQueueDepth(depth int) Option {
	return func(e *Engine) {
		if depth > 0 {
			e.queueDepth = depth
		}
	}
}

func defaultLogger() logx.Logger {
	return logx.New(slog.LevelInfo)
}
