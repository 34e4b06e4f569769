package engine

import (
	"fmt"

	"github.com/dshills/geostorm/internal/engine/history"
)

// EventKind classifies engine lifecycle events.
type EventKind uint8

const (
	// EventApplied fires after a transaction commits.
	EventApplied EventKind = iota + 1
	// EventUndone fires after a transaction is reverted.
	EventUndone
	// EventRedone fires after a transaction is re-applied.
	EventRedone
)

func (k EventKind) String() string {
	switch k {
	case EventApplied:
		return "applied"
	case EventUndone:
		return "undone"
	case EventRedone:
		return "redone"
	default:
		return "unknown"
	}
}

// Event notifies hooks of a committed, undone, or redone transaction.
// The record is shared; hooks must treat it as read-only.
type Event struct {
	Kind   EventKind
	Record *history.Record
}

// Hook observes engine events. Hooks run on the mutation goroutine
// after the event's store work is done: keep them quick and hand heavy
// work to another goroutine.
type Hook func(Event)

// AddHook registers a hook and returns its id.
func (e *Engine) AddHook(h Hook) int {
	e.hookMu.Lock()
	defer e.hookMu.Unlock()
	e.nextHookID++
	e.hooks[e.nextHookID] = h
	return e.nextHookID
}

// RemoveHook unregisters a hook by id.
func (e *Engine) RemoveHook(id int) error {
	e.hookMu.Lock()
	defer e.hookMu.Unlock()
	if _, ok := e.hooks[id]; !ok {
		return fmt.Errorf("%w: %d", ErrHookNotFound, id)
	}
	delete(e.hooks, id)
	return nil
}

func (e *Engine) fireHooks(kind EventKind, rec *history.Record) {
	e.hookMu.Lock()
	hooks := make([]Hook, 0, len(e.hooks))
	for _, h := range e.hooks {
		hooks = append(hooks, h)
	}
	e.hookMu.Unlock()

	ev := Event{Kind: kind, Record: rec}
	for _, h := range hooks {
		h(ev)
	}
}
