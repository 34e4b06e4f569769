package engine

import (
	"context"

	"github.com/google/uuid"

	"github.com/dshills/geostorm/internal/engine/history"
)

// Ticket is the asynchronous handle of a queued submission. It
// resolves exactly once, when the operation commits, is rejected, or
// is dropped before acceptance.
type Ticket struct {
	id   uuid.UUID
	done chan struct{}
	rec  *history.Record
	err  error
}

func newTicket() *Ticket {
	return &Ticket{id: uuid.New(), done: make(chan struct{})}
}

// ID returns the ticket's unique identifier.
func (t *Ticket) ID() uuid.UUID { return t.id }

// Done returns a channel closed when the ticket resolves.
func (t *Ticket) Done() <-chan struct{} { return t.done }

// Await blocks until the ticket resolves or ctx is done. A context
// cancellation here only stops the wait; once the engine has accepted
// the operation it still runs to completion.
func (t *Ticket) Await(ctx context.Context) (*history.Record, error) {
	select {
	case <-t.done:
		return t.rec, t.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Resolved reports whether the ticket has resolved, without blocking.
func (t *Ticket) Resolved() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

func (t *Ticket) resolve(rec *history.Record, err error) {
	t.rec, t.err = rec, err
	close(t.done)
}
