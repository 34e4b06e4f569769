// Package history tracks committed edit transactions and their
// undo/redo ordering. Each record carries full before/after images of
// every feature it touched, so reverting or re-applying never repeats
// the geometric math that produced the transaction.
package history

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dshills/geostorm/internal/engine/descriptor"
	"github.com/dshills/geostorm/internal/engine/feature"
)

// Status is the lifecycle state of a transaction record.
type Status uint32

const (
	// StatusBuilding marks a record whose operation is still executing.
	StatusBuilding Status = iota
	// StatusValidated marks a record that passed validation but has not
	// applied yet.
	StatusValidated
	// StatusApplied marks a committed record.
	StatusApplied
	// StatusUndone marks a record whose effects are currently reverted.
	StatusUndone
	// StatusRedone marks a record re-applied after an undo.
	StatusRedone
	// StatusRejected marks a record that failed and left no trace in
	// the store. Rejected records never enter the undo stack.
	StatusRejected
)

func (s Status) String() string {
	switch s {
	case StatusBuilding:
		return "building"
	case StatusValidated:
		return "validated"
	case StatusApplied:
		return "applied"
	case StatusUndone:
		return "undone"
	case StatusRedone:
		return "redone"
	case StatusRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Created is a full image of a feature inserted by a directive.
type Created struct {
	Collection string
	Snapshot   feature.Snapshot
}

// Updated holds the before and after images of a feature a directive
// changed in place.
type Updated struct {
	Collection string
	Before     feature.Snapshot
	After      feature.Snapshot
}

// Removed is the final image of a feature a directive deleted.
type Removed struct {
	Collection string
	Snapshot   feature.Snapshot
}

// Outcome records what one directive did to the store. Reverting an
// outcome deletes Created, restores Updated to Before, and re-inserts
// Removed; re-applying does the opposite with the identifiers pinned.
type Outcome struct {
	Directive int
	Kind      descriptor.Kind
	Created   []Created
	Updated   []Updated
	Removed   []Removed
}

// Record is one committed (or attempted) edit transaction.
type Record struct {
	Seq    uint64
	Parent uint64 // sequence of the parent transaction, 0 when unchained
	Label  string
	When   time.Time

	status   atomic.Uint32
	outcomes []Outcome
	handles  map[descriptor.Handle]feature.ID

	mu       sync.Mutex
	children []uint64
}

// NewRecord returns a record in the building state.
func NewRecord(seq, parent uint64, label string) *Record {
	return &Record{Seq: seq, Parent: parent, Label: label, When: time.Now()}
}

// Status returns the current lifecycle state.
func (r *Record) Status() Status { return Status(r.status.Load()) }

func (r *Record) setStatus(s Status) { r.status.Store(uint32(s)) }

// MarkValidated transitions the record to the validated state.
func (r *Record) MarkValidated() { r.setStatus(StatusValidated) }

// MarkRejected marks the record as failed.
func (r *Record) MarkRejected() { r.setStatus(StatusRejected) }

// MarkApplied stores the outcomes of a successful apply along with the
// handle resolutions for any creates, and transitions to applied.
// Outcomes become read-only from here on.
func (r *Record) MarkApplied(outcomes []Outcome, handles map[descriptor.Handle]feature.ID) {
	r.outcomes = outcomes
	r.handles = handles
	r.setStatus(StatusApplied)
}

// Succeeded reports whether the record committed at least once. A
// record that is currently undone still counts as succeeded.
func (r *Record) Succeeded() bool {
	switch r.Status() {
	case StatusApplied, StatusUndone, StatusRedone:
		return true
	default:
		return false
	}
}

// Outcomes returns the per-directive outcomes in submission order. The
// slice and its contents are read-only.
func (r *Record) Outcomes() []Outcome { return r.outcomes }

// Handles returns a copy of the handle-to-identifier resolutions for
// the creates this transaction performed.
func (r *Record) Handles() map[descriptor.Handle]feature.ID {
	out := make(map[descriptor.Handle]feature.ID, len(r.handles))
	for h, id := range r.handles {
		out[h] = id
	}
	return out
}

// Resolved returns the identifier assigned for a create handle.
func (r *Record) Resolved(h descriptor.Handle) (feature.ID, bool) {
	id, ok := r.handles[h]
	return id, ok
}

// CreatedFeatures lists every feature the transaction inserted, in
// directive order.
func (r *Record) CreatedFeatures() []Created {
	var out []Created
	for _, o := range r.outcomes {
		out = append(out, o.Created...)
	}
	return out
}

// Collections returns the sorted, de-duplicated collection names the
// transaction touched.
func (r *Record) Collections() []string {
	seen := make(map[string]struct{})
	for _, o := range r.outcomes {
		for _, c := range o.Created {
			seen[c.Collection] = struct{}{}
		}
		for _, u := range o.Updated {
			seen[u.Collection] = struct{}{}
		}
		for _, rm := range o.Removed {
			seen[rm.Collection] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (r *Record) addChild(seq uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.children = append(r.children, seq)
}

// Children returns the sequence numbers of transactions chained from
// this one, in commit order.
func (r *Record) Children() []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uint64(nil), r.children...)
}
