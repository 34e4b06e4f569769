package journal

import (
	"errors"
	"fmt"

	"github.com/dshills/geostorm/internal/engine/store"
)

// Replay rebuilds store state from the journal. Every applied
// transaction is re-applied in sequence order through the store's
// loader path with identifiers pinned; transactions whose latest
// marker says undone are skipped. Collections are created on demand.
// Returns the highest sequence seen, which callers pass to the
// engine's sequence base.
func (j *Journal) Replay(st *store.Store) (last uint64, applied int, err error) {
	return j.ReplayTo(st, 0)
}

// ReplayTo replays like Replay but stops after sequence upTo. A zero
// upTo means no bound. Point-in-time rebuilds use this to materialize
// the dataset as of an earlier transaction.
func (j *Journal) ReplayTo(st *store.Store, upTo uint64) (last uint64, applied int, err error) {
	scanErr := j.Scan(0, upTo, func(e *Entry) bool {
		last = e.Seq
		if e.Status == StatusUndone {
			return true
		}
		if err = applyEntry(st, e); err != nil {
			err = fmt.Errorf("replay seq %d: %w", e.Seq, err)
			return false
		}
		applied++
		return true
	})
	if err == nil {
		err = scanErr
	}
	if err == nil {
		j.replayed.Add(uint64(applied))
		j.log.Info("journal replayed", "dir", j.dir, "applied", applied, "last_seq", last)
	}
	return last, applied, err
}

func applyEntry(st *store.Store, e *Entry) error {
	for _, o := range e.Outcomes {
		for _, c := range o.Created {
			col, err := ensureCollection(st, c.Collection)
			if err != nil {
				return err
			}
			if _, err := col.Put(c.Snapshot.Restore()); err != nil {
				return err
			}
		}
		for _, u := range o.Updated {
			col, err := ensureCollection(st, u.Collection)
			if err != nil {
				return err
			}
			if err := col.Drop(u.Before.ID); err != nil {
				return err
			}
			if _, err := col.Put(u.After.Restore()); err != nil {
				return err
			}
		}
		for _, r := range o.Removed {
			col, err := ensureCollection(st, r.Collection)
			if err != nil {
				return err
			}
			if err := col.Drop(r.Snapshot.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

func ensureCollection(st *store.Store, name string) (*store.Collection, error) {
	if !st.HasCollection(name) {
		if err := st.AddCollection(name); err != nil && !errors.Is(err, store.ErrCollectionExists) {
			return nil, err
		}
	}
	return st.Collection(name)
}

// EntrySummary condenses one journal entry for listings.
type EntrySummary struct {
	Seq        uint64
	Parent     uint64
	Label      string
	Status     Status
	Directives int
	Touched    int
}

// Summaries lists recorded transactions in [from, to], lowest sequence
// first. A zero to means no upper bound.
func (j *Journal) Summaries(from, to uint64) ([]EntrySummary, error) {
	var out []EntrySummary
	err := j.Scan(from, to, func(e *Entry) bool {
		s := EntrySummary{
			Seq:        e.Seq,
			Parent:     e.Parent,
			Label:      e.Label,
			Status:     e.Status,
			Directives: len(e.Outcomes),
		}
		for _, o := range e.Outcomes {
			s.Touched += len(o.Created) + len(o.Updated) + len(o.Removed)
		}
		out = append(out, s)
		return true
	})
	return out, err
}
