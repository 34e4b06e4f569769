package store

import (
	"fmt"
	"sort"

	"github.com/paulmach/orb"

	"github.com/dshills/geostorm/internal/engine/feature"
)

// Write runs fn with every named collection write-locked, so a
// multi-collection mutation is atomic with respect to readers and
// other writers. Collections lock in sorted name order. fn receives a
// WriteTx scoped to exactly the named collections; the error it
// returns is passed through.
func (s *Store) Write(collections []string, fn func(*WriteTx) error) error {
	names := append([]string(nil), collections...)
	sort.Strings(names)
	names = dedupe(names)

	tx := &WriteTx{cols: make(map[string]*Collection, len(names))}
	locked := make([]*Collection, 0, len(names))
	for _, name := range names {
		c, err := s.Collection(name)
		if err != nil {
			for _, lc := range locked {
				lc.mu.Unlock()
			}
			return err
		}
		c.mu.Lock()
		locked = append(locked, c)
		tx.cols[name] = c
	}
	defer func() {
		for i := len(locked) - 1; i >= 0; i-- {
			locked[i].mu.Unlock()
		}
	}()
	return fn(tx)
}

func dedupe(sorted []string) []string {
	out := sorted[:0]
	for i, s := range sorted {
		if i == 0 || s != sorted[i-1] {
			out = append(out, s)
		}
	}
	return out
}

// WriteTx is the mutation surface handed to a Write callback. It is
// only valid for the duration of the callback and must not be retained
// or shared across goroutines.
type WriteTx struct {
	cols map[string]*Collection
}

func (tx *WriteTx) col(name string) (*Collection, error) {
	c, ok := tx.cols[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotInWriteSet, name)
	}
	return c, nil
}

// Create inserts a new feature and returns the identifier the
// collection allocated. Geometry and attributes are copied.
func (tx *WriteTx) Create(collection string, geom orb.Geometry, attrs feature.Attributes) (feature.ID, error) {
	c, err := tx.col(collection)
	if err != nil {
		return 0, err
	}
	f := &feature.Feature{
		ID:         c.allocLocked(),
		Geometry:   cloneGeom(geom),
		Attributes: attrs.Clone(),
	}
	if err := c.insertLocked(f); err != nil {
		return 0, err
	}
	return f.ID, nil
}

// Restore re-inserts a feature from a snapshot, keeping its original
// identifier. It fails if the identifier is occupied.
func (tx *WriteTx) Restore(collection string, snap feature.Snapshot) error {
	c, err := tx.col(collection)
	if err != nil {
		return err
	}
	return c.insertLocked(snap.Restore())
}

// Replace swaps a feature's full state and returns a snapshot of the
// state it replaced.
func (tx *WriteTx) Replace(collection string, id feature.ID, geom orb.Geometry, attrs feature.Attributes) (feature.Snapshot, error) {
	c, err := tx.col(collection)
	if err != nil {
		return feature.Snapshot{}, err
	}
	prior, err := c.replaceLocked(id, cloneGeom(geom), attrs.Clone())
	if err != nil {
		return feature.Snapshot{}, err
	}
	return prior.Snapshot(), nil
}

func cloneGeom(g orb.Geometry) orb.Geometry {
	if g == nil {
		return nil
	}
	return orb.Clone(g)
}

// Delete removes a feature and returns a snapshot of its final state.
func (tx *WriteTx) Delete(collection string, id feature.ID) (feature.Snapshot, error) {
	c, err := tx.col(collection)
	if err != nil {
		return feature.Snapshot{}, err
	}
	f, err := c.deleteLocked(id)
	if err != nil {
		return feature.Snapshot{}, err
	}
	return f.Snapshot(), nil
}

// Get returns a deep copy of a feature in the write set.
func (tx *WriteTx) Get(collection string, id feature.ID) (*feature.Feature, error) {
	c, err := tx.col(collection)
	if err != nil {
		return nil, err
	}
	f, ok := c.feats[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%d", ErrFeatureNotFound, c.name, id)
	}
	return f.Clone(), nil
}

// Digest returns the content hash of a feature in the write set.
func (tx *WriteTx) Digest(collection string, id feature.ID) (uint64, error) {
	c, err := tx.col(collection)
	if err != nil {
		return 0, err
	}
	f, ok := c.feats[id]
	if !ok {
		return 0, fmt.Errorf("%w: %s/%d", ErrFeatureNotFound, c.name, id)
	}
	return f.Digest(), nil
}

// Has reports whether a feature exists in the write set.
func (tx *WriteTx) Has(collection string, id feature.ID) bool {
	c, ok := tx.cols[collection]
	if !ok {
		return false
	}
	_, ok = c.feats[id]
	return ok
}
