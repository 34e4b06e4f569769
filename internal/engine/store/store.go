// Package store holds the in-memory feature dataset: named collections
// of spatial features with monotonic identifier allocation, content
// digests, spatial indexing, and a multi-collection write transaction
// used by the edit engine's apply phase.
package store

import (
	"errors"
	"fmt"
	"sort"

	"github.com/paulmach/orb"
	"github.com/puzpuzpuz/xsync/v3"
)

// Errors returned by store operations.
var (
	// ErrCollectionNotFound indicates the named collection does not exist.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrCollectionExists indicates a collection with the name already exists.
	ErrCollectionExists = errors.New("collection already exists")

	// ErrFeatureNotFound indicates no feature with the identifier exists.
	ErrFeatureNotFound = errors.New("feature not found")

	// ErrIDInUse indicates a restore targeted an identifier that is occupied.
	ErrIDInUse = errors.New("feature id already in use")

	// ErrOutOfBound indicates a geometry outside the collection's spatial domain.
	ErrOutOfBound = errors.New("geometry outside collection bound")

	// ErrNotInWriteSet indicates a write touched a collection the
	// transaction did not lock.
	ErrNotInWriteSet = errors.New("collection not locked by this transaction")
)

// Store is a registry of feature collections. Collection lookup is
// lock-free; mutation of collection contents synchronizes per
// collection, or across collections through Write.
type Store struct {
	cols *xsync.MapOf[string, *Collection]
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{cols: xsync.NewMapOf[string, *Collection]()}
}

// AddCollection registers a new, empty collection.
func (s *Store) AddCollection(name string, opts ...CollectionOption) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrCollectionNotFound)
	}
	c := newCollection(name, opts...)
	if _, loaded := s.cols.LoadOrStore(name, c); loaded {
		return fmt.Errorf("%w: %q", ErrCollectionExists, name)
	}
	return nil
}

// Collection returns the named collection.
func (s *Store) Collection(name string) (*Collection, error) {
	c, ok := s.cols.Load(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrCollectionNotFound, name)
	}
	return c, nil
}

// HasCollection reports whether the named collection exists. It makes
// the store usable as a descriptor builder catalog.
func (s *Store) HasCollection(name string) bool {
	_, ok := s.cols.Load(name)
	return ok
}

// Collections returns all collection names, sorted.
func (s *Store) Collections() []string {
	var names []string
	s.cols.Range(func(name string, _ *Collection) bool {
		names = append(names, name)
		return true
	})
	sort.Strings(names)
	return names
}

// Stats summarizes the store contents.
type Stats struct {
	Collections int
	Features    int
}

// Stats counts collections and features across the store.
func (s *Store) Stats() Stats {
	var st Stats
	s.cols.Range(func(_ string, c *Collection) bool {
		st.Collections++
		st.Features += c.Count()
		return true
	})
	return st
}

// CollectionOption configures a collection at creation time.
type CollectionOption func(*Collection)

// WithBound sets the spatial domain of the collection. Features whose
// centroid falls outside the bound are rejected. The default domain is
// effectively unbounded.
func WithBound(b orb.Bound) CollectionOption {
	return func(c *Collection) { c.bound = b }
}
