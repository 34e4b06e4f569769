package store

import (
	"fmt"
	"sort"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/quadtree"

	"github.com/dshills/geostorm/internal/engine/feature"
)

var defaultBound = orb.Bound{
	Min: orb.Point{-1e9, -1e9},
	Max: orb.Point{1e9, 1e9},
}

// centroidItem indexes a feature's centroid in the quadtree.
type centroidItem struct {
	id feature.ID
	pt orb.Point
}

func (c *centroidItem) Point() orb.Point { return c.pt }

// Collection is a named set of features with monotonically allocated
// identifiers and a quadtree over feature centroids. All exported
// methods are safe for concurrent use.
type Collection struct {
	name  string
	bound orb.Bound

	mu     sync.RWMutex
	feats  map[feature.ID]*feature.Feature
	items  map[feature.ID]*centroidItem
	qt     *quadtree.Quadtree
	nextID feature.ID
}

func newCollection(name string, opts ...CollectionOption) *Collection {
	c := &Collection{
		name:  name,
		bound: defaultBound,
		feats: make(map[feature.ID]*feature.Feature),
		items: make(map[feature.ID]*centroidItem),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.qt = quadtree.New(c.bound)
	return c
}

// Name returns the collection name.
func (c *Collection) Name() string { return c.name }

// Bound returns the collection's spatial domain.
func (c *Collection) Bound() orb.Bound { return c.bound }

// Count returns the number of features.
func (c *Collection) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.feats)
}

// IDs returns all feature identifiers in ascending order.
func (c *Collection) IDs() []feature.ID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.idsLocked()
}

func (c *Collection) idsLocked() []feature.ID {
	ids := make([]feature.ID, 0, len(c.feats))
	for id := range c.feats {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Get returns a deep copy of the feature.
func (c *Collection) Get(id feature.ID) (*feature.Feature, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.feats[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%d", ErrFeatureNotFound, c.name, id)
	}
	return f.Clone(), nil
}

// Has reports whether a feature with the identifier exists.
func (c *Collection) Has(id feature.ID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.feats[id]
	return ok
}

// Digest returns the content hash of the feature's current state.
func (c *Collection) Digest(id feature.ID) (uint64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.feats[id]
	if !ok {
		return 0, fmt.Errorf("%w: %s/%d", ErrFeatureNotFound, c.name, id)
	}
	return f.Digest(), nil
}

// Put inserts a feature directly, outside any edit transaction. It is
// the loader path used when populating a store from a workspace or a
// journal; edits made this way are not undoable. A zero identifier
// allocates the next one; the possibly updated feature is returned.
func (c *Collection) Put(f *feature.Feature) (*feature.Feature, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := f.Clone()
	if cp.ID == 0 {
		cp.ID = c.allocLocked()
	}
	if err := c.insertLocked(cp); err != nil {
		return nil, err
	}
	return cp.Clone(), nil
}

// Drop removes a feature directly, outside any edit transaction.
func (c *Collection) Drop(id feature.ID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.deleteLocked(id)
	return err
}

// allocLocked hands out the next identifier. Identifiers are never
// reused, even after deletion.
func (c *Collection) allocLocked() feature.ID {
	c.nextID++
	return c.nextID
}

// reserveLocked keeps the allocator ahead of an explicitly placed id.
func (c *Collection) reserveLocked(id feature.ID) {
	if id > c.nextID {
		c.nextID = id
	}
}

func (c *Collection) insertLocked(f *feature.Feature) error {
	if _, ok := c.feats[f.ID]; ok {
		return fmt.Errorf("%w: %s/%d", ErrIDInUse, c.name, f.ID)
	}
	item := &centroidItem{id: f.ID, pt: centroidOf(f.Geometry)}
	if err := c.qt.Add(item); err != nil {
		return fmt.Errorf("%w: %s/%d", ErrOutOfBound, c.name, f.ID)
	}
	c.feats[f.ID] = f
	c.items[f.ID] = item
	c.reserveLocked(f.ID)
	return nil
}

func (c *Collection) deleteLocked(id feature.ID) (*feature.Feature, error) {
	f, ok := c.feats[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%d", ErrFeatureNotFound, c.name, id)
	}
	c.removeIndexLocked(id)
	delete(c.items, id)
	delete(c.feats, id)
	return f, nil
}

func (c *Collection) replaceLocked(id feature.ID, geom orb.Geometry, attrs feature.Attributes) (*feature.Feature, error) {
	prior, ok := c.feats[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%d", ErrFeatureNotFound, c.name, id)
	}
	old := c.items[id]
	item := &centroidItem{id: id, pt: centroidOf(geom)}
	c.removeIndexLocked(id)
	if err := c.qt.Add(item); err != nil {
		// put the old index entry back so the collection stays consistent
		c.qt.Add(old)
		return nil, fmt.Errorf("%w: %s/%d", ErrOutOfBound, c.name, id)
	}
	c.feats[id] = &feature.Feature{ID: id, Geometry: geom, Attributes: attrs}
	c.items[id] = item
	return prior, nil
}

func (c *Collection) removeIndexLocked(id feature.ID) {
	item, ok := c.items[id]
	if !ok {
		return
	}
	c.qt.Remove(item, func(p orb.Pointer) bool {
		ci, ok := p.(*centroidItem)
		return ok && ci.id == id
	})
}

func centroidOf(g orb.Geometry) orb.Point {
	if g == nil {
		return orb.Point{}
	}
	pt, _ := planar.CentroidArea(g)
	return pt
}
