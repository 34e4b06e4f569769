package store

import (
	"github.com/paulmach/orb"

	"github.com/dshills/geostorm/internal/engine/feature"
)

// Predicate decides membership of a feature in a selection. The
// feature passed in is live store state: predicates must not mutate or
// retain it.
type Predicate func(*feature.Feature) bool

// SelectWhere returns the identifiers of features matching the
// predicate, in ascending order.
func (c *Collection) SelectWhere(pred Predicate) []feature.ID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []feature.ID
	for _, id := range c.idsLocked() {
		if pred(c.feats[id]) {
			out = append(out, id)
		}
	}
	return out
}

// SelectInBound returns the identifiers of features whose geometry
// bound intersects b, in ascending order.
func (c *Collection) SelectInBound(b orb.Bound) []feature.ID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []feature.ID
	for _, id := range c.idsLocked() {
		g := c.feats[id].Geometry
		if g != nil && g.Bound().Intersects(b) {
			out = append(out, id)
		}
	}
	return out
}

// Nearest returns up to k feature identifiers ordered by centroid
// distance from p.
func (c *Collection) Nearest(p orb.Point, k int) []feature.ID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if k <= 0 {
		return nil
	}
	ptrs := c.qt.KNearest(nil, p, k)
	out := make([]feature.ID, 0, len(ptrs))
	for _, ptr := range ptrs {
		if item, ok := ptr.(*centroidItem); ok {
			out = append(out, item.id)
		}
	}
	return out
}

// Select runs the predicate over one collection of the store and
// returns the result as a selection set.
func (s *Store) Select(collection string, pred Predicate) (feature.SelectionSet, error) {
	c, err := s.Collection(collection)
	if err != nil {
		return nil, err
	}
	sel := feature.NewSelection()
	sel.Add(collection, c.SelectWhere(pred)...)
	return sel, nil
}

// SelectInBound gathers features intersecting b across the named
// collections. With no names given, every collection is searched.
func (s *Store) SelectInBound(b orb.Bound, collections ...string) (feature.SelectionSet, error) {
	if len(collections) == 0 {
		collections = s.Collections()
	}
	sel := feature.NewSelection()
	for _, name := range collections {
		c, err := s.Collection(name)
		if err != nil {
			return nil, err
		}
		sel.Add(name, c.SelectInBound(b)...)
	}
	return sel, nil
}
