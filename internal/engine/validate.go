package engine

import (
	"sort"

	"github.com/dshills/geostorm/internal/engine/descriptor"
	"github.com/dshills/geostorm/internal/engine/feature"
	"github.com/dshills/geostorm/internal/engine/store"
)

type refKey struct {
	coll string
	id   feature.ID
}

// plan is the result of the validation phase: the write lock set and
// the content digest of every existing feature the operation targets.
// The digests are re-checked under the write locks before anything
// mutates, turning interleaved external writes into
// ConcurrentModificationError instead of silent clobbering.
type plan struct {
	collections []string
	digests     map[refKey]uint64
}

func (e *Engine) validate(d *descriptor.Descriptor) (*plan, error) {
	p := &plan{
		collections: d.AffectedCollections(),
		digests:     make(map[refKey]uint64),
	}
	for i, dir := range d.Directives() {
		switch t := dir.(type) {
		case *descriptor.Create:
			if !e.store.HasCollection(t.Coll) {
				return nil, &ValidationError{Directive: i, Collection: t.Coll, Err: store.ErrCollectionNotFound}
			}
		case *descriptor.Modify:
			if err := e.checkRef(d, p, i, t.Coll, t.Target); err != nil {
				return nil, err
			}
		case *descriptor.Delete:
			for _, r := range t.Refs {
				if err := e.checkRef(d, p, i, t.Coll, r); err != nil {
					return nil, err
				}
			}
		case *descriptor.Transform:
			for _, m := range t.Scope.Members() {
				if err := e.checkRef(d, p, i, m.Coll, m.Ref); err != nil {
					return nil, err
				}
			}
		}
	}
	return p, nil
}

// checkRef resolves a reference and captures the target's digest.
// Handles naming a create of this same descriptor stay pending; they
// resolve during apply, once the create has run.
func (e *Engine) checkRef(d *descriptor.Descriptor, p *plan, directive int, coll string, r descriptor.Ref) error {
	if r.IsHandle() {
		if _, pending := d.OwnsHandle(r.Handle()); pending {
			return nil
		}
		id, ok := d.Seed(r.Handle())
		if !ok {
			return &ValidationError{Directive: directive, Collection: coll, Err: descriptor.ErrBadHandle}
		}
		return e.captureDigest(p, directive, coll, id)
	}
	return e.captureDigest(p, directive, coll, r.ID())
}

func (e *Engine) captureDigest(p *plan, directive int, coll string, id feature.ID) error {
	c, err := e.store.Collection(coll)
	if err != nil {
		return &ValidationError{Directive: directive, Collection: coll, ID: id, Err: err}
	}
	key := refKey{coll: coll, id: id}
	if _, done := p.digests[key]; done {
		return nil
	}
	dg, err := c.Digest(id)
	if err != nil {
		return &ValidationError{Directive: directive, Collection: coll, ID: id, Err: err}
	}
	p.digests[key] = dg
	return nil
}

// recheck compares the captured digests against current store state
// under the write locks.
func (e *Engine) recheck(tx *store.WriteTx, p *plan) error {
	keys := make([]refKey, 0, len(p.digests))
	for k := range p.digests {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].coll != keys[j].coll {
			return keys[i].coll < keys[j].coll
		}
		return keys[i].id < keys[j].id
	})
	for _, k := range keys {
		cur, err := tx.Digest(k.coll, k.id)
		if err != nil {
			return &ConcurrentModificationError{Collection: k.coll, ID: k.id, Expected: p.digests[k]}
		}
		if cur != p.digests[k] {
			return &ConcurrentModificationError{Collection: k.coll, ID: k.id, Expected: p.digests[k], Actual: cur}
		}
	}
	return nil
}
