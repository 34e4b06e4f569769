package engine

import (
	"fmt"

	"github.com/paulmach/orb"

	"github.com/dshills/geostorm/internal/engine/descriptor"
	"github.com/dshills/geostorm/internal/engine/feature"
	"github.com/dshills/geostorm/internal/engine/history"
	"github.com/dshills/geostorm/internal/engine/store"
)

// applyDirective runs one directive inside the write transaction and
// returns its outcome. On error the outcome holds whatever entries
// already applied, so the caller can roll them back.
func (e *Engine) applyDirective(tx *store.WriteTx, d *descriptor.Descriptor, handles map[descriptor.Handle]feature.ID, i int, dir descriptor.Directive) (history.Outcome, error) {
	o := history.Outcome{Directive: i, Kind: dir.Kind()}
	switch t := dir.(type) {
	case *descriptor.Create:
		id, err := tx.Create(t.Coll, t.Geometry, t.Attributes)
		if err != nil {
			return o, &ApplyError{Directive: i, Kind: t.Kind(), Err: err}
		}
		handles[d.HandleFor(i)] = id
		snap, err := snapshotOf(tx, t.Coll, id)
		if err != nil {
			return o, &ApplyError{Directive: i, Kind: t.Kind(), Err: err}
		}
		o.Created = append(o.Created, history.Created{Collection: t.Coll, Snapshot: snap})
		return o, nil

	case *descriptor.Modify:
		id, err := resolveRef(d, handles, t.Target)
		if err != nil {
			return o, &ApplyError{Directive: i, Kind: t.Kind(), Err: err}
		}
		f, err := tx.Get(t.Coll, id)
		if err != nil {
			return o, &ApplyError{Directive: i, Kind: t.Kind(), Err: err}
		}
		attrs := f.Attributes.Clone()
		if attrs == nil && len(t.Set) > 0 {
			attrs = make(feature.Attributes, len(t.Set))
		}
		for k, v := range t.Set {
			attrs[k] = v
		}
		for _, k := range t.Clear {
			delete(attrs, k)
		}
		geom := f.Geometry
		if t.Geometry != nil {
			geom = t.Geometry
		}
		upd, err := e.replace(tx, t.Coll, id, geom, attrs)
		if err != nil {
			return o, &ApplyError{Directive: i, Kind: t.Kind(), Err: err}
		}
		o.Updated = append(o.Updated, upd)
		return o, nil

	case *descriptor.Delete:
		for _, r := range t.Refs {
			id, err := resolveRef(d, handles, r)
			if err != nil {
				return o, &ApplyError{Directive: i, Kind: t.Kind(), Err: err}
			}
			snap, err := tx.Delete(t.Coll, id)
			if err != nil {
				return o, &ApplyError{Directive: i, Kind: t.Kind(), Err: err}
			}
			o.Removed = append(o.Removed, history.Removed{Collection: t.Coll, Snapshot: snap})
		}
		return o, nil

	case *descriptor.Transform:
		return e.applyTransform(tx, d, handles, i, t)

	default:
		return o, &ApplyError{Directive: i, Kind: dir.Kind(), Err: fmt.Errorf("unhandled directive kind")}
	}
}

func (e *Engine) applyTransform(tx *store.WriteTx, d *descriptor.Descriptor, handles map[descriptor.Handle]feature.ID, i int, t *descriptor.Transform) (history.Outcome, error) {
	o := history.Outcome{Directive: i, Kind: t.Kind()}
	members := t.Scope.Members()
	if t.Op.Kind == descriptor.TransformMerge {
		return e.applyMerge(tx, d, handles, i, t, members)
	}
	for _, m := range members {
		id, err := resolveRef(d, handles, m.Ref)
		if err != nil {
			return o, &ApplyError{Directive: i, Kind: t.Kind(), Err: err}
		}
		f, err := tx.Get(m.Coll, id)
		if err != nil {
			return o, &ApplyError{Directive: i, Kind: t.Kind(), Err: err}
		}

		if t.Op.Kind == descriptor.TransformSplit {
			parts, err := e.kern.Split(f.Geometry, t.Op.Parts)
			if err != nil {
				return o, &ApplyError{Directive: i, Kind: t.Kind(), Err: err}
			}
			// the original keeps the first part; the rest become new
			// features copying its attributes
			upd, err := e.replace(tx, m.Coll, id, parts[0], f.Attributes)
			if err != nil {
				return o, &ApplyError{Directive: i, Kind: t.Kind(), Err: err}
			}
			o.Updated = append(o.Updated, upd)
			for _, part := range parts[1:] {
				nid, err := tx.Create(m.Coll, part, f.Attributes)
				if err != nil {
					return o, &ApplyError{Directive: i, Kind: t.Kind(), Err: err}
				}
				snap, err := snapshotOf(tx, m.Coll, nid)
				if err != nil {
					return o, &ApplyError{Directive: i, Kind: t.Kind(), Err: err}
				}
				o.Created = append(o.Created, history.Created{Collection: m.Coll, Snapshot: snap})
			}
			continue
		}

		ng, err := e.transformOne(f.Geometry, t.Op)
		if err != nil {
			return o, &ApplyError{Directive: i, Kind: t.Kind(), Err: err}
		}
		upd, err := e.replace(tx, m.Coll, id, ng, f.Attributes)
		if err != nil {
			return o, &ApplyError{Directive: i, Kind: t.Kind(), Err: err}
		}
		o.Updated = append(o.Updated, upd)
	}
	return o, nil
}

// applyMerge combines every feature in scope into the first member,
// which keeps its attributes and receives the merged geometry; the
// remaining members are deleted.
func (e *Engine) applyMerge(tx *store.WriteTx, d *descriptor.Descriptor, handles map[descriptor.Handle]feature.ID, i int, t *descriptor.Transform, members []descriptor.Member) (history.Outcome, error) {
	o := history.Outcome{Directive: i, Kind: t.Kind()}
	ids := make([]feature.ID, len(members))
	geoms := make([]orb.Geometry, len(members))
	var survivor *feature.Feature
	for j, m := range members {
		id, err := resolveRef(d, handles, m.Ref)
		if err != nil {
			return o, &ApplyError{Directive: i, Kind: t.Kind(), Err: err}
		}
		f, err := tx.Get(m.Coll, id)
		if err != nil {
			return o, &ApplyError{Directive: i, Kind: t.Kind(), Err: err}
		}
		ids[j] = id
		geoms[j] = f.Geometry
		if j == 0 {
			survivor = f
		}
	}
	merged, err := e.kern.Merge(geoms)
	if err != nil {
		return o, &ApplyError{Directive: i, Kind: t.Kind(), Err: err}
	}
	coll := members[0].Coll
	upd, err := e.replace(tx, coll, ids[0], merged, survivor.Attributes)
	if err != nil {
		return o, &ApplyError{Directive: i, Kind: t.Kind(), Err: err}
	}
	o.Updated = append(o.Updated, upd)
	for j := 1; j < len(ids); j++ {
		snap, err := tx.Delete(coll, ids[j])
		if err != nil {
			return o, &ApplyError{Directive: i, Kind: t.Kind(), Err: err}
		}
		o.Removed = append(o.Removed, history.Removed{Collection: coll, Snapshot: snap})
	}
	return o, nil
}

func (e *Engine) transformOne(g orb.Geometry, op descriptor.TransformOp) (orb.Geometry, error) {
	switch op.Kind {
	case descriptor.TransformMove:
		return e.kern.Move(g, op.DX, op.DY)
	case descriptor.TransformRotate:
		return e.kern.Rotate(g, op.Angle, op.Origin)
	case descriptor.TransformScale:
		return e.kern.Scale(g, op.FX, op.FY, op.Origin)
	case descriptor.TransformAffine:
		return e.kern.Transform(g, op.Matrix)
	case descriptor.TransformClip:
		return e.kern.Clip(g, op.Bound)
	default:
		return nil, fmt.Errorf("unhandled transform kind %s", op.Kind)
	}
}

func (e *Engine) replace(tx *store.WriteTx, coll string, id feature.ID, geom orb.Geometry, attrs feature.Attributes) (history.Updated, error) {
	before, err := tx.Replace(coll, id, geom, attrs)
	if err != nil {
		return history.Updated{}, err
	}
	after, err := snapshotOf(tx, coll, id)
	if err != nil {
		return history.Updated{}, err
	}
	return history.Updated{Collection: coll, Before: before, After: after}, nil
}

func snapshotOf(tx *store.WriteTx, coll string, id feature.ID) (feature.Snapshot, error) {
	f, err := tx.Get(coll, id)
	if err != nil {
		return feature.Snapshot{}, err
	}
	return f.Snapshot(), nil
}

// resolveRef turns a reference into a concrete identifier using the
// creates applied so far and the parent transaction's seeds.
func resolveRef(d *descriptor.Descriptor, handles map[descriptor.Handle]feature.ID, r descriptor.Ref) (feature.ID, error) {
	if !r.IsHandle() {
		return r.ID(), nil
	}
	if id, ok := handles[r.Handle()]; ok {
		return id, nil
	}
	if id, ok := d.Seed(r.Handle()); ok {
		return id, nil
	}
	return 0, fmt.Errorf("%w: %s", descriptor.ErrBadHandle, r.Handle())
}

// rollback reverts every outcome already applied, newest first. It
// only runs inside the same write transaction that made the changes,
// so the reverts operate on exactly the state the outcomes produced.
func (e *Engine) rollback(tx *store.WriteTx, outcomes []history.Outcome) {
	for i := len(outcomes) - 1; i >= 0; i-- {
		if err := revertOutcome(tx, outcomes[i]); err != nil {
			e.log.Error("rollback of directive failed", "directive", outcomes[i].Directive, "err", err)
		}
	}
}

// revertOutcome undoes one directive's effects: created features are
// deleted, updates are restored to their before image, and removed
// features are re-inserted under their original identifiers.
func revertOutcome(tx *store.WriteTx, o history.Outcome) error {
	for i := len(o.Created) - 1; i >= 0; i-- {
		c := o.Created[i]
		if _, err := tx.Delete(c.Collection, c.Snapshot.ID); err != nil {
			return err
		}
	}
	for i := len(o.Updated) - 1; i >= 0; i-- {
		u := o.Updated[i]
		if _, err := tx.Replace(u.Collection, u.Before.ID, u.Before.Geometry, u.Before.Attributes); err != nil {
			return err
		}
	}
	for i := len(o.Removed) - 1; i >= 0; i-- {
		r := o.Removed[i]
		if err := tx.Restore(r.Collection, r.Snapshot); err != nil {
			return err
		}
	}
	return nil
}

// reapplyOutcome replays one directive's effects from its recorded
// images. Identifiers are pinned: re-created features come back under
// the identifiers the original apply assigned.
func reapplyOutcome(tx *store.WriteTx, o history.Outcome) error {
	for _, c := range o.Created {
		if err := tx.Restore(c.Collection, c.Snapshot); err != nil {
			return err
		}
	}
	for _, u := range o.Updated {
		if _, err := tx.Replace(u.Collection, u.After.ID, u.After.Geometry, u.After.Attributes); err != nil {
			return err
		}
	}
	for _, r := range o.Removed {
		if _, err := tx.Delete(r.Collection, r.Snapshot.ID); err != nil {
			return err
		}
	}
	return nil
}

// checkUndoState verifies the store still holds exactly the state this
// record left behind, so an undo never clobbers later external edits.
func checkUndoState(tx *store.WriteTx, rec *history.Record) error {
	for _, o := range rec.Outcomes() {
		for _, c := range o.Created {
			if err := expectDigest(tx, c.Collection, c.Snapshot.ID, c.Snapshot.Digest()); err != nil {
				return err
			}
		}
		for _, u := range o.Updated {
			if err := expectDigest(tx, u.Collection, u.After.ID, u.After.Digest()); err != nil {
				return err
			}
		}
		for _, r := range o.Removed {
			if err := expectAbsent(tx, r.Collection, r.Snapshot.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

// checkRedoState verifies the store matches the state the record
// originally applied against.
func checkRedoState(tx *store.WriteTx, rec *history.Record) error {
	for _, o := range rec.Outcomes() {
		for _, c := range o.Created {
			if err := expectAbsent(tx, c.Collection, c.Snapshot.ID); err != nil {
				return err
			}
		}
		for _, u := range o.Updated {
			if err := expectDigest(tx, u.Collection, u.Before.ID, u.Before.Digest()); err != nil {
				return err
			}
		}
		for _, r := range o.Removed {
			if err := expectDigest(tx, r.Collection, r.Snapshot.ID, r.Snapshot.Digest()); err != nil {
				return err
			}
		}
	}
	return nil
}

func expectDigest(tx *store.WriteTx, coll string, id feature.ID, want uint64) error {
	cur, err := tx.Digest(coll, id)
	if err != nil {
		return &ConcurrentModificationError{Collection: coll, ID: id, Expected: want}
	}
	if cur != want {
		return &ConcurrentModificationError{Collection: coll, ID: id, Expected: want, Actual: cur}
	}
	return nil
}

func expectAbsent(tx *store.WriteTx, coll string, id feature.ID) error {
	if tx.Has(coll, id) {
		cur, _ := tx.Digest(coll, id)
		return &ConcurrentModificationError{Collection: coll, ID: id, Actual: cur}
	}
	return nil
}
