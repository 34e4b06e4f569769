package descriptor

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/paulmach/orb"

	"github.com/dshills/geostorm/internal/engine/feature"
)

// Errors returned while building a descriptor.
var (
	// ErrUnknownCollection indicates a directive references a collection
	// the dataset does not contain.
	ErrUnknownCollection = errors.New("unknown collection")

	// ErrMissingGeometry indicates a create directive without a geometry.
	ErrMissingGeometry = errors.New("create requires a geometry")

	// ErrEmptyModification indicates a modify directive that changes nothing.
	ErrEmptyModification = errors.New("modification changes nothing")

	// ErrBadRef indicates a feature reference that is neither a positive
	// identifier nor a valid handle.
	ErrBadRef = errors.New("invalid feature reference")

	// ErrBadHandle indicates a handle that does not name a pending create
	// of this descriptor or a resolved create of the parent transaction.
	ErrBadHandle = errors.New("handle does not name a known create")

	// ErrEmptyScope indicates a transform scope with no members.
	ErrEmptyScope = errors.New("transform scope is empty")

	// ErrBadTransform indicates transform parameters outside the valid range.
	ErrBadTransform = errors.New("invalid transform parameters")
)

// Catalog answers whether a collection name exists. The feature store
// satisfies it.
type Catalog interface {
	HasCollection(name string) bool
}

var builderSerial atomic.Uint64

// Builder assembles directives into a Descriptor. Arguments are
// validated and copied as they are added, so a built descriptor is
// immutable and detached from its inputs. Builders are not safe for
// concurrent use.
type Builder struct {
	catalog    Catalog
	serial     uint64
	parentSeq  uint64
	label      string
	seeds      map[Handle]feature.ID
	directives []Directive
}

// NewBuilder returns a builder validating collection names against the
// catalog.
func NewBuilder(catalog Catalog) *Builder {
	return &Builder{
		catalog: catalog,
		serial:  builderSerial.Add(1),
	}
}

// NewChainedBuilder returns a builder whose descriptor will commit as
// a continuation of the parent transaction. The seeds map carries the
// parent's handle resolutions so directives may reference features the
// parent created.
func NewChainedBuilder(catalog Catalog, parentSeq uint64, seeds map[Handle]feature.ID) *Builder {
	b := NewBuilder(catalog)
	b.parentSeq = parentSeq
	if len(seeds) > 0 {
		b.seeds = make(map[Handle]feature.ID, len(seeds))
		for h, id := range seeds {
			b.seeds[h] = id
		}
	}
	return b
}

// SetLabel attaches a human-readable label recorded on the resulting
// transaction.
func (b *Builder) SetLabel(label string) { b.label = label }

// Len returns the number of directives added so far.
func (b *Builder) Len() int { return len(b.directives) }

// AddCreate appends a directive inserting a new feature. The returned
// handle stands for the identifier the store will assign.
func (b *Builder) AddCreate(collection string, geom orb.Geometry, attrs feature.Attributes) (Handle, error) {
	if err := b.checkCollection(collection); err != nil {
		return Handle{}, err
	}
	if geom == nil {
		return Handle{}, fmt.Errorf("%w (collection %q)", ErrMissingGeometry, collection)
	}
	return b.append(&Create{
		Coll:       collection,
		Geometry:   orb.Clone(geom),
		Attributes: attrs.Clone(),
	}), nil
}

// AddModify appends a directive changing one feature's attributes
// and/or geometry. A nil geometry keeps the current one.
func (b *Builder) AddModify(collection string, target Ref, set feature.Attributes, clear []string, geom orb.Geometry) (Handle, error) {
	if err := b.checkCollection(collection); err != nil {
		return Handle{}, err
	}
	if err := b.checkRef(target); err != nil {
		return Handle{}, err
	}
	if len(set) == 0 && len(clear) == 0 && geom == nil {
		return Handle{}, ErrEmptyModification
	}
	m := &Modify{
		Coll:   collection,
		Target: target,
		Set:    set.Clone(),
		Clear:  append([]string(nil), clear...),
	}
	if geom != nil {
		m.Geometry = orb.Clone(geom)
	}
	return b.append(m), nil
}

// AddDelete appends a directive removing the referenced features.
func (b *Builder) AddDelete(collection string, refs ...Ref) (Handle, error) {
	if err := b.checkCollection(collection); err != nil {
		return Handle{}, err
	}
	if len(refs) == 0 {
		return Handle{}, fmt.Errorf("%w: delete needs at least one reference", ErrBadRef)
	}
	for _, r := range refs {
		if err := b.checkRef(r); err != nil {
			return Handle{}, err
		}
	}
	return b.append(&Delete{
		Coll: collection,
		Refs: append([]Ref(nil), refs...),
	}), nil
}

// AddTransform appends a geometric operation over the scope.
func (b *Builder) AddTransform(scope Scope, op TransformOp) (Handle, error) {
	if scope.IsSelection() {
		sel := scope.Selection()
		if sel.Count() == 0 {
			return Handle{}, ErrEmptyScope
		}
		for _, coll := range sel.Collections() {
			if err := b.checkCollection(coll); err != nil {
				return Handle{}, err
			}
		}
	} else {
		coll, ref := scope.Single()
		if err := b.checkCollection(coll); err != nil {
			return Handle{}, err
		}
		if err := b.checkRef(ref); err != nil {
			return Handle{}, err
		}
	}
	if err := checkTransformOp(scope, op); err != nil {
		return Handle{}, err
	}
	return b.append(&Transform{Scope: scope, Op: op}), nil
}

// Resolved looks up the concrete identifier a parent transaction
// assigned for one of its create handles.
func (b *Builder) Resolved(h Handle) (feature.ID, bool) {
	id, ok := b.seeds[h]
	return id, ok
}

// Build snapshots the directives into an immutable descriptor. The
// builder stays usable; later additions do not affect the returned
// descriptor. An empty descriptor builds fine and is rejected at
// submission instead.
func (b *Builder) Build() *Descriptor {
	d := &Descriptor{
		serial:     b.serial,
		parentSeq:  b.parentSeq,
		label:      b.label,
		directives: append([]Directive(nil), b.directives...),
	}
	if len(b.seeds) > 0 {
		d.seeds = make(map[Handle]feature.ID, len(b.seeds))
		for h, id := range b.seeds {
			d.seeds[h] = id
		}
	}
	return d
}

func (b *Builder) append(d Directive) Handle {
	h := Handle{builder: b.serial, index: len(b.directives)}
	b.directives = append(b.directives, d)
	return h
}

func (b *Builder) checkCollection(name string) error {
	if b.catalog == nil || !b.catalog.HasCollection(name) {
		return fmt.Errorf("%w: %q", ErrUnknownCollection, name)
	}
	return nil
}

func (b *Builder) checkRef(r Ref) error {
	if r.IsHandle() {
		h := r.Handle()
		if _, seeded := b.seeds[h]; seeded {
			return nil
		}
		if h.builder == b.serial && h.index < len(b.directives) {
			if b.directives[h.index].Kind() == KindCreate {
				return nil
			}
		}
		return fmt.Errorf("%w: %s", ErrBadHandle, h)
	}
	if r.ID() <= 0 {
		return fmt.Errorf("%w: id %d", ErrBadRef, r.ID())
	}
	return nil
}

func checkTransformOp(scope Scope, op TransformOp) error {
	switch op.Kind {
	case TransformMove, TransformRotate, TransformClip:
		return nil
	case TransformScale:
		if op.FX == 0 || op.FY == 0 {
			return fmt.Errorf("%w: scale factor is zero", ErrBadTransform)
		}
		return nil
	case TransformAffine:
		if !op.Matrix.Invertible() {
			return fmt.Errorf("%w: affine matrix is singular", ErrBadTransform)
		}
		return nil
	case TransformSplit:
		if op.Parts < 2 {
			return fmt.Errorf("%w: split into %d parts", ErrBadTransform, op.Parts)
		}
		return nil
	case TransformMerge:
		if scope.Count() < 2 {
			return fmt.Errorf("%w: merge needs at least two features", ErrBadTransform)
		}
		if len(scope.Collections()) > 1 {
			return fmt.Errorf("%w: merge cannot span collections", ErrBadTransform)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown transform kind %d", ErrBadTransform, op.Kind)
	}
}
