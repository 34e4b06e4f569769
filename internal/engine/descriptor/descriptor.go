package descriptor

import (
	"sort"

	"github.com/dshills/geostorm/internal/engine/feature"
)

// Descriptor is an immutable, ordered bundle of directives forming one
// atomic edit operation. Descriptors are produced by a Builder and
// consumed by the engine; they carry no state of their own execution.
type Descriptor struct {
	serial     uint64
	parentSeq  uint64
	label      string
	seeds      map[Handle]feature.ID
	directives []Directive
}

// Len returns the number of directives.
func (d *Descriptor) Len() int { return len(d.directives) }

// Label returns the human-readable label, possibly empty.
func (d *Descriptor) Label() string { return d.label }

// Serial returns the identifier of the builder that produced the
// descriptor. Handles minted by that builder carry the same serial.
func (d *Descriptor) Serial() uint64 { return d.serial }

// ParentSeq returns the sequence number of the parent transaction for
// a chained descriptor, or zero when the descriptor is unchained.
func (d *Descriptor) ParentSeq() uint64 { return d.parentSeq }

// Directive returns the i-th directive.
func (d *Descriptor) Directive(i int) Directive { return d.directives[i] }

// Directives returns the directives in submission order. The slice is
// a copy; the directives themselves are shared and must be treated as
// read-only.
func (d *Descriptor) Directives() []Directive {
	return append([]Directive(nil), d.directives...)
}

// Seed resolves a parent-transaction handle to the identifier the
// parent assigned.
func (d *Descriptor) Seed(h Handle) (feature.ID, bool) {
	id, ok := d.seeds[h]
	return id, ok
}

// HandleFor reconstructs the handle minted for the i-th directive.
func (d *Descriptor) HandleFor(i int) Handle {
	return Handle{builder: d.serial, index: i}
}

// OwnsHandle reports whether the handle names a create directive of
// this descriptor, returning its index.
func (d *Descriptor) OwnsHandle(h Handle) (int, bool) {
	if h.builder != d.serial || h.index < 0 || h.index >= len(d.directives) {
		return 0, false
	}
	if d.directives[h.index].Kind() != KindCreate {
		return 0, false
	}
	return h.index, true
}

// AffectedCollections returns the sorted, de-duplicated names of every
// collection the descriptor's directives touch.
func (d *Descriptor) AffectedCollections() []string {
	seen := make(map[string]struct{})
	for _, dir := range d.directives {
		for _, coll := range dir.Collections() {
			seen[coll] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for coll := range seen {
		out = append(out, coll)
	}
	sort.Strings(out)
	return out
}
