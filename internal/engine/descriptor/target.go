package descriptor

import (
	"fmt"
	"sort"

	"github.com/dshills/geostorm/internal/engine/feature"
)

// Handle is an opaque reference to a directive within a builder. A
// handle returned by AddCreate stands in for the feature identifier
// the store will assign at commit, so later directives in the same
// descriptor (or in a chained descriptor) can target a feature that
// does not exist yet.
type Handle struct {
	builder uint64
	index   int
}

// Valid reports whether the handle came from a builder.
func (h Handle) Valid() bool { return h.builder != 0 }

func (h Handle) String() string {
	return fmt.Sprintf("h%d.%d", h.builder, h.index)
}

// Ref addresses exactly one feature, either by concrete identifier or
// by the handle of a pending create.
type Ref struct {
	id feature.ID
	h  Handle
}

// ByID references an existing feature by identifier.
func ByID(id feature.ID) Ref { return Ref{id: id} }

// ByHandle references the feature a prior AddCreate will produce.
func ByHandle(h Handle) Ref { return Ref{h: h} }

// IsHandle reports whether the reference is a pending-create handle.
func (r Ref) IsHandle() bool { return r.h.Valid() }

// ID returns the concrete identifier of an identifier reference.
func (r Ref) ID() feature.ID { return r.id }

// Handle returns the handle of a handle reference.
func (r Ref) Handle() Handle { return r.h }

func (r Ref) String() string {
	if r.IsHandle() {
		return r.h.String()
	}
	return fmt.Sprintf("#%d", r.id)
}

// Scope is the polymorphic target of a geometric transform: either a
// single feature reference within one collection, or a whole selection
// set spanning any number of collections.
type Scope struct {
	coll string
	ref  Ref
	sel  feature.SelectionSet
}

// One scopes a transform to a single feature in a collection.
func One(collection string, r Ref) Scope {
	return Scope{coll: collection, ref: r}
}

// Selected scopes a transform to every member of the selection. The
// selection is copied; later changes to it do not affect the scope.
func Selected(sel feature.SelectionSet) Scope {
	return Scope{sel: sel.Clone()}
}

// IsSelection reports whether the scope is selection-based.
func (s Scope) IsSelection() bool { return s.sel != nil }

// Single returns the collection and reference of a single-feature scope.
func (s Scope) Single() (string, Ref) { return s.coll, s.ref }

// Selection returns the selection of a selection scope.
func (s Scope) Selection() feature.SelectionSet { return s.sel }

// Collections lists the collection names the scope touches, sorted.
func (s Scope) Collections() []string {
	if s.sel != nil {
		return s.sel.Collections()
	}
	return []string{s.coll}
}

// Count returns the number of features in scope. Handle references
// count as one.
func (s Scope) Count() int {
	if s.sel != nil {
		return s.sel.Count()
	}
	return 1
}

// Members enumerates the scope as (collection, ref) pairs in
// deterministic order: selection members ascend by collection then id.
func (s Scope) Members() []Member {
	if s.sel == nil {
		return []Member{{Coll: s.coll, Ref: s.ref}}
	}
	colls := s.sel.Collections()
	sort.Strings(colls)
	out := make([]Member, 0, s.sel.Count())
	for _, coll := range colls {
		for _, id := range s.sel.IDs(coll) {
			out = append(out, Member{Coll: coll, Ref: ByID(id)})
		}
	}
	return out
}

// Member is one (collection, reference) pair of a transform scope.
type Member struct {
	Coll string
	Ref  Ref
}
