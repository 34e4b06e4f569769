// Package feature defines the value types stored in a geostorm dataset:
// typed attribute scalars, spatial features, immutable snapshots, and
// selection sets. Content digests computed here back the engine's
// concurrent-modification checks.
package feature

import (
	"math"

	"github.com/cespare/xxhash/v2"
	"github.com/paulmach/orb"
)

// ID uniquely identifies a feature within its collection. Identifiers
// are allocated monotonically and never reused, even after deletion.
type ID int64

// Feature is a single spatial record: geometry plus typed attributes.
type Feature struct {
	ID         ID
	Geometry   orb.Geometry
	Attributes Attributes
}

// Clone returns a deep copy of the feature.
func (f *Feature) Clone() *Feature {
	if f == nil {
		return nil
	}
	out := &Feature{
		ID:         f.ID,
		Attributes: f.Attributes.Clone(),
	}
	if f.Geometry != nil {
		out.Geometry = orb.Clone(f.Geometry)
	}
	return out
}

// Equal reports whether two features have the same identifier, geometry
// and attributes.
func (f *Feature) Equal(o *Feature) bool {
	if f == nil || o == nil {
		return f == o
	}
	if f.ID != o.ID || !f.Attributes.Equal(o.Attributes) {
		return false
	}
	if (f.Geometry == nil) != (o.Geometry == nil) {
		return false
	}
	if f.Geometry == nil {
		return true
	}
	return orb.Equal(f.Geometry, o.Geometry)
}

// Digest returns a content hash of the feature covering its identifier,
// attributes and geometry coordinates.
func (f *Feature) Digest() uint64 {
	h := xxhash.New()
	writeUint64(h, uint64(f.ID))
	f.Attributes.writeDigest(h)
	digestGeometry(h, f.Geometry)
	return h.Sum64()
}

// Snapshot captures the full state of the feature as an immutable copy.
func (f *Feature) Snapshot() Snapshot {
	c := f.Clone()
	return Snapshot{ID: c.ID, Geometry: c.Geometry, Attributes: c.Attributes}
}

// Snapshot is an immutable full-state image of a feature at a point in
// time. Snapshots back undo, redo and journaling; holders must not
// mutate the contained geometry or attributes.
type Snapshot struct {
	ID         ID
	Geometry   orb.Geometry
	Attributes Attributes
}

// Restore materializes the snapshot as a fresh feature.
func (s Snapshot) Restore() *Feature {
	f := &Feature{ID: s.ID, Attributes: s.Attributes.Clone()}
	if s.Geometry != nil {
		f.Geometry = orb.Clone(s.Geometry)
	}
	return f
}

// Digest returns the content hash of the snapshotted state.
func (s Snapshot) Digest() uint64 {
	h := xxhash.New()
	writeUint64(h, uint64(s.ID))
	s.Attributes.writeDigest(h)
	digestGeometry(h, s.Geometry)
	return h.Sum64()
}

func digestGeometry(h *xxhash.Digest, g orb.Geometry) {
	if g == nil {
		h.WriteString("none")
		return
	}
	h.WriteString(g.GeoJSONType())
	switch t := g.(type) {
	case orb.Point:
		digestPoint(h, t)
	case orb.MultiPoint:
		for _, p := range t {
			digestPoint(h, p)
		}
	case orb.LineString:
		for _, p := range t {
			digestPoint(h, p)
		}
	case orb.MultiLineString:
		for _, ls := range t {
			digestGeometry(h, ls)
		}
	case orb.Ring:
		for _, p := range t {
			digestPoint(h, p)
		}
	case orb.Polygon:
		for _, r := range t {
			digestGeometry(h, r)
		}
	case orb.MultiPolygon:
		for _, p := range t {
			digestGeometry(h, p)
		}
	case orb.Collection:
		for _, c := range t {
			digestGeometry(h, c)
		}
	case orb.Bound:
		digestPoint(h, t.Min)
		digestPoint(h, t.Max)
	}
}

func digestPoint(h *xxhash.Digest, p orb.Point) {
	writeUint64(h, math.Float64bits(p[0]))
	writeUint64(h, math.Float64bits(p[1]))
}
