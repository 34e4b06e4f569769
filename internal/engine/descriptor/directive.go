// Package descriptor defines edit operation descriptors: immutable
// bundles of directives assembled through a Builder and submitted to
// the engine as one atomic unit.
package descriptor

import (
	"github.com/paulmach/orb"

	"github.com/dshills/geostorm/internal/engine/feature"
	"github.com/dshills/geostorm/internal/engine/kernel"
)

// Kind identifies a directive variant.
type Kind uint8

const (
	// KindCreate inserts a new feature.
	KindCreate Kind = iota + 1
	// KindModify changes attributes or geometry of one feature.
	KindModify
	// KindDelete removes one or more features.
	KindDelete
	// KindTransform applies a geometric operation to a scope of features.
	KindTransform
)

func (k Kind) String() string {
	switch k {
	case KindCreate:
		return "create"
	case KindModify:
		return "modify"
	case KindDelete:
		return "delete"
	case KindTransform:
		return "transform"
	default:
		return "unknown"
	}
}

// Directive is one instruction within a descriptor. Concrete types are
// Create, Modify, Delete and Transform.
type Directive interface {
	Kind() Kind
	// Collections lists the collection names the directive touches.
	Collections() []string

	sealedDirective()
}

// Create inserts a new feature with the given geometry and attributes.
// The feature identifier is assigned by the store when the operation
// commits.
type Create struct {
	Coll       string
	Geometry   orb.Geometry
	Attributes feature.Attributes
}

func (c *Create) Kind() Kind            { return KindCreate }
func (c *Create) Collections() []string { return []string{c.Coll} }
func (c *Create) sealedDirective()      {}

// Modify changes a single feature: attribute sets, attribute clears,
// and an optional full geometry replacement. A nil Geometry leaves the
// feature's geometry unchanged.
type Modify struct {
	Coll     string
	Target   Ref
	Set      feature.Attributes
	Clear    []string
	Geometry orb.Geometry
}

func (m *Modify) Kind() Kind            { return KindModify }
func (m *Modify) Collections() []string { return []string{m.Coll} }
func (m *Modify) sealedDirective()      {}

// Delete removes the referenced features from one collection.
type Delete struct {
	Coll string
	Refs []Ref
}

func (d *Delete) Kind() Kind            { return KindDelete }
func (d *Delete) Collections() []string { return []string{d.Coll} }
func (d *Delete) sealedDirective()      {}

// Transform applies a geometric operation to every feature in scope.
type Transform struct {
	Scope Scope
	Op    TransformOp
}

func (t *Transform) Kind() Kind            { return KindTransform }
func (t *Transform) Collections() []string { return t.Scope.Collections() }
func (t *Transform) sealedDirective()      {}

// TransformKind selects the geometric operation of a Transform directive.
type TransformKind uint8

const (
	TransformMove TransformKind = iota + 1
	TransformRotate
	TransformScale
	TransformAffine
	TransformClip
	TransformSplit
	TransformMerge
)

func (k TransformKind) String() string {
	switch k {
	case TransformMove:
		return "move"
	case TransformRotate:
		return "rotate"
	case TransformScale:
		return "scale"
	case TransformAffine:
		return "affine"
	case TransformClip:
		return "clip"
	case TransformSplit:
		return "split"
	case TransformMerge:
		return "merge"
	default:
		return "unknown"
	}
}

// TransformOp carries the parameters of a geometric operation. Only
// the fields relevant to Kind are meaningful; use the constructors.
type TransformOp struct {
	Kind   TransformKind
	DX, DY float64       // move delta
	Angle  float64       // rotation in radians, counter-clockwise
	FX, FY float64       // scale factors
	Origin *orb.Point    // rotate/scale pivot; nil pivots on each feature's centroid
	Matrix kernel.Affine // affine matrix
	Bound  orb.Bound     // clip window
	Parts  int           // split piece count
}

// MoveBy translates each feature in scope by (dx, dy).
func MoveBy(dx, dy float64) TransformOp {
	return TransformOp{Kind: TransformMove, DX: dx, DY: dy}
}

// RotateBy rotates each feature by the angle in radians. A nil origin
// rotates each feature around its own centroid.
func RotateBy(radians float64, origin *orb.Point) TransformOp {
	return TransformOp{Kind: TransformRotate, Angle: radians, Origin: clonePoint(origin)}
}

// ScaleBy scales each feature by (fx, fy). A nil origin scales each
// feature around its own centroid.
func ScaleBy(fx, fy float64, origin *orb.Point) TransformOp {
	return TransformOp{Kind: TransformScale, FX: fx, FY: fy, Origin: clonePoint(origin)}
}

// ApplyMatrix applies an invertible affine matrix to each feature.
func ApplyMatrix(m kernel.Affine) TransformOp {
	return TransformOp{Kind: TransformAffine, Matrix: m}
}

// ClipTo cuts each feature's geometry to the bound.
func ClipTo(b orb.Bound) TransformOp {
	return TransformOp{Kind: TransformClip, Bound: b}
}

// SplitInto divides each feature into the given number of parts. The
// original feature keeps the first part; the remaining parts become
// new features that copy the original's attributes.
func SplitInto(parts int) TransformOp {
	return TransformOp{Kind: TransformSplit, Parts: parts}
}

// MergeAll combines all features in scope into the first one. The
// survivor receives the merged geometry; the rest are deleted.
func MergeAll() TransformOp {
	return TransformOp{Kind: TransformMerge}
}

func clonePoint(p *orb.Point) *orb.Point {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}
