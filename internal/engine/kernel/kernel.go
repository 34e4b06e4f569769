// Package kernel performs the geometric math behind edit operations:
// planar transforms, clipping, splitting, and merging of orb geometries.
// Implementations never mutate their inputs; every operation returns a
// fresh geometry.
package kernel

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"
)

// Errors returned by kernel operations.
var (
	// ErrBadParameter indicates an operation parameter outside the valid range.
	ErrBadParameter = errors.New("bad geometry parameter")

	// ErrUnsupportedGeometry indicates the operation does not apply to the geometry type.
	ErrUnsupportedGeometry = errors.New("unsupported geometry type")

	// ErrDegenerateResult indicates the operation produced an empty or collapsed geometry.
	ErrDegenerateResult = errors.New("degenerate geometry result")
)

// GeometryError describes a failed kernel operation on a specific
// geometry type.
type GeometryError struct {
	Op   string // kernel operation name
	Type string // GeoJSON geometry type, or "none"
	Err  error
}

func (e *GeometryError) Error() string {
	return fmt.Sprintf("geometry %s on %s: %v", e.Op, e.Type, e.Err)
}

func (e *GeometryError) Unwrap() error { return e.Err }

func opError(op string, g orb.Geometry, err error) error {
	typ := "none"
	if g != nil {
		typ = g.GeoJSONType()
	}
	return &GeometryError{Op: op, Type: typ, Err: err}
}

// Kernel is the geometry service the edit engine delegates to. The
// engine treats it as an external dependency: it passes geometries in,
// stores the results, and never inspects coordinates itself.
type Kernel interface {
	// Move translates the geometry by (dx, dy).
	Move(g orb.Geometry, dx, dy float64) (orb.Geometry, error)

	// Rotate rotates the geometry by the angle in radians,
	// counter-clockwise, around origin. A nil origin rotates around
	// the geometry's centroid.
	Rotate(g orb.Geometry, radians float64, origin *orb.Point) (orb.Geometry, error)

	// Scale scales the geometry by (fx, fy) relative to origin. A nil
	// origin scales around the geometry's centroid.
	Scale(g orb.Geometry, fx, fy float64, origin *orb.Point) (orb.Geometry, error)

	// Transform applies an arbitrary invertible affine matrix.
	Transform(g orb.Geometry, m Affine) (orb.Geometry, error)

	// Clip cuts the geometry to the bound. The result may be empty,
	// which is reported as an error wrapping ErrDegenerateResult.
	Clip(g orb.Geometry, b orb.Bound) (orb.Geometry, error)

	// Split divides the geometry into the requested number of parts.
	Split(g orb.Geometry, parts int) ([]orb.Geometry, error)

	// Merge combines several geometries of a uniform type into one
	// multi-part geometry.
	Merge(gs []orb.Geometry) (orb.Geometry, error)
}
