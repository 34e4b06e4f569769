package kernel

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/clip"
	"github.com/paulmach/orb/planar"
)

// Planar is the default Kernel. It treats coordinates as a flat
// cartesian plane, which matches projected datasets and keeps every
// operation exactly invertible.
type Planar struct{}

// NewPlanar returns the planar geometry kernel.
func NewPlanar() *Planar { return &Planar{} }

var _ Kernel = (*Planar)(nil)

func (k *Planar) Move(g orb.Geometry, dx, dy float64) (orb.Geometry, error) {
	if g == nil {
		return nil, opError("move", g, ErrUnsupportedGeometry)
	}
	return mapPoints(g, Translation(dx, dy).Apply), nil
}

func (k *Planar) Rotate(g orb.Geometry, radians float64, origin *orb.Point) (orb.Geometry, error) {
	if g == nil {
		return nil, opError("rotate", g, ErrUnsupportedGeometry)
	}
	center := originOrCentroid(g, origin)
	return mapPoints(g, RotationAbout(radians, center).Apply), nil
}

func (k *Planar) Scale(g orb.Geometry, fx, fy float64, origin *orb.Point) (orb.Geometry, error) {
	if g == nil {
		return nil, opError("scale", g, ErrUnsupportedGeometry)
	}
	if fx == 0 || fy == 0 {
		return nil, opError("scale", g, ErrBadParameter)
	}
	center := originOrCentroid(g, origin)
	return mapPoints(g, ScaleAbout(fx, fy, center).Apply), nil
}

func (k *Planar) Transform(g orb.Geometry, m Affine) (orb.Geometry, error) {
	if g == nil {
		return nil, opError("transform", g, ErrUnsupportedGeometry)
	}
	if !m.Invertible() {
		return nil, opError("transform", g, ErrBadParameter)
	}
	return mapPoints(g, m.Apply), nil
}

func (k *Planar) Clip(g orb.Geometry, b orb.Bound) (orb.Geometry, error) {
	if g == nil {
		return nil, opError("clip", g, ErrUnsupportedGeometry)
	}
	out := clip.Geometry(b, orb.Clone(g))
	if isEmpty(out) {
		return nil, opError("clip", g, ErrDegenerateResult)
	}
	return out, nil
}

func (k *Planar) Split(g orb.Geometry, parts int) ([]orb.Geometry, error) {
	if parts < 2 {
		return nil, opError("split", g, ErrBadParameter)
	}
	switch t := g.(type) {
	case orb.LineString:
		if len(t) < 2 || planar.Length(t) == 0 {
			return nil, opError("split", g, ErrDegenerateResult)
		}
		return splitLineString(t, parts), nil
	case orb.MultiLineString:
		// A multi-part line splits into its members when the counts line up.
		if len(t) != parts {
			return nil, opError("split", g, ErrBadParameter)
		}
		out := make([]orb.Geometry, 0, parts)
		for _, ls := range t {
			out = append(out, orb.Clone(ls))
		}
		return out, nil
	case orb.MultiPolygon:
		if len(t) != parts {
			return nil, opError("split", g, ErrBadParameter)
		}
		out := make([]orb.Geometry, 0, parts)
		for _, p := range t {
			out = append(out, orb.Clone(p))
		}
		return out, nil
	default:
		return nil, opError("split", g, ErrUnsupportedGeometry)
	}
}

func (k *Planar) Merge(gs []orb.Geometry) (orb.Geometry, error) {
	if len(gs) < 2 {
		return nil, opError("merge", firstOf(gs), ErrBadParameter)
	}
	switch gs[0].(type) {
	case orb.Point, orb.MultiPoint:
		out := orb.MultiPoint{}
		for _, g := range gs {
			switch t := orb.Clone(g).(type) {
			case orb.Point:
				out = append(out, t)
			case orb.MultiPoint:
				out = append(out, t...)
			default:
				return nil, opError("merge", g, ErrUnsupportedGeometry)
			}
		}
		return out, nil
	case orb.LineString, orb.MultiLineString:
		out := orb.MultiLineString{}
		for _, g := range gs {
			switch t := orb.Clone(g).(type) {
			case orb.LineString:
				out = append(out, t)
			case orb.MultiLineString:
				out = append(out, t...)
			default:
				return nil, opError("merge", g, ErrUnsupportedGeometry)
			}
		}
		return out, nil
	case orb.Polygon, orb.MultiPolygon:
		out := orb.MultiPolygon{}
		for _, g := range gs {
			switch t := orb.Clone(g).(type) {
			case orb.Polygon:
				out = append(out, t)
			case orb.MultiPolygon:
				out = append(out, t...)
			default:
				return nil, opError("merge", g, ErrUnsupportedGeometry)
			}
		}
		return out, nil
	default:
		return nil, opError("merge", gs[0], ErrUnsupportedGeometry)
	}
}

func firstOf(gs []orb.Geometry) orb.Geometry {
	if len(gs) == 0 {
		return nil
	}
	return gs[0]
}

func originOrCentroid(g orb.Geometry, origin *orb.Point) orb.Point {
	if origin != nil {
		return *origin
	}
	center, _ := planar.CentroidArea(g)
	return center
}

// splitLineString cuts the line into the given number of pieces of
// equal planar length. Piece k ends exactly where piece k+1 begins.
func splitLineString(ls orb.LineString, parts int) []orb.Geometry {
	total := planar.Length(ls)
	out := make([]orb.Geometry, 0, parts)
	cur := orb.LineString{ls[0]}
	next := 1 // index of the next cut position
	walked := 0.0

	for i := 1; i < len(ls); i++ {
		a := cur[len(cur)-1]
		b := ls[i]
		seg := planar.Distance(a, b)
		for next < parts {
			target := total * float64(next) / float64(parts)
			if walked+seg+1e-12 < target {
				break
			}
			t := 0.0
			if seg > 0 {
				t = (target - walked) / seg
				if t > 1 {
					t = 1
				}
			}
			cut := orb.Point{a[0] + t*(b[0]-a[0]), a[1] + t*(b[1]-a[1])}
			cur = append(cur, cut)
			out = append(out, cur)
			cur = orb.LineString{cut}
			walked = target
			a = cut
			seg = planar.Distance(a, b)
			next++
		}
		if cur[len(cur)-1] != b {
			cur = append(cur, b)
		}
		walked += seg
	}
	if len(cur) >= 2 {
		out = append(out, cur)
	}
	return out
}

func mapPoints(g orb.Geometry, fn func(orb.Point) orb.Point) orb.Geometry {
	switch t := g.(type) {
	case orb.Point:
		return fn(t)
	case orb.MultiPoint:
		out := make(orb.MultiPoint, len(t))
		for i, p := range t {
			out[i] = fn(p)
		}
		return out
	case orb.LineString:
		out := make(orb.LineString, len(t))
		for i, p := range t {
			out[i] = fn(p)
		}
		return out
	case orb.MultiLineString:
		out := make(orb.MultiLineString, len(t))
		for i, ls := range t {
			out[i] = mapPoints(ls, fn).(orb.LineString)
		}
		return out
	case orb.Ring:
		out := make(orb.Ring, len(t))
		for i, p := range t {
			out[i] = fn(p)
		}
		return out
	case orb.Polygon:
		out := make(orb.Polygon, len(t))
		for i, r := range t {
			out[i] = mapPoints(r, fn).(orb.Ring)
		}
		return out
	case orb.MultiPolygon:
		out := make(orb.MultiPolygon, len(t))
		for i, p := range t {
			out[i] = mapPoints(p, fn).(orb.Polygon)
		}
		return out
	case orb.Collection:
		out := make(orb.Collection, len(t))
		for i, g := range t {
			out[i] = mapPoints(g, fn)
		}
		return out
	case orb.Bound:
		min := fn(t.Min)
		max := fn(t.Max)
		b := orb.Bound{Min: min, Max: max}
		return b.Extend(min).Extend(max)
	default:
		return orb.Clone(g)
	}
}

func isEmpty(g orb.Geometry) bool {
	switch t := g.(type) {
	case nil:
		return true
	case orb.MultiPoint:
		return len(t) == 0
	case orb.LineString:
		return len(t) < 2
	case orb.MultiLineString:
		return len(t) == 0
	case orb.Polygon:
		return len(t) == 0
	case orb.MultiPolygon:
		return len(t) == 0
	case orb.Collection:
		return len(t) == 0
	default:
		return false
	}
}
