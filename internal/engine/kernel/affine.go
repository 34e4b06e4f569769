package kernel

import (
	"math"

	"github.com/paulmach/orb"
)

// Affine is a 2x3 planar affine matrix applied to points as
//
//	x' = A*x + B*y + Tx
//	y' = C*x + D*y + Ty
type Affine struct {
	A, B, Tx float64
	C, D, Ty float64
}

// Identity returns the identity transform.
func Identity() Affine {
	return Affine{A: 1, D: 1}
}

// Translation returns a transform moving points by (dx, dy).
func Translation(dx, dy float64) Affine {
	return Affine{A: 1, D: 1, Tx: dx, Ty: dy}
}

// RotationAbout returns a counter-clockwise rotation by the angle in
// radians around the origin point.
func RotationAbout(radians float64, origin orb.Point) Affine {
	sin, cos := math.Sincos(radians)
	ox, oy := origin[0], origin[1]
	return Affine{
		A: cos, B: -sin, Tx: ox - ox*cos + oy*sin,
		C: sin, D: cos, Ty: oy - ox*sin - oy*cos,
	}
}

// ScaleAbout returns a scale by (fx, fy) relative to the origin point.
func ScaleAbout(fx, fy float64, origin orb.Point) Affine {
	ox, oy := origin[0], origin[1]
	return Affine{
		A: fx, Tx: ox * (1 - fx),
		D: fy, Ty: oy * (1 - fy),
	}
}

// Apply maps a single point through the matrix.
func (m Affine) Apply(p orb.Point) orb.Point {
	return orb.Point{
		m.A*p[0] + m.B*p[1] + m.Tx,
		m.C*p[0] + m.D*p[1] + m.Ty,
	}
}

// Det returns the determinant of the linear part.
func (m Affine) Det() float64 {
	return m.A*m.D - m.B*m.C
}

// Invertible reports whether the transform preserves two dimensions.
func (m Affine) Invertible() bool {
	return m.Det() != 0
}

// Inverse returns the inverse transform. It panics if the matrix is
// not invertible; callers check Invertible first.
func (m Affine) Inverse() Affine {
	det := m.Det()
	if det == 0 {
		panic("kernel: inverse of singular affine matrix")
	}
	ia := m.D / det
	ib := -m.B / det
	ic := -m.C / det
	id := m.A / det
	return Affine{
		A: ia, B: ib, Tx: -(ia*m.Tx + ib*m.Ty),
		C: ic, D: id, Ty: -(ic*m.Tx + id*m.Ty),
	}
}
