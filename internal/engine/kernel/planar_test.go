package kernel

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMoveTranslates(t *testing.T) {
	k := NewPlanar()
	in := orb.LineString{{0, 0}, {2, 1}}
	out, err := k.Move(in, 3, -1)
	require.NoError(t, err)
	assert.True(t, orb.Equal(orb.LineString{{3, -1}, {5, 0}}, out))
	assert.True(t, orb.Equal(orb.LineString{{0, 0}, {2, 1}}, in), "input must not change")
}

func TestRotateAroundExplicitOrigin(t *testing.T) {
	k := NewPlanar()
	origin := orb.Point{0, 0}
	out, err := k.Rotate(orb.Point{1, 0}, math.Pi/2, &origin)
	require.NoError(t, err)
	p := out.(orb.Point)
	assert.InDelta(t, 0, p[0], 1e-12)
	assert.InDelta(t, 1, p[1], 1e-12)
}

func TestRotateDefaultsToCentroid(t *testing.T) {
	k := NewPlanar()
	in := orb.LineString{{0, 0}, {2, 0}}
	out, err := k.Rotate(in, math.Pi, nil)
	require.NoError(t, err)
	ls := out.(orb.LineString)
	assert.InDelta(t, 2, ls[0][0], 1e-12)
	assert.InDelta(t, 0, ls[1][0], 1e-12)
}

func TestScaleAboutOrigin(t *testing.T) {
	k := NewPlanar()
	origin := orb.Point{1, 1}
	out, err := k.Scale(orb.Point{3, 1}, 2, 2, &origin)
	require.NoError(t, err)
	assert.Equal(t, orb.Point{5, 1}, out)
}

func TestScaleRejectsZeroFactor(t *testing.T) {
	k := NewPlanar()
	_, err := k.Scale(orb.Point{1, 1}, 0, 1, nil)
	assert.ErrorIs(t, err, ErrBadParameter)
	var gerr *GeometryError
	assert.ErrorAs(t, err, &gerr)
	assert.Equal(t, "scale", gerr.Op)
}

func TestTransformRejectsSingularMatrix(t *testing.T) {
	k := NewPlanar()
	_, err := k.Transform(orb.Point{1, 1}, Affine{A: 1, B: 1, C: 1, D: 1})
	assert.ErrorIs(t, err, ErrBadParameter)
}

func TestTransformRoundTripsThroughInverse(t *testing.T) {
	k := NewPlanar()
	m := RotationAbout(0.7, orb.Point{3, 4})
	m.Tx += 10
	in := orb.Polygon{{{0, 0}, {4, 0}, {4, 4}, {0, 4}, {0, 0}}}

	fwd, err := k.Transform(in, m)
	require.NoError(t, err)
	back, err := k.Transform(fwd, m.Inverse())
	require.NoError(t, err)

	ring := back.(orb.Polygon)[0]
	for i, p := range in[0] {
		assert.InDelta(t, p[0], ring[i][0], 1e-9)
		assert.InDelta(t, p[1], ring[i][1], 1e-9)
	}
}

func TestClipToBound(t *testing.T) {
	k := NewPlanar()
	b := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{1, 1}}

	out, err := k.Clip(orb.LineString{{-1, 0.5}, {2, 0.5}}, b)
	require.NoError(t, err)
	assert.True(t, orb.Equal(orb.LineString{{0, 0.5}, {1, 0.5}}, out))

	_, err = k.Clip(orb.Point{5, 5}, b)
	assert.ErrorIs(t, err, ErrDegenerateResult)
}

func TestSplitLineEqualLengths(t *testing.T) {
	k := NewPlanar()
	in := orb.LineString{{0, 0}, {3, 0}, {3, 3}}

	parts, err := k.Split(in, 3)
	require.NoError(t, err)
	require.Len(t, parts, 3)

	for _, p := range parts {
		assert.InDelta(t, 2, planar.Length(p.(orb.LineString)), 1e-9)
	}
	// pieces chain end to start
	for i := 1; i < len(parts); i++ {
		prev := parts[i-1].(orb.LineString)
		cur := parts[i].(orb.LineString)
		assert.Equal(t, prev[len(prev)-1], cur[0])
	}
	first := parts[0].(orb.LineString)
	last := parts[2].(orb.LineString)
	assert.Equal(t, orb.Point{0, 0}, first[0])
	assert.Equal(t, orb.Point{3, 3}, last[len(last)-1])
}

func TestSplitRejectsBadInput(t *testing.T) {
	k := NewPlanar()

	_, err := k.Split(orb.LineString{{0, 0}, {1, 0}}, 1)
	assert.ErrorIs(t, err, ErrBadParameter)

	_, err = k.Split(orb.Point{0, 0}, 2)
	assert.ErrorIs(t, err, ErrUnsupportedGeometry)

	_, err = k.Split(orb.LineString{{1, 1}, {1, 1}}, 2)
	assert.ErrorIs(t, err, ErrDegenerateResult)
}

func TestSplitMultiPartByMember(t *testing.T) {
	k := NewPlanar()
	in := orb.MultiPolygon{
		{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}},
		{{{5, 5}, {6, 5}, {6, 6}, {5, 5}}},
	}
	parts, err := k.Split(in, 2)
	require.NoError(t, err)
	require.Len(t, parts, 2)
	assert.True(t, orb.Equal(in[0], parts[0]))
	assert.True(t, orb.Equal(in[1], parts[1]))

	_, err = k.Split(in, 3)
	assert.ErrorIs(t, err, ErrBadParameter)
}

func TestMergePolygonsIntoMultiPart(t *testing.T) {
	k := NewPlanar()
	a := orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}
	b := orb.Polygon{{{2, 2}, {3, 2}, {3, 3}, {2, 2}}}

	out, err := k.Merge([]orb.Geometry{a, b})
	require.NoError(t, err)
	mp, ok := out.(orb.MultiPolygon)
	require.True(t, ok)
	require.Len(t, mp, 2)
	assert.True(t, orb.Equal(a, mp[0]))
	assert.True(t, orb.Equal(b, mp[1]))
}

func TestMergeRejectsMixedTypes(t *testing.T) {
	k := NewPlanar()
	_, err := k.Merge([]orb.Geometry{orb.Point{0, 0}, orb.LineString{{0, 0}, {1, 1}}})
	assert.ErrorIs(t, err, ErrUnsupportedGeometry)

	_, err = k.Merge([]orb.Geometry{orb.Point{0, 0}})
	assert.ErrorIs(t, err, ErrBadParameter)
}

func TestMergeFlattensMultiParts(t *testing.T) {
	k := NewPlanar()
	out, err := k.Merge([]orb.Geometry{
		orb.MultiPoint{{0, 0}, {1, 1}},
		orb.Point{2, 2},
	})
	require.NoError(t, err)
	assert.Equal(t, orb.MultiPoint{{0, 0}, {1, 1}, {2, 2}}, out)
}
