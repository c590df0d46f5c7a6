package geo

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func square(x0, y0, side float64) Region {
	return NewRegion(
		Location{x0, y0},
		Location{x0 + side, y0},
		Location{x0 + side, y0 + side},
		Location{x0, y0 + side},
	)
}

func TestLocationWKT(t *testing.T) {
	assert.Equal(t, "POINT(1 2.5)", Location{1, 2.5}.WKT())

	g, err := Parse("POINT(1 2.5)")
	require.NoError(t, err)
	v, err := FromGeometry(g)
	require.NoError(t, err)
	assert.Equal(t, Location{1, 2.5}, v)
}

func TestRegion(t *testing.T) {
	r := square(0, 0, 2)
	assert.InDelta(t, 4.0, r.Area(), 1e-9)
	assert.True(t, r.Contains(Location{1, 1}))
	assert.False(t, r.Contains(Location{3, 1}))

	g, err := Parse(r.WKT())
	require.NoError(t, err)
	back, err := FromGeometry(g)
	require.NoError(t, err)
	assert.InDelta(t, 4.0, back.(Region).Area(), 1e-9)
}

func TestContains(t *testing.T) {
	big := square(0, 0, 10).Shape
	small := square(1, 1, 2).Shape
	assert.True(t, Contains(big, small))
	assert.False(t, Contains(small, big))
	assert.True(t, Contains(big, orb.Point{5, 5}))
	assert.True(t, Contains(orb.Point{1, 1}, orb.Point{1, 1}))
	assert.False(t, Contains(orb.Point{1, 1}, big))
}
