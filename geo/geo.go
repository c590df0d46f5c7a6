// Package geo holds the two spatial value types that can be indexed: a point
// location and a polygonal region. Both travel to the database as WKT.
package geo

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/planar"
)

var ErrNotAGeometry = errors.New("geo: unsupported geometry")

type Location struct {
	X float64
	Y float64
}

func (l Location) Point() orb.Point {
	return orb.Point{l.X, l.Y}
}

func (l Location) WKT() string {
	return wkt.MarshalString(l.Point())
}

func (l Location) String() string {
	return fmt.Sprintf("(%g, %g)", l.X, l.Y)
}

// Region is one or more polygons.
type Region struct {
	Shape orb.MultiPolygon
}

// NewRegion closes the ring if the last point differs from the first.
func NewRegion(points ...Location) Region {
	ring := make(orb.Ring, 0, len(points)+1)
	for _, p := range points {
		ring = append(ring, p.Point())
	}
	if len(ring) > 0 && !ring.Closed() {
		ring = append(ring, ring[0])
	}
	return Region{Shape: orb.MultiPolygon{orb.Polygon{ring}}}
}

func (r Region) WKT() string {
	if len(r.Shape) == 1 {
		return wkt.MarshalString(r.Shape[0])
	}
	return wkt.MarshalString(r.Shape)
}

func (r Region) Area() float64 {
	return planar.Area(r.Shape)
}

func (r Region) Contains(l Location) bool {
	return planar.MultiPolygonContains(r.Shape, l.Point())
}

func (r Region) String() string {
	return r.WKT()
}

// Parse reads WKT into an orb geometry.
func Parse(text string) (orb.Geometry, error) {
	g, err := wkt.Unmarshal(text)
	if err != nil {
		return nil, fmt.Errorf("geo: %w", err)
	}
	return g, nil
}

// FromGeometry converts a parsed geometry back into a Location or Region.
func FromGeometry(g orb.Geometry) (any, error) {
	switch v := g.(type) {
	case orb.Point:
		return Location{X: v[0], Y: v[1]}, nil
	case orb.Polygon:
		return Region{Shape: orb.MultiPolygon{v}}, nil
	case orb.MultiPolygon:
		return Region{Shape: v}, nil
	}
	return nil, ErrNotAGeometry
}

// Contains reports whether a covers b. Points cover only equal points;
// polygons cover points inside them and polygons whose every vertex is
// inside.
func Contains(a, b orb.Geometry) bool {
	switch outer := a.(type) {
	case orb.Point:
		p, ok := b.(orb.Point)
		return ok && p.Equal(outer)
	case orb.Polygon:
		return Contains(orb.MultiPolygon{outer}, b)
	case orb.MultiPolygon:
		switch inner := b.(type) {
		case orb.Point:
			return planar.MultiPolygonContains(outer, inner)
		case orb.Polygon:
			return containsAll(outer, inner)
		case orb.MultiPolygon:
			for _, p := range inner {
				if !containsAll(outer, p) {
					return false
				}
			}
			return true
		}
	}
	return false
}

func containsAll(outer orb.MultiPolygon, inner orb.Polygon) bool {
	for _, ring := range inner {
		for _, p := range ring {
			if !planar.MultiPolygonContains(outer, p) {
				return false
			}
		}
	}
	return true
}
