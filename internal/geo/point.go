// Package geo provides planar point math and projection helpers for resolved
// infrastructure coordinates. All points handled by the resolver share one
// projected reference system (ETRS89 / UTM zone 30N, EPSG:25830), so distances
// are plain Euclidean meters.
package geo

import (
	"fmt"
	"math"
)

// SRID is the EPSG code of the projected reference system used for every Point.
const SRID = 25830

// Point is an immutable planar coordinate in meters.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// String returns the WKT form of the point.
func (p Point) String() string {
	return fmt.Sprintf("POINT(%f %f)", p.X, p.Y)
}

// Valid reports whether both components are finite numbers.
func (p Point) Valid() bool {
	return !math.IsNaN(p.X) && !math.IsNaN(p.Y) && !math.IsInf(p.X, 0) && !math.IsInf(p.Y, 0)
}

// Distance returns the Euclidean distance between a and b in meters.
func Distance(a, b Point) float64 {
	return math.Hypot(b.X-a.X, b.Y-a.Y)
}

// WithinTolerance reports whether a and b are at most tolerance meters apart.
// The boundary is inclusive.
func WithinTolerance(a, b Point, tolerance float64) bool {
	return Distance(a, b) <= tolerance
}
