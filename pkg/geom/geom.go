// Package geom contains the 2D primitives used by the track simulation.
//
// Coordinates are screen coordinates: x grows to the right, y grows downwards.
// A heading of 0 degrees points "up" (negative y), a heading of 180 points "down".
package geom

import (
	"fmt"
	"math"
)

// Epsilon is the tolerance used for near-zero comparisons.
const Epsilon = 1e-9

type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

func Pt(x, y float64) Point {
	return Point{X: x, Y: y}
}

func (p Point) Add(q Point) Point {
	return Point{X: p.X + q.X, Y: p.Y + q.Y}
}

func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

func (p Point) Scale(f float64) Point {
	return Point{X: p.X * f, Y: p.Y * f}
}

func (p Point) Len() float64 {
	return math.Hypot(p.X, p.Y)
}

// Dist returns the euclidean distance between p and q.
func (p Point) Dist(q Point) float64 {
	return math.Hypot(q.X-p.X, q.Y-p.Y)
}

func (p Point) String() string {
	return fmt.Sprintf("(%.3f,%.3f)", p.X, p.Y)
}

func Midpoint(a, b Point) Point {
	return Point{X: (a.X + b.X) / 2, Y: (a.Y + b.Y) / 2}
}

func Radians(deg float64) float64 {
	return deg * math.Pi / 180
}

// Direction returns the unit vector for a heading given in degrees.
func Direction(headingDeg float64) Point {
	rad := Radians(headingDeg)
	return Point{X: -math.Sin(rad), Y: -math.Cos(rad)}
}

// NormalizeDegrees maps deg into [0,360).
func NormalizeDegrees(deg float64) float64 {
	d := math.Mod(deg, 360)
	if d < 0 {
		d += 360
	}
	return d
}

func IsZero(v float64) bool {
	return math.Abs(v) < Epsilon
}

// Intersect computes the intersection of segment p1p2 with segment p3p4.
// Parallel (or near parallel) segments and zero length segments never intersect.
// The parameter bounds are checked with Epsilon slack so a ray starting exactly
// on a segment is reported as a hit.
func Intersect(p1, p2, p3, p4 Point) (Point, bool) {
	denom := (p4.Y-p3.Y)*(p2.X-p1.X) - (p4.X-p3.X)*(p2.Y-p1.Y)
	if IsZero(denom) {
		return Point{}, false
	}
	ua := ((p4.X-p3.X)*(p1.Y-p3.Y) - (p4.Y-p3.Y)*(p1.X-p3.X)) / denom
	if ua < -Epsilon || ua > 1+Epsilon {
		return Point{}, false
	}
	ub := ((p2.X-p1.X)*(p1.Y-p3.Y) - (p2.Y-p1.Y)*(p1.X-p3.X)) / denom
	if ub < -Epsilon || ub > 1+Epsilon {
		return Point{}, false
	}
	return Point{X: p1.X + ua*(p2.X-p1.X), Y: p1.Y + ua*(p2.Y-p1.Y)}, true
}

// BoxExit returns the distance from the centre of an axis aligned box with the
// given half extents to its boundary along the unit direction dir.
func BoxExit(halfWidth, halfHeight float64, dir Point) float64 {
	tx, ty := math.Inf(1), math.Inf(1)
	if !IsZero(dir.X) {
		tx = halfWidth / math.Abs(dir.X)
	}
	if !IsZero(dir.Y) {
		ty = halfHeight / math.Abs(dir.Y)
	}
	t := math.Min(tx, ty)
	if math.IsInf(t, 1) {
		return 0
	}
	return t
}
