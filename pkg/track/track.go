// Package track holds the wall geometry of a closed track.
package track

import (
	"errors"
	"math"

	"github.com/mpapenbr/selfdriving-car-go/pkg/geom"
)

var (
	ErrEmptyTrack     = errors.New("track has no walls")
	ErrMalformedTrack = errors.New("malformed track")
)

// WallSegment is a single wall line from (X1,Y1) to (X2,Y2).
type WallSegment struct {
	X1 float64 `yaml:"x1"`
	Y1 float64 `yaml:"y1"`
	X2 float64 `yaml:"x2"`
	Y2 float64 `yaml:"y2"`
}

func Wall(x1, y1, x2, y2 float64) WallSegment {
	return WallSegment{X1: x1, Y1: y1, X2: x2, Y2: y2}
}

func (w WallSegment) Start() geom.Point { return geom.Pt(w.X1, w.Y1) }
func (w WallSegment) End() geom.Point { return geom.Pt(w.X2, w.Y2) }
func (w WallSegment) Len() float64 { return w.Start().Dist(w.End()) }

// Intersection describes a ray hitting a wall.
type Intersection struct {
	Point    geom.Point
	Distance float64 // from the ray start
	Wall     int     // index of the wall that was hit
}

// Geometry is the immutable set of walls of a track.
// It is safe for concurrent readers.
type Geometry struct {
	name  string
	walls []WallSegment
}

type GeometryOption func(*Geometry)

func WithName(name string) GeometryOption {
	return func(g *Geometry) {
		g.name = name
	}
}

// NewGeometry copies walls into a new Geometry.
func NewGeometry(walls []WallSegment, opts ...GeometryOption) (*Geometry, error) {
	if len(walls) == 0 {
		return nil, ErrEmptyTrack
	}
	g := &Geometry{walls: make([]WallSegment, len(walls))}
	copy(g.walls, walls)
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

func (g *Geometry) Name() string { return g.name }

func (g *Geometry) Len() int { return len(g.walls) }

func (g *Geometry) Wall(i int) WallSegment { return g.walls[i] }

// Walls returns a copy of the walls.
func (g *Geometry) Walls() []WallSegment {
	ret := make([]WallSegment, len(g.walls))
	copy(ret, g.walls)
	return ret
}

// StartAnchor is the start point of the first wall.
// Vehicles are placed relative to this point.
func (g *Geometry) StartAnchor() geom.Point {
	return g.walls[0].Start()
}

// Bounds returns the min and max corner of the bounding box of all walls.
func (g *Geometry) Bounds() (minPt, maxPt geom.Point) {
	minPt = geom.Pt(math.Inf(1), math.Inf(1))
	maxPt = geom.Pt(math.Inf(-1), math.Inf(-1))
	for _, w := range g.walls {
		minPt.X = math.Min(minPt.X, math.Min(w.X1, w.X2))
		minPt.Y = math.Min(minPt.Y, math.Min(w.Y1, w.Y2))
		maxPt.X = math.Max(maxPt.X, math.Max(w.X1, w.X2))
		maxPt.Y = math.Max(maxPt.Y, math.Max(w.Y1, w.Y2))
	}
	return minPt, maxPt
}

// NearestIntersection returns the intersection of the ray from->to with the
// wall closest to from. The wall order has no influence on the result,
// on equal distances the wall with the lower index wins.
func (g *Geometry) NearestIntersection(from, to geom.Point) (Intersection, bool) {
	var (
		best  Intersection
		found bool
	)
	for i := range g.walls {
		w := &g.walls[i]
		p, ok := geom.Intersect(w.Start(), w.End(), from, to)
		if !ok {
			continue
		}
		d := from.Dist(p)
		if !found || d < best.Distance {
			best = Intersection{Point: p, Distance: d, Wall: i}
			found = true
		}
	}
	return best, found
}
