// Package tracks provides small track layouts used by tests.
package tracks

import (
	"github.com/mpapenbr/selfdriving-car-go/pkg/track"
)

// CorridorText is the text representation of Corridor.
const CorridorText = `corridor
0,0 0,100
0,100 0,200
36,0 36,100
36,100 36,200
`

// Corridor is a straight lane between x=0 and x=36 running from y=0 to y=200.
// It yields two checkpoints at (18,0) and (18,100).
func Corridor() *track.Geometry {
	return mustGeometry("corridor", []track.WallSegment{
		track.Wall(0, 0, 0, 100),
		track.Wall(0, 100, 0, 200),
		track.Wall(36, 0, 36, 100),
		track.Wall(36, 100, 36, 200),
	})
}

// WallAhead places a barrier at y=16, one unit in front of a vehicle
// in its start position.
func WallAhead() *track.Geometry {
	return mustGeometry("wall-ahead", []track.WallSegment{
		track.Wall(0, 0, 0, 100),
		track.Wall(0, 16, 36, 16),
		track.Wall(36, 0, 36, 100),
		track.Wall(36, 16, 0, 16),
	})
}

// SquareRingText is the text representation of SquareRing.
const SquareRingText = `square-ring
0,0 0,300
0,300 300,300
300,300 300,0
300,0 0,0
36,36 36,264
36,264 264,264
264,264 264,36
264,36 36,36
`

// SquareRing is a closed square lane of width 36 with an outer size of 300.
// Its checkpoints are (18,18), (18,282), (282,282) and (282,18).
func SquareRing() *track.Geometry {
	return mustGeometry("square-ring", []track.WallSegment{
		// outer
		track.Wall(0, 0, 0, 300),
		track.Wall(0, 300, 300, 300),
		track.Wall(300, 300, 300, 0),
		track.Wall(300, 0, 0, 0),
		// inner
		track.Wall(36, 36, 36, 264),
		track.Wall(36, 264, 264, 264),
		track.Wall(264, 264, 264, 36),
		track.Wall(264, 36, 36, 36),
	})
}

func mustGeometry(name string, walls []track.WallSegment) *track.Geometry {
	g, err := track.NewGeometry(walls, track.WithName(name))
	if err != nil {
		panic(err)
	}
	return g
}
