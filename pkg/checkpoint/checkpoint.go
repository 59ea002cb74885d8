// Package checkpoint derives reward gates from the track walls.
//
// The walls of a track are expected in two halves: the first half describes
// one side of the track, the second half the other side in the same order.
// Wall i and wall i+N/2 form a gate, the checkpoint sits in the middle of
// their start points.
package checkpoint

import (
	"errors"
	"fmt"

	"github.com/mpapenbr/selfdriving-car-go/pkg/geom"
	"github.com/mpapenbr/selfdriving-car-go/pkg/track"
)

var (
	ErrTooFewCheckpoints = errors.New("a track needs at least two checkpoints")
	ErrDegenerateTrack   = errors.New("checkpoints do not span any distance")
)

type Checkpoint struct {
	Position      geom.Point
	CaptureRadius float64
	// DistanceToPrevious is 0 for the first checkpoint.
	DistanceToPrevious  float64
	AccumulatedDistance float64
	// RewardValue is the share of the total track length covered
	// between the previous checkpoint and this one.
	RewardValue       float64
	AccumulatedReward float64
}

// PartialReward returns the part of RewardValue earned by a vehicle that is
// dist away from this checkpoint while coming from the previous one.
func (c *Checkpoint) PartialReward(dist float64) float64 {
	if c.DistanceToPrevious <= 0 {
		return 0
	}
	perc := (c.DistanceToPrevious - dist) / c.DistanceToPrevious
	if perc < 0 {
		return 0
	}
	return perc * c.RewardValue
}

type Config struct {
	CaptureRadius float64
	// Tolerance is added to the capture radius to absorb rounding errors.
	Tolerance float64
}

func DefaultConfig() Config {
	return Config{CaptureRadius: 10, Tolerance: 1e-6}
}

// Track is the ordered list of checkpoints of a track.
// The capture index is owned by the caller.
type Track struct {
	cfg         Config
	checkpoints []Checkpoint
	length      float64
}

type Option func(*Track)

func WithConfig(cfg Config) Option {
	return func(t *Track) {
		t.cfg = cfg
	}
}

// NewTrack pairs the walls of geo into checkpoints.
func NewTrack(geo *track.Geometry, opts ...Option) (*Track, error) {
	half := geo.Len() / 2
	positions := make([]geom.Point, half)
	for i := range half {
		positions[i] = geom.Midpoint(geo.Wall(i).Start(), geo.Wall(i+half).Start())
	}
	return FromPositions(positions, opts...)
}

// FromPositions creates a track from explicit checkpoint positions.
func FromPositions(positions []geom.Point, opts ...Option) (*Track, error) {
	if len(positions) < 2 {
		return nil, fmt.Errorf("%w: got %d", ErrTooFewCheckpoints, len(positions))
	}
	t := &Track{cfg: DefaultConfig()}
	for _, opt := range opts {
		opt(t)
	}
	t.checkpoints = make([]Checkpoint, len(positions))
	for i, p := range positions {
		cp := &t.checkpoints[i]
		cp.Position = p
		cp.CaptureRadius = t.cfg.CaptureRadius
		if i > 0 {
			prev := &t.checkpoints[i-1]
			cp.DistanceToPrevious = p.Dist(prev.Position)
			cp.AccumulatedDistance = prev.AccumulatedDistance + cp.DistanceToPrevious
		}
	}
	t.length = t.checkpoints[len(positions)-1].AccumulatedDistance
	if geom.IsZero(t.length) {
		return nil, ErrDegenerateTrack
	}
	for i := 1; i < len(t.checkpoints); i++ {
		cp := &t.checkpoints[i]
		prev := &t.checkpoints[i-1]
		cp.RewardValue = cp.AccumulatedDistance/t.length - prev.AccumulatedReward
		cp.AccumulatedReward = prev.AccumulatedReward + cp.RewardValue
	}
	return t, nil
}

func (t *Track) Len() int { return len(t.checkpoints) }

// Length is the accumulated distance from the first to the last checkpoint.
func (t *Track) Length() float64 { return t.length }

func (t *Track) At(i int) Checkpoint { return t.checkpoints[i] }

func (t *Track) Checkpoints() []Checkpoint {
	ret := make([]Checkpoint, len(t.checkpoints))
	copy(ret, t.checkpoints)
	return ret
}

// Capture returns the new capture index for a vehicle at pos that has
// captured all checkpoints below next. Several checkpoints may be captured
// in one call.
func (t *Track) Capture(pos geom.Point, next int) int {
	for next < len(t.checkpoints) && t.inReach(pos, next) {
		next++
	}
	return next
}

// Complete reports whether all checkpoints are captured.
func (t *Track) Complete(next int) bool {
	return next >= len(t.checkpoints)
}

// Progress returns the completed share of the track in [0,1] for a vehicle
// at pos heading for checkpoint next.
func (t *Track) Progress(pos geom.Point, next int) float64 {
	next = t.Capture(pos, next)
	if t.Complete(next) {
		return 1
	}
	if next == 0 {
		return 0
	}
	cp := &t.checkpoints[next]
	return t.checkpoints[next-1].AccumulatedReward + cp.PartialReward(pos.Dist(cp.Position))
}

func (t *Track) inReach(pos geom.Point, i int) bool {
	cp := &t.checkpoints[i]
	return pos.Dist(cp.Position) <= cp.CaptureRadius+t.cfg.Tolerance
}
