// Package vehicle contains the kinematic model of the car.
package vehicle

import (
	"errors"
	"fmt"
	"math"

	"github.com/mpapenbr/selfdriving-car-go/pkg/geom"
)

var ErrInvalidAction = errors.New("invalid action")

// Action is an index into the action table.
type Action int

const (
	PivotLeft Action = iota
	SharpLeft
	Left
	Forward
	Right
	SharpRight
	PivotRight
)

// Motion is the effect of an action for a single step.
type Motion struct {
	Speed        float64
	HeadingDelta float64 // degrees, positive turns left
}

var actionTable = [...]Motion{
	PivotLeft:  {Speed: 0, HeadingDelta: 5},
	SharpLeft:  {Speed: 1, HeadingDelta: 5},
	Left:       {Speed: 1, HeadingDelta: 2},
	Forward:    {Speed: 1, HeadingDelta: 0},
	Right:      {Speed: 1, HeadingDelta: -2},
	SharpRight: {Speed: 1, HeadingDelta: -5},
	PivotRight: {Speed: 0, HeadingDelta: -5},
}

var actionNames = [...]string{
	PivotLeft:  "pivot-left",
	SharpLeft:  "sharp-left",
	Left:       "left",
	Forward:    "forward",
	Right:      "right",
	SharpRight: "sharp-right",
	PivotRight: "pivot-right",
}

// NumActions is the size of the action table.
const NumActions = len(actionTable)

func (a Action) Valid() bool {
	return a >= 0 && int(a) < NumActions
}

func (a Action) String() string {
	if !a.Valid() {
		return fmt.Sprintf("action(%d)", int(a))
	}
	return actionNames[a]
}

// Motion returns the table entry for a.
func (a Action) Motion() (Motion, error) {
	if !a.Valid() {
		return Motion{}, fmt.Errorf("%w: %d", ErrInvalidAction, int(a))
	}
	return actionTable[a], nil
}

// Actions returns all actions in table order.
func Actions() []Action {
	ret := make([]Action, NumActions)
	for i := range ret {
		ret[i] = Action(i)
	}
	return ret
}

type Config struct {
	HalfWidth    float64
	HalfLength   float64
	StartOffset  geom.Point // added to the track start anchor
	StartHeading float64
}

func DefaultConfig() Config {
	return Config{
		HalfWidth:    7.5,
		HalfLength:   15,
		StartOffset:  geom.Pt(18, 0),
		StartHeading: 180,
	}
}

// Vehicle is a point mass with a heading and a rectangular body.
type Vehicle struct {
	cfg        Config
	anchor     geom.Point
	pos        geom.Point
	heading    float64
	speed      float64
	checkpoint int
}

type Option func(*Vehicle)

func WithConfig(cfg Config) Option {
	return func(v *Vehicle) {
		v.cfg = cfg
	}
}

// New creates a vehicle placed relative to anchor and resets it.
func New(anchor geom.Point, opts ...Option) *Vehicle {
	v := &Vehicle{cfg: DefaultConfig(), anchor: anchor}
	for _, opt := range opts {
		opt(v)
	}
	v.Reset()
	return v
}

// Reset moves the vehicle back to its start pose and clears the checkpoint index.
func (v *Vehicle) Reset() {
	v.pos = v.anchor.Add(v.cfg.StartOffset)
	v.heading = v.cfg.StartHeading
	v.speed = 0
	v.checkpoint = 0
}

// Move applies action a and returns the distance travelled.
func (v *Vehicle) Move(a Action) (float64, error) {
	m, err := a.Motion()
	if err != nil {
		return 0, err
	}
	v.heading += m.HeadingDelta
	v.speed = m.Speed
	rad := geom.Radians(v.heading)
	v.pos.X -= m.Speed * math.Sin(rad)
	v.pos.Y -= m.Speed * math.Cos(rad)
	return math.Abs(m.Speed), nil
}

// CaptureUpTo records that all checkpoints below next have been captured.
// The index never decreases.
func (v *Vehicle) CaptureUpTo(next int) {
	if next > v.checkpoint {
		v.checkpoint = next
	}
}

func (v *Vehicle) Config() Config { return v.cfg }
func (v *Vehicle) Position() geom.Point { return v.pos }
func (v *Vehicle) Heading() float64 { return v.heading }
func (v *Vehicle) Speed() float64 { return v.speed }
func (v *Vehicle) CheckpointIndex() int { return v.checkpoint }
func (v *Vehicle) HalfExtents() (w, l float64) {
	return v.cfg.HalfWidth, v.cfg.HalfLength
}
