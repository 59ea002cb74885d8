// Package simulation combines track, vehicle, sensors and checkpoints into a
// step based environment.
package simulation

import (
	"errors"
	"fmt"

	"github.com/mpapenbr/selfdriving-car-go/log"
	"github.com/mpapenbr/selfdriving-car-go/pkg/checkpoint"
	"github.com/mpapenbr/selfdriving-car-go/pkg/geom"
	"github.com/mpapenbr/selfdriving-car-go/pkg/sensor"
	"github.com/mpapenbr/selfdriving-car-go/pkg/track"
	"github.com/mpapenbr/selfdriving-car-go/pkg/vehicle"
)

// CollisionReward is returned for the step that ends in a collision.
const CollisionReward = -1.0

var ErrEpisodeOver = errors.New("episode is over, reset required")

type Config struct {
	Sensor     sensor.Config
	Vehicle    vehicle.Config
	Checkpoint checkpoint.Config
	// CollisionThreshold is the sensor value below which the vehicle is
	// considered to touch a wall.
	CollisionThreshold float64
	// StepPenalty is subtracted from the number of checkpoints captured
	// in a step.
	StepPenalty float64
}

func DefaultConfig() Config {
	return Config{
		Sensor:             sensor.DefaultConfig(),
		Vehicle:            vehicle.DefaultConfig(),
		Checkpoint:         checkpoint.DefaultConfig(),
		CollisionThreshold: 0.05,
		StepPenalty:        1,
	}
}

// Outcome describes how an episode ended.
type Outcome int

const (
	Running Outcome = iota
	Collided
	Completed
)

func (o Outcome) String() string {
	switch o {
	case Running:
		return "running"
	case Collided:
		return "collided"
	case Completed:
		return "completed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Snapshot is a read only view of the simulation state.
type Snapshot struct {
	Position        geom.Point
	Heading         float64
	Speed           float64
	CheckpointIndex int
	Odometer        float64
	Steps           int
	Reading         sensor.Reading
	Outcome         Outcome
}

// Simulation is not safe for concurrent use.
type Simulation struct {
	cfg         Config
	geo         *track.Geometry
	car         *vehicle.Vehicle
	sensors     *sensor.Array
	checkpoints *checkpoint.Track
	reading     sensor.Reading
	odometer    float64
	steps       int
	outcome     Outcome
	log         *log.Logger
}

type Option func(*Simulation)

func WithConfig(cfg Config) Option {
	return func(s *Simulation) {
		s.cfg = cfg
	}
}

func WithLogger(l *log.Logger) Option {
	return func(s *Simulation) {
		s.log = l
	}
}

// New creates a simulation on geo and resets it.
func New(geo *track.Geometry, opts ...Option) (*Simulation, error) {
	s := &Simulation{
		cfg: DefaultConfig(),
		geo: geo,
		log: log.Default().Named("sim"),
	}
	for _, opt := range opts {
		opt(s)
	}
	var err error
	s.checkpoints, err = checkpoint.NewTrack(geo, checkpoint.WithConfig(s.cfg.Checkpoint))
	if err != nil {
		return nil, err
	}
	s.car = vehicle.New(geo.StartAnchor(), vehicle.WithConfig(s.cfg.Vehicle))
	hw, hl := s.car.HalfExtents()
	s.sensors, err = sensor.NewArray(geo, s.cfg.Sensor, hw, hl)
	if err != nil {
		return nil, err
	}
	s.Reset()
	return s, nil
}

// Reset puts the vehicle back to the start and clears all episode counters.
func (s *Simulation) Reset() {
	s.car.Reset()
	s.odometer = 0
	s.steps = 0
	s.outcome = Running
	s.reading = s.sensors.Read(s.car.Position(), s.car.Heading())
}

// Step applies action and returns the reward of this step and whether the
// episode ended. A collision ends the episode with CollisionReward, capturing
// the last checkpoint ends it regularly.
func (s *Simulation) Step(action vehicle.Action) (reward float64, done bool, err error) {
	if s.outcome != Running {
		return 0, true, ErrEpisodeOver
	}
	dist, err := s.car.Move(action)
	if err != nil {
		return 0, false, err
	}
	s.steps++
	s.odometer += dist
	s.reading = s.sensors.Read(s.car.Position(), s.car.Heading())

	if s.IsCollision(s.reading) {
		s.outcome = Collided
		if s.log.Enabled(log.DebugLevel) {
			s.log.Debug("collision",
				log.Int("step", s.steps),
				log.Stringer("pos", s.car.Position()),
				log.Float64s("reading", s.reading))
		}
		return CollisionReward, true, nil
	}

	prev := s.car.CheckpointIndex()
	next := s.checkpoints.Capture(s.car.Position(), prev)
	s.car.CaptureUpTo(next)
	if next > prev && s.log.Enabled(log.DebugLevel) {
		s.log.Debug("checkpoint captured",
			log.Int("step", s.steps),
			log.Int("index", next),
			log.Int("total", s.checkpoints.Len()))
	}
	reward = float64(next-prev) - s.cfg.StepPenalty
	if s.checkpoints.Complete(next) {
		s.outcome = Completed
		return reward, true, nil
	}
	return reward, false, nil
}

// IsCollision reports whether any value of reading is below the collision threshold.
func (s *Simulation) IsCollision(reading sensor.Reading) bool {
	return reading.Min() < s.cfg.CollisionThreshold
}

// State returns a copy of the current sensor reading.
func (s *Simulation) State() []float64 {
	return s.reading.Clone()
}

func (s *Simulation) StateDim() int { return s.sensors.Len() }

func (s *Simulation) Position() geom.Point { return s.car.Position() }

func (s *Simulation) Heading() float64 { return s.car.Heading() }

func (s *Simulation) CheckpointIndex() int { return s.car.CheckpointIndex() }

func (s *Simulation) Odometer() float64 { return s.odometer }

func (s *Simulation) Steps() int { return s.steps }

func (s *Simulation) Outcome() Outcome { return s.outcome }

func (s *Simulation) Checkpoints() *checkpoint.Track { return s.checkpoints }

func (s *Simulation) Track() *track.Geometry { return s.geo }

// Progress is the completed share of the track in [0,1].
func (s *Simulation) Progress() float64 {
	return s.checkpoints.Progress(s.car.Position(), s.car.CheckpointIndex())
}

func (s *Simulation) Snapshot() Snapshot {
	return Snapshot{
		Position:        s.car.Position(),
		Heading:         s.car.Heading(),
		Speed:           s.car.Speed(),
		CheckpointIndex: s.car.CheckpointIndex(),
		Odometer:        s.odometer,
		Steps:           s.steps,
		Reading:         s.reading.Clone(),
		Outcome:         s.outcome,
	}
}
