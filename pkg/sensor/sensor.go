// Package sensor casts a fan of distance rays from a vehicle.
package sensor

import (
	"errors"
	"fmt"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/mpapenbr/selfdriving-car-go/pkg/geom"
	"github.com/mpapenbr/selfdriving-car-go/pkg/track"
)

var ErrInvalidConfig = errors.New("invalid sensor config")

type Config struct {
	// Angles in degrees relative to the vehicle heading, positive is left.
	Angles []float64
	// MaxRange is the ray length measured from the vehicle centre.
	MaxRange float64
	// Precision is the number of decimals kept in a reading.
	Precision int32
}

func DefaultConfig() Config {
	return Config{
		Angles:    []float64{-90, -60, -30, 0, 30, 60, 90},
		MaxRange:  60,
		Precision: 2,
	}
}

// Reading holds one normalized distance per ray in [0,1].
// 1 means no wall within range.
type Reading []float64

func (r Reading) Clone() Reading {
	ret := make(Reading, len(r))
	copy(ret, r)
	return ret
}

// Min returns the smallest value or 1 for an empty reading.
func (r Reading) Min() float64 {
	if len(r) == 0 {
		return 1
	}
	return lo.Min(r)
}

type ray struct {
	angle  float64
	offset float64 // distance from centre to the body boundary
	reach  float64 // MaxRange - offset
}

// Array is a fixed set of rays attached to a vehicle body.
type Array struct {
	cfg   Config
	track *track.Geometry
	rays  []ray
}

// NewArray precomputes the rays for a body with the given half extents.
// halfWidth is measured across, halfLength along the heading.
func NewArray(geo *track.Geometry, cfg Config, halfWidth, halfLength float64) (*Array, error) {
	if len(cfg.Angles) == 0 {
		return nil, fmt.Errorf("%w: no angles", ErrInvalidConfig)
	}
	a := &Array{
		cfg:   cfg,
		track: geo,
		rays:  make([]ray, len(cfg.Angles)),
	}
	for i, angle := range cfg.Angles {
		offset := geom.BoxExit(halfWidth, halfLength, geom.Direction(angle))
		reach := cfg.MaxRange - offset
		if reach <= 0 {
			return nil, fmt.Errorf("%w: range %.2f does not leave the body at angle %.1f",
				ErrInvalidConfig, cfg.MaxRange, angle)
		}
		a.rays[i] = ray{angle: angle, offset: offset, reach: reach}
	}
	return a, nil
}

func (a *Array) Len() int { return len(a.rays) }

func (a *Array) Config() Config { return a.cfg }

// Segment returns start and end point of ray i for the given pose.
func (a *Array) Segment(i int, center geom.Point, heading float64) (start, end geom.Point) {
	r := a.rays[i]
	dir := geom.Direction(heading + r.angle)
	return center.Add(dir.Scale(r.offset)), center.Add(dir.Scale(a.cfg.MaxRange))
}

// Read measures all rays for a vehicle at center with the given heading.
func (a *Array) Read(center geom.Point, heading float64) Reading {
	ret := make(Reading, len(a.rays))
	for i, r := range a.rays {
		start, end := a.Segment(i, center, heading)
		dist := r.reach
		if hit, ok := a.track.NearestIntersection(start, end); ok {
			dist = hit.Distance
		}
		ret[i] = a.normalize(dist / r.reach)
	}
	return ret
}

func (a *Array) normalize(v float64) float64 {
	v = lo.Clamp(v, 0, 1)
	return decimal.NewFromFloat(v).Round(a.cfg.Precision).InexactFloat64()
}
