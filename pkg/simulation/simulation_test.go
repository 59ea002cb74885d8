//nolint:funlen // tables
package simulation

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	gta "gotest.tools/v3/assert"

	"github.com/mpapenbr/selfdriving-car-go/pkg/sensor"
	"github.com/mpapenbr/selfdriving-car-go/pkg/track"
	"github.com/mpapenbr/selfdriving-car-go/pkg/vehicle"
	"github.com/mpapenbr/selfdriving-car-go/testsupport/tracks"
)

func TestSimulation_Corridor(t *testing.T) {
	sim, err := New(tracks.Corridor())
	gta.NilError(t, err)

	var (
		total float64
		steps int
		done  bool
	)
	rewards := map[int]float64{}
	for !done {
		var r float64
		r, done, err = sim.Step(vehicle.Forward)
		gta.NilError(t, err)
		steps++
		total += r
		rewards[steps] = r
		if steps > 200 {
			t.Fatal("episode did not end")
		}
	}
	assert.Equal(t, 90, steps)
	assert.InDelta(t, -88.0, total, 1e-9)
	assert.InDelta(t, 0.0, rewards[1], 1e-9, "start checkpoint is captured on the first step")
	assert.InDelta(t, -1.0, rewards[2], 1e-9)
	assert.InDelta(t, 0.0, rewards[90], 1e-9)
	assert.Equal(t, Completed, sim.Outcome())
	assert.Equal(t, 2, sim.CheckpointIndex())
	assert.InDelta(t, 90.0, sim.Odometer(), 1e-9)
	assert.InDelta(t, 1.0, sim.Progress(), 1e-9)

	_, done, err = sim.Step(vehicle.Forward)
	assert.ErrorIs(t, err, ErrEpisodeOver)
	assert.True(t, done)
}

func TestSimulation_WallAhead(t *testing.T) {
	sim, err := New(tracks.WallAhead())
	gta.NilError(t, err)

	r, done, err := sim.Step(vehicle.Forward)
	gta.NilError(t, err)
	assert.Equal(t, -1.0, r)
	assert.True(t, done)
	assert.Equal(t, Collided, sim.Outcome())
	assert.Equal(t, 0.0, sim.State()[3])
	assert.True(t, sim.IsCollision(sim.State()))
}

func TestSimulation_PivotDoesNotMove(t *testing.T) {
	sim, err := New(tracks.Corridor())
	gta.NilError(t, err)
	start := sim.Position()

	r, done, err := sim.Step(vehicle.PivotLeft)
	gta.NilError(t, err)
	assert.False(t, done)
	// the start checkpoint is under the vehicle
	assert.Equal(t, 0.0, r)
	assert.Equal(t, 1, sim.CheckpointIndex())
	assert.Equal(t, start, sim.Position())
	assert.Equal(t, 0.0, sim.Odometer())
	assert.Equal(t, 185.0, sim.Heading())
}

func TestSimulation_InvalidAction(t *testing.T) {
	sim, err := New(tracks.Corridor())
	gta.NilError(t, err)
	before := sim.Snapshot()

	_, _, err = sim.Step(vehicle.Action(vehicle.NumActions))
	assert.ErrorIs(t, err, vehicle.ErrInvalidAction)
	if diff := cmp.Diff(before, sim.Snapshot()); diff != "" {
		t.Errorf("state changed on invalid action (-before +after):\n%s", diff)
	}
}

func TestSimulation_ResetIsRepeatable(t *testing.T) {
	sim, err := New(tracks.Corridor())
	gta.NilError(t, err)
	initial := sim.Snapshot()

	for round := range 3 {
		for range 20 + round*7 {
			_, done, err := sim.Step(vehicle.Left)
			gta.NilError(t, err)
			if done {
				break
			}
		}
		sim.Reset()
		if diff := cmp.Diff(initial, sim.Snapshot()); diff != "" {
			t.Errorf("round %d: reset mismatch (-want +got):\n%s", round, diff)
		}
	}
}

func TestSimulation_StateIsCopy(t *testing.T) {
	sim, err := New(tracks.Corridor())
	gta.NilError(t, err)
	s := sim.State()
	s[0] = 42
	assert.NotEqual(t, 42.0, sim.State()[0])
	assert.Equal(t, 7, sim.StateDim())
}

func TestSimulation_IsCollision(t *testing.T) {
	sim, err := New(tracks.Corridor())
	gta.NilError(t, err)
	tests := []struct {
		name    string
		reading sensor.Reading
		want    bool
	}{
		{"clear", sensor.Reading{1, 0.5, 0.2}, false},
		{"at threshold", sensor.Reading{1, 0.05}, false},
		{"below threshold", sensor.Reading{1, 0.04}, true},
		{"touching", sensor.Reading{0}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sim.IsCollision(tt.reading))
		})
	}
}

func TestNew_Errors(t *testing.T) {
	geo, err := track.NewGeometry([]track.WallSegment{track.Wall(0, 0, 0, 10)})
	gta.NilError(t, err)
	_, err = New(geo)
	assert.Error(t, err)

	cfg := DefaultConfig()
	cfg.Sensor.MaxRange = 1
	_, err = New(tracks.Corridor(), WithConfig(cfg))
	assert.ErrorIs(t, err, sensor.ErrInvalidConfig)
}
