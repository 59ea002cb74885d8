//nolint:funlen // tables
package checkpoint

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mpapenbr/selfdriving-car-go/pkg/geom"
	"github.com/mpapenbr/selfdriving-car-go/testsupport/tracks"
)

func TestNewTrack(t *testing.T) {
	ring, err := NewTrack(tracks.SquareRing())
	assert.NoError(t, err)
	assert.Equal(t, 4, ring.Len())

	wantPos := []geom.Point{geom.Pt(18, 18), geom.Pt(18, 282), geom.Pt(282, 282), geom.Pt(282, 18)}
	for i, cp := range ring.Checkpoints() {
		assert.Equal(t, wantPos[i], cp.Position)
		assert.Equal(t, 10.0, cp.CaptureRadius)
	}
	assert.InDelta(t, 792.0, ring.Length(), 1e-9)

	cps := ring.Checkpoints()
	assert.Equal(t, 0.0, cps[0].DistanceToPrevious)
	assert.Equal(t, 0.0, cps[0].AccumulatedReward)
	for i := 1; i < len(cps); i++ {
		assert.InDelta(t, 264.0, cps[i].DistanceToPrevious, 1e-9)
		assert.InDelta(t, 1.0/3, cps[i].RewardValue, 1e-9)
		assert.GreaterOrEqual(t, cps[i].AccumulatedReward, cps[i-1].AccumulatedReward)
	}
	assert.InDelta(t, 1.0, cps[len(cps)-1].AccumulatedReward, 1e-9)
}

func TestFromPositions(t *testing.T) {
	tests := []struct {
		name      string
		positions []geom.Point
		wantErr   error
	}{
		{"single", []geom.Point{geom.Pt(0, 0)}, ErrTooFewCheckpoints},
		{"none", nil, ErrTooFewCheckpoints},
		{"same place", []geom.Point{geom.Pt(1, 1), geom.Pt(1, 1)}, ErrDegenerateTrack},
		{"uneven spacing", []geom.Point{geom.Pt(0, 0), geom.Pt(0, 1), geom.Pt(0, 4), geom.Pt(0, 100)}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromPositions(tt.positions)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
			last := got.At(got.Len() - 1)
			assert.InDelta(t, 1.0, last.AccumulatedReward, 1e-9)
			assert.InDelta(t, 0.01, got.At(1).RewardValue, 1e-9)
		})
	}
}

func TestTrack_Capture(t *testing.T) {
	cps, err := FromPositions([]geom.Point{geom.Pt(0, 0), geom.Pt(0, 5), geom.Pt(0, 12), geom.Pt(0, 100)})
	assert.NoError(t, err)
	type args struct {
		pos  geom.Point
		next int
	}
	tests := []struct {
		name string
		args args
		want int
	}{
		{"chain of three", args{geom.Pt(0, 3), 0}, 3},
		{"exactly on radius", args{geom.Pt(10, 0), 0}, 1},
		{"just outside", args{geom.Pt(10.001, 0), 0}, 0},
		{"no skipping", args{geom.Pt(0, 100), 0}, 0},
		{"last one", args{geom.Pt(0, 95), 3}, 4},
		{"already complete", args{geom.Pt(0, 0), 4}, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cps.Capture(tt.args.pos, tt.args.next))
		})
	}
	assert.True(t, cps.Complete(4))
	assert.False(t, cps.Complete(3))
}

func TestTrack_Progress(t *testing.T) {
	cps, err := FromPositions([]geom.Point{geom.Pt(0, 0), geom.Pt(0, 100), geom.Pt(0, 200)})
	assert.NoError(t, err)
	tests := []struct {
		name string
		pos  geom.Point
		next int
		want float64
	}{
		{"before start", geom.Pt(0, -50), 0, 0},
		{"quarter", geom.Pt(0, 50), 1, 0.25},
		{"behind previous", geom.Pt(0, -200), 1, 0},
		{"three quarters", geom.Pt(0, 150), 2, 0.75},
		{"done", geom.Pt(0, 0), 3, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, cps.Progress(tt.pos, tt.next), 1e-9)
		})
	}
}

func TestPartialReward(t *testing.T) {
	cp := Checkpoint{DistanceToPrevious: 0, RewardValue: 1}
	assert.Equal(t, 0.0, cp.PartialReward(5))
}
