//nolint:funlen // tables
package training

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	gta "gotest.tools/v3/assert"

	"github.com/mpapenbr/selfdriving-car-go/log"
	"github.com/mpapenbr/selfdriving-car-go/pkg/replay"
	"github.com/mpapenbr/selfdriving-car-go/pkg/simulation"
	"github.com/mpapenbr/selfdriving-car-go/pkg/vehicle"
	"github.com/mpapenbr/selfdriving-car-go/testsupport/tracks"
)

// scriptedPolicy always drives straight ahead and counts calls.
type scriptedPolicy struct {
	action      vehicle.Action
	epsilon     float64
	transitions []replay.Transition
	learns      int
	episodes    int
	syncs       int
	saves       int
	loads       int
}

func (p *scriptedPolicy) SelectAction([]float64) (int, error) { return int(p.action), nil }

func (p *scriptedPolicy) Remember(t replay.Transition) error {
	p.transitions = append(p.transitions, t)
	return nil
}

func (p *scriptedPolicy) Learn() (bool, error) {
	p.learns++
	return true, nil
}

func (p *scriptedPolicy) EndEpisode() { p.episodes++ }

func (p *scriptedPolicy) SyncTarget() error {
	p.syncs++
	return nil
}

func (p *scriptedPolicy) Epsilon() float64 { return p.epsilon }

func (p *scriptedPolicy) SetEpsilon(eps float64) { p.epsilon = eps }

func (p *scriptedPolicy) SaveModel(string) error {
	p.saves++
	return nil
}

func (p *scriptedPolicy) LoadModel(string) error {
	p.loads++
	return nil
}

type collectSink struct {
	summaries []*EpisodeSummary
	err       error
	onPublish func(*EpisodeSummary)
}

func (c *collectSink) Publish(_ context.Context, s *EpisodeSummary) error {
	c.summaries = append(c.summaries, s)
	if c.onPublish != nil {
		c.onPublish(s)
	}
	return c.err
}

func newCorridorTrainer(t *testing.T, cfg Config, p *scriptedPolicy, opts ...Option) *Trainer {
	t.Helper()
	sim, err := simulation.New(tracks.Corridor())
	gta.NilError(t, err)
	return New(sim, p, append([]Option{WithConfig(cfg)}, opts...)...)
}

func TestTrainer_RunEpisode(t *testing.T) {
	tests := []struct {
		name         string
		action       vehicle.Action
		maxSteps     int
		training     bool
		wantSteps    int
		wantReturn   float64
		wantOutcome  string
		wantLearns   int
		wantTerminal bool
	}{
		{
			name: "completes lap", action: vehicle.Forward, maxSteps: 1000, training: true,
			wantSteps: 90, wantReturn: -88, wantOutcome: OutcomeCompleted,
			wantLearns: 91, wantTerminal: true,
		},
		{
			name: "truncated", action: vehicle.Forward, maxSteps: 10, training: true,
			wantSteps: 10, wantReturn: -9, wantOutcome: OutcomeTruncated,
			wantLearns: 11, wantTerminal: false,
		},
		{
			name: "evaluation does not learn", action: vehicle.Forward, maxSteps: 1000, training: false,
			wantSteps: 90, wantReturn: -88, wantOutcome: OutcomeCompleted,
			wantLearns: 0, wantTerminal: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.MaxSteps = tt.maxSteps
			cfg.Training = tt.training
			cfg.ModelFile = ""
			p := &scriptedPolicy{action: tt.action}
			sink := &collectSink{}
			tr := newCorridorTrainer(t, cfg, p, WithSinks(sink), WithRunID("run-1"), WithTrackName("corridor"))

			got, err := tr.RunEpisode(context.Background())
			gta.NilError(t, err)
			assert.Equal(t, tt.wantSteps, got.Steps)
			assert.InDelta(t, tt.wantReturn, got.Return, 1e-9)
			assert.Equal(t, tt.wantOutcome, got.Outcome)
			assert.Equal(t, tt.wantLearns, p.learns)
			assert.Len(t, p.transitions, tt.wantSteps)
			assert.Equal(t, tt.wantTerminal, p.transitions[len(p.transitions)-1].Terminal)
			assert.Equal(t, "run-1", got.RunID)
			assert.Equal(t, "corridor", got.Track)
			assert.Equal(t, 1, got.Episode)
			assert.Equal(t, tt.training, got.Training)
			assert.Len(t, sink.summaries, 1)
		})
	}
}

func TestTrainer_Collision(t *testing.T) {
	sim, err := simulation.New(tracks.WallAhead())
	gta.NilError(t, err)
	p := &scriptedPolicy{action: vehicle.Forward}
	tr := New(sim, p)
	got, err := tr.RunEpisode(context.Background())
	gta.NilError(t, err)
	assert.Equal(t, OutcomeCollided, got.Outcome)
	assert.Equal(t, 1, got.Steps)
	assert.Equal(t, -1.0, got.Return)
	assert.True(t, p.transitions[0].Terminal)
}

func TestTrainer_Cadence(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Episodes = 60
	cfg.MaxSteps = 3
	p := &scriptedPolicy{action: vehicle.Forward, epsilon: 1}
	tr := newCorridorTrainer(t, cfg, p)

	gta.NilError(t, tr.Run(context.Background()))
	assert.Equal(t, 60, tr.Episode())
	assert.Equal(t, 60, p.episodes)
	assert.Equal(t, 1, p.syncs, "target syncs on episode 50 only")
	// every episode has the same return, only the first check is a record
	assert.Equal(t, 1, p.saves)
	rec, ok := tr.Record()
	assert.True(t, ok)
	assert.InDelta(t, -2.0, rec, 1e-9)
}

func TestTrainer_ModeSwitch(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Episodes = 1
	cfg.MaxSteps = 5
	p := &scriptedPolicy{action: vehicle.Forward, epsilon: 0.4}
	tr := newCorridorTrainer(t, cfg, p)

	tr.RequestModeSwitch()
	gta.NilError(t, tr.Run(context.Background()))
	assert.False(t, tr.Training())
	assert.Equal(t, 0.0, p.epsilon)
	assert.Equal(t, 1, p.saves)
	assert.Equal(t, 0, p.learns)

	cfg.Episodes = 2
	tr.cfg = cfg
	tr.RequestModeSwitch()
	gta.NilError(t, tr.Run(context.Background()))
	assert.True(t, tr.Training())
	assert.Equal(t, 0.4, p.epsilon)
	assert.Equal(t, 2, p.saves)
}

func TestTrainer_StartInEvaluation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Training = false
	cfg.Episodes = 1
	cfg.MaxSteps = 2
	p := &scriptedPolicy{action: vehicle.Forward, epsilon: 0.1}
	tr := newCorridorTrainer(t, cfg, p)
	assert.Equal(t, 0.0, p.epsilon)

	tr.RequestModeSwitch()
	gta.NilError(t, tr.Run(context.Background()))
	assert.True(t, tr.Training())
	assert.Equal(t, 0.1, p.epsilon)
}

func TestTrainer_Reload(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Episodes = 1
	cfg.MaxSteps = 1
	p := &scriptedPolicy{action: vehicle.Forward}
	tr := newCorridorTrainer(t, cfg, p)
	tr.RequestReload()
	gta.NilError(t, tr.Run(context.Background()))
	assert.Equal(t, 1, p.loads)
}

func TestTrainer_Cancel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxSteps = 5
	p := &scriptedPolicy{action: vehicle.Forward}
	ctx, cancel := context.WithCancel(context.Background())
	sink := &collectSink{
		err: errors.New("sink failures are not fatal"),
		onPublish: func(s *EpisodeSummary) {
			if s.Episode == 3 {
				cancel()
			}
		},
	}
	tr := newCorridorTrainer(t, cfg, p, WithSinks(sink))
	gta.NilError(t, tr.Run(ctx))
	assert.Equal(t, 3, tr.Episode())
	assert.Len(t, sink.summaries, 3)

	_, err := tr.RunEpisode(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, OutcomeCancelled, sink.summaries[3].Outcome)
	assert.Equal(t, 0, sink.summaries[3].Steps)
}

func TestTrainer_InvalidAction(t *testing.T) {
	p := &scriptedPolicy{action: vehicle.Action(99)}
	tr := newCorridorTrainer(t, DefaultConfig(), p)
	assert.ErrorIs(t, tr.Run(context.Background()), vehicle.ErrInvalidAction)
}

func TestTrainer_ToggleDebug(t *testing.T) {
	tr := newCorridorTrainer(t, DefaultConfig(), &scriptedPolicy{})
	assert.True(t, tr.ToggleDebug())
	assert.False(t, tr.ToggleDebug())
}

func TestTrainer_DebugStepOutput(t *testing.T) {
	tests := []struct {
		name      string
		debug     bool
		wantLines int
	}{
		{name: "debug on", debug: true, wantLines: 3},
		{name: "debug off", debug: false, wantLines: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			cfg := DefaultConfig()
			cfg.MaxSteps = 3
			cfg.ModelFile = ""
			tr := newCorridorTrainer(t, cfg, &scriptedPolicy{action: vehicle.Forward},
				WithLogger(log.New(&buf, log.InfoLevel)), WithDebug(tt.debug))

			_, err := tr.RunEpisode(context.Background())
			gta.NilError(t, err)
			assert.Equal(t, tt.wantLines, strings.Count(buf.String(), `"msg":"step"`))
		})
	}
}
