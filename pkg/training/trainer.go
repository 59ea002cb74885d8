// Package training runs episodes of a policy against a simulation.
package training

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mpapenbr/selfdriving-car-go/log"
	"github.com/mpapenbr/selfdriving-car-go/pkg/replay"
	"github.com/mpapenbr/selfdriving-car-go/pkg/simulation"
	"github.com/mpapenbr/selfdriving-car-go/pkg/vehicle"
)

// Environment is the part of the simulation the trainer drives.
type Environment interface {
	Reset()
	Step(a vehicle.Action) (reward float64, done bool, err error)
	State() []float64
	Snapshot() simulation.Snapshot
	Progress() float64
}

// Policy is the learning agent.
type Policy interface {
	SelectAction(state []float64) (int, error)
	Remember(t replay.Transition) error
	Learn() (bool, error)
	EndEpisode()
	SyncTarget() error
	Epsilon() float64
	SetEpsilon(eps float64)
	SaveModel(path string) error
	LoadModel(path string) error
}

// Sink receives a summary after every episode.
type Sink interface {
	Publish(ctx context.Context, s *EpisodeSummary) error
}

type Config struct {
	// Episodes limits the number of episodes, 0 runs until cancelled.
	Episodes int
	// MaxSteps truncates an episode. A truncated episode is not terminal.
	MaxSteps int
	// ReplaceTarget is the target network sync cadence in episodes.
	ReplaceTarget int
	// RecordEvery is the cadence in episodes a new record is checked.
	RecordEvery int
	// ModelFile is used for saving records and reloading. Empty disables both.
	ModelFile string
	Training  bool
	// LongMemory adds one learning round at the end of each episode.
	LongMemory bool
}

func DefaultConfig() Config {
	return Config{
		MaxSteps:      5000,
		ReplaceTarget: 25,
		RecordEvery:   5,
		ModelFile:     "model/model.bin",
		Training:      true,
		LongMemory:    true,
	}
}

// Outcome values of an EpisodeSummary.
const (
	OutcomeCollided  = "collided"
	OutcomeCompleted = "completed"
	OutcomeTruncated = "truncated"
	OutcomeCancelled = "cancelled"
)

type EpisodeSummary struct {
	RunID       string
	Track       string
	Episode     int
	Steps       int
	Return      float64
	Checkpoints int
	Progress    float64
	Outcome     string
	Epsilon     float64
	Distance    float64
	Training    bool
	Record      float64
	MeanReturn  float64
	Duration    time.Duration
	FinishedAt  time.Time
}

// Trainer is driven by a single goroutine. The request methods may be
// called from any goroutine, the requests are honoured between episodes.
type Trainer struct {
	cfg         Config
	env         Environment
	policy      Policy
	sinks       []Sink
	log         *log.Logger
	tracer      trace.Tracer
	runID       string
	trackName   string
	episode     int
	record      float64
	hasRecord   bool
	totalReturn float64
	trainEps    float64 // epsilon kept while evaluating
	training    bool
	switchReq   atomic.Bool
	reloadReq   atomic.Bool
	debug       atomic.Bool
}

type Option func(*Trainer)

func WithConfig(cfg Config) Option {
	return func(t *Trainer) {
		t.cfg = cfg
	}
}

func WithLogger(l *log.Logger) Option {
	return func(t *Trainer) {
		t.log = l
	}
}

func WithSinks(sinks ...Sink) Option {
	return func(t *Trainer) {
		t.sinks = append(t.sinks, sinks...)
	}
}

func WithRunID(id string) Option {
	return func(t *Trainer) {
		t.runID = id
	}
}

func WithTrackName(name string) Option {
	return func(t *Trainer) {
		t.trackName = name
	}
}

func WithDebug(debug bool) Option {
	return func(t *Trainer) {
		t.debug.Store(debug)
	}
}

// New creates a trainer. When starting in evaluation mode the epsilon of
// policy is set to 0, its former value is used after switching to training.
func New(env Environment, policy Policy, opts ...Option) *Trainer {
	t := &Trainer{
		cfg:    DefaultConfig(),
		env:    env,
		policy: policy,
		log:    log.Default().Named("train"),
		tracer: otel.Tracer("sdc.training"),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.training = t.cfg.Training
	t.trainEps = policy.Epsilon()
	if !t.training {
		policy.SetEpsilon(0)
	}
	return t
}

// RequestModeSwitch toggles between training and evaluation before the next episode.
func (t *Trainer) RequestModeSwitch() { t.switchReq.Store(true) }

// RequestReload reloads the model file before the next episode.
func (t *Trainer) RequestReload() { t.reloadReq.Store(true) }

// ToggleDebug switches per step debug output.
func (t *Trainer) ToggleDebug() bool {
	for {
		cur := t.debug.Load()
		if t.debug.CompareAndSwap(cur, !cur) {
			return !cur
		}
	}
}

func (t *Trainer) Training() bool { return t.training }

func (t *Trainer) Episode() int { return t.episode }

// Record returns the best return seen on a record check.
func (t *Trainer) Record() (float64, bool) { return t.record, t.hasRecord }

// Run plays episodes until the configured number is reached or ctx is done.
// Cancellation is not reported as error.
func (t *Trainer) Run(ctx context.Context) error {
	t.log.Info("starting",
		log.String("track", t.trackName),
		log.Bool("training", t.training),
		log.Int("episodes", t.cfg.Episodes),
		log.Float64("epsilon", t.policy.Epsilon()))
	for t.cfg.Episodes == 0 || t.episode < t.cfg.Episodes {
		if ctx.Err() != nil {
			break
		}
		t.handleRequests()
		if _, err := t.RunEpisode(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				break
			}
			return err
		}
	}
	t.log.Info("finished", log.Int("episodes", t.episode))
	return nil
}

// RunEpisode plays a single episode and publishes its summary.
//
//nolint:funlen // one loop
func (t *Trainer) RunEpisode(ctx context.Context) (*EpisodeSummary, error) {
	t.episode++
	ep := t.episode
	ctx, span := t.tracer.Start(ctx, "episode",
		trace.WithAttributes(attribute.Int("episode", ep), attribute.Bool("training", t.training)))
	defer span.End()

	start := time.Now()
	t.env.Reset()
	state := t.env.State()
	var (
		ret     float64
		done    bool
		outcome = OutcomeTruncated
	)
	steps := 0
	for ; steps < t.cfg.MaxSteps && !done; steps++ {
		if ctx.Err() != nil {
			outcome = OutcomeCancelled
			break
		}
		act, err := t.policy.SelectAction(state)
		if err != nil {
			return t.fail(span, err)
		}
		var reward float64
		reward, done, err = t.env.Step(vehicle.Action(act))
		if err != nil {
			return t.fail(span, err)
		}
		next := t.env.State()
		if err := t.policy.Remember(replay.Transition{
			State: state, Action: act, Reward: reward, NextState: next, Terminal: done,
		}); err != nil {
			return t.fail(span, err)
		}
		if t.training {
			if _, err := t.policy.Learn(); err != nil {
				return t.fail(span, err)
			}
		}
		if t.debug.Load() {
			// requested output, independent of the configured log level
			t.log.Info("step",
				log.Int("episode", ep),
				log.Int("step", steps+1),
				log.Stringer("action", vehicle.Action(act)),
				log.Float64("reward", reward),
				log.Float64s("state", next))
		}
		ret += reward
		state = next
	}
	snap := t.env.Snapshot()
	switch snap.Outcome {
	case simulation.Collided:
		outcome = OutcomeCollided
	case simulation.Completed:
		outcome = OutcomeCompleted
	case simulation.Running:
	}

	if outcome != OutcomeCancelled {
		if err := t.finishEpisode(ep, ret); err != nil {
			return t.fail(span, err)
		}
	}
	t.totalReturn += ret

	summary := &EpisodeSummary{
		RunID:       t.runID,
		Track:       t.trackName,
		Episode:     ep,
		Steps:       steps,
		Return:      ret,
		Checkpoints: snap.CheckpointIndex,
		Progress:    t.env.Progress(),
		Outcome:     outcome,
		Epsilon:     t.policy.Epsilon(),
		Distance:    snap.Odometer,
		Training:    t.training,
		Record:      t.record,
		MeanReturn:  t.totalReturn / float64(ep),
		Duration:    time.Since(start),
		FinishedAt:  time.Now(),
	}
	span.SetAttributes(
		attribute.Int("steps", steps),
		attribute.Float64("return", ret),
		attribute.String("outcome", outcome))
	t.publish(ctx, summary)
	if outcome == OutcomeCancelled {
		return summary, context.Canceled
	}
	return summary, nil
}

func (t *Trainer) finishEpisode(ep int, ret float64) error {
	if t.training {
		if t.cfg.LongMemory {
			if _, err := t.policy.Learn(); err != nil {
				return err
			}
		}
		t.policy.EndEpisode()
	}
	if t.cfg.ReplaceTarget > 0 && ep%t.cfg.ReplaceTarget == 0 && ep > t.cfg.ReplaceTarget {
		if err := t.policy.SyncTarget(); err != nil {
			return err
		}
	}
	if t.training && t.cfg.RecordEvery > 0 && ep%t.cfg.RecordEvery == 0 &&
		(!t.hasRecord || ret > t.record) {
		t.record = ret
		t.hasRecord = true
		t.log.Info("new record", log.Int("episode", ep), log.Float64("return", ret))
		if t.cfg.ModelFile != "" {
			if err := t.policy.SaveModel(t.cfg.ModelFile); err != nil {
				return err
			}
		}
	}
	return nil
}

func (t *Trainer) handleRequests() {
	if t.switchReq.Swap(false) {
		t.switchMode()
	}
	if t.reloadReq.Swap(false) && t.cfg.ModelFile != "" {
		if err := t.policy.LoadModel(t.cfg.ModelFile); err != nil {
			t.log.Error("reloading model", log.ErrorField(err))
		}
	}
}

// switchMode saves the model, toggles the mode and resets the record.
// Evaluation runs greedy, the training epsilon is restored on the way back.
func (t *Trainer) switchMode() {
	if t.cfg.ModelFile != "" {
		if err := t.policy.SaveModel(t.cfg.ModelFile); err != nil {
			t.log.Error("saving model on mode switch", log.ErrorField(err))
		}
	}
	t.training = !t.training
	t.record, t.hasRecord = 0, false
	if t.training {
		t.policy.SetEpsilon(t.trainEps)
	} else {
		t.trainEps = t.policy.Epsilon()
		t.policy.SetEpsilon(0)
	}
	t.log.Info("mode switched", log.Bool("training", t.training), log.Float64("epsilon", t.policy.Epsilon()))
}

func (t *Trainer) publish(ctx context.Context, s *EpisodeSummary) {
	for _, sink := range t.sinks {
		if err := sink.Publish(ctx, s); err != nil {
			t.log.Warn("publishing episode summary", log.Int("episode", s.Episode), log.ErrorField(err))
		}
	}
}

func (t *Trainer) fail(span trace.Span, err error) (*EpisodeSummary, error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return nil, err
}
