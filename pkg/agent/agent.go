// Package agent implements an epsilon greedy Double-DQN policy.
package agent

import (
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"

	"github.com/mpapenbr/selfdriving-car-go/log"
	"github.com/mpapenbr/selfdriving-car-go/pkg/replay"
)

var ErrShapeMismatch = errors.New("shape mismatch")

// QNetwork approximates action values for a batch of states.
type QNetwork interface {
	// Predict returns one row of action values per state.
	Predict(states [][]float64) ([][]float64, error)
	// Fit trains one round on states/targets and returns the loss.
	Fit(states, targets [][]float64) (float64, error)
	// CopyFrom replaces all parameters with those of src.
	CopyFrom(src QNetwork) error
	Save(w io.Writer) error
	Load(r io.Reader) error
}

type Config struct {
	StateDim     int
	NumActions   int
	Gamma        float64
	Epsilon      float64
	EpsilonMin   float64
	EpsilonDecay float64
	BatchSize    int
	MemorySize   int
	Seed         uint64
}

func DefaultConfig() Config {
	return Config{
		StateDim:     7,
		NumActions:   7,
		Gamma:        0.99,
		Epsilon:      1.0,
		EpsilonMin:   0.10,
		EpsilonDecay: 0.9997,
		BatchSize:    512,
		MemorySize:   25000,
		Seed:         1,
	}
}

// Agent owns the evaluation and target networks and the replay memory.
// It is not safe for concurrent use.
type Agent struct {
	cfg     Config
	eval    QNetwork
	target  QNetwork
	memory  *replay.Buffer
	rng     *rand.Rand
	epsilon float64
	log     *log.Logger
}

type Option func(*Agent)

func WithConfig(cfg Config) Option {
	return func(a *Agent) {
		a.cfg = cfg
	}
}

func WithLogger(l *log.Logger) Option {
	return func(a *Agent) {
		a.log = l
	}
}

// WithRand replaces the random source used for exploration and sampling.
func WithRand(rng *rand.Rand) Option {
	return func(a *Agent) {
		a.rng = rng
	}
}

func New(eval, target QNetwork, opts ...Option) (*Agent, error) {
	a := &Agent{
		cfg:    DefaultConfig(),
		eval:   eval,
		target: target,
		log:    log.Default().Named("agent"),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.rng == nil {
		a.rng = rand.New(rand.NewPCG(a.cfg.Seed, a.cfg.Seed^0x5dc))
	}
	var err error
	if a.memory, err = replay.NewBuffer(a.cfg.MemorySize, a.cfg.StateDim); err != nil {
		return nil, err
	}
	a.epsilon = a.cfg.Epsilon
	if err := a.target.CopyFrom(a.eval); err != nil {
		return nil, err
	}
	return a, nil
}

// SelectAction picks a random action with probability epsilon, the best
// action of the evaluation network otherwise.
func (a *Agent) SelectAction(state []float64) (int, error) {
	if a.rng.Float64() < a.epsilon {
		return a.rng.IntN(a.cfg.NumActions), nil
	}
	q, err := a.eval.Predict([][]float64{state})
	if err != nil {
		return 0, err
	}
	if len(q) != 1 || len(q[0]) != a.cfg.NumActions {
		return 0, fmt.Errorf("%w: prediction for %d actions", ErrShapeMismatch, a.cfg.NumActions)
	}
	return argmax(q[0]), nil
}

// Remember stores a transition in the replay memory.
func (a *Agent) Remember(t replay.Transition) error {
	return a.memory.Store(t)
}

// Learn samples a batch and trains the evaluation network. Nothing happens
// until the memory holds at least one batch.
func (a *Agent) Learn() (bool, error) {
	if a.memory.Counter() < a.cfg.BatchSize {
		return false, nil
	}
	batch, err := a.memory.Sample(a.cfg.BatchSize, a.rng)
	if err != nil {
		return false, err
	}
	if _, err := a.TrainStep(batch); err != nil {
		return false, err
	}
	return true, nil
}

// TrainStep performs one Double-DQN update on batch and returns the loss.
func (a *Agent) TrainStep(batch *replay.Batch) (float64, error) {
	qPred, err := a.eval.Predict(batch.States)
	if err != nil {
		return 0, err
	}
	qNextEval, err := a.eval.Predict(batch.NextStates)
	if err != nil {
		return 0, err
	}
	qNextTarget, err := a.target.Predict(batch.NextStates)
	if err != nil {
		return 0, err
	}
	targets, err := DoubleDQNTargets(qPred, qNextEval, qNextTarget, batch, a.cfg.Gamma)
	if err != nil {
		return 0, err
	}
	return a.eval.Fit(batch.States, targets)
}

// SyncTarget copies the evaluation network into the target network.
func (a *Agent) SyncTarget() error {
	a.log.Debug("syncing target network")
	return a.target.CopyFrom(a.eval)
}

// EndEpisode decays epsilon towards its floor.
func (a *Agent) EndEpisode() {
	a.epsilon = max(a.epsilon*a.cfg.EpsilonDecay, a.cfg.EpsilonMin)
}

func (a *Agent) Epsilon() float64 { return a.epsilon }

func (a *Agent) SetEpsilon(eps float64) { a.epsilon = eps }

func (a *Agent) Memory() *replay.Buffer { return a.memory }

func (a *Agent) Config() Config { return a.cfg }

// SaveModel writes the evaluation network to path.
// The file is written to a temporary name first and renamed afterwards.
func (a *Agent) SaveModel(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	err = a.eval.Save(f)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Rename(tmp, path)
	}
	if err != nil {
		//nolint:errcheck // already failing
		os.Remove(tmp)
		return fmt.Errorf("save model %s: %w", path, err)
	}
	a.log.Info("model saved", log.String("file", path))
	return nil
}

// LoadModel reads the evaluation network from path. With epsilon at 0 the
// target network is synced right away since no training will follow.
func (a *Agent) LoadModel(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	//nolint:errcheck // read only
	defer f.Close()
	if err := a.eval.Load(f); err != nil {
		return fmt.Errorf("load model %s: %w", path, err)
	}
	a.log.Info("model loaded", log.String("file", path))
	if a.epsilon == 0 {
		return a.SyncTarget()
	}
	return nil
}

// DoubleDQNTargets computes the training targets for a batch.
// For every sample the slot of the taken action is replaced by
//
//	r + gamma * qNextTarget[argmax(qNextEval)] * (1 - terminal)
//
// all other slots keep the value of qPred. qPred is not modified.
func DoubleDQNTargets(qPred, qNextEval, qNextTarget [][]float64, batch *replay.Batch, gamma float64) (
	[][]float64, error,
) {
	n := batch.Len()
	if len(qPred) != n || len(qNextEval) != n || len(qNextTarget) != n ||
		len(batch.Rewards) != n || len(batch.Terminals) != n {
		return nil, fmt.Errorf("%w: batch of %d", ErrShapeMismatch, n)
	}
	ret := make([][]float64, n)
	for i := range n {
		row := make([]float64, len(qPred[i]))
		copy(row, qPred[i])
		act := batch.Actions[i]
		if act < 0 || act >= len(row) || len(qNextEval[i]) != len(row) || len(qNextTarget[i]) != len(row) {
			return nil, fmt.Errorf("%w: sample %d", ErrShapeMismatch, i)
		}
		best := argmax(qNextEval[i])
		future := gamma * qNextTarget[i][best]
		if batch.Terminals[i] {
			future = 0
		}
		row[act] = batch.Rewards[i] + future
		ret[i] = row
	}
	return ret, nil
}

// argmax returns the first index of the largest value.
func argmax(v []float64) int {
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}
