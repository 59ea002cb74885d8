package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// RunConfig is stored as jsonb with the training run
type RunConfig struct {
	Episodes      int     `json:"episodes"`
	MaxSteps      int     `json:"maxSteps"`
	ReplaceTarget int     `json:"replaceTarget"`
	RecordEvery   int     `json:"recordEvery"`
	BatchSize     int     `json:"batchSize"`
	MemorySize    int     `json:"memorySize"`
	Hidden        int     `json:"hidden"`
	LearningRate  float64 `json:"learningRate"`
	Gamma         float64 `json:"gamma"`
	Epsilon       float64 `json:"epsilon"`
	EpsilonMin    float64 `json:"epsilonMin"`
	EpsilonDecay  float64 `json:"epsilonDecay"`
	StepPenalty   float64 `json:"stepPenalty"`
	Seed          uint64  `json:"seed"`
	Training      bool    `json:"training"`
	ModelFile     string  `json:"modelFile,omitempty"`
}

type DbRun struct {
	ID        uuid.UUID
	Track     string
	StartedAt time.Time
	Config    RunConfig
}

type DbEpisode struct {
	RunID       uuid.UUID
	Episode     int
	Steps       int
	TotalReward float64
	Checkpoints int
	Progress    float64
	Outcome     string
	Collided    bool
	Completed   bool
	Epsilon     float64
	Distance    float64
	Training    bool
	FinishedAt  time.Time
}
