package basedata

import (
	"context"
	"log"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mpapenbr/selfdriving-car-go/pkg/model"
	runrepos "github.com/mpapenbr/selfdriving-car-go/pkg/repository/run"
)

var SampleRunID = uuid.Must(uuid.FromString("0190d6a2-5e8c-7000-8000-000000000001"))

func TestTime() time.Time {
	t, _ := time.Parse(time.RFC3339, "2024-07-01T12:00:00Z")
	return t
}

func SampleRun() *model.DbRun {
	return &model.DbRun{
		ID:        SampleRunID,
		Track:     "square",
		StartedAt: TestTime(),
		Config: model.RunConfig{
			Episodes: 100, MaxSteps: 5000, ReplaceTarget: 25, RecordEvery: 5,
			BatchSize: 512, MemorySize: 25000, Hidden: 256, LearningRate: 0.001,
			Gamma: 0.99, Epsilon: 1, EpsilonMin: 0.1, EpsilonDecay: 0.9997,
			StepPenalty: 1, Seed: 1, Training: true,
		},
	}
}

// SampleEpisode returns a collided episode n of the sample run
func SampleEpisode(n int) *model.DbEpisode {
	return &model.DbEpisode{
		RunID: SampleRunID, Episode: n, Steps: 10 * n, TotalReward: -float64(n),
		Checkpoints: n, Progress: 0.5, Outcome: "collided", Collided: true,
		Epsilon: 0.9, Distance: 42.5, Training: true,
		FinishedAt: TestTime().Add(time.Duration(n) * time.Minute),
	}
}

func CreateSampleRun(db *pgxpool.Pool) *model.DbRun {
	ctx := context.Background()
	run := SampleRun()
	err := pgx.BeginFunc(ctx, db, func(tx pgx.Tx) error {
		return runrepos.CreateRun(ctx, tx, run)
	})
	if err != nil {
		log.Fatalf("CreateSampleRun: %v\n", err)
	}
	return run
}
