package sink

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/mpapenbr/selfdriving-car-go/pkg/model"
	"github.com/mpapenbr/selfdriving-car-go/pkg/repository"
	runrepos "github.com/mpapenbr/selfdriving-car-go/pkg/repository/run"
	"github.com/mpapenbr/selfdriving-car-go/pkg/training"
)

// Store persists summaries as episodes of a training run.
// The run must exist, see runrepos.CreateRun.
type Store struct {
	conn  repository.Querier
	runID uuid.UUID
}

func NewStore(conn repository.Querier, runID uuid.UUID) *Store {
	return &Store{conn: conn, runID: runID}
}

func (s *Store) Publish(ctx context.Context, e *training.EpisodeSummary) error {
	return runrepos.AddEpisode(ctx, s.conn, ToDbEpisode(s.runID, e))
}

func ToDbEpisode(runID uuid.UUID, e *training.EpisodeSummary) *model.DbEpisode {
	return &model.DbEpisode{
		RunID:       runID,
		Episode:     e.Episode,
		Steps:       e.Steps,
		TotalReward: e.Return,
		Checkpoints: e.Checkpoints,
		Progress:    e.Progress,
		Outcome:     e.Outcome,
		Collided:    e.Outcome == training.OutcomeCollided,
		Completed:   e.Outcome == training.OutcomeCompleted,
		Epsilon:     e.Epsilon,
		Distance:    e.Distance,
		Training:    e.Training,
		FinishedAt:  e.FinishedAt,
	}
}
