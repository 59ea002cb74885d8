//nolint:whitespace // can't make both editor and linter happy
package run

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/mpapenbr/selfdriving-car-go/pkg/model"
	"github.com/mpapenbr/selfdriving-car-go/pkg/repository"
)

// CreateRun stores a new training run. A nil ID is replaced by a new V7 uuid,
// a zero StartedAt by the current time.
func CreateRun(ctx context.Context, conn repository.Querier, run *model.DbRun) error {
	if run.ID.IsNil() {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		run.ID = id
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	_, err := conn.Exec(ctx, `
	insert into training_run (id, track, started_at, config)
	values ($1,$2,$3,$4)
		`,
		run.ID, run.Track, run.StartedAt, run.Config,
	)
	return err
}

func LoadRun(ctx context.Context, conn repository.Querier, id uuid.UUID) (
	*model.DbRun, error,
) {
	row := conn.QueryRow(ctx, `
	select id, track, started_at, config from training_run where id=$1
	`, id)
	var item model.DbRun
	if err := row.Scan(&item.ID, &item.Track, &item.StartedAt, &item.Config); err != nil {
		return nil, err
	}
	return &item, nil
}

// AddEpisode stores the summary of one episode. An existing entry for the
// same run and episode number is replaced.
func AddEpisode(ctx context.Context, conn repository.Querier, e *model.DbEpisode) error {
	_, err := conn.Exec(ctx, `
	insert into episode (
		run_id, episode, steps, total_reward, checkpoints, progress, outcome,
		collided, completed, epsilon, distance, training, finished_at
	) values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	on conflict (run_id, episode) do update set
		steps=excluded.steps, total_reward=excluded.total_reward,
		checkpoints=excluded.checkpoints, progress=excluded.progress,
		outcome=excluded.outcome, collided=excluded.collided,
		completed=excluded.completed, epsilon=excluded.epsilon,
		distance=excluded.distance, training=excluded.training,
		finished_at=excluded.finished_at
		`,
		e.RunID, e.Episode, e.Steps, e.TotalReward, e.Checkpoints, e.Progress,
		e.Outcome, e.Collided, e.Completed, e.Epsilon, e.Distance, e.Training,
		e.FinishedAt,
	)
	return err
}

// LoadEpisodes returns the episodes of a run ordered by episode number
func LoadEpisodes(ctx context.Context, conn repository.Querier, runID uuid.UUID) (
	[]*model.DbEpisode, error,
) {
	rows, err := conn.Query(ctx, `
	select run_id, episode, steps, total_reward, checkpoints, progress, outcome,
		collided, completed, epsilon, distance, training, finished_at
	from episode where run_id=$1 order by episode asc
	`, runID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*model.DbEpisode, error) {
		var e model.DbEpisode
		err := row.Scan(
			&e.RunID, &e.Episode, &e.Steps, &e.TotalReward, &e.Checkpoints,
			&e.Progress, &e.Outcome, &e.Collided, &e.Completed, &e.Epsilon,
			&e.Distance, &e.Training, &e.FinishedAt,
		)
		return &e, err
	})
}

// DeleteRun removes the run and its episodes
func DeleteRun(ctx context.Context, conn repository.Querier, id uuid.UUID) (int, error) {
	cmdTag, err := conn.Exec(ctx, "delete from training_run where id=$1", id)
	if err != nil {
		return 0, err
	}
	return int(cmdTag.RowsAffected()), nil
}
