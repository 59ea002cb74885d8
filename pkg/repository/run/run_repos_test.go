//nolint:funlen,errcheck //ok for this test code
package run_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/google/go-cmp/cmp"
	"github.com/jackc/pgx/v5"
	"gotest.tools/v3/assert"

	"github.com/mpapenbr/selfdriving-car-go/pkg/model"
	"github.com/mpapenbr/selfdriving-car-go/pkg/repository/run"
	"github.com/mpapenbr/selfdriving-car-go/testsupport/basedata"
	"github.com/mpapenbr/selfdriving-car-go/testsupport/testdb"
)

func TestCreateRun(t *testing.T) {
	pool := testdb.InitTestDb()
	basedata.CreateSampleRun(pool)
	tests := []struct {
		name    string
		run     *model.DbRun
		wantErr bool
	}{
		{name: "generated id", run: &model.DbRun{Track: "corridor"}},
		{name: "duplicate", run: basedata.SampleRun(), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := run.CreateRun(context.Background(), pool, tt.run)
			if tt.wantErr {
				assert.Assert(t, err != nil)
				return
			}
			assert.NilError(t, err)
			assert.Assert(t, !tt.run.ID.IsNil())
			assert.Assert(t, !tt.run.StartedAt.IsZero())
		})
	}
}

func TestLoadRun(t *testing.T) {
	pool := testdb.InitTestDb()
	basedata.CreateSampleRun(pool)

	got, err := run.LoadRun(context.Background(), pool, basedata.SampleRunID)
	assert.NilError(t, err)
	want := basedata.SampleRun()
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.Track, got.Track)
	assert.Assert(t, want.StartedAt.Equal(got.StartedAt))
	assert.DeepEqual(t, want.Config, got.Config)

	_, err = run.LoadRun(context.Background(), pool, uuid.Must(uuid.NewV7()))
	assert.Assert(t, errors.Is(err, pgx.ErrNoRows))
}

func TestAddAndLoadEpisodes(t *testing.T) {
	pool := testdb.InitTestDb()
	basedata.CreateSampleRun(pool)
	ctx := context.Background()

	for _, n := range []int{2, 1, 3} {
		assert.NilError(t, run.AddEpisode(ctx, pool, basedata.SampleEpisode(n)))
	}
	// replacing an episode keeps a single row
	replaced := basedata.SampleEpisode(2)
	replaced.Outcome = "completed"
	replaced.Collided = false
	replaced.Completed = true
	assert.NilError(t, run.AddEpisode(ctx, pool, replaced))

	got, err := run.LoadEpisodes(ctx, pool, basedata.SampleRunID)
	assert.NilError(t, err)
	want := []*model.DbEpisode{basedata.SampleEpisode(1), replaced, basedata.SampleEpisode(3)}
	if diff := cmp.Diff(want, got, cmp.Comparer(func(a, b time.Time) bool {
		return a.Equal(b)
	})); diff != "" {
		t.Errorf("run.LoadEpisodes() mismatch (-want +got):\n%s", diff)
	}

	err = run.AddEpisode(ctx, pool, &model.DbEpisode{RunID: uuid.Must(uuid.NewV7()), Episode: 1})
	assert.Assert(t, err != nil, "episode without run must be rejected")
}

func TestDeleteRun(t *testing.T) {
	pool := testdb.InitTestDb()
	basedata.CreateSampleRun(pool)
	ctx := context.Background()
	assert.NilError(t, run.AddEpisode(ctx, pool, basedata.SampleEpisode(1)))

	tests := []struct {
		name string
		id   uuid.UUID
		want int
	}{
		{name: "existing", id: basedata.SampleRunID, want: 1},
		{name: "unknown", id: uuid.Must(uuid.NewV7()), want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := run.DeleteRun(ctx, pool, tt.id)
			assert.NilError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
	episodes, err := run.LoadEpisodes(ctx, pool, basedata.SampleRunID)
	assert.NilError(t, err)
	assert.Equal(t, 0, len(episodes))
}
