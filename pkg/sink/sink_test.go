//nolint:funlen // tables
package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	gta "gotest.tools/v3/assert"

	"github.com/mpapenbr/selfdriving-car-go/log"
	"github.com/mpapenbr/selfdriving-car-go/pkg/training"
)

func sampleSummary(episode int, outcome string) *training.EpisodeSummary {
	return &training.EpisodeSummary{
		RunID:       "run-1",
		Track:       "square",
		Episode:     episode,
		Steps:       42,
		Return:      -3.5,
		Checkpoints: 2,
		Progress:    0.25,
		Outcome:     outcome,
		Epsilon:     0.5,
		Distance:    84,
		Training:    true,
		Record:      -1,
		MeanReturn:  -4,
		Duration:    1500 * time.Millisecond,
		FinishedAt:  time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestLog_Publish(t *testing.T) {
	var buf bytes.Buffer
	s := NewLog(log.New(&buf, log.InfoLevel))
	gta.NilError(t, s.Publish(context.Background(), sampleSummary(7, training.OutcomeCollided)))

	var got map[string]any
	gta.NilError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "episode", got["msg"])
	assert.Equal(t, 7.0, got["episode"])
	assert.Equal(t, "collided", got["outcome"])
	assert.Equal(t, -3.5, got["return"])
}

type fakePublisher struct {
	subjects []string
	data     [][]byte
	err      error
}

func (f *fakePublisher) Publish(subj string, data []byte) error {
	f.subjects = append(f.subjects, subj)
	f.data = append(f.data, data)
	return f.err
}

func TestNats_Publish(t *testing.T) {
	tests := []struct {
		name        string
		prefix      string
		runID       string
		wantSubject string
	}{
		{name: "default prefix", prefix: "", runID: "run-1", wantSubject: "sdc.episode.run-1"},
		{name: "custom prefix", prefix: "train", runID: "abc", wantSubject: "train.abc"},
		{name: "no run id", prefix: "train", runID: "", wantSubject: "train"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &fakePublisher{}
			s := NewNats(pub, tt.prefix)
			e := sampleSummary(3, training.OutcomeCompleted)
			e.RunID = tt.runID
			gta.NilError(t, s.Publish(context.Background(), e))
			gta.Equal(t, len(pub.subjects), 1)
			assert.Equal(t, tt.wantSubject, pub.subjects[0])

			got, err := DecodeSummary(pub.data[0])
			gta.NilError(t, err)
			if diff := cmp.Diff(e, got); diff != "" {
				t.Errorf("DecodeSummary() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNats_PublishError(t *testing.T) {
	errDown := errors.New("connection closed")
	s := NewNats(&fakePublisher{err: errDown}, "")
	assert.ErrorIs(t, s.Publish(context.Background(), sampleSummary(1, "")), errDown)
}

func TestMetrics_Publish(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewMetrics(WithMeterProvider(provider))
	gta.NilError(t, err)

	ctx := context.Background()
	gta.NilError(t, m.Publish(ctx, sampleSummary(1, training.OutcomeCollided)))
	last := sampleSummary(2, training.OutcomeCollided)
	last.Epsilon = 0.25
	gta.NilError(t, m.Publish(ctx, last))

	var rm metricdata.ResourceMetrics
	gta.NilError(t, reader.Collect(ctx, &rm))
	gta.Equal(t, len(rm.ScopeMetrics), 1)
	byName := map[string]metricdata.Metrics{}
	for _, md := range rm.ScopeMetrics[0].Metrics {
		byName[md.Name] = md
	}

	episodes, ok := byName["sdc.episodes"].Data.(metricdata.Sum[int64])
	gta.Assert(t, ok)
	gta.Equal(t, len(episodes.DataPoints), 1)
	assert.Equal(t, int64(2), episodes.DataPoints[0].Value)

	steps, ok := byName["sdc.episode.steps"].Data.(metricdata.Histogram[int64])
	gta.Assert(t, ok)
	assert.Equal(t, uint64(2), steps.DataPoints[0].Count)
	assert.Equal(t, int64(84), steps.DataPoints[0].Sum)

	returns, ok := byName["sdc.episode.return"].Data.(metricdata.Histogram[float64])
	gta.Assert(t, ok)
	assert.InDelta(t, -7.0, returns.DataPoints[0].Sum, 1e-9)

	eps, ok := byName["sdc.epsilon"].Data.(metricdata.Gauge[float64])
	gta.Assert(t, ok)
	assert.Equal(t, 0.25, eps.DataPoints[0].Value)
}

func TestToDbEpisode(t *testing.T) {
	runID := uuid.Must(uuid.NewV7())
	tests := []struct {
		outcome       string
		wantCollided  bool
		wantCompleted bool
	}{
		{outcome: training.OutcomeCollided, wantCollided: true},
		{outcome: training.OutcomeCompleted, wantCompleted: true},
		{outcome: training.OutcomeTruncated},
		{outcome: training.OutcomeCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.outcome, func(t *testing.T) {
			e := sampleSummary(4, tt.outcome)
			got := ToDbEpisode(runID, e)
			assert.Equal(t, runID, got.RunID)
			assert.Equal(t, 4, got.Episode)
			assert.Equal(t, e.Return, got.TotalReward)
			assert.Equal(t, tt.outcome, got.Outcome)
			assert.Equal(t, tt.wantCollided, got.Collided)
			assert.Equal(t, tt.wantCompleted, got.Completed)
			assert.Equal(t, e.FinishedAt, got.FinishedAt)
		})
	}
}

type collectSink struct {
	mu       sync.Mutex
	episodes []int
	err      error
}

func (c *collectSink) Publish(_ context.Context, e *training.EpisodeSummary) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.episodes = append(c.episodes, e.Episode)
	return c.err
}

func TestAsync_DeliversToAllSinks(t *testing.T) {
	a := &collectSink{}
	b := &collectSink{err: errors.New("failures are logged only")}
	async := NewAsync(context.Background(), []training.Sink{a, b},
		WithAsyncBuffer(16), WithAsyncSendTimeout(time.Second))

	for i := 1; i <= 10; i++ {
		gta.NilError(t, async.Publish(context.Background(), sampleSummary(i, "")))
	}
	async.Close()

	want := []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	assert.Equal(t, want, a.episodes)
	assert.Equal(t, want, b.episodes)
}

func TestAsync_PublishCancelled(t *testing.T) {
	async := NewAsync(context.Background(), nil, WithAsyncBuffer(0))
	defer async.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// without sinks nobody drains the source after the first value
	err := async.Publish(ctx, sampleSummary(1, ""))
	if err != nil {
		assert.ErrorIs(t, err, context.Canceled)
	}
}
