// Package sink contains the receivers of episode summaries.
package sink

import (
	"context"

	"github.com/mpapenbr/selfdriving-car-go/log"
	"github.com/mpapenbr/selfdriving-car-go/pkg/training"
)

// Log writes one line per episode.
type Log struct {
	log *log.Logger
}

func NewLog(l *log.Logger) *Log {
	if l == nil {
		l = log.Default().Named("episode")
	}
	return &Log{log: l}
}

func (s *Log) Publish(_ context.Context, e *training.EpisodeSummary) error {
	s.log.Info("episode",
		log.Int("episode", e.Episode),
		log.String("outcome", e.Outcome),
		log.Int("steps", e.Steps),
		log.Float64("return", e.Return),
		log.Float64("mean", e.MeanReturn),
		log.Float64("record", e.Record),
		log.Int("checkpoints", e.Checkpoints),
		log.Float64("progress", e.Progress),
		log.Float64("epsilon", e.Epsilon),
		log.Bool("training", e.Training),
		log.Duration("duration", e.Duration))
	return nil
}
