package sink

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/mpapenbr/selfdriving-car-go/pkg/training"
)

// Publisher is satisfied by *nats.Conn
type Publisher interface {
	Publish(subj string, data []byte) error
}

// Nats publishes each summary as protobuf encoded structpb.Struct on
// <prefix>.<runID>.
type Nats struct {
	conn   Publisher
	prefix string
}

func NewNats(conn Publisher, prefix string) *Nats {
	if prefix == "" {
		prefix = "sdc.episode"
	}
	return &Nats{conn: conn, prefix: prefix}
}

func (s *Nats) Subject(runID string) string {
	if runID == "" {
		return s.prefix
	}
	return fmt.Sprintf("%s.%s", s.prefix, runID)
}

func (s *Nats) Publish(_ context.Context, e *training.EpisodeSummary) error {
	data, err := EncodeSummary(e)
	if err != nil {
		return err
	}
	return s.conn.Publish(s.Subject(e.RunID), data)
}

// EncodeSummary returns the wire representation of e
func EncodeSummary(e *training.EpisodeSummary) ([]byte, error) {
	st, err := structpb.NewStruct(map[string]any{
		"runId":       e.RunID,
		"track":       e.Track,
		"episode":     e.Episode,
		"steps":       e.Steps,
		"return":      e.Return,
		"checkpoints": e.Checkpoints,
		"progress":    e.Progress,
		"outcome":     e.Outcome,
		"epsilon":     e.Epsilon,
		"distance":    e.Distance,
		"training":    e.Training,
		"record":      e.Record,
		"meanReturn":  e.MeanReturn,
		"durationMs":  e.Duration.Milliseconds(),
		"finishedAt":  e.FinishedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, err
	}
	return proto.Marshal(st)
}

// DecodeSummary is the inverse of EncodeSummary
func DecodeSummary(data []byte) (*training.EpisodeSummary, error) {
	var st structpb.Struct
	if err := proto.Unmarshal(data, &st); err != nil {
		return nil, err
	}
	f := st.GetFields()
	num := func(key string) float64 { return f[key].GetNumberValue() }
	ret := &training.EpisodeSummary{
		RunID:       f["runId"].GetStringValue(),
		Track:       f["track"].GetStringValue(),
		Episode:     int(num("episode")),
		Steps:       int(num("steps")),
		Return:      num("return"),
		Checkpoints: int(num("checkpoints")),
		Progress:    num("progress"),
		Outcome:     f["outcome"].GetStringValue(),
		Epsilon:     num("epsilon"),
		Distance:    num("distance"),
		Training:    f["training"].GetBoolValue(),
		Record:      num("record"),
		MeanReturn:  num("meanReturn"),
		Duration:    time.Duration(num("durationMs")) * time.Millisecond,
	}
	if ts := f["finishedAt"].GetStringValue(); ts != "" {
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, err
		}
		ret.FinishedAt = t
	}
	return ret, nil
}
