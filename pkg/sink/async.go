package sink

import (
	"context"
	"sync"
	"time"

	"github.com/mpapenbr/selfdriving-car-go/log"
	"github.com/mpapenbr/selfdriving-car-go/pkg/training"
	"github.com/mpapenbr/selfdriving-car-go/pkg/utils/broadcast"
)

// Async decouples slow sinks (network, database) from the training loop.
// Each sink is served by its own goroutine. Summaries are dropped for a
// sink that does not keep up.
type Async struct {
	source chan *training.EpisodeSummary
	bcst   broadcast.Server[*training.EpisodeSummary]
	wg     sync.WaitGroup
	log    *log.Logger
}

type AsyncOption func(*asyncConfig)

type asyncConfig struct {
	buffer      int
	sendTimeout time.Duration
	log         *log.Logger
}

func WithAsyncBuffer(n int) AsyncOption {
	return func(c *asyncConfig) {
		c.buffer = n
	}
}

func WithAsyncSendTimeout(d time.Duration) AsyncOption {
	return func(c *asyncConfig) {
		c.sendTimeout = d
	}
}

func WithAsyncLogger(l *log.Logger) AsyncOption {
	return func(c *asyncConfig) {
		c.log = l
	}
}

func NewAsync(ctx context.Context, sinks []training.Sink, opts ...AsyncOption) *Async {
	cfg := &asyncConfig{
		buffer:      64,
		sendTimeout: time.Second,
		log:         log.Default().Named("sink"),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	a := &Async{
		source: make(chan *training.EpisodeSummary, cfg.buffer),
		log:    cfg.log,
	}
	a.bcst = broadcast.New("episodes", a.source,
		broadcast.WithBuffer[*training.EpisodeSummary](cfg.buffer),
		broadcast.WithSendTimeout[*training.EpisodeSummary](cfg.sendTimeout),
		broadcast.WithLogger[*training.EpisodeSummary](cfg.log))
	for _, s := range sinks {
		ch := a.bcst.Subscribe()
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			for e := range ch {
				if err := s.Publish(ctx, e); err != nil {
					a.log.Warn("sink failed", log.Int("episode", e.Episode), log.ErrorField(err))
				}
			}
		}()
	}
	return a
}

// Publish hands e over to the sinks. It blocks only when the buffer is full.
func (a *Async) Publish(ctx context.Context, e *training.EpisodeSummary) error {
	select {
	case a.source <- e:
		return nil
	default:
	}
	select {
	case a.source <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close waits until all buffered summaries are delivered.
// Publish must not be called after Close.
func (a *Async) Close() {
	close(a.source)
	a.wg.Wait()
	a.bcst.Close()
}
