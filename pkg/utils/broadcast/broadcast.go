// Package broadcast fans out values from one source channel to any number
// of subscribers. Slow subscribers are skipped after a timeout.
package broadcast

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/mpapenbr/selfdriving-car-go/log"
)

type Server[T any] interface {
	Subscribe() <-chan T
	CancelSubscription(<-chan T)
	// Close stops the server and closes all subscriber channels.
	// It returns after the serving goroutine has ended.
	Close()
}

type server[T any] struct {
	name           string
	source         <-chan T
	listeners      []chan T
	addListener    chan chan T
	removeListener chan (<-chan T)
	ctx            context.Context
	cancel         context.CancelFunc
	done           chan struct{}
	sendTimeout    time.Duration
	bufferSize     int
	numRcv         atomic.Int64
	numSnd         atomic.Int64
	numSkip        atomic.Int64
	log            *log.Logger
}

type Option[T any] func(*server[T])

// WithSendTimeout sets how long the server waits on a single subscriber.
func WithSendTimeout[T any](d time.Duration) Option[T] {
	return func(s *server[T]) {
		s.sendTimeout = d
	}
}

// WithBuffer creates subscriber channels with the given capacity.
func WithBuffer[T any](size int) Option[T] {
	return func(s *server[T]) {
		s.bufferSize = size
	}
}

func WithLogger[T any](l *log.Logger) Option[T] {
	return func(s *server[T]) {
		s.log = l
	}
}

// New starts serving source. The server ends when source is closed or
// Close is called.
func New[T any](name string, source <-chan T, opts ...Option[T]) Server[T] {
	ctx, cancel := context.WithCancel(context.Background())
	s := &server[T]{
		name:           name,
		source:         source,
		addListener:    make(chan chan T),
		removeListener: make(chan (<-chan T)),
		ctx:            ctx,
		cancel:         cancel,
		done:           make(chan struct{}),
		sendTimeout:    50 * time.Millisecond,
		log:            log.Default().Named("bcst"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupMetrics()
	go s.serve()
	return s
}

func (s *server[T]) Subscribe() <-chan T {
	ch := make(chan T, s.bufferSize)
	select {
	case s.addListener <- ch:
	case <-s.done:
		close(ch)
	}
	return ch
}

func (s *server[T]) CancelSubscription(ch <-chan T) {
	select {
	case s.removeListener <- ch:
	case <-s.done:
	}
}

func (s *server[T]) Close() {
	s.cancel()
	<-s.done
	s.log.Debug("broadcast server closed",
		log.String("name", s.name),
		log.Int64("rcv", s.numRcv.Load()), log.Int64("snd", s.numSnd.Load()), log.Int64("skip", s.numSkip.Load()))
}

func (s *server[T]) setupMetrics() {
	meter := otel.GetMeterProvider().Meter(fmt.Sprintf("sdc.broadcast.%s", s.name))
	for _, d := range []struct {
		name, desc string
		value      func() int64
	}{
		{"sdc.broadcast.rcv", "Number of received messages", s.numRcv.Load},
		{"sdc.broadcast.snd", "Number of sent messages", s.numSnd.Load},
		{"sdc.broadcast.skip", "Number of skipped messages", s.numSkip.Load},
	} {
		if _, err := meter.Int64ObservableCounter(
			d.name,
			metric.WithDescription(d.desc),
			metric.WithUnit("{count}"),
			metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
				o.Observe(d.value(), metric.WithAttributes(attribute.String("name", s.name)))
				return nil
			})); err != nil {
			s.log.Error("failed to register metric",
				log.String("metric", d.name),
				log.ErrorField(err))
		}
	}
}

//nolint:cyclop // select loop
func (s *server[T]) serve() {
	defer func() {
		for _, listener := range s.listeners {
			close(listener)
		}
		s.listeners = nil
		close(s.done)
	}()
	for {
		select {
		case <-s.ctx.Done():
			return
		case ch := <-s.addListener:
			s.listeners = append(s.listeners, ch)
		case ch := <-s.removeListener:
			for i, listener := range s.listeners {
				if listener == ch {
					s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
					close(listener)
					break
				}
			}
		case msg, ok := <-s.source:
			if !ok {
				return
			}
			s.numRcv.Add(1)
			for _, listener := range s.listeners {
				select {
				case listener <- msg:
					s.numSnd.Add(1)
				case <-time.After(s.sendTimeout):
					s.numSkip.Add(1)
				}
			}
		}
	}
}
