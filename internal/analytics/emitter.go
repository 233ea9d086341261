package analytics

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/reelrank/reelrank/internal/clock"
	"github.com/reelrank/reelrank/internal/metrics"
)

var ErrEmitterClosed = errors.New("analytics emitter closed")

type EmitterConfig struct {
	QueueSize   int
	Workers     int
	SinkTimeout time.Duration
}

// Emitter fans events out to its sinks on background workers. Emit never
// blocks the caller: when the queue is full the event is dropped and
// counted.
type Emitter struct {
	sinks   []Sink
	clock   clock.Clock
	timeout time.Duration
	queue   chan Event

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewEmitter(cfg EmitterConfig, clk clock.Clock, sinks ...Sink) *Emitter {
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = 10 * time.Second
	}

	e := &Emitter{
		sinks:   sinks,
		clock:   clk,
		timeout: cfg.SinkTimeout,
		queue:   make(chan Event, cfg.QueueSize),
	}
	for i := 0; i < cfg.Workers; i++ {
		e.wg.Add(1)
		go e.run()
	}
	return e
}

// Emit stamps ev with an id and timestamp and queues it for delivery.
func (e *Emitter) Emit(ev Event) {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = e.clock.Now()
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		metrics.AnalyticsEventsDropped.Inc()
		slog.Warn("analytics: event emitted after close", "event_type", ev.Kind)
		return
	}

	select {
	case e.queue <- ev:
	default:
		metrics.AnalyticsEventsDropped.Inc()
		slog.Warn("analytics: queue full, dropping event", "event_type", ev.Kind, "id", ev.ID)
	}
}

func (e *Emitter) run() {
	defer e.wg.Done()
	for ev := range e.queue {
		e.dispatch(ev)
	}
}

func (e *Emitter) dispatch(ev Event) {
	for _, s := range e.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
		err := s.Deliver(ctx, ev)
		cancel()

		if err != nil {
			metrics.AnalyticsEventsTotal.WithLabelValues(s.Name(), "error").Inc()
			slog.Error("analytics: sink delivery failed",
				"sink", s.Name(),
				"event_type", ev.Kind,
				"id", ev.ID,
				"error", err,
			)
			continue
		}
		metrics.AnalyticsEventsTotal.WithLabelValues(s.Name(), "ok").Inc()
	}
}

// Close stops accepting events and waits for queued ones to be delivered,
// or for ctx to end.
func (e *Emitter) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrEmitterClosed
	}
	e.closed = true
	close(e.queue)
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		slog.Warn("analytics: shutdown deadline reached with events pending", "pending", len(e.queue))
		return ctx.Err()
	}
}
