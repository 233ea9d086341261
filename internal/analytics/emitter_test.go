package analytics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelrank/reelrank/internal/clock"
	"github.com/reelrank/reelrank/internal/metrics"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type recordingSink struct {
	name  string
	err   error
	block chan struct{}
	began chan struct{}

	mu     sync.Mutex
	events []Event
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Deliver(ctx context.Context, e Event) error {
	if s.began != nil {
		s.began <- struct{}{}
	}
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
	return s.err
}

func (s *recordingSink) received() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func TestEmitter_StampsAndFansOut(t *testing.T) {
	a := &recordingSink{name: "a"}
	b := &recordingSink{name: "b"}
	em := NewEmitter(EmitterConfig{QueueSize: 8, Workers: 1}, clock.NewFake(t0), a, b)

	em.Emit(NewGenerationAttempt(testMeta, testInput))
	require.NoError(t, em.Close(context.Background()))

	for _, s := range []*recordingSink{a, b} {
		got := s.received()
		require.Len(t, got, 1, s.name)
		assert.NotEqual(t, uuid.Nil, got[0].ID)
		assert.True(t, got[0].Timestamp.Equal(t0))
		assert.Equal(t, KindGenerationAttempt, got[0].Kind)
	}
	assert.Equal(t, a.received()[0].ID, b.received()[0].ID, "every sink sees the same event id")
}

func TestEmitter_SinkFailureDoesNotStopOthers(t *testing.T) {
	bad := &recordingSink{name: "bad-" + t.Name(), err: errors.New("boom")}
	good := &recordingSink{name: "good-" + t.Name()}
	em := NewEmitter(EmitterConfig{QueueSize: 8, Workers: 2}, clock.NewFake(t0), bad, good)

	for i := 0; i < 3; i++ {
		em.Emit(NewContactSubmitted(testMeta, "me@example.com"))
	}
	require.NoError(t, em.Close(context.Background()))

	assert.Len(t, good.received(), 3)
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.AnalyticsEventsTotal.WithLabelValues(bad.name, "error")))
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.AnalyticsEventsTotal.WithLabelValues(good.name, "ok")))
}

func TestEmitter_DropsWhenQueueFull(t *testing.T) {
	sink := &recordingSink{name: "slow", block: make(chan struct{}), began: make(chan struct{}, 4)}
	em := NewEmitter(EmitterConfig{QueueSize: 1, Workers: 1}, clock.NewFake(t0), sink)
	before := testutil.ToFloat64(metrics.AnalyticsEventsDropped)

	em.Emit(NewGenerationAttempt(testMeta, testInput))
	<-sink.began // the worker holds the first event
	em.Emit(NewGenerationAttempt(testMeta, testInput))
	em.Emit(NewGenerationAttempt(testMeta, testInput))

	assert.Equal(t, before+1, testutil.ToFloat64(metrics.AnalyticsEventsDropped))

	close(sink.block)
	require.NoError(t, em.Close(context.Background()))
	assert.Len(t, sink.received(), 2)
}

func TestEmitter_CloseDrainsAndRejectsLateEvents(t *testing.T) {
	sink := &recordingSink{name: "drain"}
	em := NewEmitter(EmitterConfig{QueueSize: 16, Workers: 1}, clock.NewFake(t0), sink)

	for i := 0; i < 10; i++ {
		em.Emit(NewLimitHit(testMeta, testInput))
	}
	require.NoError(t, em.Close(context.Background()))
	assert.Len(t, sink.received(), 10)

	before := testutil.ToFloat64(metrics.AnalyticsEventsDropped)
	em.Emit(NewLimitHit(testMeta, testInput))
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.AnalyticsEventsDropped))
	assert.ErrorIs(t, em.Close(context.Background()), ErrEmitterClosed)
}

func TestEmitter_CloseHonoursDeadline(t *testing.T) {
	sink := &recordingSink{name: "stuck", block: make(chan struct{}), began: make(chan struct{}, 1)}
	em := NewEmitter(EmitterConfig{QueueSize: 4, Workers: 1, SinkTimeout: time.Minute}, clock.NewFake(t0), sink)
	defer close(sink.block)

	em.Emit(NewGenerationAttempt(testMeta, testInput))
	<-sink.began

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, em.Close(ctx), context.DeadlineExceeded)
}

func TestLogSink(t *testing.T) {
	s := NewLogSink(nil)
	assert.Equal(t, "log", s.Name())
	assert.NoError(t, s.Deliver(context.Background(), NewGenerationSuccess(testMeta, testInput, 7, true)))
}
