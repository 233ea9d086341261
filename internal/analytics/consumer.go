package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go/jetstream"

	inats "github.com/reelrank/reelrank/internal/nats"
)

const consumerName = "analytics-persister"

type eventInserter interface {
	Insert(ctx context.Context, e Event) error
}

// Consumer listens on the analytics subjects and persists events to the database.
type Consumer struct {
	repo        eventInserter
	consumerMgr *inats.ConsumerManager
}

func NewConsumer(repo eventInserter, consumerMgr *inats.ConsumerManager) *Consumer {
	return &Consumer{
		repo:        repo,
		consumerMgr: consumerMgr,
	}
}

// Start begins the consume loop. Blocks until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	consumer, err := c.consumerMgr.EnsureConsumer(ctx, inats.StreamEvents, consumerName, inats.SubjectAnalytics+".>", inats.DefaultConsumerOptions())
	if err != nil {
		return err
	}

	slog.Info("analytics consumer started", "consumer", consumerName)

	for {
		msgs, err := consumer.Fetch(10, jetstream.FetchMaxWait(inats.FetchTimeout))
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Debug("analytics consumer: fetching events", "error", err)
			continue
		}

		for msg := range msgs.Messages() {
			c.handleMessage(ctx, msg)
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}

func (c *Consumer) handleMessage(ctx context.Context, msg jetstream.Msg) {
	event, err := decodeEvent(msg.Data())
	if err != nil {
		// Redelivery cannot fix a bad payload.
		slog.Error("analytics consumer: discarding event", "error", err, "subject", msg.Subject())
		_ = msg.Term()
		return
	}

	if err := c.repo.Insert(ctx, event); err != nil {
		slog.Error("analytics consumer: persisting event", "error", err, "event_type", event.Kind)
		_ = msg.Nak()
		return
	}

	_ = msg.Ack()
	slog.Debug("analytics consumer: persisted event", "event_type", event.Kind, "id", event.ID)
}

func decodeEvent(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, fmt.Errorf("unmarshaling event: %w", err)
	}
	if !e.Kind.Valid() {
		return Event{}, fmt.Errorf("unknown event type %q", e.Kind)
	}
	if e.Timestamp.IsZero() {
		return Event{}, fmt.Errorf("event %s has no timestamp", e.ID)
	}
	return e, nil
}
