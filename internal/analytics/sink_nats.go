package analytics

import (
	"context"

	inats "github.com/reelrank/reelrank/internal/nats"
)

type publisher interface {
	Publish(ctx context.Context, subject, msgID string, data any) error
}

// NATSSink publishes each event to reelrank.events.analytics.{kind}. The
// event id doubles as the JetStream message id so a redelivered publish is
// deduplicated.
type NATSSink struct {
	pub publisher
}

func NewNATSSink(pub publisher) *NATSSink {
	return &NATSSink{pub: pub}
}

func (s *NATSSink) Name() string { return "nats" }

func (s *NATSSink) Deliver(ctx context.Context, e Event) error {
	return s.pub.Publish(ctx, Subject(e.Kind), e.ID.String(), e)
}

func Subject(k Kind) string {
	return inats.SubjectAnalytics + "." + string(k)
}
