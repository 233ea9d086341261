package analytics

import (
	"context"
	"log/slog"
)

// Sink delivers events to one destination. Deliver may block; the emitter
// bounds each call with a timeout.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, e Event) error
}

// LogSink writes every event as a structured log line.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger.With("component", "analytics")}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Deliver(ctx context.Context, e Event) error {
	attrs := []slog.Attr{
		slog.String("id", e.ID.String()),
		slog.String("event_type", string(e.Kind)),
		slog.String("client", e.ClientHash),
		slog.Bool("is_mobile", e.IsMobile),
	}
	if e.ReferralCode != "" {
		attrs = append(attrs, slog.String("referral_code", e.ReferralCode))
	}
	if e.Platform != "" {
		attrs = append(attrs, slog.String("platform", e.Platform), slog.String("input_method", e.InputMethod))
	}
	if e.KeywordCount != nil {
		attrs = append(attrs, slog.Int("keywords", *e.KeywordCount))
	}
	if e.ErrorMessage != "" {
		attrs = append(attrs, slog.String("error_message", e.ErrorMessage))
	}
	s.logger.LogAttrs(ctx, slog.LevelInfo, "analytics event", attrs...)
	return nil
}
