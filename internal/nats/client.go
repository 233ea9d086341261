package nats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/reelrank/reelrank/internal/config"
)

const (
	// eventRetention bounds how long unconsumed analytics stay on the bus.
	eventRetention = 14 * 24 * time.Hour
	// dedupeWindow is how long JetStream remembers a message id.
	dedupeWindow = 10 * time.Minute
)

// Client is the analytics event bus connection.
type Client struct {
	conn *nats.Conn
	js   jetstream.JetStream
}

// NewClient connects to NATS and declares the events stream. The bus is
// best effort, so reconnection is retried indefinitely in the background.
func NewClient(ctx context.Context, cfg config.NATSConfig) (*Client, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name("reelrank-api"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("NATS disconnected, analytics publishing will fail until reconnect", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("NATS reconnected", "url", nc.ConnectedUrlRedacted())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("creating JetStream context: %w", err)
	}

	if _, err := js.CreateOrUpdateStream(ctx, eventsStream()); err != nil {
		nc.Close()
		return nil, fmt.Errorf("declaring stream %s: %w", StreamEvents, err)
	}

	slog.Info("connected to NATS", "stream", StreamEvents)
	return &Client{conn: nc, js: js}, nil
}

func eventsStream() jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:       StreamEvents,
		Subjects:   []string{SubjectEventsWildcard},
		Retention:  jetstream.LimitsPolicy,
		Discard:    jetstream.DiscardOld,
		Storage:    jetstream.FileStorage,
		MaxAge:     eventRetention,
		Duplicates: dedupeWindow,
	}
}

func (c *Client) JetStream() jetstream.JetStream {
	return c.js
}

// Healthy reports whether the connection is currently up.
func (c *Client) Healthy() bool {
	return c.conn.IsConnected()
}

// Close flushes pending publishes and closes the connection.
func (c *Client) Close() {
	if err := c.conn.Drain(); err != nil {
		slog.Warn("draining NATS connection", "error", err)
	}
}
