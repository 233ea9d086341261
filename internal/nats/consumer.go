package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// ConsumerOptions tunes redelivery for a durable pull consumer.
type ConsumerOptions struct {
	AckWait    time.Duration
	MaxDeliver int
	// BackOff spaces redeliveries; it must be shorter than MaxDeliver.
	BackOff []time.Duration
}

func DefaultConsumerOptions() ConsumerOptions {
	return ConsumerOptions{
		AckWait:    30 * time.Second,
		MaxDeliver: 5,
		BackOff:    []time.Duration{5 * time.Second, 30 * time.Second, 2 * time.Minute},
	}
}

type ConsumerManager struct {
	js jetstream.JetStream
}

func NewConsumerManager(js jetstream.JetStream) *ConsumerManager {
	return &ConsumerManager{js: js}
}

// EnsureConsumer declares a durable explicit-ack consumer filtered to
// filterSubject, updating it in place if it already exists.
func (cm *ConsumerManager) EnsureConsumer(ctx context.Context, stream, name, filterSubject string, opts ConsumerOptions) (jetstream.Consumer, error) {
	consumer, err := cm.js.CreateOrUpdateConsumer(ctx, stream, consumerConfig(name, filterSubject, opts))
	if err != nil {
		return nil, fmt.Errorf("ensuring consumer %s on %s: %w", name, stream, err)
	}
	return consumer, nil
}

func consumerConfig(name, filterSubject string, opts ConsumerOptions) jetstream.ConsumerConfig {
	if opts.MaxDeliver > 0 && len(opts.BackOff) >= opts.MaxDeliver {
		opts.BackOff = opts.BackOff[:opts.MaxDeliver-1]
	}
	return jetstream.ConsumerConfig{
		Durable:       name,
		FilterSubject: filterSubject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverAllPolicy,
		AckWait:       opts.AckWait,
		MaxDeliver:    opts.MaxDeliver,
		BackOff:       opts.BackOff,
	}
}
