// Package broker carries rating envelopes over Kafka: CDR input, rated
// output, reload events and the dead letter topic.
package broker

import (
	"context"

	"ratingcore/pkg/models"
)

// Producer publishes envelopes keyed by stream ID, so the ordering of a
// stream survives partitioning.
type Producer interface {
	Publish(ctx context.Context, topic string, msg models.MessageEnvelope) error
	Close() error
}

// Consumer reads one topic. Consume blocks until ctx is done and commits a
// message once the handler succeeds or the message is dead-lettered.
type Consumer interface {
	Consume(ctx context.Context, topic string, handler HandlerFunc) error
	Close() error
}

// HandlerFunc processes one envelope. Errors reporting IsFatal skip the
// retry loop.
type HandlerFunc func(ctx context.Context, msg models.MessageEnvelope) error
