package models

import (
	"time"

	"github.com/google/uuid"
)

type MessageEnvelopeBuilder struct {
	envelope *MessageEnvelope
}

func NewMessageEnvelopeBuilder() *MessageEnvelopeBuilder {
	return &MessageEnvelopeBuilder{
		envelope: &MessageEnvelope{
			Type:     MessageTypeRecord,
			Metadata: Metadata{},
		},
	}
}

func (b *MessageEnvelopeBuilder) WithID(id string) *MessageEnvelopeBuilder {
	b.envelope.ID = id
	return b
}

func (b *MessageEnvelopeBuilder) WithSource(source string) *MessageEnvelopeBuilder {
	b.envelope.Source = source
	return b
}

func (b *MessageEnvelopeBuilder) WithTimestamp(timestamp time.Time) *MessageEnvelopeBuilder {
	b.envelope.Timestamp = timestamp
	return b
}

func (b *MessageEnvelopeBuilder) WithStreamID(streamID string) *MessageEnvelopeBuilder {
	b.envelope.StreamID = streamID
	return b
}

func (b *MessageEnvelopeBuilder) WithHeader(header StreamHeader) *MessageEnvelopeBuilder {
	b.envelope.Type = MessageTypeHeader
	b.clearBodies()
	b.envelope.Header = &header
	return b
}

func (b *MessageEnvelopeBuilder) WithRecord(record *RatingRecord) *MessageEnvelopeBuilder {
	b.envelope.Type = MessageTypeRecord
	b.clearBodies()
	b.envelope.Record = record
	return b
}

func (b *MessageEnvelopeBuilder) WithTrailer(trailer StreamTrailer) *MessageEnvelopeBuilder {
	b.envelope.Type = MessageTypeTrailer
	b.clearBodies()
	b.envelope.Trailer = &trailer
	return b
}

func (b *MessageEnvelopeBuilder) WithReload(event ReloadEvent) *MessageEnvelopeBuilder {
	b.envelope.Type = MessageTypeReload
	b.clearBodies()
	b.envelope.Reload = &event
	return b
}

func (b *MessageEnvelopeBuilder) clearBodies() {
	b.envelope.Header = nil
	b.envelope.Record = nil
	b.envelope.Trailer = nil
	b.envelope.Reload = nil
}

func (b *MessageEnvelopeBuilder) WithMetadata(metadata Metadata) *MessageEnvelopeBuilder {
	b.envelope.Metadata = metadata
	return b
}

func (b *MessageEnvelopeBuilder) WithTraceID(traceID string) *MessageEnvelopeBuilder {
	b.envelope.Metadata.TraceID = traceID
	return b
}

// Build fills a missing ID and timestamp.
func (b *MessageEnvelopeBuilder) Build() *MessageEnvelope {
	if b.envelope.ID == "" {
		b.envelope.ID = uuid.New().String()
	}
	if b.envelope.Timestamp.IsZero() {
		b.envelope.Timestamp = time.Now()
	}
	return b.envelope
}
