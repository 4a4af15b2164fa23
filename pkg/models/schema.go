package models

import "fmt"

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func ValidateMessageEnvelope(msg *MessageEnvelope) error {
	if msg == nil {
		return &ValidationError{
			Field:   "envelope",
			Message: "message envelope cannot be nil",
		}
	}

	if msg.ID == "" {
		return &ValidationError{
			Field:   "id",
			Message: "message ID is required",
		}
	}

	if msg.Type != MessageTypeReload && msg.StreamID == "" {
		return &ValidationError{
			Field:   "stream_id",
			Message: "stream ID is required",
		}
	}

	if msg.Timestamp.IsZero() {
		return &ValidationError{
			Field:   "timestamp",
			Message: "message timestamp is required",
		}
	}

	switch msg.Type {
	case MessageTypeHeader:
		if msg.Header == nil {
			return &ValidationError{Field: "header", Message: "header message without header body"}
		}
	case MessageTypeTrailer:
		if msg.Trailer == nil {
			return &ValidationError{Field: "trailer", Message: "trailer message without trailer body"}
		}
	case MessageTypeRecord:
		return ValidateRatingRecord(msg.Record)
	case MessageTypeReload:
		if msg.Reload == nil {
			return &ValidationError{Field: "reload", Message: "reload message without event body"}
		}
	default:
		return &ValidationError{
			Field:   "type",
			Message: fmt.Sprintf("unknown message type %q", msg.Type),
		}
	}

	return nil
}

func ValidateRatingRecord(r *RatingRecord) error {
	if r == nil {
		return &ValidationError{
			Field:   "record",
			Message: "record message without record body",
		}
	}

	if r.ID == "" {
		return &ValidationError{
			Field:   "record.id",
			Message: "record ID is required",
		}
	}

	if r.EventStart.IsZero() {
		return &ValidationError{
			Field:   "record.event_start",
			Message: "event start is required",
		}
	}

	for i, p := range r.ChargePackets {
		if p.TimeSplitting != "" && !p.TimeSplitting.Valid() {
			return &ValidationError{
				Field:   fmt.Sprintf("record.charge_packets[%d].time_splitting", i),
				Message: fmt.Sprintf("unknown time splitting %q", p.TimeSplitting),
			}
		}
	}

	return nil
}
