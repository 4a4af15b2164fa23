package models

import "time"

type MessageType string

const (
	MessageTypeHeader  MessageType = "header"
	MessageTypeRecord  MessageType = "record"
	MessageTypeTrailer MessageType = "trailer"
	MessageTypeReload  MessageType = "reload"
)

// MessageEnvelope carries one element of a rating stream, or a reload
// request on the config update topic. Exactly one body is set, according
// to Type.
type MessageEnvelope struct {
	ID        string         `json:"id"`
	Source    string         `json:"source"`
	Timestamp time.Time      `json:"timestamp"`
	Type      MessageType    `json:"type"`
	StreamID  string         `json:"stream_id"`
	Header    *StreamHeader  `json:"header,omitempty"`
	Record    *RatingRecord  `json:"record,omitempty"`
	Trailer   *StreamTrailer `json:"trailer,omitempty"`
	Reload    *ReloadEvent   `json:"reload,omitempty"`
	Metadata  Metadata       `json:"metadata"`
}

type StreamHeader struct {
	FileName  string    `json:"file_name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type StreamTrailer struct {
	RecordCount int `json:"record_count"`
}

type Metadata struct {
	TraceID    string          `json:"trace_id,omitempty"`
	Processing *ProcessingInfo `json:"processing,omitempty"`
	DLQ        *DLQInfo        `json:"dlq,omitempty"`
}

type ProcessingInfo struct {
	RatedAt time.Time `json:"rated_at"`
	Stages  []string  `json:"stages"`

	// Generations records which snapshot of each named cache rated the record.
	Generations map[string]uint64 `json:"generations,omitempty"`
}

type DLQInfo struct {
	Reason      string    `json:"reason"`
	SourceTopic string    `json:"source_topic"`
	Timestamp   time.Time `json:"timestamp"`
}
