package models

import "time"

// ReloadEvent asks rating workers to rebuild named caches. An empty Caches
// list means every configured cache.
type ReloadEvent struct {
	ID          string    `json:"id"`
	EventType   string    `json:"event_type"`
	Caches      []string  `json:"caches,omitempty"`
	Action      string    `json:"action"`
	Timestamp   time.Time `json:"timestamp"`
	RequestedBy string    `json:"requested_by,omitempty"`
}

const (
	EventTypeCacheDataUpdated = "cache_data_updated"
	EventTypeCacheReload      = "cache_reload"
)

const (
	ActionUpdate = "update"
	ActionReload = "reload"
)
