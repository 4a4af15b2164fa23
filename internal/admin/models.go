package admin

import (
	"time"

	"ratingcore/internal/reload"
)

type ReloadRequest struct {
	Caches []string `json:"caches"`
}

type ReloadResponse struct {
	Outcomes []reload.Outcome `json:"outcomes"`
	Error    string           `json:"error,omitempty"`
}

// PrefixLookupResponse carries the sentinel-style answer of a prefix
// cache: Result is the value alone, WithChildData the value followed by
// its attributes. A miss puts NO_MATCH in element zero of both.
type PrefixLookupResponse struct {
	Cache         string   `json:"cache"`
	Generation    uint64   `json:"generation"`
	Keys          []string `json:"keys"`
	Result        []string `json:"result"`
	WithChildData []string `json:"with_child_data"`
	Valid         bool     `json:"valid"`
}

// ValidityLookupResponse has one WithChildData row per matching segment.
// The first and from modes return at most one row.
type ValidityLookupResponse struct {
	Cache         string     `json:"cache"`
	Generation    uint64     `json:"generation"`
	Mode          string     `json:"mode"`
	Group         string     `json:"group"`
	Resource      string     `json:"resource"`
	At            time.Time  `json:"at"`
	Result        []string   `json:"result"`
	WithChildData [][]string `json:"with_child_data"`
	Valid         bool       `json:"valid"`
}
