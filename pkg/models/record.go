package models

import "time"

type TimeSplitting string

const (
	TimeSplittingNormal  TimeSplitting = "NORMAL"
	TimeSplittingHoliday TimeSplitting = "HOLIDAY"
	TimeSplittingNoCheck TimeSplitting = "NO_CHECK"
)

func (ts TimeSplitting) Valid() bool {
	switch ts {
	case TimeSplittingNormal, TimeSplittingHoliday, TimeSplittingNoCheck:
		return true
	}
	return false
}

// RatingRecord is a single call-detail record moving through the rating
// stages.
type RatingRecord struct {
	ID             string         `json:"id"`
	EventStart     time.Time      `json:"event_start"`
	ServiceID      string         `json:"service_id"`
	ANumber        string         `json:"a_number"`
	BNumber        string         `json:"b_number"`
	Zone           string         `json:"zone,omitempty"`
	ZoneAttributes []string       `json:"zone_attributes,omitempty"`
	ChargePackets  []ChargePacket `json:"charge_packets"`
	Errors         []RecordError  `json:"errors,omitempty"`
}

type ChargePacket struct {
	RatePlan        string        `json:"rate_plan"`
	Zone            string        `json:"zone,omitempty"`
	TimeModel       string        `json:"time_model"`
	PriceModel      string        `json:"price_model,omitempty"`
	PriceAttributes []string      `json:"price_attributes,omitempty"`
	Candidates      [][]string    `json:"candidates,omitempty"`
	TimeSplitting   TimeSplitting `json:"time_splitting"`
}

type RecordError struct {
	Stage   string `json:"stage"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (r *RatingRecord) AddError(stage, code, message string) {
	r.Errors = append(r.Errors, RecordError{Stage: stage, Code: code, Message: message})
}

func (r *RatingRecord) HasErrors() bool {
	return len(r.Errors) > 0
}

// ApplyDefaults sets packets with no time splitting state to NORMAL.
func (r *RatingRecord) ApplyDefaults() {
	for i := range r.ChargePackets {
		if r.ChargePackets[i].TimeSplitting == "" {
			r.ChargePackets[i].TimeSplitting = TimeSplittingNormal
		}
	}
}

// Clone returns a copy whose packets and errors can be modified without
// affecting r.
func (r *RatingRecord) Clone() *RatingRecord {
	c := *r
	c.ZoneAttributes = append([]string(nil), r.ZoneAttributes...)
	c.ChargePackets = append([]ChargePacket(nil), r.ChargePackets...)
	for i := range c.ChargePackets {
		p := &c.ChargePackets[i]
		p.PriceAttributes = append([]string(nil), p.PriceAttributes...)
		p.Candidates = append([][]string(nil), p.Candidates...)
	}
	c.Errors = append([]RecordError(nil), r.Errors...)
	return &c
}
