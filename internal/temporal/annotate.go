package temporal

import (
	"time"

	"ratingcore/pkg/models"
)

type Annotator struct {
	calendar Calendar
	location *time.Location
}

func NewAnnotator(calendar Calendar, loc *time.Location) Annotator {
	if loc == nil {
		loc = time.UTC
	}
	return Annotator{calendar: calendar, location: loc}
}

// AnnotatePerPacket checks every packet against the calendar of its own
// time model. It returns the number of packets newly set to HOLIDAY.
func (a Annotator) AnnotatePerPacket(r *models.RatingRecord) int {
	date := DateKeyOf(r.EventStart, a.location)

	marked := 0
	for i := range r.ChargePackets {
		p := &r.ChargePackets[i]
		if !checkable(p) {
			continue
		}
		if a.calendar.IsHoliday(p.TimeModel, date) {
			p.TimeSplitting = models.TimeSplittingHoliday
			marked++
		}
	}
	return marked
}

// AnnotateShared queries group once and, on a holiday, marks every packet.
func (a Annotator) AnnotateShared(r *models.RatingRecord, group string) int {
	date := DateKeyOf(r.EventStart, a.location)
	if !a.calendar.IsHoliday(group, date) {
		return 0
	}

	marked := 0
	for i := range r.ChargePackets {
		p := &r.ChargePackets[i]
		if !checkable(p) {
			continue
		}
		p.TimeSplitting = models.TimeSplittingHoliday
		marked++
	}
	return marked
}

func checkable(p *models.ChargePacket) bool {
	return p.TimeSplitting != models.TimeSplittingNoCheck &&
		p.TimeSplitting != models.TimeSplittingHoliday
}
