package temporal

import (
	"time"

	"ratingcore/internal/validity"
	"ratingcore/pkg/match"
)

type Calendar interface {
	IsHoliday(group string, date DateKey) bool
}

// IndexCalendar answers holiday queries from one interval index snapshot.
// A date is a holiday for group when a bounded segment of (group, Resource)
// covers the local midnight of that date.
type IndexCalendar struct {
	Index    *validity.Index
	Resource string
	Location *time.Location
}

func (c IndexCalendar) IsHoliday(group string, date DateKey) bool {
	res := c.Index.GetFirstValidityMatch(group, c.Resource, date.Midnight(c.Location))
	return match.IsValid(res)
}
