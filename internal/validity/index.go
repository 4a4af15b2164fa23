// Package validity implements the interval index used to find which
// time-bounded configuration entry applies at an event timestamp.
//
// Segments are bucketed per (group, resource id) and kept sorted by
// ValidFrom. The same buckets serve two modes: bounded lookups, where each
// segment covers [ValidFrom, ValidTo), and from-only lookups, where a
// segment lasts until the next segment in its bucket starts.
package validity

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"time"

	"ratingcore/pkg/match"
)

var ErrInvalidRange = errors.New("validity: valid_to must be after valid_from")

// Segment is a value effective for one (Group, ResourceID) pair. A zero
// ValidTo leaves the segment open toward the future. ValidTo is not
// consulted by from-only lookups.
type Segment struct {
	Group      string
	ResourceID string
	ValidFrom  time.Time
	ValidTo    time.Time
	Value      string
	Attributes []string
}

func (s Segment) Open() bool {
	return s.ValidTo.IsZero()
}

func (s Segment) covers(t time.Time) bool {
	if t.Before(s.ValidFrom) {
		return false
	}
	return s.Open() || t.Before(s.ValidTo)
}

func (s Segment) result() match.Result {
	return match.Found(s.Value, s.Attributes)
}

type bucketKey struct {
	group    string
	resource string
}

// Index is immutable once built and safe for concurrent lookups.
type Index struct {
	buckets  map[bucketKey][]Segment
	segments int
}

func (x *Index) bucket(group, resource string) []Segment {
	if x == nil {
		return nil
	}
	return x.buckets[bucketKey{group: group, resource: resource}]
}

// Len returns the total number of stored segments.
func (x *Index) Len() int {
	if x == nil {
		return 0
	}
	return x.segments
}

func (x *Index) Buckets() int {
	if x == nil {
		return 0
	}
	return len(x.buckets)
}

// FirstMatch returns the first segment in stored order whose [ValidFrom,
// ValidTo) range covers t.
func (x *Index) FirstMatch(group, resource string, t time.Time) match.Result {
	for _, s := range x.bucket(group, resource) {
		if s.ValidFrom.After(t) {
			break
		}
		if s.covers(t) {
			return s.result()
		}
	}
	return match.NotFound
}

// AllMatches returns every covering segment in stored order, or an empty
// slice when nothing covers t.
func (x *Index) AllMatches(group, resource string, t time.Time) []match.Result {
	var out []match.Result
	for _, s := range x.bucket(group, resource) {
		if s.ValidFrom.After(t) {
			break
		}
		if s.covers(t) {
			out = append(out, s.result())
		}
	}
	return out
}

// FromMatch returns the segment with the greatest ValidFrom not after t.
// Among segments sharing that start the one loaded last wins.
func (x *Index) FromMatch(group, resource string, t time.Time) match.Result {
	segs := x.bucket(group, resource)
	i := sort.Search(len(segs), func(i int) bool {
		return segs[i].ValidFrom.After(t)
	})
	if i == 0 {
		return match.NotFound
	}
	return segs[i-1].result()
}

func (x *Index) GetFirstValidityMatch(group, resource string, t time.Time) []string {
	return x.FirstMatch(group, resource, t).Strings(match.NoValidityMatch)
}

func (x *Index) GetFirstValidityMatchWithChildData(group, resource string, t time.Time) []string {
	return x.FirstMatch(group, resource, t).WithChildData(match.NoValidityMatch)
}

func (x *Index) GetAllValidityMatches(group, resource string, t time.Time) []string {
	return match.AllStrings(x.AllMatches(group, resource, t))
}

func (x *Index) GetAllValidityMatchesWithChildData(group, resource string, t time.Time) [][]string {
	return match.AllWithChildData(x.AllMatches(group, resource, t))
}

func (x *Index) GetValiditySegmentMatch(group, resource string, t time.Time) []string {
	return x.FromMatch(group, resource, t).Strings(match.NoValidityMatch)
}

func (x *Index) GetValiditySegmentMatchWithChildData(group, resource string, t time.Time) []string {
	return x.FromMatch(group, resource, t).WithChildData(match.NoValidityMatch)
}

// Builder collects segments for one Index. It is single-writer.
type Builder struct {
	buckets  map[bucketKey][]Segment
	segments int
}

func NewBuilder() *Builder {
	return &Builder{buckets: make(map[bucketKey][]Segment)}
}

// Add appends a segment. Segments with a ValidTo at or before ValidFrom are
// rejected.
func (b *Builder) Add(s Segment) error {
	if !s.Open() && !s.ValidTo.After(s.ValidFrom) {
		return fmt.Errorf("%w: %s/%s from %s to %s", ErrInvalidRange,
			s.Group, s.ResourceID, s.ValidFrom.Format(time.RFC3339), s.ValidTo.Format(time.RFC3339))
	}
	s.Attributes = append([]string(nil), s.Attributes...)

	k := bucketKey{group: s.Group, resource: s.ResourceID}
	b.buckets[k] = append(b.buckets[k], s)
	b.segments++
	return nil
}

// Build sorts each bucket by ValidFrom, keeping loader order among equal
// starts, and returns the finished Index.
func (b *Builder) Build() *Index {
	for k, segs := range b.buckets {
		slices.SortStableFunc(segs, func(a, c Segment) int {
			return a.ValidFrom.Compare(c.ValidFrom)
		})
		b.buckets[k] = slices.Clip(segs)
	}
	x := &Index{buckets: b.buckets, segments: b.segments}
	b.buckets = nil
	return x
}

// Build constructs an Index from segments in loader order.
func Build(segments []Segment) (*Index, error) {
	b := NewBuilder()
	for i, s := range segments {
		if err := b.Add(s); err != nil {
			return nil, fmt.Errorf("segment #%d: %w", i, err)
		}
	}
	return b.Build(), nil
}
