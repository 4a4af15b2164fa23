// Package loader reads cache contents from the backing stores. Prefix
// entries live in Postgres and validity segments in MongoDB; both are
// returned in loader order, which the engines rely on for tie breaking.
package loader

import (
	"context"

	"ratingcore/internal/prefix"
	"ratingcore/internal/validity"
)

type PrefixSource interface {
	LoadPrefixEntries(ctx context.Context, source string) ([]prefix.Entry, error)
}

type ValiditySource interface {
	LoadValiditySegments(ctx context.Context, source string) ([]validity.Segment, error)
}

// PrefixStore is a PrefixSource that can also replace a data set.
type PrefixStore interface {
	PrefixSource
	ReplacePrefixEntries(ctx context.Context, source string, entries []prefix.Entry) error
}

type ValidityStore interface {
	ValiditySource
	ReplaceValiditySegments(ctx context.Context, source string, segments []validity.Segment) error
}
