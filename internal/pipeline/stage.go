package pipeline

import (
	"context"

	"ratingcore/internal/cache"
	"ratingcore/pkg/models"
)

// Stage is one rating step. Init runs once before any message and resolves
// the caches the stage reads; an error there stops the service.
type Stage interface {
	Name() string
	Init(reg *cache.Registry) error
	ProcessHeader(ctx context.Context, streamID string, header *models.StreamHeader) error
	Process(ctx context.Context, rc *RecordContext) error
	ProcessTrailer(ctx context.Context, streamID string, trailer *models.StreamTrailer) error
}

// RecordContext is the per-record state handed from stage to stage.
type RecordContext struct {
	Record *models.RatingRecord

	generations map[string]uint64
}

func NewRecordContext(r *models.RatingRecord) *RecordContext {
	return &RecordContext{Record: r, generations: make(map[string]uint64)}
}

// Used records which snapshot generation of cache rated the record.
func (rc *RecordContext) Used(cache string, generation uint64) {
	rc.generations[cache] = generation
}

func (rc *RecordContext) Generations() map[string]uint64 {
	return rc.generations
}

// streamHooks gives stages that ignore stream boundaries a no-op header and
// trailer.
type streamHooks struct{}

func (streamHooks) ProcessHeader(context.Context, string, *models.StreamHeader) error {
	return nil
}

func (streamHooks) ProcessTrailer(context.Context, string, *models.StreamTrailer) error {
	return nil
}
