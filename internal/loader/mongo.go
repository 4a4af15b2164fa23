package loader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"ratingcore/internal/constants"
	"ratingcore/internal/validity"
	"ratingcore/pkg/metrics"
)

const (
	dbMongo = "mongodb"

	// loadAttempts bounds how often a load restarts when a replace publishes
	// a new version underneath it.
	loadAttempts = 3
)

// ErrSourceChanged is returned when every load attempt raced a replace.
var ErrSourceChanged = errors.New("loader: validity source changed during load")

type segmentDocument struct {
	Cache      string     `bson:"cache"`
	Version    string     `bson:"version,omitempty"`
	Seq        int64      `bson:"seq"`
	Group      string     `bson:"group"`
	ResourceID string     `bson:"resource_id"`
	ValidFrom  time.Time  `bson:"valid_from"`
	ValidTo    *time.Time `bson:"valid_to,omitempty"`
	Value      string     `bson:"value"`
	Attributes []string   `bson:"attributes,omitempty"`
}

func (d segmentDocument) segment() validity.Segment {
	s := validity.Segment{
		Group:      d.Group,
		ResourceID: d.ResourceID,
		ValidFrom:  d.ValidFrom,
		Value:      d.Value,
		Attributes: d.Attributes,
	}
	if d.ValidTo != nil {
		s.ValidTo = *d.ValidTo
	}
	return s
}

// headDocument points a data set at its published version. Stamp orders
// concurrent replaces; an older one never overwrites a newer head.
type headDocument struct {
	Source    string    `bson:"_id"`
	Version   string    `bson:"version"`
	Stamp     int64     `bson:"stamp"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// MongoValidityRepository stores each data set as versioned segment
// documents. A replace inserts a complete new version, moves the head to it
// with a single-document write, and only then removes older versions, so a
// load sees either the old or the new set.
type MongoValidityRepository struct {
	collection  *mongo.Collection
	heads       *mongo.Collection
	serviceName string
	now         func() time.Time
}

func NewMongoValidityRepository(db *mongo.Database, serviceName string) *MongoValidityRepository {
	return &MongoValidityRepository{
		collection:  db.Collection(constants.MongoValidityCollection),
		heads:       db.Collection(constants.MongoValidityHeads),
		serviceName: serviceName,
		now:         time.Now,
	}
}

// head returns the published version of source, or "" for data sets
// written before versioning, which are read by cache name alone.
func (r *MongoValidityRepository) head(ctx context.Context, source string) (string, error) {
	var h headDocument
	err := r.heads.FindOne(ctx, bson.M{"_id": source}).Decode(&h)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read validity head: %w", err)
	}
	return h.Version, nil
}

func (r *MongoValidityRepository) LoadValiditySegments(ctx context.Context, source string) (segments []validity.Segment, err error) {
	start := time.Now()
	defer func() {
		r.observe("load_validity_segments", start, err)
	}()

	for attempt := 0; attempt < loadAttempts; attempt++ {
		version, err := r.head(ctx, source)
		if err != nil {
			return nil, err
		}

		segments, err = r.find(ctx, source, version)
		if err != nil {
			return nil, err
		}

		// a replace that moved the head meanwhile may have deleted part of
		// what was just read
		after, err := r.head(ctx, source)
		if err != nil {
			return nil, err
		}
		if after == version {
			return segments, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrSourceChanged, source)
}

func (r *MongoValidityRepository) find(ctx context.Context, source, version string) ([]validity.Segment, error) {
	filter := bson.M{"cache": source}
	if version != "" {
		filter["version"] = version
	}
	opts := options.Find().SetSort(bson.D{{Key: "seq", Value: 1}})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find validity segments: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []segmentDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode validity segments: %w", err)
	}

	segments := make([]validity.Segment, 0, len(docs))
	for _, d := range docs {
		segments = append(segments, d.segment())
	}
	return segments, nil
}

// ReplaceValiditySegments publishes segments as the new contents of source,
// with sequence numbers in slice order.
func (r *MongoValidityRepository) ReplaceValiditySegments(ctx context.Context, source string, segments []validity.Segment) (err error) {
	start := time.Now()
	defer func() {
		r.observe("replace_validity_segments", start, err)
	}()

	_, err = r.replace(ctx, source, segments, r.now().UnixNano())
	return err
}

// replace reports false when a replace with a later stamp already owns the
// head. Its own documents are removed again and the newer set stays.
func (r *MongoValidityRepository) replace(ctx context.Context, source string, segments []validity.Segment, stamp int64) (bool, error) {
	version := uuid.NewString()

	if len(segments) > 0 {
		if _, err := r.collection.InsertMany(ctx, segmentDocuments(source, version, segments)); err != nil {
			r.dropVersion(ctx, source, version)
			return false, fmt.Errorf("failed to insert validity segments: %w", err)
		}
	}

	filter := bson.M{"_id": source, "stamp": bson.M{"$lt": stamp}}
	update := bson.M{"$set": bson.M{"version": version, "stamp": stamp, "updated_at": r.now().UTC()}}
	_, err := r.heads.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if mongo.IsDuplicateKeyError(err) {
		// the filter missed because the stored stamp is newer; the upsert then
		// collided on _id
		r.dropVersion(ctx, source, version)
		return false, nil
	}
	if err != nil {
		r.dropVersion(ctx, source, version)
		return false, fmt.Errorf("failed to publish validity segments: %w", err)
	}

	if _, err := r.collection.DeleteMany(ctx, bson.M{"cache": source, "version": bson.M{"$ne": version}}); err != nil {
		return true, fmt.Errorf("failed to delete superseded validity segments: %w", err)
	}
	return true, nil
}

// dropVersion is best effort; leftovers are unreachable from the head and
// removed by the next successful replace.
func (r *MongoValidityRepository) dropVersion(ctx context.Context, source, version string) {
	_, _ = r.collection.DeleteMany(context.WithoutCancel(ctx), bson.M{"cache": source, "version": version})
}

func segmentDocuments(source, version string, segments []validity.Segment) []interface{} {
	docs := make([]interface{}, 0, len(segments))
	for i, s := range segments {
		d := segmentDocument{
			Cache:      source,
			Version:    version,
			Seq:        int64(i),
			Group:      s.Group,
			ResourceID: s.ResourceID,
			ValidFrom:  s.ValidFrom.UTC(),
			Value:      s.Value,
			Attributes: s.Attributes,
		}
		if !s.Open() {
			to := s.ValidTo.UTC()
			d.ValidTo = &to
		}
		docs = append(docs, d)
	}
	return docs
}

func (r *MongoValidityRepository) observe(operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.IncDatabaseQuery(r.serviceName, dbMongo, operation, status)
	metrics.ObserveDatabaseQueryDuration(r.serviceName, dbMongo, operation, time.Since(start))
}
