// Package pipeline runs rating stages over the elements of a CDR stream.
//
// Errors follow three tiers. Init failures are fatal and stop the service.
// Record-scoped failures are attached to the record, which is forwarded
// with the remaining stages skipped. Any other error is returned to the
// consumer, which retries and then dead-letters the message.
package pipeline

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"ratingcore/internal/broker"
	"ratingcore/internal/cache"
	"ratingcore/internal/logger"
	"ratingcore/internal/scratch"
	"ratingcore/pkg/errors"
	"ratingcore/pkg/logging"
	"ratingcore/pkg/metrics"
	"ratingcore/pkg/models"
	"ratingcore/pkg/tracing"
)

const (
	statusRated       = "rated"
	statusRecordError = "record_error"
	statusFailed      = "failed"
)

type Pipeline struct {
	stages      []Stage
	scratch     scratch.Store
	producer    broker.Producer
	outputTopic string
	source      string
	logger      logger.Logger
}

func New(stages []Stage, store scratch.Store, producer broker.Producer, outputTopic, source string, log logger.Logger) *Pipeline {
	return &Pipeline{
		stages:      stages,
		scratch:     store,
		producer:    producer,
		outputTopic: outputTopic,
		source:      source,
		logger:      log,
	}
}

func (p *Pipeline) Stages() []string {
	names := make([]string, 0, len(p.stages))
	for _, s := range p.stages {
		names = append(names, s.Name())
	}
	return names
}

// Init resolves every stage against reg. Any error is fatal.
func (p *Pipeline) Init(reg *cache.Registry) error {
	for _, s := range p.stages {
		if err := s.Init(reg); err != nil {
			if errors.IsFatal(err) {
				return fmt.Errorf("stage %s: %w", s.Name(), err)
			}
			return errors.ErrInternal.
				WithCause(err).
				WithDetail("stage", s.Name()).
				AsFatal()
		}
	}
	return nil
}

// Handle processes one envelope from the input topic and forwards the
// result to the output topic.
func (p *Pipeline) Handle(ctx context.Context, env models.MessageEnvelope) error {
	if err := models.ValidateMessageEnvelope(&env); err != nil {
		return errors.ErrValidation.
			WithCause(err).
			WithDetail("message", err.Error())
	}
	if env.StreamID != "" {
		ctx = logging.WithStreamID(ctx, env.StreamID)
	}

	switch env.Type {
	case models.MessageTypeHeader:
		return p.handleHeader(ctx, env)
	case models.MessageTypeRecord:
		return p.handleRecord(ctx, env)
	case models.MessageTypeTrailer:
		return p.handleTrailer(ctx, env)
	default:
		p.logger.WarnwCtx(ctx, "Ignoring message type on rating input", "type", env.Type)
		return nil
	}
}

func headerKey(streamID string) string  { return "stream:" + streamID + ":header" }
func recordsKey(streamID string) string { return "stream:" + streamID + ":records" }

func (p *Pipeline) handleHeader(ctx context.Context, env models.MessageEnvelope) error {
	if err := p.scratch.Put(ctx, headerKey(env.StreamID), env.Header.FileName); err != nil {
		return errors.ErrServiceUnavailable.WithCause(err)
	}
	if err := p.scratch.Put(ctx, recordsKey(env.StreamID), "0"); err != nil {
		return errors.ErrServiceUnavailable.WithCause(err)
	}

	for _, s := range p.stages {
		if err := s.ProcessHeader(ctx, env.StreamID, env.Header); err != nil {
			return fmt.Errorf("stage %s header: %w", s.Name(), err)
		}
	}

	p.logger.InfowCtx(ctx, "Stream started", "file_name", env.Header.FileName)
	return p.forward(ctx, env)
}

func (p *Pipeline) handleTrailer(ctx context.Context, env models.MessageEnvelope) error {
	fileName, seen, err := p.scratch.Get(ctx, headerKey(env.StreamID))
	if err != nil {
		return errors.ErrServiceUnavailable.WithCause(err)
	}
	if !seen {
		p.logger.WarnwCtx(ctx, "Trailer without header")
	}

	counted, err := p.recordCount(ctx, env.StreamID)
	if err != nil {
		return err
	}
	if seen && counted != env.Trailer.RecordCount {
		p.logger.WarnwCtx(ctx, "Trailer record count mismatch",
			"file_name", fileName,
			"expected", env.Trailer.RecordCount,
			"rated", counted,
		)
	}

	for _, s := range p.stages {
		if err := s.ProcessTrailer(ctx, env.StreamID, env.Trailer); err != nil {
			return fmt.Errorf("stage %s trailer: %w", s.Name(), err)
		}
	}

	if err := p.forward(ctx, env); err != nil {
		return err
	}

	for _, key := range []string{headerKey(env.StreamID), recordsKey(env.StreamID)} {
		if err := p.scratch.Clear(ctx, key); err != nil {
			p.logger.WarnwCtx(ctx, "Failed to clear stream state", "key", key, "error", err)
		}
	}

	p.logger.InfowCtx(ctx, "Stream finished", "file_name", fileName, "records", counted)
	return nil
}

func (p *Pipeline) recordCount(ctx context.Context, streamID string) (int, error) {
	v, ok, err := p.scratch.Get(ctx, recordsKey(streamID))
	if err != nil {
		return 0, errors.ErrServiceUnavailable.WithCause(err)
	}
	if !ok {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.logger.WarnwCtx(ctx, "Corrupt stream record count, counting from zero",
			"key", recordsKey(streamID),
			"value", v,
			"error", err,
		)
		return 0, nil
	}
	return n, nil
}

func (p *Pipeline) countRecord(ctx context.Context, streamID string) {
	ok, err := p.scratch.Contains(ctx, headerKey(streamID))
	if err != nil || !ok {
		return
	}
	n, err := p.recordCount(ctx, streamID)
	if err != nil {
		return
	}
	if err := p.scratch.Put(ctx, recordsKey(streamID), strconv.Itoa(n+1)); err != nil {
		p.logger.WarnwCtx(ctx, "Failed to update stream record count", "error", err)
	}
}

func (p *Pipeline) handleRecord(ctx context.Context, env models.MessageEnvelope) error {
	start := time.Now()
	// retries must start from the received record
	rec := env.Record.Clone()
	env.Record = rec
	ctx = logging.WithRecordID(ctx, rec.ID)

	ctx, span := tracing.StartRecordSpan(ctx, rec.ID, rec.ServiceID)
	defer span.End()

	status, err := p.Rate(ctx, rec, &env.Metadata)
	if err != nil {
		tracing.RecordError(span, err)
		metrics.RatingRecordsTotal.WithLabelValues(statusFailed).Inc()
		metrics.ObserveRatingDuration(time.Since(start), statusFailed)
		return err
	}

	if err := p.forward(ctx, env); err != nil {
		tracing.RecordError(span, err)
		return err
	}
	p.countRecord(ctx, env.StreamID)

	metrics.RatingRecordsTotal.WithLabelValues(status).Inc()
	metrics.ObserveRatingDuration(time.Since(start), status)
	p.logger.DebugwCtx(ctx, "Record rated", "status", status, "zone", rec.Zone)
	return nil
}

// Rate runs every stage over rec. A record-scoped failure is attached to
// rec and ends rating without an error; other failures are returned.
func (p *Pipeline) Rate(ctx context.Context, rec *models.RatingRecord, meta *models.Metadata) (string, error) {
	rec.ApplyDefaults()
	rc := NewRecordContext(rec)
	status := statusRated
	applied := make([]string, 0, len(p.stages))

	for _, s := range p.stages {
		stageCtx, span := tracing.StartStageSpan(ctx, s.Name())
		err := s.Process(stageCtx, rc)
		tracing.RecordError(span, err)
		span.End()

		if err == nil {
			applied = append(applied, s.Name())
			continue
		}
		if errors.IsRecordScoped(err) {
			rec.AddError(s.Name(), errors.Code(err), err.Error())
			p.logger.WarnwCtx(ctx, "Record rating aborted", "stage", s.Name(), "error", err)
			status = statusRecordError
			break
		}
		return statusFailed, fmt.Errorf("stage %s: %w", s.Name(), err)
	}

	if meta != nil {
		meta.Processing = &models.ProcessingInfo{
			RatedAt:     time.Now().UTC(),
			Stages:      applied,
			Generations: rc.Generations(),
		}
	}
	return status, nil
}

func (p *Pipeline) forward(ctx context.Context, env models.MessageEnvelope) error {
	if p.source != "" {
		env.Source = p.source
	}
	if err := p.producer.Publish(ctx, p.outputTopic, env); err != nil {
		return errors.ErrServiceUnavailable.
			WithCause(err).
			WithDetail("message", "failed to publish rated message")
	}
	return nil
}
