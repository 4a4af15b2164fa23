package broker

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"ratingcore/internal/config"
	"ratingcore/internal/logger"
	"ratingcore/pkg/errors"
	"ratingcore/pkg/logging"
	"ratingcore/pkg/metrics"
	"ratingcore/pkg/models"
	"ratingcore/pkg/retry"
	"ratingcore/pkg/tracing"
)

const (
	dlqReasonRetriesExhausted = "max_retries_exceeded"
	dlqReasonFatal            = "fatal_error"

	fetchErrorDelay = time.Second
)

// KafkaConsumer processes one message at a time, so the records of a
// partition are rated in offset order.
type KafkaConsumer struct {
	cfg         config.KafkaConfig
	logger      logger.Logger
	serviceName string
	dlqProducer Producer

	mu     sync.Mutex
	reader *kafka.Reader
}

func NewKafkaConsumer(cfg config.KafkaConfig, serviceName string, log logger.Logger) *KafkaConsumer {
	if serviceName == "" {
		serviceName = "unknown"
	}
	c := &KafkaConsumer{cfg: cfg, logger: log, serviceName: serviceName}
	if cfg.DLQTopic != "" {
		c.dlqProducer = NewKafkaProducer(cfg, serviceName, log)
	}
	return c
}

// Consume blocks until ctx is done. Fetch errors are logged and retried
// after a short pause.
func (c *KafkaConsumer) Consume(ctx context.Context, topic string, handler HandlerFunc) error {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  c.cfg.Brokers,
		GroupID:  c.cfg.GroupID,
		Topic:    topic,
		MinBytes: 10e3,
		MaxBytes: 10e6,
	})
	c.mu.Lock()
	c.reader = reader
	c.mu.Unlock()

	ctx = logging.WithServiceName(ctx, c.serviceName)
	c.logger.InfowCtx(ctx, "Started consuming",
		"topic", topic,
		"brokers", c.cfg.Brokers,
		"group_id", c.cfg.GroupID,
	)

	for {
		m, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.InfowCtx(ctx, "Stopped consuming", "topic", topic)
				return ctx.Err()
			}
			c.logger.ErrorwCtx(ctx, "Error fetching kafka message", "error", err, "topic", topic)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(fetchErrorDelay):
			}
			continue
		}

		metrics.IncKafkaMessagesRead(c.serviceName, topic)
		metrics.ObserveKafkaMessageSize(c.serviceName, topic, "in", len(m.Value))
		c.handleMessage(ctx, reader, m, handler)
	}
}

// handleMessage commits unless process leaves the message for redelivery.
func (c *KafkaConsumer) handleMessage(ctx context.Context, reader *kafka.Reader, m kafka.Message, handler HandlerFunc) {
	if c.process(ctx, m, handler) {
		c.commit(ctx, reader, m)
	}
}

// process reports whether m is settled: handled, dead-lettered, or not
// decodable at all. A failure caused by shutdown is not settled, so the
// message is fetched again after a restart or rebalance.
func (c *KafkaConsumer) process(ctx context.Context, m kafka.Message, handler HandlerFunc) bool {
	var envelope models.MessageEnvelope
	if err := json.Unmarshal(m.Value, &envelope); err != nil {
		c.logger.ErrorwCtx(ctx, "Dropping undecodable message",
			"error", err,
			"topic", m.Topic,
			"partition", m.Partition,
			"offset", m.Offset,
		)
		return true
	}

	msgCtx, span := tracing.StartConsumeSpan(ctx, m)
	defer span.End()
	msgCtx = messageContext(msgCtx, envelope)

	err := c.processMessageWithRetry(msgCtx, envelope, handler, m.Topic)
	if err == nil {
		return true
	}
	tracing.RecordError(span, err)

	if ctx.Err() != nil {
		c.logger.WarnwCtx(msgCtx, "Leaving message uncommitted on shutdown",
			"error", err,
			"topic", m.Topic,
			"offset", m.Offset,
		)
		return false
	}

	c.logger.ErrorwCtx(msgCtx, "Failed to process message",
		"error", err,
		"error_code", errors.Code(err),
		"topic", m.Topic,
	)

	if c.dlqProducer == nil {
		c.logger.WarnwCtx(msgCtx, "No DLQ configured, committing failed message", "topic", m.Topic)
		return true
	}
	reason := dlqReasonRetriesExhausted
	if retry.IsFatal(err) {
		reason = dlqReasonFatal
	}
	if dlqErr := c.sendToDLQ(msgCtx, envelope, err, m.Topic, reason); dlqErr != nil {
		c.logger.ErrorwCtx(msgCtx, "Failed to send message to DLQ", "error", dlqErr, "topic", m.Topic)
	}
	return true
}

func messageContext(ctx context.Context, env models.MessageEnvelope) context.Context {
	if env.Metadata.TraceID != "" {
		ctx = logging.WithTraceID(ctx, env.Metadata.TraceID)
	}
	if env.StreamID != "" {
		ctx = logging.WithStreamID(ctx, env.StreamID)
	}
	return logging.WithMessageID(ctx, env.ID)
}

func (c *KafkaConsumer) commit(ctx context.Context, reader *kafka.Reader, m kafka.Message) {
	// a settled message is committed even when shutdown began meanwhile
	ctx = context.WithoutCancel(ctx)
	if err := reader.CommitMessages(ctx, m); err != nil {
		c.logger.ErrorwCtx(ctx, "Failed to commit message",
			"error", err,
			"topic", m.Topic,
			"offset", m.Offset,
		)
	}
}

func (c *KafkaConsumer) retryPolicy() retry.Policy {
	r := c.cfg.Retry
	return retry.DefaultPolicy().Merge(retry.Policy{
		MaxAttempts:     r.MaxAttempts,
		InitialInterval: r.InitialInterval,
		MaxInterval:     r.MaxInterval,
		Multiplier:      r.Multiplier,
		MaxElapsedTime:  r.MaxElapsedTime,
	})
}

func (c *KafkaConsumer) processMessageWithRetry(ctx context.Context, envelope models.MessageEnvelope, handler HandlerFunc, topic string) error {
	policy := c.retryPolicy()

	return retry.Do(ctx, policy, func(ctx context.Context) error {
		err := errors.Guard(topic, func() error {
			return handler(ctx, envelope)
		})
		if errors.IsPanic(err) {
			c.logger.ErrorwCtx(ctx, "Panic recovered during message processing",
				"error", err,
				"topic", topic,
			)
		}
		return err
	}, func(attempt int, err error, next time.Duration) {
		metrics.RetryAttemptsTotal.WithLabelValues(c.serviceName, topic).Inc()
		c.logger.WarnwCtx(ctx, "Retrying message processing",
			"attempt", attempt,
			"max_attempts", policy.MaxAttempts,
			"next_delay", next,
			"error_code", errors.Code(err),
			"error", err,
			"topic", topic,
		)
	})
}

func (c *KafkaConsumer) sendToDLQ(ctx context.Context, envelope models.MessageEnvelope, cause error, sourceTopic, reason string) error {
	envelope.Metadata.DLQ = &models.DLQInfo{
		Reason:      cause.Error(),
		SourceTopic: sourceTopic,
		Timestamp:   time.Now().UTC(),
	}

	if err := c.dlqProducer.Publish(context.WithoutCancel(ctx), c.cfg.DLQTopic, envelope); err != nil {
		return fmt.Errorf("failed to publish to DLQ: %w", err)
	}

	metrics.DLQMessagesTotal.WithLabelValues(c.serviceName, sourceTopic, reason).Inc()
	c.logger.InfowCtx(ctx, "Message sent to DLQ",
		"source_topic", sourceTopic,
		"dlq_topic", c.cfg.DLQTopic,
		"reason", reason,
	)
	return nil
}

func (c *KafkaConsumer) Close() error {
	c.mu.Lock()
	reader := c.reader
	c.mu.Unlock()

	var errs []error
	if reader != nil {
		errs = append(errs, reader.Close())
	}
	if c.dlqProducer != nil {
		errs = append(errs, c.dlqProducer.Close())
	}
	return stderrors.Join(errs...)
}
