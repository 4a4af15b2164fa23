package reload

import (
	"context"
	"time"

	"github.com/google/uuid"

	"ratingcore/internal/logger"
	"ratingcore/pkg/models"
)

type CacheReloader interface {
	Reload(ctx context.Context, names ...string) ([]Outcome, error)
}

// Handler consumes reload envelopes from the config update topic.
type Handler struct {
	reloader CacheReloader
	logger   logger.Logger
}

func NewHandler(reloader CacheReloader, log logger.Logger) *Handler {
	return &Handler{reloader: reloader, logger: log}
}

// HandleReloadEvent reloads the caches named by the event. Envelopes of
// other types, and unknown event types, are ignored.
func (h *Handler) HandleReloadEvent(ctx context.Context, envelope models.MessageEnvelope) error {
	if envelope.Type != models.MessageTypeReload || envelope.Reload == nil {
		h.logger.WarnwCtx(ctx, "Ignoring non-reload message on config topic",
			"id", envelope.ID,
			"type", envelope.Type,
		)
		return nil
	}

	event := envelope.Reload
	switch event.EventType {
	case models.EventTypeCacheDataUpdated, models.EventTypeCacheReload:
	default:
		h.logger.DebugwCtx(ctx, "Ignoring config event", "id", envelope.ID, "event_type", event.EventType)
		return nil
	}

	h.logger.InfowCtx(ctx, "Received cache reload event",
		"event_id", event.ID,
		"event_type", event.EventType,
		"action", event.Action,
		"caches", event.Caches,
		"requested_by", event.RequestedBy,
	)

	outcomes, err := h.reloader.Reload(ctx, event.Caches...)
	if err != nil {
		h.logger.ErrorwCtx(ctx, "Failed to reload caches after reload event", "error", err)
		return err
	}

	h.logger.InfowCtx(ctx, "Caches reloaded after reload event", "count", len(outcomes))
	return nil
}

// NewReloadEnvelope builds the envelope published by operators to request a
// reload of caches, or of every cache when caches is empty.
func NewReloadEnvelope(caches []string, action, requestedBy string) models.MessageEnvelope {
	if action == "" {
		action = models.ActionReload
	}
	event := models.ReloadEvent{
		ID:          uuid.New().String(),
		EventType:   models.EventTypeCacheReload,
		Caches:      caches,
		Action:      action,
		Timestamp:   time.Now().UTC(),
		RequestedBy: requestedBy,
	}
	return *models.NewMessageEnvelopeBuilder().
		WithSource(requestedBy).
		WithReload(event).
		Build()
}
