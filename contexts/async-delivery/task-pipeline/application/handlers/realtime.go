package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	application "taskpipe/contexts/async-delivery/task-pipeline/application"
	domainerrors "taskpipe/contexts/async-delivery/task-pipeline/domain/errors"
	"taskpipe/contexts/async-delivery/task-pipeline/ports"
	"taskpipe/internal/shared/events"
)

const realtimeSourceService = "taskpipe-worker"

// RealtimeHandler publishes one realtime message per job. Reaching zero live
// connections is a successful delivery.
type RealtimeHandler struct {
	Publisher ports.RealtimePublisher
	Logger    *slog.Logger
}

func (h RealtimeHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	logger := application.ResolveLogger(h.Logger)

	var payload RealtimePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("decode realtime payload: %w: %v", domainerrors.ErrInvalidPayload, err)
	}
	channel, err := channelFor(payload)
	if err != nil {
		return err
	}

	message, err := json.Marshal(events.Envelope{
		EventID:        eventID(payload),
		EventType:      payload.Event,
		SourceService:  realtimeSourceService,
		OccurredAtUTC:  payload.OccurredAt.UTC(),
		AudienceType:   payload.AudienceType,
		AudienceID:     payload.AudienceID,
		Broadcast:      payload.Broadcast,
		PayloadVersion: 1,
		Payload:        payload.Data,
	})
	if err != nil {
		return err
	}

	receivers, err := h.Publisher.Publish(ctx, channel, message)
	if err != nil {
		return fmt.Errorf("publish realtime message on %s: %w", channel, err)
	}

	logger.Debug("realtime message published",
		"event", "realtime_push_published",
		"module", application.ModuleName,
		"layer", "handler",
		"channel", channel,
		"event_type", payload.Event,
		"receivers", receivers,
	)
	return nil
}

func channelFor(payload RealtimePayload) (string, error) {
	if strings.TrimSpace(payload.Event) == "" {
		return "", fmt.Errorf("realtime payload requires event: %w", domainerrors.ErrInvalidPayload)
	}
	if strings.TrimSpace(payload.AudienceType) != "" && strings.TrimSpace(payload.AudienceID) != "" {
		return events.AudienceChannel(payload.AudienceType, payload.AudienceID), nil
	}
	if strings.TrimSpace(payload.Broadcast) != "" {
		return events.BroadcastChannel(payload.Broadcast), nil
	}
	return "", fmt.Errorf("realtime payload requires audience or broadcast: %w", domainerrors.ErrInvalidPayload)
}

func eventID(payload RealtimePayload) string {
	if payload.EventID == 0 {
		return ""
	}
	return strconv.FormatInt(payload.EventID, 10)
}
