package translators

import (
	"encoding/json"
	"fmt"
	"strings"

	"taskpipe/contexts/async-delivery/task-pipeline/application/handlers"
	"taskpipe/contexts/async-delivery/task-pipeline/domain/entities"
)

const defaultBroadcastClass = "admins"

var RealtimeEventNames = []string{
	"rating_created",
	"payment_succeeded",
	"payment_failed",
	"request_matched",
	"request_created",
	"request_accepted",
	"request_started",
	"request_completed",
	"request_cancelled",
	"ticket_created",
	"ticket_updated",
}

type audienceMetadata struct {
	AudienceType string `json:"audience_type"`
	AudienceID   string `json:"audience_id"`
	Broadcast    string `json:"broadcast"`
}

// RealtimeTranslator turns rating, payment, match and lifecycle events into
// realtime_push jobs addressed to one audience or a broadcast class.
type RealtimeTranslator struct {
	MaxAttempts int
}

func (t RealtimeTranslator) Translate(event entities.OutboxEvent) (entities.JobSpec, bool, error) {
	var meta audienceMetadata
	if err := event.DecodeMetadata(&meta); err != nil {
		return entities.JobSpec{}, false, fmt.Errorf("decode %s metadata: %w", event.EventName, err)
	}

	payload := handlers.RealtimePayload{
		Event:      event.EventName,
		Data:       event.Metadata,
		EventID:    event.ID,
		OccurredAt: event.CreatedAt.UTC(),
	}
	resolveAudience(&payload, event, meta)

	raw, err := json.Marshal(payload)
	if err != nil {
		return entities.JobSpec{}, false, err
	}
	return sourceSpec(event, handlers.JobTypeRealtimePush, raw, t.MaxAttempts), true, nil
}

// resolveAudience prefers explicit metadata, then the driver reference, then
// the company reference, falling back to the admin broadcast.
func resolveAudience(payload *handlers.RealtimePayload, event entities.OutboxEvent, meta audienceMetadata) {
	switch {
	case strings.TrimSpace(meta.AudienceType) != "" && strings.TrimSpace(meta.AudienceID) != "":
		payload.AudienceType = strings.TrimSpace(meta.AudienceType)
		payload.AudienceID = strings.TrimSpace(meta.AudienceID)
	case strings.TrimSpace(meta.Broadcast) != "":
		payload.Broadcast = strings.TrimSpace(meta.Broadcast)
	case event.DriverID != "":
		payload.AudienceType = "driver"
		payload.AudienceID = event.DriverID
	case event.CompanyID != "":
		payload.AudienceType = "company"
		payload.AudienceID = event.CompanyID
	default:
		payload.Broadcast = defaultBroadcastClass
	}
}
