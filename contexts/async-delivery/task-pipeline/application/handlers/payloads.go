package handlers

import (
	"encoding/json"
	"time"
)

const (
	JobTypeSendEmail    = "send_email"
	JobTypeRealtimePush = "realtime_push"
)

// EmailPayload is the payload of a send_email job.
type EmailPayload struct {
	To             string `json:"to"`
	Subject        string `json:"subject"`
	Text           string `json:"text"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// RealtimePayload is the payload of a realtime_push job. Exactly one of
// Broadcast or the AudienceType/AudienceID pair selects the recipients.
type RealtimePayload struct {
	Event        string          `json:"event"`
	AudienceType string          `json:"audience_type,omitempty"`
	AudienceID   string          `json:"audience_id,omitempty"`
	Broadcast    string          `json:"broadcast,omitempty"`
	Data         json.RawMessage `json:"data,omitempty"`
	EventID      int64           `json:"event_id,omitempty"`
	OccurredAt   time.Time       `json:"occurred_at"`
}
