package events

import (
	"encoding/json"
	"time"
)

// Envelope is the wire shape of realtime messages published by the worker and
// fanned out by the gateway to live connections.
type Envelope struct {
	EventID        string          `json:"event_id"`
	EventType      string          `json:"event_type"`
	SourceService  string          `json:"source_service"`
	OccurredAtUTC  time.Time       `json:"occurred_at_utc"`
	AudienceType   string          `json:"audience_type,omitempty"`
	AudienceID     string          `json:"audience_id,omitempty"`
	Broadcast      string          `json:"broadcast,omitempty"`
	PayloadVersion int             `json:"payload_version"`
	Payload        json.RawMessage `json:"payload,omitempty"`
}
