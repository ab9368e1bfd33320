package entities

import (
	"encoding/json"
	"strings"
	"time"

	domainerrors "taskpipe/contexts/async-delivery/task-pipeline/domain/errors"
)

type QueueStatus string

const (
	QueueStatusPending QueueStatus = "pending"
	QueueStatusQueued  QueueStatus = "queued"
)

// OutboxEvent is an append-only fact written by a producer in its own
// transaction. The bridge is the only writer of QueueStatus/QueuedAt.
type OutboxEvent struct {
	ID          int64
	EventName   string
	CreatedAt   time.Time
	CompanyID   string
	DriverID    string
	RequestID   string
	TicketID    string
	Metadata    json.RawMessage
	QueueStatus QueueStatus
	QueuedAt    *time.Time
}

func NewOutboxEvent(eventName string, metadata json.RawMessage, createdAt time.Time) (OutboxEvent, error) {
	if strings.TrimSpace(eventName) == "" {
		return OutboxEvent{}, domainerrors.ErrInvalidEvent
	}
	if len(metadata) == 0 {
		metadata = json.RawMessage(`{}`)
	}
	if !json.Valid(metadata) {
		return OutboxEvent{}, domainerrors.ErrInvalidEvent
	}
	return OutboxEvent{
		EventName:   strings.TrimSpace(eventName),
		CreatedAt:   createdAt.UTC(),
		Metadata:    append(json.RawMessage(nil), metadata...),
		QueueStatus: QueueStatusPending,
	}, nil
}

func (e OutboxEvent) DecodeMetadata(target any) error {
	if len(e.Metadata) == 0 {
		return nil
	}
	return json.Unmarshal(e.Metadata, target)
}
