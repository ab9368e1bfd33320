package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
)

// Message is one outbox row. Producers append it inside the same DB
// transaction as the state change it describes; the bridge later turns it
// into a job.
type Message struct {
	EventName string
	CompanyID string
	DriverID  string
	RequestID string
	TicketID  string
	Metadata  json.RawMessage
	CreatedAt time.Time
}

// Appended is the store-assigned identity of an appended message.
type Appended struct {
	ID        int64
	CreatedAt time.Time
}

var ErrEventNameRequired = errors.New("outbox event name is required")

const insertStatement = `INSERT INTO outbox_events
	(event_name, created_at, company_id, driver_id, request_id, ticket_id, metadata, queue_status)
VALUES (?, ?, ?, ?, ?, ?, ?::jsonb, 'pending')
RETURNING id, created_at`

// Append writes msg through tx, which may be a plain handle or an open
// transaction owned by the caller.
func Append(ctx context.Context, tx *gorm.DB, msg Message) (Appended, error) {
	name := strings.TrimSpace(msg.EventName)
	if name == "" {
		return Appended{}, ErrEventNameRequired
	}
	metadata := "{}"
	if len(msg.Metadata) > 0 {
		if !json.Valid(msg.Metadata) {
			return Appended{}, errors.New("outbox metadata must be valid json")
		}
		metadata = string(msg.Metadata)
	}
	createdAt := msg.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	var appended Appended
	err := tx.WithContext(ctx).Raw(insertStatement,
		name,
		createdAt,
		nullable(msg.CompanyID),
		nullable(msg.DriverID),
		nullable(msg.RequestID),
		nullable(msg.TicketID),
		metadata,
	).Scan(&appended).Error
	if err != nil {
		return Appended{}, err
	}
	appended.CreatedAt = appended.CreatedAt.UTC()
	return appended, nil
}

func nullable(value string) any {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return value
}
