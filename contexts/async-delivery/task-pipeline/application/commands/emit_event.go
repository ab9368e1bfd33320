package commands

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	application "taskpipe/contexts/async-delivery/task-pipeline/application"
	"taskpipe/contexts/async-delivery/task-pipeline/domain/entities"
	"taskpipe/contexts/async-delivery/task-pipeline/ports"
)

type EmitEventCommand struct {
	EventName string
	Metadata  json.RawMessage
	CompanyID string
	DriverID  string
	RequestID string
	TicketID  string
}

// EmitEventUseCase appends a standalone outbox event. Producers that change
// business state write their events inside their own transaction instead.
type EmitEventUseCase struct {
	Outbox ports.OutboxStore
	Clock  ports.Clock
	Logger *slog.Logger
}

func (u EmitEventUseCase) Execute(ctx context.Context, cmd EmitEventCommand) (entities.OutboxEvent, error) {
	logger := application.ResolveLogger(u.Logger)
	now := time.Now().UTC()
	if u.Clock != nil {
		now = u.Clock.Now().UTC()
	}

	event, err := entities.NewOutboxEvent(cmd.EventName, cmd.Metadata, now)
	if err != nil {
		return entities.OutboxEvent{}, err
	}
	event.CompanyID = cmd.CompanyID
	event.DriverID = cmd.DriverID
	event.RequestID = cmd.RequestID
	event.TicketID = cmd.TicketID

	stored, err := u.Outbox.AppendEvent(ctx, event)
	if err != nil {
		logger.Error("outbox event append failed",
			"event", "outbox_event_append_failed",
			"module", application.ModuleName,
			"layer", "application",
			"event_name", event.EventName,
			"error", err.Error(),
		)
		return entities.OutboxEvent{}, err
	}
	logger.Info("outbox event appended",
		"event", "outbox_event_appended",
		"module", application.ModuleName,
		"layer", "application",
		"outbox_event_id", stored.ID,
		"event_name", stored.EventName,
	)
	return stored, nil
}
