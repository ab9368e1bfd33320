package queries

import (
	"context"
	"log/slog"
	"time"

	application "taskpipe/contexts/async-delivery/task-pipeline/application"
	"taskpipe/contexts/async-delivery/task-pipeline/domain/entities"
	"taskpipe/contexts/async-delivery/task-pipeline/ports"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

type EventStatus struct {
	Event  entities.OutboxEvent
	Job    *entities.Job
	Status entities.EffectiveStatus
}

type WorkerHealth struct {
	Heartbeat entities.WorkerHeartbeat
	Healthy   bool
	Age       time.Duration
}

// QueryUseCase serves the read side used by dashboards, health checks and
// dead-letter inspection.
type QueryUseCase struct {
	Outbox             ports.OutboxStore
	Jobs               ports.JobRepository
	Heartbeats         ports.HeartbeatRepository
	Clock              ports.Clock
	HeartbeatFreshness time.Duration
	Logger             *slog.Logger
}

func (q QueryUseCase) GetJob(ctx context.Context, jobID int64) (entities.Job, error) {
	return q.Jobs.GetJob(ctx, jobID)
}

func (q QueryUseCase) ListJobs(ctx context.Context, filter ports.JobFilter) ([]entities.Job, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	return q.Jobs.ListJobs(ctx, filter)
}

func (q QueryUseCase) ListDeadJobs(ctx context.Context, limit int) ([]entities.Job, error) {
	return q.ListJobs(ctx, ports.JobFilter{Status: entities.JobStatusDead, Limit: limit})
}

func (q QueryUseCase) QueueStats(ctx context.Context) (ports.QueueStats, error) {
	return q.Jobs.CountJobsByStatus(ctx)
}

// EffectiveEventStatus joins an outbox event with the job it produced.
func (q QueryUseCase) EffectiveEventStatus(ctx context.Context, eventID int64) (EventStatus, error) {
	logger := application.ResolveLogger(q.Logger)
	event, err := q.Outbox.GetEvent(ctx, eventID)
	if err != nil {
		return EventStatus{}, err
	}

	var linked *entities.Job
	if event.QueueStatus == entities.QueueStatusQueued {
		job, found, err := q.Jobs.GetJobBySourceEvent(ctx, eventID)
		if err != nil {
			logger.Error("effective status job lookup failed",
				"event", "outbox_effective_status_failed",
				"module", application.ModuleName,
				"layer", "application",
				"outbox_event_id", eventID,
				"error", err.Error(),
			)
			return EventStatus{}, err
		}
		if found {
			linked = &job
		}
	}

	return EventStatus{
		Event:  event,
		Job:    linked,
		Status: entities.ResolveEffectiveStatus(event, linked),
	}, nil
}

func (q QueryUseCase) WorkerHealth(ctx context.Context, workerName string) (WorkerHealth, error) {
	heartbeat, err := q.Heartbeats.GetHeartbeat(ctx, workerName)
	if err != nil {
		return WorkerHealth{}, err
	}
	now := time.Now().UTC()
	if q.Clock != nil {
		now = q.Clock.Now().UTC()
	}
	window := q.HeartbeatFreshness
	if window <= 0 {
		window = 60 * time.Second
	}
	return WorkerHealth{
		Heartbeat: heartbeat,
		Healthy:   heartbeat.IsFresh(now, window),
		Age:       now.Sub(heartbeat.LastSeen),
	}, nil
}
