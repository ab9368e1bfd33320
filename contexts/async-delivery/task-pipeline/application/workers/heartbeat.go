package workers

import (
	"context"
	"log/slog"
	"maps"
	"time"

	application "taskpipe/contexts/async-delivery/task-pipeline/application"
	"taskpipe/contexts/async-delivery/task-pipeline/domain/entities"
	"taskpipe/contexts/async-delivery/task-pipeline/ports"
)

// HeartbeatReporter upserts the liveness row of a worker role.
type HeartbeatReporter struct {
	Heartbeats ports.HeartbeatRepository
	Clock      ports.Clock
	WorkerName string
	Metadata   map[string]string
	Logger     *slog.Logger
}

func (h HeartbeatReporter) RunOnce(ctx context.Context) error {
	return h.report(ctx, entities.HeartbeatStatusRunning)
}

// Stop records a final stopped status so health checks fail fast on
// graceful shutdown instead of waiting for the freshness window.
func (h HeartbeatReporter) Stop(ctx context.Context) error {
	return h.report(ctx, entities.HeartbeatStatusStopped)
}

func (h HeartbeatReporter) report(ctx context.Context, status string) error {
	logger := application.ResolveLogger(h.Logger)
	now := time.Now().UTC()
	if h.Clock != nil {
		now = h.Clock.Now().UTC()
	}

	err := h.Heartbeats.UpsertHeartbeat(ctx, entities.WorkerHeartbeat{
		WorkerName: h.WorkerName,
		LastSeen:   now,
		Status:     status,
		Metadata:   maps.Clone(h.Metadata),
	})
	if err != nil {
		logger.Error("heartbeat upsert failed",
			"event", "worker_heartbeat_failed",
			"module", application.ModuleName,
			"layer", "worker",
			"worker_name", h.WorkerName,
			"status", status,
			"error", err.Error(),
		)
		return err
	}
	logger.Debug("heartbeat recorded",
		"event", "worker_heartbeat_recorded",
		"module", application.ModuleName,
		"layer", "worker",
		"worker_name", h.WorkerName,
		"status", status,
	)
	return nil
}
