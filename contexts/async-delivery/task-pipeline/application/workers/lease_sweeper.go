package workers

import (
	"context"
	"log/slog"
	"time"

	application "taskpipe/contexts/async-delivery/task-pipeline/application"
	"taskpipe/contexts/async-delivery/task-pipeline/ports"
)

const defaultLeaseTimeout = 5 * time.Minute

// LeaseSweeper returns processing jobs whose lease went stale (worker crash,
// lost connection) to pending so another worker can claim them.
type LeaseSweeper struct {
	Jobs         ports.JobRepository
	Clock        ports.Clock
	LeaseTimeout time.Duration
	Logger       *slog.Logger
}

func (s LeaseSweeper) RunOnce(ctx context.Context) (int, error) {
	logger := application.ResolveLogger(s.Logger)
	now := time.Now().UTC()
	if s.Clock != nil {
		now = s.Clock.Now().UTC()
	}
	timeout := s.LeaseTimeout
	if timeout <= 0 {
		timeout = defaultLeaseTimeout
	}

	reclaimed, err := s.Jobs.ReclaimExpiredLeases(ctx, now.Add(-timeout), now)
	if err != nil {
		logger.Error("lease sweep failed",
			"event", "job_lease_sweep_failed",
			"module", application.ModuleName,
			"layer", "worker",
			"error", err.Error(),
		)
		return 0, err
	}
	if reclaimed > 0 {
		logger.Warn("stale job leases reclaimed",
			"event", "job_lease_sweep_completed",
			"module", application.ModuleName,
			"layer", "worker",
			"reclaimed_count", reclaimed,
			"lease_timeout", timeout.String(),
		)
	}
	return reclaimed, nil
}
