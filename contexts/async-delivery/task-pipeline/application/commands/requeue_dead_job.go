package commands

import (
	"context"
	"log/slog"
	"time"

	application "taskpipe/contexts/async-delivery/task-pipeline/application"
	"taskpipe/contexts/async-delivery/task-pipeline/domain/entities"
	"taskpipe/contexts/async-delivery/task-pipeline/ports"
)

// RequeueDeadJobUseCase is the manual recovery path for dead jobs. No
// automatic process calls it.
type RequeueDeadJobUseCase struct {
	Jobs   ports.JobRepository
	Clock  ports.Clock
	Logger *slog.Logger
}

func (u RequeueDeadJobUseCase) Execute(ctx context.Context, jobID int64, operator string) (entities.Job, error) {
	logger := application.ResolveLogger(u.Logger)
	now := time.Now().UTC()
	if u.Clock != nil {
		now = u.Clock.Now().UTC()
	}

	job, err := u.Jobs.RequeueDeadJob(ctx, jobID, now)
	if err != nil {
		logger.Warn("dead job requeue failed",
			"event", "job_requeue_failed",
			"module", application.ModuleName,
			"layer", "application",
			"job_id", jobID,
			"operator", operator,
			"error", err.Error(),
		)
		return entities.Job{}, err
	}

	logger.Info("dead job requeued",
		"event", "job_requeued",
		"module", application.ModuleName,
		"layer", "application",
		"job_id", job.ID,
		"job_type", job.JobType,
		"operator", operator,
	)
	return job, nil
}
