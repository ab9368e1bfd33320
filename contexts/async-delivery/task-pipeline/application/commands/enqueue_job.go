package commands

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	application "taskpipe/contexts/async-delivery/task-pipeline/application"
	"taskpipe/contexts/async-delivery/task-pipeline/domain/entities"
	domainerrors "taskpipe/contexts/async-delivery/task-pipeline/domain/errors"
	"taskpipe/contexts/async-delivery/task-pipeline/ports"
)

type EnqueueJobCommand struct {
	JobType        string
	Payload        json.RawMessage
	RunAt          *time.Time
	MaxAttempts    int
	IdempotencyKey string
}

type EnqueueJobResult struct {
	Job     entities.Job
	Created bool
}

// EnqueueJobUseCase is the direct enqueue path for business code that does
// not go through the outbox.
type EnqueueJobUseCase struct {
	Jobs               ports.JobRepository
	Clock              ports.Clock
	DefaultMaxAttempts int
	Logger             *slog.Logger
}

func (u EnqueueJobUseCase) Execute(ctx context.Context, cmd EnqueueJobCommand) (EnqueueJobResult, error) {
	logger := application.ResolveLogger(u.Logger)
	now := time.Now().UTC()
	if u.Clock != nil {
		now = u.Clock.Now().UTC()
	}

	if len(cmd.Payload) > 0 && !isJSONObject(cmd.Payload) {
		return EnqueueJobResult{}, domainerrors.ErrInvalidPayload
	}
	maxAttempts := cmd.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = u.DefaultMaxAttempts
	}
	spec := entities.JobSpec{
		JobType:        cmd.JobType,
		Payload:        cmd.Payload,
		MaxAttempts:    maxAttempts,
		IdempotencyKey: cmd.IdempotencyKey,
	}
	if cmd.RunAt != nil {
		spec.RunAt = cmd.RunAt.UTC()
	}

	job, err := entities.NewJob(spec, now)
	if err != nil {
		return EnqueueJobResult{}, err
	}

	stored, created, err := u.Jobs.EnqueueJob(ctx, job)
	if err != nil {
		logger.Error("enqueue job failed",
			"event", "job_enqueue_failed",
			"module", application.ModuleName,
			"layer", "application",
			"job_type", job.JobType,
			"idempotency_key", job.IdempotencyKey,
			"error", err.Error(),
		)
		return EnqueueJobResult{}, err
	}

	if created {
		logger.Info("job enqueued",
			"event", "job_enqueued",
			"module", application.ModuleName,
			"layer", "application",
			"job_id", stored.ID,
			"job_type", stored.JobType,
			"run_at", stored.RunAt,
		)
	} else {
		logger.Info("job enqueue skipped by idempotency key",
			"event", "job_enqueue_replayed",
			"module", application.ModuleName,
			"layer", "application",
			"job_id", stored.ID,
			"job_type", stored.JobType,
			"idempotency_key", job.IdempotencyKey,
		)
	}
	return EnqueueJobResult{Job: stored, Created: created}, nil
}

func isJSONObject(raw json.RawMessage) bool {
	var object map[string]json.RawMessage
	return json.Unmarshal(raw, &object) == nil && object != nil
}
