package workers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	application "taskpipe/contexts/async-delivery/task-pipeline/application"
	"taskpipe/contexts/async-delivery/task-pipeline/domain/entities"
	domainerrors "taskpipe/contexts/async-delivery/task-pipeline/domain/errors"
	"taskpipe/contexts/async-delivery/task-pipeline/domain/services"
	"taskpipe/contexts/async-delivery/task-pipeline/ports"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const (
	defaultJobBatchSize   = 10
	defaultHandlerTimeout = 60 * time.Second
	recordTimeout         = 10 * time.Second
	tracerName            = "taskpipe/task-pipeline/workers"
)

type RunResult struct {
	Claimed   int
	Succeeded int
	Retried   int
	Dead      int
	LeaseLost int
	Released  int
}

// JobRunner claims a batch of eligible jobs and executes them. Handlers run
// outside the claim transaction and every outcome is recorded by its own
// update, so one job's failure never touches another job of the batch.
type JobRunner struct {
	Jobs           ports.JobRepository
	Handlers       ports.HandlerRegistry
	Clock          ports.Clock
	WorkerID       string
	BatchSize      int
	Concurrency    int
	HandlerTimeout time.Duration
	Retry          services.RetryPolicy
	Tracer         trace.Tracer
	Logger         *slog.Logger
}

func (r JobRunner) RunOnce(ctx context.Context) (RunResult, error) {
	logger := application.ResolveLogger(r.Logger)
	limit := r.BatchSize
	if limit <= 0 {
		limit = defaultJobBatchSize
	}

	claimed, err := r.Jobs.ClaimJobs(ctx, r.WorkerID, limit, r.now())
	if err != nil {
		logger.Error("job claim failed",
			"event", "job_claim_failed",
			"module", application.ModuleName,
			"layer", "worker",
			"worker_id", r.WorkerID,
			"error", err.Error(),
		)
		return RunResult{}, err
	}
	if len(claimed) == 0 {
		return RunResult{}, nil
	}

	var (
		mu     sync.Mutex
		result = RunResult{Claimed: len(claimed)}
	)
	group := new(errgroup.Group)
	group.SetLimit(max(r.Concurrency, 1))
	for _, job := range claimed {
		group.Go(func() error {
			outcome := r.process(ctx, job)
			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case outcomeDone:
				result.Succeeded++
			case outcomeRetry:
				result.Retried++
			case outcomeDead:
				result.Dead++
			case outcomeLeaseLost:
				result.LeaseLost++
			case outcomeReleased:
				result.Released++
			}
			return nil
		})
	}
	_ = group.Wait()

	logger.Info("job batch processed",
		"event", "job_batch_processed",
		"module", application.ModuleName,
		"layer", "worker",
		"worker_id", r.WorkerID,
		"claimed_count", result.Claimed,
		"succeeded_count", result.Succeeded,
		"retried_count", result.Retried,
		"dead_count", result.Dead,
		"lease_lost_count", result.LeaseLost,
		"released_count", result.Released,
	)
	return result, nil
}

type jobOutcome int

const (
	outcomeUnrecorded jobOutcome = iota
	outcomeDone
	outcomeRetry
	outcomeDead
	outcomeLeaseLost
	outcomeReleased
)

func (r JobRunner) process(ctx context.Context, job entities.Job) jobOutcome {
	// Jobs still waiting in the batch at shutdown go back untouched.
	if ctx.Err() != nil {
		return r.recordRelease(ctx, job, ctx.Err())
	}

	ctx, span := r.tracer().Start(ctx, "job.execute", trace.WithAttributes(
		attribute.Int64("job.id", job.ID),
		attribute.String("job.type", job.JobType),
		attribute.Int("job.attempt", job.Attempts+1),
		attribute.Int("job.max_attempts", job.MaxAttempts),
	))
	defer span.End()

	handler, err := r.Handlers.Lookup(job.JobType)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "unknown job type")
		return r.recordFailure(ctx, job, services.OnFatal(job, err.Error()))
	}

	if err := r.invoke(ctx, handler, job); err != nil {
		if ctx.Err() != nil {
			return r.recordRelease(ctx, job, err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return r.recordFailure(ctx, job, r.Retry.OnFailure(job, r.now(), err.Error()))
	}

	span.SetStatus(codes.Ok, "")
	return r.recordSuccess(ctx, job)
}

// invoke enforces the handler timeout even when the handler ignores its
// context; a timed out handler keeps running in the background but the job
// is failed and released.
func (r JobRunner) invoke(ctx context.Context, handler ports.JobHandler, job entities.Job) error {
	timeout := r.HandlerTimeout
	if timeout <= 0 {
		timeout = defaultHandlerTimeout
	}
	handlerCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if recovered := recover(); recovered != nil {
				done <- fmt.Errorf("handler panic: %v", recovered)
			}
		}()
		done <- handler.Handle(handlerCtx, job.Payload)
	}()

	select {
	case err := <-done:
		return err
	case <-handlerCtx.Done():
		select {
		case err := <-done:
			return err
		default:
		}
		if errors.Is(handlerCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("handler timed out after %s", timeout)
		}
		return fmt.Errorf("handler interrupted: %w", handlerCtx.Err())
	}
}

func (r JobRunner) recordSuccess(ctx context.Context, job entities.Job) jobOutcome {
	logger := application.ResolveLogger(r.Logger)
	recordCtx, cancel := detached(ctx)
	defer cancel()

	if err := r.Jobs.MarkJobDone(recordCtx, job.ID, r.WorkerID, r.now()); err != nil {
		return r.recordError(job, err)
	}
	logger.Info("job completed",
		"event", "job_completed",
		"module", application.ModuleName,
		"layer", "worker",
		"job_id", job.ID,
		"job_type", job.JobType,
		"attempt", job.Attempts+1,
	)
	return outcomeDone
}

func (r JobRunner) recordFailure(ctx context.Context, job entities.Job, failure entities.JobFailure) jobOutcome {
	logger := application.ResolveLogger(r.Logger)
	recordCtx, cancel := detached(ctx)
	defer cancel()

	if err := r.Jobs.MarkJobFailed(recordCtx, job.ID, r.WorkerID, failure, r.now()); err != nil {
		return r.recordError(job, err)
	}

	if failure.Status == entities.JobStatusDead {
		logger.Error("job moved to dead",
			"event", "job_dead",
			"module", application.ModuleName,
			"layer", "worker",
			"job_id", job.ID,
			"job_type", job.JobType,
			"attempts", failure.Attempts,
			"max_attempts", job.MaxAttempts,
			"error", failure.LastError,
		)
		return outcomeDead
	}
	logger.Warn("job failed, retry scheduled",
		"event", "job_retry_scheduled",
		"module", application.ModuleName,
		"layer", "worker",
		"job_id", job.ID,
		"job_type", job.JobType,
		"attempts", failure.Attempts,
		"max_attempts", job.MaxAttempts,
		"run_at", failure.RunAt,
		"error", failure.LastError,
	)
	return outcomeRetry
}

// recordRelease returns a job interrupted by shutdown to pending. The
// interruption is not the handler's failure, so attempts and run_at stay.
func (r JobRunner) recordRelease(ctx context.Context, job entities.Job, cause error) jobOutcome {
	logger := application.ResolveLogger(r.Logger)
	recordCtx, cancel := detached(ctx)
	defer cancel()

	if err := r.Jobs.ReleaseJob(recordCtx, job.ID, r.WorkerID, r.now()); err != nil {
		return r.recordError(job, err)
	}
	logger.Info("job released on shutdown",
		"event", "job_released",
		"module", application.ModuleName,
		"layer", "worker",
		"job_id", job.ID,
		"job_type", job.JobType,
		"attempts", job.Attempts,
		"cause", cause.Error(),
	)
	return outcomeReleased
}

func (r JobRunner) recordError(job entities.Job, err error) jobOutcome {
	logger := application.ResolveLogger(r.Logger)
	if errors.Is(err, domainerrors.ErrLeaseLost) {
		logger.Warn("job lease lost before outcome was recorded",
			"event", "job_lease_lost",
			"module", application.ModuleName,
			"layer", "worker",
			"job_id", job.ID,
			"job_type", job.JobType,
			"worker_id", r.WorkerID,
		)
		return outcomeLeaseLost
	}
	// The job stays processing; the lease sweeper will hand it out again.
	logger.Error("job outcome update failed",
		"event", "job_outcome_update_failed",
		"module", application.ModuleName,
		"layer", "worker",
		"job_id", job.ID,
		"job_type", job.JobType,
		"error", err.Error(),
	)
	return outcomeUnrecorded
}

func (r JobRunner) now() time.Time {
	if r.Clock != nil {
		return r.Clock.Now().UTC()
	}
	return time.Now().UTC()
}

func (r JobRunner) tracer() trace.Tracer {
	if r.Tracer != nil {
		return r.Tracer
	}
	return otel.Tracer(tracerName)
}

// detached keeps outcome writes alive through shutdown cancellation.
func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
}
