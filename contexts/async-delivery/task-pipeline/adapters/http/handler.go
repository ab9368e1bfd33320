package httpadapter

import (
	"context"
	"log/slog"
	"strings"
	"time"

	application "taskpipe/contexts/async-delivery/task-pipeline/application"
	"taskpipe/contexts/async-delivery/task-pipeline/application/commands"
	"taskpipe/contexts/async-delivery/task-pipeline/application/queries"
	"taskpipe/contexts/async-delivery/task-pipeline/domain/entities"
	domainerrors "taskpipe/contexts/async-delivery/task-pipeline/domain/errors"
	"taskpipe/contexts/async-delivery/task-pipeline/ports"
	httptransport "taskpipe/contexts/async-delivery/task-pipeline/transport/http"
)

type Handler struct {
	Queries    queries.QueryUseCase
	EnqueueJob commands.EnqueueJobUseCase
	RequeueJob commands.RequeueDeadJobUseCase
	Logger     *slog.Logger
}

// ListJobsHandler godoc
// @Summary List jobs
// @Description Returns jobs newest first, optionally filtered by status and job type.
// @Tags task-pipeline
// @Produce json
// @Param status query string false "pending, processing, done or dead"
// @Param job_type query string false "Job type"
// @Param limit query int false "Page size (default 50, max 500)"
// @Success 200 {object} httptransport.ListJobsResponse
// @Failure 400 {object} httptransport.ErrorResponse
// @Failure 500 {object} httptransport.ErrorResponse
// @Router /v1/jobs [get]
func (h Handler) ListJobsHandler(ctx context.Context, req httptransport.ListJobsRequest) (httptransport.ListJobsResponse, error) {
	status := entities.JobStatus(strings.TrimSpace(req.Status))
	if status != "" && !status.Valid() {
		return httptransport.ListJobsResponse{}, domainerrors.ErrInvalidJobFilter
	}
	items, err := h.Queries.ListJobs(ctx, ports.JobFilter{
		Status:  status,
		JobType: req.JobType,
		Limit:   req.Limit,
	})
	if err != nil {
		return httptransport.ListJobsResponse{}, err
	}
	return httptransport.ListJobsResponse{Items: mapJobs(items)}, nil
}

// GetJobHandler godoc
// @Summary Get job
// @Tags task-pipeline
// @Produce json
// @Param job_id path int true "Job id"
// @Success 200 {object} httptransport.GetJobResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Router /v1/jobs/{job_id} [get]
func (h Handler) GetJobHandler(ctx context.Context, jobID int64) (httptransport.GetJobResponse, error) {
	job, err := h.Queries.GetJob(ctx, jobID)
	if err != nil {
		return httptransport.GetJobResponse{}, err
	}
	return httptransport.GetJobResponse{Item: mapJob(job)}, nil
}

// QueueStatsHandler godoc
// @Summary Queue depth per status
// @Description A growing dead count is the operational signal for stuck jobs.
// @Tags task-pipeline
// @Produce json
// @Success 200 {object} httptransport.QueueStatsResponse
// @Router /v1/jobs/stats [get]
func (h Handler) QueueStatsHandler(ctx context.Context) (httptransport.QueueStatsResponse, error) {
	stats, err := h.Queries.QueueStats(ctx)
	if err != nil {
		return httptransport.QueueStatsResponse{}, err
	}
	return httptransport.QueueStatsResponse{
		Pending:    stats.Pending,
		Processing: stats.Processing,
		Done:       stats.Done,
		Dead:       stats.Dead,
	}, nil
}

// EnqueueJobHandler godoc
// @Summary Enqueue a job directly
// @Description Bypasses the outbox. A repeated Idempotency-Key returns the existing job with created=false.
// @Tags task-pipeline
// @Accept json
// @Produce json
// @Param Idempotency-Key header string false "Deduplication key"
// @Param request body httptransport.EnqueueJobRequest true "Job"
// @Success 201 {object} httptransport.EnqueueJobResponse
// @Success 200 {object} httptransport.EnqueueJobResponse
// @Failure 400 {object} httptransport.ErrorResponse
// @Router /v1/jobs [post]
func (h Handler) EnqueueJobHandler(
	ctx context.Context,
	idempotencyKey string,
	req httptransport.EnqueueJobRequest,
) (httptransport.EnqueueJobResponse, error) {
	cmd := commands.EnqueueJobCommand{
		JobType:        req.JobType,
		Payload:        req.Payload,
		MaxAttempts:    req.MaxAttempts,
		IdempotencyKey: idempotencyKey,
	}
	if strings.TrimSpace(req.RunAt) != "" {
		runAt, err := time.Parse(time.RFC3339, strings.TrimSpace(req.RunAt))
		if err != nil {
			return httptransport.EnqueueJobResponse{}, domainerrors.ErrInvalidJob
		}
		cmd.RunAt = &runAt
	}

	result, err := h.EnqueueJob.Execute(ctx, cmd)
	if err != nil {
		return httptransport.EnqueueJobResponse{}, err
	}
	return httptransport.EnqueueJobResponse{
		JobID:   result.Job.ID,
		Created: result.Created,
	}, nil
}

// RequeueJobHandler godoc
// @Summary Requeue a dead job
// @Description Manual intervention only. Resets attempts and schedules the job immediately.
// @Tags task-pipeline
// @Produce json
// @Param job_id path int true "Job id"
// @Param X-Operator-Id header string false "Operator performing the requeue"
// @Success 200 {object} httptransport.RequeueJobResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Failure 409 {object} httptransport.ErrorResponse
// @Router /v1/jobs/{job_id}/requeue [post]
func (h Handler) RequeueJobHandler(ctx context.Context, jobID int64, operator string) (httptransport.RequeueJobResponse, error) {
	job, err := h.RequeueJob.Execute(ctx, jobID, operator)
	if err != nil {
		return httptransport.RequeueJobResponse{}, err
	}
	return httptransport.RequeueJobResponse{Item: mapJob(job)}, nil
}

// EventStatusHandler godoc
// @Summary Effective status of an outbox event
// @Description pending (not bridged), dropped (bridged without a job) or the status of its job.
// @Tags task-pipeline
// @Produce json
// @Param event_id path int true "Outbox event id"
// @Success 200 {object} httptransport.EventStatusResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Router /v1/outbox/events/{event_id}/status [get]
func (h Handler) EventStatusHandler(ctx context.Context, eventID int64) (httptransport.EventStatusResponse, error) {
	result, err := h.Queries.EffectiveEventStatus(ctx, eventID)
	if err != nil {
		return httptransport.EventStatusResponse{}, err
	}
	resp := httptransport.EventStatusResponse{
		EventID:     result.Event.ID,
		EventName:   result.Event.EventName,
		QueueStatus: string(result.Event.QueueStatus),
		QueuedAt:    formatTimePtr(result.Event.QueuedAt),
		Status:      string(result.Status),
	}
	if result.Job != nil {
		job := mapJob(*result.Job)
		resp.Job = &job
	}
	return resp, nil
}

// WorkerHealthHandler godoc
// @Summary Worker liveness
// @Description Healthy when the worker role reported running within the freshness window.
// @Tags task-pipeline
// @Produce json
// @Param worker_name path string true "Worker role name"
// @Success 200 {object} httptransport.WorkerHealthResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Router /v1/workers/{worker_name}/health [get]
func (h Handler) WorkerHealthHandler(ctx context.Context, workerName string) (httptransport.WorkerHealthResponse, error) {
	result, err := h.Queries.WorkerHealth(ctx, workerName)
	if err != nil {
		logger := application.ResolveLogger(h.Logger)
		logger.Warn("worker health lookup failed",
			"event", "http_worker_health_failed",
			"module", application.ModuleName,
			"layer", "transport",
			"worker_name", workerName,
			"error", err.Error(),
		)
		return httptransport.WorkerHealthResponse{}, err
	}
	return httptransport.WorkerHealthResponse{
		WorkerName: result.Heartbeat.WorkerName,
		Status:     result.Heartbeat.Status,
		LastSeen:   result.Heartbeat.LastSeen.UTC().Format(time.RFC3339),
		AgeSeconds: int64(result.Age / time.Second),
		Healthy:    result.Healthy,
		Metadata:   result.Heartbeat.Metadata,
	}, nil
}

func mapJobs(items []entities.Job) []httptransport.JobDTO {
	result := make([]httptransport.JobDTO, 0, len(items))
	for _, item := range items {
		result = append(result, mapJob(item))
	}
	return result
}

func mapJob(job entities.Job) httptransport.JobDTO {
	return httptransport.JobDTO{
		JobID:          job.ID,
		JobType:        job.JobType,
		Payload:        job.Payload,
		Status:         string(job.Status),
		Attempts:       job.Attempts,
		MaxAttempts:    job.MaxAttempts,
		RunAt:          job.RunAt.UTC().Format(time.RFC3339),
		LockedBy:       job.LockedBy,
		LockedAt:       formatTimePtr(job.LockedAt),
		LastError:      job.LastError,
		IdempotencyKey: job.IdempotencyKey,
		SourceEventID:  job.SourceEventID,
		CreatedAt:      job.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:      job.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func formatTimePtr(value *time.Time) string {
	if value == nil {
		return ""
	}
	return value.UTC().Format(time.RFC3339)
}
