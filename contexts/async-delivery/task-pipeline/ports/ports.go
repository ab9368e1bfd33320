package ports

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"taskpipe/contexts/async-delivery/task-pipeline/domain/entities"
)

// BridgeTx is the view of the stores available inside one bridge transaction.
// Nothing done through it is visible to others until the transaction commits.
type BridgeTx interface {
	// LockPendingEvents selects up to limit pending events, oldest id first,
	// skipping rows held by other in-flight transactions.
	LockPendingEvents(ctx context.Context, limit int) ([]entities.OutboxEvent, error)
	MarkEventsQueued(ctx context.Context, eventIDs []int64, queuedAt time.Time) error
	// InsertJob returns created=false when the job collides on source_event_id
	// or idempotency_key.
	InsertJob(ctx context.Context, job entities.Job) (bool, error)
}

// OutboxStore owns the outbox table and the bridge transaction boundary.
type OutboxStore interface {
	// WithinBridgeTx runs fn in a single transaction; any error rolls back
	// everything fn did.
	WithinBridgeTx(ctx context.Context, fn func(tx BridgeTx) error) error
	AppendEvent(ctx context.Context, event entities.OutboxEvent) (entities.OutboxEvent, error)
	GetEvent(ctx context.Context, eventID int64) (entities.OutboxEvent, error)
}

type JobFilter struct {
	Status  entities.JobStatus
	JobType string
	Limit   int
}

type QueueStats struct {
	Pending    int64
	Processing int64
	Done       int64
	Dead       int64
}

// JobRepository owns the jobs table.
type JobRepository interface {
	// ClaimJobs selects up to limit eligible jobs, marks them processing under
	// workerID in one transaction, then returns the claimed rows.
	ClaimJobs(ctx context.Context, workerID string, limit int, now time.Time) ([]entities.Job, error)
	// MarkJobDone and MarkJobFailed only apply while workerID still holds the
	// lease; otherwise they return ErrLeaseLost.
	MarkJobDone(ctx context.Context, jobID int64, workerID string, now time.Time) error
	MarkJobFailed(ctx context.Context, jobID int64, workerID string, failure entities.JobFailure, now time.Time) error
	// ReleaseJob hands a claimed job back to pending without spending an
	// attempt or moving run_at. It is lease-guarded like the outcomes above.
	ReleaseJob(ctx context.Context, jobID int64, workerID string, now time.Time) error
	// ReclaimExpiredLeases resets processing jobs locked before staleBefore.
	ReclaimExpiredLeases(ctx context.Context, staleBefore time.Time, now time.Time) (int, error)

	EnqueueJob(ctx context.Context, job entities.Job) (entities.Job, bool, error)
	GetJob(ctx context.Context, jobID int64) (entities.Job, error)
	GetJobBySourceEvent(ctx context.Context, eventID int64) (entities.Job, bool, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]entities.Job, error)
	CountJobsByStatus(ctx context.Context) (QueueStats, error)
	RequeueDeadJob(ctx context.Context, jobID int64, now time.Time) (entities.Job, error)
}

type HeartbeatRepository interface {
	UpsertHeartbeat(ctx context.Context, heartbeat entities.WorkerHeartbeat) error
	GetHeartbeat(ctx context.Context, workerName string) (entities.WorkerHeartbeat, error)
}

// EventTranslator turns one outbox event into zero or one job spec.
type EventTranslator interface {
	Translate(event entities.OutboxEvent) (entities.JobSpec, bool, error)
}

// JobHandler executes one job payload. Handlers may be invoked more than once
// for the same payload.
type JobHandler interface {
	Handle(ctx context.Context, payload json.RawMessage) error
}

// EmailMessage is the provider-agnostic send request.
type EmailMessage struct {
	From           string
	To             string
	Subject        string
	Text           string
	IdempotencyKey string
}

// EmailSender performs one send request against the email provider.
type EmailSender interface {
	Send(ctx context.Context, message EmailMessage) error
}

// RealtimePublisher delivers a message on a channel and reports how many live
// subscribers received it.
type RealtimePublisher interface {
	Publish(ctx context.Context, channel string, message []byte) (int64, error)
}

type Clock interface {
	Now() time.Time
}

// ProviderRejection is returned by provider adapters for non-2xx responses.
type ProviderRejection struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *ProviderRejection) Error() string {
	return fmt.Sprintf("%s rejected request: status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// QuotaExceeded reports a rejection caused by quota or rate limiting, which a
// retry would not fix.
func (e *ProviderRejection) QuotaExceeded() bool {
	return e.StatusCode == 403 || e.StatusCode == 429
}

// HandlerRegistry resolves the handler for a job type.
type HandlerRegistry interface {
	Lookup(jobType string) (JobHandler, error)
}
