package entities

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	domainerrors "taskpipe/contexts/async-delivery/task-pipeline/domain/errors"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusDone       JobStatus = "done"
	JobStatusDead       JobStatus = "dead"
)

func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusDone, JobStatusDead:
		return true
	default:
		return false
	}
}

const DefaultMaxAttempts = 5

// JobSpec is the request to create a job, produced by translators and by
// direct enqueue.
type JobSpec struct {
	JobType        string
	Payload        json.RawMessage
	RunAt          time.Time
	MaxAttempts    int
	IdempotencyKey string
	SourceEventID  *int64
}

type Job struct {
	ID             int64
	JobType        string
	Payload        json.RawMessage
	Status         JobStatus
	Attempts       int
	MaxAttempts    int
	RunAt          time.Time
	LockedBy       string
	LockedAt       *time.Time
	LastError      string
	IdempotencyKey string
	SourceEventID  *int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// JobFailure is the state written back after a failed execution.
type JobFailure struct {
	Attempts  int
	Status    JobStatus
	RunAt     time.Time
	LastError string
}

func NewJob(spec JobSpec, now time.Time) (Job, error) {
	jobType := strings.TrimSpace(spec.JobType)
	if jobType == "" {
		return Job{}, domainerrors.ErrInvalidJob
	}
	payload := spec.Payload
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	if !json.Valid(payload) {
		return Job{}, domainerrors.ErrInvalidPayload
	}
	maxAttempts := spec.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if maxAttempts < 1 {
		return Job{}, domainerrors.ErrInvalidJob
	}
	runAt := spec.RunAt
	if runAt.IsZero() {
		runAt = now
	}

	return Job{
		JobType:        jobType,
		Payload:        append(json.RawMessage(nil), payload...),
		Status:         JobStatusPending,
		MaxAttempts:    maxAttempts,
		RunAt:          runAt.UTC(),
		IdempotencyKey: strings.TrimSpace(spec.IdempotencyKey),
		SourceEventID:  spec.SourceEventID,
		CreatedAt:      now.UTC(),
		UpdatedAt:      now.UTC(),
	}, nil
}

func (j Job) IsEligible(now time.Time) bool {
	return j.Status == JobStatusPending && !j.RunAt.After(now)
}

func (j Job) IsTerminal() bool {
	return j.Status == JobStatusDone || j.Status == JobStatusDead
}

// LeaseExpired reports whether a processing job has held its lease since
// before staleBefore.
func (j Job) LeaseExpired(staleBefore time.Time) bool {
	return j.Status == JobStatusProcessing && j.LockedAt != nil && j.LockedAt.Before(staleBefore)
}

// LeaseExpiredError is recorded on jobs reclaimed by the lease sweeper.
const LeaseExpiredError = "lease expired"

// LeaseExpiredReason builds the last_error of a reclaimed job, keeping the
// earlier failure it replaces. Repeated reclaims do not nest.
func LeaseExpiredReason(previous string) string {
	previous = strings.TrimSpace(previous)
	switch {
	case previous == "":
		return LeaseExpiredError
	case strings.HasPrefix(previous, LeaseExpiredError):
		return previous
	default:
		return LeaseExpiredError + " (previous: " + previous + ")"
	}
}

// OutboxIdempotencyKey derives the job idempotency key for a bridged event.
func OutboxIdempotencyKey(eventID int64) string {
	return "outbox:" + strconv.FormatInt(eventID, 10)
}
