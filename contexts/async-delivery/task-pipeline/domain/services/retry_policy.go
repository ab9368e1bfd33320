package services

import (
	"math"
	"time"

	"taskpipe/contexts/async-delivery/task-pipeline/domain/entities"
)

const (
	maxBackoffShift  = 62
	DefaultBaseDelay = 10 * time.Second
)

// RetryPolicy computes exponential backoff: base * 2^(attempts-1).
// MaxDelay caps the delay when positive.
type RetryPolicy struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

func (p RetryPolicy) Backoff(attempts int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	shift := attempts - 1
	if shift < 0 {
		shift = 0
	}
	if shift > maxBackoffShift {
		shift = maxBackoffShift
	}

	multiplier := int64(1) << shift
	delay := time.Duration(math.MaxInt64)
	if int64(p.BaseDelay) <= math.MaxInt64/multiplier {
		delay = time.Duration(int64(p.BaseDelay) * multiplier)
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// OnFailure decides the next state of a job whose handler failed at now.
// A job becomes dead exactly when the incremented attempt count reaches
// max_attempts.
func (p RetryPolicy) OnFailure(job entities.Job, now time.Time, cause string) entities.JobFailure {
	attempts := job.Attempts + 1
	if attempts >= job.MaxAttempts {
		return entities.JobFailure{
			Attempts:  attempts,
			Status:    entities.JobStatusDead,
			RunAt:     job.RunAt,
			LastError: cause,
		}
	}
	return entities.JobFailure{
		Attempts:  attempts,
		Status:    entities.JobStatusPending,
		RunAt:     now.Add(p.Backoff(attempts)).UTC(),
		LastError: cause,
	}
}

// OnFatal moves a job straight to dead regardless of its remaining budget.
// The execution still counts as an attempt, never beyond max_attempts.
func OnFatal(job entities.Job, cause string) entities.JobFailure {
	attempts := job.Attempts + 1
	if attempts > job.MaxAttempts {
		attempts = job.MaxAttempts
	}
	return entities.JobFailure{
		Attempts:  attempts,
		Status:    entities.JobStatusDead,
		RunAt:     job.RunAt,
		LastError: cause,
	}
}
