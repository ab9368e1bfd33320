package entities

import (
	"encoding/json"
	"testing"
	"time"

	domainerrors "taskpipe/contexts/async-delivery/task-pipeline/domain/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJobAppliesDefaults(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	job, err := NewJob(JobSpec{JobType: " send_email "}, now)
	require.NoError(t, err)

	assert.Equal(t, "send_email", job.JobType)
	assert.Equal(t, JobStatusPending, job.Status)
	assert.Equal(t, DefaultMaxAttempts, job.MaxAttempts)
	assert.Zero(t, job.Attempts)
	assert.Equal(t, now, job.RunAt)
	assert.JSONEq(t, `{}`, string(job.Payload))
	assert.True(t, job.IsEligible(now))
}

func TestNewJobRejectsInvalidSpecs(t *testing.T) {
	now := time.Now().UTC()

	_, err := NewJob(JobSpec{JobType: "  "}, now)
	assert.ErrorIs(t, err, domainerrors.ErrInvalidJob)

	_, err = NewJob(JobSpec{JobType: "send_email", Payload: json.RawMessage(`{broken`)}, now)
	assert.ErrorIs(t, err, domainerrors.ErrInvalidPayload)

	_, err = NewJob(JobSpec{JobType: "send_email", MaxAttempts: -1}, now)
	assert.ErrorIs(t, err, domainerrors.ErrInvalidJob)
}

func TestJobEligibilityHonoursRunAt(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	job, err := NewJob(JobSpec{JobType: "send_email", RunAt: now.Add(time.Minute)}, now)
	require.NoError(t, err)

	assert.False(t, job.IsEligible(now))
	assert.True(t, job.IsEligible(now.Add(time.Minute)))

	job.Status = JobStatusDone
	assert.False(t, job.IsEligible(now.Add(time.Hour)))
	assert.True(t, job.IsTerminal())
}

func TestLeaseExpired(t *testing.T) {
	lockedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	job := Job{Status: JobStatusProcessing, LockedAt: &lockedAt}

	assert.True(t, job.LeaseExpired(lockedAt.Add(time.Second)))
	assert.False(t, job.LeaseExpired(lockedAt))

	job.Status = JobStatusPending
	assert.False(t, job.LeaseExpired(lockedAt.Add(time.Hour)))
}

func TestOutboxIdempotencyKey(t *testing.T) {
	assert.Equal(t, "outbox:42", OutboxIdempotencyKey(42))
}

func TestJobStatusValid(t *testing.T) {
	assert.True(t, JobStatusDead.Valid())
	assert.False(t, JobStatus("failed").Valid())
}

func TestLeaseExpiredReasonKeepsEarlierFailure(t *testing.T) {
	assert.Equal(t, "lease expired", LeaseExpiredReason(""))
	assert.Equal(t, "lease expired (previous: SMTP down)", LeaseExpiredReason("SMTP down"))
	assert.Equal(t, "lease expired (previous: SMTP down)", LeaseExpiredReason("lease expired (previous: SMTP down)"))
	assert.Equal(t, "lease expired", LeaseExpiredReason("lease expired"))
}
