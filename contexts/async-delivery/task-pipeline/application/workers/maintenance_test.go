package workers

import (
	"context"
	"testing"
	"time"

	"taskpipe/contexts/async-delivery/task-pipeline/adapters/memory"
	"taskpipe/contexts/async-delivery/task-pipeline/domain/entities"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweeperReclaimsOnlyExpiredLeases(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(nil)
	clock := newFixedClock()
	stale := enqueue(t, store, clock, testJobType, 5)
	fresh := enqueue(t, store, clock, testJobType, 5)
	store.SetJobLease(stale.ID, "queue_worker:crashed", clock.Now().Add(-6*time.Minute))
	store.SetJobLease(fresh.ID, "queue_worker:alive", clock.Now().Add(-time.Minute))

	sweeper := LeaseSweeper{Jobs: store, Clock: clock, LeaseTimeout: 5 * time.Minute}
	reclaimed, err := sweeper.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, reclaimed)

	job := getJob(t, store, stale.ID)
	assert.Equal(t, entities.JobStatusPending, job.Status)
	assert.Zero(t, job.Attempts)
	assert.Empty(t, job.LockedBy)
	assert.Equal(t, "lease expired", job.LastError)

	job = getJob(t, store, fresh.ID)
	assert.Equal(t, entities.JobStatusProcessing, job.Status)
	assert.Equal(t, "queue_worker:alive", job.LockedBy)
}

func TestSweeperKeepsPreviousFailureDiagnostic(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(nil)
	clock := newFixedClock()
	job := enqueue(t, store, clock, testJobType, 5)
	_, err := store.ClaimJobs(ctx, "queue_worker:a", 1, clock.Now())
	require.NoError(t, err)
	failure := entities.JobFailure{Attempts: 1, Status: entities.JobStatusPending, RunAt: clock.Now(), LastError: "SMTP down"}
	require.NoError(t, store.MarkJobFailed(ctx, job.ID, "queue_worker:a", failure, clock.Now()))

	sweeper := LeaseSweeper{Jobs: store, Clock: clock, LeaseTimeout: 5 * time.Minute}
	for range 2 {
		store.SetJobLease(job.ID, "queue_worker:crashed", clock.Now().Add(-10*time.Minute))
		reclaimed, err := sweeper.RunOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, reclaimed)
	}

	stored := getJob(t, store, job.ID)
	assert.Equal(t, "lease expired (previous: SMTP down)", stored.LastError)
	assert.Equal(t, 1, stored.Attempts)
}

func TestReclaimedJobCanBeClaimedAgain(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(nil)
	clock := newFixedClock()
	job := enqueue(t, store, clock, testJobType, 5)
	store.SetJobLease(job.ID, "queue_worker:crashed", clock.Now().Add(-10*time.Minute))

	_, err := LeaseSweeper{Jobs: store, Clock: clock, LeaseTimeout: 5 * time.Minute}.RunOnce(ctx)
	require.NoError(t, err)

	claimed, err := store.ClaimJobs(ctx, "queue_worker:new", 10, clock.Now())
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, job.ID, claimed[0].ID)
	assert.Equal(t, "queue_worker:new", claimed[0].LockedBy)
}

func TestHeartbeatReporterUpsertsRoleRow(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(nil)
	clock := newFixedClock()
	reporter := HeartbeatReporter{
		Heartbeats: store,
		Clock:      clock,
		WorkerName: "queue_worker",
		Metadata:   map[string]string{"pid": "42"},
	}

	require.NoError(t, reporter.RunOnce(ctx))
	heartbeat, err := store.GetHeartbeat(ctx, "queue_worker")
	require.NoError(t, err)
	assert.Equal(t, entities.HeartbeatStatusRunning, heartbeat.Status)
	assert.Equal(t, clock.Now(), heartbeat.LastSeen)
	assert.Equal(t, "42", heartbeat.Metadata["pid"])

	clock.Advance(15 * time.Second)
	require.NoError(t, reporter.RunOnce(ctx))
	heartbeat, err = store.GetHeartbeat(ctx, "queue_worker")
	require.NoError(t, err)
	assert.Equal(t, clock.Now(), heartbeat.LastSeen)

	require.NoError(t, reporter.Stop(ctx))
	heartbeat, err = store.GetHeartbeat(ctx, "queue_worker")
	require.NoError(t, err)
	assert.Equal(t, entities.HeartbeatStatusStopped, heartbeat.Status)
	assert.False(t, heartbeat.IsFresh(clock.Now(), time.Minute))
}
