package queries

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"taskpipe/contexts/async-delivery/task-pipeline/adapters/memory"
	"taskpipe/contexts/async-delivery/task-pipeline/domain/entities"
	domainerrors "taskpipe/contexts/async-delivery/task-pipeline/domain/errors"
	"taskpipe/contexts/async-delivery/task-pipeline/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time {
	return c.now
}

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newQueries(store *memory.Store) QueryUseCase {
	return QueryUseCase{
		Outbox:             store,
		Jobs:               store,
		Heartbeats:         store,
		Clock:              fixedClock{now: testNow},
		HeartbeatFreshness: time.Minute,
	}
}

func seedJob(t *testing.T, store *memory.Store, jobType string, source *int64) entities.Job {
	t.Helper()
	job, err := entities.NewJob(entities.JobSpec{JobType: jobType, SourceEventID: source}, testNow)
	require.NoError(t, err)
	stored, _, err := store.EnqueueJob(context.Background(), job)
	require.NoError(t, err)
	return stored
}

func TestEffectiveEventStatusLifecycle(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(nil)
	q := newQueries(store)

	event, err := store.AppendEvent(ctx, entities.OutboxEvent{EventName: "rating_created", Metadata: json.RawMessage(`{}`)})
	require.NoError(t, err)

	status, err := q.EffectiveEventStatus(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.EffectiveStatusPending, status.Status)
	assert.Nil(t, status.Job)

	require.NoError(t, store.WithinBridgeTx(ctx, func(tx ports.BridgeTx) error {
		return tx.MarkEventsQueued(ctx, []int64{event.ID}, testNow)
	}))
	status, err = q.EffectiveEventStatus(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.EffectiveStatusDropped, status.Status)

	source := event.ID
	job := seedJob(t, store, "realtime_push", &source)
	status, err = q.EffectiveEventStatus(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.EffectiveStatusQueued, status.Status)
	require.NotNil(t, status.Job)
	assert.Equal(t, job.ID, status.Job.ID)

	_, err = store.ClaimJobs(ctx, "worker", 1, testNow)
	require.NoError(t, err)
	require.NoError(t, store.MarkJobDone(ctx, job.ID, "worker", testNow))
	status, err = q.EffectiveEventStatus(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.EffectiveStatusDone, status.Status)

	_, err = q.EffectiveEventStatus(ctx, 404)
	assert.ErrorIs(t, err, domainerrors.ErrEventNotFound)
}

func TestListJobsFiltersAndClampsLimit(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(nil)
	q := newQueries(store)
	for range 3 {
		seedJob(t, store, "send_email", nil)
	}
	seedJob(t, store, "realtime_push", nil)

	jobs, err := q.ListJobs(ctx, ports.JobFilter{JobType: "send_email"})
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	assert.Equal(t, int64(3), jobs[0].ID)

	jobs, err = q.ListJobs(ctx, ports.JobFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, jobs, 2)

	dead, err := q.ListDeadJobs(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, dead)

	stats, err := q.QueueStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, ports.QueueStats{Pending: 4}, stats)
}

func TestWorkerHealth(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(nil)
	q := newQueries(store)

	_, err := q.WorkerHealth(ctx, "queue_worker")
	assert.ErrorIs(t, err, domainerrors.ErrWorkerNotFound)

	require.NoError(t, store.UpsertHeartbeat(ctx, entities.WorkerHeartbeat{
		WorkerName: "queue_worker",
		LastSeen:   testNow.Add(-20 * time.Second),
		Status:     entities.HeartbeatStatusRunning,
	}))
	health, err := q.WorkerHealth(ctx, "queue_worker")
	require.NoError(t, err)
	assert.True(t, health.Healthy)
	assert.Equal(t, 20*time.Second, health.Age)

	require.NoError(t, store.UpsertHeartbeat(ctx, entities.WorkerHeartbeat{
		WorkerName: "queue_worker",
		LastSeen:   testNow.Add(-2 * time.Minute),
		Status:     entities.HeartbeatStatusRunning,
	}))
	health, err = q.WorkerHealth(ctx, "queue_worker")
	require.NoError(t, err)
	assert.False(t, health.Healthy)
}
