//go:build integration

package postgresadapter

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"taskpipe/contexts/async-delivery/task-pipeline/application/translators"
	"taskpipe/contexts/async-delivery/task-pipeline/application/workers"
	"taskpipe/contexts/async-delivery/task-pipeline/domain/entities"
	domainerrors "taskpipe/contexts/async-delivery/task-pipeline/domain/errors"
	"taskpipe/contexts/async-delivery/task-pipeline/ports"
	"taskpipe/internal/platform/db"
	"taskpipe/internal/shared/outbox"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/gorm"
)

// setupPostgres starts a disposable PostgreSQL container, applies the embedded
// migrations and returns a repository bound to it.
func setupPostgres(t *testing.T) (*Repository, *db.Postgres) {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("taskpipe"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, container.Terminate(ctx)) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pg, err := db.Connect(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Close() })

	result, err := pg.Migrate(nil)
	require.NoError(t, err)
	require.True(t, result.Applied)
	require.NoError(t, pg.Ping(ctx), "migrations must leave the shared pool open")
	return NewRepository(pg.DB, nil), pg
}

func newJob(t *testing.T, jobType string, now time.Time) entities.Job {
	t.Helper()
	job, err := entities.NewJob(entities.JobSpec{JobType: jobType, Payload: json.RawMessage(`{"n":1}`)}, now)
	require.NoError(t, err)
	return job
}

func TestIntegration_MigrateIsIdempotent(t *testing.T) {
	repo, pg := setupPostgres(t)

	result, err := pg.Migrate(nil)
	require.NoError(t, err)
	assert.False(t, result.Applied)
	assert.Equal(t, uint(1), result.Version)

	// The shared pool still serves queries after the migrator closed its own.
	_, err = repo.CountJobsByStatus(context.Background())
	require.NoError(t, err)
}

func TestIntegration_OutboxAppendFollowsProducerTransaction(t *testing.T) {
	repo, pg := setupPostgres(t)
	ctx := context.Background()

	rollback := errors.New("business write failed")
	err := pg.DB.Transaction(func(tx *gorm.DB) error {
		if _, err := outbox.Append(ctx, tx, outbox.Message{EventName: "request_created"}); err != nil {
			return err
		}
		return rollback
	})
	require.ErrorIs(t, err, rollback)

	var appended outbox.Appended
	require.NoError(t, pg.DB.Transaction(func(tx *gorm.DB) error {
		var err error
		appended, err = outbox.Append(ctx, tx, outbox.Message{
			EventName: "request_created",
			CompanyID: "c-1",
			Metadata:  json.RawMessage(`{"request_id":"r-1"}`),
		})
		return err
	}))

	event, err := repo.GetEvent(ctx, appended.ID)
	require.NoError(t, err)
	assert.Equal(t, "request_created", event.EventName)
	assert.Equal(t, "c-1", event.CompanyID)
	assert.Equal(t, entities.QueueStatusPending, event.QueueStatus)
	assert.JSONEq(t, `{"request_id":"r-1"}`, string(event.Metadata))

	var count int64
	require.NoError(t, pg.DB.Table("outbox_events").Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestIntegration_ConcurrentBridgesCreateOneJobPerEvent(t *testing.T) {
	repo, _ := setupPostgres(t)
	ctx := context.Background()
	const events = 60
	for range events {
		_, err := repo.AppendEvent(ctx, entities.OutboxEvent{
			EventName: "rating_created",
			Metadata:  json.RawMessage(`{}`),
			CreatedAt: time.Now().UTC(),
		})
		require.NoError(t, err)
	}
	registry, err := translators.NewDefaultRegistry(translators.Options{MaxAttempts: 5})
	require.NoError(t, err)
	bridge := workers.OutboxBridge{Outbox: repo, Translator: registry, BatchSize: 7}

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				result, err := bridge.RunOnce(ctx)
				if err != nil {
					errs <- err
					return
				}
				if result.Selected == 0 {
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	jobs, err := repo.ListJobs(ctx, ports.JobFilter{Limit: 1000})
	require.NoError(t, err)
	require.Len(t, jobs, events)
	seen := make(map[int64]bool, events)
	for _, job := range jobs {
		require.NotNil(t, job.SourceEventID)
		assert.False(t, seen[*job.SourceEventID])
		seen[*job.SourceEventID] = true
	}

	result, err := bridge.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, result.Selected)
}

func TestIntegration_ConcurrentClaimsNeverOverlap(t *testing.T) {
	repo, _ := setupPostgres(t)
	ctx := context.Background()
	now := time.Now().UTC()
	const total = 40
	for range total {
		_, created, err := repo.EnqueueJob(ctx, newJob(t, "send_email", now))
		require.NoError(t, err)
		require.True(t, created)
	}

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		claimed = make(map[int64]string)
		dupes   []int64
	)
	for worker := range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			workerID := "queue_worker:" + string(rune('a'+worker))
			for {
				jobs, err := repo.ClaimJobs(ctx, workerID, 3, time.Now().UTC())
				if err != nil || len(jobs) == 0 {
					return
				}
				mu.Lock()
				for _, job := range jobs {
					if _, exists := claimed[job.ID]; exists {
						dupes = append(dupes, job.ID)
					}
					claimed[job.ID] = workerID
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Empty(t, dupes)
	assert.Len(t, claimed, total)
	stats, err := repo.CountJobsByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, ports.QueueStats{Processing: total}, stats)
}

func TestIntegration_OutcomeUpdatesRequireLease(t *testing.T) {
	repo, _ := setupPostgres(t)
	ctx := context.Background()
	now := time.Now().UTC()
	job, _, err := repo.EnqueueJob(ctx, newJob(t, "send_email", now))
	require.NoError(t, err)

	claimed, err := repo.ClaimJobs(ctx, "worker-a", 1, now)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, entities.JobStatusProcessing, claimed[0].Status)
	assert.Equal(t, "worker-a", claimed[0].LockedBy)

	assert.ErrorIs(t, repo.MarkJobDone(ctx, job.ID, "worker-b", now), domainerrors.ErrLeaseLost)
	assert.ErrorIs(t, repo.MarkJobDone(ctx, 9999, "worker-a", now), domainerrors.ErrJobNotFound)

	failure := entities.JobFailure{Attempts: 1, Status: entities.JobStatusPending, RunAt: now.Add(time.Minute), LastError: "boom"}
	require.NoError(t, repo.MarkJobFailed(ctx, job.ID, "worker-a", failure, now))

	stored, err := repo.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.JobStatusPending, stored.Status)
	assert.Equal(t, 1, stored.Attempts)
	assert.Equal(t, "boom", stored.LastError)
	assert.Empty(t, stored.LockedBy)
	assert.Nil(t, stored.LockedAt)

	notYet, err := repo.ClaimJobs(ctx, "worker-a", 1, now)
	require.NoError(t, err)
	assert.Empty(t, notYet)
}

func TestIntegration_ReleaseKeepsAttemptsAndRunAt(t *testing.T) {
	repo, _ := setupPostgres(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	job, _, err := repo.EnqueueJob(ctx, newJob(t, "send_email", now))
	require.NoError(t, err)

	_, err = repo.ClaimJobs(ctx, "worker-a", 1, now)
	require.NoError(t, err)
	assert.ErrorIs(t, repo.ReleaseJob(ctx, job.ID, "worker-b", now), domainerrors.ErrLeaseLost)
	require.NoError(t, repo.ReleaseJob(ctx, job.ID, "worker-a", now))

	stored, err := repo.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.JobStatusPending, stored.Status)
	assert.Zero(t, stored.Attempts)
	assert.True(t, stored.RunAt.Equal(job.RunAt))
	assert.Empty(t, stored.LockedBy)
	assert.Nil(t, stored.LockedAt)
}

func TestIntegration_ReclaimKeepsPreviousFailure(t *testing.T) {
	repo, _ := setupPostgres(t)
	ctx := context.Background()
	now := time.Now().UTC()
	job, _, err := repo.EnqueueJob(ctx, newJob(t, "send_email", now))
	require.NoError(t, err)

	_, err = repo.ClaimJobs(ctx, "worker-a", 1, now)
	require.NoError(t, err)
	failure := entities.JobFailure{Attempts: 1, Status: entities.JobStatusPending, RunAt: now, LastError: "SMTP down"}
	require.NoError(t, repo.MarkJobFailed(ctx, job.ID, "worker-a", failure, now))

	for range 2 {
		_, err = repo.ClaimJobs(ctx, "worker-b", 1, now)
		require.NoError(t, err)
		reclaimed, err := repo.ReclaimExpiredLeases(ctx, now.Add(time.Second), now)
		require.NoError(t, err)
		assert.Equal(t, 1, reclaimed)
	}

	stored, err := repo.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "lease expired (previous: SMTP down)", stored.LastError)
	assert.Equal(t, 1, stored.Attempts)
}

func TestIntegration_ReclaimAndRequeue(t *testing.T) {
	repo, _ := setupPostgres(t)
	ctx := context.Background()
	now := time.Now().UTC()
	job, _, err := repo.EnqueueJob(ctx, newJob(t, "send_email", now))
	require.NoError(t, err)

	_, err = repo.ClaimJobs(ctx, "worker-a", 1, now)
	require.NoError(t, err)
	fresh, err := repo.ReclaimExpiredLeases(ctx, now.Add(-5*time.Minute), now)
	require.NoError(t, err)
	assert.Zero(t, fresh)

	reclaimed, err := repo.ReclaimExpiredLeases(ctx, now.Add(time.Second), now)
	require.NoError(t, err)
	assert.Equal(t, 1, reclaimed)

	stored, err := repo.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.JobStatusPending, stored.Status)
	assert.Zero(t, stored.Attempts)
	assert.Equal(t, "lease expired", stored.LastError)

	_, err = repo.RequeueDeadJob(ctx, job.ID, now)
	assert.ErrorIs(t, err, domainerrors.ErrJobNotDead)

	_, err = repo.ClaimJobs(ctx, "worker-b", 1, now)
	require.NoError(t, err)
	require.NoError(t, repo.MarkJobFailed(ctx, job.ID, "worker-b", entities.JobFailure{
		Attempts: 5, Status: entities.JobStatusDead, RunAt: now, LastError: "gave up",
	}, now))

	requeued, err := repo.RequeueDeadJob(ctx, job.ID, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, entities.JobStatusPending, requeued.Status)
	assert.Zero(t, requeued.Attempts)
	assert.WithinDuration(t, now.Add(time.Hour), requeued.RunAt, time.Millisecond)
}

func TestIntegration_EnqueueIdempotencyKey(t *testing.T) {
	repo, _ := setupPostgres(t)
	ctx := context.Background()
	job := newJob(t, "send_email", time.Now().UTC())
	job.IdempotencyKey = "signup:42"

	first, created, err := repo.EnqueueJob(ctx, job)
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := repo.EnqueueJob(ctx, job)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
}

func TestIntegration_HeartbeatUpsert(t *testing.T) {
	repo, _ := setupPostgres(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := repo.GetHeartbeat(ctx, "queue_worker")
	assert.ErrorIs(t, err, domainerrors.ErrWorkerNotFound)

	require.NoError(t, repo.UpsertHeartbeat(ctx, entities.WorkerHeartbeat{
		WorkerName: "queue_worker", LastSeen: now, Status: entities.HeartbeatStatusRunning,
		Metadata: map[string]string{"pid": "1"},
	}))
	require.NoError(t, repo.UpsertHeartbeat(ctx, entities.WorkerHeartbeat{
		WorkerName: "queue_worker", LastSeen: now.Add(time.Second), Status: entities.HeartbeatStatusStopped,
		Metadata: map[string]string{"pid": "2"},
	}))

	heartbeat, err := repo.GetHeartbeat(ctx, "queue_worker")
	require.NoError(t, err)
	assert.Equal(t, entities.HeartbeatStatusStopped, heartbeat.Status)
	assert.Equal(t, "2", heartbeat.Metadata["pid"])
	assert.WithinDuration(t, now.Add(time.Second), heartbeat.LastSeen, time.Millisecond)
}
