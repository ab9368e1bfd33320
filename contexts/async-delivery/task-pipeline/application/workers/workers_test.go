package workers

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"taskpipe/contexts/async-delivery/task-pipeline/adapters/memory"
	"taskpipe/contexts/async-delivery/task-pipeline/application/handlers"
	"taskpipe/contexts/async-delivery/task-pipeline/domain/entities"

	"github.com/stretchr/testify/require"
)

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFixedClock() *fixedClock {
	return &fixedClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func appendEvent(t *testing.T, store *memory.Store, name string, metadata string) entities.OutboxEvent {
	t.Helper()
	event, err := entities.NewOutboxEvent(name, json.RawMessage(metadata), time.Now().UTC())
	require.NoError(t, err)
	stored, err := store.AppendEvent(context.Background(), event)
	require.NoError(t, err)
	return stored
}

func enqueue(t *testing.T, store *memory.Store, clock *fixedClock, jobType string, maxAttempts int) entities.Job {
	t.Helper()
	job, err := entities.NewJob(entities.JobSpec{
		JobType:     jobType,
		Payload:     json.RawMessage(`{}`),
		MaxAttempts: maxAttempts,
	}, clock.Now())
	require.NoError(t, err)
	stored, created, err := store.EnqueueJob(context.Background(), job)
	require.NoError(t, err)
	require.True(t, created)
	return stored
}

func getJob(t *testing.T, store *memory.Store, id int64) entities.Job {
	t.Helper()
	job, err := store.GetJob(context.Background(), id)
	require.NoError(t, err)
	return job
}

func registryWith(t *testing.T, jobType string, fn handlers.HandlerFunc) *handlers.Registry {
	t.Helper()
	registry := handlers.NewRegistry()
	require.NoError(t, registry.Register(jobType, fn))
	return registry
}
