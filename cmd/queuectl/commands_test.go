package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	taskpipeline "taskpipe/contexts/async-delivery/task-pipeline"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	t        *testing.T
	pipeline taskpipeline.Module
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	pipeline, err := taskpipeline.NewInMemoryModule(nil, nil, taskpipeline.DefaultSettings(), nil)
	require.NoError(t, err)
	return &harness{t: t, pipeline: pipeline}
}

func (h *harness) run(args ...string) (string, error) {
	var out bytes.Buffer
	open := func() (environment, error) {
		return environment{Pipeline: h.pipeline}, nil
	}
	err := newApp(open, &out).Run(append([]string{"queuectl"}, args...))
	return out.String(), err
}

func (h *harness) runJSON(target any, args ...string) {
	h.t.Helper()
	out, err := h.run(args...)
	require.NoError(h.t, err, out)
	require.NoError(h.t, json.Unmarshal([]byte(out), target), out)
}

func TestEmitBridgeAndInspectEvent(t *testing.T) {
	h := newHarness(t)

	var emitted struct {
		EventID int64 `json:"event_id"`
	}
	h.runJSON(&emitted, "emit", "--name", "ticket_created", "--metadata", `{"broadcast":"support"}`, "--ticket-id", "t-1")
	assert.Equal(t, int64(1), emitted.EventID)

	var status map[string]any
	h.runJSON(&status, "event-status", "1")
	assert.Equal(t, "pending", status["status"])

	_, err := h.pipeline.Bridge.RunOnce(context.Background())
	require.NoError(t, err)

	h.runJSON(&status, "event-status", "1")
	assert.Equal(t, "queued", status["status"])
	assert.EqualValues(t, 1, status["job_id"])
}

func TestEnqueueAndStats(t *testing.T) {
	h := newHarness(t)

	var first, second struct {
		JobID   int64 `json:"job_id"`
		Created bool  `json:"created"`
	}
	h.runJSON(&first, "enqueue", "--type", "send_email", "--idempotency-key", "k-1", "--delay", "1h")
	h.runJSON(&second, "enqueue", "--type", "send_email", "--idempotency-key", "k-1")
	assert.True(t, first.Created)
	assert.False(t, second.Created)
	assert.Equal(t, first.JobID, second.JobID)

	var stats map[string]int64
	h.runJSON(&stats, "jobs", "stats")
	assert.Equal(t, map[string]int64{"pending": 1, "processing": 0, "done": 0, "dead": 0}, stats)
}

func TestDeadJobsAndRequeue(t *testing.T) {
	h := newHarness(t)
	var enqueued struct {
		JobID int64 `json:"job_id"`
	}
	h.runJSON(&enqueued, "enqueue", "--type", "resize_image")
	_, err := h.pipeline.Runner.RunOnce(context.Background())
	require.NoError(t, err)

	var dead []map[string]any
	h.runJSON(&dead, "jobs", "dead")
	require.Len(t, dead, 1)
	assert.Equal(t, "resize_image", dead[0]["job_type"])
	assert.Contains(t, dead[0]["last_error"], "unknown job type")

	var requeued map[string]any
	h.runJSON(&requeued, "jobs", "requeue", "--operator", "ops", "1")
	assert.Equal(t, "pending", requeued["status"])

	_, err = h.run("jobs", "requeue", "1")
	assert.Error(t, err)
}

func TestArgumentValidation(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("emit")
	assert.Error(t, err)

	_, err = h.run("event-status", "12abc")
	assert.ErrorContains(t, err, "invalid id")

	_, err = h.run("jobs", "requeue")
	assert.ErrorContains(t, err, "id argument is required")

	_, err = h.run("migrate")
	assert.ErrorContains(t, err, "migrations are not available")
}
