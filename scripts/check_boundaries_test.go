package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSource(t *testing.T, root string, rel string, imports ...string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	source := "package x\n\nimport (\n"
	for _, imp := range imports {
		source += "\t_ \"" + imp + "\"\n"
	}
	source += ")\n"
	require.NoError(t, os.WriteFile(path, []byte(source), 0o644))
}

func TestCollectViolations(t *testing.T) {
	root := filepath.Join(t.TempDir(), "contexts")
	svc := "contexts/async-delivery/task-pipeline"
	prefix := "taskpipe/" + svc

	writeSource(t, filepath.Dir(root), svc+"/domain/entities/job.go", "time", prefix+"/domain/errors")
	writeSource(t, filepath.Dir(root), svc+"/domain/services/bad.go", prefix+"/adapters/memory", "github.com/google/uuid")
	writeSource(t, filepath.Dir(root), svc+"/application/workers/ok.go",
		"context", prefix+"/ports", "taskpipe/internal/shared/events", "go.opentelemetry.io/otel")
	writeSource(t, filepath.Dir(root), svc+"/application/workers/bad.go",
		"taskpipe/internal/platform/db", prefix+"/adapters/postgres", "taskpipe/contexts/billing/invoices/domain")
	writeSource(t, filepath.Dir(root), svc+"/application/workers/skip_test.go", "taskpipe/internal/platform/db")

	violations := collectViolations(root)

	rules := make(map[string]string, len(violations))
	for _, v := range violations {
		assert.NotEqual(t, svc+"/application/workers/ok.go", v.File)
		assert.NotEqual(t, svc+"/domain/entities/job.go", v.File)
		rules[v.Import] = v.Rule
	}
	assert.Equal(t, map[string]string{
		prefix + "/adapters/memory":                 "domain must not import adapters",
		"github.com/google/uuid":                    "domain import is outside explicit allowlist",
		"taskpipe/internal/platform/db":             "application must not import runtime infrastructure",
		prefix + "/adapters/postgres":               "application must not import adapters",
		"taskpipe/contexts/billing/invoices/domain": "application import is outside explicit allowlist",
	}, rules)
}

func TestIsStdlib(t *testing.T) {
	assert.True(t, isStdlib("net/http"))
	assert.False(t, isStdlib("github.com/redis/go-redis/v9"))
	assert.False(t, isStdlib("taskpipe/internal/shared/events"))
}
