package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	domainerrors "taskpipe/contexts/async-delivery/task-pipeline/domain/errors"
	"taskpipe/contexts/async-delivery/task-pipeline/ports"
)

// HandlerFunc adapts a function to ports.JobHandler.
type HandlerFunc func(ctx context.Context, payload json.RawMessage) error

func (f HandlerFunc) Handle(ctx context.Context, payload json.RawMessage) error {
	return f(ctx, payload)
}

// Registry maps a job type to exactly one handler.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]ports.JobHandler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]ports.JobHandler)}
}

func (r *Registry) Register(jobType string, handler ports.JobHandler) error {
	key := strings.TrimSpace(jobType)
	if key == "" || handler == nil {
		return fmt.Errorf("register handler %q: %w", jobType, domainerrors.ErrInvalidJob)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[key]; exists {
		return fmt.Errorf("register handler %q: %w", key, domainerrors.ErrDuplicateHandler)
	}
	r.handlers[key] = handler
	return nil
}

func (r *Registry) Lookup(jobType string) (ports.JobHandler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handler, ok := r.handlers[jobType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domainerrors.ErrUnknownJobType, jobType)
	}
	return handler, nil
}

func (r *Registry) JobTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.handlers))
	for jobType := range r.handlers {
		types = append(types, jobType)
	}
	sort.Strings(types)
	return types
}
