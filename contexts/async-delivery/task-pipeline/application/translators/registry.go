package translators

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"taskpipe/contexts/async-delivery/task-pipeline/domain/entities"
	domainerrors "taskpipe/contexts/async-delivery/task-pipeline/domain/errors"
	"taskpipe/contexts/async-delivery/task-pipeline/ports"
)

// Registry routes outbox events to the translator registered for their
// event name. Events with no registration translate to nothing.
type Registry struct {
	mu      sync.RWMutex
	byEvent map[string]ports.EventTranslator
}

func NewRegistry() *Registry {
	return &Registry{byEvent: make(map[string]ports.EventTranslator)}
}

func (r *Registry) Register(translator ports.EventTranslator, eventNames ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, name := range eventNames {
		key := strings.TrimSpace(name)
		if key == "" {
			return fmt.Errorf("register translator: %w", domainerrors.ErrInvalidEvent)
		}
		if _, exists := r.byEvent[key]; exists {
			return fmt.Errorf("register translator for %q: %w", key, domainerrors.ErrDuplicateTranslator)
		}
		r.byEvent[key] = translator
	}
	return nil
}

func (r *Registry) Translate(event entities.OutboxEvent) (entities.JobSpec, bool, error) {
	r.mu.RLock()
	translator, ok := r.byEvent[event.EventName]
	r.mu.RUnlock()
	if !ok {
		return entities.JobSpec{}, false, nil
	}
	return translator.Translate(event)
}

func (r *Registry) EventNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.byEvent))
	for name := range r.byEvent {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Options configures the built-in translators.
type Options struct {
	AppBaseURL  string
	MaxAttempts int
}

// NewDefaultRegistry registers the email and realtime routes.
func NewDefaultRegistry(opts Options) (*Registry, error) {
	registry := NewRegistry()
	email := EmailTranslator{AppBaseURL: opts.AppBaseURL, MaxAttempts: opts.MaxAttempts}
	if err := registry.Register(email, EmailEventNames...); err != nil {
		return nil, err
	}
	realtime := RealtimeTranslator{MaxAttempts: opts.MaxAttempts}
	if err := registry.Register(realtime, RealtimeEventNames...); err != nil {
		return nil, err
	}
	return registry, nil
}

func sourceSpec(event entities.OutboxEvent, jobType string, payload []byte, maxAttempts int) entities.JobSpec {
	eventID := event.ID
	return entities.JobSpec{
		JobType:        jobType,
		Payload:        payload,
		MaxAttempts:    maxAttempts,
		IdempotencyKey: entities.OutboxIdempotencyKey(event.ID),
		SourceEventID:  &eventID,
	}
}
