package memory

import (
	"context"
	"encoding/json"
	"log/slog"
	"maps"
	"sort"
	"sync"
	"time"

	application "taskpipe/contexts/async-delivery/task-pipeline/application"
	"taskpipe/contexts/async-delivery/task-pipeline/domain/entities"
	domainerrors "taskpipe/contexts/async-delivery/task-pipeline/domain/errors"
	"taskpipe/contexts/async-delivery/task-pipeline/ports"
)

// Store is an in-memory adapter implementing the task pipeline ports for local
// runtime and tests. A single mutex stands in for database transactions.
// It is not intended as production persistence.
type Store struct {
	mu         sync.Mutex
	events     map[int64]entities.OutboxEvent
	jobs       map[int64]entities.Job
	bySource   map[int64]int64
	byKey      map[string]int64
	heartbeats map[string]entities.WorkerHeartbeat
	eventSeq   int64
	jobSeq     int64
	logger     *slog.Logger
}

func NewStore(logger *slog.Logger) *Store {
	return &Store{
		events:     make(map[int64]entities.OutboxEvent),
		jobs:       make(map[int64]entities.Job),
		bySource:   make(map[int64]int64),
		byKey:      make(map[string]int64),
		heartbeats: make(map[string]entities.WorkerHeartbeat),
		logger:     application.ResolveLogger(logger),
	}
}

func (s *Store) Now() time.Time {
	return time.Now().UTC()
}

func (s *Store) AppendEvent(_ context.Context, event entities.OutboxEvent) (entities.OutboxEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.eventSeq++
	event.ID = s.eventSeq
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	if event.QueueStatus == "" {
		event.QueueStatus = entities.QueueStatusPending
	}
	event.Metadata = append(json.RawMessage(nil), event.Metadata...)
	s.events[event.ID] = event
	return copyEvent(event), nil
}

func (s *Store) GetEvent(_ context.Context, eventID int64) (entities.OutboxEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.events[eventID]
	if !ok {
		return entities.OutboxEvent{}, domainerrors.ErrEventNotFound
	}
	return copyEvent(event), nil
}

// WithinBridgeTx serializes bridge runs and restores the previous state when
// fn fails, mirroring a rolled back transaction.
func (s *Store) WithinBridgeTx(_ context.Context, fn func(tx ports.BridgeTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.snapshotLocked()
	if err := fn(bridgeTx{store: s}); err != nil {
		s.restoreLocked(snapshot)
		s.logger.Debug("bridge transaction rolled back in memory store",
			"event", "memory_bridge_rollback",
			"module", application.ModuleName,
			"layer", "adapter",
			"error", err.Error(),
		)
		return err
	}
	return nil
}

type bridgeTx struct {
	store *Store
}

func (t bridgeTx) LockPendingEvents(_ context.Context, limit int) ([]entities.OutboxEvent, error) {
	ids := make([]int64, 0)
	for id, event := range t.store.events {
		if event.QueueStatus == entities.QueueStatusPending {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	items := make([]entities.OutboxEvent, 0, len(ids))
	for _, id := range ids {
		items = append(items, copyEvent(t.store.events[id]))
	}
	return items, nil
}

func (t bridgeTx) MarkEventsQueued(_ context.Context, eventIDs []int64, queuedAt time.Time) error {
	for _, id := range eventIDs {
		event, ok := t.store.events[id]
		if !ok || event.QueueStatus != entities.QueueStatusPending {
			continue
		}
		stamp := queuedAt.UTC()
		event.QueueStatus = entities.QueueStatusQueued
		event.QueuedAt = &stamp
		t.store.events[id] = event
	}
	return nil
}

func (t bridgeTx) InsertJob(_ context.Context, job entities.Job) (bool, error) {
	if _, found := t.store.conflictLocked(job); found {
		return false, nil
	}
	t.store.insertLocked(job)
	return true, nil
}

func (s *Store) EnqueueJob(_ context.Context, job entities.Job) (entities.Job, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, found := s.conflictLocked(job); found {
		return copyJob(existing), false, nil
	}
	return copyJob(s.insertLocked(job)), true, nil
}

func (s *Store) ClaimJobs(_ context.Context, workerID string, limit int, now time.Time) ([]entities.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]int64, 0)
	for id, job := range s.jobs {
		if job.IsEligible(now) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	claimed := make([]entities.Job, 0, len(ids))
	for _, id := range ids {
		job := s.jobs[id]
		lockedAt := now.UTC()
		job.Status = entities.JobStatusProcessing
		job.LockedBy = workerID
		job.LockedAt = &lockedAt
		job.UpdatedAt = now.UTC()
		s.jobs[id] = job
		claimed = append(claimed, copyJob(job))
	}
	return claimed, nil
}

func (s *Store) MarkJobDone(_ context.Context, jobID int64, workerID string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.leasedLocked(jobID, workerID)
	if err != nil {
		return err
	}
	job.Status = entities.JobStatusDone
	job.LockedBy = ""
	job.LockedAt = nil
	job.UpdatedAt = now.UTC()
	s.jobs[jobID] = job
	return nil
}

func (s *Store) MarkJobFailed(
	_ context.Context,
	jobID int64,
	workerID string,
	failure entities.JobFailure,
	now time.Time,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.leasedLocked(jobID, workerID)
	if err != nil {
		return err
	}
	job.Status = failure.Status
	job.Attempts = failure.Attempts
	job.RunAt = failure.RunAt.UTC()
	job.LastError = failure.LastError
	job.LockedBy = ""
	job.LockedAt = nil
	job.UpdatedAt = now.UTC()
	s.jobs[jobID] = job
	return nil
}

func (s *Store) ReleaseJob(_ context.Context, jobID int64, workerID string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.leasedLocked(jobID, workerID)
	if err != nil {
		return err
	}
	job.Status = entities.JobStatusPending
	job.LockedBy = ""
	job.LockedAt = nil
	job.UpdatedAt = now.UTC()
	s.jobs[jobID] = job
	return nil
}

func (s *Store) ReclaimExpiredLeases(_ context.Context, staleBefore time.Time, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reclaimed := 0
	for id, job := range s.jobs {
		if !job.LeaseExpired(staleBefore) {
			continue
		}
		job.Status = entities.JobStatusPending
		job.LockedBy = ""
		job.LockedAt = nil
		job.LastError = entities.LeaseExpiredReason(job.LastError)
		job.UpdatedAt = now.UTC()
		s.jobs[id] = job
		reclaimed++
	}
	return reclaimed, nil
}

func (s *Store) GetJob(_ context.Context, jobID int64) (entities.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return entities.Job{}, domainerrors.ErrJobNotFound
	}
	return copyJob(job), nil
}

func (s *Store) GetJobBySourceEvent(_ context.Context, eventID int64) (entities.Job, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobID, ok := s.bySource[eventID]
	if !ok {
		return entities.Job{}, false, nil
	}
	return copyJob(s.jobs[jobID]), true, nil
}

func (s *Store) ListJobs(_ context.Context, filter ports.JobFilter) ([]entities.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]entities.Job, 0)
	for _, job := range s.jobs {
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		if filter.JobType != "" && job.JobType != filter.JobType {
			continue
		}
		items = append(items, copyJob(job))
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID > items[j].ID })
	if filter.Limit > 0 && len(items) > filter.Limit {
		items = items[:filter.Limit]
	}
	return items, nil
}

func (s *Store) CountJobsByStatus(_ context.Context) (ports.QueueStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stats ports.QueueStats
	for _, job := range s.jobs {
		switch job.Status {
		case entities.JobStatusPending:
			stats.Pending++
		case entities.JobStatusProcessing:
			stats.Processing++
		case entities.JobStatusDone:
			stats.Done++
		case entities.JobStatusDead:
			stats.Dead++
		}
	}
	return stats, nil
}

func (s *Store) RequeueDeadJob(_ context.Context, jobID int64, now time.Time) (entities.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return entities.Job{}, domainerrors.ErrJobNotFound
	}
	if job.Status != entities.JobStatusDead {
		return entities.Job{}, domainerrors.ErrJobNotDead
	}
	job.Status = entities.JobStatusPending
	job.Attempts = 0
	job.RunAt = now.UTC()
	job.UpdatedAt = now.UTC()
	s.jobs[jobID] = job
	return copyJob(job), nil
}

func (s *Store) UpsertHeartbeat(_ context.Context, heartbeat entities.WorkerHeartbeat) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	heartbeat.Metadata = maps.Clone(heartbeat.Metadata)
	s.heartbeats[heartbeat.WorkerName] = heartbeat
	return nil
}

func (s *Store) GetHeartbeat(_ context.Context, workerName string) (entities.WorkerHeartbeat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	heartbeat, ok := s.heartbeats[workerName]
	if !ok {
		return entities.WorkerHeartbeat{}, domainerrors.ErrWorkerNotFound
	}
	heartbeat.Metadata = maps.Clone(heartbeat.Metadata)
	return heartbeat, nil
}

// SetJobLease rewrites the lease of a job; tests use it to simulate a crashed
// worker.
func (s *Store) SetJobLease(jobID int64, workerID string, lockedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return
	}
	stamp := lockedAt.UTC()
	job.Status = entities.JobStatusProcessing
	job.LockedBy = workerID
	job.LockedAt = &stamp
	s.jobs[jobID] = job
}

func (s *Store) conflictLocked(job entities.Job) (entities.Job, bool) {
	if job.SourceEventID != nil {
		if id, ok := s.bySource[*job.SourceEventID]; ok {
			return s.jobs[id], true
		}
	}
	if job.IdempotencyKey != "" {
		if id, ok := s.byKey[job.IdempotencyKey]; ok {
			return s.jobs[id], true
		}
	}
	return entities.Job{}, false
}

func (s *Store) insertLocked(job entities.Job) entities.Job {
	s.jobSeq++
	job = copyJob(job)
	job.ID = s.jobSeq
	s.jobs[job.ID] = job
	if job.SourceEventID != nil {
		s.bySource[*job.SourceEventID] = job.ID
	}
	if job.IdempotencyKey != "" {
		s.byKey[job.IdempotencyKey] = job.ID
	}
	return job
}

func (s *Store) leasedLocked(jobID int64, workerID string) (entities.Job, error) {
	job, ok := s.jobs[jobID]
	if !ok {
		return entities.Job{}, domainerrors.ErrJobNotFound
	}
	if job.Status != entities.JobStatusProcessing || job.LockedBy != workerID {
		return entities.Job{}, domainerrors.ErrLeaseLost
	}
	return job, nil
}

type storeSnapshot struct {
	events   map[int64]entities.OutboxEvent
	jobs     map[int64]entities.Job
	bySource map[int64]int64
	byKey    map[string]int64
	jobSeq   int64
}

func (s *Store) snapshotLocked() storeSnapshot {
	return storeSnapshot{
		events:   maps.Clone(s.events),
		jobs:     maps.Clone(s.jobs),
		bySource: maps.Clone(s.bySource),
		byKey:    maps.Clone(s.byKey),
		jobSeq:   s.jobSeq,
	}
}

func (s *Store) restoreLocked(snapshot storeSnapshot) {
	s.events = snapshot.events
	s.jobs = snapshot.jobs
	s.bySource = snapshot.bySource
	s.byKey = snapshot.byKey
	s.jobSeq = snapshot.jobSeq
}

func copyEvent(event entities.OutboxEvent) entities.OutboxEvent {
	event.Metadata = append(json.RawMessage(nil), event.Metadata...)
	if event.QueuedAt != nil {
		stamp := *event.QueuedAt
		event.QueuedAt = &stamp
	}
	return event
}

func copyJob(job entities.Job) entities.Job {
	job.Payload = append(json.RawMessage(nil), job.Payload...)
	if job.LockedAt != nil {
		stamp := *job.LockedAt
		job.LockedAt = &stamp
	}
	if job.SourceEventID != nil {
		id := *job.SourceEventID
		job.SourceEventID = &id
	}
	return job
}
