package postgresadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	application "taskpipe/contexts/async-delivery/task-pipeline/application"
	"taskpipe/contexts/async-delivery/task-pipeline/domain/entities"
	domainerrors "taskpipe/contexts/async-delivery/task-pipeline/domain/errors"
	"taskpipe/contexts/async-delivery/task-pipeline/ports"
	"taskpipe/internal/shared/outbox"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var skipLocked = clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}

// Repository implements the outbox, job and heartbeat stores on Postgres.
type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewRepository(db *gorm.DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) WithinBridgeTx(ctx context.Context, fn func(tx ports.BridgeTx) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(bridgeTx{db: tx})
	})
}

func (r *Repository) AppendEvent(ctx context.Context, event entities.OutboxEvent) (entities.OutboxEvent, error) {
	appended, err := outbox.Append(ctx, r.db, outbox.Message{
		EventName: event.EventName,
		CompanyID: event.CompanyID,
		DriverID:  event.DriverID,
		RequestID: event.RequestID,
		TicketID:  event.TicketID,
		Metadata:  event.Metadata,
		CreatedAt: event.CreatedAt,
	})
	if err != nil {
		return entities.OutboxEvent{}, r.logError("outbox_append_failed", err,
			"event_name", event.EventName,
		)
	}
	event.ID = appended.ID
	event.CreatedAt = appended.CreatedAt
	event.QueueStatus = entities.QueueStatusPending
	event.QueuedAt = nil
	return event, nil
}

func (r *Repository) GetEvent(ctx context.Context, eventID int64) (entities.OutboxEvent, error) {
	var row outboxEventModel
	err := r.db.WithContext(ctx).Where("id = ?", eventID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.OutboxEvent{}, domainerrors.ErrEventNotFound
		}
		return entities.OutboxEvent{}, err
	}
	return row.toEntity(), nil
}

type bridgeTx struct {
	db *gorm.DB
}

func (t bridgeTx) LockPendingEvents(ctx context.Context, limit int) ([]entities.OutboxEvent, error) {
	var rows []outboxEventModel
	if err := t.db.WithContext(ctx).
		Clauses(skipLocked).
		Where("queue_status = ?", string(entities.QueueStatusPending)).
		Order("id ASC").
		Limit(limit).
		Find(&rows).
		Error; err != nil {
		return nil, err
	}
	items := make([]entities.OutboxEvent, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items, nil
}

func (t bridgeTx) MarkEventsQueued(ctx context.Context, eventIDs []int64, queuedAt time.Time) error {
	if len(eventIDs) == 0 {
		return nil
	}
	return t.db.WithContext(ctx).
		Model(&outboxEventModel{}).
		Where("id IN ?", eventIDs).
		Where("queue_status = ?", string(entities.QueueStatusPending)).
		Updates(map[string]any{
			"queue_status": string(entities.QueueStatusQueued),
			"queued_at":    queuedAt.UTC(),
		}).
		Error
}

// InsertJob uses ON CONFLICT DO NOTHING; a raised unique violation would
// abort the surrounding transaction.
func (t bridgeTx) InsertJob(ctx context.Context, job entities.Job) (bool, error) {
	row := jobModelFromEntity(job)
	create := t.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row)
	if create.Error != nil {
		if isUniqueViolation(create.Error) {
			return false, nil
		}
		return false, create.Error
	}
	return create.RowsAffected > 0, nil
}

func (r *Repository) ClaimJobs(ctx context.Context, workerID string, limit int, now time.Time) ([]entities.Job, error) {
	now = now.UTC()
	var ids []int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var candidates []jobModel
		if err := tx.
			Select("id").
			Clauses(skipLocked).
			Where("status = ?", string(entities.JobStatusPending)).
			Where("run_at <= ?", now).
			Order("id ASC").
			Limit(limit).
			Find(&candidates).
			Error; err != nil {
			return err
		}
		if len(candidates) == 0 {
			return nil
		}
		ids = make([]int64, 0, len(candidates))
		for _, candidate := range candidates {
			ids = append(ids, candidate.ID)
		}
		return tx.Model(&jobModel{}).
			Where("id IN ?", ids).
			Updates(map[string]any{
				"status":     string(entities.JobStatusProcessing),
				"locked_by":  workerID,
				"locked_at":  now,
				"updated_at": now,
			}).
			Error
	})
	if err != nil {
		return nil, r.logError("job_claim_failed", err, "worker_id", workerID)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	var rows []jobModel
	if err := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Where("locked_by = ?", workerID).
		Order("id ASC").
		Find(&rows).
		Error; err != nil {
		return nil, err
	}
	items := make([]entities.Job, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items, nil
}

func (r *Repository) MarkJobDone(ctx context.Context, jobID int64, workerID string, now time.Time) error {
	return r.updateLeased(ctx, jobID, workerID, map[string]any{
		"status":     string(entities.JobStatusDone),
		"locked_by":  nil,
		"locked_at":  nil,
		"updated_at": now.UTC(),
	})
}

func (r *Repository) MarkJobFailed(ctx context.Context, jobID int64, workerID string, failure entities.JobFailure, now time.Time) error {
	return r.updateLeased(ctx, jobID, workerID, map[string]any{
		"status":     string(failure.Status),
		"attempts":   failure.Attempts,
		"run_at":     failure.RunAt.UTC(),
		"last_error": failure.LastError,
		"locked_by":  nil,
		"locked_at":  nil,
		"updated_at": now.UTC(),
	})
}

func (r *Repository) ReleaseJob(ctx context.Context, jobID int64, workerID string, now time.Time) error {
	return r.updateLeased(ctx, jobID, workerID, map[string]any{
		"status":     string(entities.JobStatusPending),
		"locked_by":  nil,
		"locked_at":  nil,
		"updated_at": now.UTC(),
	})
}

func (r *Repository) updateLeased(ctx context.Context, jobID int64, workerID string, updates map[string]any) error {
	result := r.db.WithContext(ctx).
		Model(&jobModel{}).
		Where("id = ?", jobID).
		Where("status = ?", string(entities.JobStatusProcessing)).
		Where("locked_by = ?", workerID).
		Updates(updates)
	if result.Error != nil {
		return r.logError("job_outcome_update_failed", result.Error, "job_id", jobID)
	}
	if result.RowsAffected > 0 {
		return nil
	}
	if _, err := r.GetJob(ctx, jobID); err != nil {
		return err
	}
	return domainerrors.ErrLeaseLost
}

func (r *Repository) ReclaimExpiredLeases(ctx context.Context, staleBefore time.Time, now time.Time) (int, error) {
	result := r.db.WithContext(ctx).
		Model(&jobModel{}).
		Where("status = ?", string(entities.JobStatusProcessing)).
		Where("locked_at < ?", staleBefore.UTC()).
		Updates(map[string]any{
			"status":     string(entities.JobStatusPending),
			"locked_by":  nil,
			"locked_at":  nil,
			"last_error": gorm.Expr(
				"CASE WHEN COALESCE(TRIM(last_error), '') = '' THEN ? WHEN last_error LIKE ? THEN last_error ELSE ? || TRIM(last_error) || ')' END",
				entities.LeaseExpiredError,
				entities.LeaseExpiredError+"%",
				entities.LeaseExpiredError+" (previous: ",
			),
			"updated_at": now.UTC(),
		})
	if result.Error != nil {
		return 0, r.logError("job_lease_reclaim_failed", result.Error)
	}
	return int(result.RowsAffected), nil
}

func (r *Repository) EnqueueJob(ctx context.Context, job entities.Job) (entities.Job, bool, error) {
	row := jobModelFromEntity(job)
	create := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row)
	if create.Error != nil && !isUniqueViolation(create.Error) {
		return entities.Job{}, false, r.logError("job_enqueue_failed", create.Error,
			"job_type", job.JobType,
		)
	}
	if create.Error == nil && create.RowsAffected > 0 {
		return row.toEntity(), true, nil
	}

	existing, err := r.findConflicting(ctx, job)
	if err != nil {
		return entities.Job{}, false, err
	}
	return existing, false, nil
}

func (r *Repository) findConflicting(ctx context.Context, job entities.Job) (entities.Job, error) {
	tx := r.db.WithContext(ctx)
	switch {
	case strings.TrimSpace(job.IdempotencyKey) != "":
		tx = tx.Where("idempotency_key = ?", strings.TrimSpace(job.IdempotencyKey))
	case job.SourceEventID != nil:
		tx = tx.Where("source_event_id = ?", *job.SourceEventID)
	default:
		return entities.Job{}, domainerrors.ErrJobNotFound
	}
	var row jobModel
	if err := tx.First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Job{}, domainerrors.ErrJobNotFound
		}
		return entities.Job{}, err
	}
	return row.toEntity(), nil
}

func (r *Repository) GetJob(ctx context.Context, jobID int64) (entities.Job, error) {
	var row jobModel
	err := r.db.WithContext(ctx).Where("id = ?", jobID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Job{}, domainerrors.ErrJobNotFound
		}
		return entities.Job{}, err
	}
	return row.toEntity(), nil
}

func (r *Repository) GetJobBySourceEvent(ctx context.Context, eventID int64) (entities.Job, bool, error) {
	var rows []jobModel
	if err := r.db.WithContext(ctx).
		Where("source_event_id = ?", eventID).
		Limit(1).
		Find(&rows).
		Error; err != nil {
		return entities.Job{}, false, err
	}
	if len(rows) == 0 {
		return entities.Job{}, false, nil
	}
	return rows[0].toEntity(), true, nil
}

func (r *Repository) ListJobs(ctx context.Context, filter ports.JobFilter) ([]entities.Job, error) {
	tx := r.db.WithContext(ctx).Model(&jobModel{})
	if filter.Status != "" {
		tx = tx.Where("status = ?", string(filter.Status))
	}
	if strings.TrimSpace(filter.JobType) != "" {
		tx = tx.Where("job_type = ?", strings.TrimSpace(filter.JobType))
	}
	if filter.Limit > 0 {
		tx = tx.Limit(filter.Limit)
	}

	var rows []jobModel
	if err := tx.Order("id DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	items := make([]entities.Job, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items, nil
}

func (r *Repository) CountJobsByStatus(ctx context.Context) (ports.QueueStats, error) {
	var rows []struct {
		Status string
		Total  int64
	}
	if err := r.db.WithContext(ctx).
		Model(&jobModel{}).
		Select("status, COUNT(*) AS total").
		Group("status").
		Scan(&rows).
		Error; err != nil {
		return ports.QueueStats{}, err
	}

	var stats ports.QueueStats
	for _, row := range rows {
		switch entities.JobStatus(row.Status) {
		case entities.JobStatusPending:
			stats.Pending = row.Total
		case entities.JobStatusProcessing:
			stats.Processing = row.Total
		case entities.JobStatusDone:
			stats.Done = row.Total
		case entities.JobStatusDead:
			stats.Dead = row.Total
		}
	}
	return stats, nil
}

func (r *Repository) RequeueDeadJob(ctx context.Context, jobID int64, now time.Time) (entities.Job, error) {
	now = now.UTC()
	result := r.db.WithContext(ctx).
		Model(&jobModel{}).
		Where("id = ?", jobID).
		Where("status = ?", string(entities.JobStatusDead)).
		Updates(map[string]any{
			"status":     string(entities.JobStatusPending),
			"attempts":   0,
			"run_at":     now,
			"locked_by":  nil,
			"locked_at":  nil,
			"updated_at": now,
		})
	if result.Error != nil {
		return entities.Job{}, r.logError("job_requeue_failed", result.Error, "job_id", jobID)
	}
	job, err := r.GetJob(ctx, jobID)
	if err != nil {
		return entities.Job{}, err
	}
	if result.RowsAffected == 0 {
		return entities.Job{}, domainerrors.ErrJobNotDead
	}
	return job, nil
}

func (r *Repository) UpsertHeartbeat(ctx context.Context, heartbeat entities.WorkerHeartbeat) error {
	row := heartbeatModelFromEntity(heartbeat)
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "worker_name"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_seen", "status", "metadata"}),
	}).Create(&row)
	if create.Error != nil {
		return r.logError("worker_heartbeat_upsert_failed", create.Error,
			"worker_name", heartbeat.WorkerName,
		)
	}
	return nil
}

func (r *Repository) GetHeartbeat(ctx context.Context, workerName string) (entities.WorkerHeartbeat, error) {
	var row heartbeatModel
	err := r.db.WithContext(ctx).
		Where("worker_name = ?", strings.TrimSpace(workerName)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.WorkerHeartbeat{}, domainerrors.ErrWorkerNotFound
		}
		return entities.WorkerHeartbeat{}, err
	}
	return row.toEntity(), nil
}

func (r *Repository) logError(event string, err error, attrs ...any) error {
	fields := make([]any, 0, len(attrs)+8)
	fields = append(fields,
		"event", event,
		"module", application.ModuleName,
		"layer", "adapter",
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	r.logger.Error("task pipeline repository operation failed", fields...)
	return err
}

type outboxEventModel struct {
	ID          int64          `gorm:"column:id;primaryKey;autoIncrement"`
	EventName   string         `gorm:"column:event_name"`
	CreatedAt   time.Time      `gorm:"column:created_at"`
	CompanyID   *string        `gorm:"column:company_id"`
	DriverID    *string        `gorm:"column:driver_id"`
	RequestID   *string        `gorm:"column:request_id"`
	TicketID    *string        `gorm:"column:ticket_id"`
	Metadata    datatypes.JSON `gorm:"column:metadata"`
	QueueStatus string         `gorm:"column:queue_status"`
	QueuedAt    *time.Time     `gorm:"column:queued_at"`
}

func (outboxEventModel) TableName() string {
	return "outbox_events"
}

func (m outboxEventModel) toEntity() entities.OutboxEvent {
	metadata := json.RawMessage("{}")
	if len(m.Metadata) > 0 {
		metadata = json.RawMessage(append([]byte(nil), m.Metadata...))
	}
	return entities.OutboxEvent{
		ID:          m.ID,
		EventName:   m.EventName,
		CreatedAt:   m.CreatedAt.UTC(),
		CompanyID:   stringValue(m.CompanyID),
		DriverID:    stringValue(m.DriverID),
		RequestID:   stringValue(m.RequestID),
		TicketID:    stringValue(m.TicketID),
		Metadata:    metadata,
		QueueStatus: entities.QueueStatus(m.QueueStatus),
		QueuedAt:    utcPtr(m.QueuedAt),
	}
}

type jobModel struct {
	ID             int64          `gorm:"column:id;primaryKey;autoIncrement"`
	JobType        string         `gorm:"column:job_type"`
	Payload        datatypes.JSON `gorm:"column:payload"`
	Status         string         `gorm:"column:status"`
	Attempts       int            `gorm:"column:attempts"`
	MaxAttempts    int            `gorm:"column:max_attempts"`
	RunAt          time.Time      `gorm:"column:run_at"`
	LockedBy       *string        `gorm:"column:locked_by"`
	LockedAt       *time.Time     `gorm:"column:locked_at"`
	LastError      *string        `gorm:"column:last_error"`
	IdempotencyKey *string        `gorm:"column:idempotency_key"`
	SourceEventID  *int64         `gorm:"column:source_event_id"`
	CreatedAt      time.Time      `gorm:"column:created_at"`
	UpdatedAt      time.Time      `gorm:"column:updated_at"`
}

func (jobModel) TableName() string {
	return "jobs"
}

func jobModelFromEntity(item entities.Job) jobModel {
	payload := datatypes.JSON("{}")
	if len(item.Payload) > 0 {
		payload = datatypes.JSON(item.Payload)
	}
	status := item.Status
	if status == "" {
		status = entities.JobStatusPending
	}
	return jobModel{
		ID:             item.ID,
		JobType:        strings.TrimSpace(item.JobType),
		Payload:        payload,
		Status:         string(status),
		Attempts:       item.Attempts,
		MaxAttempts:    item.MaxAttempts,
		RunAt:          item.RunAt.UTC(),
		LockedBy:       nullableString(item.LockedBy),
		LockedAt:       utcPtr(item.LockedAt),
		LastError:      nullableString(item.LastError),
		IdempotencyKey: nullableString(item.IdempotencyKey),
		SourceEventID:  item.SourceEventID,
		CreatedAt:      item.CreatedAt.UTC(),
		UpdatedAt:      item.UpdatedAt.UTC(),
	}
}

func (m jobModel) toEntity() entities.Job {
	var sourceEventID *int64
	if m.SourceEventID != nil {
		value := *m.SourceEventID
		sourceEventID = &value
	}
	return entities.Job{
		ID:             m.ID,
		JobType:        m.JobType,
		Payload:        json.RawMessage(append([]byte(nil), m.Payload...)),
		Status:         entities.JobStatus(m.Status),
		Attempts:       m.Attempts,
		MaxAttempts:    m.MaxAttempts,
		RunAt:          m.RunAt.UTC(),
		LockedBy:       stringValue(m.LockedBy),
		LockedAt:       utcPtr(m.LockedAt),
		LastError:      stringValue(m.LastError),
		IdempotencyKey: stringValue(m.IdempotencyKey),
		SourceEventID:  sourceEventID,
		CreatedAt:      m.CreatedAt.UTC(),
		UpdatedAt:      m.UpdatedAt.UTC(),
	}
}

type heartbeatModel struct {
	WorkerName string                                `gorm:"column:worker_name;primaryKey"`
	LastSeen   time.Time                             `gorm:"column:last_seen"`
	Status     string                                `gorm:"column:status"`
	Metadata   datatypes.JSONType[map[string]string] `gorm:"column:metadata"`
}

func (heartbeatModel) TableName() string {
	return "worker_heartbeats"
}

func heartbeatModelFromEntity(item entities.WorkerHeartbeat) heartbeatModel {
	metadata := map[string]string{}
	for key, value := range item.Metadata {
		metadata[key] = value
	}
	return heartbeatModel{
		WorkerName: strings.TrimSpace(item.WorkerName),
		LastSeen:   item.LastSeen.UTC(),
		Status:     item.Status,
		Metadata:   datatypes.NewJSONType(metadata),
	}
}

func (m heartbeatModel) toEntity() entities.WorkerHeartbeat {
	return entities.WorkerHeartbeat{
		WorkerName: m.WorkerName,
		LastSeen:   m.LastSeen.UTC(),
		Status:     m.Status,
		Metadata:   m.Metadata.Data(),
	}
}

func nullableString(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

func stringValue(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func utcPtr(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	utc := value.UTC()
	return &utc
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
