package httptransport

import "encoding/json"

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type JobDTO struct {
	JobID          int64           `json:"job_id"`
	JobType        string          `json:"job_type"`
	Payload        json.RawMessage `json:"payload" swaggertype:"object"`
	Status         string          `json:"status"`
	Attempts       int             `json:"attempts"`
	MaxAttempts    int             `json:"max_attempts"`
	RunAt          string          `json:"run_at"`
	LockedBy       string          `json:"locked_by,omitempty"`
	LockedAt       string          `json:"locked_at,omitempty"`
	LastError      string          `json:"last_error,omitempty"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	SourceEventID  *int64          `json:"source_event_id,omitempty"`
	CreatedAt      string          `json:"created_at"`
	UpdatedAt      string          `json:"updated_at"`
}

type ListJobsRequest struct {
	Status  string `json:"status,omitempty"`
	JobType string `json:"job_type,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

type ListJobsResponse struct {
	Items []JobDTO `json:"items"`
}

type GetJobResponse struct {
	Item JobDTO `json:"item"`
}

type QueueStatsResponse struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Done       int64 `json:"done"`
	Dead       int64 `json:"dead"`
}

type EnqueueJobRequest struct {
	JobType     string          `json:"job_type"`
	Payload     json.RawMessage `json:"payload" swaggertype:"object"`
	RunAt       string          `json:"run_at,omitempty"`
	MaxAttempts int             `json:"max_attempts,omitempty"`
}

type EnqueueJobResponse struct {
	JobID   int64 `json:"job_id"`
	Created bool  `json:"created"`
}

type RequeueJobResponse struct {
	Item JobDTO `json:"item"`
}

type EventStatusResponse struct {
	EventID     int64   `json:"event_id"`
	EventName   string  `json:"event_name"`
	QueueStatus string  `json:"queue_status"`
	QueuedAt    string  `json:"queued_at,omitempty"`
	Status      string  `json:"status"`
	Job         *JobDTO `json:"job,omitempty"`
}

type WorkerHealthResponse struct {
	WorkerName string            `json:"worker_name"`
	Status     string            `json:"status"`
	LastSeen   string            `json:"last_seen"`
	AgeSeconds int64             `json:"age_seconds"`
	Healthy    bool              `json:"healthy"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

type HealthResponse struct {
	Status string `json:"status"`
}
