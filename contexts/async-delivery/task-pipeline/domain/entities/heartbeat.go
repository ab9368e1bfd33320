package entities

import "time"

const (
	HeartbeatStatusRunning = "running"
	HeartbeatStatusStopped = "stopped"
)

// WorkerHeartbeat is upserted per logical worker role, not per process.
type WorkerHeartbeat struct {
	WorkerName string
	LastSeen   time.Time
	Status     string
	Metadata   map[string]string
}

func (h WorkerHeartbeat) IsFresh(now time.Time, window time.Duration) bool {
	if h.Status != HeartbeatStatusRunning {
		return false
	}
	return now.Sub(h.LastSeen) <= window
}
