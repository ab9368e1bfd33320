package entities

// EffectiveStatus is the observable state of an outbox event, derived from the
// event row and the job it produced (if any).
type EffectiveStatus string

const (
	EffectiveStatusPending    EffectiveStatus = "pending"
	EffectiveStatusDropped    EffectiveStatus = "dropped"
	EffectiveStatusQueued     EffectiveStatus = "queued"
	EffectiveStatusProcessing EffectiveStatus = "processing"
	EffectiveStatusDone       EffectiveStatus = "done"
	EffectiveStatusDead       EffectiveStatus = "dead"
)

func ResolveEffectiveStatus(event OutboxEvent, job *Job) EffectiveStatus {
	if event.QueueStatus != QueueStatusQueued {
		return EffectiveStatusPending
	}
	if job == nil {
		return EffectiveStatusDropped
	}
	switch job.Status {
	case JobStatusProcessing:
		return EffectiveStatusProcessing
	case JobStatusDone:
		return EffectiveStatusDone
	case JobStatusDead:
		return EffectiveStatusDead
	default:
		return EffectiveStatusQueued
	}
}
