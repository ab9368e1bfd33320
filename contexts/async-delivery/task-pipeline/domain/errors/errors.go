package errors

import "errors"

var (
	ErrInvalidJob          = errors.New("invalid job")
	ErrInvalidEvent        = errors.New("invalid outbox event")
	ErrJobNotFound         = errors.New("job not found")
	ErrEventNotFound       = errors.New("outbox event not found")
	ErrJobNotDead          = errors.New("job is not dead")
	ErrUnknownJobType      = errors.New("unknown job type")
	ErrDuplicateHandler    = errors.New("handler already registered for job type")
	ErrDuplicateTranslator = errors.New("translator already registered for event name")
	ErrLeaseLost           = errors.New("job lease lost")
	ErrInvalidPayload      = errors.New("invalid job payload")
	ErrWorkerNotFound      = errors.New("worker heartbeat not found")
	ErrInvalidJobFilter    = errors.New("invalid job filter")
)
