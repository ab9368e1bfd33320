package memory

import (
	"context"
	"sync"

	"taskpipe/contexts/async-delivery/task-pipeline/ports"
)

// EmailRecorder is an EmailSender that keeps every message instead of sending
// it. Fail, when set, decides the outcome of each send.
type EmailRecorder struct {
	mu   sync.Mutex
	sent []ports.EmailMessage
	Fail func(message ports.EmailMessage) error
}

func (r *EmailRecorder) Send(_ context.Context, message ports.EmailMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Fail != nil {
		if err := r.Fail(message); err != nil {
			return err
		}
	}
	r.sent = append(r.sent, message)
	return nil
}

func (r *EmailRecorder) Sent() []ports.EmailMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ports.EmailMessage(nil), r.sent...)
}

type PublishedMessage struct {
	Channel string
	Payload []byte
}

// RealtimeRecorder is a RealtimePublisher with no live subscribers.
type RealtimeRecorder struct {
	mu        sync.Mutex
	published []PublishedMessage
	Receivers int64
}

func (r *RealtimeRecorder) Publish(_ context.Context, channel string, message []byte) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.published = append(r.published, PublishedMessage{
		Channel: channel,
		Payload: append([]byte(nil), message...),
	})
	return r.Receivers, nil
}

func (r *RealtimeRecorder) Published() []PublishedMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]PublishedMessage(nil), r.published...)
}
