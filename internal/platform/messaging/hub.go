package messaging

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"taskpipe/internal/shared/events"

	"github.com/redis/go-redis/v9"
)

const subscriberBuffer = 128

// Message is one realtime payload as received on a pub/sub channel.
type Message struct {
	Channel string
	Payload []byte
}

// Hub relays realtime channels to in-process subscribers. A gateway process
// runs one hub fed by a Redis pattern subscription and attaches every live
// websocket connection to it.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string][]chan Message
	logger      *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subscribers: make(map[string][]chan Message),
		logger:      logger,
	}
}

// Subscribe attaches one subscriber to every given channel. The returned
// cancel func detaches it and closes the stream.
func (h *Hub) Subscribe(channels []string) (<-chan Message, func()) {
	ch := make(chan Message, subscriberBuffer)

	h.mu.Lock()
	for _, channel := range channels {
		h.subscribers[channel] = append(h.subscribers[channel], ch)
	}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			for _, channel := range channels {
				h.removeSubscriberLocked(channel, ch)
			}
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Dispatch delivers payload to every subscriber of channel and returns how
// many received it. Slow subscribers are skipped rather than blocking the relay.
func (h *Hub) Dispatch(channel string, payload []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for _, sub := range h.subscribers[channel] {
		select {
		case sub <- Message{Channel: channel, Payload: payload}:
			delivered++
		default:
			h.logger.Warn("dropping realtime message for slow subscriber",
				"event", "realtime_dispatch_drop",
				"module", "internal/platform/messaging",
				"layer", "platform",
				"channel", channel,
			)
		}
	}
	return delivered
}

func (h *Hub) SubscriberCount(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[channel])
}

// RelayRedis pattern-subscribes to every realtime channel and dispatches what
// arrives until ctx is done.
func (h *Hub) RelayRedis(ctx context.Context, client redis.UniversalClient) error {
	if client == nil {
		return errors.New("redis client is required")
	}
	pubsub := client.PSubscribe(ctx, events.ChannelPattern)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	h.logger.Info("realtime relay subscribed",
		"event", "realtime_relay_subscribed",
		"module", "internal/platform/messaging",
		"layer", "platform",
		"pattern", events.ChannelPattern,
	)

	stream := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-stream:
			if !ok {
				return errors.New("realtime relay subscription closed")
			}
			h.Dispatch(msg.Channel, []byte(msg.Payload))
		}
	}
}

func (h *Hub) removeSubscriberLocked(channel string, target chan Message) {
	items := h.subscribers[channel]
	if len(items) == 0 {
		return
	}
	filtered := make([]chan Message, 0, len(items))
	for _, item := range items {
		if item != target {
			filtered = append(filtered, item)
		}
	}
	if len(filtered) == 0 {
		delete(h.subscribers, channel)
		return
	}
	h.subscribers[channel] = filtered
}
