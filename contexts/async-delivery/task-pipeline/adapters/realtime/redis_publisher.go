package realtimeadapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	application "taskpipe/contexts/async-delivery/task-pipeline/application"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher fans realtime messages out over Redis pub/sub. Gateways
// subscribed to the channel relay them to their live connections.
type RedisPublisher struct {
	client redis.UniversalClient
	logger *slog.Logger
}

func NewRedisPublisher(client redis.UniversalClient, logger *slog.Logger) (*RedisPublisher, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	return &RedisPublisher{
		client: client,
		logger: application.ResolveLogger(logger),
	}, nil
}

// Publish returns the number of subscribers that received the message.
func (p *RedisPublisher) Publish(ctx context.Context, channel string, message []byte) (int64, error) {
	receivers, err := p.client.Publish(ctx, channel, message).Result()
	if err != nil {
		p.logger.Error("realtime publish failed",
			"event", "realtime_publish_failed",
			"module", application.ModuleName,
			"layer", "adapter",
			"channel", channel,
			"error", err.Error(),
		)
		return 0, fmt.Errorf("publish %s: %w", channel, err)
	}
	return receivers, nil
}
