package realtimeadapter

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestPublishWithoutSubscribersSucceeds(t *testing.T) {
	publisher, err := NewRedisPublisher(newRedis(t), nil)
	require.NoError(t, err)

	receivers, err := publisher.Publish(context.Background(), "realtime:broadcast:admins", []byte(`{}`))
	require.NoError(t, err)
	assert.Zero(t, receivers)
}

func TestPublishReachesSubscriber(t *testing.T) {
	ctx := context.Background()
	client := newRedis(t)
	subscription := client.Subscribe(ctx, "realtime:driver:d-1")
	t.Cleanup(func() { _ = subscription.Close() })
	_, err := subscription.Receive(ctx)
	require.NoError(t, err)

	publisher, err := NewRedisPublisher(client, nil)
	require.NoError(t, err)
	receivers, err := publisher.Publish(ctx, "realtime:driver:d-1", []byte(`{"event_type":"request_matched"}`))
	require.NoError(t, err)
	assert.Equal(t, int64(1), receivers)

	msg := <-subscription.Channel()
	assert.Equal(t, "realtime:driver:d-1", msg.Channel)
	assert.JSONEq(t, `{"event_type":"request_matched"}`, msg.Payload)
}

func TestPublishSurfacesConnectionErrors(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	publisher, err := NewRedisPublisher(client, nil)
	require.NoError(t, err)
	server.Close()

	_, err = publisher.Publish(context.Background(), "realtime:broadcast:admins", []byte(`{}`))
	assert.Error(t, err)
}

func TestNewRedisPublisherRequiresClient(t *testing.T) {
	_, err := NewRedisPublisher(nil, nil)
	assert.Error(t, err)
}
