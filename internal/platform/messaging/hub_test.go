package messaging

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubDispatchesToChannelSubscribers(t *testing.T) {
	hub := NewHub(nil)
	driver, cancelDriver := hub.Subscribe([]string{"realtime:driver:d-1", "realtime:broadcast:drivers"})
	defer cancelDriver()
	other, cancelOther := hub.Subscribe([]string{"realtime:driver:d-2"})
	defer cancelOther()

	assert.Equal(t, 1, hub.Dispatch("realtime:driver:d-1", []byte("direct")))
	assert.Equal(t, 1, hub.Dispatch("realtime:broadcast:drivers", []byte("all")))
	assert.Zero(t, hub.Dispatch("realtime:broadcast:admins", []byte("nobody")))

	assert.Equal(t, Message{Channel: "realtime:driver:d-1", Payload: []byte("direct")}, <-driver)
	assert.Equal(t, Message{Channel: "realtime:broadcast:drivers", Payload: []byte("all")}, <-driver)
	select {
	case msg := <-other:
		t.Fatalf("unexpected message %q", msg.Payload)
	default:
	}
}

func TestHubCancelDetachesSubscriber(t *testing.T) {
	hub := NewHub(nil)
	stream, cancel := hub.Subscribe([]string{"realtime:driver:d-1"})
	require.Equal(t, 1, hub.SubscriberCount("realtime:driver:d-1"))

	cancel()
	cancel()

	_, open := <-stream
	assert.False(t, open)
	assert.Zero(t, hub.SubscriberCount("realtime:driver:d-1"))
	assert.Zero(t, hub.Dispatch("realtime:driver:d-1", []byte("late")))
}

func TestHubSkipsFullSubscriber(t *testing.T) {
	hub := NewHub(nil)
	_, cancel := hub.Subscribe([]string{"realtime:broadcast:admins"})
	defer cancel()

	for range subscriberBuffer {
		require.Equal(t, 1, hub.Dispatch("realtime:broadcast:admins", []byte("x")))
	}
	assert.Zero(t, hub.Dispatch("realtime:broadcast:admins", []byte("overflow")))
}

func TestRelayRedisForwardsRealtimeChannels(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	hub := NewHub(nil)
	stream, cancel := hub.Subscribe([]string{"realtime:company:c-1"})
	defer cancel()

	ctx, stop := context.WithCancel(context.Background())
	relayDone := make(chan error, 1)
	go func() { relayDone <- hub.RelayRedis(ctx, client) }()

	var got Message
	require.Eventually(t, func() bool {
		client.Publish(context.Background(), "realtime:company:c-1", `{"event_type":"payment_failed"}`)
		select {
		case got = <-stream:
			return true
		default:
			return false
		}
	}, 2*time.Second, 20*time.Millisecond)
	assert.Equal(t, "realtime:company:c-1", got.Channel)
	assert.JSONEq(t, `{"event_type":"payment_failed"}`, string(got.Payload))

	stop()
	select {
	case err := <-relayDone:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not stop after cancellation")
	}
}

func TestRelayRedisRequiresClient(t *testing.T) {
	assert.Error(t, NewHub(nil).RelayRedis(context.Background(), nil))
}
