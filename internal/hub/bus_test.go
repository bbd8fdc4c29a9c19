package hub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func receive(t *testing.T, sub Subscriber) []byte {
	t.Helper()
	select {
	case frame := <-sub.Messages():
		return frame
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a frame")
		return nil
	}
}

func TestLocalBusDeliversToJoinedRooms(t *testing.T) {
	bus := NewLocalBus(zap.NewNop().Sugar())
	ctx := context.Background()

	sub := bus.NewSubscriber(ctx)
	other := bus.NewSubscriber(ctx)
	require.NoError(t, sub.Join("guild:1"))
	require.NoError(t, other.Join("guild:2"))

	require.NoError(t, bus.Publish(ctx, "guild:1", []byte("hello")))

	assert.Equal(t, []byte("hello"), receive(t, sub))
	select {
	case frame := <-other.Messages():
		t.Fatalf("subscriber of another room received %q", frame)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestLocalBusLeaveStopsDelivery(t *testing.T) {
	bus := NewLocalBus(zap.NewNop().Sugar())
	ctx := context.Background()

	sub := bus.NewSubscriber(ctx)
	require.NoError(t, sub.Join("channel:7"))
	require.NoError(t, bus.Publish(ctx, "channel:7", []byte("one")))
	assert.Equal(t, []byte("one"), receive(t, sub))

	require.NoError(t, sub.Leave("channel:7"))
	require.NoError(t, bus.Publish(ctx, "channel:7", []byte("two")))

	select {
	case frame := <-sub.Messages():
		t.Fatalf("received %q after leaving", frame)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestLocalBusPublishToEmptyRoomIsNoop(t *testing.T) {
	bus := NewLocalBus(zap.NewNop().Sugar())
	assert.NoError(t, bus.Publish(context.Background(), "guild:404", []byte("void")))
}

func TestLocalBusCloseDetachesEverywhere(t *testing.T) {
	bus := NewLocalBus(zap.NewNop().Sugar())
	ctx := context.Background()

	sub := bus.NewSubscriber(ctx)
	require.NoError(t, sub.Join("guild:1"))
	require.NoError(t, sub.Join("channel:2"))
	require.NoError(t, sub.Close())

	_, open := <-sub.Messages()
	assert.False(t, open, "messages channel must close with the subscriber")

	require.NoError(t, bus.Publish(ctx, "guild:1", []byte("after close")))
	require.NoError(t, bus.Publish(ctx, "channel:2", []byte("after close")))
}

func TestLocalBusDropsWhenSubscriberIsFull(t *testing.T) {
	bus := NewLocalBus(zap.NewNop().Sugar())
	ctx := context.Background()

	sub := bus.NewSubscriber(ctx)
	require.NoError(t, sub.Join("guild:1"))

	// nobody drains: overflow past the buffer must not block the publisher
	for i := 0; i < sendBuffer*2; i++ {
		require.NoError(t, bus.Publish(ctx, "guild:1", []byte("x")))
	}

	drained := 0
	for {
		select {
		case <-sub.Messages():
			drained++
		default:
			assert.Equal(t, sendBuffer, drained, "buffer holds exactly its capacity, the rest is dropped")
			return
		}
	}
}
