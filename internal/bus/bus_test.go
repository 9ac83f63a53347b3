package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vortexsol/sniperbot/internal/kv"
)

type examplePayload struct {
	Foo string `json:"foo"`
}

func TestPublishSubscribeRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	b := New(store, time.Second)

	sub, err := b.Subscribe(ctx, ChannelRawDetections)
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, b.Publish(ctx, ChannelRawDetections, "raw_detection", "test", examplePayload{Foo: "bar"}))

	select {
	case msg := <-sub.Channel():
		var payload examplePayload
		env, err := Decode(msg, &payload)
		require.NoError(t, err)
		assert.Equal(t, "raw_detection", env.Type)
		assert.Equal(t, "bar", payload.Foo)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestMarkSeenDetectsDuplicateWithinWindow(t *testing.T) {
	ctx := context.Background()
	b := New(kv.NewMemoryStore(), 50*time.Millisecond)

	seen, err := b.MarkSeen(ctx, "sig-1")
	require.NoError(t, err)
	assert.False(t, seen)

	seen, err = b.MarkSeen(ctx, "sig-1")
	require.NoError(t, err)
	assert.True(t, seen)

	time.Sleep(75 * time.Millisecond)
	seen, err = b.MarkSeen(ctx, "sig-1")
	require.NoError(t, err)
	assert.False(t, seen, "expected idempotency entry to expire")
}
