package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lofichat/internal/model"
)

func TestPublishReachesSubscribersOfChannel(t *testing.T) {
	c := New()
	defer c.Close()
	ctx := context.Background()

	a, unsubA, err := c.Subscribe(ctx, "chan-a")
	require.NoError(t, err)
	defer unsubA()
	b, unsubB, err := c.Subscribe(ctx, "chan-b")
	require.NoError(t, err)
	defer unsubB()

	ev := model.RealtimeEvent{Payload: model.Message{ID: "m1"}}
	require.NoError(t, c.Publish(ctx, "chan-a", ev))

	select {
	case got := <-a:
		assert.Equal(t, "m1", got.Payload.ID)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
	select {
	case <-b:
		t.Fatal("event leaked to another channel")
	default:
	}
}

func TestUnsubscribeClosesStream(t *testing.T) {
	c := New()
	defer c.Close()

	ch, unsub, err := c.Subscribe(context.Background(), "x")
	require.NoError(t, err)
	unsub()
	unsub()

	_, ok := <-ch
	assert.False(t, ok)
	require.NoError(t, c.Publish(context.Background(), "x", model.RealtimeEvent{}))
}

func TestCheckRateLimit(t *testing.T) {
	c := New()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := c.CheckRateLimit(ctx, "send:u1", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := c.CheckRateLimit(ctx, "send:u1", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = c.CheckRateLimit(ctx, "send:u2", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "keys are independent")
}
