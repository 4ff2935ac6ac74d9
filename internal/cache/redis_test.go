package cache_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/mood-buddy/internal/cache"
	"github.com/oggyb/mood-buddy/internal/testutil"
)

func TestPoolSize_GetSetInvalidate(t *testing.T) {
	ctx := context.Background()
	c, mr := testutil.NewRedis(t)

	_, hit, err := c.GetPoolSize(ctx, "supportive")
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, c.SetPoolSize(ctx, "supportive", 7, time.Minute))
	n, hit, err := c.GetPoolSize(ctx, "supportive")
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, int64(7), n)

	mr.FastForward(2 * time.Minute)
	_, hit, err = c.GetPoolSize(ctx, "supportive")
	require.NoError(t, err)
	assert.False(t, hit, "entry should expire with its ttl")

	require.NoError(t, c.SetPoolSize(ctx, "supportive", 1, time.Minute))
	require.NoError(t, c.SetPoolSize(ctx, "distressed", 2, time.Minute))
	require.NoError(t, c.InvalidatePoolSizes(ctx, "supportive", "distressed"))
	assert.False(t, mr.Exists(c.KeyForPoolSize("supportive")))
	assert.False(t, mr.Exists(c.KeyForPoolSize("distressed")))

	require.NoError(t, c.InvalidatePoolSizes(ctx))
}

func TestGetPoolSize_GarbageIsMiss(t *testing.T) {
	ctx := context.Background()
	c, mr := testutil.NewRedis(t)
	require.NoError(t, mr.Set(c.KeyForPoolSize("distressed"), "not-a-number"))

	_, hit, err := c.GetPoolSize(ctx, "distressed")
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestPublish_FansOutToRecipients(t *testing.T) {
	ctx := context.Background()
	c, _ := testutil.NewRedis(t)

	sub := c.Client.Subscribe(ctx, cache.ChannelForUser(10), cache.ChannelForUser(11))
	t.Cleanup(func() { sub.Close() })
	for i := 0; i < 2; i++ {
		_, err := sub.Receive(ctx)
		require.NoError(t, err)
	}

	ev := cache.Event{Type: cache.EventChatDeleted, ChatID: "c-1"}
	require.NoError(t, c.Publish(ctx, ev, 10, 11))

	got := map[string]cache.Event{}
	for len(got) < 2 {
		select {
		case msg := <-sub.Channel():
			var e cache.Event
			require.NoError(t, json.Unmarshal([]byte(msg.Payload), &e))
			got[msg.Channel] = e
		case <-time.After(2 * time.Second):
			t.Fatalf("received %d of 2 events", len(got))
		}
	}

	for _, ch := range []string{cache.ChannelForUser(10), cache.ChannelForUser(11)} {
		assert.Equal(t, cache.EventChatDeleted, got[ch].Type)
		assert.Equal(t, "c-1", got[ch].ChatID)
		assert.NotZero(t, got[ch].At)
	}
}
