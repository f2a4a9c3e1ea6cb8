package vote

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, sub *Subscription) Notification {
	t.Helper()
	select {
	case n, ok := <-sub.C():
		require.True(t, ok, "subscription closed unexpectedly")
		return n
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for notification")
	}
	return Notification{}
}

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestRedisNotifier_DeliversToAllSubscribers(t *testing.T) {
	ctx := context.Background()
	n := NewRedisNotifier(newTestRedis(t))

	first, err := n.Subscribe(ctx)
	require.NoError(t, err)
	defer first.Close()
	second, err := n.Subscribe(ctx)
	require.NoError(t, err)
	defer second.Close()

	note := Notification{UserID: "u1", CommentatorID: "c1", VoteType: Down}
	require.NoError(t, n.Publish(ctx, note))

	assert.Equal(t, note, receive(t, first))
	assert.Equal(t, note, receive(t, second))
}

func TestRedisNotifier_IgnoresOtherEvents(t *testing.T) {
	ctx := context.Background()
	rdb := newTestRedis(t)
	n := NewRedisNotifier(rdb)

	sub, err := n.Subscribe(ctx)
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, rdb.Publish(ctx, ChannelName, `{"event":"something_else","payload":{}}`).Err())
	require.NoError(t, rdb.Publish(ctx, ChannelName, `not json`).Err())
	note := Notification{UserID: "u2", CommentatorID: "c9", VoteType: Up}
	require.NoError(t, n.Publish(ctx, note))

	assert.Equal(t, note, receive(t, sub))
}

func TestRedisNotifier_CloseIsIdempotent(t *testing.T) {
	n := NewRedisNotifier(newTestRedis(t))

	sub, err := n.Subscribe(context.Background())
	require.NoError(t, err)
	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())

	select {
	case _, ok := <-sub.C():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("channel was not closed")
	}
}

func TestLocalNotifier(t *testing.T) {
	ctx := context.Background()
	n := NewLocalNotifier()

	sub, err := n.Subscribe(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n.Subscribers())

	note := Notification{UserID: "u1", CommentatorID: "c1", VoteType: Up}
	require.NoError(t, n.Publish(ctx, note))
	assert.Equal(t, note, receive(t, sub))

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
	assert.Equal(t, 0, n.Subscribers())

	_, ok := <-sub.C()
	assert.False(t, ok)

	// 没有订阅者时发布不会出错
	assert.NoError(t, n.Publish(ctx, note))
}

func TestRedisNotifier_VerifySubscriptions(t *testing.T) {
	ctx := context.Background()
	n := NewRedisNotifier(newTestRedis(t))

	require.NoError(t, n.VerifySubscriptions(ctx))

	sub, err := n.Subscribe(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n.Subscribers())
	require.NoError(t, n.VerifySubscriptions(ctx))

	require.NoError(t, sub.Close())
	assert.Equal(t, 0, n.Subscribers())
}
