package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "chat:c1:typing:u1", typingKey("c1", "u1"))
	assert.Equal(t, "connections:user:u1", connectionsKey("u1"))
}

func TestNewDefaultsTypingTTL(t *testing.T) {
	c := New(redis.NewClient(&redis.Options{Addr: "localhost:0"}), 0)
	defer c.Close()
	assert.Equal(t, defaultTypingTTL, c.typingTTL)
}

// Runs against a real server when REDIS_TEST_ADDR is set.
func testClient(t *testing.T) *RedisClient {
	t.Helper()
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	c := New(redis.NewClient(&redis.Options{Addr: addr}), time.Minute)
	t.Cleanup(func() { _ = c.Close() })
	require.NoError(t, c.Ping(context.Background()))
	return c
}

func TestRedisClient_Typing(t *testing.T) {
	ctx := context.Background()
	c := testClient(t)
	conv := uuid.New().String()

	require.NoError(t, c.SetUserTyping(ctx, conv, "u1", true))
	require.NoError(t, c.SetUserTyping(ctx, conv, "u2", true))
	users, err := c.GetTypingUsers(ctx, conv)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"u1", "u2"}, users)

	require.NoError(t, c.SetUserTyping(ctx, conv, "u1", false))
	require.NoError(t, c.SetUserTyping(ctx, conv, "u2", false))
	users, err = c.GetTypingUsers(ctx, conv)
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestRedisClient_Connections(t *testing.T) {
	ctx := context.Background()
	c := testClient(t)
	user := uuid.New().String()

	require.NoError(t, c.TrackConnection(ctx, user, "conn-1"))
	require.NoError(t, c.TrackConnection(ctx, user, "conn-2"))
	n, err := c.CountUserConnections(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.NoError(t, c.UntrackConnection(ctx, user, "conn-1"))
	require.NoError(t, c.UntrackConnection(ctx, user, "conn-2"))
	n, err = c.CountUserConnections(ctx, user)
	require.NoError(t, err)
	assert.Zero(t, n)
}
