package services

import (
	"context"
	"testing"
	"time"

	"chat-relay/internal/database"
	"chat-relay/pkg/logger"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestConfig for unit tests - requires Redis running on localhost:6379
const testRedisAddr = "localhost:6379"

func setupTestRedis(t *testing.T) *RedisService {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: testRedisAddr, DB: 15})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Skipf("Redis not available at %s: %v", testRedisAddr, err)
	}
	require.NoError(t, client.FlushDB(context.Background()).Err())
	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return NewRedisService(database.NewRedisClient(client, logger.NewNop()), logger.NewNop())
}

func TestRedisService_Presence(t *testing.T) {
	svc := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, svc.SetUserOnline(ctx, "alice"))
	online, err := svc.IsUserOnline(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, online)

	left := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, svc.SetUserOffline(ctx, "alice", left))

	online, err = svc.IsUserOnline(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, online)

	seen, err := svc.LastSeen(ctx)
	require.NoError(t, err)
	assert.True(t, left.Equal(seen["alice"]))
}

func TestRedisService_CheckRateLimit(t *testing.T) {
	svc := setupTestRedis(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, err := svc.CheckRateLimit(ctx, "rate_limit:test", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed, "request %d should pass", i)
	}

	allowed, err := svc.CheckRateLimit(ctx, "rate_limit:test", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestRedisService_PublishSubscribe(t *testing.T) {
	svc := setupTestRedis(t)
	ctx := context.Background()

	ps := svc.Subscribe(ctx, "relay:test")
	defer ps.Close()
	_, err := ps.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, svc.Publish(ctx, "relay:test", []byte(`{"ok":true}`)))

	select {
	case msg := <-ps.Channel():
		assert.Equal(t, `{"ok":true}`, msg.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("message not received")
	}
}
