package services

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"chat-relay/internal/database"
	"chat-relay/pkg/logger"

	"github.com/redis/go-redis/v9"
)

const (
	onlineUsersKey = "presence:online"
	lastSeenKey    = "presence:last_seen"
)

type RedisService struct {
	client *database.RedisClient
	logger *logger.Logger
}

func NewRedisService(client *database.RedisClient, log *logger.Logger) *RedisService {
	return &RedisService{
		client: client,
		logger: log,
	}
}

// =============================================================================
// User Status Management
// =============================================================================

func (r *RedisService) SetUserOnline(ctx context.Context, userID string) error {
	pipe := r.client.GetClient().Pipeline()
	pipe.SAdd(ctx, onlineUsersKey, userID)
	pipe.HSet(ctx, lastSeenKey, userID, time.Now().UTC().UnixMilli())

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("set user %s online: %w", userID, err)
	}

	r.logger.Debug("User set to online", "userID", userID)
	return nil
}

func (r *RedisService) SetUserOffline(ctx context.Context, userID string, at time.Time) error {
	pipe := r.client.GetClient().Pipeline()
	pipe.SRem(ctx, onlineUsersKey, userID)
	pipe.HSet(ctx, lastSeenKey, userID, at.UTC().UnixMilli())

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("set user %s offline: %w", userID, err)
	}

	r.logger.Debug("User set to offline", "userID", userID)
	return nil
}

func (r *RedisService) IsUserOnline(ctx context.Context, userID string) (bool, error) {
	return r.client.GetClient().SIsMember(ctx, onlineUsersKey, userID).Result()
}

func (r *RedisService) GetOnlineUsers(ctx context.Context) ([]string, error) {
	return r.client.GetClient().SMembers(ctx, onlineUsersKey).Result()
}

// LastSeen returns the last time every known user connected or left.
func (r *RedisService) LastSeen(ctx context.Context) (map[string]time.Time, error) {
	raw, err := r.client.GetClient().HGetAll(ctx, lastSeenKey).Result()
	if err != nil {
		return nil, err
	}

	out := make(map[string]time.Time, len(raw))
	for userID, v := range raw {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			r.logger.Warn("Skipping malformed last_seen entry", "userID", userID, "value", v)
			continue
		}
		out[userID] = time.UnixMilli(ms).UTC()
	}
	return out, nil
}

// =============================================================================
// PubSub Operations
// =============================================================================

func (r *RedisService) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := r.client.GetClient().Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", channel, err)
	}
	return nil
}

func (r *RedisService) Subscribe(ctx context.Context, channels ...string) *redis.PubSub {
	pubsub := r.client.GetClient().Subscribe(ctx, channels...)
	r.logger.Debug("Subscribed to channels", "channels", channels)
	return pubsub
}

// =============================================================================
// Rate Limiting
// =============================================================================

// CheckRateLimit implements a sliding window over a sorted set. It
// reports whether the current request is within limit.
func (r *RedisService) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := time.Now()
	windowStart := now.Add(-window).UnixNano()

	pipe := r.client.GetClient().Pipeline()

	// Remove old entries
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart, 10))

	// Count current entries
	count := pipe.ZCard(ctx, key)

	// Add current request
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixNano()), Member: now.UnixNano()})

	// Set expiration
	pipe.Expire(ctx, key, window)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}

	return count.Val() < int64(limit), nil
}
