package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Key pattern: ratelimit:{user_id}:joins, expiring with the window.

type RateLimitConfig struct {
	JoinLimit  int           // Max call joins per window
	JoinWindow time.Duration // Join rate limit window
}

func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		JoinLimit:  30,
		JoinWindow: 60 * time.Second,
	}
}

type RateLimiter struct {
	client *goredis.Client
	config RateLimitConfig
}

type RateLimitResult struct {
	Allowed   bool
	Remaining int
	ResetIn   time.Duration
	Limit     int
}

func NewRateLimiter(client *goredis.Client, config RateLimitConfig) *RateLimiter {
	def := DefaultRateLimitConfig()
	if config.JoinLimit <= 0 {
		config.JoinLimit = def.JoinLimit
	}
	if config.JoinWindow <= 0 {
		config.JoinWindow = def.JoinWindow
	}
	return &RateLimiter{client: client, config: config}
}

func joinKey(userID string) string {
	return fmt.Sprintf("ratelimit:%s:joins", userID)
}

// AllowJoin consumes one join from the user's quota if any is left.
func (r *RateLimiter) AllowJoin(ctx context.Context, userID string) (*RateLimitResult, error) {
	return r.checkLimit(ctx, joinKey(userID), r.config.JoinLimit, r.config.JoinWindow)
}

func (r *RateLimiter) ResetUser(ctx context.Context, userID string) error {
	return r.client.Del(ctx, joinKey(userID)).Err()
}

// Atomic fixed-window counter. Returns {allowed, remaining, ttl}.
var limitScript = goredis.NewScript(`
	local key = KEYS[1]
	local limit = tonumber(ARGV[1])
	local window = tonumber(ARGV[2])

	local current = tonumber(redis.call('GET', key) or '0')

	local ttl = redis.call('TTL', key)
	if ttl < 0 then
		ttl = window
	end

	if current < limit then
		redis.call('INCR', key)
		if ttl == window then
			redis.call('EXPIRE', key, window)
		end
		return {1, limit - current - 1, ttl}
	end
	return {0, 0, ttl}
`)

func (r *RateLimiter) checkLimit(ctx context.Context, key string, limit int, window time.Duration) (*RateLimitResult, error) {
	result, err := limitScript.Run(ctx, r.client, []string{key}, limit, int(window.Seconds())).Result()
	if err != nil {
		return nil, fmt.Errorf("rate limit check failed: %w", err)
	}

	values, ok := result.([]interface{})
	if !ok || len(values) < 3 {
		return nil, fmt.Errorf("unexpected rate limit result format")
	}
	allowed, _ := values[0].(int64)
	remaining, _ := values[1].(int64)
	ttl, _ := values[2].(int64)

	return &RateLimitResult{
		Allowed:   allowed == 1,
		Remaining: int(remaining),
		ResetIn:   time.Duration(ttl) * time.Second,
		Limit:     limit,
	}, nil
}
