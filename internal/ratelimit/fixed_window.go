package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var fixedWindowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {count, redis.call("PTTL", KEYS[1])}
`)

// Limiter decides whether an action keyed by caller may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) Decision
}

// Decision is the outcome of a limiter check.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// FixedWindowLimiter counts actions per key in fixed Redis-backed windows.
// Redis failures deny the action.
type FixedWindowLimiter struct {
	limit  int
	window time.Duration
	client redis.UniversalClient
	prefix string
}

// NewFixedWindowLimiter builds a limiter on a shared Redis client.
func NewFixedWindowLimiter(client redis.UniversalClient, prefix string, limit int, window time.Duration) (*FixedWindowLimiter, error) {
	if limit <= 0 || window <= 0 {
		return nil, errors.New("rate limiter requires positive limit and window")
	}
	if client == nil {
		return nil, errors.New("rate limiter redis client is required")
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "sinapsis:ratelimit"
	}
	return &FixedWindowLimiter{limit: limit, window: window, client: client, prefix: prefix}, nil
}

// Allow consumes one unit for key.
func (l *FixedWindowLimiter) Allow(ctx context.Context, key string) Decision {
	if l == nil {
		return Decision{}
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = "unknown"
	}
	windowMs := l.window.Milliseconds()
	slot := time.Now().UTC().UnixMilli() / windowMs
	redisKey := fmt.Sprintf("%s:%s:%d", l.prefix, key, slot)

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	res, err := fixedWindowScript.Run(ctx, l.client, []string{redisKey}, windowMs).Int64Slice()
	if err != nil || len(res) != 2 {
		return Decision{RetryAfter: l.window}
	}
	if res[0] <= int64(l.limit) {
		return Decision{Allowed: true}
	}
	retry := time.Duration(res[1]) * time.Millisecond
	if retry <= 0 {
		retry = l.window
	}
	return Decision{RetryAfter: retry}
}

// Unlimited allows every action. Used when no Redis is configured.
type Unlimited struct{}

func (Unlimited) Allow(context.Context, string) Decision { return Decision{Allowed: true} }
