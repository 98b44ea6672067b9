package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, limit int) (*FixedWindowLimiter, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	limiter, err := NewFixedWindowLimiter(client, "test:ratelimit", limit, time.Minute)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	return limiter, srv
}

func TestFixedWindowLimiterRedis(t *testing.T) {
	limiter, _ := newTestLimiter(t, 2)
	ctx := context.Background()
	if !limiter.Allow(ctx, "user-1").Allowed {
		t.Fatalf("first request should pass")
	}
	if !limiter.Allow(ctx, "user-1").Allowed {
		t.Fatalf("second request should pass")
	}
	d := limiter.Allow(ctx, "user-1")
	if d.Allowed {
		t.Fatalf("third request should be blocked")
	}
	if d.RetryAfter <= 0 {
		t.Fatalf("expected positive retry-after, got %v", d.RetryAfter)
	}
	if !limiter.Allow(ctx, "user-2").Allowed {
		t.Fatalf("other keys keep their own quota")
	}
}

func TestFixedWindowLimiterRedisFailClosed(t *testing.T) {
	limiter, srv := newTestLimiter(t, 1)
	srv.Close()
	if limiter.Allow(context.Background(), "user-1").Allowed {
		t.Fatalf("limiter should fail closed on redis errors")
	}
}

func TestFixedWindowLimiterRequiresClient(t *testing.T) {
	limiter, err := NewFixedWindowLimiter(nil, "test:ratelimit", 1, time.Second)
	if err == nil || limiter != nil {
		t.Fatalf("expected constructor error for nil client")
	}
}

func TestUnlimitedAlwaysAllows(t *testing.T) {
	var l Limiter = Unlimited{}
	for i := 0; i < 5; i++ {
		if !l.Allow(context.Background(), "k").Allowed {
			t.Fatalf("unlimited limiter denied request %d", i)
		}
	}
}
