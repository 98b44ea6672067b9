package store

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenRevoker tracks revoked token ids (jti) until expiry.
type TokenRevoker interface {
	Revoke(jti string, ttl time.Duration) error
	IsRevoked(jti string) (bool, error)
}

// UserTokenRevoker additionally revokes every token of a user issued at or
// before a cutoff. Cutoffs only move forward.
type UserTokenRevoker interface {
	RevokeUser(userID string, since time.Time) error
	RevokedAfter(userID string) (time.Time, error)
}

// MemoryTokenRevoker keeps revocations in-memory (single instance only).
type MemoryTokenRevoker struct {
	mu      sync.Mutex
	tokens  map[string]time.Time
	cutoffs map[string]time.Time
}

// NewMemoryTokenRevoker builds an in-memory revoker.
func NewMemoryTokenRevoker() *MemoryTokenRevoker {
	return &MemoryTokenRevoker{
		tokens:  make(map[string]time.Time),
		cutoffs: make(map[string]time.Time),
	}
}

func (r *MemoryTokenRevoker) Revoke(jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	r.mu.Lock()
	r.tokens[jti] = time.Now().Add(ttl)
	r.mu.Unlock()
	return nil
}

func (r *MemoryTokenRevoker) IsRevoked(jti string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	expiry, ok := r.tokens[jti]
	if !ok {
		return false, nil
	}
	if time.Now().After(expiry) {
		delete(r.tokens, jti)
		return false, nil
	}
	return true, nil
}

func (r *MemoryTokenRevoker) RevokeUser(userID string, since time.Time) error {
	since = since.UTC()
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.cutoffs[userID]; ok && !since.After(prev) {
		return nil
	}
	r.cutoffs[userID] = since
	return nil
}

func (r *MemoryTokenRevoker) RevokedAfter(userID string) (time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cutoffs[userID], nil
}

// RedisTokenRevoker stores revocations in Redis so every instance sees them.
type RedisTokenRevoker struct {
	client    redis.UniversalClient
	prefix    string
	cutoffTTL time.Duration
}

// NewRedisTokenRevoker builds a Redis-backed revoker. User cutoffs live as
// long as the longest session.
func NewRedisTokenRevoker(client redis.UniversalClient, prefix string, sessionTTL time.Duration) *RedisTokenRevoker {
	if prefix == "" {
		prefix = "sinapsis:auth"
	}
	return &RedisTokenRevoker{client: client, prefix: prefix, cutoffTTL: sessionTTL}
}

func (r *RedisTokenRevoker) Revoke(jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return r.client.Set(ctx, r.prefix+":revoked:"+jti, "1", ttl).Err()
}

func (r *RedisTokenRevoker) IsRevoked(jti string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	n, err := r.client.Exists(ctx, r.prefix+":revoked:"+jti).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// keeps the larger of the stored and new cutoff
var raiseCutoffScript = redis.NewScript(`
local cur = tonumber(redis.call("GET", KEYS[1]) or "0")
local nxt = tonumber(ARGV[1])
if nxt > cur then
  redis.call("SET", KEYS[1], ARGV[1])
end
if tonumber(ARGV[2]) > 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 1
`)

func (r *RedisTokenRevoker) RevokeUser(userID string, since time.Time) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return raiseCutoffScript.Run(ctx, r.client,
		[]string{r.prefix + ":cutoff:" + userID},
		since.UTC().UnixNano(), r.cutoffTTL.Milliseconds(),
	).Err()
}

func (r *RedisTokenRevoker) RevokedAfter(userID string) (time.Time, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	raw, err := r.client.Get(ctx, r.prefix+":cutoff:"+userID).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	nanos, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(0, nanos).UTC(), nil
}
