package store

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestMemoryTokenRevokerUserCutoffMonotonic(t *testing.T) {
	r := NewMemoryTokenRevoker()
	first := time.Now().UTC().Add(-time.Minute)
	second := time.Now().UTC()

	if err := r.RevokeUser("user-1", first); err != nil {
		t.Fatalf("revoke user first: %v", err)
	}
	if err := r.RevokeUser("user-1", first.Add(-time.Minute)); err != nil {
		t.Fatalf("revoke user older cutoff: %v", err)
	}
	got, _ := r.RevokedAfter("user-1")
	if !got.Equal(first) {
		t.Fatalf("expected first cutoff to be kept, got %v", got)
	}
	if err := r.RevokeUser("user-1", second); err != nil {
		t.Fatalf("revoke user second: %v", err)
	}
	got, _ = r.RevokedAfter("user-1")
	if !got.Equal(second) {
		t.Fatalf("expected newest cutoff, got %v", got)
	}
}

func TestMemoryTokenRevokerIgnoresNonPositiveTTL(t *testing.T) {
	r := NewMemoryTokenRevoker()
	if err := r.Revoke("jti", 0); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if revoked, _ := r.IsRevoked("jti"); revoked {
		t.Fatalf("expired revocation must not count")
	}
}

func TestRedisTokenRevoker(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	r := NewRedisTokenRevoker(client, "test", time.Hour)

	if err := r.Revoke("jti-1", time.Minute); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if revoked, err := r.IsRevoked("jti-1"); err != nil || !revoked {
		t.Fatalf("expected revoked, got %v %v", revoked, err)
	}
	if revoked, err := r.IsRevoked("jti-2"); err != nil || revoked {
		t.Fatalf("expected not revoked, got %v %v", revoked, err)
	}
	mr.FastForward(2 * time.Minute)
	if revoked, _ := r.IsRevoked("jti-1"); revoked {
		t.Fatalf("revocation should expire with the token")
	}

	if cutoff, err := r.RevokedAfter("user-1"); err != nil || !cutoff.IsZero() {
		t.Fatalf("expected no cutoff, got %v %v", cutoff, err)
	}
	newer := time.Unix(1_700_000_100, 0).UTC()
	older := time.Unix(1_700_000_000, 0).UTC()
	if err := r.RevokeUser("user-1", newer); err != nil {
		t.Fatalf("revoke user: %v", err)
	}
	if err := r.RevokeUser("user-1", older); err != nil {
		t.Fatalf("revoke user older: %v", err)
	}
	cutoff, err := r.RevokedAfter("user-1")
	if err != nil || !cutoff.Equal(newer) {
		t.Fatalf("cutoff = %v err=%v, want %v", cutoff, err, newer)
	}
}
