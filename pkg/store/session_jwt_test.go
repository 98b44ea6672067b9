package store

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

func TestJWTSessionStoreRoundTripAndJWKS(t *testing.T) {
	privatePath, publicPath := writeRSAKeyPairFiles(t, "active")
	s, err := NewJWTSessionStore(JWTConfig{
		PrivateKeyPath: privatePath,
		PublicKeyPath:  publicPath,
		KeyID:          "kid-active",
		TTL:            time.Minute,
	}, NewMemoryTokenRevoker())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	token, err := s.NewSession("user-1")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	userID, ok, err := s.GetUserIDByToken(token)
	if err != nil || !ok || userID != "user-1" {
		t.Fatalf("verify: ok=%v userID=%q err=%v", ok, userID, err)
	}

	keys := s.JWKS()
	if len(keys) != 1 || keys[0].Kid != "kid-active" || keys[0].Alg != "RS256" {
		t.Fatalf("unexpected jwks: %+v", keys)
	}
	if keys[0].N == "" || keys[0].E == "" {
		t.Fatalf("expected modulus and exponent")
	}
	if s.TTL() != time.Minute {
		t.Fatalf("ttl = %v", s.TTL())
	}
}

func TestJWTSessionStoreEnforcesAudience(t *testing.T) {
	privatePath, publicPath := writeRSAKeyPairFiles(t, "aud")
	signing, err := NewJWTSessionStore(JWTConfig{PrivateKeyPath: privatePath, PublicKeyPath: publicPath, Audience: "aud-a"}, nil)
	if err != nil {
		t.Fatalf("signing store: %v", err)
	}
	verify, err := NewJWTSessionStore(JWTConfig{PrivateKeyPath: privatePath, PublicKeyPath: publicPath, Audience: "aud-b"}, nil)
	if err != nil {
		t.Fatalf("verify store: %v", err)
	}
	token, err := signing.NewSession("user-aud")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if _, _, err := verify.GetUserIDByToken(token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected audience mismatch, got %v", err)
	}
}

func TestJWTSessionStoreLogoutRevokesByJTI(t *testing.T) {
	s := newTestSessionStore(t, NewMemoryTokenRevoker())
	token, err := s.NewSession("user-revoke")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	other, err := s.NewSession("user-revoke")
	if err != nil {
		t.Fatalf("second session: %v", err)
	}
	if err := s.DeleteSession(token); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if _, ok, err := s.GetUserIDByToken(token); !errors.Is(err, ErrTokenRevoked) || ok {
		t.Fatalf("expected revoked token, ok=%v err=%v", ok, err)
	}
	if _, ok, err := s.GetUserIDByToken(other); err != nil || !ok {
		t.Fatalf("other session must survive, ok=%v err=%v", ok, err)
	}
}

func TestJWTSessionStoreRevokesByUserCutoff(t *testing.T) {
	revoker := NewMemoryTokenRevoker()
	s := newTestSessionStore(t, revoker)
	token, err := s.NewSession("user-cutoff")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if err := s.RevokeUserSessions("user-cutoff", time.Now().UTC().Add(time.Second)); err != nil {
		t.Fatalf("revoke user: %v", err)
	}
	if _, ok, err := s.GetUserIDByToken(token); err == nil || ok {
		t.Fatalf("expected user-revoked token to fail, ok=%v err=%v", ok, err)
	}
}

func TestJWTSessionStoreVerifiesRotatedKey(t *testing.T) {
	oldPrivate, oldPublic := writeRSAKeyPairFiles(t, "old")
	newPrivate, newPublic := writeRSAKeyPairFiles(t, "new")

	oldStore, err := NewJWTSessionStore(JWTConfig{PrivateKeyPath: oldPrivate, PublicKeyPath: oldPublic, KeyID: "kid-old"}, nil)
	if err != nil {
		t.Fatalf("old store: %v", err)
	}
	oldToken, err := oldStore.NewSession("user-2")
	if err != nil {
		t.Fatalf("old token: %v", err)
	}

	rotated, err := NewJWTSessionStore(JWTConfig{
		PrivateKeyPath: newPrivate,
		PublicKeyPath:  newPublic,
		KeyID:          "kid-new",
		VerifyKeyFiles: map[string]string{"kid-old": oldPublic},
	}, nil)
	if err != nil {
		t.Fatalf("rotated store: %v", err)
	}
	if userID, ok, err := rotated.GetUserIDByToken(oldToken); err != nil || !ok || userID != "user-2" {
		t.Fatalf("verify old token: ok=%v userID=%q err=%v", ok, userID, err)
	}
	if len(rotated.JWKS()) != 2 {
		t.Fatalf("expected 2 jwks entries")
	}

	unrotated, err := NewJWTSessionStore(JWTConfig{PrivateKeyPath: newPrivate, PublicKeyPath: newPublic, KeyID: "kid-new"}, nil)
	if err != nil {
		t.Fatalf("unrotated store: %v", err)
	}
	if _, _, err := unrotated.GetUserIDByToken(oldToken); err == nil {
		t.Fatalf("expected unknown kid to fail")
	}
}

func TestJWTSessionStoreRejectsMalformedClaims(t *testing.T) {
	privatePath, publicPath := writeRSAKeyPairFiles(t, "claims")
	s, err := NewJWTSessionStore(JWTConfig{PrivateKeyPath: privatePath, PublicKeyPath: publicPath}, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	key, err := loadRSAPrivateKeyFromPEMFile(privatePath)
	if err != nil {
		t.Fatalf("load key: %v", err)
	}
	now := time.Now().UTC()
	base := func() jwt.RegisteredClaims {
		return jwt.RegisteredClaims{
			Subject:   "user-x",
			Issuer:    defaultJWTIssuer,
			Audience:  jwt.ClaimStrings{defaultJWTAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(5 * time.Minute)),
			ID:        "jti-x",
		}
	}
	cases := map[string]struct {
		claims jwt.RegisteredClaims
		kid    string
	}{
		"missing kid": {claims: base()},
		"missing jti": {claims: func() jwt.RegisteredClaims { c := base(); c.ID = ""; return c }(), kid: defaultJWTKeyID},
		"future iat": {claims: func() jwt.RegisteredClaims {
			c := base()
			c.IssuedAt = jwt.NewNumericDate(now.Add(2 * time.Minute))
			return c
		}(), kid: defaultJWTKeyID},
		"expired": {claims: func() jwt.RegisteredClaims {
			c := base()
			c.ExpiresAt = jwt.NewNumericDate(now.Add(-2 * time.Minute))
			return c
		}(), kid: defaultJWTKeyID},
	}
	for name, tc := range cases {
		token := jwt.NewWithClaims(jwt.SigningMethodRS256, tc.claims)
		if tc.kid != "" {
			token.Header["kid"] = tc.kid
		}
		signed, err := token.SignedString(key)
		if err != nil {
			t.Fatalf("%s: sign: %v", name, err)
		}
		if _, ok, err := s.GetUserIDByToken(signed); err == nil || ok {
			t.Fatalf("%s: expected rejection", name)
		}
	}
}

func writeRSAKeyPairFiles(t *testing.T, prefix string) (string, string) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}

	dir := t.TempDir()
	privatePath := filepath.Join(dir, prefix+"-private.pem")
	publicPath := filepath.Join(dir, prefix+"-public.pem")

	privatePEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	if err := os.WriteFile(privatePath, privatePEM, 0o600); err != nil {
		t.Fatalf("write private key: %v", err)
	}
	publicDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	publicPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: publicDER})
	if err := os.WriteFile(publicPath, publicPEM, 0o644); err != nil {
		t.Fatalf("write public key: %v", err)
	}
	return privatePath, publicPath
}

func newTestSessionStore(t *testing.T, revoker TokenRevoker) *JWTSessionStore {
	t.Helper()
	privatePath, publicPath := writeRSAKeyPairFiles(t, "session")
	s, err := NewJWTSessionStore(JWTConfig{
		PrivateKeyPath: privatePath,
		PublicKeyPath:  publicPath,
		TTL:            time.Minute,
		Leeway:         time.Second,
	}, revoker)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}
