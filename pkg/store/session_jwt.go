package store

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"os"
	"sort"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	defaultJWTIssuer   = "sinapsis-report"
	defaultJWTAudience = "sinapsis-api"
	defaultJWTKeyID    = "jwt-active"
	defaultSessionTTL  = 12 * time.Hour
)

var defaultJWTLeeway = 30 * time.Second

var (
	ErrTokenRevoked = errors.New("token revoked")
	ErrTokenInvalid = errors.New("invalid token")
)

// JWTConfig describes the RS256 key material and claim policy of a session store.
type JWTConfig struct {
	PrivateKeyPath string
	PublicKeyPath  string
	KeyID          string
	// VerifyKeyFiles maps kid -> public key path for keys retired by rotation.
	VerifyKeyFiles map[string]string
	TTL            time.Duration
	Issuer         string
	Audience       string
	Leeway         time.Duration
}

// JWK represents a JSON Web Key entry used by the JWKS endpoint.
type JWK struct {
	Kty string `json:"kty"`
	Use string `json:"use"`
	Kid string `json:"kid"`
	Alg string `json:"alg"`
	N   string `json:"n,omitempty"`
	E   string `json:"e,omitempty"`
}

// JWTSessionStore issues and validates RS256 session tokens.
type JWTSessionStore struct {
	ttl     time.Duration
	revoker TokenRevoker

	signer    *rsa.PrivateKey
	signerKid string
	verifiers map[string]*rsa.PublicKey

	issuer   string
	audience string
	leeway   time.Duration
}

var _ SessionStore = (*JWTSessionStore)(nil)

// NewJWTSessionStore loads the configured PEM files. revoker may be nil, in
// which case logout is a no-op.
func NewJWTSessionStore(cfg JWTConfig, revoker TokenRevoker) (*JWTSessionStore, error) {
	privateKey, err := loadRSAPrivateKeyFromPEMFile(cfg.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("load jwt private key: %w", err)
	}
	cfg = normalizeJWTConfig(cfg)

	verifiers := make(map[string]*rsa.PublicKey, 1+len(cfg.VerifyKeyFiles))
	activePub := &privateKey.PublicKey
	if strings.TrimSpace(cfg.PublicKeyPath) != "" {
		activePub, err = loadRSAPublicKeyFromPEMFile(cfg.PublicKeyPath)
		if err != nil {
			return nil, fmt.Errorf("load jwt public key: %w", err)
		}
	}
	verifiers[cfg.KeyID] = activePub
	for kid, path := range cfg.VerifyKeyFiles {
		kid = strings.TrimSpace(kid)
		path = strings.TrimSpace(path)
		if kid == "" || path == "" {
			continue
		}
		pub, err := loadRSAPublicKeyFromPEMFile(path)
		if err != nil {
			return nil, fmt.Errorf("load verify key %q: %w", kid, err)
		}
		verifiers[kid] = pub
	}

	return &JWTSessionStore{
		ttl:       cfg.TTL,
		revoker:   revoker,
		signer:    privateKey,
		signerKid: cfg.KeyID,
		verifiers: verifiers,
		issuer:    cfg.Issuer,
		audience:  cfg.Audience,
		leeway:    cfg.Leeway,
	}, nil
}

// TTL is the lifetime of newly issued tokens.
func (s *JWTSessionStore) TTL() time.Duration { return s.ttl }

// NewSession creates a signed JWT for the user ID.
func (s *JWTSessionStore) NewSession(userID string) (string, error) {
	if s.signer == nil {
		return "", errors.New("jwt store not configured")
	}
	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    s.issuer,
		Audience:  jwt.ClaimStrings{s.audience},
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ID:        uuid.NewString(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = s.signerKid
	return token.SignedString(s.signer)
}

// GetUserIDByToken validates a JWT and returns the subject.
func (s *JWTSessionStore) GetUserIDByToken(token string) (string, bool, error) {
	claims, err := s.parseAndVerify(token)
	if err != nil {
		return "", false, err
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", false, fmt.Errorf("%w: subject missing", ErrTokenInvalid)
	}
	if err := s.checkRevoked(claims); err != nil {
		return "", false, err
	}
	return claims.Subject, true, nil
}

func (s *JWTSessionStore) checkRevoked(claims jwt.RegisteredClaims) error {
	if s.revoker == nil {
		return nil
	}
	revoked, err := s.revoker.IsRevoked(claims.ID)
	if err != nil {
		return err
	}
	if revoked {
		return ErrTokenRevoked
	}
	userRevoker, ok := s.revoker.(UserTokenRevoker)
	if !ok {
		return nil
	}
	cutoff, err := userRevoker.RevokedAfter(claims.Subject)
	if err != nil {
		return err
	}
	if cutoff.IsZero() {
		return nil
	}
	if claims.IssuedAt == nil || !claims.IssuedAt.Time.UTC().After(cutoff) {
		return ErrTokenRevoked
	}
	return nil
}

// DeleteSession revokes the token until it expires. Invalid tokens are ignored.
func (s *JWTSessionStore) DeleteSession(token string) error {
	if s.revoker == nil {
		return nil
	}
	claims, err := s.parseAndVerify(token)
	if err != nil || claims.ExpiresAt == nil {
		return nil
	}
	return s.revoker.Revoke(claims.ID, time.Until(claims.ExpiresAt.Time))
}

// RevokeUserSessions revokes every session of a user issued at or before since.
func (s *JWTSessionStore) RevokeUserSessions(userID string, since time.Time) error {
	if s.revoker == nil {
		return nil
	}
	userRevoker, ok := s.revoker.(UserTokenRevoker)
	if !ok {
		return errors.New("session revoker does not support user revocation")
	}
	return userRevoker.RevokeUser(userID, since)
}

// JWKS returns the verification keys, sorted by kid.
func (s *JWTSessionStore) JWKS() []JWK {
	kids := make([]string, 0, len(s.verifiers))
	for kid := range s.verifiers {
		kids = append(kids, kid)
	}
	sort.Strings(kids)
	out := make([]JWK, 0, len(kids))
	for _, kid := range kids {
		pub := s.verifiers[kid]
		out = append(out, JWK{
			Kty: "RSA",
			Use: "sig",
			Kid: kid,
			Alg: "RS256",
			N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		})
	}
	return out
}

func (s *JWTSessionStore) parseAndVerify(token string) (jwt.RegisteredClaims, error) {
	claims := jwt.RegisteredClaims{}
	token = strings.TrimSpace(token)
	if token == "" {
		return claims, fmt.Errorf("%w: empty", ErrTokenInvalid)
	}
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		kid = strings.TrimSpace(kid)
		if kid == "" {
			return nil, errors.New("token key id required")
		}
		pub, ok := s.verifiers[kid]
		if !ok {
			return nil, errors.New("unknown token key")
		}
		return pub, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(s.leeway),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
	)
	if err != nil {
		return claims, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !parsed.Valid {
		return claims, ErrTokenInvalid
	}
	if strings.TrimSpace(claims.ID) == "" {
		return claims, fmt.Errorf("%w: jti missing", ErrTokenInvalid)
	}
	return claims, nil
}

func loadRSAPrivateKeyFromPEMFile(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("invalid pem")
	}
	if pkcs1, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return pkcs1, nil
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	privateKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("private key is not rsa")
	}
	return privateKey, nil
}

func loadRSAPublicKeyFromPEMFile(path string) (*rsa.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("invalid pem")
	}
	if pubAny, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
		pub, ok := pubAny.(*rsa.PublicKey)
		if !ok {
			return nil, errors.New("public key is not rsa")
		}
		return pub, nil
	}
	if cert, err := x509.ParseCertificate(block.Bytes); err == nil {
		pub, ok := cert.PublicKey.(*rsa.PublicKey)
		if !ok {
			return nil, errors.New("certificate public key is not rsa")
		}
		return pub, nil
	}
	return nil, errors.New("failed to parse rsa public key")
}

func normalizeJWTConfig(cfg JWTConfig) JWTConfig {
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)
	cfg.Issuer = strings.TrimSpace(cfg.Issuer)
	cfg.Audience = strings.TrimSpace(cfg.Audience)
	if cfg.KeyID == "" {
		cfg.KeyID = defaultJWTKeyID
	}
	if cfg.Issuer == "" {
		cfg.Issuer = defaultJWTIssuer
	}
	if cfg.Audience == "" {
		cfg.Audience = defaultJWTAudience
	}
	if cfg.Leeway <= 0 {
		cfg.Leeway = defaultJWTLeeway
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultSessionTTL
	}
	return cfg
}
