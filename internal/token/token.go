// Package token issues and verifies the RS256 JWTs handed to clients. Signing
// needs the RSA private key; verification needs only the public half, so a
// verifier-only Service can be built for processes that never mint tokens.
package token

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Type distinguishes short-lived access tokens from long-lived refresh tokens.
type Type string

const (
	Access  Type = "access"
	Refresh Type = "refresh"
)

var (
	// ErrExpired means the signature verified but exp is in the past.
	ErrExpired = errors.New("token expired")
	// ErrMalformed covers bad structure, bad signature, wrong algorithm and
	// unknown token types.
	ErrMalformed = errors.New("token invalid")
	// ErrSigningDisabled is returned by Issue on a verifier-only Service.
	ErrSigningDisabled = errors.New("token signing key not configured")
)

// Claims is the decoded payload: {sub, email, type, iat, exp, jti}.
type Claims struct {
	Email string `json:"email"`
	Type  Type   `json:"type"`
	jwt.RegisteredClaims
}

// Config bundles the key pair and lifetimes. PrivateKey may be nil.
type Config struct {
	PrivateKey *rsa.PrivateKey
	PublicKey  *rsa.PublicKey
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Service signs and decodes tokens. It holds no mutable state and is safe for
// concurrent use.
type Service struct {
	priv       *rsa.PrivateKey
	pub        *rsa.PublicKey
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewService validates cfg and returns a Service. When only a private key is
// given its public half is used for verification.
func NewService(cfg Config) (*Service, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("token lifetimes must be positive")
	}
	pub := cfg.PublicKey
	if pub == nil && cfg.PrivateKey != nil {
		pub = &cfg.PrivateKey.PublicKey
	}
	if pub == nil {
		return nil, errors.New("token public key required")
	}
	return &Service{
		priv:       cfg.PrivateKey,
		pub:        pub,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        time.Now,
	}, nil
}

// AccessTTL returns the configured access-token lifetime.
func (s *Service) AccessTTL() time.Duration { return s.accessTTL }

// RefreshTTL returns the configured refresh-token lifetime.
func (s *Service) RefreshTTL() time.Duration { return s.refreshTTL }

// Issue signs a token of the given type for subject, valid for ttl.
func (s *Service) Issue(typ Type, subject string, ttl time.Duration) (string, error) {
	if s.priv == nil {
		return "", ErrSigningDisabled
	}
	if typ != Access && typ != Refresh {
		return "", fmt.Errorf("unknown token type %q", typ)
	}
	now := s.now()
	claims := Claims{
		Email: subject,
		Type:  typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.priv)
}

// IssueAccess mints an access token with the configured access lifetime.
func (s *Service) IssueAccess(subject string) (string, error) {
	return s.Issue(Access, subject, s.accessTTL)
}

// IssueRefresh mints a refresh token with the configured refresh lifetime.
func (s *Service) IssueRefresh(subject string) (string, error) {
	return s.Issue(Refresh, subject, s.refreshTTL)
}

// Decode verifies signature, algorithm and expiry and returns the claims.
// Failures wrap either ErrExpired or ErrMalformed.
func (s *Service) Decode(raw string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.now),
	)
	claims := &Claims{}
	_, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return s.pub, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if claims.Type != Access && claims.Type != Refresh {
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformed, claims.Type)
	}
	return claims, nil
}

// Remaining reports how long the decoded token stays valid, never negative.
func (s *Service) Remaining(c *Claims) time.Duration {
	if c == nil || c.ExpiresAt == nil {
		return 0
	}
	if d := c.ExpiresAt.Time.Sub(s.now()); d > 0 {
		return d
	}
	return 0
}
