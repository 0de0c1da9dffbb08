// Package auth holds the stateless credential primitives: signed access
// tokens, password hashing, and anti-forgery tokens. Nothing here performs
// I/O; persistence and revocation live in the services and revocation
// packages.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tbourn/go-realtime-chat/internal/domain"
)

var (
	// ErrTokenInvalid covers bad signatures, malformed tokens, unknown
	// algorithms and unusable claims.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrTokenExpired is returned for well-formed tokens past their exp.
	ErrTokenExpired = errors.New("token expired")
)

// Claims is the access token payload: sub, role, exp and nothing else, so
// the same inputs always produce the same token.
type Claims struct {
	Role domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// Identity is what a validated access token asserts.
type Identity struct {
	UserID    string
	Role      domain.Role
	ExpiresAt time.Time
}

// TokenService mints and validates HS256 access tokens.
type TokenService struct {
	secret []byte
	now    func() time.Time
}

// NewTokenService returns a TokenService signing with secret.
func NewTokenService(secret string) *TokenService {
	return &TokenService{secret: []byte(secret), now: time.Now}
}

// WithClock overrides the time source. Used by tests.
func (s *TokenService) WithClock(now func() time.Time) *TokenService {
	s.now = now
	return s
}

// Mint signs a token for subject valid for ttl.
func (s *TokenService) Mint(subject string, role domain.Role, ttl time.Duration) (string, time.Time, error) {
	if subject == "" || !role.Valid() {
		return "", time.Time{}, ErrTokenInvalid
	}
	exp := s.now().Add(ttl).UTC().Truncate(time.Second)
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Validate checks signature and expiry and returns the asserted identity.
func (s *TokenService) Validate(token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrTokenInvalid
	}
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return Identity{}, ErrTokenExpired
	case err != nil:
		return Identity{}, ErrTokenInvalid
	}
	if claims.Subject == "" || !claims.Role.Valid() {
		return Identity{}, ErrTokenInvalid
	}
	return Identity{
		UserID:    claims.Subject,
		Role:      claims.Role,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Remaining returns how long id stays valid at now, never negative.
func (id Identity) Remaining(now time.Time) time.Duration {
	if d := id.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}
