// Package services – SessionService
//
// SessionService owns the session lifecycle: login, refresh, logout, and
// per-request authentication. It combines the stateless token primitives
// from package auth with two stateful ledgers:
//
//   - refresh tokens, persisted (as digests) through package repo;
//   - revoked access tokens, kept in a revocation.Store for exactly the
//     remaining lifetime of each token.
//
// Refresh does not rotate the refresh token. Any failure of the revocation
// lookup rejects the request.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/tbourn/go-realtime-chat/internal/auth"
	"github.com/tbourn/go-realtime-chat/internal/domain"
	"github.com/tbourn/go-realtime-chat/internal/repo"
	"github.com/tbourn/go-realtime-chat/internal/revocation"
)

// Session is the credential bundle handed to a client after login/refresh.
type Session struct {
	User             *domain.User
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	CSRFToken        string
}

// SessionService issues, validates and revokes sessions.
type SessionService struct {
	DB      *gorm.DB
	Users   *UserService
	Tokens  *auth.TokenService
	Forgery *auth.ForgeryGuard
	Revoked revocation.Store

	AccessTTL  time.Duration
	RefreshTTL time.Duration

	now func() time.Time
}

// NewSessionService wires a SessionService with the default clock.
func NewSessionService(db *gorm.DB, users *UserService, tokens *auth.TokenService, forgery *auth.ForgeryGuard, revoked revocation.Store, accessTTL, refreshTTL time.Duration) *SessionService {
	return &SessionService{
		DB:         db,
		Users:      users,
		Tokens:     tokens,
		Forgery:    forgery,
		Revoked:    revoked,
		AccessTTL:  accessTTL,
		RefreshTTL: refreshTTL,
		now:        time.Now,
	}
}

func (s *SessionService) clock() time.Time {
	if s.now == nil {
		return time.Now()
	}
	return s.now()
}

// Login verifies credentials and issues a full session.
func (s *SessionService) Login(ctx context.Context, email, password string) (*Session, error) {
	ctx, span := otel.Tracer("services/SessionService").Start(ctx, "Login")
	defer span.End()

	u, err := s.Users.VerifyCredentials(ctx, email, password)
	if err != nil {
		return nil, err
	}
	refresh, refreshExp, err := s.CreateRefresh(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	sess, err := s.issue(u)
	if err != nil {
		return nil, err
	}
	sess.RefreshToken = refresh
	sess.RefreshExpiresAt = refreshExp
	return sess, nil
}

// Refresh exchanges a refresh token for a new access token. The refresh
// token itself stays valid until its own expiry or logout.
func (s *SessionService) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	ctx, span := otel.Tracer("services/SessionService").Start(ctx, "Refresh")
	defer span.End()

	userID, err := s.ConsumeRefresh(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	u, err := s.Users.Get(ctx, userID)
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrRefreshNotFound
	}
	if err != nil {
		return nil, err
	}
	sess, err := s.issue(u)
	if err != nil {
		return nil, err
	}
	sess.RefreshToken = refreshToken
	return sess, nil
}

// Logout blacklists the presented access token for its remaining lifetime
// and deletes the refresh token, if one is given.
func (s *SessionService) Logout(ctx context.Context, accessToken, refreshToken string) error {
	ctx, span := otel.Tracer("services/SessionService").Start(ctx, "Logout")
	defer span.End()

	id, err := s.Tokens.Validate(accessToken)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	if err := s.Revoked.Add(ctx, auth.Digest(accessToken), id.Remaining(s.clock())); err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	if refreshToken != "" {
		if err := s.RevokeRefresh(ctx, refreshToken); err != nil {
			return err
		}
	}
	span.SetAttributes(attribute.String("user.id", id.UserID))
	return nil
}

// Authenticate validates an access token and checks the blacklist.
func (s *SessionService) Authenticate(ctx context.Context, accessToken string) (auth.Identity, error) {
	id, err := s.Tokens.Validate(accessToken)
	if err != nil {
		return auth.Identity{}, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	revoked, err := s.Revoked.IsRevoked(ctx, auth.Digest(accessToken))
	if err != nil {
		log.Error().Err(err).Msg("revocation lookup failed; rejecting")
		return auth.Identity{}, ErrSessionUnavailable
	}
	if revoked {
		return auth.Identity{}, ErrTokenRevoked
	}
	return id, nil
}

// IssueCSRF returns a new anti-forgery token bound to userID.
func (s *SessionService) IssueCSRF(userID string) (string, error) {
	return s.Forgery.Generate(userID)
}

// VerifyCSRF checks an anti-forgery token for userID. A malformed token and
// a mismatching one are reported with distinct errors of the same kind.
func (s *SessionService) VerifyCSRF(userID, token string) error {
	ok, err := s.Forgery.Verify(userID, token)
	if err != nil {
		return ErrForgeryMalformed
	}
	if !ok {
		return ErrForgeryMismatch
	}
	return nil
}

// CreateRefresh mints and stores a refresh token for userID.
func (s *SessionService) CreateRefresh(ctx context.Context, userID string) (string, time.Time, error) {
	token, digest, err := auth.NewRefreshToken()
	if err != nil {
		return "", time.Time{}, err
	}
	exp := s.clock().Add(s.RefreshTTL).UTC()
	if _, err := repo.CreateRefreshToken(ctx, s.DB, userID, digest, exp); err != nil {
		return "", time.Time{}, err
	}
	return token, exp, nil
}

// ConsumeRefresh resolves a refresh token to its user. The row is kept.
func (s *SessionService) ConsumeRefresh(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrRefreshNotFound
	}
	rt, err := repo.GetRefreshToken(ctx, s.DB, auth.Digest(token))
	if errors.Is(err, repo.ErrNotFound) {
		return "", ErrRefreshNotFound
	}
	if err != nil {
		return "", err
	}
	if rt.Expired(s.clock()) {
		_ = repo.DeleteRefreshToken(ctx, s.DB, rt.TokenHash)
		return "", ErrRefreshExpired
	}
	return rt.UserID, nil
}

// RevokeRefresh deletes a refresh token; unknown tokens are a no-op.
func (s *SessionService) RevokeRefresh(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return repo.DeleteRefreshToken(ctx, s.DB, auth.Digest(token))
}

// PurgeExpired removes refresh tokens that can no longer be consumed.
func (s *SessionService) PurgeExpired(ctx context.Context) (int64, error) {
	return repo.DeleteExpiredRefreshTokens(ctx, s.DB, s.clock())
}

// RunJanitor purges expired refresh tokens every interval until ctx ends.
func (s *SessionService) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := s.PurgeExpired(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("refresh token purge failed")
				continue
			}
			if n > 0 {
				log.Info().Int64("purged", n).Msg("expired refresh tokens removed")
			}
		}
	}
}

func (s *SessionService) issue(u *domain.User) (*Session, error) {
	access, exp, err := s.Tokens.Mint(u.ID, u.Role, s.AccessTTL)
	if err != nil {
		return nil, err
	}
	csrf, err := s.Forgery.Generate(u.ID)
	if err != nil {
		return nil, err
	}
	return &Session{User: u, AccessToken: access, AccessExpiresAt: exp, CSRFToken: csrf}, nil
}
