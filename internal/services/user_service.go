// Package services – UserService
//
// UserService is the credential store: registration, lookup, and password
// verification. Emails are unique and stored lowercased; passwords are kept
// as bcrypt hashes only.
package services

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-realtime-chat/internal/auth"
	"github.com/tbourn/go-realtime-chat/internal/domain"
	"github.com/tbourn/go-realtime-chat/internal/repo"
)

const (
	minNameRunes     = 2
	maxNameRunes     = 100
	minPasswordRunes = 6
)

// UserService manages accounts.
type UserService struct {
	DB *gorm.DB
}

// NewUserService returns a UserService backed by db.
func NewUserService(db *gorm.DB) *UserService { return &UserService{DB: db} }

// Register creates a USER account.
func (s *UserService) Register(ctx context.Context, name, email, password string) (*domain.User, error) {
	ctx, span := otel.Tracer("services/UserService").Start(ctx, "Register")
	defer span.End()
	return s.create(ctx, name, email, password, domain.RoleUser)
}

// EnsureAdmin creates an ADMIN account for email, or promotes the existing
// account. Used to bootstrap the first administrator.
func (s *UserService) EnsureAdmin(ctx context.Context, name, email, password string) (*domain.User, error) {
	u, err := repo.GetUserByEmail(ctx, s.DB, email)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return s.create(ctx, name, email, password, domain.RoleAdmin)
	case err != nil:
		return nil, err
	}
	if u.Role != domain.RoleAdmin {
		if err := s.DB.WithContext(ctx).Model(u).Update("role", domain.RoleAdmin).Error; err != nil {
			return nil, err
		}
		u.Role = domain.RoleAdmin
	}
	return u, nil
}

func (s *UserService) create(ctx context.Context, name, email, password string, role domain.Role) (*domain.User, error) {
	name = normalizeName(name)
	if n := runeLen(name); n < minNameRunes || n > maxNameRunes {
		return nil, ErrInvalidName
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if len(email) > 255 || !emailRE.MatchString(email) {
		return nil, ErrInvalidEmail
	}
	if runeLen(password) < minPasswordRunes {
		return nil, ErrInvalidPassword
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	u, err := repo.CreateUser(ctx, s.DB, name, email, hash, role)
	if errors.Is(err, repo.ErrDuplicate) {
		return nil, ErrEmailTaken
	}
	return u, err
}

// Get returns a user by id.
func (s *UserService) Get(ctx context.Context, id string) (*domain.User, error) {
	ctx, span := otel.Tracer("services/UserService").Start(ctx, "Get",
		trace.WithAttributes(attribute.String("user.id", id)))
	defer span.End()

	u, err := repo.GetUser(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	return u, err
}

// VerifyCredentials returns the account for email if password matches. An
// unknown email and a wrong password are indistinguishable to the caller.
func (s *UserService) VerifyCredentials(ctx context.Context, email, password string) (*domain.User, error) {
	u, err := repo.GetUserByEmail(ctx, s.DB, email)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := auth.VerifyPassword(u.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	return u, nil
}
