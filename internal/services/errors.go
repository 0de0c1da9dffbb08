// Package services holds the business logic for accounts, sessions,
// conversations, and messages. This file centralizes the error taxonomy.
//
// Every service error wraps exactly one kind sentinel so that transports
// (HTTP handlers, the realtime hub) can classify it with KindOf and render a
// stable code without knowing individual errors.
package services

import (
	"errors"
	"fmt"

	"github.com/tbourn/go-realtime-chat/internal/auth"
)

// Kind is the caller-visible error category.
type Kind string

const (
	KindUnauthenticated Kind = "unauthenticated"
	KindForbidden       Kind = "forbidden"
	KindNotFound        Kind = "not_found"
	KindConflict        Kind = "conflict"
	KindValidation      Kind = "validation_failed"
	KindForgery         Kind = "forgery_check_failed"
	KindInternal        Kind = "internal"
)

// Kind sentinels.
var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrValidation      = errors.New("validation failed")
	ErrForgery         = errors.New("forgery check failed")
)

// Session errors.
var (
	ErrInvalidCredentials = fmt.Errorf("%w: invalid email or password", ErrUnauthenticated)
	ErrTokenRevoked       = fmt.Errorf("%w: token revoked", ErrUnauthenticated)
	// ErrSessionUnavailable is returned when the revocation check itself
	// fails; the request is rejected rather than let through.
	ErrSessionUnavailable = fmt.Errorf("%w: session check unavailable", ErrUnauthenticated)
	ErrRefreshNotFound    = fmt.Errorf("%w: refresh token not found", ErrUnauthenticated)
	ErrRefreshExpired     = fmt.Errorf("%w: refresh token expired", ErrUnauthenticated)
	ErrForgeryMismatch    = fmt.Errorf("%w: anti-forgery token mismatch", ErrForgery)
	ErrForgeryMalformed   = fmt.Errorf("%w: anti-forgery token malformed", ErrForgery)
)

// Account errors.
var (
	ErrUserNotFound    = fmt.Errorf("%w: user", ErrNotFound)
	ErrEmailTaken      = fmt.Errorf("%w: email already registered", ErrConflict)
	ErrInvalidName     = fmt.Errorf("%w: name must be 2-100 characters", ErrValidation)
	ErrInvalidEmail    = fmt.Errorf("%w: email is invalid", ErrValidation)
	ErrInvalidPassword = fmt.Errorf("%w: password must be at least 6 characters", ErrValidation)
)

// Conversation errors.
var (
	ErrConversationNotFound = fmt.Errorf("%w: conversation", ErrNotFound)
	ErrNotMember            = fmt.Errorf("%w: not a member of this conversation", ErrForbidden)
	ErrNotAllowed           = fmt.Errorf("%w: operation not allowed", ErrForbidden)
	ErrPersonalExists       = fmt.Errorf("%w: personal conversation already exists", ErrConflict)
	ErrAlreadyMember        = fmt.Errorf("%w: user is already a member", ErrConflict)
	ErrMembershipNotFound   = fmt.Errorf("%w: membership", ErrNotFound)
	ErrSelfConversation     = fmt.Errorf("%w: a personal conversation needs two distinct users", ErrValidation)
	ErrNotGroup             = fmt.Errorf("%w: members can only be changed in group conversations", ErrValidation)
	ErrRemoveCreator        = fmt.Errorf("%w: the group creator cannot be removed", ErrValidation)
	ErrInvalidGroupName     = fmt.Errorf("%w: group name must be 1-255 characters", ErrValidation)
)

// Message errors.
var (
	ErrMessageNotFound       = fmt.Errorf("%w: message", ErrNotFound)
	ErrEmptyText             = fmt.Errorf("%w: text is empty", ErrValidation)
	ErrTextTooLong           = fmt.Errorf("%w: text too long", ErrValidation)
	ErrMissingIdempotencyKey = fmt.Errorf("%w: idempotency key is required", ErrValidation)
	ErrInvalidIdempotencyKey = fmt.Errorf("%w: idempotency key is invalid", ErrValidation)
	ErrIdempotencyKeyReused  = fmt.Errorf("%w: idempotency key belongs to another message", ErrConflict)
)

// KindOf classifies err. Token errors from the auth package count as
// unauthenticated; anything unrecognized is internal.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthenticated),
		errors.Is(err, auth.ErrTokenInvalid),
		errors.Is(err, auth.ErrTokenExpired):
		return KindUnauthenticated
	case errors.Is(err, ErrForgery), errors.Is(err, auth.ErrForgeryCheckFailed):
		return KindForgery
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrValidation):
		return KindValidation
	}
	return KindInternal
}

// PublicMessage returns a message safe to show to clients. Internal errors
// are not echoed, and an unknown refresh token reads the same as an expired
// one.
func PublicMessage(err error) string {
	switch {
	case KindOf(err) == KindInternal:
		return "internal error"
	case errors.Is(err, ErrRefreshNotFound), errors.Is(err, ErrRefreshExpired):
		return "invalid refresh token"
	}
	return err.Error()
}
