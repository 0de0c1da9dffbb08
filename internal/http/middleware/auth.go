// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file resolves the caller's identity from an access token. Identify is
// installed globally and never rejects: it only annotates the context so that
// logging, idempotency and rate limiting can key on the user. RequireAuth is
// mounted on protected groups and turns a missing identity into a 401.
//
// Tokens are read from "Authorization: Bearer <token>" first and from the
// access_token cookie second.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-realtime-chat/internal/auth"
	"github.com/tbourn/go-realtime-chat/internal/services"
)

// AccessTokenCookie is the cookie set at login.
const AccessTokenCookie = "access_token"

const (
	ctxKeyUserID    = "userID"
	ctxKeyIdentity  = "auth.identity"
	ctxKeyToken     = "auth.token"
	ctxKeyAuthError = "auth.error"
)

// Authenticator validates an access token, revocation included.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (auth.Identity, error)
}

// BearerToken extracts the raw access token from the request.
func BearerToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	if v, err := c.Cookie(AccessTokenCookie); err == nil {
		return v
	}
	return ""
}

// Identify authenticates the request when it carries a token.
func Identify(a Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := BearerToken(c)
		if token == "" {
			c.Next()
			return
		}
		id, err := a.Authenticate(c.Request.Context(), token)
		if err != nil {
			c.Set(ctxKeyAuthError, err)
			c.Next()
			return
		}
		c.Set(ctxKeyUserID, id.UserID)
		c.Set(ctxKeyIdentity, id)
		c.Set(ctxKeyToken, token)
		withLogFields(c, func(lc zerolog.Context) zerolog.Context {
			return lc.Str("user_id", id.UserID).Str("role", string(id.Role))
		})
		c.Next()
	}
}

// RequireAuth aborts with 401 unless Identify attached an identity.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := IdentityFrom(c); ok {
			c.Next()
			return
		}
		msg := "authentication required"
		if v, ok := c.Get(ctxKeyAuthError); ok {
			if err, _ := v.(error); err != nil {
				msg = authMessage(err)
			}
		}
		c.Header("WWW-Authenticate", `Bearer realm="api"`)
		abortJSON(c, http.StatusUnauthorized, string(services.KindUnauthenticated), msg)
	}
}

// IdentityFrom returns the identity set by Identify.
func IdentityFrom(c *gin.Context) (auth.Identity, bool) {
	v, ok := c.Get(ctxKeyIdentity)
	if !ok {
		return auth.Identity{}, false
	}
	id, ok := v.(auth.Identity)
	return id, ok
}

// AccessToken returns the validated raw token, if any.
func AccessToken(c *gin.Context) string {
	v, _ := c.Get(ctxKeyToken)
	s, _ := v.(string)
	return s
}

func authMessage(err error) string {
	switch {
	case errors.Is(err, auth.ErrTokenExpired):
		return "token expired"
	case errors.Is(err, services.ErrTokenRevoked):
		return "token revoked"
	case errors.Is(err, services.ErrSessionUnavailable):
		return "session check unavailable"
	}
	return "invalid token"
}

// abortJSON writes the shared error envelope.
func abortJSON(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"request_id": c.Writer.Header().Get(requestIDHeader),
		"code":       code,
		"message":    msg,
	})
}
