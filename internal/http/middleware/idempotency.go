// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements the transport half of message idempotency. It
// validates the Idempotency-Key header on message posts, stashes the key for
// the handler, and asks a lookup whether the same caller already stored a
// message under that key in the same conversation. A replay is flagged so
// the rate limiter lets it through; the handler still asks the message
// ledger, which is the source of truth.
package middleware

import (
	"context"
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-realtime-chat/internal/services"
)

// HeaderIdempotencyKey is the request header carrying the client-chosen key.
const HeaderIdempotencyKey = "Idempotency-Key"

const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay"
	ctxKeyRateBypass = "rate.bypass"
)

// GetIdempotencyKey returns the validated key stored by IdempotencyValidator.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyIdemKey)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// IsReplay reports whether the lookup found a prior message for this key.
func IsReplay(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyIdemReplay)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// IdempotencyOptions configures header validation.
type IdempotencyOptions struct {
	// MaxLen caps the key length. Values <= 0 default to 128.
	MaxLen int
	// Pattern restricts allowed characters; nil means ^[A-Za-z0-9._~\-:]+$.
	Pattern *regexp.Regexp
	// Required rejects requests without the header.
	Required bool
	// Param names the route parameter holding the conversation id.
	Param string
}

// IdempotencyLookup reports whether userID already stored a message in
// conversationID under key. Errors are treated as "no replay".
type IdempotencyLookup func(ctx context.Context, userID, conversationID, key string) (bool, error)

// IdempotencyValidator validates and stashes the Idempotency-Key header and
// flags replays found by lookup. Invalid or, when Required, missing keys are
// rejected with 400 validation_failed.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 128
	}
	pat := opts.Pattern
	if pat == nil {
		pat = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)
	}
	param := opts.Param
	if param == "" {
		param = "id"
	}

	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(HeaderIdempotencyKey))
		if key == "" {
			if opts.Required {
				abortJSON(c, http.StatusBadRequest, string(services.KindValidation), "Idempotency-Key header is required")
				return
			}
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			abortJSON(c, http.StatusBadRequest, string(services.KindValidation), "invalid Idempotency-Key")
			return
		}
		c.Set(ctxKeyIdemKey, key)

		if uid := userIDFromCtx(c); lookup != nil && uid != "" {
			exists, err := lookup(c.Request.Context(), uid, c.Param(param), key)
			if err != nil {
				LoggerFrom(c).Warn().Err(err).Msg("idempotency lookup failed")
			}
			if exists {
				c.Set(ctxKeyIdemReplay, true)
				c.Set(ctxKeyRateBypass, true)
			}
		}
		c.Next()
	}
}

// userIDFromCtx returns the authenticated user id set by Identify, or "".
func userIDFromCtx(c *gin.Context) string {
	if v, ok := c.Get(ctxKeyUserID); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
