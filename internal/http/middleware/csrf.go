package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-realtime-chat/internal/services"
)

// HeaderCSRFToken carries the anti-forgery token on unsafe requests.
const HeaderCSRFToken = "X-CSRF-Token"

// CSRFVerifier checks an anti-forgery token against a user id.
type CSRFVerifier interface {
	VerifyCSRF(userID, token string) error
}

// AntiForgery rejects state-changing requests whose X-CSRF-Token was not
// issued to the authenticated caller. Safe methods pass through. It must
// run after RequireAuth.
func AntiForgery(v CSRFVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}
		id, ok := IdentityFrom(c)
		if !ok {
			abortJSON(c, http.StatusUnauthorized, string(services.KindUnauthenticated), "authentication required")
			return
		}
		token := c.GetHeader(HeaderCSRFToken)
		if token == "" {
			abortJSON(c, http.StatusForbidden, string(services.KindForgery), "anti-forgery token required")
			return
		}
		if err := v.VerifyCSRF(id.UserID, token); err != nil {
			msg := "anti-forgery token mismatch"
			if errors.Is(err, services.ErrForgeryMalformed) {
				msg = "anti-forgery token malformed"
			}
			LoggerFrom(c).Warn().Msg(msg)
			abortJSON(c, http.StatusForbidden, string(services.KindForgery), msg)
			return
		}
		c.Next()
	}
}
