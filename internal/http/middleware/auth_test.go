package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-realtime-chat/internal/auth"
	"github.com/tbourn/go-realtime-chat/internal/domain"
	"github.com/tbourn/go-realtime-chat/internal/services"
)

// stubAuth maps tokens to identities or errors.
type stubAuth struct {
	ids  map[string]auth.Identity
	errs map[string]error
}

func (s stubAuth) Authenticate(_ context.Context, token string) (auth.Identity, error) {
	if err, ok := s.errs[token]; ok {
		return auth.Identity{}, err
	}
	if id, ok := s.ids[token]; ok {
		return id, nil
	}
	return auth.Identity{}, auth.ErrTokenInvalid
}

func newStubAuth() stubAuth {
	return stubAuth{
		ids: map[string]auth.Identity{
			"good": {UserID: "u1", Role: domain.RoleUser},
		},
		errs: map[string]error{
			"expired": auth.ErrTokenExpired,
			"revoked": services.ErrTokenRevoked,
			"down":    services.ErrSessionUnavailable,
		},
	}
}

func authRouter(a Authenticator) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), RedactingLogger(RedactOptions{}), Identify(a))
	r.GET("/public", func(c *gin.Context) {
		id, ok := IdentityFrom(c)
		c.JSON(http.StatusOK, gin.H{"authed": ok, "user": id.UserID})
	})
	r.GET("/private", RequireAuth(), func(c *gin.Context) {
		id, _ := IdentityFrom(c)
		LoggerFrom(c).Info().Msg("inside")
		c.JSON(http.StatusOK, gin.H{"user": id.UserID, "token": AccessToken(c)})
	})
	return r
}

func get(r http.Handler, path string, mutate func(*http.Request)) (*httptest.ResponseRecorder, map[string]any) {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if mutate != nil {
		mutate(req)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var body map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return w, body
}

func bearer(tok string) func(*http.Request) {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+tok) }
}

func TestBearerToken_HeaderThenCookie(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.Header.Set("Authorization", "bearer  abc ")
	c.Request.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: "cookie-tok"})
	if got := BearerToken(c); got != "abc" {
		t.Fatalf("header token = %q", got)
	}

	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: "cookie-tok"})
	if got := BearerToken(c); got != "cookie-tok" {
		t.Fatalf("cookie token = %q", got)
	}

	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.Header.Set("Authorization", "Basic Zm9v")
	if got := BearerToken(c); got != "" {
		t.Fatalf("non-bearer scheme must be ignored, got %q", got)
	}
}

func TestIdentify_IsSoft(t *testing.T) {
	r := authRouter(newStubAuth())

	_, body := get(r, "/public", nil)
	if body["authed"] != false {
		t.Fatalf("anonymous: %v", body)
	}
	w, body := get(r, "/public", bearer("nope"))
	if w.Code != http.StatusOK || body["authed"] != false {
		t.Fatalf("bad token must not block public routes: %d %v", w.Code, body)
	}
	_, body = get(r, "/public", bearer("good"))
	if body["authed"] != true || body["user"] != "u1" {
		t.Fatalf("good token: %v", body)
	}
}

func TestRequireAuth_Statuses(t *testing.T) {
	r := authRouter(newStubAuth())

	cases := []struct {
		name   string
		mutate func(*http.Request)
		msg    string
	}{
		{"missing", nil, "authentication required"},
		{"invalid", bearer("nope"), "invalid token"},
		{"expired", bearer("expired"), "token expired"},
		{"revoked", bearer("revoked"), "token revoked"},
		{"store down", bearer("down"), "session check unavailable"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w, body := get(r, "/private", tc.mutate)
			if w.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d", w.Code)
			}
			if body["code"] != "unauthenticated" || body["message"] != tc.msg {
				t.Fatalf("body = %v", body)
			}
			if body["request_id"] == "" {
				t.Fatalf("request_id missing")
			}
			if !strings.HasPrefix(w.Header().Get("WWW-Authenticate"), "Bearer") {
				t.Fatalf("WWW-Authenticate = %q", w.Header().Get("WWW-Authenticate"))
			}
		})
	}
}

func TestRequireAuth_PassesIdentityAndScopedLogger(t *testing.T) {
	buf := captureLogger(t)
	r := authRouter(newStubAuth())

	w, body := get(r, "/private", func(req *http.Request) {
		req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: "good"})
	})
	if w.Code != http.StatusOK || body["user"] != "u1" || body["token"] != "good" {
		t.Fatalf("authed request: %d %v", w.Code, body)
	}
	if !strings.Contains(buf.String(), `"user_id":"u1"`) {
		t.Fatalf("request logger missing user_id:\n%s", buf.String())
	}
}
