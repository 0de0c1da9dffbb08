package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-realtime-chat/internal/services"
)

type stubCSRF struct{}

func (stubCSRF) VerifyCSRF(userID, token string) error {
	switch token {
	case "csrf-" + userID:
		return nil
	case "garbage":
		return services.ErrForgeryMalformed
	}
	return services.ErrForgeryMismatch
}

func csrfRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), Identify(newStubAuth()))
	g := r.Group("/", RequireAuth(), AntiForgery(stubCSRF{}))
	g.GET("/thing", func(c *gin.Context) { c.Status(http.StatusOK) })
	g.POST("/thing", func(c *gin.Context) { c.Status(http.StatusCreated) })
	return r
}

func doCSRF(r http.Handler, method, token string) (*httptest.ResponseRecorder, map[string]any) {
	req := httptest.NewRequest(method, "/thing", nil)
	req.Header.Set("Authorization", "Bearer good")
	if token != "" {
		req.Header.Set(HeaderCSRFToken, token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var body map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return w, body
}

func TestAntiForgery(t *testing.T) {
	r := csrfRouter()

	if w, _ := doCSRF(r, http.MethodGet, ""); w.Code != http.StatusOK {
		t.Fatalf("safe method must pass, got %d", w.Code)
	}
	w, body := doCSRF(r, http.MethodPost, "")
	if w.Code != http.StatusForbidden || body["code"] != "forgery_check_failed" || body["message"] != "anti-forgery token required" {
		t.Fatalf("missing: %d %v", w.Code, body)
	}
	w, body = doCSRF(r, http.MethodPost, "csrf-someone-else")
	if w.Code != http.StatusForbidden || body["message"] != "anti-forgery token mismatch" {
		t.Fatalf("mismatch: %d %v", w.Code, body)
	}
	w, body = doCSRF(r, http.MethodPost, "garbage")
	if w.Code != http.StatusForbidden || body["message"] != "anti-forgery token malformed" {
		t.Fatalf("malformed: %d %v", w.Code, body)
	}
	if w, _ := doCSRF(r, http.MethodPost, "csrf-u1"); w.Code != http.StatusCreated {
		t.Fatalf("valid token: %d", w.Code)
	}
}

func TestAntiForgery_RejectionLogCarriesUserOnce(t *testing.T) {
	buf := captureLogger(t)
	r := csrfRouter()

	if w, _ := doCSRF(r, http.MethodPost, "csrf-someone-else"); w.Code != http.StatusForbidden {
		t.Fatalf("mismatch: %d", w.Code)
	}
	var line string
	for _, l := range strings.Split(buf.String(), "\n") {
		if strings.Contains(l, "anti-forgery token mismatch") {
			line = l
		}
	}
	if line == "" {
		t.Fatalf("no rejection log:\n%s", buf.String())
	}
	if n := strings.Count(line, `"user_id"`); n != 1 {
		t.Fatalf("user_id appears %d times: %s", n, line)
	}
}
