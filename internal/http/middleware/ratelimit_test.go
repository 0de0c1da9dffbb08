package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func limitedRouter(rl *RateLimiter, pre gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	if pre != nil {
		r.Use(pre)
	}
	r.Use(rl.Handler())
	r.GET("/conversations", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	return r
}

func hit(r *gin.Engine, user string, replay bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/conversations", nil)
	req.RemoteAddr = "203.0.113.9:4000"
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	if replay {
		req.Header.Set("X-Test-Replay", "1")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// fromHeaders stands in for Identify and IdempotencyValidator.
func fromHeaders(c *gin.Context) {
	if u := c.GetHeader("X-Test-User"); u != "" {
		c.Set(ctxKeyUserID, u)
	}
	if c.GetHeader("X-Test-Replay") != "" {
		c.Set(ctxKeyRateBypass, true)
	}
	c.Next()
}

func TestKeyByUserOrIP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.RemoteAddr = "203.0.113.9:12345"

	if got := KeyByUserOrIP()(c); got != "ip:203.0.113.9" {
		t.Fatalf("anonymous key = %q", got)
	}
	c.Set(ctxKeyUserID, "u123")
	if got := KeyByUserOrIP()(c); got != "user:u123" {
		t.Fatalf("user key = %q", got)
	}
}

func TestRateLimiter_RejectsWithRetryAfterAndEnvelope(t *testing.T) {
	r := limitedRouter(NewRateLimiter(1, 1, KeyByUserOrIP()), nil)

	if w := hit(r, "", false); w.Code != http.StatusNoContent {
		t.Fatalf("first request: %d", w.Code)
	}
	w := hit(r, "", false)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: %d", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "1" {
		t.Fatalf("Retry-After = %q", got)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if body["code"] != "rate_limited" || body["request_id"] == "" || body["request_id"] != w.Header().Get("X-Request-ID") {
		t.Fatalf("body = %v", body)
	}
}

func TestRateLimiter_BucketsArePerUser(t *testing.T) {
	r := limitedRouter(NewRateLimiter(0.001, 1, KeyByUserOrIP()), fromHeaders)

	if w := hit(r, "alice", false); w.Code != http.StatusNoContent {
		t.Fatalf("alice first: %d", w.Code)
	}
	w := hit(r, "alice", false)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("alice second: %d", w.Code)
	}
	// A slow refill yields a long wait, rounded up.
	if ra := w.Header().Get("Retry-After"); ra != "1000" {
		t.Fatalf("Retry-After = %q", ra)
	}
	if w := hit(r, "bob", false); w.Code != http.StatusNoContent {
		t.Fatalf("bob shares alice's bucket: %d", w.Code)
	}
	if w := hit(r, "", false); w.Code != http.StatusNoContent {
		t.Fatalf("anonymous shares a user bucket: %d", w.Code)
	}
}

func TestRateLimiter_ReplayBypassesBucket(t *testing.T) {
	r := limitedRouter(NewRateLimiter(0.001, 1, KeyByUserOrIP()), fromHeaders)

	hit(r, "carol", false)
	for i := 0; i < 3; i++ {
		if w := hit(r, "carol", true); w.Code != http.StatusNoContent {
			t.Fatalf("replay %d throttled: %d", i, w.Code)
		}
	}
	if w := hit(r, "carol", false); w.Code != http.StatusTooManyRequests {
		t.Fatalf("non-replay after drain: %d", w.Code)
	}

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Set(ctxKeyRateBypass, "yes")
	if IsRateBypass(c) {
		t.Fatalf("non-bool flag must not bypass")
	}
}

func TestRateLimiter_IdleBucketsAreSwept(t *testing.T) {
	rl := NewRateLimiter(1, 1, KeyByUserOrIP())
	if rl.burst != 1 || NewRateLimiter(1, 0, nil).burst != 1 {
		t.Fatalf("burst must be at least 1")
	}
	base := time.Now()

	first := rl.limiterFor("old", base)
	if again := rl.limiterFor("old", base.Add(time.Minute)); again != first {
		t.Fatalf("bucket not reused")
	}

	rl.limiterFor("new", base.Add(rl.idle+2*time.Minute))
	rl.mu.Lock()
	_, oldKept := rl.buckets["old"]
	_, newKept := rl.buckets["new"]
	rl.mu.Unlock()
	if oldKept || !newKept {
		t.Fatalf("sweep result: old=%v new=%v", oldKept, newKept)
	}
}
