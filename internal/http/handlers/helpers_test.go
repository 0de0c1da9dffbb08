package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-realtime-chat/internal/auth"
	"github.com/tbourn/go-realtime-chat/internal/http/middleware"
	"github.com/tbourn/go-realtime-chat/internal/realtime"
	"github.com/tbourn/go-realtime-chat/internal/repo"
	"github.com/tbourn/go-realtime-chat/internal/revocation"
	"github.com/tbourn/go-realtime-chat/internal/services"
)

// recorder captures broadcasts instead of delivering them.
type recorder struct {
	mu     sync.Mutex
	events []recorded
}

type recorded struct {
	conv string
	ev   realtime.Event
}

func (r *recorder) Broadcast(conv string, ev realtime.Event) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recorded{conv, ev})
	return 1
}

func (r *recorder) all() []recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recorded(nil), r.events...)
}

// socketStub records what the WebSocket handler passed on.
type socketStub struct {
	conv, token string
}

func (s *socketStub) ServeWS(w http.ResponseWriter, _ *http.Request, conv, token string, _ realtime.TransportConfig) {
	s.conv, s.token = conv, token
	w.WriteHeader(http.StatusSwitchingProtocols)
}

type testEnv struct {
	db       *gorm.DB
	users    *services.UserService
	sessions *services.SessionService
	convs    *services.ConversationService
	msgs     *services.MessageService
	fanout   *recorder
	sockets  *socketStub
	router   *gin.Engine
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:handlers_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// newEnv wires real services behind a router that mounts the same
// middleware chain as production.
func newEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := newTestDB(t)
	users := services.NewUserService(db)
	sessions := services.NewSessionService(db, users,
		auth.NewTokenService("handler-jwt-secret"),
		auth.NewForgeryGuard("handler-csrf-secret", time.Hour),
		revocation.NewMemoryStore(), 30*time.Minute, 7*24*time.Hour)
	env := &testEnv{
		db:       db,
		users:    users,
		sessions: sessions,
		convs:    services.NewConversationService(db),
		msgs:     services.NewMessageService(db, 0),
		fanout:   &recorder{},
		sockets:  &socketStub{},
	}
	h := New(Deps{
		Accounts:      users,
		Sessions:      sessions,
		Conversations: env.convs,
		Messages:      env.msgs,
		Broadcaster:   env.fanout,
		Sockets:       env.sockets,
		Options:       Options{AccessTTL: 30 * time.Minute},
	})

	r := gin.New()
	r.Use(middleware.RequestID(), middleware.Identify(sessions))
	r.POST("/auth/register", h.Register)
	r.POST("/auth/login", h.Login)
	r.POST("/auth/refresh", h.Refresh)
	r.GET("/ws/conversations/:id", h.ServeWS)

	authed := r.Group("/", middleware.RequireAuth(), middleware.AntiForgery(sessions))
	authed.POST("/auth/logout", h.Logout)
	authed.GET("/auth/csrf", h.CSRF)
	authed.GET("/users/me", h.Me)
	authed.GET("/conversations", h.ListConversations)
	authed.POST("/conversations/personal", h.CreatePersonal)
	authed.POST("/conversations/group", h.CreateGroup)
	authed.GET("/conversations/:id", h.GetConversation)
	authed.GET("/conversations/:id/members", h.ListMembers)
	authed.POST("/conversations/:id/members", h.AddMember)
	authed.DELETE("/conversations/:id/members/:userID", h.RemoveMember)
	authed.GET("/conversations/:id/messages", h.ListMessages)
	authed.POST("/conversations/:id/messages",
		middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, env.msgs.HasKey),
		h.PostMessage)
	authed.POST("/messages/:id/read", h.MarkRead)
	env.router = r
	return env
}

// client is a logged-in user.
type client struct {
	ID      string
	Access  string
	Refresh string
	CSRF    string
}

func (e *testEnv) signup(t *testing.T, name string) client {
	t.Helper()
	email := name + "-" + uuid.NewString()[:8] + "@example.com"
	if _, err := e.users.Register(context.Background(), name, email, "secret1"); err != nil {
		t.Fatalf("register %s: %v", name, err)
	}
	w := e.do(t, http.MethodPost, "/auth/login", nil, map[string]string{"email": email, "password": "secret1"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("login %s: %d %s", name, w.Code, w.Body.String())
	}
	var tr TokenResponse
	decode(t, w, &tr)
	return client{ID: tr.User.ID, Access: tr.AccessToken, Refresh: tr.RefreshToken, CSRF: tr.CSRFToken}
}

// do sends a JSON request. A non-nil client authenticates with its bearer
// and anti-forgery tokens.
func (e *testEnv) do(t *testing.T, method, path string, cl *client, body any, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cl != nil {
		req.Header.Set("Authorization", "Bearer "+cl.Access)
		req.Header.Set(middleware.HeaderCSRFToken, cl.CSRF)
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func errCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var er ErrorResponse
	decode(t, w, &er)
	return er.Code
}
