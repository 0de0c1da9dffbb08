// Package handlers exposes the REST surface of the chat backend and the
// WebSocket upgrade endpoint.
//
// Handlers are transport-thin: they bind input, read the caller's identity
// from middleware, delegate to services through the interfaces below, and
// translate results into HTTP responses. Every state change that other
// members should see (a posted message, a read receipt) is pushed to live
// connections through the Broadcaster after the service call returns.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-realtime-chat/internal/auth"
	"github.com/tbourn/go-realtime-chat/internal/domain"
	"github.com/tbourn/go-realtime-chat/internal/http/middleware"
	"github.com/tbourn/go-realtime-chat/internal/realtime"
	"github.com/tbourn/go-realtime-chat/internal/services"
)

// AccountService registers and loads users.
type AccountService interface {
	Register(ctx context.Context, name, email, password string) (*domain.User, error)
	Get(ctx context.Context, id string) (*domain.User, error)
}

// SessionService runs the login/refresh/logout lifecycle.
type SessionService interface {
	Login(ctx context.Context, email, password string) (*services.Session, error)
	Refresh(ctx context.Context, refreshToken string) (*services.Session, error)
	Logout(ctx context.Context, accessToken, refreshToken string) error
	IssueCSRF(userID string) (string, error)
}

// ConversationService is the conversation directory.
type ConversationService interface {
	CreatePersonal(ctx context.Context, actor auth.Identity, userA, userB string) (*domain.Conversation, error)
	CreateGroup(ctx context.Context, name, creatorID string) (*domain.Conversation, error)
	AddMember(ctx context.Context, actor auth.Identity, conversationID, userID string) error
	RemoveMember(ctx context.Context, actor auth.Identity, conversationID, userID string) error
	GetForMember(ctx context.Context, actor auth.Identity, conversationID string) (*domain.Conversation, error)
	RequireMember(ctx context.Context, actor auth.Identity, conversationID string) error
	ListForUser(ctx context.Context, userID string) ([]domain.Conversation, error)
	ListVersion(ctx context.Context, userID string) (int64, *time.Time, error)
	Members(ctx context.Context, actor auth.Identity, conversationID string) ([]domain.User, error)
}

// MessageService is the message ledger.
type MessageService interface {
	Append(ctx context.Context, conversationID, senderID, text, key string) (*domain.Message, bool, error)
	History(ctx context.Context, conversationID string, limit, offset int) ([]domain.Message, int64, error)
	HistoryVersion(ctx context.Context, conversationID string) (int64, *time.Time, error)
	MarkRead(ctx context.Context, messageID string, requester auth.Identity) (*domain.Message, bool, error)
}

// Broadcaster pushes events to the live connections of a conversation.
type Broadcaster interface {
	Broadcast(conversationID string, ev realtime.Event) int
}

// SocketServer upgrades and runs a WebSocket connection.
type SocketServer interface {
	ServeWS(w http.ResponseWriter, r *http.Request, conversationID, token string, cfg realtime.TransportConfig)
}

// Options carries transport settings that are not service concerns.
type Options struct {
	AccessTTL    time.Duration
	CookieSecure bool
	Transport    realtime.TransportConfig
}

// Deps bundles what New needs.
type Deps struct {
	Accounts      AccountService
	Sessions      SessionService
	Conversations ConversationService
	Messages      MessageService
	Broadcaster   Broadcaster
	Sockets       SocketServer
	Options       Options
}

// Handlers groups all endpoints.
type Handlers struct {
	accounts AccountService
	sessions SessionService
	convs    ConversationService
	msgs     MessageService
	fanout   Broadcaster
	sockets  SocketServer
	opts     Options
}

// New constructs Handlers. A nil Broadcaster disables live pushes from REST.
func New(d Deps) *Handlers {
	return &Handlers{
		accounts: d.Accounts,
		sessions: d.Sessions,
		convs:    d.Conversations,
		msgs:     d.Messages,
		fanout:   d.Broadcaster,
		sockets:  d.Sockets,
		opts:     d.Options,
	}
}

// identity returns the caller set by middleware.Identify. Routes using it
// are mounted behind RequireAuth, so a miss is a wiring bug and renders 401.
func identity(c *gin.Context) (auth.Identity, bool) {
	id, found := middleware.IdentityFrom(c)
	if !found {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthenticated, "authentication required")
	}
	return id, found
}

func (h *Handlers) broadcast(conversationID string, ev realtime.Event) {
	if h.fanout != nil {
		h.fanout.Broadcast(conversationID, ev)
	}
}
