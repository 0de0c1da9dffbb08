package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/tbourn/go-realtime-chat/internal/auth"
	"github.com/tbourn/go-realtime-chat/internal/domain"
	"github.com/tbourn/go-realtime-chat/internal/services"
)

// Close codes sent when a connection is refused or dropped by the server.
const (
	CloseUnauthenticated = 4401
	CloseForbidden       = 4403
	CloseNotFound        = 4404
	CloseSlowConsumer    = 4429
	CloseUnavailable     = 4503
)

// Outbound event types.
const (
	EventMessage = "message"
	EventRead    = "read"
	EventError   = "error"
)

// Authenticator validates access tokens, blacklist included.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (auth.Identity, error)
}

// Directory resolves conversations and membership.
type Directory interface {
	Get(ctx context.Context, conversationID string) (*domain.Conversation, error)
	IsMember(ctx context.Context, conversationID, userID string) (bool, error)
}

// Ledger persists messages and read receipts.
type Ledger interface {
	Append(ctx context.Context, conversationID, senderID, text, key string) (*domain.Message, bool, error)
	MarkReadIn(ctx context.Context, conversationID, messageID string, requester auth.Identity) (*domain.Message, bool, error)
}

// Rejection is returned when a connection must be refused or closed.
type Rejection struct {
	Code   int
	Reason string
}

func (r *Rejection) Error() string { return r.Reason }

// Event is the outbound wire format.
type Event struct {
	Type      string          `json:"type"`
	Message   *domain.Message `json:"message,omitempty"`
	Replayed  bool            `json:"replayed,omitempty"`
	MessageID string          `json:"message_id,omitempty"`
	ReaderID  string          `json:"reader_id,omitempty"`
	Code      string          `json:"code,omitempty"`
	Detail    string          `json:"detail,omitempty"`
}

// inbound is the client wire format for both event types.
type inbound struct {
	Type           string `json:"type"`
	Text           string `json:"text"`
	IdempotencyKey string `json:"idempotency_key"`
	MessageID      string `json:"message_id"`
}

// Options tunes per-connection behavior.
type Options struct {
	SendBuffer int
	EventRPS   float64
	EventBurst int
	// StaleAfter is how long a connection may stay silent before the
	// sweeper evicts it. Zero disables the sweeper.
	StaleAfter time.Duration
}

// Hub admits connections, handles their inbound events and fans out
// confirmed events through the Registry.
type Hub struct {
	reg    *Registry
	auth   Authenticator
	dir    Directory
	ledger Ledger
	opts   Options
	now    func() time.Time
}

// NewHub wires a Hub. The registry is owned by the caller.
func NewHub(reg *Registry, a Authenticator, d Directory, l Ledger, opts Options) *Hub {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 256
	}
	return &Hub{reg: reg, auth: a, dir: d, ledger: l, opts: opts, now: time.Now}
}

// Registry returns the hub's registry.
func (h *Hub) Registry() *Registry { return h.reg }

// Admit authenticates token, checks membership of conversationID and
// registers a new connection. Refusals are *Rejection values and leave the
// registry untouched.
func (h *Hub) Admit(ctx context.Context, conversationID, token string) (*Conn, error) {
	id, rej := h.check(ctx, conversationID, token)
	if rej != nil {
		log.Info().Str("conversation_id", conversationID).Int("code", rej.Code).
			Str("reason", rej.Reason).Msg("ws rejected")
		return nil, rej
	}
	var lim *rate.Limiter
	if h.opts.EventRPS > 0 {
		burst := h.opts.EventBurst
		if burst <= 0 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(h.opts.EventRPS), burst)
	}
	c := newConn(conversationID, id, token, h.opts.SendBuffer, lim, h.now())
	h.reg.Add(c)
	wsConns.Inc()
	registryConversations.Set(float64(h.reg.Conversations()))
	log.Info().Str("conn_id", c.ID).Str("conversation_id", conversationID).
		Str("user_id", id.UserID).Msg("ws admitted")
	return c, nil
}

// check is shared by admission and per-event re-validation.
func (h *Hub) check(ctx context.Context, conversationID, token string) (auth.Identity, *Rejection) {
	id, err := h.auth.Authenticate(ctx, token)
	if err != nil {
		if errors.Is(err, services.ErrSessionUnavailable) {
			return id, &Rejection{Code: CloseUnavailable, Reason: "session check unavailable"}
		}
		return id, &Rejection{Code: CloseUnauthenticated, Reason: "invalid or revoked token"}
	}
	if _, err := h.dir.Get(ctx, conversationID); err != nil {
		if services.KindOf(err) == services.KindNotFound {
			return id, &Rejection{Code: CloseNotFound, Reason: "conversation not found"}
		}
		return id, &Rejection{Code: websocket.CloseInternalServerErr, Reason: "internal error"}
	}
	member, err := h.dir.IsMember(ctx, conversationID, id.UserID)
	if err != nil {
		return id, &Rejection{Code: websocket.CloseInternalServerErr, Reason: "internal error"}
	}
	if !domain.Can(id.Role, member, domain.CapPostMessage) {
		return id, &Rejection{Code: CloseForbidden, Reason: "not a member"}
	}
	return id, nil
}

// HandleInbound processes one frame from c. A non-nil result means the
// connection lost its right to stay open and must be closed with that code;
// every other problem is reported to c in-band.
func (h *Hub) HandleInbound(ctx context.Context, c *Conn, raw []byte) *Rejection {
	c.touch(h.now())

	if _, rej := h.check(ctx, c.ConversationID, c.token); rej != nil {
		wsEvents.WithLabelValues("unknown", "rejected").Inc()
		return rej
	}

	var in inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		wsEvents.WithLabelValues("malformed", "error").Inc()
		h.notify(c, services.KindValidation, "malformed JSON")
		return nil
	}
	if !c.allow() {
		wsEvents.WithLabelValues(eventLabel(in.Type), "error").Inc()
		h.notify(c, "rate_limited", "too many events")
		return nil
	}

	switch in.Type {
	case EventMessage:
		h.handleMessage(ctx, c, in)
	case EventRead:
		h.handleRead(ctx, c, in)
	default:
		wsEvents.WithLabelValues("unknown", "error").Inc()
		h.notify(c, services.KindValidation, "unknown event type")
	}
	return nil
}

func (h *Hub) handleMessage(ctx context.Context, c *Conn, in inbound) {
	if in.IdempotencyKey == "" {
		wsEvents.WithLabelValues(EventMessage, "error").Inc()
		h.notify(c, services.KindValidation, services.ErrMissingIdempotencyKey.Error())
		return
	}
	m, created, err := h.ledger.Append(ctx, c.ConversationID, c.Identity.UserID, in.Text, in.IdempotencyKey)
	if err != nil {
		wsEvents.WithLabelValues(EventMessage, "error").Inc()
		h.fail(c, err)
		return
	}
	if !created {
		wsEvents.WithLabelValues(EventMessage, "replayed").Inc()
		h.sendTo(c, Event{Type: EventMessage, Message: m, Replayed: true})
		return
	}
	wsEvents.WithLabelValues(EventMessage, "ok").Inc()
	h.Broadcast(c.ConversationID, Event{Type: EventMessage, Message: m})
}

func (h *Hub) handleRead(ctx context.Context, c *Conn, in inbound) {
	if in.MessageID == "" {
		wsEvents.WithLabelValues(EventRead, "error").Inc()
		h.notify(c, services.KindValidation, "message_id is required")
		return
	}
	m, changed, err := h.ledger.MarkReadIn(ctx, c.ConversationID, in.MessageID, c.Identity)
	if err != nil {
		wsEvents.WithLabelValues(EventRead, "error").Inc()
		h.fail(c, err)
		return
	}
	outcome := "ok"
	if !changed {
		outcome = "replayed"
	}
	wsEvents.WithLabelValues(EventRead, outcome).Inc()
	// Repeats are broadcast too so a participant that missed the first
	// notice can catch up.
	h.Broadcast(c.ConversationID, Event{Type: EventRead, MessageID: m.ID, ReaderID: c.Identity.UserID})
}

// Broadcast delivers ev to every connection registered for conversationID
// at call time. A recipient whose buffer is full is evicted; the others are
// unaffected. It returns the number of successful deliveries.
func (h *Hub) Broadcast(conversationID string, ev Event) int {
	b, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("conversation_id", conversationID).Msg("encode event")
		return 0
	}
	delivered := 0
	for _, c := range h.reg.Snapshot(conversationID) {
		if c.Deliver(b) {
			delivered++
			fanoutDeliveries.WithLabelValues("delivered").Inc()
			continue
		}
		fanoutDeliveries.WithLabelValues("dropped").Inc()
		h.evict(c, CloseSlowConsumer, "send buffer full")
	}
	return delivered
}

// Disconnect unregisters c and closes it normally if nothing closed it yet.
func (h *Hub) Disconnect(c *Conn) {
	h.unregister(c)
	c.Close(websocket.CloseNormalClosure, "")
}

// RunSweeper evicts silent connections every interval until ctx ends.
func (h *Hub) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 || h.opts.StaleAfter <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			h.Sweep()
		}
	}
}

// Sweep evicts connections idle for longer than StaleAfter and returns how
// many it removed.
func (h *Hub) Sweep() int {
	if h.opts.StaleAfter <= 0 {
		return 0
	}
	stale := h.reg.Stale(h.now().Add(-h.opts.StaleAfter))
	for _, c := range stale {
		h.evict(c, websocket.CloseGoingAway, "idle")
	}
	if len(stale) > 0 {
		log.Info().Int("evicted", len(stale)).Msg("ws sweep")
	}
	return len(stale)
}

// Shutdown closes every connection.
func (h *Hub) Shutdown() {
	for _, c := range h.reg.All() {
		h.evict(c, websocket.CloseGoingAway, "server shutting down")
	}
}

func (h *Hub) evict(c *Conn, code int, reason string) {
	h.unregister(c)
	c.Close(code, reason)
	log.Info().Str("conn_id", c.ID).Str("conversation_id", c.ConversationID).
		Int("code", code).Str("reason", reason).Msg("ws evicted")
}

func (h *Hub) unregister(c *Conn) {
	if h.reg.Remove(c) {
		wsConns.Dec()
		registryConversations.Set(float64(h.reg.Conversations()))
	}
}

func (h *Hub) sendTo(c *Conn, ev Event) {
	b, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if !c.Deliver(b) {
		h.evict(c, CloseSlowConsumer, "send buffer full")
	}
}

func (h *Hub) notify(c *Conn, code services.Kind, detail string) {
	h.sendTo(c, Event{Type: EventError, Code: string(code), Detail: detail})
}

func (h *Hub) fail(c *Conn, err error) {
	kind := services.KindOf(err)
	if kind == services.KindInternal {
		log.Error().Err(err).Str("conn_id", c.ID).Msg("ws event failed")
	}
	h.notify(c, kind, services.PublicMessage(err))
}

func eventLabel(t string) string {
	switch t {
	case EventMessage, EventRead:
		return t
	}
	return "unknown"
}
