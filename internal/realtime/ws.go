package realtime

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// TransportConfig holds socket-level limits and timers.
type TransportConfig struct {
	MaxMessageBytes int64
	PingInterval    time.Duration
	PongWait        time.Duration
	WriteWait       time.Duration
	// AllowedOrigins restricts the Origin header; empty or "*" allows any.
	AllowedOrigins []string
}

func (t TransportConfig) withDefaults() TransportConfig {
	if t.MaxMessageBytes <= 0 {
		t.MaxMessageBytes = 16 << 10
	}
	if t.PongWait <= 0 {
		t.PongWait = 60 * time.Second
	}
	if t.PingInterval <= 0 || t.PingInterval >= t.PongWait {
		t.PingInterval = t.PongWait * 9 / 10
	}
	if t.WriteWait <= 0 {
		t.WriteWait = 10 * time.Second
	}
	return t
}

func (t TransportConfig) upgrader() *websocket.Upgrader {
	allowAll := len(t.AllowedOrigins) == 0
	for _, o := range t.AllowedOrigins {
		if o == "*" {
			allowAll = true
		}
	}
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if allowAll || origin == "" {
				return true
			}
			for _, o := range t.AllowedOrigins {
				if strings.EqualFold(o, origin) {
					return true
				}
			}
			return false
		},
	}
}

// ServeWS upgrades the request, admits it to conversationID and runs the
// connection until either side closes. Admission failures are reported as a
// close frame carrying the rejection code.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, conversationID, token string, cfg TransportConfig) {
	cfg = cfg.withDefaults()
	ws, err := cfg.upgrader().Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error.
		log.Debug().Err(err).Msg("ws upgrade failed")
		return
	}
	ctx := r.Context()

	c, err := h.Admit(ctx, conversationID, token)
	if err != nil {
		var rej *Rejection
		if !errors.As(err, &rej) {
			rej = &Rejection{Code: websocket.CloseInternalServerErr, Reason: "internal error"}
		}
		closeWith(ws, rej.Code, rej.Reason, cfg.WriteWait)
		_ = ws.Close()
		return
	}
	h.serve(ctx, ws, c, cfg)
}

func (h *Hub) serve(ctx context.Context, ws *websocket.Conn, c *Conn, cfg TransportConfig) {
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.writePump(ws, c, cfg)
	}()

	h.readPump(ctx, ws, c, cfg)
	h.Disconnect(c)
	<-writerDone
	code, reason := c.CloseStatus()
	log.Info().Str("conn_id", c.ID).Str("conversation_id", c.ConversationID).
		Str("user_id", c.Identity.UserID).Int("code", code).Str("reason", reason).
		Msg("ws closed")
}

// readPump handles frames sequentially, so events from one connection are
// applied in the order they were sent.
func (h *Hub) readPump(ctx context.Context, ws *websocket.Conn, c *Conn, cfg TransportConfig) {
	ws.SetReadLimit(cfg.MaxMessageBytes)
	_ = ws.SetReadDeadline(time.Now().Add(cfg.PongWait))
	ws.SetPongHandler(func(string) error {
		c.touch(h.now())
		return ws.SetReadDeadline(time.Now().Add(cfg.PongWait))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			switch {
			case c.Closed():
			case errors.Is(err, websocket.ErrReadLimit):
				c.Close(websocket.CloseMessageTooBig, "message too big")
			case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
				c.Close(websocket.CloseNormalClosure, "closed by peer")
			default:
				c.Close(websocket.CloseAbnormalClosure, "read error")
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(cfg.PongWait))
		if rej := h.HandleInbound(ctx, c, data); rej != nil {
			h.unregister(c)
			c.Close(rej.Code, rej.Reason)
			return
		}
	}
}

// writePump is the only writer of ws. It exits after sending the close frame.
func (h *Hub) writePump(ws *websocket.Conn, c *Conn, cfg TransportConfig) {
	ticker := time.NewTicker(cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = ws.Close()
	}()
	for {
		select {
		case msg := <-c.Send():
			_ = ws.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
			if err := ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.Close(websocket.CloseAbnormalClosure, "write error")
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close(websocket.CloseAbnormalClosure, "ping failed")
				return
			}
		case <-c.Done():
			code, reason := c.CloseStatus()
			if code != websocket.CloseAbnormalClosure {
				closeWith(ws, code, reason, cfg.WriteWait)
			}
			return
		}
	}
}

func closeWith(ws *websocket.Conn, code int, reason string, wait time.Duration) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wait))
}
