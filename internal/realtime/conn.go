// Package realtime implements live conversation connections: the registry
// mapping conversations to open connections, admission and per-event
// re-validation, and fanout of confirmed events.
package realtime

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/tbourn/go-realtime-chat/internal/auth"
)

// Conn is one admitted connection to one conversation. The transport
// (see Serve) drains Send and stops when Done is closed.
type Conn struct {
	ID             string
	ConversationID string
	Identity       auth.Identity

	token    string
	send     chan []byte
	done     chan struct{}
	once     sync.Once
	limiter  *rate.Limiter
	lastSeen atomic.Int64

	mu          sync.Mutex
	closeCode   int
	closeReason string
}

func newConn(conversationID string, id auth.Identity, token string, buffer int, limiter *rate.Limiter, now time.Time) *Conn {
	if buffer <= 0 {
		buffer = 1
	}
	c := &Conn{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Identity:       id,
		token:          token,
		send:           make(chan []byte, buffer),
		done:           make(chan struct{}),
		limiter:        limiter,
	}
	c.touch(now)
	return c
}

// Deliver queues b without blocking. It returns false when the buffer is
// full or the connection is closed.
func (c *Conn) Deliver(b []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- b:
		return true
	default:
		return false
	}
}

// Send is the outbound queue.
func (c *Conn) Send() <-chan []byte { return c.send }

// Done is closed once the connection is closed.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Close marks the connection closed with a WebSocket close code. Only the
// first call has an effect.
func (c *Conn) Close(code int, reason string) {
	c.once.Do(func() {
		c.mu.Lock()
		c.closeCode, c.closeReason = code, reason
		c.mu.Unlock()
		close(c.done)
	})
}

// CloseStatus returns the code and reason given to Close.
func (c *Conn) CloseStatus() (int, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCode, c.closeReason
}

// Closed reports whether Close has been called.
func (c *Conn) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Conn) touch(now time.Time) { c.lastSeen.Store(now.UnixNano()) }

// LastSeen is the time of the last inbound frame.
func (c *Conn) LastSeen() time.Time { return time.Unix(0, c.lastSeen.Load()) }

func (c *Conn) allow() bool { return c.limiter == nil || c.limiter.Allow() }
