package realtime

import (
	"sync"
	"time"
)

// Registry maps conversation ids to their live connections. A Registry is
// created once per process and handed to the Hub; it holds no global state.
type Registry struct {
	mu    sync.Mutex
	conns map[string]map[*Conn]struct{}
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]map[*Conn]struct{})}
}

// Add registers c under its conversation.
func (r *Registry) Add(c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.conns[c.ConversationID]
	if !ok {
		set = make(map[*Conn]struct{})
		r.conns[c.ConversationID] = set
	}
	set[c] = struct{}{}
}

// Remove unregisters c and drops the conversation entry once empty. It
// reports whether c was registered.
func (r *Registry) Remove(c *Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.conns[c.ConversationID]
	if !ok {
		return false
	}
	if _, ok := set[c]; !ok {
		return false
	}
	delete(set, c)
	if len(set) == 0 {
		delete(r.conns, c.ConversationID)
	}
	return true
}

// Snapshot copies the connections of one conversation.
func (r *Registry) Snapshot(conversationID string) []*Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := r.conns[conversationID]
	out := make([]*Conn, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	return out
}

// Count returns the number of connections to one conversation.
func (r *Registry) Count(conversationID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns[conversationID])
}

// Conversations returns the number of conversation entries.
func (r *Registry) Conversations() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// All copies every registered connection.
func (r *Registry) All() []*Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Conn
	for _, set := range r.conns {
		for c := range set {
			out = append(out, c)
		}
	}
	return out
}

// Stale returns connections not seen since cutoff.
func (r *Registry) Stale(cutoff time.Time) []*Conn {
	var out []*Conn
	for _, c := range r.All() {
		if c.LastSeen().Before(cutoff) {
			out = append(out, c)
		}
	}
	return out
}
