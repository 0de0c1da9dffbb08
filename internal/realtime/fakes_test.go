package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/tbourn/go-realtime-chat/internal/auth"
	"github.com/tbourn/go-realtime-chat/internal/domain"
	"github.com/tbourn/go-realtime-chat/internal/services"
)

type fakeAuth struct {
	mu      sync.Mutex
	ids     map[string]auth.Identity
	revoked map[string]bool
	broken  bool
}

func newFakeAuth() *fakeAuth {
	return &fakeAuth{ids: map[string]auth.Identity{}, revoked: map[string]bool{}}
}

func (f *fakeAuth) issue(token, userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids[token] = auth.Identity{UserID: userID, Role: domain.RoleUser, ExpiresAt: time.Now().Add(time.Hour)}
}

func (f *fakeAuth) revoke(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked[token] = true
}

func (f *fakeAuth) Authenticate(_ context.Context, token string) (auth.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.broken {
		return auth.Identity{}, services.ErrSessionUnavailable
	}
	id, ok := f.ids[token]
	if !ok {
		return auth.Identity{}, fmt.Errorf("%w: %w", services.ErrUnauthenticated, auth.ErrTokenInvalid)
	}
	if f.revoked[token] {
		return auth.Identity{}, services.ErrTokenRevoked
	}
	return id, nil
}

type fakeDir struct {
	mu      sync.Mutex
	members map[string]map[string]bool
}

func newFakeDir() *fakeDir { return &fakeDir{members: map[string]map[string]bool{}} }

func (f *fakeDir) add(conv string, users ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	set, ok := f.members[conv]
	if !ok {
		set = map[string]bool{}
		f.members[conv] = set
	}
	for _, u := range users {
		set[u] = true
	}
}

func (f *fakeDir) remove(conv, user string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.members[conv], user)
}

func (f *fakeDir) Get(_ context.Context, id string) (*domain.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.members[id]; !ok {
		return nil, services.ErrConversationNotFound
	}
	return &domain.Conversation{ID: id, Kind: domain.KindGroup}, nil
}

func (f *fakeDir) IsMember(_ context.Context, conv, user string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.members[conv][user], nil
}

type fakeLedger struct {
	mu    sync.Mutex
	seq   int
	byKey map[string]*domain.Message
	byID  map[string]*domain.Message
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{byKey: map[string]*domain.Message{}, byID: map[string]*domain.Message{}}
}

func (f *fakeLedger) Append(_ context.Context, conv, sender, text, key string) (*domain.Message, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if text == "" {
		return nil, false, services.ErrEmptyText
	}
	if m, ok := f.byKey[key]; ok {
		if m.ConversationID != conv || m.SenderID != sender {
			return nil, false, services.ErrIdempotencyKeyReused
		}
		cp := *m
		return &cp, false, nil
	}
	f.seq++
	m := &domain.Message{
		ID:             fmt.Sprintf("m%d", f.seq),
		ConversationID: conv,
		SenderID:       sender,
		Text:           text,
		IdempotencyKey: key,
		CreatedAt:      time.Now().UTC(),
	}
	f.byKey[key] = m
	f.byID[m.ID] = m
	cp := *m
	return &cp, true, nil
}

func (f *fakeLedger) MarkReadIn(_ context.Context, conv, id string, _ auth.Identity) (*domain.Message, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.byID[id]
	if !ok || (conv != "" && m.ConversationID != conv) {
		return nil, false, services.ErrMessageNotFound
	}
	changed := !m.IsRead
	m.IsRead = true
	cp := *m
	return &cp, changed, nil
}

func (f *fakeLedger) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.byID)
}

type fixture struct {
	hub    *Hub
	reg    *Registry
	auth   *fakeAuth
	dir    *fakeDir
	ledger *fakeLedger
}

func newFixture(opts Options) *fixture {
	f := &fixture{reg: NewRegistry(), auth: newFakeAuth(), dir: newFakeDir(), ledger: newFakeLedger()}
	f.hub = NewHub(f.reg, f.auth, f.dir, f.ledger, opts)
	return f
}

// join issues a token for user, makes them a member of conv and admits them.
func (f *fixture) join(t *testing.T, conv, user string) *Conn {
	t.Helper()
	token := "tok-" + user
	f.auth.issue(token, user)
	f.dir.add(conv, user)
	c, err := f.hub.Admit(context.Background(), conv, token)
	if err != nil {
		t.Fatalf("Admit %s to %s: %v", user, conv, err)
	}
	return c
}

func recv(t *testing.T, c *Conn) Event {
	t.Helper()
	select {
	case b := <-c.Send():
		var ev Event
		if err := json.Unmarshal(b, &ev); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		return ev
	case <-time.After(time.Second):
		t.Fatalf("conn %s: no event", c.Identity.UserID)
	}
	return Event{}
}

func expectNone(t *testing.T, c *Conn) {
	t.Helper()
	select {
	case b := <-c.Send():
		t.Fatalf("conn %s: unexpected event %s", c.Identity.UserID, b)
	default:
	}
}
