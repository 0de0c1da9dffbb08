package handlers

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/tbourn/go-realtime-chat/internal/domain"
	"github.com/tbourn/go-realtime-chat/internal/http/middleware"
	"github.com/tbourn/go-realtime-chat/internal/realtime"
)

func newGroup(t *testing.T, env *testEnv, owner client, members ...client) string {
	t.Helper()
	w := env.do(t, http.MethodPost, "/conversations/group", &owner, map[string]string{"name": "room"}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("create group: %d %s", w.Code, w.Body.String())
	}
	var g domain.Conversation
	decode(t, w, &g)
	for _, m := range members {
		if w := env.do(t, http.MethodPost, "/conversations/"+g.ID+"/members", &owner, map[string]string{"user_id": m.ID}, nil); w.Code != http.StatusNoContent {
			t.Fatalf("add member: %d", w.Code)
		}
	}
	return g.ID
}

func post(t *testing.T, env *testEnv, cl client, conv, text, key string) (int, PostMessageResponse, http.Header) {
	t.Helper()
	hdr := map[string]string{}
	if key != "" {
		hdr[middleware.HeaderIdempotencyKey] = key
	}
	w := env.do(t, http.MethodPost, "/conversations/"+conv+"/messages", &cl, map[string]string{"text": text}, hdr)
	var pr PostMessageResponse
	if w.Code < 300 {
		decode(t, w, &pr)
	}
	return w.Code, pr, w.Header()
}

func TestPostMessage_IdempotentAndBroadcastOnce(t *testing.T) {
	env := newEnv(t)
	alice := env.signup(t, "alice")
	bob := env.signup(t, "bob")
	conv := newGroup(t, env, alice, bob)

	code, first, _ := post(t, env, alice, conv, "hello\r\n", "k-1")
	if code != http.StatusCreated || first.Replayed || first.Message.Text != "hello" {
		t.Fatalf("first post: %d %+v", code, first)
	}
	code, again, hdr := post(t, env, alice, conv, "hello", "k-1")
	if code != http.StatusOK || !again.Replayed || again.Message.ID != first.Message.ID {
		t.Fatalf("replay: %d %+v", code, again)
	}
	if hdr.Get("Idempotency-Replayed") != "true" {
		t.Fatalf("replay header missing")
	}

	evs := env.fanout.all()
	if len(evs) != 1 || evs[0].conv != conv || evs[0].ev.Type != realtime.EventMessage || evs[0].ev.Message.ID != first.Message.ID {
		t.Fatalf("broadcasts = %+v", evs)
	}

	// Same key from another sender is a conflict, not a replay.
	if code, _, _ := post(t, env, bob, conv, "hello", "k-1"); code != http.StatusConflict {
		t.Fatalf("foreign key reuse: %d", code)
	}
}

func TestPostMessage_Validation(t *testing.T) {
	env := newEnv(t)
	alice := env.signup(t, "alice")
	outsider := env.signup(t, "outsider")
	conv := newGroup(t, env, alice)

	if code, _, _ := post(t, env, alice, conv, "hi", ""); code != http.StatusBadRequest {
		t.Fatalf("missing key: %d", code)
	}
	if code, _, _ := post(t, env, alice, conv, "hi", "bad key!"); code != http.StatusBadRequest {
		t.Fatalf("invalid key: %d", code)
	}
	if code, _, _ := post(t, env, alice, conv, "   \n ", "k-empty"); code != http.StatusBadRequest {
		t.Fatalf("blank text: %d", code)
	}
	if code, _, _ := post(t, env, outsider, conv, "hi", "k-out"); code != http.StatusForbidden {
		t.Fatalf("non-member: %d", code)
	}
	if code, _, _ := post(t, env, alice, "missing", "hi", "k-miss"); code != http.StatusNotFound {
		t.Fatalf("unknown conversation: %d", code)
	}
	if n := len(env.fanout.all()); n != 0 {
		t.Fatalf("failed posts broadcast %d events", n)
	}
}

func TestListMessages_PagingAndETag(t *testing.T) {
	env := newEnv(t)
	alice := env.signup(t, "alice")
	outsider := env.signup(t, "outsider")
	conv := newGroup(t, env, alice)

	for i := 0; i < 3; i++ {
		if code, _, _ := post(t, env, alice, conv, fmt.Sprintf("m%d", i), fmt.Sprintf("k-%d", i)); code != http.StatusCreated {
			t.Fatalf("post %d: %d", i, code)
		}
	}
	path := "/conversations/" + conv + "/messages"

	w := env.do(t, http.MethodGet, path+"?limit=2&offset=0", &alice, nil, nil)
	var lr ListMessagesResponse
	decode(t, w, &lr)
	if w.Code != http.StatusOK || len(lr.Messages) != 2 || lr.Messages[0].Text != "m0" || lr.Messages[1].Text != "m1" {
		t.Fatalf("page 1: %d %s", w.Code, w.Body.String())
	}
	if lr.Pagination.Total != 3 || !lr.Pagination.HasNext || lr.Pagination.Limit != 2 {
		t.Fatalf("pagination: %+v", lr.Pagination)
	}

	w = env.do(t, http.MethodGet, path+"?limit=2&offset=2", &alice, nil, nil)
	decode(t, w, &lr)
	if len(lr.Messages) != 1 || lr.Messages[0].Text != "m2" || lr.Pagination.HasNext {
		t.Fatalf("page 2: %s", w.Body.String())
	}

	w = env.do(t, http.MethodGet, path+"?offset=50", &alice, nil, nil)
	decode(t, w, &lr)
	if w.Code != http.StatusOK || lr.Messages == nil || len(lr.Messages) != 0 || lr.Pagination.Limit != 10 {
		t.Fatalf("past the end: %s", w.Body.String())
	}

	etag := w.Header().Get("ETag")
	if w := env.do(t, http.MethodGet, path, &alice, nil, map[string]string{"If-None-Match": etag}); w.Code != http.StatusNotModified {
		t.Fatalf("conditional GET: %d", w.Code)
	}

	if w := env.do(t, http.MethodGet, path, &outsider, nil, nil); w.Code != http.StatusForbidden {
		t.Fatalf("non-member history: %d", w.Code)
	}
}

func TestMarkRead_BroadcastsEveryRead(t *testing.T) {
	env := newEnv(t)
	alice := env.signup(t, "alice")
	bob := env.signup(t, "bob")
	outsider := env.signup(t, "outsider")
	conv := newGroup(t, env, alice, bob)

	_, pr, _ := post(t, env, alice, conv, "read me", "k-read")
	path := "/messages/" + pr.Message.ID + "/read"

	w := env.do(t, http.MethodPost, path, &bob, nil, nil)
	var mr MarkReadResponse
	decode(t, w, &mr)
	if w.Code != http.StatusOK || !mr.Changed || !mr.Message.IsRead {
		t.Fatalf("first read: %d %s", w.Code, w.Body.String())
	}
	w = env.do(t, http.MethodPost, path, &bob, nil, nil)
	decode(t, w, &mr)
	if w.Code != http.StatusOK || mr.Changed {
		t.Fatalf("second read: %d %s", w.Code, w.Body.String())
	}

	evs := env.fanout.all()
	if len(evs) != 3 {
		t.Fatalf("want message + two read broadcasts, got %+v", evs)
	}
	for _, e := range evs[1:] {
		if e.ev.Type != realtime.EventRead || e.ev.ReaderID != bob.ID || e.ev.MessageID != pr.Message.ID || e.conv != conv {
			t.Fatalf("read broadcast = %+v", e)
		}
	}

	if w := env.do(t, http.MethodPost, path, &outsider, nil, nil); w.Code != http.StatusForbidden {
		t.Fatalf("outsider read: %d", w.Code)
	}
	if w := env.do(t, http.MethodPost, "/messages/missing/read", &bob, nil, nil); w.Code != http.StatusNotFound {
		t.Fatalf("unknown message: %d", w.Code)
	}
}

func TestServeWS_TokenSources(t *testing.T) {
	env := newEnv(t)

	env.do(t, http.MethodGet, "/ws/conversations/c1?token=from-query", nil, nil,
		map[string]string{"Authorization": "Bearer from-header"})
	if env.sockets.conv != "c1" || env.sockets.token != "from-query" {
		t.Fatalf("query token: %+v", env.sockets)
	}

	env.do(t, http.MethodGet, "/ws/conversations/c2", nil, nil,
		map[string]string{"Authorization": "Bearer from-header"})
	if env.sockets.conv != "c2" || env.sockets.token != "from-header" {
		t.Fatalf("header token: %+v", env.sockets)
	}
}
