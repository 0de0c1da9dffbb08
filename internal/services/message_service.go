// Package services – MessageService
//
// MessageService is the message ledger. It validates and normalizes message
// text, appends messages idempotently, serves ordered history, and records
// read receipts.
//
// Idempotency: every append carries a client-chosen key backed by a unique
// index. When the insert collides, the stored message is returned instead
// with created=false, so a retried send never produces a second row and
// never triggers a second broadcast.
//
// Ordering: timestamps are stamped here, strictly increasing per process,
// so history ordered by (created_at, id) matches append order.
//
// Observability: public methods are OpenTelemetry-instrumented; spans carry
// conversation/message identifiers and pagination parameters.
package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-realtime-chat/internal/auth"
	"github.com/tbourn/go-realtime-chat/internal/domain"
	"github.com/tbourn/go-realtime-chat/internal/repo"
	"github.com/tbourn/go-realtime-chat/internal/utils"
)

// DefaultMaxMessageRunes bounds message text when MaxRunes is unset. It is
// also the hard ceiling: the text column holds no more.
const DefaultMaxMessageRunes = 2000

// MessageService appends and reads messages.
type MessageService struct {
	DB *gorm.DB

	// MaxRunes caps normalized text length; 0 or anything above
	// DefaultMaxMessageRunes means DefaultMaxMessageRunes.
	MaxRunes int

	mu        sync.Mutex
	lastStamp time.Time
	now       func() time.Time
}

// NewMessageService returns a MessageService backed by db.
func NewMessageService(db *gorm.DB, maxRunes int) *MessageService {
	return &MessageService{DB: db, MaxRunes: maxRunes, now: time.Now}
}

func (s *MessageService) span(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer("services/MessageService").Start(ctx, name, trace.WithAttributes(attrs...))
}

// Append stores a message from senderID in conversationID under key.
// created is false when key was already used for the same conversation and
// sender; the stored message is returned unchanged. A key used by another
// conversation or sender fails with ErrIdempotencyKeyReused.
//
// Membership is the caller's concern.
func (s *MessageService) Append(ctx context.Context, conversationID, senderID, text, key string) (*domain.Message, bool, error) {
	ctx, span := s.span(ctx, "Append",
		attribute.String("conversation.id", conversationID),
		attribute.String("user.id", senderID))
	defer span.End()

	key = strings.TrimSpace(key)
	if key == "" {
		return nil, false, ErrMissingIdempotencyKey
	}
	if !validIdempotencyKey(key) {
		return nil, false, ErrInvalidIdempotencyKey
	}
	text = normalizeText(text)
	if text == "" {
		return nil, false, ErrEmptyText
	}
	if runeLen(text) > s.maxRunes() {
		return nil, false, ErrTextTooLong
	}
	if _, err := repo.GetConversation(ctx, s.DB, conversationID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, false, ErrConversationNotFound
		}
		return nil, false, err
	}

	m, err := repo.CreateMessage(ctx, s.DB, conversationID, senderID, text, key, s.stamp())
	if err == nil {
		span.SetAttributes(attribute.String("message.id", m.ID))
		return m, true, nil
	}
	if !errors.Is(err, repo.ErrDuplicate) {
		return nil, false, err
	}

	prev, err := repo.GetMessageByKey(ctx, s.DB, key)
	if err != nil {
		return nil, false, err
	}
	if prev.ConversationID != conversationID || prev.SenderID != senderID {
		return nil, false, ErrIdempotencyKeyReused
	}
	span.SetAttributes(attribute.Bool("message.replayed", true))
	return prev, false, nil
}

// History returns one page of a conversation's messages in append order
// together with the total count. Limit and offset are clamped with
// utils.ClampLimitOffset.
func (s *MessageService) History(ctx context.Context, conversationID string, limit, offset int) ([]domain.Message, int64, error) {
	limit, offset = utils.ClampLimitOffset(limit, offset)
	ctx, span := s.span(ctx, "History",
		attribute.String("conversation.id", conversationID),
		attribute.Int("limit", limit),
		attribute.Int("offset", offset))
	defer span.End()

	if _, err := repo.GetConversation(ctx, s.DB, conversationID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, 0, ErrConversationNotFound
		}
		return nil, 0, err
	}
	total, err := repo.CountMessages(ctx, s.DB, conversationID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 || int64(offset) >= total {
		return []domain.Message{}, total, nil
	}
	items, err := repo.ListMessagesPage(ctx, s.DB, conversationID, offset, limit)
	return items, total, err
}

// Get returns a message by id.
func (s *MessageService) Get(ctx context.Context, messageID string) (*domain.Message, error) {
	m, err := repo.GetMessage(ctx, s.DB, messageID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrMessageNotFound
	}
	return m, err
}

// MarkRead flags a message as read on behalf of requester, who must be a
// member of its conversation. Repeats succeed without further change;
// changed reports whether this call flipped the flag.
func (s *MessageService) MarkRead(ctx context.Context, messageID string, requester auth.Identity) (*domain.Message, bool, error) {
	return s.MarkReadIn(ctx, "", messageID, requester)
}

// MarkReadIn is MarkRead scoped to one conversation: a message from any
// other conversation is reported as not found.
func (s *MessageService) MarkReadIn(ctx context.Context, conversationID, messageID string, requester auth.Identity) (*domain.Message, bool, error) {
	ctx, span := s.span(ctx, "MarkRead",
		attribute.String("message.id", messageID),
		attribute.String("user.id", requester.UserID))
	defer span.End()

	m, err := s.Get(ctx, messageID)
	if err != nil {
		return nil, false, err
	}
	if conversationID != "" && m.ConversationID != conversationID {
		return nil, false, ErrMessageNotFound
	}
	member, err := repo.IsMember(ctx, s.DB, m.ConversationID, requester.UserID)
	if err != nil {
		return nil, false, err
	}
	if !domain.Can(requester.Role, member, domain.CapViewConversation) {
		return nil, false, ErrNotMember
	}
	changed, err := repo.MarkMessageRead(ctx, s.DB, m.ID)
	if err != nil {
		return nil, false, err
	}
	m.IsRead = true
	return m, changed, nil
}

// HistoryVersion returns the message count and newest UpdatedAt of a
// conversation. The pair changes whenever any history page could.
func (s *MessageService) HistoryVersion(ctx context.Context, conversationID string) (int64, *time.Time, error) {
	return repo.MessagesStats(ctx, s.DB, conversationID)
}

// HasKey reports whether senderID already stored a message in conversationID
// under key.
func (s *MessageService) HasKey(ctx context.Context, senderID, conversationID, key string) (bool, error) {
	m, err := repo.GetMessageByKey(ctx, s.DB, strings.TrimSpace(key))
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return m.ConversationID == conversationID && m.SenderID == senderID, nil
}

func (s *MessageService) maxRunes() int {
	if s.MaxRunes > 0 && s.MaxRunes < DefaultMaxMessageRunes {
		return s.MaxRunes
	}
	return DefaultMaxMessageRunes
}

// stamp returns a UTC timestamp strictly after the previous one.
func (s *MessageService) stamp() time.Time {
	now := time.Now
	if s.now != nil {
		now = s.now
	}
	t := now().UTC().Truncate(time.Microsecond)
	s.mu.Lock()
	defer s.mu.Unlock()
	if !t.After(s.lastStamp) {
		t = s.lastStamp.Add(time.Microsecond)
	}
	s.lastStamp = t
	return t
}
