// Package services – ConversationService
//
// ConversationService is the conversation directory: personal and group
// conversations plus their membership. Every authorization decision goes
// through domain.Can.
//
// Personal conversations are unique per unordered pair of users. The
// guarantee comes from a unique index on the pair key, so two concurrent
// creations for the same pair cannot both succeed.
package services

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-realtime-chat/internal/auth"
	"github.com/tbourn/go-realtime-chat/internal/domain"
	"github.com/tbourn/go-realtime-chat/internal/repo"
)

const maxGroupNameRunes = 255

// ConversationService manages conversations and memberships.
type ConversationService struct {
	DB *gorm.DB
}

// NewConversationService returns a ConversationService backed by db.
func NewConversationService(db *gorm.DB) *ConversationService {
	return &ConversationService{DB: db}
}

func (s *ConversationService) span(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer("services/ConversationService").Start(ctx, name, trace.WithAttributes(attrs...))
}

// CreatePersonal opens the personal conversation between userA and userB.
// The actor must be one of the two. A second request for the same pair, in
// either order, fails with ErrPersonalExists.
func (s *ConversationService) CreatePersonal(ctx context.Context, actor auth.Identity, userA, userB string) (*domain.Conversation, error) {
	ctx, span := s.span(ctx, "CreatePersonal",
		attribute.String("user.a", userA), attribute.String("user.b", userB))
	defer span.End()

	if userA == "" || userB == "" || userA == userB {
		return nil, ErrSelfConversation
	}
	participant := actor.UserID == userA || actor.UserID == userB
	if !domain.Can(actor.Role, participant, domain.CapStartPersonal) {
		return nil, ErrNotAllowed
	}

	a, err := repo.GetUser(ctx, s.DB, userA)
	if err != nil {
		return nil, userLookupErr(err)
	}
	b, err := repo.GetUser(ctx, s.DB, userB)
	if err != nil {
		return nil, userLookupErr(err)
	}

	key := repo.PairKey(a.ID, b.ID)
	c, err := repo.CreateConversation(ctx, s.DB, a.Name+" & "+b.Name, domain.KindPersonal, actor.UserID, &key, a.ID, b.ID)
	if errors.Is(err, repo.ErrDuplicate) {
		return nil, ErrPersonalExists
	}
	return c, err
}

// CreateGroup creates a group owned by creatorID, who becomes its first member.
func (s *ConversationService) CreateGroup(ctx context.Context, name, creatorID string) (*domain.Conversation, error) {
	ctx, span := s.span(ctx, "CreateGroup", attribute.String("user.id", creatorID))
	defer span.End()

	name = normalizeName(name)
	if n := runeLen(name); n == 0 || n > maxGroupNameRunes {
		return nil, ErrInvalidGroupName
	}
	if _, err := repo.GetUser(ctx, s.DB, creatorID); err != nil {
		return nil, userLookupErr(err)
	}
	return repo.CreateConversation(ctx, s.DB, name, domain.KindGroup, creatorID, nil, creatorID)
}

// AddMember adds userID to a group. Only the group creator or an ADMIN may.
func (s *ConversationService) AddMember(ctx context.Context, actor auth.Identity, conversationID, userID string) error {
	ctx, span := s.span(ctx, "AddMember",
		attribute.String("conversation.id", conversationID), attribute.String("user.id", userID))
	defer span.End()

	if _, err := s.manageable(ctx, actor, conversationID); err != nil {
		return err
	}
	if _, err := repo.GetUser(ctx, s.DB, userID); err != nil {
		return userLookupErr(err)
	}
	if _, err := repo.AddMembership(ctx, s.DB, conversationID, userID); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return ErrAlreadyMember
		}
		return err
	}
	return nil
}

// RemoveMember removes userID from a group. Only the group creator or an
// ADMIN may, and the creator cannot be removed.
func (s *ConversationService) RemoveMember(ctx context.Context, actor auth.Identity, conversationID, userID string) error {
	ctx, span := s.span(ctx, "RemoveMember",
		attribute.String("conversation.id", conversationID), attribute.String("user.id", userID))
	defer span.End()

	c, err := s.manageable(ctx, actor, conversationID)
	if err != nil {
		return err
	}
	if userID == c.CreatorID {
		return ErrRemoveCreator
	}
	if err := repo.DeleteMembership(ctx, s.DB, conversationID, userID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrMembershipNotFound
		}
		return err
	}
	return nil
}

// manageable loads a group and checks the actor may change its members.
func (s *ConversationService) manageable(ctx context.Context, actor auth.Identity, conversationID string) (*domain.Conversation, error) {
	c, err := s.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !c.IsGroup() {
		return nil, ErrNotGroup
	}
	if !domain.Can(actor.Role, c.CreatorID == actor.UserID, domain.CapManageMembers) {
		return nil, ErrNotAllowed
	}
	return c, nil
}

// IsMember reports whether userID belongs to conversationID.
func (s *ConversationService) IsMember(ctx context.Context, conversationID, userID string) (bool, error) {
	return repo.IsMember(ctx, s.DB, conversationID, userID)
}

// Get returns a conversation or ErrConversationNotFound.
func (s *ConversationService) Get(ctx context.Context, conversationID string) (*domain.Conversation, error) {
	c, err := repo.GetConversation(ctx, s.DB, conversationID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrConversationNotFound
	}
	return c, err
}

// GetForMember returns a conversation the actor is allowed to view.
func (s *ConversationService) GetForMember(ctx context.Context, actor auth.Identity, conversationID string) (*domain.Conversation, error) {
	c, err := s.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if err := s.RequireMember(ctx, actor, conversationID); err != nil {
		return nil, err
	}
	return c, nil
}

// RequireMember returns ErrNotMember unless actor belongs to the conversation.
func (s *ConversationService) RequireMember(ctx context.Context, actor auth.Identity, conversationID string) error {
	ok, err := s.IsMember(ctx, conversationID, actor.UserID)
	if err != nil {
		return err
	}
	if !domain.Can(actor.Role, ok, domain.CapViewConversation) {
		return ErrNotMember
	}
	return nil
}

// ListForUser returns the conversations userID belongs to.
func (s *ConversationService) ListForUser(ctx context.Context, userID string) ([]domain.Conversation, error) {
	ctx, span := s.span(ctx, "ListForUser", attribute.String("user.id", userID))
	defer span.End()

	out, err := repo.ListConversationsForUser(ctx, s.DB, userID)
	if out == nil && err == nil {
		out = []domain.Conversation{}
	}
	return out, err
}

// ListVersion returns the membership count and newest join time of userID,
// which change whenever ListForUser would.
func (s *ConversationService) ListVersion(ctx context.Context, userID string) (int64, *time.Time, error) {
	return repo.MembershipsStats(ctx, s.DB, userID)
}

// Members lists a conversation's users for a member actor.
func (s *ConversationService) Members(ctx context.Context, actor auth.Identity, conversationID string) ([]domain.User, error) {
	if _, err := s.GetForMember(ctx, actor, conversationID); err != nil {
		return nil, err
	}
	return repo.ListMembers(ctx, s.DB, conversationID)
}

func userLookupErr(err error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return ErrUserNotFound
	}
	return err
}
