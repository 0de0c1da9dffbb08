// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for conversations
// and their memberships.
//
// Error semantics:
//   - Missing rows surface as ErrNotFound (gorm.ErrRecordNotFound).
//   - Unique violations (personal pair, existing membership) surface as
//     ErrDuplicate.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-realtime-chat/internal/domain"
)

// PairKey returns the order-independent key for a personal conversation.
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + ":" + b
}

// CreateConversation inserts the conversation and one membership per member
// in a single transaction. For personal conversations pairKey must be set;
// a second conversation for the same pair fails with ErrDuplicate.
func CreateConversation(ctx context.Context, db *gorm.DB, name string, kind domain.ConversationKind, creatorID string, pairKey *string, members ...string) (*domain.Conversation, error) {
	now := time.Now().UTC()
	c := &domain.Conversation{
		ID:        uuid.NewString(),
		Name:      name,
		Kind:      kind,
		CreatorID: creatorID,
		PairKey:   pairKey,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(c).Error; err != nil {
			return translate(err)
		}
		rows := make([]domain.Membership, 0, len(members))
		for _, uid := range members {
			rows = append(rows, domain.Membership{ConversationID: c.ID, UserID: uid, CreatedAt: now})
		}
		if len(rows) > 0 {
			if err := tx.Create(&rows).Error; err != nil {
				return translate(err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// GetConversation fetches a conversation by id or returns ErrNotFound.
func GetConversation(ctx context.Context, db *gorm.DB, id string) (*domain.Conversation, error) {
	var c domain.Conversation
	if err := db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// GetPersonalConversation finds the personal conversation for a pair key.
func GetPersonalConversation(ctx context.Context, db *gorm.DB, pairKey string) (*domain.Conversation, error) {
	var c domain.Conversation
	if err := db.WithContext(ctx).Where("pair_key = ?", pairKey).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// ListConversationsForUser returns the conversations userID belongs to,
// newest first.
func ListConversationsForUser(ctx context.Context, db *gorm.DB, userID string) ([]domain.Conversation, error) {
	var out []domain.Conversation
	err := db.WithContext(ctx).
		Joins("JOIN memberships ON memberships.conversation_id = conversations.id").
		Where("memberships.user_id = ?", userID).
		Order("conversations.created_at DESC, conversations.id DESC").
		Find(&out).Error
	return out, err
}

// AddMembership inserts (conversationID, userID). An existing membership
// yields ErrDuplicate.
func AddMembership(ctx context.Context, db *gorm.DB, conversationID, userID string) (*domain.Membership, error) {
	m := &domain.Membership{ConversationID: conversationID, UserID: userID, CreatedAt: time.Now().UTC()}
	if err := db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, translate(err)
	}
	return m, nil
}

// DeleteMembership removes (conversationID, userID) or returns ErrNotFound.
func DeleteMembership(ctx context.Context, db *gorm.DB, conversationID, userID string) error {
	res := db.WithContext(ctx).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Delete(&domain.Membership{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// IsMember reports whether userID belongs to conversationID. It is a primary
// key probe and runs on every realtime event.
func IsMember(ctx context.Context, db *gorm.DB, conversationID, userID string) (bool, error) {
	var m domain.Membership
	err := db.WithContext(ctx).
		Select("conversation_id").
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ListMembers returns the users of a conversation ordered by join time.
func ListMembers(ctx context.Context, db *gorm.DB, conversationID string) ([]domain.User, error) {
	var out []domain.User
	err := db.WithContext(ctx).
		Joins("JOIN memberships ON memberships.user_id = users.id").
		Where("memberships.conversation_id = ?", conversationID).
		Order("memberships.created_at ASC, users.id ASC").
		Find(&out).Error
	return out, err
}
