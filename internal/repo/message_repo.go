// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Message model.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-realtime-chat/internal/domain"
)

// CreateMessage inserts a message stamped at createdAt. A reused
// idempotency key yields ErrDuplicate; the caller resolves it with
// GetMessageByKey.
func CreateMessage(ctx context.Context, db *gorm.DB, conversationID, senderID, text, key string, createdAt time.Time) (*domain.Message, error) {
	m := &domain.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Text:           text,
		IdempotencyKey: key,
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
	}
	if err := db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, translate(err)
	}
	return m, nil
}

// GetMessageByKey returns the message stored under an idempotency key.
func GetMessageByKey(ctx context.Context, db *gorm.DB, key string) (*domain.Message, error) {
	var m domain.Message
	if err := db.WithContext(ctx).Where("idempotency_key = ?", key).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// GetMessage fetches a message by ID.
func GetMessage(ctx context.Context, db *gorm.DB, id string) (*domain.Message, error) {
	var m domain.Message
	if err := db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// CountMessages returns the number of messages in a conversation.
func CountMessages(ctx context.Context, db *gorm.DB, conversationID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.Message{}).
		Where("conversation_id = ?", conversationID).
		Count(&total).Error
	return total, err
}

// ListMessagesPage returns a slice ordered (CreatedAt ASC, ID ASC).
func ListMessagesPage(ctx context.Context, db *gorm.DB, conversationID string, offset, limit int) ([]domain.Message, error) {
	out := []domain.Message{}
	err := db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// MarkMessageRead flips is_read once. It reports whether a row changed, so
// repeats are observable but harmless.
func MarkMessageRead(ctx context.Context, db *gorm.DB, id string) (bool, error) {
	res := db.WithContext(ctx).Model(&domain.Message{}).
		Where("id = ? AND is_read = ?", id, false).
		Updates(map[string]any{"is_read": true, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
