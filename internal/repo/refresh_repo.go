// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the refresh token ledger. Tokens are
// addressed by the SHA-256 digest of their opaque value.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-realtime-chat/internal/domain"
)

// CreateRefreshToken stores a digest for userID expiring at expiresAt.
func CreateRefreshToken(ctx context.Context, db *gorm.DB, userID, tokenHash string, expiresAt time.Time) (*domain.RefreshToken, error) {
	rt := &domain.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt.UTC(),
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(rt).Error; err != nil {
		return nil, translate(err)
	}
	return rt, nil
}

// GetRefreshToken looks a token up by digest, expired or not.
func GetRefreshToken(ctx context.Context, db *gorm.DB, tokenHash string) (*domain.RefreshToken, error) {
	var rt domain.RefreshToken
	if err := db.WithContext(ctx).Where("token_hash = ?", tokenHash).First(&rt).Error; err != nil {
		return nil, err
	}
	return &rt, nil
}

// DeleteRefreshToken removes a token by digest. Missing rows are not an error.
func DeleteRefreshToken(ctx context.Context, db *gorm.DB, tokenHash string) error {
	return db.WithContext(ctx).Where("token_hash = ?", tokenHash).Delete(&domain.RefreshToken{}).Error
}

// DeleteExpiredRefreshTokens purges tokens expired at now.
func DeleteExpiredRefreshTokens(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Where("expires_at <= ?", now.UTC()).Delete(&domain.RefreshToken{})
	return res.RowsAffected, res.Error
}
