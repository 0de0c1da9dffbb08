// Package domain defines the persistence models for users, conversations,
// memberships, messages, and refresh tokens. These types are mapped with GORM
// and form the core data layer of the messenger.
package domain

import (
	"time"
)

// ConversationKind distinguishes two-party chats from groups.
type ConversationKind string

const (
	KindPersonal ConversationKind = "PERSONAL"
	KindGroup    ConversationKind = "GROUP"
)

// User is a registered account.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - Email: unique login identifier, stored lowercased.
//   - PasswordHash: bcrypt hash, never serialized.
//   - Role: USER or ADMIN (enforced by DB constraint).
type User struct {
	ID           string    `json:"id"         gorm:"type:char(36);primaryKey"`
	Name         string    `json:"name"       gorm:"type:varchar(100);not null"`
	Email        string    `json:"email"      gorm:"type:varchar(255);not null;uniqueIndex:ux_users_email"`
	PasswordHash string    `json:"-"          gorm:"type:varchar(255);not null"`
	Role         Role      `json:"role"       gorm:"type:varchar(16);not null;default:'USER';check:role IN ('USER','ADMIN')"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Conversation is a personal (exactly two members) or group conversation.
//
// PairKey is set only for personal conversations and holds the two member
// ids in sorted order; its unique index guarantees at most one personal
// conversation per unordered pair. NULLs do not collide, so groups are
// unaffected.
type Conversation struct {
	ID        string           `json:"id"         gorm:"type:char(36);primaryKey"`
	Name      string           `json:"name"       gorm:"type:varchar(255);not null"`
	Kind      ConversationKind `json:"kind"       gorm:"type:varchar(16);not null;check:kind IN ('PERSONAL','GROUP')"`
	CreatorID string           `json:"creator_id" gorm:"type:char(36);not null;index"`
	PairKey   *string          `json:"-"          gorm:"type:varchar(80);uniqueIndex:ux_conversations_pair"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// TableName returns the database table name for Conversation.
func (Conversation) TableName() string { return "conversations" }

// IsGroup reports whether the conversation is a group.
func (c Conversation) IsGroup() bool { return c.Kind == KindGroup }

// Membership links a user to a conversation. The composite primary key makes
// the membership check a single index lookup.
type Membership struct {
	ConversationID string    `json:"conversation_id" gorm:"type:char(36);primaryKey;autoIncrement:false"`
	UserID         string    `json:"user_id"         gorm:"type:char(36);primaryKey;autoIncrement:false;index:idx_memberships_user"`
	CreatedAt      time.Time `json:"joined_at"`

	Conversation Conversation `json:"-" gorm:"foreignKey:ConversationID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	User         User         `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Membership.
func (Membership) TableName() string { return "memberships" }

// Message is a single chat message. Only IsRead mutates after creation.
//
// Fields:
//   - IdempotencyKey: client-supplied key, globally unique; a resubmission
//     with the same key resolves to the stored row instead of a new one.
//   - CreatedAt: server ingestion time, part of the history ordering index.
type Message struct {
	ID             string    `json:"id"              gorm:"type:char(36);primaryKey"`
	ConversationID string    `json:"conversation_id" gorm:"type:char(36);not null;index:idx_conversation_msgs,priority:1"`
	SenderID       string    `json:"sender_id"       gorm:"type:char(36);not null;index"`
	Text           string    `json:"text"            gorm:"type:varchar(2000);not null"`
	IsRead         bool      `json:"is_read"         gorm:"not null;default:false"`
	IdempotencyKey string    `json:"idempotency_key" gorm:"type:varchar(128);not null;uniqueIndex:ux_messages_idempotency_key"`
	CreatedAt      time.Time `json:"created_at"      gorm:"index:idx_conversation_msgs,priority:2"`
	UpdatedAt      time.Time `json:"updated_at"`

	Conversation Conversation `json:"-" gorm:"foreignKey:ConversationID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// RefreshToken is a long-lived opaque credential. Only the SHA-256 digest of
// the token is stored.
type RefreshToken struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	UserID    string    `json:"user_id"    gorm:"type:char(36);not null;index"`
	TokenHash string    `json:"-"          gorm:"type:char(64);not null;uniqueIndex:ux_refresh_tokens_hash"`
	ExpiresAt time.Time `json:"expires_at" gorm:"not null;index"`
	CreatedAt time.Time `json:"created_at"`

	User User `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for RefreshToken.
func (RefreshToken) TableName() string { return "refresh_tokens" }

// Expired reports whether the token is past its expiry at now.
func (r RefreshToken) Expired(now time.Time) bool { return !now.Before(r.ExpiresAt) }
