// Package store defines the persistence contract consumed by the realtime
// core, with a gorm implementation and an in-memory one.
package store

import (
	"context"
	"errors"

	"arcadetalk/internal/models"
)

var (
	ErrNotFound          = errors.New("store: record not found")
	ErrInsufficientFunds = errors.New("store: insufficient funds")
	ErrMessageDeleted    = errors.New("store: message deleted")
)

type Users interface {
	FindByID(ctx context.Context, id uint) (*models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	Create(ctx context.Context, u *models.User) error
	GetAll(ctx context.Context) ([]models.User, error)
	// UpdateOnlineStatus sets the status and touches last_active.
	UpdateOnlineStatus(ctx context.Context, id uint, status string) (*models.User, error)
	UpdateLastActive(ctx context.Context, id uint) error
	TransferFunds(ctx context.Context, fromID, toID uint, amount int64) (from, to *models.User, err error)
}

// RecentChat is the latest message exchanged with one counterpart.
type RecentChat struct {
	UserID      uint
	LastMessage models.Message
}

type Chat interface {
	CreateMessage(ctx context.Context, m *models.Message) error
	// GetMessages returns the conversation between a and b oldest first.
	// limit <= 0 returns every message; otherwise the newest limit messages.
	GetMessages(ctx context.Context, a, b uint, limit int) ([]models.Message, error)
	FindMessage(ctx context.Context, id uint) (*models.Message, error)
	// DeleteMessage soft-deletes a message owned by senderID, replacing its
	// content and clearing its reactions. Missing and foreign messages both
	// yield ErrNotFound.
	DeleteMessage(ctx context.Context, id, senderID uint) (*models.Message, error)
	// AddReaction upserts userID's reaction. A message that is already
	// deleted yields ErrMessageDeleted and keeps no reaction.
	AddReaction(ctx context.Context, messageID, userID uint, reaction string) (*models.Message, error)
	RemoveReaction(ctx context.Context, messageID, userID uint) (*models.Message, error)
	// GetRecentChats returns one entry per counterpart, newest first.
	GetRecentChats(ctx context.Context, userID uint) ([]RecentChat, error)
}

type Notifications interface {
	Create(ctx context.Context, n *models.Notification) error
	GetByUser(ctx context.Context, userID uint, limit int) ([]models.Notification, error)
	MarkAsRead(ctx context.Context, id, userID uint) (*models.Notification, error)
	MarkAllAsRead(ctx context.Context, userID uint) error
	CountUnread(ctx context.Context, userID uint) (int64, error)
}

// Store bundles the three collaborator contracts.
type Store struct {
	Users         Users
	Chat          Chat
	Notifications Notifications
}
