package models

import "time"

// Presence statuses persisted on the user row.
const (
	StatusOnline  = "online"
	StatusAway    = "away"
	StatusBusy    = "busy"
	StatusOffline = "offline"
)

// Notification types.
const (
	NotificationMessage  = "message"
	NotificationReaction = "reaction"
	NotificationComment  = "comment"
	NotificationTransfer = "transfer"
)

// MaxReactionLen is the longest reaction, in bytes, a message can carry.
const MaxReactionLen = 32

// UnsentPlaceholder replaces the content of an unsent message.
const UnsentPlaceholder = "[Message unsent]"

type User struct {
	ID           uint      `gorm:"primaryKey"`
	Username     string    `gorm:"uniqueIndex;size:64;not null"`
	DisplayName  string    `gorm:"size:100"`
	Avatar       string    `gorm:"size:255"`
	PasswordHash string    `gorm:"not null"`
	IsAdmin      bool      `gorm:"not null;default:false"`
	AdminBadge   bool      `gorm:"not null;default:false"`
	Balance      int64     `gorm:"not null;default:100"`
	OnlineStatus string    `gorm:"size:20;not null;default:offline"`
	LastActive   time.Time `gorm:"index"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Name is the display name, falling back to the username.
func (u User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}

type Message struct {
	ID         uint   `gorm:"primaryKey"`
	SenderID   uint   `gorm:"index:idx_msg_pair,priority:1;not null"`
	ReceiverID uint   `gorm:"index:idx_msg_pair,priority:2;not null"`
	Content    string `gorm:"type:text;not null"`
	IsDeleted  bool   `gorm:"not null;default:false"`
	CreatedAt  time.Time
	UpdatedAt  time.Time

	Reactions []MessageReaction `gorm:"foreignKey:MessageID;constraint:OnDelete:CASCADE"`
}

// Counterpart returns the other participant of the conversation from userID's view.
func (m Message) Counterpart(userID uint) uint {
	if m.SenderID == userID {
		return m.ReceiverID
	}
	return m.SenderID
}

// MessageReaction holds at most one row per (message, user).
type MessageReaction struct {
	ID        uint   `gorm:"primaryKey"`
	MessageID uint   `gorm:"uniqueIndex:idx_reaction_msg_user;not null"`
	UserID    uint   `gorm:"uniqueIndex:idx_reaction_msg_user;not null"`
	Reaction  string `gorm:"size:32;not null"`
	CreatedAt time.Time
}

type Notification struct {
	ID        uint      `gorm:"primaryKey"`
	UserID    uint      `gorm:"index;not null"`
	Type      string    `gorm:"size:50;not null"`
	Content   string    `gorm:"type:text;not null"`
	RelatedID string    `gorm:"size:50"`
	IsRead    bool      `gorm:"not null;default:false;index"`
	CreatedAt time.Time `gorm:"index"`
}
