package service

import (
	"time"

	"arcadetalk/internal/models"
)

// UnknownUsername stands in for senders the store no longer knows.
const UnknownUsername = "Unknown User"

// Pusher delivers events to the live sessions of one user.
type Pusher interface {
	PushTo(userID uint, event string, payload interface{})
	IsOnline(userID uint) bool
}

// StatusSource reports a user's live presence status.
type StatusSource interface {
	Status(userID uint) string
}

// Profile is the public part of a user attached to messages.
type Profile struct {
	ID          uint   `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	Avatar      string `json:"avatar"`
	IsAdmin     bool   `json:"isAdmin"`
}

func profileOf(u *models.User) Profile {
	return Profile{ID: u.ID, Username: u.Username, DisplayName: u.Name(), Avatar: u.Avatar, IsAdmin: u.IsAdmin}
}

func placeholderProfile(id uint) Profile {
	return Profile{ID: id, Username: UnknownUsername, DisplayName: UnknownUsername}
}

type MessageView struct {
	ID         uint            `json:"id"`
	SenderID   uint            `json:"senderId"`
	ReceiverID uint            `json:"receiverId"`
	Content    string          `json:"content"`
	IsDeleted  bool            `json:"isDeleted"`
	Reactions  map[uint]string `json:"reactions"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
	Sender     *Profile        `json:"sender,omitempty"`
}

func messageView(m *models.Message, sender *Profile) MessageView {
	reactions := make(map[uint]string, len(m.Reactions))
	for _, r := range m.Reactions {
		reactions[r.UserID] = r.Reaction
	}
	return MessageView{
		ID:         m.ID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Content:    m.Content,
		IsDeleted:  m.IsDeleted,
		Reactions:  reactions,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
		Sender:     sender,
	}
}

type NotificationView struct {
	ID        uint      `json:"id"`
	UserID    uint      `json:"userId"`
	Type      string    `json:"type"`
	Content   string    `json:"content"`
	RelatedID string    `json:"relatedId,omitempty"`
	IsRead    bool      `json:"isRead"`
	CreatedAt time.Time `json:"createdAt"`
}

func notificationView(n *models.Notification) NotificationView {
	return NotificationView{
		ID:        n.ID,
		UserID:    n.UserID,
		Type:      n.Type,
		Content:   n.Content,
		RelatedID: n.RelatedID,
		IsRead:    n.IsRead,
		CreatedAt: n.CreatedAt,
	}
}

// UserSummary is one entry of the "all users" list.
type UserSummary struct {
	ID          uint      `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"displayName"`
	Avatar      string    `json:"avatar"`
	IsOnline    bool      `json:"isOnline"`
	Status      string    `json:"status"`
	IsAdmin     bool      `json:"isAdmin"`
	AdminBadge  bool      `json:"adminBadge"`
	LastActive  time.Time `json:"lastActive"`
}

// ChatSummary is one entry of the "recent chats" list.
type ChatSummary struct {
	UserID        uint        `json:"userId"`
	Username      string      `json:"username"`
	DisplayName   string      `json:"displayName"`
	Avatar        string      `json:"avatar"`
	LastMessage   MessageView `json:"lastMessage"`
	LastMessageAt time.Time   `json:"lastMessageAt"`
	IsOnline      bool        `json:"isOnline"`
	Status        string      `json:"status"`
	IsAdmin       bool        `json:"isAdmin"`
	AdminBadge    bool        `json:"adminBadge"`
}

type RecentChats struct {
	Chats          []ChatSummary `json:"chats"`
	AvailableUsers []UserSummary `json:"availableUsers"`
}

// Payloads pushed to clients.
type (
	MessageRef struct {
		MessageID uint `json:"messageId"`
	}
	ReactionEvent struct {
		MessageID uint   `json:"messageId"`
		UserID    uint   `json:"userId"`
		Emoji     string `json:"emoji,omitempty"`
	}
	TypingEvent struct {
		UserID   uint   `json:"userId"`
		Username string `json:"username"`
	}
	NotificationHint struct {
		Type       string `json:"type"`
		SenderID   uint   `json:"senderId"`
		SenderName string `json:"senderName"`
	}
	BalanceUpdate struct {
		SenderID   uint   `json:"senderId"`
		SenderName string `json:"senderName"`
		Amount     int64  `json:"amount,omitempty"`
	}
)

// Pushed event names.
const (
	EventReceiveMessage         = "receive_message"
	EventMessageSent            = "message_sent"
	EventMessageUnsent          = "message_unsent"
	EventMessageReaction        = "message_reaction"
	EventMessageReactionRemoved = "message_reaction_removed"
	EventUserTyping             = "user_typing"
	EventUserStoppedTyping      = "user_stopped_typing"
	EventNewNotification        = "new_notification"
	EventBalanceUpdate          = "balance_update"
)
