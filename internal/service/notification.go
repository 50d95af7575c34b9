package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"arcadetalk/internal/metrics"
	"arcadetalk/internal/models"
	"arcadetalk/internal/store"
)

const DefaultNotificationPageSize = 30

// NotificationService persists notifications and hints live sessions.
type NotificationService struct {
	notes    store.Notifications
	push     Pusher
	pageSize int
}

func NewNotificationService(notes store.Notifications, push Pusher, pageSize int) *NotificationService {
	if pageSize <= 0 {
		pageSize = DefaultNotificationPageSize
	}
	return &NotificationService{notes: notes, push: push, pageSize: pageSize}
}

// NotificationInput describes a notification and who triggered it.
type NotificationInput struct {
	UserID     uint
	Type       string
	Content    string
	RelatedID  string
	SenderID   uint
	SenderName string
}

// Create persists the notification, then pushes new_notification when the
// user has a live session. Only the persistence error is returned.
func (s *NotificationService) Create(ctx context.Context, in NotificationInput) (*NotificationView, error) {
	n, err := s.persist(ctx, in)
	if err != nil {
		return nil, err
	}
	s.hint(in)
	v := notificationView(n)
	return &v, nil
}

func (s *NotificationService) persist(ctx context.Context, in NotificationInput) (*models.Notification, error) {
	if in.UserID == 0 || in.Type == "" {
		return nil, InputError("User ID and type are required")
	}
	n := models.Notification{UserID: in.UserID, Type: in.Type, Content: in.Content, RelatedID: in.RelatedID}
	if err := s.notes.Create(ctx, &n); err != nil {
		return nil, fmt.Errorf("create notification: %w", err)
	}
	metrics.NotificationsTotal.WithLabelValues(in.Type).Inc()
	return &n, nil
}

func (s *NotificationService) hint(in NotificationInput) {
	if !s.push.IsOnline(in.UserID) {
		return
	}
	s.push.PushTo(in.UserID, EventNewNotification, NotificationHint{
		Type:       in.Type,
		SenderID:   in.SenderID,
		SenderName: in.SenderName,
	})
}

// GetByUser returns the newest page of a user's notifications.
func (s *NotificationService) GetByUser(ctx context.Context, userID uint) ([]NotificationView, error) {
	if userID == 0 {
		return nil, ErrUnauthenticated
	}
	rows, err := s.notes.GetByUser(ctx, userID, s.pageSize)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	out := make([]NotificationView, 0, len(rows))
	for i := range rows {
		out = append(out, notificationView(&rows[i]))
	}
	return out, nil
}

func (s *NotificationService) UnreadCount(ctx context.Context, userID uint) (int64, error) {
	return s.notes.CountUnread(ctx, userID)
}

// MarkRead marks one of the user's notifications read. Repeating it is a
// successful no-op; other users' notifications look missing.
func (s *NotificationService) MarkRead(ctx context.Context, userID, id uint) (*NotificationView, error) {
	if id == 0 {
		return nil, InputError("Notification ID is required")
	}
	n, err := s.notes.MarkAsRead(ctx, id, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotificationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mark notification read: %w", err)
	}
	v := notificationView(n)
	return &v, nil
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID uint) error {
	if userID == 0 {
		return ErrUnauthenticated
	}
	if err := s.notes.MarkAllAsRead(ctx, userID); err != nil {
		return fmt.Errorf("mark all notifications read: %w", err)
	}
	return nil
}

// NotifyTransfer records a currency transfer for the receiver and pushes
// balance_update to them.
func (s *NotificationService) NotifyTransfer(ctx context.Context, from, to *models.User, amount int64) error {
	_, err := s.Create(ctx, NotificationInput{
		UserID:     to.ID,
		Type:       models.NotificationTransfer,
		Content:    fmt.Sprintf("%s sent you %d coins", from.Name(), amount),
		RelatedID:  strconv.FormatUint(uint64(from.ID), 10),
		SenderID:   from.ID,
		SenderName: from.Username,
	})
	if err != nil {
		return err
	}
	s.PushBalance(to.ID, from.ID, from.Username, amount)
	return nil
}

// PushBalance tells a user their balance changed.
func (s *NotificationService) PushBalance(userID, senderID uint, senderName string, amount int64) {
	s.push.PushTo(userID, EventBalanceUpdate, BalanceUpdate{SenderID: senderID, SenderName: senderName, Amount: amount})
}

// NotifyPostReaction tells a post owner someone reacted. Reacting to your
// own post is silent.
func (s *NotificationService) NotifyPostReaction(ctx context.Context, ownerID, actorID uint, actorName, postID, reaction string) error {
	if ownerID == 0 || ownerID == actorID {
		return nil
	}
	_, err := s.Create(ctx, NotificationInput{
		UserID:     ownerID,
		Type:       models.NotificationReaction,
		Content:    fmt.Sprintf("%s reacted to your post with %s", actorName, reaction),
		RelatedID:  postID,
		SenderID:   actorID,
		SenderName: actorName,
	})
	return err
}

// NotifyComment tells a post owner someone commented.
func (s *NotificationService) NotifyComment(ctx context.Context, ownerID, actorID uint, actorName, postID string) error {
	if ownerID == 0 || ownerID == actorID {
		return nil
	}
	_, err := s.Create(ctx, NotificationInput{
		UserID:     ownerID,
		Type:       models.NotificationComment,
		Content:    fmt.Sprintf("%s commented on your post", actorName),
		RelatedID:  postID,
		SenderID:   actorID,
		SenderName: actorName,
	})
	return err
}
