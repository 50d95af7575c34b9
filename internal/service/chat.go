package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"arcadetalk/internal/auth"
	"arcadetalk/internal/metrics"
	"arcadetalk/internal/models"
	"arcadetalk/internal/store"

	"github.com/rs/zerolog/log"
)

// ChatService implements direct messaging between two users. Every method
// persists first and pushes afterwards, inside the caller's goroutine, so a
// sender's messages reach the receiver in call order.
type ChatService struct {
	users        store.Users
	chat         store.Chat
	notes        *NotificationService
	push         Pusher
	status       StatusSource
	historyLimit int
}

func NewChatService(st *store.Store, notes *NotificationService, push Pusher, status StatusSource, historyLimit int) *ChatService {
	return &ChatService{
		users:        st.Users,
		chat:         st.Chat,
		notes:        notes,
		push:         push,
		status:       status,
		historyLimit: historyLimit,
	}
}

func (s *ChatService) senderProfile(ctx context.Context, actor auth.Session) Profile {
	u, err := s.users.FindByID(ctx, actor.UserID)
	if err != nil {
		log.Warn().Err(err).Uint("user_id", actor.UserID).Msg("load sender profile")
		return Profile{ID: actor.UserID, Username: actor.Username, DisplayName: actor.Username, IsAdmin: actor.IsAdmin}
	}
	return profileOf(u)
}

// SendMessage stores a message, records a notification for the receiver
// and pushes receive_message and message_sent to both parties' sessions.
func (s *ChatService) SendMessage(ctx context.Context, actor auth.Session, receiverID uint, content string) (*MessageView, error) {
	if !actor.Authenticated {
		return nil, ErrUnauthenticated
	}
	if receiverID == 0 || strings.TrimSpace(content) == "" {
		return nil, InputError("Receiver ID and content are required")
	}
	if _, err := s.users.FindByID(ctx, receiverID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrReceiverNotFound
		}
		return nil, fmt.Errorf("find receiver: %w", err)
	}

	msg := models.Message{SenderID: actor.UserID, ReceiverID: receiverID, Content: content}
	if err := s.chat.CreateMessage(ctx, &msg); err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	metrics.MessagesTotal.Inc()

	note := NotificationInput{
		UserID:     receiverID,
		Type:       models.NotificationMessage,
		Content:    "New message from " + actor.Username,
		RelatedID:  strconv.FormatUint(uint64(msg.ID), 10),
		SenderID:   actor.UserID,
		SenderName: actor.Username,
	}
	if _, err := s.notes.persist(ctx, note); err != nil {
		return nil, err
	}

	sender := s.senderProfile(ctx, actor)
	view := messageView(&msg, &sender)
	s.push.PushTo(receiverID, EventReceiveMessage, view)
	s.push.PushTo(actor.UserID, EventMessageSent, view)
	s.notes.hint(note)
	return &view, nil
}

// ChatHistory returns the conversation with otherID oldest first. Senders
// that no longer resolve get a placeholder profile.
func (s *ChatService) ChatHistory(ctx context.Context, actor auth.Session, otherID uint) ([]MessageView, error) {
	if !actor.Authenticated {
		return nil, ErrUnauthenticated
	}
	if otherID == 0 {
		return nil, InputError("User ID is required")
	}
	msgs, err := s.chat.GetMessages(ctx, actor.UserID, otherID, s.historyLimit)
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	profiles := make(map[uint]*Profile, 2)
	out := make([]MessageView, 0, len(msgs))
	for i := range msgs {
		m := &msgs[i]
		p, ok := profiles[m.SenderID]
		if !ok {
			if u, err := s.users.FindByID(ctx, m.SenderID); err == nil {
				pp := profileOf(u)
				p = &pp
			} else {
				if !errors.Is(err, store.ErrNotFound) {
					log.Warn().Err(err).Uint("sender_id", m.SenderID).Msg("history sender lookup")
				}
				pp := placeholderProfile(m.SenderID)
				p = &pp
			}
			profiles[m.SenderID] = p
		}
		out = append(out, messageView(m, p))
	}
	return out, nil
}

// Unsend replaces the content of the caller's own message with the unsent
// placeholder and drops its reactions. A message that does not exist and
// one the caller did not send fail the same way.
func (s *ChatService) Unsend(ctx context.Context, actor auth.Session, messageID uint) error {
	if !actor.Authenticated {
		return ErrUnauthenticated
	}
	if messageID == 0 {
		return InputError("Message ID is required")
	}
	msg, err := s.chat.DeleteMessage(ctx, messageID, actor.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrMessageNotFound
	}
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	ref := MessageRef{MessageID: msg.ID}
	s.push.PushTo(msg.ReceiverID, EventMessageUnsent, ref)
	if msg.ReceiverID != actor.UserID {
		s.push.PushTo(actor.UserID, EventMessageUnsent, ref)
	}
	return nil
}

// participantMessage loads a message the actor sent or received.
func (s *ChatService) participantMessage(ctx context.Context, actor auth.Session, messageID uint) (*models.Message, error) {
	msg, err := s.chat.FindMessage(ctx, messageID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find message: %w", err)
	}
	if msg.SenderID != actor.UserID && msg.ReceiverID != actor.UserID {
		return nil, ErrMessageNotFound
	}
	return msg, nil
}

// pushBoth sends an event to the other participant and the actor.
func (s *ChatService) pushBoth(actor auth.Session, msg *models.Message, event string, payload interface{}) {
	other := msg.Counterpart(actor.UserID)
	s.push.PushTo(other, event, payload)
	if other != actor.UserID {
		s.push.PushTo(actor.UserID, event, payload)
	}
}

// React sets the caller's single reaction on a message, replacing any
// earlier one, and notifies the sender when someone else reacted.
func (s *ChatService) React(ctx context.Context, actor auth.Session, messageID uint, emoji string) error {
	if !actor.Authenticated {
		return ErrUnauthenticated
	}
	emoji = strings.TrimSpace(emoji)
	if messageID == 0 || emoji == "" {
		return InputError("Message ID and emoji are required")
	}
	if len(emoji) > models.MaxReactionLen {
		return InputError("Reaction is too long")
	}
	msg, err := s.participantMessage(ctx, actor, messageID)
	if err != nil {
		return err
	}
	if msg.IsDeleted {
		return ErrMessageUnsent
	}
	if _, err := s.chat.AddReaction(ctx, messageID, actor.UserID, emoji); err != nil {
		if errors.Is(err, store.ErrMessageDeleted) {
			return ErrMessageUnsent
		}
		if errors.Is(err, store.ErrNotFound) {
			return ErrMessageNotFound
		}
		return fmt.Errorf("add reaction: %w", err)
	}
	s.pushBoth(actor, msg, EventMessageReaction, ReactionEvent{MessageID: messageID, UserID: actor.UserID, Emoji: emoji})

	if msg.SenderID == actor.UserID {
		return nil
	}
	_, err = s.notes.Create(ctx, NotificationInput{
		UserID:     msg.SenderID,
		Type:       models.NotificationReaction,
		Content:    fmt.Sprintf("%s reacted to your message with %s", actor.Username, emoji),
		RelatedID:  strconv.FormatUint(uint64(messageID), 10),
		SenderID:   actor.UserID,
		SenderName: actor.Username,
	})
	return err
}

// RemoveReaction deletes the caller's reaction only.
func (s *ChatService) RemoveReaction(ctx context.Context, actor auth.Session, messageID uint) error {
	if !actor.Authenticated {
		return ErrUnauthenticated
	}
	if messageID == 0 {
		return InputError("Message ID is required")
	}
	msg, err := s.participantMessage(ctx, actor, messageID)
	if err != nil {
		return err
	}
	if _, err := s.chat.RemoveReaction(ctx, messageID, actor.UserID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrMessageNotFound
		}
		return fmt.Errorf("remove reaction: %w", err)
	}
	s.pushBoth(actor, msg, EventMessageReactionRemoved, ReactionEvent{MessageID: messageID, UserID: actor.UserID})
	return nil
}

// RecentChats lists every other user with live presence and, separately,
// the users the caller has talked to, most recent conversation first.
func (s *ChatService) RecentChats(ctx context.Context, actor auth.Session) (*RecentChats, error) {
	if !actor.Authenticated {
		return nil, ErrUnauthenticated
	}
	users, err := s.users.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	recent, err := s.chat.GetRecentChats(ctx, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("recent chats: %w", err)
	}

	out := &RecentChats{Chats: make([]ChatSummary, 0, len(recent)), AvailableUsers: make([]UserSummary, 0, len(users))}
	byID := make(map[uint]*models.User, len(users))
	for i := range users {
		u := &users[i]
		if u.ID == actor.UserID {
			continue
		}
		byID[u.ID] = u
		status := s.status.Status(u.ID)
		out.AvailableUsers = append(out.AvailableUsers, UserSummary{
			ID:          u.ID,
			Username:    u.Username,
			DisplayName: u.Name(),
			Avatar:      u.Avatar,
			IsOnline:    status != models.StatusOffline,
			Status:      status,
			IsAdmin:     u.IsAdmin,
			AdminBadge:  u.AdminBadge,
			LastActive:  u.LastActive,
		})
	}
	for _, rc := range recent {
		summary := ChatSummary{
			UserID:        rc.UserID,
			Username:      UnknownUsername,
			DisplayName:   UnknownUsername,
			LastMessage:   messageView(&rc.LastMessage, nil),
			LastMessageAt: rc.LastMessage.CreatedAt,
			Status:        s.status.Status(rc.UserID),
		}
		summary.IsOnline = summary.Status != models.StatusOffline
		if u, ok := byID[rc.UserID]; ok {
			summary.Username = u.Username
			summary.DisplayName = u.Name()
			summary.Avatar = u.Avatar
			summary.IsAdmin = u.IsAdmin
			summary.AdminBadge = u.AdminBadge
		}
		out.Chats = append(out.Chats, summary)
	}
	return out, nil
}

// Typing tells the receiver's sessions the actor is typing. Nothing is
// stored and nothing is acknowledged.
func (s *ChatService) Typing(actor auth.Session, receiverID uint) {
	s.typing(actor, receiverID, EventUserTyping)
}

func (s *ChatService) StopTyping(actor auth.Session, receiverID uint) {
	s.typing(actor, receiverID, EventUserStoppedTyping)
}

func (s *ChatService) typing(actor auth.Session, receiverID uint, event string) {
	if !actor.Authenticated || receiverID == 0 || receiverID == actor.UserID {
		return
	}
	s.push.PushTo(receiverID, event, TypingEvent{UserID: actor.UserID, Username: actor.Username})
}
