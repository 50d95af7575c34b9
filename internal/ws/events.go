package ws

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"arcadetalk/internal/models"
	"arcadetalk/internal/service"
)

// Envelope is an inbound frame. Ack, when present, asks for exactly one
// ack frame carrying the same number.
type Envelope struct {
	Event string          `json:"event"`
	Ack   *uint64         `json:"ack,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Push is an outbound frame. Acks use Event "ack" and echo the request's
// Ack number.
type Push struct {
	Event string      `json:"event"`
	Ack   *uint64     `json:"ack,omitempty"`
	Data  interface{} `json:"data,omitempty"`
}

const eventAck = "ack"

// Inbound event names.
const (
	EventSendMessage              = "send_message"
	EventGetChatHistory           = "get_chat_history"
	EventUnsendMessage            = "unsend_message"
	EventReactToMessage           = "react_to_message"
	EventRemoveMessageReaction    = "remove_message_reaction"
	EventGetRecentChats           = "get_recent_chats"
	EventTyping                   = "typing"
	EventStopTyping               = "stop_typing"
	EventSetStatus                = "set_status"
	EventGetNotifications         = "get_notifications"
	EventMarkNotificationRead     = "mark_notification_read"
	EventMarkAllNotificationsRead = "mark_all_notifications_read"
	EventBalanceUpdated           = "balance_updated"
	EventNewPostCreated           = "new_post_created"
	EventNewPostReaction          = "new_post_reaction"
	EventNewCommentAdded          = "new_comment_added"
)

// Relayed event names.
const (
	EventNewPost            = "new_post"
	EventPostReactionUpdate = "post_reaction_update"
	EventPostCommentUpdate  = "post_comment_update"
)

var ErrUnknownEvent = errors.New("unknown event")

// ID accepts a JSON number or a numeric string. Clients built against the
// older string-id backend still send quoted ids.
type ID uint

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = 0
		return nil
	}
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		unq, err := strconv.Unquote(s)
		if err != nil {
			return err
		}
		s = strings.TrimSpace(unq)
		if s == "" {
			*id = 0
			return nil
		}
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return service.InputError("Invalid id " + strconv.Quote(s))
	}
	*id = ID(v)
	return nil
}

// Request is one decoded and validated inbound event.
type Request interface {
	Event() string
	Validate() error
}

type SendMessageRequest struct {
	ReceiverID ID     `json:"receiverId"`
	Content    string `json:"content"`
}

func (SendMessageRequest) Event() string { return EventSendMessage }
func (r SendMessageRequest) Validate() error {
	if r.ReceiverID == 0 || strings.TrimSpace(r.Content) == "" {
		return service.InputError("Receiver ID and content are required")
	}
	return nil
}

type ChatHistoryRequest struct {
	UserID ID `json:"userId"`
}

func (ChatHistoryRequest) Event() string { return EventGetChatHistory }
func (r ChatHistoryRequest) Validate() error {
	if r.UserID == 0 {
		return service.InputError("User ID is required")
	}
	return nil
}

type UnsendRequest struct {
	MessageID ID `json:"messageId"`
}

func (UnsendRequest) Event() string { return EventUnsendMessage }
func (r UnsendRequest) Validate() error {
	if r.MessageID == 0 {
		return service.InputError("Message ID is required")
	}
	return nil
}

type ReactRequest struct {
	MessageID ID     `json:"messageId"`
	Emoji     string `json:"emoji"`
}

func (ReactRequest) Event() string { return EventReactToMessage }
func (r ReactRequest) Validate() error {
	if r.MessageID == 0 || strings.TrimSpace(r.Emoji) == "" {
		return service.InputError("Message ID and emoji are required")
	}
	if len(strings.TrimSpace(r.Emoji)) > models.MaxReactionLen {
		return service.InputError("Reaction is too long")
	}
	return nil
}

type RemoveReactionRequest struct {
	MessageID ID `json:"messageId"`
}

func (RemoveReactionRequest) Event() string { return EventRemoveMessageReaction }
func (r RemoveReactionRequest) Validate() error {
	if r.MessageID == 0 {
		return service.InputError("Message ID is required")
	}
	return nil
}

type RecentChatsRequest struct{}

func (RecentChatsRequest) Event() string   { return EventGetRecentChats }
func (RecentChatsRequest) Validate() error { return nil }

// TypingRequest carries both typing and stop_typing.
type TypingRequest struct {
	ReceiverID ID   `json:"receiverId"`
	Stop       bool `json:"-"`
}

func (r TypingRequest) Event() string {
	if r.Stop {
		return EventStopTyping
	}
	return EventTyping
}
func (r TypingRequest) Validate() error {
	if r.ReceiverID == 0 {
		return service.InputError("Receiver ID is required")
	}
	return nil
}

// SetStatusRequest is validated by the presence manager, which ignores
// statuses it does not accept.
type SetStatusRequest struct {
	Status string `json:"status"`
}

func (SetStatusRequest) Event() string   { return EventSetStatus }
func (SetStatusRequest) Validate() error { return nil }

type NotificationsRequest struct{}

func (NotificationsRequest) Event() string   { return EventGetNotifications }
func (NotificationsRequest) Validate() error { return nil }

type MarkReadRequest struct {
	NotificationID ID `json:"notificationId"`
}

func (MarkReadRequest) Event() string { return EventMarkNotificationRead }
func (r MarkReadRequest) Validate() error {
	if r.NotificationID == 0 {
		return service.InputError("Notification ID is required")
	}
	return nil
}

type MarkAllReadRequest struct{}

func (MarkAllReadRequest) Event() string   { return EventMarkAllNotificationsRead }
func (MarkAllReadRequest) Validate() error { return nil }

type BalanceUpdatedRequest struct {
	ReceiverID ID `json:"receiverId"`
}

func (BalanceUpdatedRequest) Event() string { return EventBalanceUpdated }
func (r BalanceUpdatedRequest) Validate() error {
	if r.ReceiverID == 0 {
		return service.InputError("Receiver ID is required")
	}
	return nil
}

type PostCreatedRequest struct {
	PostID string `json:"postId"`
}

func (PostCreatedRequest) Event() string { return EventNewPostCreated }
func (r PostCreatedRequest) Validate() error {
	if r.PostID == "" {
		return service.InputError("Post ID is required")
	}
	return nil
}

// PostReactionRequest optionally names the post owner, who then gets a
// reaction notification.
type PostReactionRequest struct {
	PostID      string `json:"postId"`
	Reaction    string `json:"reaction"`
	PostOwnerID ID     `json:"postOwnerId"`
}

func (PostReactionRequest) Event() string { return EventNewPostReaction }
func (r PostReactionRequest) Validate() error {
	if r.PostID == "" || r.Reaction == "" {
		return service.InputError("Post ID and reaction are required")
	}
	return nil
}

type CommentAddedRequest struct {
	PostID      string `json:"postId"`
	CommentID   string `json:"commentId"`
	PostOwnerID ID     `json:"postOwnerId"`
}

func (CommentAddedRequest) Event() string { return EventNewCommentAdded }
func (r CommentAddedRequest) Validate() error {
	if r.PostID == "" {
		return service.InputError("Post ID is required")
	}
	return nil
}

// Decode maps an envelope to its typed request and validates it. A nil
// request with a nil error never happens.
func Decode(env Envelope) (Request, error) {
	var req Request
	switch env.Event {
	case EventSendMessage:
		req = &SendMessageRequest{}
	case EventGetChatHistory:
		req = &ChatHistoryRequest{}
	case EventUnsendMessage:
		req = &UnsendRequest{}
	case EventReactToMessage:
		req = &ReactRequest{}
	case EventRemoveMessageReaction:
		req = &RemoveReactionRequest{}
	case EventGetRecentChats:
		req = &RecentChatsRequest{}
	case EventTyping:
		req = &TypingRequest{}
	case EventStopTyping:
		req = &TypingRequest{Stop: true}
	case EventSetStatus:
		req = &SetStatusRequest{}
	case EventGetNotifications:
		req = &NotificationsRequest{}
	case EventMarkNotificationRead:
		req = &MarkReadRequest{}
	case EventMarkAllNotificationsRead:
		req = &MarkAllReadRequest{}
	case EventBalanceUpdated:
		req = &BalanceUpdatedRequest{}
	case EventNewPostCreated:
		req = &PostCreatedRequest{}
	case EventNewPostReaction:
		req = &PostReactionRequest{}
	case EventNewCommentAdded:
		req = &CommentAddedRequest{}
	default:
		return nil, ErrUnknownEvent
	}
	if len(env.Data) > 0 && !bytes.Equal(bytes.TrimSpace(env.Data), []byte("null")) {
		if err := json.Unmarshal(env.Data, req); err != nil {
			var in service.InputError
			if errors.As(err, &in) {
				return nil, in
			}
			return nil, service.InputError("Malformed payload")
		}
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return req, nil
}
