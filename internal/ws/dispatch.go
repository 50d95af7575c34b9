package ws

import (
	"context"
	"errors"
	"fmt"

	"arcadetalk/internal/metrics"
	"arcadetalk/internal/presence"
	"arcadetalk/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Dispatcher routes decoded requests to the services. One call to Handle
// runs to completion before the connection reads its next frame.
type Dispatcher struct {
	hub      *Hub
	presence *presence.Manager
	chat     *service.ChatService
	notes    *service.NotificationService

	eventsPerSecond int
	eventBurst      int
}

func NewDispatcher(h *Hub, pm *presence.Manager, chat *service.ChatService, notes *service.NotificationService, eventsPerSecond, eventBurst int) *Dispatcher {
	return &Dispatcher{
		hub:             h,
		presence:        pm,
		chat:            chat,
		notes:           notes,
		eventsPerSecond: eventsPerSecond,
		eventBurst:      eventBurst,
	}
}

func (d *Dispatcher) limiter() *rate.Limiter {
	if d.eventsPerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(d.eventsPerSecond), d.eventBurst)
}

func (d *Dispatcher) connected(c *Client)    { d.presence.Connect(c.sess) }
func (d *Dispatcher) disconnected(c *Client) { d.presence.Disconnect(c.sess) }

func fail(message string) gin.H {
	return gin.H{"success": false, "message": message}
}

// Handle processes one inbound frame and, when the client asked for one,
// sends exactly one ack.
func (d *Dispatcher) Handle(ctx context.Context, c *Client, env Envelope) {
	metrics.WsEventsTotal.WithLabelValues(eventLabel(env.Event)).Inc()
	reply := func(payload gin.H) {
		if env.Ack != nil {
			c.ack(*env.Ack, payload)
		}
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("event", env.Event).Str("conn_id", c.sess.ConnID).Msg("socket handler panic")
			reply(fail("Internal error"))
		}
	}()

	if !c.limiter.Allow() {
		reply(fail("Too many requests"))
		return
	}
	req, err := Decode(env)
	if errors.Is(err, ErrUnknownEvent) {
		log.Debug().Str("event", env.Event).Str("conn_id", c.sess.ConnID).Msg("unknown socket event")
		reply(fail("Unknown event"))
		return
	}
	if err != nil {
		reply(fail(service.PublicMessage(err, "Invalid request")))
		return
	}
	if !c.sess.Authenticated {
		reply(fail(service.ErrUnauthenticated.Error()))
		return
	}
	if payload := d.dispatch(ctx, c, req); payload != nil {
		reply(payload)
	}
}

// dispatch returns the ack payload, or nil for fire-and-forget events.
func (d *Dispatcher) dispatch(ctx context.Context, c *Client, req Request) gin.H {
	sess := c.sess
	switch r := req.(type) {
	case *SendMessageRequest:
		view, err := d.chat.SendMessage(ctx, sess, uint(r.ReceiverID), r.Content)
		if err != nil {
			return d.failure(c, req, err, "Error sending message")
		}
		return gin.H{"success": true, "message": view}

	case *ChatHistoryRequest:
		msgs, err := d.chat.ChatHistory(ctx, sess, uint(r.UserID))
		if err != nil {
			h := d.failure(c, req, err, "Error retrieving chat history")
			h["messages"] = []service.MessageView{}
			return h
		}
		return gin.H{"success": true, "messages": msgs}

	case *UnsendRequest:
		if err := d.chat.Unsend(ctx, sess, uint(r.MessageID)); err != nil {
			if errors.Is(err, service.ErrMessageNotFound) {
				return fail("Message not found or you are not the sender")
			}
			return d.failure(c, req, err, "Error unsending message")
		}
		return gin.H{"success": true, "message": "Message unsent successfully"}

	case *ReactRequest:
		if err := d.chat.React(ctx, sess, uint(r.MessageID), r.Emoji); err != nil {
			return d.failure(c, req, err, "Error adding reaction")
		}
		return gin.H{"success": true, "message": "Reaction added successfully"}

	case *RemoveReactionRequest:
		if err := d.chat.RemoveReaction(ctx, sess, uint(r.MessageID)); err != nil {
			return d.failure(c, req, err, "Error removing reaction")
		}
		return gin.H{"success": true, "message": "Reaction removed successfully"}

	case *RecentChatsRequest:
		res, err := d.chat.RecentChats(ctx, sess)
		if err != nil {
			h := d.failure(c, req, err, "Error retrieving recent chats")
			h["chats"] = []service.ChatSummary{}
			h["availableUsers"] = []service.UserSummary{}
			return h
		}
		return gin.H{"success": true, "chats": res.Chats, "availableUsers": res.AvailableUsers}

	case *TypingRequest:
		if r.Stop {
			d.chat.StopTyping(sess, uint(r.ReceiverID))
		} else {
			d.chat.Typing(sess, uint(r.ReceiverID))
		}
		return nil

	case *SetStatusRequest:
		if !d.presence.SetStatus(sess, r.Status) {
			log.Debug().Str("status", r.Status).Uint("user_id", sess.UserID).Msg("status change ignored")
		}
		return nil

	case *NotificationsRequest:
		list, err := d.notes.GetByUser(ctx, sess.UserID)
		if err != nil {
			h := d.failure(c, req, err, "Error retrieving notifications")
			h["notifications"] = []service.NotificationView{}
			return h
		}
		return gin.H{"success": true, "notifications": list}

	case *MarkReadRequest:
		n, err := d.notes.MarkRead(ctx, sess.UserID, uint(r.NotificationID))
		if err != nil {
			return d.failure(c, req, err, "Error marking notification as read")
		}
		return gin.H{"success": true, "notification": n}

	case *MarkAllReadRequest:
		if err := d.notes.MarkAllRead(ctx, sess.UserID); err != nil {
			return d.failure(c, req, err, "Error marking all notifications as read")
		}
		return gin.H{"success": true, "message": "All notifications marked as read"}

	case *BalanceUpdatedRequest:
		d.notes.PushBalance(uint(r.ReceiverID), sess.UserID, sess.Username, 0)
		return nil

	case *PostCreatedRequest:
		d.hub.BroadcastExcept(c, EventNewPost, gin.H{"postId": r.PostID, "userId": sess.UserID, "username": sess.Username})
		return nil

	case *PostReactionRequest:
		d.hub.BroadcastExcept(c, EventPostReactionUpdate, gin.H{
			"postId": r.PostID, "userId": sess.UserID, "username": sess.Username, "reaction": r.Reaction,
		})
		if err := d.notes.NotifyPostReaction(ctx, uint(r.PostOwnerID), sess.UserID, sess.Username, r.PostID, r.Reaction); err != nil {
			log.Error().Err(err).Str("post_id", r.PostID).Msg("post reaction notification")
		}
		return nil

	case *CommentAddedRequest:
		d.hub.BroadcastExcept(c, EventPostCommentUpdate, gin.H{
			"postId": r.PostID, "commentId": r.CommentID, "userId": sess.UserID, "username": sess.Username,
		})
		if err := d.notes.NotifyComment(ctx, uint(r.PostOwnerID), sess.UserID, sess.Username, r.PostID); err != nil {
			log.Error().Err(err).Str("post_id", r.PostID).Msg("comment notification")
		}
		return nil
	}
	panic(fmt.Sprintf("ws: no handler for %T", req))
}

// failure logs backend errors and builds the ack for any error.
func (d *Dispatcher) failure(c *Client, req Request, err error, fallback string) gin.H {
	msg := service.PublicMessage(err, fallback)
	if msg == fallback {
		log.Error().Err(err).Str("event", req.Event()).Uint("user_id", c.sess.UserID).Str("conn_id", c.sess.ConnID).Msg("socket request failed")
	}
	return fail(msg)
}

var knownEvents = map[string]struct{}{
	EventSendMessage: {}, EventGetChatHistory: {}, EventUnsendMessage: {}, EventReactToMessage: {},
	EventRemoveMessageReaction: {}, EventGetRecentChats: {}, EventTyping: {}, EventStopTyping: {},
	EventSetStatus: {}, EventGetNotifications: {}, EventMarkNotificationRead: {},
	EventMarkAllNotificationsRead: {}, EventBalanceUpdated: {}, EventNewPostCreated: {},
	EventNewPostReaction: {}, EventNewCommentAdded: {},
}

// eventLabel keeps metric cardinality bounded.
func eventLabel(event string) string {
	if _, ok := knownEvents[event]; ok {
		return event
	}
	return "unknown"
}
