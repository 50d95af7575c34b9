package ws

import (
	"encoding/json"
	"sync"

	"arcadetalk/internal/auth"
	"arcadetalk/internal/metrics"

	"github.com/rs/zerolog/log"
)

// Hub is the registry of live sessions. Every session receives broadcasts;
// authenticated ones are also addressable by user id.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	users   map[uint]map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		users:   make(map[uint]map[*Client]struct{}),
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	if c.sess.Authenticated {
		set := h.users[c.sess.UserID]
		if set == nil {
			set = make(map[*Client]struct{})
			h.users[c.sess.UserID] = set
		}
		set[c] = struct{}{}
	}
	metrics.WsConnections.Inc()
}

// Unregister removes the client and closes its send channel. Sends only
// happen under the read lock, so nothing writes to a closed channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	if set := h.users[c.sess.UserID]; set != nil {
		delete(set, c)
		if len(set) == 0 {
			delete(h.users, c.sess.UserID)
		}
	}
	close(c.send)
	metrics.WsConnections.Dec()
}

// SessionsFor returns the sessions currently live for a user.
func (h *Hub) SessionsFor(userID uint) []auth.Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]auth.Session, 0, len(h.users[userID]))
	for c := range h.users[userID] {
		out = append(out, c.sess)
	}
	return out
}

func (h *Hub) IsOnline(userID uint) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID]) > 0
}

// Online counts live sessions, anonymous ones included.
func (h *Hub) Online() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// PushTo delivers an event to every session of one user.
func (h *Hub) PushTo(userID uint, event string, payload interface{}) {
	b, ok := encodePush(event, payload)
	if !ok {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.users[userID] {
		h.deliver(c, event, b)
	}
}

func (h *Hub) Broadcast(event string, payload interface{}) {
	h.BroadcastExcept(nil, event, payload)
}

// BroadcastExcept delivers to every session but one.
func (h *Hub) BroadcastExcept(except *Client, event string, payload interface{}) {
	b, ok := encodePush(event, payload)
	if !ok {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c != except {
			h.deliver(c, event, b)
		}
	}
}

// deliver never blocks: a session whose buffer is full loses this push.
func (h *Hub) deliver(c *Client, event string, b []byte) {
	select {
	case c.send <- b:
	default:
		metrics.PushDropped.Inc()
		log.Warn().Str("conn_id", c.sess.ConnID).Uint("user_id", c.sess.UserID).Str("event", event).Msg("push dropped, send buffer full")
	}
}

func encodePush(event string, payload interface{}) ([]byte, bool) {
	b, err := json.Marshal(Push{Event: event, Data: payload})
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("encode push")
		return nil, false
	}
	return b, true
}
