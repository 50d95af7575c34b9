package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"arcadetalk/internal/auth"
	"arcadetalk/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 64 << 10
	sendBuffer     = 256
)

// Client is one live socket and its session. Only the read goroutine
// writes acks and unregisters; only the write goroutine touches the socket
// for writing.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	done    chan struct{}
	sess    auth.Session
	limiter *rate.Limiter
}

func newClient(h *Hub, conn *websocket.Conn, sess auth.Session, limiter *rate.Limiter) *Client {
	return &Client{
		hub:     h,
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		done:    make(chan struct{}),
		sess:    sess,
		limiter: limiter,
	}
}

// Session returns the identity resolved at connect time.
func (c *Client) Session() auth.Session { return c.sess }

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Serve upgrades the request and runs the connection until it closes. The
// handshake never refuses: a bad or missing token yields an anonymous
// session that only receives broadcasts.
func Serve(h *Hub, d *Dispatcher, users store.Users, secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := auth.Handshake(c.Request.Context(), users, secret, auth.TokenFromRequest(c.Request))
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Debug().Err(err).Str("conn_id", sess.ConnID).Msg("websocket upgrade")
			return
		}
		client := newClient(h, conn, sess, d.limiter())
		h.Register(client)
		d.connected(client)
		log.Info().Str("conn_id", sess.ConnID).Uint("user_id", sess.UserID).Bool("authenticated", sess.Authenticated).Msg("socket connected")

		go client.writePump()
		client.readPump(c.Request.Context(), d)
	}
}

func (c *Client) readPump(ctx context.Context, d *Dispatcher) {
	defer func() {
		c.hub.Unregister(c)
		d.disconnected(c)
		_ = c.conn.Close()
		log.Info().Str("conn_id", c.sess.ConnID).Uint("user_id", c.sess.UserID).Msg("socket disconnected")
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("conn_id", c.sess.ConnID).Msg("socket read")
			}
			return
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
			log.Debug().Str("conn_id", c.sess.ConnID).Msg("dropping malformed frame")
			continue
		}
		d.Handle(ctx, c, env)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		close(c.done)
		_ = c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ack queues the reply to a request. Unlike pushes it waits for buffer
// space, giving up only once the writer has stopped.
func (c *Client) ack(id uint64, payload interface{}) {
	b, err := json.Marshal(Push{Event: eventAck, Ack: &id, Data: payload})
	if err != nil {
		log.Error().Err(err).Str("conn_id", c.sess.ConnID).Msg("encode ack")
		return
	}
	select {
	case c.send <- b:
	case <-c.done:
	}
}
