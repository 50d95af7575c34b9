package auth

import (
	"context"
	"strconv"

	"arcadetalk/internal/store"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Session is one live socket connection and the identity resolved for it.
type Session struct {
	ConnID        string
	UserID        uint
	Username      string
	IsAdmin       bool
	Authenticated bool
}

// RoutingKey identifies the session for logging and anonymous delivery.
func (s Session) RoutingKey() string {
	if s.Authenticated {
		return strconv.FormatUint(uint64(s.UserID), 10)
	}
	return s.ConnID
}

// Handshake resolves the token presented when a socket connects. It never
// fails: a missing, invalid or expired token, or one naming a user the store
// does not know, produces an anonymous session.
func Handshake(ctx context.Context, users store.Users, secret, token string) Session {
	sess := Session{ConnID: uuid.NewString()}
	if token == "" {
		return sess
	}
	claims, err := ParseAccessToken(token, secret)
	if err != nil {
		log.Debug().Err(err).Str("conn_id", sess.ConnID).Msg("handshake token rejected")
		return sess
	}
	user, err := users.FindByID(ctx, claims.UserID)
	if err != nil {
		log.Debug().Err(err).Uint("claimed_id", claims.UserID).Str("conn_id", sess.ConnID).Msg("handshake user unresolved")
		return sess
	}
	sess.UserID = user.ID
	sess.Username = user.Username
	sess.IsAdmin = user.IsAdmin
	sess.Authenticated = true
	return sess
}
