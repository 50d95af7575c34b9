// Package presence tracks which users are connected and derives their
// status from live sessions plus a delayed-offline grace timer.
package presence

import (
	"context"
	"sync"
	"time"

	"arcadetalk/internal/auth"
	"arcadetalk/internal/metrics"
	"arcadetalk/internal/models"
	"arcadetalk/internal/store"

	"github.com/rs/zerolog/log"
)

const EventStatusChange = "user_status_change"

const storeTimeout = 5 * time.Second

// Broadcaster delivers an event to every connected session.
type Broadcaster interface {
	Broadcast(event string, payload interface{})
}

// StatusChange is the payload of user_status_change.
type StatusChange struct {
	UserID   uint   `json:"userId"`
	Username string `json:"username"`
	Status   string `json:"status"`
	IsAdmin  bool   `json:"isAdmin"`
}

// Selectable reports whether a client may pick status explicitly.
func Selectable(status string) bool {
	switch status {
	case models.StatusOnline, models.StatusAway, models.StatusBusy:
		return true
	}
	return false
}

type Config struct {
	Grace     time.Duration
	Heartbeat time.Duration
}

type Manager struct {
	users  store.Users
	bc     Broadcaster
	mirror Mirror
	cfg    Config

	mu      sync.Mutex
	records map[uint]*record
}

// record is the per-user state. Its mutex is held across every transition,
// including timer expiry, so connect and expire never interleave.
type record struct {
	mu         sync.Mutex
	userID     uint
	username   string
	isAdmin    bool
	status     string
	lastActive time.Time
	sessions   map[string]chan struct{}
	timer      *time.Timer
	gen        uint64
}

func NewManager(users store.Users, bc Broadcaster, mirror Mirror, cfg Config) *Manager {
	if mirror == nil {
		mirror = NopMirror{}
	}
	return &Manager{users: users, bc: bc, mirror: mirror, cfg: cfg, records: make(map[uint]*record)}
}

func (m *Manager) record(sess auth.Session) *record {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[sess.UserID]
	if !ok {
		rec = &record{
			userID:   sess.UserID,
			username: sess.Username,
			isAdmin:  sess.IsAdmin,
			status:   models.StatusOffline,
			sessions: make(map[string]chan struct{}),
		}
		m.records[sess.UserID] = rec
	}
	return rec
}

func (m *Manager) lookup(userID uint) *record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[userID]
}

// Connect adds a live session. The first session of an offline user marks
// them online and broadcasts; a reconnect inside the grace window only
// cancels the pending timer.
func (m *Manager) Connect(sess auth.Session) {
	if !sess.Authenticated {
		return
	}
	rec := m.record(sess)
	rec.mu.Lock()
	defer rec.mu.Unlock()

	if _, dup := rec.sessions[sess.ConnID]; dup {
		return
	}
	if rec.timer != nil {
		rec.timer.Stop()
		rec.timer = nil
	}
	rec.gen++
	rec.username = sess.Username
	rec.isAdmin = sess.IsAdmin
	rec.lastActive = time.Now()

	stop := make(chan struct{})
	rec.sessions[sess.ConnID] = stop

	changed := false
	if rec.status == models.StatusOffline {
		rec.status = models.StatusOnline
		changed = true
	}
	m.persist(rec)
	if changed {
		m.announce(rec)
	}
	go m.heartbeat(rec, sess.ConnID, stop)
}

// Disconnect removes a live session. When it was the last one the grace
// timer starts; the user stays in their current status until it fires.
func (m *Manager) Disconnect(sess auth.Session) {
	if !sess.Authenticated {
		return
	}
	rec := m.lookup(sess.UserID)
	if rec == nil {
		return
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()

	stop, ok := rec.sessions[sess.ConnID]
	if !ok {
		return
	}
	close(stop)
	delete(rec.sessions, sess.ConnID)
	if len(rec.sessions) > 0 {
		return
	}
	rec.gen++
	gen, mark := rec.gen, rec.lastActive
	rec.timer = time.AfterFunc(m.cfg.Grace, func() { m.expire(rec, gen, mark) })
	log.Debug().Uint("user_id", rec.userID).Dur("grace", m.cfg.Grace).Msg("presence grace started")
}

func (m *Manager) expire(rec *record, gen uint64, mark time.Time) {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.gen != gen || len(rec.sessions) > 0 || rec.lastActive.After(mark) {
		return
	}
	rec.timer = nil
	if rec.status == models.StatusOffline {
		return
	}
	rec.status = models.StatusOffline
	m.persist(rec)
	m.announce(rec)
}

// SetStatus applies a client-chosen status. Values outside online, away and
// busy are ignored, as are requests from users with no live session.
func (m *Manager) SetStatus(sess auth.Session, status string) bool {
	if !sess.Authenticated || !Selectable(status) {
		return false
	}
	rec := m.lookup(sess.UserID)
	if rec == nil {
		return false
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.sessions) == 0 {
		return false
	}
	rec.status = status
	rec.lastActive = time.Now()
	m.persist(rec)
	m.announce(rec)
	return true
}

// Status returns the live status of a user; unknown users are offline.
func (m *Manager) Status(userID uint) string {
	rec := m.lookup(userID)
	if rec == nil {
		return models.StatusOffline
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.status
}

// Close stops every heartbeat and pending timer.
func (m *Manager) Close() {
	m.mu.Lock()
	recs := make([]*record, 0, len(m.records))
	for _, rec := range m.records {
		recs = append(recs, rec)
	}
	m.mu.Unlock()
	for _, rec := range recs {
		rec.mu.Lock()
		for id, stop := range rec.sessions {
			close(stop)
			delete(rec.sessions, id)
		}
		if rec.timer != nil {
			rec.timer.Stop()
			rec.timer = nil
		}
		rec.gen++
		rec.mu.Unlock()
	}
}

func (m *Manager) heartbeat(rec *record, connID string, stop <-chan struct{}) {
	ticker := time.NewTicker(m.cfg.Heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			rec.mu.Lock()
			select {
			case <-stop:
				rec.mu.Unlock()
				return
			default:
			}
			rec.lastActive = time.Now()
			ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
			if err := m.users.UpdateLastActive(ctx, rec.userID); err != nil {
				log.Warn().Err(err).Uint("user_id", rec.userID).Str("conn_id", connID).Msg("heartbeat last active")
			}
			if err := m.mirror.Publish(ctx, rec.snapshot()); err != nil {
				log.Warn().Err(err).Uint("user_id", rec.userID).Msg("heartbeat mirror")
			}
			cancel()
			rec.mu.Unlock()
		}
	}
}

// persist writes status to the store and the mirror. Failures are logged
// and swallowed. Caller holds rec.mu.
func (m *Manager) persist(rec *record) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if u, err := m.users.UpdateOnlineStatus(ctx, rec.userID, rec.status); err != nil {
		log.Warn().Err(err).Uint("user_id", rec.userID).Str("status", rec.status).Msg("persist presence")
	} else {
		rec.username = u.Username
		rec.isAdmin = u.IsAdmin
	}
	var err error
	if rec.status == models.StatusOffline {
		err = m.mirror.Remove(ctx, rec.userID)
	} else {
		err = m.mirror.Publish(ctx, rec.snapshot())
	}
	if err != nil {
		log.Warn().Err(err).Uint("user_id", rec.userID).Msg("mirror presence")
	}
}

// announce broadcasts the current status. Caller holds rec.mu.
func (m *Manager) announce(rec *record) {
	metrics.PresenceTransitions.WithLabelValues(rec.status).Inc()
	log.Info().Uint("user_id", rec.userID).Str("status", rec.status).Msg("presence changed")
	m.bc.Broadcast(EventStatusChange, StatusChange{
		UserID:   rec.userID,
		Username: rec.username,
		Status:   rec.status,
		IsAdmin:  rec.isAdmin,
	})
}

func (r *record) snapshot() Snapshot {
	return Snapshot{
		UserID:     r.userID,
		Username:   r.username,
		Status:     r.status,
		IsAdmin:    r.isAdmin,
		LastActive: r.lastActive,
	}
}
