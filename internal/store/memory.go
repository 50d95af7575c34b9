package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"arcadetalk/internal/models"
)

// NewMemory returns a process-local implementation of the contract. Every
// call takes one mutex, so single-row mutations such as the reaction upsert
// are atomic.
func NewMemory() *Store {
	m := &memory{
		users:         make(map[uint]*models.User),
		messages:      make(map[uint]*models.Message),
		notifications: make(map[uint]*models.Notification),
	}
	return &Store{
		Users:         (*memUsers)(m),
		Chat:          (*memChat)(m),
		Notifications: (*memNotifications)(m),
	}
}

type memory struct {
	mu            sync.Mutex
	seq           uint
	users         map[uint]*models.User
	messages      map[uint]*models.Message
	notifications map[uint]*models.Notification
	// last hands out strictly increasing timestamps so ordering never ties.
	last time.Time
}

func (m *memory) nextID() uint {
	m.seq++
	return m.seq
}

func (m *memory) now() time.Time {
	t := time.Now()
	if !t.After(m.last) {
		t = m.last.Add(time.Microsecond)
	}
	m.last = t
	return t
}

func copyMessage(src *models.Message) models.Message {
	out := *src
	out.Reactions = append([]models.MessageReaction(nil), src.Reactions...)
	return out
}

type memUsers memory

func (s *memUsers) FindByID(_ context.Context, id uint) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *memUsers) FindByUsername(_ context.Context, username string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memUsers) Create(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := (*memory)(s)
	u.ID = m.nextID()
	u.CreatedAt = m.now()
	u.UpdatedAt = u.CreatedAt
	if u.OnlineStatus == "" {
		u.OnlineStatus = models.StatusOffline
	}
	if u.Balance == 0 {
		u.Balance = 100
	}
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *memUsers) GetAll(_ context.Context) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memUsers) UpdateOnlineStatus(_ context.Context, id uint, status string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	u.OnlineStatus = status
	u.LastActive = (*memory)(s).now()
	cp := *u
	return &cp, nil
}

func (s *memUsers) UpdateLastActive(_ context.Context, id uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	u.LastActive = (*memory)(s).now()
	return nil
}

func (s *memUsers) TransferFunds(_ context.Context, fromID, toID uint, amount int64) (*models.User, *models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	from, ok := s.users[fromID]
	if !ok {
		return nil, nil, ErrNotFound
	}
	to, ok := s.users[toID]
	if !ok {
		return nil, nil, ErrNotFound
	}
	if from.Balance < amount {
		return nil, nil, ErrInsufficientFunds
	}
	from.Balance -= amount
	to.Balance += amount
	f, t := *from, *to
	return &f, &t, nil
}

type memChat memory

func (s *memChat) CreateMessage(_ context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := (*memory)(s)
	msg.ID = m.nextID()
	msg.CreatedAt = m.now()
	msg.UpdatedAt = msg.CreatedAt
	cp := copyMessage(msg)
	s.messages[msg.ID] = &cp
	return nil
}

// sorted returns copies of the messages matching keep, newest first.
func (s *memChat) sorted(keep func(*models.Message) bool) []models.Message {
	out := make([]models.Message, 0)
	for _, msg := range s.messages {
		if keep(msg) {
			out = append(out, copyMessage(msg))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (s *memChat) GetMessages(_ context.Context, a, b uint, limit int) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.sorted(func(m *models.Message) bool {
		return (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a)
	})
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[:limit]
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (s *memChat) FindMessage(_ context.Context, id uint) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := copyMessage(msg)
	return &cp, nil
}

func (s *memChat) DeleteMessage(_ context.Context, id, senderID uint) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[id]
	if !ok || msg.SenderID != senderID {
		return nil, ErrNotFound
	}
	msg.IsDeleted = true
	msg.Content = models.UnsentPlaceholder
	msg.Reactions = nil
	msg.UpdatedAt = (*memory)(s).now()
	cp := copyMessage(msg)
	return &cp, nil
}

func (s *memChat) AddReaction(_ context.Context, messageID, userID uint, reaction string) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[messageID]
	if !ok {
		return nil, ErrNotFound
	}
	if msg.IsDeleted {
		return nil, ErrMessageDeleted
	}
	m := (*memory)(s)
	replaced := false
	for i := range msg.Reactions {
		if msg.Reactions[i].UserID == userID {
			msg.Reactions[i].Reaction = reaction
			replaced = true
			break
		}
	}
	if !replaced {
		msg.Reactions = append(msg.Reactions, models.MessageReaction{
			ID:        m.nextID(),
			MessageID: messageID,
			UserID:    userID,
			Reaction:  reaction,
			CreatedAt: m.now(),
		})
	}
	cp := copyMessage(msg)
	return &cp, nil
}

func (s *memChat) RemoveReaction(_ context.Context, messageID, userID uint) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[messageID]
	if !ok {
		return nil, ErrNotFound
	}
	kept := msg.Reactions[:0]
	for _, r := range msg.Reactions {
		if r.UserID != userID {
			kept = append(kept, r)
		}
	}
	msg.Reactions = kept
	cp := copyMessage(msg)
	return &cp, nil
}

func (s *memChat) GetRecentChats(_ context.Context, userID uint) ([]RecentChat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.sorted(func(m *models.Message) bool {
		return m.SenderID == userID || m.ReceiverID == userID
	})
	return latestPerCounterpart(userID, msgs), nil
}

type memNotifications memory

func (s *memNotifications) Create(_ context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := (*memory)(s)
	n.ID = m.nextID()
	n.CreatedAt = m.now()
	cp := *n
	s.notifications[n.ID] = &cp
	return nil
}

func (s *memNotifications) GetByUser(_ context.Context, userID uint, limit int) ([]models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Notification, 0)
	for _, n := range s.notifications {
		if n.UserID == userID {
			out = append(out, *n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memNotifications) MarkAsRead(_ context.Context, id, userID uint) (*models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok || n.UserID != userID {
		return nil, ErrNotFound
	}
	n.IsRead = true
	cp := *n
	return &cp, nil
}

func (s *memNotifications) MarkAllAsRead(_ context.Context, userID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.notifications {
		if n.UserID == userID {
			n.IsRead = true
		}
	}
	return nil
}

func (s *memNotifications) CountUnread(_ context.Context, userID uint) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var c int64
	for _, n := range s.notifications {
		if n.UserID == userID && !n.IsRead {
			c++
		}
	}
	return c, nil
}
