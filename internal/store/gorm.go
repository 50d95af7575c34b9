package store

import (
	"context"
	"errors"
	"time"

	"arcadetalk/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// NewGorm returns the relational implementation of the contract.
func NewGorm(db *gorm.DB) *Store {
	return &Store{
		Users:         &gormUsers{db: db},
		Chat:          &gormChat{db: db},
		Notifications: &gormNotifications{db: db},
	}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

type gormUsers struct {
	db *gorm.DB
}

func (s *gormUsers) FindByID(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (s *gormUsers) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&u).Error; err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (s *gormUsers) Create(ctx context.Context, u *models.User) error {
	return s.db.WithContext(ctx).Create(u).Error
}

func (s *gormUsers) GetAll(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := s.db.WithContext(ctx).Order("id asc").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func (s *gormUsers) UpdateOnlineStatus(ctx context.Context, id uint, status string) (*models.User, error) {
	res := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).
		Updates(map[string]interface{}{"online_status": status, "last_active": time.Now()})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return s.FindByID(ctx, id)
}

func (s *gormUsers) UpdateLastActive(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("last_active", time.Now())
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *gormUsers) TransferFunds(ctx context.Context, fromID, toID uint, amount int64) (*models.User, *models.User, error) {
	var from, to models.User
	// Lock the lower id first so opposite transfers cannot deadlock.
	first, second := &from, &to
	firstID, secondID := fromID, toID
	if toID < fromID {
		first, second = &to, &from
		firstID, secondID = toID, fromID
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(first, firstID).Error; err != nil {
			return notFound(err)
		}
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(second, secondID).Error; err != nil {
			return notFound(err)
		}
		if from.Balance < amount {
			return ErrInsufficientFunds
		}
		if err := tx.Model(&from).Update("balance", gorm.Expr("balance - ?", amount)).Error; err != nil {
			return err
		}
		if err := tx.Model(&to).Update("balance", gorm.Expr("balance + ?", amount)).Error; err != nil {
			return err
		}
		if err := tx.First(&from, fromID).Error; err != nil {
			return err
		}
		return tx.First(&to, toID).Error
	})
	if err != nil {
		return nil, nil, err
	}
	return &from, &to, nil
}

type gormChat struct {
	db *gorm.DB
}

func (s *gormChat) CreateMessage(ctx context.Context, m *models.Message) error {
	return s.db.WithContext(ctx).Create(m).Error
}

func (s *gormChat) GetMessages(ctx context.Context, a, b uint, limit int) ([]models.Message, error) {
	q := s.db.WithContext(ctx).Preload("Reactions").
		Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)", a, b, b, a).
		Order("created_at desc, id desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var msgs []models.Message
	if err := q.Find(&msgs).Error; err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (s *gormChat) FindMessage(ctx context.Context, id uint) (*models.Message, error) {
	var m models.Message
	if err := s.db.WithContext(ctx).Preload("Reactions").First(&m, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

func (s *gormChat) DeleteMessage(ctx context.Context, id, senderID uint) (*models.Message, error) {
	var m models.Message
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ? AND sender_id = ?", id, senderID).First(&m).Error; err != nil {
			return notFound(err)
		}
		if err := tx.Model(&m).Updates(map[string]interface{}{"is_deleted": true, "content": models.UnsentPlaceholder}).Error; err != nil {
			return err
		}
		return tx.Where("message_id = ?", id).Delete(&models.MessageReaction{}).Error
	})
	if err != nil {
		return nil, err
	}
	m.IsDeleted = true
	m.Content = models.UnsentPlaceholder
	m.Reactions = nil
	return &m, nil
}

func (s *gormChat) AddReaction(ctx context.Context, messageID, userID uint, reaction string) (*models.Message, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m models.Message
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Select("id", "is_deleted").First(&m, messageID).Error; err != nil {
			return notFound(err)
		}
		if m.IsDeleted {
			return ErrMessageDeleted
		}
		r := models.MessageReaction{MessageID: messageID, UserID: userID, Reaction: reaction}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "message_id"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"reaction"}),
		}).Create(&r).Error
	})
	if err != nil {
		return nil, err
	}
	return s.FindMessage(ctx, messageID)
}

func (s *gormChat) RemoveReaction(ctx context.Context, messageID, userID uint) (*models.Message, error) {
	if _, err := s.FindMessage(ctx, messageID); err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Where("message_id = ? AND user_id = ?", messageID, userID).
		Delete(&models.MessageReaction{}).Error; err != nil {
		return nil, err
	}
	return s.FindMessage(ctx, messageID)
}

func (s *gormChat) GetRecentChats(ctx context.Context, userID uint) ([]RecentChat, error) {
	var msgs []models.Message
	if err := s.db.WithContext(ctx).
		Where("sender_id = ? OR receiver_id = ?", userID, userID).
		Order("created_at desc, id desc").
		Find(&msgs).Error; err != nil {
		return nil, err
	}
	return latestPerCounterpart(userID, msgs), nil
}

// latestPerCounterpart expects msgs newest first.
func latestPerCounterpart(userID uint, msgs []models.Message) []RecentChat {
	seen := make(map[uint]struct{})
	out := make([]RecentChat, 0)
	for _, m := range msgs {
		other := m.Counterpart(userID)
		if _, ok := seen[other]; ok {
			continue
		}
		seen[other] = struct{}{}
		out = append(out, RecentChat{UserID: other, LastMessage: m})
	}
	return out
}

type gormNotifications struct {
	db *gorm.DB
}

func (s *gormNotifications) Create(ctx context.Context, n *models.Notification) error {
	return s.db.WithContext(ctx).Create(n).Error
}

func (s *gormNotifications) GetByUser(ctx context.Context, userID uint, limit int) ([]models.Notification, error) {
	q := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at desc, id desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []models.Notification
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (s *gormNotifications) MarkAsRead(ctx context.Context, id, userID uint) (*models.Notification, error) {
	var n models.Notification
	if err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&n).Error; err != nil {
		return nil, notFound(err)
	}
	if n.IsRead {
		return &n, nil
	}
	if err := s.db.WithContext(ctx).Model(&n).Update("is_read", true).Error; err != nil {
		return nil, err
	}
	n.IsRead = true
	return &n, nil
}

func (s *gormNotifications) MarkAllAsRead(ctx context.Context, userID uint) error {
	return s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Update("is_read", true).Error
}

func (s *gormNotifications) CountUnread(ctx context.Context, userID uint) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&n).Error
	return n, err
}
