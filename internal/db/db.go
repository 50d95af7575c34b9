// Package db opens the Postgres handle behind the gorm store.
package db

import (
	"context"
	"fmt"
	"time"

	"arcadetalk/internal/models"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const connectAttempts = 10

// Connect opens Postgres and pings it, backing off between attempts while
// the database container comes up. It gives up early when ctx is done.
func Connect(ctx context.Context, dsn string) (*gorm.DB, error) {
	var lastErr error
	for attempt := 0; attempt < connectAttempts; attempt++ {
		gdb, err := open(ctx, dsn)
		if err == nil {
			return gdb, nil
		}
		lastErr = err
		wait := time.Duration(500+attempt*200) * time.Millisecond
		log.Warn().Err(err).Int("attempt", attempt+1).Dur("retry_in", wait).Msg("database not ready")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil, fmt.Errorf("connect postgres: %w", lastErr)
}

func open(ctx context.Context, dsn string) (*gorm.DB, error) {
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, err
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetConnMaxLifetime(time.Hour)
	return gdb, nil
}

// Migrate creates the user, message, reaction and notification tables.
func Migrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(&models.User{}, &models.Message{}, &models.MessageReaction{}, &models.Notification{})
}
