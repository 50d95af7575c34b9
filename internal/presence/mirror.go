package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	presenceKeyPrefix = "presence:"
	onlineSetKey      = "online_users"
)

// Snapshot is the presence state published outside the process.
type Snapshot struct {
	UserID     uint      `json:"userId"`
	Username   string    `json:"username"`
	Status     string    `json:"status"`
	IsAdmin    bool      `json:"isAdmin"`
	LastActive time.Time `json:"lastActive"`
}

// Mirror receives every presence write so other tooling can read who is
// online without asking this process.
type Mirror interface {
	Publish(ctx context.Context, s Snapshot) error
	Remove(ctx context.Context, userID uint) error
}

type NopMirror struct{}

func (NopMirror) Publish(context.Context, Snapshot) error { return nil }
func (NopMirror) Remove(context.Context, uint) error      { return nil }

// RedisMirror keeps presence:<id> keys with a TTL plus the online_users set.
type RedisMirror struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisMirror parses a redis:// URL and pings the server.
func NewRedisMirror(ctx context.Context, url string, ttl time.Duration) (*RedisMirror, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisMirror{client: client, ttl: ttl}, nil
}

func (r *RedisMirror) Publish(ctx context.Context, s Snapshot) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal presence: %w", err)
	}
	id := strconv.FormatUint(uint64(s.UserID), 10)
	pipe := r.client.Pipeline()
	pipe.Set(ctx, presenceKeyPrefix+id, data, r.ttl)
	pipe.SAdd(ctx, onlineSetKey, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish presence: %w", err)
	}
	return nil
}

func (r *RedisMirror) Remove(ctx context.Context, userID uint) error {
	id := strconv.FormatUint(uint64(userID), 10)
	pipe := r.client.Pipeline()
	pipe.Del(ctx, presenceKeyPrefix+id)
	pipe.SRem(ctx, onlineSetKey, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("remove presence: %w", err)
	}
	return nil
}

// Get reads one mirrored snapshot; redis.Nil means the user is not online.
func (r *RedisMirror) Get(ctx context.Context, userID uint) (*Snapshot, error) {
	data, err := r.client.Get(ctx, presenceKeyPrefix+strconv.FormatUint(uint64(userID), 10)).Bytes()
	if err != nil {
		return nil, err
	}
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal presence: %w", err)
	}
	return &s, nil
}

func (r *RedisMirror) Close() error {
	return r.client.Close()
}
