package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// DefaultJWTSecret is only acceptable in the dev environment.
const DefaultJWTSecret = "dev-secret-change-me"

type Config struct {
	Port                  string
	DatabaseDSN           string
	JWTSecret             string
	Env                   string
	LogLevel              string
	AccessTokenTTLMinutes int
	RedisURL              string

	PresenceGraceSeconds int
	HeartbeatSeconds     int
	NotificationPageSize int
	HistoryLimit         int
	EventsPerSecond      int
	EventBurst           int

	HTTPRequestsPerSecond int
	HTTPBurst             int
}

func (c Config) PresenceGrace() time.Duration {
	return time.Duration(c.PresenceGraceSeconds) * time.Second
}

func (c Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatSeconds) * time.Second
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

// getenvInt falls back to def for unparsable or non-positive values.
func getenvInt(key string, def int) int {
	n, err := strconv.Atoi(getenv(key, strconv.Itoa(def)))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func Load() Config {
	_ = godotenv.Load()

	historyLimit, err := strconv.Atoi(getenv("HISTORY_LIMIT", "0"))
	if err != nil || historyLimit < 0 {
		historyLimit = 0
	}
	return Config{
		Port:                  getenv("APP_PORT", "8080"),
		DatabaseDSN:           getenv("DATABASE_DSN", "host=localhost user=postgres password=postgres dbname=arcadetalk port=5432 sslmode=disable TimeZone=UTC"),
		JWTSecret:             getenv("JWT_SECRET", DefaultJWTSecret),
		Env:                   getenv("APP_ENV", "dev"),
		LogLevel:              getenv("LOG_LEVEL", "info"),
		AccessTokenTTLMinutes: getenvInt("ACCESS_TOKEN_TTL_MINUTES", 15),
		RedisURL:              os.Getenv("REDIS_URL"),
		PresenceGraceSeconds:  getenvInt("PRESENCE_GRACE_SECONDS", 60),
		HeartbeatSeconds:      getenvInt("HEARTBEAT_SECONDS", 30),
		NotificationPageSize:  getenvInt("NOTIFICATION_PAGE_SIZE", 30),
		HistoryLimit:          historyLimit,
		EventsPerSecond:       getenvInt("WS_EVENTS_PER_SECOND", 20),
		EventBurst:            getenvInt("WS_EVENT_BURST", 40),
		HTTPRequestsPerSecond: getenvInt("HTTP_REQUESTS_PER_SECOND", 20),
		HTTPBurst:             getenvInt("HTTP_BURST", 40),
	}
}

// Validate rejects configurations that must not reach a running server.
func Validate(cfg Config) error {
	if cfg.Port == "" {
		return errors.New("config: empty port")
	}
	if cfg.DatabaseDSN == "" {
		return errors.New("config: empty database dsn")
	}
	if cfg.Env != "dev" && cfg.JWTSecret == DefaultJWTSecret {
		return errors.New("config: default jwt secret outside dev")
	}
	return nil
}
