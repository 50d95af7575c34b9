package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"arcadetalk/internal/config"
	"arcadetalk/internal/db"
	clog "arcadetalk/internal/log"
	"arcadetalk/internal/mw"
	"arcadetalk/internal/presence"
	"arcadetalk/internal/server"
	"arcadetalk/internal/service"
	"arcadetalk/internal/store"
	"arcadetalk/internal/ws"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

func main() {
	cfg := config.Load()
	clog.Init(cfg.Env, cfg.LogLevel)
	if err := config.Validate(cfg); err != nil {
		log.Fatal().Err(err).Msg("config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st := openStore(ctx, cfg)

	var mirror presence.Mirror = presence.NopMirror{}
	if cfg.RedisURL != "" {
		// The snapshot outlives a missed heartbeat or two before redis drops it.
		rm, err := presence.NewRedisMirror(ctx, cfg.RedisURL, cfg.PresenceGrace()+2*cfg.HeartbeatInterval())
		if err != nil {
			log.Fatal().Err(err).Msg("redis connect")
		}
		defer rm.Close()
		mirror = rm
	}

	hub := ws.NewHub()
	pm := presence.NewManager(st.Users, hub, mirror, presence.Config{
		Grace:     cfg.PresenceGrace(),
		Heartbeat: cfg.HeartbeatInterval(),
	})
	notes := service.NewNotificationService(st.Notifications, hub, cfg.NotificationPageSize)
	chat := service.NewChatService(st, notes, hub, pm, cfg.HistoryLimit)
	users := service.NewUserService(st.Users, notes, cfg.JWTSecret, cfg.AccessTokenTTLMinutes)
	limiter := mw.NewRateLimiter(rate.Limit(cfg.HTTPRequestsPerSecond), cfg.HTTPBurst, 2*time.Minute)
	defer limiter.Stop()

	r := server.SetupRouter(cfg, server.Deps{
		Store:      st,
		Hub:        hub,
		Dispatcher: ws.NewDispatcher(hub, pm, chat, notes, cfg.EventsPerSecond, cfg.EventBurst),
		Users:      users,
		Notes:      notes,
		Limiter:    limiter,
	})

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server run")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}
	pm.Close()
}

// openStore picks the in-memory store for the "memory" DSN and Postgres
// otherwise.
func openStore(ctx context.Context, cfg config.Config) *store.Store {
	if cfg.DatabaseDSN == "memory" {
		log.Warn().Msg("using in-memory store; data is lost on exit")
		return store.NewMemory()
	}
	gdb, err := db.Connect(ctx, cfg.DatabaseDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	if err := db.Migrate(gdb); err != nil {
		log.Fatal().Err(err).Msg("db migrate")
	}
	return store.NewGorm(gdb)
}
