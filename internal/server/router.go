package server

import (
	"net/http"

	"arcadetalk/internal/auth"
	"arcadetalk/internal/config"
	"arcadetalk/internal/metrics"
	"arcadetalk/internal/mw"
	"arcadetalk/internal/service"
	"arcadetalk/internal/store"
	"arcadetalk/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps are the collaborators the router wires into routes.
type Deps struct {
	Store      *store.Store
	Hub        *ws.Hub
	Dispatcher *ws.Dispatcher
	Users      *service.UserService
	Notes      *service.NotificationService
	Limiter    *mw.RateLimiter
}

// SetupRouter builds the gin engine: middleware, REST API and the websocket
// endpoint.
func SetupRouter(cfg config.Config, d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(metrics.GinMiddleware())
	r.Use(mw.CORS(cfg.Env))
	if d.Limiter != nil {
		r.Use(d.Limiter.Middleware())
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "connections": d.Hub.Online()})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/ws", ws.Serve(d.Hub, d.Dispatcher, d.Store.Users, cfg.JWTSecret))

	h := NewHandler(d.Users, d.Notes)
	api := r.Group("/api/v1")
	api.POST("/auth/register", h.Register)
	api.POST("/auth/login", h.Login)

	authed := api.Group("")
	authed.Use(auth.AuthMiddleware(cfg.JWTSecret, d.Store.Users))
	authed.GET("/me", h.Me)
	authed.GET("/notifications", h.ListNotifications)
	authed.POST("/notifications/read-all", h.MarkAllNotificationsRead)
	authed.POST("/notifications/:id/read", h.MarkNotificationRead)
	authed.POST("/users/transfer", h.Transfer)

	return r
}
