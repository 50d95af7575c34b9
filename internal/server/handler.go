package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"arcadetalk/internal/auth"
	"arcadetalk/internal/models"
	"arcadetalk/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Handler groups the REST handlers around the service layer.
type Handler struct {
	userSvc *service.UserService
	notes   *service.NotificationService
}

func NewHandler(userSvc *service.UserService, notes *service.NotificationService) *Handler {
	return &Handler{userSvc: userSvc, notes: notes}
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Register creates an account.
func (h *Handler) Register(c *gin.Context) {
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if len(req.Username) < 2 || len(req.Username) > 64 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid username"})
		return
	}
	if len(req.Password) < 4 || len(req.Password) > 128 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid password"})
		return
	}
	result, err := h.userSvc.Register(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrUsernameTaken) {
			c.JSON(http.StatusConflict, gin.H{"error": "username taken"})
			return
		}
		log.Error().Err(err).Str("username", req.Username).Msg("register")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create user"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": result.ID, "username": result.Username})
}

// Login issues the access token used by REST calls and the socket handshake.
func (h *Handler) Login(c *gin.Context) {
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	result, err := h.userSvc.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		log.Error().Err(err).Str("username", req.Username).Msg("login")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token": result.AccessToken,
		"user":         userJSON(&result.User),
	})
}

func userJSON(u *models.User) gin.H {
	return gin.H{
		"id":          u.ID,
		"username":    u.Username,
		"displayName": u.Name(),
		"avatar":      u.Avatar,
		"balance":     u.Balance,
		"isAdmin":     u.IsAdmin,
	}
}

// Me returns the caller's account.
func (h *Handler) Me(c *gin.Context) {
	v, ok := c.Get("user")
	u, ok2 := v.(models.User)
	if !ok || !ok2 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": userJSON(&u)})
}

// ListNotifications returns the newest page plus the unread count.
func (h *Handler) ListNotifications(c *gin.Context) {
	uid := auth.GetUserID(c)
	list, err := h.notes.GetByUser(c.Request.Context(), uid)
	if err != nil {
		h.fail(c, err, "failed to list notifications")
		return
	}
	unread, err := h.notes.UnreadCount(c.Request.Context(), uid)
	if err != nil {
		h.fail(c, err, "failed to list notifications")
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": list, "unread": unread})
}

func (h *Handler) MarkNotificationRead(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid notification id"})
		return
	}
	n, err := h.notes.MarkRead(c.Request.Context(), auth.GetUserID(c), uint(id))
	if err != nil {
		h.fail(c, err, "failed to mark notification read")
		return
	}
	c.JSON(http.StatusOK, gin.H{"notification": n})
}

func (h *Handler) MarkAllNotificationsRead(c *gin.Context) {
	if err := h.notes.MarkAllRead(c.Request.Context(), auth.GetUserID(c)); err != nil {
		h.fail(c, err, "failed to mark notifications read")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "All notifications marked as read"})
}

// Transfer moves coins from the caller to another user.
func (h *Handler) Transfer(c *gin.Context) {
	var req struct {
		ReceiverID uint  `json:"receiverId"`
		Amount     int64 `json:"amount"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	res, err := h.userSvc.Transfer(c.Request.Context(), auth.GetUserID(c), req.ReceiverID, req.Amount)
	if err != nil {
		h.fail(c, err, "transfer failed")
		return
	}
	c.JSON(http.StatusOK, res)
}

// fail maps service errors to status codes. Backend errors are logged and
// answered with fallback.
func (h *Handler) fail(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, service.ErrInvalidInput), errors.Is(err, service.ErrInsufficientFunds):
		c.JSON(http.StatusBadRequest, gin.H{"error": service.PublicMessage(err, fallback)})
	case errors.Is(err, service.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": service.PublicMessage(err, fallback)})
	case errors.Is(err, service.ErrNotificationNotFound), errors.Is(err, service.ErrReceiverNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": service.PublicMessage(err, fallback)})
	default:
		log.Error().Err(err).Str("path", c.FullPath()).Uint("user_id", auth.GetUserID(c)).Msg(fallback)
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}
