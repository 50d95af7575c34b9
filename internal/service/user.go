package service

import (
	"context"
	"errors"
	"fmt"

	"arcadetalk/internal/auth"
	"arcadetalk/internal/models"
	"arcadetalk/internal/store"

	"github.com/rs/zerolog/log"
)

// UserService covers accounts and the in-app currency.
type UserService struct {
	users     store.Users
	notes     *NotificationService
	jwtSecret string
	ttl       int
}

func NewUserService(users store.Users, notes *NotificationService, jwtSecret string, accessTTLMinutes int) *UserService {
	return &UserService{users: users, notes: notes, jwtSecret: jwtSecret, ttl: accessTTLMinutes}
}

type RegisterResult struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
}

func (s *UserService) Register(ctx context.Context, username, password string) (*RegisterResult, error) {
	_, err := s.users.FindByUsername(ctx, username)
	if err == nil {
		return nil, ErrUsernameTaken
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("lookup username: %w", err)
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	user := models.User{Username: username, PasswordHash: hash}
	if err := s.users.Create(ctx, &user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return &RegisterResult{ID: user.ID, Username: user.Username}, nil
}

type LoginResult struct {
	AccessToken string      `json:"access_token"`
	User        models.User `json:"-"`
}

// Login checks the password and issues the token used for the socket
// handshake and the REST routes.
func (s *UserService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !auth.VerifyPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	at, err := auth.GenerateAccessToken(user.ID, s.jwtSecret, s.ttl)
	if err != nil {
		return nil, err
	}
	return &LoginResult{AccessToken: at, User: *user}, nil
}

type TransferResult struct {
	Balance  int64 `json:"balance"`
	Receiver uint  `json:"receiverId"`
	Amount   int64 `json:"amount"`
}

// Transfer moves coins between users, then records a transfer notification
// for the receiver and pushes balance_update to them. The transfer stands
// even when the notification cannot be stored.
func (s *UserService) Transfer(ctx context.Context, fromID, toID uint, amount int64) (*TransferResult, error) {
	if toID == 0 || amount <= 0 {
		return nil, InputError("Receiver ID and a positive amount are required")
	}
	if toID == fromID {
		return nil, InputError("Cannot transfer to yourself")
	}
	from, to, err := s.users.TransferFunds(ctx, fromID, toID, amount)
	switch {
	case errors.Is(err, store.ErrInsufficientFunds):
		return nil, ErrInsufficientFunds
	case errors.Is(err, store.ErrNotFound):
		return nil, ErrReceiverNotFound
	case err != nil:
		return nil, fmt.Errorf("transfer funds: %w", err)
	}
	if err := s.notes.NotifyTransfer(ctx, from, to, amount); err != nil {
		log.Error().Err(err).Uint("from_id", fromID).Uint("to_id", toID).Msg("transfer notification")
	}
	return &TransferResult{Balance: from.Balance, Receiver: to.ID, Amount: amount}, nil
}
