package service

import "errors"

// Sentinel errors carry text that is safe to return to clients as-is.
var (
	ErrUsernameTaken        = errors.New("username taken")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrInvalidInput         = errors.New("invalid input")
	ErrUnauthenticated      = errors.New("Authentication required")
	ErrReceiverNotFound     = errors.New("Receiver not found")
	ErrMessageNotFound      = errors.New("Message not found")
	ErrMessageUnsent        = errors.New("Message has been unsent")
	ErrNotificationNotFound = errors.New("Notification not found")
	ErrInsufficientFunds    = errors.New("Insufficient funds")
)

// InputError is a validation failure. It matches ErrInvalidInput.
type InputError string

func (e InputError) Error() string { return string(e) }

func (e InputError) Is(target error) bool { return target == ErrInvalidInput }

var public = []error{
	ErrUnauthenticated,
	ErrReceiverNotFound,
	ErrMessageNotFound,
	ErrMessageUnsent,
	ErrNotificationNotFound,
	ErrInsufficientFunds,
}

// PublicMessage returns the client-facing text for err, or fallback when
// err is a backend failure whose details stay in the logs.
func PublicMessage(err error, fallback string) string {
	var in InputError
	if errors.As(err, &in) {
		return string(in)
	}
	for _, p := range public {
		if errors.Is(err, p) {
			return p.Error()
		}
	}
	return fallback
}
