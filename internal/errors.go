package internal

import "errors"

// AppError is the error payload shape carried in API responses.
type AppError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *AppError) Error() string {
	return e.Message
}

func NewAppError(code int, msg string) *AppError {
	return &AppError{Code: code, Message: msg}
}

// Sentinel errors for service-layer flow control. Expected races (a session
// already finished by another device) are not errors at all; callers get a
// false return instead.
var (
	ErrInvalidDuration   = errors.New("duration_minutes must be between 1 and 240")
	ErrInvalidTransition = errors.New("invalid session state transition")
	ErrNotFound          = errors.New("record not found")
	ErrActiveConflict    = errors.New("user already has an active session")
	ErrUsernameTaken     = errors.New("username already registered")
	ErrInvalidToken      = errors.New("invalid or expired token")
)
