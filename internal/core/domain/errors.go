package domain

import (
	"errors"
	"fmt"
)

// Queue error taxonomy. Callers match with errors.Is.
var (
	ErrNotFound          = errors.New("resource not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrConflict          = errors.New("concurrent update conflict")
	ErrRateLimited       = errors.New("rate limit exceeded")
	ErrValidation        = errors.New("validation failed")
)

// ErrNoWaitingPatients is returned by call-next on an empty queue.
var ErrNoWaitingPatients = fmt.Errorf("%w: no waiting patients", ErrInvalidTransition)

// Auth / OTP errors
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrOTPExpired   = fmt.Errorf("%w: otp expired", ErrValidation)
	ErrOTPInvalid   = fmt.Errorf("%w: otp invalid", ErrValidation)
	ErrOTPExhausted = fmt.Errorf("%w: too many otp attempts", ErrValidation)
)

// NotFoundf wraps ErrNotFound with a formatted detail.
func NotFoundf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// Validationf wraps ErrValidation with a formatted detail.
func Validationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// InvalidTransitionf wraps ErrInvalidTransition with a formatted detail.
func InvalidTransitionf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidTransition, fmt.Sprintf(format, args...))
}
