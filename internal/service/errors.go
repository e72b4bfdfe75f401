package service

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrDuplicateEmail      = errors.New("email already registered")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrEmailNotVerified    = errors.New("email verification required")
	ErrAlreadyVerified     = errors.New("email already verified")
	ErrVerificationExpired = errors.New("verification window expired")
	ErrInvalidProof        = errors.New("invalid verification proof")
	ErrGoogleAuthDisabled  = errors.New("google auth is disabled")
	ErrNoLocalCredential   = errors.New("account has no local credential")
	ErrPasswordUnchanged   = errors.New("new password must differ from current password")
	ErrStorageDisabled     = errors.New("photo storage is not configured")
)

// ValidationError rejects malformed input before it reaches storage.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func validationErr(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// AccountLockedError refuses authentication outright until Until passes,
// regardless of whether the presented password is correct.
type AccountLockedError struct {
	Until time.Time
}

func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("account locked until %s", e.Until.Format(time.RFC3339))
}

// CooldownActiveError rejects a verification resend attempted too soon after
// the current window opened.
type CooldownActiveError struct {
	Remaining time.Duration
}

func (e *CooldownActiveError) Error() string {
	return fmt.Sprintf("verification resend available in %s", e.Remaining.Round(time.Second))
}

// WeakPasswordError carries every violated rule plus the strength tier the
// candidate scored anyway.
type WeakPasswordError struct {
	Violations []string
	Tier       StrengthTier
}

func (e *WeakPasswordError) Error() string {
	return fmt.Sprintf("password rejected: %d policy violations", len(e.Violations))
}

// StoreError marks a transient persistence failure so the HTTP layer can
// answer 503 instead of blaming the caller.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return fmt.Sprintf("store %s: %v", e.Op, e.Err) }
func (e *StoreError) Unwrap() error { return e.Err }

func storeErr(op string, err error) error {
	return &StoreError{Op: op, Err: err}
}
