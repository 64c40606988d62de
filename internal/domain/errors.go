package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for storage operations
var (
	// ErrNotConnected indicates a data operation was attempted without an active folder/session
	ErrNotConnected = errors.New("storage is not connected")

	// ErrUserCancelled indicates the user dismissed a folder picker or sign-in prompt.
	// Callers swallow it silently.
	ErrUserCancelled = errors.New("cancelled by user")

	// ErrPermission indicates the local folder handle lost its access grant
	ErrPermission = errors.New("permission to the catalog folder was denied")

	// ErrAuthFailed indicates the remote access token is invalid or expired
	ErrAuthFailed = errors.New("access token is invalid or expired, please sign in again")

	// ErrNotFound indicates the file is missing at its expected locator
	ErrNotFound = errors.New("file not found")

	// ErrOffline indicates the remote service is unreachable
	ErrOffline = errors.New("remote storage is unreachable")

	// ErrRateLimited indicates the remote service throttled the request
	ErrRateLimited = errors.New("remote storage rate limit exceeded")

	// ErrInvalidItem indicates an item failed validation before being persisted
	ErrInvalidItem = errors.New("invalid item")
)

// IsTransient reports whether err is a connectivity or throttling failure
// that may succeed if the caller tries again later.
func IsTransient(err error) bool {
	return errors.Is(err, ErrOffline) || errors.Is(err, ErrRateLimited)
}

// ItemError records the failure of one item inside a batch operation
type ItemError struct {
	ItemID string
	Op     string
	Err    error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.ItemID, e.Err)
}

func (e *ItemError) Unwrap() error { return e.Err }
