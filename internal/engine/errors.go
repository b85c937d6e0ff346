package engine

import (
	"errors"
	"fmt"
)

// ErrStopped is returned by operations once the controller loop has exited.
var ErrStopped = errors.New("cart controller stopped")

// SyncErrorCode categorizes sync failures.
type SyncErrorCode string

const (
	// ErrCodeRemoteFailed indicates a mutation was rejected or never reached
	// the remote service.
	ErrCodeRemoteFailed SyncErrorCode = "REMOTE_FAILED"

	// ErrCodeHydrateFailed indicates the remote cart could not be fetched.
	ErrCodeHydrateFailed SyncErrorCode = "HYDRATE_FAILED"
)

// SyncError describes a failed remote confirmation. Its message is what
// lands in the cart state's Error field.
type SyncError struct {
	// Code identifies the error category.
	Code SyncErrorCode

	// Op is the controller operation whose remote call failed.
	Op Operation

	// ItemID identifies the affected item, empty for cart-wide operations.
	ItemID string

	// Err is the underlying remote error.
	Err error
}

// Error implements the error interface.
func (e *SyncError) Error() string {
	if e.ItemID != "" {
		return fmt.Sprintf("%s: %s %s: %v", e.Code, e.Op, e.ItemID, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Op, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// IsRemoteFailure returns true if err is a failed mutation confirmation.
// Uses errors.As to handle wrapped errors.
func IsRemoteFailure(err error) bool {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Code == ErrCodeRemoteFailed
	}
	return false
}

// IsHydrateFailure returns true if err is a failed remote cart fetch.
func IsHydrateFailure(err error) bool {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Code == ErrCodeHydrateFailed
	}
	return false
}
