package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrDuplicateActiveOrder = errors.New("active order already exists for this debt position and order type")
	ErrInvalidSignature     = errors.New("signature does not recover to the claimed seller")
	ErrSyncInProgress       = errors.New("a sync pass is already running")
)

// ValidationError carries every rule an order payload violated, so callers
// can report all problems at once instead of the first.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return "order validation failed: " + strings.Join(e.Violations, "; ")
}

// ConflictError is returned when order admission collides with an existing
// ACTIVE order for the same (debt, order type) pair. It carries the existing
// order's id and expiry so the caller can decide to wait or cancel on-chain.
type ConflictError struct {
	ExistingID string
	ExpiresAt  time.Time
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("active order %s already exists (expires %s)",
		e.ExistingID, e.ExpiresAt.UTC().Format(time.RFC3339))
}

func (e *ConflictError) Unwrap() error { return ErrDuplicateActiveOrder }
