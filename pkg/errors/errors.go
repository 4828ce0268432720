package errors

import "fmt"

// ErrNotFound indicates a resource does not exist
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrValidation indicates a request failed validation before any state change
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// ErrInvalidStateTransition indicates an illegal status transition was requested
type ErrInvalidStateTransition struct {
	Entity string
	From   fmt.Stringer
	To     fmt.Stringer
}

func (e *ErrInvalidStateTransition) Error() string {
	return fmt.Sprintf("invalid transition for %s: %s -> %s", e.Entity, e.From, e.To)
}

// ErrVersionConflict indicates an optimistic concurrency check failed.
// Callers retry internally; it only surfaces after retries are exhausted.
type ErrVersionConflict struct {
	Resource string
	ID       string
}

func (e *ErrVersionConflict) Error() string {
	return fmt.Sprintf("concurrent update conflict on %s %s", e.Resource, e.ID)
}

// ErrUnauthorized indicates authentication failed
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	return e.Message
}

// ErrInsufficientStock indicates no combination of dealers can cover the
// required quantity for a SKU
type ErrInsufficientStock struct {
	SKU       string
	Required  int
	Available int
}

func (e *ErrInsufficientStock) Error() string {
	return fmt.Sprintf("insufficient quantity to fulfill %s: need %d, dealers hold %d", e.SKU, e.Required, e.Available)
}

// ErrThresholdNotMet indicates a dealer disable was requested below the
// violation threshold without an override flag
type ErrThresholdNotMet struct {
	DealerID  string
	Count     int64
	Threshold int
}

func (e *ErrThresholdNotMet) Error() string {
	return fmt.Sprintf("dealer %s has %d unresolved violations, threshold is %d", e.DealerID, e.Count, e.Threshold)
}
