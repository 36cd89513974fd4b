package errors

import "fmt"

const (
	ErrNotFound         = "NOT_FOUND"
	ErrConflict         = "CONFLICT"
	ErrCapacityExceeded = "CAPACITY_EXCEEDED"
	ErrAcceptanceLocked = "ACCEPTANCE_LOCKED"
	ErrUnauthorized     = "UNAUTHORIZED"
	ErrForbidden        = "FORBIDDEN"
	ErrValidation       = "VALIDATION"
	ErrUnavailable      = "UNAVAILABLE"
	ErrInternal         = "INTERNAL"
)

type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// --- Generic ---

func NewNotFound(entity, id string) *DomainError {
	return &DomainError{Code: ErrNotFound, Message: fmt.Sprintf("%s with id %s not found", entity, id)}
}

func NewConflict(msg string) *DomainError {
	return &DomainError{Code: ErrConflict, Message: msg}
}

func NewUnauthorized(msg string) *DomainError {
	return &DomainError{Code: ErrUnauthorized, Message: msg}
}

func NewForbidden(msg string) *DomainError {
	return &DomainError{Code: ErrForbidden, Message: msg}
}

func NewValidation(msg string) *DomainError {
	return &DomainError{Code: ErrValidation, Message: msg}
}

func NewUnavailable(msg string, err error) *DomainError {
	return &DomainError{Code: ErrUnavailable, Message: msg, Err: err}
}

func NewInternal(msg string, err error) *DomainError {
	return &DomainError{Code: ErrInternal, Message: msg, Err: err}
}

// --- Order ---

func OrderNotFound(id string) *DomainError {
	return NewNotFound("order", id)
}

// OrderConflict is the stale-expectedStatus outcome of a transition. Always
// recoverable: the caller re-fetches and re-decides.
func OrderConflict(id, expected, actual string) *DomainError {
	return &DomainError{
		Code:    ErrConflict,
		Message: fmt.Sprintf("order %s is %s, expected %s", id, actual, expected),
	}
}

func OrderNotOwned() *DomainError {
	return NewForbidden("order belongs to another party")
}

// OrderLocked means the order exists and is still waiting, but its acceptance
// lockout has not elapsed yet.
func OrderLocked(id string) *DomainError {
	return &DomainError{
		Code:    ErrAcceptanceLocked,
		Message: fmt.Sprintf("order %s is not open for acceptance yet", id),
	}
}

// --- Courier ---

func CourierNotFound(id string) *DomainError {
	return NewNotFound("courier", id)
}

func CourierBlocked(id string) *DomainError {
	return NewForbidden(fmt.Sprintf("courier %s is blocked from accepting orders", id))
}

func CourierOffline(id string) *DomainError {
	return &DomainError{
		Code:    ErrAcceptanceLocked,
		Message: fmt.Sprintf("courier %s has no live heartbeat", id),
	}
}

func PackageLimitExceeded(limit, held, requested int) *DomainError {
	return &DomainError{
		Code:    ErrCapacityExceeded,
		Message: fmt.Sprintf("package limit %d would be exceeded: holding %d, requested %d", limit, held, requested),
	}
}
