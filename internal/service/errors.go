package service

import (
	"errors"

	"flowsync/internal/domain"
	"flowsync/internal/repository"
)

// ErrNotFound is the repository sentinel re-exported so handlers depend on
// the service layer only.
var ErrNotFound = repository.ErrNotFound

// ErrInvalidOperation rejects an operation without mutating any state, e.g.
// deleting the current version or re-resolving a conflict differently.
var ErrInvalidOperation = errors.New("invalid operation")

// ConflictError carries a detected divergence up to the caller.
type ConflictError struct {
	Conflict *domain.Conflict
}

func (e *ConflictError) Error() string {
	return "conflict detected"
}
