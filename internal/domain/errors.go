package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrForbidden           = errors.New("forbidden")
	ErrInvalidRequest      = errors.New("invalid request")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrReasonRequired      = errors.New("reason is required")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidTransition   = errors.New("invalid state transition")
	ErrClaimConflict       = errors.New("job already claimed")
	ErrDuplicateOperation  = errors.New("duplicate operation")
	ErrBatchInconsistent   = errors.New("batch counters inconsistent")
)
