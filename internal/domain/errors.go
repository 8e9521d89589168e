package domain

import "errors"

var (
	ErrNotFound               = errors.New("not found")
	ErrConcurrentModification = errors.New("reservation was modified concurrently")
	ErrInvalidTransition      = errors.New("status transition not allowed")
	ErrReservationCanceled    = errors.New("reservation is canceled")
	ErrForbidden              = errors.New("forbidden")
	ErrPastDate               = errors.New("date is in the past")
	ErrDateTooFar             = errors.New("date is too far in the future")
	ErrRateLimited            = errors.New("too many requests")
	ErrInvalidInput           = errors.New("invalid input")
)
