package domain

import "errors"

var (
	// ErrDuplicateSubmission is returned when a user who already has an
	// active submission tries to submit again.
	ErrDuplicateSubmission = errors.New("user already has an active submission")
	// ErrNothingToReset is returned when a reset targets a user with no
	// active submission.
	ErrNothingToReset = errors.New("no active submission to reset")
	// ErrNotFound indicates the referenced record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrValidation indicates a request was rejected before any store call.
	ErrValidation = errors.New("invalid request")
)
