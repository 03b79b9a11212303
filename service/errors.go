package service

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("submission not found")
	ErrInvalidSubmission = errors.New("submission is missing required fields")
	ErrAlreadyTerminal   = errors.New("submission is no longer pending")
	ErrInFlight          = errors.New("review already in progress for submission")
	ErrCancelled         = errors.New("review cancelled by operator")
	ErrBackendRejected   = errors.New("verification backend rejected review")
	ErrPartialCompletion = errors.New("partial completion")
	ErrRevisionConflict  = errors.New("submission revision changed")
	ErrInvalidInput      = errors.New("invalid input")
)

// BackendError is returned when the verification backend does not
// confirm a review. Code is zero when no HTTP response was received.
type BackendError struct {
	Code int
	Body string
	Err  error
}

func (e *BackendError) Error() string {
	switch {
	case e.Code != 0 && e.Err != nil:
		return fmt.Sprintf("verification backend returned %d with unreadable body %q: %v", e.Code, e.Body, e.Err)
	case e.Code != 0:
		return fmt.Sprintf("verification backend returned %d: %s", e.Code, e.Body)
	case e.Err != nil:
		return fmt.Sprintf("verification backend call failed: %v", e.Err)
	default:
		return "verification backend call failed"
	}
}

func (e *BackendError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrBackendRejected, e.Err}
	}
	return []error{ErrBackendRejected}
}

// PartialError means the backend recorded an outcome that the document
// store does not reflect yet.
type PartialError struct {
	SubmissionID string
	Action       string
	Err          error
}

func (e *PartialError) Error() string {
	return fmt.Sprintf("partial completion: backend accepted %s for %s but store update failed: %v",
		e.Action, e.SubmissionID, e.Err)
}

func (e *PartialError) Unwrap() []error {
	return []error{ErrPartialCompletion, e.Err}
}
