package seo

import "errors"

var (
	// ErrNotConnected means the project has no stored OAuth token set.
	ErrNotConnected = errors.New("search console not connected")

	// ErrTaskPending means the upstream task is accepted but not finished.
	ErrTaskPending = errors.New("task still processing")

	// ErrPollTimeout means the bounded poll budget was exhausted. Distinct
	// from a generic failure so callers can advise "try again later".
	ErrPollTimeout = errors.New("timed out waiting for task result")

	// ErrNotFound means a store record is absent.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput means a required request field is missing or unusable.
	// Rejected before any upstream call is made.
	ErrInvalidInput = errors.New("invalid input")
)
