package domain

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")

	// ErrFetch marks a failed job list load (network or non-2xx).
	ErrFetch = errors.New("job list fetch failed")
	// ErrStatusFetch marks a failed detail fetch for one job.
	ErrStatusFetch = errors.New("job status fetch failed")
	// ErrTransport marks a push channel failure. It is observed, never returned to reconcilers.
	ErrTransport = errors.New("transport failure")
	// ErrSubmit marks a generation request the Job Service rejected.
	ErrSubmit = errors.New("job submission failed")
	// ErrValidation marks input rejected before any request is sent.
	ErrValidation = errors.New("invalid input")
)
