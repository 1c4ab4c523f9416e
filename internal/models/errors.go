package models

import (
	"errors"
	"fmt"
)

// Pipeline error taxonomy. Sentinels are matched with errors.Is so wrapped
// context survives the trip through adapters and the orchestrator.
var (
	// ErrAuthRequired means the refresh token for a source is dead and the
	// pipeline cannot self-heal; an operator has to re-authorize.
	ErrAuthRequired = errors.New("authorization required")

	// ErrMalformedUpstream marks an unparseable feed row or response body.
	// Affected items are skipped and counted, never fatal to a batch.
	ErrMalformedUpstream = errors.New("malformed upstream response")

	// ErrResolutionFailed marks an affiliate-link or shortening failure for
	// a single offer. The offer is skipped, the batch continues.
	ErrResolutionFailed = errors.New("affiliate link resolution failed")
)

// TransientError wraps a timeout or 5xx from a source or channel. Callers
// may retry within their own policy.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient upstream failure in %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as a TransientError for the given operation.
func Transient(op string, err error) error {
	return &TransientError{Op: op, Err: err}
}

// IsTransient reports whether err is (or wraps) a TransientError.
func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}
