package engine

import (
	"errors"
	"fmt"
)

// ErrInvalidEvent rejects malformed events before any state is touched.
var ErrInvalidEvent = errors.New("invalid event")

// ClassifierError reports that the verdict source failed or timed out.
// The message is never treated as benign in that case: policy decides
// whether a review flag goes out, and the error is always surfaced to the
// caller so the platform can retry or queue the event.
type ClassifierError struct {
	Err error
}

func (e *ClassifierError) Error() string {
	return fmt.Sprintf("classifier failure: %v", e.Err)
}

func (e *ClassifierError) Unwrap() error { return e.Err }

// StorageUnavailableError reports that a state mutation could not commit,
// either because conflict retries were exhausted or the store failed
// outright. No actions are dispatched for the event.
type StorageUnavailableError struct {
	Op  string
	Err error
}

func (e *StorageUnavailableError) Error() string {
	return fmt.Sprintf("storage unavailable during %s: %v", e.Op, e.Err)
}

func (e *StorageUnavailableError) Unwrap() error { return e.Err }
