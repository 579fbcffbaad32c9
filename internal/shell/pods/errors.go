package pods

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// ErrAuthFailed means the platform rejected our credentials (401/403).
	ErrAuthFailed = errors.New("platform authentication failed")

	// ErrBadRequest means the platform rejected the request body (400).
	ErrBadRequest = errors.New("platform rejected request")

	// ErrNotFound means the addressed resource does not exist remotely (404).
	ErrNotFound = errors.New("resource not found")

	// ErrAlreadyExists means a resource with that id already exists (409).
	ErrAlreadyExists = errors.New("resource already exists")

	// ErrServer means the platform failed internally (5xx).
	ErrServer = errors.New("platform internal error")

	// ErrUnreachable means the platform could not be reached at all.
	ErrUnreachable = errors.New("platform unreachable")

	// ErrTimeout means a platform call timed out.
	ErrTimeout = errors.New("platform request timed out")
)

// APIError wraps a platform failure with the operation and resource context.
type APIError struct {
	Op         string // operation that failed, e.g. "CreatePod"
	Resource   string // "pod" or "volume"
	ID         string // resource id if applicable
	StatusCode int    // remote HTTP status, 0 for transport failures
	Message    string // remote message body
	Err        error  // sentinel classifying the failure
}

func (e *APIError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s %s %s: %s", e.Op, e.Resource, e.ID, e.Message)
	}
	return fmt.Sprintf("%s %s: %s", e.Op, e.Resource, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}
