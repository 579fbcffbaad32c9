package deployer

import (
	"errors"
	"fmt"

	"github.com/tapis-project/flexserv-deployer/internal/shell/pods"
)

// =============================================================================
// Error Taxonomy
// =============================================================================

var (
	// ErrValidation marks a malformed or incomplete deployment request.
	ErrValidation = errors.New("validation failed")

	// ErrConflict marks a resource that already exists at the derived ids.
	ErrConflict = errors.New("deployment already exists")

	// ErrNotFound marks an operation on a resource that does not exist remotely.
	ErrNotFound = errors.New("deployment not found")

	// ErrPlatform wraps a remote platform failure, opaque to the caller.
	ErrPlatform = errors.New("platform error")

	// ErrUnimplemented marks an operation not supported for the requested target.
	ErrUnimplemented = errors.New("operation not implemented for target")
)

// DeploymentError carries the failing operation and resource alongside the
// taxonomy sentinel and the underlying cause.
type DeploymentError struct {
	Op       string // operation that failed, e.g. "Create"
	Resource string // "pod", "volume", or "" for whole-deployment failures
	ID       string // resource id if applicable
	Message  string
	Err      error // taxonomy sentinel
	Cause    error // underlying platform error, may be nil
}

func (e *DeploymentError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s %s %s: %s", e.Op, e.Resource, e.ID, e.Message)
	}
	if e.Resource != "" {
		return fmt.Sprintf("%s %s: %s", e.Op, e.Resource, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// Unwrap exposes the sentinel and the underlying cause to errors.Is/As.
func (e *DeploymentError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Err, e.Cause}
	}
	return []error{e.Err}
}

// mapPlatformError classifies a pods client failure into the local taxonomy.
func mapPlatformError(op, resource, id string, err error) *DeploymentError {
	sentinel := ErrPlatform
	switch {
	case errors.Is(err, pods.ErrNotFound):
		sentinel = ErrNotFound
	case errors.Is(err, pods.ErrAlreadyExists):
		sentinel = ErrConflict
	}
	return &DeploymentError{
		Op:       op,
		Resource: resource,
		ID:       id,
		Message:  err.Error(),
		Err:      sentinel,
		Cause:    err,
	}
}
