package deploy

import "strings"

// Status is the local view of a remote compute unit's lifecycle state.
type Status string

const (
	StatusRequested Status = "REQUESTED"
	StatusCreating  Status = "CREATING"
	StatusRunning   Status = "RUNNING"
	StatusStopped   Status = "STOPPED"
	StatusDeleting  Status = "DELETING"
	StatusError     Status = "ERROR"
	// StatusUnknown covers any remote status value we do not recognize.
	StatusUnknown Status = "UNKNOWN"
)

// ParseRemoteStatus maps a remote platform status string to a local Status.
// Unrecognized values map to StatusUnknown rather than failing.
func ParseRemoteStatus(remote string) Status {
	switch strings.ToUpper(strings.TrimSpace(remote)) {
	case "REQUESTED":
		return StatusRequested
	case "CREATING", "SPAWNER SETUP", "CREATING CONTAINER":
		return StatusCreating
	case "RUNNING", "AVAILABLE", "ON":
		return StatusRunning
	case "STOPPED", "OFF":
		return StatusStopped
	case "DELETING", "SHUTTING DOWN", "SHUTDOWN REQUESTED":
		return StatusDeleting
	case "ERROR":
		return StatusError
	}
	return StatusUnknown
}
