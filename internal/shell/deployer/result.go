package deployer

import (
	"github.com/tapis-project/flexserv-deployer/internal/core/deploy"
)

// Result is the typed outcome of a successful deployment operation.
type Result struct {
	// PodID addresses the compute unit for start/stop/terminate/monitor.
	PodID string `json:"pod_id"`

	// VolumeID addresses the attached storage volume.
	VolumeID string `json:"volume_id"`

	// PodURL is the URL the running instance is reachable at, when assigned.
	PodURL string `json:"pod_url,omitempty"`

	// User, Tenant and ModelID echo the descriptor the deployment was
	// created from. Empty on operations addressed by id alone.
	User    string `json:"user,omitempty"`
	Tenant  string `json:"tenant,omitempty"`
	ModelID string `json:"model_id,omitempty"`

	// Status is the last observed compute unit status.
	Status deploy.Status `json:"status,omitempty"`
}
