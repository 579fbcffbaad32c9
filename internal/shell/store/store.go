package store

import (
	"context"
	"time"

	"github.com/tapis-project/flexserv-deployer/internal/core/deploy"
)

// =============================================================================
// Records
// =============================================================================

// Deployment is one registry record. The remote platform remains the source
// of truth for resource status; the record tracks what this service
// provisioned and for whom.
type Deployment struct {
	// ID is the registry record id, typically a UUID.
	ID string

	// PodID and VolumeID are the derived platform resource identifiers.
	PodID    string
	VolumeID string

	// Tenant, User, Model, and Backend identify what was deployed.
	Tenant  string
	User    string
	Model   string
	Backend string

	// Image is the container image the pod runs.
	Image string

	// PodURL is the platform-assigned network URL, once known.
	PodURL string

	// Status is the last observed deployment status.
	Status deploy.Status

	// VolumeOrphaned marks a record whose pod was deleted but whose volume
	// deletion failed. Terminate retries clear it.
	VolumeOrphaned bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// =============================================================================
// Store Interface
// =============================================================================

// Store defines the persistence interface for the deployment registry.
type Store interface {
	CreateDeployment(ctx context.Context, deployment *Deployment) error
	GetDeployment(ctx context.Context, id string) (*Deployment, error)
	GetDeploymentByPodID(ctx context.Context, podID string) (*Deployment, error)
	UpdateDeployment(ctx context.Context, deployment *Deployment) error
	DeleteDeployment(ctx context.Context, id string) error
	ListDeployments(ctx context.Context, opts ListOptions) ([]Deployment, error)
	ListDeploymentsByUser(ctx context.Context, user string, opts ListOptions) ([]Deployment, error)

	// Lifecycle
	Close() error
}

// =============================================================================
// Options
// =============================================================================

// ListOptions defines pagination options.
type ListOptions struct {
	Limit  int
	Offset int
}

// DefaultListOptions returns default list options.
func DefaultListOptions() ListOptions {
	return ListOptions{
		Limit:  100,
		Offset: 0,
	}
}

// Normalize ensures list options have valid values.
func (o ListOptions) Normalize() ListOptions {
	if o.Limit <= 0 {
		o.Limit = 100
	}
	if o.Limit > 1000 {
		o.Limit = 1000
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}
