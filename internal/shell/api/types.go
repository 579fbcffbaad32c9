package api

import "time"

// =============================================================================
// Request Types
// =============================================================================

// CreateDeploymentRequest is the request body for creating a deployment.
type CreateDeploymentRequest struct {
	// DeploymentID optionally names the deployment explicitly. When empty the
	// pod and volume ids derive from the (user, tenant, model, backend) hash,
	// which limits each user to one deployment per model.
	DeploymentID string `json:"deployment_id,omitempty"`

	// GenerateID requests a server-generated UUID deployment id, allowing
	// multiple deployments of the same model for the same user.
	GenerateID bool `json:"generate_id,omitempty"`

	TenantURL             string `json:"tenant_url"`
	User                  string `json:"user"`
	ModelID               string `json:"model_id"`
	Backend               string `json:"backend"`
	ModelRevision         string `json:"model_revision,omitempty"`
	HFToken               string `json:"hf_token,omitempty"`
	DefaultEmbeddingModel string `json:"default_embedding_model,omitempty"`
	Image                 string `json:"image,omitempty"`
	VolumeSizeMB          int    `json:"volume_size_mb,omitempty"`
	CPURequest            int    `json:"cpu_request,omitempty"`
	CPULimit              int    `json:"cpu_limit,omitempty"`
	MemRequestMB          int    `json:"mem_request_mb,omitempty"`
	MemLimitMB            int    `json:"mem_limit_mb,omitempty"`
	GPUs                  int    `json:"gpus,omitempty"`
}

// =============================================================================
// Response Types
// =============================================================================

// DeploymentResponse is the response for deployment operations.
type DeploymentResponse struct {
	ID        string    `json:"id"`
	PodID     string    `json:"pod_id"`
	VolumeID  string    `json:"volume_id"`
	Tenant    string    `json:"tenant"`
	User      string    `json:"user"`
	Model     string    `json:"model"`
	Backend   string    `json:"backend"`
	Image     string    `json:"image,omitempty"`
	PodURL    string    `json:"pod_url,omitempty"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ListDeploymentsResponse is the response for listing deployments.
type ListDeploymentsResponse struct {
	Deployments []DeploymentResponse `json:"deployments"`
	Count       int                  `json:"count"`
}

// StatusResponse is the response for deployment status queries.
type StatusResponse struct {
	ID     string `json:"id"`
	PodID  string `json:"pod_id"`
	Status string `json:"status"`
	PodURL string `json:"pod_url,omitempty"`
}

// BackendsResponse lists the available serving backends.
type BackendsResponse struct {
	Backends []string `json:"backends"`
}

// HealthResponse is the response for health checks.
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadyResponse is the response for readiness checks.
type ReadyResponse struct {
	Ready  bool   `json:"ready"`
	Reason string `json:"reason,omitempty"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
