// Package instance defines the server instance descriptor: what to deploy,
// for whom, and on which backend.
package instance

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"

	"github.com/tapis-project/flexserv-deployer/internal/core/backend"
	"github.com/tapis-project/flexserv-deployer/internal/core/base62"
)

// =============================================================================
// Validation Errors
// =============================================================================

var (
	ErrInvalidTenantURL = errors.New("invalid tenant URL")
	ErrEmptyUser        = errors.New("user must be non-empty")
	ErrEmptyModelID     = errors.New("model id must be non-empty")
	ErrMissingBackend   = errors.New("backend is required")
)

// =============================================================================
// Server Instance
// =============================================================================

// ServerInstance describes one model server deployment: the tenant it runs
// under, the user it belongs to, the model it serves, and the backend that
// serves it. The model id is treated as an opaque path-like string; its
// format is the caller's responsibility.
type ServerInstance struct {
	// TenantURL is the platform tenant base URL (e.g. "https://tacc.tapis.io").
	TenantURL string

	// User is the platform username owning the deployment.
	User string

	// ModelID is the model to deploy (e.g. "meta-llama/Llama-3-70b-hf").
	ModelID string

	// ModelRevision is the model branch, tag, or commit. Empty means the
	// repository default.
	ModelRevision string

	// HFToken is the Hugging Face token for gated or private models. Empty
	// means the running instance falls back to its own HF_TOKEN environment.
	HFToken string

	// DefaultEmbeddingModel is an optional embedding model served alongside
	// the default model.
	DefaultEmbeddingModel string

	// Backend selects the serving runtime.
	Backend backend.Backend
}

// Params describes the inputs for New. Optional fields may be left empty.
type Params struct {
	TenantURL             string
	User                  string
	ModelID               string
	ModelRevision         string
	HFToken               string
	DefaultEmbeddingModel string
	Backend               backend.Backend
}

// New validates params and returns a ServerInstance. The tenant URL is
// normalized: a bare host gains an https:// scheme.
func New(params Params) (*ServerInstance, error) {
	tenantURL := strings.TrimSpace(NormalizeTenantURL(params.TenantURL))
	if tenantURL == "" || !IsAbsoluteHTTPURL(tenantURL) {
		return nil, fmt.Errorf("%w: use e.g. https://tacc.tapis.io or tacc.tapis.io", ErrInvalidTenantURL)
	}
	user := strings.TrimSpace(params.User)
	if user == "" {
		return nil, ErrEmptyUser
	}
	modelID := strings.TrimSpace(params.ModelID)
	if modelID == "" {
		return nil, ErrEmptyModelID
	}
	if params.Backend.Kind() == "" {
		return nil, ErrMissingBackend
	}
	return &ServerInstance{
		TenantURL:             tenantURL,
		User:                  user,
		ModelID:               modelID,
		ModelRevision:         params.ModelRevision,
		HFToken:               params.HFToken,
		DefaultEmbeddingModel: params.DefaultEmbeddingModel,
		Backend:               params.Backend,
	}, nil
}

// ModelDirName returns the model id as a single directory name, with path
// separators replaced by underscores
// (e.g. "openai-community/gpt2" -> "openai-community_gpt2").
func (s *ServerInstance) ModelDirName() string {
	return strings.ReplaceAll(s.ModelID, "/", "_")
}

// DeploymentHash returns a stable 12-character identifier derived from the
// (user, tenant, model, backend) tuple: base62 of the sha256 content hash.
// Repeated calls with the same descriptor always return the same value.
func (s *ServerInstance) DeploymentHash() string {
	configString := fmt.Sprintf("%s@%s-%s-%s", s.User, s.TenantURL, s.ModelID, s.Backend.Name())
	digest := sha256.Sum256([]byte(configString))
	encoded := base62.Encode(digest[:])
	return encoded[:12]
}

// =============================================================================
// URL Helpers
// =============================================================================

// IsAbsoluteHTTPURL reports whether s is a non-empty absolute http(s) URL
// after trimming.
func IsAbsoluteHTTPURL(s string) bool {
	s = strings.TrimSpace(s)
	return (strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "http://")) && len(s) > 8
}

// NormalizeTenantURL trims the URL and prepends https:// when no scheme is
// present (e.g. "tacc.tapis.io" -> "https://tacc.tapis.io").
func NormalizeTenantURL(url string) string {
	s := strings.TrimSpace(url)
	if s == "" {
		return s
	}
	if strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "http://") {
		return s
	}
	return "https://" + s
}
