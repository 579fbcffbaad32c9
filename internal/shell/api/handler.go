// Package api provides HTTP handlers for the deployment service API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/tapis-project/flexserv-deployer/internal/core/backend"
	"github.com/tapis-project/flexserv-deployer/internal/core/deploy"
	"github.com/tapis-project/flexserv-deployer/internal/core/instance"
	"github.com/tapis-project/flexserv-deployer/internal/shell/deployer"
	"github.com/tapis-project/flexserv-deployer/internal/shell/store"
)

// =============================================================================
// Handler
// =============================================================================

// Deployer is the orchestration surface the handler drives.
type Deployer interface {
	Create(ctx context.Context, server *instance.ServerInstance, opts deploy.Options) (*deployer.Result, error)
	Start(ctx context.Context, podID string) (*deployer.Result, error)
	Stop(ctx context.Context, podID string) (*deployer.Result, error)
	Terminate(ctx context.Context, podID, volumeID string) (*deployer.Result, error)
	Monitor(ctx context.Context, podID string) (*deployer.Result, error)
}

// Handler provides HTTP handlers for the API.
type Handler struct {
	store    store.Store
	deployer Deployer
	logger   *slog.Logger
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store, d Deployer, l *slog.Logger) *Handler {
	if l == nil {
		l = slog.Default()
	}
	return &Handler{
		store:    s,
		deployer: d,
		logger:   l,
	}
}

// Routes returns the router with all routes configured.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.jsonContentType)
	r.Use(h.requestIDHeader)

	// Health endpoints
	r.Get("/health", h.handleHealth)
	r.Get("/ready", h.handleReady)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/backends", h.handleListBackends)

		r.Route("/deployments", func(r chi.Router) {
			r.Post("/", h.handleCreateDeployment)
			r.Get("/", h.handleListDeployments)
			r.Get("/{id}", h.handleGetDeployment)
			r.Delete("/{id}", h.handleDeleteDeployment)
			r.Post("/{id}/start", h.handleStartDeployment)
			r.Post("/{id}/stop", h.handleStopDeployment)
			r.Get("/{id}/status", h.handleDeploymentStatus)
		})
	})

	return r
}

// =============================================================================
// Middleware
// =============================================================================

// jsonContentType sets Content-Type header to application/json.
func (h *Handler) jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// requestIDHeader copies the request ID to the response header.
func (h *Handler) requestIDHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reqID := middleware.GetReqID(r.Context()); reqID != "" {
			w.Header().Set("X-Request-ID", reqID)
		}
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// Health Handlers
// =============================================================================

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	// The registry must be reachable before we accept traffic.
	if _, err := h.store.ListDeployments(r.Context(), store.ListOptions{Limit: 1}); err != nil {
		h.writeJSON(w, http.StatusServiceUnavailable, ReadyResponse{
			Ready:  false,
			Reason: "registry unavailable",
		})
		return
	}
	h.writeJSON(w, http.StatusOK, ReadyResponse{Ready: true})
}

// =============================================================================
// Backend Handlers
// =============================================================================

func (h *Handler) handleListBackends(w http.ResponseWriter, r *http.Request) {
	kinds := backend.Kinds()
	names := make([]string, 0, len(kinds))
	for _, k := range kinds {
		names = append(names, string(k))
	}
	h.writeJSON(w, http.StatusOK, BackendsResponse{Backends: names})
}

// =============================================================================
// Deployment Handlers
// =============================================================================

func (h *Handler) handleCreateDeployment(w http.ResponseWriter, r *http.Request) {
	var req CreateDeploymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", "validation_error")
		return
	}

	kind, err := backend.ParseKind(req.Backend)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "unknown backend: "+req.Backend, "validation_error")
		return
	}

	server, err := instance.New(instance.Params{
		TenantURL:             req.TenantURL,
		User:                  req.User,
		ModelID:               req.ModelID,
		ModelRevision:         req.ModelRevision,
		HFToken:               req.HFToken,
		DefaultEmbeddingModel: req.DefaultEmbeddingModel,
		Backend:               backend.Default(kind),
	})
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error(), "validation_error")
		return
	}

	// An empty deployment id keeps the hash-derived pair, so repeat creates
	// for the same user+model hit the same resources and conflict.
	deploymentID := req.DeploymentID
	if deploymentID == "" && req.GenerateID {
		deploymentID = uuid.NewString()
	}
	opts := deploy.Options{
		DeploymentID: deploymentID,
		VolumeSizeMB: req.VolumeSizeMB,
		Image:        req.Image,
		CPURequest:   req.CPURequest,
		CPULimit:     req.CPULimit,
		MemRequestMB: req.MemRequestMB,
		MemLimitMB:   req.MemLimitMB,
		GPUs:         req.GPUs,
	}

	result, err := h.deployer.Create(r.Context(), server, opts)
	if err != nil {
		h.writeDeployerError(w, err)
		return
	}

	// Hash-addressed deployments have no caller-visible id of their own; the
	// registry record takes the derived suffix shared by the pod and volume.
	id := deploymentID
	if id == "" {
		id = strings.TrimPrefix(result.PodID, "p")
	}

	now := time.Now().UTC()
	record := &store.Deployment{
		ID:        id,
		PodID:     result.PodID,
		VolumeID:  result.VolumeID,
		Tenant:    server.TenantURL,
		User:      server.User,
		Model:     server.ModelID,
		Backend:   server.Backend.Name(),
		Image:     opts.ImageOrDefault(),
		PodURL:    result.PodURL,
		Status:    result.Status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.store.CreateDeployment(r.Context(), record); err != nil {
		// The platform resources exist; surface the registry failure rather
		// than leaving the caller guessing.
		h.logger.Error("failed to record deployment", "id", id, "pod_id", result.PodID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "deployment created but not recorded", "internal_error")
		return
	}

	h.writeJSON(w, http.StatusCreated, deploymentToResponse(record))
}

func (h *Handler) handleListDeployments(w http.ResponseWriter, r *http.Request) {
	opts := listOptionsFromQuery(r)

	var (
		deployments []store.Deployment
		err         error
	)
	if user := r.URL.Query().Get("user"); user != "" {
		deployments, err = h.store.ListDeploymentsByUser(r.Context(), user, opts)
	} else {
		deployments, err = h.store.ListDeployments(r.Context(), opts)
	}
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to list deployments", "internal_error")
		return
	}

	resp := ListDeploymentsResponse{
		Deployments: make([]DeploymentResponse, 0, len(deployments)),
		Count:       len(deployments),
	}
	for i := range deployments {
		resp.Deployments = append(resp.Deployments, deploymentToResponse(&deployments[i]))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetDeployment(w http.ResponseWriter, r *http.Request) {
	record, ok := h.lookupDeployment(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, deploymentToResponse(record))
}

func (h *Handler) handleStartDeployment(w http.ResponseWriter, r *http.Request) {
	record, ok := h.lookupDeployment(w, r)
	if !ok {
		return
	}

	result, err := h.deployer.Start(r.Context(), record.PodID)
	if err != nil {
		h.writeDeployerError(w, err)
		return
	}

	h.updateRecord(r.Context(), record, result)
	h.writeJSON(w, http.StatusOK, deploymentToResponse(record))
}

func (h *Handler) handleStopDeployment(w http.ResponseWriter, r *http.Request) {
	record, ok := h.lookupDeployment(w, r)
	if !ok {
		return
	}

	result, err := h.deployer.Stop(r.Context(), record.PodID)
	if err != nil {
		h.writeDeployerError(w, err)
		return
	}

	h.updateRecord(r.Context(), record, result)
	h.writeJSON(w, http.StatusOK, deploymentToResponse(record))
}

func (h *Handler) handleDeleteDeployment(w http.ResponseWriter, r *http.Request) {
	record, ok := h.lookupDeployment(w, r)
	if !ok {
		return
	}

	if _, err := h.deployer.Terminate(r.Context(), record.PodID, record.VolumeID); err != nil {
		// A vanished remote pair still clears the local record; other
		// failures keep it so the caller can retry.
		if !errors.Is(err, deployer.ErrNotFound) {
			h.markOrphanedIfVolumeFailure(r.Context(), record, err)
			h.writeDeployerError(w, err)
			return
		}
	}

	if err := h.store.DeleteDeployment(r.Context(), record.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
		h.writeError(w, http.StatusInternalServerError, "failed to delete deployment record", "internal_error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDeploymentStatus(w http.ResponseWriter, r *http.Request) {
	record, ok := h.lookupDeployment(w, r)
	if !ok {
		return
	}

	result, err := h.deployer.Monitor(r.Context(), record.PodID)
	if err != nil {
		h.writeDeployerError(w, err)
		return
	}

	h.updateRecord(r.Context(), record, result)
	h.writeJSON(w, http.StatusOK, StatusResponse{
		ID:     record.ID,
		PodID:  record.PodID,
		Status: string(result.Status),
		PodURL: result.PodURL,
	})
}

// =============================================================================
// Helpers
// =============================================================================

// lookupDeployment resolves the {id} path parameter to a registry record,
// writing the error response itself on failure.
func (h *Handler) lookupDeployment(w http.ResponseWriter, r *http.Request) (*store.Deployment, bool) {
	id := chi.URLParam(r, "id")
	record, err := h.store.GetDeployment(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "deployment not found", "deployment_not_found")
			return nil, false
		}
		h.writeError(w, http.StatusInternalServerError, "failed to get deployment", "internal_error")
		return nil, false
	}
	return record, true
}

// updateRecord persists the status and URL observed by an operation. Failures
// are logged only; the operation itself already succeeded.
func (h *Handler) updateRecord(ctx context.Context, record *store.Deployment, result *deployer.Result) {
	record.Status = result.Status
	if result.PodURL != "" {
		record.PodURL = result.PodURL
	}
	record.UpdatedAt = time.Now().UTC()
	if err := h.store.UpdateDeployment(ctx, record); err != nil {
		h.logger.Warn("failed to update deployment record", "id", record.ID, "error", err)
	}
}

// markOrphanedIfVolumeFailure flags the record when terminate deleted the pod
// but failed on the volume, so a later retry can finish the cleanup.
func (h *Handler) markOrphanedIfVolumeFailure(ctx context.Context, record *store.Deployment, err error) {
	var depErr *deployer.DeploymentError
	if !errors.As(err, &depErr) || depErr.Resource != "volume" {
		return
	}
	record.VolumeOrphaned = true
	record.UpdatedAt = time.Now().UTC()
	if updateErr := h.store.UpdateDeployment(ctx, record); updateErr != nil {
		h.logger.Warn("failed to flag orphaned volume", "id", record.ID, "error", updateErr)
	}
}

func listOptionsFromQuery(r *http.Request) store.ListOptions {
	opts := store.DefaultListOptions()
	if limit := r.URL.Query().Get("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil {
			opts.Limit = n
		}
	}
	if offset := r.URL.Query().Get("offset"); offset != "" {
		if n, err := strconv.Atoi(offset); err == nil {
			opts.Offset = n
		}
	}
	return opts.Normalize()
}

func deploymentToResponse(d *store.Deployment) DeploymentResponse {
	return DeploymentResponse{
		ID:        d.ID,
		PodID:     d.PodID,
		VolumeID:  d.VolumeID,
		Tenant:    d.Tenant,
		User:      d.User,
		Model:     d.Model,
		Backend:   d.Backend,
		Image:     d.Image,
		PodURL:    d.PodURL,
		Status:    string(d.Status),
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

// writeDeployerError maps the orchestration error taxonomy to HTTP statuses.
func (h *Handler) writeDeployerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, deployer.ErrValidation):
		h.writeError(w, http.StatusBadRequest, err.Error(), "validation_error")
	case errors.Is(err, deployer.ErrNotFound):
		h.writeError(w, http.StatusNotFound, err.Error(), "deployment_not_found")
	case errors.Is(err, deployer.ErrConflict):
		h.writeError(w, http.StatusConflict, err.Error(), "deployment_conflict")
	case errors.Is(err, deployer.ErrUnimplemented):
		h.writeError(w, http.StatusNotImplemented, err.Error(), "not_implemented")
	case errors.Is(err, deployer.ErrPlatform):
		h.writeError(w, http.StatusBadGateway, err.Error(), "platform_error")
	default:
		h.writeError(w, http.StatusInternalServerError, err.Error(), "internal_error")
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode JSON", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message, code string) {
	h.writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
