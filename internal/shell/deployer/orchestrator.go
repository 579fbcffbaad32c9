// Package deployer drives the lifecycle of model-serving instances on the
// remote pods platform: create, start, stop, terminate, monitor. The remote
// platform is the sole source of truth for resource existence and status; the
// orchestrator keeps no state between calls.
package deployer

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/tapis-project/flexserv-deployer/internal/core/backend"
	"github.com/tapis-project/flexserv-deployer/internal/core/deploy"
	"github.com/tapis-project/flexserv-deployer/internal/core/instance"
	"github.com/tapis-project/flexserv-deployer/internal/shell/pods"
)

// Instance filesystem and network conventions, fixed by the serving image.
const (
	modelRepoPath = "/app/models"
	servingPort   = 8000
)

// Credentials are the fallback secrets applied when the descriptor or options
// do not carry their own. Resolved by the caller (typically from service
// configuration); the orchestrator never reads process environment itself.
type Credentials struct {
	// Secret is prepended to each instance access token.
	Secret string
	// HFToken is the fallback Hugging Face token for gated models.
	HFToken string
}

// =============================================================================
// Orchestrator
// =============================================================================

// Orchestrator sequences remote platform calls for pod-based deployments,
// with compensating cleanup on partial create failure. Operations on distinct
// id pairs are fully independent; races on the same pair are resolved by the
// platform's own conflict handling.
type Orchestrator struct {
	client pods.Client
	creds  Credentials
	logger *slog.Logger
}

// NewOrchestrator creates an orchestrator around a platform client.
func NewOrchestrator(client pods.Client, creds Credentials, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		client: client,
		creds:  creds,
		logger: logger,
	}
}

// AccessToken returns the bearer credential a deployed instance expects: the
// model id with path separators replaced by underscores, prefixed by the
// shared secret when one is configured.
func AccessToken(secret, modelID string) string {
	return secret + replaceSlashes(modelID)
}

func replaceSlashes(s string) string {
	out := []byte(s)
	for i := range out {
		if out[i] == '/' {
			out[i] = '_'
		}
	}
	return string(out)
}

// =============================================================================
// Create
// =============================================================================

// Create provisions a new deployment: storage volume first, then the compute
// unit referencing it. Creation is not idempotent — if either resource
// already exists at the derived ids, Create fails with ErrConflict. When pod
// creation fails after the volume was created, the volume is deleted
// best-effort and the original failure is returned.
func (o *Orchestrator) Create(ctx context.Context, server *instance.ServerInstance, opts deploy.Options) (*Result, error) {
	podID, volumeID := deploy.DeriveIDs(opts, server)

	o.logger.Info("creating deployment",
		"pod_id", podID,
		"volume_id", volumeID,
		"user", server.User,
		"model", server.ModelID,
		"backend", server.Backend.Name(),
	)

	if err := o.checkAvailable(ctx, podID, volumeID); err != nil {
		return nil, err
	}

	// Volume first; the pod references it.
	newVolume := pods.NewVolume{
		VolumeID:    volumeID,
		Description: "Volume for " + server.User + "@" + server.ModelID,
		SizeLimit:   opts.VolumeSizeOrDefault(),
	}
	if _, err := o.client.CreateVolume(ctx, newVolume); err != nil {
		return nil, mapPlatformError("Create", "volume", volumeID, err)
	}
	o.logger.Debug("created volume", "volume_id", volumeID, "size_mb", newVolume.SizeLimit)

	newPod := o.buildPodSpec(podID, volumeID, server, opts)

	pod, err := o.client.CreatePod(ctx, newPod)
	if err != nil {
		// Compensate: remove the volume we just created, keep the original
		// failure as the returned error.
		o.logger.Error("pod creation failed, deleting volume", "pod_id", podID, "volume_id", volumeID, "error", err)
		if cleanupErr := o.client.DeleteVolume(ctx, volumeID); cleanupErr != nil {
			o.logger.Warn("compensating volume delete failed", "volume_id", volumeID, "error", cleanupErr)
		}
		return nil, mapPlatformError("Create", "pod", podID, err)
	}

	o.logger.Info("deployment created", "pod_id", podID, "volume_id", volumeID, "url", pod.URL())

	return &Result{
		PodID:    podID,
		VolumeID: volumeID,
		PodURL:   pod.URL(),
		User:     server.User,
		Tenant:   server.TenantURL,
		ModelID:  server.ModelID,
		Status:   deploy.ParseRemoteStatus(pod.Status),
	}, nil
}

// checkAvailable fails with ErrConflict when a pod or volume already exists
// at the derived ids.
func (o *Orchestrator) checkAvailable(ctx context.Context, podID, volumeID string) error {
	if _, err := o.client.GetPod(ctx, podID); err == nil {
		return &DeploymentError{Op: "Create", Resource: "pod", ID: podID,
			Message: "a deployment already exists at this id", Err: ErrConflict}
	} else if !errors.Is(err, pods.ErrNotFound) {
		return mapPlatformError("Create", "pod", podID, err)
	}
	if _, err := o.client.GetVolume(ctx, volumeID); err == nil {
		return &DeploymentError{Op: "Create", Resource: "volume", ID: volumeID,
			Message: "a volume already exists at this id", Err: ErrConflict}
	} else if !errors.Is(err, pods.ErrNotFound) {
		return mapPlatformError("Create", "volume", volumeID, err)
	}
	return nil
}

// buildPodSpec assembles the pod creation request from the descriptor,
// options, and the backend's launch parameters. Computed once per Create and
// passed through unchanged.
func (o *Orchestrator) buildPodSpec(podID, volumeID string, server *instance.ServerInstance, opts deploy.Options) pods.NewPod {
	modelDir := server.ModelDirName()

	secret := opts.Secret
	if secret == "" {
		secret = o.creds.Secret
	}
	token := AccessToken(secret, server.ModelID)

	hfToken := server.HFToken
	if hfToken == "" {
		hfToken = o.creds.HFToken
	}

	params := backend.BuildParameters(server.Backend, backend.ModelSpec{
		DefaultModel:          server.ModelID,
		DefaultEmbeddingModel: server.DefaultEmbeddingModel,
	}, backend.TargetPod)

	// Model path is positional; the token travels last so the launch script
	// can override it from FLEXSERV_TOKEN if needed.
	args := []string{modelRepoPath + "/" + modelDir}
	args = append(args, params.CLIArgs()...)
	args = append(args, "--flexserv-token", token)

	env := map[string]string{
		"MODEL_REPO":      modelRepoPath,
		"FLEXSERV_PORT":   strconv.Itoa(servingPort),
		"MODEL_NAME":      modelDir,
		"FLEXSERV_SECRET": secret,
		"FLEXSERV_TOKEN":  token,
	}
	for k, v := range params.Env {
		env[k] = v
	}
	if hfToken != "" {
		env["HF_TOKEN"] = hfToken
	}

	return pods.NewPod{
		PodID:       podID,
		Image:       opts.ImageOrDefault(),
		Description: "FlexServ pod for " + server.User + "@" + server.ModelID,
		Command:     params.CommandPrefix,
		Arguments:   args,
		EnvironmentVariables: env,
		StatusRequested:      "ON",
		VolumeMounts: map[string]pods.VolumeMount{
			modelRepoPath: {Type: "tapisvolume", SourceID: volumeID, SubPath: ""},
		},
		TimeToStopDefault:  -1,
		TimeToStopInstance: -1,
		Networking: map[string]pods.Networking{
			"default": {Protocol: "http", Port: servingPort},
		},
		Resources: &pods.Resources{
			CPURequest: opts.CPURequestOrDefault(),
			CPULimit:   opts.CPULimitOrDefault(),
			MemRequest: opts.MemRequestOrDefault(),
			MemLimit:   opts.MemLimitOrDefault(),
			GPUs:       opts.GPUs,
		},
	}
}

// =============================================================================
// Start / Stop
// =============================================================================

// Start requests the compute unit to run. Starting an already-running pod
// succeeds without error; starting an absent pod fails with ErrNotFound.
func (o *Orchestrator) Start(ctx context.Context, podID string) (*Result, error) {
	pod, err := o.client.GetPod(ctx, podID)
	if err != nil {
		return nil, mapPlatformError("Start", "pod", podID, err)
	}
	if deploy.ParseRemoteStatus(pod.Status) == deploy.StatusRunning {
		o.logger.Debug("pod already running", "pod_id", podID)
		return &Result{PodID: podID, PodURL: pod.URL(), Status: deploy.StatusRunning}, nil
	}

	started, err := o.client.StartPod(ctx, podID)
	if err != nil {
		return nil, mapPlatformError("Start", "pod", podID, err)
	}
	o.logger.Info("pod started", "pod_id", podID)
	return &Result{
		PodID:  podID,
		PodURL: started.URL(),
		Status: deploy.ParseRemoteStatus(started.Status),
	}, nil
}

// Stop pauses the compute unit. The attached volume and its data survive.
func (o *Orchestrator) Stop(ctx context.Context, podID string) (*Result, error) {
	pod, err := o.client.StopPod(ctx, podID)
	if err != nil {
		return nil, mapPlatformError("Stop", "pod", podID, err)
	}
	o.logger.Info("pod stopped", "pod_id", podID)
	return &Result{
		PodID:  podID,
		PodURL: pod.URL(),
		Status: deploy.ParseRemoteStatus(pod.Status),
	}, nil
}

// =============================================================================
// Terminate
// =============================================================================

// Terminate deletes the compute unit, then the volume, mirroring Create in
// reverse. When the pod is gone but the volume delete fails, the volume error
// is surfaced with the orphaned volume id in context — the caller may retry
// with the same id pair, which skips the already-deleted pod. Terminating an
// already-terminated pair returns ErrNotFound.
func (o *Orchestrator) Terminate(ctx context.Context, podID, volumeID string) (*Result, error) {
	podMissing := false
	if err := o.client.DeletePod(ctx, podID); err != nil {
		if !errors.Is(err, pods.ErrNotFound) {
			return nil, mapPlatformError("Terminate", "pod", podID, err)
		}
		podMissing = true
		o.logger.Debug("pod already deleted", "pod_id", podID)
	} else {
		o.logger.Info("pod deleted", "pod_id", podID)
	}

	volumeMissing := volumeID == ""
	if volumeID != "" {
		if err := o.client.DeleteVolume(ctx, volumeID); err != nil {
			if !errors.Is(err, pods.ErrNotFound) {
				if podMissing {
					return nil, mapPlatformError("Terminate", "volume", volumeID, err)
				}
				// Pod is gone but the volume survived; report the partial
				// state rather than swallowing it.
				o.logger.Warn("volume deletion failed after pod delete, volume orphaned",
					"pod_id", podID, "volume_id", volumeID, "error", err)
				return nil, mapPlatformError("Terminate", "volume", volumeID, err)
			}
			volumeMissing = true
			o.logger.Debug("volume already deleted", "volume_id", volumeID)
		} else {
			o.logger.Info("volume deleted", "volume_id", volumeID)
		}
	}

	if podMissing && volumeMissing {
		return nil, &DeploymentError{Op: "Terminate", Resource: "pod", ID: podID,
			Message: "deployment does not exist", Err: ErrNotFound}
	}

	o.logger.Info("deployment terminated", "pod_id", podID, "volume_id", volumeID)
	return &Result{PodID: podID, VolumeID: volumeID, Status: deploy.StatusDeleting}, nil
}

// =============================================================================
// Monitor
// =============================================================================

// Monitor queries the remote status of the compute unit and maps it to the
// local status set. Unrecognized remote values come back as StatusUnknown,
// never as an error.
func (o *Orchestrator) Monitor(ctx context.Context, podID string) (*Result, error) {
	pod, err := o.client.GetPod(ctx, podID)
	if err != nil {
		return nil, mapPlatformError("Monitor", "pod", podID, err)
	}
	return &Result{
		PodID:  podID,
		PodURL: pod.URL(),
		Status: deploy.ParseRemoteStatus(pod.Status),
	}, nil
}
