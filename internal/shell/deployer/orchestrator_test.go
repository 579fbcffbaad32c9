package deployer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tapis-project/flexserv-deployer/internal/core/backend"
	"github.com/tapis-project/flexserv-deployer/internal/core/deploy"
	"github.com/tapis-project/flexserv-deployer/internal/core/instance"
	"github.com/tapis-project/flexserv-deployer/internal/shell/pods"
)

// =============================================================================
// Fake Client
// =============================================================================

// fakeClient is an in-memory pods.Client that records every call and lets
// tests inject failures per operation.
type fakeClient struct {
	volumes map[string]*pods.Volume
	podsMap map[string]*pods.Pod

	calls []string

	createVolumeErr error
	createPodErr    error
	deleteVolumeErr error
	deletePodErr    error
	startPodErr     error
	stopPodErr      error
	getPodErr       error

	lastNewPod pods.NewPod
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		volumes: map[string]*pods.Volume{},
		podsMap: map[string]*pods.Pod{},
	}
}

func (f *fakeClient) record(call string) { f.calls = append(f.calls, call) }

func (f *fakeClient) CreateVolume(ctx context.Context, volume pods.NewVolume) (*pods.Volume, error) {
	f.record("CreateVolume:" + volume.VolumeID)
	if f.createVolumeErr != nil {
		return nil, f.createVolumeErr
	}
	v := &pods.Volume{VolumeID: volume.VolumeID, SizeLimit: volume.SizeLimit, Status: "AVAILABLE"}
	f.volumes[volume.VolumeID] = v
	return v, nil
}

func (f *fakeClient) GetVolume(ctx context.Context, volumeID string) (*pods.Volume, error) {
	f.record("GetVolume:" + volumeID)
	if v, ok := f.volumes[volumeID]; ok {
		return v, nil
	}
	return nil, &pods.APIError{Op: "GetVolume", Resource: "volume", ID: volumeID, Err: pods.ErrNotFound}
}

func (f *fakeClient) DeleteVolume(ctx context.Context, volumeID string) error {
	f.record("DeleteVolume:" + volumeID)
	if f.deleteVolumeErr != nil {
		return f.deleteVolumeErr
	}
	if _, ok := f.volumes[volumeID]; !ok {
		return &pods.APIError{Op: "DeleteVolume", Resource: "volume", ID: volumeID, Err: pods.ErrNotFound}
	}
	delete(f.volumes, volumeID)
	return nil
}

func (f *fakeClient) CreatePod(ctx context.Context, pod pods.NewPod) (*pods.Pod, error) {
	f.record("CreatePod:" + pod.PodID)
	f.lastNewPod = pod
	if f.createPodErr != nil {
		return nil, f.createPodErr
	}
	p := &pods.Pod{
		PodID:  pod.PodID,
		Image:  pod.Image,
		Status: "REQUESTED",
		Networking: map[string]pods.Networking{
			"default": {Protocol: "http", Port: 8000, URL: pod.PodID + ".pods.test.tapis.io"},
		},
	}
	f.podsMap[pod.PodID] = p
	return p, nil
}

func (f *fakeClient) GetPod(ctx context.Context, podID string) (*pods.Pod, error) {
	f.record("GetPod:" + podID)
	if f.getPodErr != nil {
		return nil, f.getPodErr
	}
	if p, ok := f.podsMap[podID]; ok {
		return p, nil
	}
	return nil, &pods.APIError{Op: "GetPod", Resource: "pod", ID: podID, Err: pods.ErrNotFound}
}

func (f *fakeClient) StartPod(ctx context.Context, podID string) (*pods.Pod, error) {
	f.record("StartPod:" + podID)
	if f.startPodErr != nil {
		return nil, f.startPodErr
	}
	p, ok := f.podsMap[podID]
	if !ok {
		return nil, &pods.APIError{Op: "StartPod", Resource: "pod", ID: podID, Err: pods.ErrNotFound}
	}
	p.Status = "AVAILABLE"
	return p, nil
}

func (f *fakeClient) StopPod(ctx context.Context, podID string) (*pods.Pod, error) {
	f.record("StopPod:" + podID)
	if f.stopPodErr != nil {
		return nil, f.stopPodErr
	}
	p, ok := f.podsMap[podID]
	if !ok {
		return nil, &pods.APIError{Op: "StopPod", Resource: "pod", ID: podID, Err: pods.ErrNotFound}
	}
	p.Status = "OFF"
	return p, nil
}

func (f *fakeClient) DeletePod(ctx context.Context, podID string) error {
	f.record("DeletePod:" + podID)
	if f.deletePodErr != nil {
		return f.deletePodErr
	}
	if _, ok := f.podsMap[podID]; !ok {
		return &pods.APIError{Op: "DeletePod", Resource: "pod", ID: podID, Err: pods.ErrNotFound}
	}
	delete(f.podsMap, podID)
	return nil
}

func (f *fakeClient) countCalls(prefix string) int {
	n := 0
	for _, c := range f.calls {
		if len(c) >= len(prefix) && c[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

// =============================================================================
// Helpers
// =============================================================================

func testInstance(t *testing.T) *instance.ServerInstance {
	t.Helper()
	server, err := instance.New(instance.Params{
		TenantURL: "https://tacc.tapis.io",
		User:      "testuser",
		ModelID:   "openai-community/gpt2",
		Backend:   backend.Default(backend.Transformers),
	})
	require.NoError(t, err)
	return server
}

// =============================================================================
// Create
// =============================================================================

func TestCreateProvisionsVolumeThenPod(t *testing.T) {
	client := newFakeClient()
	orch := NewOrchestrator(client, Credentials{Secret: "s3cr3t"}, nil)

	server := testInstance(t)
	result, err := orch.Create(context.Background(), server, deploy.Options{})
	require.NoError(t, err)

	podID, volumeID := deploy.DeriveIDs(deploy.Options{}, server)
	assert.Equal(t, podID, result.PodID)
	assert.Equal(t, volumeID, result.VolumeID)
	assert.NotEmpty(t, result.PodURL)

	// Volume must be created before the pod that mounts it.
	require.GreaterOrEqual(t, len(client.calls), 2)
	assert.Equal(t, "CreateVolume:"+volumeID, client.calls[len(client.calls)-2])
	assert.Equal(t, "CreatePod:"+podID, client.calls[len(client.calls)-1])
}

func TestCreatePodSpec(t *testing.T) {
	client := newFakeClient()
	orch := NewOrchestrator(client, Credentials{Secret: "s3cr3t", HFToken: "hf_fallback"}, nil)

	server := testInstance(t)
	_, err := orch.Create(context.Background(), server, deploy.Options{})
	require.NoError(t, err)

	spec := client.lastNewPod
	assert.Equal(t, deploy.DefaultImage, spec.Image)
	assert.Equal(t, "ON", spec.StatusRequested)
	assert.Equal(t, -1, spec.TimeToStopDefault)
	assert.Equal(t, -1, spec.TimeToStopInstance)

	// Model directory is the first positional argument.
	require.NotEmpty(t, spec.Arguments)
	assert.Equal(t, "/app/models/openai-community_gpt2", spec.Arguments[0])

	// Access token travels as the trailing flag, never through CLI params.
	wantToken := "s3cr3topenai-community_gpt2"
	require.GreaterOrEqual(t, len(spec.Arguments), 2)
	assert.Equal(t, "--flexserv-token", spec.Arguments[len(spec.Arguments)-2])
	assert.Equal(t, wantToken, spec.Arguments[len(spec.Arguments)-1])

	assert.Equal(t, "/app/models", spec.EnvironmentVariables["MODEL_REPO"])
	assert.Equal(t, "8000", spec.EnvironmentVariables["FLEXSERV_PORT"])
	assert.Equal(t, "openai-community_gpt2", spec.EnvironmentVariables["MODEL_NAME"])
	assert.Equal(t, "s3cr3t", spec.EnvironmentVariables["FLEXSERV_SECRET"])
	assert.Equal(t, wantToken, spec.EnvironmentVariables["FLEXSERV_TOKEN"])
	assert.Equal(t, "hf_fallback", spec.EnvironmentVariables["HF_TOKEN"])

	mount, ok := spec.VolumeMounts["/app/models"]
	require.True(t, ok)
	assert.Equal(t, "tapisvolume", mount.Type)

	net, ok := spec.Networking["default"]
	require.True(t, ok)
	assert.Equal(t, "http", net.Protocol)
	assert.Equal(t, 8000, net.Port)

	require.NotNil(t, spec.Resources)
	assert.Equal(t, deploy.DefaultCPURequest, spec.Resources.CPURequest)
	assert.Equal(t, deploy.DefaultMemLimitMB, spec.Resources.MemLimit)
	assert.Equal(t, 0, spec.Resources.GPUs)
}

func TestCreateInstanceHFTokenWinsOverFallback(t *testing.T) {
	client := newFakeClient()
	orch := NewOrchestrator(client, Credentials{HFToken: "hf_fallback"}, nil)

	server := testInstance(t)
	server.HFToken = "hf_own"
	_, err := orch.Create(context.Background(), server, deploy.Options{})
	require.NoError(t, err)
	assert.Equal(t, "hf_own", client.lastNewPod.EnvironmentVariables["HF_TOKEN"])
}

func TestCreateRollsBackVolumeOnPodFailure(t *testing.T) {
	client := newFakeClient()
	client.createPodErr = &pods.APIError{Op: "CreatePod", Resource: "pod",
		StatusCode: 500, Message: "spawner unavailable", Err: pods.ErrServer}
	orch := NewOrchestrator(client, Credentials{}, nil)

	server := testInstance(t)
	_, err := orch.Create(context.Background(), server, deploy.Options{})
	require.Error(t, err)

	// The original platform failure is surfaced, not the cleanup outcome.
	assert.ErrorIs(t, err, ErrPlatform)
	assert.ErrorIs(t, err, pods.ErrServer)

	_, volumeID := deploy.DeriveIDs(deploy.Options{}, server)
	assert.Equal(t, 1, client.countCalls("DeleteVolume:"))
	assert.Equal(t, "DeleteVolume:"+volumeID, client.calls[len(client.calls)-1])
	assert.Empty(t, client.volumes)
}

func TestCreateRollbackFailureStillReturnsOriginalError(t *testing.T) {
	client := newFakeClient()
	client.createPodErr = &pods.APIError{Op: "CreatePod", Resource: "pod",
		StatusCode: 500, Err: pods.ErrServer}
	client.deleteVolumeErr = &pods.APIError{Op: "DeleteVolume", Resource: "volume",
		StatusCode: 503, Err: pods.ErrServer}
	orch := NewOrchestrator(client, Credentials{}, nil)

	_, err := orch.Create(context.Background(), testInstance(t), deploy.Options{})
	require.Error(t, err)
	var depErr *DeploymentError
	require.ErrorAs(t, err, &depErr)
	assert.Equal(t, "pod", depErr.Resource)
}

func TestCreateConflictOnExistingPod(t *testing.T) {
	client := newFakeClient()
	orch := NewOrchestrator(client, Credentials{}, nil)

	server := testInstance(t)
	_, err := orch.Create(context.Background(), server, deploy.Options{})
	require.NoError(t, err)

	before := len(client.calls)
	_, err = orch.Create(context.Background(), server, deploy.Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConflict)

	// The conflict is detected during probing; nothing is created or deleted.
	assert.Equal(t, 1, client.countCalls("CreateVolume:"))
	assert.Zero(t, client.countCalls("DeleteVolume:"))
	assert.Equal(t, before+1, len(client.calls), "only the pod probe should run")
}

func TestCreateConflictOnOrphanedVolume(t *testing.T) {
	client := newFakeClient()
	orch := NewOrchestrator(client, Credentials{}, nil)

	server := testInstance(t)
	_, volumeID := deploy.DeriveIDs(deploy.Options{}, server)
	client.volumes[volumeID] = &pods.Volume{VolumeID: volumeID}

	_, err := orch.Create(context.Background(), server, deploy.Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConflict)
	var depErr *DeploymentError
	require.ErrorAs(t, err, &depErr)
	assert.Equal(t, "volume", depErr.Resource)
}

func TestCreateProbeFailureIsPlatformError(t *testing.T) {
	client := newFakeClient()
	client.getPodErr = &pods.APIError{Op: "GetPod", Resource: "pod",
		StatusCode: 503, Err: pods.ErrServer}
	orch := NewOrchestrator(client, Credentials{}, nil)

	_, err := orch.Create(context.Background(), testInstance(t), deploy.Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPlatform)
	assert.Zero(t, client.countCalls("CreateVolume:"))
}

func TestCreateHonorsExplicitOptions(t *testing.T) {
	client := newFakeClient()
	orch := NewOrchestrator(client, Credentials{}, nil)

	opts := deploy.Options{
		DeploymentID: "550e8400-e29b-41d4-a716-446655440000",
		VolumeSizeMB: 20480,
		Image:        "tapis/flexserv:2.0",
		GPUs:         2,
		Secret:       "override",
	}
	server := testInstance(t)
	result, err := orch.Create(context.Background(), server, opts)
	require.NoError(t, err)

	assert.Equal(t, "p550e8400e29b41d4a716446655440000", result.PodID)
	assert.Equal(t, "v550e8400e29b41d4a716446655440000", result.VolumeID)

	spec := client.lastNewPod
	assert.Equal(t, "tapis/flexserv:2.0", spec.Image)
	assert.Equal(t, 2, spec.Resources.GPUs)
	assert.Equal(t, "override", spec.EnvironmentVariables["FLEXSERV_SECRET"])
	assert.Equal(t, "overrideopenai-community_gpt2", spec.EnvironmentVariables["FLEXSERV_TOKEN"])
}

// =============================================================================
// Start / Stop
// =============================================================================

func TestStartAlreadyRunningSucceeds(t *testing.T) {
	client := newFakeClient()
	client.podsMap["pabc"] = &pods.Pod{PodID: "pabc", Status: "AVAILABLE"}
	orch := NewOrchestrator(client, Credentials{}, nil)

	result, err := orch.Start(context.Background(), "pabc")
	require.NoError(t, err)
	assert.Equal(t, deploy.StatusRunning, result.Status)
	assert.Zero(t, client.countCalls("StartPod:"))
}

func TestStartStoppedPod(t *testing.T) {
	client := newFakeClient()
	client.podsMap["pabc"] = &pods.Pod{PodID: "pabc", Status: "OFF"}
	orch := NewOrchestrator(client, Credentials{}, nil)

	result, err := orch.Start(context.Background(), "pabc")
	require.NoError(t, err)
	assert.Equal(t, deploy.StatusRunning, result.Status)
	assert.Equal(t, 1, client.countCalls("StartPod:"))
}

func TestStartMissingPod(t *testing.T) {
	client := newFakeClient()
	orch := NewOrchestrator(client, Credentials{}, nil)

	_, err := orch.Start(context.Background(), "pnope")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStop(t *testing.T) {
	client := newFakeClient()
	client.podsMap["pabc"] = &pods.Pod{PodID: "pabc", Status: "AVAILABLE"}
	orch := NewOrchestrator(client, Credentials{}, nil)

	result, err := orch.Stop(context.Background(), "pabc")
	require.NoError(t, err)
	assert.Equal(t, deploy.StatusStopped, result.Status)
}

func TestStopMissingPod(t *testing.T) {
	client := newFakeClient()
	orch := NewOrchestrator(client, Credentials{}, nil)

	_, err := orch.Stop(context.Background(), "pnope")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

// =============================================================================
// Terminate
// =============================================================================

func TestTerminateDeletesPodThenVolume(t *testing.T) {
	client := newFakeClient()
	client.podsMap["pabc"] = &pods.Pod{PodID: "pabc"}
	client.volumes["vabc"] = &pods.Volume{VolumeID: "vabc"}
	orch := NewOrchestrator(client, Credentials{}, nil)

	result, err := orch.Terminate(context.Background(), "pabc", "vabc")
	require.NoError(t, err)
	assert.Equal(t, deploy.StatusDeleting, result.Status)
	assert.Equal(t, []string{"DeletePod:pabc", "DeleteVolume:vabc"}, client.calls)
	assert.Empty(t, client.podsMap)
	assert.Empty(t, client.volumes)
}

func TestTerminateAlreadyTerminated(t *testing.T) {
	client := newFakeClient()
	orch := NewOrchestrator(client, Credentials{}, nil)

	_, err := orch.Terminate(context.Background(), "pgone", "vgone")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTerminateSurfacesOrphanedVolume(t *testing.T) {
	client := newFakeClient()
	client.podsMap["pabc"] = &pods.Pod{PodID: "pabc"}
	client.volumes["vabc"] = &pods.Volume{VolumeID: "vabc"}
	client.deleteVolumeErr = &pods.APIError{Op: "DeleteVolume", Resource: "volume",
		ID: "vabc", StatusCode: 500, Err: pods.ErrServer}
	orch := NewOrchestrator(client, Credentials{}, nil)

	_, err := orch.Terminate(context.Background(), "pabc", "vabc")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPlatform)

	var depErr *DeploymentError
	require.ErrorAs(t, err, &depErr)
	assert.Equal(t, "volume", depErr.Resource)
	assert.Equal(t, "vabc", depErr.ID)

	// The pod is gone; a retry with the same pair resumes at the volume.
	assert.Empty(t, client.podsMap)
}

func TestTerminateRetryAfterOrphan(t *testing.T) {
	client := newFakeClient()
	client.volumes["vabc"] = &pods.Volume{VolumeID: "vabc"}
	orch := NewOrchestrator(client, Credentials{}, nil)

	// Pod already deleted by the failed first attempt; only the volume remains.
	result, err := orch.Terminate(context.Background(), "pabc", "vabc")
	require.NoError(t, err)
	assert.Equal(t, "vabc", result.VolumeID)
	assert.Empty(t, client.volumes)
}

func TestTerminateWithoutVolume(t *testing.T) {
	client := newFakeClient()
	client.podsMap["pabc"] = &pods.Pod{PodID: "pabc"}
	orch := NewOrchestrator(client, Credentials{}, nil)

	_, err := orch.Terminate(context.Background(), "pabc", "")
	require.NoError(t, err)
	assert.Zero(t, client.countCalls("DeleteVolume:"))
}

// =============================================================================
// Monitor
// =============================================================================

func TestMonitorMapsRemoteStatus(t *testing.T) {
	tests := []struct {
		remote string
		want   deploy.Status
	}{
		{"AVAILABLE", deploy.StatusRunning},
		{"OFF", deploy.StatusStopped},
		{"SPAWNER SETUP", deploy.StatusCreating},
		{"SOME FUTURE STATE", deploy.StatusUnknown},
		{"", deploy.StatusUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.remote, func(t *testing.T) {
			client := newFakeClient()
			client.podsMap["pabc"] = &pods.Pod{PodID: "pabc", Status: tt.remote}
			orch := NewOrchestrator(client, Credentials{}, nil)

			result, err := orch.Monitor(context.Background(), "pabc")
			require.NoError(t, err)
			assert.Equal(t, tt.want, result.Status)
		})
	}
}

func TestMonitorMissingPod(t *testing.T) {
	client := newFakeClient()
	orch := NewOrchestrator(client, Credentials{}, nil)

	_, err := orch.Monitor(context.Background(), "pnope")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

// =============================================================================
// HPC Placeholder
// =============================================================================

func TestHPCOrchestratorUnimplemented(t *testing.T) {
	orch := NewHPCOrchestrator()
	ctx := context.Background()

	_, err := orch.Create(ctx, testInstance(t), deploy.Options{})
	assert.ErrorIs(t, err, ErrUnimplemented)
	_, err = orch.Start(ctx, "p1")
	assert.ErrorIs(t, err, ErrUnimplemented)
	_, err = orch.Stop(ctx, "p1")
	assert.ErrorIs(t, err, ErrUnimplemented)
	_, err = orch.Terminate(ctx, "p1", "v1")
	assert.ErrorIs(t, err, ErrUnimplemented)
	_, err = orch.Monitor(ctx, "p1")
	assert.ErrorIs(t, err, ErrUnimplemented)
}

// =============================================================================
// Access Token
// =============================================================================

func TestAccessToken(t *testing.T) {
	assert.Equal(t, "secretopenai-community_gpt2", AccessToken("secret", "openai-community/gpt2"))
	assert.Equal(t, "gpt2", AccessToken("", "gpt2"))
}
