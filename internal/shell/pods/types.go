// Package pods provides a client for the Tapis Pods API: remotely hosted
// compute units ("pods") and their attached storage volumes.
package pods

// =============================================================================
// Volume Types
// =============================================================================

// NewVolume is the request body for creating a volume.
type NewVolume struct {
	VolumeID    string `json:"volume_id"`
	Description string `json:"description,omitempty"`
	SizeLimit   int    `json:"size_limit,omitempty"` // MB
}

// Volume describes a remote volume.
type Volume struct {
	VolumeID    string `json:"volume_id"`
	Description string `json:"description,omitempty"`
	SizeLimit   int    `json:"size_limit,omitempty"`
	Status      string `json:"status,omitempty"`
}

// =============================================================================
// Pod Types
// =============================================================================

// VolumeMount attaches a volume inside the pod. The mount path is the map key
// in NewPod.VolumeMounts.
type VolumeMount struct {
	Type     string `json:"type"` // "tapisvolume"
	SourceID string `json:"source_id,omitempty"`
	SubPath  string `json:"sub_path"`
}

// Networking describes one exposed pod port.
type Networking struct {
	Protocol string `json:"protocol,omitempty"`
	Port     int    `json:"port,omitempty"`
	URL      string `json:"url,omitempty"`
}

// Resources holds the pod resource requests and limits.
type Resources struct {
	CPURequest int `json:"cpu_request,omitempty"` // millicpus
	CPULimit   int `json:"cpu_limit,omitempty"`
	MemRequest int `json:"mem_request,omitempty"` // MB
	MemLimit   int `json:"mem_limit,omitempty"`
	GPUs       int `json:"gpus,omitempty"`
}

// NewPod is the request body for creating a pod.
type NewPod struct {
	PodID                string                 `json:"pod_id"`
	Image                string                 `json:"image,omitempty"`
	Description          string                 `json:"description,omitempty"`
	Command              []string               `json:"command,omitempty"`
	Arguments            []string               `json:"arguments,omitempty"`
	EnvironmentVariables map[string]string      `json:"environment_variables,omitempty"`
	StatusRequested      string                 `json:"status_requested,omitempty"` // "ON"
	VolumeMounts         map[string]VolumeMount `json:"volume_mounts,omitempty"`
	TimeToStopDefault    int                    `json:"time_to_stop_default,omitempty"`
	TimeToStopInstance   int                    `json:"time_to_stop_instance,omitempty"`
	Networking           map[string]Networking  `json:"networking,omitempty"`
	Resources            *Resources             `json:"resources,omitempty"`
}

// Pod describes a remote pod.
type Pod struct {
	PodID           string                `json:"pod_id"`
	Image           string                `json:"image,omitempty"`
	Description     string                `json:"description,omitempty"`
	Status          string                `json:"status,omitempty"`
	StatusRequested string                `json:"status_requested,omitempty"`
	Networking      map[string]Networking `json:"networking,omitempty"`
	Resources       *Resources            `json:"resources,omitempty"`
}

// URL returns the pod's default network URL, or "" when none is assigned yet.
func (p *Pod) URL() string {
	if net, ok := p.Networking["default"]; ok {
		return net.URL
	}
	return ""
}

// =============================================================================
// Response Envelope
// =============================================================================

// envelope is the standard Tapis response wrapper.
type envelope[T any] struct {
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
	Result  T      `json:"result"`
}
