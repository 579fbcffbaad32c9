package deploy

// Default option values applied when a field is left zero.
const (
	DefaultVolumeSizeMB = 10 * 1024
	DefaultImage        = "tapis/flexserv:1.0"
	DefaultCPURequest   = 1000 // millicpus
	DefaultCPULimit     = 2000
	DefaultMemRequestMB = 4096
	DefaultMemLimitMB   = 8192
)

// Options configures a pod deployment. The zero value is usable: every field
// falls back to a documented default through its accessor.
type Options struct {
	// DeploymentID is an optional explicit deployment id (e.g. a UUID issued
	// by an upstream registry). When set, the pod and volume ids are derived
	// from it; see DeriveIDs.
	DeploymentID string

	// VolumeSizeMB is the storage volume size in MB. Zero means 10240 (10 GB).
	VolumeSizeMB int

	// Image is the container image. Empty means "tapis/flexserv:1.0".
	Image string

	// CPURequest is the CPU request in millicpus (1000 = 1 CPU). Zero means 1000.
	CPURequest int

	// CPULimit is the CPU limit in millicpus. Zero means 2000.
	CPULimit int

	// MemRequestMB is the memory request in MB. Zero means 4096.
	MemRequestMB int

	// MemLimitMB is the memory limit in MB. Zero means 8192.
	MemLimitMB int

	// GPUs is the number of GPUs. Defaults to 0.
	GPUs int

	// Secret is an optional shared secret prepended to the instance access
	// token.
	Secret string
}

func (o Options) VolumeSizeOrDefault() int {
	if o.VolumeSizeMB > 0 {
		return o.VolumeSizeMB
	}
	return DefaultVolumeSizeMB
}

func (o Options) ImageOrDefault() string {
	if o.Image != "" {
		return o.Image
	}
	return DefaultImage
}

func (o Options) CPURequestOrDefault() int {
	if o.CPURequest > 0 {
		return o.CPURequest
	}
	return DefaultCPURequest
}

func (o Options) CPULimitOrDefault() int {
	if o.CPULimit > 0 {
		return o.CPULimit
	}
	return DefaultCPULimit
}

func (o Options) MemRequestOrDefault() int {
	if o.MemRequestMB > 0 {
		return o.MemRequestMB
	}
	return DefaultMemRequestMB
}

func (o Options) MemLimitOrDefault() int {
	if o.MemLimitMB > 0 {
		return o.MemLimitMB
	}
	return DefaultMemLimitMB
}
