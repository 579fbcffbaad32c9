// Package backend defines the supported model-serving backends and builds
// the launch parameter sets used to run them on a deployment target.
package backend

import (
	"fmt"
)

// =============================================================================
// Backend Kinds
// =============================================================================

// Kind identifies a model-serving backend.
type Kind string

const (
	Transformers Kind = "transformers"
	VLlm         Kind = "vllm"
	SGLang       Kind = "sglang"
	TrtLlm       Kind = "trtllm"
)

// Kinds returns all supported backend kinds in a stable order.
func Kinds() []Kind {
	return []Kind{Transformers, VLlm, SGLang, TrtLlm}
}

// ParseKind parses a backend name into a Kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case Transformers, VLlm, SGLang, TrtLlm:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown backend %q", s)
}

// =============================================================================
// Target
// =============================================================================

// Target is the platform a backend is launched on.
type Target string

const (
	// TargetPod runs the backend inside a platform-hosted pod.
	TargetPod Target = "pod"
	// TargetHPC runs the backend inside a batch-scheduled cluster job.
	TargetHPC Target = "hpc"
)

// =============================================================================
// Backend
// =============================================================================

// Backend is a serving backend selection with its launch command prefix.
// Immutable once constructed.
type Backend struct {
	kind          Kind
	commandPrefix []string
}

// New creates a Backend with an explicit command prefix. An empty prefix
// falls back to the default command prefix for the kind on each target.
func New(kind Kind, commandPrefix []string) Backend {
	prefix := make([]string, len(commandPrefix))
	copy(prefix, commandPrefix)
	return Backend{kind: kind, commandPrefix: prefix}
}

// Default creates a Backend using the default command prefix for the kind.
func Default(kind Kind) Backend {
	return Backend{kind: kind}
}

// Kind returns the backend kind.
func (b Backend) Kind() Kind {
	return b.kind
}

// Name returns the backend name string ("transformers", "vllm", ...).
func (b Backend) Name() string {
	return string(b.kind)
}

// PodCommandPrefix returns the command prefix used to launch this backend in
// a pod: the explicit prefix when one was given, otherwise the default for
// the kind. Kinds without pod image support yet get an echo placeholder so a
// created pod reports its state instead of crash-looping.
func (b Backend) PodCommandPrefix() []string {
	if len(b.commandPrefix) > 0 {
		out := make([]string, len(b.commandPrefix))
		copy(out, b.commandPrefix)
		return out
	}
	switch b.kind {
	case Transformers:
		return []string{
			"/app/venvs/transformers/bin/python",
			"/app/flexserv/python/backend/transformers/backend_server.py",
		}
	case VLlm:
		return []string{"/bin/echo", "vllm backend: pod command not yet implemented"}
	case SGLang:
		return []string{"/bin/echo", "sglang backend: pod command not yet implemented"}
	case TrtLlm:
		return []string{"/bin/echo", "trtllm backend: pod command not yet implemented"}
	}
	return nil
}
