package deployer

import (
	"context"

	"github.com/tapis-project/flexserv-deployer/internal/core/deploy"
	"github.com/tapis-project/flexserv-deployer/internal/core/instance"
)

// HPCOrchestrator is the placeholder for batch-scheduler deployments. Every
// operation fails with ErrUnimplemented until an HPC execution path exists.
type HPCOrchestrator struct{}

// NewHPCOrchestrator creates the placeholder orchestrator.
func NewHPCOrchestrator() *HPCOrchestrator {
	return &HPCOrchestrator{}
}

func hpcUnimplemented(op string) error {
	return &DeploymentError{Op: op, Resource: "hpc",
		Message: "HPC deployments are not supported yet", Err: ErrUnimplemented}
}

func (h *HPCOrchestrator) Create(ctx context.Context, server *instance.ServerInstance, opts deploy.Options) (*Result, error) {
	return nil, hpcUnimplemented("Create")
}

func (h *HPCOrchestrator) Start(ctx context.Context, podID string) (*Result, error) {
	return nil, hpcUnimplemented("Start")
}

func (h *HPCOrchestrator) Stop(ctx context.Context, podID string) (*Result, error) {
	return nil, hpcUnimplemented("Stop")
}

func (h *HPCOrchestrator) Terminate(ctx context.Context, podID, volumeID string) (*Result, error) {
	return nil, hpcUnimplemented("Terminate")
}

func (h *HPCOrchestrator) Monitor(ctx context.Context, podID string) (*Result, error) {
	return nil, hpcUnimplemented("Monitor")
}
