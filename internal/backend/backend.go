package backend

import (
	"flowsync/internal/domain"
)

// WorkflowBackend is the capability surface the engine programs against. The
// implementation is picked once at startup from the bootstrap mode; mode
// switches at runtime affect coordination, not the storage path.
type WorkflowBackend interface {
	List() ([]*domain.Workflow, error)
	Get(id string) (*domain.Workflow, error)
	Create(req *domain.CreateWorkflowRequest) (*domain.Workflow, error)
	Update(id string, req *domain.UpdateWorkflowRequest) (*domain.Workflow, error)
	Delete(id string) error
	Execute(id string, req *domain.ExecuteWorkflowRequest) (*domain.ExecutionResult, error)
}

// ForMode selects the backend for the bootstrap mode. Mixed behaves as online
// while the channel still tracks both sides.
func ForMode(mode domain.Mode, remote *RemoteBackend, local *LocalBackend) WorkflowBackend {
	if mode == domain.ModeOffline {
		return local
	}
	return remote
}
