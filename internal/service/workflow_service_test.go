package service

import (
	"errors"
	"fmt"
	"testing"

	"flowsync/internal/domain"
)

type mockWorkflowRepo struct {
	workflows map[string]*domain.Workflow
}

func newMockWorkflowRepo() *mockWorkflowRepo {
	return &mockWorkflowRepo{
		workflows: make(map[string]*domain.Workflow),
	}
}

func (m *mockWorkflowRepo) Create(workflow *domain.Workflow) error {
	m.workflows[workflow.ID] = workflow
	return nil
}

func (m *mockWorkflowRepo) FindByID(id string) (*domain.Workflow, error) {
	if workflow, ok := m.workflows[id]; ok {
		copied := *workflow
		return &copied, nil
	}
	return nil, fmt.Errorf("workflow %s: %w", id, ErrNotFound)
}

func (m *mockWorkflowRepo) List() ([]*domain.Workflow, error) {
	var workflows []*domain.Workflow
	for _, workflow := range m.workflows {
		workflows = append(workflows, workflow)
	}
	return workflows, nil
}

func (m *mockWorkflowRepo) Update(workflow *domain.Workflow) error {
	if _, ok := m.workflows[workflow.ID]; !ok {
		return fmt.Errorf("workflow %s: %w", workflow.ID, ErrNotFound)
	}
	m.workflows[workflow.ID] = workflow
	return nil
}

func (m *mockWorkflowRepo) Delete(id string) error {
	if _, ok := m.workflows[id]; !ok {
		return fmt.Errorf("workflow %s: %w", id, ErrNotFound)
	}
	delete(m.workflows, id)
	return nil
}

func TestWorkflowService_CreateAndUpdate(t *testing.T) {
	repo := newMockWorkflowRepo()
	service := NewWorkflowService(repo)

	workflow, err := service.Create(&domain.CreateWorkflowRequest{
		Name:  "Order Flow",
		Alias: "order-flow",
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if workflow.Status != domain.WorkflowStatusDraft {
		t.Errorf("new workflow status = %s, want draft", workflow.Status)
	}
	if workflow.Version != 1 {
		t.Errorf("new workflow version = %d, want 1", workflow.Version)
	}

	newName := "Order Flow v2"
	published := domain.WorkflowStatusPublished
	updated, err := service.Update(workflow.ID, &domain.UpdateWorkflowRequest{
		Name:   &newName,
		Status: &published,
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.Name != newName {
		t.Errorf("Name = %q, want %q", updated.Name, newName)
	}
	if updated.Alias != "order-flow" {
		t.Error("fields absent from the request must not change")
	}
	if updated.Version != 2 {
		t.Errorf("Version = %d, want 2 after update", updated.Version)
	}

	bogus := domain.WorkflowStatus("frozen")
	if _, err := service.Update(workflow.ID, &domain.UpdateWorkflowRequest{Status: &bogus}); !errors.Is(err, ErrInvalidOperation) {
		t.Errorf("Update() with unknown status error = %v, want ErrInvalidOperation", err)
	}
}

func TestWorkflowService_Execute(t *testing.T) {
	repo := newMockWorkflowRepo()
	service := NewWorkflowService(repo)

	workflow, _ := service.Create(&domain.CreateWorkflowRequest{
		Name:  "Nightly Job",
		Alias: "nightly",
		Content: map[string]any{
			"nodes": []any{map[string]any{"id": "n1"}, map[string]any{"id": "n2"}},
		},
	})

	result, err := service.Execute(workflow.ID, &domain.ExecuteWorkflowRequest{
		Params: map[string]any{"dry_run": true},
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.Status != "SUCCESS" {
		t.Errorf("Status = %s, want SUCCESS", result.Status)
	}
	if result.Output["node_count"] != 2 {
		t.Errorf("node_count = %v, want 2", result.Output["node_count"])
	}
	if result.Output["dry_run"] != true {
		t.Error("request params should flow into the output")
	}

	archived := domain.WorkflowStatusArchived
	if _, err := service.Update(workflow.ID, &domain.UpdateWorkflowRequest{Status: &archived}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if _, err := service.Execute(workflow.ID, &domain.ExecuteWorkflowRequest{}); !errors.Is(err, ErrInvalidOperation) {
		t.Errorf("Execute() archived error = %v, want ErrInvalidOperation", err)
	}

	if _, err := service.Execute("missing", &domain.ExecuteWorkflowRequest{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Execute() missing error = %v, want ErrNotFound", err)
	}
}
