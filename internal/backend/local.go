package backend

import (
	"fmt"
	"time"

	"flowsync/internal/domain"
	"flowsync/internal/repository"
	"flowsync/internal/store"

	"github.com/google/uuid"
)

const syncQueueCollection = "syncQueue"

// LocalBackend serves workflow operations from the offline store. Every
// mutation is also enqueued as a sync task so the replayer can push it to the
// server once connectivity returns.
type LocalBackend struct {
	store     *store.Store
	workflows repository.WorkflowRepository
}

func NewLocalBackend(st *store.Store) *LocalBackend {
	return &LocalBackend{
		store:     st,
		workflows: repository.NewLocalWorkflowRepository(st),
	}
}

func (b *LocalBackend) List() ([]*domain.Workflow, error) {
	return b.workflows.List()
}

func (b *LocalBackend) Get(id string) (*domain.Workflow, error) {
	return b.workflows.FindByID(id)
}

func (b *LocalBackend) Create(req *domain.CreateWorkflowRequest) (*domain.Workflow, error) {
	now := time.Now()
	workflow := &domain.Workflow{
		ID:          uuid.New().String(),
		Name:        req.Name,
		Alias:       req.Alias,
		Category:    req.Category,
		Description: req.Description,
		Status:      domain.WorkflowStatusDraft,
		Config:      req.Config,
		Content:     req.Content,
		CreatedBy:   req.CreatedBy,
		CreateTime:  now,
		UpdateTime:  now,
		Version:     1,
	}

	if err := b.workflows.Create(workflow); err != nil {
		return nil, err
	}
	if err := b.enqueue("workflow", workflow.ID, "create", workflow); err != nil {
		return nil, err
	}
	return workflow, nil
}

func (b *LocalBackend) Update(id string, req *domain.UpdateWorkflowRequest) (*domain.Workflow, error) {
	workflow, err := b.workflows.FindByID(id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		workflow.Name = *req.Name
	}
	if req.Category != nil {
		workflow.Category = *req.Category
	}
	if req.Description != nil {
		workflow.Description = *req.Description
	}
	if req.Status != nil {
		workflow.Status = *req.Status
	}
	if req.Config != nil {
		workflow.Config = req.Config
	}
	if req.Content != nil {
		workflow.Content = req.Content
	}
	workflow.UpdateTime = time.Now()
	workflow.Version++

	if err := b.workflows.Update(workflow); err != nil {
		return nil, err
	}
	if err := b.enqueue("workflow", workflow.ID, "update", workflow); err != nil {
		return nil, err
	}
	return workflow, nil
}

func (b *LocalBackend) Delete(id string) error {
	if err := b.workflows.Delete(id); err != nil {
		return err
	}
	return b.enqueue("workflow", id, "delete", nil)
}

// Execute simulates a run offline and records the execution so history stays
// coherent when the client reconnects.
func (b *LocalBackend) Execute(id string, req *domain.ExecuteWorkflowRequest) (*domain.ExecutionResult, error) {
	workflow, err := b.workflows.FindByID(id)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	result := &domain.ExecutionResult{
		ExecutionID: uuid.New().String(),
		WorkflowID:  id,
		Status:      "SUCCESS",
		Output: map[string]any{
			"workflow_name": workflow.Name,
			"simulated":     true,
		},
		StartTime: start,
		EndTime:   time.Now(),
		Offline:   true,
	}
	for k, v := range req.Params {
		result.Output[k] = v
	}

	execution := store.Record{
		"id":         result.ExecutionID,
		"workflowId": id,
		"status":     result.Status,
		"offline":    true,
		"startTime":  result.StartTime.UTC().Format(time.RFC3339),
		"endTime":    result.EndTime.UTC().Format(time.RFC3339),
	}
	if err := b.store.Save("executions", execution); err != nil {
		return nil, fmt.Errorf("failed to record offline execution: %w", err)
	}

	return result, nil
}

// PendingTasks returns the queued mutations in creation order.
func (b *LocalBackend) PendingTasks() ([]*domain.SyncTask, error) {
	recs, err := b.store.Query(syncQueueCollection, "status", string(domain.SyncPending))
	if err != nil {
		return nil, err
	}

	tasks := make([]*domain.SyncTask, 0, len(recs))
	for _, rec := range recs {
		var task domain.SyncTask
		if err := fromRecord(rec, &task); err != nil {
			continue
		}
		tasks = append(tasks, &task)
	}
	sortTasks(tasks)
	return tasks, nil
}

func (b *LocalBackend) markTask(task *domain.SyncTask, status domain.SyncTaskStatus) error {
	task.Status = status
	rec, err := toRecord(task)
	if err != nil {
		return err
	}
	return b.store.Save(syncQueueCollection, rec)
}

func (b *LocalBackend) enqueue(entityType, entityID, operation string, payload any) error {
	task := &domain.SyncTask{
		ID:         uuid.New().String(),
		EntityType: entityType,
		EntityID:   entityID,
		Operation:  operation,
		Status:     domain.SyncPending,
		CreateTime: time.Now(),
	}
	if payload != nil {
		rec, err := toRecord(payload)
		if err != nil {
			return err
		}
		task.Payload = rec
	}

	rec, err := toRecord(task)
	if err != nil {
		return err
	}
	if err := b.store.Save(syncQueueCollection, rec); err != nil {
		return fmt.Errorf("failed to enqueue sync task: %w", err)
	}
	return nil
}
