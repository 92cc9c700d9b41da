package repository

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"flowsync/internal/domain"

	"github.com/go-kivik/kivik/v4"
)

var ErrNotFound = errors.New("not found")

type WorkflowRepository interface {
	Create(workflow *domain.Workflow) error
	FindByID(id string) (*domain.Workflow, error)
	List() ([]*domain.Workflow, error)
	Update(workflow *domain.Workflow) error
	Delete(id string) error
}

type workflowRepository struct {
	client *kivik.Client
	dbName string
}

func NewWorkflowRepository(client *kivik.Client, dbName string) WorkflowRepository {
	return &workflowRepository{
		client: client,
		dbName: dbName,
	}
}

func workflowDocID(id string) string {
	return fmt.Sprintf("workflow:%s", id)
}

func (r *workflowRepository) Create(workflow *domain.Workflow) error {
	db := r.client.DB(r.dbName)

	_, err := db.Put(context.Background(), workflowDocID(workflow.ID), workflow)
	if err != nil {
		return fmt.Errorf("failed to create workflow: %w", err)
	}

	return nil
}

func (r *workflowRepository) FindByID(id string) (*domain.Workflow, error) {
	db := r.client.DB(r.dbName)

	row := db.Get(context.Background(), workflowDocID(id))

	var workflow domain.Workflow
	if err := row.ScanDoc(&workflow); err != nil {
		if kivik.HTTPStatus(err) == http.StatusNotFound {
			return nil, fmt.Errorf("workflow %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to find workflow: %w", err)
	}

	return &workflow, nil
}

func (r *workflowRepository) List() ([]*domain.Workflow, error) {
	db := r.client.DB(r.dbName)

	query := map[string]interface{}{
		"selector": map[string]interface{}{
			"alias": map[string]interface{}{"$exists": true},
		},
	}

	rows := db.Find(context.Background(), query)
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}
	defer rows.Close()

	var workflows []*domain.Workflow
	for rows.Next() {
		var workflow domain.Workflow
		if err := rows.ScanDoc(&workflow); err != nil {
			continue
		}
		workflows = append(workflows, &workflow)
	}

	return workflows, nil
}

func (r *workflowRepository) Update(workflow *domain.Workflow) error {
	db := r.client.DB(r.dbName)
	docID := workflowDocID(workflow.ID)

	var existingDoc map[string]interface{}
	row := db.Get(context.Background(), docID)
	if err := row.ScanDoc(&existingDoc); err != nil {
		if kivik.HTTPStatus(err) == http.StatusNotFound {
			return fmt.Errorf("workflow %s: %w", workflow.ID, ErrNotFound)
		}
		return fmt.Errorf("failed to fetch workflow for update: %w", err)
	}

	existingDoc["name"] = workflow.Name
	existingDoc["category"] = workflow.Category
	existingDoc["description"] = workflow.Description
	existingDoc["status"] = workflow.Status
	existingDoc["config"] = workflow.Config
	existingDoc["content"] = workflow.Content
	existingDoc["update_time"] = workflow.UpdateTime
	existingDoc["version"] = workflow.Version

	_, err := db.Put(context.Background(), docID, existingDoc)
	if err != nil {
		return fmt.Errorf("failed to update workflow: %w", err)
	}

	return nil
}

func (r *workflowRepository) Delete(id string) error {
	db := r.client.DB(r.dbName)
	docID := workflowDocID(id)

	rev, err := db.GetRev(context.Background(), docID)
	if err != nil {
		if kivik.HTTPStatus(err) == http.StatusNotFound {
			return fmt.Errorf("workflow %s: %w", id, ErrNotFound)
		}
		return fmt.Errorf("failed to fetch workflow for delete: %w", err)
	}

	if _, err := db.Delete(context.Background(), docID, rev); err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}

	return nil
}
