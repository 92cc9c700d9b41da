package domain

import "time"

type WorkflowStatus string

const (
	WorkflowStatusDraft     WorkflowStatus = "draft"
	WorkflowStatusPublished WorkflowStatus = "published"
	WorkflowStatusArchived  WorkflowStatus = "archived"
)

type Workflow struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Alias       string         `json:"alias"`
	Category    string         `json:"category"`
	Description string         `json:"description"`
	Status      WorkflowStatus `json:"status"`
	Config      map[string]any `json:"config,omitempty"`
	Content     map[string]any `json:"content,omitempty"`
	CreatedBy   string         `json:"created_by"`
	CreateTime  time.Time      `json:"create_time"`
	UpdateTime  time.Time      `json:"update_time"`
	Version     int64          `json:"version"`
}

type CreateWorkflowRequest struct {
	Name        string         `json:"name" validate:"required"`
	Alias       string         `json:"alias" validate:"required"`
	Category    string         `json:"category"`
	Description string         `json:"description"`
	Config      map[string]any `json:"config"`
	Content     map[string]any `json:"content"`
	CreatedBy   string         `json:"created_by"`
}

type UpdateWorkflowRequest struct {
	Name        *string         `json:"name"`
	Category    *string         `json:"category"`
	Description *string         `json:"description"`
	Status      *WorkflowStatus `json:"status"`
	Config      map[string]any  `json:"config"`
	Content     map[string]any  `json:"content"`
	UpdatedBy   string          `json:"updated_by"`
}

type ExecuteWorkflowRequest struct {
	Params map[string]any `json:"params"`
}

type ExecutionResult struct {
	ExecutionID string         `json:"execution_id"`
	WorkflowID  string         `json:"workflow_id"`
	Status      string         `json:"status"`
	Output      map[string]any `json:"output,omitempty"`
	StartTime   time.Time      `json:"start_time"`
	EndTime     time.Time      `json:"end_time"`
	Offline     bool           `json:"offline"`
}
