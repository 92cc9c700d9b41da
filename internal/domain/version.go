package domain

import "time"

// Version is an immutable, numbered snapshot of a workflow's content. Only
// Tags and IsCurrent may change after creation; at most one version per
// workflow is current at any time.
type Version struct {
	ID            string         `json:"id"`
	WorkflowID    string         `json:"workflow_id"`
	VersionNumber int64          `json:"version_number"`
	VersionName   string         `json:"version_name"`
	Description   string         `json:"description"`
	CreatedBy     string         `json:"created_by"`
	CreateTime    time.Time      `json:"create_time"`
	IsCurrent     bool           `json:"is_current"`
	Tags          []string       `json:"tags,omitempty"`
	DataSize      int64          `json:"data_size"`
	Content       map[string]any `json:"content"`
}

type CreateVersionRequest struct {
	WorkflowID  string         `json:"workflow_id" validate:"required"`
	VersionName string         `json:"version_name"`
	Description string         `json:"description"`
	CreatedBy   string         `json:"created_by"`
	Content     map[string]any `json:"content" validate:"required"`
	SetCurrent  bool           `json:"set_current"`
}

type ChangeType string

const (
	ChangeAdded     ChangeType = "added"
	ChangeDeleted   ChangeType = "deleted"
	ChangeModified  ChangeType = "modified"
	ChangeUnchanged ChangeType = "unchanged"
)

type VersionDiff struct {
	Field      string     `json:"field"`
	OldValue   any        `json:"old_value,omitempty"`
	NewValue   any        `json:"new_value,omitempty"`
	ChangeType ChangeType `json:"change_type"`
}

type ComparisonStats struct {
	Total     int `json:"total"`
	Added     int `json:"added"`
	Deleted   int `json:"deleted"`
	Modified  int `json:"modified"`
	Unchanged int `json:"unchanged"`
}

// ComparisonResult lists only changed fields; unchanged fields are counted in
// Stats but omitted from Differences.
type ComparisonResult struct {
	Version1    *Version        `json:"version1"`
	Version2    *Version        `json:"version2"`
	Differences []VersionDiff   `json:"differences"`
	Stats       ComparisonStats `json:"stats"`
	CompareTime time.Time       `json:"compare_time"`
}

// VersionExport is the single-document export format for one version.
type VersionExport struct {
	Version    *Version  `json:"version"`
	ExportTime time.Time `json:"export_time"`
	Format     string    `json:"format"`
}
