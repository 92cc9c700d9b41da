package domain

import "time"

type FieldChangeType string

const (
	FieldAdd    FieldChangeType = "ADD"
	FieldModify FieldChangeType = "MODIFY"
	FieldDelete FieldChangeType = "DELETE"
	FieldMove   FieldChangeType = "MOVE"
)

type FieldChange struct {
	Field string          `json:"field"`
	Type  FieldChangeType `json:"type"`
	Value any             `json:"value,omitempty"`
}

// ConflictSide is one side's view of the divergence: its field-level changes
// and the whole-record update time used by the timestamp strategy.
type ConflictSide struct {
	Changes    []FieldChange `json:"changes"`
	UpdateTime time.Time     `json:"update_time"`
}

type Conflict struct {
	ConflictID    string              `json:"conflict_id"`
	WorkflowID    string              `json:"workflow_id"`
	LocalData     ConflictSide        `json:"local_data"`
	RemoteData    ConflictSide        `json:"remote_data"`
	ConflictCount int                 `json:"conflict_count"`
	DetectedAt    time.Time           `json:"detected_at"`
	ResolvedAt    *time.Time          `json:"resolved_at,omitempty"`
	Resolution    *ResolutionStrategy `json:"resolution,omitempty"`
}

func (c *Conflict) Resolved() bool {
	return c.ResolvedAt != nil
}

type ResolutionStrategy string

const (
	ResolutionClient    ResolutionStrategy = "client"
	ResolutionServer    ResolutionStrategy = "server"
	ResolutionTimestamp ResolutionStrategy = "timestamp"
	ResolutionMerge     ResolutionStrategy = "merge"
)

const (
	SideLocal  = "local"
	SideRemote = "remote"
)

// DetectConflictRequest carries a client's local copy for comparison against
// the server's current record.
type DetectConflictRequest struct {
	Content    map[string]any `json:"content" validate:"required"`
	UpdateTime time.Time      `json:"update_time" validate:"required"`
}

// Resolution collapses a Conflict into one reconciled record. SelectedChanges
// is consulted only by the merge strategy; fields it does not mention default
// to the local side.
type Resolution struct {
	ConflictID      string             `json:"conflict_id" validate:"required"`
	ResolutionType  ResolutionStrategy `json:"resolution_type" validate:"required,oneof=client server timestamp merge"`
	SelectedChanges map[string]string  `json:"selected_changes,omitempty"`
	Notes           string             `json:"notes,omitempty"`
}

// ResolvedRecord is the reconciled outcome persisted by Resolve.
type ResolvedRecord struct {
	ConflictID     string             `json:"conflict_id"`
	WorkflowID     string             `json:"workflow_id"`
	ResolutionType ResolutionStrategy `json:"resolution_type"`
	Fields         map[string]any     `json:"fields"`
	ResolvedAt     time.Time          `json:"resolved_at"`
	Notes          string             `json:"notes,omitempty"`
}
