package domain

import "time"

type SyncTaskStatus string

const (
	SyncPending SyncTaskStatus = "pending"
	SyncSuccess SyncTaskStatus = "success"
	SyncFailed  SyncTaskStatus = "failed"
)

// SyncTask is a queued offline mutation, replayed against the server once
// connectivity is confirmed.
type SyncTask struct {
	ID         string         `json:"id"`
	EntityType string         `json:"entityType"`
	EntityID   string         `json:"entityId"`
	Operation  string         `json:"operation"`
	Payload    map[string]any `json:"payload,omitempty"`
	Status     SyncTaskStatus `json:"status"`
	Attempts   int            `json:"attempts"`
	CreateTime time.Time      `json:"createTime"`
}

type SyncTriggerRequest struct {
	ClientID string `json:"client_id" validate:"required"`
	SyncType string `json:"sync_type" validate:"required"`
}
