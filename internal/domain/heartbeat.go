package domain

// Heartbeat is the periodic liveness and state report sent by a client.
type Heartbeat struct {
	ClientID      string         `json:"client_id" validate:"required"`
	Mode          Mode           `json:"mode" validate:"required,oneof=online offline mixed"`
	SessionID     string         `json:"session_id" validate:"required"`
	Timestamp     int64          `json:"timestamp"`
	ClientVersion string         `json:"client_version"`
	Platform      string         `json:"platform"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// HeartbeatAck carries the server's view of the exchange back to the client.
type HeartbeatAck struct {
	Timestamp             int64         `json:"timestamp"`
	ServerTime            int64         `json:"server_time"`
	ServerMode            Mode          `json:"server_mode"`
	NextHeartbeatInterval int64         `json:"next_heartbeat_interval"`
	NeedsSync             bool          `json:"needs_sync"`
	SyncData              *SystemStatus `json:"sync_data,omitempty"`
	ModeConsistent        bool          `json:"mode_consistent"`
	SuggestedMode         Mode          `json:"suggested_mode,omitempty"`
}

type SystemStatus struct {
	ServerTime    int64          `json:"server_time"`
	ServerMode    Mode           `json:"server_mode"`
	ServerVersion string         `json:"server_version"`
	SystemStatus  string         `json:"system_status"`
	Statistics    map[string]any `json:"statistics,omitempty"`
}

// StatusReport is the fire-and-forget client status notification.
type StatusReport struct {
	ClientID  string `json:"client_id" validate:"required"`
	Mode      Mode   `json:"mode" validate:"required,oneof=online offline mixed"`
	Status    string `json:"status"`
	Timestamp int64  `json:"timestamp"`
}

type ClientStatus struct {
	ClientID          string `json:"client_id"`
	HeartbeatStatus   string `json:"heartbeat_status"`
	Online            bool   `json:"online"`
	LastHeartbeatTime int64  `json:"last_heartbeat_time"`
	ModeConsistent    bool   `json:"mode_consistent"`
	CurrentMode       Mode   `json:"current_mode,omitempty"`
	SuggestedMode     Mode   `json:"suggested_mode,omitempty"`
}

type CoordinationStats struct {
	TotalClients        int     `json:"total_clients"`
	ActiveClients       int     `json:"active_clients"`
	HealthyClients      int     `json:"healthy_clients"`
	HeartbeatHealthRate float64 `json:"heartbeat_health_rate"`
	ModeConsistencyRate float64 `json:"mode_consistency_rate"`
	InconsistencyCount  int     `json:"inconsistency_count"`
	SyncQueueSize       int     `json:"sync_queue_size"`
	PendingSyncTasks    int     `json:"pending_sync_tasks"`
	SuccessSyncTasks    int     `json:"success_sync_tasks"`
	FailedSyncTasks     int     `json:"failed_sync_tasks"`
	WebSocketClients    int     `json:"websocket_connections"`
	LastUpdateTime      int64   `json:"last_update_time"`
}
