package coordination

import (
	"fmt"
	"net/url"

	"flowsync/internal/domain"
)

// GetClientStatus asks the server for its view of this client.
func (c *Channel) GetClientStatus() (*domain.ClientStatus, error) {
	clientID := c.Identity().ClientID

	var status domain.ClientStatus
	path := fmt.Sprintf("/api/v1/coordination/status/%s", url.PathEscape(clientID))
	if err := c.getJSON(path, &status); err != nil {
		return nil, fmt.Errorf("failed to fetch client status: %w", err)
	}
	return &status, nil
}

func (c *Channel) GetCoordinationStats() (*domain.CoordinationStats, error) {
	var stats domain.CoordinationStats
	if err := c.getJSON("/api/v1/coordination/stats", &stats); err != nil {
		return nil, fmt.Errorf("failed to fetch coordination stats: %w", err)
	}
	return &stats, nil
}

// TriggerSync asks the server to push a data_sync nudge back to this client.
func (c *Channel) TriggerSync(syncType string) error {
	req := domain.SyncTriggerRequest{
		ClientID: c.Identity().ClientID,
		SyncType: syncType,
	}
	if err := c.postJSON("/api/v1/coordination/sync/trigger", req, nil); err != nil {
		return fmt.Errorf("failed to trigger sync: %w", err)
	}
	return nil
}
