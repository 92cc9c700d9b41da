package service

import (
	"fmt"
	"log"
	"sync"
	"time"

	"flowsync/internal/domain"
)

// Notifier pushes a channel message to one connected client. The websocket
// hub satisfies this.
type Notifier interface {
	SendToClient(clientID string, msg *domain.ChannelMessage) error
}

// SyncService is the server side of sync triggering: it nudges a client over
// the duplex channel and flags its heartbeat record as a fallback for clients
// not currently connected.
type SyncService struct {
	notifier   Notifier
	heartbeats *HeartbeatService

	mu        sync.Mutex
	triggered int
	delivered int
	deferred  int
}

func NewSyncService(notifier Notifier, heartbeats *HeartbeatService) *SyncService {
	return &SyncService{notifier: notifier, heartbeats: heartbeats}
}

// TriggerSync sends a data_sync frame to the client. Delivery failure is not
// fatal: the client is flagged so its next heartbeat ack carries needs_sync.
func (s *SyncService) TriggerSync(req *domain.SyncTriggerRequest) error {
	s.mu.Lock()
	s.triggered++
	s.mu.Unlock()

	msg, err := domain.NewChannelMessage(domain.TypeDataSync, domain.DataSyncPayload{
		ClientID: req.ClientID,
		SyncType: req.SyncType,
	})
	if err != nil {
		return fmt.Errorf("failed to build sync message: %w", err)
	}

	known := s.heartbeats.RequestSync(req.ClientID)

	if err := s.notifier.SendToClient(req.ClientID, msg); err != nil {
		s.mu.Lock()
		s.deferred++
		s.mu.Unlock()

		if !known {
			return fmt.Errorf("client %s is not connected and has no heartbeat record", req.ClientID)
		}
		log.Printf("[SYNC] client %s not reachable over channel, deferred to heartbeat: %v", req.ClientID, err)
		return nil
	}

	s.mu.Lock()
	s.delivered++
	s.mu.Unlock()

	log.Printf("[SYNC] sync triggered for client %s (type=%s)", req.ClientID, req.SyncType)
	return nil
}

// Broadcast pushes a notification frame to one client, used by the admin
// notification route.
func (s *SyncService) Notify(clientID string, payload domain.NotificationPayload) error {
	msg, err := domain.NewChannelMessage(domain.TypeNotification, payload)
	if err != nil {
		return fmt.Errorf("failed to build notification: %w", err)
	}
	return s.notifier.SendToClient(clientID, msg)
}

// Counters reports delivery totals since startup, folded into coordination
// stats.
func (s *SyncService) Counters() (triggered, delivered, deferred int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.triggered, s.delivered, s.deferred
}

// Stats merges heartbeat registry numbers with channel delivery counters.
func (s *SyncService) Stats(wsClients int) *domain.CoordinationStats {
	stats := s.heartbeats.Stats()

	s.mu.Lock()
	stats.SyncQueueSize = s.triggered - s.delivered - s.deferred
	if stats.SyncQueueSize < 0 {
		stats.SyncQueueSize = 0
	}
	stats.PendingSyncTasks = stats.SyncQueueSize
	stats.SuccessSyncTasks = s.delivered
	stats.FailedSyncTasks = s.deferred
	s.mu.Unlock()

	stats.WebSocketClients = wsClients
	stats.LastUpdateTime = time.Now().UnixMilli()
	return stats
}
