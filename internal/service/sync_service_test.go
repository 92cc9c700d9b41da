package service

import (
	"errors"
	"testing"

	"flowsync/internal/domain"
)

type mockNotifier struct {
	sent    []*domain.ChannelMessage
	targets []string
	fail    bool
}

func (m *mockNotifier) SendToClient(clientID string, msg *domain.ChannelMessage) error {
	if m.fail {
		return errors.New("client not connected")
	}
	m.targets = append(m.targets, clientID)
	m.sent = append(m.sent, msg)
	return nil
}

func TestSyncService_TriggerSync(t *testing.T) {
	notifier := &mockNotifier{}
	heartbeats := newTestHeartbeatService()
	service := NewSyncService(notifier, heartbeats)

	heartbeats.ProcessHeartbeat(&domain.Heartbeat{ClientID: "client-1", SessionID: "s", Mode: domain.ModeOnline})

	err := service.TriggerSync(&domain.SyncTriggerRequest{ClientID: "client-1", SyncType: "full"})
	if err != nil {
		t.Fatalf("TriggerSync() error = %v", err)
	}

	if len(notifier.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(notifier.sent))
	}
	if notifier.sent[0].Type != domain.TypeDataSync {
		t.Errorf("message type = %s, want data_sync", notifier.sent[0].Type)
	}
	var payload domain.DataSyncPayload
	if err := notifier.sent[0].UnmarshalData(&payload); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	if payload.ClientID != "client-1" || payload.SyncType != "full" {
		t.Errorf("payload = %+v", payload)
	}
}

func TestSyncService_TriggerSyncDefersToHeartbeat(t *testing.T) {
	notifier := &mockNotifier{fail: true}
	heartbeats := newTestHeartbeatService()
	service := NewSyncService(notifier, heartbeats)

	hb := &domain.Heartbeat{ClientID: "client-1", SessionID: "s", Mode: domain.ModeOnline}
	heartbeats.ProcessHeartbeat(hb)

	// Known client, channel down: not an error, the heartbeat path picks it up.
	if err := service.TriggerSync(&domain.SyncTriggerRequest{ClientID: "client-1", SyncType: "full"}); err != nil {
		t.Fatalf("TriggerSync() error = %v", err)
	}
	if ack := heartbeats.ProcessHeartbeat(hb); !ack.NeedsSync {
		t.Error("deferred sync should surface on the next heartbeat ack")
	}

	// Unknown client with no channel is a hard failure.
	if err := service.TriggerSync(&domain.SyncTriggerRequest{ClientID: "ghost", SyncType: "full"}); err == nil {
		t.Error("TriggerSync() for an unreachable unknown client should fail")
	}
}

func TestSyncService_Stats(t *testing.T) {
	notifier := &mockNotifier{}
	heartbeats := newTestHeartbeatService()
	service := NewSyncService(notifier, heartbeats)

	heartbeats.ProcessHeartbeat(&domain.Heartbeat{ClientID: "client-1", SessionID: "s", Mode: domain.ModeOnline})
	service.TriggerSync(&domain.SyncTriggerRequest{ClientID: "client-1", SyncType: "full"})

	notifier.fail = true
	service.TriggerSync(&domain.SyncTriggerRequest{ClientID: "client-1", SyncType: "incremental"})

	stats := service.Stats(3)
	if stats.SuccessSyncTasks != 1 {
		t.Errorf("SuccessSyncTasks = %d, want 1", stats.SuccessSyncTasks)
	}
	if stats.FailedSyncTasks != 1 {
		t.Errorf("FailedSyncTasks = %d, want 1", stats.FailedSyncTasks)
	}
	if stats.WebSocketClients != 3 {
		t.Errorf("WebSocketClients = %d, want 3", stats.WebSocketClients)
	}
	if stats.LastUpdateTime == 0 {
		t.Error("LastUpdateTime should be set")
	}

	triggered, delivered, deferred := service.Counters()
	if triggered != 2 || delivered != 1 || deferred != 1 {
		t.Errorf("Counters() = (%d, %d, %d), want (2, 1, 1)", triggered, delivered, deferred)
	}
}
