package coordination

import (
	"log"

	"flowsync/internal/domain"
)

const eventBuffer = 16

// Events exposes the channel's observable signals as typed buffered channels.
// Consumers own the receive side; a full buffer drops the event with a log
// line instead of blocking the protocol loops.
type Events struct {
	Heartbeat    chan *domain.HeartbeatAck
	ModeChanged  chan domain.ModeChange
	ModeMismatch chan domain.ModeMismatch
	SyncRequired chan domain.DataSyncPayload
	Notification chan domain.NotificationPayload
}

func newEvents() *Events {
	return &Events{
		Heartbeat:    make(chan *domain.HeartbeatAck, eventBuffer),
		ModeChanged:  make(chan domain.ModeChange, eventBuffer),
		ModeMismatch: make(chan domain.ModeMismatch, eventBuffer),
		SyncRequired: make(chan domain.DataSyncPayload, eventBuffer),
		Notification: make(chan domain.NotificationPayload, eventBuffer),
	}
}

func (e *Events) emitHeartbeat(ack *domain.HeartbeatAck) {
	select {
	case e.Heartbeat <- ack:
	default:
		log.Printf("[COORD] heartbeat event dropped, buffer full")
	}
}

func (e *Events) emitModeChanged(change domain.ModeChange) {
	select {
	case e.ModeChanged <- change:
	default:
		log.Printf("[COORD] mode-changed event dropped, buffer full")
	}
}

func (e *Events) emitModeMismatch(mismatch domain.ModeMismatch) {
	select {
	case e.ModeMismatch <- mismatch:
	default:
		log.Printf("[COORD] mode-mismatch event dropped, buffer full")
	}
}

func (e *Events) emitSyncRequired(payload domain.DataSyncPayload) {
	select {
	case e.SyncRequired <- payload:
	default:
		log.Printf("[COORD] sync-required event dropped, buffer full")
	}
}

func (e *Events) emitNotification(payload domain.NotificationPayload) {
	select {
	case e.Notification <- payload:
	default:
		log.Printf("[COORD] notification event dropped, buffer full")
	}
}
