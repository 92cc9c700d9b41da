package service

import (
	"log"
	"sync"
	"time"

	"flowsync/internal/domain"
)

const (
	statusHealthy  = "HEALTHY"
	statusMissing  = "MISSING"
	statusTimeout  = "TIMEOUT"
	statusInactive = "INACTIVE"
	statusNotFound = "NOT_FOUND"
)

type clientRecord struct {
	clientID      string
	sessionID     string
	mode          domain.Mode
	clientVersion string
	platform      string
	lastSeen      time.Time
	needsSync     bool
}

// HeartbeatService keeps the server-side registry of known clients and
// answers each heartbeat with the server's current view. Records are held in
// memory; a client that never reconnects is swept after the inactive window.
type HeartbeatService struct {
	mu         sync.RWMutex
	clients    map[string]*clientRecord
	serverMode domain.Mode
	interval   time.Duration

	serverVersion string
	startedAt     time.Time
}

func NewHeartbeatService(interval time.Duration, serverVersion string) *HeartbeatService {
	return &HeartbeatService{
		clients:       make(map[string]*clientRecord),
		serverMode:    domain.ModeOnline,
		interval:      interval,
		serverVersion: serverVersion,
		startedAt:     time.Now(),
	}
}

// ProcessHeartbeat registers or refreshes the client and builds the ack. The
// mismatch signal in the ack is advisory; the server never forces a switch.
func (s *HeartbeatService) ProcessHeartbeat(hb *domain.Heartbeat) *domain.HeartbeatAck {
	now := time.Now()

	s.mu.Lock()
	rec, ok := s.clients[hb.ClientID]
	if !ok {
		rec = &clientRecord{clientID: hb.ClientID}
		s.clients[hb.ClientID] = rec
		log.Printf("[HEARTBEAT] client registered: %s (mode=%s)", hb.ClientID, hb.Mode)
	}
	if rec.mode != "" && rec.mode != hb.Mode {
		log.Printf("[HEARTBEAT] client %s switched mode: %s -> %s", hb.ClientID, rec.mode, hb.Mode)
	}
	rec.sessionID = hb.SessionID
	rec.mode = hb.Mode
	rec.clientVersion = hb.ClientVersion
	rec.platform = hb.Platform
	rec.lastSeen = now

	needsSync := rec.needsSync
	rec.needsSync = false

	serverMode := s.serverMode
	interval := s.interval
	var syncData *domain.SystemStatus
	if needsSync {
		syncData = s.systemStatusLocked(now)
	}
	s.mu.Unlock()

	consistent := modeConsistent(hb.Mode, serverMode)

	ack := &domain.HeartbeatAck{
		Timestamp:             hb.Timestamp,
		ServerTime:            now.UnixMilli(),
		ServerMode:            serverMode,
		NextHeartbeatInterval: interval.Milliseconds(),
		NeedsSync:             needsSync,
		SyncData:              syncData,
		ModeConsistent:        consistent,
	}
	if !consistent {
		ack.SuggestedMode = serverMode
	}
	return ack
}

// RecordStatus handles the fire-and-forget status report path. Unknown
// clients are registered so a report alone is enough to show up in stats.
func (s *HeartbeatService) RecordStatus(report *domain.StatusReport) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.clients[report.ClientID]
	if !ok {
		rec = &clientRecord{clientID: report.ClientID}
		s.clients[report.ClientID] = rec
	}
	rec.mode = report.Mode
	rec.lastSeen = time.Now()
}

// RequestSync flags the client so its next heartbeat ack carries needs_sync.
// The flag is cleared on delivery.
func (s *HeartbeatService) RequestSync(clientID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.clients[clientID]
	if !ok {
		return false
	}
	rec.needsSync = true
	return true
}

func (s *HeartbeatService) ClientStatus(clientID string) *domain.ClientStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.clients[clientID]
	if !ok {
		return &domain.ClientStatus{
			ClientID:        clientID,
			HeartbeatStatus: statusNotFound,
		}
	}

	status := s.healthOf(rec, time.Now())
	consistent := modeConsistent(rec.mode, s.serverMode)

	cs := &domain.ClientStatus{
		ClientID:          rec.clientID,
		HeartbeatStatus:   status,
		Online:            status == statusHealthy || status == statusMissing,
		LastHeartbeatTime: rec.lastSeen.UnixMilli(),
		ModeConsistent:    consistent,
		CurrentMode:       rec.mode,
	}
	if !consistent {
		cs.SuggestedMode = s.serverMode
	}
	return cs
}

func (s *HeartbeatService) Stats() *domain.CoordinationStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	stats := &domain.CoordinationStats{
		TotalClients:   len(s.clients),
		LastUpdateTime: now.UnixMilli(),
	}

	for _, rec := range s.clients {
		switch s.healthOf(rec, now) {
		case statusHealthy:
			stats.HealthyClients++
			stats.ActiveClients++
		case statusMissing, statusTimeout:
			stats.ActiveClients++
		}
		if modeConsistent(rec.mode, s.serverMode) {
			continue
		}
		stats.InconsistencyCount++
	}

	if stats.TotalClients > 0 {
		stats.HeartbeatHealthRate = float64(stats.HealthyClients) / float64(stats.TotalClients)
		stats.ModeConsistencyRate = float64(stats.TotalClients-stats.InconsistencyCount) / float64(stats.TotalClients)
	}
	return stats
}

// Sweep drops clients that have been silent past the inactive window and
// returns how many were removed.
func (s *HeartbeatService) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-s.inactiveWindow())
	removed := 0
	for id, rec := range s.clients {
		if rec.lastSeen.Before(cutoff) {
			delete(s.clients, id)
			removed++
		}
	}
	if removed > 0 {
		log.Printf("[HEARTBEAT] swept %d inactive clients", removed)
	}
	return removed
}

func (s *HeartbeatService) SetServerMode(mode domain.Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.serverMode = mode
	log.Printf("[HEARTBEAT] server mode set to %s", mode)
}

func (s *HeartbeatService) ServerMode() domain.Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.serverMode
}

// SetInterval changes the interval advertised in subsequent acks, letting the
// server throttle or tighten the heartbeat cadence fleet-wide.
func (s *HeartbeatService) SetInterval(interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interval = interval
}

func (s *HeartbeatService) SystemStatus() *domain.SystemStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.systemStatusLocked(time.Now())
}

// systemStatusLocked requires s.mu to be held.
func (s *HeartbeatService) systemStatusLocked(now time.Time) *domain.SystemStatus {
	return &domain.SystemStatus{
		ServerTime:    now.UnixMilli(),
		ServerMode:    s.serverMode,
		ServerVersion: s.serverVersion,
		SystemStatus:  "running",
		Statistics: map[string]any{
			"uptime_seconds": int64(now.Sub(s.startedAt).Seconds()),
			"known_clients":  len(s.clients),
		},
	}
}

// healthOf grades staleness against the advertised interval: within 2x is
// healthy, within 4x missing, within the inactive window timed out.
func (s *HeartbeatService) healthOf(rec *clientRecord, now time.Time) string {
	elapsed := now.Sub(rec.lastSeen)
	switch {
	case elapsed <= 2*s.interval:
		return statusHealthy
	case elapsed <= 4*s.interval:
		return statusMissing
	case elapsed <= s.inactiveWindow():
		return statusTimeout
	default:
		return statusInactive
	}
}

func (s *HeartbeatService) inactiveWindow() time.Duration {
	return 10 * s.interval
}

// modeConsistent treats mixed as compatible with everything: a mixed client
// can serve either path, so only a hard online/offline split is a mismatch.
func modeConsistent(clientMode, serverMode domain.Mode) bool {
	if clientMode == serverMode {
		return true
	}
	return clientMode == domain.ModeMixed || serverMode == domain.ModeMixed
}
