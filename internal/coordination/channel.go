package coordination

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"runtime"
	"strings"
	"sync"
	"time"

	"flowsync/internal/domain"
	"flowsync/internal/store"

	ws "github.com/gorilla/websocket"
)

type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateClosed       State = "closed"
)

const clientVersion = "1.0.0"

// Options configures a Channel. Probe and HTTPClient have working defaults;
// tests inject their own.
type Options struct {
	ServerURL         string
	HeartbeatInterval time.Duration
	ReconnectDelay    time.Duration
	Probe             func() bool
	HTTPClient        *http.Client
}

// Channel is the client half of the coordination protocol: the heartbeat
// loop, the duplex websocket, and the mode controller. It is an explicitly
// constructed service; callers hold the only reference.
type Channel struct {
	store      *store.Store
	serverURL  string
	httpClient *http.Client
	events     *Events
	probe      func() bool
	handlers   map[domain.MessageType]func(*domain.ChannelMessage)

	mu                sync.Mutex
	state             State
	closed            bool
	identity          Identity
	mode              domain.Mode
	modeHistory       []domain.ModeChange
	lastHeartbeat     time.Time
	modeConsistent    bool
	heartbeatInterval time.Duration
	reconnectDelay    time.Duration
	heartbeatTimer    *time.Timer
	reconnectTimer    *time.Timer

	conn    *ws.Conn
	writeMu sync.Mutex
}

func NewChannel(st *store.Store, opts Options) *Channel {
	c := &Channel{
		store:             st,
		serverURL:         strings.TrimRight(opts.ServerURL, "/"),
		httpClient:        opts.HTTPClient,
		events:            newEvents(),
		probe:             opts.Probe,
		state:             StateDisconnected,
		modeConsistent:    true,
		heartbeatInterval: opts.HeartbeatInterval,
		reconnectDelay:    opts.ReconnectDelay,
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if c.heartbeatInterval <= 0 {
		c.heartbeatInterval = 30 * time.Second
	}
	if c.reconnectDelay <= 0 {
		c.reconnectDelay = 5 * time.Second
	}
	if c.probe == nil {
		c.probe = c.defaultProbe
	}

	c.handlers = map[domain.MessageType]func(*domain.ChannelMessage){
		domain.TypeWelcome:           c.handleWelcome,
		domain.TypeHeartbeatResponse: c.handleHeartbeatResponse,
		domain.TypePing:              c.handlePing,
		domain.TypePong:              func(*domain.ChannelMessage) {},
		domain.TypeModeSwitch:        c.handleModeSwitch,
		domain.TypeModeUpdate:        c.handleModeUpdate,
		domain.TypeDataSync:          c.handleDataSync,
		domain.TypeNotification:      c.handleNotification,
		domain.TypeSystemStatus:      c.handleSystemStatus,
	}
	return c
}

func (c *Channel) Events() *Events {
	return c.events
}

// Initialize loads the persisted identity, sends one immediate heartbeat,
// starts the repeating heartbeat, dials the duplex channel, and posts the
// initial status report. Network failures during startup are absorbed: the
// heartbeat loop and the reconnect slot carry on without a reachable server.
func (c *Channel) Initialize(mode domain.Mode) error {
	if !mode.Valid() {
		return fmt.Errorf("invalid mode %q", mode)
	}

	identity, err := LoadIdentity(c.store)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("channel is closed")
	}
	c.identity = identity
	c.mode = mode
	c.state = StateConnecting
	c.mu.Unlock()

	if err := persistMode(c.store, mode); err != nil {
		log.Printf("[COORD] failed to persist mode: %v", err)
	}

	log.Printf("[COORD] initializing channel (client: %s, mode: %s)", identity.ClientID, mode)

	c.sendHeartbeat()
	c.scheduleHeartbeat()
	c.dial()
	c.sendStatusReport("initialized")

	return nil
}

func (c *Channel) Identity() Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

func (c *Channel) Mode() domain.Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Channel) LastHeartbeat() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastHeartbeat
}

func (c *Channel) ModeConsistent() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.modeConsistent
}

// ModeHistory returns the audit trail of mode switches in emission order.
func (c *Channel) ModeHistory() []domain.ModeChange {
	c.mu.Lock()
	defer c.mu.Unlock()
	history := make([]domain.ModeChange, len(c.modeHistory))
	copy(history, c.modeHistory)
	return history
}

// SwitchMode is the single entry point for mode transitions. It persists the
// new mode for the next bootstrap, announces it over the socket best-effort,
// emits a mode-changed event, and reports whether a transition happened.
func (c *Channel) SwitchMode(newMode domain.Mode, reason string) bool {
	if !newMode.Valid() {
		log.Printf("[COORD] refused switch to invalid mode %q", newMode)
		return false
	}

	c.mu.Lock()
	if c.closed || c.mode == newMode {
		c.mu.Unlock()
		return false
	}

	change := domain.ModeChange{
		OldMode:   c.mode,
		NewMode:   newMode,
		Reason:    reason,
		Timestamp: time.Now(),
	}
	c.mode = newMode
	c.modeHistory = append(c.modeHistory, change)
	conn := c.conn
	c.mu.Unlock()

	log.Printf("[COORD] mode switched: %s -> %s (%s)", change.OldMode, newMode, reason)

	if err := persistMode(c.store, newMode); err != nil {
		log.Printf("[COORD] failed to persist mode: %v", err)
	}

	if conn != nil {
		msg, err := domain.NewChannelMessage(domain.TypeModeSwitch, domain.ModeSwitchPayload{
			NewMode:       newMode,
			Reason:        reason,
			EffectiveTime: change.Timestamp.UnixMilli(),
		})
		if err == nil {
			if err := c.writeMessage(conn, msg); err != nil {
				log.Printf("[COORD] failed to announce mode switch: %v", err)
			}
		}
	}

	c.events.emitModeChanged(change)
	return true
}

// Cleanup tears the channel down: timers stopped, socket closed, in-flight
// results discarded. Safe to call more than once and from any goroutine.
func (c *Channel) Cleanup() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.state = StateClosed

	if c.heartbeatTimer != nil {
		c.heartbeatTimer.Stop()
		c.heartbeatTimer = nil
	}
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	log.Printf("[COORD] channel cleaned up")
}

// heartbeat loop

func (c *Channel) scheduleHeartbeat() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if c.heartbeatTimer != nil {
		c.heartbeatTimer.Stop()
	}
	c.heartbeatTimer = time.AfterFunc(c.heartbeatInterval, func() {
		c.sendHeartbeat()
		c.scheduleHeartbeat()
	})
}

func (c *Channel) sendHeartbeat() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	hb := domain.Heartbeat{
		ClientID:      c.identity.ClientID,
		Mode:          c.mode,
		SessionID:     c.identity.SessionID,
		Timestamp:     time.Now().UnixMilli(),
		ClientVersion: clientVersion,
		Platform:      runtime.GOOS,
	}
	c.mu.Unlock()

	var ack domain.HeartbeatAck
	if err := c.postJSON("/api/v1/coordination/heartbeat", hb, &ack); err != nil {
		log.Printf("[COORD] heartbeat failed: %v", err)
		c.handleHeartbeatFailure()
		return
	}

	c.applyAck(&ack)
}

// applyAck folds the server's answer into local state. A mode mismatch is
// advisory: the event is emitted, nothing switches.
func (c *Channel) applyAck(ack *domain.HeartbeatAck) {
	c.mu.Lock()
	c.lastHeartbeat = time.Now()
	c.modeConsistent = ack.ModeConsistent
	currentMode := c.mode

	reschedule := false
	if ack.NextHeartbeatInterval > 0 {
		next := time.Duration(ack.NextHeartbeatInterval) * time.Millisecond
		if next != c.heartbeatInterval {
			c.heartbeatInterval = next
			reschedule = true
		}
	}
	c.mu.Unlock()

	if reschedule {
		log.Printf("[COORD] server adjusted heartbeat interval to %dms", ack.NextHeartbeatInterval)
		c.scheduleHeartbeat()
	}

	c.events.emitHeartbeat(ack)

	if ack.NeedsSync {
		payload := domain.DataSyncPayload{
			ClientID: c.Identity().ClientID,
			SyncType: "heartbeat",
		}
		if ack.SyncData != nil {
			if data, err := json.Marshal(ack.SyncData); err == nil {
				payload.Data = data
			}
		}
		c.events.emitSyncRequired(payload)
	}

	if !ack.ModeConsistent {
		c.events.emitModeMismatch(domain.ModeMismatch{
			CurrentMode:   currentMode,
			SuggestedMode: ack.SuggestedMode,
			ServerMode:    ack.ServerMode,
		})
	}
}

// handleHeartbeatFailure probes the network. A failed probe is the one case
// where the channel switches mode on its own.
func (c *Channel) handleHeartbeatFailure() {
	if c.probe() {
		return
	}

	c.mu.Lock()
	offline := c.mode == domain.ModeOffline
	c.mu.Unlock()
	if offline {
		return
	}

	log.Printf("[COORD] network probe failed, falling back to offline")
	c.SwitchMode(domain.ModeOffline, "network disconnected")
}

func (c *Channel) defaultProbe() bool {
	u, err := url.Parse(c.serverURL)
	if err != nil {
		return false
	}
	host := u.Host
	if u.Port() == "" {
		host = net.JoinHostPort(u.Hostname(), "80")
	}
	conn, err := net.DialTimeout("tcp", host, 2*time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// duplex channel

func (c *Channel) dial() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	identity := c.identity
	mode := c.mode
	c.mu.Unlock()

	wsURL := strings.Replace(c.serverURL, "http", "ws", 1)
	target := fmt.Sprintf("%s/api/v1/ws?clientId=%s&sessionId=%s&mode=%s",
		wsURL, url.QueryEscape(identity.ClientID), url.QueryEscape(identity.SessionID), mode)

	conn, _, err := ws.DefaultDialer.Dial(target, nil)
	if err != nil {
		log.Printf("[COORD] channel dial failed: %v", err)
		c.scheduleReconnect()
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.state = StateConnected
	c.mu.Unlock()

	log.Printf("[COORD] channel connected")

	connect, err := domain.NewChannelMessage(domain.TypeConnect, domain.ConnectPayload{
		ClientID:  identity.ClientID,
		SessionID: identity.SessionID,
		Mode:      mode,
	})
	if err == nil {
		if err := c.writeMessage(conn, connect); err != nil {
			log.Printf("[COORD] failed to send connect message: %v", err)
		}
	}

	go c.readLoop(conn)
}

func (c *Channel) readLoop(conn *ws.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			mine := c.conn == conn
			if mine {
				c.conn = nil
				if !c.closed {
					c.state = StateReconnecting
				}
			}
			closed := c.closed
			c.mu.Unlock()

			if mine && !closed {
				log.Printf("[COORD] channel lost: %v", err)
				c.scheduleReconnect()
			}
			return
		}

		// The server write pump coalesces queued frames into one message,
		// newline-separated, so decode until the payload is exhausted.
		dec := json.NewDecoder(bytes.NewReader(data))
		for {
			var msg domain.ChannelMessage
			if err := dec.Decode(&msg); err != nil {
				if err != io.EOF {
					log.Printf("[COORD] dropping malformed frame: %v", err)
				}
				break
			}
			c.dispatch(&msg)
		}
	}
}

// scheduleReconnect owns the single reconnect slot: scheduling again cancels
// the pending attempt, so at most one dial is ever queued.
func (c *Channel) scheduleReconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
	}
	c.state = StateReconnecting
	c.reconnectTimer = time.AfterFunc(c.reconnectDelay, func() {
		c.mu.Lock()
		c.reconnectTimer = nil
		closed := c.closed
		c.mu.Unlock()
		if !closed {
			c.dial()
		}
	})
}

// PendingReconnect reports whether a reconnect attempt is queued.
func (c *Channel) PendingReconnect() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reconnectTimer != nil
}

func (c *Channel) dispatch(msg *domain.ChannelMessage) {
	handler, ok := c.handlers[msg.Type]
	if !ok {
		log.Printf("[COORD] unknown message type %q dropped", msg.Type)
		return
	}
	handler(msg)
}

func (c *Channel) handleWelcome(msg *domain.ChannelMessage) {
	var payload domain.WelcomePayload
	if err := msg.UnmarshalData(&payload); err != nil {
		log.Printf("[COORD] malformed welcome: %v", err)
		return
	}
	log.Printf("[COORD] welcomed by server (server mode: %s)", payload.ServerMode)
}

func (c *Channel) handleHeartbeatResponse(msg *domain.ChannelMessage) {
	var ack domain.HeartbeatAck
	if err := msg.UnmarshalData(&ack); err != nil {
		log.Printf("[COORD] malformed heartbeat response: %v", err)
		return
	}
	c.applyAck(&ack)
}

func (c *Channel) handlePing(msg *domain.ChannelMessage) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return
	}

	pong, err := domain.NewChannelMessage(domain.TypePong, domain.PongPayload{
		ReceivedAt: msg.Timestamp,
		ClientTime: time.Now().UnixMilli(),
	})
	if err != nil {
		return
	}
	pong.CorrelationID = msg.MessageID

	if err := c.writeMessage(conn, pong); err != nil {
		log.Printf("[COORD] failed to answer ping: %v", err)
	}
}

// handleModeSwitch treats a server-initiated switch request as advisory and
// surfaces it as a mismatch event instead of switching.
func (c *Channel) handleModeSwitch(msg *domain.ChannelMessage) {
	var payload domain.ModeSwitchPayload
	if err := msg.UnmarshalData(&payload); err != nil {
		log.Printf("[COORD] malformed mode switch: %v", err)
		return
	}

	c.events.emitModeMismatch(domain.ModeMismatch{
		CurrentMode:   c.Mode(),
		SuggestedMode: payload.NewMode,
		ServerMode:    payload.NewMode,
	})
}

func (c *Channel) handleModeUpdate(msg *domain.ChannelMessage) {
	var payload domain.ModeUpdatePayload
	if err := msg.UnmarshalData(&payload); err != nil {
		return
	}
	if payload.ClientID == c.Identity().ClientID {
		return
	}
	log.Printf("[COORD] peer %s switched mode: %s -> %s", payload.ClientID, payload.OldMode, payload.NewMode)
}

func (c *Channel) handleDataSync(msg *domain.ChannelMessage) {
	var payload domain.DataSyncPayload
	if err := msg.UnmarshalData(&payload); err != nil {
		log.Printf("[COORD] malformed data sync: %v", err)
		return
	}
	c.events.emitSyncRequired(payload)
}

func (c *Channel) handleNotification(msg *domain.ChannelMessage) {
	var payload domain.NotificationPayload
	if err := msg.UnmarshalData(&payload); err != nil {
		log.Printf("[COORD] malformed notification: %v", err)
		return
	}
	c.events.emitNotification(payload)
}

func (c *Channel) handleSystemStatus(msg *domain.ChannelMessage) {
	var payload domain.SystemStatus
	if err := msg.UnmarshalData(&payload); err != nil {
		return
	}
	log.Printf("[COORD] server status: %s (mode: %s)", payload.SystemStatus, payload.ServerMode)
}

func (c *Channel) writeMessage(conn *ws.Conn, msg *domain.ChannelMessage) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(msg)
}

// HTTP plumbing

func (c *Channel) sendStatusReport(status string) {
	c.mu.Lock()
	report := domain.StatusReport{
		ClientID:  c.identity.ClientID,
		Mode:      c.mode,
		Status:    status,
		Timestamp: time.Now().UnixMilli(),
	}
	c.mu.Unlock()

	if err := c.postJSON("/api/v1/coordination/status", report, nil); err != nil {
		log.Printf("[COORD] status report failed: %v", err)
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

func (c *Channel) postJSON(path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Post(c.serverURL+path, "application/json", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return decodeEnvelope(resp, out)
}

func (c *Channel) getJSON(path string, out any) error {
	resp, err := c.httpClient.Get(c.serverURL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return decodeEnvelope(resp, out)
}

func decodeEnvelope(resp *http.Response, out any) error {
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("malformed server response: %w", err)
	}
	if !env.Success {
		if env.Error != "" {
			return fmt.Errorf("server error: %s", env.Error)
		}
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}
	if out != nil && env.Data != nil {
		return json.Unmarshal(env.Data, out)
	}
	return nil
}
