package websocket

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"flowsync/internal/domain"
)

type ClientMessage struct {
	Client  *Client
	Message []byte
}

// Manager is the hub for the duplex coordination channel. Each client id owns
// exactly one connection slot: a new connection for an id the hub already
// knows replaces the old one, which covers reconnects after a drop.
type Manager struct {
	clients       map[string]*Client
	clientsMutex  sync.RWMutex
	Register      chan *Client
	Unregister    chan *Client
	HandleMessage chan *ClientMessage
	writeWait     time.Duration
	pongWait      time.Duration
	pingPeriod    time.Duration

	serverMode     func() domain.Mode
	messageHandler MessageHandler
}

type MessageHandler interface {
	HandleChannelMessage(client *Client, msg *domain.ChannelMessage) error
}

func NewManager(writeWait, pongWait, pingPeriod time.Duration, serverMode func() domain.Mode) *Manager {
	return &Manager{
		clients:       make(map[string]*Client),
		Register:      make(chan *Client),
		Unregister:    make(chan *Client),
		HandleMessage: make(chan *ClientMessage),
		writeWait:     writeWait,
		pongWait:      pongWait,
		pingPeriod:    pingPeriod,
		serverMode:    serverMode,
	}
}

func (m *Manager) SetMessageHandler(handler MessageHandler) {
	m.messageHandler = handler
}

func (m *Manager) Run() {
	for {
		select {
		case client := <-m.Register:
			m.registerClient(client)

		case client := <-m.Unregister:
			m.unregisterClient(client)

		case clientMsg := <-m.HandleMessage:
			m.processMessage(clientMsg)
		}
	}
}

func (m *Manager) registerClient(client *Client) {
	m.clientsMutex.Lock()

	if old, ok := m.clients[client.ClientID]; ok {
		// Reconnect: the fresh connection wins the slot.
		close(old.Send)
		old.Conn.Close()
		log.Printf("[WS] replacing connection for client %s", client.ClientID)
	}
	m.clients[client.ClientID] = client
	m.clientsMutex.Unlock()

	log.Printf("[WS] client connected: %s (session: %s, mode: %s)", client.ClientID, client.SessionID, client.Mode)

	welcome, err := domain.NewChannelMessage(domain.TypeWelcome, domain.WelcomePayload{
		ClientID:   client.ClientID,
		ServerMode: m.serverMode(),
		ServerTime: time.Now().UnixMilli(),
	})
	if err == nil {
		m.deliver(client, welcome)
	}
}

func (m *Manager) unregisterClient(client *Client) {
	m.clientsMutex.Lock()
	defer m.clientsMutex.Unlock()

	// Only the slot owner unregisters; a replaced connection must not evict
	// its successor.
	if current, ok := m.clients[client.ClientID]; ok && current == client {
		delete(m.clients, client.ClientID)
		close(client.Send)
		log.Printf("[WS] client disconnected: %s", client.ClientID)
	}
}

func (m *Manager) processMessage(clientMsg *ClientMessage) {
	var msg domain.ChannelMessage
	if err := json.Unmarshal(clientMsg.Message, &msg); err != nil {
		log.Printf("[WS] error unmarshaling message: %v", err)
		return
	}

	if m.messageHandler != nil {
		if err := m.messageHandler.HandleChannelMessage(clientMsg.Client, &msg); err != nil {
			log.Printf("[WS] error handling %s message: %v", msg.Type, err)
		}
	}
}

// SendToClient pushes one frame to one client. Unknown or unreachable clients
// are an error so callers can fall back to the heartbeat path.
func (m *Manager) SendToClient(clientID string, message *domain.ChannelMessage) error {
	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()

	client, exists := m.clients[clientID]
	if !exists {
		return fmt.Errorf("client %s is not connected", clientID)
	}

	return m.deliver(client, message)
}

// Broadcast pushes one frame to every connected client and reports how many
// received it.
func (m *Manager) Broadcast(message *domain.ChannelMessage) int {
	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()

	delivered := 0
	for _, client := range m.clients {
		if err := m.deliver(client, message); err == nil {
			delivered++
		}
	}
	return delivered
}

// BroadcastModeUpdate tells every client about one client's mode switch. The
// frame is advisory; nothing forces the receivers to follow.
func (m *Manager) BroadcastModeUpdate(update domain.ModeUpdatePayload) {
	msg, err := domain.NewChannelMessage(domain.TypeModeUpdate, update)
	if err != nil {
		log.Printf("[WS] error building mode update: %v", err)
		return
	}
	m.Broadcast(msg)
}

func (m *Manager) BroadcastSystemStatus(status *domain.SystemStatus) {
	msg, err := domain.NewChannelMessage(domain.TypeSystemStatus, status)
	if err != nil {
		log.Printf("[WS] error building system status: %v", err)
		return
	}
	m.Broadcast(msg)
}

func (m *Manager) deliver(client *Client, message *domain.ChannelMessage) error {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		return err
	}

	select {
	case client.Send <- messageBytes:
		return nil
	default:
		log.Printf("[WS] client %s send buffer full, dropping connection", client.ClientID)
		go func() { m.Unregister <- client }()
		return fmt.Errorf("client %s send buffer full", client.ClientID)
	}
}

func (m *Manager) ConnectedClients() int {
	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()
	return len(m.clients)
}

func (m *Manager) IsConnected(clientID string) bool {
	m.clientsMutex.RLock()
	defer m.clientsMutex.RUnlock()
	_, ok := m.clients[clientID]
	return ok
}
