package handler

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"flowsync/internal/domain"
	"flowsync/internal/service"
	"flowsync/internal/websocket"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"
)

type WebSocketHandler struct {
	manager  *websocket.Manager
	upgrader ws.Upgrader
}

func NewWebSocketHandler(manager *websocket.Manager) *WebSocketHandler {
	return &WebSocketHandler{
		manager: manager,
		upgrader: ws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// HandleConnection upgrades the duplex channel. Identity rides in query
// parameters; a client without one gets a generated id so the channel still
// works for anonymous tooling.
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	clientID := r.URL.Query().Get("clientId")
	if clientID == "" {
		clientID = uuid.New().String()
	}
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	mode := domain.Mode(r.URL.Query().Get("mode"))
	if !mode.Valid() {
		mode = domain.ModeOnline
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WS] failed to upgrade connection: %v", err)
		return
	}

	client := websocket.NewClient(clientID, sessionID, mode, conn, h.manager)
	h.manager.Register <- client

	go client.WritePump()
	go client.ReadPump()
}

// ChannelMessageHandler dispatches frames arriving from clients.
type ChannelMessageHandler struct {
	heartbeats *service.HeartbeatService
	manager    *websocket.Manager
}

func NewChannelMessageHandler(heartbeats *service.HeartbeatService, manager *websocket.Manager) *ChannelMessageHandler {
	return &ChannelMessageHandler{
		heartbeats: heartbeats,
		manager:    manager,
	}
}

func (h *ChannelMessageHandler) HandleChannelMessage(client *websocket.Client, msg *domain.ChannelMessage) error {
	switch msg.Type {
	case domain.TypeConnect:
		return h.handleConnect(client, msg)

	case domain.TypePing:
		return h.handlePing(client, msg)

	case domain.TypePong:
		// Client answered an application-level ping; liveness only.
		return nil

	case domain.TypeModeSwitch:
		return h.handleModeSwitch(client, msg)

	case domain.TypeDataSync:
		log.Printf("[WS] client %s acknowledged data sync", client.ClientID)
		return nil

	default:
		log.Printf("[WS] unknown message type from %s: %s", client.ClientID, msg.Type)
	}

	return nil
}

func (h *ChannelMessageHandler) handleConnect(client *websocket.Client, msg *domain.ChannelMessage) error {
	var payload domain.ConnectPayload
	if err := msg.UnmarshalData(&payload); err != nil {
		return err
	}

	if payload.Mode.Valid() {
		client.Mode = payload.Mode
	}

	h.heartbeats.RecordStatus(&domain.StatusReport{
		ClientID:  client.ClientID,
		Mode:      client.Mode,
		Status:    "connected",
		Timestamp: time.Now().UnixMilli(),
	})
	return nil
}

func (h *ChannelMessageHandler) handlePing(client *websocket.Client, msg *domain.ChannelMessage) error {
	pong, err := domain.NewChannelMessage(domain.TypePong, domain.PongPayload{
		ReceivedAt: msg.Timestamp,
		ClientTime: time.Now().UnixMilli(),
	})
	if err != nil {
		return err
	}
	pong.CorrelationID = msg.MessageID

	pongBytes, err := json.Marshal(pong)
	if err != nil {
		return err
	}
	client.Send <- pongBytes

	return nil
}

// handleModeSwitch records a client's announced switch and fans the change
// out to the rest of the fleet as an advisory mode_update.
func (h *ChannelMessageHandler) handleModeSwitch(client *websocket.Client, msg *domain.ChannelMessage) error {
	var payload domain.ModeSwitchPayload
	if err := msg.UnmarshalData(&payload); err != nil {
		return err
	}
	if !payload.NewMode.Valid() {
		log.Printf("[WS] client %s announced invalid mode %q", client.ClientID, payload.NewMode)
		return nil
	}

	oldMode := client.Mode
	client.Mode = payload.NewMode

	h.heartbeats.RecordStatus(&domain.StatusReport{
		ClientID:  client.ClientID,
		Mode:      payload.NewMode,
		Status:    "mode_switched",
		Timestamp: time.Now().UnixMilli(),
	})

	h.manager.BroadcastModeUpdate(domain.ModeUpdatePayload{
		ClientID: client.ClientID,
		OldMode:  oldMode,
		NewMode:  payload.NewMode,
		Reason:   payload.Reason,
	})
	return nil
}
