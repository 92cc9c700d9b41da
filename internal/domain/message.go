package domain

import (
	"encoding/json"
	"time"
)

type MessageType string

const (
	TypeConnect           MessageType = "connect"
	TypeWelcome           MessageType = "welcome"
	TypeHeartbeatResponse MessageType = "heartbeat_response"
	TypeModeSwitch        MessageType = "mode_switch"
	TypeModeUpdate        MessageType = "mode_update"
	TypeDataSync          MessageType = "data_sync"
	TypeNotification      MessageType = "notification"
	TypePing              MessageType = "ping"
	TypePong              MessageType = "pong"
	TypeSystemStatus      MessageType = "system_status"
)

// ChannelMessage is the frame exchanged in both directions over the duplex
// channel. Data is left raw so each handler decodes its own payload.
type ChannelMessage struct {
	Type          MessageType     `json:"type"`
	Timestamp     int64           `json:"timestamp"`
	Data          json.RawMessage `json:"data,omitempty"`
	MessageID     string          `json:"message_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
}

func NewChannelMessage(msgType MessageType, payload any) (*ChannelMessage, error) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		raw = data
	}

	return &ChannelMessage{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      raw,
	}, nil
}

func (m *ChannelMessage) UnmarshalData(v any) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

type ConnectPayload struct {
	ClientID  string `json:"client_id"`
	SessionID string `json:"session_id"`
	Mode      Mode   `json:"mode"`
}

type WelcomePayload struct {
	ClientID   string `json:"client_id"`
	ServerMode Mode   `json:"server_mode"`
	ServerTime int64  `json:"server_time"`
}

type ModeSwitchPayload struct {
	NewMode       Mode   `json:"new_mode"`
	Reason        string `json:"reason"`
	EffectiveTime int64  `json:"effective_time"`
}

type ModeUpdatePayload struct {
	ClientID string `json:"client_id"`
	OldMode  Mode   `json:"old_mode"`
	NewMode  Mode   `json:"new_mode"`
	Reason   string `json:"reason"`
}

type DataSyncPayload struct {
	ClientID string          `json:"client_id"`
	SyncType string          `json:"sync_type"`
	Data     json.RawMessage `json:"data,omitempty"`
}

type NotificationPayload struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Level   string `json:"level"`
	Sender  string `json:"sender,omitempty"`
}

// PongPayload answers a server ping with both sides' clocks.
type PongPayload struct {
	ReceivedAt int64 `json:"received_at"`
	ClientTime int64 `json:"client_time"`
}
