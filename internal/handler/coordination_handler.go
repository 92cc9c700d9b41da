package handler

import (
	"encoding/json"
	"net/http"

	"flowsync/internal/domain"
	"flowsync/internal/service"
	"flowsync/pkg/response"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
)

type CoordinationHandler struct {
	heartbeats *service.HeartbeatService
	sync       *service.SyncService
	hub        ConnectionCounter
	validate   *validator.Validate
}

// ConnectionCounter exposes the hub's live connection count for stats.
type ConnectionCounter interface {
	ConnectedClients() int
}

func NewCoordinationHandler(heartbeats *service.HeartbeatService, sync *service.SyncService, hub ConnectionCounter) *CoordinationHandler {
	return &CoordinationHandler{
		heartbeats: heartbeats,
		sync:       sync,
		hub:        hub,
		validate:   validator.New(),
	}
}

func (h *CoordinationHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	var hb domain.Heartbeat
	if err := json.NewDecoder(r.Body).Decode(&hb); err != nil {
		response.BadRequest(w, "Invalid request payload")
		return
	}

	if err := h.validate.Struct(hb); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	ack := h.heartbeats.ProcessHeartbeat(&hb)
	response.Success(w, ack)
}

// ReportStatus is fire-and-forget for the client: it always acknowledges once
// the payload parses.
func (h *CoordinationHandler) ReportStatus(w http.ResponseWriter, r *http.Request) {
	var report domain.StatusReport
	if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
		response.BadRequest(w, "Invalid request payload")
		return
	}

	if err := h.validate.Struct(report); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	h.heartbeats.RecordStatus(&report)
	response.Success(w, map[string]string{"message": "Status recorded"})
}

func (h *CoordinationHandler) ClientStatus(w http.ResponseWriter, r *http.Request) {
	clientID := mux.Vars(r)["clientId"]
	if clientID == "" {
		response.BadRequest(w, "Client ID is required")
		return
	}

	response.Success(w, h.heartbeats.ClientStatus(clientID))
}

func (h *CoordinationHandler) Stats(w http.ResponseWriter, r *http.Request) {
	response.Success(w, h.sync.Stats(h.hub.ConnectedClients()))
}

func (h *CoordinationHandler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	var req domain.SyncTriggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request payload")
		return
	}

	if err := h.validate.Struct(req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	if err := h.sync.TriggerSync(&req); err != nil {
		response.NotFound(w, err.Error())
		return
	}

	response.Success(w, map[string]string{"message": "Sync triggered"})
}
