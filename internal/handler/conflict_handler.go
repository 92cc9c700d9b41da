package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"flowsync/internal/domain"
	"flowsync/internal/service"
	"flowsync/pkg/response"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
)

type ConflictHandler struct {
	service   *service.ResolverService
	workflows *service.WorkflowService
	validate  *validator.Validate
}

func NewConflictHandler(resolver *service.ResolverService, workflows *service.WorkflowService) *ConflictHandler {
	return &ConflictHandler{
		service:   resolver,
		workflows: workflows,
		validate:  validator.New(),
	}
}

// Detect compares a client's local copy of a workflow against the server's
// current record. A divergence is persisted and returned with 409 so the
// client can resolve it before retrying the write.
func (h *ConflictHandler) Detect(w http.ResponseWriter, r *http.Request) {
	workflowID := mux.Vars(r)["id"]
	if workflowID == "" {
		response.BadRequest(w, "Workflow ID is required")
		return
	}

	var req domain.DetectConflictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request payload")
		return
	}

	if err := h.validate.Struct(req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	workflow, err := h.workflows.Get(workflowID)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			response.NotFound(w, "Workflow not found")
			return
		}
		response.InternalError(w, "Failed to fetch workflow")
		return
	}

	err = h.service.Reconcile(workflowID, req.Content, workflow.Content, req.UpdateTime, workflow.UpdateTime)
	if err != nil {
		var conflictErr *service.ConflictError
		if errors.As(err, &conflictErr) {
			response.JSON(w, http.StatusConflict, conflictErr.Conflict)
			return
		}
		response.InternalError(w, "Failed to run conflict detection")
		return
	}

	response.Success(w, map[string]any{"workflow_id": workflowID, "divergent": false})
}

func (h *ConflictHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	conflicts, err := h.service.ListPending()
	if err != nil {
		response.InternalError(w, "Failed to list conflicts")
		return
	}

	response.Success(w, conflicts)
}

func (h *ConflictHandler) Get(w http.ResponseWriter, r *http.Request) {
	conflictID := mux.Vars(r)["id"]
	if conflictID == "" {
		response.BadRequest(w, "Conflict ID is required")
		return
	}

	conflict, err := h.service.GetDetail(conflictID)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			response.NotFound(w, "Conflict not found")
			return
		}
		response.InternalError(w, "Failed to fetch conflict")
		return
	}

	response.Success(w, conflict)
}

func (h *ConflictHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	conflictID := mux.Vars(r)["id"]
	if conflictID == "" {
		response.BadRequest(w, "Conflict ID is required")
		return
	}

	var req domain.Resolution
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request payload")
		return
	}
	req.ConflictID = conflictID

	if err := h.validate.Struct(req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	record, err := h.service.Resolve(&req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			response.NotFound(w, "Conflict not found")
		case errors.Is(err, service.ErrInvalidOperation):
			response.Conflict(w, err.Error())
		default:
			response.InternalError(w, "Failed to resolve conflict")
		}
		return
	}

	response.Success(w, record)
}
