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

type VersionHandler struct {
	service  *service.LedgerService
	validate *validator.Validate
}

func NewVersionHandler(service *service.LedgerService) *VersionHandler {
	return &VersionHandler{
		service:  service,
		validate: validator.New(),
	}
}

func (h *VersionHandler) List(w http.ResponseWriter, r *http.Request) {
	workflowID := mux.Vars(r)["id"]
	if workflowID == "" {
		response.BadRequest(w, "Workflow ID is required")
		return
	}

	versions, err := h.service.List(workflowID)
	if err != nil {
		response.InternalError(w, "Failed to list versions")
		return
	}

	response.Success(w, versions)
}

func (h *VersionHandler) Create(w http.ResponseWriter, r *http.Request) {
	workflowID := mux.Vars(r)["id"]
	if workflowID == "" {
		response.BadRequest(w, "Workflow ID is required")
		return
	}

	var req domain.CreateVersionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request payload")
		return
	}
	req.WorkflowID = workflowID

	if err := h.validate.Struct(req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	version, err := h.service.Create(&req)
	if err != nil {
		response.InternalError(w, "Failed to create version")
		return
	}

	response.Created(w, version)
}

func (h *VersionHandler) Rollback(w http.ResponseWriter, r *http.Request) {
	versionID := mux.Vars(r)["id"]
	if versionID == "" {
		response.BadRequest(w, "Version ID is required")
		return
	}

	var req struct {
		WorkflowID string `json:"workflow_id" validate:"required"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request payload")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	version, err := h.service.Rollback(req.WorkflowID, versionID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			response.NotFound(w, "Version not found")
		case errors.Is(err, service.ErrInvalidOperation):
			response.BadRequest(w, err.Error())
		default:
			response.InternalError(w, "Failed to roll back version")
		}
		return
	}

	response.Success(w, version)
}

func (h *VersionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	versionID := mux.Vars(r)["id"]
	if versionID == "" {
		response.BadRequest(w, "Version ID is required")
		return
	}

	if err := h.service.Delete(versionID); err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			response.NotFound(w, "Version not found")
		case errors.Is(err, service.ErrInvalidOperation):
			response.Conflict(w, err.Error())
		default:
			response.InternalError(w, "Failed to delete version")
		}
		return
	}

	response.Success(w, map[string]string{"message": "Version deleted successfully"})
}

func (h *VersionHandler) BatchDelete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		VersionIDs []string `json:"version_ids" validate:"required,min=1"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request payload")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	if err := h.service.BatchDelete(req.VersionIDs); err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			response.NotFound(w, "Version not found")
		case errors.Is(err, service.ErrInvalidOperation):
			response.Conflict(w, err.Error())
		default:
			response.InternalError(w, "Failed to delete versions")
		}
		return
	}

	response.Success(w, map[string]string{"message": "Versions deleted successfully"})
}

func (h *VersionHandler) Tag(w http.ResponseWriter, r *http.Request) {
	versionID := mux.Vars(r)["id"]
	if versionID == "" {
		response.BadRequest(w, "Version ID is required")
		return
	}

	var req struct {
		Tag string `json:"tag" validate:"required"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request payload")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	version, err := h.service.Tag(versionID, req.Tag)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			response.NotFound(w, "Version not found")
		case errors.Is(err, service.ErrInvalidOperation):
			response.BadRequest(w, err.Error())
		default:
			response.InternalError(w, "Failed to tag version")
		}
		return
	}

	response.Success(w, version)
}

func (h *VersionHandler) Export(w http.ResponseWriter, r *http.Request) {
	versionID := mux.Vars(r)["id"]
	if versionID == "" {
		response.BadRequest(w, "Version ID is required")
		return
	}

	export, err := h.service.Export(versionID)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			response.NotFound(w, "Version not found")
			return
		}
		response.InternalError(w, "Failed to export version")
		return
	}

	response.Success(w, export)
}

func (h *VersionHandler) Compare(w http.ResponseWriter, r *http.Request) {
	v1 := r.URL.Query().Get("v1")
	v2 := r.URL.Query().Get("v2")
	if v1 == "" || v2 == "" {
		response.BadRequest(w, "Both v1 and v2 query parameters are required")
		return
	}

	result, err := h.service.Compare(v1, v2)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			response.NotFound(w, "Version not found")
			return
		}
		response.InternalError(w, "Failed to compare versions")
		return
	}

	response.Success(w, result)
}
