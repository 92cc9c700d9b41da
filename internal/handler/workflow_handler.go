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

type WorkflowHandler struct {
	service  *service.WorkflowService
	validate *validator.Validate
}

func NewWorkflowHandler(service *service.WorkflowService) *WorkflowHandler {
	return &WorkflowHandler{
		service:  service,
		validate: validator.New(),
	}
}

func (h *WorkflowHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateWorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request payload")
		return
	}

	if err := h.validate.Struct(req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	workflow, err := h.service.Create(&req)
	if err != nil {
		response.InternalError(w, "Failed to create workflow")
		return
	}

	response.Created(w, workflow)
}

func (h *WorkflowHandler) List(w http.ResponseWriter, r *http.Request) {
	workflows, err := h.service.List()
	if err != nil {
		response.InternalError(w, "Failed to list workflows")
		return
	}

	response.Success(w, workflows)
}

func (h *WorkflowHandler) Get(w http.ResponseWriter, r *http.Request) {
	workflowID := mux.Vars(r)["id"]
	if workflowID == "" {
		response.BadRequest(w, "Workflow ID is required")
		return
	}

	workflow, err := h.service.Get(workflowID)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			response.NotFound(w, "Workflow not found")
			return
		}
		response.InternalError(w, "Failed to fetch workflow")
		return
	}

	response.Success(w, workflow)
}

func (h *WorkflowHandler) Update(w http.ResponseWriter, r *http.Request) {
	workflowID := mux.Vars(r)["id"]
	if workflowID == "" {
		response.BadRequest(w, "Workflow ID is required")
		return
	}

	var req domain.UpdateWorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request payload")
		return
	}

	workflow, err := h.service.Update(workflowID, &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			response.NotFound(w, "Workflow not found")
		case errors.Is(err, service.ErrInvalidOperation):
			response.BadRequest(w, err.Error())
		default:
			response.InternalError(w, "Failed to update workflow")
		}
		return
	}

	response.Success(w, workflow)
}

func (h *WorkflowHandler) Delete(w http.ResponseWriter, r *http.Request) {
	workflowID := mux.Vars(r)["id"]
	if workflowID == "" {
		response.BadRequest(w, "Workflow ID is required")
		return
	}

	if err := h.service.Delete(workflowID); err != nil {
		if errors.Is(err, service.ErrNotFound) {
			response.NotFound(w, "Workflow not found")
			return
		}
		response.InternalError(w, "Failed to delete workflow")
		return
	}

	response.Success(w, map[string]string{"message": "Workflow deleted successfully"})
}

func (h *WorkflowHandler) Execute(w http.ResponseWriter, r *http.Request) {
	workflowID := mux.Vars(r)["id"]
	if workflowID == "" {
		response.BadRequest(w, "Workflow ID is required")
		return
	}

	var req domain.ExecuteWorkflowRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.BadRequest(w, "Invalid request payload")
			return
		}
	}

	result, err := h.service.Execute(workflowID, &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			response.NotFound(w, "Workflow not found")
		case errors.Is(err, service.ErrInvalidOperation):
			response.BadRequest(w, err.Error())
		default:
			response.InternalError(w, "Failed to execute workflow")
		}
		return
	}

	response.Success(w, result)
}
