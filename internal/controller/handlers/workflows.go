package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"time"

	"docflow/internal/controller/middleware"
	"docflow/internal/destination"
	"docflow/internal/source"
	"docflow/internal/store"
	"docflow/internal/worker/toolrunner"
	"docflow/pkg/api"

	"github.com/google/uuid"
)

// CreateWorkflow handles POST /workflows.
func (h *Handlers) CreateWorkflow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	org, ok := middleware.OrgFromContext(ctx)
	if !ok {
		h.httpError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req api.CreateWorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if msg := validateWorkflow(&req); msg != "" {
		h.httpError(w, msg, http.StatusBadRequest)
		return
	}

	wf := &store.Workflow{
		ID:             uuid.New(),
		OrganizationID: org.ID,
		Name:           req.Name,
		Source: store.ConnectorConfig{
			Kind:     req.Source.Kind,
			Settings: req.Source.Settings,
		},
		Destination: store.ConnectorConfig{
			Kind:     req.Destination.Kind,
			Settings: req.Destination.Settings,
		},
		ToolChain:       make([]store.ToolInstance, 0, len(req.ToolChain)),
		AllowConcurrent: req.AllowConcurrent,
		NotificationURL: req.NotificationURL,
		CreatedAt:       time.Now(),
	}
	for _, t := range req.ToolChain {
		wf.ToolChain = append(wf.ToolChain, store.ToolInstance{
			ToolID:         t.ToolID,
			Runner:         t.Runner,
			Image:          t.Image,
			ServiceURL:     t.ServiceURL,
			Settings:       t.Settings,
			TimeoutSeconds: t.TimeoutSeconds,
		})
	}

	if err := h.store.CreateWorkflow(ctx, nil, wf); err != nil {
		h.httpError(w, "Failed to create workflow", http.StatusInternalServerError)
		return
	}

	h.respondJson(w, http.StatusCreated, api.CreateWorkflowResponse{WorkflowID: wf.ID.String()})
}

// GetWorkflow handles GET /workflows/{id}.
func (h *Handlers) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.loadScopedWorkflow(w, r)
	if !ok {
		return
	}

	resp := api.WorkflowResponse{
		ID:   wf.ID.String(),
		Name: wf.Name,
		Source: api.ConnectorConfig{
			Kind:     wf.Source.Kind,
			Settings: wf.Source.Settings,
		},
		Destination: api.ConnectorConfig{
			Kind:     wf.Destination.Kind,
			Settings: wf.Destination.Settings,
		},
		ToolChain:       make([]api.ToolInstance, 0, len(wf.ToolChain)),
		AllowConcurrent: wf.AllowConcurrent,
		NotificationURL: wf.NotificationURL,
		CreatedAt:       wf.CreatedAt,
	}
	for _, t := range wf.ToolChain {
		resp.ToolChain = append(resp.ToolChain, api.ToolInstance{
			ToolID:         t.ToolID,
			Runner:         t.Runner,
			Image:          t.Image,
			ServiceURL:     t.ServiceURL,
			Settings:       t.Settings,
			TimeoutSeconds: t.TimeoutSeconds,
		})
	}
	h.respondJson(w, http.StatusOK, resp)
}

// validateWorkflow checks a workflow definition against the connector and
// runner registries. Returns an empty string when valid.
func validateWorkflow(req *api.CreateWorkflowRequest) string {
	if req.Name == "" {
		return "Name is required"
	}
	if !slices.Contains(source.Kinds(), req.Source.Kind) {
		return "Unknown source kind"
	}
	if !slices.Contains(destination.Kinds(), req.Destination.Kind) {
		return "Unknown destination kind"
	}
	if len(req.ToolChain) == 0 {
		return "Tool chain must have at least one step"
	}
	for _, t := range req.ToolChain {
		if t.ToolID == "" {
			return "Every tool needs a tool_id"
		}
		switch t.Runner {
		case toolrunner.KindDocker:
			if t.Image == "" {
				return "Docker tools need an image"
			}
		case toolrunner.KindHTTP:
			if t.ServiceURL == "" {
				return "HTTP tools need a service_url"
			}
		default:
			return "Unknown tool runner"
		}
	}
	return ""
}

// loadScopedWorkflow loads a workflow and verifies it belongs to the
// authenticated organization. Foreign workflows look like 404s, never 403s.
func (h *Handlers) loadScopedWorkflow(w http.ResponseWriter, r *http.Request) (*store.Workflow, bool) {
	org, ok := middleware.OrgFromContext(r.Context())
	if !ok {
		h.httpError(w, "Unauthorized", http.StatusUnauthorized)
		return nil, false
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.httpError(w, "Invalid workflow ID", http.StatusBadRequest)
		return nil, false
	}

	wf, err := h.store.GetWorkflowByID(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) || (err == nil && wf.OrganizationID != org.ID) {
		h.httpError(w, "Workflow not found", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		h.httpError(w, "Failed to load workflow", http.StatusInternalServerError)
		return nil, false
	}
	return wf, true
}
