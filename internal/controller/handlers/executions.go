package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"docflow/internal/controller/middleware"
	"docflow/internal/orchestrator"
	"docflow/internal/store"
	"docflow/pkg/api"

	"github.com/google/uuid"
)

// ExecuteWorkflow handles POST /workflows/{id}/execute. The execution
// record is created synchronously; discovery and dispatch run in the
// background, so the 202 comes back before the source is even listed.
func (h *Handlers) ExecuteWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.loadScopedWorkflow(w, r)
	if !ok {
		return
	}

	var req api.ExecuteWorkflowRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.httpError(w, "Invalid JSON", http.StatusBadRequest)
			return
		}
	}

	useFileHistory := true
	if req.UseFileHistory != nil {
		useFileHistory = *req.UseFileHistory
	}

	exec, err := h.orch.Start(r.Context(), orchestrator.StartRequest{
		WorkflowID:     wf.ID,
		PipelineName:   req.PipelineName,
		UseFileHistory: useFileHistory,
	})
	if errors.Is(err, orchestrator.ErrDuplicateRun) {
		h.httpError(w, "Workflow already has an active execution", http.StatusConflict)
		return
	}
	if err != nil {
		h.httpError(w, "Failed to start execution", http.StatusInternalServerError)
		return
	}

	// Dispatch outlives the request.
	go func() {
		_ = h.orch.Dispatch(context.Background(), exec.ID, useFileHistory)
	}()

	h.respondJson(w, http.StatusAccepted, api.ExecuteWorkflowResponse{
		ExecutionID: exec.ID.String(),
		Status:      string(exec.Status),
	})
}

// GetExecution handles GET /executions/{id}.
func (h *Handlers) GetExecution(w http.ResponseWriter, r *http.Request) {
	exec, ok := h.loadScopedExecution(w, r)
	if !ok {
		return
	}

	st, err := h.orch.GetStatus(r.Context(), exec.ID)
	if err != nil {
		h.httpError(w, "Failed to load execution status", http.StatusInternalServerError)
		return
	}

	h.respondJson(w, http.StatusOK, api.ExecutionStatusResponse{
		ID:             st.ExecutionID.String(),
		WorkflowID:     st.WorkflowID.String(),
		PipelineName:   st.PipelineName,
		Status:         string(st.Status),
		TotalFiles:     st.TotalFiles,
		CompletedFiles: st.CompletedFiles,
		FailedFiles:    st.FailedFiles,
		SkippedFiles:   st.SkippedFiles,
		Error:          st.ErrorMessage,
		CreatedAt:      st.CreatedAt,
		ModifiedAt:     st.ModifiedAt,
	})
}

// ListExecutionFiles handles GET /executions/{id}/files.
func (h *Handlers) ListExecutionFiles(w http.ResponseWriter, r *http.Request) {
	exec, ok := h.loadScopedExecution(w, r)
	if !ok {
		return
	}

	files, err := h.store.ListFileExecutions(r.Context(), exec.ID)
	if err != nil {
		h.httpError(w, "Failed to list files", http.StatusInternalServerError)
		return
	}

	resp := api.ListFileExecutionsResponse{Files: make([]api.FileExecutionResponse, 0, len(files))}
	for _, fe := range files {
		resp.Files = append(resp.Files, api.FileExecutionResponse{
			ID:              fe.ID.String(),
			FileName:        fe.FileName,
			FilePath:        fe.FilePath,
			FileSize:        fe.FileSize,
			MimeType:        fe.MimeType,
			Status:          string(fe.Status),
			Stage:           string(fe.Stage),
			ToolStepReached: fe.ToolStepReached,
			Error:           fe.ErrorMessage,
			Result:          fe.Result,
			ExecutionTime:   fe.ExecutionTime,
			CreatedAt:       fe.CreatedAt,
			ModifiedAt:      fe.ModifiedAt,
		})
	}
	h.respondJson(w, http.StatusOK, resp)
}

// StopExecution handles POST /executions/{id}/stop.
func (h *Handlers) StopExecution(w http.ResponseWriter, r *http.Request) {
	exec, ok := h.loadScopedExecution(w, r)
	if !ok {
		return
	}

	err := h.orch.Stop(r.Context(), exec.ID)
	if errors.Is(err, store.ErrAlreadyTerminal) {
		h.httpError(w, "Execution already finished", http.StatusConflict)
		return
	}
	if err != nil {
		h.httpError(w, "Failed to stop execution", http.StatusInternalServerError)
		return
	}

	h.respondJson(w, http.StatusOK, api.StopExecutionResponse{
		ExecutionID: exec.ID.String(),
		Status:      string(store.ExecutionStatusStopped),
	})
}

// loadScopedExecution loads an execution and verifies organization
// ownership, answering 404 for foreign or missing rows.
func (h *Handlers) loadScopedExecution(w http.ResponseWriter, r *http.Request) (*store.WorkflowExecution, bool) {
	org, ok := middleware.OrgFromContext(r.Context())
	if !ok {
		h.httpError(w, "Unauthorized", http.StatusUnauthorized)
		return nil, false
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.httpError(w, "Invalid execution ID", http.StatusBadRequest)
		return nil, false
	}

	exec, err := h.store.GetWorkflowExecutionByID(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) || (err == nil && exec.OrganizationID != org.ID) {
		h.httpError(w, "Execution not found", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		h.httpError(w, "Failed to load execution", http.StatusInternalServerError)
		return nil, false
	}
	return exec, true
}
