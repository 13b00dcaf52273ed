package handlers

import (
	"net/http"
	"strconv"

	"docflow/pkg/api"
)

// ListFileHistory handles GET /workflows/{id}/history: the workflow's
// dedup cache entries, newest first.
func (h *Handlers) ListFileHistory(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.loadScopedWorkflow(w, r)
	if !ok {
		return
	}

	limit := 100
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			h.httpError(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	entries, err := h.store.ListFileHistory(r.Context(), wf.ID, limit)
	if err != nil {
		h.httpError(w, "Failed to list file history", http.StatusInternalServerError)
		return
	}

	resp := api.ListFileHistoryResponse{Entries: make([]api.FileHistoryEntry, 0, len(entries))}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, api.FileHistoryEntry{
			ID:        e.ID,
			CacheKey:  e.CacheKey,
			Status:    string(e.Status),
			CreatedAt: e.CreatedAt,
		})
	}
	h.respondJson(w, http.StatusOK, resp)
}

// ClearFileHistory handles DELETE /workflows/{id}/history: drops the
// workflow's dedup cache so the next run reprocesses everything.
func (h *Handlers) ClearFileHistory(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.loadScopedWorkflow(w, r)
	if !ok {
		return
	}

	cleared, err := h.store.ClearFileHistory(r.Context(), wf.ID)
	if err != nil {
		h.httpError(w, "Failed to clear file history", http.StatusInternalServerError)
		return
	}

	h.respondJson(w, http.StatusOK, api.ClearFileHistoryResponse{Cleared: cleared})
}
