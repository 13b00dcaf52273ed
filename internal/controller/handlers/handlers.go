// Package handlers contains HTTP handlers for the controller API.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"docflow/internal/orchestrator"
	"docflow/internal/store"
	"docflow/pkg/api"
)

// StoreFactory combines the store interfaces the controller needs.
type StoreFactory interface {
	BeginTx(ctx context.Context) (store.Tx, error)
	Ping(ctx context.Context) error
	store.OrganizationStore
	store.WorkflowStore
	store.ExecutionStore
	store.FileExecutionStore
	store.FileHistoryStore
}

// Handlers holds all HTTP handlers and their dependencies.
type Handlers struct {
	store StoreFactory
	orch  *orchestrator.Orchestrator
}

// New creates a new Handlers instance.
func New(s StoreFactory, orch *orchestrator.Orchestrator) *Handlers {
	return &Handlers{store: s, orch: orch}
}

// A helper function to write standard JSON responses.
func (h *Handlers) respondJson(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

// A helper function to return consistent error messages.
func (h *Handlers) httpError(w http.ResponseWriter, message string, code int) {
	h.respondJson(w, code, api.ErrorResponse{
		Error: message,
		Code:  strconv.Itoa(code),
	})
}
