package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"docflow/internal/auth"
	"docflow/internal/store"
	"docflow/pkg/api"

	"github.com/google/uuid"
)

// CreateOrganization handles POST /organizations (Admin Only).
// It generates a new API Key, hashes it for storage, and returns the raw key ONCE.
func (h *Handlers) CreateOrganization(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.CreateOrganizationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		h.httpError(w, "Name is required", http.StatusBadRequest)
		return
	}

	apiKey, err := auth.GenerateAPIKey()
	if err != nil {
		h.httpError(w, "Entropy failure", http.StatusInternalServerError)
		return
	}
	hashedKey := auth.HashKey(apiKey)

	org := &store.Organization{
		ID:        uuid.New(),
		Name:      req.Name,
		CreatedAt: time.Now(),
	}

	if err := h.store.CreateOrganization(ctx, org, hashedKey); err != nil {
		h.httpError(w, "Failed to create organization", http.StatusInternalServerError)
		return
	}

	// Return the Raw Key (This is the only time the user sees it)
	resp := api.CreateOrganizationResponse{
		ID:     org.ID.String(),
		Name:   org.Name,
		APIKey: apiKey,
	}
	h.respondJson(w, http.StatusCreated, resp)
}
