package handlers

import "net/http"

// Healthz reports process liveness.
func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	h.respondJson(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz reports readiness to accept traffic. The database is the only
// hard dependency checked; Redis outages degrade to durable reads instead
// of failing requests.
func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		h.respondJson(w, http.StatusServiceUnavailable, map[string]string{
			"status":   "unavailable",
			"database": err.Error(),
		})
		return
	}
	h.respondJson(w, http.StatusOK, map[string]string{"status": "ok", "database": "ok"})
}
