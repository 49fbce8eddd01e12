package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/heartwise/backend/internal/logging"
)

const readinessTimeout = 2 * time.Second

// HealthHandler responds with service health information.
type HealthHandler struct {
	DB Pinger
}

// Handle implements GET /healthz.
func (HealthHandler) Handle(w http.ResponseWriter, r *http.Request) {
	respondJSON(r.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready implements GET /readyz. It reports unavailable until the database
// answers a ping.
func (h HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.DB == nil {
		respondJSON(ctx, w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	pingCtx, cancel := context.WithTimeout(ctx, readinessTimeout)
	defer cancel()
	if err := h.DB.Ping(pingCtx); err != nil {
		logging.FromContext(ctx).Error("database ping failed", "error", err)
		respondJSON(ctx, w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	respondJSON(ctx, w, http.StatusOK, map[string]string{"status": "ok"})
}
