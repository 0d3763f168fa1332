package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/Debt-Purchasing/debt-purchasing-backend/internal/domain"
)

// SyncTrigger defines what the sync handler needs from the sync engine.
type SyncTrigger interface {
	TriggerSync() error
	Running() bool
}

// SyncHandler serves the manual sync trigger endpoint.
type SyncHandler struct {
	engine SyncTrigger
	logger *slog.Logger
}

// NewSyncHandler creates a SyncHandler.
func NewSyncHandler(engine SyncTrigger, logger *slog.Logger) *SyncHandler {
	return &SyncHandler{
		engine: engine,
		logger: logHandler(logger, "sync"),
	}
}

// TriggerSync starts a sync pass in the background.
// POST /api/sync/trigger
func (h *SyncHandler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.TriggerSync(); err != nil {
		if errors.Is(err, domain.ErrSyncInProgress) {
			writeError(w, http.StatusConflict, "a sync pass is already running")
			return
		}
		h.logger.ErrorContext(r.Context(), "sync trigger failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to trigger sync")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sync started"})
}

// SyncStatus reports whether a pass is currently running.
// GET /api/sync/status
func (h *SyncHandler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"running": h.engine.Running()})
}
