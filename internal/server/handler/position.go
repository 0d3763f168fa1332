package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Debt-Purchasing/debt-purchasing-backend/internal/domain"
	"github.com/Debt-Purchasing/debt-purchasing-backend/internal/service"
)

// HealthService defines what the position handler needs from the service
// layer.
type HealthService interface {
	GetPosition(ctx context.Context, debt string) (domain.DebtPosition, error)
	ListPositions(ctx context.Context, owner string, opts domain.ListOpts) ([]domain.DebtPosition, error)
	PositionWithHealth(ctx context.Context, debt string) (service.PositionHealth, error)
	CurrentHealthFactor(ctx context.Context, debt string) (string, error)
}

// PositionHandler serves the debt-position endpoints.
type PositionHandler struct {
	health HealthService
	logger *slog.Logger
}

// NewPositionHandler creates a PositionHandler.
func NewPositionHandler(health HealthService, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{
		health: health,
		logger: logHandler(logger, "positions"),
	}
}

// ListPositions returns mirrored positions, optionally filtered by owner.
// GET /api/positions?owner=0x...&limit=50&offset=0
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := h.health.ListPositions(r.Context(), r.URL.Query().Get("owner"), parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list positions failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list positions")
		return
	}

	if positions == nil {
		positions = []domain.DebtPosition{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"positions": positions})
}

// GetPosition returns one position with its current health factor.
// GET /api/positions/{address}
func (h *PositionHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	addr := pathParam(r, "address")
	if addr == "" {
		writeError(w, http.StatusBadRequest, "missing position address")
		return
	}

	ph, err := h.health.PositionWithHealth(r.Context(), addr)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "position not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "get position failed",
			slog.String("address", addr),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get position")
		return
	}

	writeJSON(w, http.StatusOK, ph)
}

// GetHealthFactor returns only the current health factor for a position.
// Unknown positions report the infinite sentinel rather than 404: no
// mirrored debt means nothing is liquidatable.
// GET /api/positions/{address}/health
func (h *PositionHandler) GetHealthFactor(w http.ResponseWriter, r *http.Request) {
	addr := pathParam(r, "address")
	if addr == "" {
		writeError(w, http.StatusBadRequest, "missing position address")
		return
	}

	hf, err := h.health.CurrentHealthFactor(r.Context(), addr)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "health factor query failed",
			slog.String("address", addr),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to compute health factor")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"address":      addr,
		"healthFactor": hf,
	})
}
