package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/Debt-Purchasing/debt-purchasing-backend/internal/domain"
	"github.com/Debt-Purchasing/debt-purchasing-backend/internal/service"
)

// OrderService defines what the order handler needs from the service layer.
type OrderService interface {
	CreateOrder(ctx context.Context, order domain.Order) (domain.Order, error)
	GetOrder(ctx context.Context, id string) (service.AnnotatedOrder, error)
	ListOrders(ctx context.Context, filter domain.OrderFilter, opts domain.ListOpts) ([]service.AnnotatedOrder, error)
	ListActiveOrders(ctx context.Context, filter domain.OrderFilter) ([]service.AnnotatedOrder, error)
}

// OrderHandler serves the order endpoints.
type OrderHandler struct {
	orders OrderService
	logger *slog.Logger
}

// NewOrderHandler creates an OrderHandler.
func NewOrderHandler(orders OrderService, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{
		orders: orders,
		logger: logHandler(logger, "orders"),
	}
}

// listOrdersResponse wraps order list responses.
type listOrdersResponse struct {
	Orders []service.AnnotatedOrder `json:"orders"`
}

// CreateOrder admits a signed sell order.
// POST /api/orders
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var order domain.Order
	if err := json.NewDecoder(r.Body).Decode(&order); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	created, err := h.orders.CreateOrder(r.Context(), order)
	if err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":      "order validation failed",
				"violations": verr.Violations,
			})
			return
		}
		if errors.Is(err, domain.ErrInvalidSignature) {
			writeError(w, http.StatusBadRequest, "signature does not recover to the claimed seller")
			return
		}
		var conflict *domain.ConflictError
		if errors.As(err, &conflict) {
			writeJSON(w, http.StatusConflict, map[string]any{
				"error":           "active order already exists for this debt position and order type",
				"existingOrderId": conflict.ExistingID,
				"expiresAt":       conflict.ExpiresAt.UTC().Format(time.RFC3339),
			})
			return
		}
		if errors.Is(err, domain.ErrDuplicateActiveOrder) {
			writeError(w, http.StatusConflict, "active order already exists for this debt position and order type")
			return
		}
		h.logger.ErrorContext(r.Context(), "create order failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to create order")
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

// ListOrders returns orders matching the query filters.
// GET /api/orders?debt=0x...&seller=0x...&status=ACTIVE&type=FULL&limit=50&offset=0
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	filter := filterFromQuery(r)
	opts := parseListOpts(r)

	orders, err := h.orders.ListOrders(r.Context(), filter, opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list orders failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list orders")
		return
	}

	if orders == nil {
		orders = []service.AnnotatedOrder{}
	}
	writeJSON(w, http.StatusOK, listOrdersResponse{Orders: orders})
}

// ListActiveOrders returns in-window ACTIVE orders with their executability
// verdicts.
// GET /api/orders/active?debt=0x...&type=FULL
func (h *OrderHandler) ListActiveOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListActiveOrders(r.Context(), filterFromQuery(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list active orders failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list active orders")
		return
	}

	if orders == nil {
		orders = []service.AnnotatedOrder{}
	}
	writeJSON(w, http.StatusOK, listOrdersResponse{Orders: orders})
}

// GetOrder returns one order with its verdict.
// GET /api/orders/{id}
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	order, err := h.orders.GetOrder(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "order not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "get order failed",
			slog.String("order_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get order")
		return
	}

	writeJSON(w, http.StatusOK, order)
}

// filterFromQuery reads the order filter query parameters.
func filterFromQuery(r *http.Request) domain.OrderFilter {
	q := r.URL.Query()
	return domain.OrderFilter{
		Debt:   q.Get("debt"),
		Seller: q.Get("seller"),
		Status: domain.OrderStatus(q.Get("status")),
		Type:   domain.OrderType(q.Get("type")),
	}
}
