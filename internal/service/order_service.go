package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Debt-Purchasing/debt-purchasing-backend/internal/domain"
	"github.com/Debt-Purchasing/debt-purchasing-backend/internal/health"
	"github.com/Debt-Purchasing/debt-purchasing-backend/internal/sigcodec"
	"github.com/Debt-Purchasing/debt-purchasing-backend/internal/validate"
)

// OrderService admits signed sell orders and serves annotated reads.
type OrderService struct {
	store  domain.OrderStore
	codec  *sigcodec.Codec
	hf     *HealthService
	logger *slog.Logger

	now func() time.Time
}

// NewOrderService creates an OrderService backed by the given store and
// signature codec.
func NewOrderService(store domain.OrderStore, codec *sigcodec.Codec, hf *HealthService, logger *slog.Logger) *OrderService {
	return &OrderService{
		store:  store,
		codec:  codec,
		hf:     hf,
		logger: logger.With(slog.String("component", "order_service")),
		now:    time.Now,
	}
}

// CreateOrder validates, verifies, and persists a submitted order.
//
// Failure modes, in admission order: a *domain.ValidationError carrying
// every violated rule; domain.ErrInvalidSignature when recovery does not
// yield the claimed seller; a *domain.ConflictError carrying the blocking
// order's id and expiry when an ACTIVE order already exists for the same
// (debt, order type) pair.
func (s *OrderService) CreateOrder(ctx context.Context, order domain.Order) (domain.Order, error) {
	now := s.now().UTC()

	if violations := validate.Order(order, now); len(violations) > 0 {
		return domain.Order{}, &domain.ValidationError{Violations: violations}
	}

	valid, recovered := s.codec.Verify(order)
	if !valid {
		s.logger.InfoContext(ctx, "order signature rejected",
			slog.String("seller", order.Seller),
			slog.String("recovered", recovered.Hex()),
			slog.String("debt", order.Debt),
		)
		return domain.Order{}, domain.ErrInvalidSignature
	}

	order.ID = uuid.NewString()
	order.TitleHash = s.codec.TitleHash(order)
	order.Status = domain.OrderStatusActive
	order.Execution = nil
	order.CancelledAt = nil
	order.CancelReason = ""
	order.CreatedAt = now
	order.UpdatedAt = now

	if err := s.store.Create(ctx, order); err != nil {
		if errors.Is(err, domain.ErrDuplicateActiveOrder) {
			return domain.Order{}, s.conflictFor(ctx, order, err)
		}
		return domain.Order{}, fmt.Errorf("order: persist: %w", err)
	}

	s.logger.InfoContext(ctx, "order created",
		slog.String("order_id", order.ID),
		slog.String("type", string(order.Type)),
		slog.String("debt", order.Debt),
		slog.String("seller", order.Seller),
	)
	return order, nil
}

// conflictFor enriches a duplicate-ACTIVE rejection with the blocking
// order's identity. If the blocking order vanished in between (raced with a
// terminal transition), the bare sentinel is returned.
func (s *OrderService) conflictFor(ctx context.Context, order domain.Order, cause error) error {
	existing, err := s.store.FindActive(ctx, order.Debt, order.Type)
	if err != nil {
		return cause
	}
	return &domain.ConflictError{
		ExistingID: existing.ID,
		ExpiresAt:  time.Unix(existing.EndTime, 0).UTC(),
	}
}

// AnnotatedOrder is an order with its read-time execution context.
type AnnotatedOrder struct {
	domain.Order
	EffectiveStatus domain.OrderStatus `json:"effectiveStatus"`
	Verdict         health.Verdict     `json:"verdict"`
	CurrentHF       string             `json:"currentHealthFactor,omitempty"`
}

// GetOrder returns one order annotated with its verdict and the position's
// current health factor.
func (s *OrderService) GetOrder(ctx context.Context, id string) (AnnotatedOrder, error) {
	order, err := s.store.GetByID(ctx, id)
	if err != nil {
		return AnnotatedOrder{}, err
	}
	return s.annotate(ctx, order), nil
}

// ListOrders returns orders matching the filter, newest first, with derived
// EXPIRED applied to their effective status.
func (s *OrderService) ListOrders(ctx context.Context, filter domain.OrderFilter, opts domain.ListOpts) ([]AnnotatedOrder, error) {
	orders, err := s.store.List(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]AnnotatedOrder, 0, len(orders))
	for _, o := range orders {
		out = append(out, AnnotatedOrder{
			Order:           o,
			EffectiveStatus: o.EffectiveStatus(now),
		})
	}
	return out, nil
}

// ListActiveOrders returns in-window ACTIVE orders annotated with their
// verdict and current health factor.
func (s *OrderService) ListActiveOrders(ctx context.Context, filter domain.OrderFilter) ([]AnnotatedOrder, error) {
	orders, err := s.store.ListActive(ctx, filter, s.now())
	if err != nil {
		return nil, err
	}
	out := make([]AnnotatedOrder, 0, len(orders))
	for _, o := range orders {
		out = append(out, s.annotate(ctx, o))
	}
	return out, nil
}

// annotate attaches the current health factor and executability verdict. A
// health-factor failure degrades to the infinite sentinel, which reads as
// HF_TOO_HIGH rather than executable.
func (s *OrderService) annotate(ctx context.Context, order domain.Order) AnnotatedOrder {
	now := s.now()

	currentHF, err := s.hf.CurrentHealthFactor(ctx, order.Debt)
	if err != nil {
		s.logger.WarnContext(ctx, "health factor unavailable for annotation",
			slog.String("order_id", order.ID),
			slog.String("debt", order.Debt),
			slog.String("error", err.Error()),
		)
		currentHF = health.InfiniteHealthFactor
	}

	return AnnotatedOrder{
		Order:           order,
		EffectiveStatus: order.EffectiveStatus(now),
		Verdict:         health.Evaluate(order.Status, order.StartTime, order.EndTime, order.TriggerHF, currentHF, now),
		CurrentHF:       currentHF,
	}
}
