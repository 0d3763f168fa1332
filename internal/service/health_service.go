// Package service holds the application services between the HTTP layer and
// the stores: order admission and read-side annotation, and health-factor
// queries.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Debt-Purchasing/debt-purchasing-backend/internal/domain"
	"github.com/Debt-Purchasing/debt-purchasing-backend/internal/health"
)

// HealthService computes current health factors for debt positions, with an
// optional short-TTL cache in front of the computation.
type HealthService struct {
	positions domain.PositionStore
	tokens    domain.TokenStore
	configs   domain.AssetConfigStore
	cache     domain.HealthFactorCache
	cacheTTL  time.Duration
	logger    *slog.Logger
}

// NewHealthService creates a HealthService. cache may be nil, in which case
// every query recomputes.
func NewHealthService(
	positions domain.PositionStore,
	tokens domain.TokenStore,
	configs domain.AssetConfigStore,
	cache domain.HealthFactorCache,
	cacheTTL time.Duration,
	logger *slog.Logger,
) *HealthService {
	return &HealthService{
		positions: positions,
		tokens:    tokens,
		configs:   configs,
		cache:     cache,
		cacheTTL:  cacheTTL,
		logger:    logger.With(slog.String("component", "health_service")),
	}
}

// CurrentHealthFactor returns the 1e18-scaled health factor string for a
// debt position. Unknown positions report the infinite sentinel: with no
// mirrored debt there is nothing to liquidate.
func (s *HealthService) CurrentHealthFactor(ctx context.Context, debt string) (string, error) {
	if s.cache != nil {
		if hf, err := s.cache.Get(ctx, debt); err == nil && hf != "" {
			return hf, nil
		}
	}

	pos, err := s.positions.GetByID(ctx, debt)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return health.InfiniteHealthFactor, nil
		}
		return "", fmt.Errorf("health: load position %s: %w", debt, err)
	}

	hf := s.computeFor(ctx, pos)

	if s.cache != nil {
		if err := s.cache.Set(ctx, debt, hf, s.cacheTTL); err != nil {
			s.logger.WarnContext(ctx, "health factor cache write failed",
				slog.String("debt", debt),
				slog.String("error", err.Error()),
			)
		}
	}
	return hf, nil
}

// PositionHealth bundles a position with its computed health factor for the
// positions API.
type PositionHealth struct {
	Position     domain.DebtPosition `json:"position"`
	HealthFactor string              `json:"healthFactor"`
}

// PositionWithHealth returns the position and its current health factor.
func (s *HealthService) PositionWithHealth(ctx context.Context, debt string) (PositionHealth, error) {
	pos, err := s.positions.GetByID(ctx, debt)
	if err != nil {
		return PositionHealth{}, err
	}
	return PositionHealth{
		Position:     pos,
		HealthFactor: s.computeFor(ctx, pos),
	}, nil
}

// GetPosition returns the raw mirrored position.
func (s *HealthService) GetPosition(ctx context.Context, debt string) (domain.DebtPosition, error) {
	return s.positions.GetByID(ctx, debt)
}

// ListPositions returns mirrored positions, optionally filtered by owner.
func (s *HealthService) ListPositions(ctx context.Context, owner string, opts domain.ListOpts) ([]domain.DebtPosition, error) {
	return s.positions.List(ctx, owner, opts)
}

// computeFor joins the position's tokens against reference data and runs the
// calculator. Reference lookups that fail degrade to the calculator's
// defaults rather than failing the query.
func (s *HealthService) computeFor(ctx context.Context, pos domain.DebtPosition) string {
	addrs := make([]string, 0, len(pos.Collaterals)+len(pos.Debts))
	for _, c := range pos.Collaterals {
		addrs = append(addrs, c.Token)
	}
	for _, d := range pos.Debts {
		addrs = append(addrs, d.Token)
	}

	tokens, err := s.tokens.GetByIDs(ctx, addrs)
	if err != nil {
		s.logger.WarnContext(ctx, "token lookup failed, using price defaults",
			slog.String("debt", pos.ID),
			slog.String("error", err.Error()),
		)
		tokens = nil
	}
	configs, err := s.configs.GetByTokens(ctx, addrs)
	if err != nil {
		s.logger.WarnContext(ctx, "asset config lookup failed, using threshold defaults",
			slog.String("debt", pos.ID),
			slog.String("error", err.Error()),
		)
		configs = nil
	}

	return health.Compute(pos.Collaterals, pos.Debts, tokens, configs)
}
