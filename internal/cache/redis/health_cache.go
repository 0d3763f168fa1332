package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Debt-Purchasing/debt-purchasing-backend/internal/domain"
)

// HealthFactorCache implements domain.HealthFactorCache using plain string
// keys "hf:{debtAddress}" with a per-entry TTL. Health factors are cached
// as their 1e18-scaled integer strings.
type HealthFactorCache struct {
	rdb *redis.Client
}

// NewHealthFactorCache creates a HealthFactorCache backed by the given Client.
func NewHealthFactorCache(c *Client) *HealthFactorCache {
	return &HealthFactorCache{rdb: c.Underlying()}
}

func healthKey(debt string) string {
	return "hf:" + strings.ToLower(debt)
}

// Get retrieves the cached health factor for a debt position. It returns
// domain.ErrNotFound when no fresh entry exists.
func (hc *HealthFactorCache) Get(ctx context.Context, debt string) (string, error) {
	val, err := hc.rdb.Get(ctx, healthKey(debt)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", domain.ErrNotFound
		}
		return "", fmt.Errorf("redis: get health factor %s: %w", debt, err)
	}
	return val, nil
}

// Set caches the health factor for a debt position with the given TTL.
func (hc *HealthFactorCache) Set(ctx context.Context, debt string, hf string, ttl time.Duration) error {
	if err := hc.rdb.Set(ctx, healthKey(debt), hf, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set health factor %s: %w", debt, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.HealthFactorCache = (*HealthFactorCache)(nil)
