package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Debt-Purchasing/debt-purchasing-backend/internal/domain"
)

// TokenStore implements domain.TokenStore backed by the tokens table.
type TokenStore struct {
	pool *pgxpool.Pool
}

// NewTokenStore creates a TokenStore on the given connection pool.
func NewTokenStore(pool *pgxpool.Pool) *TokenStore {
	return &TokenStore{pool: pool}
}

// UpsertBatch inserts or overwrites the given tokens keyed by lowercase
// address, in a single transaction.
func (s *TokenStore) UpsertBatch(ctx context.Context, tokens []domain.Token) error {
	if len(tokens) == 0 {
		return nil
	}

	const query = `
		INSERT INTO tokens (id, symbol, decimals, price_usd, oracle_source, last_updated_at)
		VALUES (LOWER($1), $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			symbol = EXCLUDED.symbol,
			decimals = EXCLUDED.decimals,
			price_usd = EXCLUDED.price_usd,
			oracle_source = EXCLUDED.oracle_source,
			last_updated_at = EXCLUDED.last_updated_at`

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin token upsert: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, t := range tokens {
		if _, err := tx.Exec(ctx, query,
			t.ID, t.Symbol, t.Decimals, t.PriceUSD, t.OracleSource, t.LastUpdatedAt,
		); err != nil {
			return fmt.Errorf("postgres: upsert token %s: %w", t.ID, err)
		}
	}
	return tx.Commit(ctx)
}

// GetByID returns the token with the given address, or domain.ErrNotFound.
func (s *TokenStore) GetByID(ctx context.Context, id string) (domain.Token, error) {
	const query = `
		SELECT id, symbol, decimals, price_usd, oracle_source, last_updated_at
		FROM tokens WHERE id = LOWER($1)`

	var t domain.Token
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&t.ID, &t.Symbol, &t.Decimals, &t.PriceUSD, &t.OracleSource, &t.LastUpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Token{}, domain.ErrNotFound
		}
		return domain.Token{}, fmt.Errorf("postgres: get token %s: %w", id, err)
	}
	return t, nil
}

// GetByIDs returns the subset of requested tokens that exist, keyed by their
// stored (lowercase) address. Missing tokens are simply absent from the map.
func (s *TokenStore) GetByIDs(ctx context.Context, ids []string) (map[string]domain.Token, error) {
	result := make(map[string]domain.Token, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	const query = `
		SELECT id, symbol, decimals, price_usd, oracle_source, last_updated_at
		FROM tokens WHERE id = ANY(SELECT LOWER(unnest($1::TEXT[])))`

	rows, err := s.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("postgres: get tokens: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t domain.Token
		if err := rows.Scan(&t.ID, &t.Symbol, &t.Decimals, &t.PriceUSD, &t.OracleSource, &t.LastUpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan token row: %w", err)
		}
		result[t.ID] = t
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate token rows: %w", err)
	}
	return result, nil
}

// AssetConfigStore implements domain.AssetConfigStore backed by the
// asset_configs table.
type AssetConfigStore struct {
	pool *pgxpool.Pool
}

// NewAssetConfigStore creates an AssetConfigStore on the given connection
// pool.
func NewAssetConfigStore(pool *pgxpool.Pool) *AssetConfigStore {
	return &AssetConfigStore{pool: pool}
}

// UpsertBatch inserts or overwrites the given configs keyed by lowercase
// token address, in a single transaction.
func (s *AssetConfigStore) UpsertBatch(ctx context.Context, configs []domain.AssetConfig) error {
	if len(configs) == 0 {
		return nil
	}

	const query = `
		INSERT INTO asset_configs (token, liquidation_threshold, liquidation_bonus, reserve_factor, active, last_updated_at)
		VALUES (LOWER($1), $2, $3, $4, $5, $6)
		ON CONFLICT (token) DO UPDATE SET
			liquidation_threshold = EXCLUDED.liquidation_threshold,
			liquidation_bonus = EXCLUDED.liquidation_bonus,
			reserve_factor = EXCLUDED.reserve_factor,
			active = EXCLUDED.active,
			last_updated_at = EXCLUDED.last_updated_at`

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin asset config upsert: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, c := range configs {
		if _, err := tx.Exec(ctx, query,
			c.Token, c.LiquidationThreshold, c.LiquidationBonus, c.ReserveFactor, c.Active, c.LastUpdatedAt,
		); err != nil {
			return fmt.Errorf("postgres: upsert asset config %s: %w", c.Token, err)
		}
	}
	return tx.Commit(ctx)
}

// GetByTokens returns the subset of requested configs that exist, keyed by
// their stored (lowercase) token address.
func (s *AssetConfigStore) GetByTokens(ctx context.Context, tokens []string) (map[string]domain.AssetConfig, error) {
	result := make(map[string]domain.AssetConfig, len(tokens))
	if len(tokens) == 0 {
		return result, nil
	}

	const query = `
		SELECT token, liquidation_threshold, liquidation_bonus, reserve_factor, active, last_updated_at
		FROM asset_configs WHERE token = ANY(SELECT LOWER(unnest($1::TEXT[])))`

	rows, err := s.pool.Query(ctx, query, tokens)
	if err != nil {
		return nil, fmt.Errorf("postgres: get asset configs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c domain.AssetConfig
		if err := rows.Scan(&c.Token, &c.LiquidationThreshold, &c.LiquidationBonus, &c.ReserveFactor, &c.Active, &c.LastUpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan asset config row: %w", err)
		}
		result[c.Token] = c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate asset config rows: %w", err)
	}
	return result, nil
}

// UserStore implements domain.UserStore backed by the users table.
type UserStore struct {
	pool *pgxpool.Pool
}

// NewUserStore creates a UserStore on the given connection pool.
func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

// UpsertBatch inserts or overwrites the given users keyed by lowercase
// address, in a single transaction.
func (s *UserStore) UpsertBatch(ctx context.Context, users []domain.User) error {
	if len(users) == 0 {
		return nil
	}

	const query = `
		INSERT INTO users (id, nonce, last_updated_at)
		VALUES (LOWER($1), $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			nonce = EXCLUDED.nonce,
			last_updated_at = EXCLUDED.last_updated_at`

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin user upsert: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, u := range users {
		if _, err := tx.Exec(ctx, query, u.ID, int64(u.Nonce), u.LastUpdatedAt); err != nil {
			return fmt.Errorf("postgres: upsert user %s: %w", u.ID, err)
		}
	}
	return tx.Commit(ctx)
}

// GetByID returns the user with the given address, or domain.ErrNotFound.
func (s *UserStore) GetByID(ctx context.Context, id string) (domain.User, error) {
	const query = "SELECT id, nonce, last_updated_at FROM users WHERE id = LOWER($1)"

	var (
		u     domain.User
		nonce int64
	)
	err := s.pool.QueryRow(ctx, query, id).Scan(&u.ID, &nonce, &u.LastUpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, domain.ErrNotFound
		}
		return domain.User{}, fmt.Errorf("postgres: get user %s: %w", id, err)
	}
	u.Nonce = uint64(nonce)
	return u, nil
}
