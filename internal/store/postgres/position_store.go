package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Debt-Purchasing/debt-purchasing-backend/internal/domain"
)

// PositionStore implements domain.PositionStore backed by the debt_positions
// table. Collateral and debt entries are stored as JSONB and replaced
// wholesale on every upsert, matching the sync engine's snapshot semantics.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a PositionStore on the given connection pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

// Upsert inserts or overwrites the position keyed by its lowercase address.
func (s *PositionStore) Upsert(ctx context.Context, pos domain.DebtPosition) error {
	collaterals, err := json.Marshal(pos.Collaterals)
	if err != nil {
		return fmt.Errorf("postgres: marshal collaterals: %w", err)
	}
	debts, err := json.Marshal(pos.Debts)
	if err != nil {
		return fmt.Errorf("postgres: marshal debts: %w", err)
	}

	const query = `
		INSERT INTO debt_positions (id, owner_address, nonce, collaterals, debts, last_updated_at)
		VALUES (LOWER($1), $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			owner_address = EXCLUDED.owner_address,
			nonce = EXCLUDED.nonce,
			collaterals = EXCLUDED.collaterals,
			debts = EXCLUDED.debts,
			last_updated_at = EXCLUDED.last_updated_at`

	_, err = s.pool.Exec(ctx, query,
		pos.ID, pos.Owner, int64(pos.Nonce), collaterals, debts, pos.LastUpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert position %s: %w", pos.ID, err)
	}
	return nil
}

// GetByID returns the position with the given address, or domain.ErrNotFound.
func (s *PositionStore) GetByID(ctx context.Context, id string) (domain.DebtPosition, error) {
	const query = `
		SELECT id, owner_address, nonce, collaterals, debts, last_updated_at
		FROM debt_positions WHERE id = LOWER($1)`

	pos, err := scanPosition(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.DebtPosition{}, domain.ErrNotFound
		}
		return domain.DebtPosition{}, fmt.Errorf("postgres: get position %s: %w", id, err)
	}
	return pos, nil
}

// List returns positions, optionally filtered by owner, ordered by address.
func (s *PositionStore) List(ctx context.Context, owner string, opts domain.ListOpts) ([]domain.DebtPosition, error) {
	var sb strings.Builder
	sb.WriteString(`
		SELECT id, owner_address, nonce, collaterals, debts, last_updated_at
		FROM debt_positions`)

	var args []any
	argIdx := 1
	if owner != "" {
		sb.WriteString(fmt.Sprintf(" WHERE LOWER(owner_address) = LOWER($%d)", argIdx))
		args = append(args, owner)
		argIdx++
	}
	sb.WriteString(" ORDER BY id")
	if opts.Limit > 0 {
		sb.WriteString(fmt.Sprintf(" LIMIT $%d", argIdx))
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		sb.WriteString(fmt.Sprintf(" OFFSET $%d", argIdx))
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions: %w", err)
	}
	defer rows.Close()

	var positions []domain.DebtPosition
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan position row: %w", err)
		}
		positions = append(positions, pos)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate position rows: %w", err)
	}
	return positions, nil
}

func scanPosition(row pgx.Row) (domain.DebtPosition, error) {
	var (
		pos                domain.DebtPosition
		nonce              int64
		collaterals, debts []byte
	)
	if err := row.Scan(&pos.ID, &pos.Owner, &nonce, &collaterals, &debts, &pos.LastUpdatedAt); err != nil {
		return domain.DebtPosition{}, err
	}
	pos.Nonce = uint64(nonce)

	if err := json.Unmarshal(collaterals, &pos.Collaterals); err != nil {
		return domain.DebtPosition{}, fmt.Errorf("unmarshal collaterals: %w", err)
	}
	if err := json.Unmarshal(debts, &pos.Debts); err != nil {
		return domain.DebtPosition{}, fmt.Errorf("unmarshal debts: %w", err)
	}
	return pos, nil
}
