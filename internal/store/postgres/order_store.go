package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Debt-Purchasing/debt-purchasing-backend/internal/domain"
)

// uniqueViolation is the PostgreSQL error code for unique constraint
// violations. The partial unique index on (debt, type, status=ACTIVE)
// surfaces duplicate active orders through it.
const uniqueViolation = "23505"

const orderSelectCols = `
	id, order_type, chain_id, verifying_contract, seller,
	debt_address, debt_nonce, start_time, end_time, trigger_hf,
	title_hash, sig_v, sig_r, sig_s,
	full_payload, partial_payload,
	status,
	exec_buyer, exec_tx_hash, exec_block_number, exec_usd_value, exec_usd_bonus, executed_at,
	cancelled_at, cancel_reason,
	created_at, updated_at`

// OrderStore implements domain.OrderStore backed by the orders table.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore creates an OrderStore on the given connection pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// Create inserts a new order. The partial unique index on active orders
// turns a second ACTIVE order for the same (debt, type) into
// domain.ErrDuplicateActiveOrder.
func (s *OrderStore) Create(ctx context.Context, order domain.Order) error {
	fullJSON, partialJSON, err := marshalPayloads(order)
	if err != nil {
		return err
	}

	const query = `
		INSERT INTO orders (
			id, order_type, chain_id, verifying_contract, seller,
			debt_address, debt_nonce, start_time, end_time, trigger_hf,
			title_hash, sig_v, sig_r, sig_s,
			full_payload, partial_payload,
			status, cancel_reason, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10,
			$11, $12, $13, $14,
			$15, $16,
			$17, $18, $19, $20
		)`

	_, err = s.pool.Exec(ctx, query,
		order.ID, string(order.Type), order.ChainID, order.VerifyingContract, order.Seller,
		order.Debt, int64(order.DebtNonce), order.StartTime, order.EndTime, order.TriggerHF,
		order.TitleHash, order.Signature.V, order.Signature.R, order.Signature.S,
		fullJSON, partialJSON,
		string(order.Status), order.CancelReason, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrDuplicateActiveOrder
		}
		return fmt.Errorf("postgres: insert order: %w", err)
	}
	return nil
}

// GetByID returns the order with the given id, or domain.ErrNotFound.
func (s *OrderStore) GetByID(ctx context.Context, id string) (domain.Order, error) {
	query := "SELECT" + orderSelectCols + " FROM orders WHERE id = $1"
	row := s.pool.QueryRow(ctx, query, id)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Order{}, domain.ErrNotFound
		}
		return domain.Order{}, fmt.Errorf("postgres: get order %s: %w", id, err)
	}
	return order, nil
}

// List returns orders matching the filter, newest first.
func (s *OrderStore) List(ctx context.Context, filter domain.OrderFilter, opts domain.ListOpts) ([]domain.Order, error) {
	var sb strings.Builder
	sb.WriteString("SELECT" + orderSelectCols + " FROM orders")

	conds, args := filterConds(filter)
	if len(conds) > 0 {
		sb.WriteString(" WHERE " + strings.Join(conds, " AND "))
	}
	sb.WriteString(" ORDER BY created_at DESC")

	argIdx := len(args) + 1
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
		return nil, fmt.Errorf("postgres: list orders: %w", err)
	}
	defer rows.Close()

	return scanOrderRows(rows)
}

// ListActive returns stored-ACTIVE orders whose validity window contains now.
func (s *OrderStore) ListActive(ctx context.Context, filter domain.OrderFilter, now time.Time) ([]domain.Order, error) {
	// Status in the filter is ignored here; the method is the status.
	filter.Status = ""

	var sb strings.Builder
	sb.WriteString("SELECT" + orderSelectCols + " FROM orders")

	conds, args := filterConds(filter)
	conds = append(conds, "status = 'ACTIVE'")
	argIdx := len(args) + 1
	conds = append(conds, fmt.Sprintf("start_time <= $%d", argIdx))
	args = append(args, now.Unix())
	argIdx++
	conds = append(conds, fmt.Sprintf("end_time >= $%d", argIdx))
	args = append(args, now.Unix())

	sb.WriteString(" WHERE " + strings.Join(conds, " AND "))
	sb.WriteString(" ORDER BY created_at DESC")

	rows, err := s.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active orders: %w", err)
	}
	defer rows.Close()

	return scanOrderRows(rows)
}

// FindActive returns the ACTIVE order for (debt, typ), or domain.ErrNotFound.
func (s *OrderStore) FindActive(ctx context.Context, debt string, typ domain.OrderType) (domain.Order, error) {
	query := "SELECT" + orderSelectCols + `
		FROM orders
		WHERE LOWER(debt_address) = LOWER($1) AND order_type = $2 AND status = 'ACTIVE'`
	row := s.pool.QueryRow(ctx, query, debt, string(typ))
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Order{}, domain.ErrNotFound
		}
		return domain.Order{}, fmt.Errorf("postgres: find active order: %w", err)
	}
	return order, nil
}

// TransitionToExecuted marks the ACTIVE order matching (titleHash, typ) as
// EXECUTED. The status guard in the WHERE clause makes replayed events
// no-ops: applied=false, no error.
func (s *OrderStore) TransitionToExecuted(ctx context.Context, titleHash string, typ domain.OrderType, exec domain.OrderExecution) (bool, error) {
	const query = `
		UPDATE orders SET
			status = 'EXECUTED',
			exec_buyer = $3,
			exec_tx_hash = $4,
			exec_block_number = $5,
			exec_usd_value = $6,
			exec_usd_bonus = $7,
			executed_at = $8,
			updated_at = NOW()
		WHERE LOWER(title_hash) = LOWER($1) AND order_type = $2 AND status = 'ACTIVE'`

	tag, err := s.pool.Exec(ctx, query,
		titleHash, string(typ),
		exec.Buyer, exec.TxHash, int64(exec.BlockNumber), exec.USDValue, exec.USDBonus, exec.ExecutedAt,
	)
	if err != nil {
		return false, fmt.Errorf("postgres: transition to executed: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// TransitionToCancelled marks the ACTIVE order matching (titleHash, typ) as
// CANCELLED with the given reason. Idempotent like TransitionToExecuted.
func (s *OrderStore) TransitionToCancelled(ctx context.Context, titleHash string, typ domain.OrderType, reason string, at time.Time) (bool, error) {
	const query = `
		UPDATE orders SET
			status = 'CANCELLED',
			cancelled_at = $3,
			cancel_reason = $4,
			updated_at = NOW()
		WHERE LOWER(title_hash) = LOWER($1) AND order_type = $2 AND status = 'ACTIVE'`

	tag, err := s.pool.Exec(ctx, query, titleHash, string(typ), at, reason)
	if err != nil {
		return false, fmt.Errorf("postgres: transition to cancelled: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// CancelStaleOrders cancels every ACTIVE order for the debt whose signed
// nonce is strictly below currentNonce and returns the cancelled rows.
func (s *OrderStore) CancelStaleOrders(ctx context.Context, debt string, currentNonce uint64, at time.Time) ([]domain.Order, error) {
	query := `
		UPDATE orders SET
			status = 'CANCELLED',
			cancelled_at = $3,
			cancel_reason = 'debt nonce advanced from ' || debt_nonce || ' to ' || $2::BIGINT,
			updated_at = NOW()
		WHERE LOWER(debt_address) = LOWER($1) AND status = 'ACTIVE' AND debt_nonce < $2
		RETURNING` + orderSelectCols

	rows, err := s.pool.Query(ctx, query, debt, int64(currentNonce), at)
	if err != nil {
		return nil, fmt.Errorf("postgres: cancel stale orders: %w", err)
	}
	defer rows.Close()

	return scanOrderRows(rows)
}

// ListTerminalBefore returns EXECUTED/CANCELLED orders whose terminal
// timestamp is strictly before the cutoff.
func (s *OrderStore) ListTerminalBefore(ctx context.Context, before time.Time) ([]domain.Order, error) {
	query := "SELECT" + orderSelectCols + `
		FROM orders
		WHERE status IN ('EXECUTED', 'CANCELLED')
		  AND COALESCE(executed_at, cancelled_at) < $1
		ORDER BY created_at`

	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list terminal orders: %w", err)
	}
	defer rows.Close()

	return scanOrderRows(rows)
}

// filterConds builds WHERE conditions for an OrderFilter. Returned args start
// at $1.
func filterConds(filter domain.OrderFilter) ([]string, []any) {
	var (
		conds  []string
		args   []any
		argIdx = 1
	)
	if filter.Debt != "" {
		conds = append(conds, fmt.Sprintf("LOWER(debt_address) = LOWER($%d)", argIdx))
		args = append(args, filter.Debt)
		argIdx++
	}
	if filter.Seller != "" {
		conds = append(conds, fmt.Sprintf("LOWER(seller) = LOWER($%d)", argIdx))
		args = append(args, filter.Seller)
		argIdx++
	}
	if filter.Status != "" {
		conds = append(conds, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.Type != "" {
		conds = append(conds, fmt.Sprintf("order_type = $%d", argIdx))
		args = append(args, string(filter.Type))
	}
	return conds, args
}

func marshalPayloads(order domain.Order) ([]byte, []byte, error) {
	var fullJSON, partialJSON []byte
	var err error
	if order.Full != nil {
		if fullJSON, err = json.Marshal(order.Full); err != nil {
			return nil, nil, fmt.Errorf("postgres: marshal full payload: %w", err)
		}
	}
	if order.Partial != nil {
		if partialJSON, err = json.Marshal(order.Partial); err != nil {
			return nil, nil, fmt.Errorf("postgres: marshal partial payload: %w", err)
		}
	}
	return fullJSON, partialJSON, nil
}

// scanOrder reads one order row, reassembling the JSONB payloads and the
// nullable execution/cancellation columns.
func scanOrder(row pgx.Row) (domain.Order, error) {
	var (
		o                          domain.Order
		orderType, status          string
		debtNonce                  int64
		fullJSON, partialJSON      []byte
		execBuyer, execTxHash      *string
		execBlockNumber            *int64
		execUSDValue, execUSDBonus *string
		executedAt, cancelledAt    *time.Time
	)

	err := row.Scan(
		&o.ID, &orderType, &o.ChainID, &o.VerifyingContract, &o.Seller,
		&o.Debt, &debtNonce, &o.StartTime, &o.EndTime, &o.TriggerHF,
		&o.TitleHash, &o.Signature.V, &o.Signature.R, &o.Signature.S,
		&fullJSON, &partialJSON,
		&status,
		&execBuyer, &execTxHash, &execBlockNumber, &execUSDValue, &execUSDBonus, &executedAt,
		&cancelledAt, &o.CancelReason,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return domain.Order{}, err
	}

	o.Type = domain.OrderType(orderType)
	o.Status = domain.OrderStatus(status)
	o.DebtNonce = uint64(debtNonce)

	if len(fullJSON) > 0 {
		var payload domain.FullSellOrderPayload
		if err := json.Unmarshal(fullJSON, &payload); err != nil {
			return domain.Order{}, fmt.Errorf("unmarshal full payload: %w", err)
		}
		o.Full = &payload
	}
	if len(partialJSON) > 0 {
		var payload domain.PartialSellOrderPayload
		if err := json.Unmarshal(partialJSON, &payload); err != nil {
			return domain.Order{}, fmt.Errorf("unmarshal partial payload: %w", err)
		}
		o.Partial = &payload
	}

	if executedAt != nil {
		exec := domain.OrderExecution{ExecutedAt: *executedAt}
		if execBuyer != nil {
			exec.Buyer = *execBuyer
		}
		if execTxHash != nil {
			exec.TxHash = *execTxHash
		}
		if execBlockNumber != nil {
			exec.BlockNumber = uint64(*execBlockNumber)
		}
		if execUSDValue != nil {
			exec.USDValue = *execUSDValue
		}
		if execUSDBonus != nil {
			exec.USDBonus = *execUSDBonus
		}
		o.Execution = &exec
	}
	o.CancelledAt = cancelledAt

	return o, nil
}

func scanOrderRows(rows pgx.Rows) ([]domain.Order, error) {
	var orders []domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate order rows: %w", err)
	}
	return orders, nil
}
