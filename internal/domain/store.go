package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// OrderFilter narrows order list queries. Empty fields match everything.
type OrderFilter struct {
	Debt   string
	Seller string
	Status OrderStatus
	Type   OrderType
}

// OrderStore is the authoritative lifecycle record for signed orders.
//
// Create enforces at most one ACTIVE order per (Debt, Type) pair and returns
// ErrDuplicateActiveOrder on a second. The transition methods are keyed by
// (titleHash, orderType) and are idempotent: applying them to an order that
// is already terminal reports applied=false with no state change.
type OrderStore interface {
	Create(ctx context.Context, order Order) error
	GetByID(ctx context.Context, id string) (Order, error)
	List(ctx context.Context, filter OrderFilter, opts ListOpts) ([]Order, error)

	// ListActive returns stored-ACTIVE orders whose validity window contains
	// now (derived-EXPIRED orders are filtered at query time, not stored).
	ListActive(ctx context.Context, filter OrderFilter, now time.Time) ([]Order, error)

	// FindActive returns the ACTIVE order for the given debt position and
	// order type, or ErrNotFound.
	FindActive(ctx context.Context, debt string, typ OrderType) (Order, error)

	TransitionToExecuted(ctx context.Context, titleHash string, typ OrderType, exec OrderExecution) (applied bool, err error)
	TransitionToCancelled(ctx context.Context, titleHash string, typ OrderType, reason string, at time.Time) (applied bool, err error)

	// CancelStaleOrders cancels every ACTIVE order for the debt position
	// whose signed nonce is strictly less than currentNonce. Orders signed
	// at exactly currentNonce remain ACTIVE. It returns the cancelled orders.
	CancelStaleOrders(ctx context.Context, debt string, currentNonce uint64, at time.Time) ([]Order, error)

	// ListTerminalBefore returns EXECUTED/CANCELLED orders whose terminal
	// timestamp is strictly before the cutoff. Used by the archiver.
	ListTerminalBefore(ctx context.Context, before time.Time) ([]Order, error)
}

// PositionStore mirrors on-chain debt positions. Upserts overwrite wholesale.
type PositionStore interface {
	Upsert(ctx context.Context, pos DebtPosition) error
	GetByID(ctx context.Context, id string) (DebtPosition, error)
	List(ctx context.Context, owner string, opts ListOpts) ([]DebtPosition, error)
}

// TokenStore holds price/metadata reference data keyed by token address.
type TokenStore interface {
	UpsertBatch(ctx context.Context, tokens []Token) error
	GetByID(ctx context.Context, id string) (Token, error)
	GetByIDs(ctx context.Context, ids []string) (map[string]Token, error)
}

// AssetConfigStore holds per-token risk parameters keyed by token address.
type AssetConfigStore interface {
	UpsertBatch(ctx context.Context, configs []AssetConfig) error
	GetByTokens(ctx context.Context, tokens []string) (map[string]AssetConfig, error)
}

// UserStore mirrors upstream account records.
type UserStore interface {
	UpsertBatch(ctx context.Context, users []User) error
	GetByID(ctx context.Context, id string) (User, error)
}

// HealthFactorCache caches computed health factors per debt address. A nil
// cache is valid; callers fall back to recomputation.
type HealthFactorCache interface {
	Get(ctx context.Context, debt string) (string, error)
	Set(ctx context.Context, debt string, hf string, ttl time.Duration) error
}
