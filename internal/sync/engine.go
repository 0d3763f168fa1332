// Package sync mirrors indexer state into the local stores and drives the
// order lifecycle from observed on-chain events. A pass fetches every
// upstream dataset concurrently, then applies them one at a time; a failed
// dataset is logged and skipped, never fatal to the pass.
package sync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Debt-Purchasing/debt-purchasing-backend/internal/domain"
	"github.com/Debt-Purchasing/debt-purchasing-backend/internal/notify"
)

// Fetcher is the slice of the indexer client the engine consumes.
type Fetcher interface {
	FetchUsers(ctx context.Context) ([]domain.User, error)
	FetchDebtPositions(ctx context.Context) ([]domain.DebtPosition, error)
	FetchFullOrderExecutions(ctx context.Context) ([]domain.OrderExecutionEvent, error)
	FetchPartialOrderExecutions(ctx context.Context) ([]domain.OrderExecutionEvent, error)
	FetchPriceTokens(ctx context.Context) ([]domain.Token, error)
	FetchAssetConfigurations(ctx context.Context) ([]domain.AssetConfig, error)
	FetchCancelledOrders(ctx context.Context) ([]domain.OrderCancellation, error)
}

// Notifier receives lifecycle events. *notify.Notifier satisfies it.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Engine runs sync passes with at-most-one-concurrent semantics.
type Engine struct {
	fetcher   Fetcher
	orders    domain.OrderStore
	positions domain.PositionStore
	tokens    domain.TokenStore
	configs   domain.AssetConfigStore
	users     domain.UserStore
	notifier  Notifier
	logger    *slog.Logger

	running atomic.Bool
}

// NewEngine creates a sync engine. notifier may be nil.
func NewEngine(
	fetcher Fetcher,
	orders domain.OrderStore,
	positions domain.PositionStore,
	tokens domain.TokenStore,
	configs domain.AssetConfigStore,
	users domain.UserStore,
	notifier Notifier,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		fetcher:   fetcher,
		orders:    orders,
		positions: positions,
		tokens:    tokens,
		configs:   configs,
		users:     users,
		notifier:  notifier,
		logger:    logger.With(slog.String("component", "sync")),
	}
}

// Running reports whether a pass is currently in flight.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// snapshot holds one pass's fetched datasets and their per-dataset errors.
type snapshot struct {
	users         []domain.User
	positions     []domain.DebtPosition
	fullExecs     []domain.OrderExecutionEvent
	partialExecs  []domain.OrderExecutionEvent
	tokens        []domain.Token
	configs       []domain.AssetConfig
	cancellations []domain.OrderCancellation

	errs map[string]error
	mu   sync.Mutex
}

func (s *snapshot) fail(dataset string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[dataset] = err
}

// RunOnce executes a single sync pass. A second concurrent call returns
// ErrSyncInProgress without doing any work.
func (e *Engine) RunOnce(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return domain.ErrSyncInProgress
	}
	defer e.running.Store(false)

	started := time.Now()
	e.logger.InfoContext(ctx, "sync pass starting")

	snap := e.fetchAll(ctx)

	for dataset, err := range snap.errs {
		e.logger.ErrorContext(ctx, "dataset fetch failed",
			slog.String("dataset", dataset),
			slog.String("error", err.Error()),
		)
		e.notify(ctx, notify.EventSyncFailed, "Sync dataset failed",
			fmt.Sprintf("dataset %s: %v", dataset, err))
	}

	// Reference data first so position/order appliers see fresh joins.
	e.applyUsers(ctx, snap)
	e.applyTokens(ctx, snap)
	e.applyAssetConfigs(ctx, snap)
	e.applyPositions(ctx, snap)
	e.applyExecutions(ctx, snap)
	e.applyCancellations(ctx, snap)

	e.logger.InfoContext(ctx, "sync pass finished",
		slog.Duration("elapsed", time.Since(started)),
		slog.Int("fetch_failures", len(snap.errs)),
	)
	return nil
}

// Run performs one pass immediately, then one per interval. A tick that
// arrives while a pass is still in flight is dropped, not queued.
func (e *Engine) Run(ctx context.Context, interval time.Duration) error {
	e.logger.Info("sync loop starting", slog.Duration("interval", interval))

	if err := e.RunOnce(ctx); err != nil {
		e.logger.Warn("initial sync pass skipped", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("sync loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := e.RunOnce(ctx); err != nil {
				e.logger.Warn("sync tick skipped, previous pass still running")
			}
		}
	}
}

// TriggerSync starts a pass in the background. It reports ErrSyncInProgress
// when one is already running.
func (e *Engine) TriggerSync() error {
	if e.running.Load() {
		return domain.ErrSyncInProgress
	}
	go func() {
		if err := e.RunOnce(context.Background()); err != nil {
			e.logger.Warn("triggered sync pass skipped", slog.String("error", err.Error()))
		}
	}()
	return nil
}

// fetchAll retrieves every dataset concurrently. Fetches do not cancel each
// other: a failure is recorded against its dataset and the rest proceed.
func (e *Engine) fetchAll(ctx context.Context) *snapshot {
	snap := &snapshot{errs: make(map[string]error)}

	var wg sync.WaitGroup
	run := func(dataset string, fetch func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fetch(); err != nil {
				snap.fail(dataset, err)
			}
		}()
	}

	run("users", func() (err error) {
		snap.users, err = e.fetcher.FetchUsers(ctx)
		return
	})
	run("positions", func() (err error) {
		snap.positions, err = e.fetcher.FetchDebtPositions(ctx)
		return
	})
	run("full_executions", func() (err error) {
		snap.fullExecs, err = e.fetcher.FetchFullOrderExecutions(ctx)
		return
	})
	run("partial_executions", func() (err error) {
		snap.partialExecs, err = e.fetcher.FetchPartialOrderExecutions(ctx)
		return
	})
	run("tokens", func() (err error) {
		snap.tokens, err = e.fetcher.FetchPriceTokens(ctx)
		return
	})
	run("asset_configs", func() (err error) {
		snap.configs, err = e.fetcher.FetchAssetConfigurations(ctx)
		return
	})
	run("cancellations", func() (err error) {
		snap.cancellations, err = e.fetcher.FetchCancelledOrders(ctx)
		return
	})

	wg.Wait()
	return snap
}

func (e *Engine) applyUsers(ctx context.Context, snap *snapshot) {
	if snap.errs["users"] != nil || len(snap.users) == 0 {
		return
	}
	if err := e.users.UpsertBatch(ctx, snap.users); err != nil {
		e.logger.ErrorContext(ctx, "apply users failed", slog.String("error", err.Error()))
		return
	}
	e.logger.DebugContext(ctx, "users applied", slog.Int("count", len(snap.users)))
}

func (e *Engine) applyTokens(ctx context.Context, snap *snapshot) {
	if snap.errs["tokens"] != nil || len(snap.tokens) == 0 {
		return
	}
	if err := e.tokens.UpsertBatch(ctx, snap.tokens); err != nil {
		e.logger.ErrorContext(ctx, "apply tokens failed", slog.String("error", err.Error()))
		return
	}
	e.logger.DebugContext(ctx, "tokens applied", slog.Int("count", len(snap.tokens)))
}

func (e *Engine) applyAssetConfigs(ctx context.Context, snap *snapshot) {
	if snap.errs["asset_configs"] != nil || len(snap.configs) == 0 {
		return
	}
	if err := e.configs.UpsertBatch(ctx, snap.configs); err != nil {
		e.logger.ErrorContext(ctx, "apply asset configs failed", slog.String("error", err.Error()))
		return
	}
	e.logger.DebugContext(ctx, "asset configs applied", slog.Int("count", len(snap.configs)))
}

// applyPositions upserts each position wholesale, then cancels any ACTIVE
// orders whose signed nonce fell behind the position's new nonce.
func (e *Engine) applyPositions(ctx context.Context, snap *snapshot) {
	if snap.errs["positions"] != nil {
		return
	}
	now := time.Now().UTC()
	for _, pos := range snap.positions {
		if err := e.positions.Upsert(ctx, pos); err != nil {
			e.logger.ErrorContext(ctx, "apply position failed",
				slog.String("debt", pos.ID),
				slog.String("error", err.Error()),
			)
			continue
		}

		cancelled, err := e.orders.CancelStaleOrders(ctx, pos.ID, pos.Nonce, now)
		if err != nil {
			e.logger.ErrorContext(ctx, "stale order cancellation failed",
				slog.String("debt", pos.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		for _, o := range cancelled {
			e.logger.InfoContext(ctx, "order cancelled by nonce advance",
				slog.String("order_id", o.ID),
				slog.String("debt", o.Debt),
				slog.Uint64("order_nonce", o.DebtNonce),
				slog.Uint64("current_nonce", pos.Nonce),
			)
			e.notify(ctx, notify.EventOrderCancelled, "Order cancelled",
				fmt.Sprintf("order %s on %s: %s", o.ID, o.Debt, o.CancelReason))
		}
	}
}

// applyExecutions transitions matched orders to EXECUTED. Replays of an
// already-applied event are no-ops and stay silent.
func (e *Engine) applyExecutions(ctx context.Context, snap *snapshot) {
	events := make([]domain.OrderExecutionEvent, 0, len(snap.fullExecs)+len(snap.partialExecs))
	if snap.errs["full_executions"] == nil {
		events = append(events, snap.fullExecs...)
	}
	if snap.errs["partial_executions"] == nil {
		events = append(events, snap.partialExecs...)
	}

	for _, ev := range events {
		exec := domain.OrderExecution{
			Buyer:       ev.Buyer,
			TxHash:      ev.TxHash,
			BlockNumber: ev.BlockNumber,
			USDValue:    ev.USDValue,
			USDBonus:    ev.USDBonus,
			ExecutedAt:  time.Unix(ev.Timestamp, 0).UTC(),
		}
		applied, err := e.orders.TransitionToExecuted(ctx, ev.TitleHash, ev.OrderType, exec)
		if err != nil {
			// Unknown title hashes are expected: the order may have been
			// placed through another instance or never stored here.
			e.logger.DebugContext(ctx, "execution event unmatched",
				slog.String("title_hash", ev.TitleHash),
				slog.String("error", err.Error()),
			)
			continue
		}
		if !applied {
			continue
		}
		e.logger.InfoContext(ctx, "order executed",
			slog.String("title_hash", ev.TitleHash),
			slog.String("buyer", ev.Buyer),
			slog.String("tx", ev.TxHash),
		)
		e.notify(ctx, notify.EventOrderExecuted, "Order executed",
			fmt.Sprintf("order %s bought by %s (tx %s, value %s USD)",
				ev.TitleHash, ev.Buyer, ev.TxHash, ev.USDValue))
	}
}

// applyCancellations transitions matched orders to CANCELLED on explicit
// on-chain cancellation events.
func (e *Engine) applyCancellations(ctx context.Context, snap *snapshot) {
	if snap.errs["cancellations"] != nil {
		return
	}
	for _, ev := range snap.cancellations {
		at := time.Unix(ev.Timestamp, 0).UTC()
		applied, err := e.orders.TransitionToCancelled(ctx, ev.TitleHash, ev.OrderType, domain.CancelReasonOnChain, at)
		if err != nil {
			e.logger.DebugContext(ctx, "cancellation event unmatched",
				slog.String("title_hash", ev.TitleHash),
				slog.String("error", err.Error()),
			)
			continue
		}
		if !applied {
			continue
		}
		e.logger.InfoContext(ctx, "order cancelled on-chain",
			slog.String("title_hash", ev.TitleHash),
		)
		e.notify(ctx, notify.EventOrderCancelled, "Order cancelled",
			fmt.Sprintf("order %s cancelled on-chain", ev.TitleHash))
	}
}

func (e *Engine) notify(ctx context.Context, event, title, message string) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Notify(ctx, event, title, message); err != nil {
		e.logger.WarnContext(ctx, "notification delivery failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
