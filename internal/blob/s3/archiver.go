package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Debt-Purchasing/debt-purchasing-backend/internal/domain"
)

// Archiver exports EXECUTED and CANCELLED orders older than a retention
// window to object storage as JSON Lines, one batch per run.
type Archiver struct {
	orders        domain.OrderStore
	writer        *Writer
	retentionDays int
	logger        *slog.Logger
}

// NewArchiver creates an Archiver over the given store and writer.
func NewArchiver(orders domain.OrderStore, writer *Writer, retentionDays int, logger *slog.Logger) *Archiver {
	return &Archiver{
		orders:        orders,
		writer:        writer,
		retentionDays: retentionDays,
		logger:        logger.With(slog.String("component", "archiver")),
	}
}

// Run executes a single archive pass and returns the number of orders
// exported. Nothing to archive is not an error.
func (a *Archiver) Run(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -a.retentionDays)

	orders, err := a.orders.ListTerminalBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("archiver: list terminal orders: %w", err)
	}
	if len(orders) == 0 {
		return 0, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, o := range orders {
		if err := enc.Encode(o); err != nil {
			return 0, fmt.Errorf("archiver: encode order %s: %w", o.ID, err)
		}
	}

	now := time.Now().UTC()
	key := fmt.Sprintf("archive/orders/%s/orders-%d.jsonl",
		now.Format("2006/01/02"), now.Unix())

	if err := a.writer.Put(ctx, key, &buf, "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("archiver: upload batch: %w", err)
	}

	a.logger.InfoContext(ctx, "terminal orders archived",
		slog.Int("count", len(orders)),
		slog.Time("cutoff", cutoff),
		slog.String("key", key),
	)
	return len(orders), nil
}

// RunLoop runs archive passes on a fixed interval until the context is
// cancelled. Failures are logged and the loop continues.
func (a *Archiver) RunLoop(ctx context.Context, interval time.Duration) error {
	a.logger.Info("archiver loop starting",
		slog.Duration("interval", interval),
		slog.Int("retention_days", a.retentionDays),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("archiver loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := a.Run(ctx); err != nil {
				a.logger.Error("archive pass failed", slog.String("error", err.Error()))
			}
		}
	}
}
