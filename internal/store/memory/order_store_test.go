package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Debt-Purchasing/debt-purchasing-backend/internal/domain"
)

const debtAddr = "0x2222222222222222222222222222222222222222"

func activeOrder(id string, typ domain.OrderType, nonce uint64, now time.Time) domain.Order {
	return domain.Order{
		ID:        id,
		Type:      typ,
		Seller:    "0x1111111111111111111111111111111111111111",
		Debt:      debtAddr,
		DebtNonce: nonce,
		StartTime: now.Unix() - 60,
		EndTime:   now.Unix() + 3600,
		TriggerHF: "1050000000000000000",
		TitleHash: "0xhash-" + id,
		Status:    domain.OrderStatusActive,
		CreatedAt: now,
	}
}

func TestCreateRejectsDuplicateActive(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	s := NewOrderStore()

	if err := s.Create(ctx, activeOrder("a", domain.OrderTypeFull, 0, now)); err != nil {
		t.Fatalf("first create: %v", err)
	}

	err := s.Create(ctx, activeOrder("b", domain.OrderTypeFull, 0, now))
	if !errors.Is(err, domain.ErrDuplicateActiveOrder) {
		t.Fatalf("second create: got %v, want ErrDuplicateActiveOrder", err)
	}
	if _, err := s.GetByID(ctx, "b"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatal("rejected order must not be persisted")
	}

	// A different order type for the same debt is allowed.
	if err := s.Create(ctx, activeOrder("c", domain.OrderTypePartial, 0, now)); err != nil {
		t.Fatalf("partial create alongside full: %v", err)
	}
}

func TestCreateAllowedAfterTerminalTransition(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	s := NewOrderStore()

	first := activeOrder("a", domain.OrderTypeFull, 0, now)
	if err := s.Create(ctx, first); err != nil {
		t.Fatal(err)
	}

	applied, err := s.TransitionToCancelled(ctx, first.TitleHash, first.Type, "test", now)
	if err != nil || !applied {
		t.Fatalf("transition: applied=%v err=%v", applied, err)
	}

	if err := s.Create(ctx, activeOrder("b", domain.OrderTypeFull, 1, now)); err != nil {
		t.Fatalf("create after cancellation: %v", err)
	}
}

func TestCancelStaleOrdersNonceBoundary(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	s := NewOrderStore()

	stale := activeOrder("stale", domain.OrderTypeFull, 0, now)
	fresh := activeOrder("fresh", domain.OrderTypePartial, 1, now)
	if err := s.Create(ctx, stale); err != nil {
		t.Fatal(err)
	}
	if err := s.Create(ctx, fresh); err != nil {
		t.Fatal(err)
	}

	cancelled, err := s.CancelStaleOrders(ctx, debtAddr, 1, now)
	if err != nil {
		t.Fatal(err)
	}
	if len(cancelled) != 1 || cancelled[0].ID != "stale" {
		t.Fatalf("cancelled = %+v, want only the nonce-0 order", cancelled)
	}

	// Orders signed at exactly the new nonce must remain ACTIVE.
	got, _ := s.GetByID(ctx, "fresh")
	if got.Status != domain.OrderStatusActive {
		t.Fatalf("nonce-1 order status = %s, want ACTIVE", got.Status)
	}

	got, _ = s.GetByID(ctx, "stale")
	if got.Status != domain.OrderStatusCancelled {
		t.Fatalf("nonce-0 order status = %s, want CANCELLED", got.Status)
	}
	if got.CancelReason == "" {
		t.Fatal("stale cancellation must carry a reason citing the nonce change")
	}
}

func TestTransitionsAreIdempotent(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	s := NewOrderStore()

	o := activeOrder("a", domain.OrderTypeFull, 0, now)
	if err := s.Create(ctx, o); err != nil {
		t.Fatal(err)
	}

	exec := domain.OrderExecution{Buyer: "0xbuyer", TxHash: "0xtx", ExecutedAt: now}
	applied, err := s.TransitionToExecuted(ctx, o.TitleHash, o.Type, exec)
	if err != nil || !applied {
		t.Fatalf("first execution: applied=%v err=%v", applied, err)
	}

	// Replaying the same event must not change state.
	applied, err = s.TransitionToExecuted(ctx, o.TitleHash, o.Type, exec)
	if err != nil || applied {
		t.Fatalf("replayed execution: applied=%v err=%v, want no-op", applied, err)
	}

	// A cancellation after execution is also a no-op.
	applied, err = s.TransitionToCancelled(ctx, o.TitleHash, o.Type, "late", now)
	if err != nil || applied {
		t.Fatalf("cancel after execute: applied=%v err=%v, want no-op", applied, err)
	}

	got, _ := s.GetByID(ctx, "a")
	if got.Status != domain.OrderStatusExecuted || got.Execution == nil {
		t.Fatalf("order = %+v, want EXECUTED with execution record", got)
	}
}

func TestListActiveDerivedExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	s := NewOrderStore()

	o := activeOrder("a", domain.OrderTypeFull, 0, now)
	o.EndTime = now.Unix() + 2
	if err := s.Create(ctx, o); err != nil {
		t.Fatal(err)
	}

	active, _ := s.ListActive(ctx, domain.OrderFilter{}, now)
	if len(active) != 1 {
		t.Fatalf("active now = %d orders, want 1", len(active))
	}

	// Past the end time the order disappears from active listings but stays
	// stored-ACTIVE in the unfiltered listing.
	later := now.Add(3 * time.Second)
	active, _ = s.ListActive(ctx, domain.OrderFilter{}, later)
	if len(active) != 0 {
		t.Fatalf("active after expiry = %d orders, want 0", len(active))
	}

	all, _ := s.List(ctx, domain.OrderFilter{}, domain.ListOpts{})
	if len(all) != 1 || all[0].Status != domain.OrderStatusActive {
		t.Fatalf("stored order = %+v, want stored status ACTIVE", all)
	}
	if all[0].EffectiveStatus(later) != domain.OrderStatusExpired {
		t.Fatal("effective status past endTime must read EXPIRED")
	}

	// Not-yet-started orders are excluded from active listings too.
	b := activeOrder("b", domain.OrderTypePartial, 0, now)
	b.StartTime = now.Unix() + 100
	if err := s.Create(ctx, b); err != nil {
		t.Fatal(err)
	}
	active, _ = s.ListActive(ctx, domain.OrderFilter{Type: domain.OrderTypePartial}, now)
	if len(active) != 0 {
		t.Fatal("not-started order must not appear in active listings")
	}
}

func TestListFiltersAndPagination(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	s := NewOrderStore()

	a := activeOrder("a", domain.OrderTypeFull, 0, now.Add(-2*time.Minute))
	b := activeOrder("b", domain.OrderTypePartial, 0, now.Add(-time.Minute))
	c := activeOrder("c", domain.OrderTypeFull, 0, now)
	c.Debt = "0x9999999999999999999999999999999999999999"
	for _, o := range []domain.Order{a, b, c} {
		if err := s.Create(ctx, o); err != nil {
			t.Fatal(err)
		}
	}

	byDebt, _ := s.List(ctx, domain.OrderFilter{Debt: debtAddr}, domain.ListOpts{})
	if len(byDebt) != 2 {
		t.Fatalf("filter by debt: %d orders, want 2", len(byDebt))
	}

	// Newest first.
	all, _ := s.List(ctx, domain.OrderFilter{}, domain.ListOpts{})
	if len(all) != 3 || all[0].ID != "c" || all[2].ID != "a" {
		t.Fatalf("ordering wrong: %v", ids(all))
	}

	page, _ := s.List(ctx, domain.OrderFilter{}, domain.ListOpts{Limit: 1, Offset: 1})
	if len(page) != 1 || page[0].ID != "b" {
		t.Fatalf("pagination wrong: %v", ids(page))
	}
}

func ids(orders []domain.Order) []string {
	out := make([]string, len(orders))
	for i, o := range orders {
		out[i] = o.ID
	}
	return out
}
