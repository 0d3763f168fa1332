// Package memory implements the domain store interfaces with in-process
// maps under a mutex. It backs the "memory" store driver for local
// development and serves as the substrate for tests; semantics mirror the
// postgres implementations exactly.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Debt-Purchasing/debt-purchasing-backend/internal/domain"
)

// OrderStore implements domain.OrderStore in memory.
type OrderStore struct {
	mu     sync.RWMutex
	orders map[string]domain.Order // by id
}

// NewOrderStore creates an empty in-memory order store.
func NewOrderStore() *OrderStore {
	return &OrderStore{orders: make(map[string]domain.Order)}
}

// Create persists a new ACTIVE order, rejecting it when an ACTIVE order
// already exists for the same (debt, order type) pair.
func (s *OrderStore) Create(_ context.Context, o domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.orders {
		if existing.Status == domain.OrderStatusActive &&
			sameAddress(existing.Debt, o.Debt) &&
			existing.Type == o.Type {
			return domain.ErrDuplicateActiveOrder
		}
	}

	s.orders[o.ID] = o
	return nil
}

// GetByID returns the order with the given id or ErrNotFound.
func (s *OrderStore) GetByID(_ context.Context, id string) (domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrNotFound
	}
	return o, nil
}

// List returns orders matching the filter, newest first.
func (s *OrderStore) List(_ context.Context, filter domain.OrderFilter, opts domain.ListOpts) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := s.match(filter)
	return paginate(matched, opts), nil
}

// ListActive returns stored-ACTIVE orders whose validity window contains now.
func (s *OrderStore) ListActive(_ context.Context, filter domain.OrderFilter, now time.Time) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	filter.Status = domain.OrderStatusActive
	var active []domain.Order
	for _, o := range s.match(filter) {
		if o.StartTime <= now.Unix() && now.Unix() <= o.EndTime {
			active = append(active, o)
		}
	}
	return active, nil
}

// FindActive returns the ACTIVE order for (debt, typ) or ErrNotFound.
func (s *OrderStore) FindActive(_ context.Context, debt string, typ domain.OrderType) (domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, o := range s.orders {
		if o.Status == domain.OrderStatusActive && sameAddress(o.Debt, debt) && o.Type == typ {
			return o, nil
		}
	}
	return domain.Order{}, domain.ErrNotFound
}

// TransitionToExecuted marks the matching order EXECUTED. Terminal orders
// are left untouched and reported as not applied.
func (s *OrderStore) TransitionToExecuted(_ context.Context, titleHash string, typ domain.OrderType, exec domain.OrderExecution) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, o := range s.orders {
		if !strings.EqualFold(o.TitleHash, titleHash) || o.Type != typ {
			continue
		}
		if o.IsTerminal() {
			return false, nil
		}
		execCopy := exec
		o.Status = domain.OrderStatusExecuted
		o.Execution = &execCopy
		o.UpdatedAt = exec.ExecutedAt
		s.orders[id] = o
		return true, nil
	}
	return false, domain.ErrNotFound
}

// TransitionToCancelled marks the matching order CANCELLED. Terminal orders
// are left untouched and reported as not applied.
func (s *OrderStore) TransitionToCancelled(_ context.Context, titleHash string, typ domain.OrderType, reason string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, o := range s.orders {
		if !strings.EqualFold(o.TitleHash, titleHash) || o.Type != typ {
			continue
		}
		if o.IsTerminal() {
			return false, nil
		}
		atCopy := at
		o.Status = domain.OrderStatusCancelled
		o.CancelledAt = &atCopy
		o.CancelReason = reason
		o.UpdatedAt = at
		s.orders[id] = o
		return true, nil
	}
	return false, domain.ErrNotFound
}

// CancelStaleOrders cancels every ACTIVE order for the debt position whose
// signed nonce is strictly less than currentNonce.
func (s *OrderStore) CancelStaleOrders(_ context.Context, debt string, currentNonce uint64, at time.Time) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var cancelled []domain.Order
	for id, o := range s.orders {
		if o.Status != domain.OrderStatusActive || !sameAddress(o.Debt, debt) {
			continue
		}
		if o.DebtNonce >= currentNonce {
			continue
		}
		atCopy := at
		o.Status = domain.OrderStatusCancelled
		o.CancelledAt = &atCopy
		o.CancelReason = domain.StaleNonceReason(o.DebtNonce, currentNonce)
		o.UpdatedAt = at
		s.orders[id] = o
		cancelled = append(cancelled, o)
	}
	return cancelled, nil
}

// ListTerminalBefore returns terminal orders whose terminal timestamp is
// strictly before the cutoff.
func (s *OrderStore) ListTerminalBefore(_ context.Context, before time.Time) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Order
	for _, o := range s.orders {
		switch o.Status {
		case domain.OrderStatusExecuted:
			if o.Execution != nil && o.Execution.ExecutedAt.Before(before) {
				out = append(out, o)
			}
		case domain.OrderStatusCancelled:
			if o.CancelledAt != nil && o.CancelledAt.Before(before) {
				out = append(out, o)
			}
		}
	}
	sortByCreatedDesc(out)
	return out, nil
}

// match returns orders matching the filter, newest first. Callers hold the
// lock.
func (s *OrderStore) match(filter domain.OrderFilter) []domain.Order {
	var out []domain.Order
	for _, o := range s.orders {
		if filter.Debt != "" && !sameAddress(o.Debt, filter.Debt) {
			continue
		}
		if filter.Seller != "" && !sameAddress(o.Seller, filter.Seller) {
			continue
		}
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		if filter.Type != "" && o.Type != filter.Type {
			continue
		}
		out = append(out, o)
	}
	sortByCreatedDesc(out)
	return out
}

func sortByCreatedDesc(orders []domain.Order) {
	sort.Slice(orders, func(i, j int) bool {
		if orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].ID < orders[j].ID
		}
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
}

func paginate(orders []domain.Order, opts domain.ListOpts) []domain.Order {
	if opts.Offset >= len(orders) {
		return nil
	}
	orders = orders[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(orders) {
		orders = orders[:opts.Limit]
	}
	return orders
}

func sameAddress(a, b string) bool {
	return strings.EqualFold(a, b)
}

var _ domain.OrderStore = (*OrderStore)(nil)
