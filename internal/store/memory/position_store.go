package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/Debt-Purchasing/debt-purchasing-backend/internal/domain"
)

// PositionStore implements domain.PositionStore in memory.
type PositionStore struct {
	mu        sync.RWMutex
	positions map[string]domain.DebtPosition // by lowercase address
}

// NewPositionStore creates an empty in-memory position store.
func NewPositionStore() *PositionStore {
	return &PositionStore{positions: make(map[string]domain.DebtPosition)}
}

// Upsert overwrites the position wholesale, keyed by its address.
func (s *PositionStore) Upsert(_ context.Context, pos domain.DebtPosition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[strings.ToLower(pos.ID)] = pos
	return nil
}

// GetByID returns the position with the given address or ErrNotFound.
func (s *PositionStore) GetByID(_ context.Context, id string) (domain.DebtPosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pos, ok := s.positions[strings.ToLower(id)]
	if !ok {
		return domain.DebtPosition{}, domain.ErrNotFound
	}
	return pos, nil
}

// List returns positions, optionally filtered by owner, ordered by address.
func (s *PositionStore) List(_ context.Context, owner string, opts domain.ListOpts) ([]domain.DebtPosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.DebtPosition
	for _, pos := range s.positions {
		if owner != "" && !strings.EqualFold(pos.Owner, owner) {
			continue
		}
		out = append(out, pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	if opts.Offset >= len(out) {
		return nil, nil
	}
	out = out[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(out) {
		out = out[:opts.Limit]
	}
	return out, nil
}

var _ domain.PositionStore = (*PositionStore)(nil)
