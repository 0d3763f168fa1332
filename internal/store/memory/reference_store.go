package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/Debt-Purchasing/debt-purchasing-backend/internal/domain"
)

// TokenStore implements domain.TokenStore in memory.
type TokenStore struct {
	mu     sync.RWMutex
	tokens map[string]domain.Token
}

// NewTokenStore creates an empty in-memory token store.
func NewTokenStore() *TokenStore {
	return &TokenStore{tokens: make(map[string]domain.Token)}
}

// UpsertBatch overwrites tokens by address.
func (s *TokenStore) UpsertBatch(_ context.Context, tokens []domain.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range tokens {
		s.tokens[strings.ToLower(t.ID)] = t
	}
	return nil
}

// GetByID returns the token with the given address or ErrNotFound.
func (s *TokenStore) GetByID(_ context.Context, id string) (domain.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tokens[strings.ToLower(id)]
	if !ok {
		return domain.Token{}, domain.ErrNotFound
	}
	return t, nil
}

// GetByIDs returns the known subset of the requested tokens, keyed by
// lowercase address. Missing tokens are simply absent from the result.
func (s *TokenStore) GetByIDs(_ context.Context, ids []string) (map[string]domain.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]domain.Token, len(ids))
	for _, id := range ids {
		if t, ok := s.tokens[strings.ToLower(id)]; ok {
			out[strings.ToLower(id)] = t
		}
	}
	return out, nil
}

var _ domain.TokenStore = (*TokenStore)(nil)

// AssetConfigStore implements domain.AssetConfigStore in memory.
type AssetConfigStore struct {
	mu      sync.RWMutex
	configs map[string]domain.AssetConfig
}

// NewAssetConfigStore creates an empty in-memory asset-config store.
func NewAssetConfigStore() *AssetConfigStore {
	return &AssetConfigStore{configs: make(map[string]domain.AssetConfig)}
}

// UpsertBatch overwrites configs by token address.
func (s *AssetConfigStore) UpsertBatch(_ context.Context, configs []domain.AssetConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range configs {
		s.configs[strings.ToLower(c.Token)] = c
	}
	return nil
}

// GetByTokens returns the known subset of the requested configs, keyed by
// lowercase token address.
func (s *AssetConfigStore) GetByTokens(_ context.Context, tokens []string) (map[string]domain.AssetConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]domain.AssetConfig, len(tokens))
	for _, token := range tokens {
		if c, ok := s.configs[strings.ToLower(token)]; ok {
			out[strings.ToLower(token)] = c
		}
	}
	return out, nil
}

var _ domain.AssetConfigStore = (*AssetConfigStore)(nil)

// UserStore implements domain.UserStore in memory.
type UserStore struct {
	mu    sync.RWMutex
	users map[string]domain.User
}

// NewUserStore creates an empty in-memory user store.
func NewUserStore() *UserStore {
	return &UserStore{users: make(map[string]domain.User)}
}

// UpsertBatch overwrites users by address.
func (s *UserStore) UpsertBatch(_ context.Context, users []domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range users {
		s.users[strings.ToLower(u.ID)] = u
	}
	return nil
}

// GetByID returns the user with the given address or ErrNotFound.
func (s *UserStore) GetByID(_ context.Context, id string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[strings.ToLower(id)]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u, nil
}

var _ domain.UserStore = (*UserStore)(nil)
