package quota

import (
	"context"
	"sync"
)

// MemoryStore is a mutex-guarded in-process quota store. Suitable for
// embedding and tests; use KVStore when runs are admitted from more than
// one process.
type MemoryStore struct {
	mu        sync.Mutex
	balances  map[string]int64
	allowance int64
}

// NewMemoryStore creates an in-memory store granting defaultAllowance to
// tenants seen for the first time. A non-positive allowance falls back to
// DefaultAllowance.
func NewMemoryStore(defaultAllowance int64) *MemoryStore {
	if defaultAllowance <= 0 {
		defaultAllowance = DefaultAllowance
	}
	return &MemoryStore{
		balances:  make(map[string]int64),
		allowance: defaultAllowance,
	}
}

// CheckAndConsume implements Store.
func (s *MemoryStore) CheckAndConsume(_ context.Context, tenantID string, units int64) (bool, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	balance, ok := s.balances[tenantID]
	if !ok {
		balance = s.allowance
		s.balances[tenantID] = balance
	}

	if balance < units {
		return false, balance, nil
	}

	balance -= units
	s.balances[tenantID] = balance
	return true, balance, nil
}

// SetBalance implements Store.
func (s *MemoryStore) SetBalance(_ context.Context, tenantID string, balance int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[tenantID] = balance
	return nil
}

// Balance implements Store.
func (s *MemoryStore) Balance(_ context.Context, tenantID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if balance, ok := s.balances[tenantID]; ok {
		return balance, nil
	}
	return s.allowance, nil
}
