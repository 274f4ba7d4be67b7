package cart

import (
	"context"
	"sync"
)

// =============================================================================
// MEMORY REPOSITORY - In-memory implementation (for testing/dev)
// =============================================================================

type MemoryRepository struct {
	mu    sync.RWMutex
	carts map[Identity]Cart
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{carts: make(map[Identity]Cart)}
}

func (m *MemoryRepository) Get(_ context.Context, identity Identity) (Cart, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.carts[identity].clone(), nil
}

func (m *MemoryRepository) Put(_ context.Context, identity Identity, cart Cart) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(cart.Entries) == 0 {
		delete(m.carts, identity)
		return nil
	}
	m.carts[identity] = cart.clone()
	return nil
}

func (m *MemoryRepository) Delete(_ context.Context, identity Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.carts, identity)
	return nil
}
