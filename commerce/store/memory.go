// Package store provides in-process implementations of commerce interfaces.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/warp/resale-engine/commerce"
)

// =============================================================================
// MEMORY ORDER CACHE - In-memory implementation (for testing/dev)
// =============================================================================

type MemoryOrderCache struct {
	mu     sync.RWMutex
	orders map[string][]commerce.CachedOrder
}

func NewMemoryOrderCache() *MemoryOrderCache {
	return &MemoryOrderCache{orders: make(map[string][]commerce.CachedOrder)}
}

func normEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Save stores an order, keeping each email's list ordered by date. An order
// with the same Ref replaces the earlier copy.
func (m *MemoryOrderCache) Save(_ context.Context, order commerce.CachedOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := normEmail(order.CustomerEmail)
	orders := m.orders[k]
	ref := order.Ref()
	for i, o := range orders {
		if o.Ref() == ref {
			orders = append(orders[:i:i], orders[i+1:]...)
			break
		}
	}

	i := sort.Search(len(orders), func(i int) bool {
		return orders[i].Date.After(order.Date)
	})
	orders = append(orders, commerce.CachedOrder{})
	copy(orders[i+1:], orders[i:])
	orders[i] = order
	m.orders[k] = orders
	return nil
}

func (m *MemoryOrderCache) ListByEmail(_ context.Context, email string) ([]commerce.CachedOrder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	orders := m.orders[normEmail(email)]
	out := make([]commerce.CachedOrder, len(orders))
	copy(out, orders)
	return out, nil
}

func (m *MemoryOrderCache) Emails(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, 0, len(m.orders))
	for email, orders := range m.orders {
		if len(orders) > 0 {
			out = append(out, email)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemoryOrderCache) Remove(_ context.Context, email, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := normEmail(email)
	orders := m.orders[k]
	for i, o := range orders {
		if o.Ref() == ref {
			m.orders[k] = append(orders[:i:i], orders[i+1:]...)
			break
		}
	}
	if len(m.orders[k]) == 0 {
		delete(m.orders, k)
	}
	return nil
}
