package escrow

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory payment store for demo/development mode.
type MemoryStore struct {
	payments map[string]*Payment
	mu       sync.RWMutex
}

// NewMemoryStore creates a new in-memory payment store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		payments: make(map[string]*Payment),
	}
}

func (m *MemoryStore) Create(ctx context.Context, p *Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *p
	m.payments[p.ID] = &cp
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.payments[id]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	// Return a copy to prevent races on the shared pointer.
	cp := *p
	return &cp, nil
}

func (m *MemoryStore) Update(ctx context.Context, p *Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.payments[p.ID]; !ok {
		return ErrPaymentNotFound
	}
	cp := *p
	m.payments[p.ID] = &cp
	return nil
}

func (m *MemoryStore) ListByTicket(ctx context.Context, ticketID string) ([]*Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Payment
	for _, p := range m.payments {
		if p.TicketID == ticketID {
			cp := *p
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (m *MemoryStore) ListByStatus(ctx context.Context, status Status, limit int) ([]*Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Payment
	for _, p := range m.payments {
		if p.Status == status {
			cp := *p
			result = append(result, &cp)
			if len(result) >= limit {
				break
			}
		}
	}
	return result, nil
}

// Compile-time assertion that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
