package disputes

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory dispute store for demo/development mode.
type MemoryStore struct {
	disputes map[string]*Dispute
	mu       sync.RWMutex
}

// NewMemoryStore creates a new in-memory dispute store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		disputes: make(map[string]*Dispute),
	}
}

func (m *MemoryStore) Create(ctx context.Context, d *Dispute) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *d
	m.disputes[d.ID] = &cp
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Dispute, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.disputes[id]
	if !ok {
		return nil, ErrDisputeNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *MemoryStore) Update(ctx context.Context, d *Dispute) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.disputes[d.ID]; !ok {
		return ErrDisputeNotFound
	}
	cp := *d
	m.disputes[d.ID] = &cp
	return nil
}

func (m *MemoryStore) GetOpenByPayment(ctx context.Context, paymentID string) (*Dispute, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, d := range m.disputes {
		if d.PaymentID == paymentID && !d.Resolved() {
			cp := *d
			return &cp, nil
		}
	}
	return nil, ErrDisputeNotFound
}

func (m *MemoryStore) ListByPayment(ctx context.Context, paymentID string) ([]*Dispute, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Dispute
	for _, d := range m.disputes {
		if d.PaymentID == paymentID {
			cp := *d
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// Compile-time assertion that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
