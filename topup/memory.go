package topup

import (
	"context"
	"sort"
	"sync"
)

// =============================================================================
// MEMORY CATALOG - In-memory implementation (for testing/dev)
// =============================================================================

type MemoryCatalog struct {
	mu       sync.RWMutex
	products map[ProductID]Product
}

func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{products: make(map[ProductID]Product)}
}

func (m *MemoryCatalog) GetProduct(_ context.Context, id ProductID) (Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.products[id]
	if !ok {
		return Product{}, ErrProductNotFound
	}
	return p, nil
}

func (m *MemoryCatalog) ListProducts(_ context.Context, category Category, activeOnly bool) ([]Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []Product
	for _, p := range m.products {
		if category != "" && p.Category != category {
			continue
		}
		if activeOnly && !p.Active {
			continue
		}
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (m *MemoryCatalog) SaveProduct(_ context.Context, p Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[p.ID] = p
	return nil
}

func (m *MemoryCatalog) DeactivateProduct(_ context.Context, id ProductID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.products[id]
	if !ok {
		return ErrProductNotFound
	}
	p.Active = false
	m.products[id] = p
	return nil
}
