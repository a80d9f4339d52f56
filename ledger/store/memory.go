// Package store provides ledger.Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/venuepass/pass-engine/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu     sync.RWMutex
	passes map[ledger.PassID]ledger.Pass
	events map[ledger.PassID][]ledger.Event
}

func NewMemory() *Memory {
	return &Memory{
		passes: make(map[ledger.PassID]ledger.Pass),
		events: make(map[ledger.PassID][]ledger.Event),
	}
}

func (m *Memory) CreatePass(_ context.Context, p ledger.Pass) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.passes[p.ID]; ok {
		return ledger.ErrPassExists
	}
	m.passes[p.ID] = p
	return nil
}

func (m *Memory) GetPass(_ context.Context, id ledger.PassID) (ledger.Pass, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.passes[id]
	if !ok {
		return ledger.Pass{}, ledger.ErrPassNotFound
	}
	return p, nil
}

func (m *Memory) DeactivatePass(_ context.Context, id ledger.PassID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.passes[id]
	if !ok {
		return ledger.ErrPassNotFound
	}
	p.Active = false
	m.passes[id] = p
	return nil
}

// AppendEvent inserts the event and moves the balance as one locked unit.
// A debit that would overdraw is refused with no state change.
func (m *Memory) AppendEvent(_ context.Context, e ledger.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.passes[e.PassID]
	if !ok {
		return ledger.ErrPassNotFound
	}

	next := p.Balance.Add(e.Signed())
	if next.IsNegative() {
		return ledger.ErrInsufficientBalance
	}

	p.Balance = next
	m.passes[e.PassID] = p
	m.events[e.PassID] = append(m.events[e.PassID], e)
	return nil
}

func (m *Memory) ListEvents(_ context.Context, id ledger.PassID, f ledger.Filter) ([]ledger.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []ledger.Event
	for _, e := range m.events[id] {
		if f.Matches(e) {
			result = append(result, e)
		}
	}

	sortNewestFirst(result)
	return result, nil
}

// EventsInRange returns events across all passes in [from, to], newest
// first. Used by the reporting projections.
func (m *Memory) EventsInRange(_ context.Context, from, to time.Time, kind *ledger.EventKind) ([]ledger.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	f := ledger.Filter{From: &from, To: &to, Kind: kind}
	var result []ledger.Event
	for _, events := range m.events {
		for _, e := range events {
			if f.Matches(e) {
				result = append(result, e)
			}
		}
	}

	sortNewestFirst(result)
	return result, nil
}

// sortNewestFirst orders by CreatedAt descending; insertion order breaks
// timestamp ties deterministically.
func sortNewestFirst(events []ledger.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].CreatedAt.After(events[j].CreatedAt)
	})
}
