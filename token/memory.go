package token

import (
	"context"
	"sync"
	"time"
)

// =============================================================================
// MEMORY STORE - In-memory token store (for testing/dev)
// =============================================================================

type MemoryStore struct {
	mu     sync.Mutex
	tokens map[ID]Token
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tokens: make(map[ID]Token)}
}

func (m *MemoryStore) InsertToken(_ context.Context, t Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[t.ID] = t
	return nil
}

func (m *MemoryStore) GetToken(_ context.Context, id ID) (Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tokens[id]
	if !ok {
		return Token{}, ErrNotFound
	}
	return t, nil
}

// ConsumeToken is a compare-and-swap on the state field.
func (m *MemoryStore) ConsumeToken(_ context.Context, id ID, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tokens[id]
	if !ok {
		return ErrNotFound
	}
	if t.State != StatePending {
		return ErrConsumed
	}
	t.State = StateConsumed
	m.tokens[id] = t
	return nil
}

func (m *MemoryStore) DeleteExpiredTokens(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for id, t := range m.tokens {
		if t.ExpiresAt.Before(cutoff) {
			delete(m.tokens, id)
			n++
		}
	}
	return n, nil
}
