/*
manager.go - Issue and resolve redemption tokens

PURPOSE:
  The Manager owns every token. The ledger never sees a token - only the
  debit event that a successful resolve produces.

INVARIANTS:
  1. Exactly-once: one successful Resolve per token, ever. Concurrent and
     retried Resolve calls on a consumed token deterministically fail with
     ErrConsumed.
  2. No reservation at issuance: Issue checks the balance optimistically,
     but funds are not held. Two pending tokens may together exceed the
     balance; the second Resolve that would overdraw fails with
     InsufficientBalance and leaves its token pending.
  3. Expiry by server clock at resolution time only.

CONCURRENCY:
  Resolve serializes per token ID, so the state check, the debit, and the
  consumed-mark cannot interleave for the same token. The ledger's own
  per-pass lock protects the balance across different tokens on one pass.
*/
package token

import (
	"context"
	"sync"
	"time"

	"github.com/venuepass/pass-engine/ledger"
)

// DefaultTTL is how long an issued token stays redeemable.
const DefaultTTL = 2 * time.Minute

// =============================================================================
// MANAGER
// =============================================================================

type Manager struct {
	store  Store
	ledger *ledger.Ledger
	ttl    time.Duration
	locks  map[ID]*sync.Mutex
	mu     sync.Mutex

	// Clock is overridable for tests; defaults to time.Now.
	Clock func() time.Time
}

func NewManager(store Store, l *ledger.Ledger, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		store:  store,
		ledger: l,
		ttl:    ttl,
		locks:  make(map[ID]*sync.Mutex),
		Clock:  time.Now,
	}
}

// TTL returns the configured token lifetime.
func (m *Manager) TTL() time.Duration { return m.ttl }

// Issue creates a pending token for amount against the pass. The balance is
// checked optimistically here and re-checked at resolution, since it may
// change in between.
func (m *Manager) Issue(ctx context.Context, passID ledger.PassID, amount ledger.Amount) (Token, error) {
	if !amount.IsPositive() {
		return Token{}, ledger.ErrInvalidAmount
	}

	balance, err := m.ledger.Balance(ctx, passID)
	if err != nil {
		return Token{}, err
	}
	if balance.LessThan(amount) {
		return Token{}, &ledger.InsufficientBalanceError{
			PassID:    passID,
			Available: balance,
			Requested: amount,
			Shortfall: amount.Sub(balance),
		}
	}

	now := m.Clock().UTC()
	t := Token{
		ID:        NewID(),
		PassID:    passID,
		Amount:    amount,
		IssuedAt:  now,
		ExpiresAt: now.Add(m.ttl),
		State:     StatePending,
	}
	if err := m.store.InsertToken(ctx, t); err != nil {
		return Token{}, err
	}
	return t, nil
}

// Receipt is the outcome of a successful Resolve.
type Receipt struct {
	TokenID    ID
	PassID     ledger.PassID
	Amount     ledger.Amount
	EventID    ledger.EventID
	NewBalance ledger.Amount
	ResolvedAt time.Time
}

// Resolve consumes a token exactly once and debits the pass.
//
// Failure modes, all without a ledger mutation:
//   - ErrNotFound:  unknown (or purged) token ID
//   - ErrExpired:   now > ExpiresAt, even if the row was never marked
//   - ErrConsumed:  a previous Resolve already debited the pass
//   - ledger.ErrInsufficientBalance: balance dropped since issuance; the
//     token stays pending so the customer can re-check and retry
func (m *Manager) Resolve(ctx context.Context, id ID, actor ledger.ActorID) (Receipt, error) {
	unlock := m.lockToken(id)
	defer unlock()

	t, err := m.store.GetToken(ctx, id)
	if err != nil {
		return Receipt{}, err
	}

	now := m.Clock().UTC()
	if t.Expired(now) {
		return Receipt{}, ErrExpired
	}
	if t.State != StatePending {
		return Receipt{}, ErrConsumed
	}

	// Debit first: if the balance fell short, the token must stay pending.
	e, err := m.ledger.AppendDebit(ctx, t.PassID, t.Amount, ledger.ReasonRedemption, actor)
	if err != nil {
		return Receipt{}, err
	}

	if err := m.store.ConsumeToken(ctx, id, now); err != nil {
		// The per-token lock makes this unreachable in practice; surface it
		// rather than guessing, the debit is already recorded.
		return Receipt{}, err
	}

	balance, err := m.ledger.Balance(ctx, t.PassID)
	if err != nil {
		return Receipt{}, err
	}

	return Receipt{
		TokenID:    id,
		PassID:     t.PassID,
		Amount:     t.Amount,
		EventID:    e.ID,
		NewBalance: balance,
		ResolvedAt: now,
	}, nil
}

// PurgeExpired removes expired token rows from active storage. Correctness
// never depends on this running; see the package comment.
func (m *Manager) PurgeExpired(ctx context.Context) (int, error) {
	return m.store.DeleteExpiredTokens(ctx, m.Clock().UTC())
}

func (m *Manager) lockToken(id ID) func() {
	m.mu.Lock()
	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	m.mu.Unlock()

	l.Lock()
	return l.Unlock
}
