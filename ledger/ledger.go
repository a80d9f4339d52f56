/*
ledger.go - Atomic credit/debit operations over the Store

PURPOSE:
  The Ledger is the only way balances change. It validates amounts,
  stamps events with server time and a fresh ID, and guarantees the
  critical invariant: no debit is appended unless balance - amount >= 0
  at the instant of the append.

CONCURRENCY:
  Every mutation for a given pass runs under a per-pass mutex, so the
  balance check and the event append form one atomic unit with respect
  to that pass. Operations on different passes never block each other.
  Stores that detect optimistic-lock conflicts return
  ErrConcurrentConflict; the Ledger retries those a bounded number of
  times before surfacing the failure.

WHY APPEND-ONLY?
  - Audit trail: every balance can be explained from its event history
  - Correctness: no partial updates; corrections are compensating events
  - Reporting: period aggregates replay the same immutable rows

SEE ALSO:
  - store.go: Persistence contract
  - token/manager.go: Debits via redemption tokens
  - topup/processor.go: Credits via product top-ups
*/
package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// conflictRetries bounds internal retries on ErrConcurrentConflict.
const conflictRetries = 3

// =============================================================================
// LEDGER
// =============================================================================

type Ledger struct {
	store Store
	locks keyedMutex

	// Clock is overridable for tests; defaults to time.Now.
	Clock func() time.Time
}

func New(store Store) *Ledger {
	return &Ledger{store: store, Clock: time.Now}
}

// CreatePass registers a pass for an owner with a zero balance.
// Called when a customer account is first recognized.
func (l *Ledger) CreatePass(ctx context.Context, id PassID, owner ActorID) (Pass, error) {
	if id == "" {
		id = PassID(uuid.NewString())
	}
	p := Pass{
		ID:        id,
		OwnerID:   owner,
		Balance:   ZeroAmount(),
		Active:    true,
		CreatedAt: l.Clock().UTC(),
	}
	if err := l.store.CreatePass(ctx, p); err != nil {
		return Pass{}, err
	}
	return p, nil
}

// GetPass returns the pass record, including its current balance.
func (l *Ledger) GetPass(ctx context.Context, id PassID) (Pass, error) {
	return l.store.GetPass(ctx, id)
}

// Deactivate flips a pass off without touching its balance or history.
func (l *Ledger) Deactivate(ctx context.Context, id PassID) error {
	unlock := l.locks.lock(string(id))
	defer unlock()

	return l.store.DeactivatePass(ctx, id)
}

// Balance returns the current balance for a pass.
func (l *Ledger) Balance(ctx context.Context, id PassID) (Amount, error) {
	p, err := l.store.GetPass(ctx, id)
	if err != nil {
		return Amount{}, err
	}
	return p.Balance, nil
}

// Events returns the event history for a pass, newest first.
func (l *Ledger) Events(ctx context.Context, id PassID, f Filter) ([]Event, error) {
	if _, err := l.store.GetPass(ctx, id); err != nil {
		return nil, err
	}
	return l.store.ListEvents(ctx, id, f)
}

// AppendCredit adds amount to the pass balance. Credits have no upper bound;
// the only validation is amount > 0.
func (l *Ledger) AppendCredit(ctx context.Context, id PassID, amount Amount, method PaymentMethod, actor ActorID) (Event, error) {
	if !amount.IsPositive() {
		return Event{}, ErrInvalidAmount
	}

	unlock := l.locks.lock(string(id))
	defer unlock()

	e := Event{
		ID:            EventID(uuid.NewString()),
		PassID:        id,
		Kind:          KindCredit,
		Amount:        amount,
		Reason:        ReasonTopUp,
		PaymentMethod: method,
		ActorID:       actor,
		CreatedAt:     l.Clock().UTC(),
	}
	if err := l.append(ctx, e); err != nil {
		return Event{}, err
	}
	return e, nil
}

// AppendDebit subtracts amount from the pass balance. The balance check and
// the append happen atomically under the per-pass lock; a shortfall returns
// a structured InsufficientBalanceError and writes nothing.
func (l *Ledger) AppendDebit(ctx context.Context, id PassID, amount Amount, reason Reason, actor ActorID) (Event, error) {
	if !amount.IsPositive() {
		return Event{}, ErrInvalidAmount
	}

	unlock := l.locks.lock(string(id))
	defer unlock()

	p, err := l.store.GetPass(ctx, id)
	if err != nil {
		return Event{}, err
	}
	if p.Balance.LessThan(amount) {
		return Event{}, &InsufficientBalanceError{
			PassID:    id,
			Available: p.Balance,
			Requested: amount,
			Shortfall: amount.Sub(p.Balance),
		}
	}

	e := Event{
		ID:        EventID(uuid.NewString()),
		PassID:    id,
		Kind:      KindDebit,
		Amount:    amount,
		Reason:    reason,
		ActorID:   actor,
		CreatedAt: l.Clock().UTC(),
	}
	if err := l.append(ctx, e); err != nil {
		return Event{}, err
	}
	return e, nil
}

// append writes through the store, absorbing bounded conflict retries.
func (l *Ledger) append(ctx context.Context, e Event) error {
	var err error
	for attempt := 0; attempt <= conflictRetries; attempt++ {
		err = l.store.AppendEvent(ctx, e)
		if !IsRetryable(err) {
			return err
		}
	}
	return err
}

// =============================================================================
// PER-PASS LOCKING
// =============================================================================

// keyedMutex serializes writers per key without blocking other keys.
// Entries are never removed; the pass population is small and long-lived.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
