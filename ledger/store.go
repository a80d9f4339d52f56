/*
store.go - Persistence interface for passes and ledger events

PURPOSE:
  Defines the interface between the ledger logic and the database.
  The Store handles persistence while maintaining append-only semantics
  for events. Implementations: SQLite (production) and in-memory (tests).

APPEND-ONLY CONTRACT:
  Events have exactly one write operation: AppendEvent. There is no
  Update or Delete for events. Corrections are new compensating events.

ATOMICITY CONTRACT:
  AppendEvent must persist the event AND move the pass balance by the
  event's signed amount as one atomic unit. For a debit, the store must
  refuse the write (ErrInsufficientBalance) if the balance would go
  negative. The Ledger additionally serializes writers per pass, so a
  conforming store only needs transaction-level atomicity, not its own
  per-pass queueing.

SEE ALSO:
  - ledger.go: Higher-level operations using Store
  - store/memory.go: In-memory implementation
  - store/sqlite/sqlite.go: SQLite implementation
*/
package ledger

import "context"

// =============================================================================
// STORE - Pass and event persistence (events are append-only)
// =============================================================================

type Store interface {
	// CreatePass inserts a new pass. Returns ErrPassExists if the ID is taken.
	CreatePass(ctx context.Context, p Pass) error

	// GetPass returns a pass by ID, or ErrPassNotFound.
	GetPass(ctx context.Context, id PassID) (Pass, error)

	// DeactivatePass soft-deactivates a pass. Passes are never hard-deleted.
	DeactivatePass(ctx context.Context, id PassID) error

	// AppendEvent persists an event and applies its signed amount to the pass
	// balance in one atomic unit. Returns ErrPassNotFound for an unknown pass
	// and ErrInsufficientBalance if a debit would drive the balance negative.
	AppendEvent(ctx context.Context, e Event) error

	// ListEvents returns events for a pass ordered by CreatedAt descending,
	// narrowed by the filter.
	ListEvents(ctx context.Context, id PassID, f Filter) ([]Event, error)
}
