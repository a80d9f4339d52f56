/*
Package token implements the redemption token lifecycle.

PURPOSE:
  A redemption token is a short-lived, single-use capability: the customer
  pre-commits to spending a specific amount, shows the token to staff
  (typically as a scannable code), and staff consume it exactly once to
  debit the pass.

STATE MACHINE (per token):
  pending --[resolve before expiry, balance sufficient]--> consumed
  pending --[resolve after expiry]-->  rejected (TokenExpired, no write)
  consumed --[resolve again]-->        rejected (TokenAlreadyConsumed)

  Expiry is lazy: nothing ever writes an "expired" state. A resolve after
  ExpiresAt fails by timestamp comparison, so purging expired rows is pure
  housekeeping and never a correctness concern.

TOKEN IDS:
  128 bits from crypto/rand, encoded as fixed-length hex. Unguessable
  within the TTL window and short enough to encode optically.

SEE ALSO:
  - manager.go: Issue/Resolve operations
  - janitor.go: Background purge of expired tokens
*/
package token

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/venuepass/pass-engine/ledger"
)

// =============================================================================
// TOKEN
// =============================================================================

type ID string

type State string

const (
	StatePending  State = "pending"
	StateConsumed State = "consumed"
)

// Token pre-declares a debit of Amount against PassID. Amount is fixed at
// issuance and never renegotiated.
type Token struct {
	ID        ID
	PassID    ledger.PassID
	Amount    ledger.Amount
	IssuedAt  time.Time
	ExpiresAt time.Time
	State     State
}

// Expired evaluates expiry against the given instant. Always the server's
// clock - never a client-supplied timestamp.
func (t Token) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// NewID returns a fresh 32-character hex token ID (128 bits of entropy).
func NewID() ID {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand never fails on supported platforms; treat as fatal.
		panic(fmt.Sprintf("token: entropy source unavailable: %v", err))
	}
	return ID(hex.EncodeToString(b[:]))
}

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNotFound is returned when the token ID is unknown (or purged after
	// expiry, which is indistinguishable and equally terminal).
	ErrNotFound = errors.New("token not found")

	// ErrExpired is returned when resolving after ExpiresAt.
	ErrExpired = errors.New("token expired")

	// ErrConsumed is returned when resolving a token that already debited
	// the pass. This is the defense against double scans and retries.
	ErrConsumed = errors.New("token already consumed")
)

// =============================================================================
// STORE - Token persistence
// =============================================================================

type Store interface {
	// InsertToken persists a freshly issued token in StatePending.
	InsertToken(ctx context.Context, t Token) error

	// GetToken returns a token by ID, or ErrNotFound.
	GetToken(ctx context.Context, id ID) (Token, error)

	// ConsumeToken transitions a token from pending to consumed. Returns
	// ErrConsumed if it is not pending, ErrNotFound if it is unknown.
	ConsumeToken(ctx context.Context, id ID, at time.Time) error

	// DeleteExpiredTokens removes tokens whose ExpiresAt is before cutoff.
	// Returns how many were removed.
	DeleteExpiredTokens(ctx context.Context, cutoff time.Time) (int, error)
}
