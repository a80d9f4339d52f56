/*
Package ledger provides the balance ledger at the heart of the pass engine.

PURPOSE:
  This package contains the types and operations that track how many
  entry-hours a customer pass owns. The balance is never edited directly -
  it only moves through immutable credit and debit events, and always
  equals the signed sum of those events.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: A decimal quantity of entry-hours (never binary floating point)
  - Pass: A customer's running balance, soft-deactivated at most
  - Event: An immutable ledger entry recording one balance change
  - Reason/PaymentMethod: Typed tags, extensible without free text

DESIGN PRINCIPLES:
  1. Immutability: Events are never modified; corrections are new events
  2. Precision: Uses decimal.Decimal to avoid floating-point drift
  3. Conservation: balance == sum(credits) - sum(debits), always
  4. Type Safety: Strong typing for IDs prevents mixing pass/actor IDs

SEE ALSO:
  - ledger.go: Atomic credit/debit operations
  - store.go: Persistence interface
  - errors.go: Error taxonomy
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Entry-hour quantity backed by a fixed-point decimal
// =============================================================================

type Amount struct {
	Value decimal.Decimal
}

func NewAmount(value float64) Amount {
	return Amount{Value: decimal.NewFromFloat(value)}
}

func NewAmountFromInt(value int) Amount {
	return Amount{Value: decimal.NewFromInt(int64(value))}
}

// ParseAmount converts boundary input (form/JSON strings) into an Amount.
// Amounts are parsed exactly once here and stay decimal internally.
func ParseAmount(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, ErrInvalidAmount
	}
	return Amount{Value: d}, nil
}

func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		return Amount{}
	}
	return a
}

func ZeroAmount() Amount { return Amount{Value: decimal.Zero} }

func (a Amount) Add(b Amount) Amount       { return Amount{Value: a.Value.Add(b.Value)} }
func (a Amount) Sub(b Amount) Amount       { return Amount{Value: a.Value.Sub(b.Value)} }
func (a Amount) Neg() Amount               { return Amount{Value: a.Value.Neg()} }
func (a Amount) IsNegative() bool          { return a.Value.IsNegative() }
func (a Amount) IsZero() bool              { return a.Value.IsZero() }
func (a Amount) IsPositive() bool          { return a.Value.IsPositive() }
func (a Amount) GreaterThan(b Amount) bool { return a.Value.GreaterThan(b.Value) }
func (a Amount) LessThan(b Amount) bool    { return a.Value.LessThan(b.Value) }
func (a Amount) Equal(b Amount) bool       { return a.Value.Equal(b.Value) }
func (a Amount) String() string            { return a.Value.String() }

// CheckGranularity verifies that a is a whole multiple of step.
// The venue sells half-hour increments, but any positive step works.
func CheckGranularity(a Amount, step Amount) error {
	if !step.IsPositive() {
		return nil
	}
	if !a.Value.Mod(step.Value).IsZero() {
		return ErrInvalidAmount
	}
	return nil
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type PassID string
type EventID string

// ActorID identifies who triggered an operation. Supplied by the identity
// collaborator; the ledger trusts it and records it verbatim.
type ActorID string

// =============================================================================
// PASS - One per customer account
// =============================================================================

// Pass is a customer's running entry-hour balance. The Balance field is kept
// in lockstep with the event history; it is mutated only by the store,
// atomically with an event insert. Passes are never hard-deleted.
type Pass struct {
	ID        PassID
	OwnerID   ActorID
	Balance   Amount
	Active    bool
	CreatedAt time.Time
}

// =============================================================================
// EVENT - Immutable balance change
// =============================================================================

type EventKind string

const (
	KindCredit EventKind = "credit"
	KindDebit  EventKind = "debit"
)

// Reason tags why an event exists. New kinds extend this list; the
// conservation invariant does not depend on the reason.
type Reason string

const (
	ReasonTopUp      Reason = "topup"
	ReasonRedemption Reason = "redemption"
	ReasonRental     Reason = "rental"     // reserved
	ReasonAdjustment Reason = "adjustment" // reserved
)

// PaymentMethod records how a top-up was paid. The engine only records the
// tag; settlement happens outside.
type PaymentMethod string

const (
	PaymentCash PaymentMethod = "cash"
	PaymentQR   PaymentMethod = "qr_payment"
)

func ValidPaymentMethod(m PaymentMethod) bool {
	return m == PaymentCash || m == PaymentQR
}

// Event is one immutable row in the ledger. Amount is always positive; the
// Kind carries the sign.
type Event struct {
	ID            EventID
	PassID        PassID
	Kind          EventKind
	Amount        Amount
	Reason        Reason
	PaymentMethod PaymentMethod // only set for top-up credits
	ActorID       ActorID
	CreatedAt     time.Time
}

// Signed returns the event's contribution to the balance.
func (e Event) Signed() Amount {
	if e.Kind == KindDebit {
		return e.Amount.Neg()
	}
	return e.Amount
}

// =============================================================================
// FILTER - Event history queries
// =============================================================================

// Filter narrows an event listing. Nil fields mean "no constraint".
// The time interval is closed on both ends.
type Filter struct {
	From *time.Time
	To   *time.Time
	Kind *EventKind
}

func (f Filter) Matches(e Event) bool {
	if f.Kind != nil && e.Kind != *f.Kind {
		return false
	}
	if f.From != nil && e.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && e.CreatedAt.After(*f.To) {
		return false
	}
	return true
}
