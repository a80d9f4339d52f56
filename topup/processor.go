/*
processor.go - The top-up operation

PURPOSE:
  Resolves a product selection (or an explicit amount) to a credit amount,
  validates the payment-method tag, and delegates to the ledger. The only
  visible side effect is one new credit event; the returned Result carries
  the post-transaction balance for display.
*/
package topup

import (
	"context"
	"fmt"

	"github.com/venuepass/pass-engine/ledger"
)

// =============================================================================
// PROCESSOR
// =============================================================================

type Processor struct {
	catalog Catalog
	ledger  *ledger.Ledger
}

func NewProcessor(catalog Catalog, l *ledger.Ledger) *Processor {
	return &Processor{catalog: catalog, ledger: l}
}

// Request selects either a ProductID or an explicit Amount (ProductID wins
// when both are set). Method must be a recognized payment tag.
type Request struct {
	PassID    ledger.PassID
	ProductID ProductID
	Amount    ledger.Amount // used only when ProductID is empty
	Method    ledger.PaymentMethod
	Actor     ledger.ActorID
}

// Result reports the credit that was applied.
type Result struct {
	Event      ledger.Event
	NewBalance ledger.Amount
	Message    string
}

// Apply validates the request and appends exactly one credit event.
func (p *Processor) Apply(ctx context.Context, req Request) (Result, error) {
	if !ledger.ValidPaymentMethod(req.Method) {
		return Result{}, ErrUnknownPaymentMethod
	}

	amount := req.Amount
	label := "top-up"
	if req.ProductID != "" {
		product, err := p.catalog.GetProduct(ctx, req.ProductID)
		if err != nil {
			return Result{}, err
		}
		if !product.Active {
			return Result{}, ErrProductInactive
		}
		amount = product.HoursToAdd
		label = product.Name
	}

	e, err := p.ledger.AppendCredit(ctx, req.PassID, amount, req.Method, req.Actor)
	if err != nil {
		return Result{}, err
	}

	balance, err := p.ledger.Balance(ctx, req.PassID)
	if err != nil {
		return Result{}, err
	}

	return Result{
		Event:      e,
		NewBalance: balance,
		Message:    fmt.Sprintf("Added %s hours (%s, paid by %s)", amount, label, req.Method),
	}, nil
}
