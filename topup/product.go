/*
Package topup validates top-up requests and turns them into ledger credits.

PURPOSE:
  A top-up maps a catalog product (or an explicit amount) plus a payment
  method to exactly one credit event. The catalog itself is owned by the
  pricing collaborator; this package only needs to read active products
  and, for the owner surface, write them.

KEY CONCEPTS IN THIS FILE (product.go):
  - Product: named offering -> hours_to_add + price + category
  - Catalog: read/write access to products (deactivate, never delete)

SEE ALSO:
  - processor.go: The Apply operation
*/
package topup

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/venuepass/pass-engine/ledger"
)

// =============================================================================
// PRODUCT
// =============================================================================

type ProductID string

// NewProductID generates an ID for a product created without one.
func NewProductID() ProductID {
	return ProductID(uuid.NewString())
}

type Category string

const (
	CategoryPass   Category = "pass"
	CategoryRental Category = "rental"
	CategoryOther  Category = "other"
)

func ValidCategory(c Category) bool {
	return c == CategoryPass || c == CategoryRental || c == CategoryOther
}

// Product is a catalog entry. HoursToAdd is the credit amount a purchase
// grants; Price is in currency units and only used for payment references,
// never for ledger math.
type Product struct {
	ID         ProductID
	Name       string
	HoursToAdd ledger.Amount
	Price      decimal.Decimal
	Category   Category
	Active     bool
}

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrProductNotFound is returned for an unknown product ID.
	ErrProductNotFound = errors.New("product not found")

	// ErrProductInactive is returned when the catalog entry is deactivated.
	ErrProductInactive = errors.New("product inactive")

	// ErrUnknownPaymentMethod is returned for an unrecognized payment tag.
	ErrUnknownPaymentMethod = errors.New("unknown payment method")
)

// =============================================================================
// CATALOG
// =============================================================================

type Catalog interface {
	// GetProduct returns a product by ID, or ErrProductNotFound.
	GetProduct(ctx context.Context, id ProductID) (Product, error)

	// ListProducts returns products, optionally narrowed to a category and
	// to active entries only.
	ListProducts(ctx context.Context, category Category, activeOnly bool) ([]Product, error)

	// SaveProduct inserts or updates a product.
	SaveProduct(ctx context.Context, p Product) error

	// DeactivateProduct flips Active off. Products are never hard-deleted;
	// historical top-ups keep referring to them.
	DeactivateProduct(ctx context.Context, id ProductID) error
}
