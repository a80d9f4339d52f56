/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

AMOUNTS:
  Entry-hour amounts travel as decimal strings ("7.5"), never as JSON
  numbers, so nothing on the wire forces them through a binary float.

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/venuepass/pass-engine/directory"
	"github.com/venuepass/pass-engine/ledger"
	"github.com/venuepass/pass-engine/report"
	"github.com/venuepass/pass-engine/token"
	"github.com/venuepass/pass-engine/topup"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// PassDTO represents a customer pass in API responses.
type PassDTO struct {
	ID        string `json:"id"`
	OwnerID   string `json:"owner_id"`
	Balance   string `json:"balance"`
	Active    bool   `json:"active"`
	CreatedAt string `json:"created_at,omitempty"`
}

// CreatePassRequest is the request to register a pass.
type CreatePassRequest struct {
	ID      string `json:"id,omitempty"`
	OwnerID string `json:"owner_id"`
}

// BalanceDTO is the standalone balance view.
type BalanceDTO struct {
	PassID  string `json:"pass_id"`
	Balance string `json:"balance"`
	AsOf    string `json:"as_of"`
}

// EventDTO represents one ledger event.
type EventDTO struct {
	ID            string `json:"id"`
	PassID        string `json:"pass_id"`
	Kind          string `json:"kind"`
	Amount        string `json:"amount"`
	Reason        string `json:"reason"`
	PaymentMethod string `json:"payment_method,omitempty"`
	ActorID       string `json:"actor_id"`
	CreatedAt     string `json:"created_at"`
}

// IssueTokenRequest is the request to issue a redemption token.
type IssueTokenRequest struct {
	Amount string `json:"amount"`
}

// TokenDTO represents an issued redemption token. The ID is the payload
// the customer's device renders as a QR code.
type TokenDTO struct {
	ID        string `json:"id"`
	PassID    string `json:"pass_id"`
	Amount    string `json:"amount"`
	IssuedAt  string `json:"issued_at"`
	ExpiresAt string `json:"expires_at"`
	State     string `json:"state"`
}

// ReceiptDTO is the outcome of a successful token resolution.
type ReceiptDTO struct {
	TokenID    string `json:"token_id"`
	PassID     string `json:"pass_id"`
	Amount     string `json:"amount"`
	EventID    string `json:"event_id"`
	NewBalance string `json:"new_balance"`
	ResolvedAt string `json:"resolved_at"`
}

// TopUpRequest credits a pass, either from a catalog product or an
// explicit amount (product wins when both are set).
type TopUpRequest struct {
	ProductID string `json:"product_id,omitempty"`
	Amount    string `json:"amount,omitempty"`
	Method    string `json:"method"`
	Message   string `json:"message,omitempty"`
}

// TopUpResultDTO reports the applied credit. PaymentString carries the
// SPAYD descriptor for QR payments, empty for cash.
type TopUpResultDTO struct {
	Event         EventDTO `json:"event"`
	NewBalance    string   `json:"new_balance"`
	Message       string   `json:"message"`
	PaymentString string   `json:"payment_string,omitempty"`
}

// ProductDTO represents a catalog product.
type ProductDTO struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	HoursToAdd string `json:"hours_to_add"`
	Price      string `json:"price"`
	Category   string `json:"category"`
	Active     bool   `json:"active"`
}

// SaveProductRequest creates or replaces a product.
type SaveProductRequest struct {
	ID         string `json:"id,omitempty"`
	Name       string `json:"name"`
	HoursToAdd string `json:"hours_to_add"`
	Price      string `json:"price"`
	Category   string `json:"category"`
	Active     *bool  `json:"active,omitempty"`
}

// UserDTO represents a directory user.
type UserDTO struct {
	ID       string   `json:"id"`
	FullName string   `json:"full_name"`
	Email    string   `json:"email"`
	Roles    []string `json:"roles"`
}

// UpdateRolesRequest replaces a user's role set.
type UpdateRolesRequest struct {
	Roles []string `json:"roles"`
}

// PeriodStatsDTO is the sold/used roll-up for a period.
type PeriodStatsDTO struct {
	From      string `json:"from"`
	To        string `json:"to"`
	SoldHours string `json:"sold_hours"`
	UsedHours string `json:"used_hours"`
}

// OverviewDTO is the owner's headline numbers.
type OverviewDTO struct {
	TotalCustomers int `json:"total_customers"`
	TotalOperators int `json:"total_operators"`
}

// ActivityDTO is one ledger event annotated with the actor's name.
type ActivityDTO struct {
	Event     EventDTO `json:"event"`
	ActorName string   `json:"actor_name,omitempty"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toPassDTO(p ledger.Pass) PassDTO {
	return PassDTO{
		ID:        string(p.ID),
		OwnerID:   string(p.OwnerID),
		Balance:   p.Balance.String(),
		Active:    p.Active,
		CreatedAt: p.CreatedAt.Format(time.RFC3339),
	}
}

func toEventDTO(e ledger.Event) EventDTO {
	return EventDTO{
		ID:            string(e.ID),
		PassID:        string(e.PassID),
		Kind:          string(e.Kind),
		Amount:        e.Amount.String(),
		Reason:        string(e.Reason),
		PaymentMethod: string(e.PaymentMethod),
		ActorID:       string(e.ActorID),
		CreatedAt:     e.CreatedAt.Format(time.RFC3339),
	}
}

func toEventDTOs(events []ledger.Event) []EventDTO {
	dtos := make([]EventDTO, len(events))
	for i, e := range events {
		dtos[i] = toEventDTO(e)
	}
	return dtos
}

func toTokenDTO(t token.Token) TokenDTO {
	return TokenDTO{
		ID:        string(t.ID),
		PassID:    string(t.PassID),
		Amount:    t.Amount.String(),
		IssuedAt:  t.IssuedAt.Format(time.RFC3339),
		ExpiresAt: t.ExpiresAt.Format(time.RFC3339),
		State:     string(t.State),
	}
}

func toReceiptDTO(r token.Receipt) ReceiptDTO {
	return ReceiptDTO{
		TokenID:    string(r.TokenID),
		PassID:     string(r.PassID),
		Amount:     r.Amount.String(),
		EventID:    string(r.EventID),
		NewBalance: r.NewBalance.String(),
		ResolvedAt: r.ResolvedAt.Format(time.RFC3339),
	}
}

func toProductDTO(p topup.Product) ProductDTO {
	return ProductDTO{
		ID:         string(p.ID),
		Name:       p.Name,
		HoursToAdd: p.HoursToAdd.String(),
		Price:      p.Price.String(),
		Category:   string(p.Category),
		Active:     p.Active,
	}
}

func toUserDTO(u directory.User) UserDTO {
	roles := make([]string, len(u.Roles))
	for i, r := range u.Roles {
		roles[i] = string(r)
	}
	return UserDTO{
		ID:       string(u.ID),
		FullName: u.FullName,
		Email:    u.Email,
		Roles:    roles,
	}
}

func toActivityDTO(a report.ActivityEntry) ActivityDTO {
	return ActivityDTO{Event: toEventDTO(a.Event), ActorName: a.ActorName}
}
