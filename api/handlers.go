/*
handlers.go - HTTP API handlers for the pass engine

PURPOSE:
  Exposes the pass engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Passes:
    POST   /api/passes                  Register a pass
    GET    /api/passes/{id}             Get pass details
    DELETE /api/passes/{id}             Deactivate a pass
    GET    /api/passes/{id}/balance     Current balance
    GET    /api/passes/{id}/events      Event history (filterable)

  Tokens:
    POST   /api/passes/{id}/tokens      Issue a redemption token
    POST   /api/tokens/{id}/resolve     Resolve (scan) a token

  Top-ups:
    POST   /api/passes/{id}/topups      Credit a pass

  Products:
    GET    /api/products                List catalog products
    POST   /api/products                Create/replace a product
    DELETE /api/products/{id}           Deactivate a product

  Users:
    GET    /api/users                   List users
    GET    /api/users/search?q=         Search by name or email
    GET    /api/users/{id}              Get one user
    PUT    /api/users/{id}              Upsert a user record
    PUT    /api/users/{id}/roles        Replace a user's roles

  Stats:
    GET    /api/stats?from=&to=         Hours sold/used in a period
    GET    /api/stats/overview          Customer and operator counts
    GET    /api/stats/activity          Period events with actor names

ACTOR ATTRIBUTION:
  Mutating requests carry the acting user in the X-Actor-Id header. The
  identity collaborator authenticates upstream; the engine records the
  actor verbatim on every ledger event.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Pass, token, product, or user not found
  - 409: Insufficient balance, expired/consumed token, duplicate pass
  - 503: Concurrent write conflict after retries
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/venuepass/pass-engine/directory"
	"github.com/venuepass/pass-engine/ledger"
	"github.com/venuepass/pass-engine/metrics"
	"github.com/venuepass/pass-engine/payment"
	"github.com/venuepass/pass-engine/report"
	"github.com/venuepass/pass-engine/token"
	"github.com/venuepass/pass-engine/topup"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Ledger    *ledger.Ledger
	Tokens    *token.Manager
	Topups    *topup.Processor
	Reports   *report.Service
	Catalog   topup.Catalog
	Directory directory.Directory

	// Granularity is the smallest sellable amount; issued tokens and
	// explicit top-up amounts must be whole multiples of it.
	Granularity ledger.Amount

	// BankAccount and Currency feed the SPAYD payment descriptor
	// returned for QR top-ups.
	BankAccount string
	Currency    string
}

// actorID extracts the acting user from the request headers.
func actorID(r *http.Request) ledger.ActorID {
	if id := r.Header.Get("X-Actor-Id"); id != "" {
		return ledger.ActorID(id)
	}
	return "anonymous"
}

// =============================================================================
// PASS HANDLERS
// =============================================================================

// CreatePass registers a new pass with a zero balance.
func (h *Handler) CreatePass(w http.ResponseWriter, r *http.Request) {
	var req CreatePassRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.OwnerID == "" {
		writeError(w, http.StatusBadRequest, "owner_id is required", nil)
		return
	}

	p, err := h.Ledger.CreatePass(r.Context(), ledger.PassID(req.ID), ledger.ActorID(req.OwnerID))
	if err != nil {
		writeDomainError(w, "Failed to create pass", err)
		return
	}

	writeJSON(w, http.StatusCreated, toPassDTO(p))
}

// GetPass returns a single pass.
func (h *Handler) GetPass(w http.ResponseWriter, r *http.Request) {
	id := ledger.PassID(chi.URLParam(r, "id"))

	p, err := h.Ledger.GetPass(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get pass", err)
		return
	}

	writeJSON(w, http.StatusOK, toPassDTO(p))
}

// DeactivatePass soft-deactivates a pass. The balance and history remain.
func (h *Handler) DeactivatePass(w http.ResponseWriter, r *http.Request) {
	id := ledger.PassID(chi.URLParam(r, "id"))

	if err := h.Ledger.Deactivate(r.Context(), id); err != nil {
		writeDomainError(w, "Failed to deactivate pass", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}

// GetBalance returns the current balance for a pass.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	id := ledger.PassID(chi.URLParam(r, "id"))

	balance, err := h.Reports.CurrentBalance(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get balance", err)
		return
	}

	writeJSON(w, http.StatusOK, BalanceDTO{
		PassID:  string(id),
		Balance: balance.String(),
		AsOf:    time.Now().UTC().Format(time.RFC3339),
	})
}

// GetEvents returns a pass's event history, newest first. Supports
// ?from=RFC3339&to=RFC3339&kind=credit|debit filters.
func (h *Handler) GetEvents(w http.ResponseWriter, r *http.Request) {
	id := ledger.PassID(chi.URLParam(r, "id"))

	f, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid filter", err)
		return
	}

	events, err := h.Reports.History(r.Context(), id, f)
	if err != nil {
		writeDomainError(w, "Failed to list events", err)
		return
	}

	writeJSON(w, http.StatusOK, toEventDTOs(events))
}

func parseFilter(r *http.Request) (ledger.Filter, error) {
	var f ledger.Filter
	if s := r.URL.Query().Get("from"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return f, err
		}
		f.From = &t
	}
	if s := r.URL.Query().Get("to"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return f, err
		}
		f.To = &t
	}
	if s := r.URL.Query().Get("kind"); s != "" {
		k := ledger.EventKind(s)
		if k != ledger.KindCredit && k != ledger.KindDebit {
			return f, errors.New("kind must be credit or debit")
		}
		f.Kind = &k
	}
	return f, nil
}

// =============================================================================
// TOKEN HANDLERS
// =============================================================================

// IssueToken creates a short-lived redemption token against a pass.
func (h *Handler) IssueToken(w http.ResponseWriter, r *http.Request) {
	id := ledger.PassID(chi.URLParam(r, "id"))

	var req IssueTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	amount, err := ledger.ParseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}
	if err := ledger.CheckGranularity(amount, h.Granularity); err != nil {
		writeError(w, http.StatusBadRequest, "Amount must be a multiple of "+h.Granularity.String(), nil)
		return
	}

	t, err := h.Tokens.Issue(r.Context(), id, amount)
	if err != nil {
		writeDomainError(w, "Failed to issue token", err)
		return
	}

	metrics.TokensIssued.Inc()
	writeJSON(w, http.StatusCreated, toTokenDTO(t))
}

// ResolveToken consumes a scanned token exactly once and debits the pass.
func (h *Handler) ResolveToken(w http.ResponseWriter, r *http.Request) {
	id := token.ID(chi.URLParam(r, "id"))

	receipt, err := h.Tokens.Resolve(r.Context(), id, actorID(r))
	if err != nil {
		metrics.TokensRejected.WithLabelValues(rejectionReason(err)).Inc()
		writeDomainError(w, "Failed to resolve token", err)
		return
	}

	metrics.TokensResolved.Inc()
	metrics.DebitsApplied.WithLabelValues(string(ledger.ReasonRedemption)).Inc()
	writeJSON(w, http.StatusOK, toReceiptDTO(receipt))
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, token.ErrNotFound):
		return "not_found"
	case errors.Is(err, token.ErrExpired):
		return "expired"
	case errors.Is(err, token.ErrConsumed):
		return "consumed"
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return "insufficient_balance"
	default:
		return "other"
	}
}

// =============================================================================
// TOP-UP HANDLERS
// =============================================================================

// TopUp credits a pass from a catalog product or an explicit amount.
// QR payments additionally return an SPAYD descriptor for the bank app.
func (h *Handler) TopUp(w http.ResponseWriter, r *http.Request) {
	id := ledger.PassID(chi.URLParam(r, "id"))

	var req TopUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	domainReq := topup.Request{
		PassID:    id,
		ProductID: topup.ProductID(req.ProductID),
		Method:    ledger.PaymentMethod(req.Method),
		Actor:     actorID(r),
	}
	if req.ProductID == "" {
		amount, err := ledger.ParseAmount(req.Amount)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid amount", err)
			return
		}
		if err := ledger.CheckGranularity(amount, h.Granularity); err != nil {
			writeError(w, http.StatusBadRequest, "Amount must be a multiple of "+h.Granularity.String(), nil)
			return
		}
		domainReq.Amount = amount
	}

	result, err := h.Topups.Apply(r.Context(), domainReq)
	if err != nil {
		writeDomainError(w, "Failed to apply top-up", err)
		return
	}

	metrics.CreditsApplied.WithLabelValues(string(domainReq.Method)).Inc()

	dto := TopUpResultDTO{
		Event:      toEventDTO(result.Event),
		NewBalance: result.NewBalance.String(),
		Message:    result.Message,
	}
	if domainReq.Method == ledger.PaymentQR && req.ProductID != "" {
		if product, err := h.Catalog.GetProduct(r.Context(), domainReq.ProductID); err == nil {
			dto.PaymentString = payment.FormatSPAYD(h.BankAccount, product.Price, h.Currency, req.Message)
		}
	}

	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// PRODUCT HANDLERS
// =============================================================================

// ListProducts returns catalog products.
// Supports ?category=pass|rental|other and ?active=true filters.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	category := topup.Category(r.URL.Query().Get("category"))
	activeOnly := r.URL.Query().Get("active") == "true"

	products, err := h.Catalog.ListProducts(r.Context(), category, activeOnly)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list products", err)
		return
	}

	dtos := make([]ProductDTO, len(products))
	for i, p := range products {
		dtos[i] = toProductDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// SaveProduct creates or replaces a product.
func (h *Handler) SaveProduct(w http.ResponseWriter, r *http.Request) {
	var req SaveProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	p, err := buildProduct(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid product", err)
		return
	}

	if err := h.Catalog.SaveProduct(r.Context(), p); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save product", err)
		return
	}

	writeJSON(w, http.StatusCreated, toProductDTO(p))
}

func buildProduct(req SaveProductRequest) (topup.Product, error) {
	if req.Name == "" {
		return topup.Product{}, errors.New("name is required")
	}
	hours, err := ledger.ParseAmount(req.HoursToAdd)
	if err != nil || !hours.IsPositive() {
		return topup.Product{}, errors.New("hours_to_add must be a positive decimal")
	}
	price, err := ledger.ParseAmount(req.Price)
	if err != nil || price.IsNegative() {
		return topup.Product{}, errors.New("price must be a non-negative decimal")
	}
	category := topup.Category(req.Category)
	if !topup.ValidCategory(category) {
		return topup.Product{}, errors.New("category must be pass, rental, or other")
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}
	id := topup.ProductID(req.ID)
	if id == "" {
		id = topup.NewProductID()
	}
	return topup.Product{
		ID:         id,
		Name:       req.Name,
		HoursToAdd: hours,
		Price:      price.Value,
		Category:   category,
		Active:     active,
	}, nil
}

// DeactivateProduct takes a product off sale without deleting it.
func (h *Handler) DeactivateProduct(w http.ResponseWriter, r *http.Request) {
	id := topup.ProductID(chi.URLParam(r, "id"))

	if err := h.Catalog.DeactivateProduct(r.Context(), id); err != nil {
		writeDomainError(w, "Failed to deactivate product", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}

// =============================================================================
// USER HANDLERS
// =============================================================================

// ListUsers returns all directory users, ordered by name.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Directory.ListUsers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list users", err)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTOs(users))
}

// SearchUsers matches users by name or email substring.
func (h *Handler) SearchUsers(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "q is required", nil)
		return
	}

	users, err := h.Directory.SearchUsers(r.Context(), query)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to search users", err)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTOs(users))
}

func toUserDTOs(users []directory.User) []UserDTO {
	dtos := make([]UserDTO, len(users))
	for i, u := range users {
		dtos[i] = toUserDTO(u)
	}
	return dtos
}

// GetUser returns one directory user.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id := ledger.ActorID(chi.URLParam(r, "id"))

	u, err := h.Directory.GetUser(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get user", err)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(u))
}

// UpsertUser mirrors a user record from the identity collaborator.
func (h *Handler) UpsertUser(w http.ResponseWriter, r *http.Request) {
	id := ledger.ActorID(chi.URLParam(r, "id"))

	var req UserDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	roles := make([]directory.Role, len(req.Roles))
	for i, s := range req.Roles {
		roles[i] = directory.Role(s)
		if !directory.ValidRole(roles[i]) {
			writeError(w, http.StatusBadRequest, "Unknown role: "+s, nil)
			return
		}
	}
	if len(roles) == 0 {
		roles = []directory.Role{directory.RoleCustomer}
	}

	u := directory.User{ID: id, FullName: req.FullName, Email: req.Email, Roles: roles}
	if err := h.Directory.UpsertUser(r.Context(), u); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to upsert user", err)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(u))
}

// UpdateRoles replaces a user's role set. At least one role must remain.
func (h *Handler) UpdateRoles(w http.ResponseWriter, r *http.Request) {
	id := ledger.ActorID(chi.URLParam(r, "id"))

	var req UpdateRolesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	roles := make([]directory.Role, len(req.Roles))
	for i, s := range req.Roles {
		roles[i] = directory.Role(s)
	}

	if err := h.Directory.UpdateRoles(r.Context(), id, roles); err != nil {
		writeDomainError(w, "Failed to update roles", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// =============================================================================
// STATS HANDLERS
// =============================================================================

// GetStats rolls up hours sold and used in ?from=..&to=.. (RFC3339).
// Defaults to the last 30 days.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	from, to, err := parsePeriod(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period", err)
		return
	}

	stats, err := h.Reports.Stats(r.Context(), from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to compute stats", err)
		return
	}

	writeJSON(w, http.StatusOK, PeriodStatsDTO{
		From:      stats.From.Format(time.RFC3339),
		To:        stats.To.Format(time.RFC3339),
		SoldHours: stats.SoldHours.String(),
		UsedHours: stats.UsedHours.String(),
	})
}

// GetOverview returns the owner's customer and operator counts.
func (h *Handler) GetOverview(w http.ResponseWriter, r *http.Request) {
	overview, err := h.Reports.Overview(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to compute overview", err)
		return
	}

	writeJSON(w, http.StatusOK, OverviewDTO{
		TotalCustomers: overview.TotalCustomers,
		TotalOperators: overview.TotalOperators,
	})
}

// GetActivity lists period events with actor names resolved.
func (h *Handler) GetActivity(w http.ResponseWriter, r *http.Request) {
	from, to, err := parsePeriod(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period", err)
		return
	}

	var kind *ledger.EventKind
	if s := r.URL.Query().Get("kind"); s != "" {
		k := ledger.EventKind(s)
		if k != ledger.KindCredit && k != ledger.KindDebit {
			writeError(w, http.StatusBadRequest, "kind must be credit or debit", nil)
			return
		}
		kind = &k
	}

	entries, err := h.Reports.Activity(r.Context(), from, to, kind)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list activity", err)
		return
	}

	dtos := make([]ActivityDTO, len(entries))
	for i, a := range entries {
		dtos[i] = toActivityDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func parsePeriod(r *http.Request) (time.Time, time.Time, error) {
	now := time.Now().UTC()
	from := now.AddDate(0, 0, -30)
	to := now

	if s := r.URL.Query().Get("from"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return from, to, err
		}
		from = t
	}
	if s := r.URL.Query().Get("to"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return from, to, err
		}
		to = t
	}
	if to.Before(from) {
		return from, to, errors.New("to must not precede from")
	}
	return from, to, nil
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps domain errors onto HTTP statuses and stable codes.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	status := http.StatusInternalServerError
	code := ""

	switch {
	case errors.Is(err, ledger.ErrInvalidAmount):
		status, code = http.StatusBadRequest, "invalid_amount"
	case errors.Is(err, topup.ErrUnknownPaymentMethod):
		status, code = http.StatusBadRequest, "unknown_payment_method"
	case errors.Is(err, topup.ErrProductInactive):
		status, code = http.StatusBadRequest, "product_inactive"
	case errors.Is(err, directory.ErrNoRoles):
		status, code = http.StatusBadRequest, "no_roles"
	case errors.Is(err, ledger.ErrPassNotFound):
		status, code = http.StatusNotFound, "pass_not_found"
	case errors.Is(err, token.ErrNotFound):
		status, code = http.StatusNotFound, "token_not_found"
	case errors.Is(err, topup.ErrProductNotFound):
		status, code = http.StatusNotFound, "product_not_found"
	case errors.Is(err, directory.ErrUserNotFound):
		status, code = http.StatusNotFound, "user_not_found"
	case errors.Is(err, ledger.ErrInsufficientBalance):
		status, code = http.StatusConflict, "insufficient_balance"
	case errors.Is(err, token.ErrExpired):
		status, code = http.StatusConflict, "token_expired"
	case errors.Is(err, token.ErrConsumed):
		status, code = http.StatusConflict, "token_consumed"
	case errors.Is(err, ledger.ErrPassExists):
		status, code = http.StatusConflict, "pass_exists"
	case errors.Is(err, ledger.ErrConcurrentConflict):
		status, code = http.StatusServiceUnavailable, "concurrent_conflict"
	}

	resp := ErrorResponse{Error: message, Code: code}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
