package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/venuepass/pass-engine/api"
	"github.com/venuepass/pass-engine/directory"
	"github.com/venuepass/pass-engine/ledger"
	"github.com/venuepass/pass-engine/ledger/store"
	"github.com/venuepass/pass-engine/report"
	"github.com/venuepass/pass-engine/token"
	"github.com/venuepass/pass-engine/topup"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type env struct {
	server  *httptest.Server
	ledger  *ledger.Ledger
	tokens  *token.Manager
	catalog *topup.MemoryCatalog
	dir     *directory.Memory

	mu  sync.Mutex
	now time.Time
}

func newTestEnv(t *testing.T) *env {
	t.Helper()

	e := &env{
		now:     time.Date(2026, time.July, 1, 9, 0, 0, 0, time.UTC),
		catalog: topup.NewMemoryCatalog(),
		dir:     directory.NewMemory(),
	}
	clock := func() time.Time {
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.now
	}

	mem := store.NewMemory()
	e.ledger = ledger.New(mem)
	e.ledger.Clock = clock
	e.tokens = token.NewManager(token.NewMemoryStore(), e.ledger, 2*time.Minute)
	e.tokens.Clock = clock

	h := &api.Handler{
		Ledger:      e.ledger,
		Tokens:      e.tokens,
		Topups:      topup.NewProcessor(e.catalog, e.ledger),
		Reports:     report.NewService(e.ledger, mem, e.dir),
		Catalog:     e.catalog,
		Directory:   e.dir,
		Granularity: ledger.MustParseAmount("0.5"),
		BankAccount: "CZ6508000000192000145399",
		Currency:    "CZK",
	}

	e.server = httptest.NewServer(api.NewRouter(h, []string{"*"}))
	t.Cleanup(e.server.Close)
	return e
}

func (e *env) advance(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = e.now.Add(d)
}

func (e *env) clockNow() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.now
}

// do issues a JSON request and decodes the response body into out.
func (e *env) do(t *testing.T, method, path string, body any, out any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor-Id", "operator-1")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func (e *env) newPass(t *testing.T, balance string) string {
	t.Helper()

	var pass api.PassDTO
	resp := e.do(t, http.MethodPost, "/api/passes",
		api.CreatePassRequest{OwnerID: "customer-1"}, &pass)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	if balance != "" && balance != "0" {
		_, err := e.ledger.AppendCredit(context.Background(), ledger.PassID(pass.ID),
			ledger.MustParseAmount(balance), ledger.PaymentCash, "operator-1")
		require.NoError(t, err)
	}
	return pass.ID
}

// =============================================================================
// PASS ENDPOINTS
// =============================================================================

func TestAPI_CreateAndGetPass(t *testing.T) {
	e := newTestEnv(t)

	id := e.newPass(t, "")

	var pass api.PassDTO
	resp := e.do(t, http.MethodGet, "/api/passes/"+id, nil, &pass)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "0", pass.Balance)
	assert.True(t, pass.Active)

	var errResp api.ErrorResponse
	resp = e.do(t, http.MethodGet, "/api/passes/nope", nil, &errResp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "pass_not_found", errResp.Code)
}

func TestAPI_CreatePass_MissingOwner_BadRequest(t *testing.T) {
	e := newTestEnv(t)

	resp := e.do(t, http.MethodPost, "/api/passes", api.CreatePassRequest{}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_BalanceAndEvents(t *testing.T) {
	e := newTestEnv(t)
	id := e.newPass(t, "10")

	var balance api.BalanceDTO
	resp := e.do(t, http.MethodGet, "/api/passes/"+id+"/balance", nil, &balance)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "10", balance.Balance)

	var events []api.EventDTO
	resp = e.do(t, http.MethodGet, "/api/passes/"+id+"/events", nil, &events)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, events, 1)
	assert.Equal(t, "credit", events[0].Kind)
	assert.Equal(t, "cash", events[0].PaymentMethod)

	resp = e.do(t, http.MethodGet, "/api/passes/"+id+"/events?kind=sideways", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// =============================================================================
// TOKEN ENDPOINTS
// =============================================================================

func TestAPI_IssueAndResolveToken(t *testing.T) {
	// The full happy path: 10.0 on the pass, issue 2.5, scan it, land on 7.5.

	e := newTestEnv(t)
	id := e.newPass(t, "10")

	var tok api.TokenDTO
	resp := e.do(t, http.MethodPost, "/api/passes/"+id+"/tokens",
		api.IssueTokenRequest{Amount: "2.5"}, &tok)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "pending", tok.State)
	assert.Len(t, tok.ID, 32)

	var receipt api.ReceiptDTO
	resp = e.do(t, http.MethodPost, "/api/tokens/"+tok.ID+"/resolve", nil, &receipt)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "7.5", receipt.NewBalance)
	assert.NotEmpty(t, receipt.EventID)

	// Second scan is a conflict.
	var errResp api.ErrorResponse
	resp = e.do(t, http.MethodPost, "/api/tokens/"+tok.ID+"/resolve", nil, &errResp)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "token_consumed", errResp.Code)
}

func TestAPI_IssueToken_Granularity(t *testing.T) {
	e := newTestEnv(t)
	id := e.newPass(t, "10")

	resp := e.do(t, http.MethodPost, "/api/passes/"+id+"/tokens",
		api.IssueTokenRequest{Amount: "0.3"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_IssueToken_InsufficientBalance(t *testing.T) {
	e := newTestEnv(t)
	id := e.newPass(t, "1")

	var errResp api.ErrorResponse
	resp := e.do(t, http.MethodPost, "/api/passes/"+id+"/tokens",
		api.IssueTokenRequest{Amount: "2"}, &errResp)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "insufficient_balance", errResp.Code)
}

func TestAPI_ResolveExpiredToken(t *testing.T) {
	e := newTestEnv(t)
	id := e.newPass(t, "10")

	var tok api.TokenDTO
	resp := e.do(t, http.MethodPost, "/api/passes/"+id+"/tokens",
		api.IssueTokenRequest{Amount: "2.5"}, &tok)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	e.advance(3 * time.Minute)

	var errResp api.ErrorResponse
	resp = e.do(t, http.MethodPost, "/api/tokens/"+tok.ID+"/resolve", nil, &errResp)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "token_expired", errResp.Code)

	// The failed scan left the balance alone.
	var balance api.BalanceDTO
	e.do(t, http.MethodGet, "/api/passes/"+id+"/balance", nil, &balance)
	assert.Equal(t, "10", balance.Balance)
}

func TestAPI_ResolveUnknownToken(t *testing.T) {
	e := newTestEnv(t)

	var errResp api.ErrorResponse
	resp := e.do(t, http.MethodPost, "/api/tokens/deadbeef/resolve", nil, &errResp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "token_not_found", errResp.Code)
}

// =============================================================================
// TOP-UP ENDPOINTS
// =============================================================================

func TestAPI_TopUpWithProduct(t *testing.T) {
	e := newTestEnv(t)
	id := e.newPass(t, "")

	require.NoError(t, e.catalog.SaveProduct(context.Background(), topup.Product{
		ID: "prod-10h", Name: "10 Hour Pass",
		HoursToAdd: ledger.MustParseAmount("10"),
		Price:      decimal.NewFromInt(1200),
		Category:   topup.CategoryPass, Active: true,
	}))

	var result api.TopUpResultDTO
	resp := e.do(t, http.MethodPost, "/api/passes/"+id+"/topups",
		api.TopUpRequest{ProductID: "prod-10h", Method: "cash"}, &result)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, "10", result.NewBalance)
	assert.Empty(t, result.PaymentString, "cash payments carry no SPAYD string")
}

func TestAPI_TopUpQR_ReturnsSPAYD(t *testing.T) {
	e := newTestEnv(t)
	id := e.newPass(t, "")

	require.NoError(t, e.catalog.SaveProduct(context.Background(), topup.Product{
		ID: "prod-10h", Name: "10 Hour Pass",
		HoursToAdd: ledger.MustParseAmount("10"),
		Price:      decimal.NewFromInt(1200),
		Category:   topup.CategoryPass, Active: true,
	}))

	var result api.TopUpResultDTO
	resp := e.do(t, http.MethodPost, "/api/passes/"+id+"/topups",
		api.TopUpRequest{ProductID: "prod-10h", Method: "qr_payment", Message: "10 Hour Pass"}, &result)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t,
		"SPD*1.0*ACC:CZ6508000000192000145399*AM:1200.00*CC:CZK*MSG:10 Hour Pass",
		result.PaymentString)
}

func TestAPI_TopUp_UnknownMethod(t *testing.T) {
	e := newTestEnv(t)
	id := e.newPass(t, "")

	var errResp api.ErrorResponse
	resp := e.do(t, http.MethodPost, "/api/passes/"+id+"/topups",
		api.TopUpRequest{Amount: "5", Method: "barter"}, &errResp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "unknown_payment_method", errResp.Code)
}

// =============================================================================
// PRODUCT ENDPOINTS
// =============================================================================

func TestAPI_ProductLifecycle(t *testing.T) {
	e := newTestEnv(t)

	var created api.ProductDTO
	resp := e.do(t, http.MethodPost, "/api/products", api.SaveProductRequest{
		Name: "Monthly Pass", HoursToAdd: "40", Price: "3000", Category: "pass",
	}, &created)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.NotEmpty(t, created.ID)
	assert.True(t, created.Active)

	var products []api.ProductDTO
	resp = e.do(t, http.MethodGet, "/api/products?active=true", nil, &products)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, products, 1)

	resp = e.do(t, http.MethodDelete, "/api/products/"+created.ID, nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = e.do(t, http.MethodGet, "/api/products?active=true", nil, &products)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, products)
}

func TestAPI_SaveProduct_Validation(t *testing.T) {
	e := newTestEnv(t)

	resp := e.do(t, http.MethodPost, "/api/products", api.SaveProductRequest{
		Name: "Broken", HoursToAdd: "-1", Price: "100", Category: "pass",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = e.do(t, http.MethodPost, "/api/products", api.SaveProductRequest{
		Name: "Broken", HoursToAdd: "1", Price: "100", Category: "subscription",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// =============================================================================
// USER & STATS ENDPOINTS
// =============================================================================

func TestAPI_UsersAndRoles(t *testing.T) {
	e := newTestEnv(t)

	var user api.UserDTO
	resp := e.do(t, http.MethodPut, "/api/users/u1", api.UserDTO{
		FullName: "Alice Austen", Email: "alice@example.com", Roles: []string{"customer"},
	}, &user)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = e.do(t, http.MethodPut, "/api/users/u1/roles",
		api.UpdateRolesRequest{Roles: []string{"customer", "operator"}}, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var found []api.UserDTO
	resp = e.do(t, http.MethodGet, "/api/users/search?q=alice", nil, &found)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, found, 1)
	assert.ElementsMatch(t, []string{"customer", "operator"}, found[0].Roles)

	var errResp api.ErrorResponse
	resp = e.do(t, http.MethodPut, "/api/users/u1/roles",
		api.UpdateRolesRequest{Roles: []string{}}, &errResp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "no_roles", errResp.Code)
}

func TestAPI_StatsAndOverview(t *testing.T) {
	e := newTestEnv(t)
	id := e.newPass(t, "10")

	var tok api.TokenDTO
	resp := e.do(t, http.MethodPost, "/api/passes/"+id+"/tokens",
		api.IssueTokenRequest{Amount: "2.5"}, &tok)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp = e.do(t, http.MethodPost, "/api/tokens/"+tok.ID+"/resolve", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	from := e.clockNow().Add(-time.Hour).Format(time.RFC3339)
	to := e.clockNow().Add(time.Hour).Format(time.RFC3339)

	var stats api.PeriodStatsDTO
	resp = e.do(t, http.MethodGet, "/api/stats?from="+from+"&to="+to, nil, &stats)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "10", stats.SoldHours)
	assert.Equal(t, "2.5", stats.UsedHours)

	e.do(t, http.MethodPut, "/api/users/u1", api.UserDTO{
		FullName: "Alice", Roles: []string{"customer"},
	}, nil)

	var overview api.OverviewDTO
	resp = e.do(t, http.MethodGet, "/api/stats/overview", nil, &overview)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, overview.TotalCustomers)

	var activity []api.ActivityDTO
	resp = e.do(t, http.MethodGet, "/api/stats/activity?from="+from+"&to="+to, nil, &activity)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, activity, 2)
}

func TestAPI_Healthz(t *testing.T) {
	e := newTestEnv(t)

	resp := e.do(t, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
