/*
Package sqlite provides the SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements every persistence interface the engine needs (ledger.Store,
  token.Store, topup.Catalog, directory.Directory, and the reporting
  aggregator) using one SQLite database. The same patterns apply to
  PostgreSQL - only minor SQL dialect differences.

APPEND-ONLY ENFORCEMENT:
  The events table has no UPDATE and no DELETE statements anywhere in
  this package. Corrections are compensating events.

BALANCE ATOMICITY:
  AppendEvent runs the balance read, the overdraw check, the balance
  update, and the event insert inside a single SQL transaction. The
  ledger's per-pass lock already serializes writers; the transaction
  guards against partial writes.

NUMERIC STORAGE:
  Amounts are stored as decimal strings and parsed back through
  shopspring/decimal. They never pass through a binary float.

TIMESTAMPS:
  Stored as fixed-width UTC text (always 9 fractional digits) so
  lexicographic order equals chronological order and range predicates
  work directly in SQL.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/passengine.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - ledger/store.go: Interface contract for the ledger
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/venuepass/pass-engine/directory"
	"github.com/venuepass/pass-engine/ledger"
	"github.com/venuepass/pass-engine/token"
	"github.com/venuepass/pass-engine/topup"
)

// timeLayout is fixed-width so text comparison matches time comparison.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database (useful for testing).
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Passes (one per customer account; deactivated, never deleted)
	CREATE TABLE IF NOT EXISTS passes (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		balance TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_passes_owner ON passes(owner_id);

	-- Events (append-only ledger; no UPDATE, no DELETE)
	CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		pass_id TEXT NOT NULL REFERENCES passes(id),
		kind TEXT NOT NULL,
		amount TEXT NOT NULL,
		reason TEXT NOT NULL,
		payment_method TEXT,
		actor_id TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- History listing (hot path)
	CREATE INDEX IF NOT EXISTS idx_events_pass_created
		ON events(pass_id, created_at DESC);
	-- Period reporting
	CREATE INDEX IF NOT EXISTS idx_events_created ON events(created_at);
	CREATE INDEX IF NOT EXISTS idx_events_kind ON events(kind);

	-- Redemption tokens (ephemeral; expired rows may be purged any time)
	CREATE TABLE IF NOT EXISTS tokens (
		id TEXT PRIMARY KEY,
		pass_id TEXT NOT NULL REFERENCES passes(id),
		amount TEXT NOT NULL,
		issued_at TEXT NOT NULL,
		expires_at TEXT NOT NULL,
		state TEXT NOT NULL DEFAULT 'pending',
		consumed_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_tokens_expires ON tokens(expires_at);

	-- Products (catalog; deactivated, never deleted)
	CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		hours_to_add TEXT NOT NULL,
		price TEXT NOT NULL,
		category TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE
	);

	CREATE INDEX IF NOT EXISTS idx_products_category ON products(category);

	-- Users (mirrored from the identity collaborator)
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		full_name TEXT NOT NULL,
		email TEXT NOT NULL,
		roles_json TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// LEDGER STORE (ledger.Store interface)
// =============================================================================

func (s *Store) CreatePass(ctx context.Context, p ledger.Pass) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO passes (id, owner_id, balance, active, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.OwnerID, p.Balance.Value.String(), p.Active, formatTime(p.CreatedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ledger.ErrPassExists
		}
		return fmt.Errorf("failed to create pass: %w", err)
	}
	return nil
}

func (s *Store) GetPass(ctx context.Context, id ledger.PassID) (ledger.Pass, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return getPass(ctx, s.db, id)
}

// querier lets getPass run against the pool or an open transaction.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getPass(ctx context.Context, q querier, id ledger.PassID) (ledger.Pass, error) {
	var (
		p         ledger.Pass
		balance   string
		createdAt string
	)
	err := q.QueryRowContext(ctx, `
		SELECT id, owner_id, balance, active, created_at
		FROM passes WHERE id = ?`, id,
	).Scan(&p.ID, &p.OwnerID, &balance, &p.Active, &createdAt)
	if err == sql.ErrNoRows {
		return ledger.Pass{}, ledger.ErrPassNotFound
	}
	if err != nil {
		return ledger.Pass{}, fmt.Errorf("failed to get pass: %w", err)
	}

	p.Balance = parseAmount(balance)
	p.CreatedAt = parseTime(createdAt)
	return p, nil
}

func (s *Store) DeactivatePass(ctx context.Context, id ledger.PassID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `UPDATE passes SET active = FALSE WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate pass: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ledger.ErrPassNotFound
	}
	return nil
}

// AppendEvent inserts the event and moves the balance in one SQL transaction.
// A debit that would overdraw is refused with no state change.
func (s *Store) AppendEvent(ctx context.Context, e ledger.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	p, err := getPass(ctx, sqlTx, e.PassID)
	if err != nil {
		return err
	}

	// Balances are stored as text, so the comparison happens here in
	// decimal arithmetic rather than in SQL.
	next := p.Balance.Add(e.Signed())
	if next.IsNegative() {
		return ledger.ErrInsufficientBalance
	}

	if _, err := sqlTx.ExecContext(ctx,
		`UPDATE passes SET balance = ? WHERE id = ?`,
		next.Value.String(), e.PassID,
	); err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}

	if _, err := sqlTx.ExecContext(ctx, `
		INSERT INTO events (id, pass_id, kind, amount, reason, payment_method, actor_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.PassID, e.Kind, e.Amount.Value.String(), e.Reason,
		nullString(string(e.PaymentMethod)), e.ActorID, formatTime(e.CreatedAt),
	); err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}

	return sqlTx.Commit()
}

func (s *Store) ListEvents(ctx context.Context, id ledger.PassID, f ledger.Filter) ([]ledger.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, pass_id, kind, amount, reason, payment_method, actor_id, created_at
		FROM events
		WHERE pass_id = ?`
	args := []any{id}
	query, args = appendFilter(query, args, f)
	query += ` ORDER BY created_at DESC, rowid DESC`

	return s.queryEvents(ctx, query, args...)
}

// EventsInRange returns events across all passes in [from, to], newest
// first. Used by the reporting projections.
func (s *Store) EventsInRange(ctx context.Context, from, to time.Time, kind *ledger.EventKind) ([]ledger.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, pass_id, kind, amount, reason, payment_method, actor_id, created_at
		FROM events
		WHERE 1=1`
	args := []any{}
	query, args = appendFilter(query, args, ledger.Filter{From: &from, To: &to, Kind: kind})
	query += ` ORDER BY created_at DESC, rowid DESC`

	return s.queryEvents(ctx, query, args...)
}

func appendFilter(query string, args []any, f ledger.Filter) (string, []any) {
	if f.From != nil {
		query += ` AND created_at >= ?`
		args = append(args, formatTime(*f.From))
	}
	if f.To != nil {
		query += ` AND created_at <= ?`
		args = append(args, formatTime(*f.To))
	}
	if f.Kind != nil {
		query += ` AND kind = ?`
		args = append(args, string(*f.Kind))
	}
	return query, args
}

func (s *Store) queryEvents(ctx context.Context, query string, args ...any) ([]ledger.Event, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []ledger.Event
	for rows.Next() {
		var (
			e             ledger.Event
			amount        string
			paymentMethod sql.NullString
			createdAt     string
		)
		if err := rows.Scan(&e.ID, &e.PassID, &e.Kind, &amount, &e.Reason,
			&paymentMethod, &e.ActorID, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Amount = parseAmount(amount)
		e.PaymentMethod = ledger.PaymentMethod(paymentMethod.String)
		e.CreatedAt = parseTime(createdAt)
		events = append(events, e)
	}

	return events, rows.Err()
}

// =============================================================================
// TOKEN STORE (token.Store interface)
// =============================================================================

func (s *Store) InsertToken(ctx context.Context, t token.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tokens (id, pass_id, amount, issued_at, expires_at, state)
		VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.PassID, t.Amount.Value.String(),
		formatTime(t.IssuedAt), formatTime(t.ExpiresAt), t.State,
	)
	if err != nil {
		return fmt.Errorf("failed to insert token: %w", err)
	}
	return nil
}

func (s *Store) GetToken(ctx context.Context, id token.ID) (token.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		t         token.Token
		amount    string
		issuedAt  string
		expiresAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, pass_id, amount, issued_at, expires_at, state
		FROM tokens WHERE id = ?`, id,
	).Scan(&t.ID, &t.PassID, &amount, &issuedAt, &expiresAt, &t.State)
	if err == sql.ErrNoRows {
		return token.Token{}, token.ErrNotFound
	}
	if err != nil {
		return token.Token{}, fmt.Errorf("failed to get token: %w", err)
	}

	t.Amount = parseAmount(amount)
	t.IssuedAt = parseTime(issuedAt)
	t.ExpiresAt = parseTime(expiresAt)
	return t, nil
}

// ConsumeToken is a compare-and-swap on the state column. Only one
// caller can ever flip pending to consumed.
func (s *Store) ConsumeToken(ctx context.Context, id token.ID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE tokens SET state = ?, consumed_at = ?
		WHERE id = ? AND state = ?`,
		token.StateConsumed, formatTime(at), id, token.StatePending,
	)
	if err != nil {
		return fmt.Errorf("failed to consume token: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var count int
		if err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM tokens WHERE id = ?`, id).Scan(&count); err != nil {
			return fmt.Errorf("failed to check token: %w", err)
		}
		if count == 0 {
			return token.ErrNotFound
		}
		return token.ErrConsumed
	}
	return nil
}

func (s *Store) DeleteExpiredTokens(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM tokens WHERE expires_at < ?`, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to purge tokens: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// =============================================================================
// PRODUCT CATALOG (topup.Catalog interface)
// =============================================================================

func (s *Store) GetProduct(ctx context.Context, id topup.ProductID) (topup.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		p          topup.Product
		hoursToAdd string
		price      string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, hours_to_add, price, category, active
		FROM products WHERE id = ?`, id,
	).Scan(&p.ID, &p.Name, &hoursToAdd, &price, &p.Category, &p.Active)
	if err == sql.ErrNoRows {
		return topup.Product{}, topup.ErrProductNotFound
	}
	if err != nil {
		return topup.Product{}, fmt.Errorf("failed to get product: %w", err)
	}

	p.HoursToAdd = parseAmount(hoursToAdd)
	p.Price = parseDecimal(price)
	return p, nil
}

func (s *Store) ListProducts(ctx context.Context, category topup.Category, activeOnly bool) ([]topup.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, name, hours_to_add, price, category, active
		FROM products WHERE 1=1`
	args := []any{}
	if category != "" {
		query += ` AND category = ?`
		args = append(args, string(category))
	}
	if activeOnly {
		query += ` AND active = TRUE`
	}
	query += ` ORDER BY name ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []topup.Product
	for rows.Next() {
		var (
			p          topup.Product
			hoursToAdd string
			price      string
		)
		if err := rows.Scan(&p.ID, &p.Name, &hoursToAdd, &price, &p.Category, &p.Active); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		p.HoursToAdd = parseAmount(hoursToAdd)
		p.Price = parseDecimal(price)
		products = append(products, p)
	}

	return products, rows.Err()
}

func (s *Store) SaveProduct(ctx context.Context, p topup.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, hours_to_add, price, category, active)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			hours_to_add = excluded.hours_to_add,
			price = excluded.price,
			category = excluded.category,
			active = excluded.active`,
		p.ID, p.Name, p.HoursToAdd.Value.String(), p.Price.String(), p.Category, p.Active,
	)
	if err != nil {
		return fmt.Errorf("failed to save product: %w", err)
	}
	return nil
}

func (s *Store) DeactivateProduct(ctx context.Context, id topup.ProductID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `UPDATE products SET active = FALSE WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate product: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return topup.ErrProductNotFound
	}
	return nil
}

// =============================================================================
// USER DIRECTORY (directory.Directory interface)
// =============================================================================

func (s *Store) GetUser(ctx context.Context, id ledger.ActorID) (directory.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		u         directory.User
		rolesJSON string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, full_name, email, roles_json FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.FullName, &u.Email, &rolesJSON)
	if err == sql.ErrNoRows {
		return directory.User{}, directory.ErrUserNotFound
	}
	if err != nil {
		return directory.User{}, fmt.Errorf("failed to get user: %w", err)
	}

	if err := json.Unmarshal([]byte(rolesJSON), &u.Roles); err != nil {
		return directory.User{}, fmt.Errorf("failed to decode roles: %w", err)
	}
	return u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]directory.User, error) {
	return s.queryUsers(ctx,
		`SELECT id, full_name, email, roles_json FROM users ORDER BY full_name ASC`)
}

func (s *Store) SearchUsers(ctx context.Context, query string) ([]directory.User, error) {
	pattern := "%" + query + "%"
	return s.queryUsers(ctx, `
		SELECT id, full_name, email, roles_json FROM users
		WHERE full_name LIKE ? OR email LIKE ?
		ORDER BY full_name ASC`, pattern, pattern)
}

func (s *Store) queryUsers(ctx context.Context, query string, args ...any) ([]directory.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []directory.User
	for rows.Next() {
		var (
			u         directory.User
			rolesJSON string
		)
		if err := rows.Scan(&u.ID, &u.FullName, &u.Email, &rolesJSON); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		if err := json.Unmarshal([]byte(rolesJSON), &u.Roles); err != nil {
			return nil, fmt.Errorf("failed to decode roles: %w", err)
		}
		users = append(users, u)
	}

	return users, rows.Err()
}

func (s *Store) UpsertUser(ctx context.Context, u directory.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rolesJSON, err := json.Marshal(u.Roles)
	if err != nil {
		return fmt.Errorf("failed to encode roles: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (id, full_name, email, roles_json)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			full_name = excluded.full_name,
			email = excluded.email,
			roles_json = excluded.roles_json`,
		u.ID, u.FullName, u.Email, string(rolesJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

func (s *Store) UpdateRoles(ctx context.Context, id ledger.ActorID, roles []directory.Role) error {
	if len(roles) == 0 {
		return directory.ErrNoRoles
	}
	for _, r := range roles {
		if !directory.ValidRole(r) {
			return fmt.Errorf("unknown role: %s", r)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rolesJSON, err := json.Marshal(roles)
	if err != nil {
		return fmt.Errorf("failed to encode roles: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET roles_json = ? WHERE id = ?`, string(rolesJSON), id)
	if err != nil {
		return fmt.Errorf("failed to update roles: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return directory.ErrUserNotFound
	}
	return nil
}

func (s *Store) CountByRole(ctx context.Context, r directory.Role) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Roles are stored as a JSON array of quoted strings, so a LIKE on
	// the quoted role name is exact enough for the fixed role set.
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE roles_json LIKE ?`,
		`%"`+string(r)+`"%`,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func parseAmount(s string) ledger.Amount {
	return ledger.Amount{Value: parseDecimal(s)}
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
