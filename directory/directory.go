/*
Package directory holds the user records the engine reads but does not own.

Authentication lives in an external identity collaborator; this package
only mirrors the facts the venue needs for its views: display names for
event history, role sets for the owner's user-management screen, and the
counts behind the overview statistics.

Roles form a set - one account can be customer, operator, and owner at the
same time. Which role a session currently *displays* is a UI concern and
never reaches the ledger; every mutating call carries an explicit actor ID
and asserted role instead.
*/
package directory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/venuepass/pass-engine/ledger"
)

// =============================================================================
// USER & ROLES
// =============================================================================

type Role string

const (
	RoleCustomer Role = "customer"
	RoleOperator Role = "operator"
	RoleOwner    Role = "owner"
)

func ValidRole(r Role) bool {
	return r == RoleCustomer || r == RoleOperator || r == RoleOwner
}

type User struct {
	ID       ledger.ActorID
	FullName string
	Email    string
	Roles    []Role
}

func (u User) HasRole(r Role) bool {
	for _, have := range u.Roles {
		if have == r {
			return true
		}
	}
	return false
}

// ErrUserNotFound is returned for an unknown actor ID.
var ErrUserNotFound = errors.New("user not found")

// ErrNoRoles is returned when an update would leave a user with no roles.
var ErrNoRoles = errors.New("user must keep at least one role")

// =============================================================================
// DIRECTORY
// =============================================================================

type Directory interface {
	// GetUser returns a user by actor ID, or ErrUserNotFound.
	GetUser(ctx context.Context, id ledger.ActorID) (User, error)

	// ListUsers returns all users, ordered by full name.
	ListUsers(ctx context.Context) ([]User, error)

	// SearchUsers matches name or email, case-insensitively.
	SearchUsers(ctx context.Context, query string) ([]User, error)

	// UpsertUser inserts or replaces a user record.
	UpsertUser(ctx context.Context, u User) error

	// UpdateRoles replaces a user's role set. At least one role must remain.
	UpdateRoles(ctx context.Context, id ledger.ActorID, roles []Role) error

	// CountByRole counts users holding the role.
	CountByRole(ctx context.Context, r Role) (int, error)
}

// =============================================================================
// MEMORY DIRECTORY - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu    sync.RWMutex
	users map[ledger.ActorID]User
}

func NewMemory() *Memory {
	return &Memory{users: make(map[ledger.ActorID]User)}
}

func (m *Memory) GetUser(_ context.Context, id ledger.ActorID) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func (m *Memory) ListUsers(_ context.Context) ([]User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	users := make([]User, 0, len(m.users))
	for _, u := range m.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].FullName < users[j].FullName })
	return users, nil
}

func (m *Memory) SearchUsers(_ context.Context, query string) ([]User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	q := strings.ToLower(strings.TrimSpace(query))
	var result []User
	for _, u := range m.users {
		if q == "" {
			continue
		}
		if strings.Contains(strings.ToLower(u.FullName), q) || strings.Contains(strings.ToLower(u.Email), q) {
			result = append(result, u)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].FullName < result[j].FullName })
	return result, nil
}

func (m *Memory) UpsertUser(_ context.Context, u User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	return nil
}

func (m *Memory) UpdateRoles(_ context.Context, id ledger.ActorID, roles []Role) error {
	if len(roles) == 0 {
		return ErrNoRoles
	}
	for _, r := range roles {
		if !ValidRole(r) {
			return errors.New("unknown role: " + string(r))
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.Roles = roles
	m.users[id] = u
	return nil
}

func (m *Memory) CountByRole(_ context.Context, r Role) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, u := range m.users {
		if u.HasRole(r) {
			n++
		}
	}
	return n, nil
}
