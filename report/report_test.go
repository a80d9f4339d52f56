package report_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/venuepass/pass-engine/directory"
	"github.com/venuepass/pass-engine/ledger"
	"github.com/venuepass/pass-engine/ledger/store"
	"github.com/venuepass/pass-engine/report"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestService(t *testing.T) (*report.Service, *ledger.Ledger, *directory.Memory) {
	t.Helper()

	mem := store.NewMemory()
	l := ledger.New(mem)
	dir := directory.NewMemory()
	return report.NewService(l, mem, dir), l, dir
}

func amt(s string) ledger.Amount {
	return ledger.MustParseAmount(s)
}

// =============================================================================
// PERIOD STATS
// =============================================================================

func TestStats_SumsSoldAndUsedHoursInPeriod(t *testing.T) {
	// GIVEN: Credits and debits across two passes, some outside the period
	// WHEN: Stats for the period are computed
	// THEN: Sold sums the in-period credits, used sums the in-period debits

	svc, l, _ := newTestService(t)
	ctx := context.Background()

	base := time.Date(2026, time.May, 1, 0, 0, 0, 0, time.UTC)
	now := base
	l.Clock = func() time.Time { return now }

	p1, err := l.CreatePass(ctx, "", "customer-1")
	require.NoError(t, err)
	p2, err := l.CreatePass(ctx, "", "customer-2")
	require.NoError(t, err)

	// Inside the period
	now = base.Add(24 * time.Hour)
	_, err = l.AppendCredit(ctx, p1.ID, amt("10"), ledger.PaymentCash, "op-1")
	require.NoError(t, err)
	_, err = l.AppendCredit(ctx, p2.ID, amt("5"), ledger.PaymentQR, "op-1")
	require.NoError(t, err)
	_, err = l.AppendDebit(ctx, p1.ID, amt("2.5"), ledger.ReasonRedemption, "op-1")
	require.NoError(t, err)

	// After the period
	now = base.Add(40 * 24 * time.Hour)
	_, err = l.AppendDebit(ctx, p2.ID, amt("1"), ledger.ReasonRedemption, "op-1")
	require.NoError(t, err)

	stats, err := svc.Stats(ctx, base, base.Add(30*24*time.Hour))
	require.NoError(t, err)

	assert.True(t, stats.SoldHours.Equal(amt("15")), "sold = %s", stats.SoldHours)
	assert.True(t, stats.UsedHours.Equal(amt("2.5")), "used = %s", stats.UsedHours)
}

func TestStats_EmptyPeriod_Zeroes(t *testing.T) {
	svc, _, _ := newTestService(t)

	from := time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)
	stats, err := svc.Stats(context.Background(), from, from.AddDate(0, 1, 0))
	require.NoError(t, err)

	assert.True(t, stats.SoldHours.IsZero())
	assert.True(t, stats.UsedHours.IsZero())
}

// =============================================================================
// OVERVIEW
// =============================================================================

func TestOverview_CountsRoles(t *testing.T) {
	// A user holding both roles counts in both totals.

	svc, _, dir := newTestService(t)
	ctx := context.Background()

	require.NoError(t, dir.UpsertUser(ctx, directory.User{
		ID: "u1", FullName: "Alice", Roles: []directory.Role{directory.RoleCustomer},
	}))
	require.NoError(t, dir.UpsertUser(ctx, directory.User{
		ID: "u2", FullName: "Bob", Roles: []directory.Role{directory.RoleCustomer},
	}))
	require.NoError(t, dir.UpsertUser(ctx, directory.User{
		ID: "u3", FullName: "Cara",
		Roles: []directory.Role{directory.RoleOperator, directory.RoleCustomer},
	}))
	require.NoError(t, dir.UpsertUser(ctx, directory.User{
		ID: "u4", FullName: "Dana", Roles: []directory.Role{directory.RoleOwner},
	}))

	overview, err := svc.Overview(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, overview.TotalCustomers)
	assert.Equal(t, 1, overview.TotalOperators)
}

// =============================================================================
// ACTIVITY
// =============================================================================

func TestActivity_ResolvesActorNames(t *testing.T) {
	svc, l, dir := newTestService(t)
	ctx := context.Background()

	require.NoError(t, dir.UpsertUser(ctx, directory.User{
		ID: "operator-1", FullName: "Olga Operator",
		Roles: []directory.Role{directory.RoleOperator},
	}))

	p, err := l.CreatePass(ctx, "", "customer-1")
	require.NoError(t, err)
	_, err = l.AppendCredit(ctx, p.ID, amt("10"), ledger.PaymentCash, "operator-1")
	require.NoError(t, err)
	_, err = l.AppendDebit(ctx, p.ID, amt("1"), ledger.ReasonRedemption, "ghost")
	require.NoError(t, err)

	from := time.Now().UTC().Add(-time.Hour)
	to := time.Now().UTC().Add(time.Hour)

	entries, err := svc.Activity(ctx, from, to, nil)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// Newest first: the debit by the unknown actor comes first.
	assert.Equal(t, ledger.KindDebit, entries[0].Event.Kind)
	assert.Empty(t, entries[0].ActorName, "unknown actors keep an empty name")
	assert.Equal(t, "Olga Operator", entries[1].ActorName)

	credits := ledger.KindCredit
	onlyCredits, err := svc.Activity(ctx, from, to, &credits)
	require.NoError(t, err)
	require.Len(t, onlyCredits, 1)
	assert.Equal(t, ledger.KindCredit, onlyCredits[0].Event.Kind)
}
