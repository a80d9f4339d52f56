/*
Package report is the read-only query side of the pass engine.

Pure projections over the ledger's event history plus the user directory:
current balance, per-pass history, period roll-ups (hours sold vs. used),
and role counts for the owner overview. Nothing here authorizes or
performs a mutation - all writes go through the ledger, token, and topup
packages.
*/
package report

import (
	"context"
	"time"

	"github.com/venuepass/pass-engine/directory"
	"github.com/venuepass/pass-engine/ledger"
)

// =============================================================================
// SOURCES
// =============================================================================

// Aggregator is the cross-pass event query the period reports need.
// Both the SQLite store and the in-memory store satisfy it.
type Aggregator interface {
	EventsInRange(ctx context.Context, from, to time.Time, kind *ledger.EventKind) ([]ledger.Event, error)
}

// =============================================================================
// SERVICE
// =============================================================================

type Service struct {
	ledger *ledger.Ledger
	agg    Aggregator
	dir    directory.Directory
}

func NewService(l *ledger.Ledger, agg Aggregator, dir directory.Directory) *Service {
	return &Service{ledger: l, agg: agg, dir: dir}
}

// CurrentBalance returns the balance of one pass.
func (s *Service) CurrentBalance(ctx context.Context, id ledger.PassID) (ledger.Amount, error) {
	return s.ledger.Balance(ctx, id)
}

// History returns a pass's events, newest first, narrowed by filter.
func (s *Service) History(ctx context.Context, id ledger.PassID, f ledger.Filter) ([]ledger.Event, error) {
	return s.ledger.Events(ctx, id, f)
}

// PeriodStats aggregates a closed time interval.
type PeriodStats struct {
	From      time.Time
	To        time.Time
	SoldHours ledger.Amount // sum of credits in the period
	UsedHours ledger.Amount // sum of debits in the period
}

// Stats rolls up hours sold and used between from and to, inclusive.
func (s *Service) Stats(ctx context.Context, from, to time.Time) (PeriodStats, error) {
	events, err := s.agg.EventsInRange(ctx, from, to, nil)
	if err != nil {
		return PeriodStats{}, err
	}

	stats := PeriodStats{From: from, To: to, SoldHours: ledger.ZeroAmount(), UsedHours: ledger.ZeroAmount()}
	for _, e := range events {
		switch e.Kind {
		case ledger.KindCredit:
			stats.SoldHours = stats.SoldHours.Add(e.Amount)
		case ledger.KindDebit:
			stats.UsedHours = stats.UsedHours.Add(e.Amount)
		}
	}
	return stats, nil
}

// Overview is the owner's headline numbers.
type Overview struct {
	TotalCustomers int
	TotalOperators int
}

func (s *Service) Overview(ctx context.Context) (Overview, error) {
	customers, err := s.dir.CountByRole(ctx, directory.RoleCustomer)
	if err != nil {
		return Overview{}, err
	}
	operators, err := s.dir.CountByRole(ctx, directory.RoleOperator)
	if err != nil {
		return Overview{}, err
	}
	return Overview{TotalCustomers: customers, TotalOperators: operators}, nil
}

// ActivityEntry is one ledger event annotated with the acting user's name,
// for the owner's period activity table.
type ActivityEntry struct {
	Event     ledger.Event
	ActorName string
}

// Activity lists all events in a period, optionally filtered by kind,
// with actor names resolved from the directory.
func (s *Service) Activity(ctx context.Context, from, to time.Time, kind *ledger.EventKind) ([]ActivityEntry, error) {
	events, err := s.agg.EventsInRange(ctx, from, to, kind)
	if err != nil {
		return nil, err
	}

	entries := make([]ActivityEntry, len(events))
	for i, e := range events {
		entries[i] = ActivityEntry{Event: e}
		if u, err := s.dir.GetUser(ctx, e.ActorID); err == nil {
			entries[i].ActorName = u.FullName
		}
	}
	return entries, nil
}
