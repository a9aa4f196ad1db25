// Package store holds the durable state of the intake flow: account records,
// the cooldown ledger, user profiles, and withdrawal requests. Postgres is
// the default backend; the cooldown ledger can alternatively live in Redis,
// and in-memory implementations exist for development and tests.
package store

import (
	"context"
	"time"

	"github.com/kasuwa/accbot/internal/domain"
)

// Accounts is the durable record store for submitted identifiers. Transition
// is the sole mutation primitive for live records; there is no blind
// overwrite.
type Accounts interface {
	// Create inserts a record in pending_code status. It fails with
	// domain.ErrConflict when another record for the identifier is live,
	// or eligible/paid and not yet past cooldown.
	Create(ctx context.Context, submitterID int64, identifier string, now time.Time) (*domain.AccountRecord, error)

	// HasConflict is the read-only form of Create's guard, used to turn
	// submissions away before any provider side effect happens.
	HasConflict(ctx context.Context, identifier string, now time.Time) (bool, error)

	// Transition atomically moves the live record for identifier from one
	// of the given statuses to the target status. It fails with
	// domain.ErrStaleState when the current status is not in from.
	Transition(ctx context.Context, identifier string, from []domain.Status, to domain.Status, now time.Time) (*domain.AccountRecord, error)

	// ListEligible returns identifiers eligible for payout for a submitter.
	ListEligible(ctx context.Context, submitterID int64) ([]string, error)

	// OrphanedPending returns live records not touched since the bound.
	// The sweep rejects them to recover from crashes mid-flow.
	OrphanedPending(ctx context.Context, olderThan time.Time) ([]domain.AccountRecord, error)

	// CountBySubmitter counts a submitter's records in the given status.
	CountBySubmitter(ctx context.Context, submitterID int64, status domain.Status) (int, error)

	// MarkPaid flips all of a submitter's eligible records to paid and
	// returns how many were settled. Triggered by payout approval only.
	MarkPaid(ctx context.Context, submitterID int64, now time.Time) (int64, error)

	// SettledSince counts records marked paid at or after the bound.
	SettledSince(ctx context.Context, since time.Time) (int64, error)
}

// Ledger is the cooldown ledger: the authority for duplicate-submission
// rejection within the refractory period. Stamp is written only after a
// successful provider login, never before.
type Ledger interface {
	// IsBlocked reports whether the identifier was accepted less than the
	// refractory period ago.
	IsBlocked(ctx context.Context, identifier string, now time.Time) (bool, error)

	// Stamp records the acceptance instant. Idempotent, last-write-wins.
	Stamp(ctx context.Context, identifier string, now time.Time) error
}

// Users stores submitter profiles: language, counters, accrued balance.
type Users interface {
	// Get returns the profile, creating a default one on first contact.
	Get(ctx context.Context, telegramID int64) (*domain.User, error)

	// SetLanguage updates the preferred message language.
	SetLanguage(ctx context.Context, telegramID int64, lang string) error

	// CreditVerified bumps the verified counter and accrues the payout
	// amount for one accepted account.
	CreditVerified(ctx context.Context, telegramID int64, amount float64) error

	// IncrementUnverified bumps the failed-submission counter.
	IncrementUnverified(ctx context.Context, telegramID int64) error
}

// Withdrawals persists payout requests assembled from eligible records.
type Withdrawals interface {
	Create(ctx context.Context, req *domain.WithdrawalRequest) error

	// SettleOpen marks a submitter's unpaid requests as paid and returns
	// how many were settled.
	SettleOpen(ctx context.Context, submitterID int64) (int64, error)
}
