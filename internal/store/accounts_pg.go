package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/kasuwa/accbot/internal/domain"
)

const pgUniqueViolation = "23505"

// PostgresAccounts implements Accounts on top of sqlx/Postgres. The
// single-live-record invariant is enforced by a partial unique index on
// phone_number over the pending statuses, so concurrent Create calls for the
// same identifier resolve to exactly one winner inside the database.
type PostgresAccounts struct {
	db       *sqlx.DB
	cooldown time.Duration
}

// NewPostgresAccounts builds the store. cooldown mirrors the ledger's
// refractory period for the deliberate duplicate check in Create.
func NewPostgresAccounts(db *sqlx.DB, cooldown time.Duration) *PostgresAccounts {
	return &PostgresAccounts{db: db, cooldown: cooldown}
}

func (s *PostgresAccounts) Create(ctx context.Context, submitterID int64, identifier string, now time.Time) (*domain.AccountRecord, error) {
	conflict, err := s.HasConflict(ctx, identifier, now)
	if err != nil {
		return nil, err
	}
	if conflict {
		return nil, domain.ErrConflict
	}

	var rec domain.AccountRecord
	err = s.db.GetContext(ctx, &rec, `
		INSERT INTO accounts (submitter_id, phone_number, status, submitted_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		RETURNING *
	`, submitterID, identifier, domain.StatusPendingCode, now)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation {
			return nil, domain.ErrConflict
		}
		return nil, fmt.Errorf("insert account: %w", err)
	}
	return &rec, nil
}

func (s *PostgresAccounts) HasConflict(ctx context.Context, identifier string, now time.Time) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM accounts
		WHERE phone_number = $1
		AND (
			status IN ($2, $3)
			OR (status IN ($4, $5) AND updated_at > $6)
		)
	`, identifier,
		domain.StatusPendingCode, domain.StatusPendingSecondFactor,
		domain.StatusEligible, domain.StatusPaid,
		now.Add(-s.cooldown))
	if err != nil {
		return false, fmt.Errorf("conflict check: %w", err)
	}
	return n > 0, nil
}

func (s *PostgresAccounts) Transition(ctx context.Context, identifier string, from []domain.Status, to domain.Status, now time.Time) (*domain.AccountRecord, error) {
	fromSet := make([]string, len(from))
	for i, st := range from {
		fromSet[i] = string(st)
	}

	var rec domain.AccountRecord
	err := s.db.GetContext(ctx, &rec, `
		UPDATE accounts
		SET status = $1, updated_at = $2
		WHERE phone_number = $3 AND status = ANY($4)
		RETURNING *
	`, to, now, identifier, pq.Array(fromSet))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrStaleState
	}
	if err != nil {
		return nil, fmt.Errorf("transition account: %w", err)
	}
	return &rec, nil
}

func (s *PostgresAccounts) ListEligible(ctx context.Context, submitterID int64) ([]string, error) {
	var identifiers []string
	err := s.db.SelectContext(ctx, &identifiers, `
		SELECT phone_number FROM accounts
		WHERE submitter_id = $1 AND status = $2
		ORDER BY submitted_at
	`, submitterID, domain.StatusEligible)
	if err != nil {
		return nil, fmt.Errorf("list eligible: %w", err)
	}
	return identifiers, nil
}

func (s *PostgresAccounts) OrphanedPending(ctx context.Context, olderThan time.Time) ([]domain.AccountRecord, error) {
	var recs []domain.AccountRecord
	err := s.db.SelectContext(ctx, &recs, `
		SELECT * FROM accounts
		WHERE status IN ($1, $2) AND updated_at < $3
	`, domain.StatusPendingCode, domain.StatusPendingSecondFactor, olderThan)
	if err != nil {
		return nil, fmt.Errorf("orphaned pending: %w", err)
	}
	return recs, nil
}

func (s *PostgresAccounts) CountBySubmitter(ctx context.Context, submitterID int64, status domain.Status) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM accounts WHERE submitter_id = $1 AND status = $2
	`, submitterID, status)
	if err != nil {
		return 0, fmt.Errorf("count accounts: %w", err)
	}
	return n, nil
}

func (s *PostgresAccounts) MarkPaid(ctx context.Context, submitterID int64, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE accounts
		SET status = $1, updated_at = $2
		WHERE submitter_id = $3 AND status = $4
	`, domain.StatusPaid, now, submitterID, domain.StatusEligible)
	if err != nil {
		return 0, fmt.Errorf("mark paid: %w", err)
	}
	return res.RowsAffected()
}

func (s *PostgresAccounts) SettledSince(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	err := s.db.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM accounts WHERE status = $1 AND updated_at >= $2
	`, domain.StatusPaid, since)
	if err != nil {
		return 0, fmt.Errorf("count settled: %w", err)
	}
	return n, nil
}
