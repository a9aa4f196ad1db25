package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// PostgresLedger implements the cooldown Ledger over the number_cooldown
// table. It performs no internal retries; storage failures surface to the
// caller so that stamps stay causally ordered after a successful login.
type PostgresLedger struct {
	db     *sqlx.DB
	period time.Duration
}

// NewPostgresLedger builds a ledger with the given refractory period.
func NewPostgresLedger(db *sqlx.DB, period time.Duration) *PostgresLedger {
	return &PostgresLedger{db: db, period: period}
}

func (l *PostgresLedger) IsBlocked(ctx context.Context, identifier string, now time.Time) (bool, error) {
	var last time.Time
	err := l.db.GetContext(ctx, &last, `
		SELECT last_accepted_at FROM number_cooldown WHERE phone_number = $1
	`, identifier)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cooldown lookup: %w", err)
	}
	return now.Sub(last) < l.period, nil
}

func (l *PostgresLedger) Stamp(ctx context.Context, identifier string, now time.Time) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO number_cooldown (phone_number, last_accepted_at)
		VALUES ($1, $2)
		ON CONFLICT (phone_number) DO UPDATE SET last_accepted_at = EXCLUDED.last_accepted_at
	`, identifier, now)
	if err != nil {
		return fmt.Errorf("cooldown stamp: %w", err)
	}
	return nil
}
