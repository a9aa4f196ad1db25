package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/kasuwa/accbot/internal/domain"
)

// PostgresWithdrawals implements Withdrawals over the withdrawal_requests
// table.
type PostgresWithdrawals struct {
	db *sqlx.DB
}

// NewPostgresWithdrawals builds the withdrawal request store.
func NewPostgresWithdrawals(db *sqlx.DB) *PostgresWithdrawals {
	return &PostgresWithdrawals{db: db}
}

func (s *PostgresWithdrawals) Create(ctx context.Context, req *domain.WithdrawalRequest) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO withdrawal_requests
			(id, submitter_id, username, bank_details, num_accounts, accounts_list, requested_at, is_paid)
		VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE)
	`, req.ID, req.SubmitterID, req.Username, req.BankDetails, req.NumAccounts, req.Identifiers, req.RequestedAt)
	if err != nil {
		return fmt.Errorf("insert withdrawal request: %w", err)
	}
	return nil
}

func (s *PostgresWithdrawals) SettleOpen(ctx context.Context, submitterID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE withdrawal_requests SET is_paid = TRUE
		WHERE submitter_id = $1 AND is_paid = FALSE
	`, submitterID)
	if err != nil {
		return 0, fmt.Errorf("settle withdrawals: %w", err)
	}
	return res.RowsAffected()
}
