// Package domain defines the shared vocabulary of the account intake flow:
// record statuses, durable entities, and the closed error taxonomy exchanged
// between the session controller, the stores, and the bot handlers.
package domain

import (
	"time"

	"github.com/lib/pq"
)

// IdentifierList is a list of identifiers stored as a Postgres text array.
type IdentifierList = pq.StringArray

// Status is the lifecycle position of a submitted account record.
type Status string

const (
	// StatusPendingCode means a login code was dispatched and is awaited.
	StatusPendingCode Status = "pending_code"
	// StatusPendingSecondFactor means the provider demanded a cloud password.
	StatusPendingSecondFactor Status = "pending_second_factor"
	// StatusEligible means the login completed and the record counts toward payout.
	StatusEligible Status = "eligible_for_payout"
	// StatusPaid means the submitter has been paid for this record.
	StatusPaid Status = "paid"
	// StatusRejected means the attempt ended without a completed login.
	StatusRejected Status = "rejected"
)

// Live reports whether the status still holds an in-flight login attempt.
// At most one live record may exist per identifier at any instant.
func (s Status) Live() bool {
	return s == StatusPendingCode || s == StatusPendingSecondFactor
}

// Valid reports whether s is one of the known lifecycle statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPendingCode, StatusPendingSecondFactor, StatusEligible, StatusPaid, StatusRejected:
		return true
	}
	return false
}

// AccountRecord is one submission attempt for an identifier.
type AccountRecord struct {
	ID          int64     `db:"id"`
	SubmitterID int64     `db:"submitter_id"`
	Identifier  string    `db:"phone_number"`
	Status      Status    `db:"status"`
	SubmittedAt time.Time `db:"submitted_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// User is the profile of a submitting party.
type User struct {
	TelegramID      int64   `db:"telegram_id"`
	Language        string  `db:"language"`
	VerifiedCount   int     `db:"verified_accounts"`
	UnverifiedCount int     `db:"unverified_accounts"`
	Balance         float64 `db:"balance"`
}

// WithdrawalRequest captures a payout request assembled from eligible records.
type WithdrawalRequest struct {
	ID          string         `db:"id"`
	SubmitterID int64          `db:"submitter_id"`
	Username    string         `db:"username"`
	BankDetails string         `db:"bank_details"`
	NumAccounts int            `db:"num_accounts"`
	Identifiers IdentifierList `db:"accounts_list"`
	RequestedAt time.Time      `db:"requested_at"`
	Paid        bool           `db:"is_paid"`
}
