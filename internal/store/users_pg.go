package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/kasuwa/accbot/internal/domain"
)

// PostgresUsers implements Users over the users table.
type PostgresUsers struct {
	db          *sqlx.DB
	defaultLang string
}

// NewPostgresUsers builds the profile store; defaultLang is assigned on
// first contact.
func NewPostgresUsers(db *sqlx.DB, defaultLang string) *PostgresUsers {
	return &PostgresUsers{db: db, defaultLang: defaultLang}
}

func (s *PostgresUsers) Get(ctx context.Context, telegramID int64) (*domain.User, error) {
	var u domain.User
	err := s.db.GetContext(ctx, &u, `
		INSERT INTO users (telegram_id, language)
		VALUES ($1, $2)
		ON CONFLICT (telegram_id) DO UPDATE SET telegram_id = EXCLUDED.telegram_id
		RETURNING *
	`, telegramID, s.defaultLang)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

func (s *PostgresUsers) SetLanguage(ctx context.Context, telegramID int64, lang string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET language = $1 WHERE telegram_id = $2
	`, lang, telegramID)
	if err != nil {
		return fmt.Errorf("set language: %w", err)
	}
	return nil
}

func (s *PostgresUsers) CreditVerified(ctx context.Context, telegramID int64, amount float64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET verified_accounts = verified_accounts + 1, balance = balance + $1
		WHERE telegram_id = $2
	`, amount, telegramID)
	if err != nil {
		return fmt.Errorf("credit verified: %w", err)
	}
	return nil
}

func (s *PostgresUsers) IncrementUnverified(ctx context.Context, telegramID int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET unverified_accounts = unverified_accounts + 1 WHERE telegram_id = $1
	`, telegramID)
	if err != nil {
		return fmt.Errorf("increment unverified: %w", err)
	}
	return nil
}
