// Package withdraw assembles payout requests from eligible account records
// and settles them on operator approval.
package withdraw

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kasuwa/accbot/core/logger"
	"github.com/kasuwa/accbot/internal/domain"
	"github.com/kasuwa/accbot/internal/gate"
	"github.com/kasuwa/accbot/internal/notify"
	"github.com/kasuwa/accbot/internal/store"
	"log/slog"
)

// Service handles the payout side: listing eligible records, recording
// withdrawal requests, and marking them paid.
type Service struct {
	accounts    store.Accounts
	withdrawals store.Withdrawals
	notifier    notify.Notifier
	payout      gate.Window
	now         func() time.Time
}

// New builds a Service. now may be nil; time.Now is used then.
func New(accounts store.Accounts, withdrawals store.Withdrawals, notifier notify.Notifier, payout gate.Window, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		accounts:    accounts,
		withdrawals: withdrawals,
		notifier:    notifier,
		payout:      payout,
		now:         now,
	}
}

// WindowOpen reports whether the payout window admits requests at now.
func (s *Service) WindowOpen(now time.Time) bool {
	return s.payout.IsOpen(now)
}

// OpensAt returns the payout window's opening time for user messages.
func (s *Service) OpensAt() string {
	return s.payout.OpensAt()
}

// SetNotifier wires the operator notifier once the bot runtime exists.
func (s *Service) SetNotifier(n notify.Notifier) {
	s.notifier = n
}

// Eligible returns the submitter's identifiers awaiting payout. An empty set
// rejects with nothing_eligible so callers have one decision path.
func (s *Service) Eligible(ctx context.Context, submitterID int64) ([]string, error) {
	ids, err := s.accounts.ListEligible(ctx, submitterID)
	if err != nil {
		return nil, fmt.Errorf("list eligible: %w", err)
	}
	if len(ids) == 0 {
		return nil, domain.Rejected(domain.RejectNothingEligible)
	}
	return ids, nil
}

// Request records a withdrawal request for all currently eligible records and
// announces it to the operator. The payout window is enforced here.
func (s *Service) Request(ctx context.Context, submitterID int64, username, bankDetails string) (*domain.WithdrawalRequest, error) {
	now := s.now()
	if !s.payout.IsOpen(now) {
		return nil, domain.Rejected(domain.RejectOutsideWindow)
	}

	ids, err := s.Eligible(ctx, submitterID)
	if err != nil {
		return nil, err
	}

	req := &domain.WithdrawalRequest{
		ID:          uuid.NewString(),
		SubmitterID: submitterID,
		Username:    username,
		BankDetails: strings.TrimSpace(bankDetails),
		NumAccounts: len(ids),
		Identifiers: domain.IdentifierList(ids),
		RequestedAt: now,
	}
	if err := s.withdrawals.Create(ctx, req); err != nil {
		return nil, fmt.Errorf("create withdrawal: %w", err)
	}

	logger.SVCWithdraw.Info("withdrawal requested",
		slog.String("event", "withdraw.request"),
		slog.String("rid", logger.RIDFrom(ctx)),
		slog.Int64("submitter_id", submitterID),
		slog.Int("accounts", len(ids)),
	)

	if s.notifier != nil {
		msg := fmt.Sprintf(
			"💰 PAYMENT REQUEST\n👤 User: %d (@%s)\n📱 Accounts: %s\n🏦 Bank: %s\n/mark_paid %d",
			submitterID, username, strings.Join(ids, ", "), req.BankDetails, submitterID,
		)
		if err := s.notifier.NotifyOperator(ctx, msg); err != nil {
			logger.SVCWithdraw.Warn("operator notify failed",
				slog.String("event", "withdraw.notify"),
				slog.String("err", err.Error()),
			)
		}
	}

	return req, nil
}

// MarkPaid settles a submitter's eligible records and open withdrawal
// requests. Returns how many account records were flipped to paid.
func (s *Service) MarkPaid(ctx context.Context, submitterID int64) (int64, error) {
	now := s.now()
	settled, err := s.accounts.MarkPaid(ctx, submitterID, now)
	if err != nil {
		return 0, fmt.Errorf("mark paid: %w", err)
	}
	if settled == 0 {
		return 0, domain.Rejected(domain.RejectNothingEligible)
	}

	if _, err := s.withdrawals.SettleOpen(ctx, submitterID); err != nil {
		return settled, fmt.Errorf("settle withdrawals: %w", err)
	}

	logger.SVCWithdraw.Info("payout settled",
		slog.String("event", "withdraw.settle"),
		slog.String("rid", logger.RIDFrom(ctx)),
		slog.Int64("submitter_id", submitterID),
		slog.Int64("accounts", settled),
	)
	return settled, nil
}
