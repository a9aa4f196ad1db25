package store

import (
	"context"
	"sync"
	"time"

	"github.com/kasuwa/accbot/internal/domain"
)

// MemoryAccounts is an in-memory Accounts implementation for tests and
// development. It honours the same contract as the Postgres store, including
// the single-live-record invariant and compare-and-set transitions.
type MemoryAccounts struct {
	mu       sync.Mutex
	cooldown time.Duration
	nextID   int64
	records  []*domain.AccountRecord
}

// NewMemoryAccounts builds an empty in-memory account store.
func NewMemoryAccounts(cooldown time.Duration) *MemoryAccounts {
	return &MemoryAccounts{cooldown: cooldown, nextID: 1}
}

func (s *MemoryAccounts) Create(ctx context.Context, submitterID int64, identifier string, now time.Time) (*domain.AccountRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hasConflictLocked(identifier, now) {
		return nil, domain.ErrConflict
	}
	rec := &domain.AccountRecord{
		ID:          s.nextID,
		SubmitterID: submitterID,
		Identifier:  identifier,
		Status:      domain.StatusPendingCode,
		SubmittedAt: now,
		UpdatedAt:   now,
	}
	s.nextID++
	s.records = append(s.records, rec)
	out := *rec
	return &out, nil
}

func (s *MemoryAccounts) HasConflict(ctx context.Context, identifier string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasConflictLocked(identifier, now), nil
}

func (s *MemoryAccounts) hasConflictLocked(identifier string, now time.Time) bool {
	for _, rec := range s.records {
		if rec.Identifier != identifier {
			continue
		}
		if rec.Status.Live() {
			return true
		}
		if (rec.Status == domain.StatusEligible || rec.Status == domain.StatusPaid) &&
			now.Sub(rec.UpdatedAt) < s.cooldown {
			return true
		}
	}
	return false
}

func (s *MemoryAccounts) Transition(ctx context.Context, identifier string, from []domain.Status, to domain.Status, now time.Time) (*domain.AccountRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.records {
		if rec.Identifier != identifier {
			continue
		}
		for _, st := range from {
			if rec.Status == st {
				rec.Status = to
				rec.UpdatedAt = now
				out := *rec
				return &out, nil
			}
		}
	}
	return nil, domain.ErrStaleState
}

func (s *MemoryAccounts) ListEligible(ctx context.Context, submitterID int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []string
	for _, rec := range s.records {
		if rec.SubmitterID == submitterID && rec.Status == domain.StatusEligible {
			out = append(out, rec.Identifier)
		}
	}
	return out, nil
}

func (s *MemoryAccounts) OrphanedPending(ctx context.Context, olderThan time.Time) ([]domain.AccountRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.AccountRecord
	for _, rec := range s.records {
		if rec.Status.Live() && rec.UpdatedAt.Before(olderThan) {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (s *MemoryAccounts) CountBySubmitter(ctx context.Context, submitterID int64, status domain.Status) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, rec := range s.records {
		if rec.SubmitterID == submitterID && rec.Status == status {
			n++
		}
	}
	return n, nil
}

func (s *MemoryAccounts) MarkPaid(ctx context.Context, submitterID int64, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, rec := range s.records {
		if rec.SubmitterID == submitterID && rec.Status == domain.StatusEligible {
			rec.Status = domain.StatusPaid
			rec.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

func (s *MemoryAccounts) SettledSince(ctx context.Context, since time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, rec := range s.records {
		if rec.Status == domain.StatusPaid && !rec.UpdatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

// Find returns a copy of the newest record for an identifier, for tests.
func (s *MemoryAccounts) Find(identifier string) (*domain.AccountRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.records) - 1; i >= 0; i-- {
		if s.records[i].Identifier == identifier {
			out := *s.records[i]
			return &out, true
		}
	}
	return nil, false
}

// MemoryLedger is an in-memory cooldown Ledger for tests and development.
type MemoryLedger struct {
	mu      sync.Mutex
	period  time.Duration
	stamped map[string]time.Time
}

// NewMemoryLedger builds an empty ledger with the given refractory period.
func NewMemoryLedger(period time.Duration) *MemoryLedger {
	return &MemoryLedger{period: period, stamped: make(map[string]time.Time)}
}

func (l *MemoryLedger) IsBlocked(ctx context.Context, identifier string, now time.Time) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	last, ok := l.stamped[identifier]
	if !ok {
		return false, nil
	}
	return now.Sub(last) < l.period, nil
}

func (l *MemoryLedger) Stamp(ctx context.Context, identifier string, now time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stamped[identifier] = now
	return nil
}

// MemoryUsers is an in-memory Users implementation for tests and development.
type MemoryUsers struct {
	mu          sync.Mutex
	defaultLang string
	users       map[int64]*domain.User
}

// NewMemoryUsers builds an empty profile store.
func NewMemoryUsers(defaultLang string) *MemoryUsers {
	return &MemoryUsers{defaultLang: defaultLang, users: make(map[int64]*domain.User)}
}

func (s *MemoryUsers) Get(ctx context.Context, telegramID int64) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.getLocked(telegramID)
	out := *u
	return &out, nil
}

func (s *MemoryUsers) getLocked(telegramID int64) *domain.User {
	u, ok := s.users[telegramID]
	if !ok {
		u = &domain.User{TelegramID: telegramID, Language: s.defaultLang}
		s.users[telegramID] = u
	}
	return u
}

func (s *MemoryUsers) SetLanguage(ctx context.Context, telegramID int64, lang string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getLocked(telegramID).Language = lang
	return nil
}

func (s *MemoryUsers) CreditVerified(ctx context.Context, telegramID int64, amount float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.getLocked(telegramID)
	u.VerifiedCount++
	u.Balance += amount
	return nil
}

func (s *MemoryUsers) IncrementUnverified(ctx context.Context, telegramID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getLocked(telegramID).UnverifiedCount++
	return nil
}

// MemoryWithdrawals is an in-memory Withdrawals implementation for tests.
type MemoryWithdrawals struct {
	mu       sync.Mutex
	Requests []*domain.WithdrawalRequest
}

// NewMemoryWithdrawals builds an empty withdrawal store.
func NewMemoryWithdrawals() *MemoryWithdrawals {
	return &MemoryWithdrawals{}
}

func (s *MemoryWithdrawals) Create(ctx context.Context, req *domain.WithdrawalRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *req
	s.Requests = append(s.Requests, &cp)
	return nil
}

func (s *MemoryWithdrawals) SettleOpen(ctx context.Context, submitterID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, req := range s.Requests {
		if req.SubmitterID == submitterID && !req.Paid {
			req.Paid = true
			n++
		}
	}
	return n, nil
}
