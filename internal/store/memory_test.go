package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kasuwa/accbot/internal/domain"
)

const cooldownWeek = 7 * 24 * time.Hour

func TestAccountsCreateEnforcesSingleLiveRecord(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryAccounts(cooldownWeek)
	now := time.Now()

	_, err := s.Create(ctx, 1, "+2348100000001", now)
	require.NoError(t, err)

	_, err = s.Create(ctx, 2, "+2348100000001", now)
	assert.ErrorIs(t, err, domain.ErrConflict)

	// A different identifier is unaffected.
	_, err = s.Create(ctx, 2, "+2348100000002", now)
	assert.NoError(t, err)
}

func TestAccountsCreateBlocksRecentSettledRecord(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryAccounts(cooldownWeek)
	now := time.Now()

	_, err := s.Create(ctx, 1, "+2348100000001", now)
	require.NoError(t, err)
	_, err = s.Transition(ctx, "+2348100000001",
		[]domain.Status{domain.StatusPendingCode}, domain.StatusEligible, now)
	require.NoError(t, err)

	_, err = s.Create(ctx, 1, "+2348100000001", now.Add(3*24*time.Hour))
	assert.ErrorIs(t, err, domain.ErrConflict)

	// Past the cooldown the identifier is admissible again.
	_, err = s.Create(ctx, 1, "+2348100000001", now.Add(cooldownWeek+time.Minute))
	assert.NoError(t, err)
}

func TestAccountsRejectedRecordDoesNotBlock(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryAccounts(cooldownWeek)
	now := time.Now()

	_, err := s.Create(ctx, 1, "+2348100000001", now)
	require.NoError(t, err)
	_, err = s.Transition(ctx, "+2348100000001",
		[]domain.Status{domain.StatusPendingCode}, domain.StatusRejected, now)
	require.NoError(t, err)

	_, err = s.Create(ctx, 1, "+2348100000001", now.Add(time.Minute))
	assert.NoError(t, err)
}

func TestAccountsTransitionIsCompareAndSet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryAccounts(cooldownWeek)
	now := time.Now()

	_, err := s.Create(ctx, 1, "+2348100000001", now)
	require.NoError(t, err)

	rec, err := s.Transition(ctx, "+2348100000001",
		[]domain.Status{domain.StatusPendingCode}, domain.StatusPendingSecondFactor, now)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPendingSecondFactor, rec.Status)

	// Same expectation again: the record moved on, so the CAS fails.
	_, err = s.Transition(ctx, "+2348100000001",
		[]domain.Status{domain.StatusPendingCode}, domain.StatusEligible, now)
	assert.ErrorIs(t, err, domain.ErrStaleState)
}

func TestAccountsConcurrentCreateSingleWinner(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryAccounts(cooldownWeek)
	now := time.Now()

	const workers = 16
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.Create(ctx, int64(i), "+2348100000001", now)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, domain.ErrConflict)
		}
	}
	assert.Equal(t, 1, wins)
}

func TestAccountsConcurrentTransitionSingleWinner(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryAccounts(cooldownWeek)
	now := time.Now()

	_, err := s.Create(ctx, 1, "+2348100000001", now)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]error, 2)
	targets := []domain.Status{domain.StatusEligible, domain.StatusRejected}
	for i, to := range targets {
		wg.Add(1)
		go func(i int, to domain.Status) {
			defer wg.Done()
			_, results[i] = s.Transition(ctx, "+2348100000001",
				[]domain.Status{domain.StatusPendingCode}, to, now)
		}(i, to)
	}
	wg.Wait()

	wins := 0
	for _, err := range results {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, domain.ErrStaleState)
		}
	}
	assert.Equal(t, 1, wins)
}

func TestAccountsMarkPaidAndSettledSince(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryAccounts(cooldownWeek)
	now := time.Now()

	for _, id := range []string{"+2348100000001", "+2348100000002"} {
		_, err := s.Create(ctx, 7, id, now)
		require.NoError(t, err)
		_, err = s.Transition(ctx, id,
			[]domain.Status{domain.StatusPendingCode}, domain.StatusEligible, now)
		require.NoError(t, err)
	}

	ids, err := s.ListEligible(ctx, 7)
	require.NoError(t, err)
	assert.Len(t, ids, 2)

	settled, err := s.MarkPaid(ctx, 7, now)
	require.NoError(t, err)
	assert.EqualValues(t, 2, settled)

	// Second call settles nothing.
	settled, err = s.MarkPaid(ctx, 7, now)
	require.NoError(t, err)
	assert.EqualValues(t, 0, settled)

	n, err := s.SettledSince(ctx, now.Add(-time.Minute))
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	n, err = s.SettledSince(ctx, now.Add(time.Minute))
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)
}

func TestLedgerBoundary(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger(cooldownWeek)
	now := time.Now()

	blocked, err := l.IsBlocked(ctx, "+2348100000001", now)
	require.NoError(t, err)
	assert.False(t, blocked)

	require.NoError(t, l.Stamp(ctx, "+2348100000001", now))

	blocked, _ = l.IsBlocked(ctx, "+2348100000001", now.Add(cooldownWeek-time.Second))
	assert.True(t, blocked)

	// Exactly at the boundary the block lifts.
	blocked, _ = l.IsBlocked(ctx, "+2348100000001", now.Add(cooldownWeek))
	assert.False(t, blocked)
}

func TestUsersProfileLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryUsers("ha")

	u, err := s.Get(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "ha", u.Language)
	assert.Zero(t, u.Balance)

	require.NoError(t, s.SetLanguage(ctx, 42, "en"))
	require.NoError(t, s.CreditVerified(ctx, 42, 0.7))
	require.NoError(t, s.CreditVerified(ctx, 42, 0.7))
	require.NoError(t, s.IncrementUnverified(ctx, 42))

	u, err = s.Get(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "en", u.Language)
	assert.Equal(t, 2, u.VerifiedCount)
	assert.Equal(t, 1, u.UnverifiedCount)
	assert.InDelta(t, 1.4, u.Balance, 1e-9)
}

func TestWithdrawalsSettleOpen(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryWithdrawals()

	require.NoError(t, s.Create(ctx, &domain.WithdrawalRequest{ID: "a", SubmitterID: 1}))
	require.NoError(t, s.Create(ctx, &domain.WithdrawalRequest{ID: "b", SubmitterID: 1}))
	require.NoError(t, s.Create(ctx, &domain.WithdrawalRequest{ID: "c", SubmitterID: 2}))

	n, err := s.SettleOpen(ctx, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	n, err = s.SettleOpen(ctx, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)
}
