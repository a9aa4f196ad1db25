package withdraw

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kasuwa/accbot/internal/domain"
	"github.com/kasuwa/accbot/internal/gate"
	"github.com/kasuwa/accbot/internal/notify"
	"github.com/kasuwa/accbot/internal/store"
)

const week = 7 * 24 * time.Hour

type fixture struct {
	accounts    *store.MemoryAccounts
	withdrawals *store.MemoryWithdrawals
	recorder    *notify.Recorder
	now         time.Time
	svc         *Service
}

func newFixture() *fixture {
	f := &fixture{
		accounts:    store.NewMemoryAccounts(week),
		withdrawals: store.NewMemoryWithdrawals(),
		recorder:    notify.NewRecorder(),
		// Mid payout window.
		now: time.Date(2026, 3, 14, 21, 0, 0, 0, time.UTC),
	}
	payout := gate.Window{Start: 20 * 60, End: 22 * 60}
	f.svc = New(f.accounts, f.withdrawals, f.recorder, payout, func() time.Time { return f.now })
	return f
}

func (f *fixture) makeEligible(t *testing.T, submitterID int64, ids ...string) {
	t.Helper()
	ctx := context.Background()
	for _, id := range ids {
		_, err := f.accounts.Create(ctx, submitterID, id, f.now)
		require.NoError(t, err)
		_, err = f.accounts.Transition(ctx, id,
			[]domain.Status{domain.StatusPendingCode}, domain.StatusEligible, f.now)
		require.NoError(t, err)
	}
}

func TestEligibleEmptyRejects(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Eligible(context.Background(), 7)
	var rej *domain.RejectedError
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, domain.RejectNothingEligible, rej.Reason)
}

func TestRequestOutsideWindow(t *testing.T) {
	f := newFixture()
	f.makeEligible(t, 7, "+2348100000001")
	f.now = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	_, err := f.svc.Request(context.Background(), 7, "musa", "GTB 0123456789")
	var rej *domain.RejectedError
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, domain.RejectOutsideWindow, rej.Reason)
	assert.Empty(t, f.withdrawals.Requests)
}

func TestRequestRecordsAndNotifiesOperator(t *testing.T) {
	f := newFixture()
	f.makeEligible(t, 7, "+2348100000001", "+2348100000002")

	req, err := f.svc.Request(context.Background(), 7, "musa", "  GTB 0123456789  ")
	require.NoError(t, err)
	assert.NotEmpty(t, req.ID)
	assert.EqualValues(t, 7, req.SubmitterID)
	assert.Equal(t, 2, req.NumAccounts)
	assert.Equal(t, "GTB 0123456789", req.BankDetails)
	assert.Equal(t, f.now, req.RequestedAt)

	require.Len(t, f.withdrawals.Requests, 1)

	msgs := f.recorder.OperatorMessages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "@musa")
	assert.Contains(t, msgs[0], "+2348100000001")
	assert.Contains(t, msgs[0], "/mark_paid 7")
}

func TestMarkPaidSettlesAccountsAndRequests(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.makeEligible(t, 7, "+2348100000001", "+2348100000002")

	_, err := f.svc.Request(ctx, 7, "musa", "GTB 0123456789")
	require.NoError(t, err)

	settled, err := f.svc.MarkPaid(ctx, 7)
	require.NoError(t, err)
	assert.EqualValues(t, 2, settled)

	for _, id := range []string{"+2348100000001", "+2348100000002"} {
		rec, ok := f.accounts.Find(id)
		require.True(t, ok)
		assert.Equal(t, domain.StatusPaid, rec.Status)
	}
	assert.True(t, f.withdrawals.Requests[0].Paid)

	// Nothing left to settle on a second pass.
	_, err = f.svc.MarkPaid(ctx, 7)
	var rej *domain.RejectedError
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, domain.RejectNothingEligible, rej.Reason)
}
