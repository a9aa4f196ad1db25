package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kasuwa/accbot/internal/domain"
	"github.com/kasuwa/accbot/internal/gate"
	"github.com/kasuwa/accbot/internal/provider"
	"github.com/kasuwa/accbot/internal/store"
)

const (
	testNumber   = "+2348100000001"
	testCooldown = 7 * 24 * time.Hour
)

type fakeHandle struct{ id string }

func (h *fakeHandle) ID() string { return h.id }

// fakeProvider counts handle opens and closes so tests can assert that every
// exit path releases exactly what it acquired.
type fakeProvider struct {
	mu     sync.Mutex
	opened int
	closed int

	openErr    error
	requestErr error

	codeResult provider.SignInResult
	codeErr    error

	secretResult provider.SignInResult
	secretErr    error

	// blockCode, when set, stalls SubmitCode until released.
	blockCode chan struct{}
}

func (p *fakeProvider) Open(ctx context.Context) (provider.Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.openErr != nil {
		return nil, p.openErr
	}
	p.opened++
	return &fakeHandle{id: fmt.Sprintf("h%d", p.opened)}, nil
}

func (p *fakeProvider) RequestCode(ctx context.Context, h provider.Handle, identifier string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requestErr
}

func (p *fakeProvider) SubmitCode(ctx context.Context, h provider.Handle, code string) (provider.SignInResult, error) {
	p.mu.Lock()
	block := p.blockCode
	p.mu.Unlock()
	if block != nil {
		<-block
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.codeResult, p.codeErr
}

func (p *fakeProvider) SubmitSecondFactor(ctx context.Context, h provider.Handle, secret string) (provider.SignInResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.secretResult, p.secretErr
}

func (p *fakeProvider) Close(h provider.Handle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed++
}

func (p *fakeProvider) counts() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.opened, p.closed
}

type fixture struct {
	prov     *fakeProvider
	accounts *store.MemoryAccounts
	ledger   *store.MemoryLedger
	clock    *time.Time
	deps     Deps
}

func newFixture() *fixture {
	// A Saturday, mid-window.
	now := time.Date(2026, 3, 14, 11, 0, 0, 0, time.UTC)
	f := &fixture{
		prov:     &fakeProvider{codeResult: provider.SignInOK, secretResult: provider.SignInOK},
		accounts: store.NewMemoryAccounts(testCooldown),
		ledger:   store.NewMemoryLedger(testCooldown),
		clock:    &now,
	}
	f.deps = Deps{
		Provider:   f.prov,
		Accounts:   f.accounts,
		Ledger:     f.ledger,
		Intake:     gate.Window{Start: 8 * 60, End: 22 * 60},
		MaxBackoff: 30 * time.Minute,
		Now:        func() time.Time { return *f.clock },
	}
	return f
}

func (f *fixture) advance(d time.Duration) {
	*f.clock = f.clock.Add(d)
}

func TestHappyPath(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	c := NewController(1, f.deps)

	require.NoError(t, c.Submit(ctx, " +234 810 000 0001 "))
	assert.Equal(t, StateAwaitingCode, c.State())
	assert.Equal(t, testNumber, c.Identifier())

	rec, ok := f.accounts.Find(testNumber)
	require.True(t, ok)
	assert.Equal(t, domain.StatusPendingCode, rec.Status)

	require.NoError(t, c.ProvideCode(ctx, "12345"))
	assert.Equal(t, StateSucceeded, c.State())

	rec, _ = f.accounts.Find(testNumber)
	assert.Equal(t, domain.StatusEligible, rec.Status)

	blocked, err := f.ledger.IsBlocked(ctx, testNumber, *f.clock)
	require.NoError(t, err)
	assert.True(t, blocked)

	opened, closed := f.prov.counts()
	assert.Equal(t, 1, opened)
	assert.Equal(t, 1, closed)
}

func TestInvalidCodeKeepsSessionOpen(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.prov.codeResult = provider.SignInInvalidCode
	c := NewController(1, f.deps)

	require.NoError(t, c.Submit(ctx, testNumber))
	err := c.ProvideCode(ctx, "00000")
	assert.ErrorIs(t, err, domain.ErrInvalidCode)
	assert.Equal(t, StateAwaitingCode, c.State())

	// The handle stays open for the retry.
	opened, closed := f.prov.counts()
	assert.Equal(t, 1, opened)
	assert.Equal(t, 0, closed)

	f.prov.mu.Lock()
	f.prov.codeResult = provider.SignInOK
	f.prov.mu.Unlock()

	require.NoError(t, c.ProvideCode(ctx, "12345"))
	assert.Equal(t, StateSucceeded, c.State())
	_, closed = f.prov.counts()
	assert.Equal(t, 1, closed)
}

func TestSecondFactorPath(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.prov.codeResult = provider.SignInSecondFactorRequired
	c := NewController(1, f.deps)

	require.NoError(t, c.Submit(ctx, testNumber))
	require.NoError(t, c.ProvideCode(ctx, "12345"))
	assert.Equal(t, StateAwaitingSecondFactor, c.State())

	rec, _ := f.accounts.Find(testNumber)
	assert.Equal(t, domain.StatusPendingSecondFactor, rec.Status)

	require.NoError(t, c.ProvideSecret(ctx, "hunter2"))
	assert.Equal(t, StateSucceeded, c.State())

	rec, _ = f.accounts.Find(testNumber)
	assert.Equal(t, domain.StatusEligible, rec.Status)

	blocked, _ := f.ledger.IsBlocked(ctx, testNumber, *f.clock)
	assert.True(t, blocked)

	opened, closed := f.prov.counts()
	assert.Equal(t, 1, opened)
	assert.Equal(t, 1, closed)
}

func TestInvalidSecretKeepsSessionOpen(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.prov.codeResult = provider.SignInSecondFactorRequired
	f.prov.secretResult = provider.SignInInvalidSecret
	c := NewController(1, f.deps)

	require.NoError(t, c.Submit(ctx, testNumber))
	require.NoError(t, c.ProvideCode(ctx, "12345"))

	err := c.ProvideSecret(ctx, "wrong")
	assert.ErrorIs(t, err, domain.ErrInvalidSecret)
	assert.Equal(t, StateAwaitingSecondFactor, c.State())
}

func TestRejectionsBeforeProviderContact(t *testing.T) {
	ctx := context.Background()

	t.Run("invalid identifier", func(t *testing.T) {
		f := newFixture()
		c := NewController(1, f.deps)
		err := c.Submit(ctx, "not a number")
		var rej *domain.RejectedError
		require.ErrorAs(t, err, &rej)
		assert.Equal(t, domain.RejectInvalidIdentifier, rej.Reason)
		opened, _ := f.prov.counts()
		assert.Zero(t, opened)
		assert.Equal(t, StateAwaitingIdentifier, c.State())
	})

	t.Run("outside window", func(t *testing.T) {
		f := newFixture()
		*f.clock = time.Date(2026, 3, 14, 23, 30, 0, 0, time.UTC)
		c := NewController(1, f.deps)
		err := c.Submit(ctx, testNumber)
		var rej *domain.RejectedError
		require.ErrorAs(t, err, &rej)
		assert.Equal(t, domain.RejectOutsideWindow, rej.Reason)
		opened, _ := f.prov.counts()
		assert.Zero(t, opened)
	})

	t.Run("cooldown active", func(t *testing.T) {
		f := newFixture()
		require.NoError(t, f.ledger.Stamp(ctx, testNumber, f.clock.Add(-3*24*time.Hour)))
		c := NewController(1, f.deps)
		err := c.Submit(ctx, testNumber)
		var rej *domain.RejectedError
		require.ErrorAs(t, err, &rej)
		assert.Equal(t, domain.RejectCooldown, rej.Reason)
		opened, _ := f.prov.counts()
		assert.Zero(t, opened)
	})

	t.Run("cooldown lapsed", func(t *testing.T) {
		f := newFixture()
		require.NoError(t, f.ledger.Stamp(ctx, testNumber, f.clock.Add(-testCooldown-time.Hour)))
		c := NewController(1, f.deps)
		assert.NoError(t, c.Submit(ctx, testNumber))
	})

	t.Run("duplicate live record", func(t *testing.T) {
		f := newFixture()
		_, err := f.accounts.Create(ctx, 99, testNumber, *f.clock)
		require.NoError(t, err)
		c := NewController(1, f.deps)
		err = c.Submit(ctx, testNumber)
		var rej *domain.RejectedError
		require.ErrorAs(t, err, &rej)
		assert.Equal(t, domain.RejectDuplicate, rej.Reason)
		opened, _ := f.prov.counts()
		assert.Zero(t, opened)
	})
}

func TestProviderFailureReleasesEverything(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.prov.codeErr = errors.New("connection reset")
	c := NewController(1, f.deps)

	require.NoError(t, c.Submit(ctx, testNumber))
	err := c.ProvideCode(ctx, "12345")
	assert.Error(t, err)
	assert.Equal(t, StateFailed, c.State())

	rec, _ := f.accounts.Find(testNumber)
	assert.Equal(t, domain.StatusRejected, rec.Status)

	blocked, _ := f.ledger.IsBlocked(ctx, testNumber, *f.clock)
	assert.False(t, blocked, "failed login must not stamp the ledger")

	opened, closed := f.prov.counts()
	assert.Equal(t, opened, closed)
}

func TestRequestCodeRateLimited(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.prov.requestErr = &domain.RateLimitedError{RetryAfter: time.Minute}
	c := NewController(1, f.deps)

	err := c.Submit(ctx, testNumber)
	var rl *domain.RateLimitedError
	require.ErrorAs(t, err, &rl)

	// No record was created and the handle is gone; the number can be
	// resubmitted later.
	_, ok := f.accounts.Find(testNumber)
	assert.False(t, ok)
	opened, closed := f.prov.counts()
	assert.Equal(t, opened, closed)
	assert.Equal(t, StateAwaitingIdentifier, c.State())
}

func TestCodeRateLimitWithinCapKeepsSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.prov.codeErr = &domain.RateLimitedError{RetryAfter: 5 * time.Minute}
	c := NewController(1, f.deps)

	require.NoError(t, c.Submit(ctx, testNumber))
	err := c.ProvideCode(ctx, "12345")
	var rl *domain.RateLimitedError
	require.ErrorAs(t, err, &rl)
	assert.Equal(t, StateAwaitingCode, c.State())

	// Wait out the backoff and finish on the same session.
	f.advance(6 * time.Minute)
	f.prov.mu.Lock()
	f.prov.codeErr = nil
	f.prov.mu.Unlock()

	require.NoError(t, c.ProvideCode(ctx, "12345"))
	assert.Equal(t, StateSucceeded, c.State())
	opened, closed := f.prov.counts()
	assert.Equal(t, 1, opened)
	assert.Equal(t, 1, closed)
}

func TestCodeRateLimitBeyondCapCancels(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.prov.codeErr = &domain.RateLimitedError{RetryAfter: 2 * time.Hour}
	c := NewController(1, f.deps)

	require.NoError(t, c.Submit(ctx, testNumber))
	err := c.ProvideCode(ctx, "12345")
	var rej *domain.RejectedError
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, domain.RejectBackoffTooLong, rej.Reason)
	assert.Equal(t, 2*time.Hour, rej.RetryAfter)
	assert.Equal(t, StateFailed, c.State())

	rec, _ := f.accounts.Find(testNumber)
	assert.Equal(t, domain.StatusRejected, rec.Status)
	opened, closed := f.prov.counts()
	assert.Equal(t, opened, closed)
}

func TestCancelReleasesHandleAndRejectsRecord(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	c := NewController(1, f.deps)

	require.NoError(t, c.Submit(ctx, testNumber))
	require.NoError(t, c.Cancel(ctx))
	assert.Equal(t, StateFailed, c.State())

	rec, _ := f.accounts.Find(testNumber)
	assert.Equal(t, domain.StatusRejected, rec.Status)
	opened, closed := f.prov.counts()
	assert.Equal(t, 1, opened)
	assert.Equal(t, 1, closed)

	// Cancelling again is a no-op.
	assert.NoError(t, c.Cancel(ctx))
	_, closed = f.prov.counts()
	assert.Equal(t, 1, closed)
}

func TestCancelDuringInFlightProvide(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	block := make(chan struct{})
	c := NewController(1, f.deps)

	require.NoError(t, c.Submit(ctx, testNumber))

	f.prov.mu.Lock()
	f.prov.blockCode = block
	f.prov.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- c.ProvideCode(ctx, "12345") }()

	// Let the provider call start, then cancel underneath it.
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, c.Cancel(ctx))
	close(block)

	require.NoError(t, <-done)
	assert.Equal(t, StateFailed, c.State())

	rec, _ := f.accounts.Find(testNumber)
	assert.Equal(t, domain.StatusRejected, rec.Status)

	blocked, _ := f.ledger.IsBlocked(ctx, testNumber, *f.clock)
	assert.False(t, blocked, "cancel won; the ledger must stay clean")

	// Exactly one close despite two paths racing for it.
	opened, closed := f.prov.counts()
	assert.Equal(t, 1, opened)
	assert.Equal(t, 1, closed)
}

func TestSingleFlightRejectsConcurrentEvents(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	block := make(chan struct{})
	c := NewController(1, f.deps)

	require.NoError(t, c.Submit(ctx, testNumber))

	f.prov.mu.Lock()
	f.prov.blockCode = block
	f.prov.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- c.ProvideCode(ctx, "12345") }()
	time.Sleep(10 * time.Millisecond)

	err := c.ProvideCode(ctx, "67890")
	assert.ErrorIs(t, err, domain.ErrBusy)

	close(block)
	require.NoError(t, <-done)
}

func TestEventInWrongStateIsRefused(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	c := NewController(1, f.deps)

	assert.ErrorIs(t, c.ProvideCode(ctx, "12345"), domain.ErrNoSession)
	assert.ErrorIs(t, c.ProvideSecret(ctx, "x"), domain.ErrNoSession)

	require.NoError(t, c.Submit(ctx, testNumber))
	assert.ErrorIs(t, c.Submit(ctx, testNumber), domain.ErrNoSession)
	assert.ErrorIs(t, c.ProvideSecret(ctx, "x"), domain.ErrNoSession)
}

type failingLedger struct{}

func (failingLedger) IsBlocked(ctx context.Context, identifier string, now time.Time) (bool, error) {
	return false, nil
}

func (failingLedger) Stamp(ctx context.Context, identifier string, now time.Time) error {
	return errors.New("ledger down")
}

func TestStampFailureDoesNotFailTheLogin(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.deps.Ledger = failingLedger{}
	c := NewController(1, f.deps)

	require.NoError(t, c.Submit(ctx, testNumber))
	require.NoError(t, c.ProvideCode(ctx, "12345"))
	assert.Equal(t, StateSucceeded, c.State())

	rec, _ := f.accounts.Find(testNumber)
	assert.Equal(t, domain.StatusEligible, rec.Status)
}
