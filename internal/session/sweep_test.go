package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kasuwa/accbot/internal/domain"
)

func TestArenaSingleControllerPerSubmitter(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	arena := NewArena(f.deps)

	c1, err := arena.Begin(7)
	require.NoError(t, err)

	// A second Begin for the same submitter hands back the live controller.
	c2, err := arena.Begin(7)
	assert.ErrorIs(t, err, domain.ErrBusy)
	assert.Same(t, c1, c2)

	// Once the first attempt is terminal a fresh controller replaces it.
	require.NoError(t, c1.Submit(ctx, testNumber))
	require.NoError(t, c1.Cancel(ctx))
	c3, err := arena.Begin(7)
	require.NoError(t, err)
	assert.NotSame(t, c1, c3)
	assert.Equal(t, 1, arena.Len())
}

func TestSweepExpiresIdleControllers(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	arena := NewArena(f.deps)

	c, err := arena.Begin(7)
	require.NoError(t, err)
	require.NoError(t, c.Submit(ctx, testNumber))

	var expired []int64
	sw := NewSweeper(arena, f.accounts, 15*time.Minute, time.Minute, f.deps.Now)
	sw.OnExpire = func(id int64) { expired = append(expired, id) }

	// Not idle long enough: nothing happens.
	f.advance(10 * time.Minute)
	sw.Sweep(ctx)
	assert.Equal(t, 1, arena.Len())
	assert.Empty(t, expired)

	f.advance(10 * time.Minute)
	sw.Sweep(ctx)
	assert.Zero(t, arena.Len())
	assert.Equal(t, []int64{7}, expired)
	assert.Equal(t, StateFailed, c.State())

	rec, _ := f.accounts.Find(testNumber)
	assert.Equal(t, domain.StatusRejected, rec.Status)
	opened, closed := f.prov.counts()
	assert.Equal(t, opened, closed)
}

func TestSweepDropsTerminalControllersQuietly(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	arena := NewArena(f.deps)

	c, err := arena.Begin(7)
	require.NoError(t, err)
	require.NoError(t, c.Submit(ctx, testNumber))
	require.NoError(t, c.ProvideCode(ctx, "12345"))
	require.Equal(t, StateSucceeded, c.State())

	var expired []int64
	sw := NewSweeper(arena, f.accounts, 15*time.Minute, time.Minute, f.deps.Now)
	sw.OnExpire = func(id int64) { expired = append(expired, id) }

	sw.Sweep(ctx)
	assert.Zero(t, arena.Len())
	assert.Empty(t, expired, "a finished attempt is not an expiry")

	// The completed record is untouched.
	rec, _ := f.accounts.Find(testNumber)
	assert.Equal(t, domain.StatusEligible, rec.Status)
}

func TestSweepRejectsOrphanedPendingRecords(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	arena := NewArena(f.deps)

	// A pending record with no controller behind it, as after a crash.
	_, err := f.accounts.Create(ctx, 7, testNumber, f.clock.Add(-time.Hour))
	require.NoError(t, err)

	// A fresh pending record stays alone.
	_, err = f.accounts.Create(ctx, 8, "+2348100000002", *f.clock)
	require.NoError(t, err)

	sw := NewSweeper(arena, f.accounts, 15*time.Minute, time.Minute, f.deps.Now)
	sw.Sweep(ctx)

	rec, _ := f.accounts.Find(testNumber)
	assert.Equal(t, domain.StatusRejected, rec.Status)

	rec, _ = f.accounts.Find("+2348100000002")
	assert.Equal(t, domain.StatusPendingCode, rec.Status)
}
