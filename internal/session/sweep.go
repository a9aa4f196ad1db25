package session

import (
	"context"
	"errors"
	"time"

	"github.com/kasuwa/accbot/core/logger"
	"github.com/kasuwa/accbot/internal/domain"
	"github.com/kasuwa/accbot/internal/store"

	"log/slog"
)

// Sweeper cancels controllers left idle past the configured bound and
// rejects orphaned pending records that survived a crash without a
// controller. It runs on a ticker until stopped.
type Sweeper struct {
	arena    *Arena
	accounts store.Accounts
	idle     time.Duration
	interval time.Duration
	now      func() time.Time

	// OnExpire, when set, is told which submitter lost their session.
	OnExpire func(submitterID int64)

	done chan struct{}
}

// NewSweeper builds a sweeper over the arena and record store.
func NewSweeper(arena *Arena, accounts store.Accounts, idle, interval time.Duration, now func() time.Time) *Sweeper {
	if now == nil {
		now = time.Now
	}
	return &Sweeper{
		arena:    arena,
		accounts: accounts,
		idle:     idle,
		interval: interval,
		now:      now,
		done:     make(chan struct{}),
	}
}

// Start launches the sweep loop.
func (s *Sweeper) Start() {
	go s.run()
	logger.SWEEP.Info("sweep started",
		slog.String("event", "sweep.start"),
		slog.Duration("idle", s.idle),
		slog.Duration("interval", s.interval),
	)
}

// Stop terminates the sweep loop.
func (s *Sweeper) Stop() {
	close(s.done)
}

func (s *Sweeper) run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			s.Sweep(ctx)
			cancel()
		}
	}
}

// Sweep performs one pass. Exported so tests and operators can trigger it
// deterministically.
func (s *Sweeper) Sweep(ctx context.Context) {
	cutoff := s.now().Add(-s.idle)

	expired := 0
	for _, c := range s.arena.Controllers() {
		if c.State().Terminal() {
			s.arena.Remove(c.SubmitterID())
			continue
		}
		if c.IdleSince().After(cutoff) {
			continue
		}
		_ = c.Cancel(ctx)
		s.arena.Remove(c.SubmitterID())
		if s.OnExpire != nil {
			s.OnExpire(c.SubmitterID())
		}
		expired++
	}

	// Records without a live controller: crash leftovers. The cancel calls
	// above already rejected their own records, so losses here are absorbed.
	orphans, err := s.accounts.OrphanedPending(ctx, cutoff)
	if err != nil {
		logger.SWEEP.Error("orphan scan failed",
			slog.String("event", "sweep.orphans"),
			slog.String("err", err.Error()),
		)
		return
	}
	rejected := 0
	for _, rec := range orphans {
		_, terr := s.accounts.Transition(ctx, rec.Identifier,
			[]domain.Status{domain.StatusPendingCode, domain.StatusPendingSecondFactor},
			domain.StatusRejected, s.now())
		if terr != nil && !errors.Is(terr, domain.ErrStaleState) {
			logger.SWEEP.Error("orphan reject failed",
				slog.String("event", "sweep.orphans"),
				slog.String("identifier", rec.Identifier),
				slog.String("err", terr.Error()),
			)
			continue
		}
		if terr == nil {
			rejected++
		}
	}

	if expired > 0 || rejected > 0 {
		logger.SWEEP.Info("sweep summary",
			slog.String("event", "sweep.summary"),
			slog.Int("expired_sessions", expired),
			slog.Int("orphans_rejected", rejected),
		)
	}
}
