package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kasuwa/accbot/core/logger"
	"github.com/kasuwa/accbot/internal/domain"
	"github.com/kasuwa/accbot/internal/phone"
	"github.com/kasuwa/accbot/internal/provider"

	"log/slog"
)

const stampAttempts = 3

var livePending = []domain.Status{domain.StatusPendingCode, domain.StatusPendingSecondFactor}

// Controller is the per-submitter state machine for one login attempt. All
// durable effects go through the stores' atomic primitives; the provider
// handle is owned exclusively and released on every exit path.
type Controller struct {
	deps        Deps
	submitterID int64

	mu            sync.Mutex
	state         State
	busy          bool
	identifier    string
	handle        provider.Handle
	recordCreated bool
	lastEvent     time.Time
}

// NewController builds an unbound controller for one submitter.
func NewController(submitterID int64, deps Deps) *Controller {
	return &Controller{
		deps:        deps,
		submitterID: submitterID,
		state:       StateAwaitingIdentifier,
		lastEvent:   deps.now(),
	}
}

// State returns the current machine state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Identifier returns the bound identifier, empty before Submit succeeds.
func (c *Controller) Identifier() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identifier
}

// SubmitterID returns the owning submitter.
func (c *Controller) SubmitterID() int64 { return c.submitterID }

// IdleSince returns the instant of the last accepted event.
func (c *Controller) IdleSince() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastEvent
}

// begin enforces single-flight and the expected state for an event.
func (c *Controller) begin(expect State) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Terminal() {
		return domain.ErrNoSession
	}
	if c.busy {
		return domain.ErrBusy
	}
	if c.state != expect {
		return domain.ErrNoSession
	}
	c.busy = true
	c.lastEvent = c.deps.now()
	return nil
}

func (c *Controller) end() {
	c.mu.Lock()
	c.busy = false
	c.mu.Unlock()
}

// Submit runs the admission checks, opens a provider session, and requests
// the code challenge. The durable record is created only after the code
// dispatch succeeded, so the store never diverges from "a code was sent".
func (c *Controller) Submit(ctx context.Context, rawIdentifier string) error {
	if err := c.begin(StateAwaitingIdentifier); err != nil {
		return err
	}
	defer c.end()

	id, ok := phone.Normalize(rawIdentifier)
	if !ok {
		return domain.Rejected(domain.RejectInvalidIdentifier)
	}

	now := c.deps.now()
	if !c.deps.Intake.IsOpen(now) {
		return domain.Rejected(domain.RejectOutsideWindow)
	}

	blocked, err := c.deps.Ledger.IsBlocked(ctx, id, now)
	if err != nil {
		return fmt.Errorf("cooldown check: %w", err)
	}
	if blocked {
		return domain.Rejected(domain.RejectCooldown)
	}

	conflict, err := c.deps.Accounts.HasConflict(ctx, id, now)
	if err != nil {
		return fmt.Errorf("conflict check: %w", err)
	}
	if conflict {
		return domain.Rejected(domain.RejectDuplicate)
	}

	h, err := c.deps.Provider.Open(ctx)
	if err != nil {
		return err
	}

	if err := c.deps.Provider.RequestCode(ctx, h, id); err != nil {
		c.deps.Provider.Close(h)
		var rl *domain.RateLimitedError
		switch {
		case errors.Is(err, provider.ErrInvalidIdentifier):
			return domain.Rejected(domain.RejectInvalidIdentifier)
		case errors.As(err, &rl):
			return rl
		default:
			return err
		}
	}

	// The code is out; persist the record now so the stores never claim a
	// dispatch that did not happen.
	if _, err := c.deps.Accounts.Create(ctx, c.submitterID, id, c.deps.now()); err != nil {
		c.deps.Provider.Close(h)
		if errors.Is(err, domain.ErrConflict) {
			return domain.Rejected(domain.RejectDuplicate)
		}
		return fmt.Errorf("create record: %w", err)
	}

	c.mu.Lock()
	c.identifier = id
	c.handle = h
	c.recordCreated = true
	c.state = StateAwaitingCode
	c.lastEvent = c.deps.now()
	c.mu.Unlock()

	logger.SVCSessions.Info("code requested",
		slog.String("event", "session.code_requested"),
		slog.Int64("user_id", c.submitterID),
		slog.String("session", h.ID()),
	)
	return nil
}

// ProvideCode feeds the user-supplied code into the provider.
func (c *Controller) ProvideCode(ctx context.Context, code string) error {
	if err := c.begin(StateAwaitingCode); err != nil {
		return err
	}
	defer c.end()

	c.mu.Lock()
	h := c.handle
	c.mu.Unlock()

	res, err := c.deps.Provider.SubmitCode(ctx, h, code)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateAwaitingCode {
		// A concurrent cancel won while the provider call was in flight;
		// discard our own effect.
		c.closeHandleLocked()
		return nil
	}
	if err != nil {
		return c.providerFailureLocked(ctx, err)
	}

	switch res {
	case provider.SignInInvalidCode:
		return domain.ErrInvalidCode
	case provider.SignInSecondFactorRequired:
		now := c.deps.now()
		_, terr := c.deps.Accounts.Transition(ctx, c.identifier,
			[]domain.Status{domain.StatusPendingCode}, domain.StatusPendingSecondFactor, now)
		if errors.Is(terr, domain.ErrStaleState) {
			c.closeHandleLocked()
			c.state = StateFailed
			return nil
		}
		if terr != nil {
			c.failLocked(ctx)
			return fmt.Errorf("record transition: %w", terr)
		}
		c.state = StateAwaitingSecondFactor
		logger.SVCSessions.Info("second factor required",
			slog.String("event", "session.second_factor"),
			slog.Int64("user_id", c.submitterID),
		)
		return nil
	case provider.SignInOK:
		return c.succeedLocked(ctx, domain.StatusPendingCode)
	default:
		c.failLocked(ctx)
		return &domain.ProviderFaultError{Op: "sign-in", Err: fmt.Errorf("unexpected result %d", res)}
	}
}

// ProvideSecret feeds the second-factor secret into the provider.
func (c *Controller) ProvideSecret(ctx context.Context, secret string) error {
	if err := c.begin(StateAwaitingSecondFactor); err != nil {
		return err
	}
	defer c.end()

	c.mu.Lock()
	h := c.handle
	c.mu.Unlock()

	res, err := c.deps.Provider.SubmitSecondFactor(ctx, h, secret)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateAwaitingSecondFactor {
		c.closeHandleLocked()
		return nil
	}
	if err != nil {
		return c.providerFailureLocked(ctx, err)
	}

	switch res {
	case provider.SignInInvalidSecret:
		return domain.ErrInvalidSecret
	case provider.SignInOK:
		return c.succeedLocked(ctx, domain.StatusPendingSecondFactor)
	default:
		c.failLocked(ctx)
		return &domain.ProviderFaultError{Op: "second-factor", Err: fmt.Errorf("unexpected result %d", res)}
	}
}

// Cancel aborts the attempt from any non-terminal state: the handle is
// released and the record, if created, is rejected. Safe to call
// concurrently with an in-flight provide; the record store's compare-and-set
// decides the winner and the loser absorbs StaleState.
func (c *Controller) Cancel(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Terminal() {
		return nil
	}
	c.failLocked(ctx)
	logger.SVCSessions.Info("session cancelled",
		slog.String("event", "session.cancel"),
		slog.Int64("user_id", c.submitterID),
		slog.String("identifier", c.identifier),
	)
	return nil
}

// providerFailureLocked maps a provider error to a state change. Rate limits
// within the cap keep the session open; everything else is terminal.
func (c *Controller) providerFailureLocked(ctx context.Context, err error) error {
	var rl *domain.RateLimitedError
	if errors.As(err, &rl) {
		if rl.RetryAfter <= c.deps.MaxBackoff {
			// Same session stays usable once the wait elapses; no need
			// to re-request a code.
			return rl
		}
		c.failLocked(ctx)
		return &domain.RejectedError{Reason: domain.RejectBackoffTooLong, RetryAfter: rl.RetryAfter}
	}
	c.failLocked(ctx)
	return err
}

// succeedLocked finalizes a completed login: record to eligible, ledger
// stamped strictly after the login, handle released.
func (c *Controller) succeedLocked(ctx context.Context, from domain.Status) error {
	now := c.deps.now()
	_, err := c.deps.Accounts.Transition(ctx, c.identifier,
		[]domain.Status{from}, domain.StatusEligible, now)
	if errors.Is(err, domain.ErrStaleState) {
		// A cancel or sweep finalized the record first; its decision
		// stands and the ledger must not be stamped.
		c.closeHandleLocked()
		c.state = StateFailed
		return nil
	}
	if err != nil {
		c.closeHandleLocked()
		c.state = StateFailed
		return fmt.Errorf("record transition: %w", err)
	}

	c.stampLocked(ctx, now)
	c.closeHandleLocked()
	c.state = StateSucceeded
	logger.SVCSessions.Info("login completed",
		slog.String("event", "session.succeeded"),
		slog.Int64("user_id", c.submitterID),
		slog.String("identifier", c.identifier),
	)
	return nil
}

// stampLocked writes the cooldown entry with a short bounded retry; the
// ledger itself never retries. A persistent failure is logged and accepted:
// the record is already eligible and the stamp can be replayed by hand.
func (c *Controller) stampLocked(ctx context.Context, now time.Time) {
	var err error
	for attempt := 1; attempt <= stampAttempts; attempt++ {
		if err = c.deps.Ledger.Stamp(ctx, c.identifier, now); err == nil {
			return
		}
	}
	logger.SVCSessions.Error("cooldown stamp failed",
		slog.String("event", "session.stamp"),
		slog.String("identifier", c.identifier),
		slog.Int("attempts", stampAttempts),
		slog.String("err", err.Error()),
	)
}

// failLocked releases the handle and rejects the record if one was created.
func (c *Controller) failLocked(ctx context.Context) {
	c.closeHandleLocked()
	if c.recordCreated {
		_, err := c.deps.Accounts.Transition(ctx, c.identifier, livePending, domain.StatusRejected, c.deps.now())
		if err != nil && !errors.Is(err, domain.ErrStaleState) {
			logger.SVCSessions.Error("record reject failed",
				slog.String("event", "session.reject"),
				slog.String("identifier", c.identifier),
				slog.String("err", err.Error()),
			)
		}
	}
	c.state = StateFailed
}

// closeHandleLocked releases the provider session exactly once.
func (c *Controller) closeHandleLocked() {
	if c.handle == nil {
		return
	}
	c.deps.Provider.Close(c.handle)
	c.handle = nil
}
