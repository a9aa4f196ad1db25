package domain

import (
	"errors"
	"fmt"
	"time"
)

// RejectReason classifies why a submission was turned away. Rejections are
// expected business conditions and are reported to the user, never retried.
type RejectReason string

const (
	// RejectOutsideWindow: the intake or payout window is closed right now.
	RejectOutsideWindow RejectReason = "outside_window"
	// RejectCooldown: the identifier was accepted within the refractory period.
	RejectCooldown RejectReason = "cooldown_active"
	// RejectDuplicate: another record for the identifier is still live or cooling.
	RejectDuplicate RejectReason = "duplicate"
	// RejectInvalidIdentifier: the provider or validator refused the number.
	RejectInvalidIdentifier RejectReason = "invalid_identifier"
	// RejectBackoffTooLong: the provider demanded a wait beyond the configured cap.
	RejectBackoffTooLong RejectReason = "backoff_too_long"
	// RejectNothingEligible: no records are eligible for payout.
	RejectNothingEligible RejectReason = "nothing_eligible"
)

// RejectedError reports a business-rule rejection as a value.
type RejectedError struct {
	Reason     RejectReason
	RetryAfter time.Duration
}

func (e *RejectedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rejected: %s (retry after %s)", e.Reason, e.RetryAfter)
	}
	return "rejected: " + string(e.Reason)
}

// Code exposes the reason for structured log error codes.
func (e *RejectedError) Code() string { return string(e.Reason) }

// Rejected builds a RejectedError for the given reason.
func Rejected(reason RejectReason) *RejectedError {
	return &RejectedError{Reason: reason}
}

// RateLimitedError carries the provider's backoff instruction. The session
// stays open so the same code can be retried once the wait elapses.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited: retry after %s", e.RetryAfter)
}

// Code identifies the error kind in logs.
func (e *RateLimitedError) Code() string { return "rate_limited" }

// ProviderFaultError wraps a transient provider or network failure.
type ProviderFaultError struct {
	Op  string
	Err error
}

func (e *ProviderFaultError) Error() string {
	return fmt.Sprintf("provider fault during %s: %v", e.Op, e.Err)
}

func (e *ProviderFaultError) Unwrap() error { return e.Err }

// Code identifies the error kind in logs.
func (e *ProviderFaultError) Code() string { return "provider_fault" }

var (
	// ErrConflict is returned by the account store when a record for the
	// identifier is still live, or eligible/paid and not yet past cooldown.
	ErrConflict = errors.New("account record conflict")

	// ErrStaleState is returned when a compare-and-set transition finds the
	// record outside the expected status set. The losing caller absorbs it.
	ErrStaleState = errors.New("stale account status")

	// ErrInvalidCode means the provider refused the supplied login code.
	// The attempt stays in the code-waiting state.
	ErrInvalidCode = errors.New("invalid login code")

	// ErrInvalidSecret means the provider refused the second-factor secret.
	ErrInvalidSecret = errors.New("invalid second-factor secret")

	// ErrBusy means the controller is mid provider call and cannot accept a
	// second event for the same identifier.
	ErrBusy = errors.New("session busy")

	// ErrNoSession means no login attempt is in flight for the submitter.
	ErrNoSession = errors.New("no active session")
)
