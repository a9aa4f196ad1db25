// Package provider abstracts the external authentication service whose login
// ceremony the session controller drives. Outcomes are closed result values,
// never exceptions-as-control-flow.
package provider

import (
	"context"
	"errors"
)

// Handle is a live provider session. It is exclusively owned by one session
// controller and must be closed on every exit path.
type Handle interface {
	// ID identifies the session for logging.
	ID() string
}

// SignInResult is the closed outcome set of a sign-in step.
type SignInResult int

const (
	// SignInOK: the login completed and the session is authorized.
	SignInOK SignInResult = iota
	// SignInSecondFactorRequired: a cloud password protects the account.
	SignInSecondFactorRequired
	// SignInInvalidCode: the code was wrong; the session stays usable.
	SignInInvalidCode
	// SignInInvalidSecret: the second-factor secret was wrong.
	SignInInvalidSecret
)

// ErrInvalidIdentifier means the provider refused the phone number outright.
var ErrInvalidIdentifier = errors.New("provider: invalid identifier")

// Client drives the provider's multi-step login ceremony. Any error other
// than the typed ones documented per method is a transient provider fault.
type Client interface {
	// Open establishes a fresh provider session.
	Open(ctx context.Context) (Handle, error)

	// RequestCode asks the provider to dispatch a login code to the
	// identifier. Typed failures: ErrInvalidIdentifier,
	// *domain.RateLimitedError.
	RequestCode(ctx context.Context, h Handle, identifier string) error

	// SubmitCode completes sign-in with the dispatched code. Typed
	// failure: *domain.RateLimitedError.
	SubmitCode(ctx context.Context, h Handle, code string) (SignInResult, error)

	// SubmitSecondFactor completes a password-protected sign-in.
	SubmitSecondFactor(ctx context.Context, h Handle, secret string) (SignInResult, error)

	// Close tears down the session. Safe to call once per handle on any
	// exit path; a dangling authorized session is a security leak.
	Close(h Handle)
}
