// Package session drives one identifier through the provider's login
// ceremony. A Controller owns exactly one provider handle for one submitter's
// in-flight attempt; the Arena indexes live controllers by submitter and the
// Sweeper cancels the ones left idle past the configured bound.
package session

import (
	"time"

	"github.com/kasuwa/accbot/internal/gate"
	"github.com/kasuwa/accbot/internal/provider"
	"github.com/kasuwa/accbot/internal/store"
)

// State is the controller's position in the login ceremony.
type State int

const (
	// StateAwaitingIdentifier: the controller is not yet bound to a number.
	StateAwaitingIdentifier State = iota
	// StateAwaitingCode: a code was dispatched and is awaited from the user.
	StateAwaitingCode
	// StateAwaitingSecondFactor: the provider demanded a cloud password.
	StateAwaitingSecondFactor
	// StateSucceeded: terminal, the login completed.
	StateSucceeded
	// StateFailed: terminal, the attempt ended without a login.
	StateFailed
)

// Terminal reports whether the controller has finished.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

func (s State) String() string {
	switch s {
	case StateAwaitingIdentifier:
		return "awaiting_identifier"
	case StateAwaitingCode:
		return "awaiting_code"
	case StateAwaitingSecondFactor:
		return "awaiting_second_factor"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Deps are the collaborators a Controller works against. Now is the injected
// clock; tests replace it to avoid time mocking tricks.
type Deps struct {
	Provider provider.Client
	Accounts store.Accounts
	Ledger   store.Ledger
	Intake   gate.Window

	// MaxBackoff caps the provider's rate-limit wait; beyond it the
	// controller cancels itself instead of keeping the session open.
	MaxBackoff time.Duration

	Now func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}
