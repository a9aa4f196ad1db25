// Package gate decides whether the intake and payout windows are open.
// Windows come from configuration at call time; there are no process-wide
// toggles, so behaviour is a pure function of the injected clock.
package gate

import (
	"fmt"
	"time"
)

// Window is a daily admission interval in a fixed timezone.
// Start and End are minutes since local midnight. A window with
// Start <= End is the closed interval [Start, End]; a window with
// Start > End crosses midnight.
type Window struct {
	Start int
	End   int
	Loc   *time.Location
}

// Parse builds a Window from "HH:MM" bounds and an IANA timezone name.
func Parse(start, end, tz string) (Window, error) {
	s, err := parseMinute(start)
	if err != nil {
		return Window{}, fmt.Errorf("window start: %w", err)
	}
	e, err := parseMinute(end)
	if err != nil {
		return Window{}, fmt.Errorf("window end: %w", err)
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return Window{}, fmt.Errorf("window timezone: %w", err)
	}
	return Window{Start: s, End: e, Loc: loc}, nil
}

// IsOpen reports whether now falls inside the window. Callers outside the
// window get a business rejection, not an error.
func (w Window) IsOpen(now time.Time) bool {
	loc := w.Loc
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	m := local.Hour()*60 + local.Minute()
	if w.Start <= w.End {
		return m >= w.Start && m <= w.End
	}
	return m >= w.Start || m <= w.End
}

// OpensAt returns the window's opening time as "HH:MM" for user messages.
func (w Window) OpensAt() string {
	return fmt.Sprintf("%02d:%02d", w.Start/60, w.Start%60)
}

func parseMinute(v string) (int, error) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, fmt.Errorf("expected HH:MM, got %q", v)
	}
	return t.Hour()*60 + t.Minute(), nil
}
