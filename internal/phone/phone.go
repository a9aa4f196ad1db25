// Package phone normalizes submitted phone identifiers into the canonical
// international form used as the ledger and record store key.
package phone

import "strings"

const (
	minDigits = 7
	maxDigits = 15
)

// Normalize canonicalizes a submitted phone number: spaces, dots and dashes
// are stripped, a leading 00 becomes +. It returns false when the result is
// not a plus-prefixed number of 7 to 15 digits (E.164 bounds).
func Normalize(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", false
	}
	var b strings.Builder
	b.Grow(len(s))
	for i, r := range s {
		switch {
		case r == '+' && i == 0:
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '.' || r == '(' || r == ')':
			// separator noise, skip
		default:
			return "", false
		}
	}
	s = b.String()
	if strings.HasPrefix(s, "00") {
		s = "+" + s[2:]
	}
	if !strings.HasPrefix(s, "+") {
		return "", false
	}
	digits := s[1:]
	if len(digits) < minDigits || len(digits) > maxDigits {
		return "", false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	return s, true
}
