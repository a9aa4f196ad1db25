package phone

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeAcceptsInternationalForms(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"+2348100000001", "+2348100000001"},
		{" +234 810 000 0001 ", "+2348100000001"},
		{"+234-810-000-0001", "+2348100000001"},
		{"+234.810.000.0001", "+2348100000001"},
		{"+234(810)0000001", "+2348100000001"},
		{"002348100000001", "+2348100000001"},
		{"+79991234567", "+79991234567"},
	}
	for _, tc := range cases {
		got, ok := Normalize(tc.in)
		assert.True(t, ok, "input %q", tc.in)
		assert.Equal(t, tc.want, got, "input %q", tc.in)
	}
}

func TestNormalizeRejectsGarbage(t *testing.T) {
	for _, in := range []string{
		"",
		"hello",
		"8100000001",    // no prefix
		"+123",          // too short
		"+12345678901234567", // too long
		"+234810x0000001",
		"+",
	} {
		_, ok := Normalize(in)
		assert.False(t, ok, "input %q", in)
	}
}
