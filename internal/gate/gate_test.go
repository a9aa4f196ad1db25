package gate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(hour, min int, loc *time.Location) time.Time {
	return time.Date(2026, 3, 14, hour, min, 0, 0, loc)
}

func TestParseRejectsBadInput(t *testing.T) {
	_, err := Parse("8am", "22:00", "UTC")
	assert.Error(t, err)

	_, err = Parse("08:00", "22:00", "Mars/Olympus")
	assert.Error(t, err)
}

func TestWindowClosedInterval(t *testing.T) {
	w, err := Parse("08:00", "22:00", "UTC")
	require.NoError(t, err)

	assert.False(t, w.IsOpen(at(7, 59, time.UTC)))
	assert.True(t, w.IsOpen(at(8, 0, time.UTC)))
	assert.True(t, w.IsOpen(at(15, 30, time.UTC)))
	assert.True(t, w.IsOpen(at(22, 0, time.UTC)))
	assert.False(t, w.IsOpen(at(22, 1, time.UTC)))
}

func TestWindowCrossesMidnight(t *testing.T) {
	w, err := Parse("22:00", "02:00", "UTC")
	require.NoError(t, err)

	assert.True(t, w.IsOpen(at(23, 0, time.UTC)))
	assert.True(t, w.IsOpen(at(1, 59, time.UTC)))
	assert.False(t, w.IsOpen(at(12, 0, time.UTC)))
	assert.True(t, w.IsOpen(at(22, 0, time.UTC)))
	assert.True(t, w.IsOpen(at(2, 0, time.UTC)))
	assert.False(t, w.IsOpen(at(2, 1, time.UTC)))
}

func TestWindowHonoursTimezone(t *testing.T) {
	w, err := Parse("08:00", "22:00", "Africa/Lagos")
	require.NoError(t, err)

	// 07:30 UTC is 08:30 in Lagos (UTC+1).
	assert.True(t, w.IsOpen(at(7, 30, time.UTC)))
	// 21:30 UTC is 22:30 in Lagos.
	assert.False(t, w.IsOpen(at(21, 30, time.UTC)))
}

func TestWindowNilLocationDefaultsUTC(t *testing.T) {
	w := Window{Start: 8 * 60, End: 22 * 60}
	assert.True(t, w.IsOpen(at(9, 0, time.UTC)))
}

func TestOpensAt(t *testing.T) {
	w, err := Parse("08:05", "22:00", "UTC")
	require.NoError(t, err)
	assert.Equal(t, "08:05", w.OpensAt())
}
