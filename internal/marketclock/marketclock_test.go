package marketclock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func mustClock(t *testing.T) *MarketClock {
	t.Helper()
	clk, err := New("America/New_York")
	require.NoError(t, err)
	return clk
}

func nyTime(t *testing.T, y int, m time.Month, d, hh, mm int) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	return time.Date(y, m, d, hh, mm, 0, 0, loc)
}

func TestIsOpenDuringRegularSession(t *testing.T) {
	clk := mustClock(t)
	// Wednesday, 2026-07-29, 10:00 ET.
	require.True(t, clk.IsOpen(nyTime(t, 2026, time.July, 29, 10, 0)))
}

func TestIsOpenBeforeOpenAndAfterClose(t *testing.T) {
	clk := mustClock(t)
	require.False(t, clk.IsOpen(nyTime(t, 2026, time.July, 29, 9, 0)))
	require.False(t, clk.IsOpen(nyTime(t, 2026, time.July, 29, 16, 0)))
	require.False(t, clk.IsOpen(nyTime(t, 2026, time.July, 29, 20, 0)))
}

func TestIsOpenAtExactBoundaries(t *testing.T) {
	clk := mustClock(t)
	require.True(t, clk.IsOpen(nyTime(t, 2026, time.July, 29, 9, 30)))
	require.False(t, clk.IsOpen(nyTime(t, 2026, time.July, 29, 16, 0)))
}

func TestIsOpenRejectsWeekends(t *testing.T) {
	clk := mustClock(t)
	// Saturday, 2026-08-01.
	require.False(t, clk.IsOpen(nyTime(t, 2026, time.August, 1, 10, 0)))
	// Sunday, 2026-08-02.
	require.False(t, clk.IsOpen(nyTime(t, 2026, time.August, 2, 10, 0)))
}

func TestNextTransitionFromOpenSessionReturnsClose(t *testing.T) {
	clk := mustClock(t)
	now := nyTime(t, 2026, time.July, 29, 10, 0)
	next := clk.NextTransition(now)
	require.Equal(t, nyTime(t, 2026, time.July, 29, 16, 0), next)
}

func TestNextTransitionFromAfterCloseReturnsNextWeekdayOpen(t *testing.T) {
	clk := mustClock(t)
	// Friday, 2026-07-31, after close -> next open is Monday 2026-08-03.
	now := nyTime(t, 2026, time.July, 31, 18, 0)
	next := clk.NextTransition(now)
	require.Equal(t, nyTime(t, 2026, time.August, 3, 9, 30), next)
}

func TestNewRejectsUnknownTimezone(t *testing.T) {
	_, err := New("Not/A_Zone")
	require.Error(t, err)
}
