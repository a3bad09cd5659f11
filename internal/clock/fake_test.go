package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFakeAdvanceMovesNowForward(t *testing.T) {
	start := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	f := NewFake(start)
	require.Equal(t, start, f.Now())

	f.Advance(time.Hour)
	require.Equal(t, start.Add(time.Hour), f.Now())
}

func TestFakeAfterFiresImmediatelyRelativeToNow(t *testing.T) {
	start := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	f := NewFake(start)

	select {
	case fired := <-f.After(5 * time.Minute):
		require.Equal(t, start.Add(5*time.Minute), fired)
	default:
		t.Fatal("fake After channel should fire without blocking")
	}
}
