package conductor

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/st0x-bridge/equity-bridge/internal/marketclock"
)

func blockUntilDone(started, stopped *atomic.Int32) Task {
	return func(ctx context.Context) {
		started.Add(1)
		<-ctx.Done()
		stopped.Add(1)
	}
}

func TestRunStartsAlwaysOnTasksAndStopsThemOnCancel(t *testing.T) {
	clk, err := marketclock.New("America/New_York")
	require.NoError(t, err)

	var started, stopped atomic.Int32
	c := New(clk, zap.NewNop(), []Task{blockUntilDone(&started, &stopped)}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return started.Load() == 1 }, time.Second, time.Millisecond)

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
	require.Equal(t, int32(1), stopped.Load())
}

func TestRunStartsTradingTasksImmediatelyWhenMarketAlreadyOpen(t *testing.T) {
	clk, err := marketclock.New("America/New_York")
	require.NoError(t, err)

	if !clk.IsOpen(time.Now()) {
		t.Skip("market is currently closed; trading-task startup is exercised elsewhere")
	}

	var started, stopped atomic.Int32
	c := New(clk, zap.NewNop(), nil, []Task{blockUntilDone(&started, &stopped)})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return started.Load() == 1 }, time.Second, time.Millisecond)

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
	require.Equal(t, int32(1), stopped.Load())
}
