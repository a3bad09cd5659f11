// Package conductor supervises every long-running task of spec section
// 5: it keeps the token refresher and live event receiver running at
// all times, and starts/stops the trading tasks (queue processor,
// order-status poller, periodic sweep) as the market opens and closes.
package conductor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/st0x-bridge/equity-bridge/internal/marketclock"
)

const pollInterval = time.Minute

// Task is a long-running supervised job: Run blocks until ctx is
// canceled.
type Task func(ctx context.Context)

// Conductor starts alwaysOn tasks once, for the process lifetime, and
// starts/stops tradingTasks as MarketClock.IsOpen flips.
type Conductor struct {
	clock       *marketclock.MarketClock
	log         *zap.Logger
	alwaysOn    []Task
	tradingTasks []Task
}

func New(clk *marketclock.MarketClock, log *zap.Logger, alwaysOn, tradingTasks []Task) *Conductor {
	return &Conductor{clock: clk, log: log, alwaysOn: alwaysOn, tradingTasks: tradingTasks}
}

// Run blocks until ctx is canceled, supervising every task.
func (c *Conductor) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, task := range c.alwaysOn {
		wg.Add(1)
		go func(t Task) {
			defer wg.Done()
			t(ctx)
		}(task)
	}

	c.runTradingLifecycle(ctx)
	wg.Wait()
}

// runTradingLifecycle polls the market clock once a minute, starting
// the trading tasks on open and canceling their sub-context on close.
// It blocks until ctx is canceled.
func (c *Conductor) runTradingLifecycle(ctx context.Context) {
	var tradingCancel context.CancelFunc
	var tradingWG sync.WaitGroup
	running := false

	stop := func() {
		if !running {
			return
		}
		tradingCancel()
		tradingWG.Wait()
		running = false
		c.log.Info("trading tasks stopped: market closed")
	}

	start := func() {
		if running {
			return
		}
		var tradingCtx context.Context
		tradingCtx, tradingCancel = context.WithCancel(ctx)
		for _, task := range c.tradingTasks {
			tradingWG.Add(1)
			go func(t Task) {
				defer tradingWG.Done()
				t(tradingCtx)
			}(task)
		}
		running = true
		c.log.Info("trading tasks started: market open")
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	if c.clock.IsOpen(time.Now()) {
		start()
	}

	for {
		select {
		case <-ctx.Done():
			stop()
			return
		case <-ticker.C:
			if c.clock.IsOpen(time.Now()) {
				start()
			} else {
				stop()
			}
		}
	}
}
