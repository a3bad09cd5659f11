// Package poller implements the order-status poller of spec section
// 4.10: it drives every Submitted BrokerExecution to its terminal
// Filled or Failed state by polling the brokerage for order status.
package poller

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/st0x-bridge/equity-bridge/internal/broker"
	"github.com/st0x-bridge/equity-bridge/internal/clock"
	"github.com/st0x-bridge/equity-bridge/internal/db"
	"github.com/st0x-bridge/equity-bridge/internal/domain"
)

const (
	defaultInterval  = 15 * time.Second
	defaultMaxJitter = 5 * time.Second
)

// TokenSource supplies a valid brokerage access token.
type TokenSource interface {
	GetValidAccessToken(ctx context.Context) (string, error)
}

// OrderStatusGetter is the subset of broker.Broker the poller depends on.
type OrderStatusGetter interface {
	GetOrderStatus(ctx context.Context, accessToken string, orderID string) (broker.OrderStatusResponse, error)
}

// Poller polls the brokerage for the status of every Submitted
// execution and drives it to Filled or Failed. It never creates or
// places orders.
type Poller struct {
	database  *db.DB
	tokens    TokenSource
	broker    OrderStatusGetter
	clk       clock.Clock
	log       *zap.Logger
	interval  time.Duration
	maxJitter time.Duration
}

// New builds a Poller. A zero interval or negative maxJitter falls
// back to the spec defaults (15s interval, 5s max jitter).
func New(database *db.DB, tokens TokenSource, brokerClient OrderStatusGetter, clk clock.Clock, log *zap.Logger, interval, maxJitter time.Duration) *Poller {
	if interval <= 0 {
		interval = defaultInterval
	}
	if maxJitter < 0 {
		maxJitter = defaultMaxJitter
	}
	return &Poller{
		database:  database,
		tokens:    tokens,
		broker:    brokerClient,
		clk:       clk,
		log:       log,
		interval:  interval,
		maxJitter: maxJitter,
	}
}

// Run polls on interval+jitter until ctx is canceled, to avoid
// thundering-herd restarts against the brokerage API.
func (p *Poller) Run(ctx context.Context) {
	for {
		wait := p.interval
		if p.maxJitter > 0 {
			wait += time.Duration(rand.Int63n(int64(p.maxJitter) + 1))
		}

		select {
		case <-ctx.Done():
			return
		case <-p.clk.After(wait):
			if err := p.tick(ctx); err != nil {
				p.log.Error("order-status poll failed", zap.Error(err))
			}
		}
	}
}

func (p *Poller) tick(ctx context.Context) error {
	var submitted []domain.BrokerExecution
	if err := p.database.View(func(tx *db.ReadTx) error {
		var err error
		submitted, err = db.ListByStatusTx(tx, domain.Submitted)
		return err
	}); err != nil {
		return err
	}

	accessToken, err := p.tokens.GetValidAccessToken(ctx)
	if err != nil {
		return err
	}

	for _, execution := range submitted {
		if err := p.pollOne(ctx, accessToken, execution); err != nil {
			p.log.Warn("poll order status failed, will retry next tick",
				zap.Int64("execution_id", execution.ID), zap.Error(err))
		}
	}
	return nil
}

func (p *Poller) pollOne(ctx context.Context, accessToken string, execution domain.BrokerExecution) error {
	if execution.OrderID == nil {
		return nil
	}

	status, err := p.broker.GetOrderStatus(ctx, accessToken, *execution.OrderID)
	if err != nil {
		return err
	}

	switch {
	case status.IsFilled():
		return p.markFilled(execution.ID, status)
	case status.IsTerminalFailure():
		return p.markFailed(execution.ID)
	default:
		return nil
	}
}

func (p *Poller) markFilled(executionID int64, status broker.OrderStatusResponse) error {
	avgPrice, ok := status.WeightedAverageFillPrice()
	if !ok {
		avgPrice = status.ExecutionLegs[0].Price
	}
	priceCents, err := domain.PriceCentsFromWeightedAverage(avgPrice)
	if err != nil {
		return err
	}

	now := p.clk.Now()
	return p.database.Update(func(tx *db.Tx) error {
		current, found, err := db.GetExecutionTx(tx, executionID)
		if err != nil {
			return err
		}
		if !found {
			return nil
		}
		oldStatus := current.Status
		if err := current.MarkFilled(priceCents, now); err != nil {
			return err
		}
		if err := db.UpdateExecutionTx(tx, current, oldStatus); err != nil {
			return err
		}
		return p.clearLease(tx, current.Symbol, executionID)
	})
}

func (p *Poller) markFailed(executionID int64) error {
	now := p.clk.Now()
	return p.database.Update(func(tx *db.Tx) error {
		current, found, err := db.GetExecutionTx(tx, executionID)
		if err != nil {
			return err
		}
		if !found {
			return nil
		}
		oldStatus := current.Status
		if err := current.MarkFailed(now); err != nil {
			return err
		}
		if err := db.UpdateExecutionTx(tx, current, oldStatus); err != nil {
			return err
		}
		return p.clearLease(tx, current.Symbol, executionID)
	})
}

// clearLease releases the accumulator's execution lease if, and only
// if, it is still held by executionID — a stale poll against a symbol
// whose lease has since moved on must not clobber the new lease.
func (p *Poller) clearLease(tx *db.Tx, symbol string, executionID int64) error {
	acc, err := db.LoadOrCreateAccumulatorTx(tx, symbol)
	if err != nil {
		return err
	}
	if acc.PendingExecutionID == nil || *acc.PendingExecutionID != executionID {
		return nil
	}
	acc.ReleaseLease()
	return db.PutAccumulatorTx(tx, acc)
}
