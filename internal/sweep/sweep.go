// Package sweep implements the periodic accumulated-position sweep of
// spec section 4.9: it catches symbols whose accumulator crossed a
// whole-share threshold while the execution lease was held by an
// earlier, now-cleared execution.
package sweep

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/st0x-bridge/equity-bridge/internal/clock"
	"github.com/st0x-bridge/equity-bridge/internal/db"
	"github.com/st0x-bridge/equity-bridge/internal/domain"
	"github.com/st0x-bridge/equity-bridge/internal/linkage"
	"github.com/st0x-bridge/equity-bridge/internal/placement"
)

const defaultTick = 60 * time.Second

// Sweep scans every PositionAccumulator once per tick, reusing the same
// symbol lock table as the queue processor so the two never race on
// the same accumulator row. It also retries placement of any execution
// still Pending from an earlier transport failure or crash mid-flight,
// since the queue processor that created it may never get another
// chance to (spec section 4.9).
type Sweep struct {
	database   *db.DB
	clk        clock.Clock
	log        *zap.Logger
	lockSymbol func(symbol string) (unlock func())
	tokens     placement.TokenSource
	broker     placement.OrderPlacer
}

func New(database *db.DB, clk clock.Clock, log *zap.Logger, lockSymbol func(symbol string) (unlock func()), tokens placement.TokenSource, broker placement.OrderPlacer) *Sweep {
	return &Sweep{database: database, clk: clk, log: log, lockSymbol: lockSymbol, tokens: tokens, broker: broker}
}

// Run ticks every 60s until ctx is canceled. A tick missed because the
// previous one overran is simply skipped, never queued.
func (s *Sweep) Run(ctx context.Context) {
	ticker := time.NewTicker(defaultTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.tick(ctx); err != nil {
				s.log.Error("accumulated-position sweep failed", zap.Error(err))
			}
		}
	}
}

func (s *Sweep) tick(ctx context.Context) error {
	var accs []domain.PositionAccumulator
	if err := s.database.View(func(tx *db.ReadTx) error {
		var err error
		accs, err = db.ListAccumulatorsTx(tx)
		return err
	}); err != nil {
		return err
	}

	one := decimal.NewFromInt(1)
	for _, acc := range accs {
		if acc.HasLease() {
			continue
		}
		if acc.AccumulatedLong.LessThan(one) && acc.AccumulatedShort.LessThan(one) {
			continue
		}
		if err := s.trigger(acc.Symbol); err != nil {
			s.log.Error("sweep failed to create execution", zap.String("symbol", acc.Symbol), zap.Error(err))
		}
	}

	s.retryPending(ctx)
	return nil
}

// retryPending resubmits every execution still Pending placement,
// whether this tick's threshold scan just created it or it was left
// over from an earlier transport failure or crash mid-flight.
func (s *Sweep) retryPending(ctx context.Context) {
	var pending []domain.BrokerExecution
	if err := s.database.View(func(tx *db.ReadTx) error {
		var err error
		pending, err = db.ListByStatusTx(tx, domain.Pending)
		return err
	}); err != nil {
		s.log.Error("sweep failed to list pending executions", zap.Error(err))
		return
	}

	for _, execution := range pending {
		unlock := s.lockSymbol(execution.Symbol)
		placement.Submit(ctx, s.database, s.tokens, s.broker, s.clk, s.log, execution)
		unlock()
	}
}

func (s *Sweep) trigger(symbol string) error {
	unlock := s.lockSymbol(symbol)
	defer unlock()

	return s.database.Update(func(tx *db.Tx) error {
		acc, err := db.LoadOrCreateAccumulatorTx(tx, symbol)
		if err != nil {
			return err
		}
		if acc.HasLease() {
			return nil
		}

		one := decimal.NewFromInt(1)
		var direction domain.Direction
		var shares decimal.Decimal
		switch {
		case acc.AccumulatedLong.GreaterThanOrEqual(one):
			direction, shares = domain.Buy, acc.AccumulatedLong.Floor()
		case acc.AccumulatedShort.GreaterThanOrEqual(one):
			direction, shares = domain.Sell, acc.AccumulatedShort.Floor()
		default:
			return nil
		}

		execution, err := db.InsertExecutionTx(tx, domain.BrokerExecution{
			Symbol:    symbol,
			Shares:    shares.IntPart(),
			Direction: direction,
			Status:    domain.Pending,
		})
		if err != nil {
			return err
		}

		if err := linkage.Allocate(tx, symbol, direction, execution.ID, shares); err != nil {
			return err
		}

		switch direction {
		case domain.Buy:
			acc.AccumulatedLong = acc.AccumulatedLong.Sub(shares)
		case domain.Sell:
			acc.AccumulatedShort = acc.AccumulatedShort.Sub(shares)
		}
		acc.AcquireLease(execution.ID)
		acc.LastUpdated = s.clk.Now()

		return db.PutAccumulatorTx(tx, acc)
	})
}
