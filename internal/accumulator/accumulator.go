// Package accumulator implements the per-symbol fractional-share
// accumulator and its lease-protected execution creation (spec sections
// 4.5 and 4.6): trades accumulate until a whole share is available in a
// single direction, at which point a BrokerExecution is produced and
// backed by TradeExecutionLink allocations.
package accumulator

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/st0x-bridge/equity-bridge/internal/db"
	"github.com/st0x-bridge/equity-bridge/internal/domain"
	"github.com/st0x-bridge/equity-bridge/internal/linkage"
)

// AddTrade applies trade to its base symbol's accumulator inside tx,
// acquiring the execution lease and producing a BrokerExecution when a
// whole share becomes available in one direction. It returns the
// created execution, or nil if none was produced (either because the
// accumulated fraction is still under threshold, or because the lease
// was already held by an in-flight execution).
func AddTrade(tx *db.Tx, trade domain.OnchainTrade, now time.Time) (*domain.BrokerExecution, error) {
	persisted, err := db.InsertTradeTx(tx, trade)
	if err != nil {
		return nil, fmt.Errorf("insert trade: %w", err)
	}

	baseSymbol := persisted.BaseSymbol()
	acc, err := db.LoadOrCreateAccumulatorTx(tx, baseSymbol)
	if err != nil {
		return nil, fmt.Errorf("load accumulator %s: %w", baseSymbol, err)
	}

	switch persisted.Direction {
	case domain.Buy:
		acc.AccumulatedLong = acc.AccumulatedLong.Add(persisted.Amount)
		acc.NetPosition = acc.NetPosition.Add(persisted.Amount)
	case domain.Sell:
		acc.AccumulatedShort = acc.AccumulatedShort.Add(persisted.Amount)
		acc.NetPosition = acc.NetPosition.Sub(persisted.Amount)
	default:
		return nil, fmt.Errorf("trade %d has invalid direction %q", persisted.ID, persisted.Direction)
	}
	acc.LastUpdated = now

	if acc.HasLease() {
		// Lease already held by an in-flight execution: persist the
		// accumulated remainder and let the poller or sweep trigger the
		// next execution once it clears (spec section 4.6).
		if err := db.PutAccumulatorTx(tx, acc); err != nil {
			return nil, fmt.Errorf("persist accumulator %s: %w", baseSymbol, err)
		}
		return nil, nil
	}

	direction, shares, ok := nextExecutionDirection(acc)
	if !ok {
		if err := db.PutAccumulatorTx(tx, acc); err != nil {
			return nil, fmt.Errorf("persist accumulator %s: %w", baseSymbol, err)
		}
		return nil, nil
	}

	execution, err := db.InsertExecutionTx(tx, domain.BrokerExecution{
		Symbol:    baseSymbol,
		Shares:    shares.IntPart(),
		Direction: direction,
		Status:    domain.Pending,
	})
	if err != nil {
		return nil, fmt.Errorf("insert execution for %s: %w", baseSymbol, err)
	}

	if err := linkage.Allocate(tx, baseSymbol, direction, execution.ID, shares); err != nil {
		return nil, err
	}

	switch direction {
	case domain.Buy:
		acc.AccumulatedLong = acc.AccumulatedLong.Sub(shares)
	case domain.Sell:
		acc.AccumulatedShort = acc.AccumulatedShort.Sub(shares)
	}
	acc.AcquireLease(execution.ID)

	if err := db.PutAccumulatorTx(tx, acc); err != nil {
		return nil, fmt.Errorf("persist accumulator %s: %w", baseSymbol, err)
	}

	return &execution, nil
}

// nextExecutionDirection determines which side of acc, if either, has
// crossed the whole-share threshold. Long wins ties when both sides
// are simultaneously at or above one share, a pathological but
// possible state (spec section 9).
func nextExecutionDirection(acc *domain.PositionAccumulator) (domain.Direction, decimal.Decimal, bool) {
	one := decimal.NewFromInt(1)
	if acc.AccumulatedLong.GreaterThanOrEqual(one) {
		return domain.Buy, acc.AccumulatedLong.Floor(), true
	}
	if acc.AccumulatedShort.GreaterThanOrEqual(one) {
		return domain.Sell, acc.AccumulatedShort.Floor(), true
	}
	return "", decimal.Zero, false
}
