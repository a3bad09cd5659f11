package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PositionAccumulator is the per base-equity-symbol fractional-share
// ledger. Identity is Symbol (base form, suffix already stripped).
type PositionAccumulator struct {
	Symbol             string
	NetPosition        decimal.Decimal // signed
	AccumulatedLong    decimal.Decimal // >= 0
	AccumulatedShort   decimal.Decimal // >= 0
	PendingExecutionID *int64          // non-nil while a broker order is in flight; the lease
	LastUpdated        time.Time
}

// NewPositionAccumulator returns a zeroed ledger row for symbol.
func NewPositionAccumulator(symbol string) *PositionAccumulator {
	return &PositionAccumulator{
		Symbol:           symbol,
		NetPosition:      decimal.Zero,
		AccumulatedLong:  decimal.Zero,
		AccumulatedShort: decimal.Zero,
	}
}

// HasLease reports whether an execution is currently in flight for this symbol.
func (p *PositionAccumulator) HasLease() bool {
	return p.PendingExecutionID != nil
}

// AcquireLease sets the lease to executionID. Callers must only call
// this after confirming HasLease() is false within the same transaction
// (as accumulator.AddTrade and the sweep's trigger do).
func (p *PositionAccumulator) AcquireLease(executionID int64) {
	id := executionID
	p.PendingExecutionID = &id
}

// ReleaseLease clears the lease, e.g. when the poller observes a
// terminal execution state.
func (p *PositionAccumulator) ReleaseLease() {
	p.PendingExecutionID = nil
}
