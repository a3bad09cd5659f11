package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/st0x-bridge/equity-bridge/internal/bridgeerr"
)

// ExecutionStatus is the BrokerExecution state-machine discriminator.
type ExecutionStatus string

const (
	Pending   ExecutionStatus = "Pending"
	Submitted ExecutionStatus = "Submitted"
	Filled    ExecutionStatus = "Filled"
	Failed    ExecutionStatus = "Failed"
)

// allowedTransitions enumerates the only legal status-to-status edges.
// Observed status sequences must be prefixes of Pending,Submitted,Filled
// or Pending,Submitted,Failed or Pending,Failed (spec section 8).
var allowedTransitions = map[ExecutionStatus][]ExecutionStatus{
	Pending:   {Submitted, Failed},
	Submitted: {Filled, Failed},
	Filled:    {},
	Failed:    {},
}

// CanTransition reports whether moving from `from` to `to` is a legal edge.
func CanTransition(from, to ExecutionStatus) bool {
	for _, candidate := range allowedTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// BrokerExecution is one intended brokerage order, independent of how
// many on-chain trades contributed to it. Status-conditional columns
// (OrderID, PriceCents, ExecutedAt, FailedAt) are populated iff the
// status requires them; Validate enforces this on read, per the design
// note on encoding a stateful enum without sum types.
type BrokerExecution struct {
	ID         int64
	Symbol     string // base form
	Shares     int64  // whole shares only
	Direction  Direction
	Status     ExecutionStatus
	OrderID    *string // required in Submitted/Filled
	PriceCents *int64  // required in Filled
	ExecutedAt *time.Time
	FailedAt   *time.Time
}

// Validate rejects a row whose conditional fields don't match its
// status, per the invariant in spec section 3.
func (e *BrokerExecution) Validate() error {
	switch e.Status {
	case Pending:
		if e.OrderID != nil || e.PriceCents != nil || e.ExecutedAt != nil || e.FailedAt != nil {
			return fmt.Errorf("%w: Pending execution %d carries status-conditional fields", bridgeerr.ErrInvalidRowState, e.ID)
		}
	case Submitted:
		if e.OrderID == nil {
			return fmt.Errorf("%w: Submitted execution %d missing order_id", bridgeerr.ErrInvalidRowState, e.ID)
		}
		if e.PriceCents != nil || e.ExecutedAt != nil || e.FailedAt != nil {
			return fmt.Errorf("%w: Submitted execution %d carries terminal fields", bridgeerr.ErrInvalidRowState, e.ID)
		}
	case Filled:
		if e.OrderID == nil || e.PriceCents == nil || e.ExecutedAt == nil {
			return fmt.Errorf("%w: Filled execution %d missing required fields", bridgeerr.ErrInvalidRowState, e.ID)
		}
		if e.FailedAt != nil {
			return fmt.Errorf("%w: Filled execution %d also carries failed_at", bridgeerr.ErrInvalidRowState, e.ID)
		}
	case Failed:
		if e.FailedAt == nil {
			return fmt.Errorf("%w: Failed execution %d missing failed_at", bridgeerr.ErrInvalidRowState, e.ID)
		}
		if e.PriceCents != nil || e.ExecutedAt != nil {
			return fmt.Errorf("%w: Failed execution %d carries fill fields", bridgeerr.ErrInvalidRowState, e.ID)
		}
	default:
		return fmt.Errorf("%w: execution %d has unknown status %q", bridgeerr.ErrInvalidRowState, e.ID, e.Status)
	}
	return nil
}

// MarkSubmitted transitions Pending -> Submitted with the broker's order id.
func (e *BrokerExecution) MarkSubmitted(orderID string) error {
	if !CanTransition(e.Status, Submitted) {
		return fmt.Errorf("cannot transition execution %d from %s to %s", e.ID, e.Status, Submitted)
	}
	e.Status = Submitted
	e.OrderID = &orderID
	return e.Validate()
}

// MarkFilled transitions Submitted -> Filled, recording the weighted
// average fill price in cents and the fill timestamp.
func (e *BrokerExecution) MarkFilled(priceCents int64, executedAt time.Time) error {
	if !CanTransition(e.Status, Filled) {
		return fmt.Errorf("cannot transition execution %d from %s to %s", e.ID, e.Status, Filled)
	}
	if priceCents < 0 {
		return fmt.Errorf("negative price_cents %d for execution %d", priceCents, e.ID)
	}
	e.Status = Filled
	e.PriceCents = &priceCents
	e.ExecutedAt = &executedAt
	return e.Validate()
}

// MarkFailed transitions Pending|Submitted -> Failed.
func (e *BrokerExecution) MarkFailed(failedAt time.Time) error {
	if !CanTransition(e.Status, Failed) {
		return fmt.Errorf("cannot transition execution %d from %s to %s", e.ID, e.Status, Failed)
	}
	e.Status = Failed
	e.FailedAt = &failedAt
	return e.Validate()
}

// IsTerminal reports whether the execution has reached Filled or Failed.
func (e *BrokerExecution) IsTerminal() bool {
	return e.Status == Filled || e.Status == Failed
}

// IsOpen reports whether the execution still counts toward the
// single-flight-execution invariant (at most one Pending|Submitted row
// per base symbol).
func (e *BrokerExecution) IsOpen() bool {
	return e.Status == Pending || e.Status == Submitted
}

// PriceCentsFromWeightedAverage converts a weighted-average USD fill
// price to an integer cents value, rounding half-to-even and rejecting
// any value that would require casting a negative into the unsigned
// conceptual domain (spec section 9's numeric-representation note).
func PriceCentsFromWeightedAverage(avg decimal.Decimal) (int64, error) {
	if avg.IsNegative() {
		return 0, fmt.Errorf("cannot convert negative price %s to price_cents", avg)
	}
	cents := avg.Mul(decimal.NewFromInt(100)).RoundBank(0)
	return cents.IntPart(), nil
}
