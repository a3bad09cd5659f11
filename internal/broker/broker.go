// Package broker places orders against, and polls order status from, a
// brokerage execution venue. Shaped directly after the Schwab trader
// API client this bridge was originally built against.
package broker

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/st0x-bridge/equity-bridge/internal/domain"
)

// Broker is the brokerage-side half of the bridge: place an order for a
// BrokerExecution, and poll its current status.
type Broker interface {
	PlaceOrder(ctx context.Context, accessToken string, execution domain.BrokerExecution) (orderID string, err error)
	GetOrderStatus(ctx context.Context, accessToken string, orderID string) (OrderStatusResponse, error)
}

// OrderStatus mirrors the brokerage API's order lifecycle vocabulary.
// Only Filled and the terminal-failure states are acted on; any other
// value, listed here or not, leaves the execution Submitted.
type OrderStatus string

const (
	StatusQueued                OrderStatus = "QUEUED"
	StatusWorking                OrderStatus = "WORKING"
	StatusFilled                 OrderStatus = "FILLED"
	StatusCanceled               OrderStatus = "CANCELED"
	StatusRejected               OrderStatus = "REJECTED"
	StatusPendingActivation      OrderStatus = "PENDING_ACTIVATION"
	StatusPendingReview          OrderStatus = "PENDING_REVIEW"
	StatusAccepted               OrderStatus = "ACCEPTED"
	StatusAwaitingParentOrder    OrderStatus = "AWAITING_PARENT_ORDER"
	StatusAwaitingCondition      OrderStatus = "AWAITING_CONDITION"
	StatusAwaitingManualReview   OrderStatus = "AWAITING_MANUAL_REVIEW"
	StatusAwaitingStopCondition  OrderStatus = "AWAITING_STOP_CONDITION"
	StatusExpired                OrderStatus = "EXPIRED"
	StatusNew                    OrderStatus = "NEW"
	StatusAwaitingReleaseTime    OrderStatus = "AWAITING_RELEASE_TIME"
	StatusPendingReplace         OrderStatus = "PENDING_REPLACE"
	StatusReplaced               OrderStatus = "REPLACED"
)

var pendingStatuses = map[OrderStatus]bool{
	StatusQueued:               true,
	StatusWorking:               true,
	StatusPendingActivation:    true,
	StatusPendingReview:        true,
	StatusAccepted:             true,
	StatusAwaitingParentOrder:  true,
	StatusAwaitingCondition:    true,
	StatusAwaitingManualReview: true,
	StatusAwaitingStopCondition: true,
	StatusNew:                  true,
	StatusAwaitingReleaseTime:  true,
	StatusPendingReplace:       true,
}

var terminalFailureStatuses = map[OrderStatus]bool{
	StatusCanceled: true,
	StatusRejected: true,
	StatusExpired:  true,
}

// ExecutionLeg is one fill against an order.
type ExecutionLeg struct {
	ExecutionID string
	Quantity    decimal.Decimal
	Price       decimal.Decimal
	Time        *time.Time
}

// OrderStatusResponse is the brokerage API's order-status payload.
type OrderStatusResponse struct {
	OrderID           string
	Status            OrderStatus
	FilledQuantity    decimal.Decimal
	RemainingQuantity decimal.Decimal
	ExecutionLegs     []ExecutionLeg
}

// IsFilled reports whether the order has completely filled.
func (r OrderStatusResponse) IsFilled() bool { return r.Status == StatusFilled }

// IsPending reports whether the order is still open at the broker.
func (r OrderStatusResponse) IsPending() bool { return pendingStatuses[r.Status] }

// IsTerminalFailure reports whether the order reached a terminal
// non-fill state (canceled, rejected, or expired).
func (r OrderStatusResponse) IsTerminalFailure() bool { return terminalFailureStatuses[r.Status] }

// WeightedAverageFillPrice computes the quantity-weighted average price
// across all execution legs, or the zero value and false if there are
// none to average.
func (r OrderStatusResponse) WeightedAverageFillPrice() (decimal.Decimal, bool) {
	if len(r.ExecutionLegs) == 0 {
		return decimal.Zero, false
	}

	totalValue := decimal.Zero
	totalQuantity := decimal.Zero
	for _, leg := range r.ExecutionLegs {
		totalValue = totalValue.Add(leg.Price.Mul(leg.Quantity))
		totalQuantity = totalQuantity.Add(leg.Quantity)
	}
	if totalQuantity.Sign() == 0 {
		return decimal.Zero, false
	}
	return totalValue.Div(totalQuantity), true
}
