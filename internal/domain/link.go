package domain

import "github.com/shopspring/decimal"

// AllocationTolerance is the fixed tolerance (1/1000th of a share) the
// audit law and share-boundary comparisons are allowed, per spec
// sections 3 and 4.7.
var AllocationTolerance = decimal.New(1, -3)

// TradeExecutionLink is one row of the many-to-many audit trail between
// on-chain trades and the broker executions they funded.
type TradeExecutionLink struct {
	ID                 int64
	TradeID            int64
	ExecutionID         int64
	ContributedShares  decimal.Decimal // positive
}
