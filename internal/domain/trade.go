package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OnchainTrade is one row per successfully extracted on-chain fill.
// Identity is (TxHash, LogIndex); never mutated after creation.
type OnchainTrade struct {
	ID         int64
	TxHash     string
	LogIndex   uint
	Symbol     string // tokenized form, e.g. "AAPLs1"
	Amount     decimal.Decimal // non-negative, fractional shares
	Direction  Direction
	PriceUSDC  decimal.Decimal // positive, USDC per share
	CreatedAt  time.Time
}

// BaseSymbol is the underlying cash-equity ticker for this trade.
func (t OnchainTrade) BaseSymbol() string {
	return BaseSymbol(t.Symbol)
}
