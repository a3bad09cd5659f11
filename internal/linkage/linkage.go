// Package linkage implements the greedy FIFO allocation that ties a
// BrokerExecution back to the on-chain trades that funded it.
package linkage

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/st0x-bridge/equity-bridge/internal/bridgeerr"
	"github.com/st0x-bridge/equity-bridge/internal/db"
	"github.com/st0x-bridge/equity-bridge/internal/domain"
)

// Allocate links executionID to the oldest unallocated trades of
// baseSymbol/direction until shares is fully accounted for, creating one
// TradeExecutionLink per contributing trade. It fails closed: if the
// available trades cannot cover shares within domain.AllocationTolerance,
// it returns bridgeerr.ErrAllocationInvariant; links already written to
// tx stay there, so the caller must abort its transaction rather than
// commit an under-backed execution.
func Allocate(tx *db.Tx, baseSymbol string, direction domain.Direction, executionID int64, shares decimal.Decimal) error {
	trades, err := db.ListTradesBySymbolTx(tx, baseSymbol)
	if err != nil {
		return err
	}

	remaining := shares
	for _, trade := range trades {
		if remaining.LessThanOrEqual(domain.AllocationTolerance) {
			break
		}
		if trade.Direction != direction {
			continue
		}

		contributed, err := db.SumContributedSharesByTradeTx(tx, trade.ID)
		if err != nil {
			return err
		}
		available := trade.Amount.Sub(contributed)
		if available.LessThanOrEqual(domain.AllocationTolerance) {
			continue
		}

		contribution := decimal.Min(available, remaining)
		if _, err := db.InsertLinkTx(tx, domain.TradeExecutionLink{
			TradeID:           trade.ID,
			ExecutionID:       executionID,
			ContributedShares: contribution,
		}); err != nil {
			return err
		}
		remaining = remaining.Sub(contribution)
	}

	if remaining.GreaterThan(domain.AllocationTolerance) {
		return fmt.Errorf("%w: %s shares of %s %s unallocated for execution %d", bridgeerr.ErrAllocationInvariant, remaining, baseSymbol, direction, executionID)
	}
	return nil
}
