package accumulator

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/st0x-bridge/equity-bridge/internal/db"
	"github.com/st0x-bridge/equity-bridge/internal/domain"
)

func newTestDB(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "accumulator_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return database
}

func buyTrade(symbol string, amount string) domain.OnchainTrade {
	return domain.OnchainTrade{
		TxHash:    "0xabc-" + amount,
		LogIndex:  0,
		Symbol:    symbol,
		Amount:    decimal.RequireFromString(amount),
		Direction: domain.Buy,
		PriceUSDC: decimal.RequireFromString("190.50"),
	}
}

func TestAddTradeAccumulatesFractionalSharesBeforeExecuting(t *testing.T) {
	database := newTestDB(t)
	now := time.Now()

	var execution *domain.BrokerExecution
	err := database.Update(func(tx *db.Tx) error {
		var err error
		execution, err = AddTrade(tx, buyTrade("AAPLs1", "0.4"), now)
		return err
	})
	require.NoError(t, err)
	require.Nil(t, execution, "a fractional trade under one share must not create an execution")

	err = database.View(func(tx *db.ReadTx) error {
		acc, err := db.LoadOrCreateAccumulatorTx(tx, "AAPL")
		require.NoError(t, err)
		require.True(t, acc.AccumulatedLong.Equal(decimal.RequireFromString("0.4")))
		require.False(t, acc.HasLease())
		return nil
	})
	require.NoError(t, err)
}

func TestAddTradeCreatesExecutionOnceAShareIsAvailable(t *testing.T) {
	database := newTestDB(t)
	now := time.Now()

	require.NoError(t, database.Update(func(tx *db.Tx) error {
		_, err := AddTrade(tx, buyTrade("AAPLs1", "0.6"), now)
		return err
	}))

	var execution *domain.BrokerExecution
	err := database.Update(func(tx *db.Tx) error {
		var err error
		execution, err = AddTrade(tx, buyTrade("AAPLs1", "0.7"), now)
		return err
	})
	require.NoError(t, err)
	require.NotNil(t, execution)
	require.Equal(t, int64(1), execution.Shares)
	require.Equal(t, domain.Buy, execution.Direction)
	require.Equal(t, domain.Pending, execution.Status)

	err = database.View(func(tx *db.ReadTx) error {
		acc, err := db.LoadOrCreateAccumulatorTx(tx, "AAPL")
		require.NoError(t, err)
		require.True(t, acc.HasLease())
		require.Equal(t, execution.ID, *acc.PendingExecutionID)
		// 0.6 + 0.7 = 1.3, one whole share allocated, 0.3 remains.
		require.True(t, acc.AccumulatedLong.Equal(decimal.RequireFromString("0.3")))
		return nil
	})
	require.NoError(t, err)
}

func TestAddTradeDoesNotCreateSecondExecutionWhileLeaseHeld(t *testing.T) {
	database := newTestDB(t)
	now := time.Now()

	require.NoError(t, database.Update(func(tx *db.Tx) error {
		_, err := AddTrade(tx, buyTrade("AAPLs1", "1.5"), now)
		return err
	}))

	var execution *domain.BrokerExecution
	err := database.Update(func(tx *db.Tx) error {
		var err error
		execution, err = AddTrade(tx, buyTrade("AAPLs1", "2"), now)
		return err
	})
	require.NoError(t, err)
	require.Nil(t, execution, "a second execution must not be created while the lease is held")

	err = database.View(func(tx *db.ReadTx) error {
		acc, err := db.LoadOrCreateAccumulatorTx(tx, "AAPL")
		require.NoError(t, err)
		// The first AddTrade consumed 1 share into the execution, leaving
		// 0.5; the second trade adds 2 more, for 2.5 accumulated while the
		// lease sits untouched.
		require.True(t, acc.AccumulatedLong.Equal(decimal.RequireFromString("2.5")))
		return nil
	})
	require.NoError(t, err)
}
