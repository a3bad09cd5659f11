// Package placement submits a Pending BrokerExecution to the brokerage
// venue and records the result, shared by the queue processor (placing
// an execution it just created) and the sweep (retrying one that was
// left Pending by a prior transport failure or a crash mid-flight).
package placement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/st0x-bridge/equity-bridge/internal/bridgeerr"
	"github.com/st0x-bridge/equity-bridge/internal/clock"
	"github.com/st0x-bridge/equity-bridge/internal/db"
	"github.com/st0x-bridge/equity-bridge/internal/domain"
)

// TokenSource supplies a valid brokerage access token.
type TokenSource interface {
	GetValidAccessToken(ctx context.Context) (string, error)
}

// OrderPlacer submits a BrokerExecution to the brokerage venue.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, accessToken string, execution domain.BrokerExecution) (orderID string, err error)
}

// Submit places execution outside any DB transaction and records the
// outcome. A transient transport failure leaves the execution Pending
// for the next retry. A terminal broker rejection (bridgeerr.ErrBrokerTerminal)
// instead moves the execution straight to Failed, since retrying an
// identical rejected order would only fail again and would otherwise
// hold its symbol's single-flight lease forever. Submit never returns
// an error, since there is no caller-level recourse beyond "try again
// later" or "leave it Failed".
func Submit(ctx context.Context, database *db.DB, tokens TokenSource, broker OrderPlacer, clk clock.Clock, log *zap.Logger, execution domain.BrokerExecution) {
	accessToken, err := tokens.GetValidAccessToken(ctx)
	if err != nil {
		log.Error("cannot place execution: token unavailable", zap.Int64("execution_id", execution.ID), zap.Error(err))
		return
	}

	orderID, err := broker.PlaceOrder(ctx, accessToken, execution)
	if err != nil {
		if errors.Is(err, bridgeerr.ErrBrokerTerminal) {
			markFailed(database, log, execution, clk.Now())
			return
		}
		log.Warn("order placement failed, leaving execution pending for retry", zap.Int64("execution_id", execution.ID), zap.Error(err))
		return
	}

	if err := database.Update(func(tx *db.Tx) error {
		current, found, err := db.GetExecutionTx(tx, execution.ID)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("execution %d vanished before submission could be recorded", execution.ID)
		}
		oldStatus := current.Status
		if err := current.MarkSubmitted(orderID); err != nil {
			return err
		}
		return db.UpdateExecutionTx(tx, current, oldStatus)
	}); err != nil {
		log.Error("failed to record submitted execution", zap.Int64("execution_id", execution.ID), zap.Error(err))
	}
}

// markFailed moves execution straight to Failed and releases its
// symbol's accumulator lease, mirroring the poller's own
// terminal-rejection handling (internal/poller.markFailed/clearLease)
// for the Pending->Failed edge the poller never sees.
func markFailed(database *db.DB, log *zap.Logger, execution domain.BrokerExecution, now time.Time) {
	if err := database.Update(func(tx *db.Tx) error {
		current, found, err := db.GetExecutionTx(tx, execution.ID)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("execution %d vanished before rejection could be recorded", execution.ID)
		}
		oldStatus := current.Status
		if err := current.MarkFailed(now); err != nil {
			return err
		}
		if err := db.UpdateExecutionTx(tx, current, oldStatus); err != nil {
			return err
		}
		return clearLease(tx, current.Symbol, current.ID)
	}); err != nil {
		log.Error("failed to record terminally rejected execution", zap.Int64("execution_id", execution.ID), zap.Error(err))
		return
	}
	log.Warn("order terminally rejected by broker, execution marked failed", zap.Int64("execution_id", execution.ID))
}

// clearLease releases the accumulator's execution lease if, and only
// if, it is still held by executionID.
func clearLease(tx *db.Tx, symbol string, executionID int64) error {
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
