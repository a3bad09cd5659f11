// Package reporter periodically logs a structured operational summary
// — queue depth, open executions, token freshness — the thin slice of
// the original reporter task this bridge keeps in scope. P&L
// reconciliation is explicitly out of scope (spec section 1's
// Non-goals).
package reporter

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/st0x-bridge/equity-bridge/internal/clock"
	"github.com/st0x-bridge/equity-bridge/internal/db"
	"github.com/st0x-bridge/equity-bridge/internal/domain"
)

const defaultInterval = 5 * time.Minute

// TokenSource reports how stale the current access token is.
type TokenSource interface {
	GetValidAccessToken(ctx context.Context) (string, error)
}

// Reporter logs one summary line per tick.
type Reporter struct {
	database *db.DB
	queue    *db.Queue
	tokens   TokenSource
	clk      clock.Clock
	log      *zap.Logger
	interval time.Duration
}

func New(database *db.DB, queue *db.Queue, tokens TokenSource, clk clock.Clock, log *zap.Logger) *Reporter {
	return &Reporter{database: database, queue: queue, tokens: tokens, clk: clk, log: log, interval: defaultInterval}
}

// Run logs a summary every interval until ctx is canceled.
func (r *Reporter) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.clk.After(r.interval):
			r.tick(ctx)
		}
	}
}

func (r *Reporter) tick(ctx context.Context) {
	unprocessed, err := r.queue.CountUnprocessed()
	if err != nil {
		r.log.Error("reporter: count unprocessed events failed", zap.Error(err))
	}

	var pending, submitted int
	if err := r.database.View(func(tx *db.ReadTx) error {
		p, err := db.ListByStatusTx(tx, domain.Pending)
		if err != nil {
			return err
		}
		s, err := db.ListByStatusTx(tx, domain.Submitted)
		if err != nil {
			return err
		}
		pending, submitted = len(p), len(s)
		return nil
	}); err != nil {
		r.log.Error("reporter: count open executions failed", zap.Error(err))
	}

	tokenFresh := true
	if _, err := r.tokens.GetValidAccessToken(ctx); err != nil {
		tokenFresh = false
	}

	r.log.Info("bridge status",
		zap.Int("queue_depth", unprocessed),
		zap.Int("pending_executions", pending),
		zap.Int("submitted_executions", submitted),
		zap.Bool("token_fresh", tokenFresh),
	)
}
