// Package processor implements the queue processor of spec section 4.8:
// the single driver that drains the durable event queue, turns each
// entry into a trade and (eventually) a broker order, and marks the
// entry processed atomically with every side effect it caused.
package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/st0x-bridge/equity-bridge/internal/accumulator"
	"github.com/st0x-bridge/equity-bridge/internal/chain"
	"github.com/st0x-bridge/equity-bridge/internal/clock"
	"github.com/st0x-bridge/equity-bridge/internal/db"
	"github.com/st0x-bridge/equity-bridge/internal/domain"
	"github.com/st0x-bridge/equity-bridge/internal/placement"
)

const (
	idlePollInterval     = 100 * time.Millisecond
	extractorBackoff     = 500 * time.Millisecond
)

// Extractor is the subset of internal/extractor.Extractor the processor
// depends on.
type Extractor interface {
	FromClearV2(ctx context.Context, evt chain.ClearV2, log types.Log) (*domain.OnchainTrade, error)
	FromTakeOrderV2(ctx context.Context, evt chain.TakeOrderV2, log types.Log) (*domain.OnchainTrade, error)
}

// Processor drains the event queue FIFO and drives it through the
// extractor and accumulator.
type Processor struct {
	database *db.DB
	queue    *db.Queue
	extract  Extractor
	tokens   placement.TokenSource
	broker   placement.OrderPlacer
	clk      clock.Clock
	log      *zap.Logger

	symbolLocks *symbolLockTable
}

func New(database *db.DB, queue *db.Queue, extract Extractor, tokens placement.TokenSource, broker placement.OrderPlacer, clk clock.Clock, log *zap.Logger) *Processor {
	return &Processor{
		database:    database,
		queue:       queue,
		extract:     extract,
		tokens:      tokens,
		broker:      broker,
		clk:         clk,
		log:         log,
		symbolLocks: newSymbolLockTable(),
	}
}

// Run drains the queue until ctx is canceled.
func (p *Processor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		processed, err := p.step(ctx)
		if err != nil {
			p.log.Error("queue processor step failed", zap.Error(err))
			sleep(ctx, extractorBackoff)
			continue
		}
		if !processed {
			sleep(ctx, idlePollInterval)
		}
	}
}

// step drains a single queue entry. It returns processed=false when the
// queue is empty (caller should back off briefly).
func (p *Processor) step(ctx context.Context) (processed bool, err error) {
	event, err := p.queue.GetNextUnprocessed()
	if err != nil {
		return false, fmt.Errorf("get next unprocessed event: %w", err)
	}
	if event == nil {
		return false, nil
	}

	log, trade, extractErr := p.decodeAndExtract(ctx, *event)
	if extractErr != nil {
		// Extractor errors are operator-visible and do not consume the
		// event: it is retried on the next iteration (spec section 4.8).
		return false, fmt.Errorf("extract event %d (tx %s log %d): %w", event.ID, log.TxHash, log.Index, extractErr)
	}

	var unlock func()
	if trade != nil {
		unlock = p.symbolLocks.lock(trade.BaseSymbol())
		defer unlock()
	}

	var execution *domain.BrokerExecution
	now := p.clk.Now()
	txErr := p.database.Update(func(tx *db.Tx) error {
		if trade != nil {
			var addErr error
			execution, addErr = accumulator.AddTrade(tx, *trade, now)
			if addErr != nil {
				return addErr
			}
		}
		return db.MarkProcessedTx(tx, event.ID, now)
	})
	if txErr != nil {
		return false, fmt.Errorf("commit event %d: %w", event.ID, txErr)
	}

	if execution != nil {
		placement.Submit(ctx, p.database, p.tokens, p.broker, p.clk, p.log, *execution)
	}
	return true, nil
}

// LockSymbol acquires the in-process mutex for baseSymbol, shared with
// the periodic sweep so the two never race on the same accumulator.
func (p *Processor) LockSymbol(baseSymbol string) (unlock func()) {
	return p.symbolLocks.lock(baseSymbol)
}

func (p *Processor) decodeAndExtract(ctx context.Context, event domain.QueuedEvent) (types.Log, *domain.OnchainTrade, error) {
	var log types.Log
	if err := json.Unmarshal(event.Blob, &log); err != nil {
		return log, nil, fmt.Errorf("decode event blob: %w", err)
	}

	switch event.Kind {
	case domain.EventClearV2:
		evt, err := chain.DecodeClearV2(log)
		if err != nil {
			return log, nil, err
		}
		trade, err := p.extract.FromClearV2(ctx, evt, log)
		return log, trade, err
	case domain.EventTakeOrderV2:
		evt, err := chain.DecodeTakeOrderV2(log)
		if err != nil {
			return log, nil, err
		}
		trade, err := p.extract.FromTakeOrderV2(ctx, evt, log)
		return log, trade, err
	default:
		return log, nil, fmt.Errorf("unknown event kind %q", event.Kind)
	}
}

func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// symbolLockTable coalesces concurrent access to the same base
// symbol's accumulator between the queue processor and the periodic
// sweep (spec section 4.8).
type symbolLockTable struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newSymbolLockTable() *symbolLockTable {
	return &symbolLockTable{locks: make(map[string]*sync.Mutex)}
}

func (t *symbolLockTable) lock(symbol string) (unlock func()) {
	t.mu.Lock()
	l, ok := t.locks[symbol]
	if !ok {
		l = &sync.Mutex{}
		t.locks[symbol] = l
	}
	t.mu.Unlock()

	l.Lock()
	return l.Unlock
}
