// Package backfill implements the cold-start history catch-up of spec
// section 4.11: subscribe live first, then backfill everything that
// happened before the subscription was live, without ever dropping or
// double-processing a log.
package backfill

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/st0x-bridge/equity-bridge/internal/chain"
	"github.com/st0x-bridge/equity-bridge/internal/db"
	"github.com/st0x-bridge/equity-bridge/internal/domain"
)

const (
	liveWaitTimeout   = 5 * time.Second
	batchSize         = 1000
	batchConcurrency  = 4
	batchMaxAttempts  = 3
)

// Backfill drives the one-time cold-start history catch-up, then hands
// off to the caller for live processing.
type Backfill struct {
	source          chain.EventSource
	queue           *db.Queue
	deploymentBlock uint64
	log             *zap.Logger
}

func New(source chain.EventSource, queue *db.Queue, deploymentBlock uint64, log *zap.Logger) *Backfill {
	return &Backfill{source: source, queue: queue, deploymentBlock: deploymentBlock, log: log}
}

// Run subscribes to the live log stream, determines the backfill
// cutoff, replays [deploymentBlock, cutoff-1] in parallel batches, then
// enqueues whatever arrived live during that replay. It returns the
// live channel and subscription so the caller can keep consuming them
// for ordinary live processing once Run returns.
func (b *Backfill) Run(ctx context.Context) (<-chan types.Log, ethereum.Subscription, error) {
	liveCh, sub, err := b.source.SubscribeLogs(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("subscribe live logs: %w", err)
	}

	// A single goroutine owns liveCh for the whole backfill: first it
	// determines the cutoff from (or absent) the first live event,
	// then it buffers everything until the replay below finishes, then
	// it switches to forwarding straight through to forwardCh.
	var mu sync.Mutex
	var buffer []types.Log
	buffering := true
	cutoffCh := make(chan uint64, 1)

	forwardCh := make(chan types.Log, 256)
	go func() {
		defer close(forwardCh)

		timer := time.NewTimer(liveWaitTimeout)
		defer timer.Stop()

		select {
		case first, ok := <-liveCh:
			if !ok {
				return
			}
			mu.Lock()
			buffer = append(buffer, first)
			mu.Unlock()
			cutoffCh <- first.BlockNumber
		case <-timer.C:
			head, err := b.source.LatestBlock(ctx)
			if err != nil {
				b.log.Error("backfill: determine cutoff from chain head failed", zap.Error(err))
				head = b.deploymentBlock
			}
			cutoffCh <- head
		case <-ctx.Done():
			cutoffCh <- b.deploymentBlock
		}

		for logEntry := range liveCh {
			mu.Lock()
			if buffering {
				buffer = append(buffer, logEntry)
				mu.Unlock()
				continue
			}
			mu.Unlock()
			forwardCh <- logEntry
		}
	}()

	var cutoff uint64
	select {
	case cutoff = <-cutoffCh:
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}

	if cutoff > b.deploymentBlock {
		if err := b.replay(ctx, b.deploymentBlock, cutoff-1); err != nil {
			return nil, nil, err
		}
	}

	mu.Lock()
	buffering = false
	pending := buffer
	buffer = nil
	mu.Unlock()

	if err := b.enqueueBuffered(pending); err != nil {
		return nil, nil, err
	}

	b.log.Info("backfill complete", zap.Uint64("deployment_block", b.deploymentBlock), zap.Uint64("cutoff", cutoff))
	return forwardCh, sub, nil
}

func (b *Backfill) replay(ctx context.Context, fromBlock, toBlock uint64) error {
	type batch struct{ from, to uint64 }
	var batches []batch
	for start := fromBlock; start <= toBlock; start += batchSize {
		end := start + batchSize - 1
		if end > toBlock {
			end = toBlock
		}
		batches = append(batches, batch{start, end})
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(batchConcurrency)

	for _, bt := range batches {
		bt := bt
		group.Go(func() error {
			logs, err := b.fetchBatchWithRetry(groupCtx, bt.from, bt.to)
			if err != nil {
				return fmt.Errorf("backfill batch [%d,%d]: %w", bt.from, bt.to, err)
			}
			return b.enqueueBuffered(logs)
		})
	}

	return group.Wait()
}

func (b *Backfill) fetchBatchWithRetry(ctx context.Context, fromBlock, toBlock uint64) ([]types.Log, error) {
	var logs []types.Log
	op := func() error {
		found, err := b.source.BackfillLogs(ctx, fromBlock, toBlock)
		if err != nil {
			return err
		}
		logs = found
		return nil
	}

	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), batchMaxAttempts-1)
	if err := backoff.Retry(op, backoff.WithContext(policy, ctx)); err != nil {
		return nil, err
	}
	return logs, nil
}

func (b *Backfill) enqueueBuffered(logs []types.Log) error {
	if len(logs) == 0 {
		return nil
	}

	events := make([]domain.QueuedEvent, 0, len(logs))
	for _, logEntry := range logs {
		evt, ok, err := QueuedEventFromLog(logEntry)
		if err != nil {
			return err
		}
		if ok {
			events = append(events, evt)
		}
	}
	return b.queue.EnqueueBuffer(events)
}

// QueuedEventFromLog classifies a raw log by its first topic, the only
// on-chain signal distinguishing ClearV2 from TakeOrderV2. AfterClear
// logs are never queued directly: the extractor fetches the paired
// AfterClear on demand when it processes the corresponding ClearV2.
// Exported so the live-event receiver can classify logs the same way
// once this backfill's cutoff handoff is done.
func QueuedEventFromLog(logEntry types.Log) (domain.QueuedEvent, bool, error) {
	if len(logEntry.Topics) == 0 {
		return domain.QueuedEvent{}, false, nil
	}

	var kind domain.EventKind
	switch logEntry.Topics[0] {
	case chain.ClearV2Signature:
		kind = domain.EventClearV2
	case chain.TakeOrderV2Signature:
		kind = domain.EventTakeOrderV2
	default:
		return domain.QueuedEvent{}, false, nil
	}

	blob, err := json.Marshal(logEntry)
	if err != nil {
		return domain.QueuedEvent{}, false, fmt.Errorf("encode log blob: %w", err)
	}

	return domain.QueuedEvent{
		TxHash:      logEntry.TxHash.Hex(),
		LogIndex:    logEntry.Index,
		BlockNumber: logEntry.BlockNumber,
		Kind:        kind,
		Blob:        blob,
	}, true, nil
}
