package db

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/st0x-bridge/equity-bridge/internal/domain"
)

// Queue provides the durable, deduplicated, totally ordered event log
// operations of spec section 4.2.
type Queue struct {
	db *DB
}

func NewQueue(d *DB) *Queue { return &Queue{db: d} }

// Enqueue upserts evt by (TxHash, LogIndex). A duplicate is a silent
// no-op that returns the already-stored row. Opens its own transaction;
// use EnqueueTx to compose with other mutations.
func (q *Queue) Enqueue(evt domain.QueuedEvent) (domain.QueuedEvent, error) {
	var out domain.QueuedEvent
	err := q.db.Update(func(tx *Tx) error {
		var err error
		out, err = EnqueueTx(tx, evt)
		return err
	})
	return out, err
}

// EnqueueTx is the transactional core of Enqueue: an insert-or-ignore
// keyed on the uniqueness index, performed as a single atomic
// read-then-write under the package's serializing write lock — never a
// racy SELECT-then-INSERT (per spec section 9's note on idempotence).
func EnqueueTx(tx *Tx, evt domain.QueuedEvent) (domain.QueuedEvent, error) {
	idxKey := eventIdxKey(evt.TxHash, evt.LogIndex)

	if existingIDRaw, found, err := tx.get(idxKey); err != nil {
		return domain.QueuedEvent{}, err
	} else if found {
		var existingID int64
		if _, err := fmt.Sscanf(string(existingIDRaw), "%d", &existingID); err != nil {
			return domain.QueuedEvent{}, fmt.Errorf("corrupt event index entry: %w", err)
		}
		existing, found, err := getEventByID(tx, existingID)
		if err != nil {
			return domain.QueuedEvent{}, err
		}
		if !found {
			return domain.QueuedEvent{}, fmt.Errorf("event index points at missing row %d", existingID)
		}
		return *existing, nil
	}

	id, err := nextID(tx, "event")
	if err != nil {
		return domain.QueuedEvent{}, err
	}
	evt.ID = id

	if err := putEvent(tx, &evt); err != nil {
		return domain.QueuedEvent{}, err
	}
	if err := tx.set(idxKey, []byte(fmt.Sprintf("%d", id))); err != nil {
		return domain.QueuedEvent{}, err
	}
	if err := tx.set(eventOrderKey(evt.BlockNumber, evt.LogIndex, id), []byte(fmt.Sprintf("%d", id))); err != nil {
		return domain.QueuedEvent{}, err
	}

	return evt, nil
}

// EnqueueBuffer bulk-enqueues events, used on startup to absorb live
// events buffered during backfill (spec section 4.11). Each event is
// independently idempotent, so overlap with already-backfilled ranges
// is harmless.
func (q *Queue) EnqueueBuffer(events []domain.QueuedEvent) error {
	return q.db.Update(func(tx *Tx) error {
		for _, evt := range events {
			if _, err := EnqueueTx(tx, evt); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetNextUnprocessed returns the single smallest unprocessed row by
// (block_number, log_index), tie-broken by id, or nil if the queue is
// drained.
func (q *Queue) GetNextUnprocessed() (*domain.QueuedEvent, error) {
	var out *domain.QueuedEvent
	err := q.db.View(func(tx *ReadTx) error {
		var err error
		out, err = nextUnprocessed(tx)
		return err
	})
	return out, err
}

func nextUnprocessed(r reader) (*domain.QueuedEvent, error) {
	iter, err := r.newIter(eventOrderPrefix(), keyUpperBound(eventOrderPrefix()))
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		var id int64
		if _, err := fmt.Sscanf(string(iter.Value()), "%d", &id); err != nil {
			return nil, fmt.Errorf("corrupt event order entry: %w", err)
		}
		evt, found, err := getEventByID(r, id)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		if evt.Processed {
			continue
		}
		return evt, nil
	}
	return nil, nil
}

// MarkProcessedTx flips evt.Processed within the caller-supplied
// transaction, so the flip commits atomically with whatever the
// processor did in the same transaction.
func MarkProcessedTx(tx *Tx, id int64, now time.Time) error {
	evt, found, err := getEventByID(tx, id)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("mark processed: event %d not found", id)
	}
	if evt.Processed {
		return nil // idempotent
	}
	evt.Processed = true
	evt.ProcessedAt = &now
	return putEvent(tx, evt)
}

// CountUnprocessed reports the number of unprocessed rows, for observability.
func (q *Queue) CountUnprocessed() (int, error) {
	count := 0
	err := q.db.View(func(tx *ReadTx) error {
		iter, err := tx.newIter(eventOrderPrefix(), keyUpperBound(eventOrderPrefix()))
		if err != nil {
			return err
		}
		defer iter.Close()

		for iter.First(); iter.Valid(); iter.Next() {
			var id int64
			if _, err := fmt.Sscanf(string(iter.Value()), "%d", &id); err != nil {
				return fmt.Errorf("corrupt event order entry: %w", err)
			}
			evt, found, err := getEventByID(tx, id)
			if err != nil {
				return err
			}
			if found && !evt.Processed {
				count++
			}
		}
		return nil
	})
	return count, err
}

func getEventByID(r reader, id int64) (*domain.QueuedEvent, bool, error) {
	raw, found, err := r.get(eventByIDKey(id))
	if err != nil || !found {
		return nil, found, err
	}
	var evt domain.QueuedEvent
	if err := json.Unmarshal(raw, &evt); err != nil {
		return nil, false, fmt.Errorf("decode event %d: %w", id, err)
	}
	return &evt, true, nil
}

func putEvent(tx *Tx, evt *domain.QueuedEvent) error {
	raw, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode event %d: %w", evt.ID, err)
	}
	return tx.set(eventByIDKey(evt.ID), raw)
}
