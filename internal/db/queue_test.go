package db_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/st0x-bridge/equity-bridge/internal/db"
	"github.com/st0x-bridge/equity-bridge/internal/domain"
)

func newTestDB(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "queue_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return database
}

func TestEnqueueIsIdempotentByTxHashAndLogIndex(t *testing.T) {
	database := newTestDB(t)
	queue := db.NewQueue(database)

	evt := domain.QueuedEvent{
		TxHash:      "0xabc",
		LogIndex:    3,
		BlockNumber: 100,
		Kind:        domain.EventClearV2,
		Blob:        []byte("payload-1"),
		CreatedAt:   time.Now(),
	}

	first, err := queue.Enqueue(evt)
	require.NoError(t, err)
	require.NotZero(t, first.ID)

	evt.Blob = []byte("payload-2") // a second attempt with a different body still dedupes on identity
	second, err := queue.Enqueue(evt)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, "payload-1", string(second.Blob))
}

func TestGetNextUnprocessedOrdersByBlockThenLogIndex(t *testing.T) {
	database := newTestDB(t)
	queue := db.NewQueue(database)

	later, err := queue.Enqueue(domain.QueuedEvent{TxHash: "0x2", LogIndex: 0, BlockNumber: 200, Kind: domain.EventClearV2, CreatedAt: time.Now()})
	require.NoError(t, err)
	earlier, err := queue.Enqueue(domain.QueuedEvent{TxHash: "0x1", LogIndex: 1, BlockNumber: 100, Kind: domain.EventTakeOrderV2, CreatedAt: time.Now()})
	require.NoError(t, err)

	next, err := queue.GetNextUnprocessed()
	require.NoError(t, err)
	require.NotNil(t, next)
	require.Equal(t, earlier.ID, next.ID)

	require.NoError(t, database.Update(func(tx *db.Tx) error {
		return db.MarkProcessedTx(tx, earlier.ID, time.Now())
	}))

	next, err = queue.GetNextUnprocessed()
	require.NoError(t, err)
	require.NotNil(t, next)
	require.Equal(t, later.ID, next.ID)
}

func TestGetNextUnprocessedReturnsNilWhenDrained(t *testing.T) {
	database := newTestDB(t)
	queue := db.NewQueue(database)

	next, err := queue.GetNextUnprocessed()
	require.NoError(t, err)
	require.Nil(t, next)
}

func TestCountUnprocessedExcludesProcessedRows(t *testing.T) {
	database := newTestDB(t)
	queue := db.NewQueue(database)

	a, err := queue.Enqueue(domain.QueuedEvent{TxHash: "0x1", LogIndex: 0, BlockNumber: 1, Kind: domain.EventClearV2, CreatedAt: time.Now()})
	require.NoError(t, err)
	_, err = queue.Enqueue(domain.QueuedEvent{TxHash: "0x2", LogIndex: 0, BlockNumber: 2, Kind: domain.EventClearV2, CreatedAt: time.Now()})
	require.NoError(t, err)

	count, err := queue.CountUnprocessed()
	require.NoError(t, err)
	require.Equal(t, 2, count)

	require.NoError(t, database.Update(func(tx *db.Tx) error {
		return db.MarkProcessedTx(tx, a.ID, time.Now())
	}))

	count, err = queue.CountUnprocessed()
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestEnqueueBufferAbsorbsOverlapWithAlreadyQueuedEvents(t *testing.T) {
	database := newTestDB(t)
	queue := db.NewQueue(database)

	existing, err := queue.Enqueue(domain.QueuedEvent{TxHash: "0x1", LogIndex: 0, BlockNumber: 1, Kind: domain.EventClearV2, CreatedAt: time.Now()})
	require.NoError(t, err)

	err = queue.EnqueueBuffer([]domain.QueuedEvent{
		existing, // duplicate, should no-op
		{TxHash: "0x2", LogIndex: 0, BlockNumber: 2, Kind: domain.EventTakeOrderV2, CreatedAt: time.Now()},
	})
	require.NoError(t, err)

	count, err := queue.CountUnprocessed()
	require.NoError(t, err)
	require.Equal(t, 2, count)
}
