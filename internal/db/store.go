// Package db is the durable, transactional key-value store backing
// every entity in the data model (spec section 3). It is built on
// Pebble, the teacher repo's own embedded store, generalized from a
// single-account ledger to the bridge's six entities and wrapped with
// an explicit caller-supplied transaction handle so mutations that must
// be atomic (e.g. marking a queue entry processed alongside the
// accumulator update that consumed it) are expressed as one batch.
//
// Pebble itself has no multi-statement SQL-style transaction; atomicity
// here comes from two things working together: a per-DB write mutex
// (DB.writeMu) that serializes all mutating transactions (so a
// transaction's reads-plus-writes are never interleaved with another
// transaction's), and a pebble.Batch that makes the transaction's own
// writes visible to its own reads and commits them all atomically or
// not at all.
package db

import (
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
)

// DB is the bridge's durable store.
type DB struct {
	pdb *pebble.DB

	// writeMu serializes all Update transactions. Concurrent Views do
	// not take it: Pebble readers don't block on writers.
	writeMu sync.Mutex
}

// Open opens (creating if absent) a Pebble database at path.
func Open(path string) (*DB, error) {
	opts := &pebble.Options{
		Cache:        pebble.NewCache(64 << 20),
		MemTableSize: 32 << 20,
		MaxOpenFiles: 1000,
		BytesPerSync: 512 << 10,
	}

	pdb, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("open pebble db at %s: %w", path, err)
	}

	return &DB{pdb: pdb}, nil
}

// Close closes the underlying Pebble database.
func (db *DB) Close() error {
	return db.pdb.Close()
}

// Tx is a caller-supplied transaction handle: a Pebble batch plus
// read-your-writes semantics, committed atomically by Update.
type Tx struct {
	batch *pebble.Batch
}

func (tx *Tx) set(key, value []byte) error {
	return tx.batch.Set(key, value, nil)
}

func (tx *Tx) delete(key []byte) error {
	return tx.batch.Delete(key, nil)
}

func (tx *Tx) get(key []byte) ([]byte, bool, error) {
	val, closer, err := tx.batch.Get(key)
	if err == pebble.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer closer.Close()
	out := make([]byte, len(val))
	copy(out, val)
	return out, true, nil
}

func (tx *Tx) newIter(lower, upper []byte) (*pebble.Iterator, error) {
	return tx.batch.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
}

// Update runs fn within a single atomic, serialized transaction. If fn
// returns an error, the batch is discarded and no mutation is visible.
func (db *DB) Update(fn func(tx *Tx) error) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	batch := db.pdb.NewBatch()
	tx := &Tx{batch: batch}

	if err := fn(tx); err != nil {
		_ = batch.Close()
		return err
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// ReadTx is a read-only, point-in-time view via a Pebble snapshot.
type ReadTx struct {
	snap *pebble.Snapshot
}

func (rtx *ReadTx) get(key []byte) ([]byte, bool, error) {
	val, closer, err := rtx.snap.Get(key)
	if err == pebble.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer closer.Close()
	out := make([]byte, len(val))
	copy(out, val)
	return out, true, nil
}

func (rtx *ReadTx) newIter(lower, upper []byte) (*pebble.Iterator, error) {
	return rtx.snap.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
}

// View runs fn against a consistent point-in-time snapshot.
func (db *DB) View(fn func(tx *ReadTx) error) error {
	snap := db.pdb.NewSnapshot()
	defer snap.Close()
	return fn(&ReadTx{snap: snap})
}

// reader is satisfied by both *Tx and *ReadTx, letting entity-level
// lookup/scan helpers run inside a mutating transaction or a read-only
// snapshot without duplicating code.
type reader interface {
	get(key []byte) ([]byte, bool, error)
	newIter(lower, upper []byte) (*pebble.Iterator, error)
}

// keyUpperBound returns the exclusive upper bound for a prefix scan by
// incrementing the last byte of a copy of prefix.
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
