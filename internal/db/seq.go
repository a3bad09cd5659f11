package db

import (
	"encoding/binary"
)

// nextID allocates the next surrogate id for entity, scoped to tx so the
// allocation is part of the caller's atomic transaction. Ids start at 1.
func nextID(tx *Tx, entity string) (int64, error) {
	key := seqKey(entity)

	raw, found, err := tx.get(key)
	if err != nil {
		return 0, err
	}

	var next uint64 = 1
	if found {
		next = binary.BigEndian.Uint64(raw) + 1
	}

	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, next)
	if err := tx.set(key, buf); err != nil {
		return 0, err
	}

	return int64(next), nil
}
