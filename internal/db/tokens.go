package db

import (
	"encoding/json"
	"fmt"

	"github.com/st0x-bridge/equity-bridge/internal/domain"
)

// InsertTokenTx appends a new TokenRecord row. Token rows are never
// updated in place (spec section 9): a refresh writes a new row rather
// than mutating the previous one, so the append order itself is the
// audit trail.
func InsertTokenTx(tx *Tx, rec domain.TokenRecord) (domain.TokenRecord, error) {
	id, err := nextID(tx, "token")
	if err != nil {
		return domain.TokenRecord{}, err
	}
	rec.ID = id

	raw, err := json.Marshal(rec)
	if err != nil {
		return domain.TokenRecord{}, fmt.Errorf("encode token %d: %w", id, err)
	}
	key := tokenKey(rec.RefreshFetchedAt.UnixNano(), id)
	if err := tx.set(key, raw); err != nil {
		return domain.TokenRecord{}, err
	}

	return rec, nil
}

// LatestTokenTx returns the most recently appended TokenRecord, or
// found=false if no token has ever been stored.
func LatestTokenTx(r reader) (*domain.TokenRecord, bool, error) {
	prefix := tokenScanPrefix()
	iter, err := r.newIter(prefix, keyUpperBound(prefix))
	if err != nil {
		return nil, false, err
	}
	defer iter.Close()

	if !iter.Last() {
		return nil, false, nil
	}

	var rec domain.TokenRecord
	if err := json.Unmarshal(iter.Value(), &rec); err != nil {
		return nil, false, fmt.Errorf("decode token: %w", err)
	}
	return &rec, true, nil
}
