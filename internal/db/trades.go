package db

import (
	"encoding/json"
	"fmt"

	"github.com/st0x-bridge/equity-bridge/internal/domain"
)

// InsertTradeTx persists trade, unique on (TxHash, LogIndex), inside tx.
// A duplicate returns the already-stored row rather than erroring, since
// the extractor is only ever invoked once per queued event and a retry
// of the same event must not create a second trade.
func InsertTradeTx(tx *Tx, trade domain.OnchainTrade) (domain.OnchainTrade, error) {
	idxKey := tradeIdxKey(trade.TxHash, trade.LogIndex)

	if existingRaw, found, err := tx.get(idxKey); err != nil {
		return domain.OnchainTrade{}, err
	} else if found {
		var existingID int64
		if _, err := fmt.Sscanf(string(existingRaw), "%d", &existingID); err != nil {
			return domain.OnchainTrade{}, fmt.Errorf("corrupt trade index entry: %w", err)
		}
		existing, found, err := GetTradeTx(tx, existingID)
		if err != nil {
			return domain.OnchainTrade{}, err
		}
		if !found {
			return domain.OnchainTrade{}, fmt.Errorf("trade index points at missing row %d", existingID)
		}
		return *existing, nil
	}

	id, err := nextID(tx, "trade")
	if err != nil {
		return domain.OnchainTrade{}, err
	}
	trade.ID = id

	raw, err := json.Marshal(trade)
	if err != nil {
		return domain.OnchainTrade{}, fmt.Errorf("encode trade %d: %w", id, err)
	}
	if err := tx.set(tradeByIDKey(id), raw); err != nil {
		return domain.OnchainTrade{}, err
	}
	if err := tx.set(idxKey, []byte(fmt.Sprintf("%d", id))); err != nil {
		return domain.OnchainTrade{}, err
	}
	if err := tx.set(tradeBySymbolKey(trade.BaseSymbol(), trade.CreatedAt.UnixNano(), id), []byte(fmt.Sprintf("%d", id))); err != nil {
		return domain.OnchainTrade{}, err
	}

	return trade, nil
}

// GetTradeTx looks up a trade by surrogate id within tx.
func GetTradeTx(r reader, id int64) (*domain.OnchainTrade, bool, error) {
	raw, found, err := r.get(tradeByIDKey(id))
	if err != nil || !found {
		return nil, found, err
	}
	var trade domain.OnchainTrade
	if err := json.Unmarshal(raw, &trade); err != nil {
		return nil, false, fmt.Errorf("decode trade %d: %w", id, err)
	}
	return &trade, true, nil
}

// ListTradesBySymbolTx returns all trades for baseSymbol in chronological
// (CreatedAt ascending) order, the FIFO allocation basis for spec
// section 4.7.
func ListTradesBySymbolTx(r reader, baseSymbol string) ([]domain.OnchainTrade, error) {
	prefix := tradeBySymbolPrefix(baseSymbol)
	iter, err := r.newIter(prefix, keyUpperBound(prefix))
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var trades []domain.OnchainTrade
	for iter.First(); iter.Valid(); iter.Next() {
		var id int64
		if _, err := fmt.Sscanf(string(iter.Value()), "%d", &id); err != nil {
			return nil, fmt.Errorf("corrupt trade symbol index entry: %w", err)
		}
		trade, found, err := GetTradeTx(r, id)
		if err != nil {
			return nil, err
		}
		if found {
			trades = append(trades, *trade)
		}
	}
	return trades, nil
}
