package db

import (
	"encoding/json"
	"fmt"

	"github.com/st0x-bridge/equity-bridge/internal/domain"
)

// LoadOrCreateAccumulatorTx loads the PositionAccumulator row for
// baseSymbol, creating a zeroed one if absent.
func LoadOrCreateAccumulatorTx(r reader, baseSymbol string) (*domain.PositionAccumulator, error) {
	raw, found, err := r.get(accumulatorKey(baseSymbol))
	if err != nil {
		return nil, err
	}
	if !found {
		return domain.NewPositionAccumulator(baseSymbol), nil
	}
	var acc domain.PositionAccumulator
	if err := json.Unmarshal(raw, &acc); err != nil {
		return nil, fmt.Errorf("decode accumulator %s: %w", baseSymbol, err)
	}
	return &acc, nil
}

// PutAccumulatorTx persists acc.
func PutAccumulatorTx(tx *Tx, acc *domain.PositionAccumulator) error {
	raw, err := json.Marshal(acc)
	if err != nil {
		return fmt.Errorf("encode accumulator %s: %w", acc.Symbol, err)
	}
	return tx.set(accumulatorKey(acc.Symbol), raw)
}

// ListAccumulatorsTx returns every PositionAccumulator row, used by the
// periodic sweep (spec section 4.9).
func ListAccumulatorsTx(r reader) ([]domain.PositionAccumulator, error) {
	prefix := accumulatorScanPrefix()
	iter, err := r.newIter(prefix, keyUpperBound(prefix))
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var accs []domain.PositionAccumulator
	for iter.First(); iter.Valid(); iter.Next() {
		var acc domain.PositionAccumulator
		if err := json.Unmarshal(iter.Value(), &acc); err != nil {
			return nil, fmt.Errorf("decode accumulator: %w", err)
		}
		accs = append(accs, acc)
	}
	return accs, nil
}
