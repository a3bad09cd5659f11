package db

import (
	"encoding/json"
	"fmt"

	"github.com/st0x-bridge/equity-bridge/internal/domain"
)

// InsertExecutionTx creates a new BrokerExecution row in Pending status,
// indexed by symbol and by status for the poller and sweep scans.
func InsertExecutionTx(tx *Tx, exec domain.BrokerExecution) (domain.BrokerExecution, error) {
	id, err := nextID(tx, "execution")
	if err != nil {
		return domain.BrokerExecution{}, err
	}
	exec.ID = id

	if err := exec.Validate(); err != nil {
		return domain.BrokerExecution{}, err
	}
	if err := putExecution(tx, &exec); err != nil {
		return domain.BrokerExecution{}, err
	}
	if err := tx.set(execBySymbolKey(exec.Symbol, id), []byte(fmt.Sprintf("%d", id))); err != nil {
		return domain.BrokerExecution{}, err
	}
	if err := tx.set(execByStatusKey(string(exec.Status), id), []byte(fmt.Sprintf("%d", id))); err != nil {
		return domain.BrokerExecution{}, err
	}

	return exec, nil
}

// GetExecutionTx looks up an execution by surrogate id.
func GetExecutionTx(r reader, id int64) (*domain.BrokerExecution, bool, error) {
	raw, found, err := r.get(execByIDKey(id))
	if err != nil || !found {
		return nil, found, err
	}
	var exec domain.BrokerExecution
	if err := json.Unmarshal(raw, &exec); err != nil {
		return nil, false, fmt.Errorf("decode execution %d: %w", id, err)
	}
	if err := exec.Validate(); err != nil {
		return nil, false, err
	}
	return &exec, true, nil
}

// UpdateExecutionTx persists exec's new state, moving its status index
// entry from oldStatus to its current status.
func UpdateExecutionTx(tx *Tx, exec *domain.BrokerExecution, oldStatus domain.ExecutionStatus) error {
	if err := exec.Validate(); err != nil {
		return err
	}
	if err := putExecution(tx, exec); err != nil {
		return err
	}
	if oldStatus != exec.Status {
		if err := tx.delete(execByStatusKey(string(oldStatus), exec.ID)); err != nil {
			return err
		}
		if err := tx.set(execByStatusKey(string(exec.Status), exec.ID), []byte(fmt.Sprintf("%d", exec.ID))); err != nil {
			return err
		}
	}
	return nil
}

func putExecution(tx *Tx, exec *domain.BrokerExecution) error {
	raw, err := json.Marshal(exec)
	if err != nil {
		return fmt.Errorf("encode execution %d: %w", exec.ID, err)
	}
	return tx.set(execByIDKey(exec.ID), raw)
}

// ListByStatusTx returns every execution currently in status, the basis
// for the order-status poller's per-tick scan (spec section 4.10).
func ListByStatusTx(r reader, status domain.ExecutionStatus) ([]domain.BrokerExecution, error) {
	prefix := execByStatusPrefix(string(status))
	iter, err := r.newIter(prefix, keyUpperBound(prefix))
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var execs []domain.BrokerExecution
	for iter.First(); iter.Valid(); iter.Next() {
		var id int64
		if _, err := fmt.Sscanf(string(iter.Value()), "%d", &id); err != nil {
			return nil, fmt.Errorf("corrupt execution status index entry: %w", err)
		}
		exec, found, err := GetExecutionTx(r, id)
		if err != nil {
			return nil, err
		}
		if found {
			execs = append(execs, *exec)
		}
	}
	return execs, nil
}

// ListOpenBySymbolTx returns every Pending|Submitted execution for
// symbol — used to assert the single-flight-execution invariant in
// tests (spec section 8).
func ListOpenBySymbolTx(r reader, symbol string) ([]domain.BrokerExecution, error) {
	prefix := execBySymbolPrefix(symbol)
	iter, err := r.newIter(prefix, keyUpperBound(prefix))
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var open []domain.BrokerExecution
	for iter.First(); iter.Valid(); iter.Next() {
		var id int64
		if _, err := fmt.Sscanf(string(iter.Value()), "%d", &id); err != nil {
			return nil, fmt.Errorf("corrupt execution symbol index entry: %w", err)
		}
		exec, found, err := GetExecutionTx(r, id)
		if err != nil {
			return nil, err
		}
		if found && exec.IsOpen() {
			open = append(open, *exec)
		}
	}
	return open, nil
}
