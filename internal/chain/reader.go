package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// ChainReader serves the point lookups the trade extractor needs
// beyond the raw event stream: the AfterClear log that completes a
// ClearV2 match, and the ERC20 symbol of an IO's token.
type ChainReader interface {
	// AfterClearForTx returns the AfterClear log in the same
	// transaction as a ClearV2 at clearLogIndex, which by OrderBookV4's
	// emission order always has a strictly greater log index.
	AfterClearForTx(ctx context.Context, blockNumber uint64, txHash common.Hash, clearLogIndex uint) (*AfterClear, error)

	// ERC20Symbol returns the symbol() of token, used by the symbol
	// resolver cache on a miss.
	ERC20Symbol(ctx context.Context, token common.Address) (string, error)
}

// EthClientReader is a ChainReader backed by a live ethclient connection.
type EthClientReader struct {
	client    *ethclient.Client
	orderbook common.Address
	retry     func() backoff.BackOff
	// symbolRetry is ERC20Symbol's own, tighter policy: spec section
	// 4.4 caps symbol resolution at 3 attempts, independent of the
	// looser retry budget AfterClearForTx uses.
	symbolRetry func() backoff.BackOff
}

func NewEthClientReader(client *ethclient.Client, orderbook common.Address) *EthClientReader {
	return &EthClientReader{
		client:      client,
		orderbook:   orderbook,
		retry:       func() backoff.BackOff { return backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5) },
		symbolRetry: func() backoff.BackOff { return backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2) },
	}
}

func (r *EthClientReader) AfterClearForTx(ctx context.Context, blockNumber uint64, txHash common.Hash, clearLogIndex uint) (*AfterClear, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(blockNumber),
		ToBlock:   new(big.Int).SetUint64(blockNumber),
		Addresses: []common.Address{r.orderbook},
		Topics:    [][]common.Hash{{AfterClearSignature}},
	}

	var logs []types.Log
	op := func() error {
		found, err := r.client.FilterLogs(ctx, query)
		if err != nil {
			return err
		}
		logs = found
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(r.retry(), ctx)); err != nil {
		return nil, fmt.Errorf("fetch AfterClear logs for block %d: %w", blockNumber, err)
	}

	for _, log := range logs {
		if log.TxHash != txHash || log.Index <= clearLogIndex {
			continue
		}
		evt, err := DecodeAfterClear(log)
		if err != nil {
			return nil, err
		}
		return &evt, nil
	}
	return nil, fmt.Errorf("no AfterClear log found for tx %s after log index %d", txHash, clearLogIndex)
}

func (r *EthClientReader) ERC20Symbol(ctx context.Context, token common.Address) (string, error) {
	data, err := ParsedERC20ABI.Pack("symbol")
	if err != nil {
		return "", fmt.Errorf("pack symbol() call for %s: %w", token, err)
	}

	var result []byte
	op := func() error {
		out, err := r.client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
		if err != nil {
			return err
		}
		result = out
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(r.symbolRetry(), ctx)); err != nil {
		return "", fmt.Errorf("call symbol() on %s: %w", token, err)
	}

	return DecodeERC20Symbol(result)
}
