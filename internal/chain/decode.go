package chain

import (
	"fmt"

	"github.com/ethereum/go-ethereum/core/types"
)

// DecodeClearV2 unpacks a ClearV2 log's non-indexed data. All of
// ClearV2's fields are non-indexed, so log.Topics carries only the
// event signature.
func DecodeClearV2(log types.Log) (ClearV2, error) {
	var evt ClearV2
	if err := ParsedOrderBookABI.UnpackIntoInterface(&evt, "ClearV2", log.Data); err != nil {
		return ClearV2{}, fmt.Errorf("decode ClearV2 (tx %s log %d): %w", log.TxHash, log.Index, err)
	}
	return evt, nil
}

// DecodeAfterClear unpacks an AfterClear log's non-indexed data.
func DecodeAfterClear(log types.Log) (AfterClear, error) {
	var evt AfterClear
	if err := ParsedOrderBookABI.UnpackIntoInterface(&evt, "AfterClear", log.Data); err != nil {
		return AfterClear{}, fmt.Errorf("decode AfterClear (tx %s log %d): %w", log.TxHash, log.Index, err)
	}
	return evt, nil
}

// DecodeTakeOrderV2 unpacks a TakeOrderV2 log's non-indexed data.
func DecodeTakeOrderV2(log types.Log) (TakeOrderV2, error) {
	var evt TakeOrderV2
	if err := ParsedOrderBookABI.UnpackIntoInterface(&evt, "TakeOrderV2", log.Data); err != nil {
		return TakeOrderV2{}, fmt.Errorf("decode TakeOrderV2 (tx %s log %d): %w", log.TxHash, log.Index, err)
	}
	return evt, nil
}

// DecodeERC20Symbol unpacks the return value of a symbol() eth_call.
func DecodeERC20Symbol(result []byte) (string, error) {
	out, err := ParsedERC20ABI.Unpack("symbol", result)
	if err != nil {
		return "", fmt.Errorf("decode ERC20 symbol result: %w", err)
	}
	if len(out) != 1 {
		return "", fmt.Errorf("decode ERC20 symbol result: expected 1 return value, got %d", len(out))
	}
	symbol, ok := out[0].(string)
	if !ok {
		return "", fmt.Errorf("decode ERC20 symbol result: unexpected type %T", out[0])
	}
	return symbol, nil
}
