package chain

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var orderV3Arguments = mustOrderV3Arguments()

func mustOrderV3Arguments() abi.Arguments {
	orderType, err := abi.NewType("tuple", "", []abi.ArgumentMarshaling{
		{Name: "owner", Type: "address"},
		{Name: "evaluable", Type: "tuple", Components: []abi.ArgumentMarshaling{
			{Name: "interpreter", Type: "address"},
			{Name: "store", Type: "address"},
			{Name: "bytecode", Type: "bytes"},
		}},
		{Name: "validInputs", Type: "tuple[]", Components: []abi.ArgumentMarshaling{
			{Name: "token", Type: "address"},
			{Name: "decimals", Type: "uint8"},
			{Name: "vaultId", Type: "uint256"},
		}},
		{Name: "validOutputs", Type: "tuple[]", Components: []abi.ArgumentMarshaling{
			{Name: "token", Type: "address"},
			{Name: "decimals", Type: "uint8"},
			{Name: "vaultId", Type: "uint256"},
		}},
		{Name: "nonce", Type: "bytes32"},
	})
	if err != nil {
		panic(fmt.Sprintf("chain: invalid OrderV3 ABI type: %v", err))
	}
	return abi.Arguments{{Type: orderType}}
}

// orderV3Tuple mirrors OrderV3's field layout with the plain types
// abi.Arguments.Pack expects. It reuses IO as-is, so each IO's decimals
// field is packed as a uint8.
type orderV3Tuple struct {
	Owner        common.Address
	Evaluable    EvaluableV2
	ValidInputs  []IO
	ValidOutputs []IO
	Nonce        [32]byte
}

// OrderHash computes the keccak256 of order's ABI encoding, the same
// value OrderBookV4 uses on-chain to identify an order. The bridge
// compares this against its configured target order hash to decide
// whether a TakeOrderV2 event is relevant.
func OrderHash(order OrderV3) (common.Hash, error) {
	encoded, err := orderV3Arguments.Pack(orderV3Tuple{
		Owner:        order.Owner,
		Evaluable:    order.Evaluable,
		ValidInputs:  order.ValidInputs,
		ValidOutputs: order.ValidOutputs,
		Nonce:        order.Nonce,
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("encode order for hashing: %w", err)
	}
	return crypto.Keccak256Hash(encoded), nil
}
