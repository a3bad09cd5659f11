// Package chain reads Rain OrderBookV4 events off an EVM chain: the
// ClearV2/AfterClear pair produced by a matched limit-order clear, and
// the TakeOrderV2 event produced by a market take against a resting
// order. Both ultimately describe the same shape of fill, which
// internal/extractor reduces to a domain.OnchainTrade.
package chain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// IO mirrors OrderBookV4's IO struct: one side of an order's accepted
// tokens, by vault.
type IO struct {
	Token    common.Address
	Decimals uint8
	VaultID  *big.Int
}

// EvaluableV2 mirrors OrderBookV4's EvaluableV2 struct. The bridge never
// evaluates order logic itself, so the fields are carried but unused.
type EvaluableV2 struct {
	Interpreter common.Address
	Store       common.Address
	Bytecode    []byte
}

// OrderV3 mirrors OrderBookV4's OrderV3 struct, the on-chain order
// record embedded in both ClearV2 and TakeOrderV2.
type OrderV3 struct {
	Owner        common.Address
	Evaluable    EvaluableV2
	ValidInputs  []IO
	ValidOutputs []IO
	Nonce        [32]byte
}

// ClearConfig mirrors OrderBookV4's ClearConfig struct: which IO index
// of each order was the input and which was the output for this clear.
type ClearConfig struct {
	AliceInputIOIndex  *big.Int
	AliceOutputIOIndex *big.Int
	BobInputIOIndex    *big.Int
	BobOutputIOIndex   *big.Int
	AliceBountyVaultID *big.Int
	BobBountyVaultID   *big.Int
}

// ClearV2 is emitted when two resting orders are matched against each
// other. It carries the two orders and the IO index mapping, but not
// the filled amounts — those arrive in the companion AfterClear event.
type ClearV2 struct {
	Sender      common.Address
	Alice       OrderV3
	Bob         OrderV3
	ClearConfig ClearConfig
}

// ClearStateChange mirrors OrderBookV4's ClearStateChange struct: the
// actual token amounts moved by a clear.
type ClearStateChange struct {
	AliceOutput *big.Int
	BobOutput   *big.Int
	AliceInput  *big.Int
	BobInput    *big.Int
}

// AfterClear is emitted immediately after ClearV2 in the same
// transaction, at a higher log index, and carries the filled amounts
// that ClearV2 itself omits.
type AfterClear struct {
	Sender           common.Address
	ClearStateChange ClearStateChange
}

// SignedContextV1 mirrors OrderBookV4's SignedContextV1 struct. Unused
// by the bridge beyond satisfying the ABI shape.
type SignedContextV1 struct {
	Signer    common.Address
	Context   []*big.Int
	Signature []byte
}

// TakeOrderConfigV3 mirrors OrderBookV4's TakeOrderConfigV3 struct.
type TakeOrderConfigV3 struct {
	Order         OrderV3
	InputIOIndex  *big.Int
	OutputIOIndex *big.Int
	SignedContext []SignedContextV1
}

// TakeOrderV2 is emitted when an order is filled directly by a taker
// rather than matched against another resting order. Unlike ClearV2, it
// carries the filled amounts directly.
type TakeOrderV2 struct {
	Sender common.Address
	Config TakeOrderConfigV3
	Input  *big.Int
	Output *big.Int
}
