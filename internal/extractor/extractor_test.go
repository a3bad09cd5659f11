package extractor

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/st0x-bridge/equity-bridge/internal/chain"
	"github.com/st0x-bridge/equity-bridge/internal/clock"
)

var (
	usdcToken  = common.HexToAddress("0x1111111111111111111111111111111111111111")
	aaplToken  = common.HexToAddress("0x2222222222222222222222222222222222222222")
	owner      = common.HexToAddress("0x3333333333333333333333333333333333333333")
	otherOwner = common.HexToAddress("0x4444444444444444444444444444444444444444")
)

type stubResolver struct{ symbols map[common.Address]string }

func (r stubResolver) Symbol(ctx context.Context, token common.Address) (string, error) {
	return r.symbols[token], nil
}

type stubReader struct {
	afterClear *chain.AfterClear
}

func (r stubReader) AfterClearForTx(ctx context.Context, blockNumber uint64, txHash common.Hash, clearLogIndex uint) (*chain.AfterClear, error) {
	return r.afterClear, nil
}

func (r stubReader) ERC20Symbol(ctx context.Context, token common.Address) (string, error) {
	return "", nil
}

func testOrder(inputToken, outputToken common.Address) chain.OrderV3 {
	return chain.OrderV3{
		Owner: otherOwner,
		ValidInputs: []chain.IO{
			{Token: inputToken, Decimals: 6, VaultID: big.NewInt(1)},
		},
		ValidOutputs: []chain.IO{
			{Token: outputToken, Decimals: 18, VaultID: big.NewInt(2)},
		},
	}
}

func resolverFor(order chain.OrderV3) stubResolver {
	return stubResolver{symbols: map[common.Address]string{
		order.ValidInputs[0].Token:  symbolFor(order.ValidInputs[0].Token),
		order.ValidOutputs[0].Token: symbolFor(order.ValidOutputs[0].Token),
	}}
}

func symbolFor(token common.Address) string {
	switch token {
	case usdcToken:
		return "USDC"
	case aaplToken:
		return "AAPLs1"
	default:
		return "UNKNOWN"
	}
}

func TestFromTakeOrderV2SellWhenOrderGivesUSDCForTokenizedShare(t *testing.T) {
	order := testOrder(aaplToken, usdcToken) // resting order accepts AAPL, gives USDC
	hash, err := chain.OrderHash(order)
	require.NoError(t, err)

	ex := New(resolverFor(order), stubReader{}, owner, hash, clock.NewFake(time.Now()))

	evt := chain.TakeOrderV2{
		Config: chain.TakeOrderConfigV3{
			Order:         order,
			InputIOIndex:  big.NewInt(0),
			OutputIOIndex: big.NewInt(0),
		},
		Input:  bigFromFloat(2, 18),  // 2 AAPLs1 in
		Output: bigFromFloat(381, 6), // 381 USDC out
	}

	trade, err := ex.FromTakeOrderV2(context.Background(), evt, types.Log{})
	require.NoError(t, err)
	require.NotNil(t, trade)
	require.Equal(t, "AAPLs1", trade.Symbol)
	require.Equal(t, "AAPL", trade.BaseSymbol())
	require.Equal(t, "Sell", string(trade.Direction))
	require.True(t, trade.Amount.Equal(decimal.NewFromInt(2)))
}

func TestFromTakeOrderV2IgnoresUnmatchedOrderHash(t *testing.T) {
	order := testOrder(aaplToken, usdcToken)
	otherOrder := testOrder(usdcToken, aaplToken)
	trackedHash, err := chain.OrderHash(otherOrder)
	require.NoError(t, err)

	ex := New(resolverFor(order), stubReader{}, owner, trackedHash, clock.NewFake(time.Now()))

	evt := chain.TakeOrderV2{
		Config: chain.TakeOrderConfigV3{
			Order:         order,
			InputIOIndex:  big.NewInt(0),
			OutputIOIndex: big.NewInt(0),
		},
		Input:  bigFromFloat(2, 18),
		Output: bigFromFloat(381, 6),
	}

	trade, err := ex.FromTakeOrderV2(context.Background(), evt, types.Log{})
	require.NoError(t, err)
	require.Nil(t, trade)
}

func TestFromClearV2UsesCompanionAfterClearAmounts(t *testing.T) {
	order := testOrder(usdcToken, aaplToken) // Alice's order accepts USDC, gives AAPL

	evt := chain.ClearV2{
		Alice: order,
		Bob:   testOrder(aaplToken, usdcToken),
		ClearConfig: chain.ClearConfig{
			AliceInputIOIndex:  big.NewInt(0),
			AliceOutputIOIndex: big.NewInt(0),
			BobInputIOIndex:    big.NewInt(0),
			BobOutputIOIndex:   big.NewInt(0),
		},
	}
	evt.Alice.Owner = owner

	reader := stubReader{afterClear: &chain.AfterClear{
		ClearStateChange: chain.ClearStateChange{
			AliceInput:  bigFromFloat(190, 6),
			AliceOutput: bigFromFloat(1, 18),
		},
	}}

	ex := New(resolverFor(order), reader, owner, [32]byte{}, clock.NewFake(time.Now()))

	trade, err := ex.FromClearV2(context.Background(), evt, types.Log{})
	require.NoError(t, err)
	require.NotNil(t, trade)
	require.Equal(t, "AAPL", trade.BaseSymbol())
	require.Equal(t, "Buy", string(trade.Direction))
}

func TestFromTakeOrderV2PreservesThe0xSuffixVariant(t *testing.T) {
	aapl0xToken := common.HexToAddress("0x5555555555555555555555555555555555555555")
	order := testOrder(aapl0xToken, usdcToken)
	hash, err := chain.OrderHash(order)
	require.NoError(t, err)

	resolver := stubResolver{symbols: map[common.Address]string{
		aapl0xToken: "AAPL0x",
		usdcToken:   "USDC",
	}}
	ex := New(resolver, stubReader{}, owner, hash, clock.NewFake(time.Now()))

	evt := chain.TakeOrderV2{
		Config: chain.TakeOrderConfigV3{
			Order:         order,
			InputIOIndex:  big.NewInt(0),
			OutputIOIndex: big.NewInt(0),
		},
		Input:  bigFromFloat(2, 18),
		Output: bigFromFloat(381, 6),
	}

	trade, err := ex.FromTakeOrderV2(context.Background(), evt, types.Log{})
	require.NoError(t, err)
	require.NotNil(t, trade)
	require.Equal(t, "AAPL0x", trade.Symbol, "must preserve the 0x suffix actually traded, not reconstruct s1")
	require.Equal(t, "AAPL", trade.BaseSymbol())
}

func TestFromClearV2IgnoresClearsNotInvolvingTrackedOwner(t *testing.T) {
	order := testOrder(usdcToken, aaplToken)
	evt := chain.ClearV2{
		Alice: order,
		Bob:   testOrder(aaplToken, usdcToken),
	}

	ex := New(resolverFor(order), stubReader{}, owner, [32]byte{}, clock.NewFake(time.Now()))

	trade, err := ex.FromClearV2(context.Background(), evt, types.Log{})
	require.NoError(t, err)
	require.Nil(t, trade)
}

func bigFromFloat(whole int64, decimals int32) *big.Int {
	base := new(big.Int).SetInt64(whole)
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	return base.Mul(base, scale)
}
