package chain

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"
)

func sampleOrder(token common.Address) OrderV3 {
	return OrderV3{
		Owner: common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Evaluable: EvaluableV2{
			Interpreter: common.HexToAddress("0x2222222222222222222222222222222222222222"),
			Store:       common.HexToAddress("0x3333333333333333333333333333333333333333"),
			Bytecode:    []byte{0x01, 0x02},
		},
		ValidInputs: []IO{
			{Token: token, Decimals: 6, VaultID: big.NewInt(1)},
		},
		ValidOutputs: []IO{
			{Token: token, Decimals: 18, VaultID: big.NewInt(2)},
		},
		Nonce: [32]byte{0xaa},
	}
}

func packEventData(t *testing.T, eventName string, args ...interface{}) []byte {
	t.Helper()
	event, ok := ParsedOrderBookABI.Events[eventName]
	require.True(t, ok, "event %s not found in ABI", eventName)
	data, err := event.Inputs.Pack(args...)
	require.NoError(t, err)
	return data
}

func TestDecodeClearV2RoundTrips(t *testing.T) {
	alice := sampleOrder(common.HexToAddress("0xaaaa"))
	bob := sampleOrder(common.HexToAddress("0xbbbb"))
	clearConfig := ClearConfig{
		AliceInputIOIndex:  big.NewInt(0),
		AliceOutputIOIndex: big.NewInt(0),
		BobInputIOIndex:    big.NewInt(0),
		BobOutputIOIndex:   big.NewInt(0),
		AliceBountyVaultID: big.NewInt(0),
		BobBountyVaultID:   big.NewInt(0),
	}

	data := packEventData(t, "ClearV2", common.HexToAddress("0xcccc"), alice, bob, clearConfig)

	decoded, err := DecodeClearV2(types.Log{Data: data})
	require.NoError(t, err)
	require.Equal(t, alice.Owner, decoded.Alice.Owner)
	require.Equal(t, bob.Owner, decoded.Bob.Owner)
	require.Equal(t, alice.ValidInputs[0].Token, decoded.Alice.ValidInputs[0].Token)
	require.Equal(t, 0, clearConfig.AliceInputIOIndex.Cmp(decoded.ClearConfig.AliceInputIOIndex))
}

func TestDecodeAfterClearRoundTrips(t *testing.T) {
	change := ClearStateChange{
		AliceOutput: big.NewInt(1_000_000000000000000),
		BobOutput:   big.NewInt(381_000000),
		AliceInput:  big.NewInt(381_000000),
		BobInput:    big.NewInt(1_000000000000000000),
	}

	data := packEventData(t, "AfterClear", common.HexToAddress("0xdddd"), change)

	decoded, err := DecodeAfterClear(types.Log{Data: data})
	require.NoError(t, err)
	require.Equal(t, 0, change.AliceInput.Cmp(decoded.ClearStateChange.AliceInput))
	require.Equal(t, 0, change.BobOutput.Cmp(decoded.ClearStateChange.BobOutput))
}

func TestDecodeTakeOrderV2RoundTrips(t *testing.T) {
	order := sampleOrder(common.HexToAddress("0xeeee"))
	config := TakeOrderConfigV3{
		Order:         order,
		InputIOIndex:  big.NewInt(0),
		OutputIOIndex: big.NewInt(0),
		SignedContext: []SignedContextV1{},
	}

	data := packEventData(t, "TakeOrderV2", common.HexToAddress("0xffff"), config, big.NewInt(2_000000000000000000), big.NewInt(381_000000))

	decoded, err := DecodeTakeOrderV2(types.Log{Data: data})
	require.NoError(t, err)
	require.Equal(t, order.Owner, decoded.Config.Order.Owner)
	require.Equal(t, 0, big.NewInt(2_000000000000000000).Cmp(decoded.Input))
	require.Equal(t, 0, big.NewInt(381_000000).Cmp(decoded.Output))
}

func TestOrderHashIsDeterministicAndSensitiveToFields(t *testing.T) {
	order := sampleOrder(common.HexToAddress("0x1234"))

	h1, err := OrderHash(order)
	require.NoError(t, err)
	h2, err := OrderHash(order)
	require.NoError(t, err)
	require.Equal(t, h1, h2)

	changed := order
	changed.Nonce = [32]byte{0xbb}
	h3, err := OrderHash(changed)
	require.NoError(t, err)
	require.NotEqual(t, h1, h3)
}
