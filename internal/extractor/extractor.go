// Package extractor reduces ClearV2/AfterClear and TakeOrderV2 chain
// events to domain.OnchainTrade rows, the bridge's canonical unit of
// on-chain activity.
package extractor

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"

	"github.com/st0x-bridge/equity-bridge/internal/bridgeerr"
	"github.com/st0x-bridge/equity-bridge/internal/chain"
	"github.com/st0x-bridge/equity-bridge/internal/clock"
	"github.com/st0x-bridge/equity-bridge/internal/domain"
)

// Extractor turns raw orderbook events into domain.OnchainTrade rows,
// filtered down to the one order this bridge tracks.
type Extractor struct {
	symbols    Resolver
	reader     chain.ChainReader
	orderOwner common.Address
	orderHash  common.Hash
	clk        clock.Clock
}

// Resolver is the subset of symbol.Cache the extractor depends on.
type Resolver interface {
	Symbol(ctx context.Context, token common.Address) (string, error)
}

func New(symbols Resolver, reader chain.ChainReader, orderOwner common.Address, orderHash common.Hash, clk clock.Clock) *Extractor {
	return &Extractor{
		symbols:    symbols,
		reader:     reader,
		orderOwner: orderOwner,
		orderHash:  orderHash,
		clk:        clk,
	}
}

// orderFill is the IO-index-resolved shape both ClearV2 and TakeOrderV2
// reduce to before symbol resolution and amount conversion.
type orderFill struct {
	inputIndex   int
	inputAmount  *big.Int
	outputIndex  int
	outputAmount *big.Int
}

// FromClearV2 extracts a trade from a ClearV2 event, if either side of
// the clear is the tracked order. ClearV2 itself carries no amounts, so
// this looks up the companion AfterClear log in the same transaction.
func (e *Extractor) FromClearV2(ctx context.Context, evt chain.ClearV2, log types.Log) (*domain.OnchainTrade, error) {
	aliceMatch := evt.Alice.Owner == e.orderOwner
	bobMatch := evt.Bob.Owner == e.orderOwner
	if !aliceMatch && !bobMatch {
		return nil, nil
	}

	after, err := e.reader.AfterClearForTx(ctx, log.BlockNumber, log.TxHash, uint(log.Index))
	if err != nil {
		return nil, err
	}

	var order chain.OrderV3
	var fill orderFill
	if aliceMatch {
		order = evt.Alice
		fill = orderFill{
			inputIndex:   intFromBig(evt.ClearConfig.AliceInputIOIndex),
			inputAmount:  after.ClearStateChange.AliceInput,
			outputIndex:  intFromBig(evt.ClearConfig.AliceOutputIOIndex),
			outputAmount: after.ClearStateChange.AliceOutput,
		}
	} else {
		order = evt.Bob
		fill = orderFill{
			inputIndex:   intFromBig(evt.ClearConfig.BobInputIOIndex),
			inputAmount:  after.ClearStateChange.BobInput,
			outputIndex:  intFromBig(evt.ClearConfig.BobOutputIOIndex),
			outputAmount: after.ClearStateChange.BobOutput,
		}
	}

	return e.fromOrderAndFill(ctx, order, fill, log)
}

// FromTakeOrderV2 extracts a trade from a TakeOrderV2 event, if the
// taken order matches the tracked order hash.
func (e *Extractor) FromTakeOrderV2(ctx context.Context, evt chain.TakeOrderV2, log types.Log) (*domain.OnchainTrade, error) {
	hash, err := chain.OrderHash(evt.Config.Order)
	if err != nil {
		return nil, err
	}
	if hash != e.orderHash {
		return nil, nil
	}

	fill := orderFill{
		inputIndex:   intFromBig(evt.Config.InputIOIndex),
		inputAmount:  evt.Input,
		outputIndex:  intFromBig(evt.Config.OutputIOIndex),
		outputAmount: evt.Output,
	}

	return e.fromOrderAndFill(ctx, evt.Config.Order, fill, log)
}

func (e *Extractor) fromOrderAndFill(ctx context.Context, order chain.OrderV3, fill orderFill, log types.Log) (*domain.OnchainTrade, error) {
	if fill.inputIndex < 0 || fill.inputIndex >= len(order.ValidInputs) {
		return nil, fmt.Errorf("%w: input IO index %d out of range (%d inputs)", bridgeerr.ErrDataShapeViolation, fill.inputIndex, len(order.ValidInputs))
	}
	if fill.outputIndex < 0 || fill.outputIndex >= len(order.ValidOutputs) {
		return nil, fmt.Errorf("%w: output IO index %d out of range (%d outputs)", bridgeerr.ErrDataShapeViolation, fill.outputIndex, len(order.ValidOutputs))
	}
	input := order.ValidInputs[fill.inputIndex]
	output := order.ValidOutputs[fill.outputIndex]

	inputSymbol, err := e.symbols.Symbol(ctx, input.Token)
	if err != nil {
		return nil, fmt.Errorf("resolve input token symbol: %w", err)
	}
	outputSymbol, err := e.symbols.Symbol(ctx, output.Token)
	if err != nil {
		return nil, fmt.Errorf("resolve output token symbol: %w", err)
	}

	tokenizedSymbol, direction, err := determineTradeDetails(inputSymbol, outputSymbol)
	if err != nil {
		return nil, err
	}

	inputAmount := decimal.NewFromBigInt(fill.inputAmount, 0).Shift(-int32(input.Decimals))
	outputAmount := decimal.NewFromBigInt(fill.outputAmount, 0).Shift(-int32(output.Decimals))

	var amount decimal.Decimal
	if direction == domain.Buy {
		amount = outputAmount
	} else {
		amount = inputAmount
	}
	if amount.Sign() <= 0 {
		return nil, nil
	}

	var price decimal.Decimal
	if direction == domain.Buy {
		if outputAmount.Sign() == 0 {
			return nil, nil
		}
		price = inputAmount.Div(outputAmount)
	} else {
		if inputAmount.Sign() == 0 {
			return nil, nil
		}
		price = outputAmount.Div(inputAmount)
	}
	if price.Sign() <= 0 {
		return nil, nil
	}

	return &domain.OnchainTrade{
		TxHash:    log.TxHash.Hex(),
		LogIndex:  uint(log.Index),
		Symbol:    tokenizedSymbol,
		Amount:    amount,
		Direction: direction,
		PriceUSDC: price,
		CreatedAt: e.clk.Now(),
	}, nil
}

// intFromBig converts an IO index argument (always small in practice —
// OrderV3 arrays are never more than a handful of entries) to an int
// for slice indexing.
func intFromBig(v *big.Int) int {
	return int(v.Int64())
}

// determineTradeDetails maps an (input, output) ERC20 symbol pair onto
// the tokenized-equity symbol actually traded and a brokerage-side
// direction. A USDC input paired with a tokenized-equity output means
// the tracked order sold the tokenized share for USDC, so the bridge
// buys the underlying; the reverse means the order bought the
// tokenized share, so the bridge sells. The tokenized symbol is returned as-is, suffix
// and all ("AAPL0x", "AAPLs1"), since OnchainTrade.Symbol must reflect
// the on-chain token that actually traded.
func determineTradeDetails(inputSymbol, outputSymbol string) (tokenizedSymbol string, direction domain.Direction, err error) {
	if domain.IsUSDC(inputSymbol) && domain.IsTokenizedEquity(outputSymbol) {
		return outputSymbol, domain.Buy, nil
	}
	if domain.IsUSDC(outputSymbol) && domain.IsTokenizedEquity(inputSymbol) {
		return inputSymbol, domain.Sell, nil
	}
	return "", "", fmt.Errorf("%w: neither (%s, %s) nor (%s, %s) is a USDC/tokenized-equity pair", bridgeerr.ErrDataShapeViolation, inputSymbol, outputSymbol, outputSymbol, inputSymbol)
}
