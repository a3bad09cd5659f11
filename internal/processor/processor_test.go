package processor

import (
	"context"
	"encoding/json"
	"math/big"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/st0x-bridge/equity-bridge/internal/chain"
	"github.com/st0x-bridge/equity-bridge/internal/clock"
	"github.com/st0x-bridge/equity-bridge/internal/db"
	"github.com/st0x-bridge/equity-bridge/internal/domain"
)

type stubTokens struct{}

func (stubTokens) GetValidAccessToken(ctx context.Context) (string, error) { return "access", nil }

type stubBroker struct {
	mu     sync.Mutex
	placed int
}

func (b *stubBroker) PlaceOrder(ctx context.Context, accessToken string, execution domain.BrokerExecution) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.placed++
	return "order-1", nil
}

// stubExtractor always resolves to the same fixed trade, bypassing the
// real decode/extract logic: this test exercises the processor's queue
// draining and accumulator/placement wiring, not extraction itself.
type stubExtractor struct {
	trade *domain.OnchainTrade
}

func (s stubExtractor) FromClearV2(ctx context.Context, evt chain.ClearV2, log gethtypes.Log) (*domain.OnchainTrade, error) {
	return s.trade, nil
}

func (s stubExtractor) FromTakeOrderV2(ctx context.Context, evt chain.TakeOrderV2, log gethtypes.Log) (*domain.OnchainTrade, error) {
	return s.trade, nil
}

func newTestDB(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "processor_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return database
}

func sampleClearV2Log(t *testing.T) gethtypes.Log {
	t.Helper()
	order := chain.OrderV3{
		Owner: common.HexToAddress("0x1"),
		ValidInputs: []chain.IO{
			{Token: common.HexToAddress("0xa"), Decimals: 6, VaultID: big.NewInt(1)},
		},
		ValidOutputs: []chain.IO{
			{Token: common.HexToAddress("0xb"), Decimals: 18, VaultID: big.NewInt(2)},
		},
	}
	clearConfig := chain.ClearConfig{
		AliceInputIOIndex:  big.NewInt(0),
		AliceOutputIOIndex: big.NewInt(0),
		BobInputIOIndex:    big.NewInt(0),
		BobOutputIOIndex:   big.NewInt(0),
		AliceBountyVaultID: big.NewInt(0),
		BobBountyVaultID:   big.NewInt(0),
	}
	event := chain.ParsedOrderBookABI.Events["ClearV2"]
	data, err := event.Inputs.Pack(common.HexToAddress("0xc"), order, order, clearConfig)
	require.NoError(t, err)

	return gethtypes.Log{
		Topics:      []common.Hash{chain.ClearV2Signature},
		TxHash:      common.HexToHash("0xdeadbeef"),
		Index:       0,
		BlockNumber: 1,
		Data:        data,
	}
}

func enqueueClearV2(t *testing.T, queue *db.Queue, log gethtypes.Log) domain.QueuedEvent {
	t.Helper()
	blob, err := json.Marshal(log)
	require.NoError(t, err)

	evt, err := queue.Enqueue(domain.QueuedEvent{
		TxHash:      log.TxHash.Hex(),
		LogIndex:    log.Index,
		BlockNumber: log.BlockNumber,
		Kind:        domain.EventClearV2,
		Blob:        blob,
		CreatedAt:   time.Now(),
	})
	require.NoError(t, err)
	return evt
}

func TestStepProcessesEventAndCreatesAndSubmitsExecution(t *testing.T) {
	database := newTestDB(t)
	queue := db.NewQueue(database)

	log := sampleClearV2Log(t)
	enqueueClearV2(t, queue, log)

	trade := &domain.OnchainTrade{
		Symbol:    "AAPLs1",
		Amount:    decimal.RequireFromString("1.0"),
		Direction: domain.Buy,
		PriceUSDC: decimal.RequireFromString("190"),
		CreatedAt: time.Now(),
	}

	brokerStub := &stubBroker{}
	p := New(database, queue, stubExtractor{trade: trade}, stubTokens{}, brokerStub, clock.Real{}, zap.NewNop())

	processed, err := p.step(context.Background())
	require.NoError(t, err)
	require.True(t, processed)

	count, err := queue.CountUnprocessed()
	require.NoError(t, err)
	require.Equal(t, 0, count)

	brokerStub.mu.Lock()
	placed := brokerStub.placed
	brokerStub.mu.Unlock()
	require.Equal(t, 1, placed, "a whole share accumulated should produce and submit one execution")
}

func TestStepReturnsNotProcessedWhenQueueEmpty(t *testing.T) {
	database := newTestDB(t)
	queue := db.NewQueue(database)

	p := New(database, queue, stubExtractor{}, stubTokens{}, &stubBroker{}, clock.Real{}, zap.NewNop())

	processed, err := p.step(context.Background())
	require.NoError(t, err)
	require.False(t, processed)
}

func TestStepLeavesEventUnprocessedWhenExtractorFails(t *testing.T) {
	database := newTestDB(t)
	queue := db.NewQueue(database)
	log := sampleClearV2Log(t)
	enqueueClearV2(t, queue, log)

	p := New(database, queue, failingExtractor{}, stubTokens{}, &stubBroker{}, clock.Real{}, zap.NewNop())

	processed, err := p.step(context.Background())
	require.Error(t, err)
	require.False(t, processed)

	count, err := queue.CountUnprocessed()
	require.NoError(t, err)
	require.Equal(t, 1, count, "a failed extraction must not consume the event")
}

type failingExtractor struct{}

func (failingExtractor) FromClearV2(ctx context.Context, evt chain.ClearV2, log gethtypes.Log) (*domain.OnchainTrade, error) {
	return nil, errBoom
}

func (failingExtractor) FromTakeOrderV2(ctx context.Context, evt chain.TakeOrderV2, log gethtypes.Log) (*domain.OnchainTrade, error) {
	return nil, errBoom
}

var errBoom = &boomError{}

type boomError struct{}

func (*boomError) Error() string { return "extraction failed" }
