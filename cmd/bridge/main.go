// Command bridge runs the equity bridge: it mirrors on-chain clears and
// takes against the tracked order onto a brokerage cash-equities
// account, gated to regular trading hours.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/st0x-bridge/equity-bridge/internal/adminapi"
	"github.com/st0x-bridge/equity-bridge/internal/auth"
	"github.com/st0x-bridge/equity-bridge/internal/backfill"
	"github.com/st0x-bridge/equity-bridge/internal/broker"
	"github.com/st0x-bridge/equity-bridge/internal/chain"
	"github.com/st0x-bridge/equity-bridge/internal/clock"
	"github.com/st0x-bridge/equity-bridge/internal/conductor"
	"github.com/st0x-bridge/equity-bridge/internal/config"
	"github.com/st0x-bridge/equity-bridge/internal/db"
	"github.com/st0x-bridge/equity-bridge/internal/extractor"
	"github.com/st0x-bridge/equity-bridge/internal/logging"
	"github.com/st0x-bridge/equity-bridge/internal/marketclock"
	"github.com/st0x-bridge/equity-bridge/internal/poller"
	"github.com/st0x-bridge/equity-bridge/internal/processor"
	"github.com/st0x-bridge/equity-bridge/internal/reporter"
	"github.com/st0x-bridge/equity-bridge/internal/sweep"
	"github.com/st0x-bridge/equity-bridge/internal/symbol"
)

// tokenRefreshTick is comfortably inside the brokerage's access token
// lifetime (spec section 4.1 puts it at 30 minutes).
const tokenRefreshTick = 20 * time.Minute

func main() {
	cfg, err := config.LoadFromEnv("")
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}

	log, err := logging.NewWithFile(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "init logger:", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("bridge exited with error", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer database.Close()

	queue := db.NewQueue(database)
	clk := clock.Real{}

	ethClient, err := ethclient.Dial(cfg.Chain.WSRPCURL)
	if err != nil {
		return fmt.Errorf("dial chain rpc: %w", err)
	}

	chainSource := chain.NewEthClientSource(ethClient, cfg.Chain.Orderbook)
	chainReader := chain.NewEthClientReader(ethClient, cfg.Chain.Orderbook)
	symbolCache := symbol.NewCache(chainReader)

	brokerClient := broker.NewClient(cfg.Broker.BaseURL, cfg.Broker.AppKey, cfg.Broker.AppSecret, "")
	tokens := auth.New(database, brokerClient, clk, log)

	// The account hash is a per-session brokerage handle, not a durable
	// credential: fetch it once at startup against whatever token is on
	// hand, and carry on without it if none is yet seeded. The operator
	// recovers via POST /auth/refresh, after which a restart picks up
	// the seeded token.
	if tok, err := tokens.TokenSource(context.Background()).Token(); err != nil {
		log.Warn("no valid brokerage token at startup; seed one via POST /auth/refresh", zap.Error(err))
	} else {
		httpClient := resty.New().SetBaseURL(cfg.Broker.BaseURL)
		accountHash, err := broker.FetchAccountHash(context.Background(), httpClient, tok.AccessToken, cfg.Broker.AccountIndex)
		if err != nil {
			log.Warn("fetch brokerage account hash failed", zap.Error(err))
		} else {
			brokerClient = broker.NewClient(cfg.Broker.BaseURL, cfg.Broker.AppKey, cfg.Broker.AppSecret, accountHash)
		}
	}

	extract := extractor.New(symbolCache, chainReader, cfg.Chain.OrderOwner, cfg.Chain.OrderHash, clk)

	proc := processor.New(database, queue, extract, tokens, brokerClient, clk, log)
	poll := poller.New(database, tokens, brokerClient, clk, log, cfg.Poller.Interval, cfg.Poller.MaxJitter)
	sw := sweep.New(database, clk, log, proc.LockSymbol, tokens, brokerClient)
	rep := reporter.New(database, queue, tokens, clk, log)

	marketClk, err := marketclock.New(cfg.MarketTimezone)
	if err != nil {
		return fmt.Errorf("load market timezone: %w", err)
	}

	admin := adminapi.New(brokerClient, tokens, cfg.Broker.RedirectURI, clk, log)

	bf := backfill.New(chainSource, queue, cfg.Chain.DeploymentBlock, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	liveLogs, sub, err := bf.Run(ctx)
	if err != nil {
		return fmt.Errorf("cold-start backfill: %w", err)
	}
	defer sub.Unsubscribe()

	receiveLive := func(taskCtx context.Context) {
		for {
			select {
			case <-taskCtx.Done():
				return
			case subErr := <-sub.Err():
				if subErr != nil {
					log.Error("live log subscription error", zap.Error(subErr))
				}
			case logEntry, ok := <-liveLogs:
				if !ok {
					return
				}
				evt, queueable, err := backfill.QueuedEventFromLog(logEntry)
				if err != nil {
					log.Error("decode live log failed", zap.Error(err))
					continue
				}
				if !queueable {
					continue
				}
				if _, err := queue.Enqueue(evt); err != nil {
					log.Error("enqueue live log failed", zap.Error(err))
				}
			}
		}
	}

	refreshTokens := func(taskCtx context.Context) { tokens.RunRefreshLoop(taskCtx, tokenRefreshTick) }

	cdr := conductor.New(
		marketClk,
		log,
		[]conductor.Task{receiveLive, refreshTokens, rep.Run},
		[]conductor.Task{proc.Run, poll.Run, sw.Run},
	)

	serverErrCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		serverErrCh <- admin.Start(addr)
	}()

	log.Info("bridge starting", zap.Int("admin_port", cfg.Server.Port))
	cdr.Run(ctx)
	log.Info("bridge stopped")

	select {
	case err := <-serverErrCh:
		if err != nil {
			return fmt.Errorf("admin api: %w", err)
		}
	default:
	}
	return nil
}
