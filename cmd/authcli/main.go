// Command authcli is an operator helper for the bridge's one-time OAuth
// authorization: it exchanges an authorization code for a token pair
// and seeds it directly into the bridge's database, without needing
// the admin HTTP server up.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/st0x-bridge/equity-bridge/internal/auth"
	"github.com/st0x-bridge/equity-bridge/internal/broker"
	"github.com/st0x-bridge/equity-bridge/internal/clock"
	"github.com/st0x-bridge/equity-bridge/internal/config"
	"github.com/st0x-bridge/equity-bridge/internal/db"
	"github.com/st0x-bridge/equity-bridge/internal/logging"
)

func main() {
	redirectURL := flag.String("redirect-url", "", "the full redirect URL the brokerage sent back, including ?code=...")
	flag.Parse()

	if *redirectURL == "" {
		fmt.Fprintln(os.Stderr, "usage: authcli -redirect-url <url>")
		os.Exit(1)
	}

	if err := run(*redirectURL); err != nil {
		fmt.Fprintln(os.Stderr, "authcli:", err)
		os.Exit(1)
	}
}

func run(redirectURL string) error {
	cfg, err := config.LoadFromEnv("")
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	parsed, err := url.Parse(redirectURL)
	if err != nil {
		return fmt.Errorf("parse redirect url: %w", err)
	}
	code := parsed.Query().Get("code")
	if code == "" {
		return fmt.Errorf("redirect url has no code query parameter")
	}

	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer database.Close()

	brokerClient := broker.NewClient(cfg.Broker.BaseURL, cfg.Broker.AppKey, cfg.Broker.AppSecret, "")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rec, err := brokerClient.ExchangeAuthCode(ctx, code, cfg.Broker.RedirectURI)
	if err != nil {
		return fmt.Errorf("exchange authorization code: %w", err)
	}

	store := auth.New(database, brokerClient, clock.Real{}, log)
	if err := store.Seed(rec); err != nil {
		return fmt.Errorf("seed token: %w", err)
	}

	fmt.Println("brokerage token seeded successfully")
	return nil
}
