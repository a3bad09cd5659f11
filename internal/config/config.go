// Package config loads the bridge's environment configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

type Database struct {
	Path string
}

type Server struct {
	Port int
}

type Broker struct {
	AppKey       string
	AppSecret    string
	RedirectURI  string
	BaseURL      string
	AccountIndex int
}

type Chain struct {
	WSRPCURL        string
	Orderbook       common.Address
	OrderOwner      common.Address
	OrderHash       common.Hash
	DeploymentBlock uint64
}

type Poller struct {
	Interval  time.Duration
	MaxJitter time.Duration
}

type Config struct {
	LogLevel       string
	LogFile        string
	MarketTimezone string
	Database       Database
	Server         Server
	Broker         Broker
	Chain          Chain
	Poller         Poller
}

// Default mirrors the defaults named in spec section 6.
func Default() Config {
	return Config{
		LogLevel:       "info",
		MarketTimezone: "America/New_York",
		Server:         Server{Port: 8080},
		Broker: Broker{
			RedirectURI: "https://127.0.0.1",
		},
		Poller: Poller{
			Interval:  15 * time.Second,
			MaxJitter: 5 * time.Second,
		},
	}
}

// LoadFromEnv loads a .env file (if present, envPath=="" loads from cwd)
// then overrides with process environment variables.
// Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) (Config, error) {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	cfg.LogFile = os.Getenv("LOG_FILE")
	if v := os.Getenv("MARKET_TIMEZONE"); v != "" {
		cfg.MarketTimezone = v
	}

	cfg.Database.Path = os.Getenv("DATABASE_URL")
	if cfg.Database.Path == "" {
		return cfg, fmt.Errorf("DATABASE_URL is required")
	}

	if v := os.Getenv("SERVER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid SERVER_PORT: %w", err)
		}
		cfg.Server.Port = port
	}

	cfg.Broker.AppKey = os.Getenv("APP_KEY")
	cfg.Broker.AppSecret = os.Getenv("APP_SECRET")
	if v := os.Getenv("REDIRECT_URI"); v != "" {
		cfg.Broker.RedirectURI = v
	}
	cfg.Broker.BaseURL = os.Getenv("BASE_URL")
	if v := os.Getenv("ACCOUNT_INDEX"); v != "" {
		idx, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid ACCOUNT_INDEX: %w", err)
		}
		cfg.Broker.AccountIndex = idx
	}

	cfg.Chain.WSRPCURL = os.Getenv("WS_RPC_URL")
	if v := os.Getenv("ORDERBOOK"); v != "" {
		if !common.IsHexAddress(v) {
			return cfg, fmt.Errorf("invalid ORDERBOOK address: %s", v)
		}
		cfg.Chain.Orderbook = common.HexToAddress(v)
	}
	if v := os.Getenv("ORDER_OWNER"); v != "" {
		if !common.IsHexAddress(v) {
			return cfg, fmt.Errorf("invalid ORDER_OWNER address: %s", v)
		}
		cfg.Chain.OrderOwner = common.HexToAddress(v)
	}
	if v := os.Getenv("ORDER_HASH"); v != "" {
		cfg.Chain.OrderHash = common.HexToHash(v)
	}
	if v := os.Getenv("DEPLOYMENT_BLOCK"); v != "" {
		block, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return cfg, fmt.Errorf("invalid DEPLOYMENT_BLOCK: %w", err)
		}
		cfg.Chain.DeploymentBlock = block
	}

	if v := os.Getenv("ORDER_POLLING_INTERVAL"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid ORDER_POLLING_INTERVAL: %w", err)
		}
		cfg.Poller.Interval = time.Duration(secs) * time.Second
	}
	if v := os.Getenv("ORDER_POLLING_MAX_JITTER"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid ORDER_POLLING_MAX_JITTER: %w", err)
		}
		cfg.Poller.MaxJitter = time.Duration(secs) * time.Second
	}

	return cfg, nil
}
