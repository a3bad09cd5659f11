// Package symbol resolves an ERC20 token address to its on-chain
// symbol() string, memoizing the result so the extractor never pays a
// chain round trip for a token it has already seen.
package symbol

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/st0x-bridge/equity-bridge/internal/chain"
)

// Resolver looks up an ERC20 token's symbol.
type Resolver interface {
	Symbol(ctx context.Context, token common.Address) (string, error)
}

// Cache is a Resolver backed by a chain.ChainReader, memoized in an
// in-memory map keyed by token address. Grounded on the
// read-lock/write-lock-on-miss pattern of the original symbol cache:
// a hit never blocks on a write lock, a miss pays one chain call and
// every subsequent lookup of that token is free.
type Cache struct {
	reader chain.ChainReader

	mu  sync.RWMutex
	ids map[common.Address]string
}

func NewCache(reader chain.ChainReader) *Cache {
	return &Cache{
		reader: reader,
		ids:    make(map[common.Address]string),
	}
}

func (c *Cache) Symbol(ctx context.Context, token common.Address) (string, error) {
	if symbol, ok := c.lookup(token); ok {
		return symbol, nil
	}

	symbol, err := c.reader.ERC20Symbol(ctx, token)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.ids[token] = symbol
	c.mu.Unlock()

	return symbol, nil
}

func (c *Cache) lookup(token common.Address) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	symbol, ok := c.ids[token]
	return symbol, ok
}

// Prime seeds the cache with a known address-to-symbol mapping without
// a chain call, for tests and for well-known tokens (e.g. USDC) that
// the operator wants resolved without a startup round trip.
func (c *Cache) Prime(token common.Address, symbol string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids[token] = symbol
}
