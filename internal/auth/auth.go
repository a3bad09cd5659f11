// Package auth implements the token store and refresher of spec
// section 4.1: it keeps a durable, append-only log of OAuth2
// access/refresh token pairs and serves the queue processor, poller,
// sweep and reporter an always-valid access token on demand.
package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/st0x-bridge/equity-bridge/internal/bridgeerr"
	"github.com/st0x-bridge/equity-bridge/internal/clock"
	"github.com/st0x-bridge/equity-bridge/internal/db"
	"github.com/st0x-bridge/equity-bridge/internal/domain"
)

// Refresher is the subset of broker.Client the token store depends on,
// kept narrow so tests can fake it without pulling in resty/gobreaker.
type Refresher interface {
	RefreshTokens(ctx context.Context, refreshToken string) (domain.TokenRecord, error)
}

// Store is the token store and refresher. It never mutates a
// TokenRecord row in place (spec section 9): every refresh appends a
// new row, so the append order is itself the audit trail.
type Store struct {
	database  *db.DB
	refresher Refresher
	clk       clock.Clock
	log       *zap.Logger

	// refreshMu serializes the check-refresh-write sequence in
	// GetValidAccessToken: without it, two concurrent callers can both
	// observe an expired access token and both exchange the same
	// refresh token with the broker.
	refreshMu sync.Mutex
}

func New(database *db.DB, refresher Refresher, clk clock.Clock, log *zap.Logger) *Store {
	return &Store{database: database, refresher: refresher, clk: clk, log: log}
}

// Seed appends an initial TokenRecord, e.g. the result of the operator's
// one-time authorization-code exchange.
func (s *Store) Seed(rec domain.TokenRecord) error {
	return s.database.Update(func(tx *db.Tx) error {
		_, err := db.InsertTokenTx(tx, rec)
		return err
	})
}

// GetValidAccessToken returns the current access token, refreshing it
// first if it has expired. Returns bridgeerr.ErrRefreshExpired if the
// refresh token itself has also expired, at which point only a fresh
// operator authorization can recover the bridge.
//
// The whole check-refresh-write sequence runs under refreshMu, so
// concurrent callers (processor, poller, sweep, refresh loop) never
// both observe an expired token and both exchange the same refresh
// token with the broker.
func (s *Store) GetValidAccessToken(ctx context.Context) (string, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	rec, found, err := s.latest()
	if err != nil {
		return "", err
	}
	if !found {
		return "", fmt.Errorf("%w: no token has ever been stored", bridgeerr.ErrRefreshExpired)
	}

	now := s.clk.Now()
	if rec.AccessValidAt(now) {
		return rec.AccessToken, nil
	}

	if !rec.RefreshValidAt(now) {
		return "", fmt.Errorf("%w: refresh token expired at %s", bridgeerr.ErrRefreshExpired, rec.RefreshExpiresAt())
	}

	refreshed, err := s.refresher.RefreshTokens(ctx, rec.RefreshToken)
	if err != nil {
		return "", fmt.Errorf("refresh access token: %w", err)
	}

	if err := s.database.Update(func(tx *db.Tx) error {
		_, err := db.InsertTokenTx(tx, refreshed)
		return err
	}); err != nil {
		return "", fmt.Errorf("persist refreshed token: %w", err)
	}

	s.log.Info("refreshed brokerage access token")
	return refreshed.AccessToken, nil
}

// TokenSource adapts the store to oauth2.TokenSource, for callers that
// want the standard library's token shape rather than a bare string
// (e.g. a resty client built once at startup rather than re-reading
// GetValidAccessToken on every request).
func (s *Store) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &tokenSource{ctx: ctx, store: s}
}

type tokenSource struct {
	ctx   context.Context
	store *Store
}

func (ts *tokenSource) Token() (*oauth2.Token, error) {
	access, err := ts.store.GetValidAccessToken(ts.ctx)
	if err != nil {
		return nil, err
	}
	rec, _, err := ts.store.latest()
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{
		AccessToken:  access,
		RefreshToken: rec.RefreshToken,
		Expiry:       rec.AccessExpiresAt(),
	}, nil
}

func (s *Store) latest() (domain.TokenRecord, bool, error) {
	var rec *domain.TokenRecord
	var found bool
	err := s.database.View(func(tx *db.ReadTx) error {
		var err error
		rec, found, err = db.LatestTokenTx(tx)
		return err
	})
	if err != nil || !found {
		return domain.TokenRecord{}, found, err
	}
	return *rec, true, nil
}

// RunRefreshLoop calls GetValidAccessToken on a fixed tick, so the
// access token is refreshed on that tick whenever it is expired or
// within RefreshSafetyMargin of expiry; a token that is still fresh at
// the tick is left alone. It runs until ctx is canceled.
func (s *Store) RunRefreshLoop(ctx context.Context, tick time.Duration) {
	ticker := s.clk.After(tick)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker:
			if _, err := s.GetValidAccessToken(ctx); err != nil {
				s.log.Error("scheduled token refresh failed", zap.Error(err))
			}
			ticker = s.clk.After(tick)
		}
	}
}
