package domain

import "time"

const (
	// AccessTokenTTL is the broker access token's lifetime.
	AccessTokenTTL = 30 * time.Minute
	// RefreshTokenTTL is the broker refresh token's lifetime.
	RefreshTokenTTL = 7 * 24 * time.Hour
	// RefreshSafetyMargin is the minimum remaining access-token lifetime
	// below which get_valid_access_token triggers a refresh.
	RefreshSafetyMargin = time.Minute
)

// TokenRecord is one append-only row of the broker OAuth credential
// history. The newest row by insertion order is the live credential.
type TokenRecord struct {
	ID               int64
	AccessToken      string
	AccessFetchedAt  time.Time
	RefreshToken     string
	RefreshFetchedAt time.Time
}

// AccessExpiresAt is when the access token stops being valid.
func (t TokenRecord) AccessExpiresAt() time.Time {
	return t.AccessFetchedAt.Add(AccessTokenTTL)
}

// RefreshExpiresAt is when the refresh token stops being valid.
func (t TokenRecord) RefreshExpiresAt() time.Time {
	return t.RefreshFetchedAt.Add(RefreshTokenTTL)
}

// AccessValidAt reports whether the access token has at least
// RefreshSafetyMargin of life left at instant now.
func (t TokenRecord) AccessValidAt(now time.Time) bool {
	return t.AccessExpiresAt().Sub(now) >= RefreshSafetyMargin
}

// RefreshValidAt reports whether the refresh token is not yet past its horizon.
func (t TokenRecord) RefreshValidAt(now time.Time) bool {
	return now.Before(t.RefreshExpiresAt())
}
