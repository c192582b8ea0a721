package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Fjallroth/matesrace/internal/strava"
	"github.com/Fjallroth/matesrace/types"
)

// tokenRefreshBuffer is how long before expiry an access token is refreshed.
const tokenRefreshBuffer = 5 * time.Minute

// ErrReauthRequired means the stored Strava tokens are unusable and the
// athlete has to log in again.
var ErrReauthRequired = errors.New("strava re-authentication required")

// TokenRefresher is the Strava OAuth token endpoint.
type TokenRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (types.OAuthToken, error)
}

// TokenResult is the outcome of a token lookup. When UserChanged is set the
// caller must persist User, including when an error is returned alongside.
type TokenResult struct {
	AccessToken string
	User        types.User
	UserChanged bool
}

// TokenBroker hands out valid Strava access tokens for stored users.
// It never writes to storage itself.
type TokenBroker struct {
	refresher TokenRefresher
	now       func() time.Time
}

func NewTokenBroker(refresher TokenRefresher) *TokenBroker {
	return &TokenBroker{refresher: refresher, now: time.Now}
}

// Token returns an access token for user, refreshing it when it is expired
// or about to expire.
func (b *TokenBroker) Token(ctx context.Context, user types.User) (TokenResult, error) {
	result := TokenResult{User: user}

	if !b.needsRefresh(user) {
		if user.AccessToken == "" {
			return result, ErrReauthRequired
		}
		result.AccessToken = user.AccessToken
		return result, nil
	}

	if user.RefreshToken == "" {
		result.User.AccessToken = ""
		result.User.TokenExpiresAt = time.Time{}
		result.UserChanged = true
		return result, ErrReauthRequired
	}

	token, err := b.refresher.Refresh(ctx, user.RefreshToken)
	if err != nil {
		if errors.Is(err, strava.ErrTokenRejected) {
			result.User.AccessToken = ""
			result.User.RefreshToken = ""
			result.User.TokenExpiresAt = time.Time{}
			result.UserChanged = true
			return result, fmt.Errorf("%w: %v", ErrReauthRequired, err)
		}
		return result, fmt.Errorf("refresh strava token: %w", err)
	}

	result.User.AccessToken = token.AccessToken
	result.User.TokenExpiresAt = token.Expiry
	if token.RefreshToken != "" {
		result.User.RefreshToken = token.RefreshToken
	}
	result.UserChanged = true
	result.AccessToken = token.AccessToken
	return result, nil
}

func (b *TokenBroker) needsRefresh(user types.User) bool {
	if user.TokenExpiresAt.IsZero() {
		return true
	}
	return !user.TokenExpiresAt.After(b.now().Add(tokenRefreshBuffer))
}
