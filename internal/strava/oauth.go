package strava

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Fjallroth/matesrace/types"
	"golang.org/x/oauth2"
)

// ErrTokenRejected is returned when the token endpoint refuses a grant with
// a client error. The stored tokens cannot be recovered and the athlete has
// to log in again.
var ErrTokenRejected = errors.New("strava: token grant rejected")

// AuthCodeURL returns the Strava consent page URL carrying state.
// Strava expects a comma separated scope list.
func (c *Client) AuthCodeURL(state string) string {
	return c.oauth.AuthCodeURL(state,
		oauth2.SetAuthURLParam("scope", strings.Join(c.scopes, ",")),
		oauth2.SetAuthURLParam("approval_prompt", "auto"),
	)
}

// Exchange trades an authorization code for a token set.
func (c *Client) Exchange(ctx context.Context, code string) (types.OAuthToken, error) {
	token, err := c.oauth.Exchange(c.tokenContext(ctx), code)
	if err != nil {
		return types.OAuthToken{}, mapTokenError("exchange", err)
	}
	return toOAuthToken(token), nil
}

// Refresh obtains a new access token. The returned RefreshToken equals the
// one passed in unless Strava rotated it.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (types.OAuthToken, error) {
	expired := &oauth2.Token{
		RefreshToken: refreshToken,
		Expiry:       time.Now().Add(-time.Minute),
	}
	token, err := c.oauth.TokenSource(c.tokenContext(ctx), expired).Token()
	if err != nil {
		return types.OAuthToken{}, mapTokenError("refresh", err)
	}
	return toOAuthToken(token), nil
}

func (c *Client) tokenContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

func mapTokenError(op string, err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
		status := retrieveErr.Response.StatusCode
		if status >= 400 && status < 500 {
			return fmt.Errorf("%w: %s returned status %d", ErrTokenRejected, op, status)
		}
	}
	return fmt.Errorf("strava: token %s: %w", op, err)
}

func toOAuthToken(token *oauth2.Token) types.OAuthToken {
	return types.OAuthToken{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Expiry:       token.Expiry,
	}
}
