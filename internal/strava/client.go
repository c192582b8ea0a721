package strava

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Fjallroth/matesrace/config"
	"github.com/Fjallroth/matesrace/types"
	"golang.org/x/oauth2"
)

const (
	activitiesPerPage = 50
	maxResponseBytes  = 16 << 20
)

var (
	// ErrUnauthorized is returned when Strava rejects the access token.
	ErrUnauthorized = errors.New("strava: access token rejected")
	// ErrNotFound is returned when the requested Strava resource does not exist.
	ErrNotFound = errors.New("strava: resource not found")
)

// Client talks to the Strava REST API and its OAuth token endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
	oauth      *oauth2.Config
	scopes     []string
}

func NewClient(cfg config.StravaConfig) *Client {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.APIBaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		scopes: cfg.Scopes,
	}
}

// FetchActivityDetail loads one activity including all of its segment efforts.
func (c *Client) FetchActivityDetail(ctx context.Context, activityID int64, accessToken string) (types.ActivityDetail, error) {
	query := url.Values{}
	query.Set("include_all_efforts", "true")

	body, err := c.get(ctx, accessToken, "/activities/"+strconv.FormatInt(activityID, 10), query)
	if err != nil {
		return types.ActivityDetail{}, err
	}
	return parseActivityDetail(body)
}

// FetchActivitiesInRange lists the athlete's activities started between
// after and before. Only the first page is requested.
func (c *Client) FetchActivitiesInRange(ctx context.Context, accessToken string, after, before time.Time) ([]types.ActivitySummary, error) {
	query := url.Values{}
	query.Set("after", strconv.FormatInt(after.Unix(), 10))
	query.Set("before", strconv.FormatInt(before.Unix(), 10))
	query.Set("per_page", strconv.Itoa(activitiesPerPage))

	body, err := c.get(ctx, accessToken, "/athlete/activities", query)
	if err != nil {
		return nil, err
	}

	activities := make([]types.ActivitySummary, 0)
	if err := json.Unmarshal(body, &activities); err != nil {
		return nil, fmt.Errorf("strava: decode activities: %w", err)
	}
	return activities, nil
}

// FetchAthlete returns the profile of the athlete owning the access token.
func (c *Client) FetchAthlete(ctx context.Context, accessToken string) (types.Athlete, error) {
	body, err := c.get(ctx, accessToken, "/athlete", nil)
	if err != nil {
		return types.Athlete{}, err
	}

	var athlete types.Athlete
	if err := json.Unmarshal(body, &athlete); err != nil {
		return types.Athlete{}, fmt.Errorf("strava: decode athlete: %w", err)
	}
	if athlete.ID == 0 {
		return types.Athlete{}, errors.New("strava: athlete response without id")
	}
	return athlete, nil
}

func (c *Client) get(ctx context.Context, accessToken, path string, query url.Values) ([]byte, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.bearerClient(ctx, accessToken).Do(req)
	if err != nil {
		return nil, fmt.Errorf("strava: GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("strava: read %s: %w", path, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, ErrUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("strava: GET %s: unexpected status %d", path, resp.StatusCode)
	}
	return body, nil
}

// bearerClient attaches the access token to every request through the
// oauth2 transport, reusing the client's timeout.
func (c *Client) bearerClient(ctx context.Context, accessToken string) *http.Client {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))
}

func parseActivityDetail(body []byte) (types.ActivityDetail, error) {
	var payload struct {
		ID             int64           `json:"id"`
		Name           string          `json:"name"`
		Type           string          `json:"type"`
		SegmentEfforts json.RawMessage `json:"segment_efforts"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return types.ActivityDetail{}, fmt.Errorf("strava: decode activity: %w", err)
	}

	detail := types.ActivityDetail{
		ID:   payload.ID,
		Name: payload.Name,
		Type: payload.Type,
		Raw:  json.RawMessage(body),
	}

	efforts := bytes.TrimSpace(payload.SegmentEfforts)
	if len(efforts) == 0 || efforts[0] != '[' {
		return detail, nil
	}
	if err := json.Unmarshal(efforts, &detail.SegmentEfforts); err != nil {
		return detail, nil
	}
	detail.HasSegmentEfforts = true
	return detail, nil
}
