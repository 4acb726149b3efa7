// Package populartimes fetches Google Maps popular-times data for a place
// from the popularity data service and exposes it as structured results.
package populartimes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// ErrNoData indicates the data source resolved the place but returned
// neither live nor historical popularity.
var ErrNoData = errors.New("no popularity data returned")

// DefaultTimeout bounds a single fetch request.
const DefaultTimeout = 30 * time.Second

// Fetcher retrieves popularity data for a place.
type Fetcher interface {
	Fetch(ctx context.Context, query PlaceQuery) (*Result, error)
}

// Client is an HTTP Fetcher against the popularity data endpoint.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient creates a Fetcher talking to the given endpoint.
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		logger:  logger.Named("fetcher"),
	}
}

// Fetch performs one lookup for the place. The request carries the combined
// "{name}, {address}" search string as the q parameter.
func (c *Client) Fetch(ctx context.Context, query PlaceQuery) (*Result, error) {
	reqURL := fmt.Sprintf("%s?q=%s", c.baseURL, url.QueryEscape(query.SearchString()))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("Fetching popularity data", zap.String("query", query.SearchString()))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch popularity data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("place not resolved for query %q: %w", query.SearchString(), ErrNoData)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected HTTP status %d", resp.StatusCode)
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to parse popularity response: %w", err)
	}

	if !result.HasLive() && !result.HasHistorical() {
		return nil, fmt.Errorf("query %q: %w", query.SearchString(), ErrNoData)
	}

	c.logger.Debug("Popularity data fetched",
		zap.String("maps_name", result.Name),
		zap.Bool("live", result.HasLive()))

	return &result, nil
}
