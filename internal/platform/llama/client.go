// Package llama is a client for the coins.llama.fi price API.
package llama

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/pricesync/internal/domain"
)

// DefaultBaseURL is the public coins API root.
const DefaultBaseURL = "https://coins.llama.fi"

// Chart query parameters: 24 hourly points, each matched within 600 seconds.
const (
	chartSpan        = 24
	chartPeriod      = "1h"
	chartSearchWidth = 600
)

// maxBodyBytes caps how much of a response is read.
const maxBodyBytes = 4 << 20

// Client fetches current prices and hourly charts.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a client for baseURL. An empty baseURL uses DefaultBaseURL.
func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CurrentPrice returns the latest price for externalID. ok is false when the
// payload does not list the coin. A listed coin without a price is a
// malformed payload.
func (c *Client) CurrentPrice(ctx context.Context, externalID string) (decimal.Decimal, bool, error) {
	path := "/prices/current/" + url.PathEscape(externalID)

	var resp currentResponse
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return decimal.Zero, false, fmt.Errorf("llama: current price %s: %w", externalID, err)
	}
	coin, ok := resp.Coins[externalID]
	if !ok {
		return decimal.Zero, false, nil
	}
	if !coin.Price.Valid {
		return decimal.Zero, false, fmt.Errorf("llama: current price %s: %w: payload has no price", externalID, domain.ErrUpstream)
	}
	return coin.Price.Decimal, true, nil
}

// Chart returns the hourly samples starting at start. A payload without an
// entry for the coin is malformed; an entry with no prices yields no samples.
func (c *Client) Chart(ctx context.Context, externalID string, start time.Time) ([]domain.PriceSample, error) {
	params := url.Values{}
	params.Set("start", strconv.FormatInt(start.Unix(), 10))
	params.Set("span", strconv.Itoa(chartSpan))
	params.Set("period", chartPeriod)
	params.Set("searchWidth", strconv.Itoa(chartSearchWidth))
	path := "/chart/" + url.PathEscape(externalID) + "?" + params.Encode()

	var resp chartResponse
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("llama: chart %s: %w", externalID, err)
	}
	coin, ok := resp.Coins[externalID]
	if !ok {
		return nil, fmt.Errorf("llama: chart %s: %w: payload missing coin", externalID, domain.ErrUpstream)
	}
	return coin.samples(), nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: http request: %w", domain.ErrUpstream, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: read response: %w", domain.ErrUpstream, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: HTTP %d: %s", domain.ErrUpstream, resp.StatusCode, truncate(body, 256))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decode response: %w", domain.ErrUpstream, err)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

var _ domain.PriceSource = (*Client)(nil)
