// Package oracle provides price-feed adapters implementing
// domain.PriceOracle.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/predictify/engine/internal/domain"
)

// Client is a REST client for reflector-style price feed gateways. The
// gateway exposes the latest quote per provider and feed; the client
// enforces a staleness bound on what it accepts.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxAge     time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

// NewClient creates a price feed client.
//
// baseURL is the gateway root, e.g. "https://feeds.example.com/v1".
// maxAge bounds how old an accepted quote may be.
func NewClient(baseURL string, maxAge time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		maxAge: maxAge,
		logger: logger,
		now:    time.Now,
	}
}

var _ domain.PriceOracle = (*Client)(nil)

type quoteResponse struct {
	Price     int64 `json:"price"`
	Timestamp int64 `json:"timestamp"`
}

// Price fetches the latest quote for a feed. Quotes older than the
// configured bound fail with ErrOracleDataStale; non-positive prices fail
// with ErrOraclePriceOutOfRange.
func (c *Client) Price(ctx context.Context, provider domain.OracleProvider, feedID string) (int64, time.Time, error) {
	if !provider.Supported() {
		return 0, time.Time{}, fmt.Errorf("oracle: provider %s: %w", provider, domain.ErrInvalidOracleFeed)
	}

	endpoint := fmt.Sprintf("%s/price/%s?feed=%s", c.baseURL, provider, url.QueryEscape(feedID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("oracle: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("oracle: fetch %s/%s: %w: %v", provider, feedID, domain.ErrOracleUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return 0, time.Time{}, fmt.Errorf("oracle: feed %s/%s: %w", provider, feedID, domain.ErrInvalidOracleFeed)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, time.Time{}, fmt.Errorf("oracle: fetch %s/%s: status %d (%s): %w",
			provider, feedID, resp.StatusCode, string(body), domain.ErrOracleUnavailable)
	}

	var q quoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&q); err != nil {
		return 0, time.Time{}, fmt.Errorf("oracle: decode quote %s/%s: %w", provider, feedID, err)
	}

	at := time.Unix(q.Timestamp, 0).UTC()
	if age := c.now().Sub(at); age > c.maxAge {
		return 0, time.Time{}, fmt.Errorf("oracle: quote %s/%s is %s old: %w", provider, feedID, age, domain.ErrOracleDataStale)
	}
	if q.Price <= 0 {
		return 0, time.Time{}, fmt.Errorf("oracle: quote %s/%s price %d: %w", provider, feedID, q.Price, domain.ErrOraclePriceOutOfRange)
	}

	c.logger.DebugContext(ctx, "oracle: quote fetched",
		slog.String("provider", string(provider)),
		slog.String("feed", feedID),
		slog.Int64("price", q.Price),
	)
	return q.Price, at, nil
}
