package coingecko

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// DefaultBaseURL is the public CoinGecko v3 API
const DefaultBaseURL = "https://api.coingecko.com/api/v3"

// RequestTimeout bounds a single API call so one slow fetch cannot stall a
// whole collection tick
const RequestTimeout = 30 * time.Second

// ErrRateLimited is returned when CoinGecko answers 429. Callers abort the
// current batch and retry on a later tick instead of hammering the API.
var ErrRateLimited = errors.New("coingecko: rate limited")

// MarketCoin represents one entry of the /coins/markets snapshot. Numeric
// fields are pointers because the API returns null for thin or newly listed
// coins.
type MarketCoin struct {
	ID             string   `json:"id"`
	Symbol         string   `json:"symbol"`
	Name           string   `json:"name"`
	Image          string   `json:"image"`
	CurrentPrice   *float64 `json:"current_price"`
	MarketCap      *float64 `json:"market_cap"`
	TotalVolume    *float64 `json:"total_volume"`
	PriceChange24h *float64 `json:"price_change_24h"`
	MarketCapRank  *int     `json:"market_cap_rank"`
}

// MarketChart represents the /coins/{id}/market_chart response. The three
// series are [timestampMs, value] pairs aligned by index; market_caps and
// total_volumes may be absent or shorter than prices.
type MarketChart struct {
	Prices       [][]float64 `json:"prices"`
	MarketCaps   [][]float64 `json:"market_caps"`
	TotalVolumes [][]float64 `json:"total_volumes"`
}

// Client is a minimal CoinGecko v3 REST client
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a CoinGecko client. baseURL may be empty to use the
// public API; apiKey may be empty for keyless (free tier) access.
func NewClient(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: RequestTimeout,
		},
	}
}

// FetchTopMarkets fetches one page of the market snapshot ordered by market
// cap descending. Returns ErrRateLimited on HTTP 429.
func (c *Client) FetchTopMarkets(ctx context.Context, vsCurrency string, page, perPage int) ([]MarketCoin, error) {
	q := url.Values{}
	q.Set("vs_currency", vsCurrency)
	q.Set("order", "market_cap_desc")
	q.Set("per_page", strconv.Itoa(perPage))
	q.Set("page", strconv.Itoa(page))
	q.Set("sparkline", "false")

	var coins []MarketCoin
	if err := c.getJSON(ctx, "/coins/markets", q, &coins); err != nil {
		return nil, err
	}
	return coins, nil
}

// FetchMarketChart fetches the per-asset chart series for the last N days
func (c *Client) FetchMarketChart(ctx context.Context, externalID, vsCurrency string, days int) (*MarketChart, error) {
	q := url.Values{}
	q.Set("vs_currency", vsCurrency)
	q.Set("days", strconv.Itoa(days))

	var chart MarketChart
	path := "/coins/" + url.PathEscape(externalID) + "/market_chart"
	if err := c.getJSON(ctx, path, q, &chart); err != nil {
		return nil, err
	}
	return &chart, nil
}

// getJSON performs one GET request and decodes the JSON response into out
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	reqURL := c.baseURL + path + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-cg-demo-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("coingecko request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return ErrRateLimited
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("coingecko status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
