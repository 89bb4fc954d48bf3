// Package oracle implements the DIA-style price feed client used for
// native-currency pricing.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

var e8 = big.NewInt(100_000_000)

// Client polls an asset-quotation endpoint and caches the most recently
// published value as an integer scaled by 1e8, together with its publication
// timestamp. It satisfies the sale engine's PriceFeed contract.
type Client struct {
	httpClient *http.Client
	endpoint   string
	key        string

	mu        sync.RWMutex
	lastValue *big.Int
	lastTime  int64
}

// New constructs a client for the given quotation endpoint and lookup key.
func New(endpoint, key string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		endpoint:   strings.TrimRight(endpoint, "/"),
		key:        strings.TrimSpace(key),
	}
}

// SetHTTPClient overrides the transport, primarily for tests.
func (c *Client) SetHTTPClient(client *http.Client) {
	if c == nil || client == nil {
		return
	}
	c.httpClient = client
}

type quotation struct {
	Symbol string      `json:"Symbol"`
	Price  json.Number `json:"Price"`
	Time   time.Time   `json:"Time"`
}

// Refresh fetches the latest quotation once and replaces the cached value.
func (c *Client) Refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?key="+url.QueryEscape(c.key), nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("oracle: fetch quotation: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("oracle: quotation endpoint returned %d", resp.StatusCode)
	}
	var quote quotation
	decoder := json.NewDecoder(resp.Body)
	decoder.UseNumber()
	if err := decoder.Decode(&quote); err != nil {
		return fmt.Errorf("oracle: decode quotation: %w", err)
	}
	value, err := priceToE8(quote.Price)
	if err != nil {
		return err
	}
	publishedAt := quote.Time.Unix()
	if quote.Time.IsZero() {
		publishedAt = time.Now().Unix()
	}
	c.mu.Lock()
	c.lastValue = value
	c.lastTime = publishedAt
	c.mu.Unlock()
	return nil
}

// Run polls the endpoint until the context is cancelled. Fetch failures are
// logged and the previous value stays cached; the engine's staleness bound
// decides when a stuck feed becomes unusable.
func (c *Client) Run(ctx context.Context, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := c.Refresh(ctx); err != nil {
			logger.Warn("oracle refresh failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Value returns the cached quote for the requested key. It implements
// ido.PriceFeed: absence of a quote is an error, and a zero price is passed
// through for the engine to reject.
func (c *Client) Value(key string) (*big.Int, int64, error) {
	if strings.TrimSpace(key) != c.key {
		return nil, 0, fmt.Errorf("oracle: unknown key %q", key)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.lastValue == nil {
		return nil, 0, fmt.Errorf("oracle: no quotation received yet")
	}
	return new(big.Int).Set(c.lastValue), c.lastTime, nil
}

// priceToE8 converts a decimal price into an integer scaled by 1e8 without
// going through float arithmetic.
func priceToE8(price json.Number) (*big.Int, error) {
	rat, ok := new(big.Rat).SetString(price.String())
	if !ok {
		return nil, fmt.Errorf("oracle: malformed price %q", price.String())
	}
	if rat.Sign() < 0 {
		return nil, fmt.Errorf("oracle: negative price %q", price.String())
	}
	scaled := new(big.Rat).Mul(rat, new(big.Rat).SetInt(e8))
	// Truncate any precision beyond 1e-8.
	return new(big.Int).Quo(scaled.Num(), scaled.Denom()), nil
}
