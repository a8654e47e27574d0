// internal/price/coingecko.go
package price

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DefaultCoinGeckoURL is the public simple-price endpoint for SOL/USD.
const DefaultCoinGeckoURL = "https://api.coingecko.com/api/v3/simple/price?ids=solana&vs_currencies=usd"

// CoinGeckoFeed reads the SOL/USD price from CoinGecko, retrying transient errors.
type CoinGeckoFeed struct {
	client     *http.Client
	url        string
	maxRetries uint
	logger     *zap.Logger
}

// NewCoinGeckoFeed creates a feed; an empty url selects DefaultCoinGeckoURL.
func NewCoinGeckoFeed(url string, timeout time.Duration, maxRetries uint, logger *zap.Logger) *CoinGeckoFeed {
	if url == "" {
		url = DefaultCoinGeckoURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if maxRetries == 0 {
		maxRetries = 3
	}
	return &CoinGeckoFeed{
		client:     &http.Client{Timeout: timeout},
		url:        url,
		maxRetries: maxRetries,
		logger:     logger.Named("price-feed"),
	}
}

type simplePrice map[string]map[string]decimal.Decimal

// SolUSD implements Feed.
func (f *CoinGeckoFeed) SolUSD(ctx context.Context) (decimal.Decimal, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 5 * time.Second

	return backoff.Retry(ctx, func() (decimal.Decimal, error) {
		return f.fetch(ctx)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(f.maxRetries),
		backoff.WithNotify(func(err error, next time.Duration) {
			f.logger.Warn("price fetch failed, retrying", zap.Error(err), zap.Duration("next", next))
		}),
	)
}

func (f *CoinGeckoFeed) fetch(ctx context.Context) (decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return decimal.Decimal{}, backoff.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("price API error: status %d: %s", resp.StatusCode, body)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return decimal.Decimal{}, err
		}
		return decimal.Decimal{}, backoff.Permanent(err)
	}

	var out simplePrice
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return decimal.Decimal{}, backoff.Permanent(fmt.Errorf("decode response: %w", err))
	}
	usd, ok := out["solana"]["usd"]
	if !ok || !usd.IsPositive() {
		return decimal.Decimal{}, backoff.Permanent(errors.New("response has no positive solana.usd price"))
	}
	return usd, nil
}
