// Package feed fetches off-chain asset prices from each platform's API and
// fulfills pending cross-platform price requests as the oracle.
package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"github.com/atmx/rwa-engine/internal/fixedpoint"
)

// ErrBadQuote is returned when a platform answers with an unusable price.
var ErrBadQuote = errors.New("feed: platform returned an invalid price")

// Fetcher retrieves the current price of assetID from a platform API.
type Fetcher interface {
	FetchPrice(ctx context.Context, apiEndpoint, assetID string) (decimal.Decimal, error)
}

// PriceQuote is the body platforms return from GET /assets/{assetId}/price.
// Price is in base units.
type PriceQuote struct {
	AssetID string          `json:"asset_id"`
	Price   decimal.Decimal `json:"price"`
}

// HTTPFetcher calls platform APIs over HTTP, retrying transport failures
// and 5xx responses.
type HTTPFetcher struct {
	client *resty.Client
}

// FetcherConfig tunes the HTTP client.
type FetcherConfig struct {
	Timeout    time.Duration
	RetryCount int
	RetryWait  time.Duration
}

// NewHTTPFetcher creates a fetcher.
func NewHTTPFetcher(cfg FetcherConfig) *HTTPFetcher {
	client := resty.New()
	client.SetTimeout(cfg.Timeout)
	client.SetRetryCount(cfg.RetryCount)
	client.SetRetryWaitTime(cfg.RetryWait)
	client.SetRetryMaxWaitTime(8 * cfg.RetryWait)
	client.SetHeader("Accept", "application/json")
	client.AddRetryCondition(func(r *resty.Response, err error) bool {
		return err != nil || r.StatusCode() >= http.StatusInternalServerError
	})
	return &HTTPFetcher{client: client}
}

func (f *HTTPFetcher) FetchPrice(ctx context.Context, apiEndpoint, assetID string) (decimal.Decimal, error) {
	var quote PriceQuote
	resp, err := f.client.R().
		SetContext(ctx).
		SetResult(&quote).
		SetPathParam("assetId", assetID).
		Get(apiEndpoint + "/assets/{assetId}/price")
	if err != nil {
		return decimal.Zero, fmt.Errorf("fetch %s from %s: %w", assetID, apiEndpoint, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return decimal.Zero, fmt.Errorf("fetch %s from %s: API error %d: %s",
			assetID, apiEndpoint, resp.StatusCode(), resp.String())
	}
	if err := fixedpoint.Validate(quote.Price); err != nil || !quote.Price.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s from %s: %q", ErrBadQuote, assetID, apiEndpoint, quote.Price.String())
	}
	return quote.Price, nil
}

// validEndpoint reports whether a platform's endpoint can be fetched.
func validEndpoint(s string) bool {
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
