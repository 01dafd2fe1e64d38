package fetcher

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrSessionExpired signals the Buff session cookie is no longer accepted
	// upstream. Callers must surface this to the credential owner instead of
	// treating the cycle as an empty fetch.
	ErrSessionExpired = errors.New("fetcher: buff session expired")
	// ErrThrottled signals an HTTP 429; the caller should cool down and stop
	// paginating for the rest of the cycle.
	ErrThrottled = errors.New("fetcher: upstream throttled")
)

// Record is one normalised Buff listing priced in the reference currency.
type Record struct {
	GoodsID  string
	Name     string
	PriceCNY decimal.Decimal
	PriceUSD decimal.Decimal
	SellNum  int
	BuyNum   int
	SteamUSD *decimal.Decimal
	IconPath string
	GoodsURL string
}

// PageFetcher retrieves one page of the authenticated primary source.
type PageFetcher interface {
	FetchPage(ctx context.Context, session string, page int, cnyUSD decimal.Decimal) ([]Record, error)
}

// CatalogFetcher retrieves a full bulk price catalog keyed by item name.
type CatalogFetcher interface {
	Source() string
	FetchAll(ctx context.Context) (map[string]decimal.Decimal, error)
}

// RateFetcher retrieves the CNY/USD reference rate.
type RateFetcher interface {
	FetchRate(ctx context.Context) (decimal.Decimal, error)
}
