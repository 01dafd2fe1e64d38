package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// CatalogOptions parameterise one bulk catalog source.
type CatalogOptions struct {
	Source  string
	URL     string
	Timeout time.Duration
	Headers map[string]string
}

type parseFunc func(payload []byte) (map[string]decimal.Decimal, error)

// Catalog fetches a whole price list in one request. The two concrete
// sources differ only in URL, headers, and payload shape.
type Catalog struct {
	opts   CatalogOptions
	parse  parseFunc
	logger zerolog.Logger
	client *http.Client
}

func newCatalog(opts CatalogOptions, parse parseFunc, logger zerolog.Logger) *Catalog {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Catalog{
		opts:   opts,
		parse:  parse,
		logger: logger.With().Str("component", "catalog_fetcher").Str("source", opts.Source).Logger(),
		client: &http.Client{Timeout: timeout},
	}
}

// NewCSGOMarket constructs the CSGOMarket bulk fetcher.
func NewCSGOMarket(baseURL string, timeout time.Duration, logger zerolog.Logger) *Catalog {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = "https://market.csgo.com"
	}
	return newCatalog(CatalogOptions{
		Source:  "cgm",
		URL:     base + "/api/v2/prices/USD.json",
		Timeout: timeout,
	}, parseCSGOMarket, logger)
}

// NewSkinport constructs the Skinport bulk fetcher. Skinport rejects
// headless clients, hence the browser headers.
func NewSkinport(baseURL string, timeout time.Duration, logger zerolog.Logger) *Catalog {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = "https://api.skinport.com"
	}
	return newCatalog(CatalogOptions{
		Source:  "skinport",
		URL:     base + "/v1/items?app_id=730&currency=USD&tradable=0",
		Timeout: timeout,
		Headers: map[string]string{
			"User-Agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			"Accept":          "application/json, text/plain, */*",
			"Accept-Language": "en-US,en;q=0.9",
			"Origin":          "https://skinport.com",
			"Referer":         "https://skinport.com/",
		},
	}, parseSkinport, logger)
}

// Source returns the catalog's source key used for joins and observations.
func (c *Catalog) Source() string {
	return c.opts.Source
}

// FetchAll pulls the full catalog. Errors are returned so the cache layer
// can keep serving the previous pull.
func (c *Catalog) FetchAll(ctx context.Context) (map[string]decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.opts.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", c.opts.Source, err)
	}
	for key, value := range c.opts.Headers {
		req.Header.Set(key, value)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", c.opts.Source, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s http %d", c.opts.Source, resp.StatusCode)
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", c.opts.Source, err)
	}

	prices, err := c.parse(payload)
	if err != nil {
		return nil, fmt.Errorf("parse %s response: %w", c.opts.Source, err)
	}
	if len(prices) == 0 {
		// An empty catalog is an upstream glitch; reporting it as an error
		// keeps the cache serving the previous pull.
		return nil, fmt.Errorf("%s returned an empty catalog", c.opts.Source)
	}

	c.logger.Info().Int("items", len(prices)).Msg("catalog loaded")
	return prices, nil
}

func parseCSGOMarket(payload []byte) (map[string]decimal.Decimal, error) {
	var body struct {
		Items []struct {
			Name  string      `json:"market_hash_name"`
			Price json.Number `json:"price"`
		} `json:"items"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, err
	}

	prices := make(map[string]decimal.Decimal, len(body.Items))
	for _, item := range body.Items {
		if item.Name == "" || item.Price == "" {
			continue
		}
		price, err := decimal.NewFromString(item.Price.String())
		if err != nil || !price.IsPositive() {
			continue
		}
		prices[item.Name] = price
	}
	return prices, nil
}

func parseSkinport(payload []byte) (map[string]decimal.Decimal, error) {
	var body []struct {
		Name     string       `json:"market_hash_name"`
		MinPrice *json.Number `json:"min_price"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, err
	}

	prices := make(map[string]decimal.Decimal, len(body))
	for _, item := range body {
		if item.Name == "" || item.MinPrice == nil {
			continue
		}
		price, err := decimal.NewFromString(item.MinPrice.String())
		if err != nil || !price.IsPositive() {
			continue
		}
		prices[item.Name] = price
	}
	return prices, nil
}

var _ CatalogFetcher = (*Catalog)(nil)
