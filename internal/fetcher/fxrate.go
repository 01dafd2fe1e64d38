package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// FXOptions parameterise the currency rate fetcher.
type FXOptions struct {
	URL     string
	Timeout time.Duration
}

// FXRate fetches the CNY/USD rate from an open exchange rate API.
type FXRate struct {
	opts   FXOptions
	logger zerolog.Logger
	client *http.Client
}

// NewFXRate constructs a rate fetcher.
func NewFXRate(opts FXOptions, logger zerolog.Logger) *FXRate {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if opts.URL == "" {
		opts.URL = "https://open.er-api.com/v6/latest/CNY"
	}
	return &FXRate{
		opts:   opts,
		logger: logger.With().Str("component", "fx_fetcher").Logger(),
		client: &http.Client{Timeout: timeout},
	}
}

// FetchRate retrieves the current CNY/USD rate. Failures are returned to the
// caller, which keeps the previous (or fallback) rate.
func (f *FXRate) FetchRate(ctx context.Context) (decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.opts.URL, nil)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("create fx request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("fx request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Decimal{}, fmt.Errorf("fx http %d", resp.StatusCode)
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("read fx response: %w", err)
	}

	var body struct {
		Rates map[string]json.Number `json:"rates"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return decimal.Decimal{}, fmt.Errorf("decode fx response: %w", err)
	}

	raw, ok := body.Rates["USD"]
	if !ok {
		return decimal.Decimal{}, errors.New("fx response missing USD rate")
	}

	rate, err := decimal.NewFromString(raw.String())
	if err != nil || !rate.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("fx rate invalid: %q", raw.String())
	}

	f.logger.Info().Str("cny_usd", rate.StringFixed(4)).Msg("fx rate refreshed")
	return rate, nil
}

var _ RateFetcher = (*FXRate)(nil)
