package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const goodsPath = "/api/market/goods"

// BuffOptions parameterise the Buff.163 fetcher.
type BuffOptions struct {
	BaseURL   string
	Category  string
	PageSize  int
	Timeout   time.Duration
	UserAgent string
}

// Buff fetches paginated listings from the Buff.163 market API.
type Buff struct {
	opts    BuffOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewBuff constructs a Buff fetcher.
func NewBuff(opts BuffOptions, logger zerolog.Logger) *Buff {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://buff.163.com"
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 50
	}

	return &Buff{
		opts:    opts,
		logger:  logger.With().Str("component", "buff_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// FetchPage retrieves one page of listings, converting prices to USD at the
// supplied CNY/USD rate. A failed or malformed page returns an empty slice;
// only session expiry and throttling are reported as errors.
func (b *Buff) FetchPage(ctx context.Context, session string, page int, cnyUSD decimal.Decimal) ([]Record, error) {
	query := url.Values{}
	query.Set("game", "csgo")
	query.Set("page_num", strconv.Itoa(page))
	query.Set("page_size", strconv.Itoa(b.opts.PageSize))
	query.Set("sort_by", "price.asc")
	if b.opts.Category != "" {
		query.Set("category_group", b.opts.Category)
	}

	endpoint := b.baseURL + goodsPath + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create buff request: %w", err)
	}
	req.Header.Set("Cookie", "session="+session)
	req.Header.Set("User-Agent", b.opts.UserAgent)
	req.Header.Set("Referer", b.baseURL+"/market/csgo")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := b.client.Do(req)
	if err != nil {
		b.logger.Warn().Err(err).Int("page", page).Msg("buff request failed")
		return nil, nil
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		b.logger.Warn().Int("page", page).Msg("buff rate limit hit")
		return nil, ErrThrottled
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		b.logger.Error().Int("status", resp.StatusCode).Msg("buff access denied, session stale?")
		return nil, ErrSessionExpired
	case resp.StatusCode != http.StatusOK:
		b.logger.Warn().Int("status", resp.StatusCode).Int("page", page).Msg("buff unexpected status")
		return nil, nil
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		b.logger.Warn().Err(err).Msg("read buff response")
		return nil, nil
	}

	var body goodsResponse
	if err := json.Unmarshal(payload, &body); err != nil {
		b.logger.Warn().Err(err).Msg("decode buff response")
		return nil, nil
	}

	if body.Code != "OK" {
		msg := body.Error
		if msg == "" {
			msg = body.Code
		}
		if isLoginError(body.Code, msg) {
			b.logger.Error().Str("code", body.Code).Msg("buff session expired")
			return nil, ErrSessionExpired
		}
		b.logger.Warn().Str("code", body.Code).Str("error", msg).Msg("buff api error")
		return nil, nil
	}

	records := make([]Record, 0, len(body.Data.Items))
	for _, item := range body.Data.Items {
		rec, ok := b.normalise(item, cnyUSD)
		if !ok {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// normalise converts one raw listing; malformed or non-positive prices are
// dropped, the page continues.
func (b *Buff) normalise(item goodsItem, cnyUSD decimal.Decimal) (Record, bool) {
	priceCNY, err := decimal.NewFromString(item.SellMinPrice)
	if err != nil || !priceCNY.IsPositive() || item.Name == "" {
		return Record{}, false
	}

	goodsID := item.ID.String()
	rec := Record{
		GoodsID:  goodsID,
		Name:     item.Name,
		PriceCNY: priceCNY,
		PriceUSD: priceCNY.Mul(cnyUSD).Round(2),
		SellNum:  item.SellNum,
		BuyNum:   item.BuyNum,
		GoodsURL: b.baseURL + "/goods/" + goodsID,
	}

	if item.GoodsInfo.IconURL != "" {
		// Raw CDN path; the request layer proxies it.
		rec.IconPath = "/api/img?p=" + item.GoodsInfo.IconURL
	}

	if item.GoodsInfo.SteamPrice != "" {
		if steamCNY, err := decimal.NewFromString(item.GoodsInfo.SteamPrice); err == nil && steamCNY.IsPositive() {
			steamUSD := steamCNY.Mul(cnyUSD).Round(2)
			rec.SteamUSD = &steamUSD
		}
	}

	return rec, true
}

func isLoginError(code, msg string) bool {
	if code == "Login" || code == "NotLogin" {
		return true
	}
	return strings.Contains(strings.ToLower(msg), "login")
}

type goodsResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
	Data  struct {
		Items []goodsItem `json:"items"`
	} `json:"data"`
}

type goodsItem struct {
	ID           json.Number `json:"id"`
	Name         string      `json:"market_hash_name"`
	SellMinPrice string      `json:"sell_min_price"`
	SellNum      int         `json:"sell_num"`
	BuyNum       int         `json:"buy_num"`
	GoodsInfo    struct {
		IconURL    string `json:"icon_url"`
		SteamPrice string `json:"steam_price"`
	} `json:"goods_info"`
}

var _ PageFetcher = (*Buff)(nil)
