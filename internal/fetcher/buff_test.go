package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func newTestBuff(url string) *Buff {
	return NewBuff(BuffOptions{
		BaseURL:   url,
		Category:  "knife",
		PageSize:  50,
		Timeout:   time.Second,
		UserAgent: "test",
	}, noopLogger())
}

func TestBuffFetchPageSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("page_num"); got != "2" {
			t.Fatalf("page_num 应为 2, 实际 %s", got)
		}
		if got := r.Header.Get("Cookie"); got != "session=abc" {
			t.Fatalf("Cookie 不正确: %s", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"code": "OK",
			"data": map[string]any{
				"items": []map[string]any{
					{
						"id":               12345,
						"market_hash_name": "AK-47 | Redline (Field-Tested)",
						"sell_min_price":   "100",
						"sell_num":         60,
						"buy_num":          12,
						"goods_info": map[string]any{
							"icon_url":    "abc/def.png",
							"steam_price": "120",
						},
					},
					{
						// malformed price, must be dropped
						"id":               12346,
						"market_hash_name": "Broken Item",
						"sell_min_price":   "not-a-number",
					},
				},
			},
		})
	}))
	defer srv.Close()

	records, err := newTestBuff(srv.URL).FetchPage(context.Background(), "abc", 2, decimal.NewFromFloat(0.14))
	if err != nil {
		t.Fatalf("成功响应不应报错: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("期望 1 条记录, 实际 %d", len(records))
	}

	rec := records[0]
	if rec.Name != "AK-47 | Redline (Field-Tested)" {
		t.Fatalf("名称不正确: %s", rec.Name)
	}
	if !rec.PriceUSD.Equal(decimal.NewFromFloat(14)) {
		t.Fatalf("USD 价格应为 14, 实际 %s", rec.PriceUSD)
	}
	if rec.SellNum != 60 || rec.BuyNum != 12 {
		t.Fatalf("流动性字段不正确: %d/%d", rec.SellNum, rec.BuyNum)
	}
	if rec.SteamUSD == nil || !rec.SteamUSD.Equal(decimal.NewFromFloat(16.8)) {
		t.Fatalf("Steam 价格换算不正确: %v", rec.SteamUSD)
	}
	if rec.IconPath != "/api/img?p=abc/def.png" {
		t.Fatalf("icon path 不正确: %s", rec.IconPath)
	}
	if rec.GoodsURL != srv.URL+"/goods/12345" {
		t.Fatalf("goods url 不正确: %s", rec.GoodsURL)
	}
}

func TestBuffFetchPageThrottled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestBuff(srv.URL).FetchPage(context.Background(), "abc", 1, decimal.NewFromFloat(0.14))
	if !errors.Is(err, ErrThrottled) {
		t.Fatalf("HTTP 429 应返回 ErrThrottled, 实际 %v", err)
	}
}

func TestBuffFetchPageForbidden(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := newTestBuff(srv.URL).FetchPage(context.Background(), "abc", 1, decimal.NewFromFloat(0.14))
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("HTTP 403 应返回 ErrSessionExpired, 实际 %v", err)
	}
}

func TestBuffFetchPageLoginCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"code":  "Login Required",
			"error": "Please login first",
		})
	}))
	defer srv.Close()

	_, err := newTestBuff(srv.URL).FetchPage(context.Background(), "abc", 1, decimal.NewFromFloat(0.14))
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("登录错误应返回 ErrSessionExpired, 实际 %v", err)
	}
}

func TestBuffFetchPageAPIErrorYieldsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"code":  "Internal Error",
			"error": "server exploded",
		})
	}))
	defer srv.Close()

	records, err := newTestBuff(srv.URL).FetchPage(context.Background(), "abc", 1, decimal.NewFromFloat(0.14))
	if err != nil {
		t.Fatalf("非登录类 API 错误不应上抛: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("应返回空结果, 实际 %d", len(records))
	}
}
