package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "sendMessage") {
			t.Fatalf("路径应包含 sendMessage, 实际 %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("解析请求体失败: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", srv.URL, time.Second, testLogger())
	buff := decimal.NewFromFloat(10)
	note := Notification{
		ChatID:       42,
		Kind:         KindAlertTriggered,
		ItemName:     "AK-47 | Redline (Field-Tested)",
		Condition:    "roi_at_least",
		BuffPriceUSD: &buff,
		BestMarket:   "cgm",
		BestROI:      decimal.NewFromFloat(11.6),
		NetUSD:       decimal.NewFromFloat(11.16),
		NetRUB:       decimal.NewFromFloat(1004.4),
	}

	if err := notifier.Notify(context.Background(), note); err != nil {
		t.Fatalf("Telegram Notify 应成功: %v", err)
	}

	if received["chat_id"] != "42" {
		t.Fatalf("chat_id 不正确: %#v", received)
	}
	text := received["text"]
	if !strings.Contains(text, "ROI 11.6%") {
		t.Fatalf("消息应包含 ROI, 实际 %q", text)
	}
	if !strings.Contains(text, "1004 ₽") {
		t.Fatalf("卢布金额应取整, 实际 %q", text)
	}
}

func TestTelegramNotifierError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", srv.URL, time.Second, testLogger())
	note := Notification{ChatID: 42, Kind: KindCredentialExpired}

	if err := notifier.Notify(context.Background(), note); err == nil {
		t.Fatal("ok=false 应报错")
	}
}

func TestRenderMessageKinds(t *testing.T) {
	ready := renderMessage(Notification{
		Kind:        KindPositionReady,
		ItemName:    "item",
		Quantity:    2,
		BuyPriceUSD: decimal.NewFromFloat(10),
		SellMarket:  "cgm",
	})
	if !strings.Contains(ready, "Trade lock expired") {
		t.Fatalf("position_ready 消息不正确: %q", ready)
	}

	expiring := renderMessage(Notification{Kind: KindCredentialExpiring, AgeDays: 12})
	if !strings.Contains(expiring, "12 days old") {
		t.Fatalf("credential_expiring 消息不正确: %q", expiring)
	}

	expired := renderMessage(Notification{Kind: KindCredentialExpired})
	if !strings.Contains(expired, "Session expired") {
		t.Fatalf("credential_expired 消息不正确: %q", expired)
	}
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
