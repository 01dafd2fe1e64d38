package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Kind discriminates notification payloads.
type Kind string

const (
	KindAlertTriggered     Kind = "alert_triggered"
	KindPositionReady      Kind = "position_ready"
	KindCredentialExpiring Kind = "credential_expiring"
	KindCredentialExpired  Kind = "credential_expired"
)

// Notification 封装一次用户通知的上下文。
type Notification struct {
	ChatID    int64
	Kind      Kind
	ItemName  string
	Condition string
	Threshold *decimal.Decimal

	BuffPriceUSD *decimal.Decimal
	BestROI      decimal.Decimal
	BestMarket   string
	NetUSD       decimal.Decimal
	NetRUB       decimal.Decimal
	USDRUB       decimal.Decimal

	Quantity    int
	BuyPriceUSD decimal.Decimal
	SellMarket  string

	AgeDays int
}

// Notifier 定义通知输送接口。Delivery is best-effort; callers log failures
// and continue.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// TelegramNotifier 通过 Telegram Bot API 推送消息。
type TelegramNotifier struct {
	botToken string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier 构造 Telegram 通知器。
func NewTelegramNotifier(botToken, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "notify_telegram").Logger(),
	}
}

// Notify 调用 sendMessage API 推送文本。
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id": strconv.FormatInt(note.ChatID, 10),
		"text":    renderMessage(note),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram 响应码异常: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram 返回 ok=false")
		}
	}

	n.logger.Info().Int64("chat_id", note.ChatID).
		Str("kind", string(note.Kind)).
		Str("item", note.ItemName).
		Msg("通知已发送 (Telegram)")
	return nil
}

// renderMessage formats one notification. Display rounding lives here only:
// USD to 2 places, RUB to whole units, ROI to 1 place.
func renderMessage(note Notification) string {
	builder := strings.Builder{}
	switch note.Kind {
	case KindAlertTriggered:
		builder.WriteString("[Alert] " + note.ItemName + "\n")
		builder.WriteString(fmt.Sprintf("Condition: %s", note.Condition))
		if note.Threshold != nil {
			builder.WriteString(" " + note.Threshold.StringFixed(2))
		}
		builder.WriteString("\n")
		if note.BuffPriceUSD != nil {
			builder.WriteString(fmt.Sprintf("Buff: $%s\n", note.BuffPriceUSD.StringFixed(2)))
		}
		if note.BestMarket != "" {
			builder.WriteString(fmt.Sprintf("Best: %s, ROI %s%%\n", note.BestMarket, note.BestROI.StringFixed(1)))
			builder.WriteString(fmt.Sprintf("Net: $%s (%s ₽)\n", note.NetUSD.StringFixed(2), note.NetRUB.Round(0).String()))
		}
	case KindPositionReady:
		builder.WriteString("[Portfolio] " + note.ItemName + "\n")
		builder.WriteString(fmt.Sprintf("Trade lock expired: %d pcs bought at $%s\n", note.Quantity, note.BuyPriceUSD.StringFixed(2)))
		if note.SellMarket != "" {
			builder.WriteString(fmt.Sprintf("Planned exit: %s\n", note.SellMarket))
		}
	case KindCredentialExpiring:
		builder.WriteString("[Buff Session]\n")
		builder.WriteString(fmt.Sprintf("Session cookie is %d days old, refresh it before it expires\n", note.AgeDays))
	case KindCredentialExpired:
		builder.WriteString("[Buff Session]\n")
		builder.WriteString("Session expired, the collector skipped this cycle. Update the cookie to resume pricing\n")
	default:
		builder.WriteString(string(note.Kind) + "\n")
	}
	return builder.String()
}

var _ Notifier = (*TelegramNotifier)(nil)
