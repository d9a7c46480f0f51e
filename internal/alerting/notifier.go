// Package alerting pushes execution outcomes to external channels.
package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Notification carries the context of one settled execution.
type Notification struct {
	ExecutedAt    time.Time
	Kind          string
	TokenSymbol   string
	FromChain     string
	ToChain       string
	AmountUSD     decimal.Decimal
	NetBenefitUSD decimal.Decimal
	Success       bool
	TxHash        string
	// ErrorMsg is set on failed executions.
	ErrorMsg string
}

// Notifier delivers notifications.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// TelegramNotifier pushes messages through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier constructs a Telegram notifier.
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify sends the rendered message through the sendMessage API.
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id": n.chatID,
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
		return fmt.Errorf("telegram unexpected status: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram returned ok=false")
		}
	}

	n.logger.Info().Time("executed_at", note.ExecutedAt).
		Str("kind", note.Kind).
		Str("token", note.TokenSymbol).
		Bool("success", note.Success).
		Msg("execution alert sent (Telegram)")
	return nil
}

func renderMessage(note Notification) string {
	builder := strings.Builder{}
	if note.Success {
		builder.WriteString("[Rotator] Execution completed\n")
	} else {
		builder.WriteString("[Rotator] Execution FAILED\n")
	}
	builder.WriteString(fmt.Sprintf("Time: %s UTC\n", note.ExecutedAt.UTC().Format(time.RFC3339)))
	builder.WriteString(fmt.Sprintf("Kind: %s\n", note.Kind))
	builder.WriteString(fmt.Sprintf("Token: %s\n", note.TokenSymbol))
	if note.ToChain != "" && note.ToChain != note.FromChain {
		builder.WriteString(fmt.Sprintf("Route: %s -> %s\n", note.FromChain, note.ToChain))
	} else {
		builder.WriteString(fmt.Sprintf("Chain: %s\n", note.FromChain))
	}
	builder.WriteString(fmt.Sprintf("Amount: $%s\n", note.AmountUSD.StringFixed(2)))
	builder.WriteString(fmt.Sprintf("Net benefit: $%s\n", note.NetBenefitUSD.StringFixed(2)))
	if note.TxHash != "" {
		builder.WriteString(fmt.Sprintf("Tx: %s\n", note.TxHash))
	}
	if note.ErrorMsg != "" {
		builder.WriteString(fmt.Sprintf("Error: %s\n", note.ErrorMsg))
	}
	return builder.String()
}

var _ Notifier = (*TelegramNotifier)(nil)
