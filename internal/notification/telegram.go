package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"strings"
	"time"
)

const telegramAPIBase = "https://api.telegram.org"

// TelegramNotifier posts pair alerts to a chat through the Bot API
// sendMessage method, formatted as MarkdownV2.
type TelegramNotifier struct {
	botToken string
	chatID   string
	apiBase  string
	client   *http.Client
}

// NewTelegramNotifier creates a notifier for the bot token and target chat.
func NewTelegramNotifier(botToken, chatID string) *TelegramNotifier {
	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		apiBase:  telegramAPIBase,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

type sendMessageRequest struct {
	ChatID              string `json:"chat_id"`
	Text                string `json:"text"`
	ParseMode           string `json:"parse_mode"`
	DisableNotification bool   `json:"disable_notification,omitempty"`
}

// sendMessageResponse is the Bot API envelope; Description is set when OK is false.
type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
}

// Send delivers alert. Info-level alerts are sent silently.
func (t *TelegramNotifier) Send(ctx context.Context, alert Alert) error {
	body, err := json.Marshal(sendMessageRequest{
		ChatID:              t.chatID,
		Text:                telegramText(alert),
		ParseMode:           "MarkdownV2",
		DisableNotification: alert.Level == AlertInfo,
	})
	if err != nil {
		return fmt.Errorf("telegram: encode: %w", err)
	}

	endpoint := t.apiBase + "/bot" + t.botToken + "/sendMessage"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram: status %d: %s", resp.StatusCode, apiDescription(resp.Body))
	}
	log.Printf("[telegram] %s alert for %s delivered", alert.Level, alert.Pair)
	return nil
}

// apiDescription extracts the Bot API error text, falling back to "unknown error".
func apiDescription(r io.Reader) string {
	var env sendMessageResponse
	if err := json.NewDecoder(io.LimitReader(r, 64<<10)).Decode(&env); err != nil || env.Description == "" {
		return "unknown error"
	}
	return env.Description
}

var levelBadge = map[AlertLevel]string{
	AlertInfo:     "ℹ️",
	AlertWarning:  "⚠️",
	AlertCritical: "🚨",
}

// telegramText renders the title in bold, the free-text message, and a
// stats line for pair alerts. Every user-supplied fragment is escaped.
func telegramText(a Alert) string {
	var sb strings.Builder
	if badge, ok := levelBadge[a.Level]; ok {
		sb.WriteString(badge + " ")
	}
	sb.WriteString("*" + escapeMarkdown(a.Title) + "*")
	if a.Message != "" {
		sb.WriteString("\n\n" + escapeMarkdown(a.Message))
	}
	if a.Pair == "" {
		return sb.String()
	}

	stats := fmt.Sprintf("%s z=%.2f", a.Pair, a.ZScore)
	if !math.IsNaN(a.PValue) {
		stats += fmt.Sprintf(" p=%.4f", a.PValue)
	}
	if !a.BarTS.IsZero() {
		stats += " @ " + a.BarTS.UTC().Format(time.RFC3339)
	}
	sb.WriteString("\n\n" + escapeMarkdown(stats))
	return sb.String()
}

var markdownV2 = strings.NewReplacer(
	`\`, `\\`, "_", `\_`, "*", `\*`, "[", `\[`, "]", `\]`, "(", `\(`, ")", `\)`,
	"~", `\~`, "`", "\\`", ">", `\>`, "#", `\#`, "+", `\+`, "-", `\-`,
	"=", `\=`, "|", `\|`, "{", `\{`, "}", `\}`, ".", `\.`, "!", `\!`,
)

// escapeMarkdown escapes the MarkdownV2 reserved characters.
func escapeMarkdown(s string) string {
	return markdownV2.Replace(s)
}
