package notify

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"
)

const telegramAPI = "https://api.telegram.org"

// TelegramSender posts alerts to a chat through the Bot API sendMessage call.
type TelegramSender struct {
	apiURL string
	token  string
	chatID string
	client *http.Client
}

// NewTelegramSender creates a sender for the bot token and chat id.
func NewTelegramSender(token, chatID string) *TelegramSender {
	return &TelegramSender{
		apiURL: telegramAPI,
		token:  token,
		chatID: chatID,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

type telegramMessage struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

// Send renders the alert as HTML; user text is escaped.
func (t *TelegramSender) Send(ctx context.Context, a Alert) error {
	var b strings.Builder
	b.WriteString("<b>" + html.EscapeString(a.Title) + "</b>")
	if a.Body != "" {
		b.WriteString("\n" + html.EscapeString(a.Body))
	}
	for _, line := range a.lines() {
		b.WriteString("\n<code>" + html.EscapeString(line) + "</code>")
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiURL, t.token)
	if err := postJSON(ctx, t.client, url, telegramMessage{
		ChatID:                t.chatID,
		Text:                  b.String(),
		ParseMode:             "HTML",
		DisableWebPagePreview: true,
	}); err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	return nil
}

func (t *TelegramSender) Name() string { return "telegram" }
