package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// embedColorRed is the sidebar colour used for failure alerts.
const embedColorRed = 0xE74C3C

// DiscordSender posts alerts to a Discord webhook as a single embed.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
}

func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

type discordEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Color       int            `json:"color"`
	Timestamp   string         `json:"timestamp"`
	Fields      []discordField `json:"fields,omitempty"`
}

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordPayload struct {
	Username string         `json:"username"`
	Embeds   []discordEmbed `json:"embeds"`
}

func (d *DiscordSender) Send(ctx context.Context, a Alert) error {
	embed := discordEmbed{
		Title:       a.Title,
		Description: a.Body,
		Color:       embedColorRed,
		Timestamp:   a.At.UTC().Format(time.RFC3339),
	}
	for _, line := range a.lines() {
		name, value, _ := strings.Cut(line, ": ")
		embed.Fields = append(embed.Fields, discordField{Name: name, Value: value, Inline: true})
	}

	// Discord answers 204 No Content on success.
	if err := postJSON(ctx, d.client, d.webhookURL, discordPayload{
		Username: "pricesync",
		Embeds:   []discordEmbed{embed},
	}); err != nil {
		return fmt.Errorf("discord: %w", err)
	}
	return nil
}

func (d *DiscordSender) Name() string { return "discord" }
