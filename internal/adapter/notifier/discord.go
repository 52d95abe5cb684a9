package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hive-corporation/threatpulse/internal/adapter/resilient"
	"github.com/hive-corporation/threatpulse/internal/core/ports"
)

const discordAlertColor = 0xE53E3E

// DiscordNotifier posts desktop notifications to a Discord webhook.
type DiscordNotifier struct {
	webhookURL string
	username   string
	client     *resilient.Client
}

func NewDiscordNotifier(webhookURL, username string, client *resilient.Client) *DiscordNotifier {
	if username == "" {
		username = "threatpulse"
	}
	return &DiscordNotifier{webhookURL: webhookURL, username: username, client: client}
}

func (d *DiscordNotifier) Name() string {
	return "discord"
}

func (d *DiscordNotifier) Permission(ctx context.Context) ports.Permission {
	if d.webhookURL == "" {
		return ports.PermissionDenied
	}
	return ports.PermissionGranted
}

func (d *DiscordNotifier) RequestPermission(ctx context.Context) ports.Permission {
	return d.Permission(ctx)
}

type discordMessage struct {
	Username string         `json:"username"`
	Content  string         `json:"content,omitempty"`
	Embeds   []discordEmbed `json:"embeds"`
}

type discordEmbed struct {
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Color       int                 `json:"color"`
	Footer      *discordEmbedFooter `json:"footer,omitempty"`
	Timestamp   string              `json:"timestamp,omitempty"`
}

type discordEmbedFooter struct {
	Text string `json:"text"`
}

func (d *DiscordNotifier) Notify(ctx context.Context, n ports.DesktopNotification) error {
	if d.webhookURL == "" {
		return fmt.Errorf("discord notifier is not configured")
	}

	msg := discordMessage{
		Username: d.username,
		Embeds: []discordEmbed{{
			Title:       n.Title,
			Description: n.Body,
			Color:       discordAlertColor,
			Footer:      &discordEmbedFooter{Text: "alert " + n.AlertID},
			Timestamp:   time.Now().UTC().Format(time.RFC3339),
		}},
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal Discord message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	resp.Body.Close()
	return nil
}
