package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/hive-corporation/threatpulse/internal/adapter/resilient"
	"github.com/hive-corporation/threatpulse/internal/core/ports"
)

const slackPostMessageURL = "https://slack.com/api/chat.postMessage"

// SlackNotifier delivers desktop notifications as Slack messages. Permission
// is granted when a bot token and channel are configured.
type SlackNotifier struct {
	botToken    string
	channel     string
	mentionTeam string
	apiURL      string
	client      *resilient.Client
}

func NewSlackNotifier(botToken, channel, mentionTeam string, client *resilient.Client) *SlackNotifier {
	return &SlackNotifier{
		botToken:    botToken,
		channel:     channel,
		mentionTeam: mentionTeam,
		apiURL:      slackPostMessageURL,
		client:      client,
	}
}

func (s *SlackNotifier) Name() string {
	return "slack"
}

func (s *SlackNotifier) Permission(ctx context.Context) ports.Permission {
	if s.botToken == "" || s.channel == "" {
		return ports.PermissionDenied
	}
	return ports.PermissionGranted
}

// RequestPermission cannot prompt anyone; the answer is the configuration.
func (s *SlackNotifier) RequestPermission(ctx context.Context) ports.Permission {
	return s.Permission(ctx)
}

func (s *SlackNotifier) Notify(ctx context.Context, n ports.DesktopNotification) error {
	if s.Permission(ctx) != ports.PermissionGranted {
		return fmt.Errorf("slack notifier is not configured")
	}

	payload := SlackMessage{
		Channel: s.channel,
		Blocks:  s.buildBlocks(n),
		Text:    fmt.Sprintf("🚨 %s", n.Title), // Fallback text
	}

	return s.sendMessage(ctx, payload)
}

func (s *SlackNotifier) buildBlocks(n ports.DesktopNotification) []SlackBlock {
	blocks := []SlackBlock{
		{
			Type: "header",
			Text: &SlackText{Type: "plain_text", Text: "🚨 " + n.Title},
		},
		{
			Type: "section",
			Text: &SlackText{Type: "mrkdwn", Text: n.Body},
		},
		{
			Type: "context",
			Elements: []SlackText{
				{Type: "mrkdwn", Text: fmt.Sprintf("Alert `%s`", n.AlertID)},
			},
		},
	}

	if s.mentionTeam != "" {
		blocks = append(blocks, SlackBlock{
			Type: "section",
			Text: &SlackText{Type: "mrkdwn", Text: "cc: " + s.mentionTeam},
		})
	}

	return blocks
}

// Send message to Slack
func (s *SlackNotifier) sendMessage(ctx context.Context, msg SlackMessage) error {
	jsonData, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal Slack message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.botToken)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	// Slack answers 200 even for rejected messages
	var result struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to decode Slack response: %w", err)
	}
	if !result.OK {
		return fmt.Errorf("slack API error: %s", result.Error)
	}

	return nil
}

// Slack API structures

type SlackMessage struct {
	Channel string       `json:"channel"`
	Blocks  []SlackBlock `json:"blocks"`
	Text    string       `json:"text"` // Fallback text
}

type SlackBlock struct {
	Type     string      `json:"type"`
	Text     *SlackText  `json:"text,omitempty"`
	Fields   []SlackText `json:"fields,omitempty"`
	Elements []SlackText `json:"elements,omitempty"`
}

type SlackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}
