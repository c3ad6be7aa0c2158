package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"rss-watcher/internal/config"
)

type Payload struct {
	FeedURL     string     `json:"feed_url"`
	ItemTitle   string     `json:"item_title"`
	ItemURL     string     `json:"item_url"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	Summary     string     `json:"summary,omitempty"`
}

type Client struct {
	client    *http.Client
	userAgent string
}

func NewClient(userAgent string) *Client {
	return &Client{
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		userAgent: userAgent,
	}
}

// DiscordPayload represents the structure for Discord Webhooks
type DiscordPayload struct {
	Content string `json:"content"`
}

const discordContentLimit = 2000

func (c *Client) SendWithRateLimit(ctx context.Context, wh config.Webhook, payload Payload) error {
	var body []byte
	var err error

	if wh.Provider == "discord" {
		content := fmt.Sprintf("**%s**\n%s\n%s", payload.FeedURL, payload.ItemTitle, payload.ItemURL)
		if payload.Summary != "" {
			content += "\n" + payload.Summary
		}
		body, err = json.Marshal(DiscordPayload{Content: truncate(content, discordContentLimit)})
	} else {
		body, err = json.Marshal(payload)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wh.URL, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook responded with status: %d", resp.StatusCode)
	}

	// Rate Limit Wait
	if wh.PostInterval > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wh.PostInterval):
		}
	}

	return nil
}
