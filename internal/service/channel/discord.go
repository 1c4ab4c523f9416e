package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/promostream/promostream/internal/config"
)

// DiscordChannel posts through an incoming webhook. No bot token needed;
// the webhook URL itself carries the authorization.
type DiscordChannel struct {
	webhookURL string
	client     *http.Client
}

func NewDiscordChannel(cfg *config.DiscordConfig) *DiscordChannel {
	return &DiscordChannel{
		webhookURL: cfg.WebhookURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *DiscordChannel) Name() string { return NameDiscord }

func (c *DiscordChannel) Publish(ctx context.Context, text, imageURL string) error {
	payload := map[string]interface{}{
		"content": text,
	}
	if imageURL != "" {
		payload["embeds"] = []map[string]interface{}{
			{"image": map[string]string{"url": imageURL}},
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal discord payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create discord request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("discord webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("discord webhook returned status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
