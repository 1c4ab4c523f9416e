package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/promostream/promostream/internal/config"
)

// WhatsAppChannel posts to a group through an Evolution-style gateway: a
// self-hosted HTTP bridge in front of a logged-in WhatsApp session.
type WhatsAppChannel struct {
	cfg    *config.WhatsAppConfig
	logger *zap.Logger
	client *http.Client
}

func NewWhatsAppChannel(cfg *config.WhatsAppConfig, logger *zap.Logger) *WhatsAppChannel {
	return &WhatsAppChannel{
		cfg:    cfg,
		logger: logger,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *WhatsAppChannel) Name() string { return NameWhatsApp }

func (c *WhatsAppChannel) Publish(ctx context.Context, text, imageURL string) error {
	var (
		path    string
		payload map[string]interface{}
	)

	if imageURL != "" {
		path = fmt.Sprintf("/message/sendMedia/%s", c.cfg.Instance)
		payload = map[string]interface{}{
			"number":    c.cfg.GroupJID,
			"mediatype": "image",
			"media":     imageURL,
			"caption":   text,
		}
	} else {
		path = fmt.Sprintf("/message/sendText/%s", c.cfg.Instance)
		payload = map[string]interface{}{
			"number": c.cfg.GroupJID,
			"text":   text,
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal whatsapp payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIBaseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create whatsapp request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("whatsapp gateway returned status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
