// Package telegram delivers composed messages to the channel. Delivery is
// fire-and-forget per item: one photo attempt, one text fallback, no retry
// loop.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"dealbot/internal/metrics"
)

const (
	// Telegram caps photo captions at 1024 chars and messages at 4096.
	photoCaptionMaxRunes = 1024
	textMessageMaxRunes  = 4096
)

// Result reports what one delivery attempt did.
type Result struct {
	Delivered    bool
	TextFallback bool // media delivery failed, text-only path used
	Err          error
}

type Client struct {
	BaseURL string // overridable for tests
	token   string
	chatID  string
	client  *http.Client
}

func NewClient(token, chatID string, timeout time.Duration) *Client {
	return &Client{
		BaseURL: "https://api.telegram.org",
		token:   token,
		chatID:  chatID,
		client:  &http.Client{Timeout: timeout},
	}
}

// Deliver sends the caption with the media attached when there is media,
// falling back to a text-only message if the media path fails. Image
// hosting problems must never cost the message itself.
func (c *Client) Deliver(ctx context.Context, caption, mediaURL string) Result {
	if mediaURL != "" {
		if err := c.sendPhoto(ctx, mediaURL, truncateCaption(caption, photoCaptionMaxRunes)); err == nil {
			metrics.Global.IncrementMessagesSent()
			return Result{Delivered: true}
		} else {
			log.Printf("⚠️ Photo delivery failed, falling back to text: %v", err)
			metrics.Global.IncrementMediaFallbacks()
		}
	}

	if err := c.sendMessage(ctx, truncateCaption(caption, textMessageMaxRunes)); err != nil {
		metrics.Global.IncrementDeliveryFailures()
		return Result{TextFallback: mediaURL != "", Err: err}
	}

	metrics.Global.IncrementMessagesSent()
	return Result{Delivered: true, TextFallback: mediaURL != ""}
}

func (c *Client) sendMessage(ctx context.Context, text string) error {
	payload := map[string]interface{}{
		"chat_id":    c.chatID,
		"text":       text,
		"parse_mode": "HTML",
	}
	return c.post(ctx, "sendMessage", payload)
}

func (c *Client) sendPhoto(ctx context.Context, photoURL, caption string) error {
	payload := map[string]interface{}{
		"chat_id":    c.chatID,
		"photo":      photoURL,
		"caption":    caption,
		"parse_mode": "HTML",
	}
	return c.post(ctx, "sendPhoto", payload)
}

func (c *Client) post(ctx context.Context, method string, payload map[string]interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("error make JSON: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.BaseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("error HTTP request: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			log.Printf("Warning: failed to close response body: %v", closeErr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API error: status %d", resp.StatusCode)
	}

	return nil
}

func truncateCaption(caption string, max int) string {
	runes := []rune(caption)
	if len(runes) <= max {
		return caption
	}
	return strings.TrimSpace(string(runes[:max-1])) + "…"
}
