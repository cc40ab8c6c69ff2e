package notification

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// WebhookChannel delivers events to an HTTP endpoint, for waiting-room
// displays and patient portals that run as separate services. Payloads are
// signed with HMAC-SHA256 so the receiver can verify the origin.
type WebhookChannel struct {
	url    string
	secret []byte
	client *http.Client
}

func NewWebhookChannel(url, secret string) *WebhookChannel {
	return &WebhookChannel{
		url:    url,
		secret: []byte(secret),
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

func (c *WebhookChannel) Deliver(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Clinicore-Event", string(ev.Type))
	if len(c.secret) > 0 {
		req.Header.Set("X-Clinicore-Signature", "sha256="+c.sign(payload))
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver %s: %w", ev.Type, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("endpoint returned %d for %s", resp.StatusCode, ev.Type)
	}
	return nil
}

func (c *WebhookChannel) sign(payload []byte) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
