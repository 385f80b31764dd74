// Package chat delivers answer messages to the chat front-end and edits
// previously delivered messages in place when answers are regenerated.
package chat

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

	"github.com/google/uuid"

	"github.com/use-agent/quizflow/config"
	"github.com/use-agent/quizflow/retry"
)

// Notifier posts answer messages for a session. Send returns an opaque
// message reference the caller keeps so a later Edit can replace the
// message text instead of posting a duplicate.
type Notifier interface {
	Send(ctx context.Context, sessionID, text string) (string, error)
	Edit(ctx context.Context, sessionID, ref, text string) error
}

// event is the payload posted to the chat front-end's webhook endpoint.
type event struct {
	Type       string `json:"type"` // "message.send" or "message.edit"
	SessionID  string `json:"session_id"`
	MessageRef string `json:"message_ref"`
	Text       string `json:"text"`
	Timestamp  int64  `json:"timestamp"`
}

// sendResponse carries the front-end's reference for a freshly posted message.
type sendResponse struct {
	MessageRef string `json:"message_ref"`
}

// WebhookNotifier delivers messages to a chat front-end over a signed
// webhook. Payloads are signed with HMAC-SHA256 when a secret is set.
// Header: X-Quizflow-Signature: sha256=<hex>
type WebhookNotifier struct {
	httpClient *http.Client
	cfg        config.ChatConfig
}

// NewWebhookNotifier creates a notifier for the configured chat endpoint.
// Pass nil to use a default http.Client with a 10s timeout.
func NewWebhookNotifier(httpClient *http.Client, cfg config.ChatConfig) *WebhookNotifier {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &WebhookNotifier{httpClient: httpClient, cfg: cfg}
}

// Send posts a new message and returns the front-end's reference for it.
// When the front-end does not return one, a locally generated reference is
// used so the session record always has something to edit against.
func (n *WebhookNotifier) Send(ctx context.Context, sessionID, text string) (string, error) {
	ev := &event{
		Type:      "message.send",
		SessionID: sessionID,
		Text:      text,
		Timestamp: time.Now().Unix(),
	}

	var ref string
	err := retry.Do(ctx, n.cfg.Attempts, n.cfg.RetryDelay, func(ctx context.Context) error {
		body, err := n.deliver(ctx, ev)
		if err != nil {
			return err
		}
		var resp sendResponse
		if err := json.Unmarshal(body, &resp); err == nil && resp.MessageRef != "" {
			ref = resp.MessageRef
		} else {
			ref = uuid.NewString()
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return ref, nil
}

// Edit replaces the text of a previously sent message in place.
func (n *WebhookNotifier) Edit(ctx context.Context, sessionID, ref, text string) error {
	ev := &event{
		Type:       "message.edit",
		SessionID:  sessionID,
		MessageRef: ref,
		Text:       text,
		Timestamp:  time.Now().Unix(),
	}
	return retry.Do(ctx, n.cfg.Attempts, n.cfg.RetryDelay, func(ctx context.Context) error {
		_, err := n.deliver(ctx, ev)
		return err
	})
}

func (n *WebhookNotifier) deliver(ctx context.Context, ev *event) ([]byte, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("chat: marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("chat: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Quizflow-Webhook/1.0")

	if n.cfg.Secret != "" {
		mac := hmac.New(sha256.New, []byte(n.cfg.Secret))
		mac.Write(body)
		sig := hex.EncodeToString(mac.Sum(nil))
		req.Header.Set("X-Quizflow-Signature", "sha256="+sig)
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chat: deliver: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("chat: read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("chat: endpoint returned status %d", resp.StatusCode)
	}
	return respBody, nil
}
