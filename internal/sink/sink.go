// Package sink delivers payloads to the chat webhook and the overlay endpoint.
package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/JakeFAU/tagrelay/internal/relay"
)

const (
	defaultTimeout = 15 * time.Second
	maxErrorBody   = 2048
)

// StatusError is returned when a target answers with a non-2xx status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

type webhookBody struct {
	Content   string `json:"content"`
	Username  string `json:"username,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Webhook posts payloads to a chat webhook.
type Webhook struct {
	url    string
	client *http.Client
}

// NewWebhook builds a webhook sink. A nil client gets a default with a timeout.
func NewWebhook(url string, client *http.Client) *Webhook {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &Webhook{url: url, client: client}
}

// Send performs one blocking POST.
func (w *Webhook) Send(ctx context.Context, p relay.Payload) error {
	return postJSON(ctx, w.client, w.url, webhookBody{
		Content:   p.Content,
		Username:  p.Username,
		AvatarURL: p.AvatarURL,
	})
}

type overlayBody struct {
	ID        string `json:"id,omitempty"`
	Content   string `json:"content"`
	Username  string `json:"username,omitempty"`
	Handle    string `json:"handle,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Overlay posts payloads to the supervisor's overlay ingest endpoint.
type Overlay struct {
	url    string
	client *http.Client
}

// NewOverlay builds an overlay sink. A nil client gets a default with a timeout.
func NewOverlay(url string, client *http.Client) *Overlay {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &Overlay{url: url, client: client}
}

// Send performs one POST including the candidate id and handle.
func (o *Overlay) Send(ctx context.Context, p relay.Payload) error {
	return postJSON(ctx, o.client, o.url, overlayBody{
		ID:        p.ID,
		Content:   p.Content,
		Username:  p.Username,
		Handle:    p.Handle,
		AvatarURL: p.AvatarURL,
	})
}

func postJSON(ctx context.Context, client *http.Client, url string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("post payload: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Code: resp.StatusCode, Body: string(text)}
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	return nil
}
