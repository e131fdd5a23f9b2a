package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"dailyflow/internal/domain"
)

type Config struct {
	URL     string
	Method  string
	Headers map[string]string
	Timeout time.Duration
}

// Payload is the JSON body posted for every due reminder.
type Payload struct {
	Event  string      `json:"event"`
	UserID string      `json:"userId"`
	FireAt time.Time   `json:"fireAt"`
	Task   domain.Task `json:"task"`
}

type Webhook struct {
	cfg    Config
	client *http.Client
}

func New(cfg Config) *Webhook {
	if cfg.Method == "" {
		cfg.Method = http.MethodPost
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Webhook{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

func (h *Webhook) Handle(ctx context.Context, due domain.DueReminder) error {
	if h.cfg.URL == "" {
		return fmt.Errorf("URL is required")
	}
	body, err := json.Marshal(Payload{Event: "task.reminder", UserID: due.UserID, FireAt: due.FireAt, Task: due.Task})
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, h.cfg.Method, h.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range h.cfg.Headers {
		req.Header.Set(key, value)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	// Check for HTTP errors (4xx, 5xx)
	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("HTTP %d error: %s", resp.StatusCode, string(msg))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
