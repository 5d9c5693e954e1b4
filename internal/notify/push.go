package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// PushClient calls the push gateway that fans notifications out to the
// parents' devices.
type PushClient struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

// NewPushClient creates a client with a short timeout; push delivery is
// best-effort and must not stall the worker.
func NewPushClient(baseURL, apiKey string) *PushClient {
	return &PushClient{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

// SendPush posts one notification to the gateway.
func (c *PushClient) SendPush(ctx context.Context, p PushParams) error {
	if c.BaseURL == "" {
		return fmt.Errorf("push gateway not configured")
	}
	body, err := json.Marshal(p)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/notifications/push", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("push gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("push gateway error %s: %s", resp.Status, string(msg))
	}
	return nil
}
