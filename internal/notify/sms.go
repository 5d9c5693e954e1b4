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

// SMSClient calls the SMS gateway that texts parents.
type SMSClient struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

// NewSMSClient creates a client.
func NewSMSClient(baseURL, apiKey string) *SMSClient {
	return &SMSClient{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

// SendSMS posts one message to the gateway.
func (c *SMSClient) SendSMS(ctx context.Context, p SMSParams) error {
	if c.BaseURL == "" {
		return fmt.Errorf("sms gateway not configured")
	}
	body, err := json.Marshal(p)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("sms gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("sms gateway error %s: %s", resp.Status, string(msg))
	}
	return nil
}
