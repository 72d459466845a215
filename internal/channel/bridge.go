package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Bridge is an HTTP client for the session bridge service. It implements
// both Adapter and Registry.
type Bridge struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewBridge creates a bridge client. timeout bounds a single HTTP call;
// zero means a 60s default.
func NewBridge(baseURL, apiKey string, timeout time.Duration) *Bridge {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Bridge{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type sendRequest struct {
	AccountID string `json:"account_id"`
	To        string `json:"to"`
	Body      string `json:"body"`
}

// Send delivers one message through the bridge. The call is made exactly
// once; delivery failures are reported in the Result, not retried.
func (b *Bridge) Send(ctx context.Context, accountID, recipient, body string) (Result, error) {
	payload, err := json.Marshal(sendRequest{AccountID: accountID, To: recipient, Body: body})
	if err != nil {
		return Result{}, fmt.Errorf("encode send request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", b.baseURL+"/messages", bytes.NewReader(payload))
	if err != nil {
		return Result{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if b.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("bridge send: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{}, fmt.Errorf("read bridge response: %w", err)
	}

	if resp.StatusCode >= 500 {
		return Result{}, fmt.Errorf("bridge returned %d: %s", resp.StatusCode, string(data))
	}

	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		return Result{}, fmt.Errorf("decode bridge response: %w", err)
	}
	return result, nil
}

type sessionStatus struct {
	AccountID string `json:"account_id"`
	Status    string `json:"status"`
}

// ListConnected returns the account ids whose bridge session is live.
func (b *Bridge) ListConnected(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", b.baseURL+"/sessions", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if b.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bridge sessions: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bridge sessions returned %d", resp.StatusCode)
	}

	var sessions []sessionStatus
	if err := json.NewDecoder(resp.Body).Decode(&sessions); err != nil {
		return nil, fmt.Errorf("decode sessions: %w", err)
	}

	var connected []string
	for _, s := range sessions {
		if s.Status == "connected" {
			connected = append(connected, s.AccountID)
		}
	}
	return connected, nil
}
