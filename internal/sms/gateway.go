// Package sms sends outbound text messages through a third-party
// gateway. One call per recipient; delivery is not idempotent, so
// anything that queues sends for replay must tolerate duplicates.
package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"
)

var e164 = regexp.MustCompile(`^\+[1-9]\d{6,14}$`)

// ErrInvalidNumber means the recipient is not in E.164 form.
var ErrInvalidNumber = errors.New("phone number must be E.164")

type Gateway interface {
	Send(ctx context.Context, phone, message string) error
}

// HTTPGateway posts to the provider's send endpoint.
type HTTPGateway struct {
	URL    string
	APIKey string
	Client *http.Client
}

func NewHTTPGateway(url, apiKey string) *HTTPGateway {
	return &HTTPGateway{URL: url, APIKey: apiKey, Client: &http.Client{Timeout: 15 * time.Second}}
}

func (g *HTTPGateway) Send(ctx context.Context, phone, message string) error {
	if !e164.MatchString(phone) {
		return fmt.Errorf("%w: %q", ErrInvalidNumber, phone)
	}
	body, _ := json.Marshal(map[string]string{"phone": phone, "message": message})
	req, err := http.NewRequestWithContext(ctx, "POST", g.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("send sms: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.APIKey)

	resp, err := g.Client.Do(req)
	if err != nil {
		return fmt.Errorf("send sms: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("send sms status %d: %s", resp.StatusCode, string(b))
	}
	var out struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(b, &out); err == nil && !out.OK {
		return fmt.Errorf("send sms rejected: %s", out.Error)
	}
	return nil
}

// StdoutGateway logs instead of sending; used in development.
type StdoutGateway struct{}

func (StdoutGateway) Send(_ context.Context, phone, message string) error {
	if !e164.MatchString(phone) {
		return fmt.Errorf("%w: %q", ErrInvalidNumber, phone)
	}
	fmt.Printf("SMS to=%s\n%s\n", phone, message)
	return nil
}
