// Package backend is the client for the hosted data/auth/storage
// service. The portal consumes it purely at its REST boundary:
// credential sessions, equality-filtered row reads, row writes, and a
// signed-URL object storage facade.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrNotFound is returned by SelectSingle when no row matches.
var ErrNotFound = errors.New("row not found")

// Session is the result of a credential sign-in.
type Session struct {
	AccessToken string `json:"access_token"`
	UserID      string `json:"user_id"`
	Email       string `json:"email"`
}

type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: 20 * time.Second},
	}
}

// SignIn creates a session from credentials.
func (c *Client) SignIn(ctx context.Context, email, password string) (*Session, error) {
	body, _ := json.Marshal(map[string]string{"email": email, "password": password})
	var out struct {
		AccessToken string `json:"access_token"`
		User        struct {
			ID    string `json:"id"`
			Email string `json:"email"`
		} `json:"user"`
	}
	if err := c.do(ctx, "POST", "/auth/v1/token?grant_type=password", "", body, &out); err != nil {
		return nil, fmt.Errorf("sign in: %w", err)
	}
	return &Session{AccessToken: out.AccessToken, UserID: out.User.ID, Email: out.User.Email}, nil
}

// SignOut tears down a session. Best-effort on the server side.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	if err := c.do(ctx, "POST", "/auth/v1/logout", accessToken, nil, nil); err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	return nil
}

// SelectEq reads every row of table where column equals value.
func (c *Client) SelectEq(ctx context.Context, table, column, value string, out any) error {
	path := fmt.Sprintf("/rest/v1/%s?%s=eq.%s", table, column, url.QueryEscape(value))
	if err := c.do(ctx, "GET", path, "", nil, out); err != nil {
		return fmt.Errorf("select %s: %w", table, err)
	}
	return nil
}

// SelectSingle reads the one row of table where column equals value.
// ErrNotFound when nothing matches.
func (c *Client) SelectSingle(ctx context.Context, table, column, value string, out any) error {
	var rows []json.RawMessage
	if err := c.SelectEq(ctx, table, column, value, &rows); err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("%s where %s=%s: %w", table, column, value, ErrNotFound)
	}
	return json.Unmarshal(rows[0], out)
}

// Insert appends one row.
func (c *Client) Insert(ctx context.Context, table string, row any) error {
	body, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("insert %s: encode: %w", table, err)
	}
	if err := c.do(ctx, "POST", "/rest/v1/"+table, "", body, nil); err != nil {
		return fmt.Errorf("insert %s: %w", table, err)
	}
	return nil
}

// Update patches every row where column equals value.
func (c *Client) Update(ctx context.Context, table, column, value string, patch any) error {
	body, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("update %s: encode: %w", table, err)
	}
	path := fmt.Sprintf("/rest/v1/%s?%s=eq.%s", table, column, url.QueryEscape(value))
	if err := c.do(ctx, "PATCH", path, "", body, nil); err != nil {
		return fmt.Errorf("update %s: %w", table, err)
	}
	return nil
}

// Delete removes every row where column equals value.
func (c *Client) Delete(ctx context.Context, table, column, value string) error {
	path := fmt.Sprintf("/rest/v1/%s?%s=eq.%s", table, column, url.QueryEscape(value))
	if err := c.do(ctx, "DELETE", path, "", nil, nil); err != nil {
		return fmt.Errorf("delete %s: %w", table, err)
	}
	return nil
}

// Upload stores an object under bucket/path.
func (c *Client) Upload(ctx context.Context, bucket, path string, data []byte, contentType string) error {
	u := fmt.Sprintf("%s/storage/v1/object/%s/%s", c.BaseURL, bucket, path)
	req, err := http.NewRequestWithContext(ctx, "POST", u, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("upload %s/%s: %w", bucket, path, err)
	}
	req.Header.Set("Content-Type", contentType)
	c.authorize(req, "")
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("upload %s/%s: %w", bucket, path, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("upload %s/%s status %d: %s", bucket, path, resp.StatusCode, string(b))
	}
	return nil
}

// Remove deletes objects from a bucket.
func (c *Client) Remove(ctx context.Context, bucket string, paths []string) error {
	body, _ := json.Marshal(map[string][]string{"prefixes": paths})
	if err := c.do(ctx, "DELETE", "/storage/v1/object/"+bucket, "", body, nil); err != nil {
		return fmt.Errorf("remove from %s: %w", bucket, err)
	}
	return nil
}

// SignedURL issues a time-limited read URL for a private object.
func (c *Client) SignedURL(ctx context.Context, bucket, path string, ttl time.Duration) (string, error) {
	body, _ := json.Marshal(map[string]int{"expiresIn": int(ttl.Seconds())})
	var out struct {
		SignedURL string `json:"signedURL"`
	}
	p := fmt.Sprintf("/storage/v1/object/sign/%s/%s", bucket, path)
	if err := c.do(ctx, "POST", p, "", body, &out); err != nil {
		return "", fmt.Errorf("sign %s/%s: %w", bucket, path, err)
	}
	if strings.HasPrefix(out.SignedURL, "/") {
		return c.BaseURL + out.SignedURL, nil
	}
	return out.SignedURL, nil
}

// PublicURL builds the public read URL for an object; no request made.
func (c *Client) PublicURL(bucket, path string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", c.BaseURL, bucket, path)
}

func (c *Client) authorize(req *http.Request, accessToken string) {
	if c.APIKey != "" {
		req.Header.Set("apikey", c.APIKey)
	}
	tok := accessToken
	if tok == "" {
		tok = c.APIKey
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
}

func (c *Client) do(ctx context.Context, method, path, accessToken string, body []byte, out any) error {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req, accessToken)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(b))
	}
	if out == nil || len(b) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
