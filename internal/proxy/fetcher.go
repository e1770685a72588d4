package proxy

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Fetcher is the worker's network collaborator.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (*CachedResponse, error)
}

// NetworkFetcher forwards GETs to the upstream origin. Relative URLs
// resolve against Base.
type NetworkFetcher struct {
	Base   *url.URL
	Client *http.Client
}

func NewNetworkFetcher(base *url.URL) *NetworkFetcher {
	return &NetworkFetcher{
		Base:   base,
		Client: &http.Client{Timeout: 20 * time.Second},
	}
}

func (f *NetworkFetcher) Fetch(ctx context.Context, req Request) (*CachedResponse, error) {
	target := req.URL
	if target.Host == "" && f.Base != nil {
		target = f.Base.ResolveReference(target)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request %q: %w", target, err)
	}
	resp, err := f.Client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", target, err)
	}
	return &CachedResponse{
		Status:   resp.StatusCode,
		Header:   resp.Header.Clone(),
		Body:     body,
		StoredAt: time.Now().UTC(),
	}, nil
}
