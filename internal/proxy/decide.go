package proxy

import (
	"net/http"
	"net/url"
	"strings"
)

// Request is the descriptor the decision logic sees: no bodies, no
// transport details, just what the policy needs.
type Request struct {
	Method   string
	URL      *url.URL
	Host     string // host the portal is serving on, without port
	Navigate bool   // top-level document load, not a sub-resource fetch
}

// Action is what the policy decided to do with a request. The decision
// is pure; all I/O happens in the worker's executor.
type Action int

const (
	// ActionPassThrough forwards to the network untouched (non-GET,
	// or development hosts).
	ActionPassThrough Action = iota

	// ActionShellFallback tries the network and falls back to the
	// cached app shell document (navigations).
	ActionShellFallback

	// ActionStaticCacheFirst serves from the static partition,
	// populating it from the network on miss (same-origin assets).
	ActionStaticCacheFirst

	// ActionRuntimeNetworkFirst tries the network, mirroring successes
	// into the runtime partition and falling back to it on failure
	// (everything else, typically backend API traffic).
	ActionRuntimeNetworkFirst
)

func (a Action) String() string {
	switch a {
	case ActionShellFallback:
		return "shell-fallback"
	case ActionStaticCacheFirst:
		return "static-cache-first"
	case ActionRuntimeNetworkFirst:
		return "runtime-network-first"
	default:
		return "pass-through"
	}
}

var staticExtensions = []string{".css", ".js", ".png", ".jpg", ".webp", ".svg"}

// Decide classifies one intercepted request. Order matters: dev bypass
// beats everything, local routes beat caching, navigations beat asset
// matching.
func (c Config) Decide(req Request) Action {
	if req.Method != http.MethodGet {
		return ActionPassThrough
	}
	if c.isDevHost(req.Host) {
		return ActionPassThrough
	}
	if c.isLocalPath(req.URL.Path) {
		return ActionPassThrough
	}
	if req.Navigate {
		return ActionShellFallback
	}
	if c.sameOrigin(req.URL) && isStaticAsset(req.URL.Path) {
		return ActionStaticCacheFirst
	}
	return ActionRuntimeNetworkFirst
}

func (c Config) sameOrigin(u *url.URL) bool {
	host := hostOf(u, c.Origin)
	return strings.EqualFold(host, c.Origin)
}

// hostOf treats relative URLs (no host) as same-origin requests.
func hostOf(u *url.URL, origin string) string {
	if u.Hostname() == "" {
		return origin
	}
	return u.Hostname()
}

func isStaticAsset(path string) bool {
	if strings.HasPrefix(path, "/assets/") || strings.HasPrefix(path, "/logo") {
		return true
	}
	for _, ext := range staticExtensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

// cacheKey is the partition key for a request. GET-only, so the URL
// alone identifies the entry.
func cacheKey(u *url.URL) string {
	if u.Host == "" {
		return u.RequestURI()
	}
	return u.String()
}
