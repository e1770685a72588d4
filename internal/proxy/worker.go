package proxy

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/rs/zerolog"
)

// State is the worker lifecycle. A worker only intercepts traffic once
// active; a failed install leaves it redundant and the previous
// version (if any) keeps serving.
type State int

const (
	StateInstalling State = iota
	StateWaiting
	StateActivating
	StateActive
	StateRedundant
)

func (s State) String() string {
	switch s {
	case StateInstalling:
		return "installing"
	case StateWaiting:
		return "waiting"
	case StateActivating:
		return "activating"
	case StateActive:
		return "active"
	default:
		return "redundant"
	}
}

// ErrNetworkUnavailable is the proxy-internal fetch failure. It is
// never surfaced for navigations or cached assets, only for uncached
// API requests.
var ErrNetworkUnavailable = errors.New("network unavailable")

// ErrNotActive is returned when Serve is called outside StateActive.
var ErrNotActive = errors.New("proxy worker not active")

// Worker is the installable network proxy. I/O goes through the
// injected PartitionStore and Fetcher so policy is testable without a
// network.
type Worker struct {
	cfg   Config
	parts PartitionStore
	fetch Fetcher
	log   zerolog.Logger

	mu    sync.Mutex
	state State
}

func NewWorker(cfg Config, parts PartitionStore, fetch Fetcher, log zerolog.Logger) *Worker {
	return &Worker{cfg: cfg, parts: parts, fetch: fetch, log: log, state: StateInstalling}
}

// State reports the current lifecycle state.
func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *Worker) setState(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

// Install pre-populates the static partition with the install
// manifest. Any manifest fetch failure fails the whole install and the
// worker goes redundant.
func (w *Worker) Install(ctx context.Context) error {
	w.setState(StateInstalling)
	for _, path := range w.cfg.Manifest {
		u, err := url.Parse(path)
		if err != nil {
			w.setState(StateRedundant)
			return fmt.Errorf("install: bad manifest path %q: %w", path, err)
		}
		resp, err := w.fetch.Fetch(ctx, Request{Method: "GET", URL: u})
		if err != nil {
			w.setState(StateRedundant)
			return fmt.Errorf("install: precache %q: %w", path, err)
		}
		if err := w.parts.Put(w.cfg.StaticPartition(), cacheKey(u), resp); err != nil {
			w.setState(StateRedundant)
			return fmt.Errorf("install: store %q: %w", path, err)
		}
	}
	w.setState(StateWaiting)
	w.log.Info().Str("partition", w.cfg.StaticPartition()).Int("manifest", len(w.cfg.Manifest)).Msg("proxy installed")
	return nil
}

// Activate deletes every partition not in the current known-good set,
// then takes control immediately. No rollout delay.
func (w *Worker) Activate(_ context.Context) error {
	w.setState(StateActivating)

	names, err := w.parts.Names()
	if err != nil {
		w.setState(StateRedundant)
		return fmt.Errorf("activate: list partitions: %w", err)
	}
	keep := map[string]bool{}
	for _, n := range w.cfg.Current() {
		keep[n] = true
	}
	for _, name := range names {
		if keep[name] {
			continue
		}
		if err := w.parts.Delete(name); err != nil {
			w.setState(StateRedundant)
			return fmt.Errorf("activate: delete partition %q: %w", name, err)
		}
		w.log.Info().Str("partition", name).Msg("deleted stale partition")
	}
	w.setState(StateActive)
	return nil
}

// Serve applies the per-request policy. Callers translate the returned
// error; a nil response only ever comes with an error.
func (w *Worker) Serve(ctx context.Context, req Request) (*CachedResponse, error) {
	if w.State() != StateActive {
		return nil, ErrNotActive
	}
	switch w.cfg.Decide(req) {
	case ActionPassThrough:
		return w.fetch.Fetch(ctx, req)
	case ActionShellFallback:
		return w.serveNavigation(ctx, req)
	case ActionStaticCacheFirst:
		return w.serveStatic(ctx, req)
	default:
		return w.serveRuntime(ctx, req)
	}
}

// serveNavigation guarantees the app shell loads offline, even for
// deep links: network first, cached shell document on failure.
func (w *Worker) serveNavigation(ctx context.Context, req Request) (*CachedResponse, error) {
	resp, err := w.fetch.Fetch(ctx, req)
	if err == nil {
		return resp, nil
	}
	shell, found, cacheErr := w.parts.Get(w.cfg.StaticPartition(), w.cfg.ShellPath)
	if cacheErr != nil || !found {
		w.log.Warn().Str("url", req.URL.String()).Msg("navigation fallback missed app shell")
		return nil, fmt.Errorf("%w: %v", ErrNetworkUnavailable, err)
	}
	return shell, nil
}

// serveStatic is cache-first with populate-on-miss.
func (w *Worker) serveStatic(ctx context.Context, req Request) (*CachedResponse, error) {
	key := cacheKey(req.URL)
	static := w.cfg.StaticPartition()

	cached, found, err := w.parts.Get(static, key)
	if err == nil && found {
		return cached, nil
	}
	resp, fetchErr := w.fetch.Fetch(ctx, req)
	if fetchErr != nil {
		// stale copy beats hard failure; absent means the caller
		// sees the network error
		if found {
			return cached, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrNetworkUnavailable, fetchErr)
	}
	if err := w.parts.Put(static, key, resp); err != nil {
		w.log.Warn().Err(err).Str("key", key).Msg("static partition write failed")
	}
	return resp, nil
}

// serveRuntime favors freshness: stale API data shown silently is
// worse than an outright error, so the runtime partition is only a
// degraded-mode fallback.
func (w *Worker) serveRuntime(ctx context.Context, req Request) (*CachedResponse, error) {
	key := cacheKey(req.URL)
	runtime := w.cfg.RuntimePartition()

	resp, fetchErr := w.fetch.Fetch(ctx, req)
	if fetchErr == nil {
		if err := w.parts.Put(runtime, key, resp); err != nil {
			w.log.Warn().Err(err).Str("key", key).Msg("runtime partition write failed")
		}
		return resp, nil
	}
	cached, found, err := w.parts.Get(runtime, key)
	if err == nil && found {
		return cached, nil
	}
	return nil, fmt.Errorf("%w: %v", ErrNetworkUnavailable, fetchErr)
}
