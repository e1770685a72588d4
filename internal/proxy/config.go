// Package proxy implements the offline network proxy: it fronts every
// GET the UI issues and decides per request whether to serve from a
// cache partition, fetch fresh, or do both. Partition lifecycle
// (install, activate, stale-version cleanup) is modeled as an explicit
// worker state machine so the app shell stays loadable with no network.
package proxy

import (
	"fmt"
	"strings"
)

// Config is the process-wide proxy configuration, resolved once at
// worker startup. Version and Manifest change only at deploy time;
// bumping Version creates fresh partitions and marks the old ones for
// deletion at activation.
type Config struct {
	// Version tags the partition names (static-<v>, runtime-<v>).
	Version string

	// Manifest lists the paths pre-cached at install time: the app
	// shell and its immutable assets.
	Manifest []string

	// ShellPath is the manifest entry served as the navigation
	// fallback when the network is down.
	ShellPath string

	// DevHosts bypass the proxy entirely so development traffic is
	// never cached. The match is against the host the portal itself is
	// serving on, not the target of the request.
	DevHosts []string

	// LocalPrefixes are path prefixes the in-process router owns.
	// Requests under them are never proxied upstream; the router is
	// their origin.
	LocalPrefixes []string

	// Origin is the portal's own host; only same-origin requests are
	// eligible for the static partition.
	Origin string
}

// DefaultConfig mirrors the deployed install manifest.
func DefaultConfig(version, origin string) Config {
	return Config{
		Version:       version,
		Manifest:      []string{"/", "/index.html", "/logo.svg"},
		ShellPath:     "/index.html",
		DevHosts:      []string{"localhost", "127.0.0.1"},
		LocalPrefixes: []string{"/api/", "/healthz"},
		Origin:        origin,
	}
}

// StaticPartition is the versioned partition holding the app shell and
// immutable assets.
func (c Config) StaticPartition() string {
	return fmt.Sprintf("static-%s", c.Version)
}

// RuntimePartition holds responses mirrored during normal operation.
func (c Config) RuntimePartition() string {
	return fmt.Sprintf("runtime-%s", c.Version)
}

// Current returns the known-good partition set; anything else is
// deleted at activation.
func (c Config) Current() []string {
	return []string{c.StaticPartition(), c.RuntimePartition()}
}

func (c Config) isDevHost(host string) bool {
	for _, h := range c.DevHosts {
		if strings.EqualFold(h, host) {
			return true
		}
	}
	return false
}

func (c Config) isLocalPath(path string) bool {
	for _, p := range c.LocalPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
