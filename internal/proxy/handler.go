package proxy

import (
	"errors"
	"net"
	"net/http"

	"github.com/rs/zerolog"
)

// Handler adapts the worker to net/http. GETs go through the worker's
// policy; everything else (and anything the policy passes through) is
// handed to PassThrough so writes never touch the cache.
type Handler struct {
	Worker      *Worker
	PassThrough http.Handler
	Log         zerolog.Logger
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	req := Request{Method: r.Method, URL: r.URL, Host: hostOnly(r.Host), Navigate: isNavigation(r)}

	if r.Method != http.MethodGet || h.Worker.cfg.Decide(req) == ActionPassThrough {
		h.PassThrough.ServeHTTP(w, r)
		return
	}

	resp, err := h.Worker.Serve(r.Context(), req)
	if err != nil {
		if errors.Is(err, ErrNotActive) {
			h.PassThrough.ServeHTTP(w, r)
			return
		}
		h.Log.Debug().Err(err).Str("url", r.URL.String()).Msg("proxy miss")
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
		return
	}
	writeCached(w, resp)
}

func hostOnly(hostport string) string {
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		return h
	}
	return hostport
}

// isNavigation mirrors the browser's navigate mode: an explicit
// Sec-Fetch-Mode wins, otherwise a top-level HTML Accept counts.
func isNavigation(r *http.Request) bool {
	if mode := r.Header.Get("Sec-Fetch-Mode"); mode != "" {
		return mode == "navigate"
	}
	accept := r.Header.Get("Accept")
	return accept != "" && (accept == "text/html" || hasHTMLPreference(accept))
}

func hasHTMLPreference(accept string) bool {
	// first listed type is the preferred one
	for i := 0; i < len(accept); i++ {
		if accept[i] == ',' || accept[i] == ';' {
			accept = accept[:i]
			break
		}
	}
	return accept == "text/html"
}

func writeCached(w http.ResponseWriter, resp *CachedResponse) {
	for k, vals := range resp.Header {
		for _, v := range vals {
			w.Header().Add(k, v)
		}
	}
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(resp.Body)
}
