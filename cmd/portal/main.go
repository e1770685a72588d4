// cmd/portal/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	scs "github.com/alexedwards/scs/v2"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/compassionsafe/portal/internal/backend"
	"github.com/compassionsafe/portal/internal/config"
	"github.com/compassionsafe/portal/internal/connectivity"
	"github.com/compassionsafe/portal/internal/http/routes"
	"github.com/compassionsafe/portal/internal/proxy"
	"github.com/compassionsafe/portal/internal/store"
	"github.com/compassionsafe/portal/internal/syncq"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config error: %v", err)
	}

	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	log.Printf("starting portal on :%s", cfg.Port)

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		log.Fatalf("data dir: %v", err)
	}

	// Durable local store; a failed open degrades offline features to
	// a no-op cache instead of killing the portal
	st, err := store.Open(filepath.Join(cfg.DataDir, "portal.db"))
	if err != nil {
		logger.Warn().Err(err).Msg("local storage unavailable, offline features degraded")
		st = nil
	} else {
		defer func() { _ = st.Close() }()
	}

	// Backend client
	be := backend.NewClient(cfg.Backend.URL, cfg.Backend.APIKey)

	// Connectivity monitor + sync coordinator
	monitor := connectivity.NewMonitor(true)
	var coord *syncq.Coordinator
	if st != nil {
		coord = &syncq.Coordinator{
			Queue:    st,
			Replayer: &syncq.BackendReplayer{Backend: be},
			Monitor:  monitor,
			Log:      logger,
		}
	}

	// Sessions
	sess := scs.New()
	sess.Lifetime = 12 * time.Hour
	sess.Cookie.HttpOnly = true
	sess.Cookie.SameSite = http.SameSiteLaxMode
	sess.Cookie.Secure = false

	// Job queue client for SMS broadcasts
	var tasks routes.TaskEnqueuer
	if cfg.RedisAddr != "" {
		tasks = asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	}

	// Router / server
	s := routes.New(routes.ServerOptions{
		Sess:    sess,
		BE:      be,
		Store:   st,
		Monitor: monitor,
		Sync:    coord,
		Tasks:   tasks,
		Log:     logger,
	})

	// Network proxy in front of everything: shell GETs flow through the
	// partition policy, writes and portal API routes pass straight to
	// the router
	handler := buildProxy(cfg, logger, sess.LoadAndSave(s.Router))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if coord != nil {
		go coord.Run(ctx)
	}

	h := hlog.NewHandler(logger)(handler)
	srv := &http.Server{Addr: ":" + cfg.Port, Handler: h}
	log.Fatal(srv.ListenAndServe())
}

// buildProxy installs and activates the caching worker against the
// upstream origin. Install or activation failure falls back to the
// plain router: the portal works, it just loses offline navigation
// until the next start.
func buildProxy(cfg *config.Config, logger zerolog.Logger, passThrough http.Handler) http.Handler {
	if cfg.OriginURL == "" {
		return passThrough
	}
	base, err := url.Parse(cfg.OriginURL)
	if err != nil {
		logger.Warn().Err(err).Msg("bad origin url, proxy disabled")
		return passThrough
	}

	parts, err := proxy.OpenBoltPartitions(filepath.Join(cfg.DataDir, "partitions.db"))
	if err != nil {
		logger.Warn().Err(err).Msg("partition store unavailable, proxy disabled")
		return passThrough
	}

	pcfg := proxy.DefaultConfig(cfg.CacheVersion, base.Hostname())
	worker := proxy.NewWorker(pcfg, parts, proxy.NewNetworkFetcher(base), logger)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := worker.Install(ctx); err != nil {
		logger.Warn().Err(err).Msg("proxy install failed, serving without cache")
		return passThrough
	}
	if err := worker.Activate(ctx); err != nil {
		logger.Warn().Err(err).Msg("proxy activation failed, serving without cache")
		return passThrough
	}
	return &proxy.Handler{Worker: worker, PassThrough: passThrough, Log: logger}
}
