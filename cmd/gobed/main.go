package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/joshp123/gobed/internal/blob"
	"github.com/joshp123/gobed/internal/config"
	"github.com/joshp123/gobed/internal/core"
	"github.com/joshp123/gobed/internal/plugins"
	"github.com/joshp123/gobed/internal/poll"
	"github.com/joshp123/gobed/internal/rate"
	"github.com/joshp123/gobed/internal/server"
	"github.com/joshp123/gobed/internal/session"
	"github.com/joshp123/gobed/internal/statefile"
	"github.com/joshp123/gobed/plugins/eightsleep"
)

func main() {
	configPath := flag.String("config", envOr("GOBED_CONFIG", config.DefaultPath), "path to config file")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	// Credentials live in the environment; a .env file is a convenience for
	// non-systemd deployments.
	if err := godotenv.Load(); err == nil {
		slog.Debug("loaded .env")
	}

	if err := run(*configPath); err != nil {
		slog.Error("gobed failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	files, err := statefile.NewStore(cfg.Core.StateDir)
	if err != nil {
		return err
	}

	var blobs blob.Store
	if cfg.Blob != nil {
		blobs, err = blob.NewS3Store(blob.Options{
			Endpoint:      cfg.Blob.Endpoint,
			Bucket:        cfg.Blob.Bucket,
			Prefix:        cfg.Blob.Prefix,
			Region:        cfg.Blob.Region,
			AccessKeyFile: cfg.Blob.AccessKeyFile,
			SecretKeyFile: cfg.Blob.SecretKeyFile,
		})
		if err != nil {
			return err
		}
	}

	plugins.Register(eightsleep.Factory)
	active, err := plugins.Compiled(ctx, plugins.Deps{Config: cfg, Files: files, Blobs: blobs})
	if err != nil {
		return err
	}
	if err := core.ValidatePlugins(active); err != nil {
		return err
	}
	for _, p := range active {
		slog.Info("plugin loaded", "plugin", p.ID(), "health", p.Health())
	}

	if err := core.WriteDashboards(cfg.Core.DashboardDir, active); err != nil {
		slog.Warn("write dashboards", "error", err)
	}

	metrics := core.MetricsRegistry(active, sharedCollectors()...)
	registry := core.NewRegistry(active)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", server.HealthHandler)
	mux.Handle("/metrics", server.MetricsHandler(metrics))
	mux.Handle("/api/plugins", server.RegistryHandler(registry))
	mux.Handle("/api/plugins/", server.RegistryHandler(registry))
	mux.Handle("/dashboards/", server.DashboardsHandler(core.DashboardsMap(active)))
	for _, p := range active {
		if registrant, ok := p.(core.HTTPRegistrant); ok {
			registrant.RegisterHTTP(mux)
		}
	}

	srv := server.NewHTTPServer(cfg.Core.HTTPAddr, mux)
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", cfg.Core.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
		return srv.Server.Shutdown(context.Background())
	case err := <-errCh:
		return err
	}
}

func sharedCollectors() []prometheus.Collector {
	var out []prometheus.Collector
	out = append(out, session.MetricsCollectors()...)
	out = append(out, poll.MetricsCollectors()...)
	out = append(out, rate.MetricsCollectors()...)
	return out
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
