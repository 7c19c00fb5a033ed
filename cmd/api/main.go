package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"

	httpadapter "github.com/kirillkom/scan-triage/internal/adapters/http"
	"github.com/kirillkom/scan-triage/internal/bootstrap"
	"github.com/kirillkom/scan-triage/internal/config"
	"github.com/kirillkom/scan-triage/internal/infrastructure/scheduler"
	"github.com/kirillkom/scan-triage/internal/infrastructure/watcher"
	"github.com/kirillkom/scan-triage/internal/observability/logging"
)

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger("scan-triage-api", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("api_exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	router := httpadapter.NewRouter(cfg, httpadapter.Services{
		Documents:      app.QueryUC,
		Ingest:         app.IngestUC,
		Classification: app.ClassifyUC,
		Actions:        app.ActionsUC,
		Sync:           app.DiscoveryUC,
		Events:         app.Events,
	},
		httpadapter.WithMetrics(app.HTTPMetrics),
		httpadapter.WithHealth(func(context.Context) map[string]any {
			return map[string]any{
				"documents": app.Registry.StatusCounts(),
				"breakers":  app.Executor.Statuses(),
				"nats":      app.Queue != nil,
			}
		}),
	).Handler()

	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      config.APIWriteTimeout,
		IdleTimeout:       60 * time.Second,
	}
	listener, err := net.Listen("tcp", server.Addr)
	if err != nil {
		return err
	}
	if cfg.APIMaxConnections > 0 {
		listener = netutil.LimitListener(listener, cfg.APIMaxConnections)
	}

	sched := scheduler.New()
	for _, job := range app.Sweepers() {
		if err := sched.Add(job); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("api_listening", "addr", server.Addr, "max_connections", cfg.APIMaxConnections)
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return sched.Run(gctx)
	})
	if cfg.InboxWatchEnabled {
		g.Go(func() error {
			w := watcher.New(cfg.InboxDir, watcher.DefaultSettle, func(ctx context.Context) error {
				_, err := app.DiscoveryUC.Discover(ctx)
				return err
			})
			return w.Run(gctx)
		})
	}
	if cfg.AutoClassifyOnIngest {
		g.Go(func() error {
			return app.AutoClassify(gctx)
		})
	}

	// First pass so files dropped while the service was down are tracked
	// before the first tick.
	if _, err := app.DiscoveryUC.Discover(ctx); err != nil {
		slog.Warn("startup_discovery_failed", "error", err)
	}

	return g.Wait()
}
