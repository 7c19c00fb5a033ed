package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kirillkom/scan-triage/internal/bootstrap"
	"github.com/kirillkom/scan-triage/internal/config"
	"github.com/kirillkom/scan-triage/internal/observability/logging"
)

// sweep runs one discovery pass and one purge pass, prints both reports and
// exits. The registry has a single writer, so bootstrap refuses to start
// while an api process holds the snapshot lock.
func main() {
	skipDiscovery := flag.Bool("skip-discovery", false, "do not scan the inbox")
	skipPurge := flag.Bool("skip-purge", false, "do not purge deleted documents")
	flag.Parse()

	cfg := config.Load()
	cfg.NATSURL = ""
	cfg.AutoClassifyOnIngest = false
	slog.SetDefault(logging.New(os.Stderr, "scan-triage-sweep", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	result := map[string]any{}
	failed := false
	if !*skipDiscovery {
		report, err := app.DiscoveryUC.Discover(ctx)
		if err != nil {
			slog.Error("discovery_failed", "error", err)
			failed = true
		}
		result["discovery"] = report
	}
	if !*skipPurge {
		report, err := app.PurgeUC.Purge(ctx)
		if err != nil {
			slog.Error("purge_failed", "job", app.PurgeUC.JobName(), "error", err)
			failed = true
		}
		result[app.PurgeUC.JobName()] = report
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	_ = encoder.Encode(result)
	if failed {
		app.Close()
		os.Exit(1)
	}
}
