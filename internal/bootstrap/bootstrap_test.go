package bootstrap

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/kirillkom/scan-triage/internal/config"
	"github.com/kirillkom/scan-triage/internal/core/domain"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	t.Setenv("DATA_DIR", t.TempDir())
	t.Setenv("SNAPSHOT_BACKEND", "file")
	t.Setenv("NATS_URL", "")
	t.Setenv("AUTO_CLASSIFY_ON_INGEST", "false")
	t.Setenv("CATEGORY_LABELS_FILE", "")
	return config.Load()
}

func TestNewWiresFileBackendWithoutNATS(t *testing.T) {
	cfg := testConfig(t)
	cfg.PurgePolicy = config.PurgePolicyImmediate

	app, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer app.Close()

	if app.Queue != nil {
		t.Fatal("expected queue to stay disabled without NATS_URL")
	}
	if app.Registry.Len() != 0 {
		t.Fatalf("expected empty registry, got %d", app.Registry.Len())
	}

	jobs := app.Sweepers()
	if len(jobs) != 2 {
		t.Fatalf("expected discovery and one purge job, got %d", len(jobs))
	}
	if jobs[0].Name != "inbox_discovery" || jobs[1].Name != "immediate_purge" {
		t.Fatalf("unexpected job names: %s, %s", jobs[0].Name, jobs[1].Name)
	}
	if jobs[1].Interval != cfg.ImmediatePurgeInterval {
		t.Fatalf("expected immediate purge interval, got %s", jobs[1].Interval)
	}

	if err := app.AutoClassify(context.Background()); err != nil {
		t.Fatalf("AutoClassify() without queue error = %v", err)
	}
	for _, job := range jobs {
		if err := job.Run(context.Background()); err != nil {
			t.Fatalf("%s Run() error = %v", job.Name, err)
		}
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.SnapshotBackend = config.SnapshotBackendPostgres
	cfg.PostgresDSN = ""

	if _, err := New(context.Background(), cfg); err == nil {
		t.Fatal("New() error = nil, want config error")
	}
}

func TestNewFailsOnMissingLabelsFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.CategoryLabelsFile = filepath.Join(t.TempDir(), "missing.yaml")

	if _, err := New(context.Background(), cfg); err == nil {
		t.Fatal("New() error = nil, want labels error")
	}
}

func TestNewRefusesSecondOwnerOfSnapshot(t *testing.T) {
	cfg := testConfig(t)

	first, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := New(context.Background(), cfg); !errors.Is(err, domain.ErrConflict) {
		first.Close()
		t.Fatalf("second New() error = %v, want conflict", err)
	}

	first.Close()
	again, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New() after Close error = %v", err)
	}
	again.Close()
}
