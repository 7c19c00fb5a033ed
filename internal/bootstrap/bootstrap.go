package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kirillkom/scan-triage/internal/config"
	"github.com/kirillkom/scan-triage/internal/core/domain"
	"github.com/kirillkom/scan-triage/internal/core/ports"
	"github.com/kirillkom/scan-triage/internal/core/usecase"
	"github.com/kirillkom/scan-triage/internal/infrastructure/classifier/httpclassifier"
	"github.com/kirillkom/scan-triage/internal/infrastructure/journal"
	"github.com/kirillkom/scan-triage/internal/infrastructure/queue/nats"
	"github.com/kirillkom/scan-triage/internal/infrastructure/resilience"
	"github.com/kirillkom/scan-triage/internal/infrastructure/scheduler"
	"github.com/kirillkom/scan-triage/internal/infrastructure/snapshot/jsonfile"
	"github.com/kirillkom/scan-triage/internal/infrastructure/snapshot/postgres"
	"github.com/kirillkom/scan-triage/internal/infrastructure/storage/folders"
	"github.com/kirillkom/scan-triage/internal/observability/metrics"
)

const ServiceName = "scan-triage"

type App struct {
	Config config.Config

	HTTPMetrics *metrics.HTTPServerMetrics
	Lifecycle   *metrics.LifecycleMetrics
	Executor    *resilience.Executor
	Folders     *folders.Storage
	// Queue is nil when NATS_URL is empty.
	Queue *nats.Queue

	Registry    *usecase.Registry
	QueryUC     *usecase.QueryUseCase
	IngestUC    *usecase.IngestDocumentUseCase
	ClassifyUC  *usecase.ClassificationUseCase
	ActionsUC   *usecase.DocumentActionsUseCase
	DiscoveryUC *usecase.InboxDiscoveryUseCase
	PurgeUC     *usecase.PurgeUseCase
	Events      ports.EventReader

	closeFns []func()
}

// New wires every adapter. Only one process may own the registry at a time:
// a second api or sweep process against the same snapshot fails with
// domain.ErrConflict.
func New(ctx context.Context, cfg config.Config) (_ *App, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	app := &App{Config: cfg}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	app.HTTPMetrics = metrics.NewHTTPServerMetrics(ServiceName)
	app.Lifecycle = metrics.NewLifecycleMetrics(ServiceName, app.HTTPMetrics.Registry())
	app.Executor = resilience.NewExecutor(cfg.Resilience, resilience.WithStateObserver(app.Lifecycle.ObserveBreakerState))

	app.Folders, err = folders.New(folders.Layout{
		Inbox:      cfg.InboxDir,
		Review:     cfg.ReviewDir,
		Processing: cfg.ProcessingDir,
		Hold:       cfg.HoldDir,
		Deleted:    cfg.DeletedDir,
	})
	if err != nil {
		return nil, fmt.Errorf("init folders: %w", err)
	}

	memory := journal.NewMemory(journal.DefaultPerDocument)
	publishers := journal.Fanout{}
	var events ports.EventReader = memory

	var store ports.SnapshotStore
	switch cfg.SnapshotBackend {
	case config.SnapshotBackendPostgres:
		db, openErr := postgres.OpenDB(cfg.PostgresDSN)
		if openErr != nil {
			return nil, fmt.Errorf("open postgres: %w", openErr)
		}
		app.onClose(func() { _ = db.Close() })

		owner, lockErr := postgres.AcquireInstanceLock(ctx, db)
		if lockErr != nil {
			return nil, fmt.Errorf("claim registry: %w", lockErr)
		}
		app.onClose(func() { releaseLock(owner.Release(context.Background())) })

		pgStore := postgres.NewSnapshotStore(db)
		if err := pgStore.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		store = pgStore
		eventLog := postgres.NewEventLog(db, postgres.DefaultEventLimit)
		publishers = append(publishers, eventLog)
		events = eventLog
	default:
		fileStore, fileErr := jsonfile.New(cfg.SnapshotPath)
		if fileErr != nil {
			return nil, fmt.Errorf("init snapshot file: %w", fileErr)
		}
		owner, lockErr := jsonfile.AcquireLock(jsonfile.LockPath(fileStore.Path()))
		if lockErr != nil {
			return nil, fmt.Errorf("claim registry: %w", lockErr)
		}
		app.onClose(func() { releaseLock(owner.Release()) })
		store = fileStore
		publishers = append(publishers, memory)
	}
	app.Events = events

	var ingestQueue ports.IngestQueue
	if cfg.NATSURL != "" {
		queue, queueErr := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubjectPrefix, nats.Options{
			ResilienceExecutor: app.Executor,
		})
		if queueErr != nil {
			return nil, fmt.Errorf("init message queue: %w", queueErr)
		}
		app.onClose(queue.Close)
		app.Queue = queue
		ingestQueue = queue
		publishers = append(publishers, queue)
	}

	app.Registry = usecase.NewRegistry(store)
	if err := app.Registry.Load(ctx); err != nil {
		return nil, fmt.Errorf("load registry: %w", err)
	}

	labels, err := config.LoadCategoryLabels(cfg.CategoryLabelsFile, usecase.DefaultClassificationConfig().CategoryLabels)
	if err != nil {
		return nil, err
	}
	classifier := httpclassifier.New(cfg.ClassifierURL, cfg.ClassifierTimeout,
		httpclassifier.WithResilienceExecutor(app.Executor),
	)

	locks := usecase.NewDocumentLocks()
	mapper := usecase.NewFolderMapper(app.Registry, app.Folders, publishers, app.Lifecycle, nil)

	app.QueryUC = usecase.NewQueryUseCase(app.Registry, app.Folders)
	app.IngestUC = usecase.NewIngestDocumentUseCase(
		app.Registry, locks, app.Folders, folders.PDFValidator{}, ingestQueue, publishers, cfg.UploadMaxBytes,
	)
	app.ClassifyUC = usecase.NewClassificationUseCase(
		app.Registry, locks, mapper, classifier, publishers, app.Lifecycle,
		usecase.ClassificationConfig{
			ReviewThreshold:      cfg.ReviewThreshold,
			AutoProcessThreshold: cfg.AutoProcessThreshold,
			CategoryLabels:       labels,
		},
	)
	app.ActionsUC = usecase.NewDocumentActionsUseCase(app.Registry, locks, mapper, publishers)
	app.DiscoveryUC = usecase.NewInboxDiscoveryUseCase(
		app.Registry, locks, app.Folders, ingestQueue, publishers, app.Lifecycle, nil,
	)
	app.PurgeUC = usecase.NewPurgeUseCase(
		app.Registry, locks, app.Folders, publishers, app.Lifecycle, nil, cfg.PurgeWindow(),
	)
	app.Lifecycle.SetStatusCounts(app.Registry.StatusCounts())

	slog.Info("bootstrap_completed",
		"snapshot_backend", cfg.SnapshotBackend,
		"documents", app.Registry.Len(),
		"purge_job", app.PurgeUC.JobName(),
		"nats_enabled", app.Queue != nil,
	)
	return app, nil
}

// Sweepers are the periodic jobs of the api process: discovery and the one
// configured purge policy.
func (a *App) Sweepers() []scheduler.Job {
	return []scheduler.Job{
		{
			Name:     usecase.DiscoveryJobName,
			Interval: a.Config.DiscoveryInterval,
			Run: func(ctx context.Context) error {
				_, err := a.DiscoveryUC.Discover(ctx)
				return err
			},
		},
		{
			Name:     a.PurgeUC.JobName(),
			Interval: a.Config.PurgeInterval(),
			Run: func(ctx context.Context) error {
				_, err := a.PurgeUC.Purge(ctx)
				return err
			},
		},
	}
}

// AutoClassify classifies every announced document until ctx ends. It
// returns immediately when NATS is not configured.
func (a *App) AutoClassify(ctx context.Context) error {
	if a.Queue == nil {
		return nil
	}
	return a.Queue.SubscribeDocumentIngested(ctx, func(handlerCtx context.Context, documentID string) error {
		_, err := a.ClassifyUC.Classify(handlerCtx, documentID, domain.SystemActor)
		return err
	})
}

func releaseLock(err error) {
	if err != nil {
		slog.Warn("registry_lock_release_failed", "error", err)
	}
}

func (a *App) onClose(fn func()) {
	a.closeFns = append(a.closeFns, fn)
}

// Close releases adapters in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closeFns) - 1; i >= 0; i-- {
		a.closeFns[i]()
	}
	a.closeFns = nil
}
