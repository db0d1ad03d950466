// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	gpubsub "cloud.google.com/go/pubsub"
	gstorage "cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/JakeFAU/tender-harvester/internal/api"
	"github.com/JakeFAU/tender-harvester/internal/browser"
	"github.com/JakeFAU/tender-harvester/internal/clock/system"
	"github.com/JakeFAU/tender-harvester/internal/config"
	"github.com/JakeFAU/tender-harvester/internal/harvest"
	"github.com/JakeFAU/tender-harvester/internal/id/uuid"
	"github.com/JakeFAU/tender-harvester/internal/logging"
	"github.com/JakeFAU/tender-harvester/internal/progress"
	"github.com/JakeFAU/tender-harvester/internal/progress/sinks"
	pubsubpublisher "github.com/JakeFAU/tender-harvester/internal/publisher/pubsub"
	"github.com/JakeFAU/tender-harvester/internal/storage/gcs"
	"github.com/JakeFAU/tender-harvester/internal/storage/local"
	"github.com/JakeFAU/tender-harvester/internal/storage/postgres"
	"github.com/JakeFAU/tender-harvester/internal/store"
)

// PageFactory opens the browser session a run drives.
type PageFactory func(cfg browser.Config, logger *zap.Logger) (harvest.Page, error)

func defaultPageFactory(cfg browser.Config, logger *zap.Logger) (harvest.Page, error) {
	s, err := browser.New(cfg, logger)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Option customizes App construction.
type Option func(*App)

// WithLogger injects a logger instead of building one from config.
func WithLogger(logger *zap.Logger) Option {
	return func(a *App) { a.logger = logger }
}

// WithPageFactory replaces the chromedp session, mainly for tests.
func WithPageFactory(f PageFactory) Option {
	return func(a *App) { a.newPage = f }
}

// WithRecordSink adds a sink for admitted records in place of Postgres.
func WithRecordSink(sink harvest.RecordSink) Option {
	return func(a *App) { a.recordSinks = append(a.recordSinks, sink) }
}

// WithPublisher replaces the Pub/Sub publisher.
func WithPublisher(pub harvest.Publisher) Option {
	return func(a *App) { a.publisher = pub }
}

// App holds all the shared, long-lived services for the application.
// It is built once per command and closed by the command when it returns.
type App struct {
	cfg         config.Config
	logger      *zap.Logger
	ownsLogger  bool
	newPage     PageFactory
	store       *store.FileStore
	registry    *prometheus.Registry
	status      *sinks.StatusSink
	hub         *progress.Hub
	ops         *api.Server
	recordSinks []harvest.RecordSink
	publisher   harvest.Publisher
	closers     []func() error
}

// New wires every service the configuration enables. It fails fast if an
// enabled service cannot be initialized.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg, newPage: defaultPageFactory}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
		if err != nil {
			return nil, fmt.Errorf("init logger: %w", err)
		}
		a.logger = logger
		a.ownsLogger = true
	}
	l := a.logger
	l.Info("Initializing application services...")

	if err := a.initStore(ctx); err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	if err := a.initProgress(); err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	if err := a.initRecordSink(ctx); err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	if err := a.initPublisher(ctx); err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	if cfg.Ops.Enabled {
		ops, err := api.NewServer(api.Config{Addr: cfg.Ops.Addr, APIKey: cfg.Ops.APIKey}, a.status, a.registry, l)
		if err != nil {
			_ = a.Close(ctx)
			return nil, fmt.Errorf("init ops server: %w", err)
		}
		if err := ops.Start(); err != nil {
			_ = a.Close(ctx)
			return nil, fmt.Errorf("start ops server: %w", err)
		}
		a.ops = ops
	}

	l.Info("Application services initialized successfully.")
	return a, nil
}

func (a *App) initStore(ctx context.Context) error {
	var opts []store.Option
	switch a.cfg.Mirror.Backend {
	case config.MirrorLocal:
		blobs, err := local.New(local.Config{BaseDir: a.cfg.Mirror.Dir})
		if err != nil {
			return fmt.Errorf("init local mirror: %w", err)
		}
		a.logger.Info("Mirroring snapshots to local directory", zap.String("dir", a.cfg.Mirror.Dir))
		opts = append(opts, store.WithMirror(blobs, a.cfg.Mirror.Prefix))
	case config.MirrorGCS:
		client, err := gstorage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("init gcs client: %w", err)
		}
		blobs, err := gcs.New(client, gcs.Config{Bucket: a.cfg.Mirror.Bucket})
		if err != nil {
			_ = client.Close()
			return fmt.Errorf("init gcs mirror: %w", err)
		}
		a.closers = append(a.closers, blobs.Close)
		a.logger.Info("Mirroring snapshots to GCS", zap.String("bucket", a.cfg.Mirror.Bucket))
		opts = append(opts, store.WithMirror(blobs, a.cfg.Mirror.Prefix))
	}
	s, err := store.Load(a.cfg.StoreConfig(), a.logger, opts...)
	if err != nil {
		return fmt.Errorf("load store: %w", err)
	}
	a.store = s
	return nil
}

func (a *App) initProgress() error {
	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	promSink, err := sinks.NewPrometheusSink(a.registry)
	if err != nil {
		return fmt.Errorf("init prometheus sink: %w", err)
	}
	a.status = sinks.NewStatusSink()
	a.hub = progress.NewHub(progress.Config{
		BufferSize:     a.cfg.Progress.BufferSize,
		MaxBatchEvents: a.cfg.Progress.MaxBatchEvents,
		MaxBatchWait:   a.cfg.Progress.MaxBatchWait,
		Logger:         a.logger.Named("progress"),
	}, sinks.NewLogSink(a.logger.Named("progress")), promSink, a.status)
	return nil
}

func (a *App) initRecordSink(ctx context.Context) error {
	if a.cfg.DB.DSN == "" || len(a.recordSinks) > 0 {
		return nil
	}
	a.logger.Info("Connecting to PostgreSQL...")
	tenders, err := postgres.NewTenderStore(ctx, postgres.TenderStoreConfig{
		DSN:      a.cfg.DB.DSN,
		Table:    a.cfg.DB.Table,
		MaxConns: a.cfg.DB.MaxConns,
	})
	if err != nil {
		return fmt.Errorf("init postgres: %w", err)
	}
	a.closers = append(a.closers, func() error { tenders.Close(); return nil })
	if err := tenders.EnsureTable(ctx); err != nil {
		return fmt.Errorf("ensure tender table: %w", err)
	}
	a.recordSinks = append(a.recordSinks, tenders)
	return nil
}

func (a *App) initPublisher(ctx context.Context) error {
	if a.cfg.PubSub.Topic == "" || a.publisher != nil {
		return nil
	}
	a.logger.Info("Connecting to GCP Pub/Sub", zap.String("topic", a.cfg.PubSub.Topic))
	client, err := gpubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return fmt.Errorf("init pubsub client: %w", err)
	}
	pub := pubsubpublisher.New(client, map[string]string{"source": "tender-harvester"})
	a.closers = append(a.closers, pub.Close)
	a.publisher = pub
	return nil
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Store exposes the checkpoint and dedup store.
func (a *App) Store() *store.FileStore {
	return a.store
}

// Status exposes the live run status.
func (a *App) Status() sinks.Status {
	return a.status.Snapshot()
}

// Registry exposes the metrics registry backing /metrics.
func (a *App) Registry() *prometheus.Registry {
	return a.registry
}

// OpsAddr reports the ops server's bound address, or "" when disabled.
func (a *App) OpsAddr() string {
	if a.ops == nil {
		return ""
	}
	return a.ops.Addr()
}

// BrowserConfig projects the session settings.
func (a *App) BrowserConfig() browser.Config {
	h := a.cfg.Harvest
	return browser.Config{
		Headless:          h.Headless,
		UserAgent:         h.UserAgent,
		AcceptLanguage:    h.AcceptLanguage,
		NavigationTimeout: h.NavigationTimeout,
		QueryTimeout:      h.QueryTimeout,
		WindowWidth:       h.WindowWidth,
		WindowHeight:      h.WindowHeight,
	}
}

// Harvest launches the browser and runs one harvest.
func (a *App) Harvest(ctx context.Context) (harvest.Summary, error) {
	page, err := a.newPage(a.BrowserConfig(), a.logger)
	if err != nil {
		return harvest.Summary{}, fmt.Errorf("launch browser: %w", err)
	}
	defer func() {
		if cerr := page.Close(); cerr != nil {
			a.logger.Warn("Failed to close browser", zap.Error(cerr))
		}
	}()
	if a.ops != nil {
		a.ops.SetReady(true)
		defer a.ops.SetReady(false)
	}

	opts := []harvest.Option{
		harvest.WithLogger(a.logger),
		harvest.WithEmitter(a.hub),
		harvest.WithRecordSinks(a.recordSinks...),
		harvest.WithClock(system.New()),
		harvest.WithIDGenerator(uuid.New()),
	}
	if a.publisher != nil {
		opts = append(opts, harvest.WithPublisher(a.publisher, a.cfg.PubSub.Topic))
	}
	h := harvest.New(a.cfg.HarvestConfig(), page, a.store, opts...)
	return h.Run(ctx)
}

// Close gracefully shuts down all services. Safe to call on a partially built App.
func (a *App) Close(ctx context.Context) error {
	if a == nil {
		return nil
	}
	var errs []error
	if a.ops != nil {
		timeout := a.cfg.Ops.ShutdownTimeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		errs = append(errs, a.ops.Shutdown(shutdownCtx))
		cancel()
	}
	if a.hub != nil {
		errs = append(errs, a.hub.Close(context.WithoutCancel(ctx)))
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	if a.ownsLogger && a.logger != nil {
		// Sync on stderr-backed loggers can fail harmlessly.
		_ = a.logger.Sync()
	}
	return errors.Join(errs...)
}
