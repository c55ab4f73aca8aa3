package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"slices"
	"strings"
	"sync"

	command "github.com/goliatone/go-command"
	"github.com/goliatone/go-marketplace/adapters/gocommand"
	"github.com/goliatone/go-marketplace/adapters/gojob"
	"github.com/goliatone/go-marketplace/adapters/gologger"
	marketmetrics "github.com/goliatone/go-marketplace/adapters/prometheus"
	"github.com/goliatone/go-marketplace/adapters/pushgateway"
	"github.com/goliatone/go-marketplace/adapters/smtpmail"
	"github.com/goliatone/go-marketplace/core"
	marketmigrations "github.com/goliatone/go-marketplace/migrations"
	"github.com/goliatone/go-marketplace/ratelimit"
	"github.com/goliatone/go-marketplace/realtime"
	sqlstore "github.com/goliatone/go-marketplace/store/sql"

	glog "github.com/goliatone/go-logger/glog"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// daemon owns every long lived component of one marketplaced process.
type daemon struct {
	settings Settings
	logger   glog.Logger

	client        *persistence.Client
	factory       *sqlstore.RepositoryFactory
	service       *core.Service
	hub           *realtime.Hub
	worker        *core.DeliveryWorker
	outbox        *core.OutboxDispatcher
	subscriptions *gocommand.Subscriptions
	server        *http.Server
}

func openDatabase(ctx context.Context, settings DatabaseSettings) (*persistence.Client, string, error) {
	dialect, err := marketmigrations.DialectForDriver(settings.Driver)
	if err != nil {
		return nil, "", err
	}
	var (
		driverName string
		bunDialect schema.Dialect
	)
	switch dialect {
	case marketmigrations.DialectPostgres:
		driverName, bunDialect = "postgres", pgdialect.New()
	default:
		driverName, bunDialect = "sqlite3", sqlitedialect.New()
	}

	sqlDB, err := sql.Open(driverName, settings.DSN)
	if err != nil {
		return nil, "", fmt.Errorf("marketplaced: open %s: %w", driverName, err)
	}
	if dialect == marketmigrations.DialectSQLite {
		sqlDB.SetMaxOpenConns(1)
	}
	client, err := persistence.New(persistenceConfig{database: settings}, sqlDB, bunDialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, "", fmt.Errorf("marketplaced: persistence client: %w", err)
	}

	if _, err := marketmigrations.Register(ctx, func(_ context.Context, _ string, _ string, fsys fs.FS) error {
		client.RegisterSQLMigrations(fsys)
		return nil
	}, marketmigrations.WithValidationTargets(dialect)); err != nil {
		_ = client.Close()
		return nil, "", err
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		return nil, "", fmt.Errorf("marketplaced: migrate: %w", err)
	}
	return client, dialect, nil
}

func newDaemon(ctx context.Context, settings Settings, logger glog.Logger) (_ *daemon, err error) {
	provider, logger := gologger.Resolve("marketplaced", nil, logger)
	logger = glog.Ensure(logger)

	d := &daemon{settings: settings, logger: logger}
	defer func() {
		if err != nil {
			d.close()
		}
	}()

	client, dialect, err := openDatabase(ctx, settings.Database)
	if err != nil {
		return nil, err
	}
	d.client = client
	logger.Info("database ready", "dialect", dialect)

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		return nil, err
	}
	d.factory = factory

	var metrics core.MetricsRecorder = core.NopMetricsRecorder{}
	if settings.Metrics.Enabled {
		metrics = marketmetrics.NewRecorder(prom.DefaultRegisterer, marketmetrics.WithNamespace(settings.Metrics.Namespace))
	}

	cacheConfig := repositorycache.DefaultConfig()
	if ttl := settings.PreferenceTTL(); ttl > 0 {
		cacheConfig.TTL = ttl
	}
	cacheService, err := repositorycache.NewCacheService(cacheConfig)
	if err != nil {
		return nil, fmt.Errorf("marketplaced: preference cache: %w", err)
	}
	preferences, err := sqlstore.NewCachedPreferenceStore(factory.PreferenceStore(), cacheService)
	if err != nil {
		return nil, err
	}

	hub := realtime.NewHub(
		realtime.WithSendBuffer(settings.Marketplace.Realtime.SendBuffer),
		realtime.WithHubLogger(loggerFor(provider, logger, "marketplace.realtime")),
		realtime.WithHubMetrics(metrics),
	)
	d.hub = hub

	service, err := core.NewService(
		settings.Marketplace,
		core.WithLoggerProvider(provider),
		core.WithLogger(logger),
		core.WithMetricsRecorder(metrics),
		core.WithPersistenceClient(client),
		core.WithRepositoryFactory(factory),
		core.WithPreferenceStore(preferences),
		core.WithAuditSink(factory.AuditStore()),
		core.WithJobEnqueuer(gojob.NewEnqueuer(factory.JobQueue())),
		core.WithRealtimePublisher(hub),
	)
	if err != nil {
		return nil, err
	}
	d.service = service
	cfg := service.Config()

	if d.worker, err = d.buildWorker(provider, logger); err != nil {
		return nil, err
	}

	if cfg.Outbox.Enabled {
		d.outbox, err = core.NewOutboxDispatcher(
			factory.OutboxStore(),
			service.OutboxHandlers(factory.DispatchLedger()),
			core.OutboxDispatcherConfigFrom(cfg),
			loggerFor(provider, logger, "marketplace.outbox"),
		)
		if err != nil {
			return nil, err
		}
	}

	d.subscriptions, err = gocommand.RegisterMarketplace(
		gocommand.NewRegistryAdapter(command.NewRegistry()),
		gocommand.MarketplaceHandlers{
			Orders:        service.Orders(),
			Proposals:     service.Proposals(),
			Notifications: service.Notifications(),
			Preferences:   preferences,
		},
	)
	if err != nil {
		return nil, err
	}

	if d.server, err = d.buildServer(hub, provider, logger); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *daemon) buildWorker(provider glog.LoggerProvider, logger glog.Logger) (*core.DeliveryWorker, error) {
	deps := core.DeliveryWorkerDependencies{
		Queue:  gojob.NewDequeuer(d.factory.JobQueue(), gojob.RetryPolicyFromConfig(d.service.Config())),
		Ledger: d.factory.DispatchLedger(),
		Hook:   gologger.NewWorkerLogHook(loggerFor(provider, logger, "marketplace.worker")),
	}
	if d.settings.SMTP.Enabled() {
		sender, err := smtpmail.NewSender(d.settings.SMTP.Config())
		if err != nil {
			return nil, err
		}
		deps.Email = sender
	} else {
		logger.Warn("smtp host not configured, email deliveries will be skipped")
	}
	if d.settings.Push.Enabled() {
		sender, err := pushgateway.NewSender(d.settings.Push.Config())
		if err != nil {
			return nil, err
		}
		deps.Push = sender
	} else {
		logger.Warn("push endpoint not configured, push deliveries will be skipped")
	}
	return d.service.NewDeliveryWorker(deps)
}

func (d *daemon) buildServer(hub *realtime.Hub, provider glog.LoggerProvider, logger glog.Logger) (*http.Server, error) {
	cfg := d.service.Config()
	handlerOpts := []realtime.HandlerOption{
		realtime.WithHandlerLogger(loggerFor(provider, logger, "marketplace.realtime")),
	}
	if origins := d.settings.HTTP.AllowedOrigins; len(origins) > 0 {
		handlerOpts = append(handlerOpts, realtime.WithCheckOrigin(func(r *http.Request) bool {
			return slices.Contains(origins, strings.TrimSpace(r.Header.Get("Origin")))
		}))
	}
	wsHandler, err := realtime.NewHandler(
		hub,
		realtime.NewHMACTokenVerifier(d.settings.Realtime.TokenSecret),
		d.service.Notifications(),
		ratelimit.NewKeyedLimiter(ratelimit.PolicyFromConfig(cfg)),
		handlerOpts...,
	)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/ws", wsHandler)
	if d.settings.Metrics.Enabled {
		path := d.settings.Metrics.Path
		if strings.TrimSpace(path) == "" {
			path = "/metrics"
		}
		mux.Handle(path, promhttp.Handler())
	}
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := d.client.DB().PingContext(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	return &http.Server{Addr: d.settings.HTTP.Addr, Handler: mux}, nil
}

// Run serves HTTP and runs the background loops until ctx is cancelled.
func (d *daemon) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errs := make(chan error, 3)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := d.worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errs <- fmt.Errorf("delivery worker: %w", err)
			cancel()
		}
	}()

	if d.outbox != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := d.outbox.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errs <- fmt.Errorf("outbox dispatcher: %w", err)
				cancel()
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		core.RunCleanupLoop(ctx, d.service.Notifications(), d.service.Config().CleanupInterval())
	}()

	serveErr := make(chan error, 1)
	go func() {
		d.logger.Info("http listening", "addr", d.server.Addr)
		serveErr <- d.server.ListenAndServe()
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = fmt.Errorf("http server: %w", err)
		}
		cancel()
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), d.settings.ShutdownTimeout())
	defer stop()
	if err := d.server.Shutdown(shutdownCtx); err != nil {
		d.logger.Warn("http shutdown failed", "error", err)
	}
	d.hub.Close()
	wg.Wait()
	close(errs)
	for err := range errs {
		runErr = errors.Join(runErr, err)
	}
	return runErr
}

func (d *daemon) close() {
	if d.subscriptions != nil {
		d.subscriptions.Unsubscribe()
	}
	if d.hub != nil {
		d.hub.Close()
	}
	if d.client != nil {
		if err := d.client.Close(); err != nil {
			d.logger.Warn("database close failed", "error", err)
		}
	}
}

func loggerFor(provider glog.LoggerProvider, fallback glog.Logger, name string) glog.Logger {
	if provider != nil {
		if named := provider.GetLogger(name); named != nil {
			return named
		}
	}
	return glog.Ensure(fallback)
}
