package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ErrorFactory func(message string, category ...goerrors.Category) *goerrors.Error

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

// StoreProvider exposes a complete set of stores backed by one persistence
// client.
type StoreProvider interface {
	OrderStore() OrderStore
	ProposalStore() ProposalStore
	UnitOfWork() UnitOfWork
	NotificationStore() NotificationStore
	PreferenceStore() PreferenceStore
	CategoryDirectory() CategoryDirectory
	UserDirectory() UserDirectory
}

type RepositoryStoreFactory interface {
	BuildStores(persistenceClient any) (StoreProvider, error)
}

type serviceBuilder struct {
	runtimeConfig     Config
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	errorFactory      ErrorFactory
	errorMapper       ErrorMapper
	persistenceClient any
	repositoryFactory any
	configProvider    ConfigProvider
	optionsResolver   OptionsResolver
	orderStore        OrderStore
	proposalStore     ProposalStore
	unitOfWork        UnitOfWork
	notificationStore NotificationStore
	preferenceStore   PreferenceStore
	categoryDirectory CategoryDirectory
	userDirectory     UserDirectory
	auditSink         AuditSink
	realtime          RealtimePublisher
	jobEnqueuer       JobEnqueuer
	clock             func() time.Time
}

type Option func(*serviceBuilder)

func WithLogger(logger Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *serviceBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorFactory(factory ErrorFactory) Option {
	return func(b *serviceBuilder) {
		b.errorFactory = factory
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *serviceBuilder) {
		b.errorMapper = mapper
	}
}

func WithPersistenceClient(client any) Option {
	return func(b *serviceBuilder) {
		b.persistenceClient = client
	}
}

func WithRepositoryFactory(factory any) Option {
	return func(b *serviceBuilder) {
		b.repositoryFactory = factory
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.optionsResolver = resolver
	}
}

func WithOrderStore(store OrderStore) Option {
	return func(b *serviceBuilder) {
		b.orderStore = store
	}
}

func WithProposalStore(store ProposalStore) Option {
	return func(b *serviceBuilder) {
		b.proposalStore = store
	}
}

func WithUnitOfWork(uow UnitOfWork) Option {
	return func(b *serviceBuilder) {
		b.unitOfWork = uow
	}
}

func WithNotificationStore(store NotificationStore) Option {
	return func(b *serviceBuilder) {
		b.notificationStore = store
	}
}

func WithPreferenceStore(store PreferenceStore) Option {
	return func(b *serviceBuilder) {
		b.preferenceStore = store
	}
}

func WithCategoryDirectory(directory CategoryDirectory) Option {
	return func(b *serviceBuilder) {
		b.categoryDirectory = directory
	}
}

func WithUserDirectory(directory UserDirectory) Option {
	return func(b *serviceBuilder) {
		b.userDirectory = directory
	}
}

func WithAuditSink(sink AuditSink) Option {
	return func(b *serviceBuilder) {
		b.auditSink = sink
	}
}

func WithRealtimePublisher(publisher RealtimePublisher) Option {
	return func(b *serviceBuilder) {
		b.realtime = publisher
	}
}

func WithJobEnqueuer(enqueuer JobEnqueuer) Option {
	return func(b *serviceBuilder) {
		b.jobEnqueuer = enqueuer
	}
}

func WithClock(clock func() time.Time) Option {
	return func(b *serviceBuilder) {
		b.clock = clock
	}
}

func defaultServiceBuilder(runtime Config) serviceBuilder {
	loggerProvider, logger := glog.Resolve("marketplace", nil, nil)
	return serviceBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorFactory:    goerrors.New,
		errorMapper:     defaultErrorMapper,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
		auditSink:       NopAuditSink{},
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func defaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return MapError(err)
}

func (b *serviceBuilder) applyStoreProvider(provider StoreProvider) {
	if provider == nil {
		return
	}
	if b.orderStore == nil {
		b.orderStore = provider.OrderStore()
	}
	if b.proposalStore == nil {
		b.proposalStore = provider.ProposalStore()
	}
	if b.unitOfWork == nil {
		b.unitOfWork = provider.UnitOfWork()
	}
	if b.notificationStore == nil {
		b.notificationStore = provider.NotificationStore()
	}
	if b.preferenceStore == nil {
		b.preferenceStore = provider.PreferenceStore()
	}
	if b.categoryDirectory == nil {
		b.categoryDirectory = provider.CategoryDirectory()
	}
	if b.userDirectory == nil {
		b.userDirectory = provider.UserDirectory()
	}
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

// NewStaticRawConfigLoader serves a fixed raw configuration map.
func NewStaticRawConfigLoader(values map[string]any) RawConfigLoader {
	return staticRawConfigLoader{Values: values}
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}

	orders := map[string]any{}
	putInt(orders, "review_window_days", cfg.Orders.ReviewWindowDays, includeZero)
	putInt(orders, "fanout_limit", cfg.Orders.FanoutLimit, includeZero)
	putSection(layer, "orders", orders)

	notifications := map[string]any{}
	putInt(notifications, "ttl_days", cfg.Notifications.TTLDays, includeZero)
	putInt(notifications, "urgent_ttl_days", cfg.Notifications.UrgentTTLDays, includeZero)
	putString(notifications, "queue_job_id", cfg.Notifications.QueueJobID, includeZero)
	putString(notifications, "fanout_job_id", cfg.Notifications.FanoutJobID, includeZero)
	putSection(layer, "notifications", notifications)

	realtime := map[string]any{}
	putInt(realtime, "mark_read_limit", cfg.Realtime.MarkReadLimit, includeZero)
	putInt(realtime, "mark_read_window_seconds", cfg.Realtime.MarkReadWindowSeconds, includeZero)
	putInt(realtime, "send_buffer", cfg.Realtime.SendBuffer, includeZero)
	putSection(layer, "realtime", realtime)

	outbox := map[string]any{}
	if includeZero || cfg.Outbox.Enabled {
		outbox["enabled"] = cfg.Outbox.Enabled
	}
	putInt(outbox, "batch_size", cfg.Outbox.BatchSize, includeZero)
	putInt(outbox, "max_attempts", cfg.Outbox.MaxAttempts, includeZero)
	putSection(layer, "outbox", outbox)

	worker := map[string]any{}
	putInt(worker, "max_attempts", cfg.Worker.MaxAttempts, includeZero)
	putInt(worker, "max_delay_seconds", cfg.Worker.MaxDelaySeconds, includeZero)
	putSection(layer, "worker", worker)

	cleanup := map[string]any{}
	putInt(cleanup, "interval_minutes", cfg.Cleanup.IntervalMinutes, includeZero)
	putSection(layer, "cleanup", cleanup)
	return layer
}

func putInt(section map[string]any, key string, value int, includeZero bool) {
	if includeZero || value != 0 {
		section[key] = value
	}
}

func putString(section map[string]any, key string, value string, includeZero bool) {
	if includeZero || strings.TrimSpace(value) != "" {
		section[key] = value
	}
}

func putSection(layer map[string]any, key string, section map[string]any) {
	if len(section) > 0 {
		layer[key] = section
	}
}
