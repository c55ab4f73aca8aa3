package core

import (
	"context"
	"fmt"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

// Service wires the order, proposal and notification components around one
// set of stores and one ambient runtime.
type Service struct {
	config            Config
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

	runtime       *operationRuntime
	resolver      *ChannelResolver
	notifications *NotificationDispatcher
	orders        *OrderLifecycle
	proposals     *ProposalCoordinator
}

type ServiceDependencies struct {
	Logger            Logger
	LoggerProvider    LoggerProvider
	MetricsRecorder   MetricsRecorder
	ErrorFactory      ErrorFactory
	ErrorMapper       ErrorMapper
	PersistenceClient any
	RepositoryFactory any
	ConfigProvider    ConfigProvider
	OptionsResolver   OptionsResolver
	OrderStore        OrderStore
	ProposalStore     ProposalStore
	UnitOfWork        UnitOfWork
	NotificationStore NotificationStore
	PreferenceStore   PreferenceStore
	CategoryDirectory CategoryDirectory
	UserDirectory     UserDirectory
	AuditSink         AuditSink
	Realtime          RealtimePublisher
	JobEnqueuer       JobEnqueuer
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("marketplace", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("marketplace"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.auditSink == nil {
		builder.auditSink = NopAuditSink{}
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if builder.repositoryFactory != nil {
		if storeFactory, ok := builder.repositoryFactory.(RepositoryStoreFactory); ok {
			stores, buildErr := storeFactory.BuildStores(builder.persistenceClient)
			if buildErr != nil {
				return nil, mapBuildError(builder.errorMapper, buildErr)
			}
			builder.applyStoreProvider(stores)
		} else if stores, ok := builder.repositoryFactory.(StoreProvider); ok {
			builder.applyStoreProvider(stores)
		}
	}
	if err := builder.requireStores(); err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	svc := &Service{
		config:            finalConfig,
		logger:            logger,
		loggerProvider:    provider,
		metricsRecorder:   builder.metricsRecorder,
		errorFactory:      builder.errorFactory,
		errorMapper:       builder.errorMapper,
		persistenceClient: builder.persistenceClient,
		repositoryFactory: builder.repositoryFactory,
		configProvider:    builder.configProvider,
		optionsResolver:   builder.optionsResolver,
		orderStore:        builder.orderStore,
		proposalStore:     builder.proposalStore,
		unitOfWork:        builder.unitOfWork,
		notificationStore: builder.notificationStore,
		preferenceStore:   builder.preferenceStore,
		categoryDirectory: builder.categoryDirectory,
		userDirectory:     builder.userDirectory,
		auditSink:         builder.auditSink,
		realtime:          builder.realtime,
		jobEnqueuer:       builder.jobEnqueuer,
	}
	svc.runtime = &operationRuntime{
		config:      finalConfig,
		logger:      logger,
		metrics:     builder.metricsRecorder,
		errorMapper: builder.errorMapper,
		audit:       builder.auditSink,
		now:         builder.clock,
	}
	svc.resolver = NewChannelResolver(builder.preferenceStore, logger)
	svc.notifications = &NotificationDispatcher{
		operationRuntime: svc.runtime,
		store:            builder.notificationStore,
		resolver:         svc.resolver,
		realtime:         builder.realtime,
		jobs:             builder.jobEnqueuer,
	}
	svc.orders = &OrderLifecycle{
		operationRuntime: svc.runtime,
		orders:           builder.orderStore,
		categories:       builder.categoryDirectory,
		users:            builder.userDirectory,
		notifier:         svc.notifications,
		jobs:             builder.jobEnqueuer,
	}
	svc.proposals = &ProposalCoordinator{
		operationRuntime: svc.runtime,
		orders:           builder.orderStore,
		proposals:        builder.proposalStore,
		uow:              builder.unitOfWork,
		notifier:         svc.notifications,
	}
	return svc, nil
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return NewService(cfg, opts...)
}

func (b *serviceBuilder) requireStores() error {
	missing := ""
	switch {
	case b.orderStore == nil:
		missing = "order"
	case b.proposalStore == nil:
		missing = "proposal"
	case b.unitOfWork == nil:
		missing = "unit of work"
	case b.notificationStore == nil:
		missing = "notification"
	}
	if missing != "" {
		return fmt.Errorf("core: %s store is required", missing)
	}
	return nil
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Orders() *OrderLifecycle {
	return s.orders
}

func (s *Service) Proposals() *ProposalCoordinator {
	return s.proposals
}

func (s *Service) Notifications() *NotificationDispatcher {
	return s.notifications
}

func (s *Service) Resolver() *ChannelResolver {
	return s.resolver
}

// SetRealtimePublisher attaches the live delivery channel after construction,
// for hubs that themselves depend on the service.
func (s *Service) SetRealtimePublisher(publisher RealtimePublisher) {
	if s == nil {
		return
	}
	s.realtime = publisher
	if s.notifications != nil {
		s.notifications.realtime = publisher
	}
}

// NewDeliveryWorker builds a worker that shares the service runtime and stores.
func (s *Service) NewDeliveryWorker(deps DeliveryWorkerDependencies) (*DeliveryWorker, error) {
	if s == nil {
		return nil, fmt.Errorf("core: service is not configured")
	}
	if deps.Queue == nil {
		return nil, fmt.Errorf("core: delivery worker queue is required")
	}
	return &DeliveryWorker{
		operationRuntime: s.runtime,
		queue:            deps.Queue,
		notifications:    s.notificationStore,
		users:            s.userDirectory,
		realtime:         s.realtime,
		email:            deps.Email,
		push:             deps.Push,
		ledger:           deps.Ledger,
		hook:             deps.Hook,
		fanout:           s.orders.FanOut,
		idleDelay:        defaultWorkerIdleDelay,
	}, nil
}

// OutboxHandlers returns the registry serving events written by this service.
func (s *Service) OutboxHandlers(ledger DispatchLedger) *OutboxHandlerRegistry {
	registry := NewOutboxHandlerRegistry()
	registry.Register(OutboxEventProposalAccepted, NewProposalAcceptedHandler(s.notifications, ledger))
	return registry
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:            s.logger,
		LoggerProvider:    s.loggerProvider,
		MetricsRecorder:   s.metricsRecorder,
		ErrorFactory:      s.errorFactory,
		ErrorMapper:       s.errorMapper,
		PersistenceClient: s.persistenceClient,
		RepositoryFactory: s.repositoryFactory,
		ConfigProvider:    s.configProvider,
		OptionsResolver:   s.optionsResolver,
		OrderStore:        s.orderStore,
		ProposalStore:     s.proposalStore,
		UnitOfWork:        s.unitOfWork,
		NotificationStore: s.notificationStore,
		PreferenceStore:   s.preferenceStore,
		CategoryDirectory: s.categoryDirectory,
		UserDirectory:     s.userDirectory,
		AuditSink:         s.auditSink,
		Realtime:          s.realtime,
		JobEnqueuer:       s.jobEnqueuer,
	}
}
