package marketplace

import "github.com/goliatone/go-marketplace/core"

type Config = core.Config

type Option = core.Option

type Service = core.Service

type ServiceDependencies = core.ServiceDependencies

type (
	Order                   = core.Order
	OrderDraft              = core.OrderDraft
	OrderFilter             = core.OrderFilter
	Proposal                = core.Proposal
	ProposalDraft           = core.ProposalDraft
	AcceptResult            = core.AcceptResult
	Notification            = core.Notification
	NotificationRequest     = core.NotificationRequest
	NotificationPreferences = core.NotificationPreferences
)

var (
	WithLogger            = core.WithLogger
	WithLoggerProvider    = core.WithLoggerProvider
	WithMetricsRecorder   = core.WithMetricsRecorder
	WithErrorFactory      = core.WithErrorFactory
	WithErrorMapper       = core.WithErrorMapper
	WithPersistenceClient = core.WithPersistenceClient
	WithRepositoryFactory = core.WithRepositoryFactory
	WithConfigProvider    = core.WithConfigProvider
	WithOptionsResolver   = core.WithOptionsResolver
	WithOrderStore        = core.WithOrderStore
	WithProposalStore     = core.WithProposalStore
	WithUnitOfWork        = core.WithUnitOfWork
	WithNotificationStore = core.WithNotificationStore
	WithPreferenceStore   = core.WithPreferenceStore
	WithCategoryDirectory = core.WithCategoryDirectory
	WithUserDirectory     = core.WithUserDirectory
	WithAuditSink         = core.WithAuditSink
	WithRealtimePublisher = core.WithRealtimePublisher
	WithJobEnqueuer       = core.WithJobEnqueuer
	WithClock             = core.WithClock
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return core.Setup(cfg, opts...)
}
