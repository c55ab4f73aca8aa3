package gocommand

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
	marketcommand "github.com/goliatone/go-marketplace/command"
	"github.com/goliatone/go-marketplace/core"
	marketquery "github.com/goliatone/go-marketplace/query"
)

var errRegistryNotConfigured = errors.New("gocommand: registry is not configured")

// ValidateMessageContract requires a non-empty Type() and runs Validate() when
// the message provides one.
func ValidateMessageContract(msg any) error {
	if err := command.ValidateMessage(msg); err != nil {
		return err
	}
	typed, ok := msg.(command.Message)
	if !ok {
		return fmt.Errorf("gocommand: message must implement Type() string")
	}
	if strings.TrimSpace(typed.Type()) == "" {
		return fmt.Errorf("gocommand: message type is required")
	}
	return nil
}

type RegistryAdapter struct {
	registry *command.Registry
}

func NewRegistryAdapter(registry *command.Registry) *RegistryAdapter {
	if registry == nil {
		registry = command.NewRegistry()
	}
	return &RegistryAdapter{registry: registry}
}

func (a *RegistryAdapter) Registry() *command.Registry {
	if a == nil {
		return nil
	}
	return a.registry
}

func (a *RegistryAdapter) ready() error {
	if a == nil || a.registry == nil {
		return errRegistryNotConfigured
	}
	return nil
}

func (a *RegistryAdapter) RegisterCommand(handler any) error {
	if err := a.ready(); err != nil {
		return err
	}
	return a.registry.RegisterCommand(handler)
}

func (a *RegistryAdapter) AddResolver(key string, resolver command.Resolver) error {
	if err := a.ready(); err != nil {
		return err
	}
	return a.registry.AddResolver(strings.TrimSpace(key), resolver)
}

// AddQueueResolver mirrors every registered command into the go-job queue
// registry so it can also run as a background job.
func (a *RegistryAdapter) AddQueueResolver(key string, queueRegistry *jobqueuecommand.Registry) error {
	if queueRegistry == nil {
		return fmt.Errorf("gocommand: queue registry is required")
	}
	return a.AddResolver(key, jobqueuecommand.QueueResolver(queueRegistry))
}

func (a *RegistryAdapter) HasResolver(key string) bool {
	if a.ready() != nil {
		return false
	}
	return a.registry.HasResolver(strings.TrimSpace(key))
}

func (a *RegistryAdapter) Initialize() error {
	if err := a.ready(); err != nil {
		return err
	}
	return a.registry.Initialize()
}

func Dispatch[T any](ctx context.Context, msg T) error {
	return commanddispatcher.Dispatch(ctx, msg)
}

func Query[T any, R any](ctx context.Context, msg T) (R, error) {
	return commanddispatcher.Query[T, R](ctx, msg)
}

// RegisterAndSubscribe subscribes cmd on the global dispatcher and records it
// in the registry. The subscription is dropped when registration fails.
func RegisterAndSubscribe[T any](
	adapter *RegistryAdapter,
	cmd command.Commander[T],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if err := adapter.ready(); err != nil {
		return nil, err
	}
	if cmd == nil {
		return nil, fmt.Errorf("gocommand: command is required")
	}
	subscription := commanddispatcher.SubscribeCommand(cmd, runnerOpts...)
	if err := adapter.RegisterCommand(cmd); err != nil {
		unsubscribe(subscription)
		return nil, err
	}
	return subscription, nil
}

func SubscribeQuery[T any, R any](
	adapter *RegistryAdapter,
	qry command.Querier[T, R],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if err := adapter.ready(); err != nil {
		return nil, err
	}
	if qry == nil {
		return nil, fmt.Errorf("gocommand: query is required")
	}
	return commanddispatcher.SubscribeQuery(qry, runnerOpts...), nil
}

type OrderHandlers interface {
	marketcommand.OrderService
	marketquery.OrderReader
}

type ProposalHandlers interface {
	marketcommand.ProposalService
	marketquery.ProposalReader
}

type NotificationHandlers interface {
	marketcommand.NotificationService
	marketquery.NotificationReader
}

// MarketplaceHandlers groups the services behind every marketplace command
// and query.
type MarketplaceHandlers struct {
	Orders        OrderHandlers
	Proposals     ProposalHandlers
	Notifications NotificationHandlers
	Preferences   core.PreferenceStore
}

func (h MarketplaceHandlers) validate() error {
	missing := make([]string, 0, 4)
	if h.Orders == nil {
		missing = append(missing, "orders")
	}
	if h.Proposals == nil {
		missing = append(missing, "proposals")
	}
	if h.Notifications == nil {
		missing = append(missing, "notifications")
	}
	if h.Preferences == nil {
		missing = append(missing, "preferences")
	}
	if len(missing) > 0 {
		return fmt.Errorf("gocommand: missing marketplace handlers: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Subscriptions holds dispatcher subscriptions created by RegisterMarketplace.
type Subscriptions struct {
	items []commanddispatcher.Subscription
}

func (s *Subscriptions) Len() int {
	if s == nil {
		return 0
	}
	return len(s.items)
}

func (s *Subscriptions) Unsubscribe() {
	if s == nil {
		return
	}
	for i := len(s.items) - 1; i >= 0; i-- {
		unsubscribe(s.items[i])
	}
	s.items = nil
}

func (s *Subscriptions) add(subscription commanddispatcher.Subscription, err error) error {
	if err != nil {
		return err
	}
	s.items = append(s.items, subscription)
	return nil
}

// RegisterMarketplace subscribes every marketplace command and query. On
// failure the subscriptions created so far are removed.
func RegisterMarketplace(
	adapter *RegistryAdapter,
	handlers MarketplaceHandlers,
	runnerOpts ...runner.Option,
) (*Subscriptions, error) {
	if err := adapter.ready(); err != nil {
		return nil, err
	}
	if err := handlers.validate(); err != nil {
		return nil, err
	}

	subs := &Subscriptions{}
	steps := []func() error{
		func() error {
			return subs.add(RegisterAndSubscribe(adapter, marketcommand.NewCreateOrderCommand(handlers.Orders), runnerOpts...))
		},
		func() error {
			return subs.add(RegisterAndSubscribe(adapter, marketcommand.NewPublishOrderCommand(handlers.Orders), runnerOpts...))
		},
		func() error {
			return subs.add(RegisterAndSubscribe(adapter, marketcommand.NewUpdateOrderStatusCommand(handlers.Orders), runnerOpts...))
		},
		func() error {
			return subs.add(RegisterAndSubscribe(adapter, marketcommand.NewUpdateOrderCommand(handlers.Orders), runnerOpts...))
		},
		func() error {
			return subs.add(RegisterAndSubscribe(adapter, marketcommand.NewDeleteOrderCommand(handlers.Orders), runnerOpts...))
		},
		func() error {
			return subs.add(RegisterAndSubscribe(adapter, marketcommand.NewSubmitProposalCommand(handlers.Proposals), runnerOpts...))
		},
		func() error {
			return subs.add(RegisterAndSubscribe(adapter, marketcommand.NewAcceptProposalCommand(handlers.Proposals), runnerOpts...))
		},
		func() error {
			return subs.add(RegisterAndSubscribe(adapter, marketcommand.NewRejectProposalCommand(handlers.Proposals), runnerOpts...))
		},
		func() error {
			return subs.add(RegisterAndSubscribe(adapter, marketcommand.NewUpdateProposalCommand(handlers.Proposals), runnerOpts...))
		},
		func() error {
			return subs.add(RegisterAndSubscribe(adapter, marketcommand.NewSendNotificationCommand(handlers.Notifications), runnerOpts...))
		},
		func() error {
			return subs.add(RegisterAndSubscribe(adapter, marketcommand.NewMarkNotificationReadCommand(handlers.Notifications), runnerOpts...))
		},
		func() error {
			return subs.add(RegisterAndSubscribe(adapter, marketcommand.NewMarkAllReadCommand(handlers.Notifications), runnerOpts...))
		},
		func() error {
			return subs.add(RegisterAndSubscribe(adapter, marketcommand.NewDeleteNotificationCommand(handlers.Notifications), runnerOpts...))
		},
		func() error {
			return subs.add(RegisterAndSubscribe(adapter, marketcommand.NewDeleteAllNotificationsCommand(handlers.Notifications), runnerOpts...))
		},
		func() error {
			return subs.add(RegisterAndSubscribe(adapter, marketcommand.NewCleanupExpiredNotificationsCommand(handlers.Notifications), runnerOpts...))
		},
		func() error {
			return subs.add(RegisterAndSubscribe(adapter, marketcommand.NewUpdatePreferencesCommand(handlers.Preferences), runnerOpts...))
		},
		func() error {
			return subs.add(SubscribeQuery(adapter, marketquery.NewGetOrderQuery(handlers.Orders), runnerOpts...))
		},
		func() error {
			return subs.add(SubscribeQuery(adapter, marketquery.NewSearchOrdersQuery(handlers.Orders), runnerOpts...))
		},
		func() error {
			return subs.add(SubscribeQuery(adapter, marketquery.NewListOrderProposalsQuery(handlers.Proposals), runnerOpts...))
		},
		func() error {
			return subs.add(SubscribeQuery(adapter, marketquery.NewListContractorProposalsQuery(handlers.Proposals), runnerOpts...))
		},
		func() error {
			return subs.add(SubscribeQuery(adapter, marketquery.NewListNotificationsQuery(handlers.Notifications), runnerOpts...))
		},
		func() error {
			return subs.add(SubscribeQuery(adapter, marketquery.NewUnreadCountQuery(handlers.Notifications), runnerOpts...))
		},
		func() error {
			return subs.add(SubscribeQuery(adapter, marketquery.NewGetPreferencesQuery(handlers.Preferences), runnerOpts...))
		},
	}
	for _, step := range steps {
		if err := step(); err != nil {
			subs.Unsubscribe()
			return nil, err
		}
	}
	return subs, nil
}

func unsubscribe(subscription commanddispatcher.Subscription) {
	if subscription != nil {
		subscription.Unsubscribe()
	}
}
