package marketplace

import (
	"fmt"

	marketcommand "github.com/goliatone/go-marketplace/command"
	"github.com/goliatone/go-marketplace/core"
	marketquery "github.com/goliatone/go-marketplace/query"
)

type Commands struct {
	CreateOrder                 *marketcommand.CreateOrderCommand
	PublishOrder                *marketcommand.PublishOrderCommand
	UpdateOrderStatus           *marketcommand.UpdateOrderStatusCommand
	UpdateOrder                 *marketcommand.UpdateOrderCommand
	DeleteOrder                 *marketcommand.DeleteOrderCommand
	SubmitProposal              *marketcommand.SubmitProposalCommand
	AcceptProposal              *marketcommand.AcceptProposalCommand
	RejectProposal              *marketcommand.RejectProposalCommand
	UpdateProposal              *marketcommand.UpdateProposalCommand
	SendNotification            *marketcommand.SendNotificationCommand
	MarkNotificationRead        *marketcommand.MarkNotificationReadCommand
	MarkAllRead                 *marketcommand.MarkAllReadCommand
	DeleteNotification          *marketcommand.DeleteNotificationCommand
	DeleteAllNotifications      *marketcommand.DeleteAllNotificationsCommand
	CleanupExpiredNotifications *marketcommand.CleanupExpiredNotificationsCommand
	UpdatePreferences           *marketcommand.UpdatePreferencesCommand
}

type Queries struct {
	GetOrder                *marketquery.GetOrderQuery
	SearchOrders            *marketquery.SearchOrdersQuery
	ListOrderProposals      *marketquery.ListOrderProposalsQuery
	ListContractorProposals *marketquery.ListContractorProposalsQuery
	ListNotifications       *marketquery.ListNotificationsQuery
	UnreadCount             *marketquery.UnreadCountQuery
	GetPreferences          *marketquery.GetPreferencesQuery
}

// Facade exposes the marketplace service as go-command handlers.
type Facade struct {
	service     *Service
	preferences core.PreferenceStore
	commands    Commands
	queries     Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	preferences core.PreferenceStore
}

// WithFacadePreferenceStore overrides the preference store taken from the
// service dependencies, for example with a cached store.
func WithFacadePreferenceStore(store core.PreferenceStore) FacadeOption {
	return func(options *facadeOptions) {
		options.preferences = store
	}
}

func NewFacade(service *Service, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("marketplace: service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	preferences := cfg.preferences
	if preferences == nil {
		preferences = service.Dependencies().PreferenceStore
	}
	if preferences == nil {
		return nil, fmt.Errorf("marketplace: preference store is required")
	}

	orders := service.Orders()
	proposals := service.Proposals()
	notifications := service.Notifications()

	facade := &Facade{service: service, preferences: preferences}
	facade.commands = Commands{
		CreateOrder:                 marketcommand.NewCreateOrderCommand(orders),
		PublishOrder:                marketcommand.NewPublishOrderCommand(orders),
		UpdateOrderStatus:           marketcommand.NewUpdateOrderStatusCommand(orders),
		UpdateOrder:                 marketcommand.NewUpdateOrderCommand(orders),
		DeleteOrder:                 marketcommand.NewDeleteOrderCommand(orders),
		SubmitProposal:              marketcommand.NewSubmitProposalCommand(proposals),
		AcceptProposal:              marketcommand.NewAcceptProposalCommand(proposals),
		RejectProposal:              marketcommand.NewRejectProposalCommand(proposals),
		UpdateProposal:              marketcommand.NewUpdateProposalCommand(proposals),
		SendNotification:            marketcommand.NewSendNotificationCommand(notifications),
		MarkNotificationRead:        marketcommand.NewMarkNotificationReadCommand(notifications),
		MarkAllRead:                 marketcommand.NewMarkAllReadCommand(notifications),
		DeleteNotification:          marketcommand.NewDeleteNotificationCommand(notifications),
		DeleteAllNotifications:      marketcommand.NewDeleteAllNotificationsCommand(notifications),
		CleanupExpiredNotifications: marketcommand.NewCleanupExpiredNotificationsCommand(notifications),
		UpdatePreferences:           marketcommand.NewUpdatePreferencesCommand(preferences),
	}
	facade.queries = Queries{
		GetOrder:                marketquery.NewGetOrderQuery(orders),
		SearchOrders:            marketquery.NewSearchOrdersQuery(orders),
		ListOrderProposals:      marketquery.NewListOrderProposalsQuery(proposals),
		ListContractorProposals: marketquery.NewListContractorProposalsQuery(proposals),
		ListNotifications:       marketquery.NewListNotificationsQuery(notifications),
		UnreadCount:             marketquery.NewUnreadCountQuery(notifications),
		GetPreferences:          marketquery.NewGetPreferencesQuery(preferences),
	}
	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() *Service {
	if f == nil {
		return nil
	}
	return f.service
}

func (f *Facade) Preferences() core.PreferenceStore {
	if f == nil {
		return nil
	}
	return f.preferences
}
