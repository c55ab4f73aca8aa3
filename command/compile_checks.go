package command

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-marketplace/core"
)

var (
	_ gocmd.Commander[CreateOrderMessage]                 = (*CreateOrderCommand)(nil)
	_ gocmd.Commander[PublishOrderMessage]                = (*PublishOrderCommand)(nil)
	_ gocmd.Commander[UpdateOrderStatusMessage]           = (*UpdateOrderStatusCommand)(nil)
	_ gocmd.Commander[UpdateOrderMessage]                 = (*UpdateOrderCommand)(nil)
	_ gocmd.Commander[DeleteOrderMessage]                 = (*DeleteOrderCommand)(nil)
	_ gocmd.Commander[SubmitProposalMessage]              = (*SubmitProposalCommand)(nil)
	_ gocmd.Commander[AcceptProposalMessage]              = (*AcceptProposalCommand)(nil)
	_ gocmd.Commander[RejectProposalMessage]              = (*RejectProposalCommand)(nil)
	_ gocmd.Commander[UpdateProposalMessage]              = (*UpdateProposalCommand)(nil)
	_ gocmd.Commander[SendNotificationMessage]            = (*SendNotificationCommand)(nil)
	_ gocmd.Commander[MarkNotificationReadMessage]        = (*MarkNotificationReadCommand)(nil)
	_ gocmd.Commander[MarkAllReadMessage]                 = (*MarkAllReadCommand)(nil)
	_ gocmd.Commander[DeleteNotificationMessage]          = (*DeleteNotificationCommand)(nil)
	_ gocmd.Commander[DeleteAllNotificationsMessage]      = (*DeleteAllNotificationsCommand)(nil)
	_ gocmd.Commander[CleanupExpiredNotificationsMessage] = (*CleanupExpiredNotificationsCommand)(nil)
	_ gocmd.Commander[UpdatePreferencesMessage]           = (*UpdatePreferencesCommand)(nil)

	_ OrderService        = (*core.OrderLifecycle)(nil)
	_ ProposalService     = (*core.ProposalCoordinator)(nil)
	_ NotificationService = (*core.NotificationDispatcher)(nil)
	_ PreferenceWriter    = (core.PreferenceStore)(nil)
)
