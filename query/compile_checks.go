package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-marketplace/core"
)

var (
	_ gocmd.Querier[GetOrderMessage, core.Order]                         = (*GetOrderQuery)(nil)
	_ gocmd.Querier[SearchOrdersMessage, core.OrderPage]                 = (*SearchOrdersQuery)(nil)
	_ gocmd.Querier[ListOrderProposalsMessage, []core.Proposal]          = (*ListOrderProposalsQuery)(nil)
	_ gocmd.Querier[ListContractorProposalsMessage, core.ProposalPage]   = (*ListContractorProposalsQuery)(nil)
	_ gocmd.Querier[ListNotificationsMessage, core.NotificationPage]     = (*ListNotificationsQuery)(nil)
	_ gocmd.Querier[UnreadCountMessage, int]                             = (*UnreadCountQuery)(nil)
	_ gocmd.Querier[GetPreferencesMessage, core.NotificationPreferences] = (*GetPreferencesQuery)(nil)

	_ OrderReader        = (*core.OrderLifecycle)(nil)
	_ ProposalReader     = (*core.ProposalCoordinator)(nil)
	_ NotificationReader = (*core.NotificationDispatcher)(nil)
	_ PreferenceReader   = (core.PreferenceStore)(nil)
)
