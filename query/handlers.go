package query

import (
	"context"
	"errors"

	"github.com/goliatone/go-marketplace/core"
)

type OrderReader interface {
	Get(ctx context.Context, orderID string) (core.Order, error)
	Search(ctx context.Context, filter core.OrderFilter) (core.OrderPage, error)
}

type ProposalReader interface {
	ListForOrder(ctx context.Context, orderID string, callerID string) ([]core.Proposal, error)
	ListForContractor(ctx context.Context, contractorID string, filter core.ProposalFilter) (core.ProposalPage, error)
}

type NotificationReader interface {
	List(ctx context.Context, userID string, filter core.NotificationFilter) (core.NotificationPage, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
}

type PreferenceReader interface {
	Get(ctx context.Context, userID string) (core.NotificationPreferences, error)
}

type GetOrderQuery struct {
	reader OrderReader
}

func NewGetOrderQuery(reader OrderReader) *GetOrderQuery {
	return &GetOrderQuery{reader: reader}
}

func (q *GetOrderQuery) Query(ctx context.Context, msg GetOrderMessage) (core.Order, error) {
	if q == nil || q.reader == nil {
		return core.Order{}, queryDependencyError("query: order reader is required")
	}
	return q.reader.Get(ctx, msg.OrderID)
}

type SearchOrdersQuery struct {
	reader OrderReader
}

func NewSearchOrdersQuery(reader OrderReader) *SearchOrdersQuery {
	return &SearchOrdersQuery{reader: reader}
}

func (q *SearchOrdersQuery) Query(ctx context.Context, msg SearchOrdersMessage) (core.OrderPage, error) {
	if q == nil || q.reader == nil {
		return core.OrderPage{}, queryDependencyError("query: order reader is required")
	}
	return q.reader.Search(ctx, msg.Filter)
}

type ListOrderProposalsQuery struct {
	reader ProposalReader
}

func NewListOrderProposalsQuery(reader ProposalReader) *ListOrderProposalsQuery {
	return &ListOrderProposalsQuery{reader: reader}
}

func (q *ListOrderProposalsQuery) Query(ctx context.Context, msg ListOrderProposalsMessage) ([]core.Proposal, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: proposal reader is required")
	}
	return q.reader.ListForOrder(ctx, msg.OrderID, msg.CallerID)
}

type ListContractorProposalsQuery struct {
	reader ProposalReader
}

func NewListContractorProposalsQuery(reader ProposalReader) *ListContractorProposalsQuery {
	return &ListContractorProposalsQuery{reader: reader}
}

func (q *ListContractorProposalsQuery) Query(
	ctx context.Context,
	msg ListContractorProposalsMessage,
) (core.ProposalPage, error) {
	if q == nil || q.reader == nil {
		return core.ProposalPage{}, queryDependencyError("query: proposal reader is required")
	}
	return q.reader.ListForContractor(ctx, msg.ContractorID, msg.Filter)
}

type ListNotificationsQuery struct {
	reader NotificationReader
}

func NewListNotificationsQuery(reader NotificationReader) *ListNotificationsQuery {
	return &ListNotificationsQuery{reader: reader}
}

func (q *ListNotificationsQuery) Query(ctx context.Context, msg ListNotificationsMessage) (core.NotificationPage, error) {
	if q == nil || q.reader == nil {
		return core.NotificationPage{}, queryDependencyError("query: notification reader is required")
	}
	return q.reader.List(ctx, msg.UserID, msg.Filter)
}

type UnreadCountQuery struct {
	reader NotificationReader
}

func NewUnreadCountQuery(reader NotificationReader) *UnreadCountQuery {
	return &UnreadCountQuery{reader: reader}
}

func (q *UnreadCountQuery) Query(ctx context.Context, msg UnreadCountMessage) (int, error) {
	if q == nil || q.reader == nil {
		return 0, queryDependencyError("query: notification reader is required")
	}
	return q.reader.UnreadCount(ctx, msg.UserID)
}

// GetPreferencesQuery falls back to the all-enabled defaults for users that
// never saved preferences.
type GetPreferencesQuery struct {
	reader PreferenceReader
}

func NewGetPreferencesQuery(reader PreferenceReader) *GetPreferencesQuery {
	return &GetPreferencesQuery{reader: reader}
}

func (q *GetPreferencesQuery) Query(ctx context.Context, msg GetPreferencesMessage) (core.NotificationPreferences, error) {
	if q == nil || q.reader == nil {
		return core.NotificationPreferences{}, queryDependencyError("query: preference reader is required")
	}
	prefs, err := q.reader.Get(ctx, msg.UserID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) || core.IsNotFound(err) {
			return core.DefaultNotificationPreferences(msg.UserID), nil
		}
		return core.NotificationPreferences{}, err
	}
	return prefs, nil
}
