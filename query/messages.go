package query

import (
	"strings"

	"github.com/goliatone/go-marketplace/core"
)

const (
	TypeGetOrder                = "marketplace.query.order.get"
	TypeSearchOrders            = "marketplace.query.order.search"
	TypeListOrderProposals      = "marketplace.query.proposal.list_for_order"
	TypeListContractorProposals = "marketplace.query.proposal.list_for_contractor"
	TypeListNotifications       = "marketplace.query.notification.list"
	TypeUnreadCount             = "marketplace.query.notification.unread_count"
	TypeGetPreferences          = "marketplace.query.preferences.get"
)

type GetOrderMessage struct {
	OrderID string
}

func (GetOrderMessage) Type() string { return TypeGetOrder }

func (m GetOrderMessage) Validate() error {
	return requireField("order_id", m.OrderID)
}

type SearchOrdersMessage struct {
	Filter core.OrderFilter
}

func (SearchOrdersMessage) Type() string { return TypeSearchOrders }

func (m SearchOrdersMessage) Validate() error {
	if err := validatePaging(m.Filter.Page, m.Filter.PerPage); err != nil {
		return err
	}
	if m.Filter.Status != "" && !m.Filter.Status.Valid() {
		return queryValidationError("status", "unknown order status")
	}
	if m.Filter.Type != "" && !m.Filter.Type.Valid() {
		return queryValidationError("type", "unknown order type")
	}
	if m.Filter.MinBudget != nil && m.Filter.MaxBudget != nil && *m.Filter.MinBudget > *m.Filter.MaxBudget {
		return queryInvalidInputError("query: min budget exceeds max budget")
	}
	return nil
}

type ListOrderProposalsMessage struct {
	OrderID  string
	CallerID string
}

func (ListOrderProposalsMessage) Type() string { return TypeListOrderProposals }

func (m ListOrderProposalsMessage) Validate() error {
	if err := requireField("caller_id", m.CallerID); err != nil {
		return err
	}
	return requireField("order_id", m.OrderID)
}

type ListContractorProposalsMessage struct {
	ContractorID string
	Filter       core.ProposalFilter
}

func (ListContractorProposalsMessage) Type() string { return TypeListContractorProposals }

func (m ListContractorProposalsMessage) Validate() error {
	if err := requireField("contractor_id", m.ContractorID); err != nil {
		return err
	}
	if m.Filter.Status != "" && !m.Filter.Status.Valid() {
		return queryValidationError("status", "unknown proposal status")
	}
	return validatePaging(m.Filter.Page, m.Filter.PerPage)
}

type ListNotificationsMessage struct {
	UserID string
	Filter core.NotificationFilter
}

func (ListNotificationsMessage) Type() string { return TypeListNotifications }

func (m ListNotificationsMessage) Validate() error {
	if err := requireField("user_id", m.UserID); err != nil {
		return err
	}
	if m.Filter.Type != "" && !m.Filter.Type.Valid() {
		return queryValidationError("type", "unknown notification type")
	}
	return validatePaging(m.Filter.Page, m.Filter.PerPage)
}

type UnreadCountMessage struct {
	UserID string
}

func (UnreadCountMessage) Type() string { return TypeUnreadCount }

func (m UnreadCountMessage) Validate() error {
	return requireField("user_id", m.UserID)
}

type GetPreferencesMessage struct {
	UserID string
}

func (GetPreferencesMessage) Type() string { return TypeGetPreferences }

func (m GetPreferencesMessage) Validate() error {
	return requireField("user_id", m.UserID)
}

func requireField(field string, value string) error {
	if strings.TrimSpace(value) == "" {
		return queryValidationError(field, "is required")
	}
	return nil
}

func validatePaging(page int, perPage int) error {
	if page < 0 {
		return queryValidationError("page", "must be >= 0")
	}
	if perPage < 0 {
		return queryValidationError("per_page", "must be >= 0")
	}
	return nil
}
