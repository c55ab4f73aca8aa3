package command

import (
	"sort"
	"strings"

	"github.com/goliatone/go-marketplace/core"
)

const (
	TypeCreateOrder            = "marketplace.command.order.create"
	TypePublishOrder           = "marketplace.command.order.publish"
	TypeUpdateOrderStatus      = "marketplace.command.order.update_status"
	TypeUpdateOrder            = "marketplace.command.order.update"
	TypeDeleteOrder            = "marketplace.command.order.delete"
	TypeSubmitProposal         = "marketplace.command.proposal.submit"
	TypeAcceptProposal         = "marketplace.command.proposal.accept"
	TypeRejectProposal         = "marketplace.command.proposal.reject"
	TypeUpdateProposal         = "marketplace.command.proposal.update"
	TypeSendNotification       = "marketplace.command.notification.send"
	TypeMarkNotificationRead   = "marketplace.command.notification.mark_read"
	TypeMarkAllRead            = "marketplace.command.notification.mark_all_read"
	TypeDeleteNotification     = "marketplace.command.notification.delete"
	TypeDeleteAllNotifications = "marketplace.command.notification.delete_all"
	TypeCleanupNotifications   = "marketplace.command.notification.cleanup_expired"
	TypeUpdatePreferences      = "marketplace.command.preferences.update"
)

type CreateOrderMessage struct {
	ClientID string
	Draft    core.OrderDraft
}

func (CreateOrderMessage) Type() string { return TypeCreateOrder }

func (m CreateOrderMessage) Validate() error {
	if err := requireField("client_id", m.ClientID); err != nil {
		return err
	}
	if err := m.Draft.Validate(); err != nil {
		return commandWrapValidation(err, "command: invalid order draft")
	}
	return nil
}

type PublishOrderMessage struct {
	OrderID  string
	ClientID string
}

func (PublishOrderMessage) Type() string { return TypePublishOrder }

func (m PublishOrderMessage) Validate() error {
	return requireFields(map[string]string{"order_id": m.OrderID, "client_id": m.ClientID})
}

type UpdateOrderStatusMessage struct {
	OrderID  string
	CallerID string
	Status   core.OrderStatus
}

func (UpdateOrderStatusMessage) Type() string { return TypeUpdateOrderStatus }

func (m UpdateOrderStatusMessage) Validate() error {
	if err := requireFields(map[string]string{"order_id": m.OrderID, "caller_id": m.CallerID}); err != nil {
		return err
	}
	if !m.Status.Valid() {
		return commandValidationError("status", "unknown order status")
	}
	return nil
}

type UpdateOrderMessage struct {
	OrderID  string
	ClientID string
	Patch    core.OrderPatch
}

func (UpdateOrderMessage) Type() string { return TypeUpdateOrder }

func (m UpdateOrderMessage) Validate() error {
	if err := requireFields(map[string]string{"order_id": m.OrderID, "client_id": m.ClientID}); err != nil {
		return err
	}
	if m.Patch.Empty() {
		return commandInvalidInputError("command: order patch has no changes")
	}
	return nil
}

type DeleteOrderMessage struct {
	OrderID  string
	ClientID string
}

func (DeleteOrderMessage) Type() string { return TypeDeleteOrder }

func (m DeleteOrderMessage) Validate() error {
	return requireFields(map[string]string{"order_id": m.OrderID, "client_id": m.ClientID})
}

type SubmitProposalMessage struct {
	OrderID      string
	ContractorID string
	Draft        core.ProposalDraft
}

func (SubmitProposalMessage) Type() string { return TypeSubmitProposal }

func (m SubmitProposalMessage) Validate() error {
	if err := requireFields(map[string]string{"order_id": m.OrderID, "contractor_id": m.ContractorID}); err != nil {
		return err
	}
	if err := m.Draft.Validate(); err != nil {
		return commandWrapValidation(err, "command: invalid proposal")
	}
	return nil
}

type AcceptProposalMessage struct {
	ProposalID string
	ClientID   string
}

func (AcceptProposalMessage) Type() string { return TypeAcceptProposal }

func (m AcceptProposalMessage) Validate() error {
	return requireFields(map[string]string{"proposal_id": m.ProposalID, "client_id": m.ClientID})
}

type RejectProposalMessage struct {
	ProposalID string
	ClientID   string
}

func (RejectProposalMessage) Type() string { return TypeRejectProposal }

func (m RejectProposalMessage) Validate() error {
	return requireFields(map[string]string{"proposal_id": m.ProposalID, "client_id": m.ClientID})
}

type UpdateProposalMessage struct {
	ProposalID   string
	ContractorID string
	Patch        core.ProposalPatch
}

func (UpdateProposalMessage) Type() string { return TypeUpdateProposal }

func (m UpdateProposalMessage) Validate() error {
	return requireFields(map[string]string{"proposal_id": m.ProposalID, "contractor_id": m.ContractorID})
}

type SendNotificationMessage struct {
	Request core.NotificationRequest
}

func (SendNotificationMessage) Type() string { return TypeSendNotification }

func (m SendNotificationMessage) Validate() error {
	if err := m.Request.Validate(); err != nil {
		return commandWrapValidation(err, "command: invalid notification request")
	}
	return nil
}

type MarkNotificationReadMessage struct {
	UserID         string
	NotificationID string
}

func (MarkNotificationReadMessage) Type() string { return TypeMarkNotificationRead }

func (m MarkNotificationReadMessage) Validate() error {
	return requireFields(map[string]string{"user_id": m.UserID, "notification_id": m.NotificationID})
}

type MarkAllReadMessage struct {
	UserID string
}

func (MarkAllReadMessage) Type() string { return TypeMarkAllRead }

func (m MarkAllReadMessage) Validate() error {
	return requireField("user_id", m.UserID)
}

type DeleteNotificationMessage struct {
	UserID         string
	NotificationID string
}

func (DeleteNotificationMessage) Type() string { return TypeDeleteNotification }

func (m DeleteNotificationMessage) Validate() error {
	return requireFields(map[string]string{"user_id": m.UserID, "notification_id": m.NotificationID})
}

type DeleteAllNotificationsMessage struct {
	UserID string
}

func (DeleteAllNotificationsMessage) Type() string { return TypeDeleteAllNotifications }

func (m DeleteAllNotificationsMessage) Validate() error {
	return requireField("user_id", m.UserID)
}

type CleanupExpiredNotificationsMessage struct{}

func (CleanupExpiredNotificationsMessage) Type() string { return TypeCleanupNotifications }

type UpdatePreferencesMessage struct {
	Preferences core.NotificationPreferences
}

func (UpdatePreferencesMessage) Type() string { return TypeUpdatePreferences }

func (m UpdatePreferencesMessage) Validate() error {
	return requireField("user_id", m.Preferences.UserID)
}

func requireField(field string, value string) error {
	if strings.TrimSpace(value) == "" {
		return commandValidationError(field, "is required")
	}
	return nil
}

// requireFields checks fields in sorted order so the reported field is stable.
func requireFields(fields map[string]string) error {
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if err := requireField(key, fields[key]); err != nil {
			return err
		}
	}
	return nil
}
