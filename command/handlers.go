package command

import (
	"context"
	"errors"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-marketplace/core"
)

type OrderService interface {
	Create(ctx context.Context, clientID string, draft core.OrderDraft) (core.Order, error)
	Publish(ctx context.Context, orderID string, clientID string) (core.Order, error)
	UpdateStatus(ctx context.Context, orderID string, callerID string, target core.OrderStatus) (core.Order, error)
	Update(ctx context.Context, orderID string, clientID string, patch core.OrderPatch) (core.Order, error)
	Delete(ctx context.Context, orderID string, clientID string) error
}

type ProposalService interface {
	Submit(ctx context.Context, orderID string, contractorID string, draft core.ProposalDraft) (core.Proposal, error)
	Accept(ctx context.Context, proposalID string, clientID string) (core.AcceptResult, error)
	Reject(ctx context.Context, proposalID string, clientID string) (core.Proposal, error)
	Update(ctx context.Context, proposalID string, contractorID string, patch core.ProposalPatch) (core.Proposal, error)
}

type NotificationService interface {
	Create(ctx context.Context, req core.NotificationRequest) (core.Notification, error)
	MarkRead(ctx context.Context, userID string, notificationID string) error
	MarkAllRead(ctx context.Context, userID string) (int, error)
	Delete(ctx context.Context, userID string, notificationID string) error
	DeleteAll(ctx context.Context, userID string) (int, error)
	CleanupExpired(ctx context.Context) (int, error)
}

type PreferenceWriter interface {
	Upsert(ctx context.Context, prefs core.NotificationPreferences) (core.NotificationPreferences, error)
}

type CreateOrderCommand struct {
	service OrderService
}

func NewCreateOrderCommand(service OrderService) *CreateOrderCommand {
	return &CreateOrderCommand{service: service}
}

func (c *CreateOrderCommand) Execute(ctx context.Context, msg CreateOrderMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: order service is required")
	}
	return storeOutcome(c.service.Create(ctx, msg.ClientID, msg.Draft))(ctx)
}

type PublishOrderCommand struct {
	service OrderService
}

func NewPublishOrderCommand(service OrderService) *PublishOrderCommand {
	return &PublishOrderCommand{service: service}
}

func (c *PublishOrderCommand) Execute(ctx context.Context, msg PublishOrderMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: order service is required")
	}
	return storeOutcome(c.service.Publish(ctx, msg.OrderID, msg.ClientID))(ctx)
}

type UpdateOrderStatusCommand struct {
	service OrderService
}

func NewUpdateOrderStatusCommand(service OrderService) *UpdateOrderStatusCommand {
	return &UpdateOrderStatusCommand{service: service}
}

func (c *UpdateOrderStatusCommand) Execute(ctx context.Context, msg UpdateOrderStatusMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: order service is required")
	}
	return storeOutcome(c.service.UpdateStatus(ctx, msg.OrderID, msg.CallerID, msg.Status))(ctx)
}

type UpdateOrderCommand struct {
	service OrderService
}

func NewUpdateOrderCommand(service OrderService) *UpdateOrderCommand {
	return &UpdateOrderCommand{service: service}
}

func (c *UpdateOrderCommand) Execute(ctx context.Context, msg UpdateOrderMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: order service is required")
	}
	return storeOutcome(c.service.Update(ctx, msg.OrderID, msg.ClientID, msg.Patch))(ctx)
}

type DeleteOrderCommand struct {
	service OrderService
}

func NewDeleteOrderCommand(service OrderService) *DeleteOrderCommand {
	return &DeleteOrderCommand{service: service}
}

func (c *DeleteOrderCommand) Execute(ctx context.Context, msg DeleteOrderMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: order service is required")
	}
	return c.service.Delete(ctx, msg.OrderID, msg.ClientID)
}

type SubmitProposalCommand struct {
	service ProposalService
}

func NewSubmitProposalCommand(service ProposalService) *SubmitProposalCommand {
	return &SubmitProposalCommand{service: service}
}

func (c *SubmitProposalCommand) Execute(ctx context.Context, msg SubmitProposalMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: proposal service is required")
	}
	return storeOutcome(c.service.Submit(ctx, msg.OrderID, msg.ContractorID, msg.Draft))(ctx)
}

type AcceptProposalCommand struct {
	service ProposalService
}

func NewAcceptProposalCommand(service ProposalService) *AcceptProposalCommand {
	return &AcceptProposalCommand{service: service}
}

func (c *AcceptProposalCommand) Execute(ctx context.Context, msg AcceptProposalMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: proposal service is required")
	}
	return storeOutcome(c.service.Accept(ctx, msg.ProposalID, msg.ClientID))(ctx)
}

type RejectProposalCommand struct {
	service ProposalService
}

func NewRejectProposalCommand(service ProposalService) *RejectProposalCommand {
	return &RejectProposalCommand{service: service}
}

func (c *RejectProposalCommand) Execute(ctx context.Context, msg RejectProposalMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: proposal service is required")
	}
	return storeOutcome(c.service.Reject(ctx, msg.ProposalID, msg.ClientID))(ctx)
}

type UpdateProposalCommand struct {
	service ProposalService
}

func NewUpdateProposalCommand(service ProposalService) *UpdateProposalCommand {
	return &UpdateProposalCommand{service: service}
}

func (c *UpdateProposalCommand) Execute(ctx context.Context, msg UpdateProposalMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: proposal service is required")
	}
	return storeOutcome(c.service.Update(ctx, msg.ProposalID, msg.ContractorID, msg.Patch))(ctx)
}

type SendNotificationCommand struct {
	service NotificationService
}

func NewSendNotificationCommand(service NotificationService) *SendNotificationCommand {
	return &SendNotificationCommand{service: service}
}

func (c *SendNotificationCommand) Execute(ctx context.Context, msg SendNotificationMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: notification service is required")
	}
	return storeOutcome(c.service.Create(ctx, msg.Request))(ctx)
}

type MarkNotificationReadCommand struct {
	service NotificationService
}

func NewMarkNotificationReadCommand(service NotificationService) *MarkNotificationReadCommand {
	return &MarkNotificationReadCommand{service: service}
}

func (c *MarkNotificationReadCommand) Execute(ctx context.Context, msg MarkNotificationReadMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: notification service is required")
	}
	return c.service.MarkRead(ctx, msg.UserID, msg.NotificationID)
}

type MarkAllReadCommand struct {
	service NotificationService
}

func NewMarkAllReadCommand(service NotificationService) *MarkAllReadCommand {
	return &MarkAllReadCommand{service: service}
}

// Execute stores the number of notifications that changed.
func (c *MarkAllReadCommand) Execute(ctx context.Context, msg MarkAllReadMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: notification service is required")
	}
	return storeOutcome(c.service.MarkAllRead(ctx, msg.UserID))(ctx)
}

type DeleteNotificationCommand struct {
	service NotificationService
}

func NewDeleteNotificationCommand(service NotificationService) *DeleteNotificationCommand {
	return &DeleteNotificationCommand{service: service}
}

func (c *DeleteNotificationCommand) Execute(ctx context.Context, msg DeleteNotificationMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: notification service is required")
	}
	return c.service.Delete(ctx, msg.UserID, msg.NotificationID)
}

type DeleteAllNotificationsCommand struct {
	service NotificationService
}

func NewDeleteAllNotificationsCommand(service NotificationService) *DeleteAllNotificationsCommand {
	return &DeleteAllNotificationsCommand{service: service}
}

func (c *DeleteAllNotificationsCommand) Execute(ctx context.Context, msg DeleteAllNotificationsMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: notification service is required")
	}
	return storeOutcome(c.service.DeleteAll(ctx, msg.UserID))(ctx)
}

type CleanupExpiredNotificationsCommand struct {
	service NotificationService
}

func NewCleanupExpiredNotificationsCommand(service NotificationService) *CleanupExpiredNotificationsCommand {
	return &CleanupExpiredNotificationsCommand{service: service}
}

func (c *CleanupExpiredNotificationsCommand) Execute(ctx context.Context, _ CleanupExpiredNotificationsMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: notification service is required")
	}
	return storeOutcome(c.service.CleanupExpired(ctx))(ctx)
}

type UpdatePreferencesCommand struct {
	writer PreferenceWriter
}

func NewUpdatePreferencesCommand(writer PreferenceWriter) *UpdatePreferencesCommand {
	return &UpdatePreferencesCommand{writer: writer}
}

func (c *UpdatePreferencesCommand) Execute(ctx context.Context, msg UpdatePreferencesMessage) error {
	if c == nil || c.writer == nil {
		return commandDependencyError("command: preference store is required")
	}
	saved, err := c.writer.Upsert(ctx, msg.Preferences)
	if err != nil {
		if errors.Is(err, core.ErrValidation) {
			return commandWrapValidation(err, "command: invalid preferences")
		}
		return err
	}
	storeResult(ctx, saved)
	return nil
}

// storeOutcome returns a func that stores value in the context result
// collector when err is nil, and returns err otherwise.
func storeOutcome[T any](value T, err error) func(context.Context) error {
	return func(ctx context.Context) error {
		if err != nil {
			return err
		}
		storeResult(ctx, value)
		return nil
	}
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
