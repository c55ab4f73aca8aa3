package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	ActionOrderInvitation    = "order_invitation"
	ActionNewOrderAvailable  = "new_order_available"
	ActionOrderStatusChanged = "order_status_changed"

	JobParamOrderID     = "order_id"
	JobParamClientID    = "client_id"
	JobParamCategoryID  = "category_id"
	JobParamCity        = "city"
	JobParamCountryCode = "country_code"
	JobParamTitle       = "title"
)

// OrderLifecycle owns the order state machine and its side effects.
type OrderLifecycle struct {
	*operationRuntime
	orders     OrderStore
	categories CategoryDirectory
	users      UserDirectory
	notifier   NotificationSender
	jobs       JobEnqueuer
}

func (l *OrderLifecycle) Create(ctx context.Context, clientID string, draft OrderDraft) (order Order, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"client_id":  clientID,
		"order_type": string(draft.Type),
	}
	defer func() {
		if order.ID != "" {
			fields["order_id"] = order.ID
		}
		l.observeOperation(ctx, startedAt, "order_create", err, fields)
	}()

	if err = requireIDs(map[string]string{"client_id": clientID}); err != nil {
		err = l.mapError(err)
		return Order{}, err
	}
	if err = draft.Validate(); err != nil {
		err = l.mapError(err)
		return Order{}, err
	}
	if err = l.requireCategory(ctx, draft.CategoryID); err != nil {
		return Order{}, err
	}
	if draft.Type == OrderTypeDirect {
		if err = l.requireContractor(ctx, draft.DirectContractorID); err != nil {
			return Order{}, err
		}
		if strings.TrimSpace(draft.DirectContractorID) == strings.TrimSpace(clientID) {
			err = ValidationError("direct_contractor_id", "must differ from the client")
			return Order{}, err
		}
	}

	now := l.clock()
	order, err = l.orders.Create(ctx, Order{
		ID:                 uuid.NewString(),
		Title:              strings.TrimSpace(draft.Title),
		Description:        strings.TrimSpace(draft.Description),
		Type:               draft.Type,
		Status:             OrderStatusDraft,
		ClientID:           strings.TrimSpace(clientID),
		DirectContractorID: strings.TrimSpace(draft.DirectContractorID),
		Budget:             draft.Budget,
		CategoryID:         strings.TrimSpace(draft.CategoryID),
		Location:           draft.Location.Normalize(),
		CreatedAt:          now,
		UpdatedAt:          now,
	})
	if err != nil {
		err = l.mapError(err)
		return Order{}, err
	}
	l.recordAudit(ctx, AuditEvent{
		Action:     "order.created",
		ActorID:    order.ClientID,
		ObjectType: "order",
		ObjectID:   order.ID,
		Metadata:   map[string]any{"order_type": string(order.Type)},
		OccurredAt: now,
	})
	return order, nil
}

func (l *OrderLifecycle) Publish(ctx context.Context, orderID string, clientID string) (order Order, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"order_id":      orderID,
		"client_id":     clientID,
		"target_status": string(OrderStatusPublished),
	}
	defer func() {
		if order.ID != "" {
			fields["order_type"] = string(order.Type)
		}
		l.observeOperation(ctx, startedAt, "order_publish", err, fields)
	}()

	current, err := l.loadOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if !current.OwnedBy(clientID) {
		err = ForbiddenError("only the owning client can publish an order")
		return Order{}, err
	}
	if current.Status != OrderStatusDraft {
		err = InvalidStateError(fmt.Sprintf("order %s is %s, only draft orders can be published", current.ID, current.Status))
		return Order{}, err
	}

	now := l.clock()
	next := current
	next.Status = OrderStatusPublished
	next.PublishedAt = timePtr(now)
	next.UpdatedAt = now
	order, err = l.orders.UpdateIfStatus(ctx, next, OrderStatusDraft)
	if err != nil {
		err = l.mapError(err)
		return Order{}, err
	}

	switch order.Type {
	case OrderTypePublic:
		l.enqueueFanout(ctx, order)
	case OrderTypeDirect:
		l.notify(ctx, NotificationRequest{
			UserID:    order.DirectContractorID,
			Type:      NotificationOrderStatusChanged,
			Title:     "New order invitation",
			Body:      fmt.Sprintf("You have been invited to work on %q.", order.Title),
			ActionURL: orderActionURL(order.ID),
			Metadata: map[string]any{
				"action":   ActionOrderInvitation,
				"order_id": order.ID,
				"status":   string(order.Status),
			},
		})
	}
	l.recordAudit(ctx, AuditEvent{
		Action:     "order.published",
		ActorID:    order.ClientID,
		ObjectType: "order",
		ObjectID:   order.ID,
		OccurredAt: now,
	})
	return order, nil
}

// UpdateStatus moves an order along the adjacency table. The owning client and
// the assigned contractor may call it; for direct orders the invited
// contractor may also start the work.
func (l *OrderLifecycle) UpdateStatus(ctx context.Context, orderID string, callerID string, target OrderStatus) (order Order, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"order_id":      orderID,
		"caller_id":     callerID,
		"target_status": string(target),
	}
	defer func() {
		l.observeOperation(ctx, startedAt, "order_update_status", err, fields)
	}()

	if !target.Valid() {
		err = ValidationError("status", fmt.Sprintf("unknown order status %q", target))
		return Order{}, err
	}
	if target == OrderStatusPublished {
		return l.Publish(ctx, orderID, callerID)
	}
	current, err := l.loadOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	fields["order_type"] = string(current.Type)
	if !l.canChangeStatus(current, callerID) {
		err = ForbiddenError("only the owning client or the assigned contractor can change the order status")
		return Order{}, err
	}
	if err = ValidateOrderTransition(current.Status, target); err != nil {
		err = InvalidStateError(fmt.Sprintf("order status transition %s -> %s is not allowed", current.Status, target))
		return Order{}, err
	}

	now := l.clock()
	next := current
	next.Status = target
	next.UpdatedAt = now
	switch target {
	case OrderStatusInProgress:
		if !next.HasContractor() && next.Type == OrderTypeDirect && strings.TrimSpace(next.DirectContractorID) != "" {
			next.ContractorID = next.DirectContractorID
		}
		if !next.HasContractor() {
			err = InvalidStateError(fmt.Sprintf("order %s has no assigned contractor", current.ID))
			return Order{}, err
		}
		next.StartedAt = timePtr(now)
	case OrderStatusCompleted:
		next.CompletedAt = timePtr(now)
		next.ReviewEligibleUntil = timePtr(now.Add(l.config.ReviewWindow()))
	case OrderStatusCancelled:
		next.ContractorID = ""
	}
	if err = next.CheckContractorInvariant(); err != nil {
		err = l.mapError(err)
		return Order{}, err
	}

	order, err = l.orders.UpdateIfStatus(ctx, next, current.Status)
	if err != nil {
		err = l.mapError(err)
		return Order{}, err
	}

	recipients := []string{order.ClientID}
	if contractor := firstNonEmpty(order.ContractorID, current.ContractorID); contractor != "" {
		recipients = append(recipients, contractor)
	}
	for _, recipient := range recipients {
		l.notify(ctx, NotificationRequest{
			UserID:    recipient,
			Type:      NotificationOrderStatusChanged,
			Title:     "Order status updated",
			Body:      fmt.Sprintf("Order %q moved from %s to %s.", order.Title, current.Status, order.Status),
			ActionURL: orderActionURL(order.ID),
			Metadata: map[string]any{
				"action":          ActionOrderStatusChanged,
				"order_id":        order.ID,
				"previous_status": string(current.Status),
				"status":          string(order.Status),
			},
		})
	}
	l.recordAudit(ctx, AuditEvent{
		Action:     "order.status_changed",
		ActorID:    strings.TrimSpace(callerID),
		ObjectType: "order",
		ObjectID:   order.ID,
		Metadata: map[string]any{
			"from": string(current.Status),
			"to":   string(order.Status),
		},
		OccurredAt: now,
	})
	return order, nil
}

func (l *OrderLifecycle) Update(ctx context.Context, orderID string, clientID string, patch OrderPatch) (order Order, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"order_id": orderID, "client_id": clientID}
	defer func() {
		l.observeOperation(ctx, startedAt, "order_update", err, fields)
	}()

	current, err := l.loadDraftForOwner(ctx, orderID, clientID, "updated")
	if err != nil {
		return Order{}, err
	}
	if patch.Empty() {
		return current, nil
	}
	next, err := patch.Apply(current)
	if err != nil {
		err = l.mapError(err)
		return Order{}, err
	}
	if next.CategoryID != current.CategoryID {
		if err = l.requireCategory(ctx, next.CategoryID); err != nil {
			return Order{}, err
		}
	}
	next.UpdatedAt = l.clock()
	order, err = l.orders.UpdateIfStatus(ctx, next, OrderStatusDraft)
	if err != nil {
		err = l.mapError(err)
		return Order{}, err
	}
	l.recordAudit(ctx, AuditEvent{
		Action:     "order.updated",
		ActorID:    order.ClientID,
		ObjectType: "order",
		ObjectID:   order.ID,
	})
	return order, nil
}

func (l *OrderLifecycle) Delete(ctx context.Context, orderID string, clientID string) (err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"order_id": orderID, "client_id": clientID}
	defer func() {
		l.observeOperation(ctx, startedAt, "order_delete", err, fields)
	}()

	current, err := l.loadDraftForOwner(ctx, orderID, clientID, "deleted")
	if err != nil {
		return err
	}
	if err = l.orders.SoftDelete(ctx, current.ID, OrderStatusDraft, l.clock()); err != nil {
		err = l.mapError(err)
		return err
	}
	l.recordAudit(ctx, AuditEvent{
		Action:     "order.deleted",
		ActorID:    current.ClientID,
		ObjectType: "order",
		ObjectID:   current.ID,
	})
	return nil
}

func (l *OrderLifecycle) Get(ctx context.Context, orderID string) (Order, error) {
	return l.loadOrder(ctx, orderID)
}

func (l *OrderLifecycle) Search(ctx context.Context, filter OrderFilter) (OrderPage, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return OrderPage{}, l.mapError(ValidationError("status", fmt.Sprintf("unknown order status %q", filter.Status)))
	}
	if filter.Type != "" && !filter.Type.Valid() {
		return OrderPage{}, l.mapError(ValidationError("type", fmt.Sprintf("unknown order type %q", filter.Type)))
	}
	if filter.MinBudget != nil && filter.MaxBudget != nil && *filter.MinBudget > *filter.MaxBudget {
		return OrderPage{}, l.mapError(ValidationError("min_budget", "must not exceed max_budget"))
	}
	filter.Page, filter.PerPage = normalizePage(filter.Page, filter.PerPage)
	filter.Query = strings.TrimSpace(filter.Query)
	page, err := l.orders.Search(ctx, filter)
	if err != nil {
		return OrderPage{}, l.mapError(err)
	}
	return page, nil
}

// FanOut notifies the contractors matching a published public order. It backs
// the fan-out job enqueued by Publish.
func (l *OrderLifecycle) FanOut(ctx context.Context, orderID string) (notified int, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"order_id": orderID}
	defer func() {
		fields["notified"] = notified
		l.observeOperation(ctx, startedAt, "order_fanout", err, fields)
	}()

	order, err := l.loadOrder(ctx, orderID)
	if err != nil {
		return 0, err
	}
	if order.Type != OrderTypePublic || order.Status != OrderStatusPublished {
		return 0, nil
	}
	if l.users == nil {
		err = fmt.Errorf("core: user directory is not configured")
		return 0, err
	}
	contractors, err := l.users.ListContractors(ctx, ContractorFilter{
		CategoryID:  order.CategoryID,
		City:        order.Location.City,
		CountryCode: order.Location.CountryCode,
		ExcludeIDs:  []string{order.ClientID},
		Limit:       l.config.Orders.FanoutLimit,
	})
	if err != nil {
		err = l.mapError(err)
		return 0, err
	}
	for _, contractor := range contractors {
		if contractor.ID == order.ClientID {
			continue
		}
		if l.notify(ctx, NotificationRequest{
			UserID:    contractor.ID,
			Type:      NotificationOrderStatusChanged,
			Title:     "New order available",
			Body:      fmt.Sprintf("A new order %q matches your profile.", order.Title),
			ActionURL: orderActionURL(order.ID),
			Metadata: map[string]any{
				"action":      ActionNewOrderAvailable,
				"order_id":    order.ID,
				"category_id": order.CategoryID,
			},
		}) {
			notified++
		}
	}
	return notified, nil
}

func (l *OrderLifecycle) canChangeStatus(order Order, callerID string) bool {
	if order.OwnedBy(callerID) || order.AssignedTo(callerID) {
		return true
	}
	callerID = strings.TrimSpace(callerID)
	return order.Type == OrderTypeDirect &&
		!order.HasContractor() &&
		callerID != "" &&
		order.DirectContractorID == callerID
}

func (l *OrderLifecycle) loadOrder(ctx context.Context, orderID string) (Order, error) {
	if err := requireIDs(map[string]string{"order_id": orderID}); err != nil {
		return Order{}, l.mapError(err)
	}
	order, err := l.orders.Get(ctx, strings.TrimSpace(orderID))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Order{}, NotFoundError("order", orderID)
		}
		return Order{}, l.mapError(err)
	}
	if order.DeletedAt != nil {
		return Order{}, NotFoundError("order", orderID)
	}
	return order, nil
}

func (l *OrderLifecycle) loadDraftForOwner(ctx context.Context, orderID string, clientID string, verb string) (Order, error) {
	current, err := l.loadOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if !current.OwnedBy(clientID) {
		return Order{}, ForbiddenError("only the owning client can modify an order")
	}
	if current.Status != OrderStatusDraft {
		return Order{}, InvalidStateError(fmt.Sprintf("order %s is %s, only draft orders can be %s", current.ID, current.Status, verb))
	}
	return current, nil
}

func (l *OrderLifecycle) requireCategory(ctx context.Context, categoryID string) error {
	if l.categories == nil {
		return fmt.Errorf("core: category directory is not configured")
	}
	category, err := l.categories.GetCategory(ctx, strings.TrimSpace(categoryID))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return NotFoundError("category", categoryID)
		}
		return l.mapError(err)
	}
	if !category.Active {
		return NotFoundError("category", categoryID)
	}
	return nil
}

func (l *OrderLifecycle) requireContractor(ctx context.Context, contractorID string) error {
	if l.users == nil {
		return fmt.Errorf("core: user directory is not configured")
	}
	user, err := l.users.GetUser(ctx, strings.TrimSpace(contractorID))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return NotFoundError("contractor", contractorID)
		}
		return l.mapError(err)
	}
	if user.Role != UserRoleContractor {
		return NotFoundError("contractor", contractorID)
	}
	return nil
}

func (l *OrderLifecycle) enqueueFanout(ctx context.Context, order Order) {
	if l.jobs == nil {
		l.logWarn(ctx, "fan-out job enqueuer is not configured", map[string]any{"order_id": order.ID})
		return
	}
	err := l.jobs.Enqueue(ctx, &JobExecutionMessage{
		JobID: l.config.Notifications.FanoutJobID,
		Parameters: map[string]any{
			JobParamOrderID:     order.ID,
			JobParamClientID:    order.ClientID,
			JobParamCategoryID:  order.CategoryID,
			JobParamCity:        order.Location.City,
			JobParamCountryCode: order.Location.CountryCode,
			JobParamTitle:       order.Title,
		},
		IdempotencyKey: "fanout:" + order.ID,
	})
	if err != nil {
		l.logError(ctx, "fan-out job enqueue failed", map[string]any{
			"order_id": order.ID,
			"error":    err.Error(),
		})
	}
}

// notify sends a notification and reports whether it was accepted. Failures
// are logged and never returned.
func (l *OrderLifecycle) notify(ctx context.Context, req NotificationRequest) bool {
	return l.operationRuntime.sendNotification(ctx, l.notifier, req)
}

func (r *operationRuntime) sendNotification(ctx context.Context, sender NotificationSender, req NotificationRequest) bool {
	if sender == nil || strings.TrimSpace(req.UserID) == "" {
		return false
	}
	if err := sender.Send(ctx, req); err != nil {
		r.logWarn(ctx, "notification send failed", map[string]any{
			"user_id":           req.UserID,
			"notification_type": string(req.Type),
			"error":             err.Error(),
		})
		return false
	}
	return true
}

func orderActionURL(orderID string) string {
	return "/orders/" + strings.TrimSpace(orderID)
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
