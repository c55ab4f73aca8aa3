package core

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	JobParamNotificationID   = "notification_id"
	JobParamNotificationType = "notification_type"
	JobParamChannel          = "channel"
	JobParamUserID           = "user_id"
	JobParamFallback         = "fallback"
)

// NotificationDispatcher persists notifications and fans them out to the
// resolved channels. Delivery trouble never fails Create once the row exists.
type NotificationDispatcher struct {
	*operationRuntime
	store    NotificationStore
	resolver *ChannelResolver
	realtime RealtimePublisher
	jobs     JobEnqueuer
}

func (d *NotificationDispatcher) Send(ctx context.Context, req NotificationRequest) error {
	_, err := d.Create(ctx, req)
	return err
}

func (d *NotificationDispatcher) Create(ctx context.Context, req NotificationRequest) (notification Notification, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"user_id":           req.UserID,
		"notification_type": string(req.Type),
	}
	defer func() {
		if notification.ID != "" {
			fields["notification_id"] = notification.ID
			fields["channels"] = channelNames(notification.Channels)
		}
		d.observeOperation(ctx, startedAt, "notification_create", err, fields)
	}()

	if d == nil || d.store == nil {
		err = fmt.Errorf("core: notification store is not configured")
		return Notification{}, err
	}
	if err = req.Validate(); err != nil {
		err = d.mapError(err)
		return Notification{}, err
	}
	cfg, _ := LookupNotificationType(req.Type)

	channels, err := d.resolver.Resolve(ctx, req.UserID, req.Type)
	if err != nil {
		err = d.mapError(err)
		return Notification{}, err
	}

	now := d.clock()
	expiresAt := now.Add(d.config.NotificationTTL(cfg.Priority))
	metadata := copyAnyMap(req.Metadata)
	metadata["template_key"] = cfg.TemplateKey

	notification, err = d.store.Create(ctx, Notification{
		UserID:    strings.TrimSpace(req.UserID),
		Type:      req.Type,
		Priority:  cfg.Priority,
		Title:     strings.TrimSpace(req.Title),
		Body:      strings.TrimSpace(req.Body),
		ActionURL: strings.TrimSpace(req.ActionURL),
		Metadata:  metadata,
		Channels:  channels,
		ExpiresAt: &expiresAt,
		CreatedAt: now,
	})
	if err != nil {
		err = d.mapError(err)
		return Notification{}, err
	}

	if notification.HasChannel(ChannelInApp) {
		if pushErr := d.pushInApp(ctx, notification); pushErr != nil {
			d.logWarn(ctx, "realtime delivery failed, falling back to queue", map[string]any{
				"notification_id": notification.ID,
				"user_id":         notification.UserID,
				"error":           pushErr.Error(),
			})
			d.recordCounter(ctx, "marketplace.notification.realtime_fallback.total", 1, map[string]string{
				"notification_type": string(notification.Type),
			})
			d.enqueueDelivery(ctx, notification, ChannelInApp, true)
		}
	}
	for _, channel := range []Channel{ChannelEmail, ChannelPush} {
		if notification.HasChannel(channel) {
			d.enqueueDelivery(ctx, notification, channel, false)
		}
	}
	return notification, nil
}

// pushInApp sends the notification and then the refreshed unread count, in
// that order. Only a failed send is returned; once the notification is out a
// failed count refresh is logged and never triggers the queued fallback. A
// panic inside the publisher's send is reported as an error.
func (d *NotificationDispatcher) pushInApp(ctx context.Context, notification Notification) error {
	if d.realtime == nil {
		return nil
	}
	if err := d.sendRealtime(ctx, notification); err != nil {
		return err
	}
	if markErr := d.store.MarkSent(ctx, notification.ID, d.clock()); markErr != nil {
		d.logWarn(ctx, "mark notification sent failed", map[string]any{
			"notification_id": notification.ID,
			"error":           markErr.Error(),
		})
	}
	d.refreshUnreadCount(ctx, d.store, d.realtime, notification.UserID)
	return nil
}

func (d *NotificationDispatcher) sendRealtime(ctx context.Context, notification Notification) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("core: realtime publisher panic: %v", recovered)
		}
	}()
	return d.realtime.SendToUser(ctx, notification.UserID, notification)
}

// refreshUnreadCount pushes the recipient's unread count. Failures are logged
// and counted only.
func (r *operationRuntime) refreshUnreadCount(ctx context.Context, store NotificationStore, publisher RealtimePublisher, userID string) {
	if publisher == nil || store == nil {
		return
	}
	err := func() (err error) {
		defer func() {
			if recovered := recover(); recovered != nil {
				err = fmt.Errorf("core: realtime publisher panic: %v", recovered)
			}
		}()
		count, err := store.CountUnread(ctx, userID)
		if err != nil {
			return err
		}
		return publisher.UpdateUnreadCount(ctx, userID, count)
	}()
	if err != nil {
		r.logWarn(ctx, "unread count refresh failed", map[string]any{
			"user_id": userID,
			"error":   err.Error(),
		})
		r.recordCounter(ctx, "marketplace.notification.unread_refresh_failed.total", 1, nil)
	}
}

func (d *NotificationDispatcher) enqueueDelivery(ctx context.Context, notification Notification, channel Channel, fallback bool) {
	if d.jobs == nil {
		d.logWarn(ctx, "notification job enqueuer is not configured", map[string]any{
			"notification_id": notification.ID,
			"channel":         string(channel),
		})
		return
	}
	msg := &JobExecutionMessage{
		JobID: d.config.Notifications.QueueJobID,
		Parameters: map[string]any{
			JobParamNotificationID:   notification.ID,
			JobParamNotificationType: string(notification.Type),
			JobParamChannel:          string(channel),
			JobParamUserID:           notification.UserID,
			JobParamFallback:         fallback,
		},
		IdempotencyKey: DeliveryIdempotencyKey(notification.ID, channel),
	}
	if err := d.jobs.Enqueue(ctx, msg); err != nil {
		d.logError(ctx, "notification job enqueue failed", map[string]any{
			"notification_id": notification.ID,
			"channel":         string(channel),
			"error":           err.Error(),
		})
		d.recordCounter(ctx, "marketplace.notification.enqueue_failed.total", 1, map[string]string{
			"channel": string(channel),
		})
		return
	}
	d.recordCounter(ctx, "marketplace.notification.enqueued.total", 1, map[string]string{
		"channel": string(channel),
	})
}

func (d *NotificationDispatcher) MarkRead(ctx context.Context, userID string, notificationID string) (err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"user_id": userID, "notification_id": notificationID}
	defer func() {
		d.observeOperation(ctx, startedAt, "notification_mark_read", err, fields)
	}()

	if err = requireIDs(map[string]string{"user_id": userID, "notification_id": notificationID}); err != nil {
		err = d.mapError(err)
		return err
	}
	found, err := d.store.MarkRead(ctx, strings.TrimSpace(userID), strings.TrimSpace(notificationID), d.clock())
	if err != nil {
		err = d.mapError(err)
		return err
	}
	if !found {
		err = NotFoundError("notification", notificationID)
		return err
	}
	d.pushUnreadCount(ctx, userID)
	return nil
}

func (d *NotificationDispatcher) MarkAllRead(ctx context.Context, userID string) (updated int, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"user_id": userID}
	defer func() {
		fields["updated"] = updated
		d.observeOperation(ctx, startedAt, "notification_mark_all_read", err, fields)
	}()

	if err = requireIDs(map[string]string{"user_id": userID}); err != nil {
		err = d.mapError(err)
		return 0, err
	}
	updated, err = d.store.MarkAllRead(ctx, strings.TrimSpace(userID), d.clock())
	if err != nil {
		err = d.mapError(err)
		return 0, err
	}
	d.pushUnreadCount(ctx, userID)
	return updated, nil
}

func (d *NotificationDispatcher) Delete(ctx context.Context, userID string, notificationID string) (err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"user_id": userID, "notification_id": notificationID}
	defer func() {
		d.observeOperation(ctx, startedAt, "notification_delete", err, fields)
	}()

	if err = requireIDs(map[string]string{"user_id": userID, "notification_id": notificationID}); err != nil {
		err = d.mapError(err)
		return err
	}
	found, err := d.store.Delete(ctx, strings.TrimSpace(userID), strings.TrimSpace(notificationID))
	if err != nil {
		err = d.mapError(err)
		return err
	}
	if !found {
		err = NotFoundError("notification", notificationID)
		return err
	}
	d.pushUnreadCount(ctx, userID)
	return nil
}

func (d *NotificationDispatcher) DeleteAll(ctx context.Context, userID string) (deleted int, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"user_id": userID}
	defer func() {
		fields["deleted"] = deleted
		d.observeOperation(ctx, startedAt, "notification_delete_all", err, fields)
	}()

	if err = requireIDs(map[string]string{"user_id": userID}); err != nil {
		err = d.mapError(err)
		return 0, err
	}
	deleted, err = d.store.DeleteAll(ctx, strings.TrimSpace(userID))
	if err != nil {
		err = d.mapError(err)
		return 0, err
	}
	d.pushUnreadCount(ctx, userID)
	return deleted, nil
}

func (d *NotificationDispatcher) UnreadCount(ctx context.Context, userID string) (int, error) {
	if err := requireIDs(map[string]string{"user_id": userID}); err != nil {
		return 0, d.mapError(err)
	}
	count, err := d.store.CountUnread(ctx, strings.TrimSpace(userID))
	if err != nil {
		return 0, d.mapError(err)
	}
	return count, nil
}

func (d *NotificationDispatcher) List(ctx context.Context, userID string, filter NotificationFilter) (NotificationPage, error) {
	if err := requireIDs(map[string]string{"user_id": userID}); err != nil {
		return NotificationPage{}, d.mapError(err)
	}
	filter.Page, filter.PerPage = normalizePage(filter.Page, filter.PerPage)
	page, err := d.store.List(ctx, strings.TrimSpace(userID), filter)
	if err != nil {
		return NotificationPage{}, d.mapError(err)
	}
	return page, nil
}

// CleanupExpired deletes notifications whose expiry has passed.
func (d *NotificationDispatcher) CleanupExpired(ctx context.Context) (deleted int, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{}
	defer func() {
		fields["deleted"] = deleted
		d.observeOperation(ctx, startedAt, "notification_cleanup_expired", err, fields)
	}()

	deleted, err = d.store.DeleteExpired(ctx, d.clock())
	if err != nil {
		err = d.mapError(err)
		return 0, err
	}
	return deleted, nil
}

func (d *NotificationDispatcher) pushUnreadCount(ctx context.Context, userID string) {
	if d.realtime == nil {
		return
	}
	userID = strings.TrimSpace(userID)
	count, err := d.store.CountUnread(ctx, userID)
	if err == nil {
		err = d.realtime.UpdateUnreadCount(ctx, userID, count)
	}
	if err != nil {
		d.logWarn(ctx, "unread count push failed", map[string]any{
			"user_id": userID,
			"error":   err.Error(),
		})
	}
}

// DeliveryIdempotencyKey identifies one delivery of a notification over one
// channel.
func DeliveryIdempotencyKey(notificationID string, channel Channel) string {
	return strings.TrimSpace(notificationID) + ":" + string(channel)
}

func requireIDs(values map[string]string) error {
	for _, key := range []string{"user_id", "notification_id", "order_id", "proposal_id", "client_id", "contractor_id", "caller_id"} {
		value, ok := values[key]
		if !ok {
			continue
		}
		if strings.TrimSpace(value) == "" {
			return ValidationError(key, "is required")
		}
	}
	return nil
}

func channelNames(channels []Channel) []string {
	out := make([]string, 0, len(channels))
	for _, channel := range channels {
		out = append(out, string(channel))
	}
	return out
}
