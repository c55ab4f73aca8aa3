package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNoJobs is returned by dequeuers when nothing is ready for delivery.
var ErrNoJobs = errors.New("core: no jobs available")

var errPermanentDelivery = errors.New("core: permanent delivery failure")

const (
	DispatchStatusSkipped = "skipped"

	defaultWorkerIdleDelay      = 500 * time.Millisecond
	defaultWorkerInitialBackoff = 2 * time.Second
)

// AttemptedDelivery is implemented by deliveries that track how many times
// they have been handed out.
type AttemptedDelivery interface {
	Attempt() int
}

type DeliveryWorkerDependencies struct {
	Queue  JobDequeuer
	Email  EmailSender
	Push   PushSender
	Ledger DispatchLedger
	Hook   JobWorkerHook
}

// DeliveryWorker consumes notification delivery and order fan-out jobs.
type DeliveryWorker struct {
	*operationRuntime
	queue         JobDequeuer
	notifications NotificationStore
	users         UserDirectory
	realtime      RealtimePublisher
	email         EmailSender
	push          PushSender
	ledger        DispatchLedger
	hook          JobWorkerHook
	fanout        func(ctx context.Context, orderID string) (int, error)
	idleDelay     time.Duration
}

// ProcessNext handles at most one job and reports whether one was found.
func (w *DeliveryWorker) ProcessNext(ctx context.Context) (bool, error) {
	if w == nil || w.queue == nil {
		return false, fmt.Errorf("core: delivery worker queue is not configured")
	}
	delivery, err := w.queue.Dequeue(ctx)
	if err != nil {
		if errors.Is(err, ErrNoJobs) {
			return false, nil
		}
		return false, err
	}
	if delivery == nil {
		return false, nil
	}
	return true, w.handle(ctx, delivery)
}

// Run processes jobs until the context is cancelled.
func (w *DeliveryWorker) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		found, err := w.ProcessNext(ctx)
		if err != nil {
			w.logWarn(ctx, "delivery worker iteration failed", map[string]any{"error": err.Error()})
		}
		if found && err == nil {
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(w.idleDelay):
		}
	}
}

func (w *DeliveryWorker) handle(ctx context.Context, delivery JobDelivery) error {
	msg := delivery.Message()
	if msg == nil {
		return delivery.Nack(ctx, JobNackOptions{DeadLetter: true, Reason: "missing execution message"})
	}
	attempt := 1
	if attempted, ok := delivery.(AttemptedDelivery); ok && attempted.Attempt() > 0 {
		attempt = attempted.Attempt()
	}
	startedAt := time.Now().UTC()
	event := JobWorkerEvent{Message: msg, Attempt: attempt, StartedAt: startedAt}
	w.hookStart(ctx, event)

	var err error
	switch strings.TrimSpace(msg.JobID) {
	case w.config.Notifications.QueueJobID:
		err = w.deliverNotification(ctx, msg)
	case w.config.Notifications.FanoutJobID:
		err = w.runFanout(ctx, msg)
	default:
		err = fmt.Errorf("%w: unknown job %q", errPermanentDelivery, msg.JobID)
	}
	event.Duration = time.Since(startedAt)

	if err == nil {
		w.hookSuccess(ctx, event)
		return delivery.Ack(ctx)
	}

	event.Err = err
	if errors.Is(err, errPermanentDelivery) || attempt >= w.config.Worker.MaxAttempts {
		w.hookFailure(ctx, event)
		return delivery.Nack(ctx, JobNackOptions{DeadLetter: true, Reason: err.Error()})
	}
	event.Delay = backoffDelay(defaultWorkerInitialBackoff, w.config.WorkerMaxDelay(), attempt)
	w.hookRetry(ctx, event)
	return delivery.Nack(ctx, JobNackOptions{Delay: event.Delay, Requeue: true, Reason: err.Error()})
}

func (w *DeliveryWorker) deliverNotification(ctx context.Context, msg *JobExecutionMessage) (err error) {
	startedAt := time.Now().UTC()
	notificationID := payloadString(msg.Parameters, JobParamNotificationID)
	channel := Channel(payloadString(msg.Parameters, JobParamChannel))
	fields := map[string]any{
		"notification_id":   notificationID,
		"channel":           string(channel),
		"notification_type": payloadString(msg.Parameters, JobParamNotificationType),
	}
	defer func() {
		w.observeOperation(ctx, startedAt, "notification_deliver", err, fields)
	}()

	if notificationID == "" || !channel.Valid() {
		err = fmt.Errorf("%w: malformed delivery job", errPermanentDelivery)
		return err
	}
	notification, err := w.notifications.Get(ctx, notificationID)
	if err != nil {
		if errors.Is(err, ErrNotFound) || IsNotFound(err) {
			fields["outcome"] = "gone"
			return nil
		}
		return err
	}
	if notification.ExpiresAt != nil && !notification.ExpiresAt.After(w.clock()) {
		fields["outcome"] = "expired"
		return nil
	}

	key := DispatchKey(notification.ID, string(channel))
	if w.ledger != nil {
		claimed, claimErr := w.ledger.Claim(ctx, DispatchRecord{
			IdempotencyKey: key,
			NotificationID: notification.ID,
			Channel:        channel,
			RecipientKey:   notification.UserID,
			Status:         DispatchStatusClaimed,
		})
		if claimErr != nil {
			err = claimErr
			return err
		}
		if !claimed {
			fields["outcome"] = "duplicate"
			return nil
		}
	}

	status, sendErr := w.send(ctx, notification, channel)
	if sendErr != nil {
		if w.ledger != nil {
			if releaseErr := w.ledger.Release(ctx, key); releaseErr != nil {
				sendErr = joinErrors(sendErr, releaseErr)
			}
		}
		err = sendErr
		return err
	}
	fields["outcome"] = status
	if w.ledger != nil {
		if completeErr := w.ledger.Complete(ctx, key, status, ""); completeErr != nil {
			w.logWarn(ctx, "dispatch ledger completion failed", map[string]any{
				"notification_id": notification.ID,
				"channel":         string(channel),
				"error":           completeErr.Error(),
			})
		}
	}
	if status == DispatchStatusDelivered {
		if markErr := w.notifications.MarkSent(ctx, notification.ID, w.clock()); markErr != nil {
			w.logWarn(ctx, "mark notification sent failed", map[string]any{
				"notification_id": notification.ID,
				"error":           markErr.Error(),
			})
		}
	}
	return nil
}

func (w *DeliveryWorker) send(ctx context.Context, notification Notification, channel Channel) (string, error) {
	switch channel {
	case ChannelInApp:
		if w.realtime == nil {
			return DispatchStatusSkipped, nil
		}
		if err := w.realtime.SendToUser(ctx, notification.UserID, notification); err != nil {
			return "", err
		}
		// Delivered from here on: the ledger entry completes even when the
		// badge refresh fails.
		w.refreshUnreadCount(ctx, w.notifications, w.realtime, notification.UserID)
		return DispatchStatusDelivered, nil
	case ChannelEmail:
		if w.email == nil {
			return DispatchStatusSkipped, nil
		}
		user, err := w.recipient(ctx, notification.UserID)
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(user.Email) == "" {
			return DispatchStatusSkipped, nil
		}
		cfg, _ := LookupNotificationType(notification.Type)
		err = w.email.SendEmail(ctx, EmailMessage{
			To:          user.Email,
			ToName:      user.Name,
			Subject:     notification.Title,
			Body:        notification.Body,
			ActionURL:   notification.ActionURL,
			TemplateKey: cfg.TemplateKey,
			Metadata:    copyAnyMap(notification.Metadata),
		})
		if err != nil {
			return "", err
		}
		return DispatchStatusDelivered, nil
	case ChannelPush:
		if w.push == nil {
			return DispatchStatusSkipped, nil
		}
		user, err := w.recipient(ctx, notification.UserID)
		if err != nil {
			return "", err
		}
		if len(user.DeviceTokens) == 0 {
			return DispatchStatusSkipped, nil
		}
		err = w.push.SendPush(ctx, PushMessage{
			UserID:       notification.UserID,
			DeviceTokens: append([]string(nil), user.DeviceTokens...),
			Title:        notification.Title,
			Body:         notification.Body,
			Priority:     notification.Priority,
			Data: map[string]string{
				"notification_id": notification.ID,
				"type":            string(notification.Type),
				"action_url":      notification.ActionURL,
			},
		})
		if err != nil {
			return "", err
		}
		return DispatchStatusDelivered, nil
	}
	return "", fmt.Errorf("%w: unsupported channel %q", errPermanentDelivery, channel)
}

func (w *DeliveryWorker) recipient(ctx context.Context, userID string) (User, error) {
	if w.users == nil {
		return User{}, fmt.Errorf("%w: user directory is not configured", errPermanentDelivery)
	}
	user, err := w.users.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) || IsNotFound(err) {
			return User{}, fmt.Errorf("%w: recipient %q not found", errPermanentDelivery, userID)
		}
		return User{}, err
	}
	return user, nil
}

func (w *DeliveryWorker) runFanout(ctx context.Context, msg *JobExecutionMessage) error {
	orderID := payloadString(msg.Parameters, JobParamOrderID)
	if orderID == "" {
		return fmt.Errorf("%w: fan-out job without order id", errPermanentDelivery)
	}
	if w.fanout == nil {
		return fmt.Errorf("%w: fan-out is not configured", errPermanentDelivery)
	}
	_, err := w.fanout(ctx, orderID)
	if err != nil && (errors.Is(err, ErrNotFound) || IsNotFound(err)) {
		return nil
	}
	return err
}

func (w *DeliveryWorker) hookStart(ctx context.Context, event JobWorkerEvent) {
	if w.hook != nil {
		w.hook.OnStart(ctx, event)
	}
}

func (w *DeliveryWorker) hookSuccess(ctx context.Context, event JobWorkerEvent) {
	if w.hook != nil {
		w.hook.OnSuccess(ctx, event)
	}
}

func (w *DeliveryWorker) hookFailure(ctx context.Context, event JobWorkerEvent) {
	if w.hook != nil {
		w.hook.OnFailure(ctx, event)
	}
}

func (w *DeliveryWorker) hookRetry(ctx context.Context, event JobWorkerEvent) {
	if w.hook != nil {
		w.hook.OnRetry(ctx, event)
	}
}

// RunCleanupLoop sweeps expired notifications every interval until ctx ends.
func RunCleanupLoop(ctx context.Context, dispatcher *NotificationDispatcher, interval time.Duration) {
	if dispatcher == nil {
		return
	}
	if interval <= 0 {
		interval = dispatcher.config.CleanupInterval()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = dispatcher.CleanupExpired(ctx)
		}
	}
}
