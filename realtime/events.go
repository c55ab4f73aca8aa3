package realtime

import (
	"time"

	"github.com/goliatone/go-marketplace/core"
)

const (
	EventNotification = "notification"
	EventUnreadCount  = "unread_count"
	EventError        = "error"

	ClientEventMarkRead = "mark_read"

	ErrorCodeRateLimited  = "RATE_LIMITED"
	ErrorCodeBadRequest   = "BAD_REQUEST"
	ErrorCodeMarkReadFail = "MARK_READ_FAILED"
)

// Event is the server-to-client frame.
type Event struct {
	Type         string               `json:"type"`
	Notification *NotificationPayload `json:"notification,omitempty"`
	Count        *int                 `json:"count,omitempty"`
	Code         string               `json:"code,omitempty"`
	Message      string               `json:"message,omitempty"`
}

type NotificationPayload struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Priority  string         `json:"priority"`
	Title     string         `json:"title"`
	Body      string         `json:"body,omitempty"`
	ActionURL string         `json:"action_url,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Read      bool           `json:"read"`
	CreatedAt time.Time      `json:"created_at"`
}

// ClientEvent is the client-to-server frame.
type ClientEvent struct {
	Type           string `json:"type"`
	NotificationID string `json:"notification_id,omitempty"`
}

func notificationEvent(notification core.Notification) Event {
	return Event{
		Type: EventNotification,
		Notification: &NotificationPayload{
			ID:        notification.ID,
			Type:      string(notification.Type),
			Priority:  string(notification.Priority),
			Title:     notification.Title,
			Body:      notification.Body,
			ActionURL: notification.ActionURL,
			Metadata:  notification.Metadata,
			Read:      notification.Read,
			CreatedAt: notification.CreatedAt,
		},
	}
}

func unreadCountEvent(count int) Event {
	if count < 0 {
		count = 0
	}
	return Event{Type: EventUnreadCount, Count: &count}
}

func errorEvent(code string, message string) Event {
	return Event{Type: EventError, Code: code, Message: message}
}
