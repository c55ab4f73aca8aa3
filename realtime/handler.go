package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-marketplace/core"
	"github.com/goliatone/go-marketplace/ratelimit"
	"github.com/gorilla/websocket"
)

const (
	defaultWriteWait      = 10 * time.Second
	defaultPongWait       = 60 * time.Second
	defaultMaxMessageSize = 4096
)

// NotificationService is the slice of the notification dispatcher the
// handler needs.
type NotificationService interface {
	UnreadCount(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, userID string, notificationID string) error
}

// Handler upgrades authenticated requests to websocket sessions on a Hub.
type Handler struct {
	hub           *Hub
	verifier      TokenVerifier
	notifications NotificationService
	limiter       *ratelimit.KeyedLimiter
	upgrader      websocket.Upgrader
	logger        core.Logger
	writeWait     time.Duration
	pongWait      time.Duration
}

type HandlerOption func(*Handler)

func WithHandlerLogger(logger core.Logger) HandlerOption {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

func WithCheckOrigin(check func(r *http.Request) bool) HandlerOption {
	return func(h *Handler) {
		h.upgrader.CheckOrigin = check
	}
}

func WithPongWait(wait time.Duration) HandlerOption {
	return func(h *Handler) {
		if wait > 0 {
			h.pongWait = wait
		}
	}
}

func NewHandler(
	hub *Hub,
	verifier TokenVerifier,
	notifications NotificationService,
	limiter *ratelimit.KeyedLimiter,
	opts ...HandlerOption,
) (*Handler, error) {
	if hub == nil {
		return nil, fmt.Errorf("realtime: hub is required")
	}
	if verifier == nil {
		return nil, fmt.Errorf("realtime: token verifier is required")
	}
	if notifications == nil {
		return nil, fmt.Errorf("realtime: notification service is required")
	}
	if limiter == nil {
		limiter = ratelimit.NewKeyedLimiter(ratelimit.DefaultPolicy())
	}
	handler := &Handler{
		hub:           hub,
		verifier:      verifier,
		notifications: notifications,
		limiter:       limiter,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger:    glog.Nop(),
		writeWait: defaultWriteWait,
		pongWait:  defaultPongWait,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(handler)
		}
	}
	return handler, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := ExtractBearerToken(r)
	if token == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	userID, err := h.verifier.Verify(r.Context(), token)
	if err != nil || strings.TrimSpace(userID) == "" {
		h.logger.Warn("realtime authentication failed", "error", errString(err))
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("realtime upgrade failed", "user_id", userID, "error", err.Error())
		return
	}

	sess := h.hub.register(userID)
	ctx := context.WithoutCancel(r.Context())
	h.logger.Info("realtime session opened", "user_id", userID, "session_id", sess.id)
	defer func() {
		h.hub.unregister(sess)
		h.limiter.Forget(sess.id)
		_ = conn.Close()
		h.logger.Info("realtime session closed", "user_id", userID, "session_id", sess.id)
	}()

	go h.writeLoop(conn, sess)

	count, err := h.notifications.UnreadCount(ctx, userID)
	if err != nil {
		h.logger.Warn("realtime initial unread count failed", "user_id", userID, "error", err.Error())
	} else {
		sess.enqueue(unreadCountEvent(count))
	}

	h.readLoop(ctx, conn, sess)
}

func (h *Handler) readLoop(ctx context.Context, conn *websocket.Conn, sess *session) {
	conn.SetReadLimit(defaultMaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(h.pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.pongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("realtime read failed", "session_id", sess.id, "error", err.Error())
			}
			return
		}
		var event ClientEvent
		if err := json.Unmarshal(raw, &event); err != nil {
			sess.enqueue(errorEvent(ErrorCodeBadRequest, "malformed event"))
			continue
		}
		h.handleClientEvent(ctx, sess, event)
	}
}

func (h *Handler) handleClientEvent(ctx context.Context, sess *session, event ClientEvent) {
	switch strings.TrimSpace(event.Type) {
	case ClientEventMarkRead:
		if err := h.limiter.Allow(sess.id); err != nil {
			var throttled ratelimit.ThrottledError
			message := "too many mark_read events"
			if errors.As(err, &throttled) {
				message = fmt.Sprintf("too many mark_read events, retry in %s", throttled.RetryAfter.Round(time.Second))
			}
			sess.enqueue(errorEvent(ErrorCodeRateLimited, message))
			return
		}
		notificationID := strings.TrimSpace(event.NotificationID)
		if notificationID == "" {
			sess.enqueue(errorEvent(ErrorCodeBadRequest, "notification_id is required"))
			return
		}
		if err := h.notifications.MarkRead(ctx, sess.userID, notificationID); err != nil {
			mapped := core.MapError(err)
			sess.enqueue(errorEvent(mapped.TextCode, mapped.Message))
		}
	default:
		sess.enqueue(errorEvent(ErrorCodeBadRequest, fmt.Sprintf("unknown event type %q", event.Type)))
	}
}

func (h *Handler) writeLoop(conn *websocket.Conn, sess *session) {
	ticker := time.NewTicker(h.pingPeriod())
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()
	for {
		select {
		case event := <-sess.send:
			_ = conn.SetWriteDeadline(time.Now().Add(h.writeWait))
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.writeWait)); err != nil {
				return
			}
		case <-sess.done:
			_ = conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(h.writeWait),
			)
			return
		}
	}
}

func (h *Handler) pingPeriod() time.Duration {
	return (h.pongWait * 9) / 10
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
