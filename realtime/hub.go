package realtime

import (
	"context"
	"strings"
	"sync"

	"github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-marketplace/core"
	"github.com/google/uuid"
)

const defaultSendBuffer = 32

type session struct {
	id     string
	userID string
	send   chan Event
	done   chan struct{}
	once   sync.Once
}

// enqueue never blocks; a full buffer drops the event.
func (s *session) enqueue(event Event) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- event:
		return true
	default:
		return false
	}
}

func (s *session) close() {
	s.once.Do(func() { close(s.done) })
}

// Hub tracks live sessions per user and fans events out to every session of
// a user. It implements core.RealtimePublisher.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]map[string]*session
	buffer   int
	logger   core.Logger
	metrics  core.MetricsRecorder
}

type HubOption func(*Hub)

func WithSendBuffer(size int) HubOption {
	return func(h *Hub) {
		if size > 0 {
			h.buffer = size
		}
	}
}

func WithHubLogger(logger core.Logger) HubOption {
	return func(h *Hub) {
		if logger != nil {
			h.logger = logger
		}
	}
}

func WithHubMetrics(recorder core.MetricsRecorder) HubOption {
	return func(h *Hub) {
		if recorder != nil {
			h.metrics = recorder
		}
	}
}

func NewHub(opts ...HubOption) *Hub {
	hub := &Hub{
		sessions: map[string]map[string]*session{},
		buffer:   defaultSendBuffer,
		logger:   glog.Nop(),
		metrics:  core.NopMetricsRecorder{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(hub)
		}
	}
	return hub
}

func (h *Hub) register(userID string) *session {
	sess := &session{
		id:     uuid.NewString(),
		userID: strings.TrimSpace(userID),
		send:   make(chan Event, h.buffer),
		done:   make(chan struct{}),
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	group, ok := h.sessions[sess.userID]
	if !ok {
		group = map[string]*session{}
		h.sessions[sess.userID] = group
	}
	group[sess.id] = sess
	return sess
}

func (h *Hub) unregister(sess *session) {
	if sess == nil {
		return
	}
	h.mu.Lock()
	if group, ok := h.sessions[sess.userID]; ok {
		delete(group, sess.id)
		if len(group) == 0 {
			delete(h.sessions, sess.userID)
		}
	}
	h.mu.Unlock()
	sess.close()
}

func (h *Hub) SendToUser(ctx context.Context, userID string, notification core.Notification) error {
	h.broadcast(ctx, userID, notificationEvent(notification))
	return nil
}

func (h *Hub) UpdateUnreadCount(ctx context.Context, userID string, count int) error {
	h.broadcast(ctx, userID, unreadCountEvent(count))
	return nil
}

// SessionCount reports how many live sessions a user has.
func (h *Hub) SessionCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[strings.TrimSpace(userID)])
}

// Close ends every session.
func (h *Hub) Close() {
	h.mu.Lock()
	sessions := h.sessions
	h.sessions = map[string]map[string]*session{}
	h.mu.Unlock()
	for _, group := range sessions {
		for _, sess := range group {
			sess.close()
		}
	}
}

func (h *Hub) broadcast(ctx context.Context, userID string, event Event) int {
	userID = strings.TrimSpace(userID)
	h.mu.RLock()
	targets := make([]*session, 0, len(h.sessions[userID]))
	for _, sess := range h.sessions[userID] {
		targets = append(targets, sess)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, sess := range targets {
		if sess.enqueue(event) {
			delivered++
			continue
		}
		h.metrics.IncCounter(ctx, "marketplace.realtime.dropped.total", 1, map[string]string{"event": event.Type})
		h.logger.Warn("realtime event dropped", "user_id", userID, "session_id", sess.id, "event", event.Type)
	}
	return delivered
}
