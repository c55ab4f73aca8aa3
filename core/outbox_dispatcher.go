package core

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"
)

const MetadataKeyOutboxAttempts = "_outbox_attempts"

type OutboxDispatcherConfig struct {
	BatchSize      int
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	PollInterval   time.Duration
}

func DefaultOutboxDispatcherConfig() OutboxDispatcherConfig {
	return OutboxDispatcherConfig{
		BatchSize:      50,
		MaxAttempts:    5,
		InitialBackoff: 2 * time.Second,
		MaxBackoff:     5 * time.Minute,
		PollInterval:   time.Second,
	}
}

// OutboxDispatcherConfigFrom derives dispatcher settings from the service config.
func OutboxDispatcherConfigFrom(cfg Config) OutboxDispatcherConfig {
	out := DefaultOutboxDispatcherConfig()
	if cfg.Outbox.BatchSize > 0 {
		out.BatchSize = cfg.Outbox.BatchSize
	}
	if cfg.Outbox.MaxAttempts > 0 {
		out.MaxAttempts = cfg.Outbox.MaxAttempts
	}
	return out
}

// OutboxHandlerRegistry routes outbox events to handlers by event name.
type OutboxHandlerRegistry struct {
	mu       sync.RWMutex
	handlers map[string][]OutboxHandler
}

func NewOutboxHandlerRegistry() *OutboxHandlerRegistry {
	return &OutboxHandlerRegistry{handlers: map[string][]OutboxHandler{}}
}

func (r *OutboxHandlerRegistry) Register(eventName string, handler OutboxHandler) {
	if r == nil || handler == nil {
		return
	}
	eventName = strings.TrimSpace(eventName)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[eventName] = append(r.handlers[eventName], handler)
}

func (r *OutboxHandlerRegistry) Handlers(eventName string) []OutboxHandler {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]OutboxHandler(nil), r.handlers[strings.TrimSpace(eventName)]...)
}

type OutboxDispatcher struct {
	store    OutboxStore
	registry *OutboxHandlerRegistry
	config   OutboxDispatcherConfig
	logger   Logger
	now      func() time.Time
}

func NewOutboxDispatcher(
	store OutboxStore,
	registry *OutboxHandlerRegistry,
	config OutboxDispatcherConfig,
	logger Logger,
) (*OutboxDispatcher, error) {
	if store == nil {
		return nil, fmt.Errorf("core: outbox store is required")
	}
	defaults := DefaultOutboxDispatcherConfig()
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = defaults.InitialBackoff
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = defaults.MaxBackoff
	}
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if registry == nil {
		registry = NewOutboxHandlerRegistry()
	}
	return &OutboxDispatcher{
		store:    store,
		registry: registry,
		config:   config,
		logger:   logger,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

func (d *OutboxDispatcher) DispatchPending(ctx context.Context, batchSize int) (DispatchStats, error) {
	if d == nil || d.store == nil {
		return DispatchStats{}, fmt.Errorf("core: outbox dispatcher is not configured")
	}
	limit := batchSize
	if limit <= 0 {
		limit = d.config.BatchSize
	}
	events, err := d.store.ClaimBatch(ctx, limit)
	if err != nil {
		return DispatchStats{}, err
	}

	stats := DispatchStats{Claimed: len(events)}
	var dispatchErr error
	for _, event := range events {
		if err := d.dispatchOne(ctx, event); err != nil {
			if retryErr := d.retryEvent(ctx, event, err); retryErr != nil {
				dispatchErr = joinErrors(dispatchErr, retryErr)
			}
			if nextAttemptIndex(event)+1 >= d.config.MaxAttempts {
				stats.Failed++
			} else {
				stats.Retried++
			}
			dispatchErr = joinErrors(dispatchErr, err)
			continue
		}
		if err := d.store.Ack(ctx, strings.TrimSpace(event.ID)); err != nil {
			dispatchErr = joinErrors(dispatchErr, err)
			continue
		}
		stats.Delivered++
	}

	return stats, dispatchErr
}

// Run polls the outbox until the context is cancelled.
func (d *OutboxDispatcher) Run(ctx context.Context) error {
	if d == nil {
		return fmt.Errorf("core: outbox dispatcher is not configured")
	}
	ticker := time.NewTicker(d.config.PollInterval)
	defer ticker.Stop()
	for {
		stats, err := d.DispatchPending(ctx, 0)
		if err != nil && d.logger != nil {
			logWithLevel(ctx, d.logger, "warn", "outbox dispatch failed", map[string]any{
				"claimed":   stats.Claimed,
				"delivered": stats.Delivered,
				"retried":   stats.Retried,
				"failed":    stats.Failed,
				"error":     err.Error(),
			})
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (d *OutboxDispatcher) dispatchOne(ctx context.Context, event OutboxEvent) error {
	for i, handler := range d.registry.Handlers(event.Name) {
		if handler == nil {
			continue
		}
		if err := handler.Handle(ctx, event); err != nil {
			return fmt.Errorf("core: outbox handler %d failed for event %q: %w", i, event.ID, err)
		}
	}
	return nil
}

func (d *OutboxDispatcher) retryEvent(ctx context.Context, event OutboxEvent, cause error) error {
	attempt := nextAttemptIndex(event)
	if attempt+1 >= d.config.MaxAttempts {
		return d.store.Retry(ctx, strings.TrimSpace(event.ID), cause, time.Time{})
	}
	nextAttemptAt := d.now().Add(backoffDelay(d.config.InitialBackoff, d.config.MaxBackoff, attempt+1))
	return d.store.Retry(ctx, strings.TrimSpace(event.ID), cause, nextAttemptAt)
}

func backoffDelay(initial time.Duration, max time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	multiplier := math.Pow(2, float64(attempt-1))
	next := time.Duration(float64(initial) * multiplier)
	if next < 0 || next > max {
		return max
	}
	return next
}

func nextAttemptIndex(event OutboxEvent) int {
	if len(event.Metadata) == 0 {
		return 0
	}
	raw, ok := event.Metadata[MetadataKeyOutboxAttempts]
	if !ok {
		return 0
	}
	switch typed := raw.(type) {
	case int:
		if typed < 0 {
			return 0
		}
		return typed
	case int64:
		if typed < 0 {
			return 0
		}
		return int(typed)
	case float64:
		if typed < 0 {
			return 0
		}
		return int(typed)
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(typed))
		if err == nil && parsed >= 0 {
			return parsed
		}
	}
	return 0
}

func joinErrors(existing error, next error) error {
	if existing == nil {
		return next
	}
	if next == nil {
		return existing
	}
	return fmt.Errorf("%w; %v", existing, next)
}
