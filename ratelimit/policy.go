package ratelimit

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-marketplace/core"
)

// Policy allows Limit events per Window for each key.
type Policy struct {
	Limit  int
	Window time.Duration
}

func DefaultPolicy() Policy {
	return Policy{Limit: 100, Window: time.Minute}
}

// PolicyFromConfig derives the mark-read policy from the service config.
func PolicyFromConfig(cfg core.Config) Policy {
	policy := DefaultPolicy()
	if cfg.Realtime.MarkReadLimit > 0 {
		policy.Limit = cfg.Realtime.MarkReadLimit
	}
	if window := cfg.MarkReadWindow(); window > 0 {
		policy.Window = window
	}
	return policy
}

func (p Policy) normalized() Policy {
	defaults := DefaultPolicy()
	if p.Limit <= 0 {
		p.Limit = defaults.Limit
	}
	if p.Window <= 0 {
		p.Window = defaults.Window
	}
	return p
}

type ThrottledError struct {
	Key        string
	Limit      int
	Window     time.Duration
	RetryAfter time.Duration
}

func (e ThrottledError) Error() string {
	return fmt.Sprintf(
		"ratelimit: key %q exceeded %d events per %s, retry after %s",
		strings.TrimSpace(e.Key),
		e.Limit,
		e.Window,
		e.RetryAfter,
	)
}

func (e ThrottledError) ToServiceError() *goerrors.Error {
	metadata := map[string]any{
		"key":       strings.TrimSpace(e.Key),
		"limit":     e.Limit,
		"window_ms": e.Window.Milliseconds(),
	}
	if e.RetryAfter > 0 {
		metadata["retry_after_ms"] = e.RetryAfter.Milliseconds()
	}
	return goerrors.New(e.Error(), goerrors.CategoryRateLimit).
		WithCode(http.StatusTooManyRequests).
		WithTextCode(core.MarketplaceErrorRateLimited).
		WithMetadata(metadata)
}

// KeyedLimiter enforces a sliding window per key: at most Limit accepted
// events in any span of Window. Each key keeps a ring of its last Limit
// accepted event times; rejected events are not recorded.
type KeyedLimiter struct {
	policy Policy
	Now    func() time.Time

	mu      sync.Mutex
	windows map[string]*eventWindow
}

type eventWindow struct {
	times []time.Time
	next  int
}

func NewKeyedLimiter(policy Policy) *KeyedLimiter {
	return &KeyedLimiter{
		policy:  policy.normalized(),
		Now:     func() time.Time { return time.Now().UTC() },
		windows: map[string]*eventWindow{},
	}
}

func (l *KeyedLimiter) Policy() Policy {
	if l == nil {
		return DefaultPolicy()
	}
	return l.policy
}

// Allow records one event for key or returns a ThrottledError whose
// RetryAfter is the time until the oldest event in the window expires.
func (l *KeyedLimiter) Allow(key string) error {
	if l == nil {
		return nil
	}
	key = strings.TrimSpace(key)
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	window, ok := l.windows[key]
	if !ok {
		window = &eventWindow{times: make([]time.Time, 0, l.policy.Limit)}
		l.windows[key] = window
	}
	if len(window.times) < l.policy.Limit {
		window.times = append(window.times, now)
		return nil
	}
	oldest := window.times[window.next]
	if elapsed := now.Sub(oldest); elapsed < l.policy.Window {
		return ThrottledError{
			Key:        key,
			Limit:      l.policy.Limit,
			Window:     l.policy.Window,
			RetryAfter: l.policy.Window - elapsed,
		}
	}
	window.times[window.next] = now
	window.next = (window.next + 1) % l.policy.Limit
	return nil
}

// Forget drops the window for key, typically when a connection closes.
func (l *KeyedLimiter) Forget(key string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, strings.TrimSpace(key))
}

func (l *KeyedLimiter) Len() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

func (l *KeyedLimiter) now() time.Time {
	if l != nil && l.Now != nil {
		return l.Now().UTC()
	}
	return time.Now().UTC()
}
