package sqlstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-marketplace/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

type stubPreferenceStore struct {
	mu          sync.Mutex
	prefs       map[string]core.NotificationPreferences
	getCalls    int
	upsertCalls int
	upsertErr   error
}

func (s *stubPreferenceStore) Get(_ context.Context, userID string) (core.NotificationPreferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getCalls++
	prefs, ok := s.prefs[userID]
	if !ok {
		return core.NotificationPreferences{}, core.ErrNotFound
	}
	return prefs, nil
}

func (s *stubPreferenceStore) Upsert(_ context.Context, prefs core.NotificationPreferences) (core.NotificationPreferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertCalls++
	if s.upsertErr != nil {
		return core.NotificationPreferences{}, s.upsertErr
	}
	if s.prefs == nil {
		s.prefs = map[string]core.NotificationPreferences{}
	}
	s.prefs[prefs.UserID] = prefs
	return prefs, nil
}

func TestCachedPreferenceStore_Get_MissFetchThenHit(t *testing.T) {
	base := &stubPreferenceStore{prefs: map[string]core.NotificationPreferences{
		"user-1": core.DefaultNotificationPreferences("user-1"),
	}}
	store, err := NewCachedPreferenceStore(base, newTestPreferenceCacheService(t))
	if err != nil {
		t.Fatalf("new cached preference store: %v", err)
	}

	if _, err := store.Get(context.Background(), "user-1"); err != nil {
		t.Fatalf("first get: %v", err)
	}
	if _, err := store.Get(context.Background(), " user-1 "); err != nil {
		t.Fatalf("second get: %v", err)
	}
	if base.getCalls != 1 {
		t.Fatalf("expected second get to be served from cache, base get calls=%d", base.getCalls)
	}
}

func TestCachedPreferenceStore_Upsert_InvalidatesCachedKey(t *testing.T) {
	base := &stubPreferenceStore{prefs: map[string]core.NotificationPreferences{
		"user-2": core.DefaultNotificationPreferences("user-2"),
	}}
	store, err := NewCachedPreferenceStore(base, newTestPreferenceCacheService(t))
	if err != nil {
		t.Fatalf("new cached preference store: %v", err)
	}

	if _, err := store.Get(context.Background(), "user-2"); err != nil {
		t.Fatalf("prime cache: %v", err)
	}

	updated := core.DefaultNotificationPreferences("user-2")
	updated.Channels.Email = false
	if _, err := store.Upsert(context.Background(), updated); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	prefs, err := store.Get(context.Background(), "user-2")
	if err != nil {
		t.Fatalf("get after upsert: %v", err)
	}
	if base.getCalls != 2 {
		t.Fatalf("expected invalidation to force a second base read, got %d", base.getCalls)
	}
	if prefs.Channels.Email {
		t.Fatalf("expected refreshed preferences with email disabled")
	}
}

func TestCachedPreferenceStore_MissingPreferencesAreNotCached(t *testing.T) {
	base := &stubPreferenceStore{}
	store, err := NewCachedPreferenceStore(base, newTestPreferenceCacheService(t))
	if err != nil {
		t.Fatalf("new cached preference store: %v", err)
	}

	if _, err := store.Get(context.Background(), "user-404"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := store.Upsert(context.Background(), core.DefaultNotificationPreferences("user-404")); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, err := store.Get(context.Background(), "user-404"); err != nil {
		t.Fatalf("expected stored preferences after upsert, got %v", err)
	}
}

func TestCachedPreferenceStore_UpsertErrorKeepsCache(t *testing.T) {
	boom := errors.New("write failed")
	base := &stubPreferenceStore{
		prefs:     map[string]core.NotificationPreferences{"user-3": core.DefaultNotificationPreferences("user-3")},
		upsertErr: boom,
	}
	store, err := NewCachedPreferenceStore(base, newTestPreferenceCacheService(t))
	if err != nil {
		t.Fatalf("new cached preference store: %v", err)
	}
	if _, err := store.Get(context.Background(), "user-3"); err != nil {
		t.Fatalf("prime cache: %v", err)
	}
	if _, err := store.Upsert(context.Background(), core.DefaultNotificationPreferences("user-3")); !errors.Is(err, boom) {
		t.Fatalf("expected base upsert error, got %v", err)
	}
	if _, err := store.Get(context.Background(), "user-3"); err != nil {
		t.Fatalf("get: %v", err)
	}
	if base.getCalls != 1 {
		t.Fatalf("expected cached entry to survive failed upsert, base get calls=%d", base.getCalls)
	}
}

func TestPreferenceCacheKey_Contract(t *testing.T) {
	key, err := PreferenceCacheKey(" team/alpha user ")
	if err != nil {
		t.Fatalf("build cache key: %v", err)
	}
	const expected = "marketplace::notification_preferences::v1::team%2Falpha%20user"
	if key != expected {
		t.Fatalf("unexpected cache key: got %q want %q", key, expected)
	}
	if _, err := PreferenceCacheKey("  "); err == nil {
		t.Fatalf("expected error for blank user id")
	}
}

func TestNewCachedPreferenceStore_RequiresDependencies(t *testing.T) {
	if _, err := NewCachedPreferenceStore(nil, newTestPreferenceCacheService(t)); err == nil {
		t.Fatalf("expected error for nil base store")
	}
	if _, err := NewCachedPreferenceStore(&stubPreferenceStore{}, nil); err == nil {
		t.Fatalf("expected error for nil cache service")
	}
}

func newTestPreferenceCacheService(t *testing.T) repositorycache.CacheService {
	t.Helper()
	config := repositorycache.DefaultConfig()
	config.TTL = time.Minute
	service, err := repositorycache.NewCacheService(config)
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}
	return service
}
