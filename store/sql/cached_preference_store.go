package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/goliatone/go-marketplace/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const preferenceCacheKeyPrefix = "marketplace::notification_preferences::v1"

// CachedPreferenceStore serves preference reads from a cache and drops the
// cached entry on every write. Missing preferences are never cached so a
// later Upsert is visible immediately.
type CachedPreferenceStore struct {
	base  core.PreferenceStore
	cache repositorycache.CacheService
}

func NewCachedPreferenceStore(
	base core.PreferenceStore,
	cacheService repositorycache.CacheService,
) (*CachedPreferenceStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base preference store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: preference cache service is required")
	}
	return &CachedPreferenceStore{base: base, cache: cacheService}, nil
}

// PreferenceCacheKey returns marketplace::notification_preferences::v1::<user_id>
// with the user id URL-path escaped.
func PreferenceCacheKey(userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", fmt.Errorf("sqlstore: preference user id is required")
	}
	return preferenceCacheKeyPrefix + "::" + url.PathEscape(userID), nil
}

func (s *CachedPreferenceStore) Get(ctx context.Context, userID string) (core.NotificationPreferences, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.NotificationPreferences{}, notConfigured("cached preference store")
	}
	cacheKey, err := PreferenceCacheKey(userID)
	if err != nil {
		return core.NotificationPreferences{}, err
	}
	trimmed := strings.TrimSpace(userID)
	return repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.NotificationPreferences, error) {
		return s.base.Get(ctx, trimmed)
	})
}

func (s *CachedPreferenceStore) Upsert(ctx context.Context, prefs core.NotificationPreferences) (core.NotificationPreferences, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.NotificationPreferences{}, notConfigured("cached preference store")
	}
	cacheKey, err := PreferenceCacheKey(prefs.UserID)
	if err != nil {
		return core.NotificationPreferences{}, err
	}
	saved, err := s.base.Upsert(ctx, prefs)
	if err != nil {
		return core.NotificationPreferences{}, err
	}
	if err := s.cache.Delete(ctx, cacheKey); err != nil {
		return core.NotificationPreferences{}, err
	}
	return saved, nil
}
