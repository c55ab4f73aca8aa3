package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-marketplace/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type PreferenceStore struct {
	db   *bun.DB
	repo repository.Repository[*preferenceRecord]
}

func NewPreferenceStore(db *bun.DB) (*PreferenceStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*preferenceRecord](db, preferenceHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid preference repository wiring: %w", err)
		}
	}
	return &PreferenceStore{db: db, repo: repo}, nil
}

func (s *PreferenceStore) Get(ctx context.Context, userID string) (core.NotificationPreferences, error) {
	if s == nil || s.repo == nil {
		return core.NotificationPreferences{}, notConfigured("preference store")
	}
	userID = strings.TrimSpace(userID)
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("user_id", "=", userID),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.NotificationPreferences{}, err
	}
	if len(records) == 0 {
		return core.NotificationPreferences{}, fmt.Errorf("%w: preferences for user %q", core.ErrNotFound, userID)
	}
	return records[0].toDomain(), nil
}

// Upsert replaces the stored preferences of a user.
func (s *PreferenceStore) Upsert(ctx context.Context, prefs core.NotificationPreferences) (core.NotificationPreferences, error) {
	if s == nil || s.db == nil {
		return core.NotificationPreferences{}, notConfigured("preference store")
	}
	prefs.UserID = strings.TrimSpace(prefs.UserID)
	if prefs.UserID == "" {
		return core.NotificationPreferences{}, fmt.Errorf("sqlstore: preference user id is required")
	}
	now := time.Now().UTC()
	record := newPreferenceRecord(prefs, now)
	record.ID = uuid.NewString()
	_, err := s.db.NewInsert().
		Model(record).
		On("CONFLICT (user_id) DO UPDATE").
		Set("in_app_enabled = EXCLUDED.in_app_enabled").
		Set("email_enabled = EXCLUDED.email_enabled").
		Set("push_enabled = EXCLUDED.push_enabled").
		Set("email_categories = EXCLUDED.email_categories").
		Set("push_categories = EXCLUDED.push_categories").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return core.NotificationPreferences{}, err
	}
	return s.Get(ctx, prefs.UserID)
}
