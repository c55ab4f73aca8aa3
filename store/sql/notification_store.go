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

type NotificationStore struct {
	db   *bun.DB
	repo repository.Repository[*notificationRecord]
}

func NewNotificationStore(db *bun.DB) (*NotificationStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*notificationRecord](db, notificationHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid notification repository wiring: %w", err)
		}
	}
	return &NotificationStore{db: db, repo: repo}, nil
}

func (s *NotificationStore) Create(ctx context.Context, notification core.Notification) (core.Notification, error) {
	if s == nil || s.repo == nil {
		return core.Notification{}, notConfigured("notification store")
	}
	if strings.TrimSpace(notification.UserID) == "" {
		return core.Notification{}, fmt.Errorf("sqlstore: notification user id is required")
	}
	if strings.TrimSpace(notification.ID) == "" {
		notification.ID = uuid.NewString()
	}
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = time.Now().UTC()
	}
	created, err := s.repo.Create(ctx, newNotificationRecord(notification))
	if err != nil {
		return core.Notification{}, err
	}
	return created.toDomain(), nil
}

func (s *NotificationStore) Get(ctx context.Context, id string) (core.Notification, error) {
	if s == nil || s.db == nil {
		return core.Notification{}, notConfigured("notification store")
	}
	id = strings.TrimSpace(id)
	record := &notificationRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return core.Notification{}, notFoundOr(err, "notification", id)
	}
	return record.toDomain(), nil
}

func (s *NotificationStore) List(
	ctx context.Context,
	userID string,
	filter core.NotificationFilter,
) (core.NotificationPage, error) {
	if s == nil || s.repo == nil {
		return core.NotificationPage{}, notConfigured("notification store")
	}
	userID = strings.TrimSpace(userID)
	page, perPage := pageBounds(filter.Page, filter.PerPage)
	offset := (page - 1) * perPage

	selectors := []repository.SelectCriteria{
		repository.SelectBy("user_id", "=", userID),
		repository.OrderBy("created_at DESC"),
		repository.SelectPaginate(perPage, offset),
	}
	if filter.UnreadOnly {
		selectors = append(selectors, repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.is_read = ?", false)
		}))
	}
	if notificationType := strings.TrimSpace(string(filter.Type)); notificationType != "" {
		selectors = append(selectors, repository.SelectBy("notification_type", "=", notificationType))
	}

	records, total, err := s.repo.List(ctx, selectors...)
	if err != nil {
		return core.NotificationPage{}, err
	}
	unread, err := s.CountUnread(ctx, userID)
	if err != nil {
		return core.NotificationPage{}, err
	}
	items := make([]core.Notification, 0, len(records))
	for _, record := range records {
		items = append(items, record.toDomain())
	}
	return core.NotificationPage{
		Items:   items,
		Total:   total,
		Unread:  unread,
		Page:    page,
		PerPage: perPage,
	}, nil
}

// MarkRead reports whether the notification exists for the user. Marking an
// already read notification keeps its original read timestamp.
func (s *NotificationStore) MarkRead(ctx context.Context, userID string, id string, at time.Time) (bool, error) {
	if s == nil || s.db == nil {
		return false, notConfigured("notification store")
	}
	userID = strings.TrimSpace(userID)
	id = strings.TrimSpace(id)
	res, err := s.db.NewUpdate().
		Model((*notificationRecord)(nil)).
		Set("is_read = ?", true).
		Set("read_at = ?", at.UTC()).
		Where("id = ?", id).
		Where("user_id = ?", userID).
		Where("is_read = ?", false).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	if affected, _ := res.RowsAffected(); affected > 0 {
		return true, nil
	}
	exists, err := s.db.NewSelect().
		Model((*notificationRecord)(nil)).
		Where("?TableAlias.id = ?", id).
		Where("?TableAlias.user_id = ?", userID).
		Exists(ctx)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (s *NotificationStore) MarkAllRead(ctx context.Context, userID string, at time.Time) (int, error) {
	if s == nil || s.db == nil {
		return 0, notConfigured("notification store")
	}
	res, err := s.db.NewUpdate().
		Model((*notificationRecord)(nil)).
		Set("is_read = ?", true).
		Set("read_at = ?", at.UTC()).
		Where("user_id = ?", strings.TrimSpace(userID)).
		Where("is_read = ?", false).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	affected, _ := res.RowsAffected()
	return int(affected), nil
}

func (s *NotificationStore) MarkSent(ctx context.Context, id string, at time.Time) error {
	if s == nil || s.db == nil {
		return notConfigured("notification store")
	}
	_, err := s.db.NewUpdate().
		Model((*notificationRecord)(nil)).
		Set("sent_at = ?", at.UTC()).
		Where("id = ?", strings.TrimSpace(id)).
		Where("sent_at IS NULL").
		Exec(ctx)
	return err
}

func (s *NotificationStore) Delete(ctx context.Context, userID string, id string) (bool, error) {
	if s == nil || s.db == nil {
		return false, notConfigured("notification store")
	}
	res, err := s.db.NewDelete().
		Model((*notificationRecord)(nil)).
		Where("id = ?", strings.TrimSpace(id)).
		Where("user_id = ?", strings.TrimSpace(userID)).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

func (s *NotificationStore) DeleteAll(ctx context.Context, userID string) (int, error) {
	if s == nil || s.db == nil {
		return 0, notConfigured("notification store")
	}
	res, err := s.db.NewDelete().
		Model((*notificationRecord)(nil)).
		Where("user_id = ?", strings.TrimSpace(userID)).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	affected, _ := res.RowsAffected()
	return int(affected), nil
}

func (s *NotificationStore) CountUnread(ctx context.Context, userID string) (int, error) {
	if s == nil || s.db == nil {
		return 0, notConfigured("notification store")
	}
	return s.db.NewSelect().
		Model((*notificationRecord)(nil)).
		Where("?TableAlias.user_id = ?", strings.TrimSpace(userID)).
		Where("?TableAlias.is_read = ?", false).
		Count(ctx)
}

func (s *NotificationStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	if s == nil || s.db == nil {
		return 0, notConfigured("notification store")
	}
	res, err := s.db.NewDelete().
		Model((*notificationRecord)(nil)).
		Where("expires_at IS NOT NULL").
		Where("expires_at <= ?", now.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	affected, _ := res.RowsAffected()
	return int(affected), nil
}
