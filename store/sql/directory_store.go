package sqlstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/goliatone/go-marketplace/core"
	"github.com/uptrace/bun"
)

// DirectoryStore answers user and category lookups for order validation and
// contractor fan-out. Users and categories are owned by other services; the
// Save methods keep the local read model in sync.
type DirectoryStore struct {
	db *bun.DB
}

func NewDirectoryStore(db *bun.DB) (*DirectoryStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &DirectoryStore{db: db}, nil
}

func (s *DirectoryStore) GetCategory(ctx context.Context, id string) (core.Category, error) {
	if s == nil || s.db == nil {
		return core.Category{}, notConfigured("directory store")
	}
	id = strings.TrimSpace(id)
	record := &categoryRecord{}
	if err := s.db.NewSelect().Model(record).Where("?TableAlias.id = ?", id).Limit(1).Scan(ctx); err != nil {
		return core.Category{}, notFoundOr(err, "category", id)
	}
	return record.toDomain(), nil
}

func (s *DirectoryStore) GetUser(ctx context.Context, id string) (core.User, error) {
	if s == nil || s.db == nil {
		return core.User{}, notConfigured("directory store")
	}
	id = strings.TrimSpace(id)
	record := &userRecord{}
	if err := s.db.NewSelect().Model(record).Where("?TableAlias.id = ?", id).Limit(1).Scan(ctx); err != nil {
		return core.User{}, notFoundOr(err, "user", id)
	}
	categories, err := s.userCategories(ctx, []string{record.ID})
	if err != nil {
		return core.User{}, err
	}
	return record.toDomain(categories[record.ID]), nil
}

func (s *DirectoryStore) ListContractors(ctx context.Context, filter core.ContractorFilter) ([]core.User, error) {
	if s == nil || s.db == nil {
		return nil, notConfigured("directory store")
	}
	var records []userRecord
	query := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.role = ?", string(core.UserRoleContractor)).
		OrderExpr("?TableAlias.id ASC")
	if categoryID := strings.TrimSpace(filter.CategoryID); categoryID != "" {
		query = query.Where(
			"?TableAlias.id IN (?)",
			s.db.NewSelect().
				Model((*userCategoryRecord)(nil)).
				Column("user_id").
				Where("category_id = ?", categoryID),
		)
	}
	if city := strings.TrimSpace(filter.City); city != "" {
		query = query.Where("LOWER(?TableAlias.city) = ?", strings.ToLower(city))
	}
	if country := strings.TrimSpace(filter.CountryCode); country != "" {
		query = query.Where("UPPER(?TableAlias.country_code) = ?", strings.ToUpper(country))
	}
	if excluded := nonEmpty(filter.ExcludeIDs); len(excluded) > 0 {
		query = query.Where("?TableAlias.id NOT IN (?)", bun.In(excluded))
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if err := query.Scan(ctx); err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(records))
	for _, record := range records {
		ids = append(ids, record.ID)
	}
	categories, err := s.userCategories(ctx, ids)
	if err != nil {
		return nil, err
	}
	users := make([]core.User, 0, len(records))
	for i := range records {
		users = append(users, records[i].toDomain(categories[records[i].ID]))
	}
	return users, nil
}

func (s *DirectoryStore) SaveCategory(ctx context.Context, category core.Category) error {
	if s == nil || s.db == nil {
		return notConfigured("directory store")
	}
	id := strings.TrimSpace(category.ID)
	if id == "" {
		return fmt.Errorf("sqlstore: category id is required")
	}
	_, err := s.db.NewInsert().
		Model(&categoryRecord{ID: id, Name: category.Name, Active: category.Active, CreatedAt: time.Now().UTC()}).
		On("CONFLICT (id) DO UPDATE").
		Set("name = EXCLUDED.name").
		Set("active = EXCLUDED.active").
		Exec(ctx)
	return err
}

// SaveUser upserts a user and replaces its category memberships.
func (s *DirectoryStore) SaveUser(ctx context.Context, user core.User) error {
	if s == nil || s.db == nil {
		return notConfigured("directory store")
	}
	id := strings.TrimSpace(user.ID)
	if id == "" {
		return fmt.Errorf("sqlstore: user id is required")
	}
	now := time.Now().UTC()
	record := &userRecord{
		ID:           id,
		Role:         string(user.Role),
		Name:         user.Name,
		Email:        strings.TrimSpace(user.Email),
		DeviceTokens: nonEmpty(user.DeviceTokens),
		City:         user.Location.City,
		Region:       user.Location.Region,
		CountryCode:  user.Location.CountryCode,
		PostalCode:   user.Location.PostalCode,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().
			Model(record).
			On("CONFLICT (id) DO UPDATE").
			Set("role = EXCLUDED.role").
			Set("name = EXCLUDED.name").
			Set("email = EXCLUDED.email").
			Set("device_tokens = EXCLUDED.device_tokens").
			Set("city = EXCLUDED.city").
			Set("region = EXCLUDED.region").
			Set("country_code = EXCLUDED.country_code").
			Set("postal_code = EXCLUDED.postal_code").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx); err != nil {
			return err
		}
		if _, err := tx.NewDelete().
			Model((*userCategoryRecord)(nil)).
			Where("user_id = ?", id).
			Exec(ctx); err != nil {
			return err
		}
		categoryIDs := nonEmpty(user.CategoryIDs)
		if len(categoryIDs) == 0 {
			return nil
		}
		memberships := make([]userCategoryRecord, 0, len(categoryIDs))
		for _, categoryID := range categoryIDs {
			memberships = append(memberships, userCategoryRecord{UserID: id, CategoryID: categoryID})
		}
		_, err := tx.NewInsert().Model(&memberships).Exec(ctx)
		return err
	})
}

func (s *DirectoryStore) userCategories(ctx context.Context, userIDs []string) (map[string][]string, error) {
	out := map[string][]string{}
	if len(userIDs) == 0 {
		return out, nil
	}
	var rows []userCategoryRecord
	if err := s.db.NewSelect().
		Model(&rows).
		Where("?TableAlias.user_id IN (?)", bun.In(userIDs)).
		Scan(ctx); err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.UserID] = append(out[row.UserID], row.CategoryID)
	}
	for userID := range out {
		sort.Strings(out[userID])
	}
	return out, nil
}

func nonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}
