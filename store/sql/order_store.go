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

type OrderStore struct {
	db   *bun.DB
	repo repository.Repository[*orderRecord]
}

func NewOrderStore(db *bun.DB) (*OrderStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*orderRecord](db, orderHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid order repository wiring: %w", err)
		}
	}
	return &OrderStore{db: db, repo: repo}, nil
}

func (s *OrderStore) Create(ctx context.Context, order core.Order) (core.Order, error) {
	if s == nil || s.repo == nil {
		return core.Order{}, notConfigured("order store")
	}
	if strings.TrimSpace(order.ClientID) == "" {
		return core.Order{}, fmt.Errorf("sqlstore: order client id is required")
	}
	if strings.TrimSpace(order.ID) == "" {
		order.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = order.CreatedAt
	}
	created, err := s.repo.Create(ctx, newOrderRecord(order))
	if err != nil {
		return core.Order{}, err
	}
	return created.toDomain(), nil
}

func (s *OrderStore) Get(ctx context.Context, id string) (core.Order, error) {
	if s == nil || s.db == nil {
		return core.Order{}, notConfigured("order store")
	}
	return getOrder(ctx, s.db, id, false)
}

func (s *OrderStore) UpdateIfStatus(ctx context.Context, order core.Order, expected core.OrderStatus) (core.Order, error) {
	if s == nil || s.db == nil {
		return core.Order{}, notConfigured("order store")
	}
	order.ID = strings.TrimSpace(order.ID)
	if order.ID == "" {
		return core.Order{}, fmt.Errorf("sqlstore: order id is required")
	}
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = time.Now().UTC()
	}
	record := newOrderRecord(order)
	res, err := s.db.NewUpdate().
		Model(record).
		ExcludeColumn("id", "created_at").
		Where("id = ?", order.ID).
		Where("status = ?", string(expected)).
		Where("deleted_at IS NULL").
		Exec(ctx)
	if err != nil {
		return core.Order{}, err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		if _, getErr := getOrder(ctx, s.db, order.ID, false); getErr != nil {
			return core.Order{}, getErr
		}
		return core.Order{}, fmt.Errorf("%w: order %s is no longer %s", core.ErrStaleState, order.ID, expected)
	}
	return getOrder(ctx, s.db, order.ID, false)
}

func (s *OrderStore) SoftDelete(ctx context.Context, id string, expected core.OrderStatus, at time.Time) error {
	if s == nil || s.db == nil {
		return notConfigured("order store")
	}
	id = strings.TrimSpace(id)
	res, err := s.db.NewUpdate().
		Model((*orderRecord)(nil)).
		Set("deleted_at = ?", at.UTC()).
		Set("updated_at = ?", at.UTC()).
		Where("id = ?", id).
		Where("status = ?", string(expected)).
		Where("deleted_at IS NULL").
		Exec(ctx)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		if _, getErr := getOrder(ctx, s.db, id, false); getErr != nil {
			return getErr
		}
		return fmt.Errorf("%w: order %s is no longer %s", core.ErrStaleState, id, expected)
	}
	return nil
}

func (s *OrderStore) Search(ctx context.Context, filter core.OrderFilter) (core.OrderPage, error) {
	if s == nil || s.repo == nil {
		return core.OrderPage{}, notConfigured("order store")
	}
	page, perPage := pageBounds(filter.Page, filter.PerPage)
	offset := (page - 1) * perPage

	selectors := []repository.SelectCriteria{
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.deleted_at IS NULL")
		}),
		repository.OrderBy("created_at DESC"),
		repository.SelectPaginate(perPage, offset),
	}
	equals := map[string]string{
		"status":        string(filter.Status),
		"order_type":    string(filter.Type),
		"category_id":   filter.CategoryID,
		"client_id":     filter.ClientID,
		"contractor_id": filter.ContractorID,
		"city":          filter.City,
		"country_code":  filter.CountryCode,
	}
	for _, column := range []string{"status", "order_type", "category_id", "client_id", "contractor_id", "city", "country_code"} {
		if value := strings.TrimSpace(equals[column]); value != "" {
			selectors = append(selectors, repository.SelectBy(column, "=", value))
		}
	}
	if filter.MinBudget != nil {
		minBudget := *filter.MinBudget
		selectors = append(selectors, repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.budget >= ?", minBudget)
		}))
	}
	if filter.MaxBudget != nil {
		maxBudget := *filter.MaxBudget
		selectors = append(selectors, repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.budget <= ?", maxBudget)
		}))
	}
	if query := strings.ToLower(strings.TrimSpace(filter.Query)); query != "" {
		pattern := "%" + escapeLike(query) + "%"
		selectors = append(selectors, repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
				return q.
					Where(`LOWER(?TableAlias.title) LIKE ? ESCAPE '\'`, pattern).
					WhereOr(`LOWER(?TableAlias.description) LIKE ? ESCAPE '\'`, pattern)
			})
		}))
	}

	records, total, err := s.repo.List(ctx, selectors...)
	if err != nil {
		return core.OrderPage{}, err
	}
	items := make([]core.Order, 0, len(records))
	for _, record := range records {
		items = append(items, record.toDomain())
	}
	return core.OrderPage{Items: items, Total: total, Page: page, PerPage: perPage}, nil
}

// getOrder reads a live order. lock takes a row lock on dialects that
// support SELECT ... FOR UPDATE.
func getOrder(ctx context.Context, db bun.IDB, id string, lock bool) (core.Order, error) {
	id = strings.TrimSpace(id)
	record := &orderRecord{}
	query := db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Where("?TableAlias.deleted_at IS NULL").
		Limit(1)
	if lock && supportsRowLocks(db) {
		query = query.For("UPDATE")
	}
	if err := query.Scan(ctx); err != nil {
		return core.Order{}, notFoundOr(err, "order", id)
	}
	return record.toDomain(), nil
}

func pageBounds(page int, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage <= 0 {
		perPage = 20
	}
	if perPage > 100 {
		perPage = 100
	}
	return page, perPage
}
