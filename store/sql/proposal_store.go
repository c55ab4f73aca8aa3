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

type ProposalStore struct {
	db   *bun.DB
	repo repository.Repository[*proposalRecord]
}

func NewProposalStore(db *bun.DB) (*ProposalStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*proposalRecord](db, proposalHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid proposal repository wiring: %w", err)
		}
	}
	return &ProposalStore{db: db, repo: repo}, nil
}

func (s *ProposalStore) Create(ctx context.Context, proposal core.Proposal) (core.Proposal, error) {
	if s == nil || s.db == nil || s.repo == nil {
		return core.Proposal{}, notConfigured("proposal store")
	}
	if strings.TrimSpace(proposal.OrderID) == "" || strings.TrimSpace(proposal.ContractorID) == "" {
		return core.Proposal{}, fmt.Errorf("sqlstore: proposal order id and contractor id are required")
	}
	if strings.TrimSpace(proposal.ID) == "" {
		proposal.ID = uuid.NewString()
	}
	if proposal.Status == "" {
		proposal.Status = core.ProposalStatusPending
	}
	now := time.Now().UTC()
	if proposal.CreatedAt.IsZero() {
		proposal.CreatedAt = now
	}
	if proposal.UpdatedAt.IsZero() {
		proposal.UpdatedAt = proposal.CreatedAt
	}
	var created core.Proposal
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		open, err := openOrderGuard(tx, proposal.OrderID).Exists(ctx)
		if err != nil {
			return err
		}
		if !open {
			return fmt.Errorf("%w: order %s no longer accepts proposals", core.ErrStaleState, proposal.OrderID)
		}
		inserted, err := s.repo.CreateTx(ctx, tx, newProposalRecord(proposal))
		if err != nil {
			return err
		}
		created = inserted.toDomain()
		return nil
	})
	if err != nil {
		if isUniqueViolation(err) {
			return core.Proposal{}, fmt.Errorf(
				"%w: contractor %s already proposed on order %s",
				core.ErrUniqueViolation,
				proposal.ContractorID,
				proposal.OrderID,
			)
		}
		return core.Proposal{}, err
	}
	return created, nil
}

// openOrderGuard selects the order row only while it accepts proposals. On
// postgres the row is share-locked until the insert commits, so an
// acceptance holding it FOR UPDATE either commits first and fails the guard,
// or waits and then rejects the new proposal with the rest.
func openOrderGuard(db bun.IDB, orderID string) *bun.SelectQuery {
	query := db.NewSelect().
		Model((*orderRecord)(nil)).
		ColumnExpr("1").
		Where("?TableAlias.id = ?", strings.TrimSpace(orderID)).
		Where("?TableAlias.status = ?", string(core.OrderStatusPublished)).
		Where("?TableAlias.order_type = ?", string(core.OrderTypePublic)).
		Where("?TableAlias.deleted_at IS NULL")
	if supportsRowLocks(db) {
		query = query.For("SHARE")
	}
	return query
}

func (s *ProposalStore) Get(ctx context.Context, id string) (core.Proposal, error) {
	if s == nil || s.db == nil {
		return core.Proposal{}, notConfigured("proposal store")
	}
	return getProposal(ctx, s.db, id)
}

func (s *ProposalStore) UpdateIfStatus(ctx context.Context, proposal core.Proposal, expected core.ProposalStatus) (core.Proposal, error) {
	if s == nil || s.db == nil {
		return core.Proposal{}, notConfigured("proposal store")
	}
	proposal.ID = strings.TrimSpace(proposal.ID)
	if proposal.ID == "" {
		return core.Proposal{}, fmt.Errorf("sqlstore: proposal id is required")
	}
	if proposal.UpdatedAt.IsZero() {
		proposal.UpdatedAt = time.Now().UTC()
	}
	res, err := s.db.NewUpdate().
		Model(newProposalRecord(proposal)).
		ExcludeColumn("id", "order_id", "contractor_id", "created_at").
		Where("id = ?", proposal.ID).
		Where("status = ?", string(expected)).
		Exec(ctx)
	if err != nil {
		return core.Proposal{}, err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		if _, getErr := getProposal(ctx, s.db, proposal.ID); getErr != nil {
			return core.Proposal{}, getErr
		}
		return core.Proposal{}, fmt.Errorf("%w: proposal %s is no longer %s", core.ErrStaleState, proposal.ID, expected)
	}
	return getProposal(ctx, s.db, proposal.ID)
}

func (s *ProposalStore) ListByOrder(ctx context.Context, orderID string) ([]core.Proposal, error) {
	if s == nil || s.repo == nil {
		return nil, notConfigured("proposal store")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("order_id", "=", strings.TrimSpace(orderID)),
		repository.OrderBy("created_at ASC"),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.Proposal, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func (s *ProposalStore) ListByContractor(
	ctx context.Context,
	contractorID string,
	filter core.ProposalFilter,
) (core.ProposalPage, error) {
	if s == nil || s.repo == nil {
		return core.ProposalPage{}, notConfigured("proposal store")
	}
	page, perPage := pageBounds(filter.Page, filter.PerPage)
	offset := (page - 1) * perPage
	selectors := []repository.SelectCriteria{
		repository.SelectBy("contractor_id", "=", strings.TrimSpace(contractorID)),
		repository.OrderBy("created_at DESC"),
		repository.SelectPaginate(perPage, offset),
	}
	if status := strings.TrimSpace(string(filter.Status)); status != "" {
		selectors = append(selectors, repository.SelectBy("status", "=", status))
	}
	records, total, err := s.repo.List(ctx, selectors...)
	if err != nil {
		return core.ProposalPage{}, err
	}
	items := make([]core.Proposal, 0, len(records))
	for _, record := range records {
		items = append(items, record.toDomain())
	}
	return core.ProposalPage{Items: items, Total: total, Page: page, PerPage: perPage}, nil
}

func getProposal(ctx context.Context, db bun.IDB, id string) (core.Proposal, error) {
	id = strings.TrimSpace(id)
	record := &proposalRecord{}
	err := db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return core.Proposal{}, notFoundOr(err, "proposal", id)
	}
	return record.toDomain(), nil
}
