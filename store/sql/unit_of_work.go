package sqlstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/goliatone/go-marketplace/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

// UnitOfWork runs proposal acceptance and friends inside one database
// transaction. Conditional updates carry the status guard so a concurrent
// acceptance loses cleanly instead of double-assigning an order.
type UnitOfWork struct {
	db *bun.DB
}

func NewUnitOfWork(db *bun.DB) (*UnitOfWork, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &UnitOfWork{db: db}, nil
}

func (u *UnitOfWork) RunInTx(ctx context.Context, fn func(ctx context.Context, tx core.TxStores) error) error {
	if u == nil || u.db == nil {
		return notConfigured("unit of work")
	}
	if fn == nil {
		return fmt.Errorf("sqlstore: transaction callback is required")
	}
	return u.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, txStores{tx: tx})
	})
}

type txStores struct {
	tx bun.Tx
}

func (t txStores) GetOrder(ctx context.Context, id string) (core.Order, error) {
	return getOrder(ctx, t.tx, id, true)
}

func (t txStores) GetProposal(ctx context.Context, id string) (core.Proposal, error) {
	return getProposal(ctx, t.tx, id)
}

func (t txStores) TransitionProposal(
	ctx context.Context,
	proposalID string,
	from core.ProposalStatus,
	to core.ProposalStatus,
	at time.Time,
) (bool, error) {
	res, err := t.tx.NewUpdate().
		Model((*proposalRecord)(nil)).
		Set("status = ?", string(to)).
		Set("updated_at = ?", at.UTC()).
		Where("id = ?", strings.TrimSpace(proposalID)).
		Where("status = ?", string(from)).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

func (t txStores) RejectPendingProposals(
	ctx context.Context,
	orderID string,
	exceptProposalID string,
	at time.Time,
) ([]core.Proposal, error) {
	var records []proposalRecord
	query := t.tx.NewUpdate().
		Model((*proposalRecord)(nil)).
		Set("status = ?", string(core.ProposalStatusRejected)).
		Set("updated_at = ?", at.UTC()).
		Where("order_id = ?", strings.TrimSpace(orderID)).
		Where("status = ?", string(core.ProposalStatusPending)).
		Returning("*")
	if except := strings.TrimSpace(exceptProposalID); except != "" {
		query = query.Where("id <> ?", except)
	}
	// RETURNING yields only the rows this statement moved, so a proposal
	// rejected concurrently is never reported twice.
	if _, err := query.Exec(ctx, &records); err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})

	rejected := make([]core.Proposal, 0, len(records))
	for i := range records {
		rejected = append(rejected, records[i].toDomain())
	}
	return rejected, nil
}

func (t txStores) AssignContractor(ctx context.Context, in core.AssignContractorInput) (bool, error) {
	startedAt := in.StartedAt.UTC()
	res, err := t.tx.NewUpdate().
		Model((*orderRecord)(nil)).
		Set("contractor_id = ?", strings.TrimSpace(in.ContractorID)).
		Set("agreed_price = ?", in.AgreedPrice).
		Set("status = ?", string(core.OrderStatusInProgress)).
		Set("started_at = ?", startedAt).
		Set("updated_at = ?", startedAt).
		Where("id = ?", strings.TrimSpace(in.OrderID)).
		Where("status = ?", string(core.OrderStatusPublished)).
		Where("deleted_at IS NULL").
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

func (t txStores) EnqueueOutbox(ctx context.Context, event core.OutboxEvent) error {
	record, err := newOutboxRecord(event, time.Now().UTC())
	if err != nil {
		return err
	}
	_, err = t.tx.NewInsert().Model(record).Exec(ctx)
	return err
}

func supportsRowLocks(db bun.IDB) bool {
	return db.Dialect().Name() == dialect.PG
}

func newOutboxRecord(event core.OutboxEvent, now time.Time) (*outboxRecord, error) {
	if strings.TrimSpace(event.ID) == "" {
		return nil, fmt.Errorf("sqlstore: outbox event id is required")
	}
	if strings.TrimSpace(event.Name) == "" {
		return nil, fmt.Errorf("sqlstore: outbox event name is required")
	}
	occurredAt := event.OccurredAt.UTC()
	if event.OccurredAt.IsZero() {
		occurredAt = now
	}
	return &outboxRecord{
		ID:            uuid.NewString(),
		EventID:       strings.TrimSpace(event.ID),
		EventName:     strings.TrimSpace(event.Name),
		AggregateType: strings.TrimSpace(event.AggregateType),
		AggregateID:   strings.TrimSpace(event.AggregateID),
		Payload:       copyAnyMap(event.Payload),
		Metadata:      copyAnyMap(event.Metadata),
		Status:        outboxStatusPending,
		OccurredAt:    occurredAt,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}
