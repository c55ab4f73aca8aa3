package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-marketplace/core"
	"github.com/uptrace/bun"
)

const (
	outboxStatusPending    = "pending"
	outboxStatusProcessing = "processing"
	outboxStatusDelivered  = "delivered"
	outboxStatusFailed     = "failed"
)

// OutboxStore persists events written inside order and proposal
// transactions until the outbox dispatcher delivers them.
type OutboxStore struct {
	db *bun.DB
}

func NewOutboxStore(db *bun.DB) (*OutboxStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &OutboxStore{db: db}, nil
}

// Enqueue records an event outside of a transaction.
func (s *OutboxStore) Enqueue(ctx context.Context, event core.OutboxEvent) error {
	if s == nil || s.db == nil {
		return notConfigured("outbox store")
	}
	record, err := newOutboxRecord(event, time.Now().UTC())
	if err != nil {
		return err
	}
	_, err = s.db.NewInsert().Model(record).Exec(ctx)
	return err
}

func (s *OutboxStore) ClaimBatch(ctx context.Context, limit int) ([]core.OutboxEvent, error) {
	if s == nil || s.db == nil {
		return nil, notConfigured("outbox store")
	}
	if limit <= 0 {
		limit = 1
	}
	now := time.Now().UTC()
	var records []outboxRecord
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		query := `
UPDATE marketplace_outbox
SET status = ?, updated_at = ?
WHERE id IN (
	SELECT id
	FROM marketplace_outbox
	WHERE status = ?
	  AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
	ORDER BY occurred_at ASC
	LIMIT ?
)
  AND status = ?
RETURNING
	id,
	event_id,
	event_name,
	aggregate_type,
	aggregate_id,
	payload,
	metadata,
	status,
	attempts,
	next_attempt_at,
	last_error,
	occurred_at,
	created_at,
	updated_at
`
		return tx.NewRaw(
			query,
			outboxStatusProcessing,
			now,
			outboxStatusPending,
			now,
			limit,
			outboxStatusPending,
		).Scan(ctx, &records)
	})
	if err != nil {
		return nil, err
	}

	events := make([]core.OutboxEvent, 0, len(records))
	for _, record := range records {
		events = append(events, outboxRecordToEvent(record))
	}
	return events, nil
}

func (s *OutboxStore) Ack(ctx context.Context, eventID string) error {
	if s == nil || s.db == nil {
		return notConfigured("outbox store")
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return fmt.Errorf("sqlstore: event id is required")
	}
	_, err := s.db.NewUpdate().
		Model((*outboxRecord)(nil)).
		Set("status = ?", outboxStatusDelivered).
		Set("last_error = ?", "").
		Set("next_attempt_at = NULL").
		Set("updated_at = ?", time.Now().UTC()).
		Where("event_id = ?", eventID).
		Exec(ctx)
	return err
}

// Retry schedules another attempt. A zero nextAttemptAt marks the event
// failed for good.
func (s *OutboxStore) Retry(ctx context.Context, eventID string, cause error, nextAttemptAt time.Time) error {
	if s == nil || s.db == nil {
		return notConfigured("outbox store")
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return fmt.Errorf("sqlstore: event id is required")
	}
	status := outboxStatusPending
	var next *time.Time
	if nextAttemptAt.IsZero() {
		status = outboxStatusFailed
	} else {
		value := nextAttemptAt.UTC()
		next = &value
	}
	lastError := ""
	if cause != nil {
		lastError = strings.TrimSpace(cause.Error())
	}
	_, err := s.db.NewUpdate().
		Model((*outboxRecord)(nil)).
		Set("status = ?", status).
		Set("attempts = attempts + 1").
		Set("next_attempt_at = ?", next).
		Set("last_error = ?", lastError).
		Set("updated_at = ?", time.Now().UTC()).
		Where("event_id = ?", eventID).
		Exec(ctx)
	return err
}

func outboxRecordToEvent(record outboxRecord) core.OutboxEvent {
	event := core.OutboxEvent{
		ID:            record.EventID,
		Name:          record.EventName,
		AggregateType: record.AggregateType,
		AggregateID:   record.AggregateID,
		OccurredAt:    record.OccurredAt.UTC(),
		Payload:       copyAnyMap(record.Payload),
		Metadata:      copyAnyMap(record.Metadata),
	}
	event.Metadata[core.MetadataKeyOutboxAttempts] = record.Attempts
	return event
}
