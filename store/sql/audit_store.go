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

type AuditStore struct {
	db   *bun.DB
	repo repository.Repository[*auditRecord]
}

func NewAuditStore(db *bun.DB) (*AuditStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*auditRecord](db, auditHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid audit repository wiring: %w", err)
		}
	}
	return &AuditStore{db: db, repo: repo}, nil
}

func (s *AuditStore) Log(ctx context.Context, event core.AuditEvent) error {
	if s == nil || s.repo == nil {
		return notConfigured("audit store")
	}
	if strings.TrimSpace(event.Action) == "" {
		return fmt.Errorf("sqlstore: audit action is required")
	}
	now := time.Now().UTC()
	occurredAt := event.OccurredAt.UTC()
	if event.OccurredAt.IsZero() {
		occurredAt = now
	}
	_, err := s.repo.Create(ctx, &auditRecord{
		ID:         uuid.NewString(),
		Action:     strings.TrimSpace(event.Action),
		ActorID:    strings.TrimSpace(event.ActorID),
		ObjectType: strings.TrimSpace(event.ObjectType),
		ObjectID:   strings.TrimSpace(event.ObjectID),
		Metadata:   RedactMetadata(event.Metadata),
		OccurredAt: occurredAt,
		CreatedAt:  now,
	})
	return err
}

// ListByObject returns the audit trail of one object, oldest first.
func (s *AuditStore) ListByObject(ctx context.Context, objectType string, objectID string) ([]core.AuditEvent, error) {
	if s == nil || s.repo == nil {
		return nil, notConfigured("audit store")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("object_type", "=", strings.TrimSpace(objectType)),
		repository.SelectBy("object_id", "=", strings.TrimSpace(objectID)),
		repository.OrderBy("occurred_at ASC"),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.AuditEvent, 0, len(records))
	for _, record := range records {
		out = append(out, core.AuditEvent{
			Action:     record.Action,
			ActorID:    record.ActorID,
			ObjectType: record.ObjectType,
			ObjectID:   record.ObjectID,
			Metadata:   copyAnyMap(record.Metadata),
			OccurredAt: record.OccurredAt.UTC(),
		})
	}
	return out, nil
}
