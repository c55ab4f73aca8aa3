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

// DispatchLedgerStore records one row per delivery idempotency key. The unique
// key index turns a concurrent second claim into a no-op.
type DispatchLedgerStore struct {
	db   *bun.DB
	repo repository.Repository[*dispatchRecord]
}

func NewDispatchLedgerStore(db *bun.DB) (*DispatchLedgerStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*dispatchRecord](db, dispatchHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid dispatch ledger repository wiring: %w", err)
		}
	}
	return &DispatchLedgerStore{db: db, repo: repo}, nil
}

func (s *DispatchLedgerStore) Claim(ctx context.Context, record core.DispatchRecord) (bool, error) {
	if s == nil || s.repo == nil {
		return false, notConfigured("dispatch ledger")
	}
	key := strings.TrimSpace(record.IdempotencyKey)
	if key == "" {
		return false, fmt.Errorf("sqlstore: idempotency key is required")
	}
	status := strings.TrimSpace(record.Status)
	if status == "" {
		status = core.DispatchStatusClaimed
	}
	now := time.Now().UTC()
	_, err := s.repo.Create(ctx, &dispatchRecord{
		ID:             uuid.NewString(),
		IdempotencyKey: key,
		NotificationID: strings.TrimSpace(record.NotificationID),
		Channel:        string(record.Channel),
		RecipientKey:   strings.TrimSpace(record.RecipientKey),
		Status:         status,
		Error:          strings.TrimSpace(record.Error),
		Metadata:       RedactMetadata(record.Metadata),
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *DispatchLedgerStore) Complete(ctx context.Context, idempotencyKey string, status string, errText string) error {
	if s == nil || s.db == nil {
		return notConfigured("dispatch ledger")
	}
	key := strings.TrimSpace(idempotencyKey)
	if key == "" {
		return fmt.Errorf("sqlstore: idempotency key is required")
	}
	_, err := s.db.NewUpdate().
		Model((*dispatchRecord)(nil)).
		Set("status = ?", strings.TrimSpace(status)).
		Set("error = ?", strings.TrimSpace(errText)).
		Set("updated_at = ?", time.Now().UTC()).
		Where("idempotency_key = ?", key).
		Exec(ctx)
	return err
}

// Release forgets a claim that never completed so a retry can claim it again.
func (s *DispatchLedgerStore) Release(ctx context.Context, idempotencyKey string) error {
	if s == nil || s.db == nil {
		return notConfigured("dispatch ledger")
	}
	_, err := s.db.NewDelete().
		Model((*dispatchRecord)(nil)).
		Where("idempotency_key = ?", strings.TrimSpace(idempotencyKey)).
		Where("status = ?", core.DispatchStatusClaimed).
		Exec(ctx)
	return err
}

// Status returns the recorded status of a key, or "" when nothing is claimed.
func (s *DispatchLedgerStore) Status(ctx context.Context, idempotencyKey string) (string, error) {
	if s == nil || s.repo == nil {
		return "", notConfigured("dispatch ledger")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("idempotency_key", "=", strings.TrimSpace(idempotencyKey)),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		return "", nil
	}
	return records[0].Status, nil
}
