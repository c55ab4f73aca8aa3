package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-marketplace/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const (
	jobStatusPending    = "pending"
	jobStatusProcessing = "processing"
	jobStatusDone       = "done"
	jobStatusDropped    = "dropped"
	jobStatusDead       = "dead"

	defaultJobLease = 5 * time.Minute
)

// JobQueue is a go-job queue backend on the marketplace_jobs table. Messages
// sharing an idempotency key are enqueued once; a claimed message whose lease
// expires becomes available again.
type JobQueue struct {
	db    *bun.DB
	lease time.Duration
	now   func() time.Time
}

type JobQueueOption func(*JobQueue)

func WithJobLease(lease time.Duration) JobQueueOption {
	return func(q *JobQueue) {
		if lease > 0 {
			q.lease = lease
		}
	}
}

func WithJobClock(now func() time.Time) JobQueueOption {
	return func(q *JobQueue) {
		if now != nil {
			q.now = now
		}
	}
}

func NewJobQueue(db *bun.DB, opts ...JobQueueOption) (*JobQueue, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	q := &JobQueue{
		db:    db,
		lease: defaultJobLease,
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(q)
		}
	}
	return q, nil
}

func (q *JobQueue) Enqueue(ctx context.Context, msg *job.ExecutionMessage) error {
	if q == nil || q.db == nil {
		return notConfigured("job queue")
	}
	if msg == nil || strings.TrimSpace(msg.JobID) == "" {
		return fmt.Errorf("sqlstore: job id is required")
	}
	now := q.now()
	record := &jobRecord{
		ID:             uuid.NewString(),
		JobID:          strings.TrimSpace(msg.JobID),
		ScriptPath:     strings.TrimSpace(msg.ScriptPath),
		Parameters:     copyAnyMap(msg.Parameters),
		IdempotencyKey: optionalString(msg.IdempotencyKey),
		DedupPolicy:    strings.TrimSpace(string(msg.DedupPolicy)),
		Status:         jobStatusPending,
		AvailableAt:    now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if _, err := q.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if record.IdempotencyKey != nil && isUniqueViolation(err) {
			return nil
		}
		return err
	}
	return nil
}

// Dequeue claims the oldest available message. It returns core.ErrNoJobs
// when nothing is ready. The availability predicate is repeated on the outer
// UPDATE so a row claimed by a concurrent worker after the subquery ran no
// longer matches; on postgres the subquery also skips rows locked by another
// claim.
func (q *JobQueue) Dequeue(ctx context.Context) (queue.Delivery, error) {
	if q == nil || q.db == nil {
		return nil, notConfigured("job queue")
	}
	now := q.now()
	lockedUntil := now.Add(q.lease)
	lock := bun.Safe("")
	if supportsRowLocks(q.db) {
		lock = bun.Safe("FOR UPDATE SKIP LOCKED")
	}
	var records []jobRecord
	err := q.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		query := `
UPDATE marketplace_jobs
SET status = ?, attempts = attempts + 1, locked_until = ?, updated_at = ?
WHERE id IN (
	SELECT id
	FROM marketplace_jobs
	WHERE (status = ? AND available_at <= ?)
	   OR (status = ? AND locked_until <= ?)
	ORDER BY available_at ASC, created_at ASC
	LIMIT 1
	?
)
AND (
	(status = ? AND available_at <= ?)
	OR (status = ? AND locked_until <= ?)
)
RETURNING
	id,
	job_id,
	script_path,
	parameters,
	idempotency_key,
	dedup_policy,
	status,
	attempts,
	available_at,
	locked_until,
	last_error,
	created_at,
	updated_at
`
		return tx.NewRaw(
			query,
			jobStatusProcessing,
			lockedUntil,
			now,
			jobStatusPending,
			now,
			jobStatusProcessing,
			now,
			lock,
			jobStatusPending,
			now,
			jobStatusProcessing,
			now,
		).Scan(ctx, &records)
	})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, core.ErrNoJobs
	}
	record := records[0]
	return &jobDelivery{queue: q, record: record}, nil
}

// Pending counts messages waiting for a worker.
func (q *JobQueue) Pending(ctx context.Context) (int, error) {
	if q == nil || q.db == nil {
		return 0, notConfigured("job queue")
	}
	return q.db.NewSelect().
		Model((*jobRecord)(nil)).
		Where("?TableAlias.status = ?", jobStatusPending).
		Count(ctx)
}

func (q *JobQueue) finish(ctx context.Context, id string, status string, availableAt *time.Time, reason string) error {
	update := q.db.NewUpdate().
		Model((*jobRecord)(nil)).
		Set("status = ?", status).
		Set("locked_until = NULL").
		Set("last_error = ?", strings.TrimSpace(reason)).
		Set("updated_at = ?", q.now()).
		Where("id = ?", id).
		Where("status = ?", jobStatusProcessing)
	if availableAt != nil {
		update = update.Set("available_at = ?", availableAt.UTC())
	}
	_, err := update.Exec(ctx)
	return err
}

type jobDelivery struct {
	queue  *JobQueue
	record jobRecord
}

func (d *jobDelivery) Message() *job.ExecutionMessage {
	return &job.ExecutionMessage{
		JobID:          d.record.JobID,
		ScriptPath:     d.record.ScriptPath,
		Parameters:     copyAnyMap(d.record.Parameters),
		IdempotencyKey: derefString(d.record.IdempotencyKey),
		DedupPolicy:    job.DeduplicationPolicy(d.record.DedupPolicy),
	}
}

// Attempt is the 1-based delivery attempt of the claimed message.
func (d *jobDelivery) Attempt() int {
	return d.record.Attempts
}

func (d *jobDelivery) Ack(ctx context.Context) error {
	return d.queue.finish(ctx, d.record.ID, jobStatusDone, nil, "")
}

func (d *jobDelivery) Nack(ctx context.Context, opts queue.NackOptions) error {
	switch {
	case opts.DeadLetter:
		return d.queue.finish(ctx, d.record.ID, jobStatusDead, nil, opts.Reason)
	case opts.Requeue:
		delay := opts.Delay
		if delay < 0 {
			delay = 0
		}
		next := d.queue.now().Add(delay)
		return d.queue.finish(ctx, d.record.ID, jobStatusPending, &next, opts.Reason)
	default:
		return d.queue.finish(ctx, d.record.ID, jobStatusDropped, nil, opts.Reason)
	}
}
