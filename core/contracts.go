package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// OrderStore persists orders. UpdateIfStatus applies the update only while the
// stored status still equals expected and returns ErrStaleState otherwise.
type OrderStore interface {
	Create(ctx context.Context, order Order) (Order, error)
	Get(ctx context.Context, id string) (Order, error)
	UpdateIfStatus(ctx context.Context, order Order, expected OrderStatus) (Order, error)
	SoftDelete(ctx context.Context, id string, expected OrderStatus, at time.Time) error
	Search(ctx context.Context, filter OrderFilter) (OrderPage, error)
}

// ProposalStore persists proposals. Create inserts only while the order is
// published, public and not deleted, checked in the same statement as the
// insert; otherwise it returns an error wrapping ErrStaleState. It returns an
// error wrapping ErrUniqueViolation when the (order, contractor) pair already
// exists.
type ProposalStore interface {
	Create(ctx context.Context, proposal Proposal) (Proposal, error)
	Get(ctx context.Context, id string) (Proposal, error)
	UpdateIfStatus(ctx context.Context, proposal Proposal, expected ProposalStatus) (Proposal, error)
	ListByOrder(ctx context.Context, orderID string) ([]Proposal, error)
	ListByContractor(ctx context.Context, contractorID string, filter ProposalFilter) (ProposalPage, error)
}

type AssignContractorInput struct {
	OrderID      string
	ContractorID string
	AgreedPrice  int64
	StartedAt    time.Time
}

// TxStores exposes the writes allowed inside a UnitOfWork transaction.
type TxStores interface {
	// GetOrder reads the order and, where the database supports it, holds a
	// row lock on it until the transaction ends.
	GetOrder(ctx context.Context, id string) (Order, error)
	GetProposal(ctx context.Context, id string) (Proposal, error)
	// TransitionProposal moves a proposal from one status to another and
	// reports whether a row matched.
	TransitionProposal(ctx context.Context, proposalID string, from ProposalStatus, to ProposalStatus, at time.Time) (bool, error)
	// RejectPendingProposals rejects every pending proposal of an order except
	// the given one and returns only the proposals this call moved.
	RejectPendingProposals(ctx context.Context, orderID string, exceptProposalID string, at time.Time) ([]Proposal, error)
	// AssignContractor moves a published order to in_progress and reports
	// whether the order was still published.
	AssignContractor(ctx context.Context, in AssignContractorInput) (bool, error)
	EnqueueOutbox(ctx context.Context, event OutboxEvent) error
}

type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx TxStores) error) error
}

type NotificationStore interface {
	Create(ctx context.Context, notification Notification) (Notification, error)
	Get(ctx context.Context, id string) (Notification, error)
	List(ctx context.Context, userID string, filter NotificationFilter) (NotificationPage, error)
	MarkRead(ctx context.Context, userID string, id string, at time.Time) (bool, error)
	MarkAllRead(ctx context.Context, userID string, at time.Time) (int, error)
	MarkSent(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, userID string, id string) (bool, error)
	DeleteAll(ctx context.Context, userID string) (int, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// PreferenceStore returns an error wrapping ErrNotFound when the user has no
// stored preferences.
type PreferenceStore interface {
	Get(ctx context.Context, userID string) (NotificationPreferences, error)
	Upsert(ctx context.Context, prefs NotificationPreferences) (NotificationPreferences, error)
}

type CategoryDirectory interface {
	GetCategory(ctx context.Context, id string) (Category, error)
}

type UserDirectory interface {
	GetUser(ctx context.Context, id string) (User, error)
	ListContractors(ctx context.Context, filter ContractorFilter) ([]User, error)
}

type AuditEvent struct {
	Action     string
	ActorID    string
	ObjectType string
	ObjectID   string
	Metadata   map[string]any
	OccurredAt time.Time
}

// AuditSink records audit events. Callers never wait on it for correctness.
type AuditSink interface {
	Log(ctx context.Context, event AuditEvent) error
}

// NotificationSender is the narrow contract order and proposal flows depend on.
type NotificationSender interface {
	Send(ctx context.Context, req NotificationRequest) error
}

type RealtimePublisher interface {
	SendToUser(ctx context.Context, userID string, notification Notification) error
	UpdateUnreadCount(ctx context.Context, userID string, count int) error
}

type EmailMessage struct {
	To          string
	ToName      string
	Subject     string
	Body        string
	ActionURL   string
	TemplateKey string
	Metadata    map[string]any
}

type EmailSender interface {
	SendEmail(ctx context.Context, msg EmailMessage) error
}

type PushMessage struct {
	UserID       string
	DeviceTokens []string
	Title        string
	Body         string
	Priority     NotificationPriority
	Data         map[string]string
}

type PushSender interface {
	SendPush(ctx context.Context, msg PushMessage) error
}

type JobExecutionMessage struct {
	JobID          string
	ScriptPath     string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

type OutboxEvent struct {
	ID            string
	Name          string
	AggregateType string
	AggregateID   string
	OccurredAt    time.Time
	Payload       map[string]any
	Metadata      map[string]any
}

type OutboxStore interface {
	ClaimBatch(ctx context.Context, limit int) ([]OutboxEvent, error)
	Ack(ctx context.Context, eventID string) error
	Retry(ctx context.Context, eventID string, cause error, nextAttemptAt time.Time) error
}

type OutboxHandler interface {
	Handle(ctx context.Context, event OutboxEvent) error
}

type DispatchStats struct {
	Claimed   int
	Delivered int
	Retried   int
	Failed    int
}

type DispatchRecord struct {
	IdempotencyKey string
	NotificationID string
	Channel        Channel
	RecipientKey   string
	Status         string
	Error          string
	Metadata       map[string]any
}

// DispatchLedger guarantees at most one successful delivery per idempotency
// key. Claim reports false when the key is already claimed.
type DispatchLedger interface {
	Claim(ctx context.Context, record DispatchRecord) (bool, error)
	Complete(ctx context.Context, idempotencyKey string, status string, errText string) error
	Release(ctx context.Context, idempotencyKey string) error
}
