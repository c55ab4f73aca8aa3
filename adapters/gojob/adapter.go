package gojob

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/goliatone/go-marketplace/core"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
)

const (
	JobIDNotificationDeliver = core.DefaultDeliverJobID
	JobIDOrderFanout         = core.DefaultFanoutJobID
)

// RetryPolicy bounds how often a delivery job is handed back to the queue.
type RetryPolicy struct {
	MaxAttempts     int
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// RetryPolicyFromConfig derives queue bounds from the worker settings.
func RetryPolicyFromConfig(cfg core.Config) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     cfg.Worker.MaxAttempts,
		MaxDelay:        cfg.WorkerMaxDelay(),
		DeadLetterOnMax: true,
	}
}

// Normalize clamps the delay and converts a requeue past MaxAttempts into a
// dead letter (or a drop when DeadLetterOnMax is off).
func (p RetryPolicy) Normalize(opts core.JobNackOptions, attempt int) core.JobNackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	if out.DeadLetter {
		out.Requeue = false
		return out
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Requeue = false
		out.DeadLetter = p.DeadLetterOnMax
		return out
	}
	if !out.Requeue {
		out.Requeue = true
	}
	return out
}

func ToExecutionMessage(msg *core.JobExecutionMessage) *job.ExecutionMessage {
	if msg == nil {
		return nil
	}
	return &job.ExecutionMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		ScriptPath:     strings.TrimSpace(msg.ScriptPath),
		Parameters:     cloneParameters(msg.Parameters),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    job.DeduplicationPolicy(strings.TrimSpace(msg.DedupPolicy)),
	}
}

func FromExecutionMessage(msg *job.ExecutionMessage) *core.JobExecutionMessage {
	if msg == nil {
		return nil
	}
	return &core.JobExecutionMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		ScriptPath:     strings.TrimSpace(msg.ScriptPath),
		Parameters:     cloneParameters(msg.Parameters),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    strings.TrimSpace(string(msg.DedupPolicy)),
	}
}

func toNackOptions(opts core.JobNackOptions) queue.NackOptions {
	return queue.NackOptions{
		Delay:      opts.Delay,
		Requeue:    opts.Requeue,
		DeadLetter: opts.DeadLetter,
		Reason:     opts.Reason,
	}
}

// Enqueuer lets the notification dispatcher publish onto any go-job queue.
type Enqueuer struct {
	enqueuer queue.Enqueuer
}

func NewEnqueuer(enqueuer queue.Enqueuer) *Enqueuer {
	return &Enqueuer{enqueuer: enqueuer}
}

func (a *Enqueuer) Enqueue(ctx context.Context, msg *core.JobExecutionMessage) error {
	if a == nil || a.enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	if msg == nil {
		return fmt.Errorf("gojob: execution message is required")
	}
	return a.enqueuer.Enqueue(ctx, ToExecutionMessage(msg))
}

// Delivery wraps a go-job delivery. Attempt is read from the backend when it
// tracks attempts and every Nack passes through the retry policy.
type Delivery struct {
	delivery queue.Delivery
	policy   RetryPolicy
}

func NewDelivery(delivery queue.Delivery, policy RetryPolicy) *Delivery {
	return &Delivery{delivery: delivery, policy: policy}
}

func (d *Delivery) Message() *core.JobExecutionMessage {
	if d == nil || d.delivery == nil {
		return nil
	}
	return FromExecutionMessage(d.delivery.Message())
}

// Attempt returns the backend's 1-based attempt, or 0 when unknown.
func (d *Delivery) Attempt() int {
	if d == nil || d.delivery == nil {
		return 0
	}
	if attempted, ok := d.delivery.(core.AttemptedDelivery); ok {
		return attempted.Attempt()
	}
	return 0
}

func (d *Delivery) Ack(ctx context.Context) error {
	if d == nil || d.delivery == nil {
		return fmt.Errorf("gojob: delivery is not configured")
	}
	return d.delivery.Ack(ctx)
}

func (d *Delivery) Nack(ctx context.Context, opts core.JobNackOptions) error {
	if d == nil || d.delivery == nil {
		return fmt.Errorf("gojob: delivery is not configured")
	}
	return d.delivery.Nack(ctx, toNackOptions(d.policy.Normalize(opts, d.Attempt())))
}

type Dequeuer struct {
	dequeuer queue.Dequeuer
	policy   RetryPolicy
}

func NewDequeuer(dequeuer queue.Dequeuer, policy RetryPolicy) *Dequeuer {
	return &Dequeuer{dequeuer: dequeuer, policy: policy}
}

func (a *Dequeuer) Dequeue(ctx context.Context) (core.JobDelivery, error) {
	if a == nil || a.dequeuer == nil {
		return nil, fmt.Errorf("gojob: dequeuer is not configured")
	}
	delivery, err := a.dequeuer.Dequeue(ctx)
	if err != nil {
		return nil, err
	}
	if delivery == nil {
		return nil, core.ErrNoJobs
	}
	return NewDelivery(delivery, a.policy), nil
}

// WorkerHook forwards go-job worker events to a marketplace hook.
type WorkerHook struct {
	hook core.JobWorkerHook
}

func NewWorkerHook(hook core.JobWorkerHook) *WorkerHook {
	return &WorkerHook{hook: hook}
}

func (a *WorkerHook) OnStart(ctx context.Context, event worker.Event) {
	if a == nil || a.hook == nil {
		return
	}
	a.hook.OnStart(ctx, workerEvent(event))
}

func (a *WorkerHook) OnSuccess(ctx context.Context, event worker.Event) {
	if a == nil || a.hook == nil {
		return
	}
	a.hook.OnSuccess(ctx, workerEvent(event))
}

func (a *WorkerHook) OnFailure(ctx context.Context, event worker.Event) {
	if a == nil || a.hook == nil {
		return
	}
	a.hook.OnFailure(ctx, workerEvent(event))
}

func (a *WorkerHook) OnRetry(ctx context.Context, event worker.Event) {
	if a == nil || a.hook == nil {
		return
	}
	a.hook.OnRetry(ctx, workerEvent(event))
}

func workerEvent(event worker.Event) core.JobWorkerEvent {
	message := event.Message
	if message == nil && event.Delivery != nil {
		message = event.Delivery.Message()
	}
	return core.JobWorkerEvent{
		Message:   FromExecutionMessage(message),
		Attempt:   event.Attempt,
		Delay:     event.Delay,
		Err:       event.Err,
		StartedAt: event.StartedAt,
		Duration:  event.Duration,
	}
}

func cloneParameters(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	return maps.Clone(in)
}

var (
	_ core.JobEnqueuer       = (*Enqueuer)(nil)
	_ core.JobDelivery       = (*Delivery)(nil)
	_ core.AttemptedDelivery = (*Delivery)(nil)
	_ core.JobDequeuer       = (*Dequeuer)(nil)
	_ worker.Hook            = (*WorkerHook)(nil)
)
