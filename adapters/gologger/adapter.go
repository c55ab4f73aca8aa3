package gologger

import (
	"context"
	"strings"

	"github.com/goliatone/go-marketplace/core"

	job "github.com/goliatone/go-job"
	glog "github.com/goliatone/go-logger/glog"
)

// Resolve picks provider, then logger, then a nop logger.
func Resolve(name string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	return glog.Resolve(name, provider, logger)
}

// ResolveForJob resolves the marketplace logger and returns the go-job views
// of the same logger for queue workers.
func ResolveForJob(
	name string,
	provider glog.LoggerProvider,
	logger glog.Logger,
) (glog.LoggerProvider, glog.Logger, job.LoggerProvider, job.Logger) {
	resolvedProvider, resolvedLogger := Resolve(name, provider, logger)
	var jobProvider job.LoggerProvider
	if resolvedProvider != nil {
		jobProvider = job.GoLoggerProvider(resolvedProvider)
	}
	var jobLogger job.Logger
	if resolvedLogger != nil {
		jobLogger = job.GoLogger(resolvedLogger)
	}
	return resolvedProvider, resolvedLogger, jobProvider, jobLogger
}

// WorkerLogHook writes delivery worker lifecycle events to a logger. Start
// and success are logged at debug, retries at warn and failures at error.
type WorkerLogHook struct {
	logger glog.Logger
}

func NewWorkerLogHook(logger glog.Logger) *WorkerLogHook {
	if logger == nil {
		logger = glog.Nop()
	}
	return &WorkerLogHook{logger: logger}
}

func (h *WorkerLogHook) OnStart(ctx context.Context, event core.JobWorkerEvent) {
	h.log(ctx).Debug("delivery job started", workerArgs(event)...)
}

func (h *WorkerLogHook) OnSuccess(ctx context.Context, event core.JobWorkerEvent) {
	h.log(ctx).Debug("delivery job succeeded", workerArgs(event)...)
}

func (h *WorkerLogHook) OnFailure(ctx context.Context, event core.JobWorkerEvent) {
	h.log(ctx).Error("delivery job failed", workerArgs(event)...)
}

func (h *WorkerLogHook) OnRetry(ctx context.Context, event core.JobWorkerEvent) {
	h.log(ctx).Warn("delivery job scheduled for retry", workerArgs(event)...)
}

func (h *WorkerLogHook) log(ctx context.Context) glog.Logger {
	if h == nil || h.logger == nil {
		return glog.Nop()
	}
	return h.logger.WithContext(ctx)
}

func workerArgs(event core.JobWorkerEvent) []any {
	args := []any{"attempt", event.Attempt}
	if msg := event.Message; msg != nil {
		args = append(args, "job_id", msg.JobID)
		if key := strings.TrimSpace(msg.IdempotencyKey); key != "" {
			args = append(args, "idempotency_key", key)
		}
		for _, param := range []string{core.JobParamNotificationID, core.JobParamChannel, core.JobParamOrderID} {
			if value, ok := msg.Parameters[param]; ok {
				args = append(args, param, value)
			}
		}
	}
	if event.Delay > 0 {
		args = append(args, "delay_ms", event.Delay.Milliseconds())
	}
	if event.Duration > 0 {
		args = append(args, "duration_ms", event.Duration.Milliseconds())
	}
	if event.Err != nil {
		args = append(args, "error", event.Err.Error())
	}
	return args
}

var _ core.JobWorkerHook = (*WorkerLogHook)(nil)
