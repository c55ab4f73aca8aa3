package gologger

import (
	"context"
	"errors"
	"testing"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-marketplace/core"
)

func TestResolveDeterministicFallback(t *testing.T) {
	loggerOnly := &capturingLogger{id: "logger"}
	provider := &capturingProvider{logger: &capturingLogger{id: "provider"}}

	_, resolved := Resolve("marketplace", provider, loggerOnly)
	if got := resolved.(*capturingLogger); got.id != "provider" {
		t.Fatalf("expected provider logger precedence, got %q", got.id)
	}

	resolvedProvider, resolved := Resolve("marketplace", nil, loggerOnly)
	if got := resolved.(*capturingLogger); got.id != "logger" {
		t.Fatalf("expected direct logger when provider is nil, got %q", got.id)
	}
	if resolvedProvider == nil {
		t.Fatalf("expected provider wrapper from logger")
	}

	if _, resolved = Resolve("marketplace", nil, nil); resolved == nil {
		t.Fatalf("expected nop logger fallback")
	}
}

func TestGoJobBridgeCompatibility(t *testing.T) {
	providerLogger := &capturingLogger{id: "provider"}
	provider := &capturingProvider{logger: providerLogger}

	_, _, jobProvider, jobLogger := ResolveForJob("marketplace", provider, nil)
	if jobProvider == nil || jobLogger == nil {
		t.Fatalf("expected go-job logger bridges")
	}

	jobProvider.GetLogger("marketplace").Info("hello", "k", "v")
	if providerLogger.last.msg != "hello" {
		t.Fatalf("expected bridged message, got %q", providerLogger.last.msg)
	}
	if providerLogger.last.args[0] != "k" || providerLogger.last.args[1] != "v" {
		t.Fatalf("expected bridged args, got %#v", providerLogger.last.args)
	}
}

func TestWorkerLogHookLevels(t *testing.T) {
	logger := &capturingLogger{id: "worker"}
	hook := NewWorkerLogHook(logger)
	event := core.JobWorkerEvent{
		Message: &core.JobExecutionMessage{
			JobID:          core.DefaultDeliverJobID,
			IdempotencyKey: "notif-1:email",
			Parameters:     map[string]any{core.JobParamNotificationID: "notif-1", core.JobParamChannel: "email"},
		},
		Attempt: 2,
		Delay:   3 * time.Second,
		Err:     errors.New("smtp down"),
	}

	hook.OnRetry(context.Background(), event)
	if logger.last.level != "warn" || logger.last.msg != "delivery job scheduled for retry" {
		t.Fatalf("expected warn retry log, got %+v", logger.last)
	}
	fields := argsMap(logger.last.args)
	if fields["attempt"] != 2 || fields["channel"] != "email" || fields["delay_ms"] != int64(3000) {
		t.Fatalf("unexpected retry fields: %#v", fields)
	}
	if fields["error"] != "smtp down" {
		t.Fatalf("expected error field, got %#v", fields["error"])
	}

	hook.OnFailure(context.Background(), event)
	if logger.last.level != "error" {
		t.Fatalf("expected error level on failure, got %q", logger.last.level)
	}

	hook.OnSuccess(context.Background(), core.JobWorkerEvent{Attempt: 1})
	if logger.last.level != "debug" {
		t.Fatalf("expected debug level on success, got %q", logger.last.level)
	}
}

func TestWorkerLogHookNilLogger(t *testing.T) {
	hook := NewWorkerLogHook(nil)
	hook.OnStart(context.Background(), core.JobWorkerEvent{})
	var empty *WorkerLogHook
	empty.OnFailure(context.Background(), core.JobWorkerEvent{})
}

func argsMap(args []any) map[string]any {
	out := map[string]any{}
	for i := 0; i+1 < len(args); i += 2 {
		key, _ := args[i].(string)
		out[key] = args[i+1]
	}
	return out
}

var (
	_ glog.Logger         = (*capturingLogger)(nil)
	_ glog.LoggerProvider = (*capturingProvider)(nil)
)

type capturingProvider struct {
	logger *capturingLogger
}

func (p *capturingProvider) GetLogger(string) glog.Logger {
	if p == nil || p.logger == nil {
		return glog.Nop()
	}
	return p.logger
}

type logCall struct {
	level string
	msg   string
	args  []any
}

type capturingLogger struct {
	id   string
	last logCall
}

func (l *capturingLogger) record(level, msg string, args []any) {
	l.last = logCall{level: level, msg: msg, args: append([]any(nil), args...)}
}

func (l *capturingLogger) Trace(msg string, args ...any) { l.record("trace", msg, args) }
func (l *capturingLogger) Debug(msg string, args ...any) { l.record("debug", msg, args) }
func (l *capturingLogger) Info(msg string, args ...any)  { l.record("info", msg, args) }
func (l *capturingLogger) Warn(msg string, args ...any)  { l.record("warn", msg, args) }
func (l *capturingLogger) Error(msg string, args ...any) { l.record("error", msg, args) }
func (l *capturingLogger) Fatal(msg string, args ...any) { l.record("fatal", msg, args) }

func (l *capturingLogger) WithContext(context.Context) glog.Logger {
	return l
}
