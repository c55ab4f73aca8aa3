package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-marketplace/core"
	"github.com/goliatone/go-marketplace/realtime"
	"github.com/gorilla/websocket"
)

func testSettings(t *testing.T) Settings {
	t.Helper()
	cfg := core.DefaultConfig()
	cfg.Outbox.Enabled = true
	return Settings{
		Database: DatabaseSettings{
			Driver: "sqlite3",
			DSN:    fmt.Sprintf("file:marketplaced-%d?mode=memory&cache=shared&_foreign_keys=on", time.Now().UnixNano()),
		},
		HTTP:        HTTPSettings{Addr: "127.0.0.1:0"},
		Realtime:    RealtimeSettings{TokenSecret: "test-secret"},
		Metrics:     MetricsSettings{Enabled: false},
		Marketplace: cfg,
	}
}

func newTestDaemon(t *testing.T) *daemon {
	t.Helper()
	d, err := newDaemon(context.Background(), testSettings(t), nil)
	if err != nil {
		t.Fatalf("new daemon: %v", err)
	}
	t.Cleanup(d.close)
	return d
}

func TestNewDaemon_WiresBackgroundComponents(t *testing.T) {
	d := newTestDaemon(t)
	if d.worker == nil {
		t.Fatalf("expected delivery worker")
	}
	if d.outbox == nil {
		t.Fatalf("expected outbox dispatcher when outbox is enabled")
	}
	if d.subscriptions == nil || d.subscriptions.Len() != 23 {
		t.Fatalf("expected 23 command and query subscriptions, got %v", d.subscriptions)
	}
	found, err := d.worker.ProcessNext(context.Background())
	if err != nil {
		t.Fatalf("process next on empty queue: %v", err)
	}
	if found {
		t.Fatalf("expected empty job queue")
	}
}

func TestNewDaemon_RejectsUnknownDriver(t *testing.T) {
	settings := testSettings(t)
	settings.Database.Driver = "oracle"
	if _, err := newDaemon(context.Background(), settings, nil); err == nil {
		t.Fatalf("expected unsupported driver error")
	}
}

func TestDaemonServer_HealthAndRealtime(t *testing.T) {
	d := newTestDaemon(t)
	server := httptest.NewServer(d.server.Handler)
	defer server.Close()

	resp, err := http.Get(server.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204 from healthz, got %d", resp.StatusCode)
	}

	wsBase := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	_, resp, err = websocket.DefaultDialer.Dial(wsBase, nil)
	if err == nil {
		t.Fatalf("expected unauthenticated dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a token, got %+v", resp)
	}

	token, err := realtime.NewHMACTokenVerifier("test-secret").Issue("client-1", time.Minute)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, _, err := websocket.DefaultDialer.Dial(wsBase, header)
	if err != nil {
		t.Fatalf("dial realtime: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var event realtime.Event
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("read initial event: %v", err)
	}
	if event.Type != realtime.EventUnreadCount || event.Count == nil || *event.Count != 0 {
		t.Fatalf("expected zero unread count event, got %+v", event)
	}
}
