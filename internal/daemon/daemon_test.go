package daemon_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"mediapipe/internal/api"
	"mediapipe/internal/broker"
	"mediapipe/internal/daemon"
	"mediapipe/internal/jobs"
	"mediapipe/internal/logging"
	"mediapipe/internal/notifications"
	"mediapipe/internal/stage"
	"mediapipe/internal/testsupport"
	"mediapipe/internal/workflow"
)

type noopHandler struct{}

func (noopHandler) Name() string  { return "noop" }
func (noopHandler) Queue() string { return jobs.QueueFileCreating }

func (noopHandler) Handle(context.Context, broker.Delivery) stage.Outcome { return stage.Done() }

func (noopHandler) HealthCheck(context.Context) stage.Health { return stage.Healthy("noop") }

type countingHub struct{ closed int }

func (h *countingHub) ClientCount() int { return 3 }
func (h *countingHub) Close()           { h.closed++ }

func newDaemon(t *testing.T) (*daemon.Daemon, *broker.Memory, *countingHub) {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithFastRetries())
	cfg.Server.APIToken = "secret"
	st := testsupport.MustOpenStore(t, cfg)
	mem := broker.NewMemory(cfg.Broker.Prefetch)
	t.Cleanup(func() { _ = mem.Close() })

	mgr := workflow.NewManager(cfg, mem, logging.NewNop(), notifications.NewService(cfg))
	mgr.Register(noopHandler{})
	hub := &countingHub{}

	d, err := daemon.New(cfg, st, mem, mgr, hub, api.Options{
		Files:    st,
		APIToken: cfg.Server.APIToken,
		Health: []api.HealthFunc{func(context.Context) stage.Health {
			return stage.Healthy("store")
		}},
	}, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(d.Stop)
	return d, mem, hub
}

func TestDaemonStartStop(t *testing.T) {
	d, mem, hub := newDaemon(t)
	ctx := context.Background()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	status := d.Status(ctx)
	if !status.Running || !status.Workflow.Running {
		t.Fatalf("expected running status, got %+v", status)
	}
	if status.RealtimeClients != 3 {
		t.Fatalf("expected hub client count, got %d", status.RealtimeClients)
	}
	if status.LockFilePath == "" || status.DatabasePath == "" {
		t.Fatalf("expected paths in status, got %+v", status)
	}

	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second Start to fail")
	}

	if err := jobs.Publish(ctx, mem, jobs.FileCreationJob{FileID: "f1"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	testsupport.Eventually(t, 2*time.Second, func() bool {
		return mem.Stats(jobs.QueueFileCreating).Acked == 1
	}, "creation job consumed")

	d.Stop()
	if d.Status(ctx).Running {
		t.Fatal("expected daemon stopped")
	}
	if hub.closed != 1 {
		t.Fatalf("expected hub closed once, got %d", hub.closed)
	}
}

func TestDaemonServesAPI(t *testing.T) {
	d, _, _ := newDaemon(t)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	base := "http://" + d.Address()
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(base + "/api/health")
	if err != nil {
		t.Fatalf("GET health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from health, got %d", resp.StatusCode)
	}

	resp, err = client.Get(base + "/api/status")
	if err != nil {
		t.Fatalf("GET status: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, base+"/api/status", nil)
	req.Header.Set("Authorization", "Bearer secret")
	resp, err = client.Do(req)
	if err != nil {
		t.Fatalf("GET status: %v", err)
	}
	defer resp.Body.Close()
	var status api.DaemonStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !status.Running || status.RealtimeClients != 3 || len(status.Workflow.Queues) != 1 {
		t.Fatalf("unexpected status payload %+v", status)
	}
	if _, ok := status.FileStats["processing"]; !ok {
		t.Fatalf("expected zero-filled file stats, got %v", status.FileStats)
	}
}

func TestSecondDaemonIsLockedOut(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	build := func() *daemon.Daemon {
		mem := broker.NewMemory(1)
		t.Cleanup(func() { _ = mem.Close() })
		mgr := workflow.NewManager(cfg, mem, logging.NewNop(), notifications.NewService(cfg))
		mgr.Register(noopHandler{})
		d, err := daemon.New(cfg, st, mem, mgr, nil, api.Options{}, logging.NewNop())
		if err != nil {
			t.Fatalf("daemon.New: %v", err)
		}
		t.Cleanup(d.Stop)
		return d
	}

	first, second := build(), build()
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if err := second.Start(context.Background()); err == nil {
		t.Fatal("expected lock contention error")
	}
	first.Stop()
	if err := second.Start(context.Background()); err != nil {
		t.Fatalf("second Start after release: %v", err)
	}
}
