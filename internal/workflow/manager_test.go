package workflow_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"mediapipe/internal/broker"
	"mediapipe/internal/jobs"
	"mediapipe/internal/logging"
	"mediapipe/internal/notifications"
	"mediapipe/internal/services"
	"mediapipe/internal/stage"
	"mediapipe/internal/testsupport"
	"mediapipe/internal/workflow"
)

type stubNotifier struct {
	mu     sync.Mutex
	events []notifications.Event
	loads  []notifications.Payload
}

func (s *stubNotifier) Publish(_ context.Context, event notifications.Event, payload notifications.Payload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	s.loads = append(s.loads, payload)
	return nil
}

func (s *stubNotifier) snapshot() ([]notifications.Event, []notifications.Payload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]notifications.Event(nil), s.events...), append([]notifications.Payload(nil), s.loads...)
}

// scriptedHandler returns outcomes in order, repeating the last one.
type scriptedHandler struct {
	queue    string
	outcomes []func() stage.Outcome

	mu       sync.Mutex
	attempts []int
	redeliv  []bool
}

func (h *scriptedHandler) Name() string  { return "scripted" }
func (h *scriptedHandler) Queue() string { return h.queue }

func (h *scriptedHandler) HealthCheck(context.Context) stage.Health {
	return stage.Healthy(h.Name())
}

func (h *scriptedHandler) Handle(_ context.Context, d broker.Delivery) stage.Outcome {
	h.mu.Lock()
	idx := len(h.attempts)
	h.attempts = append(h.attempts, d.Attempt)
	h.redeliv = append(h.redeliv, d.Redelivered)
	h.mu.Unlock()
	if idx >= len(h.outcomes) {
		idx = len(h.outcomes) - 1
	}
	return h.outcomes[idx]()
}

func (h *scriptedHandler) calls() ([]int, []bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]int(nil), h.attempts...), append([]bool(nil), h.redeliv...)
}

func startManager(t *testing.T, maxAttempts int, h stage.Handler) (*broker.Memory, *stubNotifier, *workflow.Manager) {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithMaxAttempts(maxAttempts), testsupport.WithFastRetries())
	mem := broker.NewMemory(cfg.Broker.Prefetch)
	notifier := &stubNotifier{}
	mgr := workflow.NewManager(cfg, mem, logging.NewNop(), notifier)
	mgr.Register(h)
	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		mgr.Stop()
		_ = mem.Close()
	})
	return mem, notifier, mgr
}

func publish(t *testing.T, mem *broker.Memory, queue, body string) {
	t.Helper()
	if err := mem.Publish(context.Background(), queue, broker.Message{Body: []byte(body)}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
}

func TestManagerAcksCompletedJobs(t *testing.T) {
	h := &scriptedHandler{queue: "q", outcomes: []func() stage.Outcome{stage.Done}}
	mem, notifier, _ := startManager(t, 3, h)

	publish(t, mem, "q", `{"fileId":"f1"}`)
	testsupport.Eventually(t, 2*time.Second, func() bool { return mem.Stats("q").Acked == 1 }, "job acked")

	if events, _ := notifier.snapshot(); len(events) != 0 {
		t.Fatalf("expected no alerts, got %v", events)
	}
}

func TestManagerDropsInvalidJobsWithAlert(t *testing.T) {
	h := &scriptedHandler{queue: "q", outcomes: []func() stage.Outcome{func() stage.Outcome {
		return stage.Classify(services.Wrap(services.ErrValidation, "jobs", "decode", "malformed", nil))
	}}}
	mem, notifier, _ := startManager(t, 3, h)

	publish(t, mem, "q", `{"fileId":"f1"}`)
	testsupport.Eventually(t, 2*time.Second, func() bool { return mem.Stats("q").Nacked == 1 }, "job dropped")

	stats := mem.Stats("q")
	if stats.Requeued != 0 || stats.Depth != 0 {
		t.Fatalf("dropped job must not be requeued: %+v", stats)
	}
	testsupport.Eventually(t, time.Second, func() bool {
		events, _ := notifier.snapshot()
		return len(events) == 1 && events[0] == notifications.EventJobDropped
	}, "drop alert sent")
	_, loads := notifier.snapshot()
	if loads[0]["fileId"] != "f1" || loads[0]["queue"] != "q" {
		t.Fatalf("unexpected alert payload %+v", loads[0])
	}
}

func TestManagerDeadLettersAfterMaxAttempts(t *testing.T) {
	h := &scriptedHandler{queue: "q", outcomes: []func() stage.Outcome{func() stage.Outcome {
		return stage.Classify(services.Wrap(services.ErrTransient, "upload", "", "503", nil))
	}}}
	mem, notifier, _ := startManager(t, 3, h)

	publish(t, mem, "q", `{"fileId":"f1"}`)
	dlq := jobs.DeadLetterQueue("q")
	testsupport.Eventually(t, 2*time.Second, func() bool { return len(mem.Messages(dlq)) == 1 }, "job dead-lettered")

	attempts, _ := h.calls()
	if len(attempts) != 3 || attempts[0] != 0 || attempts[1] != 1 || attempts[2] != 2 {
		t.Fatalf("expected attempts 0,1,2, got %v", attempts)
	}
	msg := mem.Messages(dlq)[0]
	if string(msg.Body) != `{"fileId":"f1"}` {
		t.Fatalf("dead-lettered body changed: %q", msg.Body)
	}
	testsupport.Eventually(t, time.Second, func() bool { return mem.Stats("q").Acked == 3 }, "all attempts acked")
	if depth := mem.Stats("q").Depth; depth != 0 {
		t.Fatalf("expected source queue drained, depth %d", depth)
	}
	events, _ := notifier.snapshot()
	if len(events) != 1 || events[0] != notifications.EventJobDeadLettered {
		t.Fatalf("expected one dead-letter alert, got %v", events)
	}
}

func TestManagerRequeuesNotReadyWithoutCeiling(t *testing.T) {
	notReady := func() stage.Outcome {
		return stage.Classify(services.Wrap(services.ErrNotReady, "notify", "", "waiting for description", nil))
	}
	outcomes := []func() stage.Outcome{notReady, notReady, notReady, notReady, stage.Done}
	h := &scriptedHandler{queue: "q", outcomes: outcomes}
	mem, _, _ := startManager(t, 2, h)

	publish(t, mem, "q", `{}`)
	testsupport.Eventually(t, 2*time.Second, func() bool { return mem.Stats("q").Acked == 1 }, "job eventually acked")

	attempts, redelivered := h.calls()
	if len(attempts) != 5 {
		t.Fatalf("expected 5 deliveries beyond the attempt ceiling, got %d", len(attempts))
	}
	for i, a := range attempts {
		if a != 0 {
			t.Fatalf("not-ready requeue must not count attempts, got %v", attempts)
		}
		if (i > 0) != redelivered[i] {
			t.Fatalf("unexpected redelivered flags %v", redelivered)
		}
	}
	if stats := mem.Stats("q"); stats.Requeued != 4 || len(mem.Messages(jobs.DeadLetterQueue("q"))) != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestManagerRecoversHandlerPanics(t *testing.T) {
	outcomes := []func() stage.Outcome{
		func() stage.Outcome { panic("boom") },
		stage.Done,
	}
	h := &scriptedHandler{queue: "q", outcomes: outcomes}
	mem, _, mgr := startManager(t, 3, h)

	publish(t, mem, "q", `{}`)
	testsupport.Eventually(t, 2*time.Second, func() bool {
		attempts, _ := h.calls()
		return len(attempts) == 2
	}, "panicking job retried")
	attempts, _ := h.calls()
	if attempts[1] != 1 {
		t.Fatalf("expected panic to count as a bounded retry, got %v", attempts)
	}
	if !mgr.Running() {
		t.Fatal("manager stopped after panic")
	}
}

func TestManagerStopWaitsForInFlight(t *testing.T) {
	release := make(chan struct{})
	finished := make(chan struct{})
	h := &scriptedHandler{queue: "q", outcomes: []func() stage.Outcome{func() stage.Outcome {
		<-release
		close(finished)
		return stage.Done()
	}}}

	cfg := testsupport.NewConfig(t, testsupport.WithFastRetries())
	mem := broker.NewMemory(cfg.Broker.Prefetch)
	mgr := workflow.NewManager(cfg, mem, logging.NewNop(), &stubNotifier{})
	mgr.Register(h)
	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	publish(t, mem, "q", `{}`)
	testsupport.Eventually(t, 2*time.Second, func() bool {
		attempts, _ := h.calls()
		return len(attempts) == 1
	}, "job started")

	stopped := make(chan struct{})
	go func() {
		mgr.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
		t.Fatal("Stop returned before in-flight job finished")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	<-finished
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
	if mem.Stats("q").Acked != 1 {
		t.Fatalf("expected in-flight job to be acked, got %+v", mem.Stats("q"))
	}
}

func TestManagerStartRequiresHandlers(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	mgr := workflow.NewManager(cfg, broker.NewMemory(1), logging.NewNop(), &stubNotifier{})
	if err := mgr.Start(context.Background()); err == nil {
		t.Fatal("expected error without handlers")
	}
}

func TestStatusReportsStageHealth(t *testing.T) {
	h := &scriptedHandler{queue: "q", outcomes: []func() stage.Outcome{stage.Done}}
	_, _, mgr := startManager(t, 3, h)

	status := mgr.Status(context.Background())
	if !status.Running || len(status.Queues) != 1 || status.Queues[0] != "q" {
		t.Fatalf("unexpected status %+v", status)
	}
	if health := status.StageHealth["scripted"]; !health.Ready {
		t.Fatalf("expected ready stage, got %+v", health)
	}
}
