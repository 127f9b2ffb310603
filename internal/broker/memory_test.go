package broker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"mediapipe/internal/broker"
	"mediapipe/internal/testsupport"
)

func TestMemoryPublishConsumeAck(t *testing.T) {
	mem := broker.NewMemory(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := mem.Publish(ctx, "jobs", broker.Message{Body: []byte(`{"a":1}`), Attempt: 2}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	got := make(chan broker.Delivery, 1)
	go func() {
		_ = mem.Consume(ctx, "jobs", func(d broker.Delivery) {
			got <- d
		})
	}()

	var d broker.Delivery
	select {
	case d = <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("no delivery received")
	}
	if string(d.Body) != `{"a":1}` || d.Attempt != 2 || d.Redelivered || d.Queue != "jobs" {
		t.Fatalf("unexpected delivery %+v", d)
	}
	if err := mem.Ack(d); err != nil {
		t.Fatalf("Ack: %v", err)
	}
	if err := mem.Ack(d); err == nil {
		t.Fatal("expected second ack to fail")
	}
	stats := mem.Stats("jobs")
	if stats.Published != 1 || stats.Acked != 1 || stats.Depth != 0 || stats.InFlight != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestMemoryNackRequeueRedelivers(t *testing.T) {
	mem := broker.NewMemory(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_ = mem.Publish(ctx, "jobs", broker.Message{Body: []byte("x")})

	var (
		mu   sync.Mutex
		seen []broker.Delivery
	)
	go func() {
		_ = mem.Consume(ctx, "jobs", func(d broker.Delivery) {
			mu.Lock()
			seen = append(seen, d)
			first := len(seen) == 1
			mu.Unlock()
			if first {
				_ = mem.Nack(d, true)
				return
			}
			_ = mem.Ack(d)
		})
	}()

	testsupport.Eventually(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 2
	}, "message redelivered")

	mu.Lock()
	defer mu.Unlock()
	if seen[0].Redelivered || !seen[1].Redelivered {
		t.Fatalf("expected only second delivery to be redelivered: %+v", seen)
	}
	stats := mem.Stats("jobs")
	if stats.Nacked != 1 || stats.Requeued != 1 || stats.Acked != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestMemoryNackDropDiscards(t *testing.T) {
	mem := broker.NewMemory(1)
	ctx := context.Background()
	_ = mem.Publish(ctx, "jobs", broker.Message{Body: []byte("x")})

	d, ok, err := mem.Get(ctx, "jobs")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if err := mem.Nack(d, false); err != nil {
		t.Fatalf("Nack: %v", err)
	}
	if _, ok, _ := mem.Get(ctx, "jobs"); ok {
		t.Fatal("expected dropped message to be gone")
	}
	if stats := mem.Stats("jobs"); stats.Nacked != 1 || stats.Requeued != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestMemoryPrefetchBoundsInFlight(t *testing.T) {
	mem := broker.NewMemory(2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for i := 0; i < 5; i++ {
		_ = mem.Publish(ctx, "jobs", broker.Message{Body: []byte{byte(i)}})
	}

	held := make(chan broker.Delivery, 5)
	go func() {
		_ = mem.Consume(ctx, "jobs", func(d broker.Delivery) { held <- d })
	}()

	testsupport.Eventually(t, 2*time.Second, func() bool { return len(held) == 2 }, "two deliveries held")
	time.Sleep(50 * time.Millisecond)
	if len(held) != 2 {
		t.Fatalf("expected prefetch to cap deliveries at 2, got %d", len(held))
	}
	if stats := mem.Stats("jobs"); stats.InFlight != 2 || stats.Depth != 3 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	_ = mem.Ack(<-held)
	testsupport.Eventually(t, 2*time.Second, func() bool { return len(held) == 2 }, "slot released")
}

func TestMemoryConsumeStopsOnCancelAndClose(t *testing.T) {
	mem := broker.NewMemory(1)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- mem.Consume(ctx, "jobs", func(broker.Delivery) {}) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil on cancel, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("consume did not stop")
	}

	_ = mem.Close()
	if err := mem.Publish(context.Background(), "jobs", broker.Message{}); !errors.Is(err, broker.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := mem.Consume(context.Background(), "jobs", func(broker.Delivery) {}); !errors.Is(err, broker.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestMemoryMessagesSnapshot(t *testing.T) {
	mem := broker.NewMemory(1)
	_ = mem.Publish(context.Background(), "dlq", broker.Message{Body: []byte("a"), Attempt: 9})
	msgs := mem.Messages("dlq")
	if len(msgs) != 1 || string(msgs[0].Body) != "a" || msgs[0].Attempt != 9 {
		t.Fatalf("unexpected snapshot %+v", msgs)
	}
	if mem.Messages("missing") != nil {
		t.Fatal("expected nil for unknown queue")
	}
}
