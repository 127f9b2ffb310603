package jobs

import (
	"context"
	"fmt"

	"mediapipe/internal/broker"
	"mediapipe/internal/services"
)

// RequeueDeadLetters moves up to limit dead-lettered jobs back onto their
// work queue with a fresh attempt counter. queue may name either the work
// queue or its dead-letter queue. A limit of zero drains the queue.
func RequeueDeadLetters(ctx context.Context, b broker.Broker, queue string, limit int) (int, error) {
	source, dead, err := resolveDeadLetter(queue)
	if err != nil {
		return 0, err
	}

	moved := 0
	for limit <= 0 || moved < limit {
		d, ok, err := b.Get(ctx, dead)
		if err != nil {
			return moved, fmt.Errorf("get from %s: %w", dead, err)
		}
		if !ok {
			break
		}
		if err := b.Publish(ctx, source, broker.Message{Body: d.Body}); err != nil {
			_ = b.Nack(d, true)
			return moved, fmt.Errorf("publish to %s: %w", source, err)
		}
		if err := b.Ack(d); err != nil {
			return moved, fmt.Errorf("ack %s: %w", dead, err)
		}
		moved++
	}
	return moved, nil
}

func resolveDeadLetter(queue string) (string, string, error) {
	if source, ok := SourceQueue(queue); ok {
		queue = source
	}
	for _, known := range Queues() {
		if known == queue {
			return queue, DeadLetterQueue(queue), nil
		}
	}
	return "", "", services.Wrap(services.ErrValidation, "jobs", "requeue", "unknown queue "+queue, nil)
}
