package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"mediapipe/internal/broker"
	"mediapipe/internal/jobs"
	"mediapipe/internal/logging"
	"mediapipe/internal/metrics"
	"mediapipe/internal/notifications"
	"mediapipe/internal/services"
	"mediapipe/internal/stage"
)

func (m *Manager) consume(runCtx, workCtx context.Context, h stage.Handler) {
	defer m.loops.Done()
	queue := h.Queue()
	logger := m.logger.With(
		logging.String(logging.FieldComponent, fmt.Sprintf("workflow-%s-runner", h.Name())),
		logging.String(logging.FieldQueue, queue),
	)
	sem := make(chan struct{}, m.prefetch)

	for {
		err := m.broker.Consume(runCtx, queue, func(d broker.Delivery) {
			select {
			case sem <- struct{}{}:
			case <-runCtx.Done():
				_ = m.broker.Nack(d, true)
				return
			}
			m.inflight.Add(1)
			go func() {
				defer func() {
					<-sem
					m.inflight.Done()
				}()
				m.process(workCtx, logger, h, d)
			}()
		})
		if runCtx.Err() != nil {
			return
		}
		m.setLastError(err)
		logger.Error("consume loop stopped; resubscribing",
			logging.Error(err),
			logging.String(logging.FieldEventType, "consume_failed"),
			logging.String(logging.FieldErrorHint, "check broker connectivity"),
		)
		select {
		case <-runCtx.Done():
			return
		case <-time.After(m.resubscribe):
		}
	}
}

func (m *Manager) process(ctx context.Context, base *slog.Logger, h stage.Handler, d broker.Delivery) {
	ctx = services.WithQueue(ctx, d.Queue)
	ctx = services.WithStage(ctx, h.Name())
	ctx = services.WithAttempt(ctx, d.Attempt)
	ctx = services.WithRequestID(ctx, uuid.NewString())
	ctx = services.WithFileID(ctx, peekFileID(d.Body))
	logger := logging.WithContext(ctx, base)

	metrics.InFlight.WithLabelValues(d.Queue).Inc()
	defer metrics.InFlight.WithLabelValues(d.Queue).Dec()

	start := time.Now()
	outcome := m.safeHandle(ctx, logger, h, d)
	metrics.JobDuration.WithLabelValues(d.Queue).Observe(time.Since(start).Seconds())
	if outcome.Err != nil {
		metrics.JobErrorsTotal.WithLabelValues(d.Queue, services.MarkerName(outcome.Err)).Inc()
	}

	m.settle(ctx, logger, d, outcome)
}

func (m *Manager) safeHandle(ctx context.Context, logger *slog.Logger, h stage.Handler, d broker.Delivery) (outcome stage.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			metrics.JobsTotal.WithLabelValues(d.Queue, metrics.OutcomePanic).Inc()
			logger.Error("stage handler panicked",
				logging.Any("panic", r),
				logging.String("stack", string(debug.Stack())),
				logging.String(logging.FieldEventType, "stage_panic"),
				logging.String(logging.FieldErrorHint, "report this as a bug"),
			)
			outcome = stage.Retry(services.Wrap(services.ErrTransient, h.Name(), "handle", fmt.Sprintf("panic: %v", r), nil))
		}
	}()
	return h.Handle(ctx, d)
}

func (m *Manager) settle(ctx context.Context, logger *slog.Logger, d broker.Delivery, outcome stage.Outcome) {
	switch outcome.Result {
	case stage.Ack:
		m.ack(logger, d)
		metrics.JobsTotal.WithLabelValues(d.Queue, stage.Ack.String()).Inc()
		logger.Debug("job completed", logging.String(logging.FieldEventType, "job_completed"))

	case stage.NackDrop:
		m.nack(logger, d, false)
		metrics.JobsTotal.WithLabelValues(d.Queue, stage.NackDrop.String()).Inc()
		logging.ErrorWithContext(logger, "job dropped", "job_dropped",
			logging.Error(outcome.Err),
			logging.Alert("job_dropped"),
			logging.String(logging.FieldErrorHint, "inspect the publisher of this payload"),
		)
		m.alert(ctx, logger, notifications.EventJobDropped, notifications.Payload{
			"queue": d.Queue,
			"error": outcome.Err,
		})

	case stage.NackRequeue:
		metrics.JobsTotal.WithLabelValues(d.Queue, stage.NackRequeue.String()).Inc()
		switch {
		case outcome.Shutdown:
			m.nack(logger, d, true)
			logger.Debug("job interrupted by shutdown; requeued")
		case outcome.Unbounded:
			m.sleep(ctx, outcome.Delay(m.retryDelay, m.notReadyDelay))
			m.nack(logger, d, true)
			logger.Debug("dependency not ready; requeued",
				logging.String(logging.FieldEventType, "job_not_ready"),
				logging.Error(outcome.Err),
			)
		default:
			m.retry(ctx, logger, d, outcome)
		}

	default:
		m.nack(logger, d, true)
	}
}

// retry republishes d with the next attempt number, or dead-letters it once
// the attempt ceiling is reached. The original delivery is acked only after
// its replacement is published.
func (m *Manager) retry(ctx context.Context, logger *slog.Logger, d broker.Delivery, outcome stage.Outcome) {
	if !m.sleep(ctx, outcome.Delay(m.retryDelay, m.notReadyDelay)) {
		m.nack(logger, d, true)
		return
	}

	next := d.Attempt + 1
	if next < m.maxAttempts {
		if err := m.broker.Publish(ctx, d.Queue, broker.Message{Body: d.Body, Attempt: next}); err != nil {
			logging.WarnWithContext(logger, "retry republish failed; requeueing original", "retry_publish_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check broker connectivity"),
			)
			m.nack(logger, d, true)
			return
		}
		m.ack(logger, d)
		logging.WarnWithContext(logger, "job failed; retrying", "job_retry",
			logging.Error(outcome.Err),
			logging.Int("next_attempt", next),
			logging.Int("max_attempts", m.maxAttempts),
			logging.String(logging.FieldErrorHint, retryHint(outcome.Err)),
		)
		return
	}

	dlq := jobs.DeadLetterQueue(d.Queue)
	if err := m.broker.Publish(ctx, dlq, broker.Message{Body: d.Body, Attempt: d.Attempt}); err != nil {
		logging.WarnWithContext(logger, "dead-letter publish failed; requeueing original", "dead_letter_publish_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check broker connectivity"),
		)
		m.nack(logger, d, true)
		return
	}
	m.ack(logger, d)
	metrics.JobsTotal.WithLabelValues(d.Queue, metrics.OutcomeDeadLetter).Inc()
	logging.ErrorWithContext(logger, "job dead-lettered after max attempts", "job_dead_lettered",
		logging.Error(outcome.Err),
		logging.Alert("job_dead_lettered"),
		logging.String("dead_letter_queue", dlq),
		logging.Int("max_attempts", m.maxAttempts),
		logging.String(logging.FieldErrorHint, "fix the failing dependency, then run `mediapipe dead-letter requeue "+dlq+"`"),
	)
	m.alert(ctx, logger, notifications.EventJobDeadLettered, notifications.Payload{
		"queue":   d.Queue,
		"attempt": m.maxAttempts,
		"error":   outcome.Err,
	})
}

func retryHint(err error) string {
	switch services.MarkerName(err) {
	case "external":
		return "external service rejected the request; check credentials and request limits"
	case "timeout":
		return "external service timed out"
	default:
		return "check external service and broker availability"
	}
}

func (m *Manager) ack(logger *slog.Logger, d broker.Delivery) {
	if err := m.broker.Ack(d); err != nil {
		logger.Warn("ack failed; job may be redelivered",
			logging.Error(err),
			logging.String(logging.FieldEventType, "ack_failed"),
			logging.String(logging.FieldErrorHint, "check broker connectivity"),
			logging.String(logging.FieldImpact, "job will be processed again"),
		)
	}
}

func (m *Manager) nack(logger *slog.Logger, d broker.Delivery, requeue bool) {
	if err := m.broker.Nack(d, requeue); err != nil {
		logger.Warn("nack failed",
			logging.Error(err),
			logging.Bool("requeue", requeue),
			logging.String(logging.FieldEventType, "nack_failed"),
			logging.String(logging.FieldErrorHint, "check broker connectivity"),
			logging.String(logging.FieldImpact, "broker redelivers unsettled jobs after reconnect"),
		)
	}
}

// sleep waits d or until ctx ends. It reports whether the full delay elapsed.
func (m *Manager) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (m *Manager) alert(ctx context.Context, logger *slog.Logger, event notifications.Event, payload notifications.Payload) {
	if m.notifier == nil {
		return
	}
	if id, ok := services.FileIDFromContext(ctx); ok {
		payload["fileId"] = id
	}
	if err := m.notifier.Publish(context.WithoutCancel(ctx), event, payload); err != nil {
		logger.Debug("operator alert failed", logging.Error(err))
	}
}

// peekFileID extracts the fileId field shared by the file-scoped jobs so the
// runner's log lines carry it. Bodies without one yield "".
func peekFileID(body []byte) string {
	var probe struct {
		FileID string `json:"fileId"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return ""
	}
	return probe.FileID
}
