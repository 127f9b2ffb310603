package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"mediapipe/internal/broker"
	"mediapipe/internal/config"
	"mediapipe/internal/logging"
	"mediapipe/internal/notifications"
	"mediapipe/internal/stage"
)

// Manager runs one consume loop per registered stage handler.
type Manager struct {
	broker   broker.Broker
	logger   *slog.Logger
	notifier notifications.Service

	prefetch        int
	maxAttempts     int
	retryDelay      time.Duration
	notReadyDelay   time.Duration
	resubscribe     time.Duration
	shutdownTimeout time.Duration

	reclaimer *Reclaimer

	handlers []stage.Handler

	mu         sync.RWMutex
	running    bool
	cancel     context.CancelFunc
	workCancel context.CancelFunc
	loops      sync.WaitGroup
	inflight   sync.WaitGroup
	lastErr    error
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*Manager)

// WithReclaimer runs r alongside the consume loops.
func WithReclaimer(r *Reclaimer) ManagerOption {
	return func(m *Manager) {
		m.reclaimer = r
	}
}

// NewManager constructs a workflow manager.
func NewManager(cfg *config.Config, b broker.Broker, logger *slog.Logger, notifier notifications.Service, opts ...ManagerOption) *Manager {
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	m := &Manager{
		broker:          b,
		logger:          logging.NewComponentLogger(logger, "workflow"),
		notifier:        notifier,
		prefetch:        cfg.Broker.Prefetch,
		maxAttempts:     cfg.Workflow.MaxAttempts,
		retryDelay:      cfg.RetryDelay(),
		notReadyDelay:   cfg.NotReadyDelay(),
		resubscribe:     cfg.ReconnectDelay(),
		shutdownTimeout: cfg.ShutdownTimeout(),
	}
	if m.prefetch <= 0 {
		m.prefetch = 1
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register adds stage handlers. It must be called before Start.
func (m *Manager) Register(handlers ...stage.Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, h := range handlers {
		if h != nil {
			m.handlers = append(m.handlers, h)
		}
	}
}

// Start begins consuming every registered queue.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	if len(m.handlers) == 0 {
		m.mu.Unlock()
		return errors.New("workflow stages not configured")
	}
	handlers := append([]stage.Handler(nil), m.handlers...)

	runCtx, cancel := context.WithCancel(ctx)
	// Handlers keep running after the consume loops stop so in-flight work can
	// finish; Stop cancels this context once the shutdown timeout passes.
	workCtx, workCancel := context.WithCancel(context.WithoutCancel(ctx))
	m.cancel = cancel
	m.workCancel = workCancel
	m.running = true
	m.loops.Add(len(handlers))
	if m.reclaimer != nil {
		m.loops.Add(1)
	}
	m.mu.Unlock()

	for _, h := range handlers {
		go m.consume(runCtx, workCtx, h)
	}
	if m.reclaimer != nil {
		go func() {
			defer m.loops.Done()
			m.reclaimer.Run(runCtx)
		}()
	}
	m.logger.Info("workflow started", logging.Int("stages", len(handlers)), logging.Int("prefetch", m.prefetch))
	return nil
}

// Stop stops taking deliveries and waits for in-flight handlers up to the
// shutdown timeout. Deliveries still unsettled after that are requeued.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel, workCancel := m.cancel, m.workCancel
	m.running = false
	m.cancel = nil
	m.workCancel = nil
	m.mu.Unlock()

	cancel()
	m.loops.Wait()

	done := make(chan struct{})
	go func() {
		m.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(m.shutdownTimeout):
		logging.WarnWithContext(m.logger, "shutdown timeout reached; interrupting in-flight jobs", "shutdown_timeout",
			logging.Duration("timeout", m.shutdownTimeout),
			logging.String(logging.FieldImpact, "interrupted jobs return to their queues"),
		)
		workCancel()
		<-done
	}
	workCancel()
	m.logger.Info("workflow stopped")
}

// Running reports whether the consume loops are active.
func (m *Manager) Running() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}
