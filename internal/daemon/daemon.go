package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/gofrs/flock"

	"mediapipe/internal/api"
	"mediapipe/internal/broker"
	"mediapipe/internal/config"
	"mediapipe/internal/jobs"
	"mediapipe/internal/logging"
	"mediapipe/internal/store"
	"mediapipe/internal/workflow"
)

// Hub is the realtime fanout the daemon reports on and closes.
type Hub interface {
	ClientCount() int
	Close()
}

// Daemon coordinates the background processing services and enforces
// single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *store.Store
	broker   broker.Broker
	workflow *workflow.Manager
	hub      Hub
	server   *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running         bool
	PID             int
	Workflow        workflow.StatusSummary
	DatabasePath    string
	LockFilePath    string
	RealtimeClients int
	FileStats       map[store.Status]int
}

// New constructs a daemon. routes configures the HTTP API; its Status hook
// is filled in by the daemon. A nil hub is allowed.
func New(cfg *config.Config, st *store.Store, b broker.Broker, wf *workflow.Manager, hub Hub, routes api.Options, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || st == nil || b == nil || wf == nil {
		return nil, errors.New("daemon requires config, store, broker, and workflow manager")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    st,
		broker:   b,
		workflow: wf,
		hub:      hub,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	routes.Status = d.apiStatus
	if routes.Logger == nil {
		routes.Logger = logger
	}
	d.server = newAPIServer(cfg.Server.Bind, api.NewRouter(routes), logger)
	return d, nil
}

// Start acquires the daemon lock, declares the queues, and launches the
// workflow manager and HTTP server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another mediapiped instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	fail := func(err error) error {
		cancel()
		_ = d.lock.Unlock()
		return err
	}

	if err := jobs.DeclareAll(runCtx, d.broker); err != nil {
		return fail(fmt.Errorf("declare queues: %w", err))
	}
	if err := d.workflow.Start(runCtx); err != nil {
		return fail(fmt.Errorf("start workflow: %w", err))
	}
	if err := d.server.start(runCtx); err != nil {
		d.workflow.Stop()
		return fail(err)
	}

	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("mediapipe daemon started",
		logging.String("lock", d.lockPath),
		logging.String("address", d.server.address()),
	)
	return nil
}

// Stop stops the HTTP server and background processing and releases the
// daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.server.stop()
	d.workflow.Stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.hub != nil {
		d.hub.Close()
	}
	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "lock_release_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove "+d.lockPath+" if no daemon is running"),
			logging.String(logging.FieldImpact, "next start may report another instance"),
		)
	}
	d.running.Store(false)
	d.logger.Info("mediapipe daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	return errors.Join(d.broker.Close(), d.store.Close())
}

// Address returns the HTTP listen address once started.
func (d *Daemon) Address() string {
	return d.server.address()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Workflow:     d.workflow.Status(ctx),
		DatabasePath: d.store.Path(),
		LockFilePath: d.lockPath,
	}
	if d.hub != nil {
		status.RealtimeClients = d.hub.ClientCount()
	}
	if stats, err := d.store.Stats(ctx); err == nil {
		status.FileStats = stats
	} else {
		d.logger.Warn("file stats unavailable", logging.Error(err))
	}
	return status
}

func (d *Daemon) apiStatus(ctx context.Context) api.DaemonStatus {
	status := d.Status(ctx)
	return api.DaemonStatus{
		Running:         status.Running,
		PID:             status.PID,
		DatabasePath:    status.DatabasePath,
		LockFilePath:    status.LockFilePath,
		RealtimeClients: status.RealtimeClients,
		FileStats:       api.MergeFileStats(status.FileStats),
		Workflow:        api.FromStatusSummary(status.Workflow),
	}
}
