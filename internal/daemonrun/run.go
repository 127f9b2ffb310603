package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"mediapipe/internal/api"
	"mediapipe/internal/broker"
	"mediapipe/internal/config"
	"mediapipe/internal/daemon"
	"mediapipe/internal/ingest"
	"mediapipe/internal/logging"
	"mediapipe/internal/metrics"
	"mediapipe/internal/moderation"
	"mediapipe/internal/notifications"
	"mediapipe/internal/objectstore"
	"mediapipe/internal/pipeline"
	"mediapipe/internal/preflight"
	"mediapipe/internal/push"
	"mediapipe/internal/realtime"
	"mediapipe/internal/services/llm"
	"mediapipe/internal/services/transcribe"
	"mediapipe/internal/stage"
	"mediapipe/internal/store"
	"mediapipe/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel      string
	SkipPreflight bool
}

// Storage uploads staged files and destroys remote assets.
type Storage interface {
	pipeline.Uploader
	ingest.Destroyer
}

// Clients holds the external services the stages call. All are required.
type Clients struct {
	Storage     Storage
	Moderator   pipeline.Moderator
	Transcriber pipeline.Transcriber
	Summarizer  pipeline.Summarizer
	Pusher      pipeline.Pusher
}

// Runtime is an assembled, not yet started, daemon.
type Runtime struct {
	Daemon   *daemon.Daemon
	Store    *store.Store
	Broker   broker.Broker
	Hub      *realtime.Hub
	Workflow *workflow.Manager
}

// Run starts the mediapipe daemon and blocks until a signal arrives.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		cfg.Logging.Level = level
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logDependencySnapshot(logger, cfg)

	if !opts.SkipPreflight {
		if err := runPreflight(signalCtx, cfg, logger); err != nil {
			return err
		}
	}

	clients, err := NewClients(signalCtx, cfg)
	if err != nil {
		return fmt.Errorf("init clients: %w", err)
	}
	rt, err := Build(cfg, clients, logger)
	if err != nil {
		return err
	}

	if err := rt.Daemon.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check broker connectivity, server.bind, and the data_dir lock"),
		)
		_ = rt.Daemon.Close()
		return err
	}

	<-signalCtx.Done()
	logger.Info("mediapipe daemon shutting down")
	return shutdown(rt.Daemon, cfg.ShutdownTimeout(), logger)
}

// NewClients builds the production service clients from config.
func NewClients(ctx context.Context, cfg *config.Config) (Clients, error) {
	moderator, err := moderation.New(ctx, cfg.Moderation)
	if err != nil {
		return Clients{}, err
	}
	pusher, err := push.NewFCM(ctx, cfg.Push)
	if err != nil {
		return Clients{}, err
	}
	clients := Clients{
		Storage:     objectstore.New(cfg.ObjectStorage),
		Moderator:   moderator,
		Transcriber: transcribe.New(cfg.Transcription),
		Summarizer:  llm.NewClient(llm.FromConfig(cfg.Summarizer)),
		Pusher:      pusher,
	}
	return clients, nil
}

func (c Clients) missing() []string {
	var names []string
	for name, client := range map[string]any{
		"storage":     c.Storage,
		"moderator":   c.Moderator,
		"transcriber": c.Transcriber,
		"summarizer":  c.Summarizer,
		"pusher":      c.Pusher,
	} {
		if client == nil {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

// Build wires the store, broker, stages, gateway and HTTP API into a daemon.
func Build(cfg *config.Config, clients Clients, logger *slog.Logger) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if missing := clients.missing(); len(missing) > 0 {
		return nil, fmt.Errorf("missing service clients: %s", strings.Join(missing, ", "))
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	st, err := store.Open(cfg)
	if err != nil {
		logging.ErrorWithContext(logger, "open file store", "store_open_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check paths.data_dir permissions"),
		)
		return nil, err
	}
	b := broker.FromConfig(cfg, logger)
	hub := realtime.NewHub(logger, realtime.Options{AllowedOrigins: cfg.Server.AllowedOrigins})
	tokens := push.NewTokenDirectory(st, cfg.Push.TokenCacheSize, time.Duration(cfg.Push.TokenCacheTTLSeconds)*time.Second)

	reclaimer := workflow.NewReclaimer(cfg, st, b, logger)
	mgr := workflow.NewManager(cfg, b, logger, notifications.NewService(cfg), workflow.WithReclaimer(reclaimer))
	mgr.Register(pipeline.Handlers(pipeline.Deps{
		Store:            st,
		Broker:           b,
		Uploader:         clients.Storage,
		Moderator:        clients.Moderator,
		Transcriber:      clients.Transcriber,
		Summarizer:       clients.Summarizer,
		Fanout:           hub,
		Pusher:           clients.Pusher,
		Tokens:           tokens,
		Logger:           logger,
		SummaryThreshold: cfg.Workflow.SummaryThreshold,
	})...)

	routes := api.Options{
		Files:          st,
		Gateway:        ingest.NewService(cfg, st, b, clients.Storage, logger),
		Broker:         b,
		Announcer:      hub,
		Devices:        tokens,
		Health:         healthChecks(cfg, st, clients.Summarizer),
		Realtime:       hub,
		Metrics:        metrics.Handler(),
		APIToken:       cfg.Server.APIToken,
		MaxUploadBytes: cfg.Ingest.MaxUploadBytes,
		Logger:         logger,
	}

	d, err := daemon.New(cfg, st, b, mgr, hub, routes, logger)
	if err != nil {
		_ = b.Close()
		_ = st.Close()
		return nil, fmt.Errorf("create daemon: %w", err)
	}
	return &Runtime{Daemon: d, Store: st, Broker: b, Hub: hub, Workflow: mgr}, nil
}

func healthChecks(cfg *config.Config, st *store.Store, summarizer pipeline.Summarizer) []api.HealthFunc {
	return []api.HealthFunc{
		func(ctx context.Context) stage.Health {
			if err := st.Ping(ctx); err != nil {
				return stage.Unhealthy("store", err.Error())
			}
			return stage.Healthy("store")
		},
		func(ctx context.Context) stage.Health {
			if cfg.MemoryBroker() {
				return stage.Healthy("broker")
			}
			probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			defer cancel()
			if err := broker.Probe(probeCtx, cfg.Broker.URL); err != nil {
				return stage.Unhealthy("broker", err.Error())
			}
			return stage.Healthy("broker")
		},
		func(ctx context.Context) stage.Health {
			checker, ok := summarizer.(interface{ HealthCheck(context.Context) error })
			if !ok {
				return stage.Healthy("summarizer")
			}
			if err := checker.HealthCheck(ctx); err != nil {
				return stage.Unhealthy("summarizer", err.Error())
			}
			return stage.Healthy("summarizer")
		},
	}
}

func runPreflight(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	results := preflight.RunAll(ctx, cfg)
	for _, result := range results {
		if result.Passed {
			logger.Debug("preflight check passed", logging.String("check", result.Name))
		}
	}
	failures := preflight.Failures(results)
	if len(failures) == 0 {
		return nil
	}
	names := make([]string, 0, len(failures))
	for _, failure := range failures {
		names = append(names, failure.Name)
		logging.ErrorWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", failure.Name),
			logging.String("detail", failure.Detail),
			logging.String(logging.FieldErrorHint, "run `mediapipe preflight` for the full report"),
		)
	}
	return fmt.Errorf("preflight failed: %s", strings.Join(names, ", "))
}

func shutdown(d *daemon.Daemon, timeout time.Duration, logger *slog.Logger) error {
	done := make(chan error, 1)
	go func() { done <- d.Close() }()
	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		logging.WarnWithContext(logger, "shutdown timed out", "shutdown_timeout",
			logging.Duration("timeout", timeout),
			logging.String(logging.FieldErrorHint, "raise daemon.shutdown_timeout_seconds"),
			logging.String(logging.FieldImpact, "in-flight jobs are redelivered after restart"),
		)
		return errors.New("shutdown timed out")
	}
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	logger.Info("dependency snapshot",
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.Bool("memory_broker", cfg.MemoryBroker()),
		logging.String("object_storage_cloud", cfg.ObjectStorage.CloudName),
		logging.String("moderation_region", cfg.Moderation.Region),
		logging.String("summarizer_model", cfg.Summarizer.Model),
		logging.String("push_project", cfg.Push.ProjectID),
		logging.Bool("ntfy_enabled", strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""),
		logging.String("bind", cfg.Server.Bind),
	)
}
