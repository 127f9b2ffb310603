package workflow

import (
	"context"
	"log/slog"
	"time"

	"mediapipe/internal/broker"
	"mediapipe/internal/config"
	"mediapipe/internal/jobs"
	"mediapipe/internal/logging"
	"mediapipe/internal/metrics"
	"mediapipe/internal/staging"
	"mediapipe/internal/store"
)

// ReclaimStore is the slice of the file store the reclaimer needs.
type ReclaimStore interface {
	PendingUploads(ctx context.Context, cutoff time.Time, maxReclaims int) ([]*store.File, error)
	MarkReenqueued(ctx context.Context, id string) error
	KnownIDs(ctx context.Context, ids []string) (map[string]struct{}, error)
}

// Reclaimer republishes creation jobs for ingestions whose job never
// completed and removes staged files that outlived their record.
type Reclaimer struct {
	store       ReclaimStore
	broker      broker.Broker
	logger      *slog.Logger
	stagingDir  string
	interval    time.Duration
	after       time.Duration
	retention   time.Duration
	maxReclaims int
	now         func() time.Time
}

// NewReclaimer creates a reclaimer from the workflow settings.
func NewReclaimer(cfg *config.Config, st ReclaimStore, b broker.Broker, logger *slog.Logger) *Reclaimer {
	return &Reclaimer{
		store:       st,
		broker:      b,
		logger:      logging.NewComponentLogger(logger, "workflow-reclaimer"),
		stagingDir:  cfg.Paths.StagingDir,
		interval:    time.Duration(cfg.Workflow.ReclaimIntervalSeconds) * time.Second,
		after:       time.Duration(cfg.Workflow.ReclaimAfterSeconds) * time.Second,
		retention:   time.Duration(cfg.Workflow.StagingRetentionHours) * time.Hour,
		maxReclaims: cfg.Workflow.MaxAttempts,
		now:         time.Now,
	}
}

// Run reclaims on every interval until ctx is cancelled.
func (r *Reclaimer) Run(ctx context.Context) {
	if r.interval <= 0 {
		return
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		r.tick(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (r *Reclaimer) tick(ctx context.Context) {
	if _, err := r.ReclaimOnce(ctx); err != nil && ctx.Err() == nil {
		r.logger.Warn("reclaim stale ingestions failed; stuck files may remain",
			logging.Error(err),
			logging.String(logging.FieldEventType, "reclaim_failed"),
			logging.String(logging.FieldErrorHint, "check file store and broker access"),
			logging.String(logging.FieldImpact, "stuck files wait for the next pass"),
		)
	}
	if r.retention > 0 {
		staging.CleanOrphaned(ctx, r.stagingDir, r.retention, r.store.KnownIDs, r.logger)
	}
}

// ReclaimOnce republishes creation jobs for stale pending uploads and
// returns how many were republished.
func (r *Reclaimer) ReclaimOnce(ctx context.Context) (int, error) {
	cutoff := r.now().Add(-r.after)
	files, err := r.store.PendingUploads(ctx, cutoff, r.maxReclaims)
	if err != nil {
		return 0, err
	}

	reclaimed := 0
	for _, file := range files {
		exists, err := staging.Exists(file.StagingPath)
		if err != nil {
			return reclaimed, err
		}
		if !exists {
			logging.WarnWithContext(r.logger, "staged bytes missing for pending upload", "reclaim_staging_missing",
				logging.String(logging.FieldFileID, file.ID),
				logging.String("staging_path", file.StagingPath),
				logging.String(logging.FieldErrorHint, "the upload cannot complete; delete the file record"),
				logging.String(logging.FieldImpact, "file stays in processing"),
			)
			continue
		}
		job := jobs.FileCreationJob{FileID: file.ID, StagingPath: file.StagingPath, Kind: file.Kind}
		if err := jobs.Publish(ctx, r.broker, job); err != nil {
			return reclaimed, err
		}
		if err := r.store.MarkReenqueued(ctx, file.ID); err != nil {
			return reclaimed, err
		}
		reclaimed++
		metrics.ReclaimedTotal.Inc()
		r.logger.Info("republished stale file-creation job",
			logging.String(logging.FieldFileID, file.ID),
			logging.Int("reclaim_count", file.ReclaimCount+1),
			logging.String(logging.FieldEventType, "job_reclaimed"),
		)
	}
	return reclaimed, nil
}
