package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"mediapipe/internal/broker"
	"mediapipe/internal/config"
	"mediapipe/internal/jobs"
	"mediapipe/internal/logging"
	"mediapipe/internal/metrics"
	"mediapipe/internal/services"
	"mediapipe/internal/staging"
	"mediapipe/internal/store"
)

// Upload is one incoming file stream.
type Upload struct {
	Reader       io.Reader
	MediaType    string
	OriginalName string
}

// FileStore is the record API the gateway needs.
type FileStore interface {
	CreateFile(ctx context.Context, nf store.NewFile) (*store.File, error)
	DeleteFile(ctx context.Context, id string) (*store.File, error)
}

// Destroyer releases a remote asset.
type Destroyer interface {
	Destroy(ctx context.Context, storageID, resourceKind string) error
}

// Service accepts uploads and deletions.
type Service struct {
	store     FileStore
	broker    broker.Broker
	area      *staging.Area
	destroyer Destroyer
	maxBytes  int64
	logger    *slog.Logger
	newID     func() string
}

// NewService builds a gateway. destroyer may be nil when remote cleanup is
// handled elsewhere.
func NewService(cfg *config.Config, st FileStore, b broker.Broker, destroyer Destroyer, logger *slog.Logger) *Service {
	return &Service{
		store:     st,
		broker:    b,
		area:      staging.New(cfg.Paths.StagingDir),
		destroyer: destroyer,
		maxBytes:  cfg.Ingest.MaxUploadBytes,
		logger:    logging.NewComponentLogger(logger, "ingest"),
		newID:     uuid.NewString,
	}
}

// Ingest stages the upload, records it as processing and enqueues the
// creation job. A publish failure is logged, not returned: the record stays
// pending and the reclaimer republishes it.
func (s *Service) Ingest(ctx context.Context, upload Upload) (string, error) {
	if upload.Reader == nil {
		return "", services.Wrap(services.ErrValidation, "ingest", "ingest", "empty upload", nil)
	}
	id := s.newID()
	kind := store.KindFromMediaType(upload.MediaType)
	ctx = services.WithFileID(ctx, id)
	logger := logging.WithContext(ctx, s.logger)

	path, size, err := s.area.Write(id, staging.Extension(upload.OriginalName, upload.MediaType), upload.Reader, s.maxBytes)
	if err != nil {
		return "", err
	}

	if _, err := s.store.CreateFile(ctx, store.NewFile{
		ID:           id,
		Kind:         kind,
		MediaType:    strings.TrimSpace(upload.MediaType),
		OriginalName: upload.OriginalName,
		StagingPath:  path,
	}); err != nil {
		if rmErr := staging.Remove(path); rmErr != nil {
			logger.Warn("remove staged file after failed create", logging.Error(rmErr))
		}
		return "", fmt.Errorf("create file record: %w", err)
	}

	metrics.IngestedTotal.WithLabelValues(string(kind)).Inc()
	job := jobs.FileCreationJob{FileID: id, StagingPath: path, Kind: kind}
	if err := jobs.Publish(ctx, s.broker, job); err != nil {
		logging.WarnWithContext(logger, "enqueue file creation failed", "ingest_publish_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check broker connectivity"),
			logging.String(logging.FieldImpact, "upload completes after the reclaimer republishes it"),
		)
		return id, nil
	}

	logger.Info("file ingested",
		logging.String("kind", string(kind)),
		logging.Int64("size_bytes", size),
		logging.String(logging.FieldEventType, "file_ingested"),
	)
	return id, nil
}

// Delete removes the record, its staged bytes and, when the creation stage
// uploaded it, the remote asset. It returns services.ErrNotFound for an
// unknown id.
func (s *Service) Delete(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return services.Wrap(services.ErrValidation, "ingest", "delete", "file id is required", nil)
	}
	ctx = services.WithFileID(ctx, id)
	logger := logging.WithContext(ctx, s.logger)

	file, err := s.store.DeleteFile(ctx, id)
	if err != nil {
		return fmt.Errorf("delete file record: %w", err)
	}
	if file == nil {
		return services.Wrap(services.ErrNotFound, "ingest", "delete", id, nil)
	}

	var errs []error
	if err := staging.Remove(file.StagingPath); err != nil {
		errs = append(errs, err)
	}
	if file.NeedsExternalCleanup && file.ExternalStorageID != "" && s.destroyer != nil {
		if err := s.destroyer.Destroy(ctx, file.ExternalStorageID, file.ExternalResourceKind); err != nil {
			errs = append(errs, fmt.Errorf("destroy remote asset: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		logging.WarnWithContext(logger, "file deleted with leftovers", "file_delete_incomplete",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove the staged file or remote asset manually"),
			logging.String(logging.FieldImpact, "storage is not reclaimed"),
		)
		return err
	}
	logger.Info("file deleted", logging.String(logging.FieldEventType, "file_deleted"))
	return nil
}
