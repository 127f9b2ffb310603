package pipeline

import (
	"context"
	"log/slog"

	"mediapipe/internal/broker"
	"mediapipe/internal/jobs"
	"mediapipe/internal/logging"
	"mediapipe/internal/objectstore"
	"mediapipe/internal/realtime"
	"mediapipe/internal/services"
	"mediapipe/internal/stage"
	"mediapipe/internal/staging"
	"mediapipe/internal/store"
)

// CreationHandler uploads staged files and starts their follow-up stage.
type CreationHandler struct {
	store     FileStore
	broker    broker.Broker
	uploader  Uploader
	moderator Moderator
	fanout    Fanout
	logger    *slog.Logger
}

// NewCreationHandler constructs the file-creation stage.
func NewCreationHandler(deps Deps) *CreationHandler {
	return &CreationHandler{
		store:     deps.Store,
		broker:    deps.Broker,
		uploader:  deps.Uploader,
		moderator: deps.Moderator,
		fanout:    deps.Fanout,
		logger:    logging.NewComponentLogger(deps.Logger, "creation"),
	}
}

func (h *CreationHandler) Name() string  { return "creation" }
func (h *CreationHandler) Queue() string { return jobs.QueueFileCreating }

func (h *CreationHandler) HealthCheck(ctx context.Context) stage.Health {
	return checkHealth(ctx, h.Name(), h.uploader, h.moderator)
}

// Handle uploads the staged bytes for one file.
func (h *CreationHandler) Handle(ctx context.Context, d broker.Delivery) stage.Outcome {
	job, err := jobs.Decode[jobs.FileCreationJob](d.Body)
	if err != nil {
		return stage.Classify(err)
	}
	logger := logging.WithContext(ctx, h.logger)

	file, err := h.store.GetFile(ctx, job.FileID)
	if err != nil {
		return stage.Retry(err)
	}
	if file == nil {
		logger.Info("file deleted before upload; discarding staged bytes", logging.String(logging.FieldEventType, "creation_skipped_deleted"))
		removeStaged(logger, job.StagingPath)
		return stage.Done()
	}
	if file.URL != "" {
		// Replay after the result was persisted. Audio keeps its staged
		// bytes for transcription.
		if job.Kind != store.KindAudio {
			removeStaged(logger, job.StagingPath)
		}
		logger.Debug("creation already applied", logging.String(logging.FieldEventType, "creation_replayed"))
		return stage.Done()
	}

	exists, err := staging.Exists(job.StagingPath)
	if err != nil {
		return stage.Retry(err)
	}
	if !exists {
		return stage.Drop(services.Wrap(services.ErrValidation, h.Name(), "handle", "staged file missing and no upload recorded", nil))
	}

	switch job.Kind {
	case store.KindImage:
		err = h.createImage(ctx, logger, job)
	case store.KindAudio:
		err = h.createAudio(ctx, logger, job)
	default:
		err = h.createOther(ctx, logger, job)
	}
	return stage.Classify(err)
}

func (h *CreationHandler) createImage(ctx context.Context, logger *slog.Logger, job jobs.FileCreationJob) error {
	asset, err := h.uploader.Upload(ctx, job.StagingPath, job.FileID, objectstore.ResourceImage)
	if err != nil {
		return err
	}
	blurred, err := h.uploader.BlurredURL(asset.URL)
	if err != nil {
		return err
	}
	h.fanout.BroadcastFileUpdate(job.FileID, realtime.FileUpdate{URL: asset.URL, BlurredURL: blurred})

	executionID, err := h.moderator.Submit(ctx, job.FileID, asset.URL)
	if err != nil {
		return err
	}
	if err := jobs.Publish(ctx, h.broker, jobs.ImageModerationJob{ExecutionID: executionID, FileID: job.FileID}); err != nil {
		return services.Wrap(services.ErrTransient, h.Name(), "publish moderation job", "", err)
	}
	if err := h.store.ApplyCreationResult(ctx, job.FileID, store.CreationResult{
		URL:                  asset.URL,
		BlurredURL:           blurred,
		ExternalStorageID:    asset.StorageID,
		ExternalResourceKind: string(asset.ResourceKind),
	}); err != nil {
		return ignoreDeleted(err)
	}
	removeStaged(logger, job.StagingPath)
	logger.Info("image uploaded; moderation started",
		logging.String("execution_id", executionID),
		logging.String(logging.FieldEventType, "image_uploaded"),
	)
	return nil
}

func (h *CreationHandler) createAudio(ctx context.Context, logger *slog.Logger, job jobs.FileCreationJob) error {
	asset, err := h.uploader.Upload(ctx, job.StagingPath, job.FileID, objectstore.ResourceVideo)
	if err != nil {
		return err
	}
	h.fanout.BroadcastFileUpdate(job.FileID, realtime.FileUpdate{URL: asset.URL, Status: store.StatusSafe})

	if err := jobs.Publish(ctx, h.broker, jobs.AudioTranscriptionJob{FileID: job.FileID, StagingPath: job.StagingPath}); err != nil {
		return services.Wrap(services.ErrTransient, h.Name(), "publish transcription job", "", err)
	}
	if err := h.store.ApplyCreationResult(ctx, job.FileID, store.CreationResult{
		URL:                  asset.URL,
		ExternalStorageID:    asset.StorageID,
		ExternalResourceKind: string(asset.ResourceKind),
		MarkSafe:             true,
		KeepStaging:          true,
	}); err != nil {
		return ignoreDeleted(err)
	}
	logger.Info("audio uploaded; transcription queued", logging.String(logging.FieldEventType, "audio_uploaded"))
	return nil
}

func (h *CreationHandler) createOther(ctx context.Context, logger *slog.Logger, job jobs.FileCreationJob) error {
	asset, err := h.uploader.Upload(ctx, job.StagingPath, job.FileID, objectstore.ResourceRaw)
	if err != nil {
		return err
	}
	h.fanout.BroadcastFileUpdate(job.FileID, realtime.FileUpdate{URL: asset.URL, Status: store.StatusSafe})

	if err := h.store.ApplyCreationResult(ctx, job.FileID, store.CreationResult{
		URL:                  asset.URL,
		ExternalStorageID:    asset.StorageID,
		ExternalResourceKind: string(asset.ResourceKind),
		MarkSafe:             true,
	}); err != nil {
		return ignoreDeleted(err)
	}
	removeStaged(logger, job.StagingPath)
	logger.Info("file uploaded", logging.String(logging.FieldEventType, "file_uploaded"))
	return nil
}
