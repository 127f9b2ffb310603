package pipeline

import (
	"context"
	"log/slog"

	"mediapipe/internal/broker"
	"mediapipe/internal/jobs"
	"mediapipe/internal/logging"
	"mediapipe/internal/realtime"
	"mediapipe/internal/stage"
	"mediapipe/internal/store"
)

// ModerationHandler settles image status from the moderation workflow.
type ModerationHandler struct {
	store     FileStore
	moderator Moderator
	fanout    Fanout
	logger    *slog.Logger
}

// NewModerationHandler constructs the image-moderation stage.
func NewModerationHandler(deps Deps) *ModerationHandler {
	return &ModerationHandler{
		store:     deps.Store,
		moderator: deps.Moderator,
		fanout:    deps.Fanout,
		logger:    logging.NewComponentLogger(deps.Logger, "moderation"),
	}
}

func (h *ModerationHandler) Name() string  { return "moderation" }
func (h *ModerationHandler) Queue() string { return jobs.QueueImageProcessing }

func (h *ModerationHandler) HealthCheck(ctx context.Context) stage.Health {
	return checkHealth(ctx, h.Name(), h.moderator)
}

// Handle polls the execution once. A running execution is not-ready; any
// failure leaves the file in processing.
func (h *ModerationHandler) Handle(ctx context.Context, d broker.Delivery) stage.Outcome {
	job, err := jobs.Decode[jobs.ImageModerationJob](d.Body)
	if err != nil {
		return stage.Classify(err)
	}
	logger := logging.WithContext(ctx, h.logger)

	file, err := h.store.GetFile(ctx, job.FileID)
	if err != nil {
		return stage.Retry(err)
	}
	if file == nil || file.Status.Terminal() {
		logger.Debug("moderation already settled or file deleted", logging.String(logging.FieldEventType, "moderation_replayed"))
		return stage.Done()
	}

	verdict, err := h.moderator.Verdict(ctx, job.ExecutionID)
	if err != nil {
		return stage.Classify(err)
	}
	status := store.StatusUnsafe
	if verdict.Safe {
		status = store.StatusSafe
	}

	h.fanout.BroadcastFileUpdate(job.FileID, realtime.FileUpdate{Status: status})
	applied, err := h.store.ApplyModerationVerdict(ctx, job.FileID, status)
	if err != nil {
		return stage.Classify(ignoreDeleted(err))
	}
	logger.Info("moderation verdict applied",
		logging.String("status", string(status)),
		logging.Strings("labels", verdict.Labels),
		logging.Bool("applied", applied),
		logging.String(logging.FieldEventType, "moderation_settled"),
	)
	return stage.Done()
}
