package pipeline

import (
	"context"
	"log/slog"
	"unicode/utf8"

	"mediapipe/internal/broker"
	"mediapipe/internal/jobs"
	"mediapipe/internal/language"
	"mediapipe/internal/logging"
	"mediapipe/internal/realtime"
	"mediapipe/internal/services"
	"mediapipe/internal/stage"
	"mediapipe/internal/staging"
)

const defaultSummaryThreshold = 30

// TranscriptionHandler describes audio files with their transcript or a
// summary of it.
type TranscriptionHandler struct {
	store       FileStore
	transcriber Transcriber
	summarizer  Summarizer
	fanout      Fanout
	threshold   int
	logger      *slog.Logger
}

// NewTranscriptionHandler constructs the audio-transcription stage.
func NewTranscriptionHandler(deps Deps) *TranscriptionHandler {
	threshold := deps.SummaryThreshold
	if threshold <= 0 {
		threshold = defaultSummaryThreshold
	}
	return &TranscriptionHandler{
		store:       deps.Store,
		transcriber: deps.Transcriber,
		summarizer:  deps.Summarizer,
		fanout:      deps.Fanout,
		threshold:   threshold,
		logger:      logging.NewComponentLogger(deps.Logger, "transcription"),
	}
}

func (h *TranscriptionHandler) Name() string  { return "transcription" }
func (h *TranscriptionHandler) Queue() string { return jobs.QueueAudioProcessing }

func (h *TranscriptionHandler) HealthCheck(ctx context.Context) stage.Health {
	return checkHealth(ctx, h.Name(), h.transcriber, h.summarizer)
}

// Handle transcribes the staged audio and stores the description once. It
// waits for the creation stage to record the upload first.
func (h *TranscriptionHandler) Handle(ctx context.Context, d broker.Delivery) stage.Outcome {
	job, err := jobs.Decode[jobs.AudioTranscriptionJob](d.Body)
	if err != nil {
		return stage.Classify(err)
	}
	logger := logging.WithContext(ctx, h.logger)

	file, err := h.store.GetFile(ctx, job.FileID)
	if err != nil {
		return stage.Retry(err)
	}
	if file == nil || file.HasDescription() {
		removeStaged(logger, job.StagingPath)
		logger.Debug("transcription already applied or file deleted", logging.String(logging.FieldEventType, "transcription_replayed"))
		return stage.Done()
	}
	if file.URL == "" {
		// The staged bytes belong to creation until its result is stored.
		return stage.NotReady(services.Wrap(services.ErrNotReady, h.Name(), "handle", "upload not recorded yet", nil))
	}

	exists, err := staging.Exists(job.StagingPath)
	if err != nil {
		return stage.Retry(err)
	}
	if !exists {
		return stage.Drop(services.Wrap(services.ErrValidation, h.Name(), "handle", "staged audio missing and no description recorded", nil))
	}

	transcript, err := h.transcriber.Transcribe(ctx, job.StagingPath)
	if err != nil {
		return stage.Classify(err)
	}
	description := transcript.Text
	summarized := false
	if utf8.RuneCountInString(description) > h.threshold {
		summary, err := h.summarizer.Summarize(ctx, description, language.DisplayName(transcript.Language))
		if err != nil {
			return stage.Classify(err)
		}
		description = summary
		summarized = true
	}

	h.fanout.BroadcastFileUpdate(job.FileID, realtime.FileUpdate{Description: &description})
	applied, err := h.store.ApplyTranscription(ctx, job.FileID, description)
	if err != nil {
		return stage.Classify(ignoreDeleted(err))
	}
	removeStaged(logger, job.StagingPath)
	logger.Info("audio described",
		logging.String("language", language.Code(transcript.Language)),
		logging.Bool("summarized", summarized),
		logging.Bool("applied", applied),
		logging.String(logging.FieldEventType, "audio_described"),
	)
	return stage.Done()
}
