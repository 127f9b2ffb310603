package pipeline

import (
	"context"
	"log/slog"

	"mediapipe/internal/broker"
	"mediapipe/internal/moderation"
	"mediapipe/internal/objectstore"
	"mediapipe/internal/push"
	"mediapipe/internal/realtime"
	"mediapipe/internal/services/transcribe"
	"mediapipe/internal/stage"
	"mediapipe/internal/store"
)

// FileStore is the record API the stages use. Each stage writes only
// through its own Apply method.
type FileStore interface {
	GetFile(ctx context.Context, id string) (*store.File, error)
	ApplyCreationResult(ctx context.Context, id string, result store.CreationResult) error
	ApplyModerationVerdict(ctx context.Context, id string, status store.Status) (bool, error)
	ApplyTranscription(ctx context.Context, id string, description string) (bool, error)
}

// Uploader stores staged bytes on the media CDN.
type Uploader interface {
	Upload(ctx context.Context, path, publicID string, kind objectstore.ResourceKind) (objectstore.Asset, error)
	BlurredURL(assetURL string) (string, error)
}

// Moderator runs the explicit-content workflow.
type Moderator interface {
	Submit(ctx context.Context, fileID, imageURL string) (string, error)
	Verdict(ctx context.Context, executionID string) (moderation.Verdict, error)
}

// Transcriber converts staged audio to text.
type Transcriber interface {
	Transcribe(ctx context.Context, path string) (transcribe.Transcript, error)
}

// Summarizer shortens long transcripts.
type Summarizer interface {
	Summarize(ctx context.Context, transcript, languageName string) (string, error)
}

// Fanout announces partial file state to live clients.
type Fanout interface {
	BroadcastFileUpdate(fileID string, update realtime.FileUpdate)
}

// Pusher delivers a notification to device tokens.
type Pusher interface {
	Send(ctx context.Context, tokens []string, n push.Notification) (push.Result, error)
}

// TokenDirectory resolves recipients to device tokens.
type TokenDirectory interface {
	Tokens(ctx context.Context, userIDs []string) ([]string, error)
	Remove(ctx context.Context, tokens ...string) (int64, error)
}

// Deps bundles the collaborators shared by the handlers.
type Deps struct {
	Store       FileStore
	Broker      broker.Broker
	Uploader    Uploader
	Moderator   Moderator
	Transcriber Transcriber
	Summarizer  Summarizer
	Fanout      Fanout
	Pusher      Pusher
	Tokens      TokenDirectory
	Logger      *slog.Logger
	// SummaryThreshold is the transcript length, in runes, above which
	// transcripts are summarized.
	SummaryThreshold int
}

// Handlers builds the four stage handlers.
func Handlers(deps Deps) []stage.Handler {
	return []stage.Handler{
		NewCreationHandler(deps),
		NewModerationHandler(deps),
		NewTranscriptionHandler(deps),
		NewNotificationHandler(deps),
	}
}

type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

// checkHealth reports the first failing dependency that exposes a health check.
func checkHealth(ctx context.Context, name string, deps ...any) stage.Health {
	for _, dep := range deps {
		if dep == nil {
			return stage.Unhealthy(name, "dependency not configured")
		}
		if checker, ok := dep.(healthChecker); ok {
			if err := checker.HealthCheck(ctx); err != nil {
				return stage.Unhealthy(name, err.Error())
			}
		}
	}
	return stage.Healthy(name)
}
