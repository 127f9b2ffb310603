package pipeline

import (
	"context"
	"log/slog"
	"strings"

	"mediapipe/internal/broker"
	"mediapipe/internal/jobs"
	"mediapipe/internal/logging"
	"mediapipe/internal/metrics"
	"mediapipe/internal/push"
	"mediapipe/internal/services"
	"mediapipe/internal/stage"
	"mediapipe/internal/store"
)

// Notification bodies for attachments without text of their own.
const (
	BodyPhoto = "Photo sent"
	BodyVideo = "Video sent"
	BodyAudio = "Audio sent"
	BodyFile  = "File sent"
)

// NotificationHandler pushes new-message notifications once the attached
// file can be described.
type NotificationHandler struct {
	store  FileStore
	pusher Pusher
	tokens TokenDirectory
	logger *slog.Logger
}

// NewNotificationHandler constructs the dependent notification stage.
func NewNotificationHandler(deps Deps) *NotificationHandler {
	return &NotificationHandler{
		store:  deps.Store,
		pusher: deps.Pusher,
		tokens: deps.Tokens,
		logger: logging.NewComponentLogger(deps.Logger, "notification"),
	}
}

func (h *NotificationHandler) Name() string  { return "notification" }
func (h *NotificationHandler) Queue() string { return jobs.QueueMessageNotification }

func (h *NotificationHandler) HealthCheck(ctx context.Context) stage.Health {
	return checkHealth(ctx, h.Name(), h.pusher, h.tokens)
}

// Handle composes and sends the push. Audio without a description yet is
// not-ready; push delivery failures are logged and acked.
func (h *NotificationHandler) Handle(ctx context.Context, d broker.Delivery) stage.Outcome {
	job, err := jobs.Decode[jobs.MessageNotificationJob](d.Body)
	if err != nil {
		return stage.Classify(err)
	}
	logger := logging.WithContext(ctx, h.logger).With(
		logging.String("message_id", job.Message.ID),
		logging.String("chat_group_id", job.Message.ChatGroupID),
	)

	body, err := h.composeBody(ctx, job.Message)
	if err != nil {
		return stage.Classify(err)
	}
	if len(job.RecipientIDs) == 0 {
		return stage.Done()
	}

	tokens, err := h.tokens.Tokens(ctx, job.RecipientIDs)
	if err != nil {
		return stage.Retry(err)
	}
	if len(tokens) == 0 {
		logger.Debug("no device tokens for recipients", logging.Int("recipients", len(job.RecipientIDs)))
		return stage.Done()
	}

	notification := push.Notification{
		Title: job.SenderSummary.Name,
		Body:  body,
		Data: map[string]string{
			"messageId":   job.Message.ID,
			"chatGroupId": job.Message.ChatGroupID,
			"senderId":    job.Message.SenderID,
		},
	}
	if file, ok := job.Message.FirstFile(); ok {
		notification.Data["fileId"] = file.ID
	}

	result, err := h.pusher.Send(ctx, tokens, notification)
	metrics.PushTotal.WithLabelValues("success").Add(float64(result.Sent))
	metrics.PushTotal.WithLabelValues("failure").Add(float64(result.Failed))
	if err != nil {
		logging.WarnWithContext(logger, "push delivery failed", "push_failed",
			logging.Error(err),
			logging.Int("tokens", len(tokens)),
			logging.String(logging.FieldErrorHint, "check firebase credentials and quota"),
			logging.String(logging.FieldImpact, "recipients miss this notification"),
		)
	}
	if len(result.Unregistered) > 0 {
		removed, err := h.tokens.Remove(ctx, result.Unregistered...)
		if err != nil {
			logger.Warn("prune unregistered tokens failed",
				logging.Error(err),
				logging.String(logging.FieldEventType, "push_prune_failed"),
				logging.String(logging.FieldErrorHint, "check file store access"),
				logging.String(logging.FieldImpact, "stale tokens are retried on the next message"),
			)
		}
		metrics.PushTotal.WithLabelValues("pruned").Add(float64(removed))
	}
	logger.Info("message notification sent",
		logging.Int("sent", result.Sent),
		logging.Int("failed", result.Failed),
		logging.String(logging.FieldEventType, "notification_sent"),
	)
	return stage.Done()
}

func (h *NotificationHandler) composeBody(ctx context.Context, msg jobs.Message) (string, error) {
	attachment, ok := msg.FirstFile()
	if !ok {
		return msg.Text, nil
	}
	file, err := h.store.GetFile(ctx, attachment.ID)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, h.Name(), "lookup file", attachment.ID, err)
	}
	if file == nil {
		return BodyFile, nil
	}
	mediaType := file.MediaType
	if mediaType == "" {
		mediaType = attachment.MediaType
	}
	return describe(file, mediaType)
}

func describe(file *store.File, mediaType string) (string, error) {
	switch file.Kind {
	case store.KindImage:
		return BodyPhoto, nil
	case store.KindAudio:
		if !file.HasDescription() {
			return "", services.Wrap(services.ErrNotReady, "notification", "describe", "audio description pending", nil)
		}
		if text := strings.TrimSpace(*file.Description); text != "" {
			return text, nil
		}
		return BodyAudio, nil
	default:
		if strings.HasPrefix(strings.ToLower(mediaType), "video/") {
			return BodyVideo, nil
		}
		return BodyFile, nil
	}
}
