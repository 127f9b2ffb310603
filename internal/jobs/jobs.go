package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"mediapipe/internal/broker"
	"mediapipe/internal/services"
	"mediapipe/internal/store"
)

// Queue names.
const (
	QueueFileCreating        = "file-creating"
	QueueImageProcessing     = "image-processing"
	QueueAudioProcessing     = "audio-processing"
	QueueMessageNotification = "message-notification"

	deadLetterSuffix = ".dead-letter"
)

// Queues lists every work queue in pipeline order.
func Queues() []string {
	return []string{
		QueueFileCreating,
		QueueImageProcessing,
		QueueAudioProcessing,
		QueueMessageNotification,
	}
}

// DeadLetterQueue returns the queue that receives jobs from queue once their
// retries are exhausted.
func DeadLetterQueue(queue string) string {
	return queue + deadLetterSuffix
}

// SourceQueue reverses DeadLetterQueue. ok is false for a name without the suffix.
func SourceQueue(deadLetter string) (string, bool) {
	name, ok := strings.CutSuffix(deadLetter, deadLetterSuffix)
	if !ok || name == "" {
		return "", false
	}
	return name, true
}

// Payload is a job body bound to its queue.
type Payload interface {
	Queue() string
	Validate() error
}

// FileCreationJob asks the creation stage to upload a staged file.
type FileCreationJob struct {
	FileID      string     `json:"fileId"`
	StagingPath string     `json:"stagingPath"`
	Kind        store.Kind `json:"kind"`
}

func (FileCreationJob) Queue() string { return QueueFileCreating }

func (j FileCreationJob) Validate() error {
	if err := require("file creation job", map[string]string{"fileId": j.FileID, "stagingPath": j.StagingPath}); err != nil {
		return err
	}
	if !j.Kind.Valid() {
		return invalid("file creation job", fmt.Sprintf("unknown kind %q", j.Kind))
	}
	return nil
}

// ImageModerationJob polls a moderation execution for one image.
type ImageModerationJob struct {
	ExecutionID string `json:"executionId"`
	FileID      string `json:"fileId"`
}

func (ImageModerationJob) Queue() string { return QueueImageProcessing }

func (j ImageModerationJob) Validate() error {
	return require("image moderation job", map[string]string{"executionId": j.ExecutionID, "fileId": j.FileID})
}

// AudioTranscriptionJob asks for the description of a staged audio file.
type AudioTranscriptionJob struct {
	FileID      string `json:"fileId"`
	StagingPath string `json:"stagingPath"`
}

func (AudioTranscriptionJob) Queue() string { return QueueAudioProcessing }

func (j AudioTranscriptionJob) Validate() error {
	return require("audio transcription job", map[string]string{"fileId": j.FileID, "stagingPath": j.StagingPath})
}

// MessageFile is a file reference attached to a chat message.
type MessageFile struct {
	ID        string     `json:"id"`
	Kind      store.Kind `json:"kind,omitempty"`
	MediaType string     `json:"mediaType,omitempty"`
}

// Message is the chat message a notification announces.
type Message struct {
	ID          string        `json:"id"`
	ChatGroupID string        `json:"chatGroupId"`
	SenderID    string        `json:"senderId"`
	Text        string        `json:"text,omitempty"`
	Files       []MessageFile `json:"files,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
}

// FirstFile returns the first attachment, if any.
func (m Message) FirstFile() (MessageFile, bool) {
	if len(m.Files) == 0 {
		return MessageFile{}, false
	}
	return m.Files[0], true
}

// SenderSummary identifies the author of a message.
type SenderSummary struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// MessageNotificationJob asks for push delivery of a new message.
type MessageNotificationJob struct {
	Message       Message       `json:"message"`
	SenderSummary SenderSummary `json:"senderSummary"`
	RecipientIDs  []string      `json:"recipientIds"`
}

func (MessageNotificationJob) Queue() string { return QueueMessageNotification }

func (j MessageNotificationJob) Validate() error {
	if err := require("message notification job", map[string]string{
		"message.id":          j.Message.ID,
		"message.chatGroupId": j.Message.ChatGroupID,
	}); err != nil {
		return err
	}
	for i, file := range j.Message.Files {
		if strings.TrimSpace(file.ID) == "" {
			return invalid("message notification job", fmt.Sprintf("message.files[%d].id is required", i))
		}
	}
	return nil
}

// Decode unmarshals body into T and validates it. Both failures carry
// services.ErrValidation so the message is dropped rather than retried.
func Decode[T Payload](body []byte) (T, error) {
	var job T
	if err := json.Unmarshal(body, &job); err != nil {
		return job, services.Wrap(services.ErrValidation, "jobs", "decode", "malformed job payload", err)
	}
	if err := job.Validate(); err != nil {
		return job, err
	}
	return job, nil
}

// Encode validates and marshals a job.
func Encode(job Payload) ([]byte, error) {
	if err := job.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(job)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "jobs", "encode", job.Queue(), err)
	}
	return data, nil
}

// Publish encodes job and sends it as a first attempt to its queue.
func Publish(ctx context.Context, b broker.Broker, job Payload) error {
	body, err := Encode(job)
	if err != nil {
		return err
	}
	return b.Publish(ctx, job.Queue(), broker.Message{Body: body})
}

// DeclareAll declares every work queue and its dead-letter queue.
func DeclareAll(ctx context.Context, b broker.Broker) error {
	for _, queue := range Queues() {
		if err := b.DeclareQueue(ctx, queue); err != nil {
			return fmt.Errorf("declare %s: %w", queue, err)
		}
		if err := b.DeclareQueue(ctx, DeadLetterQueue(queue)); err != nil {
			return fmt.Errorf("declare %s: %w", DeadLetterQueue(queue), err)
		}
	}
	return nil
}

func require(op string, fields map[string]string) error {
	missing := make([]string, 0, len(fields))
	for name, value := range fields {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	slices.Sort(missing)
	return invalid(op, "missing "+strings.Join(missing, ", "))
}

func invalid(op, message string) error {
	return services.Wrap(services.ErrValidation, "jobs", op, message, nil)
}
