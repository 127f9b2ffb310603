package push

import (
	"context"
	"fmt"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"mediapipe/internal/config"
	"mediapipe/internal/services"
)

// MaxMulticastTokens is the FCM limit on tokens per multicast.
const MaxMulticastTokens = 500

// Notification is the visible content of a push message.
type Notification struct {
	Title    string
	Body     string
	ImageURL string
	Data     map[string]string
}

// Result summarizes one multicast across all chunks.
type Result struct {
	Sent         int
	Failed       int
	Unregistered []string
}

// Sender is the FCM client surface used for multicasts.
type Sender interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// FCM sends notifications in chunks of MaxMulticastTokens.
type FCM struct {
	sender Sender
}

// NewFCM initializes a Firebase app from a service account file.
func NewFCM(ctx context.Context, cfg config.Push) (*FCM, error) {
	var opts []option.ClientOption
	if path := strings.TrimSpace(cfg.CredentialsFile); path != "" {
		opts = append(opts, option.WithCredentialsFile(path))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: strings.TrimSpace(cfg.ProjectID)}, opts...)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "push", "init firebase", "", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "push", "init messaging", "", err)
	}
	return NewFCMWithSender(client), nil
}

// NewFCMWithSender wraps an existing sender.
func NewFCMWithSender(sender Sender) *FCM {
	return &FCM{sender: sender}
}

// Send delivers n to every token. Chunks already sent are counted even when
// a later chunk fails.
func (f *FCM) Send(ctx context.Context, tokens []string, n Notification) (Result, error) {
	var result Result
	for start := 0; start < len(tokens); start += MaxMulticastTokens {
		end := min(start+MaxMulticastTokens, len(tokens))
		chunk := tokens[start:end]
		resp, err := f.sender.SendEachForMulticast(ctx, &messaging.MulticastMessage{
			Tokens: chunk,
			Notification: &messaging.Notification{
				Title:    n.Title,
				Body:     n.Body,
				ImageURL: n.ImageURL,
			},
			Data: n.Data,
		})
		if err != nil {
			result.Failed += len(chunk)
			return result, services.Wrap(services.ErrTransient, "push", "multicast", fmt.Sprintf("chunk %d-%d", start, end), err)
		}
		result.Sent += resp.SuccessCount
		result.Failed += resp.FailureCount
		for i, r := range resp.Responses {
			if r == nil || r.Success || i >= len(chunk) {
				continue
			}
			if messaging.IsUnregistered(r.Error) || messaging.IsSenderIDMismatch(r.Error) {
				result.Unregistered = append(result.Unregistered, chunk[i])
			}
		}
	}
	return result, nil
}
