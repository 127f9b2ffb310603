package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"mediapipe/internal/config"
	"mediapipe/internal/services"
)

const defaultTimeout = 2 * time.Minute

// Transcript is the recognized speech of one audio file.
type Transcript struct {
	Text     string
	Language string
}

// Client uploads audio for transcription.
type Client struct {
	apiKey     string
	endpoint   string
	model      string
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// New constructs a client from transcription settings.
func New(cfg config.Transcription, opts ...Option) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := &Client{
		apiKey:     strings.TrimSpace(cfg.APIKey),
		endpoint:   strings.TrimSpace(cfg.BaseURL),
		model:      strings.TrimSpace(cfg.Model),
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type verboseResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
}

// Transcribe uploads the audio file at path. A missing file is
// services.ErrNotFound.
func (c *Client) Transcribe(ctx context.Context, path string) (Transcript, error) {
	if c.apiKey == "" {
		return Transcript{}, services.Wrap(services.ErrConfiguration, "transcribe", "transcribe", "api key required", nil)
	}
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Transcript{}, services.Wrap(services.ErrNotFound, "transcribe", "open", "staged audio missing", err)
		}
		return Transcript{}, services.Wrap(services.ErrTransient, "transcribe", "open", path, err)
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	fields := map[string]string{"model": c.model, "response_format": "verbose_json"}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return Transcript{}, services.Wrap(services.ErrTransient, "transcribe", "encode", "write field", err)
		}
	}
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return Transcript{}, services.Wrap(services.ErrTransient, "transcribe", "encode", "create file part", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return Transcript{}, services.Wrap(services.ErrTransient, "transcribe", "encode", "read audio", err)
	}
	if err := writer.Close(); err != nil {
		return Transcript{}, services.Wrap(services.ErrTransient, "transcribe", "encode", "close form", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &body)
	if err != nil {
		return Transcript{}, services.Wrap(services.ErrConfiguration, "transcribe", "request", "new request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Transcript{}, ctx.Err()
		}
		return Transcript{}, services.Wrap(services.ErrTransient, "transcribe", "request", "http error", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return Transcript{}, services.Wrap(services.ErrTransient, "transcribe", "request", "read response", err)
	}
	if err := services.StatusError("transcribe", "request", resp.StatusCode, payload); err != nil {
		return Transcript{}, err
	}
	var parsed verboseResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return Transcript{}, services.Wrap(services.ErrExternalTool, "transcribe", "decode", "unexpected response", err)
	}
	return Transcript{
		Text:     strings.TrimSpace(parsed.Text),
		Language: strings.TrimSpace(parsed.Language),
	}, nil
}
