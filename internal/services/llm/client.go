package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"mediapipe/internal/config"
	"mediapipe/internal/services"
)

const (
	defaultBaseURL  = "https://api.openai.com/v1/chat/completions"
	defaultTimeout  = 60 * time.Second
	defaultAttempts = 2
	defaultMinDelay = time.Second
	defaultMaxDelay = 10 * time.Second
)

const summaryPrompt = `You write the body of a push notification for a voice message.
Summarize the transcript in one short sentence of at most 20 words.
Write in %s. Reply with the sentence only, without quotes or a preamble.`

// Config holds the endpoint, credentials and model of a chat completion API.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	Referer        string
	Title          string
	TimeoutSeconds int
}

// FromConfig maps summarizer settings onto a client Config.
func FromConfig(cfg config.Summarizer) Config {
	return Config(cfg)
}

// Client talks to an OpenAI-compatible chat completion endpoint.
type Client struct {
	apiKey  string
	url     string
	model   string
	headers http.Header
	http    *http.Client

	attempts int
	minDelay time.Duration
	maxDelay time.Duration
	sleeper  func(time.Duration)
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// WithRetryMaxAttempts sets how many requests a single call may issue.
func WithRetryMaxAttempts(attempts int) Option {
	return func(c *Client) { c.attempts = attempts }
}

// WithRetryBackoff sets the first and the largest pause between attempts.
func WithRetryBackoff(minDelay, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.minDelay = minDelay
		c.maxDelay = maxDelay
	}
}

// WithSleeper replaces the timer used between attempts.
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) { c.sleeper = sleeper }
}

func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	c := &Client{
		apiKey:   strings.TrimSpace(cfg.APIKey),
		url:      strings.TrimSpace(cfg.BaseURL),
		model:    strings.TrimSpace(cfg.Model),
		headers:  http.Header{},
		http:     &http.Client{Timeout: timeout},
		attempts: defaultAttempts,
		minDelay: defaultMinDelay,
		maxDelay: defaultMaxDelay,
	}
	if c.url == "" {
		c.url = defaultBaseURL
	}
	// OpenRouter attribution headers; other providers ignore them.
	if v := strings.TrimSpace(cfg.Referer); v != "" {
		c.headers.Set("HTTP-Referer", v)
	}
	if v := strings.TrimSpace(cfg.Title); v != "" {
		c.headers.Set("X-Title", v)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Summarize condenses transcript into one sentence written in languageName
// (an English language name such as "Spanish"). An empty languageName keeps
// the transcript's language.
func (c *Client) Summarize(ctx context.Context, transcript, languageName string) (string, error) {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return "", services.Wrap(services.ErrValidation, "llm", "summarize", "transcript required", nil)
	}
	if c.apiKey == "" {
		return "", services.Wrap(services.ErrConfiguration, "llm", "summarize", "api key required", nil)
	}
	if strings.TrimSpace(languageName) == "" {
		languageName = "the same language as the transcript"
	}
	content, err := c.complete(ctx, chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: fmt.Sprintf(summaryPrompt, languageName)},
			{Role: "user", Content: transcript},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return "", classify("summarize", err)
	}
	return strings.Trim(content, "\"' "), nil
}

// HealthCheck sends a one-token completion to prove the key and model work.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.apiKey == "" {
		return services.Wrap(services.ErrConfiguration, "llm", "health", "api key required", nil)
	}
	_, err := c.complete(ctx, chatRequest{
		Model:     c.model,
		Messages:  []chatMessage{{Role: "user", Content: "Reply with the word OK."}},
		MaxTokens: 5,
	})
	if err != nil {
		return classify("health", err)
	}
	return nil
}
