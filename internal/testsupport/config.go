package testsupport

import (
	"path/filepath"
	"testing"

	"mediapipe/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a valid config seeded with unique temp directories per
// test. The broker defaults to the in-process implementation.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StagingDir = filepath.Join(base, "staging")
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Server.Bind = "127.0.0.1:0"
	cfgVal.Broker.URL = "memory://"
	cfgVal.ObjectStorage.CloudName = "test-cloud"
	cfgVal.ObjectStorage.APIKey = "test-key"
	cfgVal.ObjectStorage.APISecret = "test-secret"
	cfgVal.Moderation.StateMachineARN = "arn:aws:states:us-east-1:000000000000:stateMachine:test"
	cfgVal.Transcription.APIKey = "test"
	cfgVal.Summarizer.APIKey = "test"
	cfgVal.Push.CredentialsFile = filepath.Join(base, "firebase.json")
	cfgVal.Push.ProjectID = "test-project"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithMaxAttempts overrides the bounded retry ceiling.
func WithMaxAttempts(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Workflow.MaxAttempts = n
	}
}

// WithSummaryThreshold overrides the transcript length that triggers summarization.
func WithSummaryThreshold(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Workflow.SummaryThreshold = n
	}
}

// WithFastRetries removes the retry and not-ready delays so retry paths run
// without sleeping.
func WithFastRetries() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Workflow.RetryDelaySeconds = 0
		b.cfg.Workflow.NotReadyDelaySeconds = 0
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StagingDir)
}
