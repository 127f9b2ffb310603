package config

import (
	"path/filepath"
	"strings"
	"time"
)

// Paths contains directory configuration.
type Paths struct {
	StagingDir string `toml:"staging_dir"`
	DataDir    string `toml:"data_dir"`
	LogDir     string `toml:"log_dir"`
}

// Server contains HTTP API settings.
type Server struct {
	Bind           string   `toml:"bind"`
	APIToken       string   `toml:"api_token"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

// Broker contains message broker connection settings.
type Broker struct {
	URL                   string `toml:"url"`
	Prefetch              int    `toml:"prefetch"`
	ReconnectDelaySeconds int    `toml:"reconnect_delay_seconds"`
}

// Workflow contains retry and reclaim timing for the stage workers.
type Workflow struct {
	MaxAttempts            int `toml:"max_attempts"`
	RetryDelaySeconds      int `toml:"retry_delay_seconds"`
	NotReadyDelaySeconds   int `toml:"not_ready_delay_seconds"`
	SummaryThreshold       int `toml:"summary_threshold"`
	ReclaimIntervalSeconds int `toml:"reclaim_interval_seconds"`
	ReclaimAfterSeconds    int `toml:"reclaim_after_seconds"`
	StagingRetentionHours  int `toml:"staging_retention_hours"`
}

// Ingest contains upload limits.
type Ingest struct {
	MaxUploadBytes int64 `toml:"max_upload_bytes"`
}

// ObjectStorage contains media CDN credentials.
type ObjectStorage struct {
	CloudName      string `toml:"cloud_name"`
	APIKey         string `toml:"api_key"`
	APISecret      string `toml:"api_secret"`
	Folder         string `toml:"folder"`
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Moderation contains the image moderation workflow settings.
type Moderation struct {
	StateMachineARN string `toml:"state_machine_arn"`
	Region          string `toml:"region"`
	AccessKeyID     string `toml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key"`
	// Endpoint overrides the service endpoint (local emulators).
	Endpoint string `toml:"endpoint"`
}

// Transcription contains speech-to-text service settings.
type Transcription struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Summarizer contains chat-completion settings used to shorten transcripts.
type Summarizer struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Push contains Firebase Cloud Messaging settings.
type Push struct {
	CredentialsFile      string `toml:"credentials_file"`
	ProjectID            string `toml:"project_id"`
	TokenCacheSize       int    `toml:"token_cache_size"`
	TokenCacheTTLSeconds int    `toml:"token_cache_ttl_seconds"`
}

// Notifications contains configuration for ntfy operator alerts.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Daemon contains process lifecycle settings.
type Daemon struct {
	ShutdownTimeoutSeconds int `toml:"shutdown_timeout_seconds"`
}

// Config encapsulates all configuration values for the media pipeline.
//
// Configuration sections by subsystem:
//   - Paths: staging, data (database and lock) and log directories
//   - Server: HTTP bind address and bearer token
//   - Broker: AMQP connection and consumer prefetch
//   - Workflow: retry ceilings, delays and the stale ingestion reclaimer
//   - ObjectStorage, Moderation, Transcription, Summarizer, Push: external services
//   - Notifications: ntfy operator alerts
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Server        Server        `toml:"server"`
	Broker        Broker        `toml:"broker"`
	Workflow      Workflow      `toml:"workflow"`
	Ingest        Ingest        `toml:"ingest"`
	ObjectStorage ObjectStorage `toml:"object_storage"`
	Moderation    Moderation    `toml:"moderation"`
	Transcription Transcription `toml:"transcription"`
	Summarizer    Summarizer    `toml:"summarizer"`
	Push          Push          `toml:"push"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
	Daemon        Daemon        `toml:"daemon"`
}

// DatabasePath returns the SQLite file holding file records and device tokens.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "mediapipe.db")
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "mediapiped.lock")
}

// MemoryBroker reports whether the in-process broker is configured.
func (c *Config) MemoryBroker() bool {
	return strings.HasPrefix(c.Broker.URL, "memory://")
}

// ReconnectDelay returns the fixed broker reconnect delay.
func (c *Config) ReconnectDelay() time.Duration {
	return time.Duration(c.Broker.ReconnectDelaySeconds) * time.Second
}

// RetryDelay returns the fixed delay applied before requeueing a transient failure.
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.Workflow.RetryDelaySeconds) * time.Second
}

// NotReadyDelay returns the delay applied before requeueing a not-ready job.
func (c *Config) NotReadyDelay() time.Duration {
	return time.Duration(c.Workflow.NotReadyDelaySeconds) * time.Second
}

// ShutdownTimeout bounds how long in-flight jobs may run after a stop request.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Daemon.ShutdownTimeoutSeconds) * time.Second
}
