package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeServer()
	c.normalizeBroker()
	c.normalizeWorkflow()
	if err := c.normalizeObjectStorage(); err != nil {
		return err
	}
	c.normalizeModeration()
	c.normalizeTranscription()
	c.normalizeSummarizer()
	if err := c.normalizePush(); err != nil {
		return err
	}
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		c.Paths.StagingDir = defaultStagingDir
	}
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeServer() {
	c.Server.Bind = strings.TrimSpace(c.Server.Bind)
	if c.Server.Bind == "" {
		c.Server.Bind = defaultBind
	}
	c.Server.APIToken = strings.TrimSpace(c.Server.APIToken)
	if c.Server.APIToken == "" {
		c.Server.APIToken = envValue("MEDIAPIPE_API_TOKEN")
	}
	origins := make([]string, 0, len(c.Server.AllowedOrigins))
	for _, origin := range c.Server.AllowedOrigins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	c.Server.AllowedOrigins = origins
}

func (c *Config) normalizeBroker() {
	if value := envValue("AMQP_URL"); value != "" {
		c.Broker.URL = value
	}
	c.Broker.URL = strings.TrimSpace(c.Broker.URL)
	if c.Broker.Prefetch <= 0 {
		c.Broker.Prefetch = defaultBrokerPrefetch
	}
	if c.Broker.ReconnectDelaySeconds <= 0 {
		c.Broker.ReconnectDelaySeconds = defaultReconnectDelaySeconds
	}
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.RetryDelaySeconds <= 0 {
		c.Workflow.RetryDelaySeconds = defaultRetryDelaySeconds
	}
	if c.Workflow.NotReadyDelaySeconds <= 0 {
		c.Workflow.NotReadyDelaySeconds = defaultNotReadyDelaySeconds
	}
	if c.Workflow.StagingRetentionHours <= 0 {
		c.Workflow.StagingRetentionHours = defaultStagingRetentionHours
	}
}

func (c *Config) normalizeObjectStorage() error {
	if raw := envValue("CLOUDINARY_URL"); raw != "" {
		parsed, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("CLOUDINARY_URL: %w", err)
		}
		if parsed.Scheme != objectStorageURLScheme {
			return fmt.Errorf("CLOUDINARY_URL: unsupported scheme %q", parsed.Scheme)
		}
		c.ObjectStorage.CloudName = parsed.Host
		if parsed.User != nil {
			c.ObjectStorage.APIKey = parsed.User.Username()
			if secret, ok := parsed.User.Password(); ok {
				c.ObjectStorage.APISecret = secret
			}
		}
	}
	if c.ObjectStorage.CloudName == "" {
		c.ObjectStorage.CloudName = envValue("CLOUDINARY_CLOUD_NAME")
	}
	if c.ObjectStorage.APIKey == "" {
		c.ObjectStorage.APIKey = envValue("CLOUDINARY_API_KEY")
	}
	if c.ObjectStorage.APISecret == "" {
		c.ObjectStorage.APISecret = envValue("CLOUDINARY_API_SECRET")
	}
	c.ObjectStorage.CloudName = strings.TrimSpace(c.ObjectStorage.CloudName)
	c.ObjectStorage.APIKey = strings.TrimSpace(c.ObjectStorage.APIKey)
	c.ObjectStorage.APISecret = strings.TrimSpace(c.ObjectStorage.APISecret)
	c.ObjectStorage.Folder = strings.Trim(strings.TrimSpace(c.ObjectStorage.Folder), "/")
	c.ObjectStorage.BaseURL = strings.TrimRight(strings.TrimSpace(c.ObjectStorage.BaseURL), "/")
	if c.ObjectStorage.BaseURL == "" {
		c.ObjectStorage.BaseURL = defaultObjectStorageBaseURL
	}
	if c.ObjectStorage.TimeoutSeconds <= 0 {
		c.ObjectStorage.TimeoutSeconds = defaultObjectStorageTimeout
	}
	return nil
}

func (c *Config) normalizeModeration() {
	if c.Moderation.StateMachineARN == "" {
		c.Moderation.StateMachineARN = envValue("MODERATION_STATE_MACHINE_ARN")
	}
	if value := envValue("AWS_REGION"); value != "" && strings.TrimSpace(c.Moderation.Region) == defaultModerationRegion {
		c.Moderation.Region = value
	}
	if c.Moderation.AccessKeyID == "" {
		c.Moderation.AccessKeyID = envValue("AWS_ACCESS_KEY_ID")
	}
	if c.Moderation.SecretAccessKey == "" {
		c.Moderation.SecretAccessKey = envValue("AWS_SECRET_ACCESS_KEY")
	}
	c.Moderation.StateMachineARN = strings.TrimSpace(c.Moderation.StateMachineARN)
	c.Moderation.Region = strings.TrimSpace(c.Moderation.Region)
	if c.Moderation.Region == "" {
		c.Moderation.Region = defaultModerationRegion
	}
	c.Moderation.AccessKeyID = strings.TrimSpace(c.Moderation.AccessKeyID)
	c.Moderation.SecretAccessKey = strings.TrimSpace(c.Moderation.SecretAccessKey)
	c.Moderation.Endpoint = strings.TrimSpace(c.Moderation.Endpoint)
}

func (c *Config) normalizeTranscription() {
	c.Transcription.APIKey = strings.TrimSpace(c.Transcription.APIKey)
	if c.Transcription.APIKey == "" {
		c.Transcription.APIKey = envValue("OPENAI_API_KEY")
	}
	c.Transcription.BaseURL = strings.TrimSpace(c.Transcription.BaseURL)
	if c.Transcription.BaseURL == "" {
		c.Transcription.BaseURL = defaultTranscriptionBaseURL
	}
	c.Transcription.Model = strings.TrimSpace(c.Transcription.Model)
	if c.Transcription.Model == "" {
		c.Transcription.Model = defaultTranscriptionModel
	}
	if c.Transcription.TimeoutSeconds <= 0 {
		c.Transcription.TimeoutSeconds = defaultTranscriptionTimeout
	}
}

func (c *Config) normalizeSummarizer() {
	c.Summarizer.APIKey = strings.TrimSpace(c.Summarizer.APIKey)
	if c.Summarizer.APIKey == "" {
		if value := envValue("SUMMARIZER_API_KEY"); value != "" {
			c.Summarizer.APIKey = value
		} else {
			c.Summarizer.APIKey = c.Transcription.APIKey
		}
	}
	c.Summarizer.BaseURL = strings.TrimSpace(c.Summarizer.BaseURL)
	if c.Summarizer.BaseURL == "" {
		c.Summarizer.BaseURL = defaultSummarizerBaseURL
	}
	c.Summarizer.Model = strings.TrimSpace(c.Summarizer.Model)
	if c.Summarizer.Model == "" {
		c.Summarizer.Model = defaultSummarizerModel
	}
	c.Summarizer.Referer = strings.TrimSpace(c.Summarizer.Referer)
	c.Summarizer.Title = strings.TrimSpace(c.Summarizer.Title)
	if c.Summarizer.Title == "" {
		c.Summarizer.Title = defaultSummarizerTitle
	}
	if c.Summarizer.TimeoutSeconds <= 0 {
		c.Summarizer.TimeoutSeconds = defaultSummarizerTimeout
	}
}

func (c *Config) normalizePush() error {
	if strings.TrimSpace(c.Push.CredentialsFile) == "" {
		c.Push.CredentialsFile = envValue("GOOGLE_APPLICATION_CREDENTIALS")
	}
	if c.Push.CredentialsFile != "" {
		var err error
		if c.Push.CredentialsFile, err = expandPath(strings.TrimSpace(c.Push.CredentialsFile)); err != nil {
			return fmt.Errorf("push.credentials_file: %w", err)
		}
	}
	c.Push.ProjectID = strings.TrimSpace(c.Push.ProjectID)
	if c.Push.ProjectID == "" {
		c.Push.ProjectID = envValue("FIREBASE_PROJECT_ID")
	}
	if c.Push.TokenCacheSize <= 0 {
		c.Push.TokenCacheSize = defaultTokenCacheSize
	}
	if c.Push.TokenCacheTTLSeconds <= 0 {
		c.Push.TokenCacheTTLSeconds = defaultTokenCacheTTLSeconds
	}
	return nil
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		c.Notifications.NtfyTopic = envValue("NTFY_TOPIC")
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func envValue(key string) string {
	if value, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(value)
	}
	return ""
}
