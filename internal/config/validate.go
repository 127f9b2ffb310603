package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable. Every required credential is
// checked here so a missing value aborts startup instead of failing per job.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateBroker(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateObjectStorage(); err != nil {
		return err
	}
	if err := c.validateModeration(); err != nil {
		return err
	}
	if err := c.validateTranscription(); err != nil {
		return err
	}
	if err := c.validatePush(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		return errors.New("paths.staging_dir must be set")
	}
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return errors.New("paths.data_dir must be set")
	}
	return nil
}

func (c *Config) validateBroker() error {
	url := strings.TrimSpace(c.Broker.URL)
	if url == "" {
		return errors.New("broker.url must be set (or set AMQP_URL)")
	}
	switch {
	case strings.HasPrefix(url, "amqp://"), strings.HasPrefix(url, "amqps://"), url == memoryBrokerURL:
	default:
		return fmt.Errorf("broker.url: unsupported scheme in %q", url)
	}
	if c.Broker.Prefetch <= 0 {
		return errors.New("broker.prefetch must be positive")
	}
	if c.Broker.ReconnectDelaySeconds <= 0 {
		return errors.New("broker.reconnect_delay_seconds must be positive")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"workflow.max_attempts":             c.Workflow.MaxAttempts,
		"workflow.summary_threshold":        c.Workflow.SummaryThreshold,
		"workflow.reclaim_interval_seconds": c.Workflow.ReclaimIntervalSeconds,
		"workflow.reclaim_after_seconds":    c.Workflow.ReclaimAfterSeconds,
		"notifications.request_timeout":     c.Notifications.RequestTimeout,
		"daemon.shutdown_timeout_seconds":   c.Daemon.ShutdownTimeoutSeconds,
	}); err != nil {
		return err
	}
	// Zero retry delays requeue immediately.
	if c.Workflow.RetryDelaySeconds < 0 {
		return errors.New("workflow.retry_delay_seconds must not be negative")
	}
	if c.Workflow.NotReadyDelaySeconds < 0 {
		return errors.New("workflow.not_ready_delay_seconds must not be negative")
	}
	if c.Workflow.SummaryThreshold > maximumSummaryThresholdRunes {
		return fmt.Errorf("workflow.summary_threshold must be at most %d", maximumSummaryThresholdRunes)
	}
	if c.Ingest.MaxUploadBytes <= 0 {
		return errors.New("ingest.max_upload_bytes must be positive")
	}
	return nil
}

func (c *Config) validateObjectStorage() error {
	if c.ObjectStorage.CloudName == "" {
		return errors.New("object_storage.cloud_name must be set (or set CLOUDINARY_URL)")
	}
	if c.ObjectStorage.APIKey == "" {
		return errors.New("object_storage.api_key must be set (or set CLOUDINARY_URL)")
	}
	if c.ObjectStorage.APISecret == "" {
		return errors.New("object_storage.api_secret must be set (or set CLOUDINARY_URL)")
	}
	return nil
}

func (c *Config) validateModeration() error {
	if c.Moderation.StateMachineARN == "" {
		return errors.New("moderation.state_machine_arn must be set (or set MODERATION_STATE_MACHINE_ARN)")
	}
	if (c.Moderation.AccessKeyID == "") != (c.Moderation.SecretAccessKey == "") {
		return errors.New("moderation.access_key_id and moderation.secret_access_key must be set together")
	}
	return nil
}

func (c *Config) validateTranscription() error {
	if c.Transcription.APIKey == "" {
		return errors.New("transcription.api_key must be set (or set OPENAI_API_KEY)")
	}
	if c.Summarizer.APIKey == "" {
		return errors.New("summarizer.api_key must be set (or set SUMMARIZER_API_KEY or OPENAI_API_KEY)")
	}
	return nil
}

func (c *Config) validatePush() error {
	if c.Push.CredentialsFile == "" {
		return errors.New("push.credentials_file must be set (or set GOOGLE_APPLICATION_CREDENTIALS)")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
