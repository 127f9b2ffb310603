package broker

import (
	"log/slog"

	"mediapipe/internal/config"
)

// FromConfig builds the broker selected by broker.url.
func FromConfig(cfg *config.Config, logger *slog.Logger) Broker {
	if cfg.MemoryBroker() {
		return NewMemory(cfg.Broker.Prefetch)
	}
	return NewAMQP(AMQPOptions{
		URL:            cfg.Broker.URL,
		Prefetch:       cfg.Broker.Prefetch,
		ReconnectDelay: cfg.ReconnectDelay(),
		Logger:         logger,
	})
}
