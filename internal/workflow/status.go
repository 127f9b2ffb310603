package workflow

import (
	"context"

	"mediapipe/internal/stage"
)

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running     bool                    `json:"running"`
	LastError   string                  `json:"lastError,omitempty"`
	Queues      []string                `json:"queues"`
	StageHealth map[string]stage.Health `json:"stageHealth"`
}

// Status returns the latest workflow information, including each stage's
// health check.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	running := m.running
	lastErr := m.lastErr
	handlers := append([]stage.Handler(nil), m.handlers...)
	m.mu.RUnlock()

	summary := StatusSummary{
		Running:     running,
		Queues:      make([]string, 0, len(handlers)),
		StageHealth: make(map[string]stage.Health, len(handlers)),
	}
	for _, h := range handlers {
		summary.Queues = append(summary.Queues, h.Queue())
		summary.StageHealth[h.Name()] = h.HealthCheck(ctx)
	}
	if lastErr != nil {
		summary.LastError = lastErr.Error()
	}
	return summary
}
