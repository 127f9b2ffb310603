package logging

import (
	"context"
	"log/slog"

	"mediapipe/internal/services"
)

// Structured field keys shared by every component.
const (
	FieldComponent     = "component"
	FieldFileID        = "file_id"
	FieldQueue         = "queue"
	FieldStage         = "stage"
	FieldAttempt       = "attempt"
	FieldCorrelationID = "correlation_id"

	// FieldEventType classifies warnings and errors for log queries.
	FieldEventType = "event_type"
	// FieldErrorHint suggests the next operator step.
	FieldErrorHint = "error_hint"
	// FieldImpact is the user-facing consequence of a warning.
	FieldImpact = "impact"
	FieldAlert  = "alert"
)

// ContextFields returns the job and request identifiers carried by ctx.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	var fields []slog.Attr
	add := func(key, value string, ok bool) {
		if ok {
			fields = append(fields, slog.String(key, value))
		}
	}
	id, ok := services.FileIDFromContext(ctx)
	add(FieldFileID, id, ok)
	queue, ok := services.QueueFromContext(ctx)
	add(FieldQueue, queue, ok)
	stage, ok := services.StageFromContext(ctx)
	add(FieldStage, stage, ok)
	if attempt, ok := services.AttemptFromContext(ctx); ok {
		fields = append(fields, slog.Int(FieldAttempt, attempt))
	}
	rid, ok := services.RequestIDFromContext(ctx)
	add(FieldCorrelationID, rid, ok)
	return fields
}

// WithContext tags logger with ContextFields(ctx).
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
