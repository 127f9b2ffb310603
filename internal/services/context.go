package services

import "context"

type contextKey int

const (
	fileIDKey contextKey = iota
	queueKey
	stageKey
	attemptKey
	requestIDKey
)

func withString(ctx context.Context, key contextKey, value string) context.Context {
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func stringValue(ctx context.Context, key contextKey) (string, bool) {
	v, _ := ctx.Value(key).(string)
	return v, v != ""
}

// WithFileID tags ctx with the file record a job operates on.
func WithFileID(ctx context.Context, id string) context.Context {
	return withString(ctx, fileIDKey, id)
}

func FileIDFromContext(ctx context.Context) (string, bool) { return stringValue(ctx, fileIDKey) }

// WithQueue tags ctx with the queue a delivery arrived on.
func WithQueue(ctx context.Context, queue string) context.Context {
	return withString(ctx, queueKey, queue)
}

func QueueFromContext(ctx context.Context) (string, bool) { return stringValue(ctx, queueKey) }

func WithStage(ctx context.Context, stage string) context.Context {
	return withString(ctx, stageKey, stage)
}

func StageFromContext(ctx context.Context) (string, bool) { return stringValue(ctx, stageKey) }

// WithAttempt records the delivery attempt; zero is a valid first attempt.
func WithAttempt(ctx context.Context, attempt int) context.Context {
	return context.WithValue(ctx, attemptKey, attempt)
}

func AttemptFromContext(ctx context.Context) (int, bool) {
	v, ok := ctx.Value(attemptKey).(int)
	return v, ok
}

// WithRequestID tags ctx with the HTTP correlation id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return withString(ctx, requestIDKey, id)
}

func RequestIDFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, requestIDKey)
}
