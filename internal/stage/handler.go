package stage

import (
	"context"

	"mediapipe/internal/broker"
)

// Handler describes the contract the workflow runner needs from each stage.
// Handle must not ack or nack the delivery; the runner translates the
// returned Outcome.
type Handler interface {
	Name() string
	Queue() string
	Handle(context.Context, broker.Delivery) Outcome
	HealthCheck(context.Context) Health
}
