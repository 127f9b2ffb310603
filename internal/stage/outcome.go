package stage

import (
	"context"
	"errors"
	"time"

	"mediapipe/internal/services"
)

// Result is the acknowledgement decision for one delivery.
type Result int

const (
	// Ack settles the delivery.
	Ack Result = iota
	// NackRequeue returns the job for another attempt.
	NackRequeue
	// NackDrop discards a job that can never succeed.
	NackDrop
)

func (r Result) String() string {
	switch r {
	case Ack:
		return "ack"
	case NackRequeue:
		return "nack_requeue"
	case NackDrop:
		return "nack_drop"
	default:
		return "unknown"
	}
}

// Outcome is what a handler reports for one delivery.
type Outcome struct {
	Result Result
	Err    error
	// Unbounded requeues skip attempt accounting. Set for not-ready jobs.
	Unbounded bool
	// Shutdown marks work interrupted by cancellation; the job goes back
	// to the broker untouched.
	Shutdown bool
}

// Done acknowledges the delivery.
func Done() Outcome { return Outcome{Result: Ack} }

// Drop discards the delivery.
func Drop(err error) Outcome { return Outcome{Result: NackDrop, Err: err} }

// Retry requeues the delivery within the attempt ceiling.
func Retry(err error) Outcome { return Outcome{Result: NackRequeue, Err: err} }

// NotReady requeues the delivery without an attempt ceiling.
func NotReady(err error) Outcome {
	return Outcome{Result: NackRequeue, Err: err, Unbounded: true}
}

// Classify maps an error to its outcome:
//   - nil acknowledges;
//   - validation and not-found errors drop the job;
//   - not-ready errors requeue without a ceiling;
//   - context cancellation requeues untouched;
//   - everything else is a bounded retry.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return Done()
	case errors.Is(err, context.Canceled):
		return Outcome{Result: NackRequeue, Err: err, Shutdown: true}
	case errors.Is(err, services.ErrValidation), errors.Is(err, services.ErrNotFound):
		return Drop(err)
	case errors.Is(err, services.ErrNotReady):
		return NotReady(err)
	default:
		return Retry(err)
	}
}

// Delay returns the wait applied before the outcome is carried out.
func (o Outcome) Delay(retryDelay, notReadyDelay time.Duration) time.Duration {
	if o.Result != NackRequeue || o.Shutdown {
		return 0
	}
	if o.Unbounded {
		return notReadyDelay
	}
	return retryDelay
}
