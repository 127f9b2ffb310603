package broker

import (
	"context"
	"errors"
)

// AttemptHeader carries the bounded-retry attempt number of a delivery.
const AttemptHeader = "x-attempt"

// ErrClosed is returned by operations on a closed broker.
var ErrClosed = errors.New("broker closed")

var errAlreadySettled = errors.New("delivery already acknowledged")

// Message is an outgoing job body.
type Message struct {
	Body    []byte
	Attempt int
}

// Delivery is one received message awaiting acknowledgement.
type Delivery struct {
	Queue       string
	Body        []byte
	Attempt     int
	Redelivered bool

	ack acknowledger
}

type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

// Broker is the durable job transport shared by the gateway and the stage workers.
type Broker interface {
	// DeclareQueue declares a durable queue. Declaring twice is harmless.
	DeclareQueue(ctx context.Context, name string) error
	// Publish sends a persistent message. It blocks while the connection is
	// being re-established.
	Publish(ctx context.Context, queue string, msg Message) error
	// Consume delivers messages to handle until ctx is cancelled. handle is
	// called sequentially; the number of unacknowledged deliveries is bounded
	// by the broker prefetch.
	Consume(ctx context.Context, queue string, handle func(Delivery)) error
	// Get pulls a single message without a consumer. ok is false when the
	// queue is empty.
	Get(ctx context.Context, queue string) (d Delivery, ok bool, err error)
	Ack(d Delivery) error
	Nack(d Delivery, requeue bool) error
	Close() error
}

func ack(d Delivery) error {
	if d.ack == nil {
		return errors.New("delivery has no acknowledger")
	}
	return d.ack.Ack(false)
}

func nack(d Delivery, requeue bool) error {
	if d.ack == nil {
		return errors.New("delivery has no acknowledger")
	}
	return d.ack.Nack(false, requeue)
}

func attemptFromHeader(value any) int {
	switch v := value.(type) {
	case int:
		return v
	case int8:
		return int(v)
	case int16:
		return int(v)
	case int32:
		return int(v)
	case int64:
		return int(v)
	case uint8:
		return int(v)
	case uint16:
		return int(v)
	case uint32:
		return int(v)
	default:
		return 0
	}
}
