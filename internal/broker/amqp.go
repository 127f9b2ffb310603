package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"mediapipe/internal/logging"
	"mediapipe/internal/services"
)

const probeTimeout = 5 * time.Second

// AMQPOptions configures an AMQP broker connection.
type AMQPOptions struct {
	URL            string
	Prefetch       int
	ReconnectDelay time.Duration
	Logger         *slog.Logger
}

// AMQP is a Broker backed by a supervised RabbitMQ connection. A lost
// connection is redialled after a fixed delay and every declared queue is
// declared again.
type AMQP struct {
	opts   AMQPOptions
	logger *slog.Logger

	mu     sync.Mutex
	conn   *amqp.Connection
	pub    *amqp.Channel
	ready  chan struct{}
	queues map[string]struct{}
	closed bool
	done   chan struct{}

	pubMu sync.Mutex
	wg    sync.WaitGroup
}

// NewAMQP starts the connection supervisor and returns immediately.
// Publishers block until the first connection is established.
func NewAMQP(opts AMQPOptions) *AMQP {
	if opts.Prefetch <= 0 {
		opts.Prefetch = 1
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = time.Second
	}
	b := &AMQP{
		opts:   opts,
		logger: logging.NewComponentLogger(opts.Logger, "broker"),
		ready:  make(chan struct{}),
		queues: make(map[string]struct{}),
		done:   make(chan struct{}),
	}
	b.wg.Add(1)
	go b.supervise()
	return b
}

// Probe dials url once and closes the connection.
func Probe(ctx context.Context, url string) error {
	timeout := probeTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	conn, err := amqp.DialConfig(url, amqp.Config{Dial: amqp.DefaultDial(timeout)})
	if err != nil {
		return services.Wrap(services.ErrTransient, "broker", "probe", "dial broker", err)
	}
	return conn.Close()
}

func (b *AMQP) supervise() {
	defer b.wg.Done()
	for {
		conn, ch, err := b.connect()
		if err != nil {
			b.logger.Warn("broker connection failed",
				logging.Error(err),
				logging.String(logging.FieldEventType, "broker_connect_failed"),
				logging.String(logging.FieldErrorHint, "check broker.url and that the broker is reachable"),
				logging.Duration("retry_in", b.opts.ReconnectDelay),
			)
			if !b.wait(b.opts.ReconnectDelay) {
				return
			}
			continue
		}

		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			_ = conn.Close()
			return
		}
		b.conn = conn
		b.pub = ch
		close(b.ready)
		b.mu.Unlock()
		b.logger.Info("broker connected", logging.Int("queues", b.queueCount()))

		connClosed := conn.NotifyClose(make(chan *amqp.Error, 1))
		chanClosed := ch.NotifyClose(make(chan *amqp.Error, 1))
		var cause *amqp.Error
		select {
		case <-b.done:
			return
		case cause = <-connClosed:
		case cause = <-chanClosed:
			_ = conn.Close()
		}

		b.mu.Lock()
		b.conn = nil
		b.pub = nil
		b.ready = make(chan struct{})
		b.mu.Unlock()

		attrs := []logging.Attr{
			logging.String(logging.FieldEventType, "broker_connection_lost"),
			logging.String(logging.FieldImpact, "publishes block until reconnected"),
		}
		if cause != nil {
			attrs = append(attrs, logging.Error(cause))
		}
		logging.WarnWithContext(b.logger, "broker connection lost; reconnecting", "broker_connection_lost", attrs...)
		if !b.wait(b.opts.ReconnectDelay) {
			return
		}
	}
}

func (b *AMQP) connect() (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(b.opts.URL)
	if err != nil {
		return nil, nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}
	b.mu.Lock()
	names := make([]string, 0, len(b.queues))
	for name := range b.queues {
		names = append(names, name)
	}
	b.mu.Unlock()
	for _, name := range names {
		if err := declare(ch, name); err != nil {
			_ = conn.Close()
			return nil, nil, err
		}
	}
	return conn, ch, nil
}

func (b *AMQP) wait(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-b.done:
		return false
	case <-timer.C:
		return true
	}
}

func (b *AMQP) queueCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queues)
}

// connection waits until a connection is available.
func (b *AMQP) connection(ctx context.Context) (*amqp.Connection, *amqp.Channel, error) {
	for {
		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			return nil, nil, ErrClosed
		}
		if b.conn != nil {
			conn, ch := b.conn, b.pub
			b.mu.Unlock()
			return conn, ch, nil
		}
		ready := b.ready
		b.mu.Unlock()

		select {
		case <-ready:
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-b.done:
			return nil, nil, ErrClosed
		}
	}
}

func declare(ch *amqp.Channel, name string) error {
	if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", name, err)
	}
	return nil
}

// DeclareQueue implements Broker. The queue is declared again after every reconnect.
func (b *AMQP) DeclareQueue(ctx context.Context, name string) error {
	b.mu.Lock()
	b.queues[name] = struct{}{}
	b.mu.Unlock()

	_, ch, err := b.connection(ctx)
	if err != nil {
		return err
	}
	b.pubMu.Lock()
	defer b.pubMu.Unlock()
	if err := declare(ch, name); err != nil {
		return services.Wrap(services.ErrTransient, "broker", "declare", name, err)
	}
	return nil
}

// Publish implements Broker.
func (b *AMQP) Publish(ctx context.Context, queue string, msg Message) error {
	_, ch, err := b.connection(ctx)
	if err != nil {
		return err
	}
	b.pubMu.Lock()
	defer b.pubMu.Unlock()
	err = ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Headers:      amqp.Table{AttemptHeader: int32(msg.Attempt)},
		Body:         msg.Body,
	})
	if err != nil {
		return services.Wrap(services.ErrTransient, "broker", "publish", queue, err)
	}
	return nil
}

// Consume implements Broker. The subscription is re-established after
// connection loss until ctx is cancelled.
func (b *AMQP) Consume(ctx context.Context, queue string, handle func(Delivery)) error {
	logger := b.logger.With(logging.String(logging.FieldQueue, queue))
	for {
		err := b.consumeOnce(ctx, queue, handle)
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, ErrClosed) {
			return err
		}
		logging.WarnWithContext(logger, "consumer interrupted; resubscribing", "consumer_interrupted",
			logging.Error(err),
			logging.String(logging.FieldImpact, "unacknowledged deliveries return to the queue"),
		)
		select {
		case <-ctx.Done():
			return nil
		case <-b.done:
			return ErrClosed
		case <-time.After(b.opts.ReconnectDelay):
		}
	}
}

func (b *AMQP) consumeOnce(ctx context.Context, queue string, handle func(Delivery)) error {
	conn, _, err := b.connection(ctx)
	if err != nil {
		return err
	}
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open consumer channel: %w", err)
	}
	if err := ch.Qos(b.opts.Prefetch, 0, false); err != nil {
		_ = ch.Close()
		return fmt.Errorf("set qos: %w", err)
	}
	if err := declare(ch, queue); err != nil {
		_ = ch.Close()
		return err
	}
	tag := "mediapipe-" + queue + "-" + uuid.NewString()[:8]
	deliveries, err := ch.Consume(queue, tag, false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return fmt.Errorf("consume %s: %w", queue, err)
	}

	for {
		select {
		case <-ctx.Done():
			// Leave the channel open so in-flight deliveries can still be
			// settled; Close tears it down with the connection.
			_ = ch.Cancel(tag, false)
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				_ = ch.Close()
				return errors.New("delivery channel closed")
			}
			handle(Delivery{
				Queue:       queue,
				Body:        d.Body,
				Attempt:     attemptFromHeader(d.Headers[AttemptHeader]),
				Redelivered: d.Redelivered,
				ack:         d,
			})
		}
	}
}

// Get implements Broker.
func (b *AMQP) Get(ctx context.Context, queue string) (Delivery, bool, error) {
	_, ch, err := b.connection(ctx)
	if err != nil {
		return Delivery{}, false, err
	}
	b.pubMu.Lock()
	d, ok, err := ch.Get(queue, false)
	b.pubMu.Unlock()
	if err != nil {
		return Delivery{}, false, services.Wrap(services.ErrTransient, "broker", "get", queue, err)
	}
	if !ok {
		return Delivery{}, false, nil
	}
	return Delivery{
		Queue:       queue,
		Body:        d.Body,
		Attempt:     attemptFromHeader(d.Headers[AttemptHeader]),
		Redelivered: d.Redelivered,
		ack:         d,
	}, true, nil
}

// Ack implements Broker.
func (b *AMQP) Ack(d Delivery) error { return ack(d) }

// Nack implements Broker.
func (b *AMQP) Nack(d Delivery, requeue bool) error { return nack(d, requeue) }

// Close stops the supervisor and closes the connection. Unacknowledged
// deliveries return to their queues.
func (b *AMQP) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.done)
	conn := b.conn
	b.conn = nil
	b.pub = nil
	b.mu.Unlock()

	var err error
	if conn != nil {
		err = conn.Close()
	}
	b.wg.Wait()
	return err
}
