package broker

import (
	"context"
	"sync"
)

// QueueStats reports counters for one in-memory queue.
type QueueStats struct {
	Published int
	Acked     int
	Nacked    int
	Requeued  int
	Depth     int
	InFlight  int
}

// Memory is an in-process broker with at-least-once semantics. Nacked
// messages with requeue return to the tail of their queue marked redelivered.
type Memory struct {
	prefetch int

	mu     sync.Mutex
	queues map[string]*memoryQueue
	closed bool
	done   chan struct{}
}

type memoryQueue struct {
	pending []memoryMessage
	notify  chan struct{}
	stats   QueueStats
}

type memoryMessage struct {
	body        []byte
	attempt     int
	redelivered bool
}

// NewMemory constructs an in-memory broker. prefetch bounds unacknowledged
// deliveries per consumer.
func NewMemory(prefetch int) *Memory {
	if prefetch <= 0 {
		prefetch = 1
	}
	return &Memory{
		prefetch: prefetch,
		queues:   make(map[string]*memoryQueue),
		done:     make(chan struct{}),
	}
}

func (m *Memory) queueLocked(name string) *memoryQueue {
	q, ok := m.queues[name]
	if !ok {
		q = &memoryQueue{notify: make(chan struct{})}
		m.queues[name] = q
	}
	return q
}

// signal wakes every waiter on q. Caller holds m.mu.
func (q *memoryQueue) signal() {
	close(q.notify)
	q.notify = make(chan struct{})
}

// DeclareQueue implements Broker.
func (m *Memory) DeclareQueue(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.queueLocked(name)
	return nil
}

// Publish implements Broker.
func (m *Memory) Publish(_ context.Context, queue string, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	q := m.queueLocked(queue)
	body := append([]byte(nil), msg.Body...)
	q.pending = append(q.pending, memoryMessage{body: body, attempt: msg.Attempt})
	q.stats.Published++
	q.signal()
	return nil
}

// Consume implements Broker.
func (m *Memory) Consume(ctx context.Context, queue string, handle func(Delivery)) error {
	slots := make(chan struct{}, m.prefetch)
	for {
		select {
		case slots <- struct{}{}:
		case <-ctx.Done():
			return nil
		case <-m.done:
			return ErrClosed
		}

		msg, err := m.next(ctx, queue)
		if err != nil {
			<-slots
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		handle(m.delivery(queue, msg, func() { <-slots }))
	}
}

// Get implements Broker.
func (m *Memory) Get(_ context.Context, queue string) (Delivery, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return Delivery{}, false, ErrClosed
	}
	q := m.queueLocked(queue)
	if len(q.pending) == 0 {
		return Delivery{}, false, nil
	}
	msg := q.pending[0]
	q.pending = q.pending[1:]
	q.stats.InFlight++
	return m.delivery(queue, msg, nil), true, nil
}

func (m *Memory) next(ctx context.Context, queue string) (memoryMessage, error) {
	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return memoryMessage{}, ErrClosed
		}
		q := m.queueLocked(queue)
		if len(q.pending) > 0 {
			msg := q.pending[0]
			q.pending = q.pending[1:]
			q.stats.InFlight++
			m.mu.Unlock()
			return msg, nil
		}
		wait := q.notify
		m.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return memoryMessage{}, ctx.Err()
		case <-m.done:
			return memoryMessage{}, ErrClosed
		}
	}
}

func (m *Memory) delivery(queue string, msg memoryMessage, release func()) Delivery {
	return Delivery{
		Queue:       queue,
		Body:        msg.body,
		Attempt:     msg.attempt,
		Redelivered: msg.redelivered,
		ack:         &memoryAck{broker: m, queue: queue, msg: msg, release: release},
	}
}

// Ack implements Broker.
func (m *Memory) Ack(d Delivery) error { return ack(d) }

// Nack implements Broker.
func (m *Memory) Nack(d Delivery, requeue bool) error { return nack(d, requeue) }

// Close implements Broker. Pending messages are discarded.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	close(m.done)
	return nil
}

// Stats returns a snapshot of the counters for queue.
func (m *Memory) Stats(queue string) QueueStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queues[queue]
	if !ok {
		return QueueStats{}
	}
	stats := q.stats
	stats.Depth = len(q.pending)
	return stats
}

// Messages returns copies of the bodies waiting on queue.
func (m *Memory) Messages(queue string) []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queues[queue]
	if !ok {
		return nil
	}
	out := make([]Message, 0, len(q.pending))
	for _, msg := range q.pending {
		out = append(out, Message{Body: append([]byte(nil), msg.body...), Attempt: msg.attempt})
	}
	return out
}

type memoryAck struct {
	broker  *Memory
	queue   string
	msg     memoryMessage
	release func()

	once sync.Once
}

func (a *memoryAck) Ack(bool) error {
	settled := false
	a.once.Do(func() {
		settled = true
		a.broker.settle(a.queue, func(q *memoryQueue) { q.stats.Acked++ })
		if a.release != nil {
			a.release()
		}
	})
	if !settled {
		return errAlreadySettled
	}
	return nil
}

func (a *memoryAck) Nack(_ bool, requeue bool) error {
	settled := false
	a.once.Do(func() {
		settled = true
		a.broker.settle(a.queue, func(q *memoryQueue) {
			q.stats.Nacked++
			if requeue {
				q.stats.Requeued++
				msg := a.msg
				msg.redelivered = true
				q.pending = append(q.pending, msg)
				q.signal()
			}
		})
		if a.release != nil {
			a.release()
		}
	})
	if !settled {
		return errAlreadySettled
	}
	return nil
}

func (m *Memory) settle(queue string, apply func(*memoryQueue)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := m.queueLocked(queue)
	q.stats.InFlight--
	if !m.closed {
		apply(q)
	}
}
