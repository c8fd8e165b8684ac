package eventbus

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/apperr"
	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/domain/event"
	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/metrics"
)

const (
	memoryQueueSize = 1024
	requeueRetry    = 10 * time.Millisecond
)

var errMemoryQueueFull = errors.New("eventbus: memory queue full")

// Memory is an in-process topic exchange for single-binary development and
// tests. Every subscription owns a private queue, mirroring the anonymous
// exclusive queues of the broker transports.
type Memory struct {
	opts DispatchOptions

	mu     sync.Mutex
	state  State
	queues map[*memoryQueue]struct{}
	// Unreachable makes Connect fail, simulating a broker outage.
	unreachable bool
}

type memoryQueue struct {
	pattern string
	ch      chan Delivery
	closed  bool
	mu      sync.Mutex
}

func NewMemory(opts DispatchOptions) *Memory {
	return &Memory{opts: opts.applyDefaults(), queues: map[*memoryQueue]struct{}{}}
}

func (m *Memory) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connectLocked()
}

func (m *Memory) connectLocked() error {
	if m.state == Connected {
		return nil
	}
	m.state = Connecting
	if m.unreachable {
		m.state = Disconnected
		return apperr.Connection("memory bus", errors.New("broker unreachable"))
	}
	m.state = Connected
	return nil
}

func (m *Memory) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// SetUnreachable toggles the simulated outage. Going unreachable drops the
// current connection like an unexpected broker close.
func (m *Memory) SetUnreachable(v bool) {
	m.mu.Lock()
	m.unreachable = v
	m.mu.Unlock()
	if v {
		m.Drop()
	}
}

// Drop closes every queue and returns to Disconnected.
func (m *Memory) Drop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for q := range m.queues {
		q.close()
		delete(m.queues, q)
	}
	m.state = Disconnected
}

// Subscriptions counts the bound queues.
func (m *Memory) Subscriptions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queues)
}

func (m *Memory) Close() error {
	m.Drop()
	return nil
}

func (m *Memory) Publish(ctx context.Context, routingKey string, payload any) error {
	msg, err := NewMessage(routingKey, payload)
	if err != nil {
		return err
	}
	return m.PublishMessage(ctx, msg)
}

func (m *Memory) PublishMessage(ctx context.Context, msg event.Message) error {
	m.mu.Lock()
	if err := m.connectLocked(); err != nil {
		m.mu.Unlock()
		metrics.PublishErrors.WithLabelValues(msg.RoutingKey).Inc()
		return err
	}
	var targets []*memoryQueue
	for q := range m.queues {
		if Matches(q.pattern, msg.RoutingKey) {
			targets = append(targets, q)
		}
	}
	m.mu.Unlock()

	for _, q := range targets {
		if err := q.push(ctx, m.delivery(q, msg)); err != nil {
			metrics.PublishErrors.WithLabelValues(msg.RoutingKey).Inc()
			return err
		}
	}
	metrics.EventsPublished.WithLabelValues(msg.RoutingKey).Inc()
	return nil
}

func (m *Memory) delivery(q *memoryQueue, msg event.Message) Delivery {
	var d Delivery
	d = Delivery{
		Message: msg,
		Ack:     func() error { return nil },
		Nack: func(requeue bool) error {
			if requeue {
				go m.requeue(q, d)
			}
			return nil
		},
	}
	return d
}

func (m *Memory) Subscribe(ctx context.Context, routingKey string, h Handler) (*Subscription, error) {
	m.mu.Lock()
	if err := m.connectLocked(); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	q := &memoryQueue{pattern: routingKey, ch: make(chan Delivery, memoryQueueSize)}
	m.queues[q] = struct{}{}
	m.mu.Unlock()

	m.opts.Logger.Info("subscribed to event", "routing_key", routingKey)

	stop := func(context.Context) error {
		m.mu.Lock()
		delete(m.queues, q)
		m.mu.Unlock()
		q.close()
		return nil
	}
	return Run(ctx, routingKey, q.ch, h, m.opts, stop), nil
}

// requeue retries until q takes d back or is closed.
func (m *Memory) requeue(q *memoryQueue, d Delivery) {
	warned := false
	for {
		err := q.push(context.Background(), d)
		if err == nil {
			return
		}
		if !warned {
			m.opts.Logger.Warn("memory queue full, retrying requeue",
				"routing_key", d.Message.RoutingKey, "event_id", d.Message.ID, "error", err)
			warned = true
		}
		time.Sleep(requeueRetry)
	}
}

// push never blocks: a full queue reports an error to the publisher.
func (q *memoryQueue) push(ctx context.Context, d Delivery) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	select {
	case q.ch <- d:
		return nil
	default:
		return errMemoryQueueFull
	}
}

func (q *memoryQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
}

var _ Bus = (*Memory)(nil)
