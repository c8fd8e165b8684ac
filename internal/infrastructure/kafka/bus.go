// Package kafka carries the event bus over a single Kafka topic. Messages are
// keyed by routing key; each subscription joins its own consumer group, so
// every subscribing process sees every event, the way each AMQP subscriber
// owns a private queue.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/apperr"
	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/domain/event"
	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/eventbus"
	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/metrics"
)

type Config struct {
	Brokers []string
	Topic   string
	// GroupPrefix names the consumer groups; the routing key and a
	// per-process instance id are appended.
	GroupPrefix string
	RequeueWait time.Duration
	DialTimeout time.Duration
	Logger      *slog.Logger
}

func (c Config) applyDefaults() Config {
	if c.Topic == "" {
		c.Topic = "events"
	}
	if c.GroupPrefix == "" {
		c.GroupPrefix = "social"
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 10 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

type Bus struct {
	cfg        Config
	instanceID string

	mu       sync.Mutex
	state    eventbus.State
	producer *Producer
}

func New(cfg Config) *Bus {
	return &Bus{cfg: cfg.applyDefaults(), instanceID: uuid.New().String()}
}

func (b *Bus) State() eventbus.State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Connect checks that a broker answers and prepares the writer.
func (b *Bus) Connect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ensureLocked(ctx)
}

func (b *Bus) ensureLocked(ctx context.Context) error {
	if b.state == eventbus.Connected && b.producer != nil {
		return nil
	}
	b.state = eventbus.Connecting

	if err := b.ping(ctx); err != nil {
		b.state = eventbus.Disconnected
		return apperr.Connection("kafka", err)
	}
	if b.producer == nil {
		b.producer = NewProducer(ProducerConfig{Brokers: b.cfg.Brokers, Topic: b.cfg.Topic})
	}
	b.state = eventbus.Connected
	b.cfg.Logger.Info("connected to kafka", "topic", b.cfg.Topic, "brokers", b.cfg.Brokers)
	return nil
}

func (b *Bus) ping(ctx context.Context) error {
	if len(b.cfg.Brokers) == 0 {
		return errors.New("no brokers configured")
	}
	dialer := &kafka.Dialer{Timeout: b.cfg.DialTimeout}
	var lastErr error
	for _, broker := range b.cfg.Brokers {
		conn, err := dialer.DialContext(ctx, "tcp", broker)
		if err != nil {
			lastErr = err
			continue
		}
		_ = conn.Close()
		return nil
	}
	return lastErr
}

func (b *Bus) Publish(ctx context.Context, routingKey string, payload any) error {
	msg, err := eventbus.NewMessage(routingKey, payload)
	if err != nil {
		return err
	}
	return b.PublishMessage(ctx, msg)
}

func (b *Bus) PublishMessage(ctx context.Context, msg event.Message) error {
	b.mu.Lock()
	if err := b.ensureLocked(ctx); err != nil {
		b.mu.Unlock()
		metrics.PublishErrors.WithLabelValues(msg.RoutingKey).Inc()
		b.cfg.Logger.Error("publish failed", "routing_key", msg.RoutingKey, "error", err)
		return err
	}
	producer := b.producer
	b.mu.Unlock()

	if err := producer.SendMessage(ctx, msg); err != nil {
		metrics.PublishErrors.WithLabelValues(msg.RoutingKey).Inc()
		if isNetworkError(err) {
			b.mu.Lock()
			b.state = eventbus.Disconnected
			b.mu.Unlock()
			err = apperr.Connection("kafka", err)
		}
		b.cfg.Logger.Error("publish failed", "routing_key", msg.RoutingKey, "event_id", msg.ID, "error", err)
		return err
	}

	metrics.EventsPublished.WithLabelValues(msg.RoutingKey).Inc()
	b.cfg.Logger.Info("event published", "routing_key", msg.RoutingKey, "event_id", msg.ID, "topic", producer.GetTopic())
	return nil
}

// Subscribe joins a fresh consumer group on the topic and hands matching
// messages to h one at a time. An offset is committed only once its message
// was acknowledged or rejected; a requeued message is handed over again
// before the next one is fetched.
func (b *Bus) Subscribe(ctx context.Context, routingKey string, h eventbus.Handler) (*eventbus.Subscription, error) {
	b.mu.Lock()
	err := b.ensureLocked(ctx)
	b.mu.Unlock()
	if err != nil {
		return nil, err
	}

	groupID := fmt.Sprintf("%s-%s-%s", b.cfg.GroupPrefix, routingKey, b.instanceID)
	consumer := NewConsumer(b.cfg.Brokers, b.cfg.Topic, groupID)
	b.cfg.Logger.Info("subscribed to event", "routing_key", routingKey, "group_id", groupID)

	pumpCtx, cancel := context.WithCancel(ctx)
	deliveries := make(chan eventbus.Delivery)
	go b.pump(pumpCtx, consumer, routingKey, deliveries)

	stop := func(context.Context) error {
		cancel()
		return nil
	}

	return eventbus.Run(ctx, routingKey, deliveries, h, eventbus.DispatchOptions{
		Concurrency: 1,
		RequeueWait: b.cfg.RequeueWait,
		Logger:      b.cfg.Logger,
	}, stop), nil
}

type outcome int

const (
	outcomeAck outcome = iota
	outcomeReject
	outcomeRequeue
)

func (b *Bus) pump(ctx context.Context, consumer *Consumer, pattern string, out chan<- eventbus.Delivery) {
	defer close(out)
	defer consumer.Close()

	for {
		m, err := consumer.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, io.EOF) {
				b.cfg.Logger.Error("kafka fetch failed", "routing_key", pattern, "error", err)
				b.mu.Lock()
				b.state = eventbus.Disconnected
				b.mu.Unlock()
			}
			return
		}

		msg := fromKafkaMessage(m)
		if !eventbus.Matches(pattern, msg.RoutingKey) {
			if err := consumer.CommitMessages(ctx, m); err != nil {
				b.cfg.Logger.Error("kafka commit failed", "error", err)
				return
			}
			continue
		}

		if !b.deliver(ctx, msg, out) {
			return
		}
		if err := consumer.CommitMessages(ctx, m); err != nil {
			b.cfg.Logger.Error("kafka commit failed", "routing_key", msg.RoutingKey, "event_id", msg.ID, "error", err)
			return
		}
	}
}

// deliver hands msg to the dispatcher until it is acknowledged or rejected.
// It reports false when ctx ended first.
func (b *Bus) deliver(ctx context.Context, msg event.Message, out chan<- eventbus.Delivery) bool {
	for {
		settled := make(chan outcome, 1)
		d := eventbus.Delivery{
			Message: msg,
			Ack: func() error {
				settled <- outcomeAck
				return nil
			},
			Nack: func(requeue bool) error {
				if requeue {
					settled <- outcomeRequeue
				} else {
					settled <- outcomeReject
				}
				return nil
			},
		}

		select {
		case out <- d:
		case <-ctx.Done():
			return false
		}

		select {
		case o := <-settled:
			if o != outcomeRequeue {
				return true
			}
		case <-ctx.Done():
			return false
		}
	}
}

func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = eventbus.Disconnected
	if b.producer == nil {
		return nil
	}
	err := b.producer.Close()
	b.producer = nil
	return err
}

func isNetworkError(err error) bool {
	var netErr net.Error
	var opErr *net.OpError
	return errors.As(err, &netErr) || errors.As(err, &opErr) || errors.Is(err, io.EOF)
}

var _ eventbus.Bus = (*Bus)(nil)
