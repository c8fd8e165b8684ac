// Package rabbitmq implements the event bus over one shared, non-durable AMQP
// topic exchange. Each subscription gets an anonymous, exclusive,
// auto-deleting queue, so every subscribing process receives its own copy of
// each event.
package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/apperr"
	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/domain/event"
	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/eventbus"
	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/metrics"
)

type Config struct {
	URI      string
	Exchange string
	// Prefetch limits unacknowledged deliveries per subscription channel.
	Prefetch    int
	Concurrency int
	RequeueWait time.Duration
	DialTimeout time.Duration
	Logger      *slog.Logger
}

func (c Config) applyDefaults() Config {
	if c.Exchange == "" {
		c.Exchange = "events"
	}
	if c.Prefetch <= 0 {
		c.Prefetch = 10
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 10 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Bus owns one AMQP connection and a publishing channel. The zero state is
// Disconnected; Publish and Subscribe connect on demand.
type Bus struct {
	cfg Config

	mu    sync.Mutex
	state eventbus.State
	conn  *amqp.Connection
	ch    *amqp.Channel
}

func New(cfg Config) *Bus {
	return &Bus{cfg: cfg.applyDefaults()}
}

func (b *Bus) State() eventbus.State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Connect dials the broker, opens the publishing channel and declares the
// exchange. It fails with apperr.ConnectionError when the broker is unreachable.
func (b *Bus) Connect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ensureLocked(ctx)
}

func (b *Bus) ensureLocked(ctx context.Context) error {
	if b.state == eventbus.Connected && b.conn != nil && !b.conn.IsClosed() && b.ch != nil {
		return nil
	}
	b.state = eventbus.Connecting

	if b.conn == nil || b.conn.IsClosed() {
		conn, err := amqp.DialConfig(b.cfg.URI, amqp.Config{
			Dial: amqp.DefaultDial(b.cfg.DialTimeout),
		})
		if err != nil {
			b.state = eventbus.Disconnected
			return apperr.Connection("rabbitmq", err)
		}
		b.conn = conn
		go b.watchConnection(conn)
	}

	ch, err := b.conn.Channel()
	if err != nil {
		b.dropLocked()
		return apperr.Connection("rabbitmq", fmt.Errorf("open channel: %w", err))
	}
	if err := ch.ExchangeDeclare(
		b.cfg.Exchange, // name
		"topic",        // type
		false,          // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	); err != nil {
		_ = ch.Close()
		b.dropLocked()
		return apperr.Connection("rabbitmq", fmt.Errorf("declare exchange %s: %w", b.cfg.Exchange, err))
	}
	b.ch = ch
	go b.watchChannel(ch)

	b.state = eventbus.Connected
	b.cfg.Logger.Info("connected to rabbitmq", "exchange", b.cfg.Exchange)
	return nil
}

func (b *Bus) watchConnection(conn *amqp.Connection) {
	closeErr, ok := <-conn.NotifyClose(make(chan *amqp.Error, 1))
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn != conn {
		return
	}
	if ok && closeErr != nil {
		b.cfg.Logger.Error("rabbitmq connection closed", "error", closeErr.Error())
	}
	b.conn = nil
	b.ch = nil
	b.state = eventbus.Disconnected
}

func (b *Bus) watchChannel(ch *amqp.Channel) {
	closeErr, ok := <-ch.NotifyClose(make(chan *amqp.Error, 1))
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ch != ch {
		return
	}
	if ok && closeErr != nil {
		b.cfg.Logger.Error("rabbitmq publish channel closed", "error", closeErr.Error())
	}
	b.ch = nil
	b.state = eventbus.Disconnected
}

func (b *Bus) dropLocked() {
	if b.conn != nil {
		_ = b.conn.Close()
	}
	b.conn = nil
	b.ch = nil
	b.state = eventbus.Disconnected
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
	defer b.mu.Unlock()

	if err := b.ensureLocked(ctx); err != nil {
		metrics.PublishErrors.WithLabelValues(msg.RoutingKey).Inc()
		b.cfg.Logger.Error("publish failed", "routing_key", msg.RoutingKey, "error", err)
		return err
	}

	err := b.ch.PublishWithContext(ctx, b.cfg.Exchange, msg.RoutingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Transient,
		MessageId:    msg.ID,
		Timestamp:    msg.EmittedAt,
		Body:         msg.Payload,
	})
	if err != nil {
		metrics.PublishErrors.WithLabelValues(msg.RoutingKey).Inc()
		if errors.Is(err, amqp.ErrClosed) {
			b.ch = nil
			b.state = eventbus.Disconnected
			err = apperr.Connection("rabbitmq", err)
		}
		b.cfg.Logger.Error("publish failed", "routing_key", msg.RoutingKey, "event_id", msg.ID, "error", err)
		return fmt.Errorf("rabbitmq publish %s: %w", msg.RoutingKey, err)
	}

	metrics.EventsPublished.WithLabelValues(msg.RoutingKey).Inc()
	b.cfg.Logger.Info("event published", "routing_key", msg.RoutingKey, "event_id", msg.ID)
	return nil
}

// Subscribe declares an anonymous exclusive queue bound under routingKey and
// starts dispatching its deliveries to h. Failed handler runs are negatively
// acknowledged with requeue; malformed events are rejected.
func (b *Bus) Subscribe(ctx context.Context, routingKey string, h eventbus.Handler) (*eventbus.Subscription, error) {
	b.mu.Lock()
	if err := b.ensureLocked(ctx); err != nil {
		b.mu.Unlock()
		return nil, err
	}
	ch, err := b.conn.Channel()
	b.mu.Unlock()
	if err != nil {
		return nil, apperr.Connection("rabbitmq", fmt.Errorf("open consumer channel: %w", err))
	}

	msgs, queue, err := b.bind(ch, routingKey)
	if err != nil {
		_ = ch.Close()
		return nil, err
	}

	b.cfg.Logger.Info("subscribed to event", "routing_key", routingKey, "queue", queue)

	deliveries := make(chan eventbus.Delivery)
	go func() {
		defer close(deliveries)
		for d := range msgs {
			select {
			case deliveries <- toDelivery(d):
			case <-ctx.Done():
				return
			}
		}
	}()

	stop := func(context.Context) error {
		if err := ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			return err
		}
		return nil
	}

	return eventbus.Run(ctx, routingKey, deliveries, h, eventbus.DispatchOptions{
		Concurrency: b.cfg.Concurrency,
		RequeueWait: b.cfg.RequeueWait,
		Logger:      b.cfg.Logger,
	}, stop), nil
}

func (b *Bus) bind(ch *amqp.Channel, routingKey string) (<-chan amqp.Delivery, string, error) {
	if err := ch.Qos(b.cfg.Prefetch, 0, false); err != nil {
		return nil, "", fmt.Errorf("set qos: %w", err)
	}
	q, err := ch.QueueDeclare(
		"",    // server-generated name
		false, // durable
		true,  // auto-delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return nil, "", fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, routingKey, b.cfg.Exchange, false, nil); err != nil {
		return nil, "", fmt.Errorf("bind queue %s to %s: %w", q.Name, routingKey, err)
	}
	msgs, err := ch.Consume(
		q.Name, // queue
		"",     // consumer tag
		false,  // auto-ack
		true,   // exclusive
		false,  // no-local
		false,  // no-wait
		nil,    // args
	)
	if err != nil {
		return nil, "", fmt.Errorf("consume %s: %w", q.Name, err)
	}
	return msgs, q.Name, nil
}

func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	conn := b.conn
	b.conn = nil
	b.ch = nil
	b.state = eventbus.Disconnected
	if conn != nil && !conn.IsClosed() {
		return conn.Close()
	}
	return nil
}

func toMessage(d amqp.Delivery) event.Message {
	emitted := d.Timestamp
	if emitted.IsZero() {
		emitted = time.Now().UTC()
	}
	return event.Message{
		ID:         d.MessageId,
		RoutingKey: d.RoutingKey,
		Payload:    d.Body,
		EmittedAt:  emitted,
	}
}

func toDelivery(d amqp.Delivery) eventbus.Delivery {
	return eventbus.Delivery{
		Message: toMessage(d),
		Ack:     func() error { return d.Ack(false) },
		Nack:    func(requeue bool) error { return d.Nack(false, requeue) },
	}
}

var _ eventbus.Bus = (*Bus)(nil)
