package eventbus

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/apperr"
	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/domain/event"
	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/metrics"
)

// ErrTransportClosed ends a subscription whose delivery stream closed without
// a Stop request, typically a dropped broker connection.
var ErrTransportClosed = errors.New("eventbus: delivery stream closed by transport")

// Delivery is one message handed over by a transport together with its
// settlement callbacks.
type Delivery struct {
	Message event.Message
	Ack     func() error
	Nack    func(requeue bool) error
}

type DispatchOptions struct {
	// Concurrency bounds in-flight handlers per subscription. Default 1 keeps
	// the queue's publish order.
	Concurrency int
	// RequeueWait delays the negative acknowledgment of a failed message so a
	// permanently failing handler does not spin.
	RequeueWait time.Duration
	Logger      *slog.Logger
}

func (o DispatchOptions) applyDefaults() DispatchOptions {
	if o.Concurrency <= 0 {
		o.Concurrency = 1
	}
	if o.RequeueWait < 0 {
		o.RequeueWait = 0
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Run starts the blocking receive loop over deliveries and returns the
// Subscription that tracks it. stop must make the transport close deliveries.
func Run(ctx context.Context, routingKey string, deliveries <-chan Delivery, h Handler, opts DispatchOptions, stop func(context.Context) error) *Subscription {
	opts = opts.applyDefaults()

	var requested atomic.Bool
	sub := newSubscription(routingKey, func(sctx context.Context) error {
		requested.Store(true)
		if stop == nil {
			return nil
		}
		return stop(sctx)
	})

	go func() {
		dispatch(ctx, deliveries, h, opts)
		var err error
		switch {
		case requested.Load():
		case ctx.Err() != nil:
			err = ctx.Err()
		default:
			err = ErrTransportClosed
		}
		sub.finish(err)
	}()

	return sub
}

func dispatch(ctx context.Context, deliveries <-chan Delivery, h Handler, opts DispatchOptions) {
	wg := &sync.WaitGroup{}
	sem := make(chan struct{}, opts.Concurrency)
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			wg.Add(1)
			go func(d Delivery) {
				defer func() { <-sem; wg.Done() }()
				settle(ctx, d, h, opts)
			}(d)
		}
	}
}

func settle(ctx context.Context, d Delivery, h Handler, opts DispatchOptions) {
	key := d.Message.RoutingKey
	logger := opts.Logger.With("routing_key", key, "event_id", d.Message.ID)

	started := time.Now()
	err := h(ctx, d.Message)
	metrics.HandlerDuration.WithLabelValues(key).Observe(time.Since(started).Seconds())

	if err == nil {
		if ackErr := d.Ack(); ackErr != nil {
			logger.Error("failed to ack message", "error", ackErr)
			return
		}
		metrics.EventsConsumed.WithLabelValues(key).Inc()
		return
	}

	if apperr.IsValidation(err) {
		metrics.EventsRejected.WithLabelValues(key).Inc()
		logger.Error("rejecting malformed event", "error", err)
		if nackErr := d.Nack(false); nackErr != nil {
			logger.Error("failed to reject message", "error", nackErr)
		}
		return
	}

	metrics.HandlerFailures.WithLabelValues(key).Inc()
	logger.Error("handler failed, message left for redelivery", "error", err)
	if opts.RequeueWait > 0 {
		select {
		case <-time.After(opts.RequeueWait):
		case <-ctx.Done():
			// unacked deliveries return to the queue when the channel closes
			return
		}
	}
	if nackErr := d.Nack(true); nackErr != nil {
		logger.Error("failed to requeue message", "error", nackErr)
	}
}
