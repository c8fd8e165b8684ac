package consumer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/eventbus"
)

type binding struct {
	routingKey string
	handler    eventbus.Handler
}

// Runner owns a service's subscriptions. When a subscription ends because
// the transport went away it subscribes again, which makes the bus
// reconnect, backing off between failed attempts.
type Runner struct {
	bus        eventbus.Subscriber
	logger     *slog.Logger
	minBackoff time.Duration
	maxBackoff time.Duration
	bindings   []binding
}

type RunnerOption func(*Runner)

// WithBackoff bounds the wait between resubscribe attempts.
func WithBackoff(initial, limit time.Duration) RunnerOption {
	return func(r *Runner) {
		r.minBackoff = initial
		r.maxBackoff = limit
	}
}

func NewRunner(bus eventbus.Subscriber, logger *slog.Logger, opts ...RunnerOption) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runner{
		bus:        bus,
		logger:     logger,
		minBackoff: 500 * time.Millisecond,
		maxBackoff: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handle registers h for routingKey. Call before Run.
func (r *Runner) Handle(routingKey string, h eventbus.Handler) {
	r.bindings = append(r.bindings, binding{routingKey: routingKey, handler: h})
}

// Run keeps every registered subscription alive until ctx is canceled, then
// stops them and waits for in-flight handlers.
func (r *Runner) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, b := range r.bindings {
		wg.Add(1)
		go func(b binding) {
			defer wg.Done()
			r.keep(ctx, b)
		}(b)
	}
	wg.Wait()
	return nil
}

func (r *Runner) keep(ctx context.Context, b binding) {
	logger := r.logger.With("routing_key", b.routingKey)
	backoff := r.minBackoff

	for {
		sub, err := r.bus.Subscribe(ctx, b.routingKey, b.handler)
		if err != nil {
			logger.Error("subscribe failed, retrying", "error", err, "backoff", backoff)
			if !sleep(ctx, backoff) {
				return
			}
			backoff = min(backoff*2, r.maxBackoff)
			continue
		}
		backoff = r.minBackoff

		select {
		case <-ctx.Done():
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := sub.Stop(stopCtx); err != nil {
				logger.Error("failed to stop subscription", "error", err)
			}
			cancel()
			return
		case <-sub.Done():
		}

		if sub.Err() == nil {
			return
		}
		logger.Warn("subscription ended, resubscribing", "error", sub.Err())
		if !sleep(ctx, backoff) {
			return
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
