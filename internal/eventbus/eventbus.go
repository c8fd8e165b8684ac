// Package eventbus defines the publish/subscribe contract shared by the
// RabbitMQ, Kafka and in-process transports.
//
// A Bus owns its connection. Publish and Subscribe reconnect lazily when the
// connection was never opened or was lost; nothing reconnects in the
// background. Subscriptions acknowledge a message only after the handler
// returned nil, so handlers must tolerate redelivery.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/domain/event"
)

// Handler applies one delivered message.
type Handler func(ctx context.Context, msg event.Message) error

// State is the connection lifecycle of a Bus.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

type Publisher interface {
	// Publish serializes payload as JSON and sends it under routingKey without
	// waiting for any consumer.
	Publish(ctx context.Context, routingKey string, payload any) error
	// PublishMessage sends a prebuilt envelope and keeps its ID, so a
	// republished event is recognizable as the same event downstream.
	PublishMessage(ctx context.Context, msg event.Message) error
}

type Subscriber interface {
	// Subscribe binds a private queue to routingKey and dispatches deliveries to h.
	Subscribe(ctx context.Context, routingKey string, h Handler) (*Subscription, error)
}

type Bus interface {
	Publisher
	Subscriber
	Connect(ctx context.Context) error
	State() State
	Close() error
}

// Subscription is a running consumer. Done is closed once the delivery loop
// has exited, either after Stop or because the transport went away.
type Subscription struct {
	RoutingKey string

	done chan struct{}
	mu   sync.Mutex
	err  error
	stop func(context.Context) error
}

func newSubscription(routingKey string, stop func(context.Context) error) *Subscription {
	return &Subscription{RoutingKey: routingKey, done: make(chan struct{}), stop: stop}
}

func (s *Subscription) Done() <-chan struct{} { return s.done }

// Err reports why the loop ended; nil after a requested Stop.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Stop detaches from the transport and waits for in-flight handlers.
func (s *Subscription) Stop(ctx context.Context) error {
	if s.stop != nil {
		if err := s.stop(ctx); err != nil {
			return err
		}
	}
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Subscription) finish(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	close(s.done)
}

// NewMessage builds the envelope for payload with a fresh ID.
func NewMessage(routingKey string, payload any) (event.Message, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return event.Message{}, fmt.Errorf("marshal %s payload: %w", routingKey, err)
	}
	return event.Message{
		ID:         uuid.New().String(),
		RoutingKey: routingKey,
		Payload:    body,
		EmittedAt:  time.Now().UTC(),
	}, nil
}

// Matches reports whether routingKey satisfies a topic binding pattern where
// "*" matches one word and "#" matches zero or more words.
func Matches(pattern, routingKey string) bool {
	return matchWords(strings.Split(pattern, "."), strings.Split(routingKey, "."))
}

func matchWords(pattern, key []string) bool {
	for len(pattern) > 0 {
		switch pattern[0] {
		case "#":
			if len(pattern) == 1 {
				return true
			}
			for i := 0; i <= len(key); i++ {
				if matchWords(pattern[1:], key[i:]) {
					return true
				}
			}
			return false
		case "*":
			if len(key) == 0 {
				return false
			}
		default:
			if len(key) == 0 || key[0] != pattern[0] {
				return false
			}
		}
		pattern, key = pattern[1:], key[1:]
	}
	return len(key) == 0
}
