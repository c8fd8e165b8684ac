package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/domain/event"
)

// Header names carrying the envelope metadata next to the JSON body.
const (
	headerRoutingKey = "routing_key"
	headerMessageID  = "message_id"
	headerEmittedAt  = "emitted_at"
)

type ProducerConfig struct {
	Brokers []string
	Topic   string
}

type Producer struct {
	writer *kafka.Writer
}

func NewProducer(cfg ProducerConfig) *Producer {
	w := &kafka.Writer{
		Addr: kafka.TCP(cfg.Brokers...),
		// Keyed by routing key: one partition per key keeps publish order per key.
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		MaxAttempts:            3,
		ReadTimeout:            10 * time.Second,
		WriteTimeout:           10 * time.Second,
		Async:                  false,
		AllowAutoTopicCreation: true,
	}

	return &Producer{writer: w}
}

func (p *Producer) SendMessage(ctx context.Context, msg event.Message) error {
	err := p.writer.WriteMessages(ctx, toKafkaMessage(msg))
	if err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

func (p *Producer) GetTopic() string {
	return p.writer.Topic
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

func toKafkaMessage(msg event.Message) kafka.Message {
	return kafka.Message{
		Key:   []byte(msg.RoutingKey),
		Value: msg.Payload,
		Time:  msg.EmittedAt,
		Headers: []kafka.Header{
			{Key: headerRoutingKey, Value: []byte(msg.RoutingKey)},
			{Key: headerMessageID, Value: []byte(msg.ID)},
			{Key: headerEmittedAt, Value: []byte(msg.EmittedAt.UTC().Format(time.RFC3339Nano))},
		},
	}
}

func fromKafkaMessage(m kafka.Message) event.Message {
	msg := event.Message{Payload: m.Value, EmittedAt: m.Time}
	for _, h := range m.Headers {
		switch h.Key {
		case headerRoutingKey:
			msg.RoutingKey = string(h.Value)
		case headerMessageID:
			msg.ID = string(h.Value)
		case headerEmittedAt:
			if ts, err := time.Parse(time.RFC3339Nano, string(h.Value)); err == nil {
				msg.EmittedAt = ts
			}
		}
	}
	if msg.RoutingKey == "" {
		msg.RoutingKey = string(m.Key)
	}
	return msg
}
