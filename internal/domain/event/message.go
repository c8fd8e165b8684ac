package event

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/ahmedmostafaa0/SocialMedia-Microservices/internal/apperr"
)

// Routing keys carried as exchange metadata.
const (
	ContentCreated = "content.created"
	ContentDeleted = "content.deleted"
)

// Message is the envelope moved across the bus. Only Payload travels as the
// body; ID, RoutingKey and EmittedAt ride in broker metadata.
type Message struct {
	ID         string          `json:"id"`
	RoutingKey string          `json:"routing_key"`
	Payload    json.RawMessage `json:"payload"`
	EmittedAt  time.Time       `json:"emitted_at"`
}

// Created is the content.created payload.
type Created struct {
	PostID    string    `json:"postId"`
	UserID    string    `json:"userId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// Deleted is the content.deleted payload.
type Deleted struct {
	PostID   string   `json:"postId"`
	UserID   string   `json:"userId"`
	MediaIDs []string `json:"mediaIds"`
}

// ParseCreated decodes and validates a content.created message.
func ParseCreated(msg Message) (Created, error) {
	var c Created
	if err := decode(msg, ContentCreated, &c); err != nil {
		return Created{}, err
	}
	if strings.TrimSpace(c.PostID) == "" {
		return Created{}, apperr.Validation("postId", "is required")
	}
	if strings.TrimSpace(c.UserID) == "" {
		return Created{}, apperr.Validation("userId", "is required")
	}
	if c.CreatedAt.IsZero() {
		return Created{}, apperr.Validation("createdAt", "is required")
	}
	return c, nil
}

// ParseDeleted decodes and validates a content.deleted message. A missing
// mediaIds list is treated as empty.
func ParseDeleted(msg Message) (Deleted, error) {
	var d Deleted
	if err := decode(msg, ContentDeleted, &d); err != nil {
		return Deleted{}, err
	}
	if strings.TrimSpace(d.PostID) == "" {
		return Deleted{}, apperr.Validation("postId", "is required")
	}
	for _, id := range d.MediaIDs {
		if strings.TrimSpace(id) == "" {
			return Deleted{}, apperr.Validation("mediaIds", "contains an empty id")
		}
	}
	return d, nil
}

func decode(msg Message, routingKey string, v any) error {
	if msg.RoutingKey != routingKey {
		return apperr.Validation("routingKey", "expected "+routingKey+", got "+msg.RoutingKey)
	}
	if len(msg.Payload) == 0 {
		return apperr.Validation("payload", "is empty")
	}
	if err := json.Unmarshal(msg.Payload, v); err != nil {
		return apperr.Validation("payload", err.Error())
	}
	return nil
}
