package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/layer-3/xrpauth/core"
)

// DefaultTopic receives one message per successful authentication
const DefaultTopic = "xrpauth.authenticated"

// AuthenticatedEvent represents a successful authentication
type AuthenticatedEvent struct {
	SessionID string        `json:"session_id"`
	Address   string        `json:"address"`
	Provider  core.Provider `json:"provider"`
	IssuedAt  time.Time     `json:"issued_at"`
	ExpiresAt time.Time     `json:"expires_at"`
}

// WatermillPublisher implements the EventPublisher interface using Watermill
type WatermillPublisher struct {
	publisher message.Publisher
	topic     string
}

// NewWatermillPublisher creates a new Watermill publisher. An empty topic
// selects DefaultTopic.
func NewWatermillPublisher(publisher message.Publisher, topic string) *WatermillPublisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &WatermillPublisher{
		publisher: publisher,
		topic:     topic,
	}
}

// PublishAuthenticated publishes an authenticated event
func (p *WatermillPublisher) PublishAuthenticated(ctx context.Context, session core.Session) error {
	event := AuthenticatedEvent{
		SessionID: session.ID,
		Address:   session.Address,
		Provider:  session.Provider,
		IssuedAt:  session.IssuedAt,
		ExpiresAt: session.ExpiresAt,
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(session.ID, payload)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(p.topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}
