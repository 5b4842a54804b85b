package domain

import (
	"context"
)

// EventBus defines the interface for event-driven communication.
// Supports Go channels (community) or NATS (pro).
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, topic string, handler MessageHandler) (Subscription, error)

	// Request sends a message and waits for a response (request-reply pattern).
	Request(ctx context.Context, topic string, payload []byte) ([]byte, error)

	// Reply answers a message received through Request.
	Reply(ctx context.Context, msg *Message, payload []byte) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message represents an event message.
type Message struct {
	ID        string            `json:"id"`
	Topic     string            `json:"topic"`
	ReplyTo   string            `json:"replyTo,omitempty"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe stops receiving messages.
	Unsubscribe() error

	// Topic returns the subscribed topic.
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel" or "nats"
	Type string

	// Channel settings
	ChannelBufferSize int

	// NATS settings
	NATSUrl           string
	NATSToken         string
	NATSMaxReconnects int
	NATSReconnectWait int // seconds
}

// Standard topic names.
const (
	TopicAssessmentRequested = "tamweel.assessment.requested"
	TopicAssessmentCompleted = "tamweel.assessment.completed"
	TopicAssessmentEscalated = "tamweel.assessment.escalated"
	TopicRulesReloaded       = "tamweel.rules.reloaded"
)

// Rule change actions carried by RulesChangedEvent.
const (
	RulesSaved    = "saved"
	RulesDeleted  = "deleted"
	RulesReloaded = "reloaded"
)

// RulesChangedEvent is published on TopicRulesReloaded after a replica
// changes the stored screening rules. Other replicas reload from storage.
type RulesChangedEvent struct {
	Origin string `json:"origin"`
	Action string `json:"action"`
	RuleID string `json:"ruleId,omitempty"`
	Count  int    `json:"count"`
}
