package domain

import (
	"context"
)

// EventBus defines the interface for event-driven communication.
// Supports Go channels (Community) or NATS (Pro).
// Subjects are namespaced by network.
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, network string, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, network string, topic string, handler MessageHandler) (Subscription, error)

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
	Network   string            `json:"network"`
	Topic     string            `json:"topic"`
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
	Type string `json:"type" mapstructure:"type"`

	// Channel settings (Community tier)
	ChannelBufferSize int `json:"channelBufferSize" mapstructure:"channel_buffer_size"`

	// NATS settings (Pro tier)
	NATSUrl           string `json:"natsUrl" mapstructure:"nats_url"`
	NATSToken         string `json:"-" mapstructure:"nats_token"`
	NATSMaxReconnects int    `json:"natsMaxReconnects" mapstructure:"nats_max_reconnects"`
	NATSReconnectWait int    `json:"natsReconnectWait" mapstructure:"nats_reconnect_wait"` // seconds
}

// AllNetworks subscribes to a topic across every network.
const AllNetworks = "*"

// Standard topic names for the scoring pipeline.
const (
	TopicSnapshotIngested = "snapshot.ingested"
	TopicScoreComputed    = "score.computed"
	TopicScoreFailed      = "score.failed"
)

// ScoreRequest is the payload of TopicSnapshotIngested.
type ScoreRequest struct {
	Snapshot      NetworkSnapshot `json:"snapshot"`
	PolicyID      string          `json:"policyId"`
	PolicyVersion string          `json:"policyVersion,omitempty"`
	Filter        string          `json:"filter,omitempty"`
	Engine        *EngineConfig   `json:"engine,omitempty"`
}

// ScoreFailure is the payload of TopicScoreFailed.
type ScoreFailure struct {
	Network       string   `json:"network"`
	PolicyID      string   `json:"policyId"`
	Fingerprint   string   `json:"fingerprint"`
	Kind          string   `json:"kind"`
	FailedModules []string `json:"failedModules,omitempty"`
	Error         string   `json:"error"`
}
