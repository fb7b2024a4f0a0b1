// Package bus carries pipeline events between the API and the scoring worker,
// over Go channels or NATS.
package bus

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/DecentralizedGeo/geobeat-sub000/internal/domain"
)

// New creates a new event bus based on configuration.
// For Community tier: returns ChannelBus.
// For Pro tier: returns NATSBus.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel":
		return NewChannelBus(cfg.ChannelBufferSize), nil
	case "nats":
		return NewNATSBus(cfg)
	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}

// checkNetwork rejects names that cannot form a single subject token.
// AllNetworks is accepted only when wildcard is true.
func checkNetwork(network string, wildcard bool) error {
	switch {
	case network == "":
		return fmt.Errorf("network is required")
	case network == domain.AllNetworks:
		if !wildcard {
			return fmt.Errorf("cannot publish to all networks")
		}
		return nil
	case strings.ContainsAny(network, ". *>\t\n"):
		return fmt.Errorf("invalid network name %q", network)
	}
	return nil
}

func newMessage(network, topic string, payload []byte) *domain.Message {
	return &domain.Message{
		ID:        uuid.New().String(),
		Network:   network,
		Topic:     topic,
		Payload:   payload,
		Metadata:  make(map[string]string),
		Timestamp: time.Now().UnixNano(),
	}
}
