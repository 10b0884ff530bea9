package memory

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"

	errspkg "github.com/drblury/opflow/internal/runtime/errors"
	"github.com/drblury/opflow/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "memory"

// Default is the process-wide broker used by the registered builder, so
// every worker of a pool shares one log.
var Default = NewBroker(DefaultPartitions)

func init() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.MemoryCapabilities)
}

// Build creates a consumer/producer pair on Default.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	return BuildOn(Default)(ctx, cfg, logger)
}

// BuildOn returns a builder bound to broker.
func BuildOn(broker *Broker) transport.Builder {
	return func(_ context.Context, cfg transport.Config, _ watermill.LoggerAdapter) (transport.Transport, error) {
		group := cfg.GetConsumerGroup()
		if group == "" {
			return transport.Transport{}, errspkg.ErrConsumerGroupRequired
		}
		return transport.Transport{
			Consumer: NewConsumer(broker, group),
			Producer: NewProducer(broker),
		}, nil
	}
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.MemoryCapabilities
}
