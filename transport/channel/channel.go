// Package channel provides an in-process transport over Watermill's
// GoChannel. Every consumer receives every message, so it suits a single
// worker; use the memory transport for consumer-group semantics.
package channel

import (
	"context"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/drblury/opflow/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "channel"

// Factory allows overriding the channel creation for testing.
var Factory = func(cfg gochannel.Config, logger watermill.LoggerAdapter) *gochannel.GoChannel {
	return gochannel.NewGoChannel(cfg, logger)
}

var (
	sharedOnce sync.Once
	shared     *gochannel.GoChannel
)

// sharedPubSub keeps workers from closing the process-wide GoChannel;
// their subscriptions end when the consumer cancels them.
type sharedPubSub struct {
	*gochannel.GoChannel
}

func (sharedPubSub) Close() error { return nil }

func init() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.ChannelCapabilities)
}

// Build returns a pair on the process-wide GoChannel, created on first use.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	return New(Shared(logger)), nil
}

// Shared returns the process-wide GoChannel.
func Shared(logger watermill.LoggerAdapter) *gochannel.GoChannel {
	sharedOnce.Do(func() {
		shared = Factory(gochannel.Config{}, logger)
	})
	return shared
}

// New wraps pubSub without taking ownership of it.
func New(pubSub *gochannel.GoChannel) transport.Transport {
	ps := sharedPubSub{pubSub}
	return transport.Transport{
		Consumer: transport.NewWatermillConsumer(ps, transport.ChannelCapabilities),
		Producer: transport.NewWatermillProducer(ps),
	}
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.ChannelCapabilities
}
