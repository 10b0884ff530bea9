package channel

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/opflow/transport"
)

func TestCapabilities(t *testing.T) {
	caps := Capabilities()
	assert.Equal(t, transport.ChannelCapabilities, caps)
	assert.False(t, caps.DropLeavesUncommitted())
	assert.True(t, transport.DefaultRegistry.Has(TransportName))
}

func TestRoundTripThroughSharedGoChannel(t *testing.T) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	defer pubSub.Close()

	consumerSide := New(pubSub)
	producerSide := New(pubSub)

	require.NoError(t, consumerSide.Consumer.Subscribe(context.Background(), []string{"MINUS"}))
	require.NoError(t, producerSide.Producer.Publish(context.Background(), "MINUS", []byte(`{"id":1}`), map[string]string{"correlation_id": "c"}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	d, err := consumerSide.Consumer.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "MINUS", d.Channel)
	assert.Equal(t, "c", d.Metadata["correlation_id"])
	require.NoError(t, consumerSide.Consumer.Commit(ctx, d))

	// Closing one worker's pair leaves the shared GoChannel usable.
	require.NoError(t, consumerSide.Close())
	assert.NoError(t, producerSide.Producer.Publish(context.Background(), "MINUS", []byte("x"), nil))
	require.NoError(t, producerSide.Close())
}

func TestBuildUsesFactoryOnce(t *testing.T) {
	calls := 0
	original := Factory
	defer func() { Factory = original }()
	Factory = func(cfg gochannel.Config, logger watermill.LoggerAdapter) *gochannel.GoChannel {
		calls++
		return gochannel.NewGoChannel(cfg, logger)
	}

	a, err := Build(context.Background(), nil, watermill.NopLogger{})
	require.NoError(t, err)
	b, err := Build(context.Background(), nil, watermill.NopLogger{})
	require.NoError(t, err)

	assert.LessOrEqual(t, calls, 1)
	assert.Same(t, Shared(nil), Shared(nil))
	assert.NotSame(t, a.Consumer, b.Consumer)
}
