package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errspkg "github.com/drblury/opflow/internal/runtime/errors"
	"github.com/drblury/opflow/transport"
)

type groupConfig string

func (g groupConfig) GetPubSubSystem() string       { return TransportName }
func (g groupConfig) GetConsumerGroup() string      { return string(g) }
func (g groupConfig) GetKafkaBrokers() []string     { return nil }
func (g groupConfig) GetKafkaClientID() string      { return "" }
func (g groupConfig) GetRabbitMQURL() string        { return "" }
func (g groupConfig) GetNATSURL() string            { return "" }
func (g groupConfig) GetAWSRegion() string          { return "" }
func (g groupConfig) GetAWSAccountID() string       { return "" }
func (g groupConfig) GetAWSAccessKeyID() string     { return "" }
func (g groupConfig) GetAWSSecretAccessKey() string { return "" }
func (g groupConfig) GetAWSEndpoint() string        { return "" }

func fetch(t *testing.T, c *Consumer) *transport.Delivery {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	d, err := c.Fetch(ctx)
	require.NoError(t, err)
	return d
}

func subscribed(t *testing.T, b *Broker, group string, topics ...string) *Consumer {
	t.Helper()
	c := NewConsumer(b, group)
	require.NoError(t, c.Subscribe(context.Background(), topics))
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestBrokerPublishRoundRobin(t *testing.T) {
	b := NewBroker(2)
	ctx := context.Background()

	for _, p := range []string{"a", "b", "c"} {
		_, err := b.Publish(ctx, "MINUS", []byte(p), map[string]string{"k": p})
		require.NoError(t, err)
	}

	recs := b.Records("MINUS")
	require.Len(t, recs, 3)
	assert.Equal(t, Record{Topic: "MINUS", Partition: 0, Offset: 0, Payload: []byte("a"), Metadata: map[string]string{"k": "a"}}, recs[0])
	assert.Equal(t, int32(0), recs[1].Partition)
	assert.Equal(t, int64(1), recs[1].Offset)
	assert.Equal(t, "c", string(recs[1].Payload))
	assert.Equal(t, int32(1), recs[2].Partition)
}

func TestBrokerInjectedFailures(t *testing.T) {
	b := NewBroker(1)
	ctx := context.Background()
	b.FailNextPublishes("OUT", 2)

	for range 2 {
		_, err := b.Publish(ctx, "OUT", []byte("x"), nil)
		assert.ErrorIs(t, err, ErrInjectedPublishFailure)
	}
	_, err := b.Publish(ctx, "OUT", []byte("x"), nil)
	require.NoError(t, err)

	b.FailPublishIf(func(channel string, payload []byte) error {
		if string(payload) == "poison" {
			return ErrInjectedPublishFailure
		}
		return nil
	})
	_, err = b.Publish(ctx, "OUT", []byte("poison"), nil)
	assert.ErrorIs(t, err, ErrInjectedPublishFailure)
	assert.Len(t, b.Records("OUT"), 1)
}

func TestBrokerPublishToRange(t *testing.T) {
	b := NewBroker(2)
	_, err := b.PublishTo("MINUS", 2, nil, nil)
	assert.Error(t, err)
	assert.Equal(t, int32(DefaultPartitions), NewBroker(0).Partitions())
}

func TestConsumerCommitAdvancesGroupOffset(t *testing.T) {
	b := NewBroker(1)
	c := subscribed(t, b, "calc", "MINUS")
	_, _ = b.PublishTo("MINUS", 0, []byte("a"), nil)
	_, _ = b.PublishTo("MINUS", 0, []byte("b"), nil)

	d := fetch(t, c)
	assert.Equal(t, "a", string(d.Payload))
	require.NoError(t, c.Commit(context.Background(), d))

	assert.Equal(t, int64(1), b.Committed("calc", "MINUS", 0))
	assert.Equal(t, int64(1), b.Lag("calc", "MINUS"))
}

func TestConsumerDropIsSkippedByLaterCommit(t *testing.T) {
	b := NewBroker(1)
	c := subscribed(t, b, "calc", "MINUS")
	_, _ = b.PublishTo("MINUS", 0, []byte("bad"), nil)
	_, _ = b.PublishTo("MINUS", 0, []byte("good"), nil)

	require.NoError(t, c.Release(fetch(t, c), transport.DispositionDrop))
	assert.Equal(t, int64(0), b.Committed("calc", "MINUS", 0))

	require.NoError(t, c.Commit(context.Background(), fetch(t, c)))
	assert.Equal(t, int64(2), b.Committed("calc", "MINUS", 0))

	b.Rebalance("calc")
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Fetch(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConsumerRedeliverAfterRebalance(t *testing.T) {
	b := NewBroker(1)
	c := subscribed(t, b, "calc", "MINUS")
	_, _ = b.PublishTo("MINUS", 0, []byte("unpublished"), nil)
	_, _ = b.PublishTo("MINUS", 0, []byte("later"), nil)

	first := fetch(t, c)
	require.NoError(t, c.Release(first, transport.DispositionRedeliver))
	require.NoError(t, c.Commit(context.Background(), fetch(t, c)))
	assert.Equal(t, int64(0), b.Committed("calc", "MINUS", 0))

	b.Rebalance("calc")
	again := fetch(t, c)
	assert.Equal(t, "unpublished", string(again.Payload))
	assert.Equal(t, first.Offset, again.Offset)

	assert.ErrorIs(t, c.Commit(context.Background(), first), ErrStaleDelivery)
	require.NoError(t, c.Commit(context.Background(), again))
	assert.Equal(t, int64(1), b.Committed("calc", "MINUS", 0))
}

func TestConsumerGroupSplitsPartitions(t *testing.T) {
	b := NewBroker(4)
	c1 := subscribed(t, b, "calc", "MINUS")
	c2 := subscribed(t, b, "calc", "MINUS")
	for p := int32(0); p < 4; p++ {
		_, _ = b.PublishTo("MINUS", p, []byte{byte(p)}, nil)
	}

	seen := map[int32]*Consumer{}
	for _, c := range []*Consumer{c1, c2, c1, c2} {
		d := fetch(t, c)
		seen[d.Partition] = c
	}
	assert.Len(t, seen, 4)
	assert.Equal(t, seen[0], seen[2])
	assert.Equal(t, seen[1], seen[3])
	assert.NotEqual(t, seen[0], seen[1])
}

func TestSeparateGroupsEachSeeEverything(t *testing.T) {
	b := NewBroker(1)
	c1 := subscribed(t, b, "one", "MINUS")
	c2 := subscribed(t, b, "two", "MINUS")
	_, _ = b.PublishTo("MINUS", 0, []byte("x"), nil)

	assert.Equal(t, "x", string(fetch(t, c1).Payload))
	assert.Equal(t, "x", string(fetch(t, c2).Payload))
}

func TestFetchWakesOnPublish(t *testing.T) {
	b := NewBroker(1)
	c := subscribed(t, b, "calc", "MINUS")

	go func() {
		time.Sleep(20 * time.Millisecond)
		_, _ = b.Publish(context.Background(), "MINUS", []byte("late"), nil)
	}()
	assert.Equal(t, "late", string(fetch(t, c).Payload))
}

func TestConsumerLifecycle(t *testing.T) {
	b := NewBroker(1)
	c := NewConsumer(b, "calc")

	_, err := c.Fetch(context.Background())
	assert.ErrorIs(t, err, errspkg.ErrNotSubscribed)
	assert.ErrorIs(t, c.Subscribe(context.Background(), nil), errspkg.ErrInputChannelsRequired)
	assert.ErrorIs(t, NewConsumer(b, "").Subscribe(context.Background(), []string{"MINUS"}), errspkg.ErrConsumerGroupRequired)

	other := subscribed(t, b, "calc", "MINUS")
	_, _ = b.PublishTo("MINUS", 0, []byte("x"), nil)
	d := fetch(t, other)
	assert.ErrorIs(t, c.Commit(context.Background(), d), errspkg.ErrForeignDelivery)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	_, err = c.Fetch(context.Background())
	assert.ErrorIs(t, err, errspkg.ErrConsumerClosed)
}

func TestProducer(t *testing.T) {
	b := NewBroker(1)
	p := NewProducer(b)
	require.NoError(t, p.Publish(context.Background(), "OUT", []byte("r"), map[string]string{"request_id": "1"}))
	assert.Equal(t, "1", b.Records("OUT")[0].Metadata["request_id"])

	require.NoError(t, p.Close())
	assert.ErrorIs(t, p.Publish(context.Background(), "OUT", nil, nil), errspkg.ErrProducerRequired)
}

func TestBuildOn(t *testing.T) {
	b := NewBroker(1)
	tr, err := BuildOn(b)(context.Background(), groupConfig("calc"), nil)
	require.NoError(t, err)
	assert.IsType(t, &Consumer{}, tr.Consumer)
	assert.IsType(t, &Producer{}, tr.Producer)
	provider, ok := tr.Consumer.(transport.CapabilitiesProvider)
	require.True(t, ok)
	assert.Equal(t, transport.MemoryCapabilities, provider.Capabilities())

	_, err = BuildOn(b)(context.Background(), groupConfig(""), nil)
	assert.ErrorIs(t, err, errspkg.ErrConsumerGroupRequired)

	assert.True(t, transport.DefaultRegistry.Has(TransportName))
	assert.Equal(t, transport.MemoryCapabilities, Capabilities())
}
