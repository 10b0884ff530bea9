package transport

// Capabilities describes what a broker backend can do for the pipeline.
type Capabilities struct {
	// Name is the registry name of the transport.
	Name string

	// SupportsOffsetCommit is true when a delivery can be left uncommitted
	// without the broker redelivering it in-process. Offset-based brokers can;
	// queue brokers must ack a dropped delivery to get rid of it.
	SupportsOffsetCommit bool

	// SupportsConsumerGroups is true when several consumers sharing a group
	// identity split the traffic instead of each receiving every message.
	SupportsConsumerGroups bool

	// SupportsOrdering indicates messages within a partition/stream arrive in order.
	SupportsOrdering bool

	// SupportsNack indicates the broker can redeliver on negative acknowledgment.
	SupportsNack bool

	// MaxMessageSize is the maximum payload size in bytes (0 = unlimited/unknown).
	MaxMessageSize int64
}

// DropLeavesUncommitted reports whether DispositionDrop can be honoured
// without acknowledging the delivery.
func (c Capabilities) DropLeavesUncommitted() bool {
	return c.SupportsOffsetCommit
}

// Predefined capability sets for the bundled transports.
var (
	KafkaCapabilities = Capabilities{
		Name:                   "kafka",
		SupportsOffsetCommit:   true,
		SupportsConsumerGroups: true,
		SupportsOrdering:       true,
		SupportsNack:           false,
		MaxMessageSize:         1048576, // Default 1MB
	}

	MemoryCapabilities = Capabilities{
		Name:                   "memory",
		SupportsOffsetCommit:   true,
		SupportsConsumerGroups: true,
		SupportsOrdering:       true,
		SupportsNack:           false,
	}

	// GoChannel would resend a nacked message to the same subscriber
	// immediately, which turns a publish failure into a hot loop.
	ChannelCapabilities = Capabilities{
		Name:                   "channel",
		SupportsOffsetCommit:   false,
		SupportsConsumerGroups: false,
		SupportsOrdering:       true,
		SupportsNack:           false,
	}

	RabbitMQCapabilities = Capabilities{
		Name:                   "rabbitmq",
		SupportsOffsetCommit:   false,
		SupportsConsumerGroups: true,
		SupportsOrdering:       true,
		SupportsNack:           true,
	}

	NATSCapabilities = Capabilities{
		Name:                   "nats",
		SupportsOffsetCommit:   false,
		SupportsConsumerGroups: true,
		SupportsOrdering:       false,
		SupportsNack:           false,
		MaxMessageSize:         1048576, // Default 1MB
	}

	AWSCapabilities = Capabilities{
		Name:                   "aws",
		SupportsOffsetCommit:   false,
		SupportsConsumerGroups: true,
		SupportsOrdering:       false,
		SupportsNack:           true,
		MaxMessageSize:         262144, // 256KB
	}
)
