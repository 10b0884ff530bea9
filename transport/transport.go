// Package transport defines what the processing pipeline needs from a broker:
// a consumer that yields deliveries and commits them on request, and a
// producer that publishes and waits for the broker to accept. Each broker
// implementation lives in its own sub-package and registers itself with the
// transport registry.
package transport

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
)

// Disposition tells a Consumer what happened to a delivery that is not going
// to be committed.
type Disposition int

const (
	// DispositionDrop marks a delivery that can never succeed (unknown channel,
	// undecodable payload). It is not committed, and it is not held either: a
	// later commit on the same partition moves past it.
	DispositionDrop Disposition = iota + 1

	// DispositionRedeliver marks a delivery whose result could not be
	// published. It stays uncommitted and the consumer keeps the partition's
	// commit position at or before it, so a restart or rebalance redelivers it.
	DispositionRedeliver
)

func (d Disposition) String() string {
	switch d {
	case DispositionDrop:
		return "drop"
	case DispositionRedeliver:
		return "redeliver"
	default:
		return "unknown"
	}
}

// Delivery is one inbound message.
type Delivery struct {
	Channel   string
	Partition int32
	Offset    int64
	Payload   []byte
	Metadata  map[string]string

	// Token is owned by the Consumer that returned the delivery.
	Token any
}

// Consumer pulls deliveries for a fixed set of channels. A Consumer is used
// by exactly one worker goroutine.
type Consumer interface {
	// Subscribe joins the consumer group for channels. Failure is fatal.
	Subscribe(ctx context.Context, channels []string) error

	// Fetch blocks until the next delivery, a fatal consumer error, or ctx
	// cancellation. There is no internal timeout.
	Fetch(ctx context.Context) (*Delivery, error)

	// Commit acknowledges d after its result has been published.
	Commit(ctx context.Context, d *Delivery) error

	// Release gives d back without committing it.
	Release(d *Delivery, disposition Disposition) error

	Close() error
}

// Producer publishes result payloads.
type Producer interface {
	// Publish returns once the broker has accepted the payload, or with the
	// reason it did not.
	Publish(ctx context.Context, channel string, payload []byte, metadata map[string]string) error

	Close() error
}

// Transport is the consumer/producer pair owned by one worker.
type Transport struct {
	Consumer Consumer
	Producer Producer
}

// Close releases both halves and reports the first error.
func (t Transport) Close() error {
	var firstErr error
	if t.Consumer != nil {
		firstErr = t.Consumer.Close()
	}
	if t.Producer != nil {
		if err := t.Producer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Builder creates a transport from config. The pool calls it once per worker,
// so every call must return independent broker handles.
type Builder func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error)

// Config provides the configuration values needed by transports, so
// transports do not depend on the full config package.
type Config interface {
	GetPubSubSystem() string
	GetConsumerGroup() string

	// Kafka
	GetKafkaBrokers() []string
	GetKafkaClientID() string

	// RabbitMQ
	GetRabbitMQURL() string

	// NATS
	GetNATSURL() string

	// AWS
	GetAWSRegion() string
	GetAWSAccountID() string
	GetAWSAccessKeyID() string
	GetAWSSecretAccessKey() string
	GetAWSEndpoint() string
}

// CapabilitiesProvider is implemented by consumers that can report their capabilities.
type CapabilitiesProvider interface {
	Capabilities() Capabilities
}
