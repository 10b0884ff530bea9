// Package kafka provides the Kafka transport. Deliveries come from a sarama
// consumer group with auto-commit disabled so the pipeline decides what gets
// committed; results go out through the Watermill Kafka sync publisher.
package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"

	errspkg "github.com/drblury/opflow/internal/runtime/errors"
	"github.com/drblury/opflow/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "kafka"

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(cfg kafka.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return kafka.NewPublisher(cfg, logger)
}

// ConsumerGroupFactory allows overriding the consumer group creation for testing.
var ConsumerGroupFactory = func(brokers []string, group string, cfg *sarama.Config) (sarama.ConsumerGroup, error) {
	return sarama.NewConsumerGroup(brokers, group, cfg)
}

func init() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.KafkaCapabilities)
}

// Build creates a consumer group member and a publisher. Every call opens
// its own broker connections.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	brokers := cfg.GetKafkaBrokers()
	if len(brokers) == 0 {
		return transport.Transport{}, errspkg.ErrBrokersRequired
	}
	group := cfg.GetConsumerGroup()
	if group == "" {
		return transport.Transport{}, errspkg.ErrConsumerGroupRequired
	}
	clientID := cfg.GetKafkaClientID()

	consumerGroup, err := ConsumerGroupFactory(brokers, group, NewConsumerConfig(clientID))
	if err != nil {
		return transport.Transport{}, fmt.Errorf("create consumer group: %w", err)
	}

	publisher, err := PublisherFactory(
		kafka.PublisherConfig{
			Brokers:               brokers,
			Marshaler:             kafka.DefaultMarshaler{},
			OverwriteSaramaConfig: NewPublisherConfig(clientID),
		},
		logger,
	)
	if err != nil {
		_ = consumerGroup.Close()
		return transport.Transport{}, fmt.Errorf("create publisher: %w", err)
	}

	return transport.Transport{
		Consumer: NewConsumer(consumerGroup, logger),
		Producer: transport.NewWatermillProducer(publisher),
	}, nil
}

// NewConsumerConfig returns the sarama settings the consumer relies on:
// offsets are only committed explicitly, and a group without committed
// offsets starts from the oldest message.
func NewConsumerConfig(clientID string) *sarama.Config {
	cfg := sarama.NewConfig()
	if clientID != "" {
		cfg.ClientID = clientID
	}
	cfg.Consumer.Offsets.AutoCommit.Enable = false
	cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	cfg.Consumer.Return.Errors = true
	cfg.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRange()}
	return cfg
}

// NewPublisherConfig returns a sync producer config that waits for all
// in-sync replicas.
func NewPublisherConfig(clientID string) *sarama.Config {
	cfg := kafka.DefaultSaramaSyncPublisherConfig()
	if clientID != "" {
		cfg.ClientID = clientID
	}
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	return cfg
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.KafkaCapabilities
}

func isClosedGroup(err error) bool {
	return errors.Is(err, sarama.ErrClosedConsumerGroup)
}
