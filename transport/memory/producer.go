package memory

import (
	"context"
	"sync/atomic"

	errspkg "github.com/drblury/opflow/internal/runtime/errors"
)

// Producer appends to a Broker. The append is the acknowledgement.
type Producer struct {
	broker *Broker
	closed atomic.Bool
}

// NewProducer creates a producer for broker.
func NewProducer(broker *Broker) *Producer {
	return &Producer{broker: broker}
}

func (p *Producer) Publish(ctx context.Context, channel string, payload []byte, metadata map[string]string) error {
	if p == nil || p.broker == nil || p.closed.Load() {
		return errspkg.ErrProducerRequired
	}
	_, err := p.broker.Publish(ctx, channel, payload, metadata)
	return err
}

func (p *Producer) Close() error {
	if p != nil {
		p.closed.Store(true)
	}
	return nil
}
