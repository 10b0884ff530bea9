package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"

	errspkg "github.com/drblury/opflow/internal/runtime/errors"
	idspkg "github.com/drblury/opflow/internal/runtime/ids"
	metadatapkg "github.com/drblury/opflow/internal/runtime/metadata"
)

// ErrRedeliveryUnsupported is returned by Release when the broker has no way
// to hand a delivery back; the delivery is acknowledged instead.
var ErrRedeliveryUnsupported = errors.New("transport: broker cannot redeliver; delivery acknowledged")

// WatermillProducer publishes through any Watermill publisher. Watermill
// publishers return after the broker has accepted the message.
type WatermillProducer struct {
	pub message.Publisher
}

// NewWatermillProducer wraps pub.
func NewWatermillProducer(pub message.Publisher) *WatermillProducer {
	return &WatermillProducer{pub: pub}
}

func (p *WatermillProducer) Publish(ctx context.Context, channel string, payload []byte, metadata map[string]string) error {
	if p == nil || p.pub == nil {
		return errspkg.ErrProducerRequired
	}
	msg := message.NewMessage(idspkg.CreateULID(), payload)
	metadatapkg.ToWatermill(metadata, msg)
	msg.SetContext(ctx)
	return p.pub.Publish(channel, msg)
}

func (p *WatermillProducer) Close() error {
	if p == nil || p.pub == nil {
		return nil
	}
	return p.pub.Close()
}

type inbound struct {
	channel string
	msg     *message.Message
}

// WatermillConsumer adapts a Watermill subscriber, which acknowledges per
// message, to the Consumer contract. Queue brokers cannot skip a message
// without acknowledging it, so DispositionDrop acks; DispositionRedeliver
// nacks when the broker supports it.
type WatermillConsumer struct {
	sub  message.Subscriber
	caps Capabilities

	inbox  chan inbound
	errs   chan error
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	subscribed bool
	closed     bool
}

// Capabilities reports the capabilities the consumer was built with.
func (c *WatermillConsumer) Capabilities() Capabilities { return c.caps }

// NewWatermillConsumer wraps sub. caps decides how Release behaves.
func NewWatermillConsumer(sub message.Subscriber, caps Capabilities) *WatermillConsumer {
	return &WatermillConsumer{
		sub:   sub,
		caps:  caps,
		inbox: make(chan inbound),
		errs:  make(chan error, 1),
	}
}

func (c *WatermillConsumer) Subscribe(ctx context.Context, channels []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errspkg.ErrConsumerClosed
	}
	if c.sub == nil {
		return errspkg.ErrConsumerRequired
	}

	// Subscriptions live until Close, not until the caller's context ends,
	// so an in-flight delivery can still be acked during shutdown.
	subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel
	for _, channel := range channels {
		msgs, err := c.sub.Subscribe(subCtx, channel)
		if err != nil {
			cancel()
			return fmt.Errorf("subscribe %s: %w", channel, err)
		}
		c.wg.Add(1)
		go c.forward(subCtx, channel, msgs)
	}
	c.subscribed = true
	return nil
}

func (c *WatermillConsumer) forward(ctx context.Context, channel string, msgs <-chan *message.Message) {
	defer c.wg.Done()
	for msg := range msgs {
		select {
		case c.inbox <- inbound{channel: channel, msg: msg}:
		case <-ctx.Done():
			msg.Nack()
			return
		}
	}
	if ctx.Err() != nil {
		return
	}
	select {
	case c.errs <- fmt.Errorf("subscription to %s ended unexpectedly", channel):
	default:
	}
}

func (c *WatermillConsumer) Fetch(ctx context.Context) (*Delivery, error) {
	c.mu.Lock()
	subscribed, closed := c.subscribed, c.closed
	c.mu.Unlock()
	if closed {
		return nil, errspkg.ErrConsumerClosed
	}
	if !subscribed {
		return nil, errspkg.ErrNotSubscribed
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case err := <-c.errs:
		return nil, err
	case in := <-c.inbox:
		return &Delivery{
			Channel:   in.channel,
			Partition: -1,
			Offset:    -1,
			Payload:   in.msg.Payload,
			Metadata:  metadatapkg.FromWatermill(in.msg.Metadata),
			Token:     in.msg,
		}, nil
	}
}

func (c *WatermillConsumer) Commit(_ context.Context, d *Delivery) error {
	msg, err := watermillMessage(d)
	if err != nil {
		return err
	}
	msg.Ack()
	return nil
}

func (c *WatermillConsumer) Release(d *Delivery, disposition Disposition) error {
	msg, err := watermillMessage(d)
	if err != nil {
		return err
	}
	switch disposition {
	case DispositionRedeliver:
		if c.caps.SupportsNack {
			msg.Nack()
			return nil
		}
		msg.Ack()
		return ErrRedeliveryUnsupported
	default:
		msg.Ack()
		return nil
	}
}

func (c *WatermillConsumer) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	var err error
	if c.sub != nil {
		err = c.sub.Close()
	}
	c.wg.Wait()
	return err
}

func watermillMessage(d *Delivery) (*message.Message, error) {
	if d == nil {
		return nil, errspkg.ErrForeignDelivery
	}
	msg, ok := d.Token.(*message.Message)
	if !ok || msg == nil {
		return nil, errspkg.ErrForeignDelivery
	}
	return msg, nil
}
