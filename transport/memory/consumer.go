package memory

import (
	"context"
	"errors"
	"maps"
	"sync"

	errspkg "github.com/drblury/opflow/internal/runtime/errors"
	"github.com/drblury/opflow/transport"
)

// ErrStaleDelivery is returned by Commit when the group rebalanced after the
// delivery was fetched.
var ErrStaleDelivery = errors.New("memory: group rebalanced since delivery was fetched")

type token struct {
	consumer   *Consumer
	generation int
	key        partitionKey
	offset     int64
}

// Consumer is one member of a consumer group on a Broker.
type Consumer struct {
	broker *Broker
	group  string
	topics []string

	mu         sync.Mutex
	generation int
	owned      []partitionKey
	position   map[partitionKey]int64
	held       map[partitionKey]int64
	cursor     int
	subscribed bool
	closed     bool
}

// NewConsumer creates a consumer in group. It joins the group on Subscribe.
func NewConsumer(broker *Broker, group string) *Consumer {
	return &Consumer{
		broker:     broker,
		group:      group,
		generation: -1,
		position:   make(map[partitionKey]int64),
		held:       make(map[partitionKey]int64),
	}
}

// Capabilities implements transport.CapabilitiesProvider.
func (c *Consumer) Capabilities() transport.Capabilities { return transport.MemoryCapabilities }

func (c *Consumer) Subscribe(_ context.Context, channels []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.closed:
		return errspkg.ErrConsumerClosed
	case c.broker == nil:
		return errspkg.ErrConsumerRequired
	case c.group == "":
		return errspkg.ErrConsumerGroupRequired
	case len(channels) == 0:
		return errspkg.ErrInputChannelsRequired
	case c.subscribed:
		return errors.New("memory: already subscribed")
	}
	c.topics = append([]string(nil), channels...)
	c.subscribed = true
	c.broker.join(c)
	return nil
}

// Fetch serves assigned partitions round robin and blocks until a record is
// available.
func (c *Consumer) Fetch(ctx context.Context) (*transport.Delivery, error) {
	for {
		d, wait, err := c.poll()
		if err != nil || d != nil {
			return d, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-wait:
		}
	}
}

func (c *Consumer) poll() (*transport.Delivery, <-chan struct{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, nil, errspkg.ErrConsumerClosed
	}
	if !c.subscribed {
		return nil, nil, errspkg.ErrNotSubscribed
	}

	b := c.broker
	b.mu.Lock()
	defer b.mu.Unlock()

	if g := b.groupLocked(c.group); g.generation != c.generation {
		c.generation = g.generation
		c.owned = b.assignmentLocked(c)
		clear(c.position)
		clear(c.held)
		for _, key := range c.owned {
			c.position[key] = b.committed[offsetKey{c.group, key}]
		}
		c.cursor = 0
	}

	for i := range c.owned {
		key := c.owned[(c.cursor+i)%len(c.owned)]
		part := b.logLocked(key.topic)[key.partition]
		pos := c.position[key]
		if pos >= int64(len(part)) {
			continue
		}
		c.position[key] = pos + 1
		c.cursor = (c.cursor + i + 1) % len(c.owned)

		rec := part[pos]
		return &transport.Delivery{
			Channel:   rec.Topic,
			Partition: rec.Partition,
			Offset:    rec.Offset,
			Payload:   rec.Payload,
			Metadata:  maps.Clone(rec.Metadata),
			Token:     token{consumer: c, generation: c.generation, key: key, offset: rec.Offset},
		}, nil, nil
	}
	return nil, b.changed, nil
}

// Commit advances the group's committed offset past d unless the partition
// is held for redelivery.
func (c *Consumer) Commit(_ context.Context, d *transport.Delivery) error {
	tok, err := c.tokenOf(d)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	b := c.broker
	b.mu.Lock()
	defer b.mu.Unlock()

	if tok.generation != b.groupLocked(c.group).generation {
		return ErrStaleDelivery
	}
	if _, ok := c.held[tok.key]; ok {
		return nil
	}
	k := offsetKey{c.group, tok.key}
	if tok.offset+1 > b.committed[k] {
		b.committed[k] = tok.offset + 1
	}
	return nil
}

// Release leaves d uncommitted. DispositionRedeliver also freezes the
// partition's committed offset until the next rebalance.
func (c *Consumer) Release(d *transport.Delivery, disposition transport.Disposition) error {
	tok, err := c.tokenOf(d)
	if err != nil {
		return err
	}
	if disposition != transport.DispositionRedeliver {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if tok.generation != c.generation {
		return nil
	}
	if held, ok := c.held[tok.key]; !ok || tok.offset < held {
		c.held[tok.key] = tok.offset
	}
	return nil
}

// Close leaves the group, which rebalances the remaining members.
func (c *Consumer) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	subscribed := c.subscribed
	c.mu.Unlock()

	if subscribed {
		c.broker.leave(c)
	}
	return nil
}

func (c *Consumer) tokenOf(d *transport.Delivery) (token, error) {
	if d == nil {
		return token{}, errspkg.ErrForeignDelivery
	}
	tok, ok := d.Token.(token)
	if !ok || tok.consumer != c {
		return token{}, errspkg.ErrForeignDelivery
	}
	return tok, nil
}
