package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill"

	errspkg "github.com/drblury/opflow/internal/runtime/errors"
	"github.com/drblury/opflow/transport"
)

// ErrStaleDelivery is returned by Commit when the partition was reassigned
// after the delivery was fetched. The new owner will see the message again.
var ErrStaleDelivery = errors.New("kafka: partition reassigned since delivery was fetched")

type topicPartition struct {
	topic     string
	partition int32
}

type claimed struct {
	msg        *sarama.ConsumerMessage
	generation int
}

// Consumer is one member of a consumer group. It implements
// sarama.ConsumerGroupHandler for its own group.
type Consumer struct {
	group  sarama.ConsumerGroup
	logger watermill.LoggerAdapter

	deliveries chan claimed
	errs       chan error
	cancel     context.CancelFunc
	wg         sync.WaitGroup

	mu         sync.Mutex
	session    sarama.ConsumerGroupSession
	generation int
	// held pins a partition's commit position below the offset of a
	// delivery released for redelivery, until the next rebalance.
	held       map[topicPartition]int64
	subscribed bool
	closed     bool
}

// NewConsumer wraps an unstarted consumer group.
func NewConsumer(group sarama.ConsumerGroup, logger watermill.LoggerAdapter) *Consumer {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	return &Consumer{
		group:      group,
		logger:     logger,
		deliveries: make(chan claimed),
		errs:       make(chan error, 1),
		held:       make(map[topicPartition]int64),
	}
}

// Capabilities implements transport.CapabilitiesProvider.
func (c *Consumer) Capabilities() transport.Capabilities { return transport.KafkaCapabilities }

func (c *Consumer) Subscribe(ctx context.Context, channels []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errspkg.ErrConsumerClosed
	}
	if c.group == nil {
		return errspkg.ErrConsumerRequired
	}
	if len(channels) == 0 {
		return errspkg.ErrInputChannelsRequired
	}
	if c.subscribed {
		return fmt.Errorf("kafka: already subscribed")
	}

	// The group session outlives the caller's context so that an in-flight
	// delivery can still be committed while the worker shuts down.
	consumeCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel
	topics := append([]string(nil), channels...)

	c.wg.Add(2)
	go c.consume(consumeCtx, topics)
	go c.drainErrors()
	c.subscribed = true
	return nil
}

// consume rejoins the group after every rebalance until the context ends.
func (c *Consumer) consume(ctx context.Context, topics []string) {
	defer c.wg.Done()
	for {
		if err := c.group.Consume(ctx, topics, c); err != nil {
			if isClosedGroup(err) || ctx.Err() != nil {
				return
			}
			c.fail(fmt.Errorf("kafka consume: %w", err))
			return
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// drainErrors logs what the group reports asynchronously. With auto-commit
// off, a failed offset commit only ever shows up here.
func (c *Consumer) drainErrors() {
	defer c.wg.Done()
	for err := range c.group.Errors() {
		fields := watermill.LogFields{"failure_kind": "commit"}
		var cerr *sarama.ConsumerError
		if errors.As(err, &cerr) {
			fields["topic"] = cerr.Topic
			fields["partition"] = cerr.Partition
		}
		c.logger.Error("Kafka consumer group error", err, fields)
	}
}

func (c *Consumer) fail(err error) {
	select {
	case c.errs <- err:
	default:
	}
}

// Setup starts a new group generation and forgets every redelivery hold:
// the uncommitted offsets are what the new assignment starts from.
func (c *Consumer) Setup(sess sarama.ConsumerGroupSession) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = sess
	c.generation++
	clear(c.held)
	c.logger.Debug("Kafka partitions assigned", watermill.LogFields{
		"member_id":  sess.MemberID(),
		"generation": sess.GenerationID(),
		"claims":     fmt.Sprint(sess.Claims()),
	})
	return nil
}

func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = nil
	clear(c.held)
	return nil
}

func (c *Consumer) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	c.mu.Lock()
	generation := c.generation
	c.mu.Unlock()

	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			select {
			case c.deliveries <- claimed{msg: msg, generation: generation}:
			case <-sess.Context().Done():
				return nil
			}
		case <-sess.Context().Done():
			return nil
		}
	}
}

func (c *Consumer) Fetch(ctx context.Context) (*transport.Delivery, error) {
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
	case cl := <-c.deliveries:
		md := make(map[string]string, len(cl.msg.Headers))
		for _, h := range cl.msg.Headers {
			if h == nil {
				continue
			}
			md[string(h.Key)] = string(h.Value)
		}
		return &transport.Delivery{
			Channel:   cl.msg.Topic,
			Partition: cl.msg.Partition,
			Offset:    cl.msg.Offset,
			Payload:   cl.msg.Value,
			Metadata:  md,
			Token:     cl,
		}, nil
	}
}

// Commit marks d and commits the group's offsets. A partition held for
// redelivery does not advance; d will be seen again after the next
// rebalance. A nil error means the offset was handed to the session: sarama
// reports a broker-side commit failure on the group's error channel, where it
// is logged with failure_kind=commit.
func (c *Consumer) Commit(_ context.Context, d *transport.Delivery) error {
	cl, err := claimedOf(d)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil || cl.generation != c.generation {
		return ErrStaleDelivery
	}
	tp := topicPartition{topic: cl.msg.Topic, partition: cl.msg.Partition}
	if held, ok := c.held[tp]; ok {
		c.logger.Debug("Commit suppressed by redelivery hold", watermill.LogFields{
			"topic":       tp.topic,
			"partition":   tp.partition,
			"offset":      cl.msg.Offset,
			"held_offset": held,
		})
		return nil
	}
	c.session.MarkMessage(cl.msg, "")
	c.session.Commit()
	return nil
}

// Release leaves d uncommitted. DispositionDrop does nothing more, so the
// next commit on the partition moves past d. DispositionRedeliver pins the
// partition at d's offset.
func (c *Consumer) Release(d *transport.Delivery, disposition transport.Disposition) error {
	cl, err := claimedOf(d)
	if err != nil {
		return err
	}
	if disposition != transport.DispositionRedeliver {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if cl.generation != c.generation {
		return nil
	}
	tp := topicPartition{topic: cl.msg.Topic, partition: cl.msg.Partition}
	if held, ok := c.held[tp]; !ok || cl.msg.Offset < held {
		c.held[tp] = cl.msg.Offset
	}
	return nil
}

func (c *Consumer) Close() error {
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
	if c.group != nil {
		err = c.group.Close()
	}
	c.wg.Wait()
	return err
}

func claimedOf(d *transport.Delivery) (claimed, error) {
	if d == nil {
		return claimed{}, errspkg.ErrForeignDelivery
	}
	cl, ok := d.Token.(claimed)
	if !ok || cl.msg == nil {
		return claimed{}, errspkg.ErrForeignDelivery
	}
	return cl, nil
}
