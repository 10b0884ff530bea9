// Package memory provides an in-process partitioned log with consumer
// groups and committed offsets. It behaves like an offset broker: a
// delivery stays uncommitted until the consumer commits it, and a group
// rebalance rewinds every member to its group's committed offsets.
package memory

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sort"
	"sync"
)

// DefaultPartitions is the partition count of a broker created with zero.
const DefaultPartitions = 4

// ErrInjectedPublishFailure is returned by publishes failed on purpose.
var ErrInjectedPublishFailure = errors.New("memory: injected publish failure")

// Record is one stored message.
type Record struct {
	Topic     string
	Partition int32
	Offset    int64
	Payload   []byte
	Metadata  map[string]string
}

type partitionKey struct {
	topic     string
	partition int32
}

type offsetKey struct {
	group string
	partitionKey
}

type groupState struct {
	generation int
	members    []*Consumer
}

// Broker is safe for concurrent use by any number of producers and
// consumers.
type Broker struct {
	partitions int32

	mu        sync.Mutex
	logs      map[string][][]Record
	next      map[string]int32
	committed map[offsetKey]int64
	groups    map[string]*groupState
	failures  map[string]int
	failIf    func(channel string, payload []byte) error
	changed   chan struct{}
}

// NewBroker creates an empty broker with the given number of partitions per
// topic.
func NewBroker(partitions int) *Broker {
	if partitions <= 0 {
		partitions = DefaultPartitions
	}
	return &Broker{
		partitions: int32(partitions),
		logs:       make(map[string][][]Record),
		next:       make(map[string]int32),
		committed:  make(map[offsetKey]int64),
		groups:     make(map[string]*groupState),
		failures:   make(map[string]int),
		changed:    make(chan struct{}),
	}
}

// Partitions returns the partition count per topic.
func (b *Broker) Partitions() int32 { return b.partitions }

// Publish appends payload to topic, spreading records over partitions round
// robin. It honours injected failures.
func (b *Broker) Publish(ctx context.Context, topic string, payload []byte, metadata map[string]string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if n := b.failures[topic]; n > 0 {
		b.failures[topic] = n - 1
		return Record{}, fmt.Errorf("publish to %s: %w", topic, ErrInjectedPublishFailure)
	}
	if b.failIf != nil {
		if err := b.failIf(topic, payload); err != nil {
			return Record{}, fmt.Errorf("publish to %s: %w", topic, err)
		}
	}

	p := b.next[topic]
	b.next[topic] = (p + 1) % b.partitions
	return b.appendLocked(topic, p, payload, metadata), nil
}

// PublishTo appends payload to a specific partition.
func (b *Broker) PublishTo(topic string, partition int32, payload []byte, metadata map[string]string) (Record, error) {
	if partition < 0 || partition >= b.partitions {
		return Record{}, fmt.Errorf("memory: partition %d out of range [0,%d)", partition, b.partitions)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.appendLocked(topic, partition, payload, metadata), nil
}

func (b *Broker) appendLocked(topic string, partition int32, payload []byte, metadata map[string]string) Record {
	log := b.logLocked(topic)
	rec := Record{
		Topic:     topic,
		Partition: partition,
		Offset:    int64(len(log[partition])),
		Payload:   append([]byte(nil), payload...),
		Metadata:  maps.Clone(metadata),
	}
	log[partition] = append(log[partition], rec)
	b.broadcastLocked()
	return rec
}

func (b *Broker) logLocked(topic string) [][]Record {
	log, ok := b.logs[topic]
	if !ok {
		log = make([][]Record, b.partitions)
		b.logs[topic] = log
	}
	return log
}

func (b *Broker) broadcastLocked() {
	close(b.changed)
	b.changed = make(chan struct{})
}

// FailNextPublishes makes the next n publishes to channel fail.
func (b *Broker) FailNextPublishes(channel string, n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[channel] = n
}

// FailPublishIf installs a predicate consulted on every publish; a non-nil
// result fails the publish. Pass nil to remove it.
func (b *Broker) FailPublishIf(fn func(channel string, payload []byte) error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failIf = fn
}

// Records returns every record of topic ordered by partition, then offset.
func (b *Broker) Records(topic string) []Record {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Record
	for _, part := range b.logs[topic] {
		out = append(out, part...)
	}
	return out
}

// Committed returns the group's next offset to read for a partition; zero
// when nothing has been committed.
func (b *Broker) Committed(group, topic string, partition int32) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.committed[offsetKey{group, partitionKey{topic, partition}}]
}

// Lag returns how many records of topic the group has not committed yet.
func (b *Broker) Lag(group, topic string) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	var lag int64
	for p, part := range b.logs[topic] {
		lag += int64(len(part)) - b.committed[offsetKey{group, partitionKey{topic, int32(p)}}]
	}
	return lag
}

// Rebalance starts a new generation for group. Members drop their
// uncommitted positions and resume from the committed offsets, which is
// what a restart of the whole group would do.
func (b *Broker) Rebalance(group string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rebalanceLocked(group)
}

func (b *Broker) rebalanceLocked(group string) {
	g := b.groupLocked(group)
	g.generation++
	b.broadcastLocked()
}

func (b *Broker) groupLocked(group string) *groupState {
	g, ok := b.groups[group]
	if !ok {
		g = &groupState{}
		b.groups[group] = g
	}
	return g
}

func (b *Broker) join(c *Consumer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	g := b.groupLocked(c.group)
	g.members = append(g.members, c)
	b.rebalanceLocked(c.group)
}

func (b *Broker) leave(c *Consumer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	g := b.groupLocked(c.group)
	for i, m := range g.members {
		if m == c {
			g.members = append(g.members[:i], g.members[i+1:]...)
			break
		}
	}
	b.rebalanceLocked(c.group)
}

// assignmentLocked returns the partitions of topics owned by c, spread
// across the group's members by index.
func (b *Broker) assignmentLocked(c *Consumer) []partitionKey {
	g := b.groupLocked(c.group)
	idx := -1
	for i, m := range g.members {
		if m == c {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}
	topics := append([]string(nil), c.topics...)
	sort.Strings(topics)

	var owned []partitionKey
	for _, topic := range topics {
		for p := int32(0); p < b.partitions; p++ {
			if int(p)%len(g.members) == idx {
				owned = append(owned, partitionKey{topic, p})
			}
		}
	}
	return owned
}
