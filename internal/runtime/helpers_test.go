package runtime

import (
	"context"
	"errors"
	"maps"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	configpkg "github.com/drblury/opflow/internal/runtime/config"
	loggingpkg "github.com/drblury/opflow/internal/runtime/logging"
	"github.com/drblury/opflow/transport"
	"github.com/drblury/opflow/transport/memory"
)

type logRecord struct {
	level  string
	msg    string
	err    error
	fields loggingpkg.LogFields
}

// recordingLogger keeps every entry, including those of its With children.
type recordingLogger struct {
	mu      *sync.Mutex
	records *[]logRecord
	fields  loggingpkg.LogFields
}

func newRecordingLogger() *recordingLogger {
	return &recordingLogger{mu: &sync.Mutex{}, records: &[]logRecord{}}
}

func (l *recordingLogger) With(fields loggingpkg.LogFields) loggingpkg.ServiceLogger {
	merged := maps.Clone(l.fields)
	if merged == nil {
		merged = loggingpkg.LogFields{}
	}
	maps.Copy(merged, fields)
	return &recordingLogger{mu: l.mu, records: l.records, fields: merged}
}

func (l *recordingLogger) add(level, msg string, err error, fields loggingpkg.LogFields) {
	all := maps.Clone(l.fields)
	if all == nil {
		all = loggingpkg.LogFields{}
	}
	maps.Copy(all, fields)
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.records = append(*l.records, logRecord{level: level, msg: msg, err: err, fields: all})
}

func (l *recordingLogger) Debug(msg string, fields loggingpkg.LogFields) { l.add("debug", msg, nil, fields) }
func (l *recordingLogger) Info(msg string, fields loggingpkg.LogFields)  { l.add("info", msg, nil, fields) }
func (l *recordingLogger) Trace(msg string, fields loggingpkg.LogFields) { l.add("trace", msg, nil, fields) }
func (l *recordingLogger) Error(msg string, err error, fields loggingpkg.LogFields) {
	l.add("error", msg, err, fields)
}

func (l *recordingLogger) errorRecords() []logRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []logRecord
	for _, r := range *l.records {
		if r.level == "error" {
			out = append(out, r)
		}
	}
	return out
}

func testConfig(channels ...string) *configpkg.Config {
	conf := configpkg.Default()
	conf.PubSubSystem = memory.TransportName
	conf.ConsumerGroup = "calc"
	conf.InputChannels = channels
	return &conf
}

// memoryTransport builds a consumer/producer pair on b for the test group.
func memoryTransport(t *testing.T, b *memory.Broker) transport.Transport {
	t.Helper()
	tr, err := memory.BuildOn(b)(context.Background(), testConfig("MINUS"), nil)
	require.NoError(t, err)
	return tr
}

// subscribedWorker returns a worker whose consumer is already subscribed,
// for driving process directly.
func subscribedWorker(t *testing.T, b *memory.Broker, logger loggingpkg.ServiceLogger, channels ...string) *Worker {
	t.Helper()
	w, err := NewWorker(0, memoryTransport(t, b), channels, logger, nil)
	require.NoError(t, err)
	require.NoError(t, w.consumer.Subscribe(context.Background(), channels))
	t.Cleanup(func() { _ = w.close() })
	return w
}

func fetchOne(t *testing.T, w *Worker) *transport.Delivery {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	d, err := w.consumer.Fetch(ctx)
	require.NoError(t, err)
	return d
}

// scriptedConsumer serves a fixed list of deliveries, then blocks until
// ctx is done or returns fetchErr when set.
type scriptedConsumer struct {
	mu         sync.Mutex
	deliveries []*transport.Delivery
	subErr     error
	fetchErr   error
	commitErr  error
	commits    []*transport.Delivery
	releases   []transport.Disposition
	closed     int
}

func (c *scriptedConsumer) Subscribe(context.Context, []string) error { return c.subErr }

func (c *scriptedConsumer) Fetch(ctx context.Context) (*transport.Delivery, error) {
	c.mu.Lock()
	if len(c.deliveries) > 0 {
		d := c.deliveries[0]
		c.deliveries = c.deliveries[1:]
		c.mu.Unlock()
		return d, nil
	}
	err := c.fetchErr
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func (c *scriptedConsumer) Commit(_ context.Context, d *transport.Delivery) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.commitErr != nil {
		return c.commitErr
	}
	c.commits = append(c.commits, d)
	return nil
}

func (c *scriptedConsumer) Release(_ *transport.Delivery, disposition transport.Disposition) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.releases = append(c.releases, disposition)
	return nil
}

func (c *scriptedConsumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return nil
}

func (c *scriptedConsumer) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type published struct {
	channel  string
	payload  []byte
	metadata map[string]string
}

type recordingProducer struct {
	mu       sync.Mutex
	messages []published
	err      error
	closed   int
}

func (p *recordingProducer) Publish(_ context.Context, channel string, payload []byte, metadata map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, published{channel: channel, payload: payload, metadata: metadata})
	return nil
}

func (p *recordingProducer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed++
	return nil
}

func (p *recordingProducer) closeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

var errBrokerDown = errors.New("broker down")
