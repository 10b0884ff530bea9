package runtime

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the pipeline's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	mu sync.Mutex

	messagesTotal     *prometheus.CounterVec
	decodeFailures    *prometheus.CounterVec
	publishFailures   *prometheus.CounterVec
	processingSeconds *prometheus.HistogramVec
	workersRunning    prometheus.Gauge

	registerer prometheus.Registerer
	registered bool
}

func newPipelineCounterVec(name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "opflow",
			Subsystem: "pipeline",
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

// NewMetrics creates the collectors. They are not registered until Register.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &Metrics{
		registerer:      registerer,
		messagesTotal:   newPipelineCounterVec("messages_total", "Messages handled, by input channel and outcome", []string{"channel", "outcome"}),
		decodeFailures:  newPipelineCounterVec("decode_failures_total", "Messages dropped before evaluation, by input channel and failure kind", []string{"channel", "kind"}),
		publishFailures: newPipelineCounterVec("publish_failures_total", "Results the broker did not accept, by input channel", []string{"channel"}),
		processingSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "opflow",
				Subsystem: "pipeline",
				Name:      "processing_seconds",
				Help:      "Time from fetch to commit or release",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
			},
			[]string{"channel"},
		),
		workersRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "opflow",
			Subsystem: "pipeline",
			Name:      "workers_running",
			Help:      "Workers currently consuming",
		}),
	}
}

// Register registers the Prometheus collectors. Safe to call multiple times.
func (m *Metrics) Register() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	var err error
	if m.messagesTotal, err = registerOrReuse(m.registerer, m.messagesTotal); err != nil {
		return err
	}
	if m.decodeFailures, err = registerOrReuse(m.registerer, m.decodeFailures); err != nil {
		return err
	}
	if m.publishFailures, err = registerOrReuse(m.registerer, m.publishFailures); err != nil {
		return err
	}
	if m.processingSeconds, err = registerOrReuse(m.registerer, m.processingSeconds); err != nil {
		return err
	}
	if m.workersRunning, err = registerOrReuse(m.registerer, m.workersRunning); err != nil {
		return err
	}

	m.registered = true
	return nil
}

// registerOrReuse registers c, or returns the collector already registered
// under the same descriptor so that a second Metrics on one registry writes
// to the exported series.
func registerOrReuse[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}
	var are prometheus.AlreadyRegisteredError
	if !errors.As(err, &are) {
		return c, err
	}
	existing, ok := are.ExistingCollector.(C)
	if !ok {
		return c, fmt.Errorf("collector already registered with type %T", are.ExistingCollector)
	}
	return existing, nil
}

func (m *Metrics) observe(channel string, outcome Outcome, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.messagesTotal.WithLabelValues(channel, outcome.String()).Inc()
	m.processingSeconds.WithLabelValues(channel).Observe(elapsed.Seconds())
}

func (m *Metrics) decodeFailure(channel string, kind FailureKind) {
	if m == nil {
		return
	}
	m.decodeFailures.WithLabelValues(channel, string(kind)).Inc()
}

func (m *Metrics) publishFailure(channel string) {
	if m == nil {
		return
	}
	m.publishFailures.WithLabelValues(channel).Inc()
}

func (m *Metrics) workerStarted() {
	if m != nil {
		m.workersRunning.Inc()
	}
}

func (m *Metrics) workerStopped() {
	if m != nil {
		m.workersRunning.Dec()
	}
}
