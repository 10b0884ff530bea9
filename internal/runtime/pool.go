package runtime

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/drblury/opflow/internal/channels"
	configpkg "github.com/drblury/opflow/internal/runtime/config"
	errspkg "github.com/drblury/opflow/internal/runtime/errors"
	loggingpkg "github.com/drblury/opflow/internal/runtime/logging"
	"github.com/drblury/opflow/transport"
)

const metricsShutdownTimeout = 5 * time.Second

// PoolDependencies holds optional collaborators. Leave fields nil for the
// defaults: the global transport registry and the default Prometheus
// registry.
type PoolDependencies struct {
	Transports *transport.Registry
	Builder    transport.Builder // Overrides Transports when set.
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
}

// Pool runs a fixed number of independent workers over the same input
// channels. Workers share nothing but the metrics collectors; the broker's
// consumer group spreads partitions across them.
type Pool struct {
	conf   *configpkg.Config
	logger loggingpkg.ServiceLogger

	build    transport.Builder
	metrics  *Metrics
	gatherer prometheus.Gatherer

	mu      sync.Mutex
	running bool
}

// NewPool validates conf and resolves the transport builder. Configured
// input channels the registry does not know are reported, not rejected:
// their messages are dropped per delivery.
func NewPool(conf *configpkg.Config, logger loggingpkg.ServiceLogger, deps PoolDependencies) (*Pool, error) {
	if conf == nil {
		return nil, errspkg.ErrConfigRequired
	}
	if logger == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	if err := conf.Validate(); err != nil {
		return nil, errspkg.NewConfigValidationError(err)
	}

	registry := deps.Transports
	if registry == nil {
		registry = transport.DefaultRegistry
	}
	build := deps.Builder
	if build == nil {
		if !registry.Has(conf.PubSubSystem) {
			return nil, errspkg.NewConfigValidationError(
				fmt.Errorf("unknown pubsub system %q (registered: %v)", conf.PubSubSystem, registry.Names()))
		}
		build = registry.Build
		caps := registry.GetCapabilities(conf.PubSubSystem)
		if conf.Workers > 1 && !caps.SupportsConsumerGroups {
			logger.Info("Transport has no consumer groups; every worker receives every message", loggingpkg.LogFields{
				"pubsub_system": conf.PubSubSystem,
				"workers":       conf.Workers,
			})
		}
	}

	for _, name := range conf.InputChannels {
		if _, err := channels.Resolve(name); err != nil {
			logger.Error("Configured input channel is not in the registry; its messages will be dropped", err, loggingpkg.LogFields{
				"channel":        name,
				"known_channels": channels.Names(),
				"failure_kind":   FailureUnknownChannel,
			})
		}
	}

	registerer := deps.Registerer
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	metrics := NewMetrics(registerer)
	if err := metrics.Register(); err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	return &Pool{
		conf:     conf,
		logger:   logger,
		build:    build,
		metrics:  metrics,
		gatherer: gatherer,
	}, nil
}

// Run builds one transport per worker, runs all workers and waits for them.
// A worker that fails stops alone; its error is joined into the result.
// Run returns nil when ctx is cancelled and every worker stops cleanly.
func (p *Pool) Run(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return errors.New("pool is already running")
	}
	p.running = true
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()

	p.logger.Info("Starting worker pool", loggingpkg.LogFields{
		"pubsub_system": p.conf.PubSubSystem,
		"workers":       p.conf.Workers,
		"config":        p.conf,
	})

	workers, err := p.buildWorkers(ctx)
	if err != nil {
		return err
	}

	stopMetrics, err := p.serveMetrics()
	if err != nil {
		for _, w := range workers {
			_ = w.close()
		}
		return err
	}
	defer stopMetrics()

	errs := make([]error, len(workers))
	var wg sync.WaitGroup
	for i, w := range workers {
		wg.Go(func() {
			p.metrics.workerStarted()
			defer p.metrics.workerStopped()
			if err := w.Run(ctx); err != nil {
				p.logger.Error("Worker stopped with error", err, loggingpkg.LogFields{"worker": w.ID()})
				errs[i] = err
			}
		})
	}
	wg.Wait()

	p.logger.Info("Worker pool stopped", nil)
	return errors.Join(errs...)
}

// buildWorkers creates every worker's transport before any starts. On
// failure the transports already built are closed.
func (p *Pool) buildWorkers(ctx context.Context) ([]*Worker, error) {
	wmLogger := loggingpkg.NewWatermillAdapter(p.logger)
	workers := make([]*Worker, 0, p.conf.Workers)

	abort := func(err error) ([]*Worker, error) {
		for _, w := range workers {
			if cerr := w.close(); cerr != nil {
				err = errors.Join(err, cerr)
			}
		}
		return nil, err
	}

	for id := range p.conf.Workers {
		tr, err := p.build(ctx, p.conf, wmLogger.With(map[string]any{"worker": id}))
		if err != nil {
			return abort(fmt.Errorf("worker %d: %w", id, err))
		}
		w, err := NewWorker(id, tr, slices.Clone(p.conf.InputChannels), p.logger, p.metrics)
		if err != nil {
			return abort(errors.Join(fmt.Errorf("worker %d: %w", id, err), tr.Close()))
		}
		workers = append(workers, w)
	}
	return workers, nil
}

// serveMetrics starts the /metrics endpoint when enabled. The returned
// function shuts it down.
func (p *Pool) serveMetrics() (func(), error) {
	if !p.conf.MetricsEnabled {
		return func() {}, nil
	}

	addr := net.JoinHostPort("", strconv.Itoa(p.conf.MetricsPort))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(p.gatherer, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	p.logger.Info("Starting metrics server", loggingpkg.LogFields{"address": ln.Addr().String()})
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			p.logger.Error("Metrics server failed", err, loggingpkg.LogFields{"address": ln.Addr().String()})
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			p.logger.Error("Metrics server shutdown failed", err, nil)
		}
		<-done
	}, nil
}

// Metrics exposes the pool's collectors.
func (p *Pool) Metrics() *Metrics { return p.metrics }
